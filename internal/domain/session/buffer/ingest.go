// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package buffer holds the mutex-guarded state shared between transport
// callbacks and a session's control loop.
package buffer

import (
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/ManuGH/robohub-inference/internal/domain/session/model"
)

var (
	// ErrFrameSkipped marks frames with an unsupported format or empty dimensions.
	// These are not counted as errors.
	ErrFrameSkipped = errors.New("frame skipped")
	// ErrFrameSize marks frames whose payload does not match width*height*3.
	ErrFrameSize = errors.New("frame size mismatch")
	// ErrUnknownCamera marks frames for a camera the session did not declare.
	ErrUnknownCamera = errors.New("unknown camera")
)

// Counters are the ingestion-side statistics of a session.
type Counters struct {
	ImagesReceived map[string]int64
	JointsReceived int64
	Errors         int64
}

// Readiness reports which inputs have arrived and which are fresh.
type Readiness struct {
	CamerasReady map[string]bool
	JointsReady  bool
	FreshImages  map[string]bool
	FreshJoints  bool
}

// Ready reports whether every camera and the joints have arrived at least once.
func (r Readiness) Ready() bool {
	if !r.JointsReady {
		return false
	}
	for _, ok := range r.CamerasReady {
		if !ok {
			return false
		}
	}
	return true
}

// Ingest stores the latest frame per camera and the latest joint vector.
// All methods are safe for concurrent use and never block on I/O.
type Ingest struct {
	now     func() time.Time
	cameras []string

	mu           sync.Mutex
	frames       map[string]model.Frame
	freshImages  map[string]bool
	joints       model.JointVector
	hasJoints    bool
	freshJoints  bool
	counters     Counters
	lastActivity time.Time
}

// NewIngest creates a buffer for the given cameras. now defaults to time.Now.
func NewIngest(cameras []string, now func() time.Time) *Ingest {
	if now == nil {
		now = time.Now
	}
	b := &Ingest{
		now:         now,
		cameras:     append([]string(nil), cameras...),
		frames:      make(map[string]model.Frame, len(cameras)),
		freshImages: make(map[string]bool, len(cameras)),
		counters:    Counters{ImagesReceived: make(map[string]int64, len(cameras))},
	}
	for _, cam := range cameras {
		b.freshImages[cam] = false
		b.counters.ImagesReceived[cam] = 0
	}
	b.lastActivity = now()
	return b
}

// OnFrame validates and stores a camera frame. The returned error only
// describes why a frame was dropped; the buffer has already accounted for it.
func (b *Ingest) OnFrame(f model.Frame) error {
	if f.Format != model.FormatRGB24 || f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: format=%q %dx%d", ErrFrameSkipped, f.Format, f.Width, f.Height)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.freshImages[f.Camera]; !ok {
		b.counters.Errors++
		return fmt.Errorf("%w: %q", ErrUnknownCamera, f.Camera)
	}
	if len(f.Data) != f.ExpectedSize() {
		b.counters.Errors++
		return fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(f.Data), f.ExpectedSize())
	}

	now := b.now()
	if f.ReceivedAt.IsZero() {
		f.ReceivedAt = now
	}
	b.frames[f.Camera] = f
	b.freshImages[f.Camera] = true
	b.counters.ImagesReceived[f.Camera]++
	b.lastActivity = now
	return nil
}

// OnJoints maps a joint message onto the canonical slots and stores it clamped.
func (b *Ingest) OnJoints(values map[string]float64) {
	v := model.ParseJoints(values).Clamp()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.joints = v
	b.hasJoints = true
	b.freshJoints = true
	b.counters.JointsReceived++
	b.lastActivity = b.now()
}

// Readiness returns per-input readiness and freshness flags.
func (b *Ingest) Readiness() Readiness {
	b.mu.Lock()
	defer b.mu.Unlock()

	r := Readiness{
		CamerasReady: make(map[string]bool, len(b.cameras)),
		JointsReady:  b.hasJoints,
		FreshImages:  maps.Clone(b.freshImages),
		FreshJoints:  b.freshJoints,
	}
	for _, cam := range b.cameras {
		_, r.CamerasReady[cam] = b.frames[cam]
	}
	return r
}

// Ready reports whether inference has every input it needs.
func (b *Ingest) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.hasJoints {
		return false
	}
	for _, cam := range b.cameras {
		if _, ok := b.frames[cam]; !ok {
			return false
		}
	}
	return true
}

// Snapshot copies the latest images and joints for a prediction call.
// Frame payloads are shared; transports hand over a fresh slice per frame.
func (b *Ingest) Snapshot() (map[string]model.Frame, model.JointVector) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return maps.Clone(b.frames), b.joints
}

// Joints returns the current joint vector and whether any has arrived.
func (b *Ingest) Joints() (model.JointVector, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.joints, b.hasJoints
}

// MarkConsumed clears every freshness flag after a prediction.
func (b *Ingest) MarkConsumed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearFreshLocked()
}

// Reset clears freshness and zeros the joint vector. Stored frames and the
// hasJoints flag survive so a restarted loop does not wait for new input.
func (b *Ingest) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearFreshLocked()
	b.joints = model.JointVector{}
}

func (b *Ingest) clearFreshLocked() {
	for cam := range b.freshImages {
		b.freshImages[cam] = false
	}
	b.freshJoints = false
}

// RecordError counts an error raised outside the buffer, such as a transport failure.
func (b *Ingest) RecordError() {
	b.mu.Lock()
	b.counters.Errors++
	b.mu.Unlock()
}

// Counters returns a copy of the ingestion counters.
func (b *Ingest) Counters() Counters {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.counters
	c.ImagesReceived = maps.Clone(b.counters.ImagesReceived)
	return c
}

// LastActivity is the time of the last accepted frame or joint message.
func (b *Ingest) LastActivity() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastActivity
}
