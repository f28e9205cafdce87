// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/robohub-inference/internal/domain/session/model"
	"github.com/ManuGH/robohub-inference/internal/domain/session/ports"
	"github.com/ManuGH/robohub-inference/internal/domain/session/store"
	"github.com/ManuGH/robohub-inference/internal/log"
	"github.com/ManuGH/robohub-inference/internal/metrics"
)

// DefaultSweepInterval is how often timed-out sessions are reaped.
const DefaultSweepInterval = 5 * time.Minute

// DefaultCameras is used when a create request names no cameras.
var DefaultCameras = []string{"front"}

// CreateParams describes a session to create.
type CreateParams struct {
	SessionID           string
	PolicyPath          string
	PolicyKind          string
	CameraNames         []string
	TransportEndpoint   string
	WorkspaceID         string
	LanguageInstruction string
}

// RegistryConfig wires a Registry to its collaborators.
type RegistryConfig struct {
	Transports      ports.TransportFactory
	Capabilities    ports.CapabilityFactory
	Archive         store.Archive // optional
	Defaults        func() SessionConfig
	DefaultEndpoint string
	SweepInterval   time.Duration
}

// Registry owns every live session. All mutation goes through its methods.
type Registry struct {
	transports      ports.TransportFactory
	capabilities    ports.CapabilityFactory
	archive         store.Archive
	defaults        func() SessionConfig
	defaultEndpoint string
	sweepInterval   time.Duration
	clock           clock
	logger          zerolog.Logger
	tasks           taskGroup

	// lifecycleMu serializes create-commit, delete and sweep.
	lifecycleMu sync.Mutex

	mu          sync.RWMutex
	sessions    map[string]*Session
	pending     map[string]struct{}
	closed      bool
	sweepCancel context.CancelFunc
}

func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.Transports == nil {
		return nil, errors.New("registry: transport factory is required")
	}
	if cfg.Capabilities == nil {
		return nil, errors.New("registry: capability factory is required")
	}
	if cfg.Defaults == nil {
		cfg.Defaults = DefaultSessionConfig
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	return &Registry{
		transports:      cfg.Transports,
		capabilities:    cfg.Capabilities,
		archive:         cfg.Archive,
		defaults:        cfg.Defaults,
		defaultEndpoint: cfg.DefaultEndpoint,
		sweepInterval:   cfg.SweepInterval,
		clock:           realClock{},
		logger:          log.WithComponent("registry"),
		sessions:        make(map[string]*Session),
		pending:         make(map[string]struct{}),
	}, nil
}

// SupportedPolicies lists the policy kinds sessions can be created with.
func (r *Registry) SupportedPolicies() []model.PolicyKind {
	return slices.Clone(r.capabilities.Supported())
}

func (r *Registry) validate(p CreateParams) (CreateParams, model.PolicyKind, error) {
	p.SessionID = strings.TrimSpace(p.SessionID)
	if !model.IsSafeSessionID(p.SessionID) {
		return p, "", ports.Invalid("session_id", "must match [a-zA-Z0-9_-]{1,128}")
	}
	p.PolicyPath = strings.TrimSpace(p.PolicyPath)
	if p.PolicyPath == "" {
		return p, "", ports.Invalid("policy_path", "must not be empty")
	}

	kind, err := model.ParsePolicyKind(p.PolicyKind)
	if err != nil || !slices.Contains(r.capabilities.Supported(), kind) {
		return p, "", fmt.Errorf("%w: %q", ports.ErrUnsupportedPolicy, p.PolicyKind)
	}

	if len(p.CameraNames) == 0 {
		p.CameraNames = slices.Clone(DefaultCameras)
	}
	seen := make(map[string]struct{}, len(p.CameraNames))
	for _, cam := range p.CameraNames {
		if !model.IsSafeSessionID(cam) {
			return p, "", ports.Invalid("camera_names", fmt.Sprintf("camera name %q is not a safe identifier", cam))
		}
		if _, dup := seen[cam]; dup {
			return p, "", ports.Invalid("camera_names", fmt.Sprintf("duplicate camera %q", cam))
		}
		seen[cam] = struct{}{}
	}

	if p.TransportEndpoint == "" {
		p.TransportEndpoint = r.defaultEndpoint
	}
	return p, kind, nil
}

// reserve claims id for an in-flight create.
func (r *Registry) reserve(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ports.ErrShuttingDown
	}
	if _, ok := r.sessions[id]; ok {
		return fmt.Errorf("%w: %s", ports.ErrDuplicate, id)
	}
	if _, ok := r.pending[id]; ok {
		return fmt.Errorf("%w: %s is being created", ports.ErrDuplicate, id)
	}
	r.pending[id] = struct{}{}
	return nil
}

func (r *Registry) unreserve(id string) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

// Create validates params, allocates rooms, builds and initializes a
// session. The session is registered only if initialization succeeds.
func (r *Registry) Create(ctx context.Context, p CreateParams) (rooms model.RoomIDs, err error) {
	defer func() { metrics.RecordLifecycle("create", err) }()

	p, kind, err := r.validate(p)
	if err != nil {
		return model.RoomIDs{}, err
	}
	if err := r.reserve(p.SessionID); err != nil {
		return model.RoomIDs{}, err
	}
	defer r.unreserve(p.SessionID)

	logger := r.logger.With().Str(log.FieldSessionID, p.SessionID).Logger()

	cfg := r.defaults()
	if err := cfg.Validate(); err != nil {
		return model.RoomIDs{}, fmt.Errorf("session defaults: %w", err)
	}
	pacer, err := NewPacer(cfg.Pacing)
	if err != nil {
		return model.RoomIDs{}, err
	}

	client, err := r.transports.Client(p.TransportEndpoint)
	if err != nil {
		return model.RoomIDs{}, fmt.Errorf("resolve transport %q: %w", p.TransportEndpoint, err)
	}
	rooms, err = allocateRooms(ctx, client, p)
	if err != nil {
		return model.RoomIDs{}, err
	}

	capability, err := r.capabilities.New(kind, ports.CapabilityConfig{
		SessionID:           p.SessionID,
		PolicyPath:          p.PolicyPath,
		CameraNames:         slices.Clone(p.CameraNames),
		LanguageInstruction: p.LanguageInstruction,
		NActionSteps:        cfg.NActionSteps,
	})
	if err != nil {
		return model.RoomIDs{}, fmt.Errorf("build %s capability: %w", kind, err)
	}

	sess := newSession(sessionSpec{
		ID:          p.SessionID,
		PolicyPath:  p.PolicyPath,
		Kind:        kind,
		Cameras:     slices.Clone(p.CameraNames),
		Instruction: p.LanguageInstruction,
		Rooms:       rooms.Clone(),
	}, cfg, sessionDeps{
		capability: capability,
		transport:  client,
		pacer:      pacer,
		clock:      r.clock,
	})
	if err := sess.Initialize(ctx); err != nil {
		return model.RoomIDs{}, fmt.Errorf("initialize session %s: %w", p.SessionID, err)
	}

	r.lifecycleMu.Lock()
	r.mu.Lock()
	closed := r.closed
	if !closed {
		r.sessions[p.SessionID] = sess
	}
	r.mu.Unlock()
	r.lifecycleMu.Unlock()

	if closed {
		_ = sess.Cleanup(context.WithoutCancel(ctx))
		return model.RoomIDs{}, ports.ErrShuttingDown
	}

	r.ensureSweeper()
	logger.Info().
		Str(log.FieldWorkspaceID, rooms.WorkspaceID).
		Str(log.FieldPolicyKind, string(kind)).
		Msg("session created")
	return rooms, nil
}

// allocateRooms creates every room of a session. Without a workspace the
// first camera room allocates one and the rest follow it.
func allocateRooms(ctx context.Context, client ports.TransportClient, p CreateParams) (model.RoomIDs, error) {
	ws := p.WorkspaceID
	rooms := model.RoomIDs{CameraRoomIDs: make(map[string]string, len(p.CameraNames))}

	for _, cam := range p.CameraNames {
		gotWS, room, err := client.CreateRoom(ctx, ws, model.CameraRoomID(p.SessionID, cam))
		if err != nil {
			return model.RoomIDs{}, fmt.Errorf("create room for camera %q: %w", cam, err)
		}
		ws = gotWS
		rooms.CameraRoomIDs[cam] = room
	}

	_, in, err := client.CreateRoom(ctx, ws, model.JointInputRoomID(p.SessionID))
	if err != nil {
		return model.RoomIDs{}, fmt.Errorf("create joint input room: %w", err)
	}
	_, out, err := client.CreateRoom(ctx, ws, model.JointOutputRoomID(p.SessionID))
	if err != nil {
		return model.RoomIDs{}, fmt.Errorf("create joint output room: %w", err)
	}

	rooms.WorkspaceID = ws
	rooms.JointInputRoomID = in
	rooms.JointOutputRoomID = out
	return rooms, nil
}

func (r *Registry) get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrNotFound, id)
	}
	return s, nil
}

func (r *Registry) Start(ctx context.Context, id string) error {
	s, err := r.get(id)
	if err != nil {
		return err
	}
	err = s.Start(ctx)
	metrics.RecordLifecycle("start", err)
	return err
}

func (r *Registry) Stop(ctx context.Context, id string) error {
	s, err := r.get(id)
	if err != nil {
		return err
	}
	err = s.Stop(ctx)
	metrics.RecordLifecycle("stop", err)
	return err
}

func (r *Registry) Restart(ctx context.Context, id string) error {
	s, err := r.get(id)
	if err != nil {
		return err
	}
	err = s.Restart(ctx)
	metrics.RecordLifecycle("restart", err)
	return err
}

// Reset clears a session's queue and inputs without touching its state.
func (r *Registry) Reset(_ context.Context, id string) error {
	s, err := r.get(id)
	if err != nil {
		return err
	}
	s.Reset()
	metrics.RecordLifecycle("reset", nil)
	return nil
}

// Delete cleans up and removes a session. Cleanup failures are logged;
// the session is removed regardless.
func (r *Registry) Delete(ctx context.Context, id string) error {
	return r.delete(ctx, id, store.ReasonDeleted)
}

func (r *Registry) delete(ctx context.Context, id, reason string) error {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()

	s, err := r.get(id)
	if err != nil {
		return err
	}
	logger := r.logger.With().Str(log.FieldSessionID, id).Str("reason", reason).Logger()

	if err := s.Cleanup(context.WithoutCancel(ctx)); err != nil {
		logger.Warn().Err(err).Msg("session cleanup incomplete")
	}

	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
	metrics.RecordLifecycle("delete", nil)

	if r.archive != nil {
		rec := store.Record{SessionID: id, Reason: reason, EndedAt: r.clock.Now(), Status: s.Status()}
		if err := r.archive.Put(context.WithoutCancel(ctx), rec); err != nil {
			logger.Warn().Err(err).Msg("failed to archive session snapshot")
		}
	}

	logger.Info().Msg("session deleted")
	return nil
}

// Status returns the snapshot of one session.
func (r *Registry) Status(id string) (model.Status, error) {
	s, err := r.get(id)
	if err != nil {
		return model.Status{}, err
	}
	return s.Status(), nil
}

// QueueInfo returns the debug queue view of one session.
func (r *Registry) QueueInfo(id string) (model.QueueInfo, error) {
	s, err := r.get(id)
	if err != nil {
		return model.QueueInfo{}, err
	}
	return s.QueueInfo(), nil
}

func (r *Registry) snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b *Session) int { return strings.Compare(a.ID(), b.ID()) })
	return out
}

// List returns every session snapshot ordered by ID.
func (r *Registry) List() []model.Status {
	sessions := r.snapshot()
	out := make([]model.Status, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Status())
	}
	return out
}

// IDs returns the registered session IDs in order.
func (r *Registry) IDs() []string {
	sessions := r.snapshot()
	out := make([]string, len(sessions))
	for i, s := range sessions {
		out[i] = s.ID()
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SweepOnce deletes every session in the timeout state and returns how
// many were removed.
func (r *Registry) SweepOnce(ctx context.Context) int {
	removed := 0
	for _, s := range r.snapshot() {
		if s.State() != model.StateTimeout {
			continue
		}
		if err := r.delete(ctx, s.ID(), store.ReasonTimeout); err != nil {
			if !errors.Is(err, ports.ErrNotFound) {
				r.logger.Warn().Err(err).Str(log.FieldSessionID, s.ID()).Msg("failed to sweep timed-out session")
			}
			continue
		}
		removed++
	}
	if removed > 0 {
		r.logger.Info().Int("count", removed).Msg("sweep removed timed-out sessions")
	}
	return removed
}

func (r *Registry) ensureSweeper() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.sweepCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	sw := &Sweeper{Registry: r, Interval: r.sweepInterval, clock: r.clock}
	if !r.tasks.Go(func() { sw.Run(ctx) }) {
		cancel()
		return
	}
	r.sweepCancel = cancel
}

// ShutdownAll stops the sweep task and deletes every session. The registry
// rejects new sessions afterwards.
func (r *Registry) ShutdownAll(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	cancel := r.sweepCancel
	r.sweepCancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var errs []error
	if err := r.tasks.CloseAndWait(ctx); err != nil {
		errs = append(errs, err)
	}

	ids := r.IDs()
	for _, id := range ids {
		if err := r.delete(ctx, id, store.ReasonShutdown); err != nil && !errors.Is(err, ports.ErrNotFound) {
			errs = append(errs, fmt.Errorf("delete %s: %w", id, err))
		}
	}
	r.logger.Info().Int("sessions", len(ids)).Msg("registry shut down")
	return errors.Join(errs...)
}
