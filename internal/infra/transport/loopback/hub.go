// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package loopback is an in-process transport. The robot side is driven
// through Hub methods, which makes it suitable for tests and dev mode.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ManuGH/robohub-inference/internal/domain/session/model"
	"github.com/ManuGH/robohub-inference/internal/domain/session/ports"
)

var errNotConnected = errors.New("loopback: not connected")

// maxSentHistory caps the commands kept per room; older entries are dropped.
const maxSentHistory = 1024

// Hub holds every workspace and room. It implements both
// ports.TransportFactory and ports.TransportClient; endpoints are ignored.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*room
}

type room struct {
	video        map[*videoConsumer]struct{}
	joints       map[*jointConsumer]struct{}
	participants map[string]struct{}
	sent         []model.JointCommands
	sendErr      error
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]*room)}
}

func roomKey(ws, roomID string) string { return ws + "/" + roomID }

// Client returns the hub itself for any endpoint.
func (h *Hub) Client(string) (ports.TransportClient, error) { return h, nil }

// CreateRoom registers roomID in ws, allocating a workspace when ws is empty.
// Creating an existing room is a no-op.
func (h *Hub) CreateRoom(ctx context.Context, ws, roomID string) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	if roomID == "" {
		return "", "", fmt.Errorf("loopback: empty room id")
	}
	if ws == "" {
		ws = uuid.NewString()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	key := roomKey(ws, roomID)
	if _, ok := h.rooms[key]; !ok {
		h.rooms[key] = &room{
			video:        make(map[*videoConsumer]struct{}),
			joints:       make(map[*jointConsumer]struct{}),
			participants: make(map[string]struct{}),
		}
	}
	return ws, roomID, nil
}

func (h *Hub) NewVideoConsumer() ports.VideoConsumer { return &videoConsumer{hub: h} }
func (h *Hub) NewJointConsumer() ports.JointConsumer { return &jointConsumer{hub: h} }
func (h *Hub) NewJointProducer() ports.JointProducer { return &jointProducer{hub: h} }

// Rooms lists "workspace/room" keys in sorted order.
func (h *Hub) Rooms() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	keys := make([]string, 0, len(h.rooms))
	for k := range h.rooms {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Participants lists the identities currently joined to a room.
func (h *Hub) Participants(ws, roomID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[roomKey(ws, roomID)]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(r.participants))
	for id := range r.participants {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// PublishFrame delivers a frame to every receiving consumer of the room and
// returns the number of deliveries. Handlers run on the caller's goroutine.
func (h *Hub) PublishFrame(ws, roomID string, f model.Frame) int {
	h.mu.Lock()
	r, ok := h.rooms[roomKey(ws, roomID)]
	var targets []*videoConsumer
	if ok {
		for c := range r.video {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	n := 0
	for _, c := range targets {
		if c.deliver(f) {
			n++
		}
	}
	return n
}

// PublishJoints delivers a joint message to every consumer of the room.
func (h *Hub) PublishJoints(ws, roomID string, values map[string]float64) int {
	h.mu.Lock()
	r, ok := h.rooms[roomKey(ws, roomID)]
	var targets []*jointConsumer
	if ok {
		for c := range r.joints {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.deliver(values)
	}
	return len(targets)
}

// PublishError reports err to every consumer error handler of the room.
func (h *Hub) PublishError(ws, roomID string, err error) {
	h.mu.Lock()
	r, ok := h.rooms[roomKey(ws, roomID)]
	var handlers []ports.ErrorHandler
	if ok {
		for c := range r.video {
			if eh := c.errorHandler(); eh != nil {
				handlers = append(handlers, eh)
			}
		}
		for c := range r.joints {
			if eh := c.errorHandler(); eh != nil {
				handlers = append(handlers, eh)
			}
		}
	}
	h.mu.Unlock()

	for _, eh := range handlers {
		eh(err)
	}
}

// Sent returns a copy of the most recent command steps sent into a room,
// oldest first.
func (h *Hub) Sent(ws, roomID string) []model.JointCommands {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[roomKey(ws, roomID)]
	if !ok {
		return nil
	}
	return slices.Clone(r.sent)
}

// SetSendError makes subsequent sends into a room fail with err (nil clears it).
func (h *Hub) SetSendError(ws, roomID string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[roomKey(ws, roomID)]; ok {
		r.sendErr = err
	}
}

// join returns the room if it exists and records the identity.
func (h *Hub) join(ws, roomID, identity string, attach func(*room)) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[roomKey(ws, roomID)]
	if !ok {
		return false
	}
	r.participants[identity] = struct{}{}
	if attach != nil {
		attach(r)
	}
	return true
}

func (h *Hub) leave(ws, roomID, identity string, detach func(*room)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[roomKey(ws, roomID)]
	if !ok {
		return
	}
	delete(r.participants, identity)
	if detach != nil {
		detach(r)
	}
	// The last participant out closes the room.
	if len(r.participants) == 0 && len(r.video) == 0 && len(r.joints) == 0 {
		delete(h.rooms, roomKey(ws, roomID))
	}
}

func (h *Hub) record(ws, roomID string, cmds model.JointCommands) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[roomKey(ws, roomID)]
	if !ok {
		return fmt.Errorf("loopback: room %s vanished", roomID)
	}
	if r.sendErr != nil {
		return r.sendErr
	}
	if len(r.sent) >= maxSentHistory {
		r.sent = slices.Delete(r.sent, 0, len(r.sent)-maxSentHistory+1)
	}
	r.sent = append(r.sent, slices.Clone(cmds))
	return nil
}
