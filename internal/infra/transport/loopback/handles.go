// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package loopback

import (
	"context"
	"sync"

	"github.com/ManuGH/robohub-inference/internal/domain/session/model"
	"github.com/ManuGH/robohub-inference/internal/domain/session/ports"
)

// membership is the connection state shared by every handle kind.
type membership struct {
	mu        sync.Mutex
	ws        string
	room      string
	identity  string
	connected bool
}

func (m *membership) set(ws, roomID, identity string) {
	m.mu.Lock()
	m.ws, m.room, m.identity, m.connected = ws, roomID, identity, true
	m.mu.Unlock()
}

func (m *membership) clear() (ws, roomID, identity string, was bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, roomID, identity, was = m.ws, m.room, m.identity, m.connected
	m.connected = false
	return
}

type videoConsumer struct {
	hub *Hub
	membership

	receiving bool
	onFrame   ports.FrameHandler
	onError   ports.ErrorHandler
}

func (c *videoConsumer) Connect(ctx context.Context, ws, roomID, identity string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok := c.hub.join(ws, roomID, identity, func(r *room) { r.video[c] = struct{}{} })
	if ok {
		c.set(ws, roomID, identity)
	}
	return ok, nil
}

func (c *videoConsumer) Disconnect(context.Context) error {
	ws, roomID, identity, was := c.clear()
	if was {
		c.hub.leave(ws, roomID, identity, func(r *room) { delete(r.video, c) })
	}
	c.mu.Lock()
	c.receiving = false
	c.mu.Unlock()
	return nil
}

func (c *videoConsumer) OnFrame(h ports.FrameHandler) {
	c.mu.Lock()
	c.onFrame = h
	c.mu.Unlock()
}

func (c *videoConsumer) OnError(h ports.ErrorHandler) {
	c.mu.Lock()
	c.onError = h
	c.mu.Unlock()
}

func (c *videoConsumer) StartReceiving(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return errNotConnected
	}
	c.receiving = true
	return nil
}

func (c *videoConsumer) StopReceiving(context.Context) error {
	c.mu.Lock()
	c.receiving = false
	c.mu.Unlock()
	return nil
}

func (c *videoConsumer) deliver(f model.Frame) bool {
	c.mu.Lock()
	h, ok := c.onFrame, c.receiving
	c.mu.Unlock()
	if !ok || h == nil {
		return false
	}
	h(f)
	return true
}

func (c *videoConsumer) errorHandler() ports.ErrorHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onError
}

type jointConsumer struct {
	hub *Hub
	membership

	onJoints ports.JointHandler
	onError  ports.ErrorHandler
}

func (c *jointConsumer) Connect(ctx context.Context, ws, roomID, identity string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok := c.hub.join(ws, roomID, identity, func(r *room) { r.joints[c] = struct{}{} })
	if ok {
		c.set(ws, roomID, identity)
	}
	return ok, nil
}

func (c *jointConsumer) Disconnect(context.Context) error {
	ws, roomID, identity, was := c.clear()
	if was {
		c.hub.leave(ws, roomID, identity, func(r *room) { delete(r.joints, c) })
	}
	return nil
}

func (c *jointConsumer) OnJoints(h ports.JointHandler) {
	c.mu.Lock()
	c.onJoints = h
	c.mu.Unlock()
}

func (c *jointConsumer) OnError(h ports.ErrorHandler) {
	c.mu.Lock()
	c.onError = h
	c.mu.Unlock()
}

func (c *jointConsumer) deliver(values map[string]float64) {
	c.mu.Lock()
	h := c.onJoints
	c.mu.Unlock()
	if h != nil {
		h(values)
	}
}

func (c *jointConsumer) errorHandler() ports.ErrorHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onError
}

type jointProducer struct {
	hub *Hub
	membership
}

func (p *jointProducer) Connect(ctx context.Context, ws, roomID, identity string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok := p.hub.join(ws, roomID, identity, nil)
	if ok {
		p.set(ws, roomID, identity)
	}
	return ok, nil
}

func (p *jointProducer) Disconnect(context.Context) error {
	ws, roomID, identity, was := p.clear()
	if was {
		p.hub.leave(ws, roomID, identity, nil)
	}
	return nil
}

func (p *jointProducer) Send(ctx context.Context, cmds model.JointCommands) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	ws, roomID, ok := p.ws, p.room, p.connected
	p.mu.Unlock()
	if !ok {
		return errNotConnected
	}
	return p.hub.record(ws, roomID, cmds)
}
