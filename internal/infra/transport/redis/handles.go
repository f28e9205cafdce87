// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package redis

import (
	"context"
	"errors"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ManuGH/robohub-inference/internal/domain/session/model"
	"github.com/ManuGH/robohub-inference/internal/domain/session/ports"
)

// member is the connection state shared by every handle kind.
type member struct {
	c *Client

	mu        sync.Mutex
	ws        string
	room      string
	identity  string
	connected bool
	onError   ports.ErrorHandler
}

func (m *member) connect(ctx context.Context, ws, roomID, identity string) (bool, error) {
	ok, err := m.c.join(ctx, ws, roomID, identity)
	if err != nil || !ok {
		return ok, err
	}
	m.mu.Lock()
	m.ws, m.room, m.identity, m.connected = ws, roomID, identity, true
	m.mu.Unlock()
	return true, nil
}

func (m *member) disconnect(ctx context.Context) error {
	m.mu.Lock()
	ws, roomID, identity, was := m.ws, m.room, m.identity, m.connected
	m.connected = false
	m.mu.Unlock()
	if !was {
		return nil
	}
	return m.c.leave(ctx, ws, roomID, identity)
}

func (m *member) location() (ws, roomID string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ws, m.room, m.connected
}

func (m *member) OnError(h ports.ErrorHandler) {
	m.mu.Lock()
	m.onError = h
	m.mu.Unlock()
}

func (m *member) reportError(err error) {
	m.mu.Lock()
	h := m.onError
	m.mu.Unlock()
	if h != nil {
		h(err)
	}
}

// receiver owns one pub/sub subscription and the goroutine draining it.
type receiver struct {
	sub  *goredis.PubSub
	done chan struct{}
}

func (m *member) subscribe(ctx context.Context, channel string, handle func(*goredis.Message)) (*receiver, error) {
	sub := m.c.rdb.Subscribe(ctx, channel)
	// Wait for the confirmation so nothing published after return is lost.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	r := &receiver{sub: sub, done: make(chan struct{})}
	ch := sub.Channel()
	go func() {
		defer close(r.done)
		for msg := range ch {
			handle(msg)
		}
	}()
	return r, nil
}

func (r *receiver) close(ctx context.Context) error {
	err := r.sub.Close()
	select {
	case <-r.done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	case <-time.After(5 * time.Second):
		return errors.Join(err, errors.New("redis transport: receiver did not exit"))
	}
	return err
}

type videoConsumer struct {
	member

	onFrame ports.FrameHandler
	recv    *receiver
}

func (v *videoConsumer) Connect(ctx context.Context, ws, roomID, identity string) (bool, error) {
	return v.connect(ctx, ws, roomID, identity)
}

func (v *videoConsumer) Disconnect(ctx context.Context) error {
	return errors.Join(v.StopReceiving(ctx), v.disconnect(ctx))
}

func (v *videoConsumer) OnFrame(h ports.FrameHandler) {
	v.mu.Lock()
	v.onFrame = h
	v.mu.Unlock()
}

func (v *videoConsumer) StartReceiving(ctx context.Context) error {
	ws, roomID, ok := v.location()
	if !ok {
		return errNotConnected
	}
	v.mu.Lock()
	running := v.recv != nil
	v.mu.Unlock()
	if running {
		return nil
	}

	recv, err := v.subscribe(ctx, videoChannel(ws, roomID), v.handle)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.recv = recv
	v.mu.Unlock()
	return nil
}

func (v *videoConsumer) StopReceiving(ctx context.Context) error {
	v.mu.Lock()
	recv := v.recv
	v.recv = nil
	v.mu.Unlock()
	if recv == nil {
		return nil
	}
	return recv.close(ctx)
}

func (v *videoConsumer) handle(msg *goredis.Message) {
	f, err := decodeFrame(msg.Payload)
	if err != nil {
		v.reportError(err)
		return
	}
	v.mu.Lock()
	h := v.onFrame
	v.mu.Unlock()
	if h != nil {
		h(f)
	}
}

// jointConsumer subscribes on connect since joint telemetry has no
// separate start step.
type jointConsumer struct {
	member

	onJoints ports.JointHandler
	recv     *receiver
}

func (j *jointConsumer) Connect(ctx context.Context, ws, roomID, identity string) (bool, error) {
	ok, err := j.connect(ctx, ws, roomID, identity)
	if err != nil || !ok {
		return ok, err
	}
	recv, err := j.subscribe(ctx, jointsChannel(ws, roomID), j.handle)
	if err != nil {
		_ = j.disconnect(context.WithoutCancel(ctx))
		return false, err
	}
	j.mu.Lock()
	j.recv = recv
	j.mu.Unlock()
	return true, nil
}

func (j *jointConsumer) Disconnect(ctx context.Context) error {
	j.mu.Lock()
	recv := j.recv
	j.recv = nil
	j.mu.Unlock()
	var errs []error
	if recv != nil {
		errs = append(errs, recv.close(ctx))
	}
	errs = append(errs, j.disconnect(ctx))
	return errors.Join(errs...)
}

func (j *jointConsumer) OnJoints(h ports.JointHandler) {
	j.mu.Lock()
	j.onJoints = h
	j.mu.Unlock()
}

func (j *jointConsumer) handle(msg *goredis.Message) {
	m, err := decodeJoints(msg.Payload)
	if err != nil {
		j.reportError(err)
		return
	}
	j.mu.Lock()
	h := j.onJoints
	j.mu.Unlock()
	if h != nil {
		h(m.Joints)
	}
}

type jointProducer struct {
	member
}

func (p *jointProducer) Connect(ctx context.Context, ws, roomID, identity string) (bool, error) {
	return p.connect(ctx, ws, roomID, identity)
}

func (p *jointProducer) Disconnect(ctx context.Context) error {
	return p.disconnect(ctx)
}

func (p *jointProducer) Send(ctx context.Context, cmds model.JointCommands) error {
	ws, roomID, ok := p.location()
	if !ok {
		return errNotConnected
	}
	joints := make(map[string]float64, len(cmds))
	for _, cmd := range cmds {
		joints[cmd.Name] = cmd.Value
	}
	_, err := p.c.publish(ctx, jointsChannel(ws, roomID), JointsMessage{
		Joints:      joints,
		Commands:    cmds,
		TimestampMS: time.Now().UnixMilli(),
	})
	return err
}
