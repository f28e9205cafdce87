// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package redis implements the session transport on Redis. Rooms are hashes,
// participants are sets and media travels as JSON over pub/sub channels.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ManuGH/robohub-inference/internal/domain/session/ports"
	"github.com/ManuGH/robohub-inference/internal/log"
)

const keyPrefix = "robohub"

var errNotConnected = errors.New("redis transport: not connected")

func roomKey(ws, room string) string         { return keyPrefix + ":ws:" + ws + ":room:" + room }
func participantsKey(ws, room string) string { return roomKey(ws, room) + ":participants" }
func videoChannel(ws, room string) string    { return keyPrefix + ":" + ws + ":" + room + ":video" }
func jointsChannel(ws, room string) string   { return keyPrefix + ":" + ws + ":" + room + ":joints" }

// Factory caches one Client per endpoint URL.
type Factory struct {
	mu      sync.Mutex
	clients map[string]*Client
	logger  zerolog.Logger
}

func NewFactory() *Factory {
	return &Factory{
		clients: make(map[string]*Client),
		logger:  log.WithComponent("transport.redis"),
	}
}

// Client resolves a redis:// URL to a shared client.
func (f *Factory) Client(endpoint string) (ports.TransportClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.clients[endpoint]; ok {
		return c, nil
	}
	opts, err := goredis.ParseURL(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse redis endpoint: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	c := NewClient(goredis.NewClient(opts), f.logger)
	f.clients[endpoint] = c
	f.logger.Info().Str("addr", opts.Addr).Int("db", opts.DB).Msg("redis transport client created")
	return c, nil
}

// Close closes every cached client.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var errs []error
	for endpoint, c := range f.clients {
		if err := c.rdb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", endpoint, err))
		}
		delete(f.clients, endpoint)
	}
	return errors.Join(errs...)
}

// Client is a ports.TransportClient bound to one Redis server.
type Client struct {
	rdb    *goredis.Client
	logger zerolog.Logger
}

func NewClient(rdb *goredis.Client, logger zerolog.Logger) *Client {
	return &Client{rdb: rdb, logger: logger}
}

// CreateRoom registers roomID in ws, allocating a workspace when ws is empty.
// An existing room keeps its original creation time.
func (c *Client) CreateRoom(ctx context.Context, ws, roomID string) (string, string, error) {
	if roomID == "" {
		return "", "", fmt.Errorf("redis transport: empty room id")
	}
	if ws == "" {
		ws = uuid.NewString()
	}
	key := roomKey(ws, roomID)
	pipe := c.rdb.TxPipeline()
	pipe.HSetNX(ctx, key, "workspace", ws)
	pipe.HSetNX(ctx, key, "room", roomID)
	pipe.HSetNX(ctx, key, "created_at_ms", strconv.FormatInt(time.Now().UnixMilli(), 10))
	if _, err := pipe.Exec(ctx); err != nil {
		return "", "", fmt.Errorf("create room %s: %w", key, err)
	}
	return ws, roomID, nil
}

func (c *Client) NewVideoConsumer() ports.VideoConsumer { return &videoConsumer{member: member{c: c}} }
func (c *Client) NewJointConsumer() ports.JointConsumer { return &jointConsumer{member: member{c: c}} }
func (c *Client) NewJointProducer() ports.JointProducer { return &jointProducer{member: member{c: c}} }

// Participants lists the identities joined to a room.
func (c *Client) Participants(ctx context.Context, ws, roomID string) ([]string, error) {
	return c.rdb.SMembers(ctx, participantsKey(ws, roomID)).Result()
}

func (c *Client) join(ctx context.Context, ws, roomID, identity string) (bool, error) {
	n, err := c.rdb.Exists(ctx, roomKey(ws, roomID)).Result()
	if err != nil {
		return false, fmt.Errorf("lookup room %s/%s: %w", ws, roomID, err)
	}
	if n == 0 {
		return false, nil
	}
	if err := c.rdb.SAdd(ctx, participantsKey(ws, roomID), identity).Err(); err != nil {
		return false, fmt.Errorf("join room %s/%s: %w", ws, roomID, err)
	}
	return true, nil
}

func (c *Client) leave(ctx context.Context, ws, roomID, identity string) error {
	if err := c.rdb.SRem(ctx, participantsKey(ws, roomID), identity).Err(); err != nil {
		return fmt.Errorf("leave room %s/%s: %w", ws, roomID, err)
	}
	return nil
}

func (c *Client) publish(ctx context.Context, channel string, msg any) (int64, error) {
	data, err := encode(msg)
	if err != nil {
		return 0, err
	}
	n, err := c.rdb.Publish(ctx, channel, data).Result()
	if err != nil {
		return 0, fmt.Errorf("publish %s: %w", channel, err)
	}
	return n, nil
}
