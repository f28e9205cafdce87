// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package hold provides a built-in policy that keeps the robot where it is:
// every prediction repeats the current joint state for the whole chunk.
package hold

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/ManuGH/robohub-inference/internal/domain/session/model"
	"github.com/ManuGH/robohub-inference/internal/domain/session/ports"
)

var errNotLoaded = errors.New("hold: policy not loaded")

// Factory builds hold capabilities for every known policy kind.
type Factory struct{}

func (Factory) Supported() []model.PolicyKind { return slices.Clone(model.KnownPolicyKinds) }

func (Factory) New(kind model.PolicyKind, cfg ports.CapabilityConfig) (ports.InferenceCapability, error) {
	steps := cfg.NActionSteps
	if steps <= 0 {
		steps = 1
	}
	return &Capability{kind: kind, path: cfg.PolicyPath, steps: steps}, nil
}

type Capability struct {
	kind  model.PolicyKind
	path  string
	steps int

	mu      sync.Mutex
	loaded  bool
	predict int64
	resets  int64
}

func (c *Capability) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.loaded = true
	c.mu.Unlock()
	return nil
}

func (c *Capability) Predict(ctx context.Context, obs model.Observation) (model.ActionChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return nil, errNotLoaded
	}
	c.predict++
	chunk := make(model.ActionChunk, c.steps)
	for i := range chunk {
		chunk[i] = obs.Joints
	}
	return chunk, nil
}

func (c *Capability) Reset() {
	c.mu.Lock()
	c.resets++
	c.mu.Unlock()
}

func (c *Capability) Release(context.Context) error {
	c.mu.Lock()
	c.loaded = false
	c.mu.Unlock()
	return nil
}

func (c *Capability) Info() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]any{
		"backend":       "hold",
		"policy_type":   string(c.kind),
		"policy_path":   c.path,
		"predict_count": c.predict,
		"reset_count":   c.resets,
	}
}
