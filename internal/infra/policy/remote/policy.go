// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/ManuGH/robohub-inference/internal/domain/session/model"
	"github.com/ManuGH/robohub-inference/internal/domain/session/ports"
	"github.com/ManuGH/robohub-inference/internal/metrics"
)

var errNotLoaded = errors.New("remote policy: not loaded")

// Config configures the policy worker connection.
type Config struct {
	Endpoint         string
	Timeout          time.Duration
	HTTPClient       *http.Client // optional
	FailureThreshold int
	ResetTimeout     time.Duration
}

// Factory builds capabilities backed by one policy worker. All capabilities
// share the worker's circuit breaker.
type Factory struct {
	client  *Client
	breaker *CircuitBreaker
}

func NewFactory(cfg Config) (*Factory, error) {
	client, err := NewClient(cfg.Endpoint, cfg.HTTPClient, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 10 * time.Second
	}
	return &Factory{
		client:  client,
		breaker: NewCircuitBreaker(client.Endpoint(), cfg.FailureThreshold, cfg.ResetTimeout),
	}, nil
}

func (f *Factory) Supported() []model.PolicyKind { return slices.Clone(model.KnownPolicyKinds) }

func (f *Factory) New(kind model.PolicyKind, cfg ports.CapabilityConfig) (ports.InferenceCapability, error) {
	if !slices.Contains(model.KnownPolicyKinds, kind) {
		return nil, fmt.Errorf("%w: %q", ports.ErrUnsupportedPolicy, kind)
	}
	return &Capability{client: f.client, breaker: f.breaker, kind: kind, cfg: cfg}, nil
}

type loadRequest struct {
	SessionID           string   `json:"session_id"`
	PolicyType          string   `json:"policy_type"`
	PolicyPath          string   `json:"policy_path"`
	CameraNames         []string `json:"camera_names"`
	LanguageInstruction string   `json:"language_instruction,omitempty"`
	NActionSteps        int      `json:"n_action_steps"`
}

type loadResponse struct {
	PolicyID string `json:"policy_id"`
}

type imagePayload struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
	Data   []byte `json:"data"`
}

type predictRequest struct {
	Images map[string]imagePayload `json:"images"`
	Joints []float64               `json:"joints"`
	Task   string                  `json:"task,omitempty"`
}

type predictResponse struct {
	Actions [][]float64 `json:"actions"`
}

// Capability is one policy instance held by the worker.
type Capability struct {
	client  *Client
	breaker *CircuitBreaker
	kind    model.PolicyKind
	cfg     ports.CapabilityConfig

	mu          sync.Mutex
	policyID    string
	predicts    int64
	lastLatency time.Duration
}

func (c *Capability) Load(ctx context.Context) error {
	var res loadResponse
	err := c.client.post(ctx, "/v1/policies/load", loadRequest{
		SessionID:           c.cfg.SessionID,
		PolicyType:          string(c.kind),
		PolicyPath:          c.cfg.PolicyPath,
		CameraNames:         c.cfg.CameraNames,
		LanguageInstruction: c.cfg.LanguageInstruction,
		NActionSteps:        c.cfg.NActionSteps,
	}, &res)
	metrics.RecordPolicyRequest("load", err)
	if err != nil {
		return fmt.Errorf("load %s policy %q: %w", c.kind, c.cfg.PolicyPath, err)
	}
	if res.PolicyID == "" {
		return fmt.Errorf("load %s policy %q: worker returned no policy id", c.kind, c.cfg.PolicyPath)
	}
	c.mu.Lock()
	c.policyID = res.PolicyID
	c.mu.Unlock()
	return nil
}

func (c *Capability) id() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.policyID == "" {
		return "", errNotLoaded
	}
	return c.policyID, nil
}

func (c *Capability) path(id, op string) string {
	return "/v1/policies/" + url.PathEscape(id) + "/" + op
}

func (c *Capability) Predict(ctx context.Context, obs model.Observation) (model.ActionChunk, error) {
	id, err := c.id()
	if err != nil {
		return nil, err
	}
	req := predictRequest{
		Images: make(map[string]imagePayload, len(obs.Images)),
		Joints: obs.Joints[:],
		Task:   obs.Task,
	}
	for cam, f := range obs.Images {
		req.Images[cam] = imagePayload{Width: f.Width, Height: f.Height, Format: f.Format, Data: f.Data}
	}

	var res predictResponse
	start := time.Now()
	err = c.breaker.Execute(func() error {
		return c.client.post(ctx, c.path(id, "predict"), req, &res)
	}, isClientError)
	elapsed := time.Since(start)
	metrics.RecordPolicyRequest("predict", err)
	if err != nil {
		return nil, err
	}

	chunk := make(model.ActionChunk, 0, len(res.Actions))
	for i, a := range res.Actions {
		if len(a) != model.NumJoints {
			return nil, fmt.Errorf("predict: action %d has %d values, want %d", i, len(a), model.NumJoints)
		}
		var v model.JointVector
		copy(v[:], a)
		chunk = append(chunk, v)
	}

	c.mu.Lock()
	c.predicts++
	c.lastLatency = elapsed
	c.mu.Unlock()
	return chunk, nil
}

// Reset asks the worker to clear the policy history. Failures are ignored;
// the next prediction surfaces a broken worker.
func (c *Capability) Reset() {
	id, err := c.id()
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = c.client.post(ctx, c.path(id, "reset"), nil, nil)
	metrics.RecordPolicyRequest("reset", err)
}

func (c *Capability) Release(ctx context.Context) error {
	c.mu.Lock()
	id := c.policyID
	c.policyID = ""
	c.mu.Unlock()
	if id == "" {
		return nil
	}
	err := c.client.post(ctx, c.path(id, "release"), nil, nil)
	metrics.RecordPolicyRequest("release", err)
	if err != nil {
		return fmt.Errorf("release policy %s: %w", id, err)
	}
	return nil
}

func (c *Capability) Info() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]any{
		"backend":         "remote",
		"policy_type":     string(c.kind),
		"policy_path":     c.cfg.PolicyPath,
		"endpoint":        c.client.Endpoint(),
		"predict_count":   c.predicts,
		"last_latency_ms": float64(c.lastLatency.Microseconds()) / 1000,
		"circuit":         c.breaker.State().String(),
	}
}
