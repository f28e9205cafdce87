package ports

import (
	"context"

	"github.com/ManuGH/robohub-inference/internal/domain/session/model"
)

// InferenceCapability is a loaded policy that turns observations into action chunks.
// Predict may be slow or fail; callers absorb its errors per tick.
type InferenceCapability interface {
	Load(ctx context.Context) error

	// Predict always returns an explicit batch of joint vectors.
	Predict(ctx context.Context, obs model.Observation) (model.ActionChunk, error)

	// Reset clears any internal observation history of the policy.
	Reset()

	Release(ctx context.Context) error

	// Info reports implementation-defined statistics for status snapshots.
	Info() map[string]any
}

// CapabilityConfig carries the per-session parameters of a capability.
type CapabilityConfig struct {
	SessionID           string
	PolicyPath          string
	CameraNames         []string
	LanguageInstruction string
	NActionSteps        int
}

// CapabilityFactory builds capabilities for the policy kinds it supports.
type CapabilityFactory interface {
	Supported() []model.PolicyKind
	New(kind model.PolicyKind, cfg CapabilityConfig) (InferenceCapability, error)
}
