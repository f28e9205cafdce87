package model

import (
	"fmt"
	"strings"
)

// PolicyKind names the family of a prediction capability.
type PolicyKind string

const (
	PolicyACT       PolicyKind = "act"
	PolicyPi0       PolicyKind = "pi0"
	PolicyPi0Fast   PolicyKind = "pi0fast"
	PolicySmolVLA   PolicyKind = "smolvla"
	PolicyDiffusion PolicyKind = "diffusion"
)

// KnownPolicyKinds lists every kind the scheduler understands.
var KnownPolicyKinds = []PolicyKind{PolicyACT, PolicyPi0, PolicyPi0Fast, PolicySmolVLA, PolicyDiffusion}

// ParsePolicyKind normalizes s and checks it against KnownPolicyKinds.
func ParsePolicyKind(s string) (PolicyKind, error) {
	k := PolicyKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range KnownPolicyKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown policy kind %q", s)
}

// SupportsLanguage reports whether predictions accept a task instruction.
func (k PolicyKind) SupportsLanguage() bool {
	switch k {
	case PolicyPi0, PolicyPi0Fast, PolicySmolVLA:
		return true
	default:
		return false
	}
}

func (k PolicyKind) String() string { return string(k) }
