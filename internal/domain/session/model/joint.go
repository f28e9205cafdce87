// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

// NumJoints is the fixed arity of every joint vector handled by a session.
const NumJoints = 6

// JointVector holds normalized joint values in canonical order.
type JointVector [NumJoints]float64

// JointLimit is the inclusive normalized range of a single joint.
type JointLimit struct {
	Min float64
	Max float64
}

// StandardJointNames is the canonical slot order used by policies.
var StandardJointNames = [NumJoints]string{
	"shoulder_pan",
	"shoulder_lift",
	"elbow_flex",
	"wrist_flex",
	"wrist_roll",
	"gripper",
}

// TransportJointNames are the names robots use on the wire, slot for slot.
var TransportJointNames = [NumJoints]string{
	"Rotation",
	"Pitch",
	"Elbow",
	"Wrist_Pitch",
	"Wrist_Roll",
	"Jaw",
}

// JointLimits bounds each slot: five joints in [-100,100], the gripper in [0,100].
var JointLimits = [NumJoints]JointLimit{
	{Min: -100, Max: 100},
	{Min: -100, Max: 100},
	{Min: -100, Max: 100},
	{Min: -100, Max: 100},
	{Min: -100, Max: 100},
	{Min: 0, Max: 100},
}

// Clamp returns v with every slot limited to its normalized range.
func (v JointVector) Clamp() JointVector {
	for i, lim := range JointLimits {
		if v[i] < lim.Min {
			v[i] = lim.Min
		} else if v[i] > lim.Max {
			v[i] = lim.Max
		}
	}
	return v
}

// ClampSlice pads or truncates values to NumJoints and clamps the result.
func ClampSlice(values []float64) JointVector {
	var v JointVector
	copy(v[:], values)
	return v.Clamp()
}

// JointIndex resolves a canonical or transport joint name to its slot.
func JointIndex(name string) (int, bool) {
	for i := range StandardJointNames {
		if StandardJointNames[i] == name || TransportJointNames[i] == name {
			return i, true
		}
	}
	return 0, false
}

// ParseJoints maps a name->value message onto the canonical slots.
// Canonical names win over transport names; slots with neither fall back to zero.
func ParseJoints(values map[string]float64) JointVector {
	var v JointVector
	for i := range StandardJointNames {
		if val, ok := values[StandardJointNames[i]]; ok {
			v[i] = val
			continue
		}
		if val, ok := values[TransportJointNames[i]]; ok {
			v[i] = val
		}
	}
	return v
}

// JointCommand is one joint target as dispatched to the robot.
type JointCommand struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Index int     `json:"index"`
}

// JointCommands is a full per-step command set, one entry per joint.
type JointCommands []JointCommand

// Commands converts v into transport-named commands after clamping.
func (v JointVector) Commands() JointCommands {
	v = v.Clamp()
	cmds := make(JointCommands, NumJoints)
	for i, name := range TransportJointNames {
		cmds[i] = JointCommand{Name: name, Value: v[i], Index: i}
	}
	return cmds
}

// Values folds the commands back into a vector keyed by Index.
func (c JointCommands) Values() JointVector {
	var v JointVector
	for _, cmd := range c {
		if cmd.Index >= 0 && cmd.Index < NumJoints {
			v[cmd.Index] = cmd.Value
		}
	}
	return v
}

// ActionChunk is the explicit batch returned by one prediction call.
type ActionChunk []JointVector
