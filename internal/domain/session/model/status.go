// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import (
	"maps"
	"time"
)

// RoomIDs describes where a session's feeds live on the transport.
type RoomIDs struct {
	WorkspaceID       string            `json:"workspace_id"`
	CameraRoomIDs     map[string]string `json:"camera_room_ids"`
	JointInputRoomID  string            `json:"joint_input_room_id"`
	JointOutputRoomID string            `json:"joint_output_room_id"`
}

// Clone returns a deep copy of r.
func (r RoomIDs) Clone() RoomIDs {
	r.CameraRoomIDs = maps.Clone(r.CameraRoomIDs)
	return r
}

// Stats are the per-session counters.
type Stats struct {
	InferenceCount int64            `json:"inference_count"`
	ImagesReceived map[string]int64 `json:"images_received"`
	JointsReceived int64            `json:"joints_received"`
	CommandsSent   int64            `json:"commands_sent"`
	Errors         int64            `json:"errors"`
	ActionsInQueue int              `json:"actions_in_queue"`
}

// JointState is the joint view exposed in a status snapshot.
type JointState struct {
	Current     JointVector  `json:"current"`
	HasJoints   bool         `json:"has_joints"`
	LastCommand *JointVector `json:"last_command,omitempty"`
}

// Status is a point-in-time snapshot of a session.
type Status struct {
	SessionID      string         `json:"session_id"`
	State          State          `json:"status"`
	PolicyPath     string         `json:"policy_path"`
	PolicyKind     PolicyKind     `json:"policy_type"`
	CameraNames    []string       `json:"camera_names"`
	Rooms          RoomIDs        `json:"rooms"`
	Stats          Stats          `json:"stats"`
	InferenceStats map[string]any `json:"inference_stats,omitempty"`
	JointState     JointState     `json:"joint_state"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	LastActivity   time.Time      `json:"last_activity"`
}

// QueueInfo is the debug view of a session's action queue and inputs.
type QueueInfo struct {
	SessionID      string          `json:"session_id"`
	QueueLength    int             `json:"queue_length"`
	QueueCapacity  int             `json:"queue_capacity"`
	HighWater      int             `json:"high_water"`
	NActionSteps   int             `json:"n_action_steps"`
	ControlHz      int             `json:"control_frequency"`
	InferenceHz    int             `json:"inference_frequency"`
	LastFlushCheck time.Time       `json:"last_queue_cleanup"`
	CamerasReady   map[string]bool `json:"cameras_ready"`
	JointsReady    bool            `json:"joints_ready"`
	FreshImages    map[string]bool `json:"fresh_images"`
	FreshJoints    bool            `json:"fresh_joints"`
	ReadyToInfer   bool            `json:"ready_to_infer"`
}
