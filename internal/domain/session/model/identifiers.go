package model

import "regexp"

var sessionIDRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

// IsSafeSessionID returns true if the ID is safe for room names, store keys and URLs.
func IsSafeSessionID(id string) bool {
	return sessionIDRe.MatchString(id)
}

// CameraRoomID is the room allocated for a camera feed of a session.
func CameraRoomID(sessionID, camera string) string {
	return sessionID + "-" + camera
}

// JointInputRoomID is the room carrying robot joint telemetry into a session.
func JointInputRoomID(sessionID string) string {
	return sessionID + "-joint-input"
}

// JointOutputRoomID is the room receiving the joint commands a session dispatches.
func JointOutputRoomID(sessionID string) string {
	return sessionID + "-joint-output"
}
