package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldRequestID = "request_id"
	FieldTraceID   = "trace_id"
	FieldSpanID    = "span_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Session fields
	FieldPolicyKind  = "policy_kind"
	FieldCamera      = "camera"
	FieldWorkspaceID = "workspace_id"
	FieldRoomID      = "room_id"
	FieldQueueLen    = "queue_len"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
)
