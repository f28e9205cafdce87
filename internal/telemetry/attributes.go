package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by session spans.
const (
	SessionIDKey       = "session.id"
	PolicyKindKey      = "policy.kind"
	QueueLenKey        = "queue.len"
	ActionsEnqueuedKey = "actions.enqueued"
	ErrorTypeKey       = "error.type"
)

// SessionAttributes describes the session a span belongs to.
func SessionAttributes(sessionID, policyKind string, queueLen int) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if sessionID != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, sessionID))
	}
	if policyKind != "" {
		attrs = append(attrs, attribute.String(PolicyKindKey, policyKind))
	}
	return append(attrs, attribute.Int(QueueLenKey, queueLen))
}

func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String(ErrorTypeKey, errorType)}
}
