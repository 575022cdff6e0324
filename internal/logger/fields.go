package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, propagated through the call chain via context.
const (
	FieldRequestID = "request_id"
	FieldComponent = "component"
	FieldListingID = "listing_id"
	FieldUserID    = "user_id"
	// FieldReason is the enrichment trigger reason (initial or refresh).
	FieldReason = "reason"
	// FieldKind is the generation kind (caption or mood).
	FieldKind = "kind"
	// FieldSubscriberID identifies a realtime subscriber.
	FieldSubscriberID = "subscriber_id"
)

// Metric fields, used on Entry for aggregation and alerting.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldSize       = "size"
	FieldStatus     = "status"
)
