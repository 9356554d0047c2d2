package log

const (
	// Connection
	FieldConnID      = "conn_id"
	FieldDisplayName = "display_name"
	FieldClientIP    = "client_ip"

	// Message
	FieldMessageID = "message_id"
	FieldEmoji     = "emoji"

	// HTTP
	FieldMethod  = "method"
	FieldPath    = "path"
	FieldStatus  = "status"
	FieldLatency = "latency_ms"

	// Service
	FieldService = "service"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
