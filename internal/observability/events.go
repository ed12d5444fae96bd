package observability

// EventEnvelope frames a telemetry event for the bus. EventType names the
// stream (routing key prefix), EventName the concrete occurrence.
type EventEnvelope struct {
	EventType string `json:"event_type"`
	EventName string `json:"event_name"`
	Payload   any    `json:"payload"`
}

// BuildHeaders assembles the correlation headers consumers use to stitch a
// bus event back to its originating request and trace.
func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
