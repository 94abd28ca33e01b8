package observability

// Header keys carried on every published event so consumers can join broker
// traffic back to HTTP request logs and traces.
const (
	headerRequestID = "x-request-id"
	headerTraceID   = "trace_id"
)

// EventEnvelope wraps everything published to the broker: bridged room
// events ("room_events") and connection lifecycle events ("ws_events").
// EventName carries the fabric event name, e.g. "message:new".
type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// BuildHeaders assembles correlation headers, omitting whatever is unknown
// for this connection.
func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers[headerRequestID] = requestID
	}
	if traceID != "" {
		headers[headerTraceID] = traceID
	}
	return headers
}
