package ws

import (
	"time"

	"chat-gateway/internal/observability"
)

type ConnInfo struct {
	ConnID      string
	Kind        string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// event builds a ws_events envelope describing the connection.
func (i ConnInfo) event(name, reason string) observability.EventEnvelope {
	duration := int64(0)
	if name != "ws_connect" {
		duration = time.Since(i.ConnectedAt).Milliseconds()
	}
	return observability.EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"kind":        i.Kind,
				"event":       name,
				"conn_id":     i.ConnID,
				"duration_ms": duration,
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   i.UserID,
				"device_id": i.DeviceID,
				"ip":        i.IP,
			},
		},
	}
}

func (i ConnInfo) headers() map[string]string {
	return observability.BuildHeaders(i.RequestID, i.TraceID)
}
