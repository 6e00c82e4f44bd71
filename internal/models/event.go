package models

import "encoding/json"

// Request is the inbound action envelope. Action specific fields are kept
// raw and decoded by the handler.
type Request struct {
	Action    string                     `json:"action"`
	RequestID *int64                     `json:"request_id"`
	Fields    map[string]json.RawMessage `json:"-"`
}

// Envelope is the outbound response and broadcast frame.
type Envelope struct {
	Errors         []string `json:"errors"`
	Data           any      `json:"data"`
	Action         string   `json:"action"`
	ResponseStatus int      `json:"response_status"`
	RequestID      *int64   `json:"request_id"`
}
