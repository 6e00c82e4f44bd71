package session

import (
	"bytes"
	"encoding/json"

	"chat-gateway/internal/models"
	"chat-gateway/internal/policy"
)

type request struct {
	models.Request
}

func parseRequest(raw []byte) (*request, error) {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, badRequest("Malformed request: %v", err)
	}

	req := &request{models.Request{Fields: fields}}
	if val, ok := fields["request_id"]; ok && !isNull(val) {
		var id int64
		if err := json.Unmarshal(val, &id); err != nil {
			return nil, badRequest("request_id must be an integer!")
		}
		req.RequestID = &id
	}
	if err := json.Unmarshal(fields["action"], &req.Action); err != nil || req.Action == "" {
		return req, badRequest("action is required!")
	}
	return req, nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func (r *request) has(name string) bool {
	val, ok := r.Fields[name]
	return ok && !isNull(val)
}

func (r *request) intArg(name string) (int, error) {
	if !r.has(name) {
		return 0, badRequest("%s is required!", name)
	}
	var n int
	if err := json.Unmarshal(r.Fields[name], &n); err != nil {
		return 0, badRequest("%s must be an integer!", name)
	}
	return n, nil
}

func (r *request) stringArg(name string) (string, error) {
	if !r.has(name) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(r.Fields[name], &s); err != nil {
		return "", badRequest("%s must be a string!", name)
	}
	return s, nil
}

func (r *request) intsArg(name string) ([]int, error) {
	if !r.has(name) {
		return nil, nil
	}
	var ids []int
	if err := json.Unmarshal(r.Fields[name], &ids); err != nil {
		return nil, badRequest("%s must be a list of integers!", name)
	}
	return ids, nil
}

// policyArgs extracts the arguments permissions look at. A malformed
// room_pk is reported here so permissions only see valid ids.
func (r *request) policyArgs() (policy.Args, error) {
	if !r.has("room_pk") {
		return policy.Args{}, nil
	}
	id, err := r.intArg("room_pk")
	if err != nil {
		return policy.Args{}, err
	}
	return policy.Args{RoomID: id}, nil
}
