package channel

import (
	"encoding/json"
	"fmt"
)

// Request is the JSON envelope of a method call.
type Request struct {
	ID        json.RawMessage `json:"id,omitempty"`
	Method    string          `json:"method"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Call decodes the envelope into a MethodCall. Arguments decode into plain Go
// values (string, float64, bool, []any, map[string]any) or nil when absent.
func (r Request) Call() (MethodCall, error) {
	if r.Method == "" {
		return MethodCall{}, fmt.Errorf("request has no method")
	}
	call := MethodCall{Method: r.Method}
	args, err := DecodeArguments(r.Arguments)
	if err != nil {
		return MethodCall{}, err
	}
	call.Arguments = args
	return call, nil
}

// DecodeArguments decodes a raw JSON argument payload. An empty payload is nil.
func DecodeArguments(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var args any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	return args, nil
}

// Response is the JSON envelope of a reply. Exactly one of Result, Error and
// NotImplemented is meaningful.
type Response struct {
	ID             json.RawMessage `json:"id,omitempty"`
	Result         any             `json:"result"`
	Error          *Error          `json:"error,omitempty"`
	NotImplemented bool            `json:"notImplemented,omitempty"`
}

// NewResponse wraps a reply for the call with the given id.
func NewResponse(id json.RawMessage, reply any) Response {
	resp := Response{ID: id}
	switch r := reply.(type) {
	case *Error:
		resp.Error = r
	case notImplemented:
		resp.NotImplemented = true
	default:
		resp.Result = r
	}
	return resp
}
