package protocol

import (
	"encoding/json"
	"fmt"
)

// RequestType tags a client-to-server request.
type RequestType string

// Client requests. None of them mutate timers or ledgers.
const (
	RequestJoinEvent    RequestType = "joinEvent"
	RequestLeaveEvent   RequestType = "leaveEvent"
	RequestInitialSync  RequestType = "initialSync"
	RequestScheduleSync RequestType = "scheduleSync"
	RequestPresenceJoin RequestType = "presenceJoin"
	RequestTimeSync     RequestType = "timeSync"
)

// Request is a client frame.
type Request struct {
	Type      RequestType     `json:"type"`
	EventID   string          `json:"eventId,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewRequest encodes a request frame. data may be nil.
func NewRequest(t RequestType, eventID, requestID string, data any) ([]byte, error) {
	req := Request{Type: t, EventID: eventID, RequestID: requestID}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s data: %w", t, err)
		}
		req.Data = raw
	}
	return json.Marshal(req)
}

// ParseRequest decodes and validates a client frame.
func ParseRequest(raw []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch req.Type {
	case RequestTimeSync:
		return req, nil
	case RequestJoinEvent, RequestLeaveEvent, RequestInitialSync, RequestScheduleSync, RequestPresenceJoin:
		if req.EventID == "" {
			return req, fmt.Errorf("%w: %s requires eventId", ErrMalformed, req.Type)
		}
		return req, nil
	default:
		return req, fmt.Errorf("%w: %q", ErrUnknownType, req.Type)
	}
}

// Viewer decodes a presenceJoin payload. A missing role defaults to VIEWER.
func (r Request) Viewer() (Viewer, error) {
	var v Viewer
	if len(r.Data) == 0 {
		return v, fmt.Errorf("%w: presenceJoin without data", ErrMalformed)
	}
	if err := json.Unmarshal(r.Data, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if v.UserID == "" {
		return v, fmt.Errorf("%w: presenceJoin requires userId", ErrMalformed)
	}
	if v.UserRole == "" {
		v.UserRole = "VIEWER"
	}
	return v, nil
}
