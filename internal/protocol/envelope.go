package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnknownType is returned when a frame names a type outside the catalogue.
	ErrUnknownType = errors.New("unknown message type")
	// ErrMalformed is returned when a frame cannot be decoded.
	ErrMalformed = errors.New("malformed message")
)

// Envelope is the frame every broadcast travels in.
type Envelope struct {
	Type      MessageType     `json:"type"`
	EventID   string          `json:"eventId"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Encode wraps msg for eventID.
func Encode(eventID string, msg Message, at time.Time) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", msg.Type(), err)
	}
	return json.Marshal(Envelope{
		Type:      msg.Type(),
		EventID:   eventID,
		Data:      data,
		Timestamp: at.UTC(),
	})
}

// Decode parses a frame into its envelope and typed message.
func Decode(raw []byte) (Envelope, Message, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	msg, err := DecodeData(env.Type, env.Data)
	return env, msg, err
}

// DecodeData parses the payload of a message of type t.
func DecodeData(t MessageType, data json.RawMessage) (Message, error) {
	switch t {
	case TypeActiveTimerUpdated:
		return unmarshalAs[ActiveTimerUpdated](t, data)
	case TypeActiveTimerStopped:
		return unmarshalAs[ActiveTimerStopped](t, data)
	case TypeSubCueTimerLoaded:
		return unmarshalAs[SubCueTimerLoaded](t, data)
	case TypeSubCueTimerStarted:
		return unmarshalAs[SubCueTimerStarted](t, data)
	case TypeSubCueTimerStopped:
		return unmarshalAs[SubCueTimerStopped](t, data)
	case TypeOvertimeUpdate:
		return unmarshalAs[OvertimeUpdate](t, data)
	case TypeShowStartOvertimeUpdate:
		return unmarshalAs[ShowStartOvertimeUpdate](t, data)
	case TypeStartCueSelectionUpdate:
		return unmarshalAs[StartCueSelectionUpdate](t, data)
	case TypeOvertimeReset:
		return unmarshalAs[OvertimeReset](t, data)
	case TypeResetAllStates:
		return ResetAllStates{}, nil
	case TypeServerTime:
		return unmarshalAs[ServerTime](t, data)
	case TypeInitialSync:
		return unmarshalAs[InitialSync](t, data)
	case TypeScheduleSync:
		return unmarshalAs[ScheduleSync](t, data)
	case TypePresenceUpdated:
		return unmarshalAs[PresenceUpdated](t, data)
	case TypeCompletedCuesUpdated:
		return unmarshalAs[CompletedCuesUpdated](t, data)
	case TypeIndentedCuesUpdated:
		return unmarshalAs[IndentedCuesUpdated](t, data)
	case TypeTimersStopped:
		return unmarshalAs[TimersStopped](t, data)
	case TypeForceDisconnect:
		return unmarshalAs[ForceDisconnect](t, data)
	case TypeError:
		return unmarshalAs[Error](t, data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
}

func unmarshalAs[T Message](t MessageType, data json.RawMessage) (Message, error) {
	var msg T
	if len(data) == 0 {
		return msg, nil
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, t, err)
	}
	return msg, nil
}
