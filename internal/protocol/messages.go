// Package protocol defines the wire vocabulary between the server and display surfaces.
//
// Broadcasts form a closed set of Message variants. Each variant carries the full current
// value of the sub-state it describes, so applying one twice or out of order is harmless.
package protocol

import (
	"time"

	"github.com/bbernstein/runofshow-go/internal/schedule"
)

// MessageType tags a Message variant on the wire.
type MessageType string

// Broadcast and response message types.
const (
	TypeActiveTimerUpdated      MessageType = "activeTimerUpdated"
	TypeActiveTimerStopped      MessageType = "activeTimerStopped"
	TypeSubCueTimerLoaded       MessageType = "subCueTimerLoaded"
	TypeSubCueTimerStarted      MessageType = "subCueTimerStarted"
	TypeSubCueTimerStopped      MessageType = "subCueTimerStopped"
	TypeOvertimeUpdate          MessageType = "overtimeUpdate"
	TypeShowStartOvertimeUpdate MessageType = "showStartOvertimeUpdate"
	TypeStartCueSelectionUpdate MessageType = "startCueSelectionUpdate"
	TypeOvertimeReset           MessageType = "overtimeReset"
	TypeResetAllStates          MessageType = "resetAllStates"
	TypeServerTime              MessageType = "serverTime"
	TypeInitialSync             MessageType = "initialSync"
	TypeScheduleSync            MessageType = "scheduleSync"
	TypePresenceUpdated         MessageType = "presenceUpdated"
	TypeCompletedCuesUpdated    MessageType = "completedCuesUpdated"
	TypeIndentedCuesUpdated     MessageType = "indentedCuesUpdated"
	TypeTimersStopped           MessageType = "timersStopped"
	TypeForceDisconnect         MessageType = "forceDisconnect"
	TypeError                   MessageType = "error"
)

// Message is implemented only by the variants in this file.
type Message interface {
	Type() MessageType
	isMessage()
}

// TimerState is the lifecycle state of a timer.
type TimerState string

// Timer states.
const (
	StateNone    TimerState = "none"
	StateLoaded  TimerState = "loaded"
	StateRunning TimerState = "running"
	StateStopped TimerState = "stopped"
)

// TimerSnapshot is the full value of one timer at UpdatedAt.
// ElapsedSeconds is informative; readers recompute elapsed from StartedAt.
type TimerSnapshot struct {
	ItemID          *int64     `json:"itemId"`
	State           TimerState `json:"state"`
	DurationSeconds int        `json:"durationSeconds"`
	StartedAt       *time.Time `json:"startedAt"`
	StoppedAt       *time.Time `json:"stoppedAt,omitempty"`
	ElapsedSeconds  int        `json:"elapsedSeconds"`
	LastLoadedCueID *int64     `json:"lastLoadedCueId"`
	CueLabel        string     `json:"cueLabel,omitempty"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Snapshot is the initialSync answer: everything a client needs to render timers.
type Snapshot struct {
	ServerTime    time.Time             `json:"serverTime"`
	ActiveTimer   TimerSnapshot         `json:"activeTimer"`
	SubCueTimer   TimerSnapshot         `json:"subCueTimer"`
	Ledger        schedule.Ledger       `json:"ledger"`
	IndentedCues  schedule.IndentedCues `json:"indentedCues"`
	CompletedCues []int64               `json:"completedCues"`
	Version       uint64                `json:"version"`
}

// ScheduleState is the non-timer state pulled by passive displays.
type ScheduleState struct {
	Schedule      schedule.Schedule     `json:"schedule"`
	Ledger        schedule.Ledger       `json:"ledger"`
	IndentedCues  schedule.IndentedCues `json:"indentedCues"`
	CompletedCues []int64               `json:"completedCues"`
}

// Viewer is one presence entry.
type Viewer struct {
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	UserEmail string `json:"userEmail"`
	UserRole  string `json:"userRole"`
}

type ActiveTimerUpdated struct{ TimerSnapshot }

type ActiveTimerStopped struct{ TimerSnapshot }

type SubCueTimerLoaded struct{ TimerSnapshot }

type SubCueTimerStarted struct{ TimerSnapshot }

type SubCueTimerStopped struct{ TimerSnapshot }

// OvertimeUpdate reports a per-item change along with the resulting ledger.
type OvertimeUpdate struct {
	ItemID          int64           `json:"itemId"`
	OvertimeMinutes int             `json:"overtimeMinutes"`
	Ledger          schedule.Ledger `json:"ledger"`
}

type ShowStartOvertimeUpdate struct {
	ItemID            int64           `json:"itemId"`
	ShowStartOvertime int             `json:"showStartOvertime"`
	ScheduledTime     string          `json:"scheduledTime,omitempty"`
	ActualTime        string          `json:"actualTime,omitempty"`
	Ledger            schedule.Ledger `json:"ledger"`
}

type StartCueSelectionUpdate struct {
	StartCueID *int64          `json:"startCueId"`
	Ledger     schedule.Ledger `json:"ledger"`
}

type OvertimeReset struct {
	Ledger schedule.Ledger `json:"ledger"`
}

// ResetAllStates tells clients to drop cached timer and ledger state.
type ResetAllStates struct{}

type ServerTime struct {
	ServerTime time.Time `json:"serverTime"`
}

type InitialSync struct {
	RequestID string   `json:"requestId,omitempty"`
	Snapshot  Snapshot `json:"snapshot"`
}

type ScheduleSync struct {
	RequestID string        `json:"requestId,omitempty"`
	State     ScheduleState `json:"state"`
}

type PresenceUpdated struct {
	Viewers []Viewer `json:"viewers"`
}

type CompletedCuesUpdated struct {
	ItemIDs []int64 `json:"itemIds"`
}

type IndentedCuesUpdated struct {
	IndentedCues schedule.IndentedCues `json:"indentedCues"`
}

type TimersStopped struct {
	ActiveTimer TimerSnapshot `json:"activeTimer"`
	SubCueTimer TimerSnapshot `json:"subCueTimer"`
}

type ForceDisconnect struct {
	Reason string `json:"reason"`
}

type Error struct {
	RequestID string `json:"requestId,omitempty"`
	Message   string `json:"message"`
}

func (ActiveTimerUpdated) Type() MessageType      { return TypeActiveTimerUpdated }
func (ActiveTimerStopped) Type() MessageType      { return TypeActiveTimerStopped }
func (SubCueTimerLoaded) Type() MessageType       { return TypeSubCueTimerLoaded }
func (SubCueTimerStarted) Type() MessageType      { return TypeSubCueTimerStarted }
func (SubCueTimerStopped) Type() MessageType      { return TypeSubCueTimerStopped }
func (OvertimeUpdate) Type() MessageType          { return TypeOvertimeUpdate }
func (ShowStartOvertimeUpdate) Type() MessageType { return TypeShowStartOvertimeUpdate }
func (StartCueSelectionUpdate) Type() MessageType { return TypeStartCueSelectionUpdate }
func (OvertimeReset) Type() MessageType           { return TypeOvertimeReset }
func (ResetAllStates) Type() MessageType          { return TypeResetAllStates }
func (ServerTime) Type() MessageType              { return TypeServerTime }
func (InitialSync) Type() MessageType             { return TypeInitialSync }
func (ScheduleSync) Type() MessageType            { return TypeScheduleSync }
func (PresenceUpdated) Type() MessageType         { return TypePresenceUpdated }
func (CompletedCuesUpdated) Type() MessageType    { return TypeCompletedCuesUpdated }
func (IndentedCuesUpdated) Type() MessageType     { return TypeIndentedCuesUpdated }
func (TimersStopped) Type() MessageType           { return TypeTimersStopped }
func (ForceDisconnect) Type() MessageType         { return TypeForceDisconnect }
func (Error) Type() MessageType                   { return TypeError }

func (ActiveTimerUpdated) isMessage()      {}
func (ActiveTimerStopped) isMessage()      {}
func (SubCueTimerLoaded) isMessage()       {}
func (SubCueTimerStarted) isMessage()      {}
func (SubCueTimerStopped) isMessage()      {}
func (OvertimeUpdate) isMessage()          {}
func (ShowStartOvertimeUpdate) isMessage() {}
func (StartCueSelectionUpdate) isMessage() {}
func (OvertimeReset) isMessage()           {}
func (ResetAllStates) isMessage()          {}
func (ServerTime) isMessage()              {}
func (InitialSync) isMessage()             {}
func (ScheduleSync) isMessage()            {}
func (PresenceUpdated) isMessage()         {}
func (CompletedCuesUpdated) isMessage()    {}
func (IndentedCuesUpdated) isMessage()     {}
func (TimersStopped) isMessage()           {}
func (ForceDisconnect) isMessage()         {}
func (Error) isMessage()                   {}
