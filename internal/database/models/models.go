// Package models contains the database model definitions.
// These models map directly to the SQLite database tables.
package models

import (
	"time"
)

// Timer kinds stored in event_timers.kind.
const (
	TimerKindMain   = "main"
	TimerKindSubCue = "subcue"
)

// Event holds the per-event scalars: the version counter and the show-start part of the ledger.
// Table: events
type Event struct {
	ID                string    `gorm:"column:id;primaryKey"`
	Version           uint64    `gorm:"column:version;default:0"`
	StartCueID        *int64    `gorm:"column:start_cue_id"`
	ShowStartOvertime int       `gorm:"column:show_start_overtime;default:0"`
	ScheduledTime     string    `gorm:"column:scheduled_time"`
	ActualTime        string    `gorm:"column:actual_time"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Event) TableName() string { return "events" }

// RunOfShowData is the schedule ingested from the editor. Items and day starts are JSON text.
// Table: run_of_show_data
type RunOfShowData struct {
	EventID         string    `gorm:"column:event_id;primaryKey"`
	ScheduleItems   string    `gorm:"column:schedule_items;type:text"`
	DayStartTimes   string    `gorm:"column:day_start_times;type:text"`
	MasterStartTime string    `gorm:"column:master_start_time"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (RunOfShowData) TableName() string { return "run_of_show_data" }

// EventTimer is one of the two timers of an event, keyed by (event_id, kind).
// Table: event_timers
type EventTimer struct {
	EventID         string     `gorm:"column:event_id;primaryKey"`
	Kind            string     `gorm:"column:kind;primaryKey"`
	ItemID          *int64     `gorm:"column:item_id"`
	TimerState      string     `gorm:"column:timer_state;default:none"`
	DurationSeconds int        `gorm:"column:duration_seconds"`
	StartedAt       *time.Time `gorm:"column:started_at"`
	StoppedAt       *time.Time `gorm:"column:stopped_at"`
	LastLoadedCueID *int64     `gorm:"column:last_loaded_cue_id"`
	CueLabel        string     `gorm:"column:cue_label"`
	UpdatedAt       time.Time  `gorm:"column:updated_at"`
}

func (EventTimer) TableName() string { return "event_timers" }

// OvertimeMinute is one entry of the per-item overtime ledger.
// Table: overtime_minutes
type OvertimeMinute struct {
	ID        string    `gorm:"column:id;primaryKey"`
	EventID   string    `gorm:"column:event_id;uniqueIndex:idx_overtime_event_item"`
	ItemID    int64     `gorm:"column:item_id;uniqueIndex:idx_overtime_event_item"`
	Minutes   int       `gorm:"column:overtime_minutes"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (OvertimeMinute) TableName() string { return "overtime_minutes" }

// IndentedCue nests an item under a parent.
// Table: indented_cues
type IndentedCue struct {
	ID       string `gorm:"column:id;primaryKey"`
	EventID  string `gorm:"column:event_id;uniqueIndex:idx_indented_event_item"`
	ItemID   int64  `gorm:"column:item_id;uniqueIndex:idx_indented_event_item"`
	ParentID int64  `gorm:"column:parent_id"`
}

func (IndentedCue) TableName() string { return "indented_cues" }

// CompletedCue marks an item as done.
// Table: completed_cues
type CompletedCue struct {
	ID          string    `gorm:"column:id;primaryKey"`
	EventID     string    `gorm:"column:event_id;uniqueIndex:idx_completed_event_item"`
	ItemID      int64     `gorm:"column:item_id;uniqueIndex:idx_completed_event_item"`
	CompletedAt time.Time `gorm:"column:completed_at"`
}

func (CompletedCue) TableName() string { return "completed_cues" }

// All lists every model for migrations.
func All() []interface{} {
	return []interface{}{
		&Event{},
		&RunOfShowData{},
		&EventTimer{},
		&OvertimeMinute{},
		&IndentedCue{},
		&CompletedCue{},
	}
}
