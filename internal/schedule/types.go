// Package schedule turns an ordered run-of-show segment list into wall-clock start
// and end times. Everything in this package is pure: no I/O, no clocks, no locks.
package schedule

import "time"

// Item is one segment of the run of show as authored by the schedule editor.
type Item struct {
	ID              int64  `json:"id"`
	Day             int    `json:"day"`
	Label           string `json:"label,omitempty"`
	DurationHours   int    `json:"durationHours"`
	DurationMinutes int    `json:"durationMinutes"`
	DurationSeconds int    `json:"durationSeconds"`
	IsStartCue      bool   `json:"isStartCue,omitempty"`
}

// DayNumber returns the item's day, treating unset days as day 1.
func (i Item) DayNumber() int {
	if i.Day < 1 {
		return 1
	}
	return i.Day
}

// TotalSeconds returns the planned duration in seconds.
func (i Item) TotalSeconds() int {
	return i.DurationHours*3600 + i.DurationMinutes*60 + i.DurationSeconds
}

// Duration returns the planned duration.
func (i Item) Duration() time.Duration {
	return time.Duration(i.TotalSeconds()) * time.Second
}

// Indent records the parent of an indented (sub-cue) item.
type Indent struct {
	ParentID int64 `json:"parentId"`
}

// IndentedCues maps a child item ID to its parent. A nil map is a valid empty relation.
type IndentedCues map[int64]Indent

// IsIndented reports whether id is nested under a parent.
func (c IndentedCues) IsIndented(id int64) bool {
	_, ok := c[id]
	return ok
}

// Clone returns an independent copy.
func (c IndentedCues) Clone() IndentedCues {
	out := make(IndentedCues, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Ledger is the overtime ledger of one event.
type Ledger struct {
	OvertimeMinutes   map[int64]int `json:"overtimeMinutes"`
	ShowStartOvertime int           `json:"showStartOvertime"`
	StartCueID        *int64        `json:"startCueId"`

	// Informational values captured when show-start overtime was recorded.
	ScheduledTime string `json:"scheduledTime,omitempty"`
	ActualTime    string `json:"actualTime,omitempty"`
}

// NewLedger returns an empty ledger.
func NewLedger() Ledger {
	return Ledger{OvertimeMinutes: make(map[int64]int)}
}

// Clone returns an independent copy.
func (l Ledger) Clone() Ledger {
	out := l
	out.OvertimeMinutes = make(map[int64]int, len(l.OvertimeMinutes))
	for k, v := range l.OvertimeMinutes {
		out.OvertimeMinutes[k] = v
	}
	if l.StartCueID != nil {
		id := *l.StartCueID
		out.StartCueID = &id
	}
	return out
}

// IsZero reports whether the ledger carries no adjustment at all.
func (l Ledger) IsZero() bool {
	if l.ShowStartOvertime != 0 || l.StartCueID != nil {
		return false
	}
	for _, v := range l.OvertimeMinutes {
		if v != 0 {
			return false
		}
	}
	return true
}

// DayStartTimes maps a day number to its "HH:MM" start time.
type DayStartTimes map[int]string

// Schedule is the editor's output for one event.
type Schedule struct {
	Items           []Item        `json:"items"`
	DayStartTimes   DayStartTimes `json:"dayStartTimes"`
	MasterStartTime string        `json:"masterStartTime"`
}

// StartFor returns the configured start time of day, falling back to the master start time.
func (s Schedule) StartFor(day int) string {
	if t, ok := s.DayStartTimes[day]; ok && t != "" {
		return t
	}
	return s.MasterStartTime
}

// IndexOf returns the position of id in the list, or -1.
func (s Schedule) IndexOf(id int64) int {
	return indexOf(s.Items, id)
}

// Validate checks every configured clock string.
func (s Schedule) Validate() error {
	if s.MasterStartTime != "" {
		if _, err := ParseClock(s.MasterStartTime); err != nil {
			return err
		}
	}
	for _, t := range s.DayStartTimes {
		if t == "" {
			continue
		}
		if _, err := ParseClock(t); err != nil {
			return err
		}
	}
	return nil
}

func indexOf(items []Item, id int64) int {
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	return -1
}
