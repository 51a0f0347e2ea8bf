// Package timer owns the authoritative cue timers of every event.
package timer

import (
	"errors"
	"fmt"
	"time"

	"github.com/bbernstein/runofshow-go/internal/protocol"
)

// State is the lifecycle state of a Timer.
type State = protocol.TimerState

var (
	// ErrInvalidTransition is returned when an operation is not allowed from the current state.
	ErrInvalidTransition = errors.New("invalid timer transition")
	// ErrInvalidArgument is returned for out-of-range inputs such as negative durations.
	ErrInvalidArgument = errors.New("invalid argument")
)

// TransitionError describes a rejected transition.
type TransitionError struct {
	Op   string
	From State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s from %s", ErrInvalidTransition, e.Op, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// Timer is one countdown. Elapsed time is always derived from StartedAt.
type Timer struct {
	ItemID          *int64
	State           State
	DurationSeconds int
	StartedAt       *time.Time
	StoppedAt       *time.Time
	LastLoadedCueID *int64
	CueLabel        string
	UpdatedAt       time.Time
}

// Current returns the state, treating the zero value as none.
func (t *Timer) Current() State {
	if t.State == "" {
		return protocol.StateNone
	}
	return t.State
}

// Load arms the timer for itemID. Allowed from none, loaded and stopped.
func (t *Timer) Load(itemID int64, durationSeconds int, label string, now time.Time) error {
	switch t.Current() {
	case protocol.StateNone, protocol.StateLoaded, protocol.StateStopped:
	default:
		return &TransitionError{Op: "load", From: t.Current()}
	}
	if durationSeconds < 0 {
		return fmt.Errorf("%w: duration %d", ErrInvalidArgument, durationSeconds)
	}

	t.ItemID = int64Ptr(itemID)
	t.LastLoadedCueID = int64Ptr(itemID)
	t.State = protocol.StateLoaded
	t.DurationSeconds = durationSeconds
	t.StartedAt = nil
	t.StoppedAt = nil
	t.CueLabel = label
	t.UpdatedAt = now
	return nil
}

// Start runs a loaded timer from now. It reports false, with no error, when the timer
// is already running.
func (t *Timer) Start(now time.Time) (bool, error) {
	switch t.Current() {
	case protocol.StateRunning:
		return false, nil
	case protocol.StateLoaded:
	default:
		return false, &TransitionError{Op: "start", From: t.Current()}
	}

	started := now
	t.State = protocol.StateRunning
	t.StartedAt = &started
	t.StoppedAt = nil
	t.UpdatedAt = now
	return true, nil
}

// Stop halts a running or loaded timer. The item stays as the last loaded cue.
func (t *Timer) Stop(now time.Time) error {
	switch t.Current() {
	case protocol.StateRunning:
		stopped := now
		t.StoppedAt = &stopped
	case protocol.StateLoaded:
	default:
		return &TransitionError{Op: "stop", From: t.Current()}
	}
	t.State = protocol.StateStopped
	t.UpdatedAt = now
	return nil
}

// AdjustDuration replaces the planned duration of a loaded or running timer.
func (t *Timer) AdjustDuration(durationSeconds int, now time.Time) error {
	switch t.Current() {
	case protocol.StateLoaded, protocol.StateRunning:
	default:
		return &TransitionError{Op: "adjust duration", From: t.Current()}
	}
	if durationSeconds < 0 {
		return fmt.Errorf("%w: duration %d", ErrInvalidArgument, durationSeconds)
	}
	t.DurationSeconds = durationSeconds
	t.UpdatedAt = now
	return nil
}

// Clear destroys the timer.
func (t *Timer) Clear(now time.Time) {
	*t = Timer{State: protocol.StateNone, UpdatedAt: now}
}

// Elapsed is now - StartedAt while running, frozen at StoppedAt once stopped, and never negative.
func (t *Timer) Elapsed(now time.Time) time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	end := now
	switch t.Current() {
	case protocol.StateRunning:
	case protocol.StateStopped:
		if t.StoppedAt == nil {
			return 0
		}
		end = *t.StoppedAt
	default:
		return 0
	}
	d := end.Sub(*t.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}

// ElapsedSeconds returns whole elapsed seconds.
func (t *Timer) ElapsedSeconds(now time.Time) int {
	return int(t.Elapsed(now) / time.Second)
}

// RemainingSeconds returns duration minus elapsed; negative once the cue runs over.
func (t *Timer) RemainingSeconds(now time.Time) int {
	return t.DurationSeconds - t.ElapsedSeconds(now)
}

// OvertimeMinutes returns floor((elapsed - duration) / 60).
func (t *Timer) OvertimeMinutes(now time.Time) int {
	return floorDiv(t.ElapsedSeconds(now)-t.DurationSeconds, 60)
}

// Snapshot renders the timer for the wire.
func (t *Timer) Snapshot(now time.Time) protocol.TimerSnapshot {
	return protocol.TimerSnapshot{
		ItemID:          copyInt64(t.ItemID),
		State:           t.Current(),
		DurationSeconds: t.DurationSeconds,
		StartedAt:       copyTime(t.StartedAt),
		StoppedAt:       copyTime(t.StoppedAt),
		ElapsedSeconds:  t.ElapsedSeconds(now),
		LastLoadedCueID: copyInt64(t.LastLoadedCueID),
		CueLabel:        t.CueLabel,
		UpdatedAt:       t.UpdatedAt,
	}
}

// FromSnapshot rebuilds a Timer from its wire form.
func FromSnapshot(s protocol.TimerSnapshot) Timer {
	return Timer{
		ItemID:          copyInt64(s.ItemID),
		State:           s.State,
		DurationSeconds: s.DurationSeconds,
		StartedAt:       copyTime(s.StartedAt),
		StoppedAt:       copyTime(s.StoppedAt),
		LastLoadedCueID: copyInt64(s.LastLoadedCueID),
		CueLabel:        s.CueLabel,
		UpdatedAt:       s.UpdatedAt,
	}
}

func (t Timer) clone() Timer {
	t.ItemID = copyInt64(t.ItemID)
	t.LastLoadedCueID = copyInt64(t.LastLoadedCueID)
	t.StartedAt = copyTime(t.StartedAt)
	t.StoppedAt = copyTime(t.StoppedAt)
	return t
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func int64Ptr(v int64) *int64 { return &v }

func copyInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
