// Package client is the display-side runtime: a local projection of one event kept in sync
// over the WebSocket protocol.
package client

import (
	"sync"
	"time"

	"github.com/bbernstein/runofshow-go/internal/clock"
	"github.com/bbernstein/runofshow-go/internal/protocol"
	"github.com/bbernstein/runofshow-go/internal/schedule"
	"github.com/bbernstein/runofshow-go/internal/services/timer"
)

// State is the local copy of one event. Every message overwrites the sub-state it carries,
// so applying the same message twice leaves State unchanged.
type State struct {
	mu    sync.RWMutex
	clock *clock.OffsetClock

	active    protocol.TimerSnapshot
	subCue    protocol.TimerSnapshot
	sched     schedule.Schedule
	ledger    schedule.Ledger
	indented  schedule.IndentedCues
	completed []int64
	viewers   []protocol.Viewer
	version   uint64

	synced     bool
	disconnect string
}

// NewState returns an empty State reading time from clk.
func NewState(clk *clock.OffsetClock) *State {
	if clk == nil {
		clk = clock.NewOffsetClock(nil)
	}
	s := &State{clock: clk}
	s.clearLocked()
	return s
}

// Clock returns the offset-corrected clock.
func (s *State) Clock() *clock.OffsetClock {
	return s.clock
}

// Apply folds one broadcast or response into the local state.
func (s *State) Apply(msg protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch m := msg.(type) {
	case protocol.ServerTime:
		s.clock.Sync(m.ServerTime)
	case protocol.InitialSync:
		snap := m.Snapshot
		s.clock.Sync(snap.ServerTime)
		s.active = snap.ActiveTimer
		s.subCue = snap.SubCueTimer
		s.ledger = snap.Ledger.Clone()
		s.indented = snap.IndentedCues.Clone()
		s.completed = copyIDs(snap.CompletedCues)
		s.version = snap.Version
		s.synced = true
	case protocol.ScheduleSync:
		s.sched = m.State.Schedule
		s.ledger = m.State.Ledger.Clone()
		s.indented = m.State.IndentedCues.Clone()
		s.completed = copyIDs(m.State.CompletedCues)
	case protocol.ActiveTimerUpdated:
		s.active = m.TimerSnapshot
	case protocol.ActiveTimerStopped:
		s.active = m.TimerSnapshot
	case protocol.SubCueTimerLoaded:
		s.subCue = m.TimerSnapshot
	case protocol.SubCueTimerStarted:
		s.subCue = m.TimerSnapshot
	case protocol.SubCueTimerStopped:
		s.subCue = m.TimerSnapshot
	case protocol.TimersStopped:
		s.active = m.ActiveTimer
		s.subCue = m.SubCueTimer
	case protocol.OvertimeUpdate:
		s.ledger = m.Ledger.Clone()
	case protocol.ShowStartOvertimeUpdate:
		s.ledger = m.Ledger.Clone()
	case protocol.StartCueSelectionUpdate:
		s.ledger = m.Ledger.Clone()
	case protocol.OvertimeReset:
		s.ledger = m.Ledger.Clone()
	case protocol.ResetAllStates:
		// The schedule stays until the next resync replaces it.
		sched := s.sched
		indented := s.indented
		s.clearLocked()
		s.sched = sched
		s.indented = indented
	case protocol.CompletedCuesUpdated:
		s.completed = copyIDs(m.ItemIDs)
	case protocol.IndentedCuesUpdated:
		s.indented = m.IndentedCues.Clone()
	case protocol.PresenceUpdated:
		s.viewers = append([]protocol.Viewer(nil), m.Viewers...)
	case protocol.ForceDisconnect:
		s.disconnect = m.Reason
	case protocol.Error:
	}
}

func (s *State) clearLocked() {
	s.active = protocol.TimerSnapshot{State: protocol.StateNone}
	s.subCue = protocol.TimerSnapshot{State: protocol.StateNone}
	s.sched = schedule.Schedule{}
	s.ledger = schedule.NewLedger()
	s.indented = schedule.IndentedCues{}
	s.completed = nil
}

// Synced reports whether an initialSync has been applied.
func (s *State) Synced() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.synced
}

// ActiveTimer returns the main timer snapshot.
func (s *State) ActiveTimer() protocol.TimerSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// SubCueTimer returns the sub-cue timer snapshot.
func (s *State) SubCueTimer() protocol.TimerSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subCue
}

// Ledger returns a copy of the overtime ledger.
func (s *State) Ledger() schedule.Ledger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.Clone()
}

// CompletedCues returns the completed item IDs.
func (s *State) CompletedCues() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyIDs(s.completed)
}

// Viewers returns the last presence list.
func (s *State) Viewers() []protocol.Viewer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]protocol.Viewer(nil), s.viewers...)
}

// Schedule returns the last received schedule.
func (s *State) Schedule() schedule.Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sched
}

// Version is the server version of the last initialSync.
func (s *State) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// DisconnectReason is set once the server force-disconnected this client.
func (s *State) DisconnectReason() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disconnect
}

// ElapsedSeconds is the main timer's elapsed time on the corrected clock.
func (s *State) ElapsedSeconds() int {
	t := timer.FromSnapshot(s.ActiveTimer())
	return t.ElapsedSeconds(s.clock.Now())
}

// RemainingSeconds is duration minus elapsed; it goes negative once the cue runs over.
func (s *State) RemainingSeconds() int {
	t := timer.FromSnapshot(s.ActiveTimer())
	return t.RemainingSeconds(s.clock.Now())
}

// SubCueRemainingSeconds is RemainingSeconds for the sub-cue timer.
func (s *State) SubCueRemainingSeconds() int {
	t := timer.FromSnapshot(s.SubCueTimer())
	return t.RemainingSeconds(s.clock.Now())
}

// Projection builds display times from the local schedule and ledger.
func (s *State) Projection() *schedule.Projection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return schedule.NewProjection(s.sched, s.ledger, s.indented)
}

// DisplayTime returns the overtime-adjusted start time of itemID.
func (s *State) DisplayTime(itemID int64) string {
	return s.Projection().DisplayTime(itemID)
}

// Now returns the corrected clock reading.
func (s *State) Now() time.Time {
	return s.clock.Now()
}

func copyIDs(ids []int64) []int64 {
	if ids == nil {
		return nil
	}
	return append([]int64(nil), ids...)
}
