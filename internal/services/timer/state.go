package timer

import (
	"fmt"
	"sort"
	"time"

	"github.com/bbernstein/runofshow-go/internal/protocol"
	"github.com/bbernstein/runofshow-go/internal/schedule"
)

// EventState is the mutable per-event context. Every transition takes it by reference,
// mutates it and returns the messages to broadcast. A returned error means nothing
// changed that matters: callers discard the state and publish nothing.
type EventState struct {
	EventID   string
	Active    Timer
	SubCue    Timer
	Ledger    schedule.Ledger
	Indented  schedule.IndentedCues
	Completed map[int64]time.Time
	Version   uint64
}

// NewEventState returns an empty context for eventID.
func NewEventState(eventID string) *EventState {
	return &EventState{
		EventID:   eventID,
		Active:    Timer{State: protocol.StateNone},
		SubCue:    Timer{State: protocol.StateNone},
		Ledger:    schedule.NewLedger(),
		Indented:  schedule.IndentedCues{},
		Completed: make(map[int64]time.Time),
	}
}

// Clone returns a deep copy.
func (s *EventState) Clone() *EventState {
	out := &EventState{
		EventID:   s.EventID,
		Active:    s.Active.clone(),
		SubCue:    s.SubCue.clone(),
		Ledger:    s.Ledger.Clone(),
		Indented:  s.Indented.Clone(),
		Completed: make(map[int64]time.Time, len(s.Completed)),
		Version:   s.Version,
	}
	for k, v := range s.Completed {
		out.Completed[k] = v
	}
	return out
}

// CompletedIDs returns completed item IDs in ascending order.
func (s *EventState) CompletedIDs() []int64 {
	ids := make([]int64, 0, len(s.Completed))
	for id := range s.Completed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Snapshot renders the initialSync answer.
func (s *EventState) Snapshot(now time.Time) protocol.Snapshot {
	return protocol.Snapshot{
		ServerTime:    now,
		ActiveTimer:   s.Active.Snapshot(now),
		SubCueTimer:   s.SubCue.Snapshot(now),
		Ledger:        s.Ledger.Clone(),
		IndentedCues:  s.Indented.Clone(),
		CompletedCues: s.CompletedIDs(),
		Version:       s.Version,
	}
}

// LoadCue arms the main timer.
func (s *EventState) LoadCue(itemID int64, durationSeconds int, label string, now time.Time) ([]protocol.Message, error) {
	if err := s.Active.Load(itemID, durationSeconds, label, now); err != nil {
		return nil, err
	}
	return []protocol.Message{protocol.ActiveTimerUpdated{TimerSnapshot: s.Active.Snapshot(now)}}, nil
}

// StartCue runs the loaded main timer. Starting a running timer yields no messages.
func (s *EventState) StartCue(now time.Time) ([]protocol.Message, error) {
	changed, err := s.Active.Start(now)
	if err != nil || !changed {
		return nil, err
	}
	return []protocol.Message{protocol.ActiveTimerUpdated{TimerSnapshot: s.Active.Snapshot(now)}}, nil
}

// StopCue stops the main timer. A cue that ran at least a minute long or short has its
// overtime recorded in the ledger.
func (s *EventState) StopCue(now time.Time) ([]protocol.Message, error) {
	wasRunning := s.Active.Current() == protocol.StateRunning
	if err := s.Active.Stop(now); err != nil {
		return nil, err
	}
	msgs := []protocol.Message{protocol.ActiveTimerStopped{TimerSnapshot: s.Active.Snapshot(now)}}

	if wasRunning && s.Active.ItemID != nil {
		if ot := s.Active.OvertimeMinutes(now); ot >= 1 || ot <= -1 {
			itemID := *s.Active.ItemID
			s.Ledger.OvertimeMinutes[itemID] = ot
			msgs = append(msgs, protocol.OvertimeUpdate{
				ItemID:          itemID,
				OvertimeMinutes: ot,
				Ledger:          s.Ledger.Clone(),
			})
		}
	}
	return msgs, nil
}

// ClearCue destroys the main timer.
func (s *EventState) ClearCue(now time.Time) ([]protocol.Message, error) {
	s.Active.Clear(now)
	return []protocol.Message{protocol.ActiveTimerUpdated{TimerSnapshot: s.Active.Snapshot(now)}}, nil
}

// AdjustDuration changes the planned duration of the loaded or running main timer.
func (s *EventState) AdjustDuration(durationSeconds int, now time.Time) ([]protocol.Message, error) {
	if err := s.Active.AdjustDuration(durationSeconds, now); err != nil {
		return nil, err
	}
	return []protocol.Message{protocol.ActiveTimerUpdated{TimerSnapshot: s.Active.Snapshot(now)}}, nil
}

// LoadSubCue arms the sub-cue timer.
func (s *EventState) LoadSubCue(itemID int64, durationSeconds int, label string, now time.Time) ([]protocol.Message, error) {
	if err := s.SubCue.Load(itemID, durationSeconds, label, now); err != nil {
		return nil, err
	}
	return []protocol.Message{protocol.SubCueTimerLoaded{TimerSnapshot: s.SubCue.Snapshot(now)}}, nil
}

// StartSubCue runs the loaded sub-cue timer.
func (s *EventState) StartSubCue(now time.Time) ([]protocol.Message, error) {
	changed, err := s.SubCue.Start(now)
	if err != nil || !changed {
		return nil, err
	}
	return []protocol.Message{protocol.SubCueTimerStarted{TimerSnapshot: s.SubCue.Snapshot(now)}}, nil
}

// RunSubCue loads and starts the sub-cue timer in one step.
func (s *EventState) RunSubCue(itemID int64, durationSeconds int, label string, now time.Time) ([]protocol.Message, error) {
	if err := s.SubCue.Load(itemID, durationSeconds, label, now); err != nil {
		return nil, err
	}
	if _, err := s.SubCue.Start(now); err != nil {
		return nil, err
	}
	return []protocol.Message{protocol.SubCueTimerStarted{TimerSnapshot: s.SubCue.Snapshot(now)}}, nil
}

// StopSubCue stops the sub-cue timer.
func (s *EventState) StopSubCue(now time.Time) ([]protocol.Message, error) {
	if err := s.SubCue.Stop(now); err != nil {
		return nil, err
	}
	return []protocol.Message{protocol.SubCueTimerStopped{TimerSnapshot: s.SubCue.Snapshot(now)}}, nil
}

// StopTimers stops whichever timers are loaded or running. Ledgers are kept.
func (s *EventState) StopTimers(now time.Time) ([]protocol.Message, error) {
	stopped := false
	for _, t := range []*Timer{&s.Active, &s.SubCue} {
		switch t.Current() {
		case protocol.StateLoaded, protocol.StateRunning:
			if err := t.Stop(now); err != nil {
				return nil, err
			}
			stopped = true
		}
	}
	if !stopped {
		return nil, nil
	}
	return []protocol.Message{protocol.TimersStopped{
		ActiveTimer: s.Active.Snapshot(now),
		SubCueTimer: s.SubCue.Snapshot(now),
	}}, nil
}

// ResetAll clears both timers, the ledger and completed cues. The indentation relation
// is schedule structure and survives.
func (s *EventState) ResetAll(now time.Time) ([]protocol.Message, error) {
	s.Active.Clear(now)
	s.SubCue.Clear(now)
	s.Ledger = schedule.NewLedger()
	s.Completed = make(map[int64]time.Time)
	return []protocol.Message{
		protocol.ResetAllStates{},
		protocol.CompletedCuesUpdated{ItemIDs: []int64{}},
	}, nil
}

// SetOvertime records the drift of one item.
func (s *EventState) SetOvertime(itemID int64, minutes int) ([]protocol.Message, error) {
	if minutes == 0 {
		delete(s.Ledger.OvertimeMinutes, itemID)
	} else {
		s.Ledger.OvertimeMinutes[itemID] = minutes
	}
	return []protocol.Message{protocol.OvertimeUpdate{
		ItemID:          itemID,
		OvertimeMinutes: minutes,
		Ledger:          s.Ledger.Clone(),
	}}, nil
}

// SetShowStartOvertime records how late the show started and makes itemID the START cue.
func (s *EventState) SetShowStartOvertime(itemID int64, minutes int, scheduledTime, actualTime string) ([]protocol.Message, error) {
	s.Ledger.StartCueID = int64Ptr(itemID)
	s.Ledger.ShowStartOvertime = minutes
	s.Ledger.ScheduledTime = scheduledTime
	s.Ledger.ActualTime = actualTime
	return []protocol.Message{protocol.ShowStartOvertimeUpdate{
		ItemID:            itemID,
		ShowStartOvertime: minutes,
		ScheduledTime:     scheduledTime,
		ActualTime:        actualTime,
		Ledger:            s.Ledger.Clone(),
	}}, nil
}

// SetStartCue selects the START cue; nil clears it.
func (s *EventState) SetStartCue(itemID *int64) ([]protocol.Message, error) {
	s.Ledger.StartCueID = copyInt64(itemID)
	return []protocol.Message{protocol.StartCueSelectionUpdate{
		StartCueID: copyInt64(itemID),
		Ledger:     s.Ledger.Clone(),
	}}, nil
}

// ResetOvertime clears per-item and show-start overtime, keeping the START cue.
func (s *EventState) ResetOvertime() ([]protocol.Message, error) {
	startCue := s.Ledger.StartCueID
	s.Ledger = schedule.NewLedger()
	s.Ledger.StartCueID = startCue
	return []protocol.Message{protocol.OvertimeReset{Ledger: s.Ledger.Clone()}}, nil
}

// SetIndent nests itemID under parentID.
func (s *EventState) SetIndent(itemID, parentID int64) ([]protocol.Message, error) {
	if itemID == parentID {
		return nil, fmt.Errorf("%w: item %d cannot be its own parent", ErrInvalidArgument, itemID)
	}
	if s.Indented.IsIndented(parentID) {
		return nil, fmt.Errorf("%w: parent %d is itself indented", ErrInvalidArgument, parentID)
	}
	for child, indent := range s.Indented {
		if indent.ParentID == itemID {
			return nil, fmt.Errorf("%w: item %d is the parent of %d", ErrInvalidArgument, itemID, child)
		}
	}
	s.Indented[itemID] = schedule.Indent{ParentID: parentID}
	return s.indentsUpdated(), nil
}

// RemoveIndent un-nests itemID.
func (s *EventState) RemoveIndent(itemID int64) ([]protocol.Message, error) {
	if !s.Indented.IsIndented(itemID) {
		return nil, nil
	}
	delete(s.Indented, itemID)
	return s.indentsUpdated(), nil
}

// ClearIndents removes every indentation.
func (s *EventState) ClearIndents() ([]protocol.Message, error) {
	s.Indented = schedule.IndentedCues{}
	return s.indentsUpdated(), nil
}

// MarkCompleted flags itemID as done.
func (s *EventState) MarkCompleted(itemID int64, now time.Time) ([]protocol.Message, error) {
	s.Completed[itemID] = now
	return s.completedUpdated(), nil
}

// UnmarkCompleted clears the done flag of itemID.
func (s *EventState) UnmarkCompleted(itemID int64) ([]protocol.Message, error) {
	if _, ok := s.Completed[itemID]; !ok {
		return nil, nil
	}
	delete(s.Completed, itemID)
	return s.completedUpdated(), nil
}

// ClearCompleted clears every done flag.
func (s *EventState) ClearCompleted() ([]protocol.Message, error) {
	s.Completed = make(map[int64]time.Time)
	return s.completedUpdated(), nil
}

func (s *EventState) indentsUpdated() []protocol.Message {
	return []protocol.Message{protocol.IndentedCuesUpdated{IndentedCues: s.Indented.Clone()}}
}

func (s *EventState) completedUpdated() []protocol.Message {
	return []protocol.Message{protocol.CompletedCuesUpdated{ItemIDs: s.CompletedIDs()}}
}
