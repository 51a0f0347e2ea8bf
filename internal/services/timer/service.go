package timer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bbernstein/runofshow-go/internal/clock"
	"github.com/bbernstein/runofshow-go/internal/protocol"
	"github.com/bbernstein/runofshow-go/internal/schedule"
)

// Publisher delivers a message to everyone watching an event.
type Publisher interface {
	Publish(eventID string, msg protocol.Message)
}

// Observer is notified of every transition attempt. err is nil for applied transitions.
type Observer interface {
	ObserveTransition(op string, err error)
}

// Config holds service defaults.
type Config struct {
	// DefaultDurationSeconds is used when a load names no duration and the schedule has none.
	DefaultDurationSeconds int
}

// RunningTimer identifies a running timer for the admin view.
type RunningTimer struct {
	EventID string                 `json:"eventId"`
	Kind    string                 `json:"kind"`
	Timer   protocol.TimerSnapshot `json:"timer"`
}

// Service serializes transitions per event, persists them and broadcasts the result.
// Events are independent: a slow store write for one event does not block another.
type Service struct {
	mu     sync.Mutex
	events map[string]*event

	store     Store
	publisher Publisher
	clock     clock.Clock
	cfg       Config

	observer Observer
}

type event struct {
	mu    sync.Mutex
	ready bool
	state *EventState
	sched *schedule.Schedule
}

type mutation struct {
	state         *EventState
	schedule      *schedule.Schedule
	scheduleDirty bool
}

// NewService creates a Service.
func NewService(store Store, publisher Publisher, clk clock.Clock, cfg Config) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	if cfg.DefaultDurationSeconds <= 0 {
		cfg.DefaultDurationSeconds = 300
	}
	return &Service{
		events:    make(map[string]*event),
		store:     store,
		publisher: publisher,
		clock:     clk,
		cfg:       cfg,
	}
}

// SetObserver registers a transition observer.
func (s *Service) SetObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = o
}

// Restore loads every persisted event into memory.
func (s *Service) Restore(ctx context.Context) (int, error) {
	ids, err := s.store.EventIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list events: %w", err)
	}
	for _, id := range ids {
		e := s.entry(id)
		e.mu.Lock()
		err := s.ensureLoaded(ctx, id, e)
		e.mu.Unlock()
		if err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// Load arms the main timer for itemID. A non-positive duration falls back to the
// schedule item's planned duration, then to the configured default.
func (s *Service) Load(ctx context.Context, eventID string, itemID int64, durationSeconds int, label string) (protocol.Snapshot, error) {
	return s.apply(ctx, eventID, "load", func(m *mutation, now time.Time) ([]protocol.Message, error) {
		d, l := s.resolveCue(m.schedule, itemID, durationSeconds, label)
		return m.state.LoadCue(itemID, d, l, now)
	})
}

// Start runs the loaded main timer.
func (s *Service) Start(ctx context.Context, eventID string) (protocol.Snapshot, error) {
	return s.apply(ctx, eventID, "start", func(m *mutation, now time.Time) ([]protocol.Message, error) {
		return m.state.StartCue(now)
	})
}

// Stop stops the main timer.
func (s *Service) Stop(ctx context.Context, eventID string) (protocol.Snapshot, error) {
	return s.apply(ctx, eventID, "stop", func(m *mutation, now time.Time) ([]protocol.Message, error) {
		return m.state.StopCue(now)
	})
}

// Clear destroys the main timer.
func (s *Service) Clear(ctx context.Context, eventID string) (protocol.Snapshot, error) {
	return s.apply(ctx, eventID, "clear", func(m *mutation, now time.Time) ([]protocol.Message, error) {
		return m.state.ClearCue(now)
	})
}

// AdjustDuration changes the main timer's duration and the schedule item it runs.
func (s *Service) AdjustDuration(ctx context.Context, eventID string, durationSeconds int) (protocol.Snapshot, error) {
	return s.apply(ctx, eventID, "adjust_duration", func(m *mutation, now time.Time) ([]protocol.Message, error) {
		msgs, err := m.state.AdjustDuration(durationSeconds, now)
		if err != nil {
			return nil, err
		}
		if m.schedule == nil || m.state.Active.ItemID == nil {
			return msgs, nil
		}
		idx := m.schedule.IndexOf(*m.state.Active.ItemID)
		if idx < 0 {
			return msgs, nil
		}
		it := &m.schedule.Items[idx]
		it.DurationHours = durationSeconds / 3600
		it.DurationMinutes = durationSeconds % 3600 / 60
		it.DurationSeconds = durationSeconds % 60
		m.scheduleDirty = true
		return append(msgs, protocol.ScheduleSync{State: scheduleState(m.state, m.schedule)}), nil
	})
}

// LoadSubCue arms the sub-cue timer.
func (s *Service) LoadSubCue(ctx context.Context, eventID string, itemID int64, durationSeconds int, label string) (protocol.Snapshot, error) {
	return s.apply(ctx, eventID, "subcue_load", func(m *mutation, now time.Time) ([]protocol.Message, error) {
		d, l := s.resolveCue(m.schedule, itemID, durationSeconds, label)
		return m.state.LoadSubCue(itemID, d, l, now)
	})
}

// StartSubCue runs the loaded sub-cue timer.
func (s *Service) StartSubCue(ctx context.Context, eventID string) (protocol.Snapshot, error) {
	return s.apply(ctx, eventID, "subcue_start", func(m *mutation, now time.Time) ([]protocol.Message, error) {
		return m.state.StartSubCue(now)
	})
}

// RunSubCue loads and starts the sub-cue timer.
func (s *Service) RunSubCue(ctx context.Context, eventID string, itemID int64, durationSeconds int, label string) (protocol.Snapshot, error) {
	return s.apply(ctx, eventID, "subcue_run", func(m *mutation, now time.Time) ([]protocol.Message, error) {
		d, l := s.resolveCue(m.schedule, itemID, durationSeconds, label)
		return m.state.RunSubCue(itemID, d, l, now)
	})
}

// StopSubCue stops the sub-cue timer.
func (s *Service) StopSubCue(ctx context.Context, eventID string) (protocol.Snapshot, error) {
	return s.apply(ctx, eventID, "subcue_stop", func(m *mutation, now time.Time) ([]protocol.Message, error) {
		return m.state.StopSubCue(now)
	})
}

// StopTimers stops both timers without touching the ledger.
func (s *Service) StopTimers(ctx context.Context, eventID string) (protocol.Snapshot, error) {
	return s.apply(ctx, eventID, "stop_timers", func(m *mutation, now time.Time) ([]protocol.Message, error) {
		return m.state.StopTimers(now)
	})
}

// ResetAllStates clears timers, ledger and completed cues.
func (s *Service) ResetAllStates(ctx context.Context, eventID string) (protocol.Snapshot, error) {
	return s.apply(ctx, eventID, "reset_all", func(m *mutation, now time.Time) ([]protocol.Message, error) {
		return m.state.ResetAll(now)
	})
}

// StopAll is the rehearsal-restart action; it is the same operation as ResetAllStates.
func (s *Service) StopAll(ctx context.Context, eventID string) (protocol.Snapshot, error) {
	return s.ResetAllStates(ctx, eventID)
}

// SetOvertime records per-item overtime.
func (s *Service) SetOvertime(ctx context.Context, eventID string, itemID int64, minutes int) (protocol.Snapshot, error) {
	return s.apply(ctx, eventID, "set_overtime", func(m *mutation, _ time.Time) ([]protocol.Message, error) {
		return m.state.SetOvertime(itemID, minutes)
	})
}

// SetShowStartOvertime records show-start overtime against itemID.
func (s *Service) SetShowStartOvertime(ctx context.Context, eventID string, itemID int64, minutes int, scheduledTime, actualTime string) (protocol.Snapshot, error) {
	return s.apply(ctx, eventID, "set_show_start_overtime", func(m *mutation, _ time.Time) ([]protocol.Message, error) {
		return m.state.SetShowStartOvertime(itemID, minutes, scheduledTime, actualTime)
	})
}

// SetStartCue selects the START cue; nil clears it.
func (s *Service) SetStartCue(ctx context.Context, eventID string, itemID *int64) (protocol.Snapshot, error) {
	return s.apply(ctx, eventID, "set_start_cue", func(m *mutation, _ time.Time) ([]protocol.Message, error) {
		return m.state.SetStartCue(itemID)
	})
}

// ResetOvertime clears recorded overtime.
func (s *Service) ResetOvertime(ctx context.Context, eventID string) (protocol.Snapshot, error) {
	return s.apply(ctx, eventID, "reset_overtime", func(m *mutation, _ time.Time) ([]protocol.Message, error) {
		return m.state.ResetOvertime()
	})
}

// SetIndent nests itemID under parentID.
func (s *Service) SetIndent(ctx context.Context, eventID string, itemID, parentID int64) (protocol.Snapshot, error) {
	return s.apply(ctx, eventID, "set_indent", func(m *mutation, _ time.Time) ([]protocol.Message, error) {
		return m.state.SetIndent(itemID, parentID)
	})
}

// RemoveIndent un-nests itemID.
func (s *Service) RemoveIndent(ctx context.Context, eventID string, itemID int64) (protocol.Snapshot, error) {
	return s.apply(ctx, eventID, "remove_indent", func(m *mutation, _ time.Time) ([]protocol.Message, error) {
		return m.state.RemoveIndent(itemID)
	})
}

// ClearIndents removes every indentation.
func (s *Service) ClearIndents(ctx context.Context, eventID string) (protocol.Snapshot, error) {
	return s.apply(ctx, eventID, "clear_indents", func(m *mutation, _ time.Time) ([]protocol.Message, error) {
		return m.state.ClearIndents()
	})
}

// MarkCompleted flags itemID as done.
func (s *Service) MarkCompleted(ctx context.Context, eventID string, itemID int64) (protocol.Snapshot, error) {
	return s.apply(ctx, eventID, "mark_completed", func(m *mutation, now time.Time) ([]protocol.Message, error) {
		return m.state.MarkCompleted(itemID, now)
	})
}

// UnmarkCompleted clears the done flag of itemID.
func (s *Service) UnmarkCompleted(ctx context.Context, eventID string, itemID int64) (protocol.Snapshot, error) {
	return s.apply(ctx, eventID, "unmark_completed", func(m *mutation, _ time.Time) ([]protocol.Message, error) {
		return m.state.UnmarkCompleted(itemID)
	})
}

// ClearCompleted clears every done flag.
func (s *Service) ClearCompleted(ctx context.Context, eventID string) (protocol.Snapshot, error) {
	return s.apply(ctx, eventID, "clear_completed", func(m *mutation, _ time.Time) ([]protocol.Message, error) {
		return m.state.ClearCompleted()
	})
}

// PutSchedule replaces the event's schedule and notifies viewers to recompute.
func (s *Service) PutSchedule(ctx context.Context, eventID string, sched schedule.Schedule) (protocol.ScheduleState, error) {
	if err := sched.Validate(); err != nil {
		s.observe("put_schedule", err)
		return protocol.ScheduleState{}, err
	}

	e := s.entry(eventID)
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := s.ensureLoaded(ctx, eventID, e); err != nil {
		return protocol.ScheduleState{}, err
	}

	next := cloneSchedule(sched)
	if err := s.store.SaveSchedule(ctx, eventID, *next); err != nil {
		return protocol.ScheduleState{}, fmt.Errorf("failed to save schedule: %w", err)
	}
	e.sched = next

	st := scheduleState(e.state, e.sched)
	s.publish(eventID, protocol.ScheduleSync{State: st})
	s.observe("put_schedule", nil)
	log.Info().Str("event_id", eventID).Int("items", len(sched.Items)).Msg("Schedule updated")
	return st, nil
}

// Snapshot returns the initialSync answer for an event.
func (s *Service) Snapshot(ctx context.Context, eventID string) (protocol.Snapshot, error) {
	var snap protocol.Snapshot
	err := s.view(ctx, eventID, func(st *EventState, _ *schedule.Schedule) {
		snap = st.Snapshot(s.clock.Now())
	})
	return snap, err
}

// ScheduleState returns the non-timer state pulled by passive displays.
func (s *Service) ScheduleState(ctx context.Context, eventID string) (protocol.ScheduleState, error) {
	var out protocol.ScheduleState
	err := s.view(ctx, eventID, func(st *EventState, sched *schedule.Schedule) {
		out = scheduleState(st, sched)
	})
	return out, err
}

// Projection builds display-time answers from the current inputs.
func (s *Service) Projection(ctx context.Context, eventID string) (*schedule.Projection, error) {
	st, err := s.ScheduleState(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return schedule.NewProjection(st.Schedule, st.Ledger, st.IndentedCues), nil
}

// Now returns the authoritative server time.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// EventIDs lists every persisted event. Every applied transition is persisted, so this
// covers all events that have ever been operated on.
func (s *Service) EventIDs(ctx context.Context) ([]string, error) {
	return s.store.EventIDs(ctx)
}

// RunningTimers lists every running timer held in memory.
func (s *Service) RunningTimers() []RunningTimer {
	s.mu.Lock()
	entries := make(map[string]*event, len(s.events))
	for id, e := range s.events {
		entries[id] = e
	}
	s.mu.Unlock()

	now := s.clock.Now()
	var out []RunningTimer
	for id, e := range entries {
		e.mu.Lock()
		if e.ready {
			if e.state.Active.Current() == protocol.StateRunning {
				out = append(out, RunningTimer{EventID: id, Kind: "main", Timer: e.state.Active.Snapshot(now)})
			}
			if e.state.SubCue.Current() == protocol.StateRunning {
				out = append(out, RunningTimer{EventID: id, Kind: "subcue", Timer: e.state.SubCue.Snapshot(now)})
			}
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EventID != out[j].EventID {
			return out[i].EventID < out[j].EventID
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// ResetAllEvents runs ResetAllStates on every persisted event.
func (s *Service) ResetAllEvents(ctx context.Context) (int, error) {
	ids, err := s.EventIDs(ctx)
	if err != nil {
		return 0, err
	}
	var errs []error
	for _, id := range ids {
		if _, err := s.ResetAllStates(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", id, err))
		}
	}
	return len(ids) - len(errs), errors.Join(errs...)
}

// apply runs fn against a copy of the event state. The copy replaces the live state only
// after it has been persisted; messages are published while the event is still locked so
// every subscriber sees transitions in the order they were applied.
func (s *Service) apply(ctx context.Context, eventID, op string, fn func(m *mutation, now time.Time) ([]protocol.Message, error)) (protocol.Snapshot, error) {
	e := s.entry(eventID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.ensureLoaded(ctx, eventID, e); err != nil {
		return protocol.Snapshot{}, err
	}

	m := &mutation{state: e.state.Clone()}
	if e.sched != nil {
		m.schedule = cloneSchedule(*e.sched)
	}

	now := s.clock.Now()
	msgs, err := fn(m, now)
	if err != nil {
		s.observe(op, err)
		log.Warn().Str("event_id", eventID).Str("op", op).Err(err).Msg("Timer transition rejected")
		return protocol.Snapshot{}, err
	}
	if len(msgs) == 0 {
		return e.state.Snapshot(now), nil
	}

	m.state.Version++
	if m.scheduleDirty {
		if err := s.store.SaveEventAndSchedule(ctx, m.state, *m.schedule); err != nil {
			return protocol.Snapshot{}, fmt.Errorf("failed to persist %s: %w", op, err)
		}
		e.sched = m.schedule
	} else if err := s.store.SaveEvent(ctx, m.state); err != nil {
		return protocol.Snapshot{}, fmt.Errorf("failed to persist %s: %w", op, err)
	}
	e.state = m.state

	for _, msg := range msgs {
		s.publish(eventID, msg)
	}
	s.observe(op, nil)
	log.Info().Str("event_id", eventID).Str("op", op).Uint64("version", e.state.Version).Msg("Timer transition applied")
	return e.state.Snapshot(now), nil
}

func (s *Service) resolveCue(sched *schedule.Schedule, itemID int64, durationSeconds int, label string) (int, string) {
	if sched != nil {
		if idx := sched.IndexOf(itemID); idx >= 0 {
			it := sched.Items[idx]
			if durationSeconds <= 0 {
				durationSeconds = it.TotalSeconds()
			}
			if label == "" {
				label = it.Label
			}
		}
	}
	if durationSeconds <= 0 {
		durationSeconds = s.cfg.DefaultDurationSeconds
	}
	return durationSeconds, label
}

func (s *Service) entry(eventID string) *event {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		e = &event{}
		s.events[eventID] = e
	}
	return e
}

// view runs fn against an event's state under its lock. An ID with nothing in memory or in
// the store is answered from a blank state and is not registered.
func (s *Service) view(ctx context.Context, eventID string, fn func(st *EventState, sched *schedule.Schedule)) error {
	s.mu.Lock()
	e, ok := s.events[eventID]
	s.mu.Unlock()
	if !ok {
		st, sched, err := s.load(ctx, eventID)
		if err != nil {
			return err
		}
		if st == nil && sched == nil {
			fn(NewEventState(eventID), nil)
			return nil
		}
		e = s.entry(eventID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := s.ensureLoaded(ctx, eventID, e); err != nil {
		return err
	}
	fn(e.state, e.sched)
	return nil
}

// ensureLoaded must be called with e.mu held.
func (s *Service) ensureLoaded(ctx context.Context, eventID string, e *event) error {
	if e.ready {
		return nil
	}
	st, sched, err := s.load(ctx, eventID)
	if err != nil {
		return err
	}
	if st == nil {
		st = NewEventState(eventID)
	}
	e.state = st
	e.sched = sched
	e.ready = true
	return nil
}

// load reads an event from the store. Both results are nil for an unknown event.
func (s *Service) load(ctx context.Context, eventID string) (*EventState, *schedule.Schedule, error) {
	st, err := s.store.LoadEvent(ctx, eventID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load event %s: %w", eventID, err)
	}
	sched, err := s.store.LoadSchedule(ctx, eventID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load schedule for %s: %w", eventID, err)
	}
	return st, sched, nil
}

func (s *Service) publish(eventID string, msg protocol.Message) {
	if s.publisher != nil {
		s.publisher.Publish(eventID, msg)
	}
}

func (s *Service) observe(op string, err error) {
	s.mu.Lock()
	o := s.observer
	s.mu.Unlock()
	if o != nil {
		o.ObserveTransition(op, err)
	}
}

func scheduleState(st *EventState, sched *schedule.Schedule) protocol.ScheduleState {
	out := protocol.ScheduleState{
		Ledger:        st.Ledger.Clone(),
		IndentedCues:  st.Indented.Clone(),
		CompletedCues: st.CompletedIDs(),
	}
	if sched != nil {
		out.Schedule = *cloneSchedule(*sched)
	} else {
		out.Schedule = schedule.Schedule{Items: []schedule.Item{}, DayStartTimes: schedule.DayStartTimes{}}
	}
	return out
}
