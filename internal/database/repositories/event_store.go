package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"github.com/bbernstein/runofshow-go/internal/database/models"
	"github.com/bbernstein/runofshow-go/internal/protocol"
	"github.com/bbernstein/runofshow-go/internal/schedule"
	"github.com/bbernstein/runofshow-go/internal/services/timer"
)

// EventStore persists timer.EventState and schedules across the run-of-show tables.
type EventStore struct {
	db *gorm.DB
}

// NewEventStore creates a new EventStore.
func NewEventStore(db *gorm.DB) *EventStore {
	return &EventStore{db: db}
}

var _ timer.Store = (*EventStore)(nil)

// LoadEvent rebuilds the state of an event, or returns nil, nil if it was never saved.
func (s *EventStore) LoadEvent(ctx context.Context, eventID string) (*timer.EventState, error) {
	event, err := NewEventRepository(s.db).FindByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load event %s: %w", eventID, err)
	}
	if event == nil {
		return nil, nil
	}

	timers, err := NewTimerRepository(s.db).FindByEventID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load timers of %s: %w", eventID, err)
	}
	overtime, err := NewOvertimeRepository(s.db).FindByEventID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load overtime of %s: %w", eventID, err)
	}
	indented, err := NewIndentedCueRepository(s.db).FindByEventID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load indented cues of %s: %w", eventID, err)
	}
	completed, err := NewCompletedCueRepository(s.db).FindByEventID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load completed cues of %s: %w", eventID, err)
	}

	st := timer.NewEventState(eventID)
	st.Version = event.Version
	st.Ledger.StartCueID = event.StartCueID
	st.Ledger.ShowStartOvertime = event.ShowStartOvertime
	st.Ledger.ScheduledTime = event.ScheduledTime
	st.Ledger.ActualTime = event.ActualTime
	if row, ok := timers[models.TimerKindMain]; ok {
		st.Active = rowToTimer(row)
	}
	if row, ok := timers[models.TimerKindSubCue]; ok {
		st.SubCue = rowToTimer(row)
	}
	for _, row := range overtime {
		st.Ledger.OvertimeMinutes[row.ItemID] = row.Minutes
	}
	for _, row := range indented {
		st.Indented[row.ItemID] = schedule.Indent{ParentID: row.ParentID}
	}
	for _, row := range completed {
		st.Completed[row.ItemID] = row.CompletedAt
	}
	return st, nil
}

// SaveEvent writes the whole state in one transaction.
func (s *EventStore) SaveEvent(ctx context.Context, state *timer.EventState) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return saveEvent(ctx, tx, state)
	})
	if err != nil {
		return fmt.Errorf("failed to save event %s: %w", state.EventID, err)
	}
	return nil
}

// SaveEventAndSchedule writes the state and the schedule in one transaction.
func (s *EventStore) SaveEventAndSchedule(ctx context.Context, state *timer.EventState, sched schedule.Schedule) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := saveEvent(ctx, tx, state); err != nil {
			return err
		}
		return saveSchedule(ctx, tx, state.EventID, sched)
	})
	if err != nil {
		return fmt.Errorf("failed to save event %s: %w", state.EventID, err)
	}
	return nil
}

func saveEvent(ctx context.Context, tx *gorm.DB, state *timer.EventState) error {
	if err := NewEventRepository(tx).Upsert(ctx, &models.Event{
		ID:                state.EventID,
		Version:           state.Version,
		StartCueID:        state.Ledger.StartCueID,
		ShowStartOvertime: state.Ledger.ShowStartOvertime,
		ScheduledTime:     state.Ledger.ScheduledTime,
		ActualTime:        state.Ledger.ActualTime,
	}); err != nil {
		return err
	}

	timers := NewTimerRepository(tx)
	active := timerToRow(state.EventID, models.TimerKindMain, state.Active)
	if err := timers.Upsert(ctx, &active); err != nil {
		return err
	}
	sub := timerToRow(state.EventID, models.TimerKindSubCue, state.SubCue)
	if err := timers.Upsert(ctx, &sub); err != nil {
		return err
	}

	overtime := make([]models.OvertimeMinute, 0, len(state.Ledger.OvertimeMinutes))
	for itemID, minutes := range state.Ledger.OvertimeMinutes {
		overtime = append(overtime, models.OvertimeMinute{ItemID: itemID, Minutes: minutes})
	}
	if err := NewOvertimeRepository(tx).ReplaceForEvent(ctx, state.EventID, overtime); err != nil {
		return err
	}

	indented := make([]models.IndentedCue, 0, len(state.Indented))
	for itemID, indent := range state.Indented {
		indented = append(indented, models.IndentedCue{ItemID: itemID, ParentID: indent.ParentID})
	}
	if err := NewIndentedCueRepository(tx).ReplaceForEvent(ctx, state.EventID, indented); err != nil {
		return err
	}

	completed := make([]models.CompletedCue, 0, len(state.Completed))
	for itemID, at := range state.Completed {
		completed = append(completed, models.CompletedCue{ItemID: itemID, CompletedAt: at.UTC()})
	}
	return NewCompletedCueRepository(tx).ReplaceForEvent(ctx, state.EventID, completed)
}

// LoadSchedule returns the ingested schedule, or nil, nil if there is none.
func (s *EventStore) LoadSchedule(ctx context.Context, eventID string) (*schedule.Schedule, error) {
	row, err := NewScheduleRepository(s.db).FindByEventID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule of %s: %w", eventID, err)
	}
	if row == nil {
		return nil, nil
	}

	sched := schedule.Schedule{
		DayStartTimes:   schedule.DayStartTimes{},
		MasterStartTime: row.MasterStartTime,
	}
	if row.ScheduleItems != "" {
		if err := json.Unmarshal([]byte(row.ScheduleItems), &sched.Items); err != nil {
			return nil, fmt.Errorf("corrupt schedule items of %s: %w", eventID, err)
		}
	}
	if row.DayStartTimes != "" {
		if err := json.Unmarshal([]byte(row.DayStartTimes), &sched.DayStartTimes); err != nil {
			return nil, fmt.Errorf("corrupt day start times of %s: %w", eventID, err)
		}
	}
	return &sched, nil
}

// SaveSchedule stores the schedule, replacing the previous one.
func (s *EventStore) SaveSchedule(ctx context.Context, eventID string, sched schedule.Schedule) error {
	return saveSchedule(ctx, s.db, eventID, sched)
}

func saveSchedule(ctx context.Context, db *gorm.DB, eventID string, sched schedule.Schedule) error {
	items := sched.Items
	if items == nil {
		items = []schedule.Item{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode schedule items: %w", err)
	}
	days := sched.DayStartTimes
	if days == nil {
		days = schedule.DayStartTimes{}
	}
	daysJSON, err := json.Marshal(days)
	if err != nil {
		return fmt.Errorf("failed to encode day start times: %w", err)
	}

	if err := NewScheduleRepository(db).Upsert(ctx, &models.RunOfShowData{
		EventID:         eventID,
		ScheduleItems:   string(itemsJSON),
		DayStartTimes:   string(daysJSON),
		MasterStartTime: sched.MasterStartTime,
	}); err != nil {
		return fmt.Errorf("failed to save schedule of %s: %w", eventID, err)
	}
	return nil
}

// EventIDs returns every event with saved state or a schedule.
func (s *EventStore) EventIDs(ctx context.Context) ([]string, error) {
	events, err := NewEventRepository(s.db).FindAllIDs(ctx)
	if err != nil {
		return nil, err
	}
	schedules, err := NewScheduleRepository(s.db).FindAllEventIDs(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(events)+len(schedules))
	for _, id := range append(events, schedules...) {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func timerToRow(eventID, kind string, t timer.Timer) models.EventTimer {
	row := models.EventTimer{
		EventID:         eventID,
		Kind:            kind,
		ItemID:          t.ItemID,
		TimerState:      string(t.Current()),
		DurationSeconds: t.DurationSeconds,
		LastLoadedCueID: t.LastLoadedCueID,
		CueLabel:        t.CueLabel,
		UpdatedAt:       t.UpdatedAt.UTC(),
	}
	if t.StartedAt != nil {
		at := t.StartedAt.UTC()
		row.StartedAt = &at
	}
	if t.StoppedAt != nil {
		at := t.StoppedAt.UTC()
		row.StoppedAt = &at
	}
	return row
}

func rowToTimer(row models.EventTimer) timer.Timer {
	return timer.Timer{
		ItemID:          row.ItemID,
		State:           protocol.TimerState(row.TimerState),
		DurationSeconds: row.DurationSeconds,
		StartedAt:       row.StartedAt,
		StoppedAt:       row.StoppedAt,
		LastLoadedCueID: row.LastLoadedCueID,
		CueLabel:        row.CueLabel,
		UpdatedAt:       row.UpdatedAt,
	}
}
