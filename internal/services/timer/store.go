package timer

import (
	"context"
	"sort"
	"sync"

	"github.com/bbernstein/runofshow-go/internal/schedule"
)

// Store persists event state so a restarted server resumes where it left off.
type Store interface {
	// LoadEvent returns nil, nil for an unknown event.
	LoadEvent(ctx context.Context, eventID string) (*EventState, error)
	SaveEvent(ctx context.Context, state *EventState) error
	// LoadSchedule returns nil, nil when no schedule was ingested.
	LoadSchedule(ctx context.Context, eventID string) (*schedule.Schedule, error)
	SaveSchedule(ctx context.Context, eventID string, s schedule.Schedule) error
	// SaveEventAndSchedule writes both or neither.
	SaveEventAndSchedule(ctx context.Context, state *EventState, s schedule.Schedule) error
	EventIDs(ctx context.Context) ([]string, error)
}

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	events    map[string]*EventState
	schedules map[string]schedule.Schedule
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:    make(map[string]*EventState),
		schedules: make(map[string]schedule.Schedule),
	}
}

func (m *MemoryStore) LoadEvent(_ context.Context, eventID string) (*EventState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.events[eventID]
	if !ok {
		return nil, nil
	}
	return st.Clone(), nil
}

func (m *MemoryStore) SaveEvent(_ context.Context, state *EventState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[state.EventID] = state.Clone()
	return nil
}

func (m *MemoryStore) LoadSchedule(_ context.Context, eventID string) (*schedule.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schedules[eventID]
	if !ok {
		return nil, nil
	}
	return cloneSchedule(s), nil
}

func (m *MemoryStore) SaveSchedule(_ context.Context, eventID string, s schedule.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[eventID] = *cloneSchedule(s)
	return nil
}

func (m *MemoryStore) SaveEventAndSchedule(_ context.Context, state *EventState, s schedule.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[state.EventID] = state.Clone()
	m.schedules[state.EventID] = *cloneSchedule(s)
	return nil
}

func (m *MemoryStore) EventIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{}, len(m.events)+len(m.schedules))
	for id := range m.events {
		seen[id] = struct{}{}
	}
	for id := range m.schedules {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func cloneSchedule(s schedule.Schedule) *schedule.Schedule {
	out := schedule.Schedule{
		Items:           make([]schedule.Item, len(s.Items)),
		DayStartTimes:   make(schedule.DayStartTimes, len(s.DayStartTimes)),
		MasterStartTime: s.MasterStartTime,
	}
	copy(out.Items, s.Items)
	for k, v := range s.DayStartTimes {
		out.DayStartTimes[k] = v
	}
	return &out
}
