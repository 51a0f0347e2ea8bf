package repositories_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbernstein/runofshow-go/internal/database/models"
	"github.com/bbernstein/runofshow-go/internal/protocol"
	"github.com/bbernstein/runofshow-go/internal/schedule"
	"github.com/bbernstein/runofshow-go/internal/services/testutil"
	"github.com/bbernstein/runofshow-go/internal/services/timer"
)

var t0 = time.Date(2026, 6, 12, 19, 0, 0, 0, time.UTC)

func int64Ptr(v int64) *int64 { return &v }

func TestEventRepository_UpsertAndFind(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	id := testutil.UniqueEventID("evt")

	found, err := testDB.EventRepo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, found)

	require.NoError(t, testDB.EventRepo.Upsert(ctx, &models.Event{ID: id, Version: 1}))
	require.NoError(t, testDB.EventRepo.Upsert(ctx, &models.Event{ID: id, Version: 2, StartCueID: int64Ptr(3), ShowStartOvertime: 4}))

	found, err = testDB.EventRepo.FindByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, uint64(2), found.Version)
	require.NotNil(t, found.StartCueID)
	assert.Equal(t, int64(3), *found.StartCueID)
	assert.Equal(t, 4, found.ShowStartOvertime)

	ids, err := testDB.EventRepo.FindAllIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)

	require.NoError(t, testDB.EventRepo.Delete(ctx, id))
	found, err = testDB.EventRepo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestOvertimeRepository_ReplaceForEvent(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, testDB.OvertimeRepo.ReplaceForEvent(ctx, "a", []models.OvertimeMinute{
		{ItemID: 2, Minutes: 5}, {ItemID: 1, Minutes: -3},
	}))
	require.NoError(t, testDB.OvertimeRepo.ReplaceForEvent(ctx, "b", []models.OvertimeMinute{{ItemID: 1, Minutes: 9}}))

	rows, err := testDB.OvertimeRepo.FindByEventID(ctx, "a")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0].ItemID)
	assert.Equal(t, -3, rows[0].Minutes)
	assert.NotEmpty(t, rows[0].ID)

	require.NoError(t, testDB.OvertimeRepo.ReplaceForEvent(ctx, "a", nil))
	rows, err = testDB.OvertimeRepo.FindByEventID(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = testDB.OvertimeRepo.FindByEventID(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestTimerRepository_FindRunning(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	started := t0
	require.NoError(t, testDB.TimerRepo.Upsert(ctx, &models.EventTimer{EventID: "a", Kind: models.TimerKindMain, TimerState: "running", StartedAt: &started}))
	require.NoError(t, testDB.TimerRepo.Upsert(ctx, &models.EventTimer{EventID: "a", Kind: models.TimerKindSubCue, TimerState: "loaded"}))
	require.NoError(t, testDB.TimerRepo.Upsert(ctx, &models.EventTimer{EventID: "b", Kind: models.TimerKindMain, TimerState: "running"}))
	require.NoError(t, testDB.TimerRepo.Upsert(ctx, &models.EventTimer{EventID: "b", Kind: models.TimerKindMain, TimerState: "stopped"}))

	running, err := testDB.TimerRepo.FindRunning(ctx)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "a", running[0].EventID)

	timers, err := testDB.TimerRepo.FindByEventID(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, timers, 2)
	assert.Equal(t, "loaded", timers[models.TimerKindSubCue].TimerState)
}

func TestEventStore_RoundTrip(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	store := testDB.Store

	missing, err := store.LoadEvent(ctx, "evt")
	require.NoError(t, err)
	assert.Nil(t, missing)

	st := timer.NewEventState("evt")
	_, err = st.LoadCue(1, 600, "Keynote", t0)
	require.NoError(t, err)
	_, err = st.StartCue(t0.Add(time.Second))
	require.NoError(t, err)
	_, err = st.RunSubCue(4, 90, "Walk-in", t0.Add(2*time.Second))
	require.NoError(t, err)
	st.Ledger.OvertimeMinutes[2] = 5
	st.Ledger.OvertimeMinutes[3] = -2
	st.Ledger.StartCueID = int64Ptr(1)
	st.Ledger.ShowStartOvertime = 7
	st.Ledger.ScheduledTime = "9:00 AM"
	st.Ledger.ActualTime = "9:07 AM"
	st.Indented[4] = schedule.Indent{ParentID: 3}
	st.Completed[2] = t0.Add(time.Minute)
	st.Version = 12

	require.NoError(t, store.SaveEvent(ctx, st))

	got, err := store.LoadEvent(ctx, "evt")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, uint64(12), got.Version)
	assert.Equal(t, protocol.StateRunning, got.Active.Current())
	require.NotNil(t, got.Active.ItemID)
	assert.Equal(t, int64(1), *got.Active.ItemID)
	assert.Equal(t, 600, got.Active.DurationSeconds)
	assert.Equal(t, "Keynote", got.Active.CueLabel)
	require.NotNil(t, got.Active.StartedAt)
	assert.True(t, got.Active.StartedAt.Equal(t0.Add(time.Second)))
	assert.Equal(t, 599, got.Active.RemainingSeconds(t0.Add(2*time.Second)))

	assert.Equal(t, protocol.StateRunning, got.SubCue.Current())
	assert.Equal(t, "Walk-in", got.SubCue.CueLabel)

	assert.Equal(t, map[int64]int{2: 5, 3: -2}, got.Ledger.OvertimeMinutes)
	require.NotNil(t, got.Ledger.StartCueID)
	assert.Equal(t, int64(1), *got.Ledger.StartCueID)
	assert.Equal(t, 7, got.Ledger.ShowStartOvertime)
	assert.Equal(t, "9:07 AM", got.Ledger.ActualTime)
	assert.Equal(t, schedule.IndentedCues{4: {ParentID: 3}}, got.Indented)
	assert.Equal(t, []int64{2}, got.CompletedIDs())

	// A later save with less state removes what is gone.
	st.Ledger.OvertimeMinutes = map[int64]int{}
	st.Indented = schedule.IndentedCues{}
	st.Completed = map[int64]time.Time{}
	require.NoError(t, store.SaveEvent(ctx, st))
	got, err = store.LoadEvent(ctx, "evt")
	require.NoError(t, err)
	assert.Empty(t, got.Ledger.OvertimeMinutes)
	assert.Empty(t, got.Indented)
	assert.Empty(t, got.Completed)
}

func TestEventStore_Schedule(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	store := testDB.Store

	missing, err := store.LoadSchedule(ctx, "evt")
	require.NoError(t, err)
	assert.Nil(t, missing)

	sched := schedule.Schedule{
		Items: []schedule.Item{
			{ID: 1, Day: 1, Label: "Doors", DurationMinutes: 30},
			{ID: 2, Day: 2, Label: "Keynote", DurationHours: 1, DurationSeconds: 15, IsStartCue: true},
		},
		DayStartTimes:   schedule.DayStartTimes{2: "08:30"},
		MasterStartTime: "09:00",
	}
	require.NoError(t, store.SaveSchedule(ctx, "evt", sched))

	got, err := store.LoadSchedule(ctx, "evt")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sched, *got)

	sched.Items = sched.Items[:1]
	require.NoError(t, store.SaveSchedule(ctx, "evt", sched))
	got, err = store.LoadSchedule(ctx, "evt")
	require.NoError(t, err)
	assert.Len(t, got.Items, 1)

	require.NoError(t, store.SaveEvent(ctx, timer.NewEventState("other")))
	ids, err := store.EventIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"evt", "other"}, ids)
}

func TestEventStore_ServiceRestore(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	svc := timer.NewService(testDB.Store, nil, nil, timer.Config{})
	_, err := svc.Load(ctx, "evt", 1, 120, "Intro")
	require.NoError(t, err)
	_, err = svc.Start(ctx, "evt")
	require.NoError(t, err)

	restored := timer.NewService(testDB.Store, nil, nil, timer.Config{})
	n, err := restored.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	snap, err := restored.Snapshot(ctx, "evt")
	require.NoError(t, err)
	assert.Equal(t, protocol.StateRunning, snap.ActiveTimer.State)
	assert.Equal(t, uint64(2), snap.Version)
}

func TestEventStore_SaveEventAndSchedule(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	store := testDB.Store

	st := timer.NewEventState("evt")
	st.Version = 4
	sched := schedule.Schedule{
		Items:           []schedule.Item{{ID: 1, DurationMinutes: 10}},
		DayStartTimes:   schedule.DayStartTimes{},
		MasterStartTime: "09:00",
	}
	require.NoError(t, store.SaveEventAndSchedule(ctx, st, sched))

	loaded, err := store.LoadEvent(ctx, "evt")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, uint64(4), loaded.Version)
	got, err := store.LoadSchedule(ctx, "evt")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sched, *got)
}

func TestEventStore_SaveEventAndScheduleRollsBack(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, testDB.DB.Migrator().DropTable(&models.RunOfShowData{}))

	err := testDB.Store.SaveEventAndSchedule(ctx, timer.NewEventState("evt"), schedule.Schedule{MasterStartTime: "09:00"})
	require.Error(t, err)

	loaded, err := testDB.Store.LoadEvent(ctx, "evt")
	require.NoError(t, err)
	assert.Nil(t, loaded, "event row must not survive a failed schedule write")
}
