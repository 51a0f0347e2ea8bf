package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbernstein/runofshow-go/internal/protocol"
	"github.com/bbernstein/runofshow-go/internal/schedule"
)

func messageTypes(msgs []protocol.Message) []protocol.MessageType {
	out := make([]protocol.MessageType, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Type())
	}
	return out
}

func TestEventState_StopRecordsOvertime(t *testing.T) {
	st := NewEventState("evt")
	_, err := st.LoadCue(2, 600, "", t0)
	require.NoError(t, err)
	_, err = st.StartCue(t0)
	require.NoError(t, err)

	msgs, err := st.StopCue(t0.Add(12*time.Minute + 30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, []protocol.MessageType{protocol.TypeActiveTimerStopped, protocol.TypeOvertimeUpdate}, messageTypes(msgs))
	assert.Equal(t, 2, st.Ledger.OvertimeMinutes[2])

	ot := msgs[1].(protocol.OvertimeUpdate)
	assert.Equal(t, int64(2), ot.ItemID)
	assert.Equal(t, 2, ot.Ledger.OvertimeMinutes[2])
}

func TestEventState_StopWithinAMinuteRecordsNothing(t *testing.T) {
	st := NewEventState("evt")
	_, err := st.LoadCue(2, 600, "", t0)
	require.NoError(t, err)
	_, err = st.StartCue(t0)
	require.NoError(t, err)

	msgs, err := st.StopCue(t0.Add(10*time.Minute + 20*time.Second))
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.Empty(t, st.Ledger.OvertimeMinutes)
}

func TestEventState_StopFromLoadedRecordsNothing(t *testing.T) {
	st := NewEventState("evt")
	_, err := st.LoadCue(2, 600, "", t0)
	require.NoError(t, err)

	msgs, err := st.StopCue(t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []protocol.MessageType{protocol.TypeActiveTimerStopped}, messageTypes(msgs))
	assert.Empty(t, st.Ledger.OvertimeMinutes)
}

func TestEventState_StartWhileRunningYieldsNoMessages(t *testing.T) {
	st := NewEventState("evt")
	_, err := st.LoadCue(2, 600, "", t0)
	require.NoError(t, err)
	_, err = st.StartCue(t0)
	require.NoError(t, err)

	msgs, err := st.StartCue(t0.Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestEventState_SubCueRunsAlongsideMain(t *testing.T) {
	st := NewEventState("evt")
	_, err := st.LoadCue(1, 600, "", t0)
	require.NoError(t, err)
	_, err = st.StartCue(t0)
	require.NoError(t, err)

	msgs, err := st.RunSubCue(5, 45, "VT", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []protocol.MessageType{protocol.TypeSubCueTimerStarted}, messageTypes(msgs))
	assert.Equal(t, protocol.StateRunning, st.Active.Current())
	assert.Equal(t, protocol.StateRunning, st.SubCue.Current())

	msgs, err = st.StopSubCue(t0.Add(2 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []protocol.MessageType{protocol.TypeSubCueTimerStopped}, messageTypes(msgs))
	assert.Equal(t, protocol.StateRunning, st.Active.Current())
}

func TestEventState_SubCueLoadThenStart(t *testing.T) {
	st := NewEventState("evt")
	msgs, err := st.LoadSubCue(5, 45, "", t0)
	require.NoError(t, err)
	assert.Equal(t, []protocol.MessageType{protocol.TypeSubCueTimerLoaded}, messageTypes(msgs))

	msgs, err = st.StartSubCue(t0)
	require.NoError(t, err)
	assert.Equal(t, []protocol.MessageType{protocol.TypeSubCueTimerStarted}, messageTypes(msgs))

	_, err = st.StopCue(t0)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestEventState_StopTimers(t *testing.T) {
	st := NewEventState("evt")
	msgs, err := st.StopTimers(t0)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, _ = st.LoadCue(1, 600, "", t0)
	_, _ = st.StartCue(t0)
	_, _ = st.SetOvertime(1, 3)
	_, _ = st.RunSubCue(5, 30, "", t0)

	msgs, err = st.StopTimers(t0.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	stopped := msgs[0].(protocol.TimersStopped)
	assert.Equal(t, protocol.StateStopped, stopped.ActiveTimer.State)
	assert.Equal(t, protocol.StateStopped, stopped.SubCueTimer.State)
	assert.Equal(t, 3, st.Ledger.OvertimeMinutes[1], "stopping timers keeps the ledger")
}

func TestEventState_ResetAll(t *testing.T) {
	st := NewEventState("evt")
	_, _ = st.LoadCue(1, 600, "", t0)
	_, _ = st.StartCue(t0)
	_, _ = st.SetOvertime(1, 3)
	_, _ = st.SetShowStartOvertime(1, 7, "9:00 AM", "9:07 AM")
	_, _ = st.MarkCompleted(1, t0)
	_, _ = st.SetIndent(2, 1)

	msgs, err := st.ResetAll(t0)
	require.NoError(t, err)
	assert.Equal(t, []protocol.MessageType{protocol.TypeResetAllStates, protocol.TypeCompletedCuesUpdated}, messageTypes(msgs))

	assert.Equal(t, protocol.StateNone, st.Active.Current())
	assert.Equal(t, protocol.StateNone, st.SubCue.Current())
	assert.True(t, st.Ledger.IsZero())
	assert.Empty(t, st.Completed)
	assert.True(t, st.Indented.IsIndented(2))
}

func TestEventState_LedgerOperations(t *testing.T) {
	st := NewEventState("evt")

	msgs, err := st.SetShowStartOvertime(2, 10, "9:05 AM", "9:15 AM")
	require.NoError(t, err)
	update := msgs[0].(protocol.ShowStartOvertimeUpdate)
	assert.Equal(t, 10, update.Ledger.ShowStartOvertime)
	require.NotNil(t, st.Ledger.StartCueID)
	assert.Equal(t, int64(2), *st.Ledger.StartCueID)

	_, err = st.SetOvertime(3, 4)
	require.NoError(t, err)
	_, err = st.SetOvertime(3, 0)
	require.NoError(t, err)
	_, present := st.Ledger.OvertimeMinutes[3]
	assert.False(t, present, "zero overtime removes the entry")

	_, _ = st.SetOvertime(4, 6)
	msgs, err = st.ResetOvertime()
	require.NoError(t, err)
	reset := msgs[0].(protocol.OvertimeReset)
	assert.Empty(t, reset.Ledger.OvertimeMinutes)
	assert.Equal(t, 0, reset.Ledger.ShowStartOvertime)
	require.NotNil(t, reset.Ledger.StartCueID)
	assert.Equal(t, int64(2), *reset.Ledger.StartCueID)

	msgs, err = st.SetStartCue(nil)
	require.NoError(t, err)
	assert.Nil(t, msgs[0].(protocol.StartCueSelectionUpdate).StartCueID)
	assert.Nil(t, st.Ledger.StartCueID)
}

func TestEventState_IndentRules(t *testing.T) {
	st := NewEventState("evt")

	_, err := st.SetIndent(3, 3)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	msgs, err := st.SetIndent(3, 2)
	require.NoError(t, err)
	assert.Equal(t, schedule.IndentedCues{3: {ParentID: 2}}, msgs[0].(protocol.IndentedCuesUpdated).IndentedCues)

	_, err = st.SetIndent(4, 3)
	assert.ErrorIs(t, err, ErrInvalidArgument, "cannot nest under a sub-cue")

	_, err = st.SetIndent(2, 1)
	assert.ErrorIs(t, err, ErrInvalidArgument, "a parent cannot become a sub-cue")
	assert.Equal(t, schedule.IndentedCues{3: {ParentID: 2}}, st.Indented)

	msgs, err = st.RemoveIndent(9)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = st.RemoveIndent(3)
	require.NoError(t, err)
	assert.False(t, st.Indented.IsIndented(3))
}

func TestEventState_CompletedCues(t *testing.T) {
	st := NewEventState("evt")
	_, _ = st.MarkCompleted(5, t0)
	msgs, err := st.MarkCompleted(2, t0)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 5}, msgs[0].(protocol.CompletedCuesUpdated).ItemIDs)

	msgs, err = st.UnmarkCompleted(7)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	msgs, err = st.ClearCompleted()
	require.NoError(t, err)
	assert.Empty(t, msgs[0].(protocol.CompletedCuesUpdated).ItemIDs)
}

func TestEventState_CloneIsDeep(t *testing.T) {
	st := NewEventState("evt")
	_, _ = st.LoadCue(1, 60, "", t0)
	_, _ = st.SetOvertime(1, 2)
	_, _ = st.SetIndent(2, 1)
	_, _ = st.MarkCompleted(1, t0)

	c := st.Clone()
	*c.Active.ItemID = 9
	c.Ledger.OvertimeMinutes[1] = 50
	c.Indented[3] = schedule.Indent{ParentID: 1}
	delete(c.Completed, 1)

	assert.Equal(t, int64(1), *st.Active.ItemID)
	assert.Equal(t, 2, st.Ledger.OvertimeMinutes[1])
	assert.False(t, st.Indented.IsIndented(3))
	assert.Contains(t, st.Completed, int64(1))
}
