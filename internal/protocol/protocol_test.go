package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbernstein/runofshow-go/internal/schedule"
)

func TestEncode_EnvelopeShape(t *testing.T) {
	at := time.Date(2026, 5, 4, 18, 30, 0, 0, time.UTC)
	item := int64(2)
	raw, err := Encode("evt-1", ActiveTimerUpdated{TimerSnapshot{
		ItemID:          &item,
		State:           StateLoaded,
		DurationSeconds: 600,
		UpdatedAt:       at,
	}}, at)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	assert.Equal(t, "activeTimerUpdated", generic["type"])
	assert.Equal(t, "evt-1", generic["eventId"])
	assert.Equal(t, "2026-05-04T18:30:00Z", generic["timestamp"])

	data, ok := generic["data"].(map[string]any)
	require.True(t, ok, "data should be an object")
	assert.Equal(t, "loaded", data["state"])
	assert.Equal(t, float64(600), data["durationSeconds"])
	assert.Equal(t, float64(2), data["itemId"])
}

func TestDecode_TypedDispatch(t *testing.T) {
	at := time.Date(2026, 5, 4, 18, 30, 0, 0, time.UTC)
	ledger := schedule.NewLedger()
	ledger.OvertimeMinutes[3] = 4

	messages := []Message{
		ActiveTimerStopped{TimerSnapshot{State: StateStopped}},
		SubCueTimerStarted{TimerSnapshot{State: StateRunning, StartedAt: &at}},
		OvertimeUpdate{ItemID: 3, OvertimeMinutes: 4, Ledger: ledger},
		ResetAllStates{},
		ServerTime{ServerTime: at},
		PresenceUpdated{Viewers: []Viewer{{UserID: "u1", UserRole: "VIEWER"}}},
		IndentedCuesUpdated{IndentedCues: schedule.IndentedCues{5: {ParentID: 4}}},
		CompletedCuesUpdated{ItemIDs: []int64{1, 2}},
	}

	for _, msg := range messages {
		raw, err := Encode("evt-1", msg, at)
		require.NoError(t, err)

		env, decoded, err := Decode(raw)
		require.NoError(t, err, "type %s", msg.Type())
		assert.Equal(t, msg.Type(), env.Type)
		assert.Equal(t, "evt-1", env.EventID)
		assert.Equal(t, msg.Type(), decoded.Type())
	}
}

func TestDecode_CarriesPayload(t *testing.T) {
	at := time.Date(2026, 5, 4, 18, 30, 0, 0, time.UTC)
	raw, err := Encode("evt-1", SubCueTimerStarted{TimerSnapshot{State: StateRunning, StartedAt: &at, DurationSeconds: 45}}, at)
	require.NoError(t, err)

	_, msg, err := Decode(raw)
	require.NoError(t, err)

	started, ok := msg.(SubCueTimerStarted)
	require.True(t, ok, "expected SubCueTimerStarted, got %T", msg)
	assert.Equal(t, 45, started.DurationSeconds)
	require.NotNil(t, started.StartedAt)
	assert.True(t, started.StartedAt.Equal(at))

	raw, err = Encode("evt-1", IndentedCuesUpdated{IndentedCues: schedule.IndentedCues{5: {ParentID: 4}}}, at)
	require.NoError(t, err)
	_, msg, err = Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(4), msg.(IndentedCuesUpdated).IndentedCues[5].ParentID)
}

func TestDecode_Errors(t *testing.T) {
	_, _, err := Decode([]byte(`{not json`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, _, err = Decode([]byte(`{"type":"scriptScrollSync","eventId":"e","data":{}}`))
	assert.ErrorIs(t, err, ErrUnknownType)

	_, _, err = Decode([]byte(`{"type":"serverTime","eventId":"e","data":{"serverTime":"yesterday"}}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseRequest(t *testing.T) {
	raw, err := NewRequest(RequestInitialSync, "evt-1", "r1", nil)
	require.NoError(t, err)

	req, err := ParseRequest(raw)
	require.NoError(t, err)
	assert.Equal(t, RequestInitialSync, req.Type)
	assert.Equal(t, "evt-1", req.EventID)
	assert.Equal(t, "r1", req.RequestID)

	_, err = ParseRequest([]byte(`{"type":"joinEvent"}`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ParseRequest([]byte(`{"type":"resetAllStates","eventId":"evt-1"}`))
	assert.ErrorIs(t, err, ErrUnknownType)

	req, err = ParseRequest([]byte(`{"type":"timeSync"}`))
	require.NoError(t, err)
	assert.Equal(t, RequestTimeSync, req.Type)
}

func TestRequest_Viewer(t *testing.T) {
	raw, err := NewRequest(RequestPresenceJoin, "evt-1", "", Viewer{UserID: "u1", UserName: "Sam"})
	require.NoError(t, err)
	req, err := ParseRequest(raw)
	require.NoError(t, err)

	v, err := req.Viewer()
	require.NoError(t, err)
	assert.Equal(t, "u1", v.UserID)
	assert.Equal(t, "VIEWER", v.UserRole)

	raw, err = NewRequest(RequestPresenceJoin, "evt-1", "", Viewer{UserName: "nobody"})
	require.NoError(t, err)
	req, err = ParseRequest(raw)
	require.NoError(t, err)
	_, err = req.Viewer()
	assert.ErrorIs(t, err, ErrMalformed)
}
