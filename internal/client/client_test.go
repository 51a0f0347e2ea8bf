package client

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbernstein/runofshow-go/internal/clock"
	"github.com/bbernstein/runofshow-go/internal/gateway"
	"github.com/bbernstein/runofshow-go/internal/protocol"
	"github.com/bbernstein/runofshow-go/internal/schedule"
	"github.com/bbernstein/runofshow-go/internal/services/presence"
	"github.com/bbernstein/runofshow-go/internal/services/pubsub"
	"github.com/bbernstein/runofshow-go/internal/services/timer"
)

type testServer struct {
	url      string
	svc      *timer.Service
	manager  *gateway.ConnectionManager
	presence *presence.Registry
	conns    *connTracker
}

// connTracker records hijacked connections so a test can cut them from the server side.
type connTracker struct {
	mu    sync.Mutex
	conns []net.Conn
}

func (ct *connTracker) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&trackingWriter{ResponseWriter: w, tracker: ct}, r)
	})
}

func (ct *connTracker) dropAll() {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	for _, c := range ct.conns {
		_ = c.Close()
	}
	ct.conns = nil
}

type trackingWriter struct {
	http.ResponseWriter
	tracker *connTracker
}

func (w *trackingWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, rw, err := w.ResponseWriter.(http.Hijacker).Hijack()
	if err == nil {
		w.tracker.mu.Lock()
		w.tracker.conns = append(w.tracker.conns, conn)
		w.tracker.mu.Unlock()
	}
	return conn, rw, err
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	clk := clock.Real()
	broker := pubsub.New(clk)
	reg := presence.New(clk)
	svc := timer.NewService(timer.NewMemoryStore(), broker, clk, timer.Config{})
	cm := gateway.NewConnectionManager(gateway.DefaultConnectionConfig(), broker, svc, reg, clk)

	ctx, cancel := context.WithCancel(context.Background())
	go cm.Start(ctx)
	conns := &connTracker{}
	srv := httptest.NewServer(conns.wrap(cm))
	t.Cleanup(func() {
		cancel()
		conns.dropAll()
		srv.Close()
	})
	return &testServer{url: srv.URL + "/ws", svc: svc, manager: cm, presence: reg, conns: conns}
}

func runClient(t *testing.T, c *Client) <-chan error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()
	t.Cleanup(cancel)
	return errCh
}

func TestBackoff(t *testing.T) {
	c := New(Config{ReconnectDelay: 2 * time.Second, MaxReconnectDelay: 5 * time.Second}, nil)
	assert.Equal(t, 2*time.Second, c.backoff(1))
	assert.Equal(t, 4*time.Second, c.backoff(2))
	assert.Equal(t, 5*time.Second, c.backoff(3))
	assert.Equal(t, 5*time.Second, c.backoff(10))
}

func TestEndpoint(t *testing.T) {
	c := New(Config{URL: "https://show.example.com/ws"}, nil)
	got, err := c.endpoint()
	require.NoError(t, err)
	assert.Equal(t, "wss://show.example.com/ws", got)
}

func TestClient_SyncsAndFollowsBroadcasts(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	_, err := srv.svc.PutSchedule(ctx, "evt-1", schedule.Schedule{
		Items:           []schedule.Item{{ID: 1, DurationMinutes: 5}, {ID: 2, DurationMinutes: 10}},
		MasterStartTime: "09:00",
	})
	require.NoError(t, err)

	cfg := DefaultConfig(srv.url, "evt-1")
	cfg.Passive = true
	cfg.PassiveResyncInterval = 50 * time.Millisecond
	c := New(cfg, nil)
	runClient(t, c)

	require.Eventually(t, c.State().Synced, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(c.State().Schedule().Items) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, c.State().Clock().Synced())

	_, err = srv.svc.Load(ctx, "evt-1", 2, 0, "")
	require.NoError(t, err)
	_, err = srv.svc.Start(ctx, "evt-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return c.State().ActiveTimer().State == protocol.StateRunning
	}, 2*time.Second, 10*time.Millisecond)
	remaining := c.State().RemainingSeconds()
	assert.InDelta(t, 600, remaining, 2)

	_, err = srv.svc.SetOvertime(ctx, "evt-1", 1, 3)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return c.State().DisplayTime(2) == "9:08 AM" }, 2*time.Second, 10*time.Millisecond)
}

func TestClient_IgnoresOtherEvents(t *testing.T) {
	srv := newTestServer(t)
	c := New(DefaultConfig(srv.url, "evt-1"), nil)
	runClient(t, c)
	require.Eventually(t, c.State().Synced, 2*time.Second, 10*time.Millisecond)

	_, err := srv.svc.MarkCompleted(context.Background(), "evt-2", 9)
	require.NoError(t, err)
	_, err = srv.svc.MarkCompleted(context.Background(), "evt-1", 3)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(c.State().CompletedCues()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []int64{3}, c.State().CompletedCues())
}

func TestClient_StopsOnForceDisconnect(t *testing.T) {
	srv := newTestServer(t)
	cfg := DefaultConfig(srv.url, "evt-1")
	cfg.Viewer = &protocol.Viewer{UserID: "u1", UserName: "Booth"}
	c := New(cfg, nil)
	errCh := runClient(t, c)

	require.Eventually(t, func() bool { return len(srv.presence.List("evt-1")) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "VIEWER", srv.presence.List("evt-1")[0].UserRole)

	assert.Equal(t, 1, srv.manager.DisconnectUser("evt-1", "u1", "disconnected by admin"))

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, ErrForceDisconnected))
		assert.Equal(t, "disconnected by admin", c.State().DisconnectReason())
	case <-time.After(3 * time.Second):
		t.Fatal("client kept running after forceDisconnect")
	}
}

func TestClient_ResyncsAfterDroppedConnection(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	_, err := srv.svc.Load(ctx, "evt-1", 1, 600, "Opening")
	require.NoError(t, err)
	first, err := srv.svc.Start(ctx, "evt-1")
	require.NoError(t, err)

	var initialSyncs atomic.Int32
	cfg := DefaultConfig(srv.url, "evt-1")
	cfg.ReconnectDelay = 500 * time.Millisecond
	cfg.OnMessage = func(msg protocol.Message) {
		if _, ok := msg.(protocol.InitialSync); ok {
			initialSyncs.Add(1)
		}
	}
	c := New(cfg, nil)
	runClient(t, c)

	require.Eventually(t, func() bool {
		return c.State().ActiveTimer().State == protocol.StateRunning
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), initialSyncs.Load())

	srv.conns.dropAll()
	require.Eventually(t, func() bool {
		return srv.manager.GetConnectionStats().TotalConnections == 0
	}, 2*time.Second, 5*time.Millisecond)

	// Nobody is subscribed: the server timer keeps its schedule.
	snap, err := srv.svc.Snapshot(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, protocol.StateRunning, snap.ActiveTimer.State)
	require.NotNil(t, snap.ActiveTimer.StartedAt)
	assert.True(t, snap.ActiveTimer.StartedAt.Equal(*first.ActiveTimer.StartedAt))

	// Transitions the client misses while it is away.
	_, err = srv.svc.Stop(ctx, "evt-1")
	require.NoError(t, err)
	_, err = srv.svc.Load(ctx, "evt-1", 2, 300, "Keynote")
	require.NoError(t, err)
	second, err := srv.svc.Start(ctx, "evt-1")
	require.NoError(t, err)
	assert.Zero(t, srv.manager.GetConnectionStats().TotalConnections)

	require.Eventually(t, func() bool {
		active := c.State().ActiveTimer()
		return active.ItemID != nil && *active.ItemID == 2 && active.State == protocol.StateRunning
	}, 3*time.Second, 10*time.Millisecond)

	active := c.State().ActiveTimer()
	require.NotNil(t, active.StartedAt)
	assert.True(t, active.StartedAt.Equal(*second.ActiveTimer.StartedAt))
	assert.Equal(t, "Keynote", active.CueLabel)
	assert.InDelta(t, 300, c.State().RemainingSeconds(), 2)
	assert.Equal(t, int32(2), initialSyncs.Load(), "one initialSync per connection")

	current, err := srv.svc.Snapshot(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, current.Ledger.OvertimeMinutes, c.State().Ledger().OvertimeMinutes)
}

func TestClient_RunReturnsOnCancel(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1/ws", EventID: "e", ReconnectDelay: time.Hour}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
