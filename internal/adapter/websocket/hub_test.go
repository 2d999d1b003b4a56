package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/taskboard/internal/adapter/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRelay serves Handler on an httptest server. It returns the hub and a dial
// function that connects a new client.
func testRelay(t *testing.T, fanout Fanout, maxClients int) (*Hub, *metrics.WebSocketMetrics, func() *ws.Conn) {
	t.Helper()
	return testRelayWithClock(t, fanout, maxClients, clockwork.NewRealClock())
}

func testRelayWithClock(t *testing.T, fanout Fanout, maxClients int, clock clockwork.Clock) (*Hub, *metrics.WebSocketMetrics, func() *ws.Conn) {
	t.Helper()

	m := metrics.NewWebSocketMetrics(prometheus.NewRegistry())
	hub := NewHub(maxClients, m, clock)
	t.Cleanup(hub.Stop)

	relay := NewRelay(hub, fanout, m)
	server := httptest.NewServer(NewHandler(hub, relay, func(*http.Request) bool { return true }))
	t.Cleanup(server.Close)

	dial := func() *ws.Conn {
		t.Helper()
		url := "ws" + strings.TrimPrefix(server.URL, "http")
		conn, _, err := ws.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	}

	return hub, m, dial
}

// waitForClientCount polls until the hub has the expected count.
func waitForClientCount(hub *Hub, expected int) bool {
	for range 200 {
		if hub.ClientCount() == expected {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func readMessage(t *testing.T, conn *ws.Conn) (int, string) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return msgType, string(data)
}

func TestRelay_EchoesToSenderAndOthers(t *testing.T) {
	hub, m, dial := testRelay(t, nil, 0)

	sender := dial()
	other := dial()
	require.True(t, waitForClientCount(hub, 2))

	require.NoError(t, sender.WriteMessage(ws.TextMessage, []byte("hello")))

	for _, conn := range []*ws.Conn{sender, other} {
		msgType, data := readMessage(t, conn)
		assert.Equal(t, ws.TextMessage, msgType)
		assert.Equal(t, "hello", data)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesRelayed.WithLabelValues("local")))
}

func TestRelay_PreservesBinaryFrames(t *testing.T) {
	hub, _, dial := testRelay(t, nil, 0)

	conn := dial()
	require.True(t, waitForClientCount(hub, 1))

	require.NoError(t, conn.WriteMessage(ws.BinaryMessage, []byte{0x01, 0x02}))

	msgType, data := readMessage(t, conn)
	assert.Equal(t, ws.BinaryMessage, msgType)
	assert.Equal(t, "\x01\x02", data)
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	hub, m, dial := testRelay(t, nil, 0)

	conn := dial()
	require.True(t, waitForClientCount(hub, 1))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveConnections))

	require.NoError(t, conn.Close())

	assert.True(t, waitForClientCount(hub, 0))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveConnections))
}

func TestHub_MaxClients(t *testing.T) {
	hub, _, dial := testRelay(t, nil, 1)

	dial()
	require.True(t, waitForClientCount(hub, 1))

	rejected := dial()
	require.NoError(t, rejected.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := rejected.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 1, hub.ClientCount())
}

func TestHub_StopIsIdempotent(t *testing.T) {
	hub := NewHub(0, nil, clockwork.NewRealClock())
	hub.Stop()

	assert.NotPanics(t, func() {
		hub.Stop()
		hub.Broadcast(Message{Type: ws.TextMessage, Data: []byte("late")})
		hub.Unregister(uuid.Nil)
	})
	assert.Equal(t, 0, hub.ClientCount())
}

// --- keepalive ---

// nearDeadlineClock starts the fake clock so that a fresh read deadline expires
// two real seconds from now.
func nearDeadlineClock() *clockwork.FakeClock {
	return clockwork.NewFakeClockAt(time.Now().Add(-pongDeadline + 2*time.Second))
}

func TestClientWriter_SilentClientIsDropped(t *testing.T) {
	hub, m, dial := testRelayWithClock(t, nil, 0, nearDeadlineClock())

	dial()
	require.True(t, waitForClientCount(hub, 1))

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 4*time.Second, 20*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveConnections))
}

func TestClientWriter_PongExtendsReadDeadline(t *testing.T) {
	clock := nearDeadlineClock()
	hub, _, dial := testRelayWithClock(t, nil, 0, clock)

	conn := dial()
	pinged := make(chan struct{}, 1)
	conn.SetPingHandler(func(appData string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return conn.WriteControl(ws.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	require.True(t, waitForClientCount(hub, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	// Two intervals put the fake clock ahead of wall time, so the ping's write
	// deadline lies in the future.
	clock.Advance(2 * pingInterval)

	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping received")
	}

	time.Sleep(2500 * time.Millisecond)
	assert.Equal(t, 1, hub.ClientCount())
}

// --- fanout ---

type loopbackFanout struct {
	mu      sync.Mutex
	relay   *Relay
	fail    bool
	payload [][]byte
}

func (f *loopbackFanout) Publish(_ context.Context, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("bridge unavailable")
	}
	f.payload = append(f.payload, payload)
	go f.relay.Deliver(payload)
	return nil
}

func TestRelay_PublishesThroughFanout(t *testing.T) {
	fanout := &loopbackFanout{}
	hub, m, dial := testRelay(t, fanout, 0)
	fanout.relay = NewRelay(hub, nil, nil)

	conn := dial()
	require.True(t, waitForClientCount(hub, 1))

	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte("via bridge")))

	_, data := readMessage(t, conn)
	assert.Equal(t, "via bridge", data)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesRelayed.WithLabelValues("bridge")))

	fanout.mu.Lock()
	defer fanout.mu.Unlock()
	require.Len(t, fanout.payload, 1)
	assert.JSONEq(t, `{"t":1,"d":"dmlhIGJyaWRnZQ=="}`, string(fanout.payload[0]))
}

func TestRelay_FallsBackToLocalWhenFanoutFails(t *testing.T) {
	fanout := &loopbackFanout{fail: true}
	hub, m, dial := testRelay(t, fanout, 0)

	conn := dial()
	require.True(t, waitForClientCount(hub, 1))

	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte("local anyway")))

	_, data := readMessage(t, conn)
	assert.Equal(t, "local anyway", data)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesRelayed.WithLabelValues("fallback")))
}

func TestRelay_DeliverDropsMalformedPayload(t *testing.T) {
	hub, _, dial := testRelay(t, nil, 0)
	relay := NewRelay(hub, nil, nil)

	conn := dial()
	require.True(t, waitForClientCount(hub, 1))

	relay.Deliver([]byte("not json"))
	relay.Deliver([]byte(`{"t":1,"d":"b2s="}`))

	_, data := readMessage(t, conn)
	assert.Equal(t, "ok", data)
}
