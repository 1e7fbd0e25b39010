package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PubNubDevelopers/SBMM-Engine/internal/models"
	"github.com/PubNubDevelopers/SBMM-Engine/internal/service"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/transport"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeConfirmer struct {
	mu    sync.Mutex
	calls [][2]string
	err   error
}

func (f *fakeConfirmer) Confirm(ctx context.Context, matchID, playerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, [2]string{matchID, playerID})
	return f.err
}

func (f *fakeConfirmer) Calls() [][2]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][2]string(nil), f.calls...)
}

type fakeLatency struct {
	mu      sync.Mutex
	reports []service.LatencyReport
}

func (f *fakeLatency) Record(report service.LatencyReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, report)
}

func (f *fakeLatency) Reports() []service.LatencyReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]service.LatencyReport(nil), f.reports...)
}

type hubFixture struct {
	hub       *Hub
	broker    *transport.MemoryBroker
	confirmer *fakeConfirmer
	latency   *fakeLatency
	server    *httptest.Server
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()

	broker := transport.NewMemoryBroker(zap.NewNop())
	f := &hubFixture{
		broker:    broker,
		confirmer: &fakeConfirmer{},
		latency:   &fakeLatency{},
	}
	f.hub = NewHub(HubConfig{
		Transport: broker,
		Confirmer: f.confirmer,
		Latency:   f.latency,
		Logger:    zap.NewNop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	go f.hub.Run(ctx)

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		ServeWs(f.hub, w, r, q.Get("player"), q.Get("monitor") == "1")
	}))

	t.Cleanup(func() {
		f.server.Close()
		cancel()
		broker.Close()
	})
	return f
}

func (f *hubFixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func publish(t *testing.T, broker *transport.MemoryBroker, topic string, event models.Event) {
	t.Helper()

	data, err := event.Marshal()
	require.NoError(t, err)
	require.NoError(t, broker.Publish(context.Background(), topic, data))
}

func TestHub_ForwardsPlayerTopic(t *testing.T) {
	f := newHubFixture(t)
	conn := f.dial(t, "player=p1")

	require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	publish(t, f.broker, transport.PlayerTopic("p1"), models.Event{
		Type:    models.EventMatched,
		MatchID: "m1",
		Players: []string{"p1", "p2"},
	})
	// 다른 플레이어 이벤트는 전달되지 않는다
	publish(t, f.broker, transport.PlayerTopic("p2"), models.Event{Type: models.EventTimeout})

	msg := readMessage(t, conn)
	assert.Equal(t, string(models.EventMatched), msg["type"])
	payload, ok := msg["payload"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "m1", payload["matchId"])
}

func TestHub_MonitorFeed(t *testing.T) {
	f := newHubFixture(t)
	monitor := f.dial(t, "player=ops&monitor=1")
	player := f.dial(t, "player=p1")

	require.Eventually(t, func() bool { return f.hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	publish(t, f.broker, transport.MonitorTopic, models.Event{Type: models.EventTimeout, MatchID: "m9"})

	msg := readMessage(t, monitor)
	assert.Equal(t, string(models.EventTimeout), msg["type"])

	// 일반 플레이어 연결은 모니터 이벤트를 받지 않는다
	require.NoError(t, player.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := player.ReadMessage()
	assert.Error(t, err)
}

func TestClient_Frames(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		wantType string
	}{
		{name: "confirm acknowledged", frame: `{"type":"confirm","matchId":"m1"}`, wantType: FrameAck},
		{name: "unknown frame", frame: `{"type":"dance"}`, wantType: FrameError},
		{name: "malformed frame", frame: `not json`, wantType: FrameError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHubFixture(t)
			conn := f.dial(t, "player=p1")
			require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.frame)))

			msg := readMessage(t, conn)
			assert.Equal(t, tt.wantType, msg["type"])
		})
	}
}

func TestClient_ConfirmForwardsPlayer(t *testing.T) {
	f := newHubFixture(t)
	conn := f.dial(t, "player=p1")
	require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"confirm","matchId":"m1"}`)))
	readMessage(t, conn)

	assert.Equal(t, [][2]string{{"m1", "p1"}}, f.confirmer.Calls())
}

func TestClient_ConfirmRejected(t *testing.T) {
	f := newHubFixture(t)
	f.confirmer.err = service.ErrNotInMatch
	conn := f.dial(t, "player=p1")
	require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"confirm","matchId":"m1"}`)))

	msg := readMessage(t, conn)
	assert.Equal(t, FrameError, msg["type"])
	payload := msg["payload"].(map[string]interface{})
	assert.Equal(t, service.ErrNotInMatch.Error(), payload["error"])
}

func TestClient_LatencyReport(t *testing.T) {
	f := newHubFixture(t)
	conn := f.dial(t, "player=p1")
	require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"latency","latencyMap":{"us-east-1":42}}`)))

	require.Eventually(t, func() bool { return len(f.latency.Reports()) == 1 }, time.Second, 5*time.Millisecond)
	report := f.latency.Reports()[0]
	assert.Equal(t, "p1", report.PlayerID)
	assert.Equal(t, 42.0, report.LatencyMap["us-east-1"])
}

func TestHub_ReconnectReplacesClient(t *testing.T) {
	f := newHubFixture(t)
	first := f.dial(t, "player=p1")
	require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	second := f.dial(t, "player=p1")

	// 이전 연결은 서버가 닫는다
	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 1, f.hub.ClientCount())

	publish(t, f.broker, transport.PlayerTopic("p1"), models.Event{Type: models.EventJoining})
	msg := readMessage(t, second)
	assert.Equal(t, string(models.EventJoining), msg["type"])
}

func TestClient_ReplyAfterRelease(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(h *Hub, c *Client)
		delivered bool
	}{
		{
			name:      "registered",
			setup:     func(h *Hub, c *Client) { h.registerClient(context.Background(), c) },
			delivered: true,
		},
		{
			name:  "never registered",
			setup: func(h *Hub, c *Client) {},
		},
		{
			name: "unregistered",
			setup: func(h *Hub, c *Client) {
				h.registerClient(context.Background(), c)
				h.unregisterClient(c)
			},
		},
		{
			name: "replaced by reconnect",
			setup: func(h *Hub, c *Client) {
				h.registerClient(context.Background(), c)
				h.registerClient(context.Background(), NewClient(h, nil, c.playerID, false))
			},
		},
		{
			name: "hub shut down",
			setup: func(h *Hub, c *Client) {
				h.registerClient(context.Background(), c)
				h.closeAll()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := NewHub(HubConfig{Logger: zap.NewNop()})
			client := NewClient(hub, nil, "p1", false)
			tt.setup(hub, client)

			require.NotPanics(t, func() { client.handleFrame([]byte("{")) })

			if !tt.delivered {
				return
			}
			select {
			case msg := <-client.send:
				assert.Equal(t, FrameError, msg.Type)
			default:
				t.Fatal("reply was not queued")
			}
		})
	}
}
