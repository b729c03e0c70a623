package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"signal_bot/internal/state"
)

type received struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

func newServer(t *testing.T) (*state.Store, *Hub, *httptest.Server) {
	t.Helper()
	st := state.NewStore(zap.NewNop())
	hub := NewHub(st, time.Hour, zap.NewNop())
	r := mux.NewRouter()
	Routes(r, hub)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return st, hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn, want string) received {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var ev received
		require.NoError(t, sonic.Unmarshal(data, &ev))
		if ev.Event == want {
			return ev
		}
	}
}

func TestAPIState(t *testing.T) {
	st, _, srv := newServer(t)
	st.SetStatus("⚡ Scanning 5 markets...")
	st.Update(state.KeyBalance, 1378.23)

	resp, err := http.Get(srv.URL + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body map[string]any
	require.NoError(t, sonic.ConfigDefault.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "⚡ Scanning 5 markets...", body["status"])
	assert.Equal(t, 1378.23, body["balance"])
	assert.Contains(t, body, "_timestamp")
	assert.Contains(t, body, "metrics")
}

func TestMetricsEndpoint(t *testing.T) {
	_, _, srv := newServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWS_InitialSnapshotAndGetState(t *testing.T) {
	st, _, srv := newServer(t)
	st.SetStatus("Initializing")
	conn := dial(t, srv)

	first := readEvent(t, conn, EventStateUpdate)
	assert.Equal(t, "Initializing", first.Data["status"])

	st.SetStatus("🔥 ACTIVE")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"get_state"}`)))
	second := readEvent(t, conn, EventStateUpdate)
	assert.Equal(t, "🔥 ACTIVE", second.Data["status"])
}

func TestWS_PushesChangesAndLogs(t *testing.T) {
	st, hub, srv := newServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn := dial(t, srv)
	readEvent(t, conn, EventStateUpdate)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	st.Info("🎯 SIGNAL: BUY BTCPERP Score: 97 TP: 200%")
	ev := readEvent(t, conn, EventLog)
	assert.Equal(t, "🎯 SIGNAL: BUY BTCPERP Score: 97 TP: 200%", ev.Data["message"])
	assert.Equal(t, "INFO", ev.Data["level"])

	st.Update(state.KeyPnL, 12.5)
	upd := readEvent(t, conn, EventStateUpdate)
	assert.Contains(t, upd.Data, "pnl")
}
