package service

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"signal_bot/internal/state"
)

const (
	EventStateUpdate = "state_update"
	EventLog         = "log"
	EventGetState    = "get_state"

	clientBuffer = 16
	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

// Event — конверт, который уходит в сокет.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// LogEvent — запись журнала для клиента.
type LogEvent struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub раздаёт снапшоты состояния и строки журнала всем подключённым клиентам.
// Медленный клиент отключается, а не тормозит остальных.
type Hub struct {
	store    *state.Store
	interval time.Duration
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

func NewHub(store *state.Store, interval time.Duration, log *zap.Logger) *Hub {
	return &Hub{
		store:    store,
		interval: interval,
		log:      log.Named("dashboard"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Snapshot — состояние + _timestamp (unix, секунды).
func (h *Hub) Snapshot() map[string]any {
	snap := h.store.Snapshot()
	snap["_timestamp"] = float64(time.Now().UnixNano()) / 1e9
	return snap
}

func (h *Hub) encodeState() ([]byte, error) {
	return sonic.Marshal(Event{Event: EventStateUpdate, Data: h.Snapshot()})
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Run пушит state_update на каждое изменение (схлопнутое) и раз в interval,
// а строки журнала — событиями log.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-h.store.Changes():
			h.broadcastState()
		case <-ticker.C:
			h.broadcastState()
		case e := <-h.store.LogStream():
			b, err := sonic.Marshal(Event{Event: EventLog, Data: LogEvent{
				Time:    e.Time.Format("15:04:05"),
				Level:   e.Level.CapitalString(),
				Message: e.Message,
			}})
			if err != nil {
				h.log.Warn("[DASH] encode log", zap.Error(err))
				continue
			}
			h.broadcast(b)
		}
	}
}

func (h *Hub) broadcastState() {
	if h.Clients() == 0 {
		return
	}
	b, err := h.encodeState()
	if err != nil {
		h.log.Warn("[DASH] encode state", zap.Error(err))
		return
	}
	h.broadcast(b)
}

func (h *Hub) broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.dropLocked(c)
		}
	}
}

func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	h.dropLocked(c)
	h.mu.Unlock()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.dropLocked(c)
	}
}

// ServeWS — апгрейд до websocket. Сразу после подключения клиент получает снапшот.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("[DASH] upgrade", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	if b, err := h.encodeState(); err == nil {
		c.send <- b
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

type request struct {
	Event string `json:"event"`
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var req request
		if err := sonic.Unmarshal(data, &req); err != nil || req.Event != EventGetState {
			continue
		}
		b, err := h.encodeState()
		if err != nil {
			continue
		}
		h.mu.Lock()
		if _, ok := h.clients[c]; ok {
			select {
			case c.send <- b:
			default:
			}
		}
		h.mu.Unlock()
	}
}

func (h *Hub) writePump(c *client) {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
