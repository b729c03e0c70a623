package service

import (
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/gorilla/mux"

	"signal_bot/internal/metrics"
)

// Routes: /api/state, /ws, /metrics.
func Routes(r *mux.Router, h *Hub) {
	r.HandleFunc("/api/state", h.handleState).Methods(http.MethodGet)
	r.HandleFunc("/ws", h.ServeWS)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
}

func (h *Hub) handleState(w http.ResponseWriter, _ *http.Request) {
	b, err := sonic.Marshal(h.Snapshot())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}
