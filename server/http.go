package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Reverse-Call-Center/voice-playbook/metrics"
	"github.com/Reverse-Call-Center/voice-playbook/session"
)

// NewHTTPServer exposes the operational surface: metrics, live call listing
// and the websocket monitor.
func NewHTTPServer(addr string, registry *session.Registry, hub *Hub, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/ws", hub.ServeWS)

	mux.HandleFunc("/calls", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(registry.Snapshot()); err != nil {
			logger.Error("encode call snapshot", "error", err)
		}
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
