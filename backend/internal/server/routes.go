package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/warpcall/backend/internal/config"
	"github.com/BioHazard786/warpcall/backend/internal/signaling"
	"github.com/BioHazard786/warpcall/internal/protocol"
)

// NewMux wires the relay's routes onto a fresh ServeMux.
func NewMux(hub *signaling.Hub, cfg *config.Config) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", ServeWs(hub, cfg))
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /stats", statsHandler(hub))
	return mux
}

func newUpgrader(allowed []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  16 * 1024, // 16 KB
		WriteBufferSize: 16 * 1024, // 16 KB
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			// Non-browser clients send no Origin.
			if origin == "" {
				return true
			}
			return slices.ContainsFunc(allowed, func(a string) bool {
				return strings.EqualFold(a, origin)
			})
		},
	}
}

// ServeWs returns an http.HandlerFunc that upgrades requests to websocket
// connections and hands them to the hub. The frame codec is chosen with the
// codec query parameter and defaults to JSON.
func ServeWs(hub *signaling.Hub, cfg *config.Config) http.HandlerFunc {
	upgrader := newUpgrader(cfg.AllowedOrigins)

	return func(w http.ResponseWriter, r *http.Request) {
		codec, err := protocol.CodecByName(r.URL.Query().Get("codec"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("failed to upgrade connection", "addr", r.RemoteAddr, "err", err)
			return
		}

		client := signaling.NewClient(hub, conn, codec, cfg.SendBuffer, cfg.ReadLimit)
		if !hub.RegisterClient(client) {
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
			conn.Close()
			return
		}

		// These goroutines own the connection's lifecycle from here on.
		go client.WritePump()
		go client.ReadPump()
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func statsHandler(hub *signaling.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := hub.Stats(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	}
}
