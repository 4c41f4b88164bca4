package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// StartOpsHTTP starts the ops HTTP endpoint: Prometheus-style /metrics,
// /healthz, and a /debug/rooms snapshot. It runs in the background and shuts
// down when the server context is cancelled. Empty OpsAddr disables it.
func (s *Server) StartOpsHTTP() {
	addr := s.cfg.OpsAddr
	if addr == "" {
		return
	}

	r := mux.NewRouter()
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/debug/rooms", s.handleDebugRooms).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("ops HTTP listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("ops HTTP error", "err", err)
		}
	}()

	go func() {
		<-s.ctx.Done()
		_ = srv.Close()
	}()
}

// handleMetrics writes all counters in Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := s.metrics
	uptime := time.Since(m.startTime).Seconds()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Write errors to the ResponseWriter are non-actionable; suppress errcheck.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}

	_, _ = fmt.Fprintf(w, "# HELP chatroom_uptime_seconds Server uptime in seconds.\n")
	_, _ = fmt.Fprintf(w, "# TYPE chatroom_uptime_seconds gauge\n")
	_, _ = fmt.Fprintf(w, "chatroom_uptime_seconds %f\n", uptime)

	write("chatroom_connections_active", "Current active connections.", "gauge",
		m.ActiveConnections.Load())
	write("chatroom_connections_total", "Lifetime connections accepted.", "counter",
		m.TotalConnections.Load())
	write("chatroom_login_success_total", "Successful logins.", "counter",
		m.LoginSuccess.Load())
	write("chatroom_login_failed_total", "Rejected logins.", "counter",
		m.LoginFailed.Load())
	write("chatroom_messages_total", "Chat messages accepted.", "counter",
		m.MessagesRelayed.Load())
	write("chatroom_pushes_sent_total", "Pushes acknowledged by peers.", "counter",
		m.PushesSent.Load())
	write("chatroom_pushes_dropped_total", "Pushes skipped or failed.", "counter",
		m.PushesDropped.Load())
	write("chatroom_kickouts_total", "Disconnect cleanups run.", "counter",
		m.Kickouts.Load())
}

// roomDebug is one row of the /debug/rooms snapshot.
type roomDebug struct {
	RoomID   int64    `json:"room_id"`
	Members  []string `json:"members"`
	Messages int      `json:"messages"`
}

func (s *Server) handleDebugRooms(w http.ResponseWriter, _ *http.Request) {
	ids := s.rooms.RoomIDs()
	rooms := make([]roomDebug, 0, len(ids))
	for _, id := range ids {
		members := s.rooms.Members(id)
		names := make([]string, len(members))
		for i, member := range members {
			names[i] = member.Name
		}
		rooms = append(rooms, roomDebug{
			RoomID:   id,
			Members:  names,
			Messages: s.messages.Count(id),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rooms); err != nil {
		slog.Error("ops: encode rooms", "err", err)
	}
}
