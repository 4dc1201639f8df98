package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// callerUserID resolves whose notifications are being read. With auth
// disabled the user is taken from the query string instead of a token.
func (s *Server) callerUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	token, ok := s.subjectOrFail(w, r)
	if !ok {
		return "", false
	}
	if token != nil {
		return token.UserID, true
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		s.error(w, r, http.StatusBadRequest, "user_id is required")
		return "", false
	}
	return userID, true
}

// handleNotifications lists the caller's unexpired notifications, newest
// first.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.error(w, r, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	userID, ok := s.callerUserID(w, r)
	if !ok {
		return
	}

	notifications, err := s.notify.List(r.Context(), userID)
	if err != nil {
		s.error(w, r, http.StatusInternalServerError, "Internal error")
		return
	}
	s.writeJSON(w, http.StatusOK, notifications)
}

// handleNotificationStream pushes the caller's notification events over
// server-sent events. New subscribers first receive the hub's recent buffer
// so a reconnect does not miss events published in between.
func (s *Server) handleNotificationStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.error(w, r, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	userID, ok := s.callerUserID(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.error(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sub, backlog := s.notify.Hub().Subscribe()
	defer sub.Close()

	for _, event := range backlog {
		if event.UserID == userID {
			writeSSE(w, event.Event, event)
		}
	}
	flusher.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case event, open := <-sub.Events():
			if !open {
				return
			}
			if event.UserID != userID {
				continue
			}
			writeSSE(w, event.Event, event)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}
