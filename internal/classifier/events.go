package classifier

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const eventWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	// The UI may be served from another origin during development
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleEvents pushes a view to the client after every state change
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, unsubscribe := s.controller.Subscribe()
	defer unsubscribe()

	s.watch()
	left := true
	defer func() {
		if s.unwatch() == 0 && left {
			slog.Debug("Last event subscriber left; releasing camera")
			s.controller.CancelCamera()
		}
	}()

	// Clients never send anything; reading only notices when they go away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	slog.Debug("Event subscriber connected", "remote", r.RemoteAddr)
	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				left = false
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(time.Second))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteJSON(Present(snap)); err != nil {
				slog.Debug("Event subscriber write failed", "error", err)
				return
			}
		case <-gone:
			slog.Debug("Event subscriber disconnected", "remote", r.RemoteAddr)
			return
		}
	}
}

func (s *Server) watch() {
	s.watchersMu.Lock()
	defer s.watchersMu.Unlock()
	s.watchers++
}

// unwatch returns the number of event streams still open
func (s *Server) unwatch() int {
	s.watchersMu.Lock()
	defer s.watchersMu.Unlock()
	s.watchers--
	return s.watchers
}
