package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"pitchbook/internal/domain/session"
	"pitchbook/internal/groupchat"
)

const (
	// Keep-alive interval for idle streams; proxies drop silent
	// connections well before this doubles.
	heartbeatInterval = 15 * time.Second

	wsWriteTimeout = 10 * time.Second
)

// handleStream serves run progress as Server-Sent Events. The stream starts
// with a snapshot of the session, then forwards live events until a terminal
// event arrives or the client disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	sess, events, cancel, err := s.service.SubscribeSession(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	defer cancel()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	writeSSE(w, groupchat.Event{
		Type:      groupchat.EventStatus,
		Message:   fmt.Sprintf("Analysis for %s is %s", sess.Company, sess.Status),
		Timestamp: time.Now().UTC(),
	})
	flusher.Flush()

	// A session that already finished has no live events coming; close
	// the stream right after the snapshot.
	if sess.Status != session.StatusRunning {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-heartbeat.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()

		case e, open := <-events:
			if !open {
				return
			}
			writeSSE(w, e)
			flusher.Flush()
			if e.Terminal() {
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, e groupchat.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWebSocket serves the same event feed over a WebSocket for clients
// that keep a bidirectional connection open.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	sess, events, cancel, err := s.service.SubscribeSession(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Discard inbound frames but notice the close.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	snapshot := groupchat.Event{
		Type:      groupchat.EventStatus,
		Message:   fmt.Sprintf("Analysis for %s is %s", sess.Company, sess.Status),
		Timestamp: time.Now().UTC(),
	}
	if err := writeWS(conn, snapshot); err != nil {
		return
	}
	if sess.Status != session.StatusRunning {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-clientGone:
			return

		case <-heartbeat.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case e, open := <-events:
			if !open {
				return
			}
			if err := writeWS(conn, e); err != nil {
				return
			}
			if e.Terminal() {
				return
			}
		}
	}
}

func writeWS(conn *websocket.Conn, e groupchat.Event) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(e)
}
