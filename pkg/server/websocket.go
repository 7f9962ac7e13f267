package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/nstogner/autodev/pkg/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (s *Server) handleChatWebSocket(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !projectNameRE.MatchString(name) {
		http.Error(w, "Invalid project name", http.StatusBadRequest)
		return
	}
	if !s.projectExists(name) {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}

	// One live session per project: a new connection replaces any prior one.
	sess, err := s.registry.Create(name)
	if err != nil {
		slog.Error("Failed to create session", "project", name, "error", err)
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	// Tear down only our own session: if a newer connection replaced it,
	// the replacement must survive this handler's exit.
	defer s.registry.RemoveIf(name, sess)

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade websocket", "project", name, "error", err)
		return
	}
	defer ws.Close()

	if !s.stream(ws, sess.Start(r.Context())) {
		return
	}

	// Reader loop: each user message runs one loop pass, streamed back on
	// the same connection so writes never interleave.
	for {
		var msg struct {
			Content string `json:"content"`
		}
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				break
			}
			slog.Error("WebSocket read error", "project", name, "error", err)
			break
		}
		if msg.Content == "" {
			continue
		}
		if !s.stream(ws, sess.Send(r.Context(), msg.Content)) {
			return
		}
	}
}

// stream copies session chunks onto the socket. Returns false once the
// connection is unusable.
func (s *Server) stream(ws *websocket.Conn, chunks <-chan session.Chunk) bool {
	for c := range chunks {
		if err := ws.WriteJSON(c); err != nil {
			slog.Error("WebSocket write error", "error", err)
			return false
		}
	}
	return true
}
