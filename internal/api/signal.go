package api

import (
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-echo/internal/chat"
	"github.com/npezzotti/go-echo/internal/signal"
	"github.com/npezzotti/go-echo/pkg/types"
)

// serveSignal upgrades the request and attaches the connection to the
// signaling hub. Peers are a best-effort view and never touch presence.
func (s *EchoApp) serveSignal(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code, err := chat.NormalizeRoomCode(q.Get("roomCode"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	userId := q.Get("userId")
	if userId == "" {
		errResp := NewValidationError(&chat.ValidationError{Field: "userId", Message: "is required"})
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	peer := signal.NewPeer(conn, s.hub, s.log, code, userId, q.Get("username"))
	go peer.Serve()
}

func (s *EchoApp) signalPeers(w http.ResponseWriter, r *http.Request) {
	code, err := chat.NormalizeRoomCode(r.URL.Query().Get("roomCode"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, types.PeersResponse{
		RoomCode:    code,
		ActiveUsers: s.hub.Peers(code),
	})
}
