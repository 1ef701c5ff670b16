package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mossy-p/peerconnect/internal/logging"
	"github.com/mossy-p/peerconnect/internal/relay"
)

// Handlers serves the relay's HTTP surface.
type Handlers struct {
	hub            *relay.Hub
	upgrader       websocket.Upgrader
	sendBufferSize int
	log            *slog.Logger
}

func New(hub *relay.Hub, sendBufferSize int, logger *slog.Logger) *Handlers {
	return &Handlers{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Origin checking is handled by middleware
				return true
			},
		},
		sendBufferSize: sendBufferSize,
		log:            logger,
	}
}

// HandleSignaling upgrades the request and runs a relay session on it. The
// session joins rooms through join-room frames.
func (h *Handlers) HandleSignaling(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("failed to upgrade connection", slog.Any(logging.Error, err))
		return
	}

	session := relay.NewSession(h.hub, conn, uuid.NewString(), h.sendBufferSize)
	h.log.Info("session connected",
		slog.String(logging.SessionID, session.ID),
		slog.String("remote_addr", conn.RemoteAddr().String()),
	)

	session.Greet()

	go session.WritePump()
	go session.ReadPump()
}
