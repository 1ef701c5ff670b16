package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/peerconnect/internal/logging"
	"github.com/mossy-p/peerconnect/internal/models"
)

// GetRoom reports live and mirrored occupancy for a room code (public).
func (h *Handlers) GetRoom(c *gin.Context) {
	roomID := c.Param("roomId")

	info := models.RoomInfo{
		RoomID:      roomID,
		MemberCount: h.hub.MemberCount(roomID),
	}

	count, err := h.hub.Presence().Count(c.Request.Context(), roomID)
	if err != nil {
		h.log.Warn("presence count", slog.Any(logging.Error, err), slog.String(logging.RoomID, roomID))
	}
	info.PresenceCount = count

	if info.MemberCount == 0 && info.PresenceCount == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}

	c.JSON(http.StatusOK, info)
}

// Health answers liveness probes with an empty 200.
func (h *Handlers) Health(c *gin.Context) {
	c.Status(http.StatusOK)
}
