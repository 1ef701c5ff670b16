package relay

import (
	"log/slog"
	"sync"

	"github.com/mossy-p/peerconnect/internal/logging"
)

// room is the membership set of one room code. All mutation and broadcast
// happens under mu so a broadcast never reaches a member that already left.
type room struct {
	id      string
	mu      sync.RWMutex
	members map[string]*Session
	// closed is set once the room emptied and was dropped from the hub.
	closed bool
}

func newRoom(id string) *room {
	return &room{
		id:      id,
		members: make(map[string]*Session),
	}
}

// broadcastLocked sends frame to every member except excludeID. Caller holds mu.
func (r *room) broadcastLocked(frame []byte, excludeID string, log *slog.Logger) int {
	delivered := 0
	for id, member := range r.members {
		if id == excludeID {
			continue
		}
		if member.deliver(frame) {
			delivered++
			continue
		}
		log.Warn("dropped frame for member",
			slog.String(logging.RoomID, r.id),
			slog.String(logging.SessionID, id),
		)
	}
	return delivered
}
