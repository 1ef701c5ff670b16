// Package relay keeps room membership for live websocket sessions and forwards
// opaque signaling payloads between members of the same room.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/mossy-p/peerconnect/internal/logging"
	"github.com/mossy-p/peerconnect/internal/models"
	"github.com/mossy-p/peerconnect/internal/presence"
)

const presenceTimeout = 2 * time.Second

// Hub maps room ids to rooms. The hub lock only guards the map; each room
// serializes its own membership changes.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*room

	presence presence.Store
	log      *slog.Logger
}

func NewHub(store presence.Store, logger *slog.Logger) *Hub {
	if store == nil {
		store = presence.Noop{}
	}
	return &Hub{
		rooms:    make(map[string]*room),
		presence: store,
		log:      logger,
	}
}

func (h *Hub) getOrCreateRoom(roomID string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, exists := h.rooms[roomID]
	if !exists {
		r = newRoom(roomID)
		h.rooms[roomID] = r
		h.log.Info("created room", slog.String(logging.RoomID, roomID))
	}
	return r
}

func (h *Hub) lookup(roomID string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[roomID]
}

// dropRoom removes r from the map if it is still the registered room for its id.
func (h *Hub) dropRoom(r *room) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[r.id] == r {
		delete(h.rooms, r.id)
		h.log.Info("removed empty room", slog.String(logging.RoomID, r.id))
	}
}

// Join adds s to roomID and returns the member count including s. The joiner
// gets room-users, everyone else gets user-joined, both under the room lock.
func (h *Hub) Join(s *Session, roomID string) int {
	roomUsers := func(count int) []byte { return mustEncode(models.EventRoomUsers, count) }
	userJoined := mustEncode(models.EventUserJoined, s.ID)

	var count int
	for {
		r := h.getOrCreateRoom(roomID)

		r.mu.Lock()
		if r.closed {
			// Emptied and dropped between lookup and lock; retry on a fresh room.
			r.mu.Unlock()
			continue
		}
		r.members[s.ID] = s
		count = len(r.members)
		s.deliver(roomUsers(count))
		r.broadcastLocked(userJoined, s.ID, h.log)
		r.mu.Unlock()
		break
	}

	s.addRoom(roomID)
	h.log.Info("session joined room",
		slog.String(logging.SessionID, s.ID),
		slog.String(logging.RoomID, roomID),
		slog.Int("members", count),
	)

	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := h.presence.Join(ctx, roomID, s.ID); err != nil {
		h.log.Warn("presence join", slog.Any(logging.Error, err), slog.String(logging.RoomID, roomID))
	}

	return count
}

// Leave removes s from roomID, notifies the remaining members and drops the
// room when it empties. It reports whether s was a member.
func (h *Hub) Leave(s *Session, roomID string) bool {
	r := h.lookup(roomID)
	if r == nil {
		return false
	}

	r.mu.Lock()
	if _, ok := r.members[s.ID]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.members, s.ID)
	r.broadcastLocked(mustEncode(models.EventUserLeft, s.ID), s.ID, h.log)
	empty := len(r.members) == 0
	if empty {
		r.closed = true
	}
	r.mu.Unlock()

	if empty {
		h.dropRoom(r)
	}

	s.removeRoom(roomID)
	h.log.Info("session left room",
		slog.String(logging.SessionID, s.ID),
		slog.String(logging.RoomID, roomID),
	)

	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := h.presence.Leave(ctx, roomID, s.ID); err != nil {
		h.log.Warn("presence leave", slog.Any(logging.Error, err), slog.String(logging.RoomID, roomID))
	}

	return true
}

// Disconnect runs Leave for every room s is still in.
func (h *Hub) Disconnect(s *Session) {
	for _, roomID := range s.Rooms() {
		h.Leave(s, roomID)
	}
}

// Relay forwards event to every member of roomID except s and returns how
// many members it was queued for. Unknown rooms are a silent no-op.
func (h *Hub) Relay(s *Session, roomID, event string, data any) int {
	r := h.lookup(roomID)
	if r == nil {
		h.log.Debug("relay to unknown room",
			slog.String(logging.RoomID, roomID),
			slog.String(logging.Event, event),
		)
		return 0
	}

	frame, err := encode(event, data)
	if err != nil {
		h.log.Error("encode relay frame", slog.Any(logging.Error, err), slog.String(logging.Event, event))
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.broadcastLocked(frame, s.ID, h.log)
}

// MemberCount returns the live member count of roomID.
func (h *Hub) MemberCount(roomID string) int {
	r := h.lookup(roomID)
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Presence exposes the shared presence store for read-only queries.
func (h *Hub) Presence() presence.Store {
	return h.presence
}

func encode(event string, data any) ([]byte, error) {
	env, err := models.NewEnvelope(event, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// mustEncode is for payloads built from strings and ints only.
func mustEncode(event string, data any) []byte {
	frame, err := encode(event, data)
	if err != nil {
		panic(err)
	}
	return frame
}
