package relay

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mossy-p/peerconnect/internal/logging"
	"github.com/mossy-p/peerconnect/internal/models"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size accepted from a client. SDP blobs fit comfortably.
	maxMessageSize = 64 * 1024
)

// Session is one websocket connection to the relay.
type Session struct {
	ID string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	rooms map[string]struct{}

	log *slog.Logger
}

// NewSession wraps conn. bufferSize bounds the outbound queue.
func NewSession(hub *Hub, conn *websocket.Conn, id string, bufferSize int) *Session {
	return &Session{
		ID:    id,
		hub:   hub,
		conn:  conn,
		send:  make(chan []byte, bufferSize),
		done:  make(chan struct{}),
		rooms: make(map[string]struct{}),
		log:   hub.log.With(slog.String(logging.SessionID, id)),
	}
}

// Greet tells the client its own session id.
func (s *Session) Greet() {
	s.deliver(mustEncode(models.EventSession, s.ID))
}

// deliver queues frame without blocking. Frames for closed sessions or full
// queues are dropped.
func (s *Session) deliver(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Session) addRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[roomID] = struct{}{}
}

func (s *Session) removeRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
}

// Rooms returns the rooms the session is currently in, sorted.
func (s *Session) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ReadPump reads frames until the connection fails, then removes the session
// from every room it joined.
func (s *Session) ReadPump() {
	defer func() {
		s.hub.Disconnect(s)
		s.close()
		s.conn.Close()
		s.log.Info("session disconnected")
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("websocket read", slog.Any(logging.Error, err))
			}
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			s.log.Warn("failed to parse frame", slog.Any(logging.Error, err))
			continue
		}

		s.handle(env)
	}
}

// WritePump drains the send queue and keeps the connection alive with pings.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.log.Warn("failed to write frame", slog.Any(logging.Error, err))
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// handle routes one client frame. Payloads are forwarded without validation;
// only the fields needed for routing are decoded.
func (s *Session) handle(env models.Envelope) {
	switch env.Event {
	case models.EventJoinRoom:
		roomID, ok := s.decodeRoomID(env)
		if !ok {
			return
		}
		s.hub.Join(s, roomID)

	case models.EventLeaveRoom:
		roomID, ok := s.decodeRoomID(env)
		if !ok {
			return
		}
		s.hub.Leave(s, roomID)

	case models.EventSignal:
		var msg models.SignalMessage
		if !s.decode(env, &msg) {
			return
		}
		msg.From = s.ID
		n := s.hub.Relay(s, msg.RoomID, models.EventSignal, msg)
		s.log.Debug("signal relay",
			slog.String("type", string(msg.Type)),
			slog.String(logging.RoomID, msg.RoomID),
			slog.Int("recipients", n),
		)

	case models.EventSendMessage:
		var req models.SendMessageRequest
		if !s.decode(env, &req) {
			return
		}
		s.hub.Relay(s, req.RoomID, models.EventReceiveMessage, req.Message)

	case models.EventSendReaction:
		var req models.SendReactionRequest
		if !s.decode(env, &req) {
			return
		}
		s.hub.Relay(s, req.RoomID, models.EventReceiveReaction, req.Reaction)

	case models.EventCameraStatus:
		s.forwardStatus(env, models.EventRemoteCameraStatus)

	case models.EventMicStatus:
		s.forwardStatus(env, models.EventRemoteMicStatus)

	default:
		s.log.Warn("unknown event", slog.String(logging.Event, env.Event))
	}
}

// forwardStatus relays a status payload to the rest of the room with its
// roomId stripped. Every other field passes through untouched.
func (s *Session) forwardStatus(env models.Envelope, event string) {
	var route models.RoomPayload
	if !s.decode(env, &route) {
		return
	}
	var fields map[string]json.RawMessage
	if !s.decode(env, &fields) {
		return
	}
	delete(fields, "roomId")
	s.hub.Relay(s, route.RoomID, event, fields)
}

func (s *Session) decode(env models.Envelope, v any) bool {
	if err := json.Unmarshal(env.Data, v); err != nil {
		s.log.Warn("failed to parse payload",
			slog.String(logging.Event, env.Event),
			slog.Any(logging.Error, err),
		)
		return false
	}
	return true
}

func (s *Session) decodeRoomID(env models.Envelope) (string, bool) {
	var roomID string
	if !s.decode(env, &roomID) {
		return "", false
	}
	if roomID == "" {
		s.log.Warn("empty room id", slog.String(logging.Event, env.Event))
		return "", false
	}
	return roomID, true
}
