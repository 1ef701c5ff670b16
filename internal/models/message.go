package models

import "encoding/json"

// Event names carried in Envelope.Event.
const (
	EventSession = "session"

	EventJoinRoom   = "join-room"
	EventRoomUsers  = "room-users"
	EventUserJoined = "user-joined"
	EventLeaveRoom  = "leave-room"
	EventUserLeft   = "user-left"

	EventSignal = "signal"

	EventSendMessage    = "send-message"
	EventReceiveMessage = "receive-message"

	EventSendReaction    = "send-reaction"
	EventReceiveReaction = "receive-reaction"

	EventCameraStatus       = "camera-status-change"
	EventRemoteCameraStatus = "remote-camera-status-change"
	EventMicStatus          = "mic-status-change"
	EventRemoteMicStatus    = "remote-mic-status-change"
)

// Envelope is the frame exchanged over the signaling websocket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an envelope for event.
func NewEnvelope(event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}

// SignalType represents the type of WebRTC negotiation payload
type SignalType string

const (
	SignalTypeOffer        SignalType = "offer"
	SignalTypeAnswer       SignalType = "answer"
	SignalTypeICECandidate SignalType = "ice-candidate"
)

// SignalMessage carries an opaque negotiation payload. The relay only sets From.
type SignalMessage struct {
	RoomID string          `json:"roomId"`
	Signal json.RawMessage `json:"signal"`
	Type   SignalType      `json:"type"`
	From   string          `json:"from,omitempty"`
}

// RoomPayload is the client→relay body of events scoped to a room whose
// remaining fields are forwarded untouched.
type RoomPayload struct {
	RoomID string `json:"roomId"`
}

type ChatMessage struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	SenderID  string `json:"senderId"`
	Timestamp int64  `json:"timestamp"`
}

type SendMessageRequest struct {
	RoomID  string          `json:"roomId"`
	Message json.RawMessage `json:"message"`
}

type ReactionEmoji string

const (
	ReactionClap     ReactionEmoji = "👏"
	ReactionThumbsUp ReactionEmoji = "👍"
	ReactionHeart    ReactionEmoji = "❤️"
	ReactionLaugh    ReactionEmoji = "😂"
	ReactionWow      ReactionEmoji = "😮"
	ReactionParty    ReactionEmoji = "🎉"
)

// ReactionEmojis lists the accepted reactions in display order.
var ReactionEmojis = []ReactionEmoji{
	ReactionClap, ReactionThumbsUp, ReactionHeart, ReactionLaugh, ReactionWow, ReactionParty,
}

func (e ReactionEmoji) Valid() bool {
	for _, known := range ReactionEmojis {
		if e == known {
			return true
		}
	}
	return false
}

type ReactionEvent struct {
	ID        string        `json:"id"`
	Emoji     ReactionEmoji `json:"emoji"`
	SenderID  string        `json:"senderId"`
	Timestamp int64         `json:"timestamp"`
}

type SendReactionRequest struct {
	RoomID   string          `json:"roomId"`
	Reaction json.RawMessage `json:"reaction"`
}

type CameraStatus struct {
	RoomID    string `json:"roomId,omitempty"`
	IsEnabled bool   `json:"isEnabled"`
}

type MicStatus struct {
	RoomID  string `json:"roomId,omitempty"`
	IsMuted bool   `json:"isMuted"`
}
