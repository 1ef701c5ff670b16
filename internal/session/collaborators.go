package session

import (
	"context"
	"encoding/json"

	"github.com/mossy-p/peerconnect/internal/models"
)

// Track is a local media track.
type Track interface {
	ID() string
	Kind() string // "audio" or "video"
	Enabled() bool
	SetEnabled(enabled bool)
	Stop()
}

const (
	KindAudio = "audio"
	KindVideo = "video"
)

// MediaSource produces the local tracks for a call.
type MediaSource interface {
	Acquire(ctx context.Context) ([]Track, error)
}

// RemoteTrack describes a track received from the peer.
type RemoteTrack struct {
	ID       string `json:"id"`
	StreamID string `json:"streamId"`
	Kind     string `json:"kind"`
}

// ConnectionState mirrors the peer connection and ICE connection state names.
type ConnectionState string

const (
	ConnectionNew          ConnectionState = "new"
	ConnectionChecking     ConnectionState = "checking"
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionConnected    ConnectionState = "connected"
	ConnectionCompleted    ConnectionState = "completed"
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionFailed       ConnectionState = "failed"
	ConnectionClosed       ConnectionState = "closed"
)

// PeerConnection is the negotiation surface of a WebRTC peer connection.
// Descriptions and candidates are opaque JSON blobs that travel inside
// signal frames untouched. Callbacks may fire on any goroutine.
type PeerConnection interface {
	AddTrack(track Track) error

	CreateOffer() (json.RawMessage, error)
	CreateAnswer() (json.RawMessage, error)
	SetLocalDescription(desc json.RawMessage) error
	SetRemoteDescription(desc json.RawMessage) error
	AddICECandidate(candidate json.RawMessage) error

	// RestartICE makes the next offer gather fresh credentials and fires
	// negotiation-needed.
	RestartICE() error

	// PendingLocalOffer reports whether a local offer awaits its answer.
	PendingLocalOffer() bool

	OnICECandidate(func(candidate json.RawMessage))
	OnTrack(func(track RemoteTrack))
	OnConnectionStateChange(func(state ConnectionState))
	OnICEConnectionStateChange(func(state ConnectionState))
	OnNegotiationNeeded(func())

	Close() error
}

type PeerFactory interface {
	NewPeerConnection() (PeerConnection, error)
}

// Transport is an open relay channel. Incoming is closed when the channel
// drops.
type Transport interface {
	Emit(event string, data any) error
	Incoming() <-chan models.Envelope
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context) (Transport, error) {
	return f(ctx)
}
