// Package peer adapts pion peer connections to the session orchestrator.
package peer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/mossy-p/peerconnect/internal/logging"
	"github.com/mossy-p/peerconnect/internal/session"
)

// ErrUnsupportedTrack is returned by AddTrack for tracks that carry no pion
// local track.
var ErrUnsupportedTrack = errors.New("track has no pion local track")

// LocalTrack is implemented by session tracks backed by pion.
type LocalTrack interface {
	Local() webrtc.TrackLocal
}

// Factory creates peer connections sharing one media engine.
type Factory struct {
	api    *webrtc.API
	config webrtc.Configuration
	log    *slog.Logger
}

// NewFactory registers the default codecs and uses stunServers for ICE.
func NewFactory(stunServers []string, logger *slog.Logger) (*Factory, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	config := webrtc.Configuration{}
	if len(stunServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: stunServers}}
	}

	if logger == nil {
		logger = slog.Default()
	}

	settings := webrtc.SettingEngine{LoggerFactory: slogFactory{log: logger}}

	return &Factory{
		api:    webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithSettingEngine(settings)),
		config: config,
		log:    logger,
	}, nil
}

func (f *Factory) NewPeerConnection() (session.PeerConnection, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}
	return &Conn{pc: pc, log: f.log}, nil
}

// Conn is a session.PeerConnection over a pion peer connection.
type Conn struct {
	pc  *webrtc.PeerConnection
	log *slog.Logger

	mu                  sync.Mutex
	iceRestart          bool
	closed              bool
	onNegotiationNeeded func()
}

func (c *Conn) AddTrack(track session.Track) error {
	lt, ok := track.(LocalTrack)
	if !ok {
		return ErrUnsupportedTrack
	}

	sender, err := c.pc.AddTrack(lt.Local())
	if err != nil {
		return err
	}

	// Read incoming RTCP packets so interceptors keep working.
	go func() {
		rtcpBuf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(rtcpBuf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (c *Conn) CreateOffer() (json.RawMessage, error) {
	c.mu.Lock()
	var opts *webrtc.OfferOptions
	if c.iceRestart {
		opts = &webrtc.OfferOptions{ICERestart: true}
		c.iceRestart = false
	}
	c.mu.Unlock()

	offer, err := c.pc.CreateOffer(opts)
	if err != nil {
		return nil, err
	}
	return json.Marshal(offer)
}

func (c *Conn) CreateAnswer() (json.RawMessage, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	return json.Marshal(answer)
}

func (c *Conn) SetLocalDescription(desc json.RawMessage) error {
	var sd webrtc.SessionDescription
	if err := json.Unmarshal(desc, &sd); err != nil {
		return fmt.Errorf("decode description: %w", err)
	}
	return c.pc.SetLocalDescription(sd)
}

func (c *Conn) SetRemoteDescription(desc json.RawMessage) error {
	var sd webrtc.SessionDescription
	if err := json.Unmarshal(desc, &sd); err != nil {
		return fmt.Errorf("decode description: %w", err)
	}
	return c.pc.SetRemoteDescription(sd)
}

func (c *Conn) AddICECandidate(candidate json.RawMessage) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(candidate, &init); err != nil {
		return fmt.Errorf("decode candidate: %w", err)
	}
	return c.pc.AddICECandidate(init)
}

// RestartICE flags the next offer as an ICE restart and fires
// negotiation-needed, since pion has no restartIce of its own.
func (c *Conn) RestartICE() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return webrtc.ErrConnectionClosed
	}
	c.iceRestart = true
	fn := c.onNegotiationNeeded
	c.mu.Unlock()

	if fn != nil {
		go fn()
	}
	return nil
}

func (c *Conn) PendingLocalOffer() bool {
	return c.pc.SignalingState() == webrtc.SignalingStateHaveLocalOffer
}

func (c *Conn) OnICECandidate(fn func(json.RawMessage)) {
	c.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		// nil marks the end of gathering.
		if candidate == nil {
			return
		}
		raw, err := json.Marshal(candidate.ToJSON())
		if err != nil {
			c.log.Warn("encode ICE candidate", slog.Any(logging.Error, err))
			return
		}
		fn(raw)
	})
}

func (c *Conn) OnTrack(fn func(session.RemoteTrack)) {
	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		fn(session.RemoteTrack{
			ID:       track.ID(),
			StreamID: track.StreamID(),
			Kind:     track.Kind().String(),
		})

		// Nothing renders remote media; drain RTP so the receiver keeps flowing.
		go func() {
			for {
				if _, _, err := track.ReadRTP(); err != nil {
					return
				}
			}
		}()
	})
}

func (c *Conn) OnConnectionStateChange(fn func(session.ConnectionState)) {
	c.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		fn(session.ConnectionState(state.String()))
	})
}

func (c *Conn) OnICEConnectionStateChange(fn func(session.ConnectionState)) {
	c.pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		fn(session.ConnectionState(state.String()))
	})
}

func (c *Conn) OnNegotiationNeeded(fn func()) {
	c.mu.Lock()
	c.onNegotiationNeeded = fn
	c.mu.Unlock()

	c.pc.OnNegotiationNeeded(fn)
}

func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	return c.pc.Close()
}
