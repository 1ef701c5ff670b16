package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mossy-p/peerconnect/internal/logging"
	"github.com/mossy-p/peerconnect/internal/models"
)

// newPeer creates a peer connection for cs, wires its callbacks to the loop
// and attaches the local tracks.
func (o *Orchestrator) newPeer(cs *callSession) error {
	pc, err := o.opts.Peers.NewPeerConnection()
	if err != nil {
		return err
	}

	pc.OnICECandidate(func(candidate json.RawMessage) {
		o.post(func() {
			if !o.peerCurrent(cs, pc) {
				return
			}
			if err := o.sendSignal(cs, models.SignalTypeICECandidate, candidate); err != nil {
				cs.log.Warn("failed to send ICE candidate", slog.Any(logging.Error, err))
			}
		})
	})
	pc.OnTrack(func(track RemoteTrack) {
		o.post(func() {
			if !o.peerCurrent(cs, pc) {
				return
			}
			cs.log.Info("remote track received",
				slog.String("kind", track.Kind),
				slog.String("track_id", track.ID),
			)
			cs.remoteTracks = append(cs.remoteTracks, track)
			o.touch()
		})
	})
	pc.OnConnectionStateChange(func(state ConnectionState) {
		o.post(func() { o.connectionStateChanged(cs, pc, state) })
	})
	pc.OnICEConnectionStateChange(func(state ConnectionState) {
		o.post(func() { o.iceStateChanged(cs, pc, state) })
	})
	pc.OnNegotiationNeeded(func() {
		o.post(func() { o.negotiationNeeded(cs, pc) })
	})

	for _, t := range cs.tracks {
		if err := pc.AddTrack(t); err != nil {
			pc.Close()
			return fmt.Errorf("add %s track: %w", t.Kind(), err)
		}
	}

	cs.pc = pc
	cs.negotiated = false
	cs.remoteTracks = nil
	o.touch()
	return nil
}

func (o *Orchestrator) peerCurrent(cs *callSession, pc PeerConnection) bool {
	return o.cs == cs && cs.pc == pc
}

// closePeer closes and forgets the current peer connection.
func (o *Orchestrator) closePeer(cs *callSession) {
	if cs.pc == nil {
		return
	}
	if err := cs.pc.Close(); err != nil {
		cs.log.Warn("close peer connection", slog.Any(logging.Error, err))
	}
	cs.pc = nil
	cs.negotiated = false
	cs.remoteTracks = nil
	cs.isConnected = false
	o.touch()
}

func (o *Orchestrator) stopOfferTimer(cs *callSession) {
	if cs.offerTimer != nil {
		cs.offerTimer.Stop()
		cs.offerTimer = nil
	}
}

func (o *Orchestrator) sendSignal(cs *callSession, typ models.SignalType, payload json.RawMessage) error {
	if cs.transport == nil {
		return ErrNotInRoom
	}
	return cs.transport.Emit(models.EventSignal, models.SignalMessage{
		RoomID: cs.roomID,
		Signal: payload,
		Type:   typ,
	})
}

// makeOffer sends a fresh offer on the current peer connection, creating one
// if the previous peer left, then re-broadcasts the local flags.
func (o *Orchestrator) makeOffer(cs *callSession) error {
	if cs.pc == nil {
		if err := o.newPeer(cs); err != nil {
			return fmt.Errorf("create peer connection: %w", err)
		}
	}
	o.stopOfferTimer(cs)
	o.setState(StateOffering)

	pc := cs.pc
	offer, err := pc.CreateOffer()
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local offer: %w", err)
	}
	if err := o.sendSignal(cs, models.SignalTypeOffer, offer); err != nil {
		return &TransportError{Op: "send offer", Err: err}
	}
	cs.log.Info("offer sent")

	o.broadcastStatus(cs)
	return nil
}

func (o *Orchestrator) handleRoomUsers(cs *callSession, count int) {
	cs.log.Info("room users", slog.Int("count", count))
	if count <= 1 {
		return
	}

	o.stopOfferTimer(cs)
	var timer *time.Timer
	timer = time.AfterFunc(o.opts.OfferDelay, func() {
		o.post(func() { o.delayedOffer(cs, timer) })
	})
	cs.offerTimer = timer
}

// delayedOffer fires OfferDelay after room-users. It only offers if nothing
// has started negotiating in the meantime.
func (o *Orchestrator) delayedOffer(cs *callSession, timer *time.Timer) {
	if o.cs != cs || cs.offerTimer != timer {
		return
	}
	cs.offerTimer = nil

	if o.state != StateAwaitingRoom {
		cs.log.Debug("skipping initial offer", slog.String(logging.State, o.state.String()))
		return
	}
	if err := o.makeOffer(cs); err != nil {
		cs.log.Error("failed to create initial offer", slog.Any(logging.Error, err))
	}
}

func (o *Orchestrator) handleUserJoined(cs *callSession, peerID string) {
	cs.log.Info("peer joined, creating offer", slog.String(logging.PeerID, peerID))
	cs.peerLeft = false
	o.touch()

	if err := o.makeOffer(cs); err != nil {
		cs.log.Error("failed to create offer", slog.Any(logging.Error, err))
		o.broadcastStatus(cs)
	}
}

// handleUserLeft drops everything tied to the departed peer. The relay
// channel and local media stay up so a new peer can join.
func (o *Orchestrator) handleUserLeft(cs *callSession, peerID string) {
	cs.log.Info("peer left", slog.String(logging.PeerID, peerID))

	o.stopOfferTimer(cs)
	o.closePeer(cs)

	cs.peerLeft = true
	cs.remoteVideoEnabled = true
	cs.remoteMicMuted = false
	o.setState(StatePeerLeft)
	o.touch()
}

func (o *Orchestrator) handleSignal(cs *callSession, msg models.SignalMessage) {
	cs.log.Debug("signal received",
		slog.String("type", string(msg.Type)),
		slog.String(logging.PeerID, msg.From),
	)

	switch msg.Type {
	case models.SignalTypeOffer:
		o.handleOffer(cs, msg)
	case models.SignalTypeAnswer:
		o.handleAnswer(cs, msg)
	case models.SignalTypeICECandidate:
		o.handleCandidate(cs, msg)
	default:
		cs.log.Warn("unknown signal type", slog.String("type", string(msg.Type)))
	}
}

// handleOffer answers a remote offer. When both sides offered at once the
// side with the smaller session id keeps its own offer and ignores this one;
// the other side throws its offer away with its peer connection.
func (o *Orchestrator) handleOffer(cs *callSession, msg models.SignalMessage) {
	if cs.pc != nil && cs.pc.PendingLocalOffer() {
		if cs.selfID < msg.From {
			cs.log.Info("offer collision, keeping local offer", slog.String(logging.PeerID, msg.From))
			return
		}
		cs.log.Info("offer collision, accepting remote offer", slog.String(logging.PeerID, msg.From))
		o.closePeer(cs)
	}
	if cs.pc == nil {
		if err := o.newPeer(cs); err != nil {
			cs.log.Error("failed to create peer connection", slog.Any(logging.Error, err))
			return
		}
	}

	o.stopOfferTimer(cs)
	cs.peerLeft = false
	o.setState(StateAnswering)

	pc := cs.pc
	if err := pc.SetRemoteDescription(msg.Signal); err != nil {
		o.signalFailed(cs, msg.Type, err)
		return
	}
	answer, err := pc.CreateAnswer()
	if err != nil {
		o.signalFailed(cs, msg.Type, fmt.Errorf("create answer: %w", err))
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		o.signalFailed(cs, msg.Type, fmt.Errorf("set local answer: %w", err))
		return
	}
	if err := o.sendSignal(cs, models.SignalTypeAnswer, answer); err != nil {
		cs.log.Error("failed to send answer", slog.Any(logging.Error, &TransportError{Op: "send answer", Err: err}))
		return
	}
	cs.log.Info("answer sent")

	cs.negotiated = true
	if cs.isConnected {
		o.setState(StateConnected)
	}
}

func (o *Orchestrator) handleAnswer(cs *callSession, msg models.SignalMessage) {
	if cs.pc == nil {
		cs.log.Debug("ignoring answer without peer connection")
		return
	}
	if err := cs.pc.SetRemoteDescription(msg.Signal); err != nil {
		o.signalFailed(cs, msg.Type, err)
		return
	}

	cs.negotiated = true
	if cs.isConnected {
		o.setState(StateConnected)
	}
}

func (o *Orchestrator) handleCandidate(cs *callSession, msg models.SignalMessage) {
	if cs.pc == nil {
		cs.log.Debug("ignoring ICE candidate without peer connection")
		return
	}
	if err := cs.pc.AddICECandidate(msg.Signal); err != nil {
		o.signalFailed(cs, msg.Type, err)
	}
}

func (o *Orchestrator) signalFailed(cs *callSession, typ models.SignalType, err error) {
	cs.log.Warn("failed to apply signal", slog.Any(logging.Error, &SignalApplicationError{Type: typ, Err: err}))
}

func (o *Orchestrator) connectionStateChanged(cs *callSession, pc PeerConnection, state ConnectionState) {
	if !o.peerCurrent(cs, pc) {
		return
	}
	cs.log.Info("connection state changed", slog.String(logging.State, string(state)))

	switch state {
	case ConnectionConnected:
		cs.isConnected = true
		cs.peerLeft = false
		o.setState(StateConnected)
	case ConnectionDisconnected, ConnectionFailed:
		cs.isConnected = false
		if o.state.negotiating() {
			o.setState(StateReconnecting)
		}
	case ConnectionClosed:
		cs.isConnected = false
	}
	o.touch()
}

func (o *Orchestrator) iceStateChanged(cs *callSession, pc PeerConnection, state ConnectionState) {
	if !o.peerCurrent(cs, pc) {
		return
	}
	cs.log.Debug("ICE connection state", slog.String(logging.State, string(state)))

	if state == ConnectionFailed {
		cs.log.Warn("ICE connection failed, attempting to restart")
		if err := pc.RestartICE(); err != nil {
			cs.log.Error("ICE restart", slog.Any(logging.Error, err))
		}
	}
}

// negotiationNeeded re-offers on a pair that already completed one exchange.
// The first exchange is driven by room-users and user-joined instead.
func (o *Orchestrator) negotiationNeeded(cs *callSession, pc PeerConnection) {
	if !o.peerCurrent(cs, pc) {
		return
	}
	if !cs.negotiated {
		cs.log.Debug("negotiation needed before first exchange, ignoring")
		return
	}
	if pc.PendingLocalOffer() {
		return
	}
	if err := o.makeOffer(cs); err != nil {
		cs.log.Error("failed to renegotiate", slog.Any(logging.Error, err))
	}
}
