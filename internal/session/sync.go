package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mossy-p/peerconnect/internal/logging"
	"github.com/mossy-p/peerconnect/internal/models"
)

// SendMessage echoes a chat message into the local log and posts it to the
// room. Blank content is ignored and returns a zero message. If the relay
// refuses the frame the message stays in the log and a *TransportError is
// returned with it.
func (o *Orchestrator) SendMessage(content string) (models.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.ChatMessage{}, nil
	}

	var msg models.ChatMessage
	err := o.do(func() error {
		cs := o.cs
		if cs == nil || cs.transport == nil {
			return ErrNotInRoom
		}

		msg = models.ChatMessage{
			ID:        uuid.NewString(),
			Content:   content,
			SenderID:  cs.selfID,
			Timestamp: time.Now().UnixMilli(),
		}
		raw, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encode message: %w", err)
		}

		cs.messages, _ = mergeMessage(cs.messages, msg)
		o.touch()

		if err := cs.transport.Emit(models.EventSendMessage, models.SendMessageRequest{RoomID: cs.roomID, Message: raw}); err != nil {
			return &TransportError{Op: "send message", Err: err}
		}
		return nil
	})
	return msg, err
}

func (o *Orchestrator) receiveMessage(cs *callSession, msg models.ChatMessage) {
	if msg.ID == "" {
		cs.log.Warn("dropping chat message without id")
		return
	}

	var added bool
	cs.messages, added = mergeMessage(cs.messages, msg)
	if !added {
		cs.log.Debug("duplicate chat message", slog.String("message_id", msg.ID))
		return
	}
	o.touch()
}

// SendReaction shows emoji locally and sends it to the peer. Both copies
// disappear after the reaction TTL.
func (o *Orchestrator) SendReaction(emoji models.ReactionEmoji) (models.ReactionEvent, error) {
	if !emoji.Valid() {
		return models.ReactionEvent{}, ErrUnknownEmoji
	}

	var r models.ReactionEvent
	err := o.do(func() error {
		cs := o.cs
		if cs == nil || cs.transport == nil {
			return ErrNotInRoom
		}

		r = models.ReactionEvent{
			ID:        uuid.NewString(),
			Emoji:     emoji,
			SenderID:  cs.selfID,
			Timestamp: time.Now().UnixMilli(),
		}
		raw, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode reaction: %w", err)
		}
		if err := cs.transport.Emit(models.EventSendReaction, models.SendReactionRequest{RoomID: cs.roomID, Reaction: raw}); err != nil {
			return &TransportError{Op: "send reaction", Err: err}
		}

		o.addReaction(cs, r)
		return nil
	})
	if err != nil {
		return models.ReactionEvent{}, err
	}
	return r, nil
}

func (o *Orchestrator) receiveReaction(cs *callSession, r models.ReactionEvent) {
	if r.ID == "" || !r.Emoji.Valid() {
		cs.log.Warn("dropping invalid reaction", slog.String("emoji", string(r.Emoji)))
		return
	}
	o.addReaction(cs, r)
}

func (o *Orchestrator) addReaction(cs *callSession, r models.ReactionEvent) {
	id := r.ID
	added := cs.reactions.add(r, o.opts.ReactionTTL, func() {
		o.post(func() { o.expireReaction(cs, id) })
	})
	if added {
		o.touch()
	}
}

func (o *Orchestrator) expireReaction(cs *callSession, id string) {
	if o.cs != cs {
		return
	}
	if cs.reactions.remove(id) {
		o.touch()
	}
}

// ToggleCamera flips the first local video track and tells the peer. It
// returns the new enabled flag.
func (o *Orchestrator) ToggleCamera() (bool, error) {
	var enabled bool
	err := o.do(func() error {
		cs := o.cs
		if cs == nil {
			return ErrNotInRoom
		}
		t := firstTrack(cs.tracks, KindVideo)
		if t == nil {
			return ErrNoTrack
		}

		enabled = !t.Enabled()
		t.SetEnabled(enabled)
		cs.videoEnabled = enabled
		o.touch()
		cs.log.Info("local camera toggled", slog.Bool("enabled", enabled))

		o.sendCameraStatus(cs)
		return nil
	})
	return enabled, err
}

// ToggleMicrophone flips the first local audio track and tells the peer. It
// returns the new muted flag.
func (o *Orchestrator) ToggleMicrophone() (bool, error) {
	var muted bool
	err := o.do(func() error {
		cs := o.cs
		if cs == nil {
			return ErrNotInRoom
		}
		t := firstTrack(cs.tracks, KindAudio)
		if t == nil {
			return ErrNoTrack
		}

		enabled := !t.Enabled()
		t.SetEnabled(enabled)
		muted = !enabled
		cs.micMuted = muted
		o.touch()
		cs.log.Info("local microphone toggled", slog.Bool("muted", muted))

		o.sendMicStatus(cs)
		return nil
	})
	return muted, err
}

func firstTrack(tracks []Track, kind string) Track {
	for _, t := range tracks {
		if t.Kind() == kind {
			return t
		}
	}
	return nil
}

// broadcastStatus re-sends both local flags so a new or renegotiated peer
// starts in sync.
func (o *Orchestrator) broadcastStatus(cs *callSession) {
	o.sendCameraStatus(cs)
	o.sendMicStatus(cs)
}

func (o *Orchestrator) sendCameraStatus(cs *callSession) {
	if cs.transport == nil {
		return
	}
	err := cs.transport.Emit(models.EventCameraStatus, models.CameraStatus{RoomID: cs.roomID, IsEnabled: cs.videoEnabled})
	if err != nil {
		cs.log.Warn("send camera status", slog.Any(logging.Error, err))
	}
}

func (o *Orchestrator) sendMicStatus(cs *callSession) {
	if cs.transport == nil {
		return
	}
	err := cs.transport.Emit(models.EventMicStatus, models.MicStatus{RoomID: cs.roomID, IsMuted: cs.micMuted})
	if err != nil {
		cs.log.Warn("send mic status", slog.Any(logging.Error, err))
	}
}
