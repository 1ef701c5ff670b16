package session

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mossy-p/peerconnect/internal/models"
)

func TestMergeMessage(t *testing.T) {
	var log []models.ChatMessage
	var added bool

	for _, m := range []models.ChatMessage{
		{ID: "c", Timestamp: 30},
		{ID: "a", Timestamp: 10},
		{ID: "b", Timestamp: 20},
		{ID: "b2", Timestamp: 20},
	} {
		log, added = mergeMessage(log, m)
		if !added {
			t.Fatalf("%s not added", m.ID)
		}
	}

	log, added = mergeMessage(log, models.ChatMessage{ID: "a", Timestamp: 99})
	if added {
		t.Fatalf("duplicate id must be dropped")
	}

	want := []string{"a", "b", "b2", "c"}
	if len(log) != len(want) {
		t.Fatalf("len=%d, want %d", len(log), len(want))
	}
	for i, id := range want {
		if log[i].ID != id {
			t.Fatalf("log[%d]=%s, want %s", i, log[i].ID, id)
		}
	}
}

func TestSendMessage(t *testing.T) {
	h := newHarness(t)

	if _, err := h.o.SendMessage("hi"); !errors.Is(err, ErrNotInRoom) {
		t.Fatalf("SendMessage outside room = %v, want ErrNotInRoom", err)
	}

	h.join("self")

	msg, err := h.o.SendMessage("   ")
	if err != nil || msg.ID != "" {
		t.Fatalf("blank message must be a no-op, got %+v %v", msg, err)
	}

	msg, err = h.o.SendMessage("  hello  ")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.Content != "hello" || msg.SenderID != "self" || msg.ID == "" || msg.Timestamp == 0 {
		t.Fatalf("unexpected message: %+v", msg)
	}

	var req models.SendMessageRequest
	json.Unmarshal(h.expectEmit(models.EventSendMessage).Data, &req)
	var sent models.ChatMessage
	json.Unmarshal(req.Message, &sent)
	if req.RoomID != testRoom || sent != msg {
		t.Fatalf("unexpected send-message: %+v %+v", req, sent)
	}

	s := h.waitFor("local echo", func(s Snapshot) bool { return len(s.Messages) == 1 })
	if s.Messages[0] != msg {
		t.Fatalf("echo=%+v", s.Messages[0])
	}
}

func TestSendMessageEchoesWhenRelayGone(t *testing.T) {
	h := newHarness(t)
	h.join("self")

	h.tr.Close()
	h.waitFor("transport lost", func(s Snapshot) bool { return !s.TransportConnected })

	msg, err := h.o.SendMessage("still here")
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("SendMessage = %v, want *TransportError", err)
	}
	if msg.ID == "" || msg.Content != "still here" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	s := h.o.Snapshot()
	if len(s.Messages) != 1 || s.Messages[0] != msg {
		t.Fatalf("message not echoed locally: %+v", s.Messages)
	}
}

func TestReceiveMessagesSortedAndDeduplicated(t *testing.T) {
	h := newHarness(t)
	h.join("self")

	h.tr.deliver(models.EventReceiveMessage, models.ChatMessage{ID: "m2", Content: "second", SenderID: "peer", Timestamp: 200})
	h.tr.deliver(models.EventReceiveMessage, models.ChatMessage{ID: "m1", Content: "first", SenderID: "peer", Timestamp: 100})
	h.tr.deliver(models.EventReceiveMessage, models.ChatMessage{ID: "m2", Content: "second", SenderID: "peer", Timestamp: 200})
	h.tr.deliver(models.EventReceiveMessage, models.ChatMessage{ID: "m3", Content: "third", SenderID: "peer", Timestamp: 300})

	s := h.waitFor("messages", func(s Snapshot) bool { return len(s.Messages) == 3 })
	for i, id := range []string{"m1", "m2", "m3"} {
		if s.Messages[i].ID != id {
			t.Fatalf("messages[%d]=%s, want %s", i, s.Messages[i].ID, id)
		}
	}

	if err := h.o.LeaveRoom(); err != nil {
		t.Fatalf("LeaveRoom: %v", err)
	}
	if s := h.waitState(StateClosed); len(s.Messages) != 0 {
		t.Fatalf("log must reset on leave")
	}
}

func TestReactionsExpire(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.ReactionTTL = 150 * time.Millisecond })
	h.join("self")

	if _, err := h.o.SendReaction("🦄"); !errors.Is(err, ErrUnknownEmoji) {
		t.Fatalf("SendReaction(unknown) = %v, want ErrUnknownEmoji", err)
	}

	r, err := h.o.SendReaction(models.ReactionParty)
	if err != nil {
		t.Fatalf("SendReaction: %v", err)
	}

	var req models.SendReactionRequest
	json.Unmarshal(h.expectEmit(models.EventSendReaction).Data, &req)
	var sent models.ReactionEvent
	json.Unmarshal(req.Reaction, &sent)
	if sent != r || sent.SenderID != "self" {
		t.Fatalf("unexpected send-reaction: %+v", sent)
	}

	s := h.o.Snapshot()
	if len(s.Reactions) != 1 || s.Reactions[0].ID != r.ID {
		t.Fatalf("reaction must be visible immediately: %+v", s.Reactions)
	}

	h.tr.deliver(models.EventReceiveReaction, models.ReactionEvent{ID: "remote", Emoji: models.ReactionHeart, SenderID: "peer", Timestamp: 1})
	h.tr.deliver(models.EventReceiveReaction, models.ReactionEvent{ID: "remote", Emoji: models.ReactionHeart, SenderID: "peer", Timestamp: 1})
	h.tr.deliver(models.EventReceiveReaction, models.ReactionEvent{ID: "bogus", Emoji: "🦄", SenderID: "peer", Timestamp: 1})

	h.waitFor("remote reaction", func(s Snapshot) bool {
		for _, r := range s.Reactions {
			if r.ID == "remote" {
				return true
			}
		}
		return false
	})
	for _, r := range h.o.Snapshot().Reactions {
		if r.ID == "bogus" {
			t.Fatalf("invalid emoji must be dropped")
		}
	}

	h.waitFor("reactions expired", func(s Snapshot) bool { return len(s.Reactions) == 0 })
}

func TestLeaveCancelsReactionTimers(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.ReactionTTL = time.Hour })
	h.join("self")

	if _, err := h.o.SendReaction(models.ReactionClap); err != nil {
		t.Fatalf("SendReaction: %v", err)
	}

	var board *reactionBoard
	var timers int
	h.o.do(func() error {
		board = h.o.cs.reactions
		timers = len(board.timers)
		return nil
	})
	if timers != 1 {
		t.Fatalf("timers=%d, want 1", timers)
	}

	if err := h.o.LeaveRoom(); err != nil {
		t.Fatalf("LeaveRoom: %v", err)
	}

	h.o.do(func() error {
		timers = len(board.timers)
		return nil
	})
	if timers != 0 {
		t.Fatalf("timers after leave=%d, want 0", timers)
	}
}

func TestToggleCamera(t *testing.T) {
	h := newHarness(t)

	if _, err := h.o.ToggleCamera(); !errors.Is(err, ErrNotInRoom) {
		t.Fatalf("ToggleCamera outside room = %v, want ErrNotInRoom", err)
	}

	h.join("self")

	enabled, err := h.o.ToggleCamera()
	if err != nil || enabled {
		t.Fatalf("ToggleCamera = %v, %v; want false, nil", enabled, err)
	}
	if h.video.Enabled() {
		t.Fatalf("video track must be disabled")
	}

	var status models.CameraStatus
	json.Unmarshal(h.expectEmit(models.EventCameraStatus).Data, &status)
	if status.IsEnabled || status.RoomID != testRoom {
		t.Fatalf("camera-status-change=%+v", status)
	}
	h.waitFor("camera flag", func(s Snapshot) bool { return !s.IsVideoEnabled })

	enabled, _ = h.o.ToggleCamera()
	if !enabled || !h.video.Enabled() {
		t.Fatalf("second toggle must re-enable")
	}
}

func TestToggleMicrophone(t *testing.T) {
	h := newHarness(t)
	h.join("self")

	muted, err := h.o.ToggleMicrophone()
	if err != nil || !muted {
		t.Fatalf("ToggleMicrophone = %v, %v; want true, nil", muted, err)
	}
	if h.audio.Enabled() {
		t.Fatalf("audio track must be disabled")
	}

	var status models.MicStatus
	json.Unmarshal(h.expectEmit(models.EventMicStatus).Data, &status)
	if !status.IsMuted {
		t.Fatalf("mic-status-change=%+v", status)
	}
	h.waitFor("mic flag", func(s Snapshot) bool { return s.IsMicMuted })
}

func TestToggleWithoutTrack(t *testing.T) {
	h := newHarness(t)
	h.media.tracks = []*fakeTrack{h.audio}
	h.join("self")

	if _, err := h.o.ToggleCamera(); !errors.Is(err, ErrNoTrack) {
		t.Fatalf("ToggleCamera without video = %v, want ErrNoTrack", err)
	}
}

func TestRemoteStatus(t *testing.T) {
	h := newHarness(t)
	h.join("self")

	h.tr.deliver(models.EventRemoteCameraStatus, models.CameraStatus{IsEnabled: false})
	h.waitFor("remote camera off", func(s Snapshot) bool { return !s.IsRemoteVideoEnabled })

	h.tr.deliver(models.EventRemoteCameraStatus, models.CameraStatus{IsEnabled: true})
	h.tr.deliver(models.EventRemoteMicStatus, models.MicStatus{IsMuted: true})
	h.waitFor("remote camera on, mic muted", func(s Snapshot) bool {
		return s.IsRemoteVideoEnabled && s.IsRemoteMicMuted
	})
}
