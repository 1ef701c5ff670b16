package models

import (
	"encoding/json"
	"testing"
)

func TestReactionEmojiValid(t *testing.T) {
	for _, e := range ReactionEmojis {
		if !e.Valid() {
			t.Errorf("%q should be valid", e)
		}
	}
	for _, e := range []ReactionEmoji{"", "🙂", "thumbs"} {
		if e.Valid() {
			t.Errorf("%q should be invalid", e)
		}
	}
}

func TestSignalMessageKeepsPayloadBytes(t *testing.T) {
	in := []byte(`{"roomId":"R1","signal":{"type":"offer","sdp":"v=0\r\n","extra":[1,2]},"type":"offer"}`)

	var msg SignalMessage
	if err := json.Unmarshal(in, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	msg.From = "abc"

	out, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded SignalMessage
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("unmarshal again: %v", err)
	}
	if string(decoded.Signal) != `{"type":"offer","sdp":"v=0\r\n","extra":[1,2]}` {
		t.Fatalf("signal payload rewritten: %s", decoded.Signal)
	}
	if decoded.From != "abc" || decoded.Type != SignalTypeOffer {
		t.Fatalf("unexpected message: %+v", decoded)
	}
}

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope(EventRoomUsers, 2)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if env.Event != EventRoomUsers || string(env.Data) != "2" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}
