package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/mossy-p/peerconnect/internal/logging"
	"github.com/mossy-p/peerconnect/internal/media"
	"github.com/mossy-p/peerconnect/internal/session"
)

func newConn(t *testing.T) session.PeerConnection {
	t.Helper()

	f, err := NewFactory(nil, logging.Discard())
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	pc, err := f.NewPeerConnection()
	if err != nil {
		t.Fatalf("NewPeerConnection: %v", err)
	}
	t.Cleanup(func() { pc.Close() })
	return pc
}

func attachMedia(t *testing.T, pc session.PeerConnection) {
	t.Helper()

	tracks, err := (&media.Source{Logger: logging.Discard()}).Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	t.Cleanup(func() {
		for _, tr := range tracks {
			tr.Stop()
		}
	})
	for _, tr := range tracks {
		if err := pc.AddTrack(tr); err != nil {
			t.Fatalf("AddTrack(%s): %v", tr.Kind(), err)
		}
	}
}

func descType(t *testing.T, raw json.RawMessage) webrtc.SDPType {
	t.Helper()

	var sd webrtc.SessionDescription
	if err := json.Unmarshal(raw, &sd); err != nil {
		t.Fatalf("decode description %s: %v", raw, err)
	}
	return sd.Type
}

func TestOfferAnswerExchange(t *testing.T) {
	offerer := newConn(t)
	answerer := newConn(t)
	attachMedia(t, offerer)
	attachMedia(t, answerer)

	offer, err := offerer.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if descType(t, offer) != webrtc.SDPTypeOffer {
		t.Fatalf("offer has wrong type: %s", offer)
	}
	if err := offerer.SetLocalDescription(offer); err != nil {
		t.Fatalf("SetLocalDescription(offer): %v", err)
	}
	if !offerer.PendingLocalOffer() {
		t.Fatalf("offer must be pending after SetLocalDescription")
	}

	if err := answerer.SetRemoteDescription(offer); err != nil {
		t.Fatalf("SetRemoteDescription(offer): %v", err)
	}
	answer, err := answerer.CreateAnswer()
	if err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	if descType(t, answer) != webrtc.SDPTypeAnswer {
		t.Fatalf("answer has wrong type: %s", answer)
	}
	if err := answerer.SetLocalDescription(answer); err != nil {
		t.Fatalf("SetLocalDescription(answer): %v", err)
	}
	if answerer.PendingLocalOffer() {
		t.Fatalf("answerer must not report a pending offer")
	}

	if err := offerer.SetRemoteDescription(answer); err != nil {
		t.Fatalf("SetRemoteDescription(answer): %v", err)
	}
	if offerer.PendingLocalOffer() {
		t.Fatalf("offer must not be pending after the answer")
	}
}

func TestRestartICE(t *testing.T) {
	offerer := newConn(t)
	answerer := newConn(t)
	attachMedia(t, offerer)

	fired := make(chan struct{}, 4)
	offerer.OnNegotiationNeeded(func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	first, err := offerer.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	offerer.SetLocalDescription(first)
	answerer.SetRemoteDescription(first)
	answer, err := answerer.CreateAnswer()
	if err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	answerer.SetLocalDescription(answer)
	if err := offerer.SetRemoteDescription(answer); err != nil {
		t.Fatalf("SetRemoteDescription: %v", err)
	}

	// Drain callbacks from the initial AddTrack.
	time.Sleep(50 * time.Millisecond)
	for len(fired) > 0 {
		<-fired
	}

	if err := offerer.RestartICE(); err != nil {
		t.Fatalf("RestartICE: %v", err)
	}
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatalf("negotiation-needed not fired")
	}

	second, err := offerer.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer after restart: %v", err)
	}
	if ufrag(t, first) == ufrag(t, second) {
		t.Fatalf("ICE restart offer must carry new credentials")
	}
}

var ufragRe = regexp.MustCompile(`a=ice-ufrag:(\S+)`)

func ufrag(t *testing.T, raw json.RawMessage) string {
	t.Helper()

	var sd webrtc.SessionDescription
	json.Unmarshal(raw, &sd)
	m := ufragRe.FindStringSubmatch(sd.SDP)
	if m == nil {
		t.Fatalf("no ice-ufrag in %s", sd.SDP)
	}
	return m[1]
}

type plainTrack struct{}

func (plainTrack) ID() string { return "plain" }
func (plainTrack) Kind() string { return session.KindAudio }
func (plainTrack) Enabled() bool { return true }
func (plainTrack) SetEnabled(bool) {}
func (plainTrack) Stop() {}

func TestAddTrackRejectsForeignTracks(t *testing.T) {
	pc := newConn(t)

	if err := pc.AddTrack(plainTrack{}); err != ErrUnsupportedTrack {
		t.Fatalf("AddTrack = %v, want ErrUnsupportedTrack", err)
	}
}

func TestBadPayloads(t *testing.T) {
	pc := newConn(t)

	if err := pc.SetRemoteDescription(json.RawMessage(`not json`)); err == nil {
		t.Fatalf("expected decode error")
	}
	if err := pc.AddICECandidate(json.RawMessage(`{"candidate":"garbage"}`)); err == nil {
		t.Fatalf("expected candidate error without remote description")
	}
}

func TestCloseStopsRestart(t *testing.T) {
	pc := newConn(t)
	pc.Close()

	if err := pc.RestartICE(); err == nil {
		t.Fatalf("RestartICE on closed connection must fail")
	}
}

func TestPionLogsReachSlog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	l := slogFactory{log: logger}.NewLogger("ice")
	l.Infof("gathered %d candidates", 3)
	l.Trace("hidden below debug")

	out := buf.String()
	if !strings.Contains(out, "gathered 3 candidates") || !strings.Contains(out, "pion=ice") {
		t.Fatalf("unexpected log output: %s", out)
	}
	if strings.Contains(out, "hidden below debug") {
		t.Fatalf("trace must be filtered at debug level: %s", out)
	}
}
