package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/mossy-p/peerconnect/internal/models"
)

type fakeTrack struct {
	mu      sync.Mutex
	id      string
	kind    string
	enabled bool
	stopped bool
}

func newFakeTrack(kind string) *fakeTrack {
	return &fakeTrack{id: kind + "-1", kind: kind, enabled: true}
}

func (t *fakeTrack) ID() string { return t.id }
func (t *fakeTrack) Kind() string { return t.kind }

func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *fakeTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *fakeTrack) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeMedia struct {
	tracks []*fakeTrack
	err    error
}

func (m *fakeMedia) Acquire(context.Context) ([]Track, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]Track, len(m.tracks))
	for i, t := range m.tracks {
		out[i] = t
	}
	return out, nil
}

var errTransportClosed = errors.New("transport closed")

type fakeTransport struct {
	emitted  chan models.Envelope
	incoming chan models.Envelope

	mu      sync.Mutex
	closed  bool
	dropped bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		emitted:  make(chan models.Envelope, 256),
		incoming: make(chan models.Envelope, 64),
	}
}

func (f *fakeTransport) Emit(event string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errTransportClosed
	}

	env, err := models.NewEnvelope(event, data)
	if err != nil {
		return err
	}
	f.emitted <- env
	return nil
}

func (f *fakeTransport) Incoming() <-chan models.Envelope {
	return f.incoming
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		f.dropLocked()
	}
	return nil
}

// drop simulates the relay going away.
func (f *fakeTransport) drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropLocked()
}

func (f *fakeTransport) dropLocked() {
	if !f.dropped {
		f.dropped = true
		close(f.incoming)
	}
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// deliver injects a frame as if the relay sent it.
func (f *fakeTransport) deliver(event string, data any) {
	env, err := models.NewEnvelope(event, data)
	if err != nil {
		panic(err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dropped {
		return
	}
	f.incoming <- env
}

type fakeDialer struct {
	mu        sync.Mutex
	transport *fakeTransport
	err       error
	calls     int
}

func (d *fakeDialer) Dial(context.Context) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.transport, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type fakePeer struct {
	mu sync.Mutex

	tracks       []Track
	offers       int
	local        []string
	remote       []string
	candidates   []string
	pending      bool
	restarts     int
	closed       bool
	remoteErr    error
	candidateErr error

	onCandidate   func(json.RawMessage)
	onTrack       func(RemoteTrack)
	onConn        func(ConnectionState)
	onICE         func(ConnectionState)
	onNegotiation func()
}

type fakeDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func descType(desc json.RawMessage) string {
	var d fakeDescription
	json.Unmarshal(desc, &d)
	return d.Type
}

func (p *fakePeer) AddTrack(t Track) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks = append(p.tracks, t)
	return nil
}

func (p *fakePeer) CreateOffer() (json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offers++
	return json.Marshal(fakeDescription{Type: "offer", SDP: fmt.Sprintf("offer-%d", p.offers)})
}

func (p *fakePeer) CreateAnswer() (json.RawMessage, error) {
	return json.Marshal(fakeDescription{Type: "answer", SDP: "answer"})
}

func (p *fakePeer) SetLocalDescription(desc json.RawMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	typ := descType(desc)
	p.local = append(p.local, typ)
	p.pending = typ == "offer"
	return nil
}

func (p *fakePeer) SetRemoteDescription(desc json.RawMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remoteErr != nil {
		return p.remoteErr
	}
	typ := descType(desc)
	p.remote = append(p.remote, typ)
	if typ == "answer" {
		p.pending = false
	}
	return nil
}

func (p *fakePeer) AddICECandidate(c json.RawMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.candidateErr != nil {
		return p.candidateErr
	}
	p.candidates = append(p.candidates, string(c))
	return nil
}

func (p *fakePeer) RestartICE() error {
	p.mu.Lock()
	p.restarts++
	fn := p.onNegotiation
	p.mu.Unlock()

	if fn != nil {
		go fn()
	}
	return nil
}

func (p *fakePeer) PendingLocalOffer() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

func (p *fakePeer) OnICECandidate(fn func(json.RawMessage)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCandidate = fn
}

func (p *fakePeer) OnTrack(fn func(RemoteTrack)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTrack = fn
}

func (p *fakePeer) OnConnectionStateChange(fn func(ConnectionState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onConn = fn
}

func (p *fakePeer) OnICEConnectionStateChange(fn func(ConnectionState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onICE = fn
}

func (p *fakePeer) OnNegotiationNeeded(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onNegotiation = fn
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePeer) fireConnection(s ConnectionState) {
	p.mu.Lock()
	fn := p.onConn
	p.mu.Unlock()
	fn(s)
}

func (p *fakePeer) fireICE(s ConnectionState) {
	p.mu.Lock()
	fn := p.onICE
	p.mu.Unlock()
	fn(s)
}

func (p *fakePeer) fireNegotiationNeeded() {
	p.mu.Lock()
	fn := p.onNegotiation
	p.mu.Unlock()
	fn()
}

func (p *fakePeer) fireCandidate(c string) {
	p.mu.Lock()
	fn := p.onCandidate
	p.mu.Unlock()
	fn(json.RawMessage(c))
}

func (p *fakePeer) fireTrack(t RemoteTrack) {
	p.mu.Lock()
	fn := p.onTrack
	p.mu.Unlock()
	fn(t)
}

func (p *fakePeer) offerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offers
}

// applied reports how many descriptions and candidates reached the peer.
func (p *fakePeer) applied() (local, remote, candidates int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.local), len(p.remote), len(p.candidates)
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) trackCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tracks)
}

type fakeFactory struct {
	mu    sync.Mutex
	peers []*fakePeer
	err   error
}

func (f *fakeFactory) NewPeerConnection() (PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p := &fakePeer{}
	f.peers = append(f.peers, p)
	return p, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.peers)
}

func (f *fakeFactory) last() *fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peers[len(f.peers)-1]
}
