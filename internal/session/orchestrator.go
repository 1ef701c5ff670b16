// Package session runs the client side of a two-party call. It drives the
// offer/answer exchange over the relay and keeps the auxiliary call state
// (chat, reactions, camera and mic flags) in sync with the peer.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mossy-p/peerconnect/internal/logging"
	"github.com/mossy-p/peerconnect/internal/models"
)

const (
	DefaultOfferDelay  = time.Second
	DefaultReactionTTL = 3 * time.Second
)

type Options struct {
	Media  MediaSource
	Peers  PeerFactory
	Dialer Dialer

	// OfferDelay is how long a joiner that finds the peer already present
	// waits before offering.
	OfferDelay time.Duration

	// ReactionTTL is how long a reaction stays visible.
	ReactionTTL time.Duration

	Logger *slog.Logger

	// OnChange receives a snapshot after every state change. It runs on the
	// event loop and must not call back into the orchestrator synchronously.
	OnChange func(Snapshot)
}

// callSession is everything that belongs to one JoinRoom..LeaveRoom span.
// Closures that captured a callSession compare it with Orchestrator.cs before
// touching anything, so work from an earlier call is dropped.
type callSession struct {
	roomID string
	selfID string

	tracks    []Track
	transport Transport
	pc        PeerConnection

	// negotiated is set once an offer/answer exchange completed on pc.
	negotiated bool
	offerTimer *time.Timer

	messages     []models.ChatMessage
	reactions    *reactionBoard
	remoteTracks []RemoteTrack

	isInRoom           bool
	isConnected        bool
	transportConnected bool
	peerLeft           bool

	videoEnabled       bool
	micMuted           bool
	remoteVideoEnabled bool
	remoteMicMuted     bool

	log *slog.Logger
}

func newCallSession(roomID string, logger *slog.Logger) *callSession {
	return &callSession{
		roomID:             roomID,
		reactions:          newReactionBoard(),
		videoEnabled:       true,
		remoteVideoEnabled: true,
		log:                logger.With(slog.String(logging.RoomID, roomID)),
	}
}

// Orchestrator owns the state of one client. All state is touched only by
// the event loop goroutine; public methods and collaborator callbacks post
// closures to it.
type Orchestrator struct {
	opts Options
	log  *slog.Logger

	mu      sync.Mutex
	queue   []func()
	stopped bool
	wake    chan struct{}
	quit    chan struct{}
	done    chan struct{}

	closeOnce sync.Once

	// loop-owned
	state State
	cs    *callSession
	dirty bool

	snapMu sync.RWMutex
	snap   Snapshot
}

// New starts an orchestrator. Call Close to stop its event loop.
func New(opts Options) *Orchestrator {
	if opts.OfferDelay <= 0 {
		opts.OfferDelay = DefaultOfferDelay
	}
	if opts.ReactionTTL <= 0 {
		opts.ReactionTTL = DefaultReactionTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	o := &Orchestrator{
		opts:  opts,
		log:   opts.Logger,
		wake:  make(chan struct{}, 1),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
		state: StateIdle,
		snap:  defaultSnapshot(StateIdle),
	}
	go o.run()
	return o
}

func (o *Orchestrator) run() {
	defer close(o.done)

	for {
		select {
		case <-o.wake:
		case <-o.quit:
			return
		}

		o.mu.Lock()
		batch := o.queue
		o.queue = nil
		o.mu.Unlock()

		for _, fn := range batch {
			fn()
			if o.dirty {
				o.publish()
			}
		}
	}
}

// post queues fn for the event loop. It never blocks, so collaborators may
// call it from inside their own callbacks.
func (o *Orchestrator) post(fn func()) bool {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return false
	}
	o.queue = append(o.queue, fn)
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
	return true
}

// do runs fn on the event loop and waits for its result. Snapshot reflects
// fn's changes once do returns.
func (o *Orchestrator) do(fn func() error) error {
	errc := make(chan error, 1)
	ok := o.post(func() {
		err := fn()
		if o.dirty {
			o.publish()
		}
		errc <- err
	})
	if !ok {
		return ErrClosed
	}

	select {
	case err := <-errc:
		return err
	case <-o.done:
		return ErrClosed
	}
}

func (o *Orchestrator) touch() {
	o.dirty = true
}

func (o *Orchestrator) setState(s State) {
	if o.state == s {
		return
	}
	o.log.Debug("state change",
		slog.String("from", o.state.String()),
		slog.String(logging.State, s.String()),
	)
	o.state = s
	o.dirty = true
}

func (o *Orchestrator) publish() {
	o.dirty = false
	snap := o.buildSnapshot()

	o.snapMu.Lock()
	o.snap = snap
	o.snapMu.Unlock()

	if o.opts.OnChange != nil {
		o.opts.OnChange(snap)
	}
}

func (o *Orchestrator) buildSnapshot() Snapshot {
	cs := o.cs
	if cs == nil {
		return defaultSnapshot(o.state)
	}

	snap := Snapshot{
		State:                o.state,
		RoomID:               cs.roomID,
		SelfID:               cs.selfID,
		IsInRoom:             cs.isInRoom,
		IsConnected:          cs.isConnected,
		TransportConnected:   cs.transportConnected,
		PeerLeft:             cs.peerLeft,
		Reactions:            cs.reactions.snapshot(),
		IsVideoEnabled:       cs.videoEnabled,
		IsMicMuted:           cs.micMuted,
		IsRemoteVideoEnabled: cs.remoteVideoEnabled,
		IsRemoteMicMuted:     cs.remoteMicMuted,
		LocalTracks:          len(cs.tracks),
	}
	if len(cs.messages) > 0 {
		snap.Messages = append([]models.ChatMessage(nil), cs.messages...)
	}
	if len(cs.remoteTracks) > 0 {
		snap.RemoteTracks = append([]RemoteTrack(nil), cs.remoteTracks...)
	}
	return snap
}

// Snapshot returns the state as of the last processed event.
func (o *Orchestrator) Snapshot() Snapshot {
	o.snapMu.RLock()
	defer o.snapMu.RUnlock()
	return o.snap
}

// JoinRoom acquires local media, dials the relay and joins roomID. It returns
// once join-room has been sent; the rest of the call proceeds on the event
// loop.
func (o *Orchestrator) JoinRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return errors.New("room id is required")
	}

	cs := newCallSession(roomID, o.log)
	err := o.do(func() error {
		if o.cs != nil {
			return ErrAlreadyInRoom
		}
		o.cs = cs
		o.setState(StateAcquiringMedia)
		return nil
	})
	if err != nil {
		return err
	}

	tracks, err := o.opts.Media.Acquire(ctx)
	if err != nil {
		cs.log.Error("failed to acquire local media", slog.Any(logging.Error, err))
		o.do(func() error {
			if o.cs == cs {
				o.cs = nil
				o.setState(StateIdle)
			}
			return nil
		})
		return &MediaAcquisitionError{Err: err}
	}

	err = o.do(func() error {
		if o.cs != cs {
			return ErrJoinCancelled
		}
		cs.tracks = tracks
		o.setState(StateAwaitingRoom)
		return nil
	})
	if err != nil {
		stopTracks(tracks)
		return err
	}

	t, err := o.opts.Dialer.Dial(ctx)
	if err != nil {
		cs.log.Error("failed to connect to signaling server", slog.Any(logging.Error, err))
		cerr := o.do(func() error {
			if o.cs != cs {
				return ErrJoinCancelled
			}
			o.teardown(cs, false)
			o.cs = nil
			o.setState(StateIdle)
			return nil
		})
		if cerr != nil {
			return cerr
		}
		return &TransportError{Op: "dial", Err: err}
	}

	err = o.do(func() error {
		if o.cs != cs {
			return ErrJoinCancelled
		}
		cs.transport = t
		cs.transportConnected = true

		if err := o.newPeer(cs); err != nil {
			o.teardown(cs, false)
			o.cs = nil
			o.setState(StateIdle)
			return fmt.Errorf("create peer connection: %w", err)
		}

		go o.readTransport(cs, t)

		if err := t.Emit(models.EventJoinRoom, cs.roomID); err != nil {
			o.teardown(cs, false)
			o.cs = nil
			o.setState(StateIdle)
			return &TransportError{Op: "join", Err: err}
		}

		cs.isInRoom = true
		o.touch()
		cs.log.Info("joined room")
		return nil
	})
	if errors.Is(err, ErrJoinCancelled) || errors.Is(err, ErrClosed) {
		t.Close()
	}
	return err
}

// LeaveRoom ends the call: local tracks are stopped, the peer connection is
// closed, leave-room is sent and the relay channel is closed.
func (o *Orchestrator) LeaveRoom() error {
	return o.do(func() error {
		cs := o.cs
		if cs == nil {
			return ErrNotInRoom
		}
		cs.log.Info("leaving room")
		o.teardown(cs, true)
		o.cs = nil
		o.setState(StateClosed)
		return nil
	})
}

// Close leaves the current room, if any, and stops the event loop.
func (o *Orchestrator) Close() error {
	o.closeOnce.Do(func() {
		if err := o.LeaveRoom(); err != nil && !errors.Is(err, ErrNotInRoom) {
			o.log.Warn("leave on close", slog.Any(logging.Error, err))
		}

		o.mu.Lock()
		o.stopped = true
		o.mu.Unlock()

		close(o.quit)
		<-o.done
	})
	return nil
}

// teardown releases everything cs holds.
func (o *Orchestrator) teardown(cs *callSession, announce bool) {
	if cs.offerTimer != nil {
		cs.offerTimer.Stop()
		cs.offerTimer = nil
	}
	cs.reactions.reset()

	stopTracks(cs.tracks)

	if cs.pc != nil {
		if err := cs.pc.Close(); err != nil {
			cs.log.Warn("close peer connection", slog.Any(logging.Error, err))
		}
		cs.pc = nil
	}

	if cs.transport != nil {
		if announce && cs.isInRoom {
			if err := cs.transport.Emit(models.EventLeaveRoom, cs.roomID); err != nil {
				cs.log.Warn("send leave-room", slog.Any(logging.Error, err))
			}
		}
		cs.transport.Close()
	}
}

func stopTracks(tracks []Track) {
	for _, t := range tracks {
		t.Stop()
	}
}

// readTransport forwards relay frames to the loop until the channel closes.
func (o *Orchestrator) readTransport(cs *callSession, t Transport) {
	for env := range t.Incoming() {
		env := env
		o.post(func() { o.handleFrame(cs, env) })
	}
	o.post(func() { o.transportLost(cs) })
}

func (o *Orchestrator) transportLost(cs *callSession) {
	if o.cs != cs {
		return
	}
	cs.transportConnected = false
	o.touch()
	cs.log.Warn("signaling connection lost", slog.Any(logging.Error, &TransportError{Op: "read"}))
}

// handleFrame routes one relay frame.
func (o *Orchestrator) handleFrame(cs *callSession, env models.Envelope) {
	if o.cs != cs {
		return
	}

	switch env.Event {
	case models.EventSession:
		var id string
		if decode(cs, env, &id) {
			cs.selfID = id
			cs.log = cs.log.With(slog.String(logging.SessionID, id))
			o.touch()
		}

	case models.EventRoomUsers:
		var count int
		if decode(cs, env, &count) {
			o.handleRoomUsers(cs, count)
		}

	case models.EventUserJoined:
		var id string
		if decode(cs, env, &id) {
			o.handleUserJoined(cs, id)
		}

	case models.EventUserLeft:
		var id string
		if decode(cs, env, &id) {
			o.handleUserLeft(cs, id)
		}

	case models.EventSignal:
		var msg models.SignalMessage
		if decode(cs, env, &msg) {
			o.handleSignal(cs, msg)
		}

	case models.EventReceiveMessage:
		var msg models.ChatMessage
		if decode(cs, env, &msg) {
			o.receiveMessage(cs, msg)
		}

	case models.EventReceiveReaction:
		var r models.ReactionEvent
		if decode(cs, env, &r) {
			o.receiveReaction(cs, r)
		}

	case models.EventRemoteCameraStatus:
		var status models.CameraStatus
		if decode(cs, env, &status) {
			cs.remoteVideoEnabled = status.IsEnabled
			o.touch()
		}

	case models.EventRemoteMicStatus:
		var status models.MicStatus
		if decode(cs, env, &status) {
			cs.remoteMicMuted = status.IsMuted
			o.touch()
		}

	default:
		cs.log.Debug("ignoring event", slog.String(logging.Event, env.Event))
	}
}

func decode(cs *callSession, env models.Envelope, v any) bool {
	if err := json.Unmarshal(env.Data, v); err != nil {
		cs.log.Warn("failed to parse payload",
			slog.String(logging.Event, env.Event),
			slog.Any(logging.Error, err),
		)
		return false
	}
	return true
}
