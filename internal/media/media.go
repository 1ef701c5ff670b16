// Package media provides synthetic local tracks for headless clients.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"

	"github.com/mossy-p/peerconnect/internal/logging"
	"github.com/mossy-p/peerconnect/internal/session"
)

const (
	audioFrameDuration = 20 * time.Millisecond
	videoFrameDuration = time.Second / 30
)

var (
	// Opus comfort-noise frame.
	silenceFrame = []byte{0xf8, 0xff, 0xfe}

	// VP8 keyframe header followed by zero padding.
	blankVideoFrame = append([]byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a}, make([]byte, 64)...)
)

// Track is a synthetic local track. It writes placeholder samples while
// enabled and stops writing once stopped.
type Track struct {
	local    *webrtc.TrackLocalStaticSample
	kind     string
	sample   []byte
	interval time.Duration

	enabled  atomic.Bool
	done     chan struct{}
	stopOnce sync.Once

	log *slog.Logger
}

func newTrack(kind, streamID string, codec webrtc.RTPCodecCapability, sample []byte, interval time.Duration, logger *slog.Logger) (*Track, error) {
	local, err := webrtc.NewTrackLocalStaticSample(codec, kind, streamID)
	if err != nil {
		return nil, fmt.Errorf("create %s track: %w", kind, err)
	}

	t := &Track{
		local:    local,
		kind:     kind,
		sample:   sample,
		interval: interval,
		done:     make(chan struct{}),
		log:      logger,
	}
	t.enabled.Store(true)
	return t, nil
}

func (t *Track) ID() string {
	return t.local.ID()
}

func (t *Track) Kind() string {
	return t.kind
}

func (t *Track) Enabled() bool {
	return t.enabled.Load()
}

func (t *Track) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

func (t *Track) Stop() {
	t.stopOnce.Do(func() { close(t.done) })
}

// Local returns the pion track to attach to a peer connection.
func (t *Track) Local() webrtc.TrackLocal {
	return t.local
}

func (t *Track) run() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			if !t.Enabled() {
				continue
			}
			if err := t.local.WriteSample(pionmedia.Sample{Data: t.sample, Duration: t.interval}); err != nil {
				t.log.Debug("write sample",
					slog.String("kind", t.kind),
					slog.Any(logging.Error, err),
				)
			}
		}
	}
}

// Source hands out one synthetic audio and one video track per call.
type Source struct {
	Logger *slog.Logger
}

func (s *Source) Acquire(ctx context.Context) ([]session.Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	streamID := uuid.NewString()

	audio, err := newTrack(session.KindAudio, streamID, webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: 48000,
		Channels:  2,
	}, silenceFrame, audioFrameDuration, logger)
	if err != nil {
		return nil, err
	}

	video, err := newTrack(session.KindVideo, streamID, webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeVP8,
		ClockRate: 90000,
	}, blankVideoFrame, videoFrameDuration, logger)
	if err != nil {
		return nil, err
	}

	go audio.run()
	go video.run()

	logger.Debug("local media ready", slog.String("stream_id", streamID))
	return []session.Track{audio, video}, nil
}
