package session

import (
	"errors"
	"fmt"

	"github.com/mossy-p/peerconnect/internal/models"
)

var (
	ErrNotInRoom     = errors.New("not in a room")
	ErrAlreadyInRoom = errors.New("already in a room")
	ErrJoinCancelled = errors.New("join cancelled by leave")
	ErrUnknownEmoji  = errors.New("unknown reaction emoji")
	ErrNoTrack       = errors.New("no local track of that kind")
	ErrClosed        = errors.New("orchestrator closed")
)

// MediaAcquisitionError is returned by JoinRoom when local media could not be
// obtained. Nothing was dialed.
type MediaAcquisitionError struct {
	Err error
}

func (e *MediaAcquisitionError) Error() string {
	return fmt.Sprintf("acquire local media: %v", e.Err)
}

func (e *MediaAcquisitionError) Unwrap() error {
	return e.Err
}

// SignalApplicationError describes a negotiation payload that could not be
// applied to the peer connection. It is logged, never returned.
type SignalApplicationError struct {
	Type models.SignalType
	Err  error
}

func (e *SignalApplicationError) Error() string {
	return fmt.Sprintf("apply %s: %v", e.Type, e.Err)
}

func (e *SignalApplicationError) Unwrap() error {
	return e.Err
}

// TransportError reports a relay channel failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("signaling %s", e.Op)
	}
	return fmt.Sprintf("signaling %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
