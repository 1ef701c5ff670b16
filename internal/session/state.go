package session

// State is the negotiation state of the orchestrator.
type State string

const (
	StateIdle           State = "idle"
	StateAcquiringMedia State = "acquiring-media"
	StateAwaitingRoom   State = "awaiting-room"
	StateOffering       State = "offering"
	StateAnswering      State = "answering"
	StateConnected      State = "connected"
	StateReconnecting   State = "reconnecting"
	StatePeerLeft       State = "peer-left"
	StateClosed         State = "closed"
)

func (s State) String() string {
	return string(s)
}

// negotiating reports whether a peer is present and an offer/answer exchange
// is underway or done.
func (s State) negotiating() bool {
	switch s {
	case StateOffering, StateAnswering, StateConnected, StateReconnecting:
		return true
	}
	return false
}
