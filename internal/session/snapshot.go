package session

import "github.com/mossy-p/peerconnect/internal/models"

// Snapshot is a copy of the observable call state.
type Snapshot struct {
	State  State  `json:"state"`
	RoomID string `json:"roomId"`
	SelfID string `json:"selfId"`

	IsInRoom           bool `json:"isInRoom"`
	IsConnected        bool `json:"isConnected"`
	TransportConnected bool `json:"transportConnected"`
	PeerLeft           bool `json:"peerLeft"`

	Messages  []models.ChatMessage   `json:"messages"`
	Reactions []models.ReactionEvent `json:"reactions"`

	IsVideoEnabled       bool `json:"isVideoEnabled"`
	IsMicMuted           bool `json:"isMicMuted"`
	IsRemoteVideoEnabled bool `json:"isRemoteVideoEnabled"`
	IsRemoteMicMuted     bool `json:"isRemoteMicMuted"`

	LocalTracks  int           `json:"localTracks"`
	RemoteTracks []RemoteTrack `json:"remoteTracks"`
}

// defaultSnapshot is the state of an orchestrator that is in no room.
func defaultSnapshot(state State) Snapshot {
	return Snapshot{
		State:                state,
		IsVideoEnabled:       true,
		IsRemoteVideoEnabled: true,
	}
}
