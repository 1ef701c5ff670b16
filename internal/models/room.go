package models

// RoomInfo is the public view of a room returned by the rooms API.
type RoomInfo struct {
	RoomID        string `json:"roomId"`
	MemberCount   int    `json:"memberCount"`   // live websocket sessions on this instance
	PresenceCount int64  `json:"presenceCount"` // entries in the shared presence set
}
