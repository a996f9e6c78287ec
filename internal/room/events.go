package room

// Event names for the hub surface of spec §6 ("Hub surface
// (server-to-client)"). Coordinator operations pass one of these to
// Broadcaster; the wire envelope itself (Message{Event, Payload}) is
// internal/hub's concern.
const (
	EventUserJoined                     = "UserJoined"
	EventUserLeft                       = "UserLeft"
	EventUserKicked                     = "UserKicked"
	EventHostChanged                    = "HostChanged"
	EventSettingsChanged                = "SettingsChanged"
	EventUserStateChanged               = "UserStateChanged"
	EventRoomStateChanged               = "RoomStateChanged"
	EventUserBeatmapAvailabilityChanged = "UserBeatmapAvailabilityChanged"
	EventUserModsChanged                = "UserModsChanged"
	EventMatchStarted                   = "MatchStarted"
	EventResultsReady                   = "ResultsReady"
	EventLoadRequested                  = "LoadRequested"
	EventCountdownChanged               = "CountdownChangedEvent"
	EventPlaylistItemAdded              = "PlaylistItemAdded"
	EventPlaylistItemChanged            = "PlaylistItemChanged"
	EventPlaylistItemRemoved            = "PlaylistItemRemoved"
	EventInvited                        = "Invited"
	EventDisconnectRequested            = "DisconnectRequested"
)

// UserJoinedPayload accompanies EventUserJoined.
type UserJoinedPayload struct {
	UserID string `json:"userId"`
}

// UserLeftPayload accompanies EventUserLeft and EventUserKicked.
type UserLeftPayload struct {
	UserID string `json:"userId"`
}

// HostChangedPayload accompanies EventHostChanged.
type HostChangedPayload struct {
	HostID string `json:"hostId"`
}

// UserStateChangedPayload accompanies EventUserStateChanged.
type UserStateChangedPayload struct {
	UserID string `json:"userId"`
	State  string `json:"state"`
}

// RoomStateChangedPayload accompanies EventRoomStateChanged.
type RoomStateChangedPayload struct {
	State string `json:"state"`
}

// InvitedPayload accompanies EventInvited, sent to the invitee's personal
// channel rather than the room group.
type InvitedPayload struct {
	RoomID string `json:"roomId"`
	FromID string `json:"fromUserId"`
}

// UserModsChangedPayload accompanies EventUserModsChanged. The new
// selection itself is read off the room snapshot; this just identifies
// who changed.
type UserModsChangedPayload struct {
	UserID string `json:"userId"`
}

// UserBeatmapAvailabilityChangedPayload accompanies
// EventUserBeatmapAvailabilityChanged.
type UserBeatmapAvailabilityChangedPayload struct {
	UserID       string `json:"userId"`
	Availability string `json:"availability"`
}

// PlaylistItemRemovedPayload accompanies EventPlaylistItemRemoved.
type PlaylistItemRemovedPayload struct {
	ID int64 `json:"id"`
}
