// Package hub implements the WebSocket transport of spec §6: JWT-authenticated
// upgrade, the Connection Limiter's per-connection verification, and JSON
// message dispatch into the Room Coordinator. It implements room.Broadcaster
// so the Coordinator never touches a transport connection directly.
package hub

import (
	"encoding/json"
	"errors"

	"github.com/hexwave/roomplay/internal/types"
)

var (
	errUnknownAction       = errors.New("unknown action")
	errUnknownMatchRequest = errors.New("unknown match request tag")
)

// Client-to-server action names, matching spec §6's "Hub surface (caller
// actions)" list verbatim.
const (
	ActionJoinRoom                  = "JoinRoom"
	ActionLeaveRoom                 = "LeaveRoom"
	ActionChangeState               = "ChangeState"
	ActionChangeSettings            = "ChangeSettings"
	ActionChangeUserMods            = "ChangeUserMods"
	ActionChangeBeatmapAvailability = "ChangeBeatmapAvailability"
	ActionSendMatchRequest          = "SendMatchRequest"
	ActionStartMatch                = "StartMatch"
	ActionAbortGameplay             = "AbortGameplay"
	ActionTransferHost              = "TransferHost"
	ActionKickUser                  = "KickUser"
	ActionAddPlaylistItem           = "AddPlaylistItem"
	ActionEditPlaylistItem          = "EditPlaylistItem"
	ActionRemovePlaylistItem        = "RemovePlaylistItem"
	ActionInvitePlayer              = "InvitePlayer"
)

// Message is the wire envelope in both directions: an event/action name plus
// its JSON-encoded payload. internal/room's event constants (UserJoined,
// RoomStateChanged, ...) are used verbatim as Event on the server-to-client
// side.
type Message struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// errorPayload is sent back to the caller on a rejected request. Event is
// always "Error".
type errorPayload struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

const EventError = "Error"

// EventRoomSnapshot is sent to a user directly after a successful JoinRoom,
// carrying the full room.Snapshot they need to render initial state —
// everyone else already has it incrementally via the per-field events.
const EventRoomSnapshot = "RoomSnapshot"

func encode(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return data
}

// joinRoomRequest / password is optional: empty string for unprotected rooms.
type joinRoomRequest struct {
	RoomID   int64  `json:"roomId"`
	Password string `json:"password"`
}

type changeStateRequest struct {
	State string `json:"state"`
}

type changeSettingsRequest struct {
	Name                     string  `json:"name"`
	Password                 string  `json:"password"`
	MatchType                string  `json:"matchType"`
	QueueMode                string  `json:"queueMode"`
	AutoStartDurationSeconds float64 `json:"autoStartDurationSeconds"`
}

type changeUserModsRequest struct {
	Required []string `json:"requiredMods"`
	Allowed  []string `json:"allowedMods"`
}

type changeBeatmapAvailabilityRequest struct {
	Availability string `json:"availability"`
}

// sendMatchRequestRequest carries either a countdown control or a
// match-type-specific request (e.g. ChangeTeamRequest), discriminated by
// Tag, mirroring matchtype.Request.RequestTag().
type sendMatchRequestRequest struct {
	Tag             string  `json:"tag"`
	DurationSeconds float64 `json:"durationSeconds"`
	TeamID          string  `json:"teamId"`
}

type userIDRequest struct {
	UserID string `json:"userId"`
}

type playlistItemRequest struct {
	ID           int64    `json:"id"`
	BeatmapID    string   `json:"beatmapId"`
	RulesetID    string   `json:"rulesetId"`
	RequiredMods []string `json:"requiredMods"`
	AllowedMods  []string `json:"allowedMods"`
	Checksum     string   `json:"checksum"`
}

type removePlaylistItemRequest struct {
	ID int64 `json:"id"`
}

// userIDType is a small conversion helper kept local to this file since
// every request payload above carries plain strings across the wire.
func userIDType(s string) types.UserIdType { return types.UserIdType(s) }
