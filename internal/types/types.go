// Package types holds the value types and error kinds shared across the
// room coordinator: ids, the per-user and per-room state machines, and the
// error taxonomy the coordinator surfaces to its callers.
package types

import "errors"

// UserIdType identifies an account, stable across reconnects.
type UserIdType string

// RoomIdType identifies a room for its lifetime.
type RoomIdType int64

// TokenIdType identifies one logical client instance. Two hub connections
// opened by the same install of the client share a token-id; a reconnect
// from a different install produces a new one.
type TokenIdType string

// HubKind distinguishes the transport endpoints a single client instance may
// open concurrently (e.g. the multiplayer hub vs. a spectator hub).
type HubKind string

// ConnectionIdType identifies one transport-level connection.
type ConnectionIdType string

// RoomUserState is the per-user gameplay lifecycle state.
type RoomUserState string

const (
	RoomUserStateIdle           RoomUserState = "idle"
	RoomUserStateReady          RoomUserState = "ready"
	RoomUserStateWaitingForLoad RoomUserState = "waiting_for_load"
	RoomUserStateLoaded         RoomUserState = "loaded"
	RoomUserStatePlaying        RoomUserState = "playing"
	RoomUserStateFinishedPlay   RoomUserState = "finished_play"
	RoomUserStateResults        RoomUserState = "results"
	RoomUserStateSpectating     RoomUserState = "spectating"
)

// GameplayStates is the set of states that place a user in a room's gameplay
// broadcast group and that participate in room-state recomputation.
var GameplayStates = map[RoomUserState]bool{
	RoomUserStateWaitingForLoad: true,
	RoomUserStateLoaded:         true,
	RoomUserStatePlaying:        true,
}

// RoomState is the per-room match lifecycle state.
type RoomState string

const (
	RoomStateOpen           RoomState = "open"
	RoomStateWaitingForLoad RoomState = "waiting_for_load"
	RoomStatePlaying        RoomState = "playing"
)

// MatchType selects the room's MatchType strategy.
type MatchType string

const (
	MatchTypeHeadToHead  MatchType = "head_to_head"
	MatchTypeTeamVersus  MatchType = "team_versus"
	// MatchTypePlaylists is rejected by ChangeSettings — it exists only so a
	// client proposing it gets a clear validation error rather than an
	// unrecognized-value one.
	MatchTypePlaylists MatchType = "playlists"
)

// QueueMode governs who may mutate the playlist queue and how the queue
// rotates after a match ends.
type QueueMode string

const (
	QueueModeHostOnly             QueueMode = "host_only"
	QueueModeAllPlayers           QueueMode = "all_players"
	QueueModeAllPlayersRoundRobin QueueMode = "all_players_round_robin"
)

// BeatmapAvailability is a user-reported download-state field, broadcast
// alongside (but not part of) the RoomUser state machine.
type BeatmapAvailability string

const (
	BeatmapAvailabilityUnknown          BeatmapAvailability = "unknown"
	BeatmapAvailabilityNotDownloaded    BeatmapAvailability = "not_downloaded"
	BeatmapAvailabilityDownloading      BeatmapAvailability = "downloading"
	BeatmapAvailabilityLocallyAvailable BeatmapAvailability = "locally_available"
	BeatmapAvailabilityMissing          BeatmapAvailability = "missing"
)

// ValidBeatmapAvailability is the enum's membership set, used to reject an
// unrecognized value rather than storing and broadcasting it verbatim.
var ValidBeatmapAvailability = map[BeatmapAvailability]bool{
	BeatmapAvailabilityUnknown:          true,
	BeatmapAvailabilityNotDownloaded:    true,
	BeatmapAvailabilityDownloading:      true,
	BeatmapAvailabilityLocallyAvailable: true,
	BeatmapAvailabilityMissing:          true,
}

// CountdownKind distinguishes a host-initiated countdown from the
// auto-start countdown, which rejects user cancellation requests.
type CountdownKind string

const (
	CountdownKindUserInitiated CountdownKind = "user_initiated"
	CountdownKindAutoStart     CountdownKind = "auto_start"
)

// Error kinds returned across the coordinator boundary (spec §6/§7).
var (
	ErrInvalidState       = errors.New("invalid state")
	ErrInvalidStateChange = errors.New("invalid state change")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrNotHost            = errors.New("caller is not host")
	ErrNotJoinedRoom      = errors.New("caller has not joined a room")
	ErrUserBlocked        = errors.New("target user has blocked the caller")
	ErrUserBlocksPMs      = errors.New("target user does not accept invites")
	ErrNotTracked         = errors.New("entity not tracked")
	ErrTimeout            = errors.New("lock acquisition timed out")
	ErrStaleConnection    = errors.New("stale connection")
)
