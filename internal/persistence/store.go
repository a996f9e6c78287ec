// Package persistence defines the relational persistence boundary of spec
// §6 and a pgx-backed Postgres implementation of it.
package persistence

import (
	"context"
	"time"

	"github.com/hexwave/roomplay/internal/playlist"
	"github.com/hexwave/roomplay/internal/types"
)

// RoomRecord is the persisted view of a room's settings and lifecycle.
type RoomRecord struct {
	RoomID            types.RoomIdType
	Name              string
	Password          string
	HostUserID        types.UserIdType
	MatchType         types.MatchType
	QueueMode         types.QueueMode
	AutoStartDuration time.Duration
	Ended             bool
	EndsAt            *time.Time
}

// Store is the persistence boundary the Room Coordinator is built against.
// Method names and shapes follow spec §6's abstract persistence interface.
type Store interface {
	GetRoom(ctx context.Context, roomID types.RoomIdType) (RoomRecord, error)
	MarkRoomActive(ctx context.Context, roomID types.RoomIdType) error
	UpdateRoomSettings(ctx context.Context, room RoomRecord) error
	UpdateRoomHost(ctx context.Context, roomID types.RoomIdType, hostUserID types.UserIdType) error
	EndMatch(ctx context.Context, roomID types.RoomIdType) error

	AddParticipant(ctx context.Context, roomID types.RoomIdType, userID types.UserIdType) error
	RemoveParticipant(ctx context.Context, roomID types.RoomIdType, userID types.UserIdType) error

	GetCurrentPlaylistItem(ctx context.Context, roomID types.RoomIdType) (playlist.Item, bool, error)
	AddPlaylistItem(ctx context.Context, roomID types.RoomIdType, item playlist.Item) (int64, error)
	UpdatePlaylistItem(ctx context.Context, roomID types.RoomIdType, item playlist.Item) error
	RemovePlaylistItem(ctx context.Context, roomID types.RoomIdType, itemID int64) error
	MarkPlaylistItemPlayed(ctx context.Context, roomID types.RoomIdType, itemID int64) error
	GetAllPlaylistItems(ctx context.Context, roomID types.RoomIdType) ([]playlist.Item, error)

	// BeatmapChecksum also satisfies internal/playlist.BeatmapLookup.
	BeatmapChecksum(ctx context.Context, beatmapID string) (checksum string, ok bool, err error)
	IsUserRestricted(ctx context.Context, userID types.UserIdType) (bool, error)

	// Ping also satisfies internal/v1/health.StorePinger.
	Ping(ctx context.Context) error
}
