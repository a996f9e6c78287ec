package persistence

import (
	"context"
	"testing"

	"github.com/hexwave/roomplay/internal/playlist"
	"github.com/hexwave/roomplay/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRoomNotFound(t *testing.T) {
	m := NewMemoryStore()
	_, err := m.GetRoom(context.Background(), 1)
	assert.ErrorIs(t, err, types.ErrInvalidState)
}

func TestRoomLifecycle(t *testing.T) {
	m := NewMemoryStore()
	m.SeedRoom(RoomRecord{RoomID: 1, Name: "room", HostUserID: "host"})

	rec, err := m.GetRoom(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "room", rec.Name)

	require.NoError(t, m.UpdateRoomHost(context.Background(), 1, "newhost"))
	rec, err = m.GetRoom(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, types.UserIdType("newhost"), rec.HostUserID)

	require.NoError(t, m.EndMatch(context.Background(), 1))
	rec, err = m.GetRoom(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, rec.Ended)

	require.NoError(t, m.MarkRoomActive(context.Background(), 1))
	rec, err = m.GetRoom(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, rec.Ended)
}

func TestParticipants(t *testing.T) {
	m := NewMemoryStore()
	require.NoError(t, m.AddParticipant(context.Background(), 1, "alice"))
	require.NoError(t, m.RemoveParticipant(context.Background(), 1, "alice"))
	// No observable state beyond no error — RemoveParticipant on an already
	// absent participant must also be a no-op, not an error.
	require.NoError(t, m.RemoveParticipant(context.Background(), 1, "alice"))
}

func TestPlaylistItemLifecycle(t *testing.T) {
	m := NewMemoryStore()
	id, err := m.AddPlaylistItem(context.Background(), 1, playlist.Item{BeatmapID: "bm1"})
	require.NoError(t, err)
	assert.NotZero(t, id)

	item, ok, err := m.GetCurrentPlaylistItem(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bm1", item.BeatmapID)

	item.BeatmapID = "bm2"
	require.NoError(t, m.UpdatePlaylistItem(context.Background(), 1, item))

	item, ok, err = m.GetCurrentPlaylistItem(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bm2", item.BeatmapID)

	require.NoError(t, m.MarkPlaylistItemPlayed(context.Background(), 1, id))
	_, ok, err = m.GetCurrentPlaylistItem(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := m.GetAllPlaylistItems(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, m.RemovePlaylistItem(context.Background(), 1, id))
	all, err = m.GetAllPlaylistItems(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestBeatmapChecksumAndRestriction(t *testing.T) {
	m := NewMemoryStore()
	m.SeedBeatmap("bm1", "sum1")
	m.SeedRestriction("banned", true)

	sum, ok, err := m.BeatmapChecksum(context.Background(), "bm1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "sum1", sum)

	_, ok, err = m.BeatmapChecksum(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, ok)

	restricted, err := m.IsUserRestricted(context.Background(), "banned")
	require.NoError(t, err)
	assert.True(t, restricted)

	restricted, err = m.IsUserRestricted(context.Background(), "clean")
	require.NoError(t, err)
	assert.False(t, restricted)
}

func TestMemoryStoreSatisfiesStoreInterface(t *testing.T) {
	var _ Store = NewMemoryStore()
}
