package persistence

import (
	"context"
	"sync"

	"github.com/hexwave/roomplay/internal/playlist"
	"github.com/hexwave/roomplay/internal/types"
)

// MemoryStore is an in-process Store used by tests and local development
// (no Postgres required). It is not a cache in front of PostgresStore —
// it's a standalone fake satisfying the same interface.
type MemoryStore struct {
	mu sync.Mutex

	rooms        map[types.RoomIdType]RoomRecord
	participants map[types.RoomIdType]map[types.UserIdType]bool
	items        map[types.RoomIdType][]playlist.Item
	nextItemID   int64
	checksums    map[string]string
	restricted   map[types.UserIdType]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:        make(map[types.RoomIdType]RoomRecord),
		participants: make(map[types.RoomIdType]map[types.UserIdType]bool),
		items:        make(map[types.RoomIdType][]playlist.Item),
		checksums:    make(map[string]string),
		restricted:   make(map[types.UserIdType]bool),
	}
}

// SeedRoom installs a room record directly, bypassing normal persistence
// flows — for test setup.
func (m *MemoryStore) SeedRoom(rec RoomRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[rec.RoomID] = rec
}

// SeedBeatmap installs a checksum directly, for test setup.
func (m *MemoryStore) SeedBeatmap(beatmapID, checksum string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checksums[beatmapID] = checksum
}

// SeedRestriction marks a user restricted, for test setup.
func (m *MemoryStore) SeedRestriction(userID types.UserIdType, restricted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restricted[userID] = restricted
}

func (m *MemoryStore) GetRoom(_ context.Context, roomID types.RoomIdType) (RoomRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rooms[roomID]
	if !ok {
		return RoomRecord{}, types.ErrInvalidState
	}
	return rec, nil
}

func (m *MemoryStore) MarkRoomActive(_ context.Context, roomID types.RoomIdType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rooms[roomID]
	if !ok {
		return types.ErrInvalidState
	}
	rec.Ended = false
	m.rooms[roomID] = rec
	return nil
}

func (m *MemoryStore) UpdateRoomSettings(_ context.Context, room RoomRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[room.RoomID]; !ok {
		return types.ErrInvalidState
	}
	m.rooms[room.RoomID] = room
	return nil
}

func (m *MemoryStore) UpdateRoomHost(_ context.Context, roomID types.RoomIdType, hostUserID types.UserIdType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rooms[roomID]
	if !ok {
		return types.ErrInvalidState
	}
	rec.HostUserID = hostUserID
	m.rooms[roomID] = rec
	return nil
}

func (m *MemoryStore) EndMatch(_ context.Context, roomID types.RoomIdType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rooms[roomID]
	if !ok {
		return types.ErrInvalidState
	}
	rec.Ended = true
	m.rooms[roomID] = rec
	return nil
}

func (m *MemoryStore) AddParticipant(_ context.Context, roomID types.RoomIdType, userID types.UserIdType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.participants[roomID] == nil {
		m.participants[roomID] = make(map[types.UserIdType]bool)
	}
	m.participants[roomID][userID] = true
	return nil
}

func (m *MemoryStore) RemoveParticipant(_ context.Context, roomID types.RoomIdType, userID types.UserIdType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.participants[roomID], userID)
	return nil
}

func (m *MemoryStore) GetCurrentPlaylistItem(_ context.Context, roomID types.RoomIdType) (playlist.Item, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.items[roomID] {
		if !item.Expired {
			return item, true, nil
		}
	}
	return playlist.Item{}, false, nil
}

func (m *MemoryStore) AddPlaylistItem(_ context.Context, roomID types.RoomIdType, item playlist.Item) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextItemID++
	item.ID = m.nextItemID
	m.items[roomID] = append(m.items[roomID], item)
	return item.ID, nil
}

func (m *MemoryStore) UpdatePlaylistItem(_ context.Context, roomID types.RoomIdType, item playlist.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.items[roomID] {
		if existing.ID == item.ID {
			m.items[roomID][i] = item
			return nil
		}
	}
	return types.ErrInvalidState
}

func (m *MemoryStore) RemovePlaylistItem(_ context.Context, roomID types.RoomIdType, itemID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items[roomID]
	for i, existing := range items {
		if existing.ID == itemID {
			m.items[roomID] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return types.ErrInvalidState
}

func (m *MemoryStore) MarkPlaylistItemPlayed(_ context.Context, roomID types.RoomIdType, itemID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.items[roomID] {
		if existing.ID == itemID {
			m.items[roomID][i].Expired = true
			return nil
		}
	}
	return types.ErrInvalidState
}

func (m *MemoryStore) GetAllPlaylistItems(_ context.Context, roomID types.RoomIdType) ([]playlist.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]playlist.Item, len(m.items[roomID]))
	copy(out, m.items[roomID])
	return out, nil
}

func (m *MemoryStore) BeatmapChecksum(_ context.Context, beatmapID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum, ok := m.checksums[beatmapID]
	return sum, ok, nil
}

func (m *MemoryStore) IsUserRestricted(_ context.Context, userID types.UserIdType) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restricted[userID], nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
