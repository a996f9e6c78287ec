package room

import (
	"context"
	"sync"

	"github.com/hexwave/roomplay/internal/types"
)

// broadcastCall records one outbound message for assertions.
type broadcastCall struct {
	kind          string // "room", "gameplay", "user"
	roomID        types.RoomIdType
	userID        types.UserIdType
	event         string
	payload       any
	excludeUserID types.UserIdType
}

// mockBroadcaster is an in-memory Broadcaster recording every call instead
// of touching a transport, mirroring the teacher's MockClient pattern of
// capturing sent messages for assertions.
type mockBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall

	roomGroup     map[types.UserIdType]types.RoomIdType
	gameplayGroup map[types.UserIdType]types.RoomIdType
}

func newMockBroadcaster() *mockBroadcaster {
	return &mockBroadcaster{
		roomGroup:     make(map[types.UserIdType]types.RoomIdType),
		gameplayGroup: make(map[types.UserIdType]types.RoomIdType),
	}
}

func (m *mockBroadcaster) BroadcastRoom(_ context.Context, roomID types.RoomIdType, event string, payload any, excludeUserID types.UserIdType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, broadcastCall{kind: "room", roomID: roomID, event: event, payload: payload, excludeUserID: excludeUserID})
}

func (m *mockBroadcaster) BroadcastGameplay(_ context.Context, roomID types.RoomIdType, event string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, broadcastCall{kind: "gameplay", roomID: roomID, event: event, payload: payload})
}

func (m *mockBroadcaster) SendToUser(_ context.Context, userID types.UserIdType, event string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, broadcastCall{kind: "user", userID: userID, event: event, payload: payload})
}

func (m *mockBroadcaster) JoinRoomGroup(userID types.UserIdType, roomID types.RoomIdType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roomGroup[userID] = roomID
}

func (m *mockBroadcaster) LeaveRoomGroup(userID types.UserIdType, _ types.RoomIdType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.roomGroup, userID)
}

func (m *mockBroadcaster) JoinGameplayGroup(userID types.UserIdType, roomID types.RoomIdType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gameplayGroup[userID] = roomID
}

func (m *mockBroadcaster) LeaveGameplayGroup(userID types.UserIdType, _ types.RoomIdType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.gameplayGroup, userID)
}

func (m *mockBroadcaster) eventsFor(event string) []broadcastCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []broadcastCall
	for _, c := range m.calls {
		if c.event == event {
			out = append(out, c)
		}
	}
	return out
}

func (m *mockBroadcaster) count(event string) int {
	return len(m.eventsFor(event))
}

// mockSocialStore is a configurable SocialStore for InvitePlayer tests.
type mockSocialStore struct {
	blocked       map[[2]types.UserIdType]bool
	acceptsInvite map[[2]types.UserIdType]bool
}

func newMockSocialStore() *mockSocialStore {
	return &mockSocialStore{
		blocked:       make(map[[2]types.UserIdType]bool),
		acceptsInvite: make(map[[2]types.UserIdType]bool),
	}
}

func (m *mockSocialStore) IsBlocked(_ context.Context, userID, targetID types.UserIdType) (bool, error) {
	return m.blocked[[2]types.UserIdType{userID, targetID}], nil
}

func (m *mockSocialStore) AcceptsInvitesFrom(_ context.Context, userID, targetID types.UserIdType) (bool, error) {
	key := [2]types.UserIdType{userID, targetID}
	if v, ok := m.acceptsInvite[key]; ok {
		return v, nil
	}
	return true, nil // default: open to invites, matching most users in practice
}

func (m *mockSocialStore) block(userID, targetID types.UserIdType) {
	m.blocked[[2]types.UserIdType{userID, targetID}] = true
}

func (m *mockSocialStore) setAcceptsInvitesFrom(userID, targetID types.UserIdType, v bool) {
	m.acceptsInvite[[2]types.UserIdType{userID, targetID}] = v
}
