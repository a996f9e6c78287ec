// Package room implements the Room aggregate and Multiplayer Coordinator of
// spec §4.3/§4.6: the in-memory per-room state machine, its users, and the
// public operations that mutate it under the owning EntityStore lock.
package room

import (
	"time"

	"k8s.io/utils/set"

	"github.com/hexwave/roomplay/internal/countdown"
	"github.com/hexwave/roomplay/internal/matchtype"
	"github.com/hexwave/roomplay/internal/playlist"
	"github.com/hexwave/roomplay/internal/types"
)

// Mods is a user's currently-selected mod pair, validated against the
// room's current playlist item on every change.
type Mods struct {
	Required []string
	Allowed  []string
}

// RoomUser is one participant's per-room state. It implements
// matchtype.Member so MatchType strategies can read and assign its team
// without importing this package.
type RoomUser struct {
	userID              types.UserIdType
	state               types.RoomUserState
	mods                Mods
	beatmapAvailability types.BeatmapAvailability
	teamID              string
}

func newRoomUser(userID types.UserIdType) *RoomUser {
	return &RoomUser{
		userID:              userID,
		state:               types.RoomUserStateIdle,
		beatmapAvailability: types.BeatmapAvailabilityUnknown,
	}
}

func (u *RoomUser) UserID() types.UserIdType { return u.userID }
func (u *RoomUser) TeamID() string           { return u.teamID }
func (u *RoomUser) SetTeamID(teamID string)  { u.teamID = teamID }
func (u *RoomUser) State() types.RoomUserState { return u.state }

// Room is the in-memory aggregate for one live multiplayer session. Every
// field here is mutated only while the owning Coordinator holds this
// room-id's EntityStore lock — Room itself has no internal mutex, matching
// the teacher's Room/methods.go split but moving the exclusion to the
// EntityStore that owns the *Room pointer instead of an embedded
// sync.RWMutex.
type Room struct {
	ID                types.RoomIdType
	Name              string
	Password          string
	MatchType         types.MatchType
	QueueMode         types.QueueMode
	AutoStartDuration time.Duration

	users []*RoomUser // join order
	byID  map[types.UserIdType]*RoomUser
	hostID types.UserIdType

	state types.RoomState

	Queue     *playlist.Queue
	strategy  matchtype.Strategy
	Countdown countdown.Engine

	// gameplayGroup mirrors the transport-level gameplay broadcast group
	// membership: Ready and Spectating users are in it, FinishedPlay and
	// Idle users are not.
	gameplayGroup set.Set[types.UserIdType]
}

func newRoom(id types.RoomIdType, name, password string, matchTypeKind types.MatchType, queueMode types.QueueMode, autoStart time.Duration, hostID types.UserIdType, strategy matchtype.Strategy, queue *playlist.Queue) *Room {
	return &Room{
		ID:                id,
		Name:              name,
		Password:          password,
		MatchType:         matchTypeKind,
		QueueMode:         queueMode,
		AutoStartDuration: autoStart,
		users:             nil,
		byID:              make(map[types.UserIdType]*RoomUser),
		hostID:            hostID,
		state:             types.RoomStateOpen,
		Queue:             queue,
		strategy:          strategy,
		gameplayGroup:     set.New[types.UserIdType](),
	}
}

// HostID returns the current host's user-id.
func (r *Room) HostID() types.UserIdType { return r.hostID }

// State returns the room's match lifecycle state.
func (r *Room) State() types.RoomState { return r.state }

// Empty reports whether the room has no users left, per the "a room exists
// iff at least one user is joined" invariant.
func (r *Room) Empty() bool { return len(r.users) == 0 }

// User looks up a joined user by id.
func (r *Room) User(userID types.UserIdType) (*RoomUser, bool) {
	u, ok := r.byID[userID]
	return u, ok
}

// Users returns the room's users in join order. The slice is owned by the
// caller; Room's own copy is not exposed.
func (r *Room) Users() []*RoomUser {
	out := make([]*RoomUser, len(r.users))
	copy(out, r.users)
	return out
}

// addUser appends a new RoomUser in join order. Callers are responsible for
// persistence, broadcast and match-type notification around this.
func (r *Room) addUser(u *RoomUser) {
	r.users = append(r.users, u)
	r.byID[u.userID] = u
}

// removeUser deletes a user from the room's list and membership maps,
// including gameplay-group membership, and reports whether they were host.
func (r *Room) removeUser(userID types.UserIdType) (wasHost bool) {
	delete(r.byID, userID)
	r.gameplayGroup.Delete(userID)
	for i, u := range r.users {
		if u.userID == userID {
			r.users = append(r.users[:i], r.users[i+1:]...)
			break
		}
	}
	return r.hostID == userID
}

// firstRemainingUser returns the earliest-joined user still present, for
// host transfer on a host's departure.
func (r *Room) firstRemainingUser() (*RoomUser, bool) {
	if len(r.users) == 0 {
		return nil, false
	}
	return r.users[0], true
}

// setGameplayMembership applies spec §4.3's "update gameplay-group
// membership" rule: Ready and Spectating are members, FinishedPlay and Idle
// are not. Other states (WaitingForLoad, Loaded, Playing, Results) keep
// whatever membership they already had.
func (r *Room) setGameplayMembership(userID types.UserIdType, state types.RoomUserState) {
	switch state {
	case types.RoomUserStateReady, types.RoomUserStateSpectating:
		r.gameplayGroup.Insert(userID)
	case types.RoomUserStateFinishedPlay, types.RoomUserStateIdle:
		r.gameplayGroup.Delete(userID)
	}
}

// InGameplayGroup reports whether userID is currently a member of the
// room's gameplay broadcast group.
func (r *Room) InGameplayGroup(userID types.UserIdType) bool {
	return r.gameplayGroup.Has(userID)
}

// anyUserInState and allUsersNotInState are small predicates used by room-state
// recomputation (spec §4.6) and StartMatch's precondition.
func (r *Room) anyUserInState(states ...types.RoomUserState) bool {
	want := make(map[types.RoomUserState]bool, len(states))
	for _, s := range states {
		want[s] = true
	}
	for _, u := range r.users {
		if want[u.state] {
			return true
		}
	}
	return false
}

func (r *Room) allUsersNotInState(state types.RoomUserState) bool {
	for _, u := range r.users {
		if u.state == state {
			return false
		}
	}
	return true
}
