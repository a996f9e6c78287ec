package room

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/hexwave/roomplay/internal/entitystore"
	"github.com/hexwave/roomplay/internal/matchtype"
	"github.com/hexwave/roomplay/internal/persistence"
	"github.com/hexwave/roomplay/internal/playlist"
	"github.com/hexwave/roomplay/internal/rules"
	"github.com/hexwave/roomplay/internal/types"
	"github.com/hexwave/roomplay/internal/v1/metrics"
)

// Broadcaster is the interface-only client-broadcast collaborator named in
// spec §1: group membership and message fan-out live in internal/hub, which
// satisfies this. Coordinator never touches a transport connection
// directly.
type Broadcaster interface {
	// BroadcastRoom sends to every connection in the room's control group
	// (room:{id}), optionally skipping one user (empty string to skip none).
	BroadcastRoom(ctx context.Context, roomID types.RoomIdType, event string, payload any, excludeUserID types.UserIdType)
	// BroadcastGameplay sends to every connection in the room's gameplay
	// group (room:{id}:true).
	BroadcastGameplay(ctx context.Context, roomID types.RoomIdType, event string, payload any)
	// SendToUser delivers to one user's personal channel, independent of
	// room membership (used for Invited, the kicked user's UserKicked and a
	// mid-match Spectating user's LoadRequested).
	SendToUser(ctx context.Context, userID types.UserIdType, event string, payload any)
	// JoinRoomGroup / LeaveRoomGroup manage control-group membership.
	JoinRoomGroup(userID types.UserIdType, roomID types.RoomIdType)
	LeaveRoomGroup(userID types.UserIdType, roomID types.RoomIdType)
	// JoinGameplayGroup / LeaveGameplayGroup manage gameplay-group
	// membership.
	JoinGameplayGroup(userID types.UserIdType, roomID types.RoomIdType)
	LeaveGameplayGroup(userID types.UserIdType, roomID types.RoomIdType)
}

// SocialStore is the friend/block-relation collaborator InvitePlayer
// consults. internal/persistence.Store does not implement this — it is a
// distinct, named external interface per spec §1 ("friend/block relation
// queries"); a production deployment backs it with its own service.
type SocialStore interface {
	IsBlocked(ctx context.Context, userID, targetID types.UserIdType) (bool, error)
	AcceptsInvitesFrom(ctx context.Context, userID, targetID types.UserIdType) (bool, error)
}

// ClientState is the per-user client-state entity: which room, if any, the
// user currently occupies. Spec §3's "user's client-state holds that
// room-id" invariant.
type ClientState struct {
	RoomID types.RoomIdType
}

// Coordinator is the Multiplayer Room Coordinator of spec §4.3: the public
// operation surface validating transitions, enforcing host/role
// constraints, and driving the Room and Playlist Queue it owns through
// their EntityStore locks.
type Coordinator struct {
	rooms   *entitystore.Store[types.RoomIdType, *Room]
	clients *entitystore.Store[types.UserIdType, *ClientState]

	store       persistence.Store
	rules       rules.ModLegality
	social      SocialStore
	broadcaster Broadcaster
}

// NewCoordinator wires the Coordinator against its collaborators. rooms and
// clients are typically fresh EntityStores owned by the process that also
// owns this Coordinator.
func NewCoordinator(
	rooms *entitystore.Store[types.RoomIdType, *Room],
	clients *entitystore.Store[types.UserIdType, *ClientState],
	store persistence.Store,
	modRules rules.ModLegality,
	social SocialStore,
	broadcaster Broadcaster,
) *Coordinator {
	return &Coordinator{
		rooms:       rooms,
		clients:     clients,
		store:       store,
		rules:       modRules,
		social:      social,
		broadcaster: broadcaster,
	}
}

// reacquireRoom builds a countdown.ReacquireFunc bound to roomID, letting
// the countdown engine's background task regain this room's exclusive
// lock on completion without holding a reference to the Coordinator's
// internals beyond what it needs.
func (c *Coordinator) reacquireRoom(roomID types.RoomIdType) func(ctx context.Context) (func(), error) {
	return func(ctx context.Context) (func(), error) {
		usage, err := c.rooms.Acquire(ctx, roomID, false)
		if err != nil {
			return nil, err
		}
		return func() { usage.Release() }, nil
	}
}

// lockedOp bundles the two locks spec §4.3 requires every authenticated
// operation other than JoinRoom/LeaveRoom/Kick to hold: the caller's
// client-state (establishing which room they're in) and that room's own
// lock, acquired in that canonical order and released in reverse via
// Close.
type lockedOp struct {
	clientUsage *entitystore.Usage[types.UserIdType, *ClientState]
	roomUsage   *entitystore.Usage[types.RoomIdType, *Room]
	Room        *Room
	User        *RoomUser
}

func (op *lockedOp) Close() {
	op.roomUsage.Release()
	op.clientUsage.Release()
}

// acquireOp resolves callerID to its room via client-state, acquires the
// room's lock, and looks up the caller's RoomUser within it.
func (c *Coordinator) acquireOp(ctx context.Context, callerID types.UserIdType) (*lockedOp, error) {
	clientUsage, err := c.clients.Acquire(ctx, callerID, false)
	if err != nil {
		if err == types.ErrNotTracked {
			return nil, types.ErrNotJoinedRoom
		}
		return nil, err
	}
	cs := clientUsage.Value()
	if cs == nil {
		clientUsage.Release()
		return nil, types.ErrNotJoinedRoom
	}

	roomUsage, err := c.rooms.Acquire(ctx, cs.RoomID, false)
	if err != nil {
		clientUsage.Release()
		return nil, err
	}
	rm := roomUsage.Value()
	u, ok := rm.User(callerID)
	if !ok {
		roomUsage.Release()
		clientUsage.Release()
		return nil, types.ErrInvalidState
	}

	return &lockedOp{clientUsage: clientUsage, roomUsage: roomUsage, Room: rm, User: u}, nil
}

// JoinRoom implements spec §4.3's JoinRoom: acquires the caller's
// client-state lock before the room's, creating the room from its
// persisted record on first join and otherwise joining the live instance.
func (c *Coordinator) JoinRoom(ctx context.Context, callerID types.UserIdType, roomID types.RoomIdType, password string) (Snapshot, error) {
	restricted, err := c.store.IsUserRestricted(ctx, callerID)
	if err != nil {
		return Snapshot{}, err
	}
	if restricted {
		return Snapshot{}, types.ErrInvalidState
	}

	clientUsage, err := c.clients.Acquire(ctx, callerID, true)
	if err != nil {
		return Snapshot{}, err
	}
	defer clientUsage.Release()

	if clientUsage.Value() != nil {
		return Snapshot{}, types.ErrInvalidState
	}

	roomUsage, err := c.rooms.Acquire(ctx, roomID, true)
	if err != nil {
		return Snapshot{}, err
	}

	rm := roomUsage.Value()
	created := rm == nil
	if created {
		rm, err = c.createRoomLocked(ctx, roomID, callerID, password)
		if err != nil {
			roomUsage.Release()
			_ = c.rooms.Destroy(ctx, roomID)
			return Snapshot{}, err
		}
		roomUsage.SetValue(rm)
	} else if _, exists := rm.byID[callerID]; exists {
		roomUsage.Release()
		return Snapshot{}, types.ErrInvalidState
	}

	if err := c.addUserLocked(ctx, rm, callerID); err != nil {
		// addUserLocked already undid its own partial state, so the room is
		// exactly as it was before this call. If we just created it, that
		// means it has zero users again — unwind per spec §4.3/§7: end the
		// match in persistence and destroy the room entity rather than
		// leaving an orphan.
		if created {
			if endErr := c.store.EndMatch(ctx, roomID); endErr != nil {
				slog.Error("failed to end match for orphaned room", "room", roomID, "error", endErr)
			}
			roomUsage.Release()
			if destroyErr := c.rooms.Destroy(ctx, roomID); destroyErr != nil {
				slog.Error("failed to destroy orphaned room", "room", roomID, "error", destroyErr)
			}
		} else {
			roomUsage.Release()
		}
		return Snapshot{}, err
	}

	clientUsage.SetValue(&ClientState{RoomID: roomID})
	snapshot := rm.Snapshot()
	roomUsage.Release()
	return snapshot, nil
}

// createRoomLocked builds a fresh Room from its persisted record. The
// caller holds roomUsage (newly created, so its own RLock equivalent is
// exclusive) but the Room itself doesn't exist yet — this only returns it.
func (c *Coordinator) createRoomLocked(ctx context.Context, roomID types.RoomIdType, callerID types.UserIdType, password string) (*Room, error) {
	rec, err := c.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if rec.Ended {
		return nil, types.ErrInvalidState
	}
	if rec.HostUserID != callerID {
		return nil, types.ErrInvalidState
	}
	if rec.Password != "" && rec.Password != password {
		return nil, types.ErrInvalidPassword
	}

	strategy, err := matchtype.New(rec.MatchType)
	if err != nil {
		return nil, err
	}

	queue := playlist.New(rec.QueueMode, c.store, c.rules)
	existingItems, err := c.store.GetAllPlaylistItems(ctx, roomID)
	if err != nil {
		return nil, err
	}
	queue.LoadItems(existingItems)

	if err := c.store.MarkRoomActive(ctx, roomID); err != nil {
		return nil, err
	}

	return newRoom(roomID, rec.Name, rec.Password, rec.MatchType, rec.QueueMode, rec.AutoStartDuration, rec.HostUserID, strategy, queue), nil
}

// addUserLocked creates the RoomUser, wires it into match-type and
// persistence, and fans UserJoined to the room. Caller holds the room's
// lock and the target's client-state lock.
func (c *Coordinator) addUserLocked(ctx context.Context, rm *Room, callerID types.UserIdType) error {
	u := newRoomUser(callerID)
	rm.addUser(u)
	rm.strategy.OnJoin(u)

	if err := c.store.AddParticipant(ctx, rm.ID, callerID); err != nil {
		rm.removeUser(callerID)
		rm.strategy.OnLeave(u)
		return err
	}

	c.broadcaster.JoinRoomGroup(callerID, rm.ID)
	c.broadcaster.BroadcastRoom(ctx, rm.ID, EventUserJoined, UserJoinedPayload{UserID: string(callerID)}, callerID)

	metrics.RoomUsers.WithLabelValues(roomLabel(rm.ID)).Set(float64(len(rm.users)))
	return nil
}

// LeaveRoom implements the Leave half of spec §4.3's LeaveRoom/Kick.
func (c *Coordinator) LeaveRoom(ctx context.Context, callerID types.UserIdType) error {
	return c.departRoom(ctx, callerID, callerID)
}

// Kick implements the Kick half: callerID must be the room's host and
// distinct from targetID.
func (c *Coordinator) Kick(ctx context.Context, callerID, targetID types.UserIdType) error {
	if callerID == targetID {
		return types.ErrInvalidState
	}
	return c.departRoom(ctx, callerID, targetID)
}

// departRoom is the shared Leave/Kick path. isKick is implied by
// callerID != targetID.
func (c *Coordinator) departRoom(ctx context.Context, callerID, targetID types.UserIdType) error {
	isKick := callerID != targetID

	clientUsage, err := c.clients.Acquire(ctx, targetID, false)
	if err != nil {
		if err == types.ErrNotTracked {
			return types.ErrNotJoinedRoom
		}
		return err
	}
	cs := clientUsage.Value()
	if cs == nil {
		clientUsage.Release()
		return types.ErrNotJoinedRoom
	}
	roomID := cs.RoomID

	roomUsage, err := c.rooms.Acquire(ctx, roomID, false)
	if err != nil {
		clientUsage.Release()
		return err
	}
	rm := roomUsage.Value()

	if isKick && rm.hostID != callerID {
		roomUsage.Release()
		clientUsage.Release()
		return types.ErrNotHost
	}
	target, ok := rm.User(targetID)
	if !ok {
		roomUsage.Release()
		clientUsage.Release()
		return types.ErrInvalidState
	}

	if isKick {
		c.broadcaster.SendToUser(ctx, targetID, EventUserKicked, UserLeftPayload{UserID: string(targetID)})
	}

	c.broadcaster.LeaveRoomGroup(targetID, roomID)
	c.broadcaster.LeaveGameplayGroup(targetID, roomID)

	wasHost := rm.removeUser(targetID)
	rm.strategy.OnLeave(target)
	if err := c.store.RemoveParticipant(ctx, roomID, targetID); err != nil {
		slog.Error("failed to persist participant removal", "room", roomID, "user", targetID, "error", err)
	}

	clientUsage.Release()
	if err := c.clients.Destroy(ctx, targetID); err != nil {
		slog.Error("failed to destroy client state", "user", targetID, "error", err)
	}

	event := EventUserLeft
	if isKick {
		event = EventUserKicked
	}

	if rm.Empty() {
		rm.Countdown.Stop()
		if err := c.store.EndMatch(ctx, roomID); err != nil {
			slog.Error("failed to persist match end", "room", roomID, "error", err)
		}
		roomUsage.Release()
		if err := c.rooms.Destroy(ctx, roomID); err != nil {
			slog.Error("failed to destroy empty room", "room", roomID, "error", err)
		}
		metrics.RoomUsers.DeleteLabelValues(roomLabel(roomID))
		return nil
	}

	c.recomputeRoomState(ctx, rm)

	if wasHost {
		if next, ok := rm.firstRemainingUser(); ok {
			rm.hostID = next.userID
			if err := c.store.UpdateRoomHost(ctx, roomID, next.userID); err != nil {
				slog.Error("failed to persist host transfer", "room", roomID, "error", err)
			}
			c.broadcaster.BroadcastRoom(ctx, roomID, EventHostChanged, HostChangedPayload{HostID: string(next.userID)}, "")
		}
	}

	c.broadcaster.BroadcastRoom(ctx, roomID, event, UserLeftPayload{UserID: string(targetID)}, "")
	metrics.RoomUsers.WithLabelValues(roomLabel(roomID)).Set(float64(len(rm.users)))
	roomUsage.Release()
	return nil
}

func roomLabel(roomID types.RoomIdType) string {
	return strconv.FormatInt(int64(roomID), 10)
}
