package room

import (
	"context"
	"log/slog"
	"time"

	"github.com/hexwave/roomplay/internal/playlist"
	"github.com/hexwave/roomplay/internal/types"
	"github.com/hexwave/roomplay/internal/v1/metrics"
)

// clientAllowedTransitions is the spec §4.3 transition table's ✓ cells
// only — the ones a client request may make directly. Server-only (S)
// transitions are applied internally (internalStart, recomputeRoomState)
// and never validated here; anything absent from this table (and not a
// silent-drop per silentDropToIdle) is InvalidStateChange.
var clientAllowedTransitions = map[types.RoomUserState]map[types.RoomUserState]bool{
	types.RoomUserStateIdle: {
		types.RoomUserStateReady:      true,
		types.RoomUserStateSpectating: true,
	},
	types.RoomUserStateReady: {
		types.RoomUserStateIdle:       true,
		types.RoomUserStateSpectating: true,
	},
	types.RoomUserStateWaitingForLoad: {
		types.RoomUserStateLoaded: true,
	},
	types.RoomUserStatePlaying: {
		types.RoomUserStateFinishedPlay: true,
	},
	types.RoomUserStateFinishedPlay: {
		types.RoomUserStateIdle: true,
	},
	types.RoomUserStateResults: {
		types.RoomUserStateIdle:       true,
		types.RoomUserStateReady:      true,
		types.RoomUserStateSpectating: true,
	},
	types.RoomUserStateSpectating: {
		types.RoomUserStateIdle: true,
	},
}

// silentDropToIdle is the set of gameplay states from which a client's own
// Idle request races the server's authoritative transition and is
// dropped rather than rejected — spec §4.3's "race with client-side
// un-ready" rule.
var silentDropToIdle = map[types.RoomUserState]bool{
	types.RoomUserStateWaitingForLoad: true,
	types.RoomUserStateLoaded:         true,
	types.RoomUserStatePlaying:        true,
}

// ChangeState implements spec §4.3's ChangeState against the transition
// table above.
func (c *Coordinator) ChangeState(ctx context.Context, callerID types.UserIdType, newState types.RoomUserState) error {
	op, err := c.acquireOp(ctx, callerID)
	if err != nil {
		return err
	}
	defer op.Close()

	if newState == op.User.state {
		return nil // idempotent per spec §8: no mutation, no broadcast
	}

	if silentDropToIdle[op.User.state] && newState == types.RoomUserStateIdle {
		return nil
	}

	if !clientAllowedTransitions[op.User.state][newState] {
		return types.ErrInvalidStateChange
	}

	if newState == types.RoomUserStateReady {
		if _, ok := op.Room.Queue.Current(); !ok {
			return types.ErrInvalidStateChange
		}
	}

	c.applyUserState(ctx, op.Room, op.User, newState)

	if newState == types.RoomUserStateSpectating && op.Room.state != types.RoomStateOpen {
		c.broadcaster.SendToUser(ctx, callerID, EventLoadRequested, nil)
	}

	c.recomputeRoomState(ctx, op.Room)
	return nil
}

// applyUserState mutates a RoomUser's state, updates gameplay-group
// membership, and broadcasts UserStateChanged. Shared by ChangeState and
// every server-driven transition (internalStart, recomputeRoomState,
// AbortGameplay).
func (c *Coordinator) applyUserState(ctx context.Context, rm *Room, u *RoomUser, newState types.RoomUserState) {
	u.state = newState
	rm.setGameplayMembership(u.userID, newState)
	switch newState {
	case types.RoomUserStateReady, types.RoomUserStateSpectating:
		c.broadcaster.JoinGameplayGroup(u.userID, rm.ID)
	case types.RoomUserStateFinishedPlay, types.RoomUserStateIdle:
		c.broadcaster.LeaveGameplayGroup(u.userID, rm.ID)
	}
	metrics.RoomUserStateTransitions.WithLabelValues(string(newState)).Inc()
	c.broadcaster.BroadcastRoom(ctx, rm.ID, EventUserStateChanged, UserStateChangedPayload{UserID: string(u.userID), State: string(newState)}, "")
}

func (c *Coordinator) setRoomState(ctx context.Context, rm *Room, newState types.RoomState) {
	rm.state = newState
	metrics.RoomStateTransitions.WithLabelValues(string(newState)).Inc()
	c.broadcaster.BroadcastRoom(ctx, rm.ID, EventRoomStateChanged, RoomStateChangedPayload{State: string(newState)}, "")
}

// moveAll transitions every user currently in from to to, broadcasting
// each individually — spec §4.6's "move all Loaded → Playing (broadcast
// each)" and "move all FinishedPlay → Results".
func (c *Coordinator) moveAll(ctx context.Context, rm *Room, from, to types.RoomUserState) {
	for _, u := range rm.users {
		if u.state == from {
			c.applyUserState(ctx, rm, u, to)
		}
	}
}

// recomputeRoomState implements spec §4.6, called after any user-state or
// user-set change.
func (c *Coordinator) recomputeRoomState(ctx context.Context, rm *Room) {
	switch rm.state {
	case types.RoomStateOpen:
		c.reconcileAutoStart(ctx, rm)

	case types.RoomStateWaitingForLoad:
		if !rm.allUsersNotInState(types.RoomUserStateWaitingForLoad) {
			return
		}
		if rm.anyUserInState(types.RoomUserStateLoaded) {
			c.moveAll(ctx, rm, types.RoomUserStateLoaded, types.RoomUserStatePlaying)
			c.setRoomState(ctx, rm, types.RoomStatePlaying)
			c.broadcaster.BroadcastRoom(ctx, rm.ID, EventMatchStarted, nil, "")
		} else {
			c.setRoomState(ctx, rm, types.RoomStateOpen)
		}

	case types.RoomStatePlaying:
		if !rm.allUsersNotInState(types.RoomUserStatePlaying) {
			return
		}
		c.moveAll(ctx, rm, types.RoomUserStateFinishedPlay, types.RoomUserStateResults)
		c.setRoomState(ctx, rm, types.RoomStateOpen)
		c.broadcaster.BroadcastRoom(ctx, rm.ID, EventResultsReady, nil, "")
		c.finishCurrentPlaylistItem(ctx, rm)
	}
}

// reconcileAutoStart starts or stops the room's auto-start countdown to
// match whether it currently should be running — spec §4.6's Open-state
// rule.
func (c *Coordinator) reconcileAutoStart(ctx context.Context, rm *Room) {
	if rm.AutoStartDuration <= 0 {
		return
	}
	_, hasCurrent := rm.Queue.Current()
	anyReady := rm.anyUserInState(types.RoomUserStateReady)

	if anyReady && hasCurrent {
		if !rm.Countdown.Active() {
			c.startCountdownLocked(ctx, rm, types.CountdownKindAutoStart, rm.AutoStartDuration)
		}
		return
	}
	if rm.Countdown.StopIfKind(types.CountdownKindAutoStart) {
		metrics.CountdownOutcomes.WithLabelValues("abandoned").Inc()
		metrics.CountdownsActive.Dec()
		c.broadcaster.BroadcastRoom(ctx, rm.ID, EventCountdownChanged, nil, "")
	}
}

// startCountdownLocked starts a countdown whose completion re-acquires the
// room lock and, unless stopped first, runs onComplete — spec §4.7. The
// background task gets its own context since it must outlive the request
// that triggered it.
func (c *Coordinator) startCountdownLocked(ctx context.Context, rm *Room, kind types.CountdownKind, duration time.Duration) {
	metrics.CountdownsActive.Inc()
	roomID := rm.ID
	rm.Countdown.Start(context.Background(), kind, duration, c.reacquireRoom(roomID), func(completionCtx context.Context) {
		metrics.CountdownsActive.Dec()
		metrics.CountdownOutcomes.WithLabelValues("completed").Inc()
		if kind == types.CountdownKindAutoStart || kind == types.CountdownKindUserInitiated {
			if err := c.internalStart(completionCtx, rm); err != nil {
				slog.Error("countdown completion failed to start match", "room", roomID, "kind", kind, "error", err)
			}
		}
		c.broadcaster.BroadcastRoom(completionCtx, roomID, EventCountdownChanged, nil, "")
	})
	c.broadcaster.BroadcastRoom(ctx, roomID, EventCountdownChanged, nil, "")
}

// internalStart is StartMatch's internal-start procedure (spec §4.3),
// reused verbatim by a completed countdown's onComplete.
func (c *Coordinator) internalStart(ctx context.Context, rm *Room) error {
	if rm.state != types.RoomStateOpen {
		return types.ErrInvalidState
	}
	if !rm.anyUserInState(types.RoomUserStateReady) {
		return types.ErrInvalidState
	}
	host, ok := rm.User(rm.hostID)
	if !ok || (host.state != types.RoomUserStateReady && host.state != types.RoomUserStateSpectating) {
		return types.ErrInvalidState
	}

	c.moveAll(ctx, rm, types.RoomUserStateReady, types.RoomUserStateWaitingForLoad)
	c.setRoomState(ctx, rm, types.RoomStateWaitingForLoad)
	c.broadcaster.BroadcastGameplay(ctx, rm.ID, EventLoadRequested, nil)
	return nil
}

// finishCurrentPlaylistItem advances the playlist past the just-finished
// match (spec §4.5) and, since the current item always changes as a
// result, re-resolves Ready/mods state the same way RemovePlaylistItem
// does when it removes the current item.
func (c *Coordinator) finishCurrentPlaylistItem(ctx context.Context, rm *Room) {
	finishedID, ok, err := rm.Queue.FinishCurrentItem()
	if err != nil {
		slog.Error("failed to finish playlist item", "room", rm.ID, "error", err)
		return
	}
	if ok {
		if err := c.store.MarkPlaylistItemPlayed(ctx, rm.ID, finishedID); err != nil {
			slog.Error("failed to persist playlist item expiry", "room", rm.ID, "item", finishedID, "error", err)
		}
	}
	metrics.PlaylistItemsFinished.WithLabelValues(roomLabel(rm.ID)).Inc()
	metrics.PlaylistQueueLength.WithLabelValues(roomLabel(rm.ID)).Set(float64(len(rm.Queue.Items())))
	c.broadcaster.BroadcastRoom(ctx, rm.ID, EventPlaylistItemChanged, nil, "")
	c.reresolveCurrentItem(ctx, rm)
}

// userModsValid reports whether u's current mod selection is still legal
// against item (or there is no item at all, which is itself invalid).
func (c *Coordinator) userModsValid(item playlist.Item, hasItem bool, u *RoomUser) bool {
	if !hasItem {
		return u.mods.Required == nil && u.mods.Allowed == nil
	}
	return c.rules.ModsCompatible(u.mods.Required, item.AllowedMods)
}

// reresolveCurrentItem re-validates every user against whatever the
// current playlist item now is, demoting anyone Ready (their readiness
// was a bet on the old item) and clearing now-illegal mod selections.
// Used after FinishCurrentItem and after removing the current item — both
// change what Current() returns out from under the room's users.
func (c *Coordinator) reresolveCurrentItem(ctx context.Context, rm *Room) {
	item, hasItem := rm.Queue.Current()
	for _, u := range rm.users {
		if u.state == types.RoomUserStateReady {
			c.applyUserState(ctx, rm, u, types.RoomUserStateIdle)
		}
		if !c.userModsValid(item, hasItem, u) {
			u.mods = Mods{}
			c.broadcaster.BroadcastRoom(ctx, rm.ID, EventUserModsChanged, UserModsChangedPayload{UserID: string(u.userID)}, "")
		}
	}
}
