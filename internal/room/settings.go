package room

import (
	"context"
	"log/slog"
	"time"

	"github.com/hexwave/roomplay/internal/matchtype"
	"github.com/hexwave/roomplay/internal/persistence"
	"github.com/hexwave/roomplay/internal/types"
	"github.com/hexwave/roomplay/internal/v1/metrics"
)

// StartMatch implements spec §4.3's host-triggered StartMatch.
func (c *Coordinator) StartMatch(ctx context.Context, callerID types.UserIdType) error {
	op, err := c.acquireOp(ctx, callerID)
	if err != nil {
		return err
	}
	defer op.Close()

	if op.Room.hostID != callerID {
		return types.ErrNotHost
	}
	return c.internalStart(ctx, op.Room)
}

// AbortGameplay lets a user in any gameplay state bail out back to Idle
// without waiting for the rest of the room, per spec §4.3.
func (c *Coordinator) AbortGameplay(ctx context.Context, callerID types.UserIdType) error {
	op, err := c.acquireOp(ctx, callerID)
	if err != nil {
		return err
	}
	defer op.Close()

	if !types.GameplayStates[op.User.state] {
		return types.ErrInvalidState
	}
	c.applyUserState(ctx, op.Room, op.User, types.RoomUserStateIdle)
	c.recomputeRoomState(ctx, op.Room)
	return nil
}

// TransferHost hands host privilege to another joined user.
func (c *Coordinator) TransferHost(ctx context.Context, callerID, targetID types.UserIdType) error {
	op, err := c.acquireOp(ctx, callerID)
	if err != nil {
		return err
	}
	defer op.Close()

	if op.Room.hostID != callerID {
		return types.ErrNotHost
	}
	if _, ok := op.Room.User(targetID); !ok {
		return types.ErrInvalidState
	}

	op.Room.hostID = targetID
	if err := c.store.UpdateRoomHost(ctx, op.Room.ID, targetID); err != nil {
		slog.Error("failed to persist host transfer", "room", op.Room.ID, "error", err)
	}
	c.broadcaster.BroadcastRoom(ctx, op.Room.ID, EventHostChanged, HostChangedPayload{HostID: string(targetID)}, "")
	return nil
}

// RoomSettings is the mutable subset of room configuration ChangeSettings
// may update.
type RoomSettings struct {
	Name              string
	Password          string
	MatchType         types.MatchType
	QueueMode         types.QueueMode
	AutoStartDuration time.Duration
}

func (s RoomSettings) equal(rm *Room) bool {
	return s.Name == rm.Name &&
		s.Password == rm.Password &&
		s.MatchType == rm.MatchType &&
		s.QueueMode == rm.QueueMode &&
		s.AutoStartDuration == rm.AutoStartDuration
}

// ChangeSettings implements spec §4.3's host-only ChangeSettings, including
// the persistence-failure rollback and mod re-validation it requires.
func (c *Coordinator) ChangeSettings(ctx context.Context, callerID types.UserIdType, newSettings RoomSettings) error {
	op, err := c.acquireOp(ctx, callerID)
	if err != nil {
		return err
	}
	defer op.Close()

	if op.Room.hostID != callerID {
		return types.ErrNotHost
	}
	if op.Room.state != types.RoomStateOpen {
		return types.ErrInvalidState
	}
	if newSettings.MatchType == types.MatchTypePlaylists {
		return types.ErrInvalidState
	}
	if newSettings.equal(op.Room) {
		return nil
	}

	rm := op.Room
	prevName, prevPassword := rm.Name, rm.Password
	prevMatchType, prevQueueMode, prevAutoStart := rm.MatchType, rm.QueueMode, rm.AutoStartDuration
	prevStrategy := rm.strategy

	matchTypeChanged := newSettings.MatchType != prevMatchType
	if matchTypeChanged {
		strategy, err := matchtype.New(newSettings.MatchType)
		if err != nil {
			return err
		}
		rm.strategy = strategy
	}

	rm.Name = newSettings.Name
	rm.Password = newSettings.Password
	rm.MatchType = newSettings.MatchType
	rm.QueueMode = newSettings.QueueMode
	rm.AutoStartDuration = newSettings.AutoStartDuration

	if newSettings.QueueMode != prevQueueMode {
		rm.Queue.SetMode(newSettings.QueueMode)
	}
	if matchTypeChanged {
		for _, u := range rm.users {
			u.SetTeamID("")
			rm.strategy.OnJoin(u)
		}
	}

	record := persistence.RoomRecord{
		RoomID:            rm.ID,
		Name:              rm.Name,
		Password:          rm.Password,
		MatchType:         rm.MatchType,
		QueueMode:         rm.QueueMode,
		AutoStartDuration: rm.AutoStartDuration,
		HostUserID:        rm.hostID,
	}
	if err := c.store.UpdateRoomSettings(ctx, record); err != nil {
		rm.Name, rm.Password = prevName, prevPassword
		rm.MatchType, rm.QueueMode, rm.AutoStartDuration = prevMatchType, prevQueueMode, prevAutoStart
		rm.strategy = prevStrategy
		if newSettings.QueueMode != prevQueueMode {
			rm.Queue.SetMode(prevQueueMode)
		}
		return err
	}

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

	c.broadcaster.BroadcastRoom(ctx, rm.ID, EventSettingsChanged, rm.Snapshot(), "")
	c.recomputeRoomState(ctx, rm)
	return nil
}

// ChangeUserMods validates and applies a user's own mod selection against
// the room's current playlist item.
func (c *Coordinator) ChangeUserMods(ctx context.Context, callerID types.UserIdType, mods Mods) error {
	op, err := c.acquireOp(ctx, callerID)
	if err != nil {
		return err
	}
	defer op.Close()

	item, hasItem := op.Room.Queue.Current()
	if !hasItem || !c.rules.ModsCompatible(mods.Required, item.AllowedMods) {
		return types.ErrInvalidState
	}
	op.User.mods = mods
	c.broadcaster.BroadcastRoom(ctx, op.Room.ID, EventUserModsChanged, UserModsChangedPayload{UserID: string(callerID)}, "")
	return nil
}

// StartCountdownRequest is a matchtype.Request asking the host's room to
// begin a user-initiated countdown. Rooms with AutoStartDuration already
// configured reject it — the two countdown kinds are mutually exclusive.
type StartCountdownRequest struct {
	Duration time.Duration
}

func (StartCountdownRequest) RequestTag() string { return "start_countdown" }

// StopCountdownRequest cancels a running user-initiated countdown. It
// cannot cancel an auto-start countdown.
type StopCountdownRequest struct{}

func (StopCountdownRequest) RequestTag() string { return "stop_countdown" }

// SendMatchRequest routes a match-type-specific or countdown request to
// either this package's own handling or the room's Strategy.
func (c *Coordinator) SendMatchRequest(ctx context.Context, callerID types.UserIdType, request matchtype.Request) error {
	op, err := c.acquireOp(ctx, callerID)
	if err != nil {
		return err
	}
	defer op.Close()

	switch req := request.(type) {
	case StartCountdownRequest:
		if op.Room.hostID != callerID {
			return types.ErrNotHost
		}
		if op.Room.state != types.RoomStateOpen || op.Room.AutoStartDuration > 0 {
			return types.ErrInvalidState
		}
		c.startCountdownLocked(ctx, op.Room, types.CountdownKindUserInitiated, req.Duration)
		return nil

	case StopCountdownRequest:
		if op.Room.hostID != callerID {
			return types.ErrNotHost
		}
		if !op.Room.Countdown.StopIfKind(types.CountdownKindUserInitiated) {
			return types.ErrInvalidState
		}
		metrics.CountdownsActive.Dec()
		metrics.CountdownOutcomes.WithLabelValues("stopped").Inc()
		c.broadcaster.BroadcastRoom(ctx, op.Room.ID, EventCountdownChanged, nil, "")
		return nil

	default:
		return op.Room.strategy.OnUserRequest(op.User, request)
	}
}
