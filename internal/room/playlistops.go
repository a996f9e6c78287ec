package room

import (
	"context"
	"log/slog"

	"github.com/hexwave/roomplay/internal/playlist"
	"github.com/hexwave/roomplay/internal/types"
	"github.com/hexwave/roomplay/internal/v1/metrics"
)

// AddPlaylistItem appends a new item to the room's queue. Persistence is
// best-effort: the queue's id is server-authoritative, so a persistence
// failure here is logged rather than failing the request or attempting to
// reconcile two id spaces.
func (c *Coordinator) AddPlaylistItem(ctx context.Context, callerID types.UserIdType, item playlist.Item, checksum string) (playlist.Item, error) {
	op, err := c.acquireOp(ctx, callerID)
	if err != nil {
		return playlist.Item{}, err
	}
	defer op.Close()

	added, err := op.Room.Queue.Add(ctx, callerID, op.Room.hostID, item, checksum)
	if err != nil {
		return playlist.Item{}, err
	}

	if _, err := c.store.AddPlaylistItem(ctx, op.Room.ID, added); err != nil {
		slog.Error("failed to persist playlist item", "room", op.Room.ID, "item", added.ID, "error", err)
	}

	metrics.PlaylistQueueLength.WithLabelValues(roomLabel(op.Room.ID)).Set(float64(len(op.Room.Queue.Items())))
	c.broadcaster.BroadcastRoom(ctx, op.Room.ID, EventPlaylistItemAdded, toItemView(added), "")
	c.recomputeRoomState(ctx, op.Room)
	return added, nil
}

// EditPlaylistItem replaces an existing item's content in place.
func (c *Coordinator) EditPlaylistItem(ctx context.Context, callerID types.UserIdType, edited playlist.Item, checksum string) (playlist.Item, error) {
	op, err := c.acquireOp(ctx, callerID)
	if err != nil {
		return playlist.Item{}, err
	}
	defer op.Close()

	applied, err := op.Room.Queue.Edit(ctx, callerID, op.Room.hostID, edited, checksum)
	if err != nil {
		return playlist.Item{}, err
	}

	if err := c.store.UpdatePlaylistItem(ctx, op.Room.ID, applied); err != nil {
		slog.Error("failed to persist playlist item edit", "room", op.Room.ID, "item", applied.ID, "error", err)
	}

	c.broadcaster.BroadcastRoom(ctx, op.Room.ID, EventPlaylistItemChanged, toItemView(applied), "")
	c.recomputeRoomState(ctx, op.Room)
	return applied, nil
}

// RemovePlaylistItem deletes an item by id. If it was the current item,
// every user's readiness and mods are re-resolved against whatever becomes
// current next.
func (c *Coordinator) RemovePlaylistItem(ctx context.Context, callerID types.UserIdType, itemID int64) error {
	op, err := c.acquireOp(ctx, callerID)
	if err != nil {
		return err
	}
	defer op.Close()

	current, hasCurrent := op.Room.Queue.Current()
	wasCurrent := hasCurrent && current.ID == itemID

	if err := op.Room.Queue.Remove(callerID, op.Room.hostID, itemID); err != nil {
		return err
	}

	if err := c.store.RemovePlaylistItem(ctx, op.Room.ID, itemID); err != nil {
		slog.Error("failed to persist playlist item removal", "room", op.Room.ID, "item", itemID, "error", err)
	}

	metrics.PlaylistQueueLength.WithLabelValues(roomLabel(op.Room.ID)).Set(float64(len(op.Room.Queue.Items())))
	c.broadcaster.BroadcastRoom(ctx, op.Room.ID, EventPlaylistItemRemoved, PlaylistItemRemovedPayload{ID: itemID}, "")

	if wasCurrent {
		c.reresolveCurrentItem(ctx, op.Room)
	}
	c.recomputeRoomState(ctx, op.Room)
	return nil
}

// InvitePlayer notifies targetID of an invitation to callerID's room,
// subject to the target's block and PM-privacy settings.
func (c *Coordinator) InvitePlayer(ctx context.Context, callerID, targetID types.UserIdType) error {
	op, err := c.acquireOp(ctx, callerID)
	if err != nil {
		return err
	}
	defer op.Close()

	blocked, err := c.social.IsBlocked(ctx, callerID, targetID)
	if err != nil {
		return err
	}
	if blocked {
		return types.ErrUserBlocked
	}

	accepts, err := c.social.AcceptsInvitesFrom(ctx, targetID, callerID)
	if err != nil {
		return err
	}
	if !accepts {
		return types.ErrUserBlocksPMs
	}

	c.broadcaster.SendToUser(ctx, targetID, EventInvited, InvitedPayload{
		RoomID: roomLabel(op.Room.ID),
		FromID: string(callerID),
	})
	return nil
}

// ChangeBeatmapAvailability records a user's local download-state signal,
// broadcast so the host's UI can decide when to start the match.
func (c *Coordinator) ChangeBeatmapAvailability(ctx context.Context, callerID types.UserIdType, availability types.BeatmapAvailability) error {
	if !types.ValidBeatmapAvailability[availability] {
		return types.ErrInvalidState
	}

	op, err := c.acquireOp(ctx, callerID)
	if err != nil {
		return err
	}
	defer op.Close()

	op.User.beatmapAvailability = availability
	c.broadcaster.BroadcastRoom(ctx, op.Room.ID, EventUserBeatmapAvailabilityChanged, UserBeatmapAvailabilityChangedPayload{
		UserID:       string(callerID),
		Availability: string(availability),
	}, "")
	return nil
}

func toItemView(it playlist.Item) playlistItemView {
	return playlistItemView{
		ID:           it.ID,
		BeatmapID:    it.BeatmapID,
		RulesetID:    it.RulesetID,
		RequiredMods: cloneStrings(it.RequiredMods),
		AllowedMods:  cloneStrings(it.AllowedMods),
		Expired:      it.Expired,
		OwnerID:      it.OwnerID,
	}
}
