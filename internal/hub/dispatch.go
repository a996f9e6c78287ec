package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hexwave/roomplay/internal/matchtype"
	"github.com/hexwave/roomplay/internal/playlist"
	"github.com/hexwave/roomplay/internal/room"
	"github.com/hexwave/roomplay/internal/types"
)

// dispatch decodes msg's payload per its Event and invokes the matching
// room.Coordinator operation, replying with EventError on rejection. A
// successful JoinRoom additionally replies with EventRoomSnapshot since the
// UserJoined broadcast skips the joining caller and no broadcast carries the
// full room state.
func dispatch(ctx context.Context, c *Client, msg Message) {
	switch msg.Event {
	case ActionJoinRoom:
		var req joinRoomRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			c.sendError(msg.Event, err)
			return
		}
		snapshot, err := c.hub.coordinator.JoinRoom(ctx, c.userID, types.RoomIdType(req.RoomID), req.Password)
		if err != nil {
			c.sendError(msg.Event, err)
			return
		}
		c.setRoom(types.RoomIdType(req.RoomID))
		c.sendMessage(EventRoomSnapshot, snapshot)

	case ActionLeaveRoom:
		if err := c.hub.coordinator.LeaveRoom(ctx, c.userID); err != nil {
			c.sendError(msg.Event, err)
			return
		}
		c.clearRoom()

	case ActionChangeState:
		var req changeStateRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			c.sendError(msg.Event, err)
			return
		}
		if err := c.hub.coordinator.ChangeState(ctx, c.userID, types.RoomUserState(req.State)); err != nil {
			c.sendError(msg.Event, err)
		}

	case ActionChangeSettings:
		var req changeSettingsRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			c.sendError(msg.Event, err)
			return
		}
		settings := room.RoomSettings{
			Name:              req.Name,
			Password:          req.Password,
			MatchType:         types.MatchType(req.MatchType),
			QueueMode:         types.QueueMode(req.QueueMode),
			AutoStartDuration: time.Duration(req.AutoStartDurationSeconds * float64(time.Second)),
		}
		if err := c.hub.coordinator.ChangeSettings(ctx, c.userID, settings); err != nil {
			c.sendError(msg.Event, err)
		}

	case ActionChangeUserMods:
		var req changeUserModsRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			c.sendError(msg.Event, err)
			return
		}
		mods := room.Mods{Required: req.Required, Allowed: req.Allowed}
		if err := c.hub.coordinator.ChangeUserMods(ctx, c.userID, mods); err != nil {
			c.sendError(msg.Event, err)
		}

	case ActionChangeBeatmapAvailability:
		var req changeBeatmapAvailabilityRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			c.sendError(msg.Event, err)
			return
		}
		avail := types.BeatmapAvailability(req.Availability)
		if err := c.hub.coordinator.ChangeBeatmapAvailability(ctx, c.userID, avail); err != nil {
			c.sendError(msg.Event, err)
		}

	case ActionSendMatchRequest:
		var req sendMatchRequestRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			c.sendError(msg.Event, err)
			return
		}
		request, err := decodeMatchRequest(req)
		if err != nil {
			c.sendError(msg.Event, err)
			return
		}
		if err := c.hub.coordinator.SendMatchRequest(ctx, c.userID, request); err != nil {
			c.sendError(msg.Event, err)
		}

	case ActionStartMatch:
		if err := c.hub.coordinator.StartMatch(ctx, c.userID); err != nil {
			c.sendError(msg.Event, err)
		}

	case ActionAbortGameplay:
		if err := c.hub.coordinator.AbortGameplay(ctx, c.userID); err != nil {
			c.sendError(msg.Event, err)
		}

	case ActionTransferHost:
		var req userIDRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			c.sendError(msg.Event, err)
			return
		}
		if err := c.hub.coordinator.TransferHost(ctx, c.userID, userIDType(req.UserID)); err != nil {
			c.sendError(msg.Event, err)
		}

	case ActionKickUser:
		var req userIDRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			c.sendError(msg.Event, err)
			return
		}
		if err := c.hub.coordinator.Kick(ctx, c.userID, userIDType(req.UserID)); err != nil {
			c.sendError(msg.Event, err)
		}

	case ActionAddPlaylistItem:
		var req playlistItemRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			c.sendError(msg.Event, err)
			return
		}
		item := playlistItemFromRequest(req)
		if _, err := c.hub.coordinator.AddPlaylistItem(ctx, c.userID, item, req.Checksum); err != nil {
			c.sendError(msg.Event, err)
		}

	case ActionEditPlaylistItem:
		var req playlistItemRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			c.sendError(msg.Event, err)
			return
		}
		item := playlistItemFromRequest(req)
		if _, err := c.hub.coordinator.EditPlaylistItem(ctx, c.userID, item, req.Checksum); err != nil {
			c.sendError(msg.Event, err)
		}

	case ActionRemovePlaylistItem:
		var req removePlaylistItemRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			c.sendError(msg.Event, err)
			return
		}
		if err := c.hub.coordinator.RemovePlaylistItem(ctx, c.userID, req.ID); err != nil {
			c.sendError(msg.Event, err)
		}

	case ActionInvitePlayer:
		var req userIDRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			c.sendError(msg.Event, err)
			return
		}
		if err := c.hub.coordinator.InvitePlayer(ctx, c.userID, userIDType(req.UserID)); err != nil {
			c.sendError(msg.Event, err)
		}

	default:
		c.sendError(msg.Event, errUnknownAction)
	}
}

func playlistItemFromRequest(req playlistItemRequest) playlist.Item {
	return playlist.Item{
		ID:           req.ID,
		BeatmapID:    req.BeatmapID,
		RulesetID:    req.RulesetID,
		RequiredMods: req.RequiredMods,
		AllowedMods:  req.AllowedMods,
	}
}

// decodeMatchRequest maps the wire-level Tag onto the matchtype.Request the
// Coordinator expects, covering both the countdown controls this package
// owns and TeamVersus's ChangeTeamRequest.
func decodeMatchRequest(req sendMatchRequestRequest) (matchtype.Request, error) {
	switch req.Tag {
	case "start_countdown":
		return room.StartCountdownRequest{Duration: time.Duration(req.DurationSeconds * float64(time.Second))}, nil
	case "stop_countdown":
		return room.StopCountdownRequest{}, nil
	case "change_team":
		return matchtype.ChangeTeamRequest{TeamID: req.TeamID}, nil
	default:
		return nil, errUnknownMatchRequest
	}
}
