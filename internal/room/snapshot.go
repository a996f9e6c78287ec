package room

import "github.com/hexwave/roomplay/internal/types"

// RoomUserSnapshot is the deep-copied, user-visible view of a RoomUser
// returned to clients, per spec §9's "deep-copy on snapshot return" design
// note (a purpose-built clone in place of the source's JSON round-trip).
type RoomUserSnapshot struct {
	UserID              types.UserIdType          `json:"userId"`
	State               types.RoomUserState       `json:"state"`
	RequiredMods        []string                  `json:"requiredMods"`
	AllowedMods         []string                  `json:"allowedMods"`
	BeatmapAvailability types.BeatmapAvailability  `json:"beatmapAvailability"`
	TeamID              string                    `json:"teamId,omitempty"`
}

// CountdownSnapshot mirrors countdown.Snapshot for the wire format.
type CountdownSnapshot struct {
	Kind          types.CountdownKind `json:"kind"`
	TimeRemaining float64             `json:"timeRemainingSeconds"`
}

// Snapshot is the full, deep-copied, user-visible view of a Room.
type Snapshot struct {
	ID                types.RoomIdType    `json:"roomId"`
	Name              string              `json:"name"`
	HasPassword       bool                `json:"hasPassword"`
	MatchType         types.MatchType     `json:"matchType"`
	QueueMode         types.QueueMode     `json:"queueMode"`
	AutoStartDuration float64             `json:"autoStartDurationSeconds"`
	HostID            types.UserIdType    `json:"hostId"`
	State             types.RoomState     `json:"state"`
	Users             []RoomUserSnapshot  `json:"users"`
	PlaylistItems     []playlistItemView  `json:"playlistItems"`
	Countdown         *CountdownSnapshot  `json:"countdown,omitempty"`
}

type playlistItemView struct {
	ID           int64            `json:"id"`
	BeatmapID    string           `json:"beatmapId"`
	RulesetID    string           `json:"rulesetId"`
	RequiredMods []string         `json:"requiredMods"`
	AllowedMods  []string         `json:"allowedMods"`
	Expired      bool             `json:"expired"`
	OwnerID      types.UserIdType `json:"ownerId"`
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// Snapshot deep-copies the room into a wire-safe view. Never hands out a
// live RoomUser, Queue item, or Countdown reference.
func (r *Room) Snapshot() Snapshot {
	users := make([]RoomUserSnapshot, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, RoomUserSnapshot{
			UserID:              u.userID,
			State:               u.state,
			RequiredMods:        cloneStrings(u.mods.Required),
			AllowedMods:         cloneStrings(u.mods.Allowed),
			BeatmapAvailability: u.beatmapAvailability,
			TeamID:              u.teamID,
		})
	}

	items := r.Queue.Items()
	itemViews := make([]playlistItemView, 0, len(items))
	for _, it := range items {
		itemViews = append(itemViews, playlistItemView{
			ID:           it.ID,
			BeatmapID:    it.BeatmapID,
			RulesetID:    it.RulesetID,
			RequiredMods: cloneStrings(it.RequiredMods),
			AllowedMods:  cloneStrings(it.AllowedMods),
			Expired:      it.Expired,
			OwnerID:      it.OwnerID,
		})
	}

	var cd *CountdownSnapshot
	if snap, ok := r.Countdown.Snapshot(); ok {
		cd = &CountdownSnapshot{Kind: snap.Kind, TimeRemaining: snap.TimeRemaining.Seconds()}
	}

	return Snapshot{
		ID:                r.ID,
		Name:              r.Name,
		HasPassword:       r.Password != "",
		MatchType:         r.MatchType,
		QueueMode:         r.QueueMode,
		AutoStartDuration: r.AutoStartDuration.Seconds(),
		HostID:            r.hostID,
		State:             r.state,
		Users:             users,
		PlaylistItems:     itemViews,
		Countdown:         cd,
	}
}
