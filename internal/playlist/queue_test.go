package playlist

import (
	"context"
	"testing"

	"github.com/hexwave/roomplay/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBeatmaps struct {
	checksums map[string]string
}

func (f *fakeBeatmaps) BeatmapChecksum(_ context.Context, beatmapID string) (string, bool, error) {
	sum, ok := f.checksums[beatmapID]
	return sum, ok, nil
}

type fakeRules struct{ legalRulesets map[string]bool }

func (f *fakeRules) LegalRuleset(id string) bool { return f.legalRulesets[id] }
func (f *fakeRules) ModsCompatible(required, allowed []string) bool {
	allowedSet := make(map[string]bool, len(allowed))
	for _, m := range allowed {
		allowedSet[m] = true
	}
	for _, m := range required {
		if !allowedSet[m] {
			return false
		}
	}
	return true
}

func newTestQueue(mode types.QueueMode) *Queue {
	beatmaps := &fakeBeatmaps{checksums: map[string]string{"bm1": "sum1", "bm2": "sum2", "bm3": "sum3"}}
	rules := &fakeRules{legalRulesets: map[string]bool{"osu": true}}
	return New(mode, beatmaps, rules)
}

const (
	host  types.UserIdType = "host"
	alice types.UserIdType = "alice"
	bob   types.UserIdType = "bob"
)

func validItem(beatmapID string) Item {
	return Item{
		BeatmapID:    beatmapID,
		RulesetID:    "osu",
		RequiredMods: []string{"HD"},
		AllowedMods:  []string{"HD", "HR"},
	}
}

func TestAddRejectsIllegalRuleset(t *testing.T) {
	q := newTestQueue(types.QueueModeAllPlayers)
	item := validItem("bm1")
	item.RulesetID = "mania"
	_, err := q.Add(context.Background(), alice, host, item, "sum1")
	assert.ErrorIs(t, err, types.ErrInvalidState)
}

func TestAddRejectsIncompatibleMods(t *testing.T) {
	q := newTestQueue(types.QueueModeAllPlayers)
	item := validItem("bm1")
	item.RequiredMods = []string{"DT"}
	_, err := q.Add(context.Background(), alice, host, item, "sum1")
	assert.ErrorIs(t, err, types.ErrInvalidState)
}

func TestAddRejectsChecksumMismatch(t *testing.T) {
	q := newTestQueue(types.QueueModeAllPlayers)
	_, err := q.Add(context.Background(), alice, host, validItem("bm1"), "wrong-checksum")
	assert.ErrorIs(t, err, types.ErrInvalidState)
}

func TestAddRejectsUnknownBeatmap(t *testing.T) {
	q := newTestQueue(types.QueueModeAllPlayers)
	_, err := q.Add(context.Background(), alice, host, validItem("unknown"), "sum1")
	assert.ErrorIs(t, err, types.ErrInvalidState)
}

func TestHostOnlyRejectsNonHostAdd(t *testing.T) {
	q := newTestQueue(types.QueueModeHostOnly)
	_, err := q.Add(context.Background(), alice, host, validItem("bm1"), "sum1")
	assert.ErrorIs(t, err, types.ErrInvalidState)
}

func TestHostOnlyAllowsOnlyOnePendingItem(t *testing.T) {
	q := newTestQueue(types.QueueModeHostOnly)
	_, err := q.Add(context.Background(), host, host, validItem("bm1"), "sum1")
	require.NoError(t, err)

	_, err = q.Add(context.Background(), host, host, validItem("bm2"), "sum2")
	assert.ErrorIs(t, err, types.ErrInvalidState)
}

func TestAllPlayersAnyoneCanAddOnlyOwnerCanEditOrRemove(t *testing.T) {
	q := newTestQueue(types.QueueModeAllPlayers)
	added, err := q.Add(context.Background(), alice, host, validItem("bm1"), "sum1")
	require.NoError(t, err)

	notOwner := validItem("bm2")
	notOwner.ID = added.ID
	_, err = q.Edit(context.Background(), bob, host, notOwner, "sum2")
	assert.ErrorIs(t, err, types.ErrInvalidState)

	edited := validItem("bm2")
	edited.ID = added.ID
	got, err := q.Edit(context.Background(), alice, host, edited, "sum2")
	require.NoError(t, err)
	assert.Equal(t, "bm2", got.BeatmapID)

	err = q.Remove(bob, host, added.ID)
	assert.ErrorIs(t, err, types.ErrInvalidState)

	require.NoError(t, q.Remove(alice, host, added.ID))
}

func TestCurrentSkipsExpiredItems(t *testing.T) {
	q := newTestQueue(types.QueueModeAllPlayers)
	first, err := q.Add(context.Background(), alice, host, validItem("bm1"), "sum1")
	require.NoError(t, err)
	_, err = q.Add(context.Background(), bob, host, validItem("bm2"), "sum2")
	require.NoError(t, err)

	cur, ok := q.Current()
	require.True(t, ok)
	assert.Equal(t, first.ID, cur.ID)

	_, _, err = q.FinishCurrentItem()
	require.NoError(t, err)

	cur, ok = q.Current()
	require.True(t, ok)
	assert.Equal(t, "bm2", cur.BeatmapID)
}

func TestCurrentFalseWhenAllExpired(t *testing.T) {
	q := newTestQueue(types.QueueModeAllPlayers)
	_, err := q.Add(context.Background(), alice, host, validItem("bm1"), "sum1")
	require.NoError(t, err)

	_, _, err = q.FinishCurrentItem()
	require.NoError(t, err)
	_, ok := q.Current()
	assert.False(t, ok)
}

func TestHostOnlyFinishClonesForReplay(t *testing.T) {
	q := newTestQueue(types.QueueModeHostOnly)
	first, err := q.Add(context.Background(), host, host, validItem("bm1"), "sum1")
	require.NoError(t, err)

	_, _, err = q.FinishCurrentItem()
	require.NoError(t, err)

	cur, ok := q.Current()
	require.True(t, ok)
	assert.Equal(t, "bm1", cur.BeatmapID)
	assert.NotEqual(t, first.ID, cur.ID)
}

func TestRoundRobinInterleavesOwners(t *testing.T) {
	q := newTestQueue(types.QueueModeAllPlayersRoundRobin)

	a1, err := q.Add(context.Background(), alice, host, validItem("bm1"), "sum1")
	require.NoError(t, err)
	a2, err := q.Add(context.Background(), alice, host, validItem("bm2"), "sum2")
	require.NoError(t, err)
	b1, err := q.Add(context.Background(), bob, host, validItem("bm3"), "sum3")
	require.NoError(t, err)

	items := q.Items()
	require.Len(t, items, 3)
	// alice submitted first, so her first item leads; bob's single item
	// interleaves before alice's second.
	assert.Equal(t, a1.ID, items[0].ID)
	assert.Equal(t, b1.ID, items[1].ID)
	assert.Equal(t, a2.ID, items[2].ID)
}

func TestRoundRobinRotatesOwnershipOnFinish(t *testing.T) {
	q := newTestQueue(types.QueueModeAllPlayersRoundRobin)

	_, err := q.Add(context.Background(), alice, host, validItem("bm1"), "sum1")
	require.NoError(t, err)
	_, err = q.Add(context.Background(), bob, host, validItem("bm2"), "sum2")
	require.NoError(t, err)

	cur, ok := q.Current()
	require.True(t, ok)
	assert.Equal(t, alice, cur.OwnerID)

	_, _, err = q.FinishCurrentItem()
	require.NoError(t, err)

	cur, ok = q.Current()
	require.True(t, ok)
	assert.Equal(t, bob, cur.OwnerID)

	// Alice adds another item. Finishing bob's item rotates him to the
	// back in turn, so alice's new item comes up next.
	_, err = q.Add(context.Background(), alice, host, validItem("bm3"), "sum3")
	require.NoError(t, err)
	_, _, err = q.FinishCurrentItem()
	require.NoError(t, err)

	cur, ok = q.Current()
	require.True(t, ok)
	assert.Equal(t, alice, cur.OwnerID)
}

func TestSetModeChangesEffectiveOrderingPolicy(t *testing.T) {
	q := newTestQueue(types.QueueModeAllPlayers)
	_, err := q.Add(context.Background(), alice, host, validItem("bm1"), "sum1")
	require.NoError(t, err)

	q.SetMode(types.QueueModeHostOnly)
	_, err = q.Add(context.Background(), alice, host, validItem("bm2"), "sum2")
	assert.ErrorIs(t, err, types.ErrInvalidState)
}
