// Package playlist implements the per-room Playlist Queue of spec §4.5:
// ordered upcoming items, current-item resolution, add/edit/remove
// validation scoped by queue-mode, and successor selection at match end.
//
// Queue has no internal locking of its own — like the teacher's Room
// helper methods, it assumes its caller already holds the owning room's
// lock for the duration of the call.
package playlist

import (
	"container/list"
	"context"
	"fmt"

	"github.com/hexwave/roomplay/internal/types"
)

// Item is one playlist entry.
type Item struct {
	ID           int64
	BeatmapID    string
	RulesetID    string
	RequiredMods []string
	AllowedMods  []string
	OrderKey     int64
	Expired      bool
	OwnerID      types.UserIdType
}

// BeatmapLookup resolves a beatmap's checksum for add/edit validation.
// internal/persistence.Store satisfies this.
type BeatmapLookup interface {
	BeatmapChecksum(ctx context.Context, beatmapID string) (checksum string, ok bool, err error)
}

// RulesetValidator checks ruleset legality and required/allowed-mod
// compatibility. internal/rules.ModLegality satisfies this.
type RulesetValidator interface {
	LegalRuleset(rulesetID string) bool
	ModsCompatible(requiredMods, allowedMods []string) bool
}

// Queue holds one room's upcoming playlist items. Submission order is kept
// in a single list; AllPlayersRoundRobin derives its effective (interleaved)
// order from it on demand rather than maintaining a second copy.
type Queue struct {
	mode     types.QueueMode
	beatmaps BeatmapLookup
	rules    RulesetValidator
	nextID   int64
	nextKey  int64

	items *list.List // *Item, submission order

	// ownerCycle is the round-robin visiting order for
	// AllPlayersRoundRobin: whichever owner is at the front gets the next
	// turn once their previously-played item is consumed.
	ownerCycle *list.List // types.UserIdType
}

func New(mode types.QueueMode, beatmaps BeatmapLookup, rules RulesetValidator) *Queue {
	return &Queue{
		mode:       mode,
		beatmaps:   beatmaps,
		rules:      rules,
		items:      list.New(),
		ownerCycle: list.New(),
	}
}

// LoadItems seeds the queue from previously-persisted items (room
// creation from an existing persistence record), preserving their ids,
// order keys and expiry. The internal id/order-key counters are advanced
// past whatever is loaded so newly-added items never collide.
func (q *Queue) LoadItems(items []Item) {
	for i := range items {
		it := items[i]
		q.items.PushBack(&it)
		if it.ID > q.nextID {
			q.nextID = it.ID
		}
		if it.OrderKey > q.nextKey {
			q.nextKey = it.OrderKey
		}
	}
}

// SetMode re-derives ordering for a queue-mode change, per spec §4.3's
// ChangeSettings rule ("on queue-mode change, ask the queue to re-derive
// ordering"). Existing items keep their submission order; which order is
// then exposed as "effective" follows the new mode.
func (q *Queue) SetMode(mode types.QueueMode) {
	q.mode = mode
}

// Current returns the first non-expired item in effective order, or false
// if every item is expired (or there are none) — the room then has no
// current item and Ready transitions must fail.
func (q *Queue) Current() (Item, bool) {
	for _, it := range q.effectiveOrder() {
		if !it.Expired {
			return *it, true
		}
	}
	return Item{}, false
}

// Items returns every tracked item in effective order.
func (q *Queue) Items() []Item {
	ordered := q.effectiveOrder()
	out := make([]Item, 0, len(ordered))
	for _, it := range ordered {
		out = append(out, *it)
	}
	return out
}

func (q *Queue) effectiveOrder() []*Item {
	if q.mode != types.QueueModeAllPlayersRoundRobin {
		out := make([]*Item, 0, q.items.Len())
		for e := q.items.Front(); e != nil; e = e.Next() {
			out = append(out, e.Value.(*Item))
		}
		return out
	}
	return q.roundRobinOrder()
}

// roundRobinOrder interleaves each owner's sublist (in that owner's
// submission order), visiting owners in ownerCycle order and wrapping
// around until every sublist is exhausted.
func (q *Queue) roundRobinOrder() []*Item {
	perOwner := make(map[types.UserIdType][]*Item)
	for e := q.items.Front(); e != nil; e = e.Next() {
		it := e.Value.(*Item)
		if q.findOwnerInCycle(it.OwnerID) == nil {
			q.ownerCycle.PushBack(it.OwnerID)
		}
		perOwner[it.OwnerID] = append(perOwner[it.OwnerID], it)
	}

	var cycle []types.UserIdType
	for e := q.ownerCycle.Front(); e != nil; e = e.Next() {
		cycle = append(cycle, e.Value.(types.UserIdType))
	}

	idx := make(map[types.UserIdType]int)
	var out []*Item
	for {
		progressed := false
		for _, owner := range cycle {
			items := perOwner[owner]
			i := idx[owner]
			if i < len(items) {
				out = append(out, items[i])
				idx[owner] = i + 1
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	return out
}

func (q *Queue) findOwnerInCycle(owner types.UserIdType) *list.Element {
	for e := q.ownerCycle.Front(); e != nil; e = e.Next() {
		if e.Value.(types.UserIdType) == owner {
			return e
		}
	}
	return nil
}

// rotateOwnerToBack sends owner to the back of the visiting order, so the
// next owner in line gets priority the next time a round-robin item is
// finished — "rotates ownership fairly" per spec §4.5.
func (q *Queue) rotateOwnerToBack(owner types.UserIdType) {
	if e := q.findOwnerInCycle(owner); e != nil {
		q.ownerCycle.MoveToBack(e)
	}
}

func (q *Queue) find(id int64) *list.Element {
	for e := q.items.Front(); e != nil; e = e.Next() {
		if e.Value.(*Item).ID == id {
			return e
		}
	}
	return nil
}

func (q *Queue) validate(ctx context.Context, rulesetID string, requiredMods, allowedMods []string, beatmapID, checksum string) error {
	if !q.rules.LegalRuleset(rulesetID) {
		return types.ErrInvalidState
	}
	if !q.rules.ModsCompatible(requiredMods, allowedMods) {
		return types.ErrInvalidState
	}
	actual, ok, err := q.beatmaps.BeatmapChecksum(ctx, beatmapID)
	if err != nil {
		return err
	}
	if !ok || actual != checksum {
		return types.ErrInvalidState
	}
	return nil
}

// HostOnly allows only the host to add, and at most one pending item at a
// time (continuously re-edited rather than queued up). AllPlayers and
// AllPlayersRoundRobin let anyone append, but only the owner may edit or
// remove their own items; HostOnly restricts both to the host.
func (q *Queue) canAdd(callerID, hostID types.UserIdType) bool {
	if q.mode == types.QueueModeHostOnly {
		if callerID != hostID {
			return false
		}
		return q.pendingCount() == 0
	}
	return true
}

func (q *Queue) canModify(callerID, hostID types.UserIdType, owner types.UserIdType) bool {
	if q.mode == types.QueueModeHostOnly {
		return callerID == hostID
	}
	return callerID == owner
}

func (q *Queue) pendingCount() int {
	n := 0
	for e := q.items.Front(); e != nil; e = e.Next() {
		if !e.Value.(*Item).Expired {
			n++
		}
	}
	return n
}

// Add validates and appends a new item, checksum and ruleset legality
// included.
func (q *Queue) Add(ctx context.Context, callerID, hostID types.UserIdType, item Item, checksum string) (Item, error) {
	if !q.canAdd(callerID, hostID) {
		return Item{}, types.ErrInvalidState
	}
	if err := q.validate(ctx, item.RulesetID, item.RequiredMods, item.AllowedMods, item.BeatmapID, checksum); err != nil {
		return Item{}, err
	}

	q.nextID++
	item.ID = q.nextID
	item.OwnerID = callerID
	item.Expired = false
	q.nextKey++
	item.OrderKey = q.nextKey
	q.items.PushBack(&item)
	return item, nil
}

// Edit validates and replaces an existing item's content in place,
// preserving its id, order and owner.
func (q *Queue) Edit(ctx context.Context, callerID, hostID types.UserIdType, edited Item, checksum string) (Item, error) {
	el := q.find(edited.ID)
	if el == nil {
		return Item{}, types.ErrInvalidState
	}
	existing := el.Value.(*Item)
	if !q.canModify(callerID, hostID, existing.OwnerID) {
		return Item{}, types.ErrInvalidState
	}
	if err := q.validate(ctx, edited.RulesetID, edited.RequiredMods, edited.AllowedMods, edited.BeatmapID, checksum); err != nil {
		return Item{}, err
	}

	edited.ID = existing.ID
	edited.OwnerID = existing.OwnerID
	edited.OrderKey = existing.OrderKey
	edited.Expired = existing.Expired
	*existing = edited
	return *existing, nil
}

// Remove deletes an item by id if the caller is permitted to.
func (q *Queue) Remove(callerID, hostID types.UserIdType, id int64) error {
	el := q.find(id)
	if el == nil {
		return types.ErrInvalidState
	}
	existing := el.Value.(*Item)
	if !q.canModify(callerID, hostID, existing.OwnerID) {
		return types.ErrInvalidState
	}
	q.items.Remove(el)
	return nil
}

// FinishCurrentItem marks the current item expired and produces its
// successor per queue-mode: HostOnly clones the finished item for replay;
// AllPlayers and AllPlayersRoundRobin simply advance to the next
// non-expired item, creating nothing (round-robin additionally rotates its
// owner to the back of the visiting order). The current item always
// changes as a result — either to a new one or to none — so Room should
// always re-unready users and re-validate mods after calling this. Returns
// the finished item's id so the caller can persist its expiry; ok is false
// if there was no current item to finish.
func (q *Queue) FinishCurrentItem() (finishedID int64, ok bool, err error) {
	cur, ok := q.Current()
	if !ok {
		return 0, false, nil
	}

	el := q.find(cur.ID)
	if el == nil {
		return 0, false, fmt.Errorf("playlist: current item %d not found", cur.ID)
	}
	el.Value.(*Item).Expired = true

	switch q.mode {
	case types.QueueModeHostOnly:
		clone := *el.Value.(*Item)
		q.nextID++
		clone.ID = q.nextID
		clone.Expired = false
		q.nextKey++
		clone.OrderKey = q.nextKey
		q.items.PushBack(&clone)
	case types.QueueModeAllPlayersRoundRobin:
		q.rotateOwnerToBack(cur.OwnerID)
	}

	return cur.ID, true, nil
}
