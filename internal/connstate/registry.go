// Package connstate tracks which transport connection currently owns each
// user's per-hub-kind session and enforces the single-active-instance and
// stale-connection rules of spec §4.2/§4.8.
package connstate

import (
	"context"

	"github.com/hexwave/roomplay/internal/entitystore"
	"github.com/hexwave/roomplay/internal/types"
)

// ConnectionState is the per-user registry entry: the token-id of the
// client instance that currently owns the user's connections, and which
// transport connection backs each hub kind that instance has opened.
type ConnectionState struct {
	TokenID types.TokenIdType
	Conns   map[types.HubKind]types.ConnectionIdType
}

func newConnectionState(tokenID types.TokenIdType, kind types.HubKind, connID types.ConnectionIdType) ConnectionState {
	return ConnectionState{
		TokenID: tokenID,
		Conns:   map[types.HubKind]types.ConnectionIdType{kind: connID},
	}
}

// Disconnector delivers a DisconnectRequested notice to a connection being
// superseded by a new client instance. Hub supplies the implementation.
type Disconnector interface {
	SendDisconnectRequested(ctx context.Context, userID types.UserIdType, kind types.HubKind, connID types.ConnectionIdType)
}

// Registry is the process-wide ConnectionState store, one entry per user-id.
type Registry struct {
	store *entitystore.Store[types.UserIdType, ConnectionState]
}

func NewRegistry() *Registry {
	return &Registry{store: entitystore.New[types.UserIdType, ConnectionState]()}
}

// Connect implements the spec §4.2 on-connect procedure: a user with no
// state registers a new one; the same token-id overwrites the slot for this
// hub kind; a different token-id supersedes the old instance entirely,
// notifying each of its live connections first.
func (r *Registry) Connect(ctx context.Context, d Disconnector, userID types.UserIdType, tokenID types.TokenIdType, kind types.HubKind, connID types.ConnectionIdType) error {
	usage, err := r.store.Acquire(ctx, userID, true)
	if err != nil {
		return err
	}
	defer usage.Release()

	cur := usage.Value()
	if cur.Conns == nil {
		usage.SetValue(newConnectionState(tokenID, kind, connID))
		return nil
	}

	if cur.TokenID == tokenID {
		cur.Conns[kind] = connID
		usage.SetValue(cur)
		return nil
	}

	for k, oldConnID := range cur.Conns {
		d.SendDisconnectRequested(ctx, userID, k, oldConnID)
	}
	usage.SetValue(newConnectionState(tokenID, kind, connID))
	return nil
}

// Verify is the Connection Limiter of spec §4.8: every coordinator
// invocation must carry a (token-id, conn-id, hub-kind) matching the
// registry's current record for the caller, or it is rejected with
// types.ErrStaleConnection before the coordinator ever runs.
func (r *Registry) Verify(ctx context.Context, userID types.UserIdType, tokenID types.TokenIdType, kind types.HubKind, connID types.ConnectionIdType) error {
	usage, err := r.store.Acquire(ctx, userID, false)
	if err != nil {
		if err == types.ErrNotTracked {
			return types.ErrStaleConnection
		}
		return err
	}
	defer usage.Release()

	cur := usage.Value()
	if cur.TokenID != tokenID {
		return types.ErrStaleConnection
	}
	stored, ok := cur.Conns[kind]
	if !ok || stored != connID {
		return types.ErrStaleConnection
	}
	return nil
}

// Disconnect removes the registry entry for userID if tokenID still owns
// it. A non-matching token-id means this instance was already superseded;
// the call is a no-op rather than an error, per spec §4.2's "transport-layer
// errors are ignored" rule.
func (r *Registry) Disconnect(ctx context.Context, userID types.UserIdType, tokenID types.TokenIdType) error {
	usage, err := r.store.Acquire(ctx, userID, false)
	if err != nil {
		if err == types.ErrNotTracked {
			return nil
		}
		return err
	}

	cur := usage.Value()
	if cur.TokenID != tokenID {
		usage.Release()
		return nil
	}
	usage.Release()

	if err := r.store.Destroy(ctx, userID); err != nil && err != types.ErrNotTracked {
		return err
	}
	return nil
}
