package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"

	"github.com/hexwave/roomplay/internal/playlist"
	"github.com/hexwave/roomplay/internal/types"
	"github.com/hexwave/roomplay/internal/v1/metrics"
)

// PostgresStore is the pgx-backed implementation of Store. A circuit
// breaker wraps every query, mirroring internal/v1/cache's treatment of
// Redis, so a struggling database degrades the room server rather than
// wedging it — settings updates roll back their in-memory change on
// failure (spec §7) and callers of best-effort writes log and continue.
type PostgresStore struct {
	pool *pgxpool.Pool
	cb   *gobreaker.CircuitBreaker
}

// NewPostgresStore connects to dsn and verifies connectivity immediately.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("persistence: ping: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "postgres-persistence",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("postgres").Set(stateVal)
		},
	}

	slog.Info("Connected to Postgres persistence store")
	return &PostgresStore{pool: pool, cb: gobreaker.NewCircuitBreaker(st)}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.execBreaker(ctx, "ping", func(ctx context.Context) (any, error) {
		return nil, s.pool.Ping(ctx)
	})
	return err
}

// execBreaker runs fn through the circuit breaker, recording a Prometheus
// counter and duration per operation, matching internal/v1/cache's Redis
// operation metrics shape.
func (s *PostgresStore) execBreaker(ctx context.Context, op string, fn func(ctx context.Context) (any, error)) (any, error) {
	start := time.Now()
	res, err := s.cb.Execute(func() (any, error) {
		return fn(ctx)
	})
	metrics.PersistenceOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	status := "ok"
	if err != nil {
		status = "error"
		if err == gobreaker.ErrOpenState {
			status = "circuit_open"
		}
	}
	metrics.PersistenceOperationsTotal.WithLabelValues(op, status).Inc()
	return res, err
}

func (s *PostgresStore) GetRoom(ctx context.Context, roomID types.RoomIdType) (RoomRecord, error) {
	res, err := s.execBreaker(ctx, "get_room", func(ctx context.Context) (any, error) {
		row := s.pool.QueryRow(ctx, `
			SELECT name, password, host_user_id, match_type, queue_mode, auto_start_duration_ms, ended, ends_at
			FROM rooms WHERE room_id = $1
		`, int64(roomID))

		var rec RoomRecord
		var hostUserID string
		var matchType, queueMode string
		var autoStartMS int64
		var endsAt *time.Time

		if err := row.Scan(&rec.Name, &rec.Password, &hostUserID, &matchType, &queueMode, &autoStartMS, &rec.Ended, &endsAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, types.ErrInvalidState
			}
			return nil, err
		}

		rec.RoomID = roomID
		rec.HostUserID = types.UserIdType(hostUserID)
		rec.MatchType = types.MatchType(matchType)
		rec.QueueMode = types.QueueMode(queueMode)
		rec.AutoStartDuration = time.Duration(autoStartMS) * time.Millisecond
		rec.EndsAt = endsAt
		return rec, nil
	})
	if err != nil {
		return RoomRecord{}, err
	}
	return res.(RoomRecord), nil
}

func (s *PostgresStore) MarkRoomActive(ctx context.Context, roomID types.RoomIdType) error {
	_, err := s.execBreaker(ctx, "mark_room_active", func(ctx context.Context) (any, error) {
		_, err := s.pool.Exec(ctx, `UPDATE rooms SET ended = false WHERE room_id = $1`, int64(roomID))
		return nil, err
	})
	return err
}

func (s *PostgresStore) UpdateRoomSettings(ctx context.Context, room RoomRecord) error {
	_, err := s.execBreaker(ctx, "update_room_settings", func(ctx context.Context) (any, error) {
		_, err := s.pool.Exec(ctx, `
			UPDATE rooms
			SET name = $2, password = $3, match_type = $4, queue_mode = $5, auto_start_duration_ms = $6
			WHERE room_id = $1
		`, int64(room.RoomID), room.Name, room.Password, string(room.MatchType), string(room.QueueMode),
			room.AutoStartDuration.Milliseconds())
		return nil, err
	})
	return err
}

func (s *PostgresStore) UpdateRoomHost(ctx context.Context, roomID types.RoomIdType, hostUserID types.UserIdType) error {
	_, err := s.execBreaker(ctx, "update_room_host", func(ctx context.Context) (any, error) {
		_, err := s.pool.Exec(ctx, `UPDATE rooms SET host_user_id = $2 WHERE room_id = $1`, int64(roomID), string(hostUserID))
		return nil, err
	})
	return err
}

func (s *PostgresStore) EndMatch(ctx context.Context, roomID types.RoomIdType) error {
	_, err := s.execBreaker(ctx, "end_match", func(ctx context.Context) (any, error) {
		_, err := s.pool.Exec(ctx, `UPDATE rooms SET ended = true, ends_at = now() WHERE room_id = $1`, int64(roomID))
		return nil, err
	})
	return err
}

func (s *PostgresStore) AddParticipant(ctx context.Context, roomID types.RoomIdType, userID types.UserIdType) error {
	_, err := s.execBreaker(ctx, "add_participant", func(ctx context.Context) (any, error) {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO room_participants (room_id, user_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, int64(roomID), string(userID))
		return nil, err
	})
	return err
}

func (s *PostgresStore) RemoveParticipant(ctx context.Context, roomID types.RoomIdType, userID types.UserIdType) error {
	_, err := s.execBreaker(ctx, "remove_participant", func(ctx context.Context) (any, error) {
		_, err := s.pool.Exec(ctx, `DELETE FROM room_participants WHERE room_id = $1 AND user_id = $2`, int64(roomID), string(userID))
		return nil, err
	})
	return err
}

func (s *PostgresStore) GetCurrentPlaylistItem(ctx context.Context, roomID types.RoomIdType) (playlist.Item, bool, error) {
	res, err := s.execBreaker(ctx, "get_current_playlist_item", func(ctx context.Context) (any, error) {
		row := s.pool.QueryRow(ctx, `
			SELECT item_id, beatmap_id, ruleset_id, required_mods, allowed_mods, order_key, expired, owner_id
			FROM playlist_items
			WHERE room_id = $1 AND expired = false
			ORDER BY order_key ASC LIMIT 1
		`, int64(roomID))

		var item playlist.Item
		var ownerID string
		if err := row.Scan(&item.ID, &item.BeatmapID, &item.RulesetID, &item.RequiredMods, &item.AllowedMods,
			&item.OrderKey, &item.Expired, &ownerID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, nil
			}
			return nil, err
		}
		item.OwnerID = types.UserIdType(ownerID)
		return &item, nil
	})
	if err != nil {
		return playlist.Item{}, false, err
	}
	if res == nil {
		return playlist.Item{}, false, nil
	}
	return *res.(*playlist.Item), true, nil
}

func (s *PostgresStore) AddPlaylistItem(ctx context.Context, roomID types.RoomIdType, item playlist.Item) (int64, error) {
	res, err := s.execBreaker(ctx, "add_playlist_item", func(ctx context.Context) (any, error) {
		var id int64
		err := s.pool.QueryRow(ctx, `
			INSERT INTO playlist_items (room_id, beatmap_id, ruleset_id, required_mods, allowed_mods, order_key, expired, owner_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING item_id
		`, int64(roomID), item.BeatmapID, item.RulesetID, item.RequiredMods, item.AllowedMods,
			item.OrderKey, item.Expired, string(item.OwnerID)).Scan(&id)
		return id, err
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

func (s *PostgresStore) UpdatePlaylistItem(ctx context.Context, roomID types.RoomIdType, item playlist.Item) error {
	_, err := s.execBreaker(ctx, "update_playlist_item", func(ctx context.Context) (any, error) {
		_, err := s.pool.Exec(ctx, `
			UPDATE playlist_items
			SET beatmap_id = $3, ruleset_id = $4, required_mods = $5, allowed_mods = $6
			WHERE room_id = $1 AND item_id = $2
		`, int64(roomID), item.ID, item.BeatmapID, item.RulesetID, item.RequiredMods, item.AllowedMods)
		return nil, err
	})
	return err
}

func (s *PostgresStore) RemovePlaylistItem(ctx context.Context, roomID types.RoomIdType, itemID int64) error {
	_, err := s.execBreaker(ctx, "remove_playlist_item", func(ctx context.Context) (any, error) {
		_, err := s.pool.Exec(ctx, `DELETE FROM playlist_items WHERE room_id = $1 AND item_id = $2`, int64(roomID), itemID)
		return nil, err
	})
	return err
}

func (s *PostgresStore) MarkPlaylistItemPlayed(ctx context.Context, roomID types.RoomIdType, itemID int64) error {
	_, err := s.execBreaker(ctx, "mark_playlist_item_played", func(ctx context.Context) (any, error) {
		_, err := s.pool.Exec(ctx, `UPDATE playlist_items SET expired = true WHERE room_id = $1 AND item_id = $2`, int64(roomID), itemID)
		return nil, err
	})
	return err
}

func (s *PostgresStore) GetAllPlaylistItems(ctx context.Context, roomID types.RoomIdType) ([]playlist.Item, error) {
	res, err := s.execBreaker(ctx, "get_all_playlist_items", func(ctx context.Context) (any, error) {
		rows, err := s.pool.Query(ctx, `
			SELECT item_id, beatmap_id, ruleset_id, required_mods, allowed_mods, order_key, expired, owner_id
			FROM playlist_items WHERE room_id = $1 ORDER BY order_key ASC
		`, int64(roomID))
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var items []playlist.Item
		for rows.Next() {
			var item playlist.Item
			var ownerID string
			if err := rows.Scan(&item.ID, &item.BeatmapID, &item.RulesetID, &item.RequiredMods, &item.AllowedMods,
				&item.OrderKey, &item.Expired, &ownerID); err != nil {
				return nil, err
			}
			item.OwnerID = types.UserIdType(ownerID)
			items = append(items, item)
		}
		return items, rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return res.([]playlist.Item), nil
}

func (s *PostgresStore) BeatmapChecksum(ctx context.Context, beatmapID string) (string, bool, error) {
	res, err := s.execBreaker(ctx, "get_beatmap_checksum", func(ctx context.Context) (any, error) {
		var checksum string
		err := s.pool.QueryRow(ctx, `SELECT checksum FROM beatmaps WHERE beatmap_id = $1`, beatmapID).Scan(&checksum)
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return checksum, err
	})
	if err != nil {
		return "", false, err
	}
	checksum := res.(string)
	return checksum, checksum != "", nil
}

func (s *PostgresStore) IsUserRestricted(ctx context.Context, userID types.UserIdType) (bool, error) {
	res, err := s.execBreaker(ctx, "is_user_restricted", func(ctx context.Context) (any, error) {
		var restricted bool
		err := s.pool.QueryRow(ctx, `SELECT restricted FROM users WHERE user_id = $1`, string(userID)).Scan(&restricted)
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return restricted, err
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}
