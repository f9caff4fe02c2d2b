// Package redisstore is the Store backend for a shared Redis: the leaderboard
// is a sorted set, inventories are hashes and pointers are plain strings.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/skyscraper/internal/adapters/repository"
	"github.com/okian/skyscraper/internal/domain/shape"
	"github.com/okian/skyscraper/internal/domain/types"
)

const backendName = "redis"

// Hash fields of a session record.
const (
	fieldShapes = "shapes"
	fieldGroups = "shapeGroups"
)

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithLeaderboardKey overrides the sorted set key.
func WithLeaderboardKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.board = key
		}
	}
}

// Store implements repository.Store on Redis.
type Store struct {
	rdb   redis.UniversalClient
	board string
}

var _ repository.Store = (*Store)(nil)

// New wraps an existing client. Close closes it.
func New(rdb redis.UniversalClient, opts ...Option) *Store {
	s := &Store{rdb: rdb, board: repository.LeaderboardKey}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects to addr and pings it before returning.
func Dial(ctx context.Context, addr, password string, db int, opts ...Option) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, types.External("redis.dial", err)
	}
	return New(rdb, opts...), nil
}

// Backend implements repository.Store.
func (s *Store) Backend() string { return backendName }

// Close implements repository.Store.
func (s *Store) Close() error { return s.rdb.Close() }

// Submit implements repository.Leaderboard with ZADD GT CH, which updates only
// when the new score is greater and reports the number of changed members.
func (s *Store) Submit(ctx context.Context, player string, score float64) (_ bool, err error) {
	defer repository.Observe(backendName, "submit", time.Now(), &err)
	if err := repository.ValidateScore(score); err != nil {
		return false, err
	}
	n, err := s.rdb.ZAddArgs(ctx, s.board, redis.ZAddArgs{
		GT:      true,
		Ch:      true,
		Members: []redis.Z{{Score: score, Member: player}},
	}).Result()
	if err != nil {
		return false, types.External("redis.submit", err)
	}
	return n > 0, nil
}

// Top implements repository.Leaderboard. Redis orders equal scores by member
// descending in a reverse range, so the tie group at the cut is re-read in
// full and the slice is re-sorted.
func (s *Store) Top(ctx context.Context, n int) (_ []types.Entry, err error) {
	const op = "redis.top"
	defer repository.Observe(backendName, "top", time.Now(), &err)
	if err := repository.ValidateLimit(n); err != nil {
		return nil, err
	}

	zs, err := s.rdb.ZRevRangeWithScores(ctx, s.board, 0, int64(n-1)).Result()
	if err != nil {
		return nil, types.External(op, err)
	}
	out := toEntries(zs)
	if len(out) == n {
		cut := out[n-1].Score
		bound := strconv.FormatFloat(cut, 'g', -1, 64)
		tied, err := s.rdb.ZRangeByScoreWithScores(ctx, s.board, &redis.ZRangeBy{Min: bound, Max: bound}).Result()
		if err != nil {
			return nil, types.External(op, err)
		}
		above := out[:0]
		for _, e := range out {
			if e.Score > cut {
				above = append(above, e)
			}
		}
		out = append(above, toEntries(tied)...)
	}
	types.SortDescending(out)
	if len(out) > n {
		out = out[:n]
	}
	types.AssignRanks(out)
	return out, nil
}

// Bottom implements repository.Leaderboard. A forward range already breaks
// ties by member ascending.
func (s *Store) Bottom(ctx context.Context, n int) (_ []types.Entry, err error) {
	defer repository.Observe(backendName, "bottom", time.Now(), &err)
	if err := repository.ValidateLimit(n); err != nil {
		return nil, err
	}
	zs, err := s.rdb.ZRangeWithScores(ctx, s.board, 0, int64(n-1)).Result()
	if err != nil {
		return nil, types.External("redis.bottom", err)
	}
	return toEntries(zs), nil
}

// Count implements repository.Leaderboard.
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.rdb.ZCard(ctx, s.board).Result()
	if err != nil {
		return 0, types.External("redis.count", err)
	}
	return int(n), nil
}

func toEntries(zs []redis.Z) []types.Entry {
	out := make([]types.Entry, 0, len(zs))
	for _, z := range zs {
		player, _ := z.Member.(string)
		out = append(out, types.Entry{Player: player, Score: z.Score})
	}
	return out
}

func sessionKey(sessionID string) string {
	return sessionID + repository.SessionKeySuffix
}

// Put implements repository.SessionStore.
func (s *Store) Put(ctx context.Context, sessionID string, inv shape.Inventory) (err error) {
	defer repository.Observe(backendName, "session_put", time.Now(), &err)
	if sessionID == "" {
		return repository.ErrEmptyKey
	}
	shapes, err := json.Marshal(inv.Shapes)
	if err != nil {
		return fmt.Errorf("encode shapes: %w", err)
	}
	groups, err := json.Marshal(inv.Groups)
	if err != nil {
		return fmt.Errorf("encode shape groups: %w", err)
	}
	err = s.rdb.HSet(ctx, sessionKey(sessionID), fieldShapes, string(shapes), fieldGroups, string(groups)).Err()
	return types.External("redis.session_put", err)
}

// Get implements repository.SessionStore.
func (s *Store) Get(ctx context.Context, sessionID string) (_ shape.Inventory, err error) {
	const op = "redis.session_get"
	defer repository.Observe(backendName, "session_get", time.Now(), &err)

	fields, err := s.rdb.HGetAll(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return shape.Inventory{}, types.External(op, err)
	}
	if len(fields) == 0 {
		return shape.Inventory{}, repository.ErrNotFound
	}

	var inv shape.Inventory
	if err := json.Unmarshal([]byte(fields[fieldShapes]), &inv.Shapes); err != nil {
		return shape.Inventory{}, types.Invariant(op, "decode shapes: %v", err)
	}
	if err := json.Unmarshal([]byte(fields[fieldGroups]), &inv.Groups); err != nil {
		return shape.Inventory{}, types.Invariant(op, "decode shape groups: %v", err)
	}
	if err := inv.Validate(); err != nil {
		return shape.Inventory{}, err
	}
	return inv, nil
}

// GetPointer implements repository.PointerStore.
func (s *Store) GetPointer(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", types.External("redis.pointer_get", err)
	}
	return v, nil
}

// SetPointer implements repository.PointerStore.
func (s *Store) SetPointer(ctx context.Context, key, value string) error {
	if key == "" {
		return repository.ErrEmptyKey
	}
	return types.External("redis.pointer_set", s.rdb.Set(ctx, key, value, 0).Err())
}

// DeletePointer implements repository.PointerStore.
func (s *Store) DeletePointer(ctx context.Context, key string) error {
	return types.External("redis.pointer_delete", s.rdb.Del(ctx, key).Err())
}
