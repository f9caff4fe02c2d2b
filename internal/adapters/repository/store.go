// Package repository defines the storage contracts behind sessions, the
// leaderboard and the schedule pointer, plus helpers shared by backends.
package repository

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/okian/skyscraper/internal/domain/shape"
	"github.com/okian/skyscraper/internal/domain/types"
	"github.com/okian/skyscraper/pkg/metrics"
)

// Well-known keys.
const (
	// LeaderboardKey names the single global ranking shared by all sessions.
	LeaderboardKey = "leaderboard"
	// SessionKeySuffix is appended to a session id to name its inventory record.
	SessionKeySuffix = "shapes"
)

// Leaderboard keeps one best score per player.
type Leaderboard interface {
	// Submit stores score as the player's best iff it is strictly greater than
	// the current best (an absent player counts as -Inf). The compare and the
	// write happen as one atomic step. Returns whether the write happened.
	Submit(ctx context.Context, player string, score float64) (bool, error)

	// Top returns at most n entries, highest score first, ties by player asc.
	Top(ctx context.Context, n int) ([]types.Entry, error)

	// Bottom returns at most n entries, lowest score first, ties by player asc.
	// Rank is left unset.
	Bottom(ctx context.Context, n int) ([]types.Entry, error)

	// Count returns the number of distinct players.
	Count(ctx context.Context) (int, error)
}

// SessionStore keeps one inventory per session id, last write wins.
type SessionStore interface {
	Put(ctx context.Context, sessionID string, inv shape.Inventory) error
	// Get returns ErrNotFound when the session has no inventory.
	Get(ctx context.Context, sessionID string) (shape.Inventory, error)
}

// PointerStore keeps named scalar records such as the active schedule job id.
type PointerStore interface {
	// GetPointer returns ErrNotFound when the key is absent.
	GetPointer(ctx context.Context, key string) (string, error)
	SetPointer(ctx context.Context, key, value string) error
	DeletePointer(ctx context.Context, key string) error
}

// Store is a complete backend.
type Store interface {
	Leaderboard
	SessionStore
	PointerStore

	// Backend names the implementation, e.g. "memory".
	Backend() string
	Close() error
}

// ValidateScore rejects NaN and the infinities. An absent player counts as
// -Inf, so nothing may be stored at or beyond either end.
func ValidateScore(score float64) error {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return ErrInvalidScore
	}
	return nil
}

// ValidateLimit rejects n < 1.
func ValidateLimit(n int) error {
	if n < 1 {
		return ErrInvalidLimit
	}
	return nil
}

// Observe records latency for one backend call and counts a failure unless
// the error is a plain not-found. Use as:
//
//	defer repository.Observe(backend, op, time.Now(), &err)
func Observe(backend, op string, start time.Time, err *error) {
	metrics.RecordStoreLatency(backend, op, float64(time.Since(start).Microseconds())/1000)
	if err != nil && *err != nil && !errors.Is(*err, types.ErrNotFound) {
		metrics.RecordStoreError(backend, op)
	}
}
