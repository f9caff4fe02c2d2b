// Package sqlite is the durable single-node Store backend.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/okian/skyscraper/internal/adapters/repository"
	"github.com/okian/skyscraper/internal/domain/shape"
	"github.com/okian/skyscraper/internal/domain/types"
)

const backendName = "sqlite"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements repository.Store on a SQLite database file.
type Store struct {
	db *sql.DB
}

var _ repository.Store = (*Store)(nil)

// Open opens (or creates) the database at path and applies pending migrations.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes writers and keeps a :memory: database alive.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Backend implements repository.Store.
func (s *Store) Backend() string { return backendName }

// Close implements repository.Store.
func (s *Store) Close() error { return s.db.Close() }

// Submit implements repository.Leaderboard. The upsert only fires its update
// branch when the new score is strictly greater, so RowsAffected tells us
// whether the best moved.
func (s *Store) Submit(ctx context.Context, player string, score float64) (_ bool, err error) {
	defer repository.Observe(backendName, "submit", time.Now(), &err)
	if err := repository.ValidateScore(score); err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO leaderboard (player, score) VALUES (?, ?)
		ON CONFLICT(player) DO UPDATE
		SET score = excluded.score, updated_at = CURRENT_TIMESTAMP
		WHERE excluded.score > leaderboard.score`, player, score)
	if err != nil {
		return false, types.External("sqlite.submit", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, types.External("sqlite.submit", err)
	}
	return n > 0, nil
}

// Top implements repository.Leaderboard.
func (s *Store) Top(ctx context.Context, n int) (_ []types.Entry, err error) {
	defer repository.Observe(backendName, "top", time.Now(), &err)
	if err := repository.ValidateLimit(n); err != nil {
		return nil, err
	}
	out, err := s.entries(ctx, "sqlite.top",
		`SELECT player, score FROM leaderboard ORDER BY score DESC, player ASC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	types.AssignRanks(out)
	return out, nil
}

// Bottom implements repository.Leaderboard.
func (s *Store) Bottom(ctx context.Context, n int) (_ []types.Entry, err error) {
	defer repository.Observe(backendName, "bottom", time.Now(), &err)
	if err := repository.ValidateLimit(n); err != nil {
		return nil, err
	}
	return s.entries(ctx, "sqlite.bottom",
		`SELECT player, score FROM leaderboard ORDER BY score ASC, player ASC LIMIT ?`, n)
}

func (s *Store) entries(ctx context.Context, op, query string, n int) ([]types.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, n)
	if err != nil {
		return nil, types.External(op, err)
	}
	defer rows.Close()

	out := make([]types.Entry, 0, n)
	for rows.Next() {
		var e types.Entry
		if err := rows.Scan(&e.Player, &e.Score); err != nil {
			return nil, types.External(op, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.External(op, err)
	}
	return out, nil
}

// Count implements repository.Leaderboard.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leaderboard`).Scan(&n); err != nil {
		return 0, types.External("sqlite.count", err)
	}
	return n, nil
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
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, shapes, shape_groups) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE
		SET shapes = excluded.shapes, shape_groups = excluded.shape_groups, updated_at = CURRENT_TIMESTAMP`,
		sessionID, string(shapes), string(groups))
	return types.External("sqlite.session_put", err)
}

// Get implements repository.SessionStore.
func (s *Store) Get(ctx context.Context, sessionID string) (_ shape.Inventory, err error) {
	defer repository.Observe(backendName, "session_get", time.Now(), &err)

	var shapes, groups string
	err = s.db.QueryRowContext(ctx,
		`SELECT shapes, shape_groups FROM sessions WHERE id = ?`, sessionID).Scan(&shapes, &groups)
	if errors.Is(err, sql.ErrNoRows) {
		return shape.Inventory{}, repository.ErrNotFound
	}
	if err != nil {
		return shape.Inventory{}, types.External("sqlite.session_get", err)
	}

	var inv shape.Inventory
	if err := json.Unmarshal([]byte(shapes), &inv.Shapes); err != nil {
		return shape.Inventory{}, types.Invariant("sqlite.session_get", "decode shapes: %v", err)
	}
	if err := json.Unmarshal([]byte(groups), &inv.Groups); err != nil {
		return shape.Inventory{}, types.Invariant("sqlite.session_get", "decode shape groups: %v", err)
	}
	if err := inv.Validate(); err != nil {
		return shape.Inventory{}, err
	}
	return inv, nil
}

// GetPointer implements repository.PointerStore.
func (s *Store) GetPointer(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM pointers WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", types.External("sqlite.pointer_get", err)
	}
	return v, nil
}

// SetPointer implements repository.PointerStore.
func (s *Store) SetPointer(ctx context.Context, key, value string) error {
	if key == "" {
		return repository.ErrEmptyKey
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pointers (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return types.External("sqlite.pointer_set", err)
}

// DeletePointer implements repository.PointerStore.
func (s *Store) DeletePointer(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pointers WHERE key = ?`, key)
	return types.External("sqlite.pointer_delete", err)
}
