// Package highscore decides whether a candidate score counts as a new high
// score against the current leaderboard.
package highscore

import (
	"context"
	"fmt"

	"github.com/okian/skyscraper/internal/domain/types"
)

// Defaults for the classification window.
const (
	DefaultFetchSize  = 10
	DefaultMinEntries = 5
)

// Board is the read side of the leaderboard the classifier needs.
type Board interface {
	Bottom(ctx context.Context, n int) ([]types.Entry, error)
	Count(ctx context.Context) (int, error)
}

// Option applies a configuration option to the Classifier.
type Option func(*Classifier)

// WithFetchSize sets how many of the lowest entries are compared against.
func WithFetchSize(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.fetchSize = n
		}
	}
}

// WithMinEntries sets the board size below which every score is high.
func WithMinEntries(n int) Option {
	return func(c *Classifier) {
		if n >= 0 {
			c.minEntries = n
		}
	}
}

// Classifier answers IsHighScore. It never writes to the board.
type Classifier struct {
	board      Board
	fetchSize  int
	minEntries int
}

// New creates a Classifier reading from board.
func New(board Board, opts ...Option) *Classifier {
	c := &Classifier{
		board:      board,
		fetchSize:  DefaultFetchSize,
		minEntries: DefaultMinEntries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsHighScore fetches the lowest fetchSize entries. While the board holds
// fewer than minEntries players every candidate is high; after that the
// candidate is high when it beats any fetched entry.
func (c *Classifier) IsHighScore(ctx context.Context, candidate float64) (bool, error) {
	lowest, err := c.board.Bottom(ctx, c.fetchSize)
	if err != nil {
		return false, fmt.Errorf("highscore: fetch lowest: %w", err)
	}
	total, err := c.board.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("highscore: count: %w", err)
	}
	if total < c.minEntries {
		return true, nil
	}
	for _, e := range lowest {
		if candidate > e.Score {
			return true, nil
		}
	}
	return false, nil
}
