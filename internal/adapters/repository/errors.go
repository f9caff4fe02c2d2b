package repository

import (
	"fmt"

	"github.com/okian/skyscraper/internal/domain/types"
)

// Sentinel kinds for store errors.
var (
	ErrNotFound     = fmt.Errorf("record %w", types.ErrNotFound)
	ErrInvalidLimit = fmt.Errorf("%w: leaderboard limit must be positive", types.ErrInvalidInput)
	ErrInvalidScore = fmt.Errorf("%w: score must be a finite number", types.ErrInvalidInput)
	ErrEmptyKey     = fmt.Errorf("%w: empty key", types.ErrInvalidInput)
)
