package service

import (
	"errors"
	"fmt"

	"github.com/okian/skyscraper/internal/domain/types"
)

var (
	// ErrInvalidPlayer is returned for player names the leaderboard will not store.
	ErrInvalidPlayer = fmt.Errorf("%w: player name", types.ErrInvalidInput)
	// ErrStopped is returned by Start once the service has been stopped.
	ErrStopped = errors.New("service stopped")
)
