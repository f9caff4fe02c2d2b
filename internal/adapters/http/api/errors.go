package api

import (
	"errors"
	"fmt"

	"github.com/okian/skyscraper/internal/domain/types"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest     = fmt.Errorf("bad request: %w", types.ErrInvalidInput)
	ErrUnauthorized   = errors.New("admin token required")
	ErrEncodeResponse = errors.New("response could not be encoded")
)
