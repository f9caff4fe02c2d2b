package schedule

import (
	"errors"
	"fmt"

	"github.com/okian/skyscraper/internal/domain/types"
)

var (
	// ErrInvalidCron is returned (wrapped) by a JobService that rejects a cron expression.
	ErrInvalidCron = fmt.Errorf("%w: cron expression", types.ErrInvalidInput)
	// ErrJobNotFound is returned (wrapped) by a JobService asked to cancel an unknown job.
	ErrJobNotFound = fmt.Errorf("job %w", types.ErrNotFound)
	// ErrOrphanedJob marks a schedule whose rollback cancel also failed.
	ErrOrphanedJob = errors.New("created job could not be rolled back")
)
