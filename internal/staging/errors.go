package staging

import (
	"errors"
	"fmt"

	"github.com/ZebulonRouseFrantzich/stagerun/internal/distribution"
)

var (
	// ErrStagingLocked means another process holds the staging lock.
	ErrStagingLocked = errors.New("staging directory is locked: another run may be in progress")
	// ErrForeignTarget means a caller asked to extract outside the staging
	// directory.
	ErrForeignTarget = errors.New("target is not the staging directory")
)

// ExtractionError reports a failed Materialize. Op is "lock", "wipe" or
// "extract".
type ExtractionError struct {
	Distribution distribution.Distribution
	Dir          string
	Op           string
	Err          error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("stage %s in %s: %s: %v", e.Distribution, e.Dir, e.Op, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
