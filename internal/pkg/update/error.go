package update

import (
	"errors"
	"fmt"
)

// UpdateError pairs a failure kind with its underlying cause.
type UpdateError struct {
	kind  error
	cause error
}

func (u UpdateError) Error() string {
	if u.cause == nil {
		return u.kind.Error()
	}
	return fmt.Sprintf("%s: %s", u.kind.Error(), u.cause.Error())
}

// Is matches against the failure kind so callers can branch with errors.Is.
func (u UpdateError) Is(target error) bool {
	return errors.Is(u.kind, target)
}

func (u UpdateError) Unwrap() error {
	return u.cause
}

// NewUpdateError wraps a cause with a failure kind.
func NewUpdateError(kind error, cause error) error {
	return UpdateError{
		kind:  kind,
		cause: cause,
	}
}

// Failure kinds of the update state machine.
var (
	// ErrBackupPrecondition: no backup could be taken, the live tree was
	// never touched.
	ErrBackupPrecondition = errors.New("backup precondition failed")
	// ErrExtractionFailed: the payload archive is corrupt or attempted path
	// traversal; scratch is cleaned, the live tree was never touched.
	ErrExtractionFailed = errors.New("failed to extract update archive")
	// ErrStructureInvalid: the payload is not a full application package.
	ErrStructureInvalid = errors.New("Invalid CMS update structure")
	// ErrApplyFailed: I/O failure while swapping live directories. The live
	// tree may be in a mixed state; recover via rollback to the backup taken
	// for this attempt.
	ErrApplyFailed = errors.New("failed to apply update to live tree")
	// ErrPersistenceFailed: the live tree was updated but recording the
	// outcome failed, so the audit trail disagrees with the filesystem.
	ErrPersistenceFailed = errors.New("failed to record update outcome")
	// ErrBackupMissing: rollback target's archive is absent or corrupt.
	ErrBackupMissing = errors.New("backup file not found")
	// ErrLockFailed: the exclusive apply lock could not be acquired.
	ErrLockFailed = errors.New("failed to acquire apply lock")
)
