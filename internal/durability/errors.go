package durability

import "errors"

// Sentinel errors for the durability package. Callers match with errors.Is.
var (
	// ErrLockBusy is returned when an advisory lock is held by another process.
	ErrLockBusy = errors.New("lock held by another process")
)
