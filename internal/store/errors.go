package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a task does not exist or has been soft-deleted.
var ErrNotFound = errors.New("task not found")

// StorageError reports a failure of the local database.
// Storage errors are fatal to the operation that raised them.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError checks if an error is a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
