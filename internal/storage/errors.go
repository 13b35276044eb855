package storage

import "fmt"

// StorageError reports a destination failure: open, create, insert or commit.
type StorageError struct {
	Op    string
	Table string
	Err   error
}

func (e *StorageError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Wrap returns err as a *StorageError, or nil when err is nil.
// An error that already is a *StorageError is returned unchanged.
func Wrap(op, table string, err error) error {
	if err == nil {
		return nil
	}
	if se, ok := err.(*StorageError); ok {
		return se
	}
	return &StorageError{Op: op, Table: table, Err: err}
}
