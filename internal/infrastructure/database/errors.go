package database

import (
	"database/sql"
	"errors"

	"github.com/mattn/go-sqlite3"
)

// Sentinel errors for the persistence layer.
var (
	// ErrStorage matches every error raised by the storage engine.
	ErrStorage = errors.New("database: storage failure")

	// ErrUnitClosed is returned when a unit of work is used after Close.
	ErrUnitClosed = errors.New("database: unit of work closed")

	// ErrMigrationMissing is returned when an applied migration has no file.
	ErrMigrationMissing = errors.New("database: migration not found in filesystem")

	// ErrMigrationDrift is returned when an applied migration file was edited.
	ErrMigrationDrift = errors.New("database: applied migration has changed")
)

// StorageError records a failed storage operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is reports ErrStorage as a match so callers can classify with errors.Is.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// Wrap annotates err as a storage failure of op. It returns nil for nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err originates in the persistence layer:
// a wrapped StorageError, a raw SQLite driver error, or a dead
// connection/transaction handle.
func IsStorageError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStorage) || errors.Is(err, ErrUnitClosed) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return true
	}
	return errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone)
}
