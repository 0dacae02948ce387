// Package persistence keeps audit trail of wake resource usage.
package persistence

import (
	"time"
)

// Errors persistence errors
type Errors int

const (
	// ErrInvalidArgs invalid arguments provided
	ErrInvalidArgs Errors = iota
	// ErrUnknownProvider if provider is unknown
	ErrUnknownProvider
	// ErrNotOpen storage is not open
	ErrNotOpen
	// ErrBrokenEntry persisted entry does not meet requirements
	ErrBrokenEntry
)

var errorsDesc = map[Errors]string{
	ErrInvalidArgs:     "persistence: invalid arguments",
	ErrUnknownProvider: "persistence: unknown provider",
	ErrNotOpen:         "persistence: not open",
	ErrBrokenEntry:     "persistence: broken entry",
}

// Errors description during persistence
func (e Errors) Error() string {
	if s, ok := errorsDesc[e]; ok {
		return s
	}

	return "unknown error"
}

// Operation recorded by audit entry
type Operation string

// nolint: golint
const (
	OpAcquire Operation = "acquire"
	OpRelease Operation = "release"
	OpDegrade Operation = "degrade"
)

// Entry of the wake resource audit trail
type Entry struct {
	ID        int64
	Operation Operation
	Tag       string
	LeaseID   string
	Held      time.Duration
	Reason    string
	At        time.Time
}

// Audit storage of wake resource events
type Audit interface {
	// Store persist entry and prune oldest ones beyond configured limit
	Store(*Entry) error

	// List entries newest first. Non-positive limit returns all
	List(limit int) ([]*Entry, error)

	// Wipe audit storage
	Wipe() error
}

// Provider interface implemented by different backends
type Provider interface {
	Audit() (Audit, error)
	Shutdown() error
}

// MemConfig configuration of in-memory backend
type MemConfig struct {
	MaxRows int
}

// SQLiteConfig configuration of sqlite backend
type SQLiteConfig struct {
	// Path to database file. ":memory:" keeps database in memory
	Path    string
	MaxRows int
}
