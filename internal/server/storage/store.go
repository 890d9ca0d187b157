package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("share not found")
	ErrCodeCollision = errors.New("share code already in use")
	// ErrConflict means the record's admission state changed since it was read.
	ErrConflict = errors.New("share was modified concurrently")
)

// Store defines the interface for share persistence backends.
// Create, Save and Delete must each be a single atomic step as seen by
// other callers.
type Store interface {
	// Create inserts the share only if no record with the same code exists.
	Create(ctx context.Context, share *Share) error
	// Get returns a copy of the record regardless of its expiry.
	Get(ctx context.Context, code string) (*Share, error)
	// Save overwrites Content, Views and IsAccessed of an existing record,
	// provided its stored Views and IsAccessed still match from. Otherwise
	// it returns ErrConflict, or ErrNotFound instead of recreating a
	// deleted record.
	Save(ctx context.Context, share *Share, from Revision) error
	// Delete is idempotent.
	Delete(ctx context.Context, code string) error
	// SweepExpired removes every record whose ExpiresAt is before now.
	SweepExpired(ctx context.Context, now time.Time) (int, error)
	Stats(ctx context.Context, now time.Time) (*Stats, error)
	Ping(ctx context.Context) error
	Close() error
}
