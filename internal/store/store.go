// Package store provides a versioned, ID-addressed record store. Two
// implementations share one contract: a file-backed JSON store with atomic
// writes, and a SQLite document store.
package store

import (
	"errors"
	"fmt"
	"time"
)

// Entity is anything that can be stored by ID.
type Entity interface {
	EntityID() string
}

// Record wraps a stored entity with version metadata.
type Record[T Entity] struct {
	Entity    T         `json:"entity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   uint64    `json:"version"`
}

// NewRecord builds a version-1 record for the entity.
func NewRecord[T Entity](entity T) Record[T] {
	now := time.Now().UTC()
	return Record[T]{Entity: entity, CreatedAt: now, UpdatedAt: now, Version: 1}
}

// ID returns the wrapped entity's ID.
func (r Record[T]) ID() string { return r.Entity.EntityID() }

// Sentinel errors shared by all implementations.
var (
	ErrNotFound     = errors.New("entity not found")
	ErrDuplicateKey = errors.New("duplicate entity ID")
)

// VersionConflictError reports an optimistic-concurrency failure.
type VersionConflictError struct {
	Expected uint64
	Found    uint64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict: expected %d, found %d", e.Expected, e.Found)
}

// Store is the shared contract for one entity collection.
type Store[T Entity] interface {
	// Get returns the record for id, or ErrNotFound.
	Get(id string) (Record[T], error)

	// GetAll returns every record, in unspecified order.
	GetAll() ([]Record[T], error)

	// Insert stores a new entity; ErrDuplicateKey when the id exists.
	Insert(entity T) (Record[T], error)

	// Update replaces the entity. When expectedVersion is non-nil and does
	// not match the stored version, a *VersionConflictError is returned and
	// nothing changes. On success the version is bumped and UpdatedAt set.
	Update(entity T, expectedVersion *uint64) (Record[T], error)

	// Delete removes the record for id, or ErrNotFound.
	Delete(id string) error

	// Clear removes every record.
	Clear() error
}
