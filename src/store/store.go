// Package store provides opaque-document persistence with full-snapshot push
// subscriptions. Two backends exist: SQLite (default) and in-memory.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrorKind is the machine-readable classification of a store failure.
type ErrorKind string

const (
	KindPermissionDenied ErrorKind = "permission-denied"
	KindQuotaExceeded    ErrorKind = "quota-exceeded"
	KindUnavailable      ErrorKind = "unavailable"
	KindConflict         ErrorKind = "conflict"
	KindInvalidArgument  ErrorKind = "invalid-argument"
	KindNotFound         ErrorKind = "not-found"
)

// Error wraps an underlying failure with its kind and operation.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("store: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the ErrorKind from err, or KindUnavailable if err is not a
// store error.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnavailable
}

// Record is one stored document. ID, OwnerID and CreatedAt are assigned on
// create and never change; Data is the opaque JSON payload.
type Record struct {
	ID        string
	OwnerID   string
	CreatedAt time.Time
	Data      json.RawMessage
}

// Snapshot is a full, consistent listing of all records matching a
// subscription's filter at a point in time. Consumers must replace, not
// merge, their working set with each snapshot.
type Snapshot []Record

// Filter restricts a subscription or listing to one owner.
type Filter struct {
	OwnerID string
}

// UnsubscribeFunc releases a subscription. Safe to call more than once.
type UnsubscribeFunc func()

// DocumentStore is the persistence collaborator of the application core.
type DocumentStore interface {
	// Create stores a new record and returns its server-assigned id.
	Create(ctx context.Context, collection, ownerID string, data json.RawMessage) (string, error)
	// Update replaces the payload of an existing record. Identity, owner and
	// creation time are preserved.
	Update(ctx context.Context, collection, id string, data json.RawMessage) error
	// Delete removes a record. Deleting an absent record is not an error.
	Delete(ctx context.Context, collection, id string) error
	// GetOne fetches a single record; a KindNotFound error reports absence.
	GetOne(ctx context.Context, collection, id string) (*Record, error)
	// List returns the current snapshot for a collection and filter, the same
	// listing a fresh subscription would receive first.
	List(ctx context.Context, collection string, filter Filter) (Snapshot, error)
	// Subscribe delivers the current snapshot immediately and a fresh full
	// snapshot after every mutation touching the filtered set. Delivery is
	// level-triggered with latest-wins coalescing: a consumer that misses one
	// snapshot gets a fully-consistent later one. The channel is closed on
	// unsubscribe.
	Subscribe(collection string, filter Filter) (<-chan Snapshot, UnsubscribeFunc)
	// Close releases the store and terminates all subscriptions.
	Close() error
}
