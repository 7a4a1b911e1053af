package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Persister when no record exists under a name.
var ErrNotFound = errors.New("record not found")

// StateRecordName is the name of the single record holding the serialized
// notification aggregate.
const StateRecordName = "notification-state"

// Persister is durable client-side storage for named records. Each record
// is read and written whole.
type Persister interface {
	// Load returns the record payload, or ErrNotFound.
	Load(ctx context.Context, name string) ([]byte, error)

	// Save creates or replaces the record.
	Save(ctx context.Context, name string, payload []byte) error

	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, name string) error
}
