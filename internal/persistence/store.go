// Package persistence stores procedure snapshots so the engine can rebuild
// in-flight procedures after a restart.
package persistence

import (
	"errors"

	"github.com/tlahtinen/governor/pkg/api"
)

// ErrRecordNotFound is returned when a procedure record does not exist.
var ErrRecordNotFound = errors.New("procedure record not found")

// Record is a persisted procedure: its identity, kind, lifecycle status, the
// opaque snapshot produced by Procedure.Snapshot, and the terminal error
// text, if any. Dispatch sub-state is never persisted; decoding a record
// always yields a procedure in its initial logical state.
type Record struct {
	ID       string
	Kind     api.OperationType
	Status   api.Status
	Snapshot []byte
	Error    string
}

// Filter selects records. Zero values mean "no filter" for that field.
type Filter struct {
	Kind   api.OperationType
	Status api.Status
}

// Store handles storage of procedure records.
type Store interface {
	Save(rec *Record) error
	Update(rec *Record) error
	Get(id string) (*Record, error)
	List(filter Filter) ([]*Record, error)
	// Delete removes a record. It is idempotent.
	Delete(id string) error
}
