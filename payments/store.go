/*
store.go - Persistence interface for final snapshots

PURPOSE:
  The engine itself is purely in-memory. The only state that outlives a
  run is its final snapshot, optionally saved through a SnapshotStore
  together with the rejections the run produced.

APPEND-ONLY CONTRACT:
  Runs are written once and never updated or deleted. Saving a run whose
  ID already exists fails with ErrDuplicateRun.

IMPLEMENTATIONS:
  - payments/store/memory.go: In-memory for testing
  - store/sqlite/sqlite.go: SQLite

SEE ALSO:
  - batch/process.go: Produces Runs from CSV input
*/
package payments

import (
	"context"
	"errors"
	"time"
)

var (
	ErrRunNotFound  = errors.New("snapshot run not found")
	ErrDuplicateRun = errors.New("snapshot run already exists")
)

// Rejection records one input record the engine (or the parser) refused.
type Rejection struct {
	Line   int // 1-based input line, 0 when not read from a file
	Kind   Kind
	Client ClientID
	Tx     TransactionID
	Code   string
	Reason string
}

// Run is the persisted result of one processing run.
type Run struct {
	ID         string
	CreatedAt  time.Time
	LockPolicy LockPolicy
	Applied    int
	Clients    []ClientSnapshot
	Rejections []Rejection
}

// RunSummary is a Run without its rows, for listings.
type RunSummary struct {
	ID         string
	CreatedAt  time.Time
	LockPolicy LockPolicy
	Applied    int
	Clients    int
	Rejections int
}

// SnapshotStore persists runs. Implementations must save a run atomically.
type SnapshotStore interface {
	SaveRun(ctx context.Context, run Run) error
	LoadRun(ctx context.Context, id string) (Run, error)
	// ListRuns returns summaries, newest first.
	ListRuns(ctx context.Context) ([]RunSummary, error)
}

// Summary drops the rows of r.
func (r Run) Summary() RunSummary {
	return RunSummary{
		ID:         r.ID,
		CreatedAt:  r.CreatedAt,
		LockPolicy: r.LockPolicy,
		Applied:    r.Applied,
		Clients:    len(r.Clients),
		Rejections: len(r.Rejections),
	}
}

// RejectionFor builds a Rejection from a failed Apply.
func RejectionFor(line int, tx Transaction, err error) Rejection {
	r := Rejection{Line: line, Code: Code(err), Reason: err.Error()}
	if tx != nil {
		r.Kind = tx.Kind()
		r.Client = tx.Client()
		r.Tx = TxID(tx)
	}
	return r
}
