/*
Package sqlite provides a SQLite-backed payments.SnapshotStore.

PURPOSE:
  Persists the final snapshot of a processing run (client balances plus the
  rejected records) so a batch can be audited after the process exits.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements exist for any table
  - A run is inserted in one SQL transaction: all rows or none

KEY TABLES:
  runs:           One row per saved run
  run_clients:    Final balances, amounts stored as fixed-point TEXT
  run_rejections: Records refused during the run, in input order

CONCURRENCY:
  The pool is limited to one connection, which also keeps ":memory:"
  databases from splitting across connections.

USAGE:
  store, err := sqlite.New("./payments.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - payments/store.go: Interface definition
  - payments/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/payments-engine/payments"
)

// timeFormat has a fixed width so created_at sorts lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements payments.SnapshotStore using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		lock_policy TEXT NOT NULL,
		applied INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created_at
		ON runs(created_at DESC);

	CREATE TABLE IF NOT EXISTS run_clients (
		run_id TEXT NOT NULL REFERENCES runs(id),
		client_id INTEGER NOT NULL,
		available TEXT NOT NULL,
		held TEXT NOT NULL,
		total TEXT NOT NULL,
		locked BOOLEAN NOT NULL,
		PRIMARY KEY (run_id, client_id)
	);

	CREATE TABLE IF NOT EXISTS run_rejections (
		run_id TEXT NOT NULL REFERENCES runs(id),
		seq INTEGER NOT NULL,
		line INTEGER NOT NULL,
		kind TEXT NOT NULL,
		client_id INTEGER NOT NULL,
		tx_id INTEGER NOT NULL,
		code TEXT NOT NULL,
		reason TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SNAPSHOT STORE (payments.SnapshotStore interface)
// =============================================================================

// SaveRun writes the run and all its rows atomically.
func (s *Store) SaveRun(ctx context.Context, run payments.Run) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO runs (id, lock_policy, applied, created_at) VALUES (?, ?, ?, ?)`,
			run.ID, string(run.LockPolicy), run.Applied, run.CreatedAt.UTC().Format(timeFormat),
		)
		if err != nil {
			if isConstraintError(err) {
				return payments.ErrDuplicateRun
			}
			return fmt.Errorf("failed to insert run: %w", err)
		}

		for _, c := range run.Clients {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO run_clients (run_id, client_id, available, held, total, locked)
				VALUES (?, ?, ?, ?, ?, ?)`,
				run.ID, int64(c.Client), c.Available.String(), c.Held.String(), c.Total.String(), c.Locked,
			)
			if err != nil {
				return fmt.Errorf("failed to insert client %d: %w", c.Client, err)
			}
		}

		for i, r := range run.Rejections {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO run_rejections (run_id, seq, line, kind, client_id, tx_id, code, reason)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				run.ID, i, r.Line, string(r.Kind), int64(r.Client), int64(r.Tx), r.Code, r.Reason,
			)
			if err != nil {
				return fmt.Errorf("failed to insert rejection %d: %w", i, err)
			}
		}
		return nil
	})
}

func (s *Store) LoadRun(ctx context.Context, id string) (payments.Run, error) {
	var (
		run       payments.Run
		policy    string
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, lock_policy, applied, created_at FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &policy, &run.Applied, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return payments.Run{}, payments.ErrRunNotFound
	}
	if err != nil {
		return payments.Run{}, fmt.Errorf("failed to load run: %w", err)
	}
	run.LockPolicy = payments.LockPolicy(policy)
	if run.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return payments.Run{}, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}

	if run.Clients, err = s.loadClients(ctx, id); err != nil {
		return payments.Run{}, err
	}
	if run.Rejections, err = s.loadRejections(ctx, id); err != nil {
		return payments.Run{}, err
	}
	return run, nil
}

func (s *Store) loadClients(ctx context.Context, runID string) ([]payments.ClientSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT client_id, available, held, total, locked
		FROM run_clients WHERE run_id = ? ORDER BY client_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load clients: %w", err)
	}
	defer rows.Close()

	var result []payments.ClientSnapshot
	for rows.Next() {
		var (
			clientID               int64
			available, held, total string
			snap                   payments.ClientSnapshot
		)
		if err := rows.Scan(&clientID, &available, &held, &total, &snap.Locked); err != nil {
			return nil, err
		}
		snap.Client = payments.ClientID(clientID)
		if snap.Available, err = parseAmount(available); err != nil {
			return nil, err
		}
		if snap.Held, err = parseAmount(held); err != nil {
			return nil, err
		}
		if snap.Total, err = parseAmount(total); err != nil {
			return nil, err
		}
		result = append(result, snap)
	}
	return result, rows.Err()
}

func (s *Store) loadRejections(ctx context.Context, runID string) ([]payments.Rejection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT line, kind, client_id, tx_id, code, reason
		FROM run_rejections WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rejections: %w", err)
	}
	defer rows.Close()

	var result []payments.Rejection
	for rows.Next() {
		var (
			r              payments.Rejection
			kind           string
			clientID, txID int64
		)
		if err := rows.Scan(&r.Line, &kind, &clientID, &txID, &r.Code, &r.Reason); err != nil {
			return nil, err
		}
		r.Kind = payments.Kind(kind)
		r.Client = payments.ClientID(clientID)
		r.Tx = payments.TransactionID(txID)
		result = append(result, r)
	}
	return result, rows.Err()
}

// ListRuns returns run summaries, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]payments.RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.lock_policy, r.applied, r.created_at,
			(SELECT COUNT(*) FROM run_clients c WHERE c.run_id = r.id),
			(SELECT COUNT(*) FROM run_rejections j WHERE j.run_id = r.id)
		FROM runs r
		ORDER BY r.created_at DESC, r.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var result []payments.RunSummary
	for rows.Next() {
		var (
			sum       payments.RunSummary
			policy    string
			createdAt string
		)
		if err := rows.Scan(&sum.ID, &policy, &sum.Applied, &createdAt, &sum.Clients, &sum.Rejections); err != nil {
			return nil, err
		}
		sum.LockPolicy = payments.LockPolicy(policy)
		if sum.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
			return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
		}
		result = append(result, sum)
	}
	return result, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

// withTx executes fn within a transaction. If fn returns an error the
// transaction is rolled back.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func parseAmount(value string) (payments.Amount, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return payments.Amount{}, fmt.Errorf("invalid stored amount %q: %w", value, err)
	}
	return payments.NewAmount(d), nil
}

func isConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
