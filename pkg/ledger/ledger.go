// Package ledger implements the Idempotency Ledger (IL): the durable table
// recording each operation's identity, target, status, and terminal
// metadata. It backs both the write protocol's idempotency pivot
// (pkg/processor) and the Status Reader's polling contract
// (pkg/statusreader).
//
// Grounded on the teacher's pkg/store/ledger/postgres_ledger.go (the
// INSERT-then-transition shape, the FOR UPDATE SKIP LOCKED idiom reused by
// pkg/queue) and pkg/api/postgres_idempotency.go (the ON CONFLICT DO UPDATE
// upsert used here for Fail).
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/corewrite/pipeline/pkg/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS write_operations (
	operation_id TEXT PRIMARY KEY,
	entity_table TEXT NOT NULL,
	entity_id    TEXT NOT NULL,
	op_type      TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	error        TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS write_operations_status_idx ON write_operations (status, created_at);
`

// execer is satisfied by both *sql.DB and *sql.Tx so InsertPending and
// Complete can run either standalone or as part of the caller's transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Ledger is the PostgreSQL-backed Idempotency Ledger.
type Ledger struct {
	db *sql.DB
}

// New creates a Ledger over an existing *sql.DB.
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Init creates the write_operations table if it does not already exist.
func (l *Ledger) Init(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, schema)
	return err
}

// uniqueViolation reports whether err is a Postgres unique_violation
// (23505), the idempotency pivot's signal that a second delivery of an
// operation_id has arrived.
func uniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// InsertPending records a brand-new operation in status=pending. Run inside
// the caller's transaction (spec.md §4.3 step 4). Returns
// domain.ErrDuplicateOperation on unique violation — the caller must
// rollback and treat the delivery as a no-op.
func (l *Ledger) InsertPending(ctx context.Context, tx execer, operationID string, table domain.Table, entityID string, opType domain.OpType) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO write_operations (operation_id, entity_table, entity_id, op_type, status)
		 VALUES ($1, $2, $3, $4, 'pending')`,
		operationID, string(table), entityID, string(opType),
	)
	if err != nil {
		if uniqueViolation(err) {
			return domain.ErrDuplicateOperation
		}
		return fmt.Errorf("ledger: insert pending: %w", err)
	}
	return nil
}

// Complete transitions an operation to status=completed, inside the same
// transaction as the domain row insert (spec.md §4.3 step 6). Only a
// pending row is updated; a row already in a terminal state is left as is.
func (l *Ledger) Complete(ctx context.Context, tx execer, operationID string, completedAt time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE write_operations SET status = 'completed', completed_at = $2 WHERE operation_id = $1 AND status = 'pending'`,
		operationID, completedAt,
	)
	if err != nil {
		return fmt.Errorf("ledger: complete: %w", err)
	}
	return nil
}

// Fail records a terminal failure in a standalone statement, after the
// domain transaction has already rolled back (spec.md §4.3's
// non-retryable path, and the validation-failure path of step 1, where no
// pending row may yet exist). Uses INSERT ... ON CONFLICT DO UPDATE so it
// is correct whether or not InsertPending ran first.
func (l *Ledger) Fail(ctx context.Context, operationID string, table domain.Table, entityID string, opType domain.OpType, errMsg string, completedAt time.Time) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO write_operations (operation_id, entity_table, entity_id, op_type, status, error, completed_at)
		 VALUES ($1, $2, $3, $4, 'failed', $5, $6)
		 ON CONFLICT (operation_id) DO UPDATE
		 SET status = 'failed', error = $5, completed_at = $6
		 WHERE write_operations.status = 'pending'`,
		operationID, string(table), entityID, string(opType), errMsg, completedAt,
	)
	if err != nil {
		return fmt.Errorf("ledger: fail: %w", err)
	}
	return nil
}

// Get returns the operation's current state. Returns domain.ErrNotFound if
// no row exists (the caller — the Status Reader — treats that as pending,
// per spec.md §4.4: the message may still be queued).
func (l *Ledger) Get(ctx context.Context, operationID string) (domain.Operation, error) {
	var op domain.Operation
	var table, opType string
	var errMsg sql.NullString
	var completedAt sql.NullTime

	err := l.db.QueryRowContext(ctx,
		`SELECT operation_id, entity_table, entity_id, op_type, status, error, created_at, completed_at
		 FROM write_operations WHERE operation_id = $1`,
		operationID,
	).Scan(&op.OperationID, &table, &op.EntityID, &opType, &op.Status, &errMsg, &op.CreatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Operation{}, domain.ErrNotFound
		}
		return domain.Operation{}, fmt.Errorf("ledger: get: %w", err)
	}

	op.EntityTable = domain.Table(table)
	op.OpType = domain.OpType(opType)
	if errMsg.Valid {
		op.Error = &errMsg.String
	}
	if completedAt.Valid {
		t := completedAt.Time
		op.CompletedAt = &t
	}
	return op, nil
}

// SweepStalePending promotes pending rows older than olderThan to failed.
// This is the configurable background task implied, but not specified, by
// spec.md §9 Open Question 1 — off by default, see pkg/processor/sweeper.go.
func (l *Ledger) SweepStalePending(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := l.db.ExecContext(ctx,
		`UPDATE write_operations
		 SET status = 'failed', error = 'sweeper: no terminal transition observed', completed_at = now()
		 WHERE status = 'pending' AND created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("ledger: sweep: %w", err)
	}
	return res.RowsAffected()
}
