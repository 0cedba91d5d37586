package ledger

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/corewrite/pipeline/pkg/domain"
)

func TestLedger_InsertPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	l := New(db)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO write_operations").
		WithArgs("op-1", "users", "ent-1", "create").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, l.InsertPending(ctx, db, "op-1", domain.TableUsers, "ent-1", domain.OpCreate))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_InsertPending_DuplicateIsErrDuplicateOperation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	l := New(db)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO write_operations").
		WithArgs("op-1", "users", "ent-1", "create").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err = l.InsertPending(ctx, db, "op-1", domain.TableUsers, "ent-1", domain.OpCreate)
	require.ErrorIs(t, err, domain.ErrDuplicateOperation)
}

func TestLedger_Get_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	l := New(db)
	mock.ExpectQuery("SELECT operation_id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = l.Get(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLedger_Get_Completed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	l := New(db)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"operation_id", "entity_table", "entity_id", "op_type", "status", "error", "created_at", "completed_at"}).
		AddRow("op-1", "users", "ent-1", "create", "completed", nil, now, now)

	mock.ExpectQuery("SELECT operation_id").WithArgs("op-1").WillReturnRows(rows)

	op, err := l.Get(context.Background(), "op-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, op.Status)
	require.Equal(t, "ent-1", op.EntityID)
	require.Nil(t, op.Error)
	require.NotNil(t, op.CompletedAt)
}
