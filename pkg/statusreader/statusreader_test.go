package statusreader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corewrite/pipeline/pkg/domain"
)

type fakeLedger struct {
	op  domain.Operation
	err error
}

func (f *fakeLedger) Get(ctx context.Context, operationID string) (domain.Operation, error) {
	return f.op, f.err
}

func TestReader_Get_NotFoundReportsPending(t *testing.T) {
	r := New(&fakeLedger{err: domain.ErrNotFound})
	view, err := r.Get(context.Background(), "op-missing")
	require.NoError(t, err)
	require.Equal(t, "pending", view.Status)
	require.Equal(t, "op-missing", view.OperationID)
}

func TestReader_Get_CompletedProjectsFields(t *testing.T) {
	r := New(&fakeLedger{op: domain.Operation{
		OperationID: "op-1",
		EntityTable: domain.TableUsers,
		EntityID:    "ent-1",
		Status:      domain.StatusCompleted,
	}})
	view, err := r.Get(context.Background(), "op-1")
	require.NoError(t, err)
	require.Equal(t, "completed", view.Status)
	require.Equal(t, "users", view.Table)
	require.Equal(t, "ent-1", view.EntityID)
	require.Nil(t, view.Error)
}

func TestReader_Get_FailedSurfacesError(t *testing.T) {
	msg := "non-retryable: constraint violation"
	r := New(&fakeLedger{op: domain.Operation{
		OperationID: "op-2",
		EntityTable: domain.TableOrders,
		EntityID:    "ent-2",
		Status:      domain.StatusFailed,
		Error:       &msg,
	}})
	view, err := r.Get(context.Background(), "op-2")
	require.NoError(t, err)
	require.Equal(t, "failed", view.Status)
	require.NotNil(t, view.Error)
	require.Equal(t, msg, *view.Error)
	require.Empty(t, view.EntityID)
}
