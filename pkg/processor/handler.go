package processor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/corewrite/pipeline/pkg/domain"
)

// TableHandler applies one write operation to its target table, inside
// the caller's transaction. Grounded on the teacher's
// pkg/store/outbox_store.go write shape, generalized from a single
// outbox table to one handler per supported domain table (spec.md's
// Tables section).
type TableHandler interface {
	Table() domain.Table
	Apply(ctx context.Context, tx *sql.Tx, entityID string, op domain.OpType, data json.RawMessage) error
}

// Registry resolves a domain.Table to its TableHandler.
type Registry struct {
	handlers map[domain.Table]TableHandler
}

// NewRegistry builds a Registry from handlers, keyed by each handler's
// own Table().
func NewRegistry(handlers ...TableHandler) *Registry {
	r := &Registry{handlers: make(map[domain.Table]TableHandler, len(handlers))}
	for _, h := range handlers {
		r.handlers[h.Table()] = h
	}
	return r
}

// Resolve returns the handler for table, or an error if none is
// registered.
func (r *Registry) Resolve(table domain.Table) (TableHandler, error) {
	h, ok := r.handlers[table]
	if !ok {
		return nil, fmt.Errorf("processor: no handler registered for table %q", table)
	}
	return h, nil
}

// requireRowAffected returns a non-retryable error if res touched zero
// rows. The Operation model allocates entityID fresh for every op_type
// (spec.md has no caller-supplied target-id field for update/delete — see
// DESIGN.md Open Question 5), so an update/delete against a row that does
// not exist must fail loudly rather than let the protocol mark the ledger
// completed with no domain row behind it.
func requireRowAffected(res sql.Result, table, entityID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: entity %q not found", table, entityID)
	}
	return nil
}
