// Package statusreader implements the Status Reader (SR): a stateless
// read projection over the Idempotency Ledger, mounted as a route inside
// the Write Gateway's HTTP server rather than as a separate binary (see
// DESIGN.md Open Question 4 — SR shares WG's ingress surface and has no
// state of its own to isolate).
package statusreader

import (
	"context"
	"errors"
	"fmt"

	"github.com/corewrite/pipeline/pkg/domain"
)

// LedgerReader is the subset of pkg/ledger.Ledger the Status Reader needs.
type LedgerReader interface {
	Get(ctx context.Context, operationID string) (domain.Operation, error)
}

// Reader answers operation-status queries.
type Reader struct {
	ledger LedgerReader
}

// New creates a Reader over ledger.
func New(ledger LedgerReader) *Reader {
	return &Reader{ledger: ledger}
}

// StatusView is the externally visible projection of an operation: never
// exposes internal retry counters or ledger row metadata, per spec.md
// §4.4.
type StatusView struct {
	OperationID string  `json:"operation_id"`
	Table       string  `json:"table"`
	Status      string  `json:"status"`
	EntityID    string  `json:"entity_id,omitempty"`
	Error       *string `json:"error,omitempty"`
}

// Get returns the current status of operationID. If the ledger has no
// row yet (the message may still be queued, or never arrived), Get
// reports status "pending" rather than surfacing domain.ErrNotFound —
// spec.md §4.4: a client polling immediately after submission must not
// see a 404 before the gateway's own 202 response is even processed.
func (r *Reader) Get(ctx context.Context, operationID string) (StatusView, error) {
	op, err := r.ledger.Get(ctx, operationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return StatusView{OperationID: operationID, Status: string(domain.StatusPending)}, nil
		}
		return StatusView{}, fmt.Errorf("statusreader: get: %w", err)
	}

	view := StatusView{
		OperationID: op.OperationID,
		Table:       string(op.EntityTable),
		Status:      string(op.Status),
		Error:       op.Error,
	}
	// entity_id only means something once the domain row it names actually
	// exists — a failed operation's allocated id never became a row, and
	// surfacing it would contradict spec.md §8's status-row coupling
	// property.
	if op.Status == domain.StatusCompleted {
		view.EntityID = op.EntityID
	}
	return view, nil
}
