// Package processor implements the Write Processor (WP): one handler loop
// per supported table, each applying the nine-step write protocol of
// spec.md §4.3 to inbound Write Requests and producing exactly one
// terminal outcome per operation_id in the Idempotency Ledger.
package processor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/corewrite/pipeline/pkg/cache"
	"github.com/corewrite/pipeline/pkg/domain"
	"github.com/corewrite/pipeline/pkg/ledger"
	"github.com/corewrite/pipeline/pkg/processor/classify"
	"github.com/corewrite/pipeline/pkg/queue"
)

// Config tunes the protocol's retry behavior.
type Config struct {
	AckDeadline time.Duration
	MaxDeliver  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Protocol runs the write protocol against one table.
//
// Grounded on the teacher's idempotency-insert idiom in
// pkg/api/postgres_idempotency.go and the transactional domain-row
// insert shape of pkg/store/outbox_store.go, fused into the single
// decode -> allocate -> tx -> ledger-insert -> domain-insert -> ledger-
// complete -> commit -> invalidate -> ack pipeline spec.md §4.3 requires.
type Protocol struct {
	db       *sql.DB
	q        *queue.Queue
	ledger   *ledger.Ledger
	cache    *cache.Cache
	archiver queue.Archiver
	handler  TableHandler
	cfg      Config
	logger   *slog.Logger
}

// New creates a Protocol for handler's table.
func New(db *sql.DB, q *queue.Queue, l *ledger.Ledger, c *cache.Cache, archiver queue.Archiver, handler TableHandler, cfg Config) *Protocol {
	return &Protocol{
		db:       db,
		q:        q,
		ledger:   l,
		cache:    c,
		archiver: archiver,
		handler:  handler,
		cfg:      cfg,
		logger:   slog.Default().With("component", "processor", "table", string(handler.Table())),
	}
}

// HandleOnce processes exactly one delivery of msg, per the nine-step
// protocol. Returns nil once the message has reached a terminal
// disposition (acked, nak'd, or dead-lettered) — HandleOnce never
// returns an error the caller needs to act on; all outcomes are already
// reflected in DQ/IL state by the time it returns.
func (p *Protocol) HandleOnce(ctx context.Context, msg *queue.Message) error {
	// Step 1: decode. A message that fails to decode carries no usable
	// operation_id, so there is nothing to record in IL against — the
	// "best-effort" failure record spec.md §4.3 step 1 describes degrades
	// to a log line here, and the message is acked regardless so a
	// malformed payload never blocks the subject.
	req, err := domain.DecodeWriteRequest(msg.Payload)
	if err != nil {
		p.logger.WarnContext(ctx, "decode failure, non-retryable", "error", err)
		return p.q.Ack(ctx, msg.ID)
	}
	if err := req.Validate(); err != nil {
		p.logger.WarnContext(ctx, "validation failure, non-retryable", "operation_id", req.OperationID, "error", err)
		_ = p.ledger.Fail(ctx, req.OperationID, req.Table, "", req.OpType, fmt.Sprintf("validation failure: %v", err), time.Now())
		return p.q.Ack(ctx, msg.ID)
	}

	outcome := p.apply(ctx, req)

	switch outcome.kind {
	case outcomeCompleted, outcomeDuplicateSkip, outcomeNonRetryableFailed:
		return p.q.Ack(ctx, msg.ID)

	case outcomeRetryable:
		if msg.DeliveryCount < p.cfg.MaxDeliver {
			delay := backoff(msg.DeliveryCount, p.cfg.BaseBackoff, p.cfg.MaxBackoff)
			p.logger.InfoContext(ctx, "retryable error, nak with backoff",
				"operation_id", req.OperationID, "attempt", msg.DeliveryCount, "delay", delay, "error", outcome.err)
			return p.q.Nak(ctx, msg.ID, delay)
		}

		p.logger.ErrorContext(ctx, "retries exhausted, dead-lettering",
			"operation_id", req.OperationID, "attempts", msg.DeliveryCount, "error", outcome.err)
		if dlqErr := p.q.DeadLetter(ctx, p.archiver, msg, classify.Message(outcome.err)); dlqErr != nil {
			// The original message must remain in-flight and redeliver later —
			// acking now would lose it with no DLQ record.
			p.logger.ErrorContext(ctx, "dead letter publish failed, leaving message for redelivery", "error", dlqErr)
			return dlqErr
		}
		return p.q.Ack(ctx, msg.ID)

	default:
		return fmt.Errorf("processor: unreachable outcome kind %v", outcome.kind)
	}
}

type outcomeKind int

const (
	outcomeCompleted outcomeKind = iota
	outcomeDuplicateSkip
	outcomeNonRetryableFailed
	outcomeRetryable
)

type outcome struct {
	kind outcomeKind
	err  error
}

// apply runs steps 2-8 of the write protocol inside one transaction.
func (p *Protocol) apply(ctx context.Context, req domain.WriteRequest) outcome {
	// Step 2: allocate entity_id.
	entityID := uuid.NewString()

	// Step 3: open transaction.
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return outcome{kind: outcomeRetryable, err: err}
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// Step 4: idempotency pivot.
	if err := p.ledger.InsertPending(ctx, tx, req.OperationID, req.Table, entityID, req.OpType); err != nil {
		if errors.Is(err, domain.ErrDuplicateOperation) {
			p.logger.InfoContext(ctx, "duplicate operation, skip", "operation_id", req.OperationID)
			return outcome{kind: outcomeDuplicateSkip}
		}
		if classify.IsRetryable(err) {
			return outcome{kind: outcomeRetryable, err: err}
		}
		_ = tx.Rollback()
		return p.fail(ctx, req, err)
	}

	// Step 5: domain row.
	if err := p.handler.Apply(ctx, tx, entityID, req.OpType, req.Data); err != nil {
		if classify.IsRetryable(err) {
			return outcome{kind: outcomeRetryable, err: err}
		}
		_ = tx.Rollback()
		return p.fail(ctx, req, err)
	}

	// Step 6: complete.
	completedAt := time.Now()
	if err := p.ledger.Complete(ctx, tx, req.OperationID, completedAt); err != nil {
		if classify.IsRetryable(err) {
			return outcome{kind: outcomeRetryable, err: err}
		}
		_ = tx.Rollback()
		return p.fail(ctx, req, err)
	}

	// Step 7: commit.
	if err := tx.Commit(); err != nil {
		if classify.IsRetryable(err) {
			return outcome{kind: outcomeRetryable, err: err}
		}
		return p.fail(ctx, req, err)
	}
	committed = true

	// Step 8: best-effort cache invalidation.
	if p.cache != nil {
		if _, err := p.cache.InvalidateNamespace(ctx, req.Table.CacheNamespace()); err != nil {
			p.logger.WarnContext(ctx, "cache invalidation failed, will be reconciled by CDC",
				"operation_id", req.OperationID, "error", err)
		}
	}

	return outcome{kind: outcomeCompleted}
}

// fail handles the non-retryable path: the caller has already rolled the
// transaction back (a failed Commit ends it on its own), so this records
// the terminal failure in a standalone statement per spec.md §4.3.
func (p *Protocol) fail(ctx context.Context, req domain.WriteRequest, cause error) outcome {
	msg := classify.Message(cause)
	if err := p.ledger.Fail(ctx, req.OperationID, req.Table, "", req.OpType, msg, time.Now()); err != nil {
		p.logger.ErrorContext(ctx, "failed to record non-retryable failure in ledger", "operation_id", req.OperationID, "error", err)
	}
	return outcome{kind: outcomeNonRetryableFailed, err: cause}
}
