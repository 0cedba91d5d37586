// Package cdc implements the CDC Consumer (CDCC): a durable consumer on the
// CDC feed that reconciles the Cache Keystore against row changes it did not
// itself cause (replication lag, direct writes, backfills), per spec.md §4.6.
//
// Grounded on the same poll-process-ack loop shape as pkg/processor/loop.go,
// generalized from dispatching to a TableHandler to dispatching straight to
// a namespace invalidation rule table.
package cdc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/corewrite/pipeline/pkg/cache"
	"github.com/corewrite/pipeline/pkg/domain"
	"github.com/corewrite/pipeline/pkg/queue"
)

// Consumer runs the single CDCC loop across every supported table's CDC
// subject. Unlike pkg/processor's one-loop-per-table shape, spec.md §4.6
// names a single consumer filtered to the relevant table subjects, so one
// Consumer polls every subject in turn rather than running N loops.
type Consumer struct {
	q           *queue.Queue
	cache       *cache.Cache
	ackDeadline time.Duration
	idleDelay   time.Duration
	logger      *slog.Logger
}

// New creates a Consumer.
func New(q *queue.Queue, c *cache.Cache, ackDeadline time.Duration) *Consumer {
	return &Consumer{
		q:           q,
		cache:       c,
		ackDeadline: ackDeadline,
		idleDelay:   200 * time.Millisecond,
		logger:      slog.Default().With("component", "cdc.consumer"),
	}
}

// Run polls every supported table's CDC subject in turn until ctx is
// canceled. A quiet pass across all subjects sleeps once before the next
// pass — the idle-heartbeat spec.md §4.6 requires so the consumer can scale
// horizontally without stalling on an empty subject.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		delivered := false
		for _, table := range domain.SupportedTables {
			for {
				msg, err := c.q.Consume(ctx, queue.StreamCDC, table.CDCSubject(), c.ackDeadline)
				if err != nil {
					if !errors.Is(err, queue.ErrEmpty) {
						c.logger.ErrorContext(ctx, "consume failed", "table", table, "error", err)
					}
					break
				}
				delivered = true
				c.handle(ctx, msg)
			}
		}

		if !delivered {
			time.Sleep(c.idleDelay)
		}
	}
}

// handle applies spec.md §4.6's invalidation rules to a single CDC event and
// terminates the delivery (ack or nak), never returning an error the caller
// must act on.
func (c *Consumer) handle(ctx context.Context, msg *queue.Message) {
	event, err := domain.DecodeCDCEvent(msg.Payload)
	if err != nil {
		c.logger.WarnContext(ctx, "decode failure, non-retryable", "error", err)
		if ackErr := c.q.Ack(ctx, msg.ID); ackErr != nil {
			c.logger.ErrorContext(ctx, "ack failed", "message_id", msg.ID, "error", ackErr)
		}
		return
	}

	if event.Op == domain.CDCRead {
		if err := c.q.Ack(ctx, msg.ID); err != nil {
			c.logger.ErrorContext(ctx, "ack failed", "message_id", msg.ID, "error", err)
		}
		return
	}

	namespaces := invalidationTargets(event)
	var failed error
	for _, ns := range namespaces {
		if _, err := c.cache.InvalidateNamespace(ctx, ns); err != nil {
			failed = err
		}
	}

	if failed != nil {
		c.logger.WarnContext(ctx, "invalidation failed, nak for retry",
			"table", event.Table, "op", event.Op, "error", failed)
		if err := c.q.Nak(ctx, msg.ID, 2*time.Second); err != nil {
			c.logger.ErrorContext(ctx, "nak failed", "message_id", msg.ID, "error", err)
		}
		return
	}

	if err := c.q.Ack(ctx, msg.ID); err != nil {
		c.logger.ErrorContext(ctx, "ack failed", "message_id", msg.ID, "error", err)
	}
}

// invalidationTargets maps a CDC event to the cache namespaces it must
// invalidate, per spec.md §4.6:
//   - table == users: the users namespace, plus orders on delete (FK cascade
//     semantics invalidate dependent views).
//   - table == orders: the orders namespace.
func invalidationTargets(event domain.CDCEvent) []string {
	switch event.Table {
	case domain.TableUsers:
		targets := []string{domain.TableUsers.CacheNamespace()}
		if event.Op == domain.CDCDelete {
			targets = append(targets, domain.TableOrders.CacheNamespace())
		}
		return targets
	case domain.TableOrders:
		return []string{domain.TableOrders.CacheNamespace()}
	default:
		return nil
	}
}
