package processor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/corewrite/pipeline/pkg/domain"
	"github.com/corewrite/pipeline/pkg/queue"
)

// Loop repeatedly consumes from one table's writes.<table> subject and
// hands each delivery to Protocol.HandleOnce, sleeping briefly when the
// subject is empty. Grounded on the poll-process-ack shape of the
// teacher's worker patterns (cmd/helm/proxy_cmd.go's supervised
// goroutines), generalized to a durable-queue consumer loop.
type Loop struct {
	q           *queue.Queue
	protocol    *Protocol
	table       domain.Table
	ackDeadline time.Duration
	idleDelay   time.Duration
	logger      *slog.Logger
}

// NewLoop creates a consumer loop for table.
func NewLoop(q *queue.Queue, protocol *Protocol, table domain.Table, ackDeadline time.Duration) *Loop {
	return &Loop{
		q:           q,
		protocol:    protocol,
		table:       table,
		ackDeadline: ackDeadline,
		idleDelay:   200 * time.Millisecond,
		logger:      slog.Default().With("component", "processor.loop", "table", string(table)),
	}
}

// Run blocks consuming messages until ctx is canceled.
func (l *Loop) Run(ctx context.Context) error {
	subject := l.table.WriteSubject()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := l.q.Consume(ctx, queue.StreamWrites, subject, l.ackDeadline)
		if err != nil {
			if errors.Is(err, queue.ErrEmpty) {
				time.Sleep(l.idleDelay)
				continue
			}
			l.logger.ErrorContext(ctx, "consume failed", "error", err)
			time.Sleep(l.idleDelay)
			continue
		}

		if err := l.protocol.HandleOnce(ctx, msg); err != nil {
			l.logger.ErrorContext(ctx, "handle failed", "message_id", msg.ID, "error", err)
		}
	}
}
