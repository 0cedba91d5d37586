// Package queue implements the Durable Queue (DQ) contract of spec.md §4.2
// and §6: named streams over a subject hierarchy, per-subject durable
// consumers, explicit ack/nak-with-delay, a bounded redelivery count, and a
// dead-letter sink. It also carries the CDC feed (a third stream, presented
// through the same interface — see spec.md §6's note that the CDC feed has
// the same per-table-subject, ordered-delivery shape as the write streams).
//
// The substrate is deliberately PostgreSQL (spec.md §1: "the specific
// identity of the durable messaging substrate... [is] out of scope, treated
// as external collaborator through their contracts only"). This keeps the
// write transaction (pkg/processor) and the queue's consumer cursor on the
// same store without introducing an ungrounded broker client, and reuses
// the teacher's FOR UPDATE SKIP LOCKED idiom from
// pkg/store/ledger/postgres_ledger.go's AcquireNextPending, generalized
// from a single obligations queue to an arbitrary stream/subject space.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Stream names, per spec.md §4.2.
const (
	StreamWrites    = "WRITES"
	StreamWritesDLQ = "WRITES_DLQ"
	StreamCDC       = "CDC"
)

const schema = `
CREATE TABLE IF NOT EXISTS dq_messages (
	id             TEXT PRIMARY KEY,
	stream         TEXT NOT NULL,
	subject        TEXT NOT NULL,
	dedup_id       TEXT NOT NULL,
	payload        BYTEA NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending',
	delivery_count INT NOT NULL DEFAULT 0,
	last_error     TEXT,
	visible_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	locked_until   TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (stream, dedup_id)
);
CREATE INDEX IF NOT EXISTS dq_messages_poll_idx ON dq_messages (stream, subject, status, visible_at);
`

// ErrEmpty is returned by Consume when no message is ready for delivery.
// Callers poll in a loop, sleeping between empty results — this is the
// "idle-heartbeat" spec.md §4.6 requires of the CDC consumer.
var ErrEmpty = errors.New("queue: no message ready")

// Message is a single delivered message: payload bytes, subject, and
// redelivery count, per the minimum §6 requires consumers be able to see.
type Message struct {
	ID            string
	Stream        string
	Subject       string
	Payload       []byte
	DeliveryCount int // 1 on first delivery, per spec.md §4.3's attempt numbering k
}

// Queue is the PostgreSQL-backed Durable Queue.
type Queue struct {
	db *sql.DB
}

// New creates a Queue over an existing *sql.DB.
func New(db *sql.DB) *Queue {
	return &Queue{db: db}
}

// Init creates the backing table if it does not already exist.
func (q *Queue) Init(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, schema)
	return err
}

// Publish writes exactly one message to subject on stream, deduplicated by
// dedupID within the stream (spec.md §4.2's "publisher-side dedup window
// keyed by message id" — here the window is unbounded rather than
// time-boxed, which only strengthens the guarantee WG needs in §4.1).
// Publishing the same dedupID twice is a no-op and returns nil, matching
// "retrying the same key does not enqueue a second message."
func (q *Queue) Publish(ctx context.Context, stream, subject, dedupID string, payload []byte) error {
	id, err := newMessageID()
	if err != nil {
		return fmt.Errorf("queue: publish: %w", err)
	}
	_, err = q.db.ExecContext(ctx,
		`INSERT INTO dq_messages (id, stream, subject, dedup_id, payload)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (stream, dedup_id) DO NOTHING`,
		id, stream, subject, dedupID, payload,
	)
	if err != nil {
		return fmt.Errorf("queue: publish: %w", err)
	}
	return nil
}

// Consume pops the oldest ready message for (stream, subject) and marks it
// in-flight until ackDeadline elapses, incrementing its delivery count. A
// message still in-flight past its ack deadline counts as ready again.
// Returns ErrEmpty if nothing is ready. Concurrent consumers on the same
// subject never observe the same message thanks to FOR UPDATE SKIP LOCKED.
func (q *Queue) Consume(ctx context.Context, stream, subject string, ackDeadline time.Duration) (*Message, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("queue: consume: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT id, payload, delivery_count
		 FROM dq_messages
		 WHERE stream = $1 AND subject = $2
		   AND ((status = 'pending' AND visible_at <= now()) OR (status = 'in_flight' AND locked_until < now()))
		 ORDER BY created_at ASC
		 LIMIT 1
		 FOR UPDATE SKIP LOCKED`,
		stream, subject,
	)

	var id string
	var payload []byte
	var deliveryCount int
	if err := row.Scan(&id, &payload, &deliveryCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("queue: consume: %w", err)
	}

	deliveryCount++
	lockedUntil := time.Now().Add(ackDeadline)
	if _, err := tx.ExecContext(ctx,
		`UPDATE dq_messages SET status = 'in_flight', delivery_count = $2, locked_until = $3 WHERE id = $1`,
		id, deliveryCount, lockedUntil,
	); err != nil {
		return nil, fmt.Errorf("queue: consume: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("queue: consume: %w", err)
	}

	return &Message{ID: id, Stream: stream, Subject: subject, Payload: payload, DeliveryCount: deliveryCount}, nil
}

// Ack acknowledges successful (or intentionally absorbed) processing of a
// message. Idempotent: acking an already-acked message is a no-op.
func (q *Queue) Ack(ctx context.Context, messageID string) error {
	_, err := q.db.ExecContext(ctx, `UPDATE dq_messages SET status = 'acked' WHERE id = $1`, messageID)
	if err != nil {
		return fmt.Errorf("queue: ack: %w", err)
	}
	return nil
}

// Nak returns a message to pending, redeliverable after delay. Used on
// retryable errors (spec.md §4.3) when the attempt count has not yet
// reached max_deliver.
func (q *Queue) Nak(ctx context.Context, messageID string, delay time.Duration) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE dq_messages SET status = 'pending', visible_at = $2 WHERE id = $1`,
		messageID, time.Now().Add(delay),
	)
	if err != nil {
		return fmt.Errorf("queue: nak: %w", err)
	}
	return nil
}

// ReclaimExpired requeues in_flight messages on stream whose ack deadline
// has passed without an ack or nak — the redelivery path DQ must provide
// when a handler fails to ack/nak within T_ack (spec.md §5).
func (q *Queue) ReclaimExpired(ctx context.Context, stream string) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE dq_messages
		 SET status = 'pending', visible_at = now()
		 WHERE stream = $1 AND status = 'in_flight' AND locked_until < now()`,
		stream,
	)
	if err != nil {
		return 0, fmt.Errorf("queue: reclaim: %w", err)
	}
	return res.RowsAffected()
}
