package queue

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Archiver persists a dead-lettered payload to cold storage for later
// inspection. Supplemented feature (spec.md §4.3 names the DLQ but leaves
// the fate of dead-lettered payloads to the operator; archiving the raw
// payload next to its dead-letter row is the natural completion, grounded
// on the teacher's pkg/artifacts/s3_store.go).
type Archiver interface {
	Archive(ctx context.Context, key string, payload []byte) error
}

// S3Archiver archives dead-lettered payloads to an S3 bucket, one object
// per dead-lettered message keyed by stream/subject/message-id.
type S3Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Archiver wraps an already-configured *s3.Client. Client construction
// (region, endpoint, credentials) is the caller's concern — see
// pkg/config — following the separation the teacher's NewS3Store collapses
// but pkg/queue does not need: the queue package only ever writes objects.
func NewS3Archiver(client *s3.Client, bucket, prefix string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, prefix: prefix}
}

// Archive uploads payload under prefix/key.
func (a *S3Archiver) Archive(ctx context.Context, key string, payload []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.prefix + key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("dlq: s3 archive: %w", err)
	}
	return nil
}

// DeadLetter moves msg to the dead-letter stream under its original
// subject and best-effort archives its payload, logging (never returning)
// an archive failure. The caller (pkg/processor) acks the original message only
// after DeadLetter returns successfully — spec.md §4.3's "terminal
// disposition" for exhausted retries.
func (q *Queue) DeadLetter(ctx context.Context, archiver Archiver, msg *Message, failureReason string) error {
	dlqID, err := newMessageID()
	if err != nil {
		return fmt.Errorf("queue: dead letter: %w", err)
	}

	_, err = q.db.ExecContext(ctx,
		`INSERT INTO dq_messages (id, stream, subject, dedup_id, payload, status, delivery_count, last_error)
		 VALUES ($1, $2, $3, $4, $5, 'pending', 0, $6)
		 ON CONFLICT (stream, dedup_id) DO NOTHING`,
		dlqID, StreamWritesDLQ, msg.Subject, msg.ID, msg.Payload, failureReason,
	)
	if err != nil {
		return fmt.Errorf("queue: dead letter: %w", err)
	}

	if archiver != nil {
		key := fmt.Sprintf("%s/%s/%s-%d.json", msg.Stream, msg.Subject, msg.ID, time.Now().UnixNano())
		if err := archiver.Archive(ctx, key, msg.Payload); err != nil {
			slog.WarnContext(ctx, "dead letter archive failed", "message_id", msg.ID, "error", err)
		}
	}
	return nil
}
