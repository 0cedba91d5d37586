// Package classify sorts a write-transaction error into retryable or
// non-retryable using a safelist over Postgres error codes (spec.md §4.3:
// "Blocklists based on error-message substring matching are forbidden;
// unknown errors must fail fast" — so anything not on the retryable
// safelist is treated as non-retryable, never the reverse).
//
// Grounded on the teacher's use of *pq.Error.Code throughout
// pkg/store/ledger/postgres_ledger.go and pkg/api/postgres_idempotency.go,
// generalized from the single 23505 check into a full safelist.
package classify

import (
	"errors"

	"github.com/lib/pq"
)

// Postgres SQLSTATE classes and codes that spec.md §4.3 names as
// retryable: connection/transport failures, admin shutdowns,
// serialization/deadlock conflicts, and too-many-connections.
var retryableCodes = map[string]bool{
	"08000": true, // connection_exception
	"08003": true, // connection_does_not_exist
	"08006": true, // connection_failure
	"08001": true, // sqlclient_unable_to_establish_sqlconnection
	"08004": true, // sqlserver_rejected_establishment_of_sqlconnection
	"57P01": true, // admin_shutdown
	"57P02": true, // crash_shutdown
	"57P03": true, // cannot_connect_now
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"53300": true, // too_many_connections
	"53400": true, // configuration_limit_exceeded
}

// IsRetryable reports whether err should be classified RetryableInfra
// (spec.md §5's taxonomy). A non-*pq.Error (a context cancellation, a
// network error from the driver before a code was assigned, etc.) is
// treated as non-retryable: only errors we can positively identify as
// transient are retried.
func IsRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return retryableCodes[string(pqErr.Code)]
}

// Message extracts a stable, client-safe description of err for storage
// in the ledger's error column. For a *pq.Error this is the driver
// message; otherwise the error's own Error() string.
func Message(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Message
	}
	return err.Error()
}
