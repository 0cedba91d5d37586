package ledger

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// ledgerRow mirrors the write_operations columns this package's statements
// read and write, and the two operations below replay their exact WHERE
// clauses against an in-memory row instead of a live Postgres instance.
type ledgerRow struct {
	status string
	error  string
}

// applyComplete replays Complete's UPDATE ... WHERE operation_id = $1 AND
// status = 'pending' guard: a row already in a terminal state is left
// untouched.
func applyComplete(row ledgerRow) ledgerRow {
	if row.status != "pending" {
		return row
	}
	row.status = "completed"
	row.error = ""
	return row
}

// applyFail replays Fail's INSERT ... ON CONFLICT DO UPDATE ... WHERE
// write_operations.status = 'pending' guard: a row already in a terminal
// state is left untouched.
func applyFail(row ledgerRow) ledgerRow {
	if row.status != "pending" {
		return row
	}
	row.status = "failed"
	row.error = "failure"
	return row
}

// TestLedgerMonotonicity is the "Ledger monotonicity" property from
// spec.md §8: a ledger row's status never transitions out of a terminal
// value. It replays random redelivery patterns against the exact guard
// conditions ledger.go's statements encode — any number of Fail calls (one
// per nak'd or DLQ'd delivery), with Complete invoked at most once, since
// the write protocol only ever reaches it once per operation (a repeat
// delivery is caught earlier by InsertPending's unique_violation).
func TestLedgerMonotonicity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("status never leaves a terminal value once reached", prop.ForAll(
		func(numFails int, completeAt int) bool {
			row := ledgerRow{status: "pending"}
			terminal := ""

			step := func(next ledgerRow) bool {
				if terminal != "" && next.status != terminal {
					return false
				}
				row = next
				if row.status == "completed" || row.status == "failed" {
					terminal = row.status
				}
				return true
			}

			for i := 0; i < numFails; i++ {
				if i == completeAt {
					if !step(applyComplete(row)) {
						return false
					}
				}
				if !step(applyFail(row)) {
					return false
				}
			}
			if completeAt >= numFails {
				if !step(applyComplete(row)) {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 20),
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}
