package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// WriteRequest is the wire shape decoded from a durable queue message
// payload: operation_id, table, and opaque per-table data. The processor
// never interprets Data beyond handing it to the matching TableHandler; WG
// has already validated it against that table's JSON schema before publish.
type WriteRequest struct {
	OperationID string          `json:"operation_id"`
	Table       Table           `json:"table"`
	OpType      OpType          `json:"op_type"`
	Data        json.RawMessage `json:"data"`
}

// Validate checks the wire-level invariants spec'd for a Write Request:
// OperationID is a well-formed 128-bit identifier and Table is supported.
// It does not validate Data — that is the caller's (WG's) job, against the
// table's input schema, before Data ever reaches this type.
func (r WriteRequest) Validate() error {
	if _, err := uuid.Parse(r.OperationID); err != nil {
		return fmt.Errorf("write request: operation_id is not a well-formed identifier: %w", err)
	}
	if !r.Table.Valid() {
		return fmt.Errorf("write request: unsupported table %q", r.Table)
	}
	switch r.OpType {
	case OpCreate, OpUpdate, OpDelete:
	default:
		return fmt.Errorf("write request: unsupported op_type %q", r.OpType)
	}
	return nil
}

// Encode serializes the request to its canonical wire form.
func (r WriteRequest) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// DecodeWriteRequest parses a durable queue message payload. A decode
// failure is non-retryable per spec.md §4.3 step 1 — the caller
// (pkg/processor) logs it and acks, never naks; an undecodable payload
// yields no operation_id to record a ledger failure against.
func DecodeWriteRequest(payload []byte) (WriteRequest, error) {
	var r WriteRequest
	if err := json.Unmarshal(payload, &r); err != nil {
		return WriteRequest{}, fmt.Errorf("write request: decode: %w", err)
	}
	return r, nil
}
