package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// CDCOp is the change-data-capture operation code. CDCRead denotes an
// initial-snapshot row delivered during a CDC consumer's backfill and is
// semantically a no-op.
type CDCOp string

const (
	CDCCreate CDCOp = "c"
	CDCUpdate CDCOp = "u"
	CDCDelete CDCOp = "d"
	CDCRead   CDCOp = "r"
)

// CDCEvent is a single row-change event delivered on a table's CDC subject.
// Per table, events arrive in source-commit order; no order is promised
// across tables.
type CDCEvent struct {
	Op                CDCOp             `json:"op"`
	Table             Table             `json:"table"`
	PrimaryKeyColumns map[string]string `json:"primary_key_columns"`
	SourceTimestamp   time.Time         `json:"source_timestamp"`
}

// Encode serializes the event to its canonical wire form.
func (e CDCEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeCDCEvent parses a CDC subject message payload.
func DecodeCDCEvent(payload []byte) (CDCEvent, error) {
	var e CDCEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return CDCEvent{}, fmt.Errorf("cdc event: decode: %w", err)
	}
	return e, nil
}
