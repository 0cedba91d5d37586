package processor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/corewrite/pipeline/pkg/domain"
)

const ordersTableSchema = `
CREATE TABLE IF NOT EXISTS orders (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL REFERENCES users(id),
	amount_cents BIGINT NOT NULL CHECK (amount_cents >= 0),
	currency     TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	deleted_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS orders_user_id_idx ON orders (user_id);
`

type orderPayload struct {
	UserID      string `json:"user_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// OrdersHandler applies create/update/delete operations to the orders
// table. The foreign key on user_id is what produces the non-retryable
// FK-violation scenario spec.md §8 scenario 3 exercises.
type OrdersHandler struct{}

// NewOrdersHandler creates an OrdersHandler.
func NewOrdersHandler() *OrdersHandler { return &OrdersHandler{} }

// Table implements TableHandler.
func (h *OrdersHandler) Table() domain.Table { return domain.TableOrders }

// Init creates the orders table if it does not already exist.
func (h *OrdersHandler) Init(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, ordersTableSchema)
	return err
}

// Apply implements TableHandler.
func (h *OrdersHandler) Apply(ctx context.Context, tx *sql.Tx, entityID string, op domain.OpType, data json.RawMessage) error {
	switch op {
	case domain.OpCreate:
		var p orderPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("orders: decode payload: %w", err)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO orders (id, user_id, amount_cents, currency) VALUES ($1, $2, $3, $4)`,
			entityID, p.UserID, p.AmountCents, p.Currency,
		)
		return err

	case domain.OpUpdate:
		var p orderPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("orders: decode payload: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE orders SET amount_cents = $2, currency = $3, updated_at = now() WHERE id = $1 AND deleted_at IS NULL`,
			entityID, p.AmountCents, p.Currency,
		)
		if err != nil {
			return err
		}
		return requireRowAffected(res, "orders", entityID)

	case domain.OpDelete:
		res, err := tx.ExecContext(ctx,
			`UPDATE orders SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`,
			entityID,
		)
		if err != nil {
			return err
		}
		return requireRowAffected(res, "orders", entityID)

	default:
		return fmt.Errorf("orders: unsupported op_type %q", op)
	}
}
