package processor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/corewrite/pipeline/pkg/domain"
)

const usersTableSchema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	email      TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	deleted_at TIMESTAMPTZ
);
`

type userPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UsersHandler applies create/update/delete operations to the users
// table. A unique constraint on email means a duplicate email surfaces as
// a Postgres unique_violation (23505) — classify.IsRetryable correctly
// reports that as non-retryable, distinct from the ledger's own 23505 on
// operation_id.
type UsersHandler struct{}

// NewUsersHandler creates a UsersHandler.
func NewUsersHandler() *UsersHandler { return &UsersHandler{} }

// Table implements TableHandler.
func (h *UsersHandler) Table() domain.Table { return domain.TableUsers }

// Init creates the users table if it does not already exist.
func (h *UsersHandler) Init(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, usersTableSchema)
	return err
}

// Apply implements TableHandler.
func (h *UsersHandler) Apply(ctx context.Context, tx *sql.Tx, entityID string, op domain.OpType, data json.RawMessage) error {
	switch op {
	case domain.OpCreate:
		var p userPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("users: decode payload: %w", err)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, name, email) VALUES ($1, $2, $3)`,
			entityID, p.Name, p.Email,
		)
		return err

	case domain.OpUpdate:
		var p userPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("users: decode payload: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET name = $2, email = $3, updated_at = now() WHERE id = $1 AND deleted_at IS NULL`,
			entityID, p.Name, p.Email,
		)
		if err != nil {
			return err
		}
		return requireRowAffected(res, "users", entityID)

	case domain.OpDelete:
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`,
			entityID,
		)
		if err != nil {
			return err
		}
		return requireRowAffected(res, "users", entityID)

	default:
		return fmt.Errorf("users: unsupported op_type %q", op)
	}
}
