package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corewrite/pipeline/pkg/domain"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestSchemaValidator_ValidatesUsers(t *testing.T) {
	v, err := NewSchemaValidator()
	require.NoError(t, err)

	require.NoError(t, v.Validate(domain.TableUsers, decode(t, `{"name":"Ada","email":"ada@example.com"}`)))
	require.Error(t, v.Validate(domain.TableUsers, decode(t, `{"name":"Ada"}`)))
	require.Error(t, v.Validate(domain.TableUsers, decode(t, `{"name":"Ada","email":"ada@example.com","extra":1}`)))
}

func TestSchemaValidator_ValidatesOrders(t *testing.T) {
	v, err := NewSchemaValidator()
	require.NoError(t, err)

	require.NoError(t, v.Validate(domain.TableOrders, decode(t, `{"user_id":"u1","amount_cents":500,"currency":"usd"}`)))
	require.Error(t, v.Validate(domain.TableOrders, decode(t, `{"user_id":"u1","amount_cents":-1,"currency":"usd"}`)))
}

func TestSchemaValidator_UnknownTable(t *testing.T) {
	v, err := NewSchemaValidator()
	require.NoError(t, err)
	require.Error(t, v.Validate(domain.Table("widgets"), decode(t, `{}`)))
}
