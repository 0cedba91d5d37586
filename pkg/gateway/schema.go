package gateway

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/corewrite/pipeline/pkg/domain"
)

// usersSchema and ordersSchema are the JSON Schemas for the two supported
// tables (SPEC_FULL.md §3). Kept inline rather than loaded from disk:
// the table set is fixed code, not operator configuration.
const usersSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["name", "email"],
	"additionalProperties": false,
	"properties": {
		"name":  {"type": "string", "minLength": 1, "maxLength": 200},
		"email": {"type": "string", "minLength": 3, "maxLength": 320, "format": "email"}
	}
}`

const ordersSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["user_id", "amount_cents", "currency"],
	"additionalProperties": false,
	"properties": {
		"user_id":      {"type": "string", "minLength": 1},
		"amount_cents": {"type": "integer", "minimum": 0},
		"currency":     {"type": "string", "minLength": 3, "maxLength": 3}
	}
}`

// SchemaValidator holds one compiled JSON Schema per supported table,
// compiled once at startup. Grounded on the teacher's
// pkg/firewall/firewall.go:PolicyFirewall.AllowTool, which compiles a
// santhosh-tekuri/jsonschema document per tool name; here the compilation
// key is the table name instead.
type SchemaValidator struct {
	schemas map[domain.Table]*jsonschema.Schema
}

// NewSchemaValidator compiles the schema for every supported table.
func NewSchemaValidator() (*SchemaValidator, error) {
	raw := map[domain.Table]string{
		domain.TableUsers:  usersSchema,
		domain.TableOrders: ordersSchema,
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020

	compiled := make(map[domain.Table]*jsonschema.Schema, len(raw))
	for table, schema := range raw {
		url := fmt.Sprintf("https://schemas.corewrite.dev/%s.schema.json", table)
		if err := c.AddResource(url, strings.NewReader(schema)); err != nil {
			return nil, fmt.Errorf("gateway: load schema for %s: %w", table, err)
		}
		s, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("gateway: compile schema for %s: %w", table, err)
		}
		compiled[table] = s
	}

	return &SchemaValidator{schemas: compiled}, nil
}

// Validate checks data (already decoded to a generic JSON value) against
// table's schema.
func (v *SchemaValidator) Validate(table domain.Table, data any) error {
	schema, ok := v.schemas[table]
	if !ok {
		return fmt.Errorf("gateway: no schema registered for table %q", table)
	}
	if err := schema.Validate(data); err != nil {
		return fmt.Errorf("gateway: schema validation failed for %s: %w", table, err)
	}
	return nil
}
