package postgres

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// jsonColumn marshals T to/from a single JSONB column, generalizing the
// teacher's model.StringArray (backend/services/gateway/internal/model/user.go)
// from one hardcoded []string to any JSON-able value: role assignments,
// direct grants, identity links, and scope templates all round-trip
// through this same Scan/Value pair.
type jsonColumn[T any] struct {
	Value T
}

// Value implements driver.Valuer.
func (c jsonColumn[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(c.Value)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Scan implements sql.Scanner.
func (c *jsonColumn[T]) Scan(src interface{}) error {
	if src == nil {
		var zero T
		c.Value = zero
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, &c.Value)
	case string:
		return json.Unmarshal([]byte(v), &c.Value)
	default:
		return fmt.Errorf("postgres: unsupported JSON column source type %T", src)
	}
}

func jsonOf[T any](v T) jsonColumn[T] {
	return jsonColumn[T]{Value: v}
}
