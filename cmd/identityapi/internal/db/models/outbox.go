package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// JSONMap stores an arbitrary JSON object.
type JSONMap map[string]any

// Scan implements sql.Scanner for reading from database
func (m *JSONMap) Scan(value any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*m = JSONMap{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("failed to scan JSONMap: expected []byte or string, got %T", value)
	}
	out := JSONMap{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*m = out
	return nil
}

// Value implements driver.Valuer for writing to database
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// OutboxEvent is a domain event written in the same transaction as the
// aggregate change that raised it.
type OutboxEvent struct {
	bun.BaseModel `bun:"table:outbox_events,alias:oe"`

	ID             string     `bun:"id,pk,type:uuid"`
	OrganizationID string     `bun:"organization_id,notnull,type:uuid"`
	Type           string     `bun:"type,notnull"`
	Payload        JSONMap    `bun:"payload,type:jsonb,notnull"`
	OccurredAt     time.Time  `bun:"occurred_at,notnull"`
	DispatchedAt   *time.Time `bun:"dispatched_at"`
	Attempts       int        `bun:"attempts,notnull,default:0"`
	LastError      string     `bun:"last_error,notnull,default:''"`
}
