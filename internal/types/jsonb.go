package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

var (
	_ sql.Scanner   = (*PaymentMetadata)(nil)
	_ driver.Valuer = PaymentMetadata(nil)
)

// PaymentMetadata is the free-form JSONB column on payment_logs. Keys are
// event-specific (event_id, event_type, invoice_id, provider status).
type PaymentMetadata map[string]any

// Scan implements sql.Scanner for reading JSONB from the database.
func (m *PaymentMetadata) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonb: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, m)
}

// Value implements driver.Valuer. A nil map is stored as an empty object so
// the column never holds SQL NULL.
func (m PaymentMetadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(m))
}
