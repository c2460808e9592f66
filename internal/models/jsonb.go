package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// scanJSON decodes a JSONB column value into dst
func scanJSON(src interface{}, dst interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONB source type %T", src)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}

// Value implements driver.Valuer
func (a Address) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements sql.Scanner
func (a *Address) Scan(src interface{}) error {
	return scanJSON(src, a)
}

// AddressList is the JSONB list of addresses known for a customer
type AddressList []Address

// Value implements driver.Valuer
func (l AddressList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Address(l))
}

// Scan implements sql.Scanner
func (l *AddressList) Scan(src interface{}) error {
	return scanJSON(src, (*[]Address)(l))
}

// Value implements driver.Valuer
func (r PricingRules) Value() (driver.Value, error) {
	return json.Marshal(r)
}

// Scan implements sql.Scanner
func (r *PricingRules) Scan(src interface{}) error {
	return scanJSON(src, r)
}

// UUIDList is a JSONB array of ids
type UUIDList []uuid.UUID

// Value implements driver.Valuer
func (l UUIDList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]uuid.UUID(l))
}

// Scan implements sql.Scanner
func (l *UUIDList) Scan(src interface{}) error {
	return scanJSON(src, (*[]uuid.UUID)(l))
}
