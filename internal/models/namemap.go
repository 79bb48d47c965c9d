package models

import (
	"encoding/json"
	"fmt"
)

// NameMapEntry is a durable phone -> name mapping.
//
// Older map files store a bare JSON string; Legacy records that shape so
// the entry is written back exactly as it was read.
type NameMapEntry struct {
	Name         string
	CheckoutDate string
	Legacy       bool
}

type nameMapObject struct {
	Name         string `json:"name"`
	CheckoutDate string `json:"checkoutDate,omitempty"`
}

// MarshalJSON keeps the legacy bare-string shape when the entry came from one.
func (e NameMapEntry) MarshalJSON() ([]byte, error) {
	if e.Legacy && e.CheckoutDate == "" {
		return json.Marshal(e.Name)
	}
	return json.Marshal(nameMapObject{Name: e.Name, CheckoutDate: e.CheckoutDate})
}

// UnmarshalJSON accepts both the bare-string and the object shape.
func (e *NameMapEntry) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*e = NameMapEntry{Name: s, Legacy: true}
		return nil
	}
	var obj nameMapObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("name map entry: %w", err)
	}
	*e = NameMapEntry{Name: obj.Name, CheckoutDate: obj.CheckoutDate}
	return nil
}

// Structured returns the entry converted to the object shape.
func (e NameMapEntry) Structured() NameMapEntry {
	e.Legacy = false
	return e
}
