package models

import "strings"

// Occurrence is one observation of a phone in one archived export.
type Occurrence struct {
	File         string `json:"file"`
	Phone        string `json:"phone"`
	CheckoutDate string `json:"checkoutDate"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	RoomNumber   string `json:"roomNumber"`
}

// Signature identifies an occurrence for deduplication. Every field,
// including the source file, takes part.
func (o Occurrence) Signature() string {
	return strings.Join([]string{o.File, o.Phone, o.CheckoutDate, o.FirstName, o.LastName, o.RoomNumber}, "|")
}

// IndexEntry aggregates every occurrence seen for one phone.
type IndexEntry struct {
	Name           string       `json:"name"`
	Occurrences    []Occurrence `json:"occurrences"`
	LatestCheckout string       `json:"latestCheckout"`
}

// Clone returns a deep copy of the entry.
func (e *IndexEntry) Clone() *IndexEntry {
	if e == nil {
		return nil
	}
	out := *e
	out.Occurrences = append([]Occurrence(nil), e.Occurrences...)
	return &out
}
