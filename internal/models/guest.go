package models

import "time"

// PhoneKey is the digits-only identity every guest is merged under.
type PhoneKey string

// Valid reports whether the key may be indexed.
func (k PhoneKey) Valid() bool {
	return k != ""
}

// FieldTuple is one spreadsheet row reduced to the canonical guest fields
type FieldTuple struct {
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	RoomNumber   string `json:"roomNumber"`
	Phone        string `json:"identifierValue"`
	Email        string `json:"email"`
	CheckoutDate string `json:"checkoutDate"`
	CheckinDate  string `json:"checkinDate"`
	AvailableIn  string `json:"availableIn,omitempty"`
}

// FullName joins first and last name with a single space.
func (f FieldTuple) FullName() string {
	return JoinName(f.FirstName, f.LastName)
}

// GuestRecord is the per-phone view rebuilt on every reconciliation pass
type GuestRecord struct {
	FirstName       string     `json:"firstName"`
	LastName        string     `json:"lastName"`
	RoomNumber      string     `json:"roomNumber"`
	IdentifierValue string     `json:"identifierValue"`
	Email           string     `json:"email"`
	CheckoutDate    string     `json:"checkoutDate"`
	CheckinDate     string     `json:"checkinDate"`
	AvailableIn     string     `json:"availableIn,omitempty"`
	LastMessage     string     `json:"lastMessage"`
	LastSeen        *time.Time `json:"lastSeen"`
	LastDirection   string     `json:"lastDirection"`
	TemplateName    string     `json:"templateName,omitempty"`
	DeliveryStatus  string     `json:"deliveryStatus,omitempty"`
	DeliveryReason  string     `json:"deliveryReason,omitempty"`
	DeliveryCode    string     `json:"deliveryCode,omitempty"`
}

// DisplayName returns the name shown for the guest, empty when unknown.
func (g *GuestRecord) DisplayName() string {
	return JoinName(g.FirstName, g.LastName)
}

// HasName reports whether any name source has filled the record.
func (g *GuestRecord) HasName() bool {
	return g.FirstName != "" || g.LastName != ""
}

// SetName splits a full name into first name and the remainder.
func (g *GuestRecord) SetName(full string) {
	g.FirstName, g.LastName = SplitName(full)
}

// GetGuestsOptions controls the visibility pass of a guest listing
type GetGuestsOptions struct {
	IncludeCheckedOut bool
	IncludeFailed     bool
	Template          string
	Status            string
}
