// Package records turns loosely structured spreadsheet rows into
// canonical guest field tuples.
package records

import (
	"strings"

	"hotel-messaging/internal/identity"
	"hotel-messaging/internal/models"
)

// Field is a canonical guest field.
type Field int

const (
	FirstName Field = iota
	LastName
	RoomNumber
	Phone
	Email
	CheckoutDate
	CheckinDate
	AvailableIn
)

// Aliases lists, per field, the column headers seen in exports, highest
// priority first. The first alias with a non-empty value wins.
var Aliases = map[Field][]string{
	FirstName:    {"First Name", "Firstname", "Given Name", "Name", "Guest Name", "Guest"},
	LastName:     {"Last Name", "Lastname", "Surname", "Family Name"},
	RoomNumber:   {"Room Number", "Room", "room", "RoomNumber"},
	Phone:        {"Ph.", "Phone", "Telephone", "Mobile", "Contact"},
	Email:        {"Email", "E-mail", "Email Address"},
	CheckoutDate: {"Checkout Date", "Check Out", "Departure Date", "Departure", "CheckOut"},
	CheckinDate:  {"Checkin Date", "Check-In", "Check In", "Arrival Date", "Arrival"},
	AvailableIn:  {"Available In", "Available in", "Available"},
}

// Lookup resolves one field from a row using the alias table.
func Lookup(row map[string]string, field Field) string {
	for _, alias := range Aliases[field] {
		if v := strings.TrimSpace(row[alias]); v != "" {
			return v
		}
	}
	return ""
}

// Extract maps a row to a FieldTuple. It never fails: missing columns
// yield empty fields.
func Extract(row map[string]string) models.FieldTuple {
	return models.FieldTuple{
		FirstName:    Lookup(row, FirstName),
		LastName:     Lookup(row, LastName),
		RoomNumber:   Lookup(row, RoomNumber),
		Phone:        identity.Compact(Lookup(row, Phone)),
		Email:        Lookup(row, Email),
		CheckoutDate: Lookup(row, CheckoutDate),
		CheckinDate:  Lookup(row, CheckinDate),
		AvailableIn:  Lookup(row, AvailableIn),
	}
}

// ExtractAll extracts every row.
func ExtractAll(rows []map[string]string) []models.FieldTuple {
	out := make([]models.FieldTuple, 0, len(rows))
	for _, row := range rows {
		out = append(out, Extract(row))
	}
	return out
}
