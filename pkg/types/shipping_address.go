package types

import (
	"fmt"
	"strings"
)

// ShippingAddress is the delivery address captured on a part purchase.
type ShippingAddress struct {
	Name       string  `json:"name" validate:"required"`
	Line1      string  `json:"line1" validate:"required"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city" validate:"required"`
	State      string  `json:"state" validate:"required"`
	PostalCode string  `json:"postal_code" validate:"required"`
	Country    string  `json:"country" validate:"required,country"`
}

// Validate reports the first missing field, if any.
func (a ShippingAddress) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"name", a.Name},
		{"line1", a.Line1},
		{"city", a.City},
		{"state", a.State},
		{"postal_code", a.PostalCode},
		{"country", a.Country},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("shipping_address: missing %s", r.field)
		}
	}
	if len(strings.TrimSpace(a.Country)) != 2 {
		return fmt.Errorf("shipping_address: country must be a 2-letter code")
	}
	return nil
}
