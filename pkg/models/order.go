package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TimestampLayout is the site-local, zone-less layout used by the commerce API.
const TimestampLayout = "2006-01-02T15:04:05"

// Timestamp accepts both zone-less API timestamps and RFC3339. Zone-less values are
// kept as wall-clock time in UTC so that date filters compare like with like.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// MarshalJSON writes store wall-clock time in the zone-less layout. Values parsed with an
// explicit offset keep it, as RFC3339.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	if t.Location() != time.UTC {
		return json.Marshal(t.Format(time.RFC3339Nano))
	}
	return json.Marshal(t.Format(TimestampLayout))
}

// ParseTimestamp parses an API timestamp. An empty string yields the zero time.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	ts, err := time.ParseInLocation(TimestampLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: %w", s, err)
	}
	return ts, nil
}

// Order is one purchase record as returned by the orders list endpoint.
type Order struct {
	ID          int64      `json:"id"`
	Number      string     `json:"number,omitempty"`
	DateCreated Timestamp  `json:"date_created"`
	Status      string     `json:"status"`
	Currency    string     `json:"currency,omitempty"`
	Total       string     `json:"total"`
	Billing     Billing    `json:"billing"`
	LineItems   []LineItem `json:"line_items"`
}

type Billing struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2,omitempty"`
	City      string `json:"city"`
	State     string `json:"state"`
}

// LineItem is one cart entry. Total is server supplied and is not recomputed from Quantity and Price.
type LineItem struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product_id"`
	VariationID int64           `json:"variation_id"` // 0 means no variation
	Name        string          `json:"name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Total       string          `json:"total"`
	SKU         string          `json:"sku"`
	MetaData    []MetaData      `json:"meta_data"`
}

type MetaData struct {
	ID           int64  `json:"id,omitempty"`
	Key          string `json:"key"`
	DisplayKey   string `json:"display_key"`
	DisplayValue any    `json:"display_value"`
}

// Amount parses the order total. ok is false when the total is missing or not a number.
func (o Order) Amount() (decimal.Decimal, bool) {
	return parseMoney(o.Total)
}

func (o Order) CustomerName() string {
	return strings.TrimSpace(o.Billing.FirstName + " " + o.Billing.LastName)
}

// Address joins both billing street lines.
func (b Billing) Address() string {
	if b.Address2 == "" {
		return b.Address1
	}
	if b.Address1 == "" {
		return b.Address2
	}
	return b.Address1 + ", " + b.Address2
}

func (li LineItem) LineTotal() (decimal.Decimal, bool) {
	return parseMoney(li.Total)
}

// Hidden reports whether the entry is internal plugin data not meant for display.
func (m MetaData) Hidden() bool {
	return strings.HasPrefix(m.Key, "_")
}

func (m MetaData) Label() string {
	if m.DisplayKey != "" {
		return m.DisplayKey
	}
	return m.Key
}

// Value renders DisplayValue as text; structured values are rendered as compact JSON.
func (m MetaData) Value() string {
	switch v := m.DisplayValue.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64, bool:
		return fmt.Sprint(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}

func parseMoney(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
