// Package books stores the double-entry ledger, invoices, and contacts
// that back the finance tools.
package books

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrUnbalanced is returned when a transaction's lines do not sum to zero.
	ErrUnbalanced = errors.New("transaction lines must balance to zero")

	// ErrInvalidStatus is returned on a disallowed invoice status change.
	ErrInvalidStatus = errors.New("invalid invoice status transition")
)

// Contact is a customer or vendor.
type Contact struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Transaction is one double-entry ledger transaction. The lines must sum
// to zero: debits are positive, credits negative.
type Transaction struct {
	ID        string    `json:"id"`
	Date      time.Time `json:"date"`
	Memo      string    `json:"memo,omitempty"`
	Lines     []Line    `json:"lines"`
	CreatedAt time.Time `json:"created_at"`
}

// Line is one leg of a transaction.
type Line struct {
	Account     string `json:"account"`
	AmountCents int64  `json:"amount_cents"`
}

// Balanced reports whether the transaction's lines sum to zero.
func (t *Transaction) Balanced() bool {
	var sum int64
	for _, line := range t.Lines {
		sum += line.AmountCents
	}
	return sum == 0
}

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	// InvoiceDraft is an invoice that has not been sent.
	InvoiceDraft InvoiceStatus = "draft"

	// InvoiceSent is an invoice dispatched to the customer.
	InvoiceSent InvoiceStatus = "sent"
)

// Invoice is a bill issued to a contact.
type Invoice struct {
	ID        string        `json:"id"`
	Number    string        `json:"number"`
	ContactID string        `json:"contact_id"`
	Status    InvoiceStatus `json:"status"`
	Currency  string        `json:"currency"`
	Items     []InvoiceItem `json:"items"`
	IssuedAt  time.Time     `json:"issued_at"`
	DueAt     time.Time     `json:"due_at,omitempty"`
	SentAt    time.Time     `json:"sent_at,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// InvoiceItem is one line item on an invoice.
type InvoiceItem struct {
	Description    string `json:"description"`
	Quantity       int64  `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

// TotalCents is the invoice total across all line items.
func (inv *Invoice) TotalCents() int64 {
	var total int64
	for _, item := range inv.Items {
		total += item.Quantity * item.UnitPriceCents
	}
	return total
}

// AccountTotal is an aggregate ledger amount for one account.
type AccountTotal struct {
	Account    string `json:"account"`
	TotalCents int64  `json:"total_cents"`
}

// LedgerQuery filters a ledger aggregation. Zero-valued fields are
// unconstrained.
type LedgerQuery struct {
	Account string
	From    time.Time
	To      time.Time
}

// ParseCents converts a decimal amount string like "123.45" or "-7" into
// integer cents. Floats are never used for money.
func ParseCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("amount is required")
	}

	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}

	var cents int64
	switch len(frac) {
	case 0:
	case 1:
		d, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
		cents = d * 10
	case 2:
		d, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
		cents = d
	default:
		return 0, fmt.Errorf("amount %q has more than two decimal places", s)
	}

	total := units*100 + cents
	if negative {
		total = -total
	}
	return total, nil
}

// FormatCents renders integer cents as a decimal string like "123.45".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
