// Package invoices provides tools for creating and sending invoices.
package invoices

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/numera-ai/numera/internal/agent"
	"github.com/numera-ai/numera/internal/books"
)

// CreateTool drafts an invoice for a contact.
type CreateTool struct {
	store *books.Store
}

// NewCreateTool creates an invoice creation tool backed by the given store.
func NewCreateTool(store *books.Store) *CreateTool {
	return &CreateTool{store: store}
}

func (t *CreateTool) Name() string { return "invoice_create" }

func (t *CreateTool) Description() string {
	return "Create a draft invoice for a customer with one or more line items. Unit prices are decimal strings. Returns the invoice number and total."
}

func (t *CreateTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"customer": {
				"type": "string",
				"description": "Customer name; created as a contact if unknown"
			},
			"customer_email": {
				"type": "string",
				"description": "Customer billing email, used when creating a new contact"
			},
			"currency": {
				"type": "string",
				"description": "ISO 4217 currency code. Defaults to USD."
			},
			"due": {
				"type": "string",
				"description": "Due date, YYYY-MM-DD"
			},
			"items": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"properties": {
						"description": {"type": "string"},
						"quantity": {"type": "integer", "minimum": 1},
						"unit_price": {
							"type": "string",
							"description": "Decimal unit price, e.g. '150.00'"
						}
					},
					"required": ["description", "quantity", "unit_price"],
					"additionalProperties": false
				}
			}
		},
		"required": ["customer", "items"],
		"additionalProperties": false
	}`)
}

// CreateInput is the input for the invoice creation tool.
type CreateInput struct {
	Customer      string      `json:"customer"`
	CustomerEmail string      `json:"customer_email"`
	Currency      string      `json:"currency"`
	Due           string      `json:"due"`
	Items         []ItemInput `json:"items"`
}

// ItemInput is one invoice line item.
type ItemInput struct {
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
}

// Execute resolves the contact and creates the draft invoice.
func (t *CreateTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.store == nil {
		return &agent.ToolResult{Content: "books store unavailable", IsError: true}, nil
	}

	var input CreateInput
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}

	contact, err := t.store.GetOrCreateContact(ctx, input.Customer, input.CustomerEmail)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("cannot resolve customer: %v", err), IsError: true}, nil
	}

	inv := &books.Invoice{
		ContactID: contact.ID,
		Currency:  input.Currency,
	}
	if input.Due != "" {
		due, err := parseDate(input.Due)
		if err != nil {
			return &agent.ToolResult{Content: fmt.Sprintf("invalid due date: %v", err), IsError: true}, nil
		}
		inv.DueAt = due
	}
	for _, item := range input.Items {
		cents, err := books.ParseCents(item.UnitPrice)
		if err != nil {
			return &agent.ToolResult{Content: fmt.Sprintf("invalid unit price for %q: %v", item.Description, err), IsError: true}, nil
		}
		inv.Items = append(inv.Items, books.InvoiceItem{
			Description:    item.Description,
			Quantity:       item.Quantity,
			UnitPriceCents: cents,
		})
	}

	if err := t.store.CreateInvoice(ctx, inv); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("cannot create invoice: %v", err), IsError: true}, nil
	}

	return &agent.ToolResult{
		Content: fmt.Sprintf("created draft invoice %s for %s, total %s %s",
			inv.Number, contact.Name, inv.Currency, books.FormatCents(inv.TotalCents())),
	}, nil
}
