package invoices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/numera-ai/numera/internal/agent"
	"github.com/numera-ai/numera/internal/books"
	"github.com/numera-ai/numera/internal/tools/email"
)

// SendTool marks a draft invoice sent and dispatches it by email.
type SendTool struct {
	store  *books.Store
	mailer email.Mailer
}

// NewSendTool creates an invoice send tool. The mailer is optional; without
// one the invoice is still marked sent, with a note in the result.
func NewSendTool(store *books.Store, mailer email.Mailer) *SendTool {
	return &SendTool{store: store, mailer: mailer}
}

func (t *SendTool) Name() string { return "invoice_send" }

func (t *SendTool) Description() string {
	return "Send a draft invoice: marks it as sent and emails it to the customer. Requires the invoice number, e.g. 'INV-0001'."
}

func (t *SendTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"number": {
				"type": "string",
				"description": "Invoice number, e.g. 'INV-0001'"
			},
			"to": {
				"type": "string",
				"description": "Override recipient email. Defaults to the contact's billing email."
			}
		},
		"required": ["number"],
		"additionalProperties": false
	}`)
}

// SendInput is the input for the invoice send tool.
type SendInput struct {
	Number string `json:"number"`
	To     string `json:"to"`
}

// Execute transitions the invoice to sent and emails a summary.
func (t *SendTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.store == nil {
		return &agent.ToolResult{Content: "books store unavailable", IsError: true}, nil
	}

	var input SendInput
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}

	inv, err := t.store.GetInvoiceByNumber(ctx, input.Number)
	if errors.Is(err, books.ErrNotFound) {
		return &agent.ToolResult{Content: fmt.Sprintf("no invoice %s", input.Number), IsError: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load invoice: %w", err)
	}
	if inv.Status != books.InvoiceDraft {
		return &agent.ToolResult{Content: fmt.Sprintf("invoice %s was already sent", inv.Number), IsError: true}, nil
	}

	if err := t.store.MarkInvoiceSent(ctx, inv.Number, time.Now().UTC()); err != nil {
		if errors.Is(err, books.ErrInvalidStatus) {
			return &agent.ToolResult{Content: fmt.Sprintf("invoice %s was already sent", inv.Number), IsError: true}, nil
		}
		return nil, fmt.Errorf("mark invoice sent: %w", err)
	}

	if t.mailer == nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("marked invoice %s as sent (no mailer configured, not emailed)", inv.Number),
		}, nil
	}

	recipient := input.To
	if recipient == "" {
		recipient, err = t.contactEmail(ctx, inv.ContactID)
		if err != nil || recipient == "" {
			return &agent.ToolResult{
				Content: fmt.Sprintf("marked invoice %s as sent, but no recipient email is on file", inv.Number),
				IsError: true,
			}, nil
		}
	}

	subject := fmt.Sprintf("Invoice %s", inv.Number)
	if err := t.mailer.Send(ctx, recipient, subject, renderInvoice(inv)); err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("marked invoice %s as sent, but email delivery failed: %v", inv.Number, err),
			IsError: true,
		}, nil
	}

	return &agent.ToolResult{
		Content: fmt.Sprintf("sent invoice %s to %s, total %s %s",
			inv.Number, recipient, inv.Currency, books.FormatCents(inv.TotalCents())),
	}, nil
}

func (t *SendTool) contactEmail(ctx context.Context, contactID string) (string, error) {
	contact, err := t.store.GetContact(ctx, contactID)
	if err != nil {
		return "", err
	}
	return contact.Email, nil
}

func renderInvoice(inv *books.Invoice) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Invoice %s (%s)\n\n", inv.Number, inv.Currency)
	for _, item := range inv.Items {
		fmt.Fprintf(&sb, "%-40s %3d x %10s\n", item.Description, item.Quantity, books.FormatCents(item.UnitPriceCents))
	}
	fmt.Fprintf(&sb, "\nTotal: %s %s\n", inv.Currency, books.FormatCents(inv.TotalCents()))
	if !inv.DueAt.IsZero() {
		fmt.Fprintf(&sb, "Due: %s\n", inv.DueAt.Format("2006-01-02"))
	}
	return sb.String()
}

// parseDate accepts YYYY-MM-DD.
func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}
