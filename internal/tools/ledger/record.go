package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/numera-ai/numera/internal/agent"
	"github.com/numera-ai/numera/internal/books"
)

// RecordTool appends a balanced double-entry transaction to the ledger.
type RecordTool struct {
	store *books.Store
}

// NewRecordTool creates a ledger record tool backed by the given store.
func NewRecordTool(store *books.Store) *RecordTool {
	return &RecordTool{store: store}
}

func (t *RecordTool) Name() string { return "ledger_record" }

func (t *RecordTool) Description() string {
	return "Record a double-entry ledger transaction. Line amounts are decimal strings; debits positive, credits negative. The lines must sum to zero."
}

func (t *RecordTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"date": {
				"type": "string",
				"description": "Transaction date, YYYY-MM-DD. Defaults to today."
			},
			"memo": {
				"type": "string",
				"description": "Short description of the transaction"
			},
			"lines": {
				"type": "array",
				"minItems": 2,
				"items": {
					"type": "object",
					"properties": {
						"account": {
							"type": "string",
							"description": "Account name, e.g. 'expenses:software'"
						},
						"amount": {
							"type": "string",
							"description": "Signed decimal amount, e.g. '120.00' or '-120.00'"
						}
					},
					"required": ["account", "amount"],
					"additionalProperties": false
				}
			}
		},
		"required": ["lines"],
		"additionalProperties": false
	}`)
}

// RecordInput is the input for the ledger record tool.
type RecordInput struct {
	Date  string      `json:"date"`
	Memo  string      `json:"memo"`
	Lines []LineInput `json:"lines"`
}

// LineInput is one transaction leg.
type LineInput struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

// Execute validates and records the transaction.
func (t *RecordTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.store == nil {
		return &agent.ToolResult{Content: "books store unavailable", IsError: true}, nil
	}

	var input RecordInput
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}

	tx := &books.Transaction{Memo: input.Memo}
	if input.Date != "" {
		date, err := time.Parse("2006-01-02", input.Date)
		if err != nil {
			return &agent.ToolResult{Content: fmt.Sprintf("invalid date: %v", err), IsError: true}, nil
		}
		tx.Date = date
	}

	for _, line := range input.Lines {
		cents, err := books.ParseCents(line.Amount)
		if err != nil {
			return &agent.ToolResult{Content: fmt.Sprintf("invalid amount for %s: %v", line.Account, err), IsError: true}, nil
		}
		tx.Lines = append(tx.Lines, books.Line{Account: line.Account, AmountCents: cents})
	}

	if err := t.store.RecordTransaction(ctx, tx); err != nil {
		if errors.Is(err, books.ErrUnbalanced) {
			return &agent.ToolResult{Content: "transaction does not balance: line amounts must sum to zero", IsError: true}, nil
		}
		return &agent.ToolResult{Content: fmt.Sprintf("cannot record transaction: %v", err), IsError: true}, nil
	}

	return &agent.ToolResult{Content: fmt.Sprintf("recorded transaction %s (%d lines)", tx.ID, len(tx.Lines))}, nil
}
