// Package bank provides the bank feed tool and the Feed seam it reads
// through.
package bank

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/numera-ai/numera/internal/agent"
	"github.com/numera-ai/numera/internal/books"
)

// Transaction is one settled bank transaction as reported by a feed.
type Transaction struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	AmountCents int64     `json:"amount_cents"`
}

// Feed lists settled transactions for an account. Implementations wrap a
// bank aggregator API; tests use a canned fake.
type Feed interface {
	Transactions(ctx context.Context, account string, from, to time.Time) ([]Transaction, error)
}

// TransactionsTool lists bank transactions from the injected feed.
type TransactionsTool struct {
	feed Feed
}

// NewTransactionsTool creates a bank transactions tool.
func NewTransactionsTool(feed Feed) *TransactionsTool {
	return &TransactionsTool{feed: feed}
}

func (t *TransactionsTool) Name() string { return "bank_transactions" }

func (t *TransactionsTool) Description() string {
	return "List settled bank transactions for an account over a date range. Amounts are signed decimals: deposits positive, withdrawals negative."
}

func (t *TransactionsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"account": {
				"type": "string",
				"description": "Bank account identifier, e.g. 'checking'"
			},
			"from": {
				"type": "string",
				"description": "Inclusive start date, YYYY-MM-DD"
			},
			"to": {
				"type": "string",
				"description": "Exclusive end date, YYYY-MM-DD"
			}
		},
		"required": ["account"],
		"additionalProperties": false
	}`)
}

// TransactionsInput is the input for the bank transactions tool.
type TransactionsInput struct {
	Account string `json:"account"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// Execute fetches and renders the transactions, one per line.
func (t *TransactionsTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.feed == nil {
		return &agent.ToolResult{Content: "no bank feed configured", IsError: true}, nil
	}

	var input TransactionsInput
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}

	var from, to time.Time
	var err error
	if input.From != "" {
		if from, err = time.Parse("2006-01-02", input.From); err != nil {
			return &agent.ToolResult{Content: fmt.Sprintf("invalid from date: %v", err), IsError: true}, nil
		}
	}
	if input.To != "" {
		if to, err = time.Parse("2006-01-02", input.To); err != nil {
			return &agent.ToolResult{Content: fmt.Sprintf("invalid to date: %v", err), IsError: true}, nil
		}
	}

	txns, err := t.feed.Transactions(ctx, input.Account, from, to)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("bank feed error: %v", err), IsError: true}, nil
	}

	if len(txns) == 0 {
		return &agent.ToolResult{Content: "no transactions in that range"}, nil
	}

	var sb strings.Builder
	for _, txn := range txns {
		fmt.Fprintf(&sb, "%s  %10s  %s\n",
			txn.Date.Format("2006-01-02"), books.FormatCents(txn.AmountCents), txn.Description)
	}
	return &agent.ToolResult{Content: strings.TrimRight(sb.String(), "\n")}, nil
}
