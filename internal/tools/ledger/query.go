// Package ledger provides tools for querying and recording double-entry
// ledger transactions.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/numera-ai/numera/internal/agent"
	"github.com/numera-ai/numera/internal/books"
)

// QueryTool aggregates ledger amounts by account over an optional period.
type QueryTool struct {
	store *books.Store
}

// NewQueryTool creates a ledger query tool backed by the given store.
func NewQueryTool(store *books.Store) *QueryTool {
	return &QueryTool{store: store}
}

func (t *QueryTool) Name() string { return "ledger_query" }

func (t *QueryTool) Description() string {
	return "Query the ledger: sum amounts per account, optionally filtered by account name and date range. Amounts are reported as signed decimal strings; debits positive, credits negative."
}

func (t *QueryTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"account": {
				"type": "string",
				"description": "Exact account name to filter on, e.g. 'expenses:software'. Omit for all accounts."
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
		"additionalProperties": false
	}`)
}

// QueryInput is the input for the ledger query tool.
type QueryInput struct {
	Account string `json:"account"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// Execute runs the aggregation and renders one line per account.
func (t *QueryTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.store == nil {
		return &agent.ToolResult{Content: "books store unavailable", IsError: true}, nil
	}

	var input QueryInput
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}

	query := books.LedgerQuery{Account: input.Account}
	var err error
	if query.From, err = parseDate(input.From); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid from date: %v", err), IsError: true}, nil
	}
	if query.To, err = parseDate(input.To); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid to date: %v", err), IsError: true}, nil
	}

	totals, err := t.store.QueryLedger(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}

	if len(totals) == 0 {
		return &agent.ToolResult{Content: "no matching ledger entries"}, nil
	}

	var sb strings.Builder
	for _, total := range totals {
		fmt.Fprintf(&sb, "%s: %s\n", total.Account, books.FormatCents(total.TotalCents))
	}
	return &agent.ToolResult{Content: strings.TrimRight(sb.String(), "\n")}, nil
}

// parseDate accepts YYYY-MM-DD; empty means unconstrained.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}
