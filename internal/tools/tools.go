// Package tools wires the finance tool set into a registry.
package tools

import (
	"fmt"

	"github.com/numera-ai/numera/internal/agent"
	"github.com/numera-ai/numera/internal/books"
	"github.com/numera-ai/numera/internal/tools/bank"
	"github.com/numera-ai/numera/internal/tools/email"
	"github.com/numera-ai/numera/internal/tools/invoices"
	"github.com/numera-ai/numera/internal/tools/ledger"
)

// Deps carries the collaborators the finance tools work against. Mailer
// and Feed are optional; the corresponding tools degrade to an error
// result when absent.
type Deps struct {
	Books  *books.Store
	Mailer email.Mailer
	Feed   bank.Feed
}

// RegisterAll registers the full finance tool set.
func RegisterAll(registry *agent.ToolRegistry, deps Deps) error {
	toolset := []agent.Tool{
		ledger.NewQueryTool(deps.Books),
		ledger.NewRecordTool(deps.Books),
		invoices.NewCreateTool(deps.Books),
		invoices.NewSendTool(deps.Books, deps.Mailer),
		email.NewSendTool(deps.Mailer),
		bank.NewTransactionsTool(deps.Feed),
	}
	for _, tool := range toolset {
		if err := registry.Register(tool); err != nil {
			return fmt.Errorf("register %s: %w", tool.Name(), err)
		}
	}
	return nil
}
