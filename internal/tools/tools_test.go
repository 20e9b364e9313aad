package tools

import (
	"testing"

	"github.com/numera-ai/numera/internal/agent"
	"github.com/numera-ai/numera/internal/books"
)

func TestRegisterAll(t *testing.T) {
	store, err := books.NewStore(":memory:")
	if err != nil {
		t.Fatalf("books.NewStore failed: %v", err)
	}
	defer store.Close()

	registry := agent.NewToolRegistry()
	if err := RegisterAll(registry, Deps{Books: store}); err != nil {
		t.Fatalf("RegisterAll failed: %v", err)
	}

	want := []string{
		"bank_transactions",
		"email_send",
		"invoice_create",
		"invoice_send",
		"ledger_query",
		"ledger_record",
	}
	got := registry.List()
	if len(got) != len(want) {
		t.Fatalf("registered %d tools, want %d", len(got), len(want))
	}
	for i, tool := range got {
		if tool.Name() != want[i] {
			t.Errorf("tool %d = %q, want %q", i, tool.Name(), want[i])
		}
	}
}
