package agent

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	registry := NewToolRegistry()
	tool := &stubTool{name: "ledger_query"}

	if err := registry.Register(tool); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, ok := registry.Get("ledger_query")
	if !ok {
		t.Fatalf("registered tool not found")
	}
	if got.Name() != "ledger_query" {
		t.Errorf("Get returned %q", got.Name())
	}
	if !registry.Has("ledger_query") {
		t.Errorf("Has returned false for registered tool")
	}
	if registry.Has("other") {
		t.Errorf("Has returned true for missing tool")
	}
}

func TestRegistryRejectsBadRegistrations(t *testing.T) {
	registry := NewToolRegistry()

	if err := registry.Register(nil); err == nil {
		t.Errorf("expected error for nil tool")
	}
	if err := registry.Register(&stubTool{name: ""}); err == nil {
		t.Errorf("expected error for empty name")
	}
	if err := registry.Register(&stubTool{name: "bad_schema", schema: `{"type": [`}); err == nil {
		t.Errorf("expected error for malformed schema")
	}
	if err := registry.Register(&stubTool{name: "empty_schema", schema: " "}); err == nil {
		t.Errorf("expected error for unparseable schema")
	}
}

func TestRegistryListSortedByName(t *testing.T) {
	registry := NewToolRegistry()
	for _, name := range []string{"invoice_create", "bank_transactions", "ledger_query"} {
		if err := registry.Register(&stubTool{name: name}); err != nil {
			t.Fatalf("Register(%s) failed: %v", name, err)
		}
	}

	tools := registry.List()
	want := []string{"bank_transactions", "invoice_create", "ledger_query"}
	if len(tools) != len(want) {
		t.Fatalf("expected %d tools, got %d", len(want), len(tools))
	}
	for i, name := range want {
		if tools[i].Name() != name {
			t.Errorf("List()[%d] = %q, want %q", i, tools[i].Name(), name)
		}
	}
}

func TestRegistryValidate(t *testing.T) {
	registry := NewToolRegistry()
	if err := registry.Register(&stubTool{name: "invoice_create"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := registry.Validate("invoice_create", json.RawMessage(`{"value":"draft"}`)); err != nil {
		t.Errorf("valid arguments rejected: %v", err)
	}

	err := registry.Validate("missing", json.RawMessage(`{}`))
	if !errors.Is(err, ErrToolNotFound) {
		t.Errorf("expected ErrToolNotFound, got %v", err)
	}

	err = registry.Validate("invoice_create", json.RawMessage(`{"value": 5}`))
	if !errors.Is(err, ErrInvalidArguments) {
		t.Errorf("expected ErrInvalidArguments for type mismatch, got %v", err)
	}

	err = registry.Validate("invoice_create", json.RawMessage(`not json`))
	if !errors.Is(err, ErrInvalidArguments) {
		t.Errorf("expected ErrInvalidArguments for malformed JSON, got %v", err)
	}
}

func TestRegistryValidateIsIdempotent(t *testing.T) {
	registry := NewToolRegistry()
	if err := registry.Register(&stubTool{name: "ledger_record"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	bad := json.RawMessage(`{"unexpected": true}`)
	first := registry.Validate("ledger_record", bad)
	if first == nil {
		t.Fatalf("expected validation failure")
	}

	for i := 0; i < 5; i++ {
		err := registry.Validate("ledger_record", bad)
		if err == nil {
			t.Fatalf("validation outcome changed on attempt %d", i+2)
		}
		if !errors.Is(err, ErrInvalidArguments) {
			t.Errorf("attempt %d classified as %v", i+2, err)
		}
	}

	good := json.RawMessage(`{"value":"rent payment"}`)
	for i := 0; i < 5; i++ {
		if err := registry.Validate("ledger_record", good); err != nil {
			t.Errorf("valid arguments rejected on attempt %d: %v", i+1, err)
		}
	}
}

func TestRegistryValidateEmptyPayloadForZeroParamTool(t *testing.T) {
	registry := NewToolRegistry()
	tool := &stubTool{name: "noop", schema: `{"type":"object","properties":{}}`}
	if err := registry.Register(tool); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := registry.Validate("noop", nil); err != nil {
		t.Errorf("empty payload rejected for zero-parameter tool: %v", err)
	}
}
