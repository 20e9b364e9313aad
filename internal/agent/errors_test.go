package agent

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/numera-ai/numera/pkg/models"
)

func TestNewToolErrorClassification(t *testing.T) {
	cases := []struct {
		name  string
		cause error
		want  models.ToolErrorKind
	}{
		{"not found", fmt.Errorf("wrapped: %w", ErrToolNotFound), models.ToolErrorUnknownTool},
		{"invalid args", fmt.Errorf("wrapped: %w", ErrInvalidArguments), models.ToolErrorInvalidArguments},
		{"timeout", fmt.Errorf("wrapped: %w", ErrToolTimeout), models.ToolErrorTimeout},
		{"plain failure", errors.New("disk full"), models.ToolErrorExecutionFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := NewToolError("ledger_query", tc.cause)
			if err.Kind != tc.want {
				t.Errorf("kind = %q, want %q", err.Kind, tc.want)
			}
			if !errors.Is(err, tc.cause) {
				t.Errorf("cause not reachable through Unwrap")
			}
		})
	}
}

func TestToolErrorResult(t *testing.T) {
	err := NewToolError("invoice_create", errors.New("duplicate invoice number")).
		WithToolCallID("call-9").
		WithKind(models.ToolErrorExecutionFailed)

	result := err.Result()
	if result.ToolCallID != "call-9" {
		t.Errorf("ToolCallID = %q", result.ToolCallID)
	}
	if !result.IsError || result.ErrorKind != models.ToolErrorExecutionFailed {
		t.Errorf("result not marked as execution failure: %+v", result)
	}
	if !strings.Contains(result.Content, "duplicate invoice number") {
		t.Errorf("content lost the cause: %q", result.Content)
	}
}

func TestGetToolError(t *testing.T) {
	inner := NewToolError("email_send", errors.New("relay refused"))
	wrapped := fmt.Errorf("step 2: %w", inner)

	got, ok := GetToolError(wrapped)
	if !ok || got.ToolName != "email_send" {
		t.Errorf("GetToolError = %+v, %v", got, ok)
	}
	if !IsToolError(wrapped) {
		t.Errorf("IsToolError returned false")
	}
	if IsToolError(errors.New("plain")) {
		t.Errorf("IsToolError matched a plain error")
	}
}

func TestLoopErrorFormatting(t *testing.T) {
	cause := errors.New("connection reset")
	err := &LoopError{Phase: PhaseAwaitingModel, Step: 3, Cause: cause}

	msg := err.Error()
	if !strings.Contains(msg, "awaiting_model") || !strings.Contains(msg, "step 3") {
		t.Errorf("message missing context: %q", msg)
	}
	if !errors.Is(err, cause) {
		t.Errorf("cause not reachable through Unwrap")
	}
}
