// Package email provides the outbound mail tool and the Mailer seam it
// (and the invoice tools) deliver through.
package email

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"

	"github.com/numera-ai/numera/internal/agent"
)

// Mailer delivers outbound email. Implementations wrap SMTP or a
// transactional mail API; tests use a recording fake.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SendTool sends an email through the injected mailer.
type SendTool struct {
	mailer Mailer
}

// NewSendTool creates an email send tool.
func NewSendTool(mailer Mailer) *SendTool {
	return &SendTool{mailer: mailer}
}

func (t *SendTool) Name() string { return "email_send" }

func (t *SendTool) Description() string {
	return "Send an email. Use for delivering reports, summaries, or follow-ups the user asked for. The recipient must be a valid email address."
}

func (t *SendTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"to": {
				"type": "string",
				"description": "Recipient email address"
			},
			"subject": {
				"type": "string",
				"description": "Subject line"
			},
			"body": {
				"type": "string",
				"description": "Plain-text message body"
			}
		},
		"required": ["to", "subject", "body"],
		"additionalProperties": false
	}`)
}

// SendInput is the input for the email send tool.
type SendInput struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Execute validates the recipient and dispatches the message.
func (t *SendTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.mailer == nil {
		return &agent.ToolResult{Content: "no mailer configured", IsError: true}, nil
	}

	var input SendInput
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}

	if _, err := mail.ParseAddress(input.To); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid recipient %q", input.To), IsError: true}, nil
	}

	if err := t.mailer.Send(ctx, input.To, input.Subject, input.Body); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("email delivery failed: %v", err), IsError: true}, nil
	}

	return &agent.ToolResult{Content: fmt.Sprintf("sent email to %s", input.To)}, nil
}
