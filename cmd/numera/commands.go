// commands.go contains the cobra command definitions. Each builder wires
// its command to a handler in handlers.go.
package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that starts the gateway server.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Numera gateway server",
		Long: `Start the gateway server.

The server will:
1. Load configuration from the specified file (or numera.yaml)
2. Open the session and books databases
3. Initialize the configured LLM provider and the finance tool set
4. Serve the SSE and WebSocket chat streams plus /healthz and /metrics

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  numera serve

  # Start with custom config
  numera serve --config /etc/numera/production.yaml

  # Start with debug logging
  numera serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(),
		"Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")

	return cmd
}

// buildChatCmd creates the "chat" command for one-off runs from the
// terminal.
func buildChatCmd() *cobra.Command {
	var (
		configPath string
		sessionKey string
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Run one message through the assistant and stream the reply",
		Example: `  numera chat "record 120.00 of software spend from checking"

  # Continue a named conversation
  numera chat --session books "and what is the balance now?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), configPath, sessionKey, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(),
		"Path to YAML configuration file")
	cmd.Flags().StringVarP(&sessionKey, "session", "s", "",
		"Session key for a persistent conversation")

	return cmd
}

// buildVersionCmd creates the "version" command.
func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("numera %s\ncommit: %s\nbuilt:  %s\n", version, commit, date)
		},
	}
}
