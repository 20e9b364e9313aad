// Package main provides the CLI entry point for the Numera bookkeeping
// assistant.
//
// # Basic Usage
//
// Start the gateway server:
//
//	numera serve --config numera.yaml
//
// Ask a one-off question from the terminal:
//
//	numera chat "what did we spend on software in March?"
//
// # Environment Variables
//
//   - NUMERA_CONFIG: Path to configuration file (default: numera.yaml)
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - OPENAI_API_KEY: OpenAI API key for GPT models
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"     // Semantic version (e.g., "v1.0.0")
	commit  = "none"    // Git commit SHA
	date    = "unknown" // Build timestamp
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "numera",
		Short: "Numera - bookkeeping assistant runtime",
		Long: `Numera is a step-bounded agent runtime for bookkeeping work: it connects
an LLM provider (Anthropic or OpenAI) to ledger, invoice, email, and bank
tools and streams every run as a typed event sequence.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildChatCmd(),
		buildVersionCmd(),
	)

	return rootCmd
}

func defaultConfigPath() string {
	if path := os.Getenv("NUMERA_CONFIG"); path != "" {
		return path
	}
	return "numera.yaml"
}
