// handlers.go contains the command implementations: wiring config,
// provider, stores, tools, loop, and gateway together.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/numera-ai/numera/internal/agent"
	"github.com/numera-ai/numera/internal/agent/providers"
	"github.com/numera-ai/numera/internal/books"
	"github.com/numera-ai/numera/internal/config"
	"github.com/numera-ai/numera/internal/gateway"
	"github.com/numera-ai/numera/internal/observability"
	"github.com/numera-ai/numera/internal/sessions"
	"github.com/numera-ai/numera/internal/tools"
	"github.com/numera-ai/numera/pkg/models"
)

// runtime bundles everything a command needs to drive runs.
type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	loop    *agent.Loop
	store   sessions.Store
	books   *books.Store
	metrics *observability.Metrics
	reg     *prometheus.Registry

	closers []func() error
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.logger.Warn("close failed", "error", err)
		}
	}
}

// buildRuntime loads configuration and assembles the run loop.
func buildRuntime(configPath string, debug bool) (*runtime, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Log.Level = "debug"
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	apiKey := cfg.Provider.APIKey
	if apiKey == "" {
		apiKey = apiKeyFromEnv(cfg.Provider.Name)
	}
	provider, err := providers.New(cfg.Provider.Name, providers.Options{
		APIKey:     apiKey,
		BaseURL:    cfg.Provider.BaseURL,
		Model:      cfg.Provider.Model,
		MaxRetries: cfg.Provider.MaxRetries,
		RetryDelay: cfg.Provider.RetryDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("provider setup: %w", err)
	}

	rt := &runtime{cfg: cfg, logger: logger, metrics: metrics, reg: reg}

	switch cfg.Storage.Driver {
	case "sqlite":
		store, err := sessions.NewSQLiteStore(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("session store: %w", err)
		}
		rt.closers = append(rt.closers, store.Close)
		rt.store = store

		// The books share the session database file.
		bookStore, err := books.NewStoreWithDB(store.DB())
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("books store: %w", err)
		}
		rt.books = bookStore
	default:
		rt.store = sessions.NewMemoryStore()
		bookStore, err := books.NewStore(":memory:")
		if err != nil {
			return nil, fmt.Errorf("books store: %w", err)
		}
		rt.closers = append(rt.closers, bookStore.Close)
		rt.books = bookStore
	}

	registry := agent.NewToolRegistry()
	if err := tools.RegisterAll(registry, tools.Deps{
		Books:  rt.books,
		Mailer: logMailer{logger: logger},
		// No bank aggregator is wired yet; the tool reports it plainly.
		Feed: nil,
	}); err != nil {
		rt.Close()
		return nil, fmt.Errorf("tool registration: %w", err)
	}

	loop, err := agent.NewLoop(provider, registry, rt.store, &agent.LoopConfig{
		MaxSteps:          cfg.Agent.MaxSteps,
		MaxTokens:         cfg.Agent.MaxTokens,
		Model:             cfg.Provider.Model,
		SystemPrompt:      cfg.Agent.SystemPrompt,
		CompletionTimeout: cfg.Agent.CompletionTimeout,
		HistoryLimit:      cfg.Agent.HistoryLimit,
		Executor: &agent.ExecutorConfig{
			MaxConcurrency: cfg.Agent.ToolConcurrency,
			CallTimeout:    cfg.Agent.ToolTimeout,
		},
	}, logger, metrics)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.loop = loop

	return rt, nil
}

func apiKeyFromEnv(providerName string) string {
	switch providerName {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	default:
		return os.Getenv("ANTHROPIC_API_KEY")
	}
}

// logMailer stands in for a real SMTP transport in local deployments: it
// records the send instead of delivering it.
type logMailer struct {
	logger *slog.Logger
}

func (m logMailer) Send(_ context.Context, to, subject, body string) error {
	m.logger.Info("outbound email (log transport)",
		"to", to,
		"subject", subject,
		"bytes", len(body))
	return nil
}

// runServe starts the gateway and blocks until shutdown.
func runServe(ctx context.Context, configPath string, debug bool) error {
	rt, err := buildRuntime(configPath, debug)
	if err != nil {
		return err
	}
	defer rt.Close()

	server, err := gateway.NewServer(gateway.Config{
		Addr:            rt.cfg.Gateway.Addr,
		ReadTimeout:     rt.cfg.Gateway.ReadTimeout,
		ShutdownTimeout: rt.cfg.Gateway.ShutdownTimeout,
	}, rt.loop, rt.store, rt.logger, rt.metrics, rt.reg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.Start(ctx)
}

// runChat sends one message through the loop and streams the reply to
// stdout.
func runChat(ctx context.Context, configPath, sessionKey, message string) error {
	rt, err := buildRuntime(configPath, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	var session *models.Session
	if sessionKey != "" {
		session, err = rt.store.GetOrCreate(ctx, sessionKey)
		if err != nil {
			return fmt.Errorf("session lookup: %w", err)
		}
	}

	events, err := rt.loop.Run(ctx, session, &models.Message{
		Role:    models.RoleUser,
		Content: message,
	})
	if err != nil {
		return err
	}

	for event := range events {
		switch event.Type {
		case models.EventModelDelta:
			fmt.Print(event.Delta)
		case models.EventToolStarted:
			fmt.Fprintf(os.Stderr, "\n[tool %s started]\n", event.Tool.Name)
		case models.EventToolFinished:
			status := "ok"
			if !event.Tool.Success {
				status = string(event.Tool.ErrorKind)
			}
			fmt.Fprintf(os.Stderr, "[tool %s finished: %s]\n", event.Tool.Name, status)
		case models.EventRunError:
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", event.Error.Message)
		case models.EventRunTerminated:
			fmt.Printf("\n(%s after %d steps)\n", event.Termination.Reason, event.Termination.Steps)
		}
	}
	return nil
}
