package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jkaninda/kazi/internal/agent"
	"github.com/jkaninda/kazi/internal/config"
	"github.com/jkaninda/kazi/internal/llm"
	"github.com/jkaninda/kazi/internal/llm/anthropic"
	"github.com/jkaninda/kazi/internal/llm/openai"
	"github.com/jkaninda/kazi/internal/observability"
	"github.com/jkaninda/kazi/internal/storage"
	pgstore "github.com/jkaninda/kazi/internal/storage/postgres"
	sqlitestore "github.com/jkaninda/kazi/internal/storage/sqlite"
	"github.com/jkaninda/kazi/internal/tools"
	mcptools "github.com/jkaninda/kazi/internal/tools/mcp"
	"github.com/jkaninda/kazi/internal/tools/task"
)

const systemPrompt = `You are Kazi, a friendly task assistant. You help users manage their
personal todo list through conversation.

You have tools for creating, listing, updating, completing, and deleting tasks.
Use them whenever the user's request involves their tasks. Confirm what you did
after using a tool, and keep replies short and concrete. When a request is
ambiguous (for example, which task to delete), list the candidates and ask.

Never invent task IDs. Look tasks up with list_tasks before updating or
deleting when you are not certain of the ID.`

// SharedComponents holds all initialized subsystems that both serve and
// chat modes require. Built once by initShared, torn down by Cleanup.
type SharedComponents struct {
	Config *config.Config
	Logger *slog.Logger
	Store  storage.Store // Unified store (SQLite or PostgreSQL).

	Obs         *observability.Observability
	LLMProvider llm.Provider
	ToolReg     *tools.Registry
	AgentCore   agent.Agent

	cleanups []func()
}

// Cleanup runs all deferred cleanup functions in reverse order.
func (sc *SharedComponents) Cleanup() {
	for i := len(sc.cleanups) - 1; i >= 0; i-- {
		sc.cleanups[i]()
	}
}

func (sc *SharedComponents) addCleanup(fn func()) {
	sc.cleanups = append(sc.cleanups, fn)
}

// initShared performs all common initialization shared between serve and chat modes.
// Callers must call sc.Cleanup() when done.
func initShared(cfg *config.Config, logger *slog.Logger) (*SharedComponents, error) {
	sc := &SharedComponents{
		Config: cfg,
		Logger: logger,
	}

	// Ensure data directory exists.
	dataDir := cfg.ResolvedDataDir()
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}
	logger.Debug("data directory initialized", slog.String("path", dataDir))

	// Observability.
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}
	sc.Obs = obs
	sc.addCleanup(func() {
		if obs != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			obs.Shutdown(shutdownCtx)
		}
	})
	if obs != nil {
		logger.Debug("observability initialized",
			slog.Bool("metrics", obs.Metrics != nil),
			slog.Bool("tracing", obs.Tracer != nil),
		)
	}

	// LLM provider with retry and fallback.
	llmProvider, err := newLLMProvider(cfg, logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing LLM provider: %w", err)
	}
	sc.LLMProvider = llmProvider
	logger.Debug("llm provider initialized", slog.String("provider", llmProvider.Name()))

	// Storage (SQLite default, PostgreSQL optional).
	store, err := initStore(cfg, logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	sc.Store = store
	sc.addCleanup(func() {
		if err := store.Close(); err != nil {
			logger.Error("closing store", slog.String("error", err.Error()))
		}
	})

	// Run migrations.
	if err := store.Migrate(context.Background()); err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	logger.Debug("storage initialized", slog.String("driver", store.Driver()))

	// Tool catalog.
	toolReg := tools.NewRegistry()
	task.RegisterAll(toolReg, store.Tasks(), logger)
	logger.Debug("tools registered", slog.Any("tools", toolReg.List()))

	// MCP tool servers.
	if len(cfg.MCP) > 0 {
		mcpBridge := mcptools.NewBridge(logger)
		mcpCtx, mcpCancel := context.WithTimeout(context.Background(), 30*time.Second)
		for _, mcpCfg := range cfg.MCP {
			mcpToolList, mcpErr := mcpBridge.ConnectAndDiscover(mcpCtx, mcpCfg)
			if mcpErr != nil {
				logger.Error("MCP server failed, skipping",
					slog.String("server", mcpCfg.Name),
					slog.String("error", mcpErr.Error()),
				)
				continue
			}
			for _, t := range mcpToolList {
				toolReg.Register(t)
			}
		}
		mcpCancel()
		sc.addCleanup(mcpBridge.Close)
		logger.Debug("tools registered (with MCP)", slog.Any("tools", toolReg.List()))
	}
	sc.ToolReg = toolReg

	// Health checks.
	if obs != nil && obs.Health != nil {
		obs.Health.AddCheck("database", store.Ping)
	}

	// Agent core.
	prompt := cfg.Agent.SystemPrompt
	if prompt == "" {
		prompt = systemPrompt
	}
	dispatcher := tools.NewDispatcher(toolReg, logger)
	agentCore := agent.NewOrchestrator(llmProvider, prompt, logger).
		WithTools(toolReg, dispatcher).
		WithConversationStore(store.Conversations()).
		WithObservability(obs).
		WithMaxToolRounds(cfg.Agent.ToolRounds()).
		WithMaxHistoryMessages(cfg.Memory.MaxHistory()).
		WithMaxMessageBytes(cfg.Memory.MaxMsgBytes())
	sc.AgentCore = agentCore

	return sc, nil
}

// initStore creates the appropriate storage backend from config.
func initStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch driver := cfg.Storage.StorageDriver(); driver {
	case storage.DriverPostgres:
		return initPostgresStore(cfg, logger)
	case storage.DriverSQLite:
		return initSQLiteStore(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", driver)
	}
}

func initSQLiteStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	journalMode := "wal"
	if cfg.Storage != nil && cfg.Storage.SQLite != nil && cfg.Storage.SQLite.JournalMode != "" {
		journalMode = cfg.Storage.SQLite.JournalMode
	}

	return sqlitestore.Open(sqlitestore.Config{
		Path:        cfg.DatabasePath(),
		JournalMode: journalMode,
	}, logger)
}

func initPostgresStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	pg := cfg.Storage.Postgres
	if pg == nil || pg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required (set storage.postgres.dsn or KAZI_DB_DSN)")
	}

	return pgstore.Open(pgstore.Config{
		DSN:             pg.DSN,
		MaxOpenConns:    pg.MaxOpenConns,
		MaxIdleConns:    pg.MaxIdleConns,
		ConnMaxLifetime: time.Duration(pg.ConnMaxLifetimeS) * time.Second,
	}, logger)
}

// newLLMProvider creates the LLM provider chain based on the configured default,
// wrapping it with retry and optional fallback providers.
func newLLMProvider(cfg *config.Config, logger *slog.Logger) (llm.Provider, error) {
	primary, err := buildProvider(cfg.Providers.Default, cfg, logger)
	if err != nil {
		return nil, err
	}

	provider := primary

	// Build fallback chain if configured.
	if len(cfg.Providers.Fallback) > 0 {
		providers := []llm.Provider{primary}
		for _, name := range cfg.Providers.Fallback {
			fb, err := buildProvider(name, cfg, logger)
			if err != nil {
				logger.Warn("skipping fallback provider",
					slog.String("provider", name),
					slog.String("error", err.Error()),
				)
				continue
			}
			providers = append(providers, fb)
		}
		if len(providers) > 1 {
			provider = llm.NewFallbackProvider(providers, logger)
		}
	}

	// Retry wraps the whole chain so transient failures are retried
	// before the caller sees them.
	return llm.NewRetryProvider(provider, logger,
		llm.WithMaxAttempts(cfg.Agent.RetryAttempts()),
		llm.WithInitialBackoff(cfg.Agent.RetryBackoff()),
	), nil
}

// buildProvider creates a single LLM provider by name.
func buildProvider(name string, cfg *config.Config, logger *slog.Logger) (llm.Provider, error) {
	switch name {
	case "openai", "":
		var opts []openai.Option
		if cfg.Providers.OpenAI.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.Providers.OpenAI.BaseURL))
		}
		if cfg.Providers.OpenAI.Temperature != nil {
			opts = append(opts, openai.WithTemperature(*cfg.Providers.OpenAI.Temperature))
		}
		return openai.NewClient(
			cfg.Providers.OpenAI.APIKey,
			cfg.Providers.OpenAI.Model,
			logger,
			opts...,
		), nil
	case "anthropic":
		return anthropic.NewClient(
			cfg.Providers.Anthropic.APIKey,
			cfg.Providers.Anthropic.Model,
			logger,
		), nil
	case "ollama":
		baseURL := cfg.Providers.Ollama.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return openai.NewClient(
			"",
			cfg.Providers.Ollama.Model,
			logger,
			openai.WithBaseURL(baseURL),
			openai.WithName("ollama"),
		), nil
	default:
		return nil, fmt.Errorf("unknown provider: %q", name)
	}
}
