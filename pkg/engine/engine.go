// Package engine wires the configured providers into a ready-to-use memory
// engine: recorder for the write path, retriever for the read path, and the
// quality analyzer for offline maintenance.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/gridironai/expertmem-go/pkg/core"
	"github.com/gridironai/expertmem-go/pkg/embedder"
	openaiEmbedder "github.com/gridironai/expertmem-go/pkg/embedder/openai"
	qwenEmbedder "github.com/gridironai/expertmem-go/pkg/embedder/qwen"
	"github.com/gridironai/expertmem-go/pkg/llm"
	openaiLLM "github.com/gridironai/expertmem-go/pkg/llm/openai"
	"github.com/gridironai/expertmem-go/pkg/quality"
	"github.com/gridironai/expertmem-go/pkg/recorder"
	"github.com/gridironai/expertmem-go/pkg/retrieval"
	"github.com/gridironai/expertmem-go/pkg/storage"
	mysqlStore "github.com/gridironai/expertmem-go/pkg/storage/mysql"
	postgresStore "github.com/gridironai/expertmem-go/pkg/storage/postgres"
	sqliteStore "github.com/gridironai/expertmem-go/pkg/storage/sqlite"
)

// Engine bundles the engine components built from one Config. Components
// share the store, embedder, and logger.
type Engine struct {
	store     storage.MemoryStore
	embedder  embedder.Provider
	generator llm.Generator
	retriever *retrieval.Retriever
	recorder  *recorder.Recorder
	analyzer  *quality.Analyzer
	logger    *slog.Logger
}

// New builds an engine from configuration.
//
// The embedder is optional at runtime but its configuration is validated
// here; the LLM is optional outright (lesson extraction falls back to
// rules). Profiles load from cfg.ProfilesPath; with no path set, profiles
// must be registered by the caller via a custom retriever instead.
//
// Parameters:
//   - cfg: The engine configuration
//   - profiles: The expert profile source; nil loads from cfg.ProfilesPath
//   - logger: Structured logger; nil uses slog.Default
//
// Returns the engine, or an error if any provider fails to initialize.
func New(cfg *core.Config, profiles core.ProfileSource, logger *slog.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, core.NewEngineError("New", fmt.Errorf("%w: nil config", core.ErrInvalidConfig))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	if profiles == nil {
		if cfg.ProfilesPath == "" {
			return nil, core.NewEngineError("New", fmt.Errorf("%w: no profile source and no profiles_path", core.ErrInvalidConfig))
		}
		loaded, err := core.LoadProfiles(cfg.ProfilesPath)
		if err != nil {
			return nil, err
		}
		profiles = loaded
	}

	store, err := initStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	embed, err := initEmbedder(cfg.Embedder)
	if err != nil {
		store.Close()
		return nil, err
	}

	var generator llm.Generator
	if cfg.LLM.Provider != "" && cfg.LLM.APIKey != "" {
		generator, err = initLLM(cfg.LLM)
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	retriever, err := retrieval.NewRetriever(store, embed, profiles,
		retrieval.WithLogger(logger),
		retrieval.WithTuning(cfg.Retrieval))
	if err != nil {
		store.Close()
		return nil, err
	}

	rec, err := recorder.NewRecorder(store, embed, generator, 1,
		recorder.WithLogger(logger))
	if err != nil {
		store.Close()
		return nil, err
	}

	analyzer, err := quality.NewAnalyzer(store, quality.WithLogger(logger))
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Engine{
		store:     store,
		embedder:  embed,
		generator: generator,
		retriever: retriever,
		recorder:  rec,
		analyzer:  analyzer,
		logger:    logger,
	}, nil
}

// Retriever returns the memory retriever.
func (e *Engine) Retriever() *retrieval.Retriever { return e.retriever }

// Recorder returns the memory recorder.
func (e *Engine) Recorder() *recorder.Recorder { return e.recorder }

// Analyzer returns the quality analyzer.
func (e *Engine) Analyzer() *quality.Analyzer { return e.analyzer }

// Store returns the underlying memory store.
func (e *Engine) Store() storage.MemoryStore { return e.store }

// Close flushes pending embedding backfills and closes the providers and
// the store. The first error encountered is returned.
func (e *Engine) Close() error {
	var errs []error

	if err := e.recorder.Close(); err != nil {
		errs = append(errs, err)
	}
	if e.generator != nil {
		if err := e.generator.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.embedder != nil {
		if err := e.embedder.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.store.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// initStore initializes the configured store backend.
func initStore(cfg core.StoreConfig) (storage.MemoryStore, error) {
	switch cfg.Provider {
	case "sqlite":
		return sqliteStore.NewClient(&sqliteStore.Config{
			DBPath:             stringValue(cfg.Config, "db_path", "./expertmem.db"),
			TableName:          stringValue(cfg.Config, "table_name", "expert_memories"),
			EmbeddingModelDims: intValue(cfg.Config, "embedding_model_dims", 1536),
		})
	case "postgres":
		return postgresStore.NewClient(&postgresStore.Config{
			Host:               stringValue(cfg.Config, "host", "localhost"),
			Port:               intValue(cfg.Config, "port", 5432),
			User:               stringValue(cfg.Config, "user", "postgres"),
			Password:           stringValue(cfg.Config, "password", ""),
			DBName:             stringValue(cfg.Config, "db_name", "expertmem"),
			TableName:          stringValue(cfg.Config, "table_name", "expert_memories"),
			EmbeddingModelDims: intValue(cfg.Config, "embedding_model_dims", 1536),
			SSLMode:            stringValue(cfg.Config, "ssl_mode", "disable"),
		})
	case "mysql":
		return mysqlStore.NewClient(&mysqlStore.Config{
			Host:               stringValue(cfg.Config, "host", "127.0.0.1"),
			Port:               intValue(cfg.Config, "port", 3306),
			User:               stringValue(cfg.Config, "user", "root"),
			Password:           stringValue(cfg.Config, "password", ""),
			DBName:             stringValue(cfg.Config, "db_name", "expertmem"),
			TableName:          stringValue(cfg.Config, "table_name", "expert_memories"),
			EmbeddingModelDims: intValue(cfg.Config, "embedding_model_dims", 1536),
		})
	default:
		return nil, core.NewEngineError("initStore", fmt.Errorf("%w: unknown store provider %q", core.ErrInvalidConfig, cfg.Provider))
	}
}

// initEmbedder initializes the configured embedding provider.
func initEmbedder(cfg core.EmbedderConfig) (embedder.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return openaiEmbedder.NewClient(&openaiEmbedder.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		})
	case "qwen":
		return qwenEmbedder.NewClient(&qwenEmbedder.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		})
	default:
		return nil, core.NewEngineError("initEmbedder", fmt.Errorf("%w: unknown embedding provider %q", core.ErrInvalidConfig, cfg.Provider))
	}
}

// initLLM initializes the configured LLM provider.
func initLLM(cfg core.LLMConfig) (llm.Generator, error) {
	switch cfg.Provider {
	case "openai":
		return openaiLLM.NewClient(&openaiLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	default:
		return nil, core.NewEngineError("initLLM", fmt.Errorf("%w: unknown llm provider %q", core.ErrInvalidConfig, cfg.Provider))
	}
}

// stringValue reads a string from provider config with a default.
func stringValue(config map[string]interface{}, key, fallback string) string {
	if v, ok := config[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// intValue reads an int from provider config with a default. JSON numbers
// decode as float64, so both are accepted.
func intValue(config map[string]interface{}, key string, fallback int) int {
	switch v := config[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}
