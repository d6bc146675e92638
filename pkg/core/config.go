// Package core provides the shared types, errors, profiles, and configuration
// for the expert memory retrieval engine.
package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config contains the complete configuration for the retrieval engine.
//
// It includes settings for:
//   - Embedding provider (for channel vector generation)
//   - LLM provider (for lesson extraction at memory creation)
//   - Memory store (for durable record + vector persistence)
//   - Retrieval tuning (cache, candidate fan-out, latency target)
//   - Expert profiles (path to the JSON profiles file)
type Config struct {
	// Embedder contains embedding provider configuration.
	Embedder EmbedderConfig `json:"embedder"`

	// LLM contains LLM provider configuration for lesson extraction.
	LLM LLMConfig `json:"llm"`

	// Store contains memory store configuration.
	Store StoreConfig `json:"store"`

	// Retrieval contains retrieval tuning parameters.
	Retrieval RetrievalConfig `json:"retrieval"`

	// ProfilesPath is the path to the JSON expert profiles file.
	ProfilesPath string `json:"profiles_path,omitempty"`
}

// EmbedderConfig contains configuration for the embedding provider.
//
// Supported providers: openai, qwen
type EmbedderConfig struct {
	// Provider is the embedding provider name (openai, qwen).
	Provider string `json:"provider"`

	// APIKey is the API key for the embedding provider.
	APIKey string `json:"api_key"`

	// Model is the embedding model name (e.g. "text-embedding-3-small").
	Model string `json:"model"`

	// BaseURL is the base URL for the API (optional, provider default if empty).
	BaseURL string `json:"base_url,omitempty"`

	// Dimensions is the dimension of the embedding vectors (e.g. 1536).
	Dimensions int `json:"dimensions,omitempty"`
}

// LLMConfig contains configuration for the LLM provider used to extract
// lessons at memory creation time.
type LLMConfig struct {
	// Provider is the LLM provider name (openai).
	Provider string `json:"provider"`

	// APIKey is the API key for the LLM provider.
	APIKey string `json:"api_key"`

	// Model is the model name to use (e.g. "gpt-4o-mini").
	Model string `json:"model"`

	// BaseURL is the base URL for the API (optional).
	BaseURL string `json:"base_url,omitempty"`
}

// StoreConfig contains configuration for the memory store.
//
// Supported providers: sqlite, postgres, mysql
type StoreConfig struct {
	// Provider is the store provider name (sqlite, postgres, mysql).
	Provider string `json:"provider"`

	// Config contains provider-specific configuration.
	// For SQLite: db_path, table_name, embedding_model_dims
	// For PostgreSQL: host, port, user, password, db_name, table_name,
	// embedding_model_dims, ssl_mode
	// For MySQL: host, port, user, password, db_name, table_name,
	// embedding_model_dims
	Config map[string]interface{} `json:"config"`
}

// RetrievalConfig contains tuning parameters for the retrieval hot path.
type RetrievalConfig struct {
	// CacheCapacity is the maximum number of cached retrieval results.
	// Default: 256.
	CacheCapacity int `json:"cache_capacity,omitempty"`

	// CacheTTL is how long a cached result stays valid. Default: 5 minutes.
	CacheTTL time.Duration `json:"cache_ttl,omitempty"`

	// CandidatesPerChannel is the nearest-neighbor fan-out K per embedding
	// channel. Default: 20.
	CandidatesPerChannel int `json:"candidates_per_channel,omitempty"`

	// LatencyTarget is the soft per-call latency budget. It is a tunable
	// for monitoring, not a hard contract; calls report actual latency on
	// the result. Default: 100ms.
	LatencyTarget time.Duration `json:"latency_target,omitempty"`
}

// ApplyDefaults fills unset retrieval tuning fields with their defaults.
func (c *RetrievalConfig) ApplyDefaults() {
	if c.CacheCapacity <= 0 {
		c.CacheCapacity = 256
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 5 * time.Minute
	}
	if c.CandidatesPerChannel <= 0 {
		c.CandidatesPerChannel = 20
	}
	if c.LatencyTarget <= 0 {
		c.LatencyTarget = 100 * time.Millisecond
	}
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses environment variables into a Config struct
//
// Supported environment variables:
//   - DATABASE_PROVIDER (sqlite, postgres, mysql)
//   - SQLITE_PATH, SQLITE_TABLE, SQLITE_EMBEDDING_MODEL_DIMS
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD, etc.
//   - MYSQL_HOST, MYSQL_PORT, MYSQL_USER, MYSQL_PASSWORD, etc.
//   - EMBEDDING_PROVIDER, EMBEDDING_API_KEY, EMBEDDING_MODEL, EMBEDDING_BASE_URL
//   - LLM_PROVIDER, LLM_API_KEY, LLM_MODEL, LLM_BASE_URL
//   - EXPERT_PROFILES_PATH
//   - RETRIEVAL_CACHE_CAPACITY, RETRIEVAL_CACHE_TTL_SECONDS,
//     RETRIEVAL_CANDIDATES_PER_CHANNEL
//
// Returns a Config instance, or an error if loading fails.
func LoadConfigFromEnv() (*Config, error) {
	envPath, found := FindEnvFile()
	if found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	provider := getEnvOrDefault("DATABASE_PROVIDER", "sqlite")

	storeConfig := make(map[string]interface{})
	switch provider {
	case "sqlite":
		dims, _ := strconv.Atoi(getEnvOrDefault("SQLITE_EMBEDDING_MODEL_DIMS", "1536"))
		storeConfig = map[string]interface{}{
			"db_path":              getEnvOrDefault("SQLITE_PATH", "./expertmem.db"),
			"table_name":           getEnvOrDefault("SQLITE_TABLE", "expert_memories"),
			"embedding_model_dims": dims,
		}
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
		dims, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_EMBEDDING_MODEL_DIMS", "1536"))
		storeConfig = map[string]interface{}{
			"host":                 getEnvOrDefault("POSTGRES_HOST", "localhost"),
			"port":                 port,
			"user":                 getEnvOrDefault("POSTGRES_USER", "postgres"),
			"password":             os.Getenv("POSTGRES_PASSWORD"),
			"db_name":              getEnvOrDefault("POSTGRES_DATABASE", "expertmem"),
			"table_name":           getEnvOrDefault("POSTGRES_TABLE", "expert_memories"),
			"embedding_model_dims": dims,
			"ssl_mode":             getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		}
	case "mysql":
		port, _ := strconv.Atoi(getEnvOrDefault("MYSQL_PORT", "3306"))
		dims, _ := strconv.Atoi(getEnvOrDefault("MYSQL_EMBEDDING_MODEL_DIMS", "1536"))
		storeConfig = map[string]interface{}{
			"host":                 getEnvOrDefault("MYSQL_HOST", "127.0.0.1"),
			"port":                 port,
			"user":                 getEnvOrDefault("MYSQL_USER", "root"),
			"password":             os.Getenv("MYSQL_PASSWORD"),
			"db_name":              getEnvOrDefault("MYSQL_DATABASE", "expertmem"),
			"table_name":           getEnvOrDefault("MYSQL_TABLE", "expert_memories"),
			"embedding_model_dims": dims,
		}
	}

	embedderProvider := getEnvOrDefault("EMBEDDING_PROVIDER", "openai")
	embedderModel := os.Getenv("EMBEDDING_MODEL")
	var embedderBaseURL string
	switch embedderProvider {
	case "qwen":
		embedderBaseURL = getEnvOrDefault("QWEN_EMBEDDING_BASE_URL", "https://dashscope.aliyuncs.com/api/v1")
		if embedderModel == "" {
			embedderModel = "text-embedding-v4"
		}
	default:
		embedderBaseURL = os.Getenv("EMBEDDING_BASE_URL")
		if embedderModel == "" {
			embedderModel = "text-embedding-3-small"
		}
	}
	dims, _ := strconv.Atoi(getEnvOrDefault("EMBEDDING_DIMS", "1536"))

	cacheCapacity, _ := strconv.Atoi(getEnvOrDefault("RETRIEVAL_CACHE_CAPACITY", "256"))
	cacheTTLSeconds, _ := strconv.Atoi(getEnvOrDefault("RETRIEVAL_CACHE_TTL_SECONDS", "300"))
	candidates, _ := strconv.Atoi(getEnvOrDefault("RETRIEVAL_CANDIDATES_PER_CHANNEL", "20"))

	config := &Config{
		Embedder: EmbedderConfig{
			Provider:   embedderProvider,
			APIKey:     os.Getenv("EMBEDDING_API_KEY"),
			Model:      embedderModel,
			BaseURL:    embedderBaseURL,
			Dimensions: dims,
		},
		LLM: LLMConfig{
			Provider: getEnvOrDefault("LLM_PROVIDER", "openai"),
			APIKey:   os.Getenv("LLM_API_KEY"),
			Model:    getEnvOrDefault("LLM_MODEL", "gpt-4o-mini"),
			BaseURL:  os.Getenv("LLM_BASE_URL"),
		},
		Store: StoreConfig{
			Provider: provider,
			Config:   storeConfig,
		},
		Retrieval: RetrievalConfig{
			CacheCapacity:        cacheCapacity,
			CacheTTL:             time.Duration(cacheTTLSeconds) * time.Second,
			CandidatesPerChannel: candidates,
		},
		ProfilesPath: os.Getenv("EXPERT_PROFILES_PATH"),
	}
	config.Retrieval.ApplyDefaults()

	return config, nil
}

// LoadConfigFromJSON loads configuration from a JSON file.
//
// Parameters:
//   - path: Path to the JSON configuration file
//
// Returns a Config instance, or an error if loading or parsing fails.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewEngineError("LoadConfigFromJSON", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, NewEngineError("LoadConfigFromJSON", err)
	}
	config.Retrieval.ApplyDefaults()

	return &config, nil
}

// Validate validates the configuration.
//
// Checks that required providers are set:
//   - Embedder provider must be specified
//   - Store provider must be specified
//
// The LLM provider is optional; without it, lesson extraction falls back to
// rule-based heuristics.
//
// Returns an error if validation fails, nil otherwise.
func (c *Config) Validate() error {
	if c.Embedder.Provider == "" {
		return NewEngineError("Validate", fmt.Errorf("%w: missing embedder provider", ErrInvalidConfig))
	}
	if c.Store.Provider == "" {
		return NewEngineError("Validate", fmt.Errorf("%w: missing store provider", ErrInvalidConfig))
	}
	return nil
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FindEnvFile searches for .env or .env.example files.
//
// The search:
//  1. Checks the current directory
//  2. Searches up to 5 directory levels up
//  3. Returns the first .env or .env.example file found
//
// Returns:
//   - path: Path to the found file (empty if not found)
//   - found: True if a file was found, false otherwise
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
