package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port                   int
	LogLevel               string
	DatabaseURL            string
	RedisURL               string
	NatsURL                string
	NatsToken              string
	ProgressBroker         string
	AnthropicAPIKey        string
	AnthropicModel         string
	JWTSecret              string
	JWTAlgorithm           string
	AccessTokenTTL         time.Duration
	CORSOriginsRaw         string
	MaxClarifyingQuestions int
	AgentWorkers           int
	RAGDataDir             string
	RAGChunkSize           int
	RAGChunkOverlap        int
	PolicySearchLimit      int
}

const (
	BrokerRedis = "redis"
	BrokerNATS  = "nats"
)

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// FromEnv reads the environment, applying defaults, without validation.
func FromEnv() *Config {
	return &Config{
		Port:                   envInt("PORT", 8000),
		LogLevel:               envStr("LOG_LEVEL", "info"),
		DatabaseURL:            envStr("DATABASE_URL", ""),
		RedisURL:               envStr("REDIS_URL", "redis://localhost:6379/0"),
		NatsURL:                envStr("NATS_URL", ""),
		NatsToken:              envStr("NATS_TOKEN", ""),
		ProgressBroker:         strings.ToLower(envStr("PROGRESS_BROKER", BrokerRedis)),
		AnthropicAPIKey:        envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:         envStr("ONBOARDING_MODEL", "claude-sonnet-4-20250514"),
		JWTSecret:              envStr("JWT_SECRET", "your_secret_key"),
		JWTAlgorithm:           envStr("JWT_ALGORITHM", "HS256"),
		AccessTokenTTL:         time.Duration(envInt("ACCESS_TOKEN_EXPIRE_MINUTES", 30)) * time.Minute,
		CORSOriginsRaw:         envStr("CORS_ORIGINS", ""),
		MaxClarifyingQuestions: envInt("MAX_CLARIFYING_QUESTIONS", 5),
		AgentWorkers:           envInt("AGENT_WORKERS", 4),
		RAGDataDir:             envStr("RAG_DATA_DIR", "rag_data"),
		RAGChunkSize:           envInt("RAG_CHUNK_SIZE", 1000),
		RAGChunkOverlap:        envInt("RAG_CHUNK_OVERLAP", 200),
		PolicySearchLimit:      envInt("POLICY_SEARCH_LIMIT", 5),
	}
}

// Validate checks values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	if c.ProgressBroker != BrokerRedis && c.ProgressBroker != BrokerNATS {
		return fmt.Errorf("PROGRESS_BROKER must be %q or %q, got %q", BrokerRedis, BrokerNATS, c.ProgressBroker)
	}
	if c.ProgressBroker == BrokerNATS && c.NatsURL == "" {
		return fmt.Errorf("NATS_URL is required when PROGRESS_BROKER=nats")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET cannot be empty")
	}
	if c.RAGChunkSize <= 0 {
		return fmt.Errorf("RAG_CHUNK_SIZE must be > 0")
	}
	if c.RAGChunkOverlap < 0 || c.RAGChunkOverlap >= c.RAGChunkSize {
		return fmt.Errorf("RAG_CHUNK_OVERLAP must be in [0, RAG_CHUNK_SIZE)")
	}
	if c.MaxClarifyingQuestions <= 0 {
		return fmt.Errorf("MAX_CLARIFYING_QUESTIONS must be > 0")
	}
	if c.AgentWorkers <= 0 {
		return fmt.Errorf("AGENT_WORKERS must be > 0")
	}
	return nil
}

// CORSOrigins splits CORS_ORIGINS on commas, dropping blanks.
func (c *Config) CORSOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSOriginsRaw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}
