package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port          int              `json:"port"`
	CORSAllowlist []string         `json:"cors_allowlist"`
	RateLimitSecs int              `json:"rate_limit_seconds"`
	DefaultTopK   int              `json:"default_top_k"`
	Corpus        CorpusConfig     `json:"corpus"`
	Chunking      ChunkingConfig   `json:"chunking"`
	Index         IndexConfig      `json:"index"`
	AI            AIConfig         `json:"ai"`
	Auth          AuthConfig       `json:"auth"`
	Schedule      ScheduleConfig   `json:"schedule"`
	LogConfig     logger.LogConfig `json:"log_config"`
}

type CorpusConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type ChunkingConfig struct {
	ChunkSize      int `json:"chunk_size"`
	Overlap        int `json:"overlap"`
	MaxStoredChars int `json:"max_stored_chars"`
	EmbedWorkers   int `json:"embed_workers"`
}

type IndexConfig struct {
	Backend string      `json:"backend"`
	Data    interface{} `json:"data"`
}

type AIConfig struct {
	Provider       string      `json:"provider"`
	EmbedModel     string      `json:"embed_model"`
	GenModel       string      `json:"gen_model"`
	Data           interface{} `json:"data"`
	TimeoutSeconds int         `json:"timeout_seconds"`
	CacheSize      int         `json:"cache_size"`
	CacheTTLMin    int         `json:"cache_ttl_minutes"`
}

type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
	TTLHours  int    `json:"ttl_hours"`
}

type ScheduleConfig struct {
	ReindexCron string `json:"reindex_cron"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.Port == 0 {
		cfg.Port = 5000
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 3
	}
	if cfg.Corpus.Type == "" {
		cfg.Corpus.Type = "local"
	}
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = "flat"
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 300
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = 50
	}
	if cfg.Chunking.MaxStoredChars == 0 {
		cfg.Chunking.MaxStoredChars = 600
	}
	if cfg.Chunking.EmbedWorkers <= 0 {
		cfg.Chunking.EmbedWorkers = 4
	}
	if cfg.Chunking.ChunkSize < 0 || cfg.Chunking.Overlap < 0 {
		return fmt.Errorf("chunking.chunk_size and chunking.overlap must be non-negative")
	}
	if cfg.Chunking.Overlap >= cfg.Chunking.ChunkSize {
		return fmt.Errorf("chunking.overlap (%d) must be smaller than chunking.chunk_size (%d)",
			cfg.Chunking.Overlap, cfg.Chunking.ChunkSize)
	}
	if cfg.AI.Provider == "" {
		return fmt.Errorf("ai.provider is required")
	}
	if cfg.AI.EmbedModel == "" {
		return fmt.Errorf("ai.embed_model is required")
	}
	if cfg.AI.TimeoutSeconds == 0 {
		cfg.AI.TimeoutSeconds = 60
	}
	if cfg.Auth.JWTSecret != "" && cfg.Auth.TTLHours == 0 {
		cfg.Auth.TTLHours = 72
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	return nil
}
