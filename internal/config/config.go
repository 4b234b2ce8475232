package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Ollama    OllamaConfig
	Storage   StorageConfig
	Segment   SegmentConfig
	Retrieval RetrievalConfig
	Cache     CacheConfig
	Answer    AnswerConfig
	Fuseki    FusekiConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port       int
	AdminToken string
}

type OllamaConfig struct {
	BaseURL       string
	GenerateModel string
	EmbedModel    string
	Timeout       string
	MaxRPS        float64
}

// TimeoutDuration parses Timeout, falling back to 60s.
func (c OllamaConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

type StorageConfig struct {
	DataDir string
}

type SegmentConfig struct {
	Size    int
	Overlap int
}

type RetrievalConfig struct {
	TopK int
}

type CacheConfig struct {
	Threshold          float64
	MaxKeywords        int
	MinKeywordLen      int
	InvalidateOnChange bool
}

type AnswerConfig struct {
	Language string
}

type FusekiConfig struct {
	URL     string
	Dataset string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 5000,
		},
		Ollama: OllamaConfig{
			BaseURL:       "http://localhost:11434",
			GenerateModel: "mistral",
			EmbedModel:    "nomic-embed-text",
			Timeout:       "60s",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Segment: SegmentConfig{
			Size:    500,
			Overlap: 50,
		},
		Retrieval: RetrievalConfig{
			TopK: 3,
		},
		Cache: CacheConfig{
			Threshold:          0.85,
			MaxKeywords:        3,
			MinKeywordLen:      5,
			InvalidateOnChange: true,
		},
		Answer: AnswerConfig{
			Language: "sr",
		},
		Fuseki: FusekiConfig{
			URL:     "http://localhost:3030",
			Dataset: "lms-tools",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration in increasing order of precedence: built-in
// defaults, the TOML file at $XDG_CONFIG_HOME/ltiqa/config.toml, a .env file
// in the working directory and LTIQA_* environment variables.
//
// Variables from .env never replace variables already set in the process
// environment.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), ".env")
}

func loadWith(b ConfigBackend, envFile string) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("reading %s: %w", envFile, err)
		}
	}
	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports configuration values the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Segment.Size <= 0 {
		errs = append(errs, fmt.Errorf("segment.size must be positive, got %d", c.Segment.Size))
	}
	if c.Segment.Overlap < 0 || c.Segment.Overlap >= c.Segment.Size {
		errs = append(errs, fmt.Errorf("segment.overlap must be in [0, segment.size), got %d", c.Segment.Overlap))
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK))
	}
	if c.Cache.Threshold < 0 || c.Cache.Threshold > 1 {
		errs = append(errs, fmt.Errorf("cache.threshold must be in [0, 1], got %v", c.Cache.Threshold))
	}
	if c.Ollama.MaxRPS < 0 {
		errs = append(errs, fmt.Errorf("ollama.max_rps must not be negative, got %v", c.Ollama.MaxRPS))
	}
	if _, err := time.ParseDuration(c.Ollama.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("ollama.timeout: %w", err))
	}
	return errors.Join(errs...)
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "ltiqa-data"
		}
	}
	return filepath.Join(dir, "ltiqa")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "ltiqa", "config.toml")
}
