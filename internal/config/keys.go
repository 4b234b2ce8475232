package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "LTIQA_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.admin_token", typ: kString, env: "LTIQA_ADMIN_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.AdminToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.AdminToken },
	},
	{
		key: "ollama.base_url", typ: kString, env: "LTIQA_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.generate_model", typ: kString, env: "LTIQA_OLLAMA_GENERATE_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.GenerateModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.GenerateModel },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "LTIQA_OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "ollama.timeout", typ: kString, env: "LTIQA_OLLAMA_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Timeout },
	},
	{
		key: "ollama.max_rps", typ: kFloat, env: "LTIQA_OLLAMA_MAX_RPS",
		apply:   func(cfg *Config, v any) { cfg.Ollama.MaxRPS = v.(float64) },
		extract: func(cfg Config) any { return cfg.Ollama.MaxRPS },
	},
	{
		key: "storage.data_dir", typ: kString, env: "LTIQA_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "segment.size", typ: kInt, env: "LTIQA_SEGMENT_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Segment.Size = v.(int) },
		extract: func(cfg Config) any { return cfg.Segment.Size },
	},
	{
		key: "segment.overlap", typ: kInt, env: "LTIQA_SEGMENT_OVERLAP",
		apply:   func(cfg *Config, v any) { cfg.Segment.Overlap = v.(int) },
		extract: func(cfg Config) any { return cfg.Segment.Overlap },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "LTIQA_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "cache.threshold", typ: kFloat, env: "LTIQA_CACHE_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Cache.Threshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Cache.Threshold },
	},
	{
		key: "cache.max_keywords", typ: kInt, env: "LTIQA_CACHE_MAX_KEYWORDS",
		apply:   func(cfg *Config, v any) { cfg.Cache.MaxKeywords = v.(int) },
		extract: func(cfg Config) any { return cfg.Cache.MaxKeywords },
	},
	{
		key: "cache.min_keyword_len", typ: kInt, env: "LTIQA_CACHE_MIN_KEYWORD_LEN",
		apply:   func(cfg *Config, v any) { cfg.Cache.MinKeywordLen = v.(int) },
		extract: func(cfg Config) any { return cfg.Cache.MinKeywordLen },
	},
	{
		key: "cache.invalidate_on_change", typ: kBool, env: "LTIQA_CACHE_INVALIDATE_ON_CHANGE",
		apply:   func(cfg *Config, v any) { cfg.Cache.InvalidateOnChange = v.(bool) },
		extract: func(cfg Config) any { return cfg.Cache.InvalidateOnChange },
	},
	{
		key: "answer.language", typ: kString, env: "LTIQA_ANSWER_LANGUAGE",
		apply:   func(cfg *Config, v any) { cfg.Answer.Language = v.(string) },
		extract: func(cfg Config) any { return cfg.Answer.Language },
	},
	{
		key: "fuseki.url", typ: kString, env: "LTIQA_FUSEKI_URL",
		apply:   func(cfg *Config, v any) { cfg.Fuseki.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.Fuseki.URL },
	},
	{
		key: "fuseki.dataset", typ: kString, env: "LTIQA_FUSEKI_DATASET",
		apply:   func(cfg *Config, v any) { cfg.Fuseki.Dataset = v.(string) },
		extract: func(cfg Config) any { return cfg.Fuseki.Dataset },
	},
	{
		key: "log.level", typ: kString, env: "LTIQA_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
