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
		key: "server.port", typ: kInt, env: "ASSISTD_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "ASSISTD_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "ASSISTD_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "answer.tag_threshold", typ: kFloat, env: "ASSISTD_ANSWER_TAG_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Answer.TagThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Answer.TagThreshold },
	},
	{
		key: "answer.chunk_threshold", typ: kFloat, env: "ASSISTD_ANSWER_CHUNK_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Answer.ChunkThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Answer.ChunkThreshold },
	},
	{
		key: "answer.provider_url", typ: kString, env: "ASSISTD_ANSWER_PROVIDER_URL",
		apply:   func(cfg *Config, v any) { cfg.Answer.ProviderURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Answer.ProviderURL },
	},
	{
		key: "answer.provider_model", typ: kString, env: "ASSISTD_ANSWER_PROVIDER_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Answer.ProviderModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Answer.ProviderModel },
	},
	{
		key: "answer.provider_timeout", typ: kString, env: "ASSISTD_ANSWER_PROVIDER_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Answer.ProviderTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Answer.ProviderTimeout },
	},
	{
		key: "upload.max_bytes", typ: kInt, env: "ASSISTD_UPLOAD_MAX_BYTES",
		apply:   func(cfg *Config, v any) { cfg.Upload.MaxBytes = v.(int) },
		extract: func(cfg Config) any { return cfg.Upload.MaxBytes },
	},
	{
		key: "sheets.endpoint", typ: kString, env: "ASSISTD_SHEETS_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.Sheets.Endpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Sheets.Endpoint },
	},
	{
		key: "sheets.token", typ: kString, env: "ASSISTD_SHEETS_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Sheets.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Sheets.Token },
	},
	{
		key: "admin.token_hash", typ: kString, env: "ASSISTD_ADMIN_TOKEN_HASH",
		apply:   func(cfg *Config, v any) { cfg.Admin.TokenHash = v.(string) },
		extract: func(cfg Config) any { return cfg.Admin.TokenHash },
	},
	{
		key: "site.url", typ: kString, env: "ASSISTD_SITE_URL",
		apply:   func(cfg *Config, v any) { cfg.Site.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.Site.URL },
	},
}

func applyBackend(cfg *Config, b Backend) error {
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
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
