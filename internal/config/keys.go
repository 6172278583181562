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
		key: "server.port", typ: kInt, env: "COACHD_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "llm.base_url", typ: kString, env: "COACHD_LLM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.BaseURL },
	},
	{
		key: "llm.model", typ: kString, env: "COACHD_LLM_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Model },
	},
	{
		key: "llm.api_key", typ: kString, env: "COACHD_OPENAI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LLM.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.APIKey },
	},
	{
		key: "storage.backend", typ: kString, env: "COACHD_STORAGE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Storage.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Backend },
	},
	{
		key: "storage.data_dir", typ: kString, env: "COACHD_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.profile_file", typ: kString, env: "COACHD_STORAGE_PROFILE_FILE",
		apply:   func(cfg *Config, v any) { cfg.Storage.ProfileFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.ProfileFile },
	},
	{
		key: "github.token", typ: kString, env: "COACHD_GITHUB_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.GitHub.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.GitHub.Token },
	},
	{
		key: "github.repo", typ: kString, env: "COACHD_GITHUB_REPO",
		apply:   func(cfg *Config, v any) { cfg.GitHub.Repo = v.(string) },
		extract: func(cfg Config) any { return cfg.GitHub.Repo },
	},
	{
		key: "github.path", typ: kString, env: "COACHD_GITHUB_PATH",
		apply:   func(cfg *Config, v any) { cfg.GitHub.Path = v.(string) },
		extract: func(cfg Config) any { return cfg.GitHub.Path },
	},
	{
		key: "gist.id", typ: kString, env: "COACHD_GIST_ID",
		apply:   func(cfg *Config, v any) { cfg.Gist.ID = v.(string) },
		extract: func(cfg Config) any { return cfg.Gist.ID },
	},
	{
		key: "export.dir", typ: kString, env: "COACHD_EXPORT_DIR",
		apply:   func(cfg *Config, v any) { cfg.Export.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Export.Dir },
	},
	{
		key: "profile.default_name", typ: kString, env: "COACHD_PROFILE_DEFAULT_NAME",
		apply:   func(cfg *Config, v any) { cfg.Profile.DefaultName = v.(string) },
		extract: func(cfg Config) any { return cfg.Profile.DefaultName },
	},
	{
		key: "profile.default_title", typ: kString, env: "COACHD_PROFILE_DEFAULT_TITLE",
		apply:   func(cfg *Config, v any) { cfg.Profile.DefaultTitle = v.(string) },
		extract: func(cfg Config) any { return cfg.Profile.DefaultTitle },
	},
	{
		key: "profile.default_location", typ: kString, env: "COACHD_PROFILE_DEFAULT_LOCATION",
		apply:   func(cfg *Config, v any) { cfg.Profile.DefaultLocation = v.(string) },
		extract: func(cfg Config) any { return cfg.Profile.DefaultLocation },
	},
	{
		key: "auth.users", typ: kString, env: "COACHD_AUTH_USERS",
		apply:   func(cfg *Config, v any) { cfg.Auth.UsersJSON = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.UsersJSON },
	},
	{
		key: "log.level", typ: kString, env: "COACHD_LOG_LEVEL",
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
		}
	}
}
