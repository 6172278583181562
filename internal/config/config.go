package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

type Config struct {
	Server  ServerConfig
	LLM     LLMConfig
	Storage StorageConfig
	GitHub  GitHubConfig
	Gist    GistConfig
	Export  ExportConfig
	Profile ProfileConfig
	Auth    AuthConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

type LLMConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

// StorageConfig selects the backing store for the profile document.
// Backend is one of "local", "gist", "github".
type StorageConfig struct {
	Backend     string
	DataDir     string
	ProfileFile string
}

type GitHubConfig struct {
	Token string
	Repo  string // "owner/name"
	Path  string // path of the profile document within the repo
}

type GistConfig struct {
	ID string
}

type ExportConfig struct {
	Dir string
}

// ProfileConfig holds the deployment-time default identity applied to newly
// created profiles. All fields default to empty; a blank profile is the
// structural default.
type ProfileConfig struct {
	DefaultName     string
	DefaultTitle    string
	DefaultLocation string
}

// AuthConfig carries the static credential table. UsersJSON is the raw
// config value ({"username": "password", ...}); Users is the parsed form.
type AuthConfig struct {
	UsersJSON string
	Users     map[string]string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		LLM: LLMConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
		},
		Storage: StorageConfig{
			Backend:     "local",
			DataDir:     dataDir,
			ProfileFile: "profiles.json",
		},
		GitHub: GitHubConfig{
			Path: "profiles.json",
		},
		Export: ExportConfig{
			Dir: dataDir,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON config file at
// $XDG_CONFIG_HOME/coachd/config.json, then applies environment variable
// overrides (COACHD_*). Secrets (the LLM API key and the GitHub token) are
// only ever read from the environment.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.LLM.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: LLM API key. " +
			"Set it via environment variable COACHD_OPENAI_API_KEY")
	}

	switch cfg.Storage.Backend {
	case "local", "gist", "github":
	default:
		return Config{}, fmt.Errorf("invalid storage.backend %q: must be local, gist, or github", cfg.Storage.Backend)
	}

	cfg.Auth.Users = parseUsers(cfg.Auth.UsersJSON)

	return cfg, nil
}

// parseUsers decodes the static username→password table. Usernames are
// normalized to trimmed lowercase so lookups match Verify's normalization.
func parseUsers(raw string) map[string]string {
	users := make(map[string]string)
	if raw == "" {
		return users
	}
	var parsed map[string]string
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] could not parse auth.users as a JSON object: %v. No static users configured.\n", err)
		return users
	}
	for name, pass := range parsed {
		users[strings.ToLower(strings.TrimSpace(name))] = pass
	}
	return users
}
