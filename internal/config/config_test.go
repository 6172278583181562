package config

import (
	"testing"
)

// memBackend is an in-memory ConfigBackend for tests.
type memBackend struct {
	strings map[string]string
	ints    map[string]int
}

func newMemBackend() *memBackend {
	return &memBackend{strings: make(map[string]string), ints: make(map[string]int)}
}

func (m *memBackend) GetString(key string) (string, bool, error) {
	v, ok := m.strings[key]
	return v, ok, nil
}

func (m *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.ints[key]
	return v, ok, nil
}

func (m *memBackend) SetString(key, val string) error { m.strings[key] = val; return nil }
func (m *memBackend) SetInt(key string, val int) error { m.ints[key] = val; return nil }
func (m *memBackend) Delete(key string) error {
	delete(m.strings, key)
	delete(m.ints, key)
	return nil
}

func TestDefaults(t *testing.T) {
	t.Setenv("COACHD_OPENAI_API_KEY", "test-key")

	cfg, err := loadWith(newMemBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4600 {
		t.Errorf("Server.Port = %d, want 4600", cfg.Server.Port)
	}
	if cfg.LLM.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("LLM.BaseURL = %q, want %q", cfg.LLM.BaseURL, "https://api.openai.com/v1")
	}
	if cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("LLM.Model = %q, want %q", cfg.LLM.Model, "gpt-4o-mini")
	}
	if cfg.Storage.Backend != "local" {
		t.Errorf("Storage.Backend = %q, want %q", cfg.Storage.Backend, "local")
	}
	if cfg.Storage.ProfileFile != "profiles.json" {
		t.Errorf("Storage.ProfileFile = %q, want %q", cfg.Storage.ProfileFile, "profiles.json")
	}
	if cfg.Profile.DefaultName != "" {
		t.Errorf("Profile.DefaultName = %q, want empty default identity", cfg.Profile.DefaultName)
	}
}

func TestMissingAPIKey(t *testing.T) {
	t.Setenv("COACHD_OPENAI_API_KEY", "")

	if _, err := loadWith(newMemBackend()); err == nil {
		t.Fatal("expected error for missing API key, got nil")
	}
}

func TestBackendValues(t *testing.T) {
	t.Setenv("COACHD_OPENAI_API_KEY", "test-key")

	b := newMemBackend()
	b.ints["server.port"] = 9000
	b.strings["storage.backend"] = "github"
	b.strings["github.repo"] = "alice/profiles"
	b.strings["profile.default_name"] = "Alice Smith"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Storage.Backend != "github" {
		t.Errorf("Storage.Backend = %q, want %q", cfg.Storage.Backend, "github")
	}
	if cfg.GitHub.Repo != "alice/profiles" {
		t.Errorf("GitHub.Repo = %q, want %q", cfg.GitHub.Repo, "alice/profiles")
	}
	if cfg.Profile.DefaultName != "Alice Smith" {
		t.Errorf("Profile.DefaultName = %q, want %q", cfg.Profile.DefaultName, "Alice Smith")
	}
}

func TestEnvOverridesBackend(t *testing.T) {
	t.Setenv("COACHD_OPENAI_API_KEY", "test-key")
	t.Setenv("COACHD_LLM_MODEL", "gpt-4o")

	b := newMemBackend()
	b.strings["llm.model"] = "gpt-3.5-turbo"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LLM.Model != "gpt-4o" {
		t.Errorf("LLM.Model = %q, want env override %q", cfg.LLM.Model, "gpt-4o")
	}
}

func TestInvalidStorageBackend(t *testing.T) {
	t.Setenv("COACHD_OPENAI_API_KEY", "test-key")
	t.Setenv("COACHD_STORAGE_BACKEND", "s3")

	if _, err := loadWith(newMemBackend()); err == nil {
		t.Fatal("expected error for invalid storage backend, got nil")
	}
}

func TestParseUsers(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]string
	}{
		{
			name: "empty",
			raw:  "",
			want: map[string]string{},
		},
		{
			name: "normalizes usernames",
			raw:  `{" Roy ": "secret", "ALICE": "pw"}`,
			want: map[string]string{"roy": "secret", "alice": "pw"},
		},
		{
			name: "malformed yields empty table",
			raw:  `not-json`,
			want: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseUsers(tt.raw)
			if len(got) != len(tt.want) {
				t.Fatalf("parseUsers(%q) = %v, want %v", tt.raw, got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("parseUsers(%q)[%q] = %q, want %q", tt.raw, k, got[k], v)
				}
			}
		})
	}
}
