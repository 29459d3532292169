package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearDocqEnv(t *testing.T) {
	t.Helper()
	for _, e := range os.Environ() {
		if strings.HasPrefix(e, "DOCQ_") {
			t.Setenv(strings.SplitN(e, "=", 2)[0], "")
		}
	}
}

func TestLoadDefaultsAndRequiredKey(t *testing.T) {
	clearDocqEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")

	// Without an API key the config is unusable.
	if _, err := loadFrom(path); err == nil {
		t.Fatal("expected error without API key")
	}

	t.Setenv("DOCQ_API_KEY", "sk-test")
	cfg, err := loadFrom(path)
	if err != nil {
		t.Fatalf("loadFrom: %v", err)
	}

	if cfg.Server.Port != 4200 {
		t.Errorf("Port = %d, want 4200", cfg.Server.Port)
	}
	if cfg.Retrieval.TopK != 4 || cfg.Retrieval.HistoryLimit != 6 {
		t.Errorf("retrieval defaults = %+v", cfg.Retrieval)
	}
	if cfg.LLM.BaseURL == "" || cfg.LLM.CompletionModel == "" || cfg.LLM.EmbeddingModel == "" {
		t.Errorf("LLM defaults incomplete: %+v", cfg.LLM)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearDocqEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")

	t.Setenv("DOCQ_API_KEY", "sk-test")
	t.Setenv("DOCQ_PORT", "9999")
	t.Setenv("DOCQ_COMPLETION_MODEL", "custom-model")
	t.Setenv("DOCQ_TEMPERATURE", "0.2")
	t.Setenv("DOCQ_HISTORY_LIMIT", "10")
	t.Setenv("DOCQ_API_TOKEN", "fixed-token")

	cfg, err := loadFrom(path)
	if err != nil {
		t.Fatalf("loadFrom: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.LLM.CompletionModel != "custom-model" {
		t.Errorf("CompletionModel = %q", cfg.LLM.CompletionModel)
	}
	if cfg.LLM.Temperature != 0.2 {
		t.Errorf("Temperature = %f", cfg.LLM.Temperature)
	}
	if cfg.Retrieval.HistoryLimit != 10 {
		t.Errorf("HistoryLimit = %d", cfg.Retrieval.HistoryLimit)
	}
	if cfg.Auth.Token != "fixed-token" {
		t.Errorf("Token = %q", cfg.Auth.Token)
	}
}

func TestEnvOverridesIgnoreGarbageNumbers(t *testing.T) {
	clearDocqEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")

	t.Setenv("DOCQ_API_KEY", "sk-test")
	t.Setenv("DOCQ_PORT", "not-a-number")

	cfg, err := loadFrom(path)
	if err != nil {
		t.Fatalf("loadFrom: %v", err)
	}
	if cfg.Server.Port != 4200 {
		t.Errorf("Port = %d, want default kept", cfg.Server.Port)
	}
}

func TestFileOverlay(t *testing.T) {
	clearDocqEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	err := os.WriteFile(path, []byte(`{
		"server": {"port": 5000},
		"llm": {"completion_model": "from-file"},
		"auth": {"token": "file-token"}
	}`), 0o600)
	if err != nil {
		t.Fatal(err)
	}

	t.Setenv("DOCQ_API_KEY", "sk-test")
	cfg, err := loadFrom(path)
	if err != nil {
		t.Fatalf("loadFrom: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Port = %d, want file value 5000", cfg.Server.Port)
	}
	if cfg.LLM.CompletionModel != "from-file" {
		t.Errorf("CompletionModel = %q", cfg.LLM.CompletionModel)
	}

	// Env wins over file.
	t.Setenv("DOCQ_PORT", "6000")
	cfg, err = loadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("Port = %d, want env value 6000", cfg.Server.Port)
	}
}

// A missing bearer token is generated once and persisted, so restarts keep
// the same credential.
func TestGeneratedTokenPersists(t *testing.T) {
	clearDocqEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	t.Setenv("DOCQ_API_KEY", "sk-test")

	cfg1, err := loadFrom(path)
	if err != nil {
		t.Fatalf("first loadFrom: %v", err)
	}
	if cfg1.Auth.Token == "" {
		t.Fatal("no token generated")
	}

	cfg2, err := loadFrom(path)
	if err != nil {
		t.Fatalf("second loadFrom: %v", err)
	}
	if cfg2.Auth.Token != cfg1.Auth.Token {
		t.Errorf("token changed across loads: %q vs %q", cfg1.Auth.Token, cfg2.Auth.Token)
	}

	// The file holds only what was written, still valid JSON.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("config file is not valid JSON: %v", err)
	}
	if _, ok := raw["auth"]; !ok {
		t.Error("auth section missing from persisted config")
	}
}

func TestBadConfigFile(t *testing.T) {
	clearDocqEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("DOCQ_API_KEY", "sk-test")
	if _, err := loadFrom(path); err == nil {
		t.Fatal("expected error for malformed config file")
	}
}
