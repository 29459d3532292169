// Package config resolves the service configuration: compiled defaults, then
// the JSON config file, then DOCQ_* environment variables. Core packages
// receive resolved values at construction time and never read the
// environment themselves.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	LLM       LLMConfig       `json:"llm"`
	Retrieval RetrievalConfig `json:"retrieval"`
	Storage   StorageConfig   `json:"storage"`
	Auth      AuthConfig      `json:"auth"`
	Log       LogConfig       `json:"log"`
}

type ServerConfig struct {
	Port int `json:"port"`
}

// LLMConfig selects the models and sampling parameters. The embedding model
// must match the one used at indexing time; changing it invalidates every
// stored vector, which fails silently rather than loudly, so treat it as
// fixed once documents exist.
type LLMConfig struct {
	APIKey          string  `json:"api_key,omitempty"`
	BaseURL         string  `json:"base_url"`
	CompletionModel string  `json:"completion_model"`
	EmbeddingModel  string  `json:"embedding_model"`
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"top_p"`
	TopK            int     `json:"top_k"`
}

type RetrievalConfig struct {
	TopK         int `json:"top_k"`         // passages per question
	HistoryLimit int `json:"history_limit"` // conversation turns in the prompt
}

type StorageConfig struct {
	DataDir string `json:"data_dir"`
}

type AuthConfig struct {
	Token string `json:"token,omitempty"`
}

type LogConfig struct {
	Level string `json:"level"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4200,
		},
		LLM: LLMConfig{
			BaseURL:         "https://api.openai.com/v1",
			CompletionModel: "gpt-4o-mini",
			EmbeddingModel:  "text-embedding-3-small",
			Temperature:     0.7,
			TopP:            0.9,
			TopK:            40,
		},
		Retrieval: RetrievalConfig{
			TopK:         4,
			HistoryLimit: 6,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "docq")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./docq-data"
	}
	return filepath.Join(home, ".local", "share", "docq")
}

// ConfigFilePath returns the JSON config file location:
// $XDG_CONFIG_HOME/docq/config.json (or ~/.config/docq/config.json).
func ConfigFilePath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "docq", "config.json"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "docq", "config.json"), nil
}

// Load resolves the configuration. A `.env` file in the working directory is
// honored before environment lookups. The LLM API key is required; the API
// bearer token is generated and persisted on first run when absent.
func Load() (Config, error) {
	// Best-effort: a missing .env is the common case.
	_ = godotenv.Load()

	path, err := ConfigFilePath()
	if err != nil {
		return Config{}, err
	}
	return loadFrom(path)
}

func loadFrom(path string) (Config, error) {
	cfg := defaults()

	if err := applyFile(&cfg, path); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if cfg.LLM.APIKey == "" {
		return Config{}, errors.New("missing required config: LLM API key. Set it via the DOCQ_API_KEY environment variable or llm.api_key in the config file")
	}

	if cfg.Auth.Token == "" {
		cfg.Auth.Token = uuid.New().String()
		if err := saveToken(path, cfg.Auth.Token); err != nil {
			return Config{}, fmt.Errorf("persisting generated API token: %w", err)
		}
	}

	return cfg, nil
}

// applyFile overlays values from the JSON config file, if present.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// saveToken rewrites the config file with the generated token so it survives
// restarts. Other settings already in the file are preserved.
func saveToken(path, token string) error {
	raw := map[string]json.RawMessage{}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("parsing existing config: %w", err)
		}
	}

	auth, err := json.Marshal(AuthConfig{Token: token})
	if err != nil {
		return err
	}
	raw["auth"] = auth

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
