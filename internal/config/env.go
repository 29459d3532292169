package config

import (
	"os"
	"strconv"
)

// applyEnvOverrides overlays DOCQ_* environment variables. Unparseable
// numeric values are ignored rather than failing startup.
func applyEnvOverrides(cfg *Config) {
	envInt("DOCQ_PORT", &cfg.Server.Port)
	envString("DOCQ_DATA_DIR", &cfg.Storage.DataDir)

	envString("DOCQ_API_KEY", &cfg.LLM.APIKey)
	envString("DOCQ_BASE_URL", &cfg.LLM.BaseURL)
	envString("DOCQ_COMPLETION_MODEL", &cfg.LLM.CompletionModel)
	envString("DOCQ_EMBEDDING_MODEL", &cfg.LLM.EmbeddingModel)
	envFloat("DOCQ_TEMPERATURE", &cfg.LLM.Temperature)
	envFloat("DOCQ_TOP_P", &cfg.LLM.TopP)
	envInt("DOCQ_TOP_K", &cfg.LLM.TopK)

	envInt("DOCQ_RETRIEVAL_TOP_K", &cfg.Retrieval.TopK)
	envInt("DOCQ_HISTORY_LIMIT", &cfg.Retrieval.HistoryLimit)

	envString("DOCQ_API_TOKEN", &cfg.Auth.Token)
	envString("DOCQ_LOG_LEVEL", &cfg.Log.Level)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
