package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("CHUNK_SIZE", "")
	t.Setenv("DOC_CACHE_BACKEND", "")
	t.Setenv("SUMMARY_TIMEOUT_SECONDS", "")
	t.Setenv("UPLOAD_ALLOWED_PATTERNS", "")
	t.Setenv("NATS_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ChunkSize != 1000 {
		t.Fatalf("expected default chunk size 1000, got %d", cfg.ChunkSize)
	}
	if cfg.DocCacheBackend != DocCacheBackendBolt {
		t.Fatalf("expected default backend bolt, got %q", cfg.DocCacheBackend)
	}
	if cfg.SummaryTimeout != 60*time.Second {
		t.Fatalf("expected summary timeout 60s, got %s", cfg.SummaryTimeout)
	}
	if len(cfg.UploadAllowedPatterns) != 5 || cfg.UploadAllowedPatterns[0] != "*.pdf" {
		t.Fatalf("unexpected upload patterns: %v", cfg.UploadAllowedPatterns)
	}
	if cfg.NATSURL != "" {
		t.Fatalf("expected events disabled by default, got %q", cfg.NATSURL)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("CHUNK_SIZE", "500")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("RELEASE_SOURCE_AFTER_SUMMARY", "false")
	t.Setenv("UPLOAD_ALLOWED_PATTERNS", " *.pdf , ,**/*.txt")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ChunkSize != 500 {
		t.Fatalf("expected chunk size override, got %d", cfg.ChunkSize)
	}
	if cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("expected rps 2.5, got %v", cfg.APIRateLimitRPS)
	}
	if cfg.ReleaseSourceAfterSum {
		t.Fatal("expected release source disabled")
	}
	if len(cfg.UploadAllowedPatterns) != 2 || cfg.UploadAllowedPatterns[1] != "**/*.txt" {
		t.Fatalf("unexpected upload patterns: %v", cfg.UploadAllowedPatterns)
	}
}

func TestLoadYAMLOverlayYieldsToEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legal-lens.yaml")
	content := "CHUNK_SIZE: 700\nRETRIEVAL_TOP_K: 5\nOLLAMA_GEN_MODEL: qwen2.5:7b\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("CHUNK_SIZE", "")
	t.Setenv("RETRIEVAL_TOP_K", "4")
	t.Setenv("OLLAMA_GEN_MODEL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ChunkSize != 700 {
		t.Fatalf("expected chunk size from file, got %d", cfg.ChunkSize)
	}
	if cfg.RetrievalTopK != 4 {
		t.Fatalf("expected env to win for top k, got %d", cfg.RetrievalTopK)
	}
	if cfg.OllamaGenModel != "qwen2.5:7b" {
		t.Fatalf("expected model from file, got %q", cfg.OllamaGenModel)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DOC_CACHE_BACKEND", "redis")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
