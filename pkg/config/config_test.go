package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nicdavidson/homestead/pkg/modeltags"
)

func TestLoadAppliesDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TurnTimeout() != 300*time.Second {
		t.Fatalf("expected default turn timeout of 300s, got %v", cfg.TurnTimeout())
	}
	if cfg.SessionInactivityWindow() != 4*time.Hour {
		t.Fatalf("expected default session inactivity window of 4h, got %v", cfg.SessionInactivityWindow())
	}
	if cfg.TurnQueueCapacity != 5 {
		t.Fatalf("expected default turn queue capacity of 5, got %d", cfg.TurnQueueCapacity)
	}
	if cfg.DefaultModelTag != "claude-cli-default" {
		t.Fatalf("expected a stable default model tag of claude-cli-default, got %q", cfg.DefaultModelTag)
	}
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "homestead.yaml")
	contents := []byte("telegram_token: \"abc123\"\nallowed_chat_ids: [1, 2]\nturn_timeout_seconds: 45\n")
	if err := os.WriteFile(path, contents, 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TelegramToken != "abc123" {
		t.Fatalf("expected telegram_token to be read, got %q", cfg.TelegramToken)
	}
	if len(cfg.AllowedChatIDs) != 2 || cfg.AllowedChatIDs[0] != 1 {
		t.Fatalf("expected allowed_chat_ids to be read, got %v", cfg.AllowedChatIDs)
	}
	if cfg.TurnTimeout() != 45*time.Second {
		t.Fatalf("expected overridden turn timeout of 45s, got %v", cfg.TurnTimeout())
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/homestead.yaml"); err == nil {
		t.Fatal("expected an error loading a missing config file")
	}
}

func TestModelTagRegistryBuildsFromConfiguredBindings(t *testing.T) {
	cfg := &Config{
		ModelTags: []ModelBinding{
			{Tag: "fast", Backend: "subprocess", BackendModelRef: "local-cli"},
			{Tag: "smart", Backend: "http", BackendModelRef: "grok"},
		},
	}
	registry, err := cfg.ModelTagRegistry()
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	binding, err := registry.Resolve("fast")
	if err != nil {
		t.Fatalf("resolve fast: %v", err)
	}
	if binding.Backend != modeltags.BackendSubprocess {
		t.Fatalf("expected subprocess backend, got %v", binding.Backend)
	}
}

func TestModelTagRegistryRejectsUnknownBackendKind(t *testing.T) {
	cfg := &Config{ModelTags: []ModelBinding{{Tag: "fast", Backend: "carrier-pigeon"}}}
	if _, err := cfg.ModelTagRegistry(); err == nil {
		t.Fatal("expected an error for an unknown backend kind")
	}
}
