// internal/config/config_test.go
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadSecretsFillsBlanksOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.toml")
	writeFile(t, path, `
GEMINI_API_KEY = "from-secrets"
GOOGLE_API_KEY = "drive-secret"

[gemini]
model = "gemini-2.0-flash"
`)

	s, err := LoadSecrets(path)
	if err != nil {
		t.Fatalf("LoadSecrets: %v", err)
	}

	cfg := &Config{GeminiAPIKey: "from-env"}
	s.Apply(cfg)

	want := &Config{GeminiAPIKey: "from-env", GoogleAPIKey: "drive-secret", VisionModel: "gemini-2.0-flash"}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Apply mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadSecretsMissingFile(t *testing.T) {
	s, err := LoadSecrets(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
	if s.GeminiAPIKey != "" {
		t.Fatalf("expected empty secrets, got %+v", s)
	}
}

func TestLoadSecretsInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.toml")
	writeFile(t, path, "GEMINI_API_KEY = ")
	if _, err := LoadSecrets(path); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("LOG_DIR", filepath.Join(dir, "logs"))
	t.Setenv("SECRETS_FILE", filepath.Join(dir, "none.toml"))
	t.Setenv("PORT", "9000")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("GOOGLE_API_KEY", "plain")
	t.Setenv("GOOGLE_DRIVE_API_KEY", "drive")
	t.Setenv("DEBUG_MODE", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9000" || cfg.GeminiAPIKey != "g-key" || cfg.DebugMode {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.GoogleAPIKey != "drive" {
		t.Fatalf("GOOGLE_DRIVE_API_KEY should take priority, got %q", cfg.GoogleAPIKey)
	}
	if _, err := os.Stat(cfg.DataDir); err != nil {
		t.Fatalf("data dir not created: %v", err)
	}
}

func TestInitConfigPersistsWithoutAPIKey(t *testing.T) {
	dir := t.TempDir()
	base := &Config{Port: "8501", DataDir: dir, GeminiAPIKey: "secret-key", ProjectStore: "file"}

	if err := initFrom(base, dir); err != nil {
		t.Fatalf("initFrom: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, settingsFileName))
	if err != nil {
		t.Fatalf("settings not written: %v", err)
	}
	if strings.Contains(string(data), "secret-key") {
		t.Fatalf("api key leaked into settings file:\n%s", data)
	}

	cfg := GetCurrentConfig()
	if cfg.LLMConfig["api_key"] != "secret-key" {
		t.Fatalf("api key should stay in memory, got %q", cfg.LLMConfig["api_key"])
	}
	if cfg.Analyzer.BatchSize != 10 || cfg.Analyzer.MinDelayMs != 500 {
		t.Fatalf("unexpected analyzer defaults %+v", cfg.Analyzer)
	}
}

func TestInitConfigMergesSavedSettings(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, settingsFileName), `
llm_provider: gemini
llm_config:
  default_model: gemini-2.0-flash
  api_key: must-be-ignored
analyzer:
  batch_size: 5
  min_delay_ms: 1000
  max_retries: 2
  vision_model: gemini-2.0-flash
  narrative_model: gemini-2.5-pro
  image_max_side: 800
  jpeg_quality: 80
`)
	base := &Config{Port: "8501", DataDir: dir, GeminiAPIKey: "env-key", ProjectStore: "file"}
	if err := initFrom(base, dir); err != nil {
		t.Fatalf("initFrom: %v", err)
	}

	cfg := GetCurrentConfig()
	if cfg.LLMConfig["api_key"] != "env-key" {
		t.Errorf("api key = %q, want env-key", cfg.LLMConfig["api_key"])
	}
	if cfg.LLMConfig["default_model"] != "gemini-2.0-flash" {
		t.Errorf("default_model = %q", cfg.LLMConfig["default_model"])
	}
	if cfg.Analyzer.BatchSize != 5 || cfg.Analyzer.ImageMaxSide != 800 {
		t.Errorf("analyzer not merged: %+v", cfg.Analyzer)
	}
}

func TestInvalidSavedSettingsFallBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, settingsFileName), `
analyzer:
  batch_size: 500
  vision_model: x
  narrative_model: y
`)
	base := &Config{Port: "8501", DataDir: dir, ProjectStore: "file"}
	if err := initFrom(base, dir); err != nil {
		t.Fatalf("initFrom: %v", err)
	}
	if got := GetCurrentConfig().Analyzer; got != DefaultAnalyzerSettings() {
		t.Fatalf("expected defaults, got %+v", got)
	}
}

func TestUpdateAnalyzerSettingsValidates(t *testing.T) {
	dir := t.TempDir()
	if err := initFrom(&Config{Port: "8501", DataDir: dir, ProjectStore: "file"}, dir); err != nil {
		t.Fatal(err)
	}

	bad := DefaultAnalyzerSettings()
	bad.BatchSize = 0
	if err := UpdateAnalyzerSettings(bad); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("batch size 0 err = %v, want ErrInvalidConfig", err)
	}

	good := DefaultAnalyzerSettings()
	good.BatchSize = 4
	if err := UpdateAnalyzerSettings(good); err != nil {
		t.Fatalf("UpdateAnalyzerSettings: %v", err)
	}
	if GetCurrentConfig().Analyzer.BatchSize != 4 {
		t.Fatal("batch size not updated")
	}
}

func TestUpdateLLMConfigKeepsKeyWhenBlank(t *testing.T) {
	dir := t.TempDir()
	if err := initFrom(&Config{Port: "8501", DataDir: dir, GeminiAPIKey: "k1", ProjectStore: "file"}, dir); err != nil {
		t.Fatal(err)
	}
	if err := UpdateLLMConfig("gemini", map[string]string{"default_model": "gemini-2.5-flash"}); err != nil {
		t.Fatal(err)
	}
	cfg := GetCurrentConfig()
	if cfg.LLMConfig["api_key"] != "k1" || cfg.LLMConfig["default_model"] != "gemini-2.5-flash" {
		t.Fatalf("unexpected llm config %+v", cfg.LLMConfig)
	}
}
