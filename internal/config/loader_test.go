package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

const (
	debugLevel = "debug"
	infoLevel  = "info"
)

func newTestLoader() *Loader {
	return NewLoaderWithViper(viper.New())
}

// TestNewLoader tests loader creation.
func TestNewLoader(t *testing.T) {
	loader := NewLoader()
	if loader == nil {
		t.Fatal("NewLoader() returned nil")
	}
	if loader.GetViper() != viper.GetViper() {
		t.Error("NewLoader() should use the global viper instance")
	}
}

// TestLoadWithNoConfigFile tests loading with no config file present.
func TestLoadWithNoConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := newTestLoader().Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if cfg.LogLevel != infoLevel {
		t.Errorf("Expected default log level '%s', got %s", infoLevel, cfg.LogLevel)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Matcher.MinInliers != 10 {
		t.Errorf("Expected default min_inliers 10, got %d", cfg.Matcher.MinInliers)
	}
	if cfg.Relocalize.Interval != time.Second {
		t.Errorf("Expected default interval 1s, got %s", cfg.Relocalize.Interval)
	}
}

// TestLoadFromSearchPath tests that wallsight.yaml in the working directory is picked up.
func TestLoadFromSearchPath(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, "wallsight.yaml"), []byte("log_level: warn\n"), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	loader := newTestLoader()
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("Expected log level 'warn', got %s", cfg.LogLevel)
	}
	if loader.GetConfigFileUsed() == "" {
		t.Error("Expected the config file used to be reported")
	}
}

// TestLoadWithValidYAMLFile tests loading from a valid YAML file.
func TestLoadWithValidYAMLFile(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "wallsight.yaml")

	yamlContent := `
log_level: debug
verbose: true
server:
  host: 0.0.0.0
  port: 9090
features:
  max_features: 800
matcher:
  min_inliers: 15
  ratio_threshold: 0.8
relocalize:
  interval: 250ms
store:
  backend: sqlite
  path: /var/lib/wallsight/projects.db
`

	if err := os.WriteFile(configFile, []byte(yamlContent), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := newTestLoader().LoadWithFile(configFile)
	if err != nil {
		t.Fatalf("LoadWithFile() unexpected error: %v", err)
	}
	if cfg.LogLevel != debugLevel {
		t.Errorf("Expected log level '%s', got %s", debugLevel, cfg.LogLevel)
	}
	if !cfg.Verbose {
		t.Error("Expected verbose to be true")
	}
	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 9090 {
		t.Errorf("Expected 0.0.0.0:9090, got %s", cfg.ListenAddr())
	}
	if cfg.Features.MaxFeatures != 800 {
		t.Errorf("Expected max_features 800, got %d", cfg.Features.MaxFeatures)
	}
	if cfg.Features.Levels != 4 {
		t.Errorf("Expected unset levels to keep default 4, got %d", cfg.Features.Levels)
	}
	if cfg.Matcher.MinInliers != 15 || cfg.Matcher.RatioThreshold != 0.8 {
		t.Errorf("Unexpected matcher config: %+v", cfg.Matcher)
	}
	if cfg.Matcher.Seed != 0x9e3779b9 {
		t.Errorf("Expected default seed, got %#x", cfg.Matcher.Seed)
	}
	if cfg.Relocalize.Interval != 250*time.Millisecond {
		t.Errorf("Expected interval 250ms, got %s", cfg.Relocalize.Interval)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.Path != "/var/lib/wallsight/projects.db" {
		t.Errorf("Unexpected store config: %+v", cfg.Store)
	}
}

// TestLoadWithInvalidYAMLFile tests loading from an invalid YAML file.
func TestLoadWithInvalidYAMLFile(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "wallsight.yaml")

	invalidYAML := `
log_level: debug
  invalid indentation
    more bad indentation
`

	if err := os.WriteFile(configFile, []byte(invalidYAML), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := newTestLoader().LoadWithFile(configFile); err == nil {
		t.Error("LoadWithFile() expected error for invalid YAML, got nil")
	}
}

// TestLoadWithNonExistentFile tests loading from a non-existent file.
func TestLoadWithNonExistentFile(t *testing.T) {
	if _, err := newTestLoader().LoadWithFile("/nonexistent/path/to/config.yaml"); err == nil {
		t.Error("LoadWithFile() expected error for non-existent file, got nil")
	}
}

// TestLoadWithValidationFailure tests loading with validation failure.
func TestLoadWithValidationFailure(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "wallsight.yaml")

	yamlContent := `
log_level: invalid_level
matcher:
  min_inliers: 2
`

	if err := os.WriteFile(configFile, []byte(yamlContent), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := newTestLoader().LoadWithFile(configFile); err == nil {
		t.Error("LoadWithFile() expected validation error, got nil")
	}

	cfg, err := newTestLoader().LoadWithFileWithoutValidation(configFile)
	if err != nil {
		t.Fatalf("LoadWithFileWithoutValidation() unexpected error: %v", err)
	}
	if cfg.LogLevel != "invalid_level" || cfg.Matcher.MinInliers != 2 {
		t.Errorf("Expected raw values to survive, got %s / %d", cfg.LogLevel, cfg.Matcher.MinInliers)
	}
}

// TestEnvironmentVariables tests WALLSIGHT_ environment overrides.
func TestEnvironmentVariables(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("WALLSIGHT_LOG_LEVEL", "error")
	t.Setenv("WALLSIGHT_SERVER_PORT", "7070")
	t.Setenv("WALLSIGHT_MATCHER_MIN_INLIERS", "25")
	t.Setenv("WALLSIGHT_RELOCALIZE_INTERVAL", "2s")
	t.Setenv("WALLSIGHT_STORE_BACKEND", "sqlite")

	cfg, err := newTestLoader().Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("Expected log level 'error', got %s", cfg.LogLevel)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Expected port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Matcher.MinInliers != 25 {
		t.Errorf("Expected min_inliers 25, got %d", cfg.Matcher.MinInliers)
	}
	if cfg.Relocalize.Interval != 2*time.Second {
		t.Errorf("Expected interval 2s, got %s", cfg.Relocalize.Interval)
	}
	if cfg.Store.Backend != "sqlite" {
		t.Errorf("Expected sqlite backend, got %s", cfg.Store.Backend)
	}
}

// TestLoaderAccessors tests Get/Set and the resolved settings map.
func TestLoaderAccessors(t *testing.T) {
	loader := newTestLoader()
	loader.Set("custom.key", "test_value")
	if got := loader.Get("custom.key"); got != "test_value" {
		t.Errorf("Expected test_value, got %v", got)
	}

	loader.setDefaults()
	settings := loader.GetResolvedConfig()
	if _, ok := settings["matcher"]; !ok {
		t.Error("Expected matcher section in resolved config")
	}
}

// TestGenerateDefaultConfigFile tests writing and reloading the default file.
func TestGenerateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallsight.yaml")
	if err := GenerateDefaultConfigFile(path); err != nil {
		t.Fatalf("GenerateDefaultConfigFile() error: %v", err)
	}

	cfg, err := newTestLoader().LoadWithFile(path)
	if err != nil {
		t.Fatalf("LoadWithFile() on generated file: %v", err)
	}
	if cfg.Features != DefaultConfig().Features {
		t.Errorf("Generated features differ from defaults: %+v", cfg.Features)
	}
}

// TestGetConfigSearchPaths tests the search path list.
func TestGetConfigSearchPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	paths := GetConfigSearchPaths()
	if paths[0] != "." {
		t.Errorf("Expected current directory first, got %s", paths[0])
	}
	want := map[string]bool{filepath.Join("/xdg", "wallsight"): false, "/etc/wallsight": false}
	for _, p := range paths {
		if _, ok := want[p]; ok {
			want[p] = true
		}
	}
	for p, found := range want {
		if !found {
			t.Errorf("Expected %s in search paths %v", p, paths)
		}
	}
}
