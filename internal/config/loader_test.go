package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

// isolate points the search paths at an empty directory tree.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	return dir
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
}

// TestNewLoader tests loader creation.
func TestNewLoader(t *testing.T) {
	loader := NewLoader()
	if loader == nil {
		t.Fatal("NewLoader() returned nil")
	}
	if loader.v == nil {
		t.Error("Loader viper instance is nil")
	}
	if len(loader.envFiles) != 1 || loader.envFiles[0] != DotEnvFile {
		t.Errorf("Expected default env file %s, got %v", DotEnvFile, loader.envFiles)
	}
}

// TestLoadWithNoConfigFile tests loading with no config file present.
func TestLoadWithNoConfigFile(t *testing.T) {
	isolate(t)

	cfg, err := NewLoaderWithViper(viper.New()).Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if cfg.LogLevel != infoLevel {
		t.Errorf("Expected default log level '%s', got %s", infoLevel, cfg.LogLevel)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Client.BaseDelay != time.Second {
		t.Errorf("Expected base delay 1s, got %s", cfg.Client.BaseDelay)
	}
	if len(cfg.Evaluation.Include) != 3 {
		t.Errorf("Expected default include patterns, got %v", cfg.Evaluation.Include)
	}
}

// TestLoadFromSearchPath finds ocrbench.yaml in the working directory.
func TestLoadFromSearchPath(t *testing.T) {
	dir := isolate(t)
	writeConfig(t, filepath.Join(dir, "ocrbench.yaml"), `
log_level: debug
client:
  endpoint: https://user--tesseract-ocr.modal.run
  model_name: tesseract
  timeout: 90s
  filter: numeric
evaluation:
  images: [set1, set2]
  recall_only: true
benchmark:
  batch_size: 8
`)

	loader := NewLoaderWithViper(viper.New())
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.LogLevel)
	}
	if cfg.Client.Endpoint != "https://user--tesseract-ocr.modal.run" {
		t.Errorf("Unexpected endpoint %s", cfg.Client.Endpoint)
	}
	if cfg.Client.Timeout != 90*time.Second {
		t.Errorf("Expected timeout 90s, got %s", cfg.Client.Timeout)
	}
	if cfg.Client.MaxAttempts != 5 {
		t.Errorf("Expected default max attempts to survive, got %d", cfg.Client.MaxAttempts)
	}
	if strings.Join(cfg.Evaluation.Images, ",") != "set1,set2" {
		t.Errorf("Unexpected images %v", cfg.Evaluation.Images)
	}
	if !cfg.Evaluation.RecallOnly {
		t.Error("Expected recall_only")
	}
	if cfg.Benchmark.BatchSize != 8 {
		t.Errorf("Expected batch size 8, got %d", cfg.Benchmark.BatchSize)
	}
	if !strings.HasSuffix(loader.GetConfigFileUsed(), "ocrbench.yaml") {
		t.Errorf("Unexpected config file used: %s", loader.GetConfigFileUsed())
	}
}

// TestLoadFromXDGConfigHome finds the file under $XDG_CONFIG_HOME/ocrbench.
func TestLoadFromXDGConfigHome(t *testing.T) {
	dir := isolate(t)
	writeConfig(t, filepath.Join(dir, "xdg", "ocrbench", "ocrbench.yaml"), "server:\n  port: 9090\n")

	cfg, err := NewLoaderWithViper(viper.New()).Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
}

// TestLoadWithFile tests explicit config files.
func TestLoadWithFile(t *testing.T) {
	dir := isolate(t)

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(dir, "custom.yaml")
		writeConfig(t, path, `
engines:
  enabled: [oracle, tesseract]
  default: oracle
  oracle:
    ground_truth: gt.json
  tesseract:
    languages: [eng, deu]
    psm: 6
cache:
  backend: memory
  ttl: 1h
`)
		cfg, err := NewLoaderWithViper(viper.New()).LoadWithFile(path)
		if err != nil {
			t.Fatalf("LoadWithFile() unexpected error: %v", err)
		}
		if strings.Join(cfg.Engines.Enabled, ",") != "oracle,tesseract" {
			t.Errorf("Unexpected engines %v", cfg.Engines.Enabled)
		}
		if cfg.Engines.Tesseract.PageSegMode != 6 || len(cfg.Engines.Tesseract.Languages) != 2 {
			t.Errorf("Unexpected tesseract config %+v", cfg.Engines.Tesseract)
		}
		if !cfg.Engines.Tesseract.Grayscale {
			t.Error("Expected default grayscale to survive a partial section")
		}
		if cfg.Cache.TTL != time.Hour {
			t.Errorf("Expected ttl 1h, got %s", cfg.Cache.TTL)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewLoaderWithViper(viper.New()).LoadWithFile(filepath.Join(dir, "nope.yaml"))
		if err == nil || !strings.Contains(err.Error(), "does not exist") {
			t.Errorf("Expected missing file error, got %v", err)
		}
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yaml")
		writeConfig(t, path, "client: [unclosed\n")
		if _, err := NewLoaderWithViper(viper.New()).LoadWithFile(path); err == nil {
			t.Error("Expected error for malformed yaml")
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		path := filepath.Join(dir, "invalid.yaml")
		writeConfig(t, path, "benchmark:\n  batch_size: 0\n")

		_, err := NewLoaderWithViper(viper.New()).LoadWithFile(path)
		if err == nil || !strings.Contains(err.Error(), "validation failed") {
			t.Errorf("Expected validation error, got %v", err)
		}

		cfg, err := NewLoaderWithViper(viper.New()).LoadWithFileWithoutValidation(path)
		if err != nil {
			t.Fatalf("LoadWithFileWithoutValidation() unexpected error: %v", err)
		}
		if cfg.Benchmark.BatchSize != 0 {
			t.Errorf("Expected raw batch size 0, got %d", cfg.Benchmark.BatchSize)
		}
	})
}

// TestEnvironmentOverrides checks the OCRBENCH_ prefix and key mapping.
func TestEnvironmentOverrides(t *testing.T) {
	dir := isolate(t)
	writeConfig(t, filepath.Join(dir, "ocrbench.yaml"), "client:\n  model_name: from-file\n")

	t.Setenv("OCRBENCH_CLIENT_MODEL_NAME", "from-env")
	t.Setenv("OCRBENCH_CLIENT_MAX_DELAY", "2s")
	t.Setenv("OCRBENCH_SERVER_PORT", "3000")
	t.Setenv("OCRBENCH_EVALUATION_IMAGES", "a,b,c")
	t.Setenv("OCRBENCH_VERBOSE", "true")

	cfg, err := NewLoaderWithViper(viper.New()).Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.Client.ModelName != "from-env" {
		t.Errorf("Expected env to beat the file, got %s", cfg.Client.ModelName)
	}
	if cfg.Client.MaxDelay != 2*time.Second {
		t.Errorf("Expected max delay 2s, got %s", cfg.Client.MaxDelay)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Expected port 3000, got %d", cfg.Server.Port)
	}
	if strings.Join(cfg.Evaluation.Images, "|") != "a|b|c" {
		t.Errorf("Expected images from a comma list, got %v", cfg.Evaluation.Images)
	}
	if !cfg.Verbose {
		t.Error("Expected verbose from env")
	}
}

// TestDotEnvFile loads variables from a dotenv file without overriding the process environment.
func TestDotEnvFile(t *testing.T) {
	dir := isolate(t)
	envFile := filepath.Join(dir, "test.env")
	writeConfig(t, envFile, "OCRBENCH_CLIENT_ENDPOINT=http://from-dotenv:8000\nOCRBENCH_BENCHMARK_BATCH_SIZE=3\n")

	t.Setenv("OCRBENCH_BENCHMARK_BATCH_SIZE", "7")
	t.Cleanup(func() { _ = os.Unsetenv("OCRBENCH_CLIENT_ENDPOINT") })

	cfg, err := NewLoaderWithViper(viper.New(), envFile).Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.Client.Endpoint != "http://from-dotenv:8000" {
		t.Errorf("Expected endpoint from dotenv, got %s", cfg.Client.Endpoint)
	}
	if cfg.Benchmark.BatchSize != 7 {
		t.Errorf("Expected process environment to win, got %d", cfg.Benchmark.BatchSize)
	}
}

func TestDotEnvFileMissingIsIgnored(t *testing.T) {
	dir := isolate(t)
	if _, err := NewLoaderWithViper(viper.New(), filepath.Join(dir, "absent.env")).Load(); err != nil {
		t.Errorf("Load() unexpected error: %v", err)
	}
}

func TestGenerateDefaultConfigFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "generated.yaml")

	if err := GenerateDefaultConfigFile(path); err != nil {
		t.Fatalf("GenerateDefaultConfigFile() error: %v", err)
	}

	cfg, err := NewLoaderWithViper(viper.New()).LoadWithFile(path)
	if err != nil {
		t.Fatalf("LoadWithFile() on generated file: %v", err)
	}
	if cfg.Client.Timeout != 5*time.Minute {
		t.Errorf("Expected timeout to round-trip, got %s", cfg.Client.Timeout)
	}
	if cfg.Evaluation.OutputBase != DefaultConfig().Evaluation.OutputBase {
		t.Errorf("Unexpected output base %s", cfg.Evaluation.OutputBase)
	}
}

func TestGetConfigSearchPaths(t *testing.T) {
	dir := isolate(t)
	paths := GetConfigSearchPaths()

	want := []string{".", dir, filepath.Join(dir, "xdg", "ocrbench"), "/etc/ocrbench"}
	if strings.Join(paths, "\n") != strings.Join(want, "\n") {
		t.Errorf("Expected %v, got %v", want, paths)
	}
}

func TestLoaderAccessors(t *testing.T) {
	isolate(t)
	loader := NewLoaderWithViper(viper.New())
	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	loader.Set("client.model_name", "oracle")
	if got := loader.GetString("client.model_name"); got != "oracle" {
		t.Errorf("Expected oracle, got %s", got)
	}
	if loader.Get("server.port") != 8080 {
		t.Errorf("Expected default port, got %v", loader.Get("server.port"))
	}
	if _, ok := loader.GetResolvedConfig()["engines"]; !ok {
		t.Error("Expected engines section in resolved config")
	}
	if loader.GetViper() == nil {
		t.Error("GetViper() returned nil")
	}
}
