package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "ocrbench"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "OCRBENCH"

	// DotEnvFile is read from the working directory before the environment is consulted.
	DotEnvFile = ".env"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v        *viper.Viper
	envFiles []string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	// Use the global viper instance to ensure flag bindings work
	return &Loader{v: viper.GetViper(), envFiles: []string{DotEnvFile}}
}

// NewLoaderWithViper creates a loader around v, reading the given dotenv
// files. Tests use it to avoid the global viper instance.
func NewLoaderWithViper(v *viper.Viper, envFiles ...string) *Loader {
	return &Loader{v: v, envFiles: envFiles}
}

// Load loads configuration from files, environment variables, and sets defaults.
// It returns the loaded configuration and any error encountered.
func (l *Loader) Load() (*Config, error) {
	return l.load("", true)
}

// LoadWithoutValidation loads configuration without validating it.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	return l.load("", false)
}

// LoadWithFile loads configuration from a specific file path.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	return l.load(configFile, true)
}

// LoadWithFileWithoutValidation loads configuration from a specific file path without validation.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	return l.load(configFile, false)
}

func (l *Loader) load(configFile string, validate bool) (*Config, error) {
	if err := l.loadDotEnv(); err != nil {
		return nil, err
	}

	if configFile != "" {
		// Check if file exists
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml") // Primary format, but viper supports multiple formats
		l.addConfigPaths()
	}

	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if configFile != "" {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		// It's okay if config file doesn't exist, we'll use defaults and env vars
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if validate {
		if err := config.Validate(); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}

	return &config, nil
}

// loadDotEnv exports variables from the dotenv files. Variables already set
// in the process environment win. Missing files are ignored.
func (l *Loader) loadDotEnv() error {
	for _, file := range l.envFiles {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("error reading env file %s: %w", file, err)
		}
	}
	return nil
}

// Get returns a value from the configuration.
func (l *Loader) Get(key string) any {
	return l.v.Get(key)
}

// GetString returns a string value from the configuration.
func (l *Loader) GetString(key string) string {
	return l.v.GetString(key)
}

// Set sets a value in the configuration.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance for advanced usage.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// addConfigPaths adds the standard configuration search paths.
func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

// setupEnvironmentVariables configures environment variable handling.
func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()

	// OCRBENCH_CLIENT_ENDPOINT maps to client.endpoint
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults sets default values for all configuration options.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("verbose", d.Verbose)

	l.v.SetDefault("client.endpoint", d.Client.Endpoint)
	l.v.SetDefault("client.model_name", d.Client.ModelName)
	l.v.SetDefault("client.sample_rate", d.Client.SampleRate)
	l.v.SetDefault("client.logging_enabled", d.Client.LoggingEnabled)
	l.v.SetDefault("client.filter", d.Client.Filter)
	l.v.SetDefault("client.timeout", d.Client.Timeout)
	l.v.SetDefault("client.max_attempts", d.Client.MaxAttempts)
	l.v.SetDefault("client.base_delay", d.Client.BaseDelay)
	l.v.SetDefault("client.max_delay", d.Client.MaxDelay)

	l.v.SetDefault("evaluation.ground_truth", d.Evaluation.GroundTruth)
	l.v.SetDefault("evaluation.images", d.Evaluation.Images)
	l.v.SetDefault("evaluation.recursive", d.Evaluation.Recursive)
	l.v.SetDefault("evaluation.include", d.Evaluation.Include)
	l.v.SetDefault("evaluation.exclude", d.Evaluation.Exclude)
	l.v.SetDefault("evaluation.key_prefix", d.Evaluation.KeyPrefix)
	l.v.SetDefault("evaluation.recall_only", d.Evaluation.RecallOnly)
	l.v.SetDefault("evaluation.normalizer", d.Evaluation.Normalizer)
	l.v.SetDefault("evaluation.output_dir", d.Evaluation.OutputDir)
	l.v.SetDefault("evaluation.output_base", d.Evaluation.OutputBase)

	l.v.SetDefault("benchmark.batch_size", d.Benchmark.BatchSize)
	l.v.SetDefault("benchmark.output", d.Benchmark.Output)

	l.v.SetDefault("server.host", d.Server.Host)
	l.v.SetDefault("server.port", d.Server.Port)
	l.v.SetDefault("server.cors_origin", d.Server.CORSOrigin)
	l.v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	l.v.SetDefault("server.max_request_mb", d.Server.MaxRequestMB)
	l.v.SetDefault("server.timeout_sec", d.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	l.v.SetDefault("engines.enabled", d.Engines.Enabled)
	l.v.SetDefault("engines.default", d.Engines.Default)
	l.v.SetDefault("engines.tesseract.languages", d.Engines.Tesseract.Languages)
	l.v.SetDefault("engines.tesseract.psm", d.Engines.Tesseract.PageSegMode)
	l.v.SetDefault("engines.tesseract.min_confidence", d.Engines.Tesseract.MinConfidence)
	l.v.SetDefault("engines.tesseract.grayscale", d.Engines.Tesseract.Grayscale)
	l.v.SetDefault("engines.tesseract.min_height", d.Engines.Tesseract.MinHeight)
	l.v.SetDefault("engines.tesseract.sharpen", d.Engines.Tesseract.Sharpen)
	l.v.SetDefault("engines.documentai.project_id", d.Engines.DocumentAI.ProjectID)
	l.v.SetDefault("engines.documentai.location", d.Engines.DocumentAI.Location)
	l.v.SetDefault("engines.documentai.processor_id", d.Engines.DocumentAI.ProcessorID)
	l.v.SetDefault("engines.documentai.credentials_file", d.Engines.DocumentAI.CredentialsFile)
	l.v.SetDefault("engines.documentai.endpoint", d.Engines.DocumentAI.Endpoint)
	l.v.SetDefault("engines.oracle.ground_truth", d.Engines.Oracle.GroundTruth)

	l.v.SetDefault("cache.backend", d.Cache.Backend)
	l.v.SetDefault("cache.redis_url", d.Cache.RedisURL)
	l.v.SetDefault("cache.prefix", d.Cache.Prefix)
	l.v.SetDefault("cache.ttl", d.Cache.TTL)
}

// GetResolvedConfig returns the current resolved configuration for debugging.
func (l *Loader) GetResolvedConfig() map[string]any {
	return l.v.AllSettings()
}

// WriteConfigToFile writes the current configuration to a file.
func (l *Loader) WriteConfigToFile(filename string) error {
	return l.v.WriteConfigAs(filename)
}

// GenerateDefaultConfigFile writes the defaults to filename (ocrbench.yaml when empty).
func GenerateDefaultConfigFile(filename string) error {
	loader := NewLoaderWithViper(viper.New())
	loader.setDefaults()

	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}

	return loader.WriteConfigToFile(filename)
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
	}

	// XDG config directory
	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		paths = append(paths, filepath.Join(configDir, ConfigFileName))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigFileName))
	}

	return append(paths, "/etc/"+ConfigFileName)
}
