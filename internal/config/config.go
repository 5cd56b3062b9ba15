package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/ocrbench/internal/benchmark"
	"github.com/MeKo-Tech/ocrbench/internal/cache"
	"github.com/MeKo-Tech/ocrbench/internal/dataset"
	"github.com/MeKo-Tech/ocrbench/internal/engine"
	"github.com/MeKo-Tech/ocrbench/internal/engine/docai"
	"github.com/MeKo-Tech/ocrbench/internal/engine/tesseract"
	"github.com/MeKo-Tech/ocrbench/internal/evaluation"
	"github.com/MeKo-Tech/ocrbench/internal/groundtruth"
	"github.com/MeKo-Tech/ocrbench/internal/match"
	"github.com/MeKo-Tech/ocrbench/internal/ocrclient"
	"github.com/MeKo-Tech/ocrbench/internal/server"
)

// EngineNames lists the recognizers the serve command can register.
var EngineNames = []string{tesseract.Name, docai.Name, engine.OracleName}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	tess := tesseract.DefaultOptions()
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Client: ClientConfig{
			Filter:      string(ocrclient.FilterNone),
			Timeout:     ocrclient.DefaultTimeout,
			MaxAttempts: ocrclient.DefaultMaxAttempts,
			BaseDelay:   ocrclient.DefaultBaseDelay,
			MaxDelay:    ocrclient.DefaultMaxDelay,
		},
		Evaluation: EvaluationConfig{
			GroundTruth: "benchmark_dataset/ground_truth.json",
			Images:      []string{"benchmark_dataset/images"},
			Include:     dataset.DefaultInclude,
			Exclude:     []string{},
			KeyPrefix:   groundtruth.DefaultKeyPrefix,
			Normalizer:  string(match.NormalizeNone),
			OutputDir:   ".",
			OutputBase:  "precision_recall_map_results",
		},
		Benchmark: BenchmarkConfig{
			BatchSize: benchmark.DefaultBatchSize,
			Output:    "ocr_benchmark_results.json",
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     100,
			MaxRequestMB:    server.DefaultMaxRequestMB,
			TimeoutSec:      300,
			ShutdownTimeout: 10,
		},
		Engines: EnginesConfig{
			Enabled: []string{tesseract.Name},
			Tesseract: TesseractConfig{
				Languages:     tess.Languages,
				PageSegMode:   tess.PageSegMode,
				MinConfidence: tess.MinConfidence,
				Grayscale:     tess.Preprocess.Grayscale,
				MinHeight:     tess.Preprocess.MinHeight,
				Sharpen:       tess.Preprocess.Sharpen,
			},
			DocumentAI: DocumentAIConfig{
				Location: "us",
			},
		},
		Cache: CacheConfig{
			Backend: "none",
			Prefix:  cache.DefaultRedisPrefix,
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	// Validate log level
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if err := c.validateClient(); err != nil {
		return err
	}

	if _, err := match.ParseNormalizer(c.Evaluation.Normalizer); err != nil {
		return fmt.Errorf("invalid evaluation.normalizer: %w", err)
	}
	if c.Evaluation.OutputBase == "" {
		return fmt.Errorf("evaluation.output_base must not be empty")
	}

	if c.Benchmark.BatchSize < 1 {
		return fmt.Errorf("invalid benchmark batch size: %d (must be at least 1)", c.Benchmark.BatchSize)
	}

	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateEngines(); err != nil {
		return err
	}

	validBackends := []string{"none", "memory", "redis"}
	if !slices.Contains(validBackends, c.Cache.Backend) {
		return fmt.Errorf("invalid cache backend: %s (must be one of: %s)", c.Cache.Backend, strings.Join(validBackends, ", "))
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisURL == "" {
		return fmt.Errorf("cache.redis_url is required for the redis backend")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("invalid cache ttl: %s (must not be negative)", c.Cache.TTL)
	}

	return nil
}

func (c *Config) validateClient() error {
	if c.Client.SampleRate < 0 {
		return fmt.Errorf("invalid client sample rate: %d (must not be negative)", c.Client.SampleRate)
	}
	if c.Client.MaxAttempts < 0 {
		return fmt.Errorf("invalid client max attempts: %d (must not be negative)", c.Client.MaxAttempts)
	}
	for name, d := range map[string]time.Duration{
		"timeout":    c.Client.Timeout,
		"base_delay": c.Client.BaseDelay,
		"max_delay":  c.Client.MaxDelay,
	} {
		if d < 0 {
			return fmt.Errorf("invalid client.%s: %s (must not be negative)", name, d)
		}
	}
	if _, err := ocrclient.ParseFilter(c.Client.Filter); err != nil {
		return fmt.Errorf("invalid client.filter: %w", err)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.MaxRequestMB < 0 {
		return fmt.Errorf("invalid max request size: %d (must not be negative)", c.Server.MaxRequestMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid shutdown timeout: %d (must not be negative)", c.Server.ShutdownTimeout)
	}
	return nil
}

func (c *Config) validateEngines() error {
	e := c.Engines
	seen := make(map[string]bool, len(e.Enabled))
	for _, name := range e.Enabled {
		if !slices.Contains(EngineNames, name) {
			return fmt.Errorf("invalid engine: %s (must be one of: %s)", name, strings.Join(EngineNames, ", "))
		}
		if seen[name] {
			return fmt.Errorf("engine %s enabled twice", name)
		}
		seen[name] = true
	}
	if e.Default != "" && !seen[e.Default] {
		return fmt.Errorf("default engine %s is not enabled", e.Default)
	}

	if seen[tesseract.Name] {
		if len(e.Tesseract.Languages) == 0 {
			return fmt.Errorf("engines.tesseract.languages must not be empty")
		}
		if e.Tesseract.PageSegMode < 0 || e.Tesseract.PageSegMode > 13 {
			return fmt.Errorf("invalid engines.tesseract.psm: %d (must be between 0 and 13)", e.Tesseract.PageSegMode)
		}
		if e.Tesseract.MinConfidence < 0 || e.Tesseract.MinConfidence > 100 {
			return fmt.Errorf("invalid engines.tesseract.min_confidence: %.2f (must be between 0 and 100)", e.Tesseract.MinConfidence)
		}
	}
	if seen[docai.Name] {
		if err := c.DocumentAIOptions().Validate(); err != nil {
			return fmt.Errorf("invalid engines.documentai: %w", err)
		}
	}
	if seen[engine.OracleName] && e.Oracle.GroundTruth == "" {
		return fmt.Errorf("engines.oracle.ground_truth is required when the oracle engine is enabled")
	}
	return nil
}

// ClientOptions converts the client section to ocrclient options.
func (c *Config) ClientOptions() (ocrclient.Options, error) {
	filter, err := ocrclient.ParseFilter(c.Client.Filter)
	if err != nil {
		return ocrclient.Options{}, err
	}
	return ocrclient.Options{
		Endpoint:       c.Client.Endpoint,
		ModelName:      c.Client.ModelName,
		SampleRate:     c.Client.SampleRate,
		LoggingEnabled: c.Client.LoggingEnabled,
		Filter:         filter,
		Timeout:        c.Client.Timeout,
		MaxAttempts:    c.Client.MaxAttempts,
		BaseDelay:      c.Client.BaseDelay,
		MaxDelay:       c.Client.MaxDelay,
	}, nil
}

// EvaluationOptions converts the evaluation section to evaluator options.
func (c *Config) EvaluationOptions() (evaluation.Options, error) {
	n, err := match.ParseNormalizer(c.Evaluation.Normalizer)
	if err != nil {
		return evaluation.Options{}, err
	}
	return evaluation.Options{RecallOnly: c.Evaluation.RecallOnly, Normalizer: n}, nil
}

// DatasetOptions converts the evaluation section to image discovery options.
func (c *Config) DatasetOptions() dataset.Options {
	return dataset.Options{
		Recursive: c.Evaluation.Recursive,
		Include:   c.Evaluation.Include,
		Exclude:   c.Evaluation.Exclude,
	}
}

// GroundTruthOptions returns the store options for the evaluation section.
func (c *Config) GroundTruthOptions() []groundtruth.Option {
	if c.Evaluation.KeyPrefix == groundtruth.DefaultKeyPrefix {
		return nil
	}
	return []groundtruth.Option{groundtruth.WithKeyPrefix(c.Evaluation.KeyPrefix)}
}

// EvaluationOutputPath returns "<output_dir>/<output_base>_<service>.json".
func (c *Config) EvaluationOutputPath() (string, error) {
	name, err := evaluation.OutputName(c.Evaluation.OutputBase, c.Client.Endpoint)
	if err != nil {
		return "", err
	}
	return filepath.Join(c.Evaluation.OutputDir, name), nil
}

// ServerOptions converts the server section to server.Config.
func (c *Config) ServerOptions() server.Config {
	return server.Config{
		Host:         c.Server.Host,
		Port:         c.Server.Port,
		CORSOrigin:   c.Server.CORSOrigin,
		MaxUploadMB:  int64(c.Server.MaxUploadMB),
		MaxRequestMB: int64(c.Server.MaxRequestMB),
		TimeoutSec:   c.Server.TimeoutSec,
	}
}

// TesseractOptions converts the tesseract section.
func (c *Config) TesseractOptions() tesseract.Options {
	t := c.Engines.Tesseract
	return tesseract.Options{
		Languages:     t.Languages,
		PageSegMode:   t.PageSegMode,
		MinConfidence: t.MinConfidence,
		Preprocess: tesseract.PreprocessOptions{
			Grayscale: t.Grayscale,
			MinHeight: t.MinHeight,
			Sharpen:   t.Sharpen,
		},
	}
}

// DocumentAIOptions converts the documentai section.
func (c *Config) DocumentAIOptions() docai.Options {
	d := c.Engines.DocumentAI
	return docai.Options{
		ProjectID:       d.ProjectID,
		Location:        d.Location,
		ProcessorID:     d.ProcessorID,
		CredentialsFile: d.CredentialsFile,
		Endpoint:        d.Endpoint,
	}
}

// CacheOptions converts the cache section.
func (c *Config) CacheOptions() cache.Config {
	return cache.Config{
		Backend:  c.Cache.Backend,
		RedisURL: c.Cache.RedisURL,
		Prefix:   c.Cache.Prefix,
		TTL:      c.Cache.TTL,
	}
}
