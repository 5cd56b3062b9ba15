//nolint:lll
package config

import "time"

// Config represents the complete configuration for the ocrbench application.
// It includes settings for all commands (evaluate, benchmark, serve) and
// supports loading from configuration files, environment variables, and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Endpoint client (evaluate and benchmark)
	Client ClientConfig `mapstructure:"client" yaml:"client" json:"client"`

	// Evaluation run
	Evaluation EvaluationConfig `mapstructure:"evaluation" yaml:"evaluation" json:"evaluation"`

	// Latency benchmark
	Benchmark BenchmarkConfig `mapstructure:"benchmark" yaml:"benchmark" json:"benchmark"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// Recognizers exposed by the server
	Engines EnginesConfig `mapstructure:"engines" yaml:"engines" json:"engines"`

	// Prediction cache used by the client
	Cache CacheConfig `mapstructure:"cache" yaml:"cache" json:"cache"`
}

// ClientConfig contains settings for talking to an OCR endpoint.
type ClientConfig struct {
	Endpoint       string        `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	ModelName      string        `mapstructure:"model_name" yaml:"model_name" json:"model_name"`
	SampleRate     int           `mapstructure:"sample_rate" yaml:"sample_rate" json:"sample_rate"`
	LoggingEnabled bool          `mapstructure:"logging_enabled" yaml:"logging_enabled" json:"logging_enabled"`
	Filter         string        `mapstructure:"filter" yaml:"filter" json:"filter"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts" yaml:"max_attempts" json:"max_attempts"`
	BaseDelay      time.Duration `mapstructure:"base_delay" yaml:"base_delay" json:"base_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay" yaml:"max_delay" json:"max_delay"`
}

// EvaluationConfig contains dataset and report settings for the evaluate command.
type EvaluationConfig struct {
	GroundTruth string   `mapstructure:"ground_truth" yaml:"ground_truth" json:"ground_truth"`
	Images      []string `mapstructure:"images" yaml:"images" json:"images"`
	Recursive   bool     `mapstructure:"recursive" yaml:"recursive" json:"recursive"`
	Include     []string `mapstructure:"include" yaml:"include" json:"include"`
	Exclude     []string `mapstructure:"exclude" yaml:"exclude" json:"exclude"`
	KeyPrefix   string   `mapstructure:"key_prefix" yaml:"key_prefix" json:"key_prefix"`
	RecallOnly  bool     `mapstructure:"recall_only" yaml:"recall_only" json:"recall_only"`
	Normalizer  string   `mapstructure:"normalizer" yaml:"normalizer" json:"normalizer"`
	OutputDir   string   `mapstructure:"output_dir" yaml:"output_dir" json:"output_dir"`
	OutputBase  string   `mapstructure:"output_base" yaml:"output_base" json:"output_base"`
}

// BenchmarkConfig contains settings for the benchmark command.
type BenchmarkConfig struct {
	BatchSize int    `mapstructure:"batch_size" yaml:"batch_size" json:"batch_size"`
	Output    string `mapstructure:"output" yaml:"output" json:"output"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	MaxRequestMB    int    `mapstructure:"max_request_mb" yaml:"max_request_mb" json:"max_request_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// EnginesConfig selects and configures the recognizers.
type EnginesConfig struct {
	// Enabled lists the engines to register, in registration order.
	Enabled []string `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	// Default is used when a request names no model; the first enabled engine when empty.
	Default string `mapstructure:"default" yaml:"default" json:"default"`

	Tesseract  TesseractConfig  `mapstructure:"tesseract" yaml:"tesseract" json:"tesseract"`
	DocumentAI DocumentAIConfig `mapstructure:"documentai" yaml:"documentai" json:"documentai"`
	Oracle     OracleConfig     `mapstructure:"oracle" yaml:"oracle" json:"oracle"`
}

// TesseractConfig contains Tesseract settings.
type TesseractConfig struct {
	Languages     []string `mapstructure:"languages" yaml:"languages" json:"languages"`
	PageSegMode   int      `mapstructure:"psm" yaml:"psm" json:"psm"`
	MinConfidence float64  `mapstructure:"min_confidence" yaml:"min_confidence" json:"min_confidence"`

	// Preprocessing
	Grayscale bool    `mapstructure:"grayscale" yaml:"grayscale" json:"grayscale"`
	MinHeight int     `mapstructure:"min_height" yaml:"min_height" json:"min_height"`
	Sharpen   float64 `mapstructure:"sharpen" yaml:"sharpen" json:"sharpen"`
}

// DocumentAIConfig names a Google Document AI processor.
type DocumentAIConfig struct {
	ProjectID       string `mapstructure:"project_id" yaml:"project_id" json:"project_id"`
	Location        string `mapstructure:"location" yaml:"location" json:"location"`
	ProcessorID     string `mapstructure:"processor_id" yaml:"processor_id" json:"processor_id"`
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file" json:"credentials_file"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
}

// OracleConfig points the oracle engine at a ground-truth file.
type OracleConfig struct {
	GroundTruth string `mapstructure:"ground_truth" yaml:"ground_truth" json:"ground_truth"`
}

// CacheConfig contains prediction cache settings.
type CacheConfig struct {
	Backend  string        `mapstructure:"backend" yaml:"backend" json:"backend"`
	RedisURL string        `mapstructure:"redis_url" yaml:"redis_url" json:"redis_url"`
	Prefix   string        `mapstructure:"prefix" yaml:"prefix" json:"prefix"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl" json:"ttl"`
}
