// Package server is a reference implementation of the OCR endpoint that the
// evaluation and benchmark commands drive.
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MeKo-Tech/ocrbench/internal/engine"
	"github.com/MeKo-Tech/ocrbench/internal/ocrapi"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	engines         *engine.Registry
	corsOrigin      string
	maxFileBytes    int64
	maxRequestBytes int64
	logger          *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Host         string
	Port         int
	CORSOrigin   string
	MaxUploadMB  int64 // per file
	MaxRequestMB int64 // whole multipart body
	TimeoutSec   int
	Logger       *slog.Logger
}

// DefaultMaxRequestMB bounds a multipart body when MaxRequestMB is unset.
const DefaultMaxRequestMB = 1024

// Response types for API endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

type ModelsResponse struct {
	Models  []string `json:"models"`
	Default string   `json:"default"`
	Count   int      `json:"count"`
}

// FileTooLargeError rejects an upload above the per-file limit.
type FileTooLargeError struct {
	File  string
	Size  int64
	Limit int64
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("file %s is %d bytes, limit is %d bytes", e.File, e.Size, e.Limit)
}

// UnsupportedMediaError rejects an upload that is not a decodable still image.
type UnsupportedMediaError struct {
	File   string
	Reason string
}

func (e *UnsupportedMediaError) Error() string {
	return fmt.Sprintf("file %s: %s", e.File, e.Reason)
}

// NewServer creates a new OCR server instance around a populated registry.
func NewServer(config Config, engines *engine.Registry) (*Server, error) {
	if engines == nil || len(engines.Names()) == 0 {
		return nil, errors.New("at least one OCR engine must be registered")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxUpload := config.MaxUploadMB * 1024 * 1024
	if maxUpload <= 0 {
		maxUpload = ocrapi.MaxFileSize
	}
	maxRequest := config.MaxRequestMB * 1024 * 1024
	if maxRequest <= 0 {
		maxRequest = DefaultMaxRequestMB * 1024 * 1024
	}
	if maxRequest < maxUpload {
		maxRequest = maxUpload + 1024*1024
	}

	return &Server{
		engines:         engines,
		corsOrigin:      config.CORSOrigin,
		maxFileBytes:    maxUpload,
		maxRequestBytes: maxRequest,
		logger:          logger,
	}, nil
}

// Close releases server resources.
func (s *Server) Close() error {
	return s.engines.Close()
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/models", s.corsMiddleware(s.modelsHandler))
	mux.HandleFunc("/ocr", s.corsMiddleware(s.requestIDMiddleware(s.ocrHandler)))
	mux.HandleFunc("/ws/ocr", s.ocrWebSocketHandler)
	mux.Handle("/metrics", promhttp.Handler())
}
