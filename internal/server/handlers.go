package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/ocrbench/internal/engine"
	"github.com/MeKo-Tech/ocrbench/internal/ocrapi"
	"github.com/MeKo-Tech/ocrbench/internal/version"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true, ".webm": true, ".m4v": true,
}

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

// modelsHandler lists the accepted model_name values.
func (s *Server) modelsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	names := s.engines.Names()
	s.writeJSON(w, http.StatusOK, ModelsResponse{
		Models:  names,
		Default: s.engines.Default(),
		Count:   len(names),
	})
}

// ocrRequest is a validated /ocr form.
type ocrRequest struct {
	model      string
	sampleRate int
	opts       engine.RequestOptions
	uploads    []upload
}

type upload struct {
	name string
	data []byte
}

// ocrHandler accepts one or more files and answers with one result per file.
func (s *Server) ocrHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := s.parseOCRRequest(w, r)
	if err != nil {
		ocrRequestsTotal.WithLabelValues("http", "rejected").Inc()
		s.writeErrorResponse(w, err.Error(), statusFor(err))
		return
	}

	logger := s.logger.With("request_id", requestIDFrom(r.Context()), "model", req.model)
	if req.opts.LoggingEnabled {
		logger.Info("OCR request received", "files", len(req.uploads), "sample_rate", req.sampleRate)
	}

	results := make([]ocrapi.FileResult, 0, len(req.uploads))
	for _, up := range req.uploads {
		opts := req.opts
		opts.FileName = up.name
		res, err := s.recognize(r.Context(), req.model, up.data, opts)
		if err != nil {
			ocrRequestsTotal.WithLabelValues("http", "error").Inc()
			logger.Error("OCR processing failed", "file", up.name, "error", err)
			s.writeErrorResponse(w, fmt.Sprintf("OCR processing failed: %v", err), http.StatusInternalServerError)
			return
		}
		results = append(results, res)
	}

	ocrRequestsTotal.WithLabelValues("http", "success").Inc()
	if req.opts.LoggingEnabled {
		logger.Info("OCR request completed", "files", len(results))
	}
	s.writeJSON(w, http.StatusOK, results)
}

// parseOCRRequest reads and validates every field and file before any
// recognition starts.
func (s *Server) parseOCRRequest(w http.ResponseWriter, r *http.Request) (*ocrRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxRequestBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &FileTooLargeError{File: "request", Size: r.ContentLength, Limit: tooLarge.Limit}
		}
		return nil, fmt.Errorf("failed to parse form data: %w", err)
	}

	req := &ocrRequest{sampleRate: 1}

	if v := r.FormValue(ocrapi.FieldSampleRate); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("sample_rate must be a positive integer, got %q", v)
		}
		req.sampleRate = n
	}

	if v := r.FormValue(ocrapi.FieldLoggingEnabled); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("logging_enabled must be a boolean, got %q", v)
		}
		req.opts.LoggingEnabled = b
	}

	model, err := s.engines.Resolve(r.FormValue(ocrapi.FieldModelName))
	if err != nil {
		return nil, err
	}
	req.model = model

	headers := r.MultipartForm.File[ocrapi.FieldFiles]
	if len(headers) == 0 {
		return nil, errors.New("no files provided")
	}
	for _, fh := range headers {
		up, err := s.readUpload(fh)
		if err != nil {
			return nil, err
		}
		req.uploads = append(req.uploads, up)
	}
	return req, nil
}

func (s *Server) readUpload(fh *multipart.FileHeader) (upload, error) {
	name := filepath.Base(fh.Filename)
	if fh.Size > s.maxFileBytes {
		return upload{}, &FileTooLargeError{File: name, Size: fh.Size, Limit: s.maxFileBytes}
	}
	uploadSizeBytes.Observe(float64(fh.Size))

	f, err := fh.Open()
	if err != nil {
		return upload{}, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return upload{}, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := validateImage(name, fh.Header.Get("Content-Type"), data); err != nil {
		return upload{}, err
	}
	return upload{name: name, data: data}, nil
}

// validateImage accepts any still image format with a registered decoder.
func validateImage(name, contentType string, data []byte) error {
	if strings.HasPrefix(contentType, "video/") || videoExtensions[strings.ToLower(filepath.Ext(name))] {
		return &UnsupportedMediaError{File: name, Reason: "video uploads are not supported"}
	}
	if len(data) == 0 {
		return &UnsupportedMediaError{File: name, Reason: "empty file"}
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return &UnsupportedMediaError{File: name, Reason: "invalid image format"}
	}
	return nil
}

// recognize runs one image through the named engine.
func (s *Server) recognize(ctx context.Context, model string, data []byte, opts engine.RequestOptions) (ocrapi.FileResult, error) {
	rec, err := s.engines.Get(ctx, model)
	if err != nil {
		return ocrapi.FileResult{}, err
	}

	start := time.Now()
	preds, err := rec.Recognize(ctx, data, opts)
	elapsed := time.Since(start)
	if err != nil {
		return ocrapi.FileResult{}, err
	}
	if preds == nil {
		preds = []ocrapi.Prediction{}
	}

	ocrProcessingDuration.WithLabelValues(model).Observe(elapsed.Seconds())
	ocrPredictions.WithLabelValues(model).Observe(float64(len(preds)))

	return ocrapi.FileResult{
		FileName:              opts.FileName,
		ProcessingTimeSeconds: elapsed.Seconds(),
		OCRResults:            preds,
	}, nil
}

// statusFor maps request validation errors to HTTP status codes. Unknown
// models, bad fields and undecodable files are all client errors.
func statusFor(err error) int {
	var tooLarge *FileTooLargeError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, detail string, statusCode int) {
	s.writeJSON(w, statusCode, ocrapi.ErrorResponse{Detail: detail})
}
