// Package ocrclient talks to an OCR endpoint that accepts multipart image uploads
// on POST /ocr and answers with a JSON list of per-file results.
package ocrclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/ocrbench/internal/cache"
	"github.com/MeKo-Tech/ocrbench/internal/common"
	"github.com/MeKo-Tech/ocrbench/internal/ocrapi"
)

// DefaultTimeout bounds one call, retries included.
const DefaultTimeout = 5 * time.Minute

// Options configures a Client.
type Options struct {
	Endpoint       string // base URL; "/ocr" is appended when missing
	ModelName      string // sent as model_name when set
	SampleRate     int    // sent as sample_rate when > 0
	LoggingEnabled bool   // sent as logging_enabled=true when set
	Filter         Filter
	Timeout        time.Duration
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration

	// HTTPClient overrides the retrying client built from the fields above.
	HTTPClient *http.Client
	Cache      cache.Cache
	Logger     *slog.Logger
}

// File is one upload.
type File struct {
	Name string
	Data []byte
}

// Response is a raw endpoint answer.
type Response struct {
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Client sends images to one endpoint.
type Client struct {
	url        string
	opts       Options
	httpClient *http.Client
	logger     *slog.Logger
}

// New validates opts and builds a client.
func New(opts Options) (*Client, error) {
	u, err := OCRURL(opts.Endpoint)
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Filter == "" {
		opts.Filter = FilterNone
	}
	hc := opts.HTTPClient
	if hc == nil {
		rt := NewRetryTransport(http.DefaultTransport)
		if opts.MaxAttempts > 0 {
			rt.MaxAttempts = opts.MaxAttempts
		}
		if opts.BaseDelay > 0 {
			rt.BaseDelay = opts.BaseDelay
		}
		if opts.MaxDelay > 0 {
			rt.MaxDelay = opts.MaxDelay
		}
		rt.Logger = opts.Logger
		hc = &http.Client{Transport: rt}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{url: u, opts: opts, httpClient: hc, logger: logger}, nil
}

// OCRURL normalizes an endpoint to its /ocr URL.
func OCRURL(endpoint string) (string, error) {
	if endpoint == "" {
		return "", errors.New("endpoint is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid endpoint %q: scheme must be http or https", endpoint)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	if !strings.HasSuffix(u.Path, "/ocr") {
		u.Path += "/ocr"
	}
	return u.String(), nil
}

// URL returns the resolved /ocr URL.
func (c *Client) URL() string { return c.url }

// Options returns the effective options.
func (c *Client) Options() Options { return c.opts }

// Recognize uploads one image and returns its filtered predictions. Any failure
// yields no predictions and a *TransportError or *ParseError; the failure is
// already logged, so callers may simply move on to the next image.
func (c *Client) Recognize(ctx context.Context, data []byte, filename string) ([]ocrapi.Prediction, error) {
	var key string
	if c.opts.Cache != nil {
		key = cache.Key(data, c.opts.ModelName, c.url)
		if body, ok, err := c.opts.Cache.Get(ctx, key); err != nil {
			c.logger.Warn("prediction cache read failed", "file", filename, "error", err)
		} else if ok {
			if preds, err := ParsePredictions(body, filename); err == nil {
				clientRequestsTotal.WithLabelValues("cache_hit").Inc()
				return c.opts.Filter.Apply(preds), nil
			}
		}
	}

	resp, err := c.Send(ctx, []File{{Name: filename, Data: data}})
	if err != nil {
		c.logger.Warn("OCR request failed", "file", filename, "error", err)
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		terr := &TransportError{File: filename, StatusCode: resp.StatusCode, Detail: errorDetail(resp.Body)}
		c.logger.Warn("OCR service returned an error", "file", filename, "status", resp.StatusCode, "detail", terr.Detail)
		return nil, terr
	}

	preds, err := ParsePredictions(resp.Body, filename)
	if err != nil {
		clientRequestsTotal.WithLabelValues("parse_error").Inc()
		c.logger.Warn("failed to parse OCR response", "file", filename, "error", err)
		return nil, err
	}

	if c.opts.Cache != nil {
		if err := c.opts.Cache.Set(ctx, key, resp.Body); err != nil {
			c.logger.Warn("prediction cache write failed", "file", filename, "error", err)
		}
	}

	kept := c.opts.Filter.Apply(preds)
	if dropped := len(preds) - len(kept); dropped > 0 {
		c.logger.Debug("filtered predictions", "file", filename, "filter", string(c.opts.Filter),
			"dropped", dropped, "kept", len(kept))
	}
	return kept, nil
}

// Send posts files in a single multipart request and returns the raw answer.
// Only network failures and timeouts are errors; any HTTP status is a Response.
func (c *Client) Send(ctx context.Context, files []File) (*Response, error) {
	name := describeFiles(files)
	body, contentType, err := c.encode(files)
	if err != nil {
		return nil, &TransportError{File: name, Cause: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{File: name, Cause: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	timer := common.NewNamedTimer("ocr_request")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		clientRequestDuration.Observe(timer.Stop().Seconds())
		clientRequestsTotal.WithLabelValues("transport_error").Inc()
		return nil, &TransportError{File: name, Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	elapsed := timer.Stop()
	clientRequestDuration.Observe(elapsed.Seconds())
	if err != nil {
		clientRequestsTotal.WithLabelValues("transport_error").Inc()
		return nil, &TransportError{File: name, StatusCode: resp.StatusCode, Cause: err}
	}
	if resp.StatusCode == http.StatusOK {
		clientRequestsTotal.WithLabelValues("ok").Inc()
	} else {
		clientRequestsTotal.WithLabelValues("http_" + strconv.Itoa(resp.StatusCode)).Inc()
	}
	return &Response{StatusCode: resp.StatusCode, Body: data, Duration: elapsed}, nil
}

func (c *Client) encode(files []File) ([]byte, string, error) {
	if len(files) == 0 {
		return nil, "", errors.New("no files to send")
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`,
			ocrapi.FieldFiles, filepath.Base(f.Name)))
		h.Set("Content-Type", ContentType(f.Name))
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", err
		}
	}
	fields := map[string]string{}
	if c.opts.ModelName != "" {
		fields[ocrapi.FieldModelName] = c.opts.ModelName
	}
	if c.opts.SampleRate > 0 {
		fields[ocrapi.FieldSampleRate] = strconv.Itoa(c.opts.SampleRate)
	}
	if c.opts.LoggingEnabled {
		fields[ocrapi.FieldLoggingEnabled] = "true"
	}
	for _, k := range []string{ocrapi.FieldModelName, ocrapi.FieldSampleRate, ocrapi.FieldLoggingEnabled} {
		if v, ok := fields[k]; ok {
			if err := w.WriteField(k, v); err != nil {
				return nil, "", err
			}
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// ContentType derives an upload MIME type from a file name.
func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

func describeFiles(files []File) string {
	switch len(files) {
	case 0:
		return ""
	case 1:
		return files[0].Name
	default:
		return fmt.Sprintf("%s (+%d more)", files[0].Name, len(files)-1)
	}
}

func errorDetail(body []byte) string {
	var e ocrapi.ErrorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Detail != "" {
		return e.Detail
	}
	const maxLen = 200
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return s
}
