// Package docai recognizes tokens with a Google Document AI OCR processor.
package docai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/MeKo-Tech/ocrbench/internal/engine"
	"github.com/MeKo-Tech/ocrbench/internal/ocrapi"
	"google.golang.org/api/option"
)

// Name is the registry name of the engine.
const Name = "documentai"

// Options identifies the processor.
type Options struct {
	ProjectID   string
	Location    string
	ProcessorID string
	// CredentialsFile defaults to the application default credentials.
	CredentialsFile string
	// Endpoint defaults to "<location>-documentai.googleapis.com:443".
	Endpoint string
}

// Validate checks that the processor is fully named.
func (o Options) Validate() error {
	var missing []string
	if o.ProjectID == "" {
		missing = append(missing, "project_id")
	}
	if o.Location == "" {
		missing = append(missing, "location")
	}
	if o.ProcessorID == "" {
		missing = append(missing, "processor_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("document ai processor incomplete, missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// ProcessorName returns the processor resource name.
func (o Options) ProcessorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", o.ProjectID, o.Location, o.ProcessorID)
}

// ProcessFunc sends one request to Document AI.
type ProcessFunc func(ctx context.Context, req *documentaipb.ProcessRequest) (*documentaipb.ProcessResponse, error)

// Engine wraps one processor client.
type Engine struct {
	opts    Options
	process ProcessFunc
	close   func() error
	logger  *slog.Logger
}

// New dials Document AI.
func New(ctx context.Context, opts Options, logger *slog.Logger) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("%s-documentai.googleapis.com:443", opts.Location)
	}
	clientOpts := []option.ClientOption{option.WithEndpoint(endpoint)}
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Document AI client: %w", err)
	}
	process := func(ctx context.Context, req *documentaipb.ProcessRequest) (*documentaipb.ProcessResponse, error) {
		return client.ProcessDocument(ctx, req)
	}
	return NewWithProcessor(opts, process, client.Close, logger), nil
}

// NewWithProcessor builds an engine around an existing transport.
func NewWithProcessor(opts Options, process ProcessFunc, closeFn func() error, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	return &Engine{opts: opts, process: process, close: closeFn, logger: logger}
}

// Factory dials Document AI on first use.
func Factory(opts Options, logger *slog.Logger) engine.Factory {
	return func(ctx context.Context) (engine.Recognizer, error) {
		return New(ctx, opts, logger)
	}
}

// Recognize returns one prediction per token of the first page.
func (e *Engine) Recognize(ctx context.Context, data []byte, opts engine.RequestOptions) ([]ocrapi.Prediction, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}
	req := &documentaipb.ProcessRequest{
		Name: e.opts.ProcessorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: http.DetectContentType(data),
			},
		},
		SkipHumanReview: true,
	}

	resp, err := e.process(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to process document: %w", err)
	}
	preds := Predictions(resp.GetDocument())
	if opts.LoggingEnabled {
		e.logger.Info("Document AI recognized tokens", "file", opts.FileName, "tokens", len(preds))
	}
	return preds, nil
}

// Close releases the client connection.
func (e *Engine) Close() error { return e.close() }

// Predictions converts the tokens of the first page. Pixel vertices are used
// when present, otherwise normalized vertices are scaled by the page dimension.
func Predictions(doc *documentaipb.Document) []ocrapi.Prediction {
	if doc == nil || len(doc.GetPages()) == 0 {
		return nil
	}
	page := doc.GetPages()[0]
	text := []rune(doc.GetText())

	preds := make([]ocrapi.Prediction, 0, len(page.GetTokens()))
	for _, tok := range page.GetTokens() {
		s := strings.TrimSpace(layoutText(tok.GetLayout(), text))
		if s == "" {
			continue
		}
		preds = append(preds, ocrapi.Prediction{
			Text:        s,
			BoundingBox: polygon(tok.GetLayout().GetBoundingPoly(), page.GetDimension()),
		})
	}
	return preds
}

func layoutText(layout *documentaipb.Document_Page_Layout, text []rune) string {
	var sb strings.Builder
	for _, seg := range layout.GetTextAnchor().GetTextSegments() {
		start, end := int(seg.GetStartIndex()), int(seg.GetEndIndex())
		start = max(0, min(start, len(text)))
		end = max(start, min(end, len(text)))
		sb.WriteString(string(text[start:end]))
	}
	return sb.String()
}

func polygon(poly *documentaipb.BoundingPoly, dim *documentaipb.Document_Page_Dimension) ocrapi.Polygon {
	if v := poly.GetVertices(); len(v) > 0 {
		out := make(ocrapi.Polygon, len(v))
		for i, p := range v {
			out[i] = ocrapi.Point{float64(p.GetX()), float64(p.GetY())}
		}
		return out
	}
	nv := poly.GetNormalizedVertices()
	if len(nv) == 0 || dim == nil {
		return nil
	}
	w, h := float64(dim.GetWidth()), float64(dim.GetHeight())
	out := make(ocrapi.Polygon, len(nv))
	for i, p := range nv {
		out[i] = ocrapi.Point{float64(p.GetX()) * w, float64(p.GetY()) * h}
	}
	return out
}
