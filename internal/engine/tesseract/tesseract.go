//go:build tesseract

package tesseract

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"sync"

	"github.com/MeKo-Tech/ocrbench/internal/engine"
	"github.com/MeKo-Tech/ocrbench/internal/ocrapi"
	"github.com/otiai10/gosseract/v2"
)

// Available reports whether Tesseract support is compiled in.
func Available() bool { return true }

// Engine recognizes words with a pool of Tesseract clients.
type Engine struct {
	pool   *sync.Pool
	opts   Options
	logger *slog.Logger
}

// New validates opts against the installed language data and returns an engine.
func New(opts Options, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	probe := gosseract.NewClient()
	if err := configure(probe, opts); err != nil {
		_ = probe.Close()
		return nil, err
	}
	_ = probe.Close()

	pool := &sync.Pool{
		New: func() any {
			c := gosseract.NewClient()
			_ = configure(c, opts)
			return c
		},
	}
	return &Engine{pool: pool, opts: opts, logger: logger}, nil
}

func configure(c *gosseract.Client, opts Options) error {
	if len(opts.Languages) > 0 {
		if err := c.SetLanguage(opts.Languages...); err != nil {
			return fmt.Errorf("failed to set languages %v: %w", opts.Languages, err)
		}
	}
	if opts.PageSegMode > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(opts.PageSegMode)); err != nil {
			return fmt.Errorf("failed to set page segmentation mode %d: %w", opts.PageSegMode, err)
		}
	}
	return nil
}

// Factory builds the engine on first use.
func Factory(opts Options, logger *slog.Logger) engine.Factory {
	return func(context.Context) (engine.Recognizer, error) {
		return New(opts, logger)
	}
}

// Recognize returns one prediction per recognized word.
func (e *Engine) Recognize(ctx context.Context, data []byte, opts engine.RequestOptions) ([]ocrapi.Prediction, error) {
	processed, scale, err := Preprocess(data, e.opts.Preprocess)
	if err != nil {
		return nil, err
	}

	type result struct {
		preds []ocrapi.Prediction
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		c := e.pool.Get().(*gosseract.Client)
		defer e.pool.Put(c)
		preds, err := e.words(c, processed, scale)
		ch <- result{preds, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.err == nil && opts.LoggingEnabled {
			e.logger.Info("Tesseract recognized words", "file", opts.FileName, "words", len(res.preds))
		}
		return res.preds, res.err
	}
}

func (e *Engine) words(c *gosseract.Client, data []byte, scale float64) ([]ocrapi.Prediction, error) {
	if err := c.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("failed to recognize words: %w", err)
	}

	preds := make([]ocrapi.Prediction, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" || b.Confidence < e.opts.MinConfidence {
			continue
		}
		preds = append(preds, ocrapi.Prediction{Text: text, BoundingBox: rectPolygon(b.Box, scale)})
	}
	return preds, nil
}

func rectPolygon(r image.Rectangle, scale float64) ocrapi.Polygon {
	return ocrapi.RectPolygon(
		float64(r.Min.X)*scale, float64(r.Min.Y)*scale,
		float64(r.Max.X)*scale, float64(r.Max.Y)*scale,
	)
}

// Close is a no-op; pooled clients are released by the garbage collector.
func (e *Engine) Close() error { return nil }
