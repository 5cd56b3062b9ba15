// Package evaluation drives an OCR endpoint over a dataset and scores its
// predictions against ground truth.
package evaluation

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MeKo-Tech/ocrbench/internal/dataset"
	"github.com/MeKo-Tech/ocrbench/internal/groundtruth"
	"github.com/MeKo-Tech/ocrbench/internal/match"
	"github.com/MeKo-Tech/ocrbench/internal/metrics"
	"github.com/MeKo-Tech/ocrbench/internal/ocrapi"
	"github.com/MeKo-Tech/ocrbench/internal/progress"
)

// Recognizer returns the predictions for one image. *ocrclient.Client satisfies it.
type Recognizer interface {
	Recognize(ctx context.Context, data []byte, filename string) ([]ocrapi.Prediction, error)
}

// Options configures an Evaluator.
type Options struct {
	// RecallOnly omits per-image precision and the cumulative precision and mAP.
	RecallOnly bool
	Normalizer match.Normalizer
	Progress   progress.Reporter
	Logger     *slog.Logger
}

// Evaluator scores one dataset against one endpoint. Images are processed
// sequentially in the order given.
type Evaluator struct {
	store  *groundtruth.Store
	client Recognizer
	opts   Options
	logger *slog.Logger
}

// New returns an evaluator.
func New(store *groundtruth.Store, client Recognizer, opts Options) *Evaluator {
	if opts.Progress == nil {
		opts.Progress = progress.NoOp{}
	}
	if opts.Normalizer == "" {
		opts.Normalizer = match.NormalizeNone
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{store: store, client: client, opts: opts, logger: logger}
}

// Run evaluates images. An image without ground truth, or for which the
// endpoint produced no predictions, is skipped and excluded from every
// aggregate. Per-image failures never stop the run; cancelling ctx does.
func (e *Evaluator) Run(ctx context.Context, images []dataset.Image) (*Report, error) {
	if e.store == nil || e.client == nil {
		return nil, errors.New("evaluator requires a ground-truth store and a recognizer")
	}

	agg := metrics.New()
	report := &Report{Entries: make([]Entry, 0, len(images))}
	seen := make(map[string]bool, len(images))
	reporter := e.opts.Progress

	reporter.OnStart(len(images))
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		key := img.Name
		if seen[key] {
			key = img.Path
			e.logger.Warn("Duplicate image name; scoring against the same ground truth",
				"image", img.Name, "path", img.Path)
		}
		seen[key] = true

		tally, reason, err := e.scoreImage(ctx, img)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		switch {
		case err != nil:
			reporter.OnError(key, err)
			e.skip(report, key, reason)
		case reason != "":
			e.skip(report, key, reason)
		default:
			agg.Fold(tally)
			report.Entries = append(report.Entries, Entry{Name: key, Result: e.imageResult(tally)})
			e.logger.Debug("Scored image", "image", key,
				"true_positives", tally.TruePositives, "false_negatives", tally.FalseNegatives,
				"predictions", tally.Predictions, "recall", tally.Recall(), "precision", tally.Precision())
		}
		reporter.OnItem(i+1, len(images), key)
	}
	reporter.OnComplete()

	report.Summary = agg.Finalize()
	report.Cumulative = e.cumulative(report.Summary)
	e.logger.Info("Evaluation complete",
		"images", len(images),
		"scored", report.Summary.Images,
		"skipped", len(report.Skipped),
		"recall", report.Summary.Recall,
		"precision", report.Summary.Precision,
		"mAP", report.Summary.MAP)
	return report, nil
}

// scoreImage returns a tally, or a skip reason with an optional cause.
func (e *Evaluator) scoreImage(ctx context.Context, img dataset.Image) (match.Tally, string, error) {
	gt := e.store.Lookup(img.Name)
	if len(gt) == 0 {
		return match.Tally{}, ReasonNoGroundTruth, nil
	}

	data, err := img.Read()
	if err != nil {
		return match.Tally{}, ReasonUnreadable, err
	}

	preds, err := e.client.Recognize(ctx, data, img.Name)
	if err != nil {
		return match.Tally{}, ReasonOCRFailed, err
	}
	if len(preds) == 0 {
		return match.Tally{}, ReasonNoPredictions, nil
	}

	return match.Score(preds, gt, match.WithNormalizer(e.opts.Normalizer)), "", nil
}

func (e *Evaluator) skip(report *Report, name, reason string) {
	report.Skipped = append(report.Skipped, Skip{Name: name, Reason: reason})
	e.opts.Progress.OnSkip(name, reason)
	e.logger.Info("Skipping image", "image", name, "reason", reason)
}

func (e *Evaluator) imageResult(t match.Tally) ImageResult {
	r := ImageResult{
		Recall:         t.Recall(),
		TruePositives:  t.TruePositives,
		FalseNegatives: t.FalseNegatives,
	}
	if !e.opts.RecallOnly {
		p := t.Precision()
		r.Precision = &p
	}
	return r
}

func (e *Evaluator) cumulative(s metrics.Summary) Cumulative {
	c := Cumulative{
		Recall:         s.Recall,
		TruePositives:  s.TruePositives,
		FalseNegatives: s.FalseNegatives,
	}
	if !e.opts.RecallOnly {
		p, m := s.Precision, s.MAP
		c.Precision = &p
		c.MAP = &m
	}
	return c
}
