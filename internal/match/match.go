// Package match scores OCR predictions against ground-truth annotations.
package match

import (
	"github.com/MeKo-Tech/ocrbench/internal/groundtruth"
	"github.com/MeKo-Tech/ocrbench/internal/ocrapi"
)

// Tally is the outcome of scoring one image. It is not modified after Score returns.
type Tally struct {
	TruePositives  int `json:"true_positives"`
	FalseNegatives int `json:"false_negatives"`
	Predictions    int `json:"predictions"`
}

// Recall is TP / (TP + FN), or 0 when the image had no annotations.
func (t Tally) Recall() float64 {
	den := t.TruePositives + t.FalseNegatives
	if den == 0 {
		return 0
	}
	return float64(t.TruePositives) / float64(den)
}

// Precision is TP / predictions, or 0 when nothing was predicted.
// A single prediction satisfies every equal annotation, so the value can exceed 1.
func (t Tally) Precision() float64 {
	if t.Predictions == 0 {
		return 0
	}
	return float64(t.TruePositives) / float64(t.Predictions)
}

// Options configures Score.
type Options struct {
	Normalizer Normalizer
}

// Option mutates Options.
type Option func(*Options)

// WithNormalizer compares texts after applying n to both sides.
func WithNormalizer(n Normalizer) Option {
	return func(o *Options) { o.Normalizer = n }
}

// Score counts each annotation whose text occurs among the predicted texts as a
// true positive and every other annotation as a false negative. Predictions are
// treated as a set: one predicted "5" matches every annotation reading "5".
func Score(preds []ocrapi.Prediction, gt []groundtruth.Annotation, opts ...Option) Tally {
	o := Options{Normalizer: NormalizeNone}
	for _, opt := range opts {
		opt(&o)
	}
	norm := o.Normalizer.Func()

	seen := make(map[string]struct{}, len(preds))
	for _, p := range preds {
		seen[norm(p.Text)] = struct{}{}
	}

	tally := Tally{Predictions: len(preds)}
	for _, a := range gt {
		if _, ok := seen[norm(a.Text)]; ok {
			tally.TruePositives++
		} else {
			tally.FalseNegatives++
		}
	}
	return tally
}
