// Package metrics accumulates per-image match tallies into dataset-level scores.
package metrics

import (
	"sync"

	"github.com/MeKo-Tech/ocrbench/internal/match"
)

// Summary is the dataset-level result.
type Summary struct {
	Recall         float64 `json:"recall"`
	Precision      float64 `json:"precision"`
	MAP            float64 `json:"mAP"`
	TruePositives  int     `json:"true_positives"`
	FalseNegatives int     `json:"false_negatives"`
	Predictions    int     `json:"predictions"`
	Images         int     `json:"images"`
}

// Aggregator folds tallies. The zero value is ready to use and safe for concurrent Fold calls.
type Aggregator struct {
	mu          sync.Mutex
	tp, fn      int
	predictions int
	precisions  []float64
}

// New returns an empty aggregator.
func New() *Aggregator {
	return &Aggregator{}
}

// Fold adds one image's tally.
func (a *Aggregator) Fold(t match.Tally) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.tp += t.TruePositives
	a.fn += t.FalseNegatives
	a.predictions += t.Predictions
	a.precisions = append(a.precisions, t.Precision())
}

// Images returns the number of folded tallies.
func (a *Aggregator) Images() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.precisions)
}

// Finalize computes the summary. It does not change the accumulated totals and
// may be called any number of times.
func (a *Aggregator) Finalize() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Summary{
		TruePositives:  a.tp,
		FalseNegatives: a.fn,
		Predictions:    a.predictions,
		Images:         len(a.precisions),
	}
	if den := a.tp + a.fn; den > 0 {
		s.Recall = float64(a.tp) / float64(den)
	}
	if a.predictions > 0 {
		s.Precision = float64(a.tp) / float64(a.predictions)
	}
	if len(a.precisions) > 0 {
		var sum float64
		for _, p := range a.precisions {
			sum += p
		}
		s.MAP = sum / float64(len(a.precisions))
	}
	return s
}
