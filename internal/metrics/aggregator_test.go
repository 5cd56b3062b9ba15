package metrics

import (
	"sync"
	"testing"

	"github.com/MeKo-Tech/ocrbench/internal/match"
	"github.com/stretchr/testify/assert"
)

func TestFinalize_Empty(t *testing.T) {
	s := New().Finalize()
	assert.Equal(t, Summary{}, s)
}

func TestFinalize_CumulativeRecall(t *testing.T) {
	agg := New()
	agg.Fold(match.Tally{TruePositives: 1, FalseNegatives: 1, Predictions: 1})
	agg.Fold(match.Tally{TruePositives: 2, FalseNegatives: 0, Predictions: 2})
	agg.Fold(match.Tally{TruePositives: 0, FalseNegatives: 1, Predictions: 3})

	s := agg.Finalize()
	assert.Equal(t, 3, s.TruePositives)
	assert.Equal(t, 2, s.FalseNegatives)
	assert.Equal(t, 6, s.Predictions)
	assert.Equal(t, 3, s.Images)
	assert.InDelta(t, 0.6, s.Recall, 1e-9)
	assert.InDelta(t, 0.5, s.Precision, 1e-9)
}

func TestFinalize_MeanAveragePrecision(t *testing.T) {
	agg := New()
	agg.Fold(match.Tally{TruePositives: 2, Predictions: 2})                    // 1.0
	agg.Fold(match.Tally{TruePositives: 1, FalseNegatives: 1, Predictions: 2}) // 0.5
	agg.Fold(match.Tally{FalseNegatives: 3, Predictions: 4})                   // 0.0

	assert.InDelta(t, 0.5, agg.Finalize().MAP, 1e-9)
}

func TestFinalize_Idempotent(t *testing.T) {
	agg := New()
	agg.Fold(match.Tally{TruePositives: 1, FalseNegatives: 2, Predictions: 4})

	first := agg.Finalize()
	second := agg.Finalize()
	assert.Equal(t, first, second)
	assert.Equal(t, 1, agg.Images())
}

func TestFold_Concurrent(t *testing.T) {
	var agg Aggregator
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			agg.Fold(match.Tally{TruePositives: 1, FalseNegatives: 1, Predictions: 2})
		}()
	}
	wg.Wait()

	s := agg.Finalize()
	assert.Equal(t, 50, s.Images)
	assert.Equal(t, 50, s.TruePositives)
	assert.InDelta(t, 0.5, s.Recall, 1e-9)
	assert.InDelta(t, 0.5, s.MAP, 1e-9)
}
