package engine

import (
	"context"
	"path/filepath"

	"github.com/MeKo-Tech/ocrbench/internal/groundtruth"
	"github.com/MeKo-Tech/ocrbench/internal/ocrapi"
)

// OracleName is the registry name of the ground-truth replaying engine.
const OracleName = "oracle"

// Oracle answers with the ground-truth texts of the uploaded file name. A
// scored run against it yields recall 1.0, which makes it a sanity check for
// the pipeline around the recognizer.
type Oracle struct {
	store *groundtruth.Store
}

// NewOracle replays store.
func NewOracle(store *groundtruth.Store) *Oracle {
	return &Oracle{store: store}
}

// OracleFactory loads the ground-truth file at path on first use.
func OracleFactory(path string) Factory {
	return func(context.Context) (Recognizer, error) {
		store, err := groundtruth.Load(path)
		if err != nil {
			return nil, err
		}
		return NewOracle(store), nil
	}
}

// Recognize returns one prediction per annotation. Annotations without a box
// get a synthetic row box.
func (o *Oracle) Recognize(ctx context.Context, _ []byte, opts RequestOptions) ([]ocrapi.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	annotations := o.store.Lookup(filepath.Base(opts.FileName))
	preds := make([]ocrapi.Prediction, 0, len(annotations))
	for i, a := range annotations {
		box := a.BoundingBox
		if len(box) == 0 {
			y := float64(i * 20)
			box = ocrapi.RectPolygon(0, y, 100, y+20)
		}
		preds = append(preds, ocrapi.Prediction{Text: a.Text, BoundingBox: box})
	}
	return preds, nil
}

// Close is a no-op.
func (o *Oracle) Close() error { return nil }
