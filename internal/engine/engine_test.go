package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/MeKo-Tech/ocrbench/internal/groundtruth"
	"github.com/MeKo-Tech/ocrbench/internal/ocrapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRecognizer struct {
	closed atomic.Bool
}

func (s *stubRecognizer) Recognize(context.Context, []byte, RequestOptions) ([]ocrapi.Prediction, error) {
	return []ocrapi.Prediction{{Text: "stub"}}, nil
}

func (s *stubRecognizer) Close() error {
	s.closed.Store(true)
	return nil
}

func TestRegistry_DefaultAndNames(t *testing.T) {
	r := NewRegistry(nil)
	assert.Empty(t, r.Default())

	require.NoError(t, r.Register("tesseract", func(context.Context) (Recognizer, error) { return &stubRecognizer{}, nil }))
	require.NoError(t, r.Register("oracle", func(context.Context) (Recognizer, error) { return &stubRecognizer{}, nil }))

	assert.Equal(t, "tesseract", r.Default())
	assert.Equal(t, []string{"oracle", "tesseract"}, r.Names())

	require.NoError(t, r.SetDefault("oracle"))
	assert.Equal(t, "oracle", r.Default())

	err := r.SetDefault("paddle")
	var unsupported *UnsupportedModelError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "paddle", unsupported.Name)
	assert.Equal(t, []string{"oracle", "tesseract"}, unsupported.Supported)
}

func TestRegistry_RegisterErrors(t *testing.T) {
	r := NewRegistry(nil)
	factory := func(context.Context) (Recognizer, error) { return &stubRecognizer{}, nil }

	assert.Error(t, r.Register("", factory))
	assert.Error(t, r.Register("x", nil))
	require.NoError(t, r.Register("x", factory))
	assert.Error(t, r.Register("x", factory))
}

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register("a", func(context.Context) (Recognizer, error) { return &stubRecognizer{}, nil }))

	name, err := r.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "a", name)

	_, err = r.Resolve("b")
	var unsupported *UnsupportedModelError
	assert.ErrorAs(t, err, &unsupported)
	assert.Contains(t, err.Error(), `"b"`)
}

func TestRegistry_GetIsLazyAndShared(t *testing.T) {
	var builds atomic.Int32
	r := NewRegistry(nil)
	require.NoError(t, r.Register("a", func(context.Context) (Recognizer, error) {
		builds.Add(1)
		return &stubRecognizer{}, nil
	}))
	assert.Equal(t, int32(0), builds.Load())

	var wg sync.WaitGroup
	got := make([]Recognizer, 20)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := r.Get(context.Background(), "a")
			assert.NoError(t, err)
			got[i] = rec
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load())
	for _, rec := range got {
		assert.Same(t, got[0], rec)
	}
}

func TestRegistry_FailedInitIsRetried(t *testing.T) {
	var calls atomic.Int32
	r := NewRegistry(nil)
	require.NoError(t, r.Register("flaky", func(context.Context) (Recognizer, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("model file missing")
		}
		return &stubRecognizer{}, nil
	}))

	_, err := r.Get(context.Background(), "flaky")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model file missing")

	rec, err := r.Get(context.Background(), "flaky")
	require.NoError(t, err)
	assert.NotNil(t, rec)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRegistry_Close(t *testing.T) {
	stub := &stubRecognizer{}
	r := NewRegistry(nil)
	require.NoError(t, r.Register("a", func(context.Context) (Recognizer, error) { return stub, nil }))

	_, err := r.Get(context.Background(), "a")
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.True(t, stub.closed.Load())
}

func TestOracle(t *testing.T) {
	store, err := groundtruth.FromMap(map[string]any{
		"images/a.png": []any{
			map[string]any{"text": "5"},
			map[string]any{"text": "12", "bounding_box": []any{[]any{1, 2}, []any{3, 2}, []any{3, 4}, []any{1, 4}}},
		},
	})
	require.NoError(t, err)

	o := NewOracle(store)
	preds, err := o.Recognize(context.Background(), nil, RequestOptions{FileName: "a.png"})
	require.NoError(t, err)
	assert.Equal(t, []string{"5", "12"}, ocrapi.Texts(preds))
	assert.Equal(t, ocrapi.RectPolygon(0, 0, 100, 20), preds[0].BoundingBox)
	assert.Equal(t, ocrapi.Polygon{{1, 2}, {3, 2}, {3, 4}, {1, 4}}, preds[1].BoundingBox)

	preds, err = o.Recognize(context.Background(), nil, RequestOptions{FileName: "missing.png"})
	require.NoError(t, err)
	assert.Empty(t, preds)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = o.Recognize(ctx, nil, RequestOptions{FileName: "a.png"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOracleFactory(t *testing.T) {
	_, err := OracleFactory("/nonexistent/gt.json")(context.Background())
	var dfe *groundtruth.DataFormatError
	assert.ErrorAs(t, err, &dfe)
}
