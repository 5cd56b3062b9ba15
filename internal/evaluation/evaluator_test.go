package evaluation

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MeKo-Tech/ocrbench/internal/dataset"
	"github.com/MeKo-Tech/ocrbench/internal/groundtruth"
	"github.com/MeKo-Tech/ocrbench/internal/ocrapi"
	"github.com/MeKo-Tech/ocrbench/internal/ocrclient"
	"github.com/MeKo-Tech/ocrbench/internal/progress"
	"github.com/MeKo-Tech/ocrbench/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecognizer struct {
	preds map[string][]string
	errs  map[string]error
	calls []string
}

func (f *fakeRecognizer) Recognize(_ context.Context, _ []byte, name string) ([]ocrapi.Prediction, error) {
	f.calls = append(f.calls, name)
	if err := f.errs[name]; err != nil {
		return nil, err
	}
	var out []ocrapi.Prediction
	for _, s := range f.preds[name] {
		out = append(out, ocrapi.Prediction{Text: s})
	}
	return out, nil
}

func writeImages(t *testing.T, names ...string) []dataset.Image {
	t.Helper()
	dir := testutil.CreateTempDir(t)
	for _, n := range names {
		testutil.WriteFile(t, dir, n, []byte("image "+n))
	}
	images, err := dataset.Discover([]string{dir}, dataset.Options{})
	require.NoError(t, err)
	return images
}

func storeOf(t *testing.T, gt map[string][]string) *groundtruth.Store {
	t.Helper()
	root := make(map[string]any, len(gt))
	for k, texts := range gt {
		list := make([]any, len(texts))
		for i, s := range texts {
			list[i] = map[string]any{"text": s}
		}
		root["images/"+k] = list
	}
	store, err := groundtruth.FromMap(root)
	require.NoError(t, err)
	return store
}

func TestRun_CumulativeRecall(t *testing.T) {
	images := writeImages(t, "a.jpg", "b.jpg", "c.jpg")
	store := storeOf(t, map[string][]string{
		"a.jpg": {"1", "2", "3"},
		"c.jpg": {"4", "5"},
	})
	rec := &fakeRecognizer{preds: map[string][]string{
		"a.jpg": {"1", "2"},
		"b.jpg": {"9"},
		"c.jpg": {"4", "x", "y"},
	}}

	report, err := New(store, rec, Options{}).Run(context.Background(), images)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.jpg", "c.jpg"}, report.Names())
	assert.Equal(t, []string{"b.jpg"}, report.SkippedFor(ReasonNoGroundTruth))
	assert.Equal(t, []string{"a.jpg", "c.jpg"}, rec.calls, "images without ground truth are not sent")

	a, ok := report.Lookup("a.jpg")
	require.True(t, ok)
	assert.Equal(t, 2, a.TruePositives)
	assert.Equal(t, 1, a.FalseNegatives)
	require.NotNil(t, a.Precision)
	assert.InDelta(t, 1.0, *a.Precision, 1e-9)

	c := report.Cumulative
	assert.Equal(t, 3, c.TruePositives)
	assert.Equal(t, 2, c.FalseNegatives)
	assert.InDelta(t, 0.6, c.Recall, 1e-9)
	require.NotNil(t, c.MAP)
	assert.InDelta(t, (1.0+1.0/3.0)/2, *c.MAP, 1e-9)
	require.NotNil(t, c.Precision)
	assert.InDelta(t, 3.0/5.0, *c.Precision, 1e-9)
}

func TestRun_FailedImageDoesNotAbort(t *testing.T) {
	images := writeImages(t, "a.jpg", "b.jpg", "c.jpg")
	store := storeOf(t, map[string][]string{
		"a.jpg": {"1"}, "b.jpg": {"2"}, "c.jpg": {"3"},
	})
	rec := &fakeRecognizer{
		preds: map[string][]string{"a.jpg": {"1"}, "c.jpg": {"0"}},
		errs:  map[string]error{"b.jpg": &ocrclient.TransportError{File: "b.jpg", StatusCode: 500}},
	}

	report, err := New(store, rec, Options{}).Run(context.Background(), images)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.jpg", "c.jpg"}, report.Names())
	assert.Equal(t, []string{"b.jpg"}, report.SkippedFor(ReasonOCRFailed))
	assert.Equal(t, 1, report.Cumulative.TruePositives)
	assert.Equal(t, 1, report.Cumulative.FalseNegatives)
	assert.Equal(t, 2, report.Summary.Images)
}

func TestRun_NoPredictionsSkipped(t *testing.T) {
	images := writeImages(t, "a.jpg", "b.jpg")
	store := storeOf(t, map[string][]string{"a.jpg": {"1"}, "b.jpg": {"2", "3"}})
	rec := &fakeRecognizer{preds: map[string][]string{"a.jpg": {"1"}}}

	report, err := New(store, rec, Options{}).Run(context.Background(), images)
	require.NoError(t, err)

	assert.Equal(t, []string{"b.jpg"}, report.SkippedFor(ReasonNoPredictions))
	assert.Equal(t, 0, report.Cumulative.FalseNegatives, "skipped images never count as misses")
	assert.InDelta(t, 1.0, report.Cumulative.Recall, 1e-9)
}

func TestRun_SkipLoggedOnce(t *testing.T) {
	images := writeImages(t, "a.jpg", "b.jpg")
	store := storeOf(t, map[string][]string{"a.jpg": {"1"}})
	rec := &fakeRecognizer{preds: map[string][]string{"a.jpg": {"1"}}}

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	opts := Options{Logger: logger, Progress: progress.NewLog(logger, slog.LevelInfo)}

	report, err := New(store, rec, opts).Run(context.Background(), images)
	require.NoError(t, err)
	require.Equal(t, []string{"b.jpg"}, report.SkippedFor(ReasonNoGroundTruth))
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte(`"msg":"Skipping image"`)))
}

func TestRun_DuplicateNamesWarn(t *testing.T) {
	root := testutil.CreateTempDir(t)
	testutil.WriteFile(t, root, "a.jpg", []byte("top"))
	testutil.WriteFile(t, root, "sub/a.jpg", []byte("nested"))
	images, err := dataset.Discover([]string{root}, dataset.Options{Recursive: true})
	require.NoError(t, err)
	require.Len(t, images, 2)

	store := storeOf(t, map[string][]string{"a.jpg": {"1"}})
	rec := &fakeRecognizer{preds: map[string][]string{"a.jpg": {"1"}}}

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	report, err := New(store, rec, Options{Logger: logger}).Run(context.Background(), images)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.jpg", images[1].Path}, report.Names())
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte(`"msg":"Duplicate image name; scoring against the same ground truth"`)))
}

func TestRun_RecallOnly(t *testing.T) {
	images := writeImages(t, "a.jpg")
	store := storeOf(t, map[string][]string{"a.jpg": {"1", "2"}})
	rec := &fakeRecognizer{preds: map[string][]string{"a.jpg": {"1"}}}

	report, err := New(store, rec, Options{RecallOnly: true}).Run(context.Background(), images)
	require.NoError(t, err)

	raw, err := json.Marshal(report)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"a.jpg": {"recall": 0.5, "true_positives": 1, "false_negatives": 1},
		"cumulative": {"recall": 0.5, "true_positives": 1, "false_negatives": 1}
	}`, string(raw))
}

func TestRun_ContextCancelled(t *testing.T) {
	images := writeImages(t, "a.jpg", "b.jpg")
	store := storeOf(t, map[string][]string{"a.jpg": {"1"}, "b.jpg": {"2"}})

	ctx, cancel := context.WithCancel(context.Background())
	rec := &cancellingRecognizer{cancel: cancel}

	_, err := New(store, rec, Options{}).Run(ctx, images)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, rec.calls)
}

type cancellingRecognizer struct {
	cancel context.CancelFunc
	calls  int
}

func (c *cancellingRecognizer) Recognize(ctx context.Context, _ []byte, _ string) ([]ocrapi.Prediction, error) {
	c.calls++
	c.cancel()
	return nil, ctx.Err()
}

func TestRun_RequiresDependencies(t *testing.T) {
	_, err := New(nil, nil, Options{}).Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestRun_EmptyDataset(t *testing.T) {
	report, err := New(storeOf(t, nil), &fakeRecognizer{}, Options{}).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, report.Entries)
	assert.InDelta(t, 0.0, report.Cumulative.Recall, 1e-9)
	assert.InDelta(t, 0.0, *report.Cumulative.MAP, 1e-9)
}

// TestRun_AgainstEndpoint drives the real client against an endpoint that
// fails for one image and times out for another.
func TestRun_AgainstEndpoint(t *testing.T) {
	images := writeImages(t, "a.jpg", "b.jpg", "c.jpg", "d.jpg")
	store := storeOf(t, map[string][]string{
		"a.jpg": {"12", "34"}, "b.jpg": {"5"}, "c.jpg": {"7", "7"}, "d.jpg": {"8"},
	})

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := uploadedName(t, r)
		switch name {
		case "b.jpg":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"detail":"recognizer crashed"}`))
		case "d.jpg":
			<-release
		default:
			texts := map[string][]ocrapi.Prediction{
				"a.jpg": {{Text: "12"}, {Text: "abc"}},
				"c.jpg": {{Text: "7"}},
			}[name]
			_ = json.NewEncoder(w).Encode([]ocrapi.FileResult{{FileName: name, OCRResults: texts}})
		}
	}))
	defer srv.Close()
	defer close(release)

	client, err := ocrclient.New(ocrclient.Options{
		Endpoint: srv.URL,
		Filter:   ocrclient.FilterNumeric,
		Timeout:  200 * time.Millisecond,
	})
	require.NoError(t, err)

	report, err := New(store, client, Options{}).Run(context.Background(), images)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.jpg", "c.jpg"}, report.Names())
	assert.ElementsMatch(t, []string{"b.jpg", "d.jpg"}, report.SkippedFor(ReasonOCRFailed))

	a, _ := report.Lookup("a.jpg")
	assert.Equal(t, 1, a.TruePositives)
	assert.InDelta(t, 1.0, *a.Precision, 1e-9, "non-numeric prediction was filtered out")

	c, _ := report.Lookup("c.jpg")
	assert.Equal(t, 2, c.TruePositives)
	assert.InDelta(t, 2.0, *c.Precision, 1e-9)

	assert.InDelta(t, 3.0/4.0, report.Cumulative.Recall, 1e-9)
}

func uploadedName(t *testing.T, r *http.Request) string {
	t.Helper()
	mr, err := r.MultipartReader()
	if err != nil {
		return ""
	}
	for {
		part, err := mr.NextPart()
		if err != nil {
			return ""
		}
		if part.FormName() == ocrapi.FieldFiles {
			return part.FileName()
		}
	}
}

func TestReport_WriteFileKeepsOrder(t *testing.T) {
	p := 0.5
	report := &Report{
		Entries: []Entry{
			{Name: "z.jpg", Result: ImageResult{Precision: &p, Recall: 1, TruePositives: 1}},
			{Name: "a.jpg", Result: ImageResult{Precision: &p, Recall: 0, FalseNegatives: 2}},
		},
		Cumulative: Cumulative{Precision: &p, Recall: 1.0 / 3.0, MAP: &p, TruePositives: 1, FalseNegatives: 2},
	}

	path := filepath.Join(testutil.CreateTempDir(t), "out", "report.json")
	require.NoError(t, report.WriteFile(path))

	data, err := os.ReadFile(path) //nolint:gosec // G304: test path
	require.NoError(t, err)
	text := string(data)
	assert.Less(t, strings.Index(text, `"z.jpg"`), strings.Index(text, `"a.jpg"`))
	assert.Less(t, strings.Index(text, `"a.jpg"`), strings.Index(text, `"cumulative"`))
	assert.Contains(t, text, "    \"z.jpg\": {")

	var decoded map[string]map[string]float64
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.InDelta(t, 0.5, decoded["cumulative"]["mAP"], 1e-9)
	assert.InDelta(t, 2, decoded["a.jpg"]["false_negatives"], 1e-9)
}

func TestReport_MarshalIsDeterministic(t *testing.T) {
	report := &Report{Entries: []Entry{{Name: "a", Result: ImageResult{Recall: 1}}}}
	first, err := json.Marshal(report)
	require.NoError(t, err)
	second, err := json.Marshal(report)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestOutputName(t *testing.T) {
	name, err := OutputName("precision_recall_map_results",
		"https://someone--keras-ocr-service-fastapi-modal-app.modal.run/ocr")
	require.NoError(t, err)
	assert.Equal(t, "precision_recall_map_results_keras-ocr-service-fastapi-modal-app.modal.run.json", name)

	name, err = OutputName("results", "http://localhost:8080")
	require.NoError(t, err)
	assert.Equal(t, "results_localhost.json", name)

	_, err = OutputName("results", "not-a-url")
	assert.Error(t, err)
}

func TestServiceName(t *testing.T) {
	tests := []struct {
		endpoint string
		want     string
	}{
		{"https://user--ocr-service-fastapi-modal-app.modal.run/ocr", "ocr-service-fastapi-modal-app.modal.run"},
		{"https://user--svc--extra.modal.run", "svc"},
		{"http://127.0.0.1:8080", "127"},
		{"http://localhost", "localhost"},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			got, err := ServiceName(tt.endpoint)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestServiceName_Errors(t *testing.T) {
	_, err := ServiceName("://bad")
	assert.Error(t, err)
	_, err = ServiceName("http://a--/x")
	assert.Error(t, err)
}
