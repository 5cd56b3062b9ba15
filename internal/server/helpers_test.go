package server

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync/atomic"
	"testing"

	"github.com/MeKo-Tech/ocrbench/internal/engine"
	"github.com/MeKo-Tech/ocrbench/internal/ocrapi"
	"github.com/MeKo-Tech/ocrbench/internal/testutil"
	"github.com/stretchr/testify/require"
)

// fakeEngine answers every image with the same predictions.
type fakeEngine struct {
	preds []ocrapi.Prediction
	err   error
	calls atomic.Int32
	last  atomic.Value // engine.RequestOptions
}

func (f *fakeEngine) Recognize(_ context.Context, _ []byte, opts engine.RequestOptions) ([]ocrapi.Prediction, error) {
	f.calls.Add(1)
	f.last.Store(opts)
	return f.preds, f.err
}

func (f *fakeEngine) Close() error { return nil }

func (f *fakeEngine) lastOptions() engine.RequestOptions {
	opts, _ := f.last.Load().(engine.RequestOptions)
	return opts
}

func newTestServer(t *testing.T, cfg Config, engines map[string]engine.Recognizer) *Server {
	t.Helper()
	reg := engine.NewRegistry(nil)
	for _, name := range []string{"tesseract", "documentai", "oracle", "broken"} {
		rec, ok := engines[name]
		if !ok {
			continue
		}
		require.NoError(t, reg.Register(name, func(context.Context) (engine.Recognizer, error) { return rec, nil }))
	}
	if _, ok := engines["broken"]; ok {
		require.NoError(t, reg.SetDefault(firstNonBroken(engines)))
	}
	require.NoError(t, reg.Register("uninitializable", func(context.Context) (engine.Recognizer, error) {
		return nil, errors.New("model weights not found")
	}))

	s, err := NewServer(cfg, reg)
	require.NoError(t, err)
	return s
}

func firstNonBroken(engines map[string]engine.Recognizer) string {
	for _, name := range []string{"tesseract", "documentai", "oracle"} {
		if _, ok := engines[name]; ok {
			return name
		}
	}
	return "broken"
}

type formFile struct {
	name        string
	contentType string
	data        []byte
}

// multipartRequest builds a POST /ocr request.
func multipartRequest(t *testing.T, files []formFile, fields map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="files"; filename="`+f.name+`"`)
		ct := f.contentType
		if ct == "" {
			ct = "image/png"
		}
		h.Set("Content-Type", ct)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/ocr", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func pngFile(t *testing.T, name string) formFile {
	t.Helper()
	return formFile{name: name, data: testutil.PNGWithText(t, "42")}
}
