package cmd

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/ocrbench/internal/engine"
	"github.com/MeKo-Tech/ocrbench/internal/server"
	"github.com/MeKo-Tech/ocrbench/internal/testutil"
	"github.com/stretchr/testify/require"
)

// isolate runs the test in an empty directory with no reachable config files.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	return dir
}

// execute runs a fresh command tree and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// oracleEndpoint serves the reference endpoint replaying the dataset's ground truth.
func oracleEndpoint(t *testing.T, ds testutil.Dataset) *httptest.Server {
	t.Helper()
	reg := engine.NewRegistry(nil)
	require.NoError(t, reg.Register(engine.OracleName, engine.OracleFactory(ds.GroundTruthPath)))
	s, err := server.NewServer(server.Config{}, reg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

var sampleSet = []testutil.Sample{
	{Name: "a.png", Texts: []string{"12", "7"}},
	{Name: "b.png", Texts: []string{"Total"}},
	{Name: "c.png"},
}
