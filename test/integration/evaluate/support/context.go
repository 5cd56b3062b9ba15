package support

import (
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
)

// TestContext holds the state for one scenario.
type TestContext struct {
	// Command execution state
	LastCommand string
	LastOutput  string
	LastStderr  string
	LastError   error

	// Test environment
	TempDir     string
	previousDir string
	savedEnv    map[string]*string

	// Dataset state, keyed by image file name
	Labels   map[string][]string
	Readings map[string][]string

	// Endpoint state
	Endpoint *httptest.Server
	closers  []func() error

	// HTTP response state
	LastHTTPStatusCode int
	LastHTTPResponse   string
}

// NewTestContext creates a scenario context rooted in a fresh temp directory.
// The process working directory and HOME are moved there so that no
// configuration file outside the scenario is picked up.
func NewTestContext() (*TestContext, error) {
	tempDir, err := os.MkdirTemp("", "ocrbench-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	previousDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	ctx := &TestContext{
		TempDir:     tempDir,
		previousDir: previousDir,
		savedEnv:    map[string]*string{},
		Labels:      map[string][]string{},
		Readings:    map[string][]string{},
	}

	if err := os.Chdir(tempDir); err != nil {
		return nil, fmt.Errorf("failed to enter temp directory: %w", err)
	}
	ctx.setEnv("HOME", tempDir)
	ctx.setEnv("XDG_CONFIG_HOME", filepath.Join(tempDir, "xdg"))
	return ctx, nil
}

// setEnv sets an environment variable until Cleanup.
func (testCtx *TestContext) setEnv(name, value string) {
	if _, saved := testCtx.savedEnv[name]; !saved {
		if prev, ok := os.LookupEnv(name); ok {
			testCtx.savedEnv[name] = &prev
		} else {
			testCtx.savedEnv[name] = nil
		}
	}
	_ = os.Setenv(name, value)
}

// Path resolves name against the scenario directory.
func (testCtx *TestContext) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(testCtx.TempDir, name)
}

// Cleanup stops the endpoint, restores the process environment and removes
// the scenario directory.
func (testCtx *TestContext) Cleanup() error {
	var errors []error

	for i := len(testCtx.closers) - 1; i >= 0; i-- {
		if err := testCtx.closers[i](); err != nil {
			errors = append(errors, err)
		}
	}
	testCtx.closers = nil
	testCtx.Endpoint = nil

	for name, value := range testCtx.savedEnv {
		if value == nil {
			_ = os.Unsetenv(name)
		} else {
			_ = os.Setenv(name, *value)
		}
	}

	if err := os.Chdir(testCtx.previousDir); err != nil {
		errors = append(errors, fmt.Errorf("failed to restore working directory: %w", err))
	}

	if err := os.RemoveAll(testCtx.TempDir); err != nil && !os.IsNotExist(err) {
		errors = append(errors, fmt.Errorf("failed to remove temp directory %s: %w", testCtx.TempDir, err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("cleanup errors: %v", errors)
	}
	return nil
}
