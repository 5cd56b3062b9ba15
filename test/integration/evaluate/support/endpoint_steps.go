package support

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/MeKo-Tech/ocrbench/internal/engine"
	"github.com/MeKo-Tech/ocrbench/internal/server"
	"github.com/MeKo-Tech/ocrbench/internal/testutil"
	"github.com/cucumber/godog"
)

// RegisterEndpointSteps registers the steps that talk to the OCR endpoint directly.
func (testCtx *TestContext) RegisterEndpointSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the OCR endpoint is running$`, testCtx.theOCREndpointIsRunning)
	sc.Step(`^I request "([^"]*)" from the endpoint$`, testCtx.iRequestFromTheEndpoint)
	sc.Step(`^the endpoint should respond with status (\d+)$`, testCtx.theEndpointShouldRespondWithStatus)
	sc.Step(`^the response should contain "([^"]*)"$`, testCtx.theResponseShouldContain)
}

// theOCREndpointIsRunning serves the oracle engine over the served truth.
func (testCtx *TestContext) theOCREndpointIsRunning() error {
	_, err := testCtx.endpointURL()
	return err
}

// endpointURL starts the endpoint on first use.
func (testCtx *TestContext) endpointURL() (string, error) {
	if testCtx.Endpoint != nil {
		return testCtx.Endpoint.URL, nil
	}

	servedPath := testCtx.Path(servedTruthName)
	if err := testutil.WriteAnnotations(servedPath, testCtx.servedTruth()); err != nil {
		return "", err
	}

	reg := engine.NewRegistry(nil)
	if err := reg.Register(engine.OracleName, engine.OracleFactory(servedPath)); err != nil {
		return "", fmt.Errorf("failed to register oracle engine: %w", err)
	}
	ocrServer, err := server.NewServer(server.Config{}, reg)
	if err != nil {
		return "", fmt.Errorf("failed to create server: %w", err)
	}

	mux := http.NewServeMux()
	ocrServer.SetupRoutes(mux)
	testCtx.Endpoint = httptest.NewServer(mux)

	testCtx.closers = append(testCtx.closers, ocrServer.Close, func() error {
		testCtx.Endpoint.Close()
		return nil
	})
	return testCtx.Endpoint.URL, nil
}

func (testCtx *TestContext) iRequestFromTheEndpoint(path string) error {
	base, err := testCtx.endpointURL()
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(base + path)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = string(body)
	return nil
}

func (testCtx *TestContext) theEndpointShouldRespondWithStatus(status int) error {
	if testCtx.LastHTTPStatusCode != status {
		return fmt.Errorf("expected status %d, got %d\nBody: %s",
			status, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldContain(expected string) error {
	if !strings.Contains(testCtx.LastHTTPResponse, expected) {
		return fmt.Errorf("response does not contain '%s'\nActual response: %s", expected, testCtx.LastHTTPResponse)
	}
	return nil
}
