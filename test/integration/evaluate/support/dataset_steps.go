package support

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/ocrbench/internal/testutil"
	"github.com/cucumber/godog"
)

const (
	imageDirName    = "images"
	groundTruthName = "ground_truth.json"
	servedTruthName = "served_truth.json"
)

// RegisterDatasetSteps registers the dataset steps.
func (testCtx *TestContext) RegisterDatasetSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a dataset with images:$`, testCtx.aDatasetWithImages)
	sc.Step(`^the endpoint reads "([^"]*)" as "([^"]*)"$`, testCtx.theEndpointReadsAs)
	sc.Step(`^the endpoint reads nothing in "([^"]*)"$`, testCtx.theEndpointReadsNothingIn)
}

// aDatasetWithImages renders one PNG per table row. The texts column is a
// comma-separated list; an empty cell leaves the image unlabelled.
func (testCtx *TestContext) aDatasetWithImages(table *godog.Table) error {
	if len(table.Rows) < 2 {
		return errors.New("dataset table needs a header and at least one row")
	}

	dir := testCtx.Path(imageDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create image directory: %w", err)
	}

	for _, row := range table.Rows[1:] {
		if len(row.Cells) < 2 {
			return errors.New("dataset rows need an image and a texts cell")
		}
		name := strings.TrimSpace(row.Cells[0].Value)
		texts := splitTexts(row.Cells[1].Value)

		if err := writeImage(filepath.Join(dir, name), texts); err != nil {
			return err
		}
		if texts != nil {
			testCtx.Labels[name] = texts
		}
	}
	return testutil.WriteAnnotations(testCtx.Path(groundTruthName), testCtx.Labels)
}

// theEndpointReadsAs makes the endpoint return texts for image instead of its labels.
func (testCtx *TestContext) theEndpointReadsAs(image, texts string) error {
	if testCtx.Endpoint != nil {
		return errors.New("the endpoint is already running")
	}
	testCtx.Readings[image] = splitTexts(texts)
	return nil
}

func (testCtx *TestContext) theEndpointReadsNothingIn(image string) error {
	if testCtx.Endpoint != nil {
		return errors.New("the endpoint is already running")
	}
	testCtx.Readings[image] = []string{}
	return nil
}

// servedTruth merges the labels with the endpoint overrides.
func (testCtx *TestContext) servedTruth() map[string][]string {
	served := make(map[string][]string, len(testCtx.Labels)+len(testCtx.Readings))
	for name, texts := range testCtx.Labels {
		served[name] = texts
	}
	for name, texts := range testCtx.Readings {
		served[name] = texts
	}
	return served
}

func splitTexts(cell string) []string {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil
	}
	parts := strings.Split(cell, ",")
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		texts = append(texts, strings.TrimSpace(p))
	}
	return texts
}

func writeImage(path string, texts []string) error {
	f, err := os.Create(path) //nolint:gosec // G304: path is inside the scenario directory
	if err != nil {
		return fmt.Errorf("failed to create image %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if err := testutil.WritePNG(f, texts...); err != nil {
		return fmt.Errorf("failed to encode image %s: %w", path, err)
	}
	return nil
}
