package support

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/MeKo-Tech/ocrbench/cmd/ocrbench/cmd"
	"github.com/cucumber/godog"
)

const reportTolerance = 1e-4

// RegisterCommandSteps registers the CLI execution and result steps.
func (testCtx *TestContext) RegisterCommandSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRunCommand)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)
	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the output should not contain "([^"]*)"$`, testCtx.theOutputShouldNotContain)
	sc.Step(`^the error should mention "([^"]*)"$`, testCtx.theErrorShouldMention)
	sc.Step(`^the file "([^"]*)" should exist$`, testCtx.theFileShouldExist)
	sc.Step(`^the report "([^"]*)" should have cumulative "([^"]*)" of ([\d.]+)$`,
		testCtx.theReportShouldHaveCumulative)
	sc.Step(`^the report "([^"]*)" should not have cumulative "([^"]*)"$`, testCtx.theReportShouldNotHaveCumulative)
	sc.Step(`^the report "([^"]*)" should list images "([^"]*)"$`, testCtx.theReportShouldListImages)
	sc.Step(`^the benchmark "([^"]*)" should hold (\d+) individual and (\d+) batch results$`,
		testCtx.theBenchmarkShouldHold)
}

// iRunCommand runs an ocrbench command line in-process against a fresh command tree.
func (testCtx *TestContext) iRunCommand(command string) error {
	command, err := testCtx.substituteCommandVariables(command)
	if err != nil {
		return err
	}
	testCtx.LastCommand = command

	parts := strings.Fields(command)
	if len(parts) == 0 {
		return errors.New("empty command")
	}
	if parts[0] != "ocrbench" {
		return fmt.Errorf("unsupported command %q", parts[0])
	}

	root := cmd.NewRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(parts[1:])

	testCtx.LastError = root.Execute()
	testCtx.LastOutput = stdout.String()
	testCtx.LastStderr = stderr.String()
	return nil
}

// substituteCommandVariables replaces {endpoint}, {images}, {ground_truth} and {tmp}.
func (testCtx *TestContext) substituteCommandVariables(command string) (string, error) {
	if strings.Contains(command, "{endpoint}") {
		url, err := testCtx.endpointURL()
		if err != nil {
			return "", err
		}
		command = strings.ReplaceAll(command, "{endpoint}", url)
	}
	command = strings.ReplaceAll(command, "{images}", testCtx.Path(imageDirName))
	command = strings.ReplaceAll(command, "{ground_truth}", testCtx.Path(groundTruthName))
	command = strings.ReplaceAll(command, "{tmp}", testCtx.TempDir)
	return command, nil
}

func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastError != nil {
		return fmt.Errorf("command failed: %w\nOutput: %s\nStderr: %s",
			testCtx.LastError, testCtx.LastOutput, testCtx.LastStderr)
	}
	return nil
}

func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastError == nil {
		return fmt.Errorf("command succeeded when it should have failed\nOutput: %s", testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldContain(expectedText string) error {
	if !strings.Contains(testCtx.LastOutput, expectedText) {
		return fmt.Errorf("output does not contain '%s'\nActual output: %s", expectedText, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldNotContain(text string) error {
	if strings.Contains(testCtx.LastOutput, text) {
		return fmt.Errorf("output unexpectedly contains '%s'\nActual output: %s", text, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theErrorShouldMention(errorText string) error {
	if testCtx.LastError == nil {
		return errors.New("expected an error but the command succeeded")
	}
	if !strings.Contains(testCtx.LastError.Error(), errorText) {
		return fmt.Errorf("error does not mention '%s': %v", errorText, testCtx.LastError)
	}
	return nil
}

func (testCtx *TestContext) theFileShouldExist(filename string) error {
	fullPath := testCtx.Path(filename)
	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", fullPath)
	}
	return nil
}

// readReport decodes an evaluation report into image name to metrics.
func (testCtx *TestContext) readReport(filename string) (map[string]map[string]any, error) {
	data, err := os.ReadFile(testCtx.Path(filename))
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var report map[string]map[string]any
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("report is not valid JSON: %w", err)
	}
	return report, nil
}

func (testCtx *TestContext) theReportShouldHaveCumulative(filename, metric string, want float64) error {
	report, err := testCtx.readReport(filename)
	if err != nil {
		return err
	}
	value, ok := report["cumulative"][metric].(float64)
	if !ok {
		return fmt.Errorf("report has no numeric cumulative %q: %v", metric, report["cumulative"])
	}
	if math.Abs(value-want) > reportTolerance {
		return fmt.Errorf("cumulative %s is %.6f, want %.6f", metric, value, want)
	}
	return nil
}

func (testCtx *TestContext) theReportShouldNotHaveCumulative(filename, metric string) error {
	report, err := testCtx.readReport(filename)
	if err != nil {
		return err
	}
	if _, ok := report["cumulative"][metric]; ok {
		return fmt.Errorf("report unexpectedly has cumulative %q", metric)
	}
	return nil
}

// theReportShouldListImages checks the scored images, ignoring order.
func (testCtx *TestContext) theReportShouldListImages(filename, names string) error {
	report, err := testCtx.readReport(filename)
	if err != nil {
		return err
	}
	want := splitTexts(names)
	if len(report)-1 != len(want) {
		return fmt.Errorf("report scores %d images, want %d", len(report)-1, len(want))
	}
	for _, name := range want {
		if _, ok := report[name]; !ok {
			return fmt.Errorf("report does not score %s", name)
		}
	}
	return nil
}

func (testCtx *TestContext) theBenchmarkShouldHold(filename string, individual, batches int) error {
	data, err := os.ReadFile(testCtx.Path(filename))
	if err != nil {
		return fmt.Errorf("failed to read benchmark results: %w", err)
	}
	var results struct {
		Individual struct {
			Results []json.RawMessage `json:"results"`
		} `json:"individual_processing"`
		Batch struct {
			Results []json.RawMessage `json:"results"`
		} `json:"batch_processing"`
	}
	if err := json.Unmarshal(data, &results); err != nil {
		return fmt.Errorf("benchmark results are not valid JSON: %w", err)
	}
	if got := len(results.Individual.Results); got != individual {
		return fmt.Errorf("got %d individual results, want %d", got, individual)
	}
	if got := len(results.Batch.Results); got != batches {
		return fmt.Errorf("got %d batch results, want %d", got, batches)
	}
	return nil
}
