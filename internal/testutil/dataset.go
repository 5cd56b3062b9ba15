package testutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// GroundTruthKeyPrefix is the key prefix WriteAnnotations puts before image names.
const GroundTruthKeyPrefix = "images/"

// Sample is one image of a synthetic dataset and the texts it is labelled with.
type Sample struct {
	Name  string
	Texts []string
}

// Dataset is a synthetic dataset on disk.
type Dataset struct {
	ImageDir        string
	GroundTruthPath string
}

// WriteDataset renders one PNG per sample into dir/images and writes a
// ground-truth file in the {"annotations": ...} shape keyed by "images/<name>".
// Samples with nil Texts get an image but no ground-truth entry.
func WriteDataset(t *testing.T, dir string, samples []Sample) Dataset {
	t.Helper()

	imageDir := filepath.Join(dir, "images")
	require.NoError(t, EnsureDir(imageDir))

	labels := make(map[string][]string, len(samples))
	for _, s := range samples {
		WriteFile(t, imageDir, s.Name, PNGWithText(t, s.Texts...))
		if s.Texts != nil {
			labels[s.Name] = s.Texts
		}
	}

	gtPath := filepath.Join(dir, "ground_truth.json")
	require.NoError(t, WriteAnnotations(gtPath, labels))
	return Dataset{ImageDir: imageDir, GroundTruthPath: gtPath}
}

// WriteAnnotations writes labels, keyed by image name, as a ground-truth file.
func WriteAnnotations(path string, labels map[string][]string) error {
	annotations := make(map[string]any, len(labels))
	for name, texts := range labels {
		entries := make([]any, len(texts))
		for i, text := range texts {
			entries[i] = map[string]any{"attributes": map[string]any{"text": text}}
		}
		annotations[GroundTruthKeyPrefix+name] = entries
	}

	data, err := json.MarshalIndent(map[string]any{"annotations": annotations}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ground truth: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write ground truth: %w", err)
	}
	return nil
}
