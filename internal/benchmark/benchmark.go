// Package benchmark times an OCR endpoint on single-image and batched uploads.
package benchmark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/ocrbench/internal/common"
	"github.com/MeKo-Tech/ocrbench/internal/dataset"
	"github.com/MeKo-Tech/ocrbench/internal/ocrclient"
	"github.com/MeKo-Tech/ocrbench/internal/progress"
	"github.com/samber/lo"
)

// DefaultBatchSize is the batch size used when none is configured.
const DefaultBatchSize = 5

// Sender posts files to the endpoint. *ocrclient.Client satisfies it.
type Sender interface {
	Send(ctx context.Context, files []ocrclient.File) (*ocrclient.Response, error)
}

// Record is one timed call. Image is set for single-image calls, BatchSize and
// Images for batched ones. A failed call carries Error and no OCRResult.
type Record struct {
	Image                 string          `json:"image,omitempty"`
	BatchSize             int             `json:"batch_size,omitempty"`
	Images                []string        `json:"images,omitempty"`
	ProcessingTimeSeconds float64         `json:"processing_time_seconds"`
	StatusCode            int             `json:"status_code,omitempty"`
	OCRResult             json.RawMessage `json:"ocr_result,omitempty"`
	Error                 string          `json:"error,omitempty"`
}

// Failed reports whether the call produced an error marker.
func (r Record) Failed() bool { return r.Error != "" }

// Section is the outcome of one benchmark mode.
type Section struct {
	Results                    []Record            `json:"results"`
	TotalTimeSeconds           float64             `json:"total_time_seconds"`
	AverageTimePerImageSeconds float64             `json:"average_time_per_image_seconds"`
	Images                     int                 `json:"images"`
	Failures                   int                 `json:"failures"`
	Latency                    common.LatencyStats `json:"latency"`
}

// Report is the benchmark output file.
type Report struct {
	IndividualProcessing Section `json:"individual_processing"`
	BatchProcessing      Section `json:"batch_processing"`
	BatchSize            int     `json:"batch_size"`
}

// Options configures a Runner.
type Options struct {
	Progress progress.Reporter
	Logger   *slog.Logger
}

// Runner issues one request at a time and never stops on a failed call.
type Runner struct {
	sender   Sender
	progress progress.Reporter
	logger   *slog.Logger
}

// NewRunner returns a runner.
func NewRunner(sender Sender, opts Options) *Runner {
	r := &Runner{sender: sender, progress: opts.Progress, logger: opts.Logger}
	if r.progress == nil {
		r.progress = progress.NoOp{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// RunIndividual sends every image in its own request.
func (r *Runner) RunIndividual(ctx context.Context, images []dataset.Image) (Section, error) {
	return r.run(ctx, "individual", lo.Chunk(images, 1), false)
}

// RunBatch sends contiguous chunks of batchSize images per request.
func (r *Runner) RunBatch(ctx context.Context, images []dataset.Image, batchSize int) (Section, error) {
	if batchSize < 1 {
		return Section{}, fmt.Errorf("batch size must be at least 1, got %d", batchSize)
	}
	return r.run(ctx, "batch", lo.Chunk(images, batchSize), true)
}

// Run performs the individual pass followed by the batched pass.
func (r *Runner) Run(ctx context.Context, images []dataset.Image, batchSize int) (*Report, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be at least 1, got %d", batchSize)
	}

	r.logger.Info("Starting individual image processing benchmark", "images", len(images))
	individual, err := r.RunIndividual(ctx, images)
	if err != nil {
		return nil, err
	}

	r.logger.Info("Starting batch processing benchmark", "images", len(images), "batch_size", batchSize)
	batch, err := r.RunBatch(ctx, images, batchSize)
	if err != nil {
		return nil, err
	}

	return &Report{IndividualProcessing: individual, BatchProcessing: batch, BatchSize: batchSize}, nil
}

func (r *Runner) run(ctx context.Context, mode string, groups [][]dataset.Image, batched bool) (Section, error) {
	section := Section{Results: make([]Record, 0, len(groups))}
	durations := make([]time.Duration, 0, len(groups))

	r.progress.OnStart(len(groups))
	total := common.NewNamedTimer(mode)
	for i, group := range groups {
		if err := ctx.Err(); err != nil {
			return Section{}, err
		}

		rec, elapsed, sent := r.call(ctx, group, batched)
		if err := ctx.Err(); err != nil {
			return Section{}, err
		}
		if rec.Failed() {
			section.Failures++
			r.progress.OnError(label(rec), errors.New(rec.Error))
		}
		section.Results = append(section.Results, rec)
		section.Images += len(group)
		if sent {
			durations = append(durations, elapsed)
		}
		r.progress.OnItem(i+1, len(groups), label(rec))
	}
	section.TotalTimeSeconds = total.Stop().Seconds()
	r.progress.OnComplete()

	if section.Images > 0 {
		section.AverageTimePerImageSeconds = section.TotalTimeSeconds / float64(section.Images)
	}
	section.Latency = common.ComputeLatencyStats(durations)

	r.logger.Info("Benchmark pass finished",
		"timer", total,
		"requests", len(groups),
		"images", section.Images,
		"failures", section.Failures,
		"total_time_seconds", section.TotalTimeSeconds)
	return section, nil
}

// call times one request. Reading the files is not part of the measured time.
// sent is false when a file could not be read and nothing went over the wire.
func (r *Runner) call(ctx context.Context, group []dataset.Image, batched bool) (rec Record, elapsed time.Duration, sent bool) {
	if batched {
		rec.BatchSize = len(group)
		rec.Images = dataset.Names(group)
	} else {
		rec.Image = group[0].Name
	}

	files := make([]ocrclient.File, 0, len(group))
	for _, img := range group {
		data, err := img.Read()
		if err != nil {
			rec.Error = err.Error()
			r.logger.Warn("Benchmark image unreadable", "image", img.Name, "error", err)
			return rec, 0, false
		}
		files = append(files, ocrclient.File{Name: img.Name, Data: data})
	}

	timer := common.NewTimer()
	resp, err := r.sender.Send(ctx, files)
	elapsed = timer.Stop()
	rec.ProcessingTimeSeconds = elapsed.Seconds()
	if err != nil {
		rec.Error = err.Error()
		r.logger.Warn("Benchmark request failed", "images", label(rec), "error", err)
		return rec, elapsed, true
	}

	rec.StatusCode = resp.StatusCode
	if body, err := ocrclient.DecodeBody(resp.Body); err == nil {
		rec.OCRResult = body
	}
	if resp.StatusCode != http.StatusOK {
		rec.Error = fmt.Sprintf("status %d", resp.StatusCode)
		r.logger.Warn("Benchmark request returned an error status", "images", label(rec), "status", resp.StatusCode)
	} else if rec.OCRResult == nil {
		rec.Error = "response body is not JSON"
	}
	return rec, elapsed, true
}

func label(rec Record) string {
	if rec.Image != "" {
		return rec.Image
	}
	return strings.Join(rec.Images, ",")
}

// WriteFile writes the report as indented JSON.
func (rep *Report) WriteFile(path string) error {
	data, err := json.MarshalIndent(rep, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode benchmark report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write benchmark report: %w", err)
	}
	return nil
}

// String returns a short human readable summary.
func (rep *Report) String() string {
	var sb strings.Builder
	sb.WriteString("=== Benchmark Results ===\n")
	writeSection(&sb, "individual", rep.IndividualProcessing)
	writeSection(&sb, fmt.Sprintf("batch (size %d)", rep.BatchSize), rep.BatchProcessing)
	return sb.String()
}

func writeSection(sb *strings.Builder, name string, s Section) {
	fmt.Fprintf(sb, "%s: %d images in %.2fs (%.3fs/image), %d failures\n  %s\n",
		name, s.Images, s.TotalTimeSeconds, s.AverageTimePerImageSeconds, s.Failures, s.Latency)
}
