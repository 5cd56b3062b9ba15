package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MeKo-Tech/ocrbench/internal/benchmark"
	"github.com/MeKo-Tech/ocrbench/internal/dataset"
	"github.com/MeKo-Tech/ocrbench/internal/ocrclient"
	"github.com/spf13/cobra"
)

func newBenchmarkCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "benchmark [images or directories...]",
		Short: "Measure OCR endpoint latency for single and batched requests",
		Long: `Send every image to the endpoint once on its own and once more in batches,
recording the status, response and wall time of each call.

Examples:
  ocrbench benchmark --endpoint https://user--ocr-service.modal.run images/
  ocrbench benchmark --endpoint http://localhost:8080 --batch-size 10 -o latency.json images/`,
		RunE: runBenchmark,
	}

	f := cmd.Flags()
	f.IntP("batch-size", "b", benchmark.DefaultBatchSize, "images per batched request")
	f.StringP("output", "o", "", "report path")
	f.String("model", "", "model_name sent to the endpoint")
	f.BoolP("recursive", "r", false, "descend into subdirectories")
	f.Duration("timeout", ocrclient.DefaultTimeout, "overall timeout per request including retries")
	f.Bool("progress", false, "draw a progress bar on stderr")
	return cmd
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	loaded, err := configFrom(cmd)
	if err != nil {
		return err
	}
	cfg := *loaded

	f := cmd.Flags()
	if f.Changed("batch-size") {
		cfg.Benchmark.BatchSize, _ = f.GetInt("batch-size")
	}
	if f.Changed("output") {
		cfg.Benchmark.Output, _ = f.GetString("output")
	}
	if f.Changed("model") {
		cfg.Client.ModelName, _ = f.GetString("model")
	}
	if f.Changed("recursive") {
		cfg.Evaluation.Recursive, _ = f.GetBool("recursive")
	}
	if f.Changed("timeout") {
		cfg.Client.Timeout, _ = f.GetDuration("timeout")
	}
	if len(args) > 0 {
		cfg.Evaluation.Images = args
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Client.Endpoint == "" {
		return fmt.Errorf("an endpoint is required (--endpoint or client.endpoint)")
	}

	images, err := dataset.Discover(cfg.Evaluation.Images, cfg.DatasetOptions())
	if err != nil {
		return err
	}

	// Latency must reflect the endpoint, so the prediction cache is never used here
	clientOpts, err := cfg.ClientOptions()
	if err != nil {
		return err
	}
	client, err := ocrclient.New(clientOpts)
	if err != nil {
		return err
	}

	slog.Info("Starting benchmark",
		"endpoint", client.URL(),
		"images", len(images),
		"batch_size", cfg.Benchmark.BatchSize,
		"output", cfg.Benchmark.Output)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := benchmark.NewRunner(client, benchmark.Options{Progress: reporterFor(cmd)})
	report, err := runner.Run(ctx, images, cfg.Benchmark.BatchSize)
	if err != nil {
		return err
	}

	if err := report.WriteFile(cfg.Benchmark.Output); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), report.String())
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Results saved to %s\n", cfg.Benchmark.Output)
	return nil
}
