package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MeKo-Tech/ocrbench/internal/cache"
	"github.com/MeKo-Tech/ocrbench/internal/config"
	"github.com/MeKo-Tech/ocrbench/internal/dataset"
	"github.com/MeKo-Tech/ocrbench/internal/evaluation"
	"github.com/MeKo-Tech/ocrbench/internal/groundtruth"
	"github.com/MeKo-Tech/ocrbench/internal/ocrclient"
	"github.com/MeKo-Tech/ocrbench/internal/progress"
	"github.com/spf13/cobra"
)

func newEvaluateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate [images or directories...]",
		Short: "Score an OCR endpoint against ground truth",
		Long: `Send every image of a dataset to the OCR endpoint, match the predicted texts
against the ground-truth annotations and report recall, precision and mAP.

Images without ground truth, images the endpoint returned nothing for and
failed requests are skipped and listed in the log; they never count towards
the cumulative figures.

The report is written to <output-dir>/<output-base>_<service>.json where the
service is derived from the endpoint host, unless --output is given.

Examples:
  ocrbench evaluate --endpoint https://user--paddle-ocr.modal.run -g ground_truth.json images/
  ocrbench evaluate --endpoint http://localhost:8080 --model oracle --recall-only images/
  ocrbench evaluate --filter numeric --normalizer nfkc_casefold --cache memory images/`,
		RunE: runEvaluate,
	}

	f := cmd.Flags()
	f.StringP("ground-truth", "g", "", "ground-truth JSON file")
	f.String("model", "", "model_name sent to the endpoint")
	f.Int("sample-rate", 0, "sample_rate sent to the endpoint (0 leaves it unset)")
	f.Bool("logging", false, "ask the endpoint to log the request (logging_enabled)")
	f.String("filter", "none", "prediction filter: none or numeric")
	f.Bool("recall-only", false, "compute recall only")
	f.String("normalizer", "none", "text normalizer: none, nfkc or nfkc_casefold")
	f.BoolP("recursive", "r", false, "descend into subdirectories")
	f.String("key-prefix", groundtruth.DefaultKeyPrefix, "ground-truth key prefix tried after the bare file name")
	f.StringP("output", "o", "", "report path (overrides --output-dir/--output-base)")
	f.String("output-dir", ".", "report directory")
	f.String("output-base", "", "report file name prefix")
	f.String("cache", "none", "prediction cache: none, memory or redis")
	f.Duration("timeout", ocrclient.DefaultTimeout, "overall timeout per request including retries")
	f.Bool("progress", false, "draw a progress bar on stderr")
	return cmd
}

// applyEvaluateFlags copies changed flags over the loaded configuration.
func applyEvaluateFlags(cmd *cobra.Command, cfg *config.Config, args []string) {
	f := cmd.Flags()
	if f.Changed("ground-truth") {
		cfg.Evaluation.GroundTruth, _ = f.GetString("ground-truth")
	}
	if f.Changed("model") {
		cfg.Client.ModelName, _ = f.GetString("model")
	}
	if f.Changed("sample-rate") {
		cfg.Client.SampleRate, _ = f.GetInt("sample-rate")
	}
	if f.Changed("logging") {
		cfg.Client.LoggingEnabled, _ = f.GetBool("logging")
	}
	if f.Changed("filter") {
		cfg.Client.Filter, _ = f.GetString("filter")
	}
	if f.Changed("recall-only") {
		cfg.Evaluation.RecallOnly, _ = f.GetBool("recall-only")
	}
	if f.Changed("normalizer") {
		cfg.Evaluation.Normalizer, _ = f.GetString("normalizer")
	}
	if f.Changed("recursive") {
		cfg.Evaluation.Recursive, _ = f.GetBool("recursive")
	}
	if f.Changed("key-prefix") {
		cfg.Evaluation.KeyPrefix, _ = f.GetString("key-prefix")
	}
	if f.Changed("output-dir") {
		cfg.Evaluation.OutputDir, _ = f.GetString("output-dir")
	}
	if f.Changed("output-base") {
		cfg.Evaluation.OutputBase, _ = f.GetString("output-base")
	}
	if f.Changed("cache") {
		cfg.Cache.Backend, _ = f.GetString("cache")
	}
	if f.Changed("timeout") {
		cfg.Client.Timeout, _ = f.GetDuration("timeout")
	}
	if len(args) > 0 {
		cfg.Evaluation.Images = args
	}
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	loaded, err := configFrom(cmd)
	if err != nil {
		return err
	}
	cfg := *loaded
	applyEvaluateFlags(cmd, &cfg, args)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Client.Endpoint == "" {
		return fmt.Errorf("an endpoint is required (--endpoint or client.endpoint)")
	}

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		if output, err = cfg.EvaluationOutputPath(); err != nil {
			return err
		}
	}

	// Ground truth problems are fatal before any request is sent
	store, err := groundtruth.Load(cfg.Evaluation.GroundTruth, cfg.GroundTruthOptions()...)
	if err != nil {
		return err
	}
	images, err := dataset.Discover(cfg.Evaluation.Images, cfg.DatasetOptions())
	if err != nil {
		return err
	}
	slog.Info("Starting evaluation",
		"endpoint", cfg.Client.Endpoint,
		"model", cfg.Client.ModelName,
		"images", len(images),
		"ground_truth_entries", store.Len(),
		"output", output)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := evaluate(ctx, &cfg, store, images, reporterFor(cmd))
	if err != nil {
		return err
	}

	if err := report.WriteFile(output); err != nil {
		return err
	}
	printSummary(cmd.OutOrStdout(), report, cfg.Evaluation.RecallOnly)
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Results saved to %s\n", output)
	return nil
}

// evaluate wires cache, client and evaluator for one run.
func evaluate(ctx context.Context, cfg *config.Config, store *groundtruth.Store, images []dataset.Image,
	reporter progress.Reporter,
) (*evaluation.Report, error) {
	predictionCache, err := cache.New(ctx, cfg.CacheOptions())
	if err != nil {
		return nil, err
	}
	if predictionCache != nil {
		defer func() { _ = predictionCache.Close() }()
	}

	clientOpts, err := cfg.ClientOptions()
	if err != nil {
		return nil, err
	}
	clientOpts.Cache = predictionCache
	client, err := ocrclient.New(clientOpts)
	if err != nil {
		return nil, err
	}

	evalOpts, err := cfg.EvaluationOptions()
	if err != nil {
		return nil, err
	}
	evalOpts.Progress = reporter
	return evaluation.New(store, client, evalOpts).Run(ctx, images)
}

// reporterFor logs progress and adds a console bar when --progress is set.
func reporterFor(cmd *cobra.Command) progress.Reporter {
	var reporter progress.Reporter = progress.NewLog(slog.Default(), slog.LevelInfo)
	if show, _ := cmd.Flags().GetBool("progress"); show {
		reporter = progress.Multi{reporter, progress.NewConsole(cmd.ErrOrStderr(), "OCR")}
	}
	return reporter
}

func printSummary(w io.Writer, report *evaluation.Report, recallOnly bool) {
	s := report.Summary
	if recallOnly {
		_, _ = fmt.Fprintf(w, "Cumulative Recall: %.4f\n", s.Recall)
	} else {
		_, _ = fmt.Fprintf(w, "Cumulative Precision: %.4f, Cumulative Recall: %.4f, mAP: %.4f\n",
			s.Precision, s.Recall, s.MAP)
	}
	_, _ = fmt.Fprintf(w, "Scored %d images (%d true positives, %d false negatives), skipped %d\n",
		s.Images, s.TruePositives, s.FalseNegatives, len(report.Skipped))
}
