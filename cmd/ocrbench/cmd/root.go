package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/MeKo-Tech/ocrbench/internal/config"
	"github.com/MeKo-Tech/ocrbench/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type configKey struct{}

// NewRootCommand builds the command tree. Each call returns fresh flag state
// and a fresh viper instance, so tests can execute it repeatedly.
func NewRootCommand() *cobra.Command {
	var cfgFile string
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "ocrbench",
		Short: "Accuracy and latency benchmarks for OCR endpoints",
		Long: `ocrbench measures how well an OCR HTTP endpoint reads a labelled image dataset.

This tool provides:
- Recall, precision and mAP against ground-truth annotations
- Latency benchmarks for single-image and batched requests
- A reference OCR endpoint backed by Tesseract, Document AI or a ground-truth oracle

Examples:
  ocrbench evaluate --endpoint https://user--ocr-service.modal.run -g ground_truth.json images/
  ocrbench benchmark --endpoint http://localhost:8080 --batch-size 5 images/
  ocrbench serve --port 8080 --engines tesseract,oracle`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoaderWithViper(v, config.DotEnvFile)
			flags := cmd.Root().PersistentFlags()
			_ = v.BindPFlag("verbose", flags.Lookup("verbose"))
			_ = v.BindPFlag("log_level", flags.Lookup("log-level"))
			_ = v.BindPFlag("client.endpoint", flags.Lookup("endpoint"))

			cfg, err := loader.LoadWithFile(cfgFile)
			if err != nil {
				return fmt.Errorf("error loading configuration: %w", err)
			}

			slog.SetDefault(newLogger(cmd.ErrOrStderr(), cfg))
			slog.Debug("Configuration loaded", "file", loader.GetConfigFileUsed())

			cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, cfg))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if show, _ := cmd.Flags().GetBool("version"); show {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "ocrbench version "+version.String())
				return nil
			}
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "",
		"config file (default is ocrbench.yaml in ., $HOME, $XDG_CONFIG_HOME/ocrbench, /etc/ocrbench)")
	flags.BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("endpoint", "", "OCR endpoint base URL (client.endpoint)")
	rootCmd.Flags().Bool("version", false, "print version information and exit")

	rootCmd.AddCommand(
		newEvaluateCommand(),
		newBenchmarkCommand(),
		newServeCommand(),
		newConfigCommand(v),
	)
	return rootCmd
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// configFrom returns the configuration loaded by the root command.
func configFrom(cmd *cobra.Command) (*config.Config, error) {
	cfg, ok := cmd.Context().Value(configKey{}).(*config.Config)
	if !ok {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return cfg, nil
}

// newLogger builds the JSON logger. Verbose wins over log_level.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	} else {
		switch strings.ToLower(cfg.LogLevel) {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
