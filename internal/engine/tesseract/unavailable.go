//go:build !tesseract

package tesseract

import (
	"context"
	"log/slog"

	"github.com/MeKo-Tech/ocrbench/internal/engine"
)

// Available reports whether Tesseract support is compiled in.
func Available() bool { return false }

// Factory reports ErrUnavailable on first use.
func Factory(Options, *slog.Logger) engine.Factory {
	return func(context.Context) (engine.Recognizer, error) {
		return nil, ErrUnavailable
	}
}
