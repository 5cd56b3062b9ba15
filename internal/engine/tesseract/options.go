// Package tesseract recognizes words with the Tesseract OCR engine.
//
// The engine links against libtesseract and is only compiled with the
// "tesseract" build tag; without it New returns ErrUnavailable.
package tesseract

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Name is the registry name of the engine.
const Name = "tesseract"

// ErrUnavailable is returned by New in builds without the tesseract tag.
var ErrUnavailable = errors.New("tesseract support not compiled in (build with -tags tesseract)")

// Options configures the engine.
type Options struct {
	Languages     []string
	PageSegMode   int
	MinConfidence float64
	Preprocess    PreprocessOptions
}

// DefaultOptions returns English, automatic page segmentation and default preprocessing.
func DefaultOptions() Options {
	return Options{
		Languages:   []string{"eng"},
		PageSegMode: 3,
		Preprocess:  DefaultPreprocessOptions(),
	}
}

// PreprocessOptions controls image cleanup before recognition.
type PreprocessOptions struct {
	Grayscale bool
	// MinHeight upscales images shorter than this many pixels; 0 disables.
	MinHeight int
	// Sharpen applies an unsharp mask with this sigma; 0 disables.
	Sharpen float64
}

// DefaultPreprocessOptions enables grayscale conversion and upscaling of small images.
func DefaultPreprocessOptions() PreprocessOptions {
	return PreprocessOptions{Grayscale: true, MinHeight: 300}
}

// Enabled reports whether any step is active.
func (p PreprocessOptions) Enabled() bool {
	return p.Grayscale || p.MinHeight > 0 || p.Sharpen > 0
}

// Preprocess decodes data, applies the configured steps and re-encodes the
// result as PNG. The returned scale maps coordinates of the processed image
// back to the original.
func Preprocess(data []byte, opts PreprocessOptions) ([]byte, float64, error) {
	if !opts.Enabled() {
		return data, 1, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode image: %w", err)
	}

	var out image.Image = img
	scale := 1.0
	if h := img.Bounds().Dy(); opts.MinHeight > 0 && h > 0 && h < opts.MinHeight {
		scale = float64(h) / float64(opts.MinHeight)
		out = imaging.Resize(out, 0, opts.MinHeight, imaging.Lanczos)
	}
	if opts.Grayscale {
		out = imaging.Grayscale(out)
	}
	if opts.Sharpen > 0 {
		out = imaging.Sharpen(out, opts.Sharpen)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return nil, 0, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), scale, nil
}
