// Package dataset enumerates the images of an evaluation dataset in a stable order.
package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultInclude matches the image types the OCR endpoint is evaluated on.
var DefaultInclude = []string{"*.png", "*.jpg", "*.jpeg"}

// Image is one dataset entry.
type Image struct {
	Name string // base file name, used as the ground-truth key
	Path string
}

// Options controls discovery.
type Options struct {
	Recursive bool
	Include   []string // glob patterns on the base name, case-insensitive; DefaultInclude when empty
	Exclude   []string
}

// Discover returns the images found under the given files or directories,
// sorted by path so that reports are reproducible.
func Discover(paths []string, opts Options) ([]Image, error) {
	include := opts.Include
	if len(include) == 0 {
		include = DefaultInclude
	}

	var found []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", p, err)
		}

		if info.IsDir() {
			files, err := discoverInDirectory(p, opts.Recursive, include, opts.Exclude)
			if err != nil {
				return nil, err
			}
			found = append(found, files...)
		} else if shouldIncludeFile(p, include, opts.Exclude) {
			found = append(found, p)
		}
	}

	sort.Strings(found)
	images := make([]Image, 0, len(found))
	seen := make(map[string]bool, len(found))
	for _, f := range found {
		if seen[f] {
			continue
		}
		seen[f] = true
		images = append(images, Image{Name: filepath.Base(f), Path: f})
	}
	return images, nil
}

// discoverInDirectory walks dir, descending into subdirectories only when recursive.
func discoverInDirectory(dir string, recursive bool, includePatterns, excludePatterns []string) ([]string, error) {
	var files []string

	walkFn := func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if !recursive && path != dir {
				return filepath.SkipDir
			}
			return nil
		}

		if shouldIncludeFile(path, includePatterns, excludePatterns) {
			files = append(files, path)
		}
		return nil
	}

	return files, filepath.WalkDir(dir, walkFn)
}

// shouldIncludeFile applies exclude patterns first, then requires an include match.
func shouldIncludeFile(path string, includePatterns, excludePatterns []string) bool {
	if matchesAnyPattern(path, excludePatterns) {
		return false
	}
	if len(includePatterns) == 0 {
		return true
	}
	return matchesAnyPattern(path, includePatterns)
}

func matchesAnyPattern(path string, patterns []string) bool {
	base := strings.ToLower(filepath.Base(path))
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(strings.ToLower(pattern), base); matched {
			return true
		}
	}
	return false
}

// Read returns the image bytes.
func (img Image) Read() ([]byte, error) {
	data, err := os.ReadFile(img.Path) //nolint:gosec // G304: dataset paths come from CLI/config
	if err != nil {
		return nil, fmt.Errorf("failed to read image %s: %w", img.Path, err)
	}
	return data, nil
}

// Names returns the base names of images in order.
func Names(images []Image) []string {
	out := make([]string, len(images))
	for i, img := range images {
		out[i] = img.Name
	}
	return out
}
