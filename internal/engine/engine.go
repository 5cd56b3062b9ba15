// Package engine holds the recognizers served by the reference OCR endpoint.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/MeKo-Tech/ocrbench/internal/ocrapi"
)

// RequestOptions carries per-request settings to a recognizer.
type RequestOptions struct {
	FileName       string
	LoggingEnabled bool
}

// Recognizer turns one encoded image into predictions.
type Recognizer interface {
	Recognize(ctx context.Context, data []byte, opts RequestOptions) ([]ocrapi.Prediction, error)
	Close() error
}

// Factory builds a recognizer on first use.
type Factory func(ctx context.Context) (Recognizer, error)

// UnsupportedModelError is returned for a model name that is not registered.
type UnsupportedModelError struct {
	Name      string
	Supported []string
}

func (e *UnsupportedModelError) Error() string {
	return fmt.Sprintf("unsupported model %q (supported: %s)", e.Name, strings.Join(e.Supported, ", "))
}

// Registry maps model names to lazily constructed recognizers. Each recognizer
// is built at most once per process; a failed build is retried on the next call.
type Registry struct {
	mu          sync.Mutex
	factories   map[string]Factory
	instances   map[string]Recognizer
	defaultName string
	logger      *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		factories: make(map[string]Factory),
		instances: make(map[string]Recognizer),
		logger:    logger,
	}
}

// Register adds a model. The first registered model becomes the default.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" || factory == nil {
		return errors.New("model name and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("model %q already registered", name)
	}
	r.factories[name] = factory
	if r.defaultName == "" {
		r.defaultName = name
	}
	return nil
}

// SetDefault selects the model used when a request names none.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[name]; !ok {
		return &UnsupportedModelError{Name: name, Supported: r.namesLocked()}
	}
	r.defaultName = name
	return nil
}

// Default returns the default model name, empty when nothing is registered.
func (r *Registry) Default() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.defaultName
}

// Names returns the registered model names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve maps a requested model name to a registered one. An empty name
// selects the default.
func (r *Registry) Resolve(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		name = r.defaultName
	}
	if _, ok := r.factories[name]; !ok {
		return "", &UnsupportedModelError{Name: name, Supported: r.namesLocked()}
	}
	return name, nil
}

// Get returns the recognizer for name, building it on first use.
func (r *Registry) Get(ctx context.Context, name string) (Recognizer, error) {
	name, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.instances[name]; ok {
		return rec, nil
	}
	r.logger.Info("Initializing recognizer", "model", name)
	rec, err := r.factories[name](ctx)
	if err != nil {
		r.logger.Error("Recognizer initialization failed", "model", name, "error", err)
		return nil, fmt.Errorf("failed to initialize model %q: %w", name, err)
	}
	r.instances[name] = rec
	return rec, nil
}

// Close releases every recognizer built so far.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, rec := range r.instances {
		if err := rec.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(r.instances, name)
	}
	return errors.Join(errs...)
}
