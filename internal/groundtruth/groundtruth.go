// Package groundtruth loads the expected text annotations of an OCR dataset.
package groundtruth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/MeKo-Tech/ocrbench/internal/ocrapi"
	"gopkg.in/yaml.v3"
)

// DefaultKeyPrefix is prepended to an image file name when the exact name is not a key.
const DefaultKeyPrefix = "images/"

// Annotation is one expected text fragment of an image.
type Annotation struct {
	Text        string         `json:"text"`
	BoundingBox ocrapi.Polygon `json:"bounding_box,omitempty"`
}

// Format identifies the on-disk shape a store was loaded from.
type Format string

const (
	// FormatFlat is {"<key>": [{"text": ...}]}.
	FormatFlat Format = "flat"
	// FormatAnnotations is {"annotations": {"<key>": [{"attributes": {"text": ...}}]}}.
	FormatAnnotations Format = "annotations"
)

// DataFormatError reports a ground-truth file that cannot be used.
type DataFormatError struct {
	Path   string
	Reason string
	Err    error
}

func (e *DataFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ground truth %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("ground truth %s: %s", e.Path, e.Reason)
}

func (e *DataFormatError) Unwrap() error { return e.Err }

// Store is a read-only index of annotations by image key.
type Store struct {
	entries   map[string][]Annotation
	format    Format
	keyPrefix string
}

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

// Load reads a JSON or YAML ground-truth file in either supported shape.
func Load(path string, opts ...Option) (*Store, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from CLI/config
	if err != nil {
		return nil, &DataFormatError{Path: path, Reason: "cannot read file", Err: err}
	}

	var root map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &root); err != nil {
			return nil, &DataFormatError{Path: path, Reason: "invalid YAML", Err: err}
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&root); err != nil {
			return nil, &DataFormatError{Path: path, Reason: "invalid JSON", Err: err}
		}
	}
	if root == nil {
		return nil, &DataFormatError{Path: path, Reason: "top level must be an object"}
	}

	s, err := FromMap(root, opts...)
	if err != nil {
		var dfe *DataFormatError
		if errors.As(err, &dfe) {
			dfe.Path = path
		}
		return nil, err
	}
	return s, nil
}

// FromMap builds a Store from an already decoded document.
func FromMap(root map[string]any, opts ...Option) (*Store, error) {
	s := &Store{
		entries:   make(map[string][]Annotation, len(root)),
		format:    FormatFlat,
		keyPrefix: DefaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}

	source := root
	if wrapped, ok := root["annotations"]; ok {
		m, ok := wrapped.(map[string]any)
		if !ok {
			return nil, &DataFormatError{Reason: `"annotations" must be an object`}
		}
		source = m
		s.format = FormatAnnotations
	}

	for key, raw := range source {
		list, ok := raw.([]any)
		if !ok {
			return nil, &DataFormatError{Reason: fmt.Sprintf("entry %q must be a list", key)}
		}
		anns := make([]Annotation, 0, len(list))
		for i, item := range list {
			ann, err := parseAnnotation(item, s.format)
			if err != nil {
				return nil, &DataFormatError{Reason: fmt.Sprintf("entry %q[%d]", key, i), Err: err}
			}
			anns = append(anns, ann)
		}
		s.entries[key] = anns
	}
	return s, nil
}

func parseAnnotation(item any, format Format) (Annotation, error) {
	obj, ok := item.(map[string]any)
	if !ok {
		return Annotation{}, errors.New("annotation must be an object")
	}
	if format == FormatAnnotations {
		attrs, ok := obj["attributes"].(map[string]any)
		if !ok {
			return Annotation{}, errors.New(`missing "attributes" object`)
		}
		text, err := textField(attrs)
		if err != nil {
			return Annotation{}, err
		}
		return Annotation{Text: text, BoundingBox: parsePolygon(obj["points"])}, nil
	}
	text, err := textField(obj)
	if err != nil {
		return Annotation{}, err
	}
	return Annotation{Text: text, BoundingBox: parsePolygon(obj["bounding_box"])}, nil
}

// textField accepts strings and bare numbers; label tools often emit digits unquoted.
func textField(obj map[string]any) (string, error) {
	switch v := obj["text"].(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case int:
		return fmt.Sprint(v), nil
	case float64:
		return fmt.Sprint(v), nil
	case nil:
		return "", errors.New(`missing "text"`)
	default:
		return "", fmt.Errorf(`"text" has unsupported type %T`, v)
	}
}

// parsePolygon is lenient: boxes are informational, so malformed ones are dropped.
func parsePolygon(raw any) ocrapi.Polygon {
	pts, ok := raw.([]any)
	if !ok {
		return nil
	}
	poly := make(ocrapi.Polygon, 0, len(pts))
	for _, p := range pts {
		xy, ok := p.([]any)
		if !ok || len(xy) != 2 {
			return nil
		}
		x, okX := toFloat(xy[0])
		y, okY := toFloat(xy[1])
		if !okX || !okY {
			return nil
		}
		poly = append(poly, ocrapi.Point{x, y})
	}
	return poly
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// Lookup returns the annotations for an image, trying the exact name and then
// the prefixed name. The result is a copy.
func (s *Store) Lookup(name string) []Annotation {
	anns, ok := s.entries[name]
	if !ok {
		anns, ok = s.entries[s.keyPrefix+name]
	}
	if !ok {
		return nil
	}
	out := make([]Annotation, len(anns))
	copy(out, anns)
	return out
}

// Len returns the number of image keys.
func (s *Store) Len() int { return len(s.entries) }

// Format returns the shape the store was loaded from.
func (s *Store) Format() Format { return s.format }

// Keys returns every image key, sorted.
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
