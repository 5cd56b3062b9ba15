package evaluation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/ocrbench/internal/metrics"
)

// CumulativeKey is the report key holding the dataset-wide aggregate.
const CumulativeKey = "cumulative"

// ImageResult is the per-image entry of a report.
type ImageResult struct {
	Precision      *float64 `json:"precision,omitempty"`
	Recall         float64  `json:"recall"`
	TruePositives  int      `json:"true_positives"`
	FalseNegatives int      `json:"false_negatives"`
}

// Cumulative is the dataset-wide entry of a report. Precision and MAP are set
// only in precision mode.
type Cumulative struct {
	Precision      *float64 `json:"precision,omitempty"`
	Recall         float64  `json:"recall"`
	MAP            *float64 `json:"mAP,omitempty"`
	TruePositives  int      `json:"true_positives"`
	FalseNegatives int      `json:"false_negatives"`
}

// Entry is one scored image.
type Entry struct {
	Name   string
	Result ImageResult
}

// Skip is an image left out of every aggregate.
type Skip struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Skip reasons.
const (
	ReasonNoGroundTruth = "no ground truth"
	ReasonNoPredictions = "no predictions"
	ReasonOCRFailed     = "ocr request failed"
	ReasonUnreadable    = "image unreadable"
)

// Report is the outcome of one evaluation run. It serializes as a JSON object
// of image name to ImageResult in enumeration order, followed by "cumulative".
type Report struct {
	Entries    []Entry
	Cumulative Cumulative
	Summary    metrics.Summary
	Skipped    []Skip
}

// Lookup returns the entry for an image name.
func (r *Report) Lookup(name string) (ImageResult, bool) {
	for _, e := range r.Entries {
		if e.Name == name {
			return e.Result, true
		}
	}
	return ImageResult{}, false
}

// Names returns the scored image names in order.
func (r *Report) Names() []string {
	names := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		names[i] = e.Name
	}
	return names
}

// SkippedFor returns the names skipped for reason.
func (r *Report) SkippedFor(reason string) []string {
	var names []string
	for _, s := range r.Skipped {
		if s.Reason == reason {
			names = append(names, s.Name)
		}
	}
	return names
}

// MarshalJSON writes the ordered object form.
func (r *Report) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for _, e := range r.Entries {
		if err := writeMember(&buf, e.Name, e.Result); err != nil {
			return nil, err
		}
		buf.WriteByte(',')
	}
	if err := writeMember(&buf, CumulativeKey, r.Cumulative); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeMember(buf *bytes.Buffer, key string, value any) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}

// WriteFile writes the report as indented JSON.
func (r *Report) WriteFile(path string) error {
	raw, err := r.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "    "); err != nil {
		return fmt.Errorf("failed to format report: %w", err)
	}
	out.WriteByte('\n')

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, out.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// ServiceName extracts the deployed service from an endpoint host of the form
// "<user>--<service>.<domain>": the part between the first and a second "--",
// domain included. Hosts without "--" yield their first label.
func ServiceName(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	host := u.Hostname()
	if host == "" {
		return "", errors.New("endpoint has no host")
	}

	var label string
	if parts := strings.Split(host, "--"); len(parts) > 1 {
		label = parts[1]
	} else {
		label, _, _ = strings.Cut(host, ".")
	}
	if label == "" {
		return "", fmt.Errorf("cannot derive service name from %q", host)
	}
	return label, nil
}

// OutputName returns "<base>_<service>.json" for an endpoint.
func OutputName(base, endpoint string) (string, error) {
	svc, err := ServiceName(endpoint)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%s.json", base, svc), nil
}
