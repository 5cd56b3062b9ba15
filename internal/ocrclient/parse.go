package ocrclient

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/MeKo-Tech/ocrbench/internal/ocrapi"
)

type rawPrediction struct {
	Text        *string         `json:"text"`
	BoundingBox json.RawMessage `json:"bounding_box"`
}

// DecodeBody returns the JSON document in body. Some services serialize their
// result list to a string before returning it, so one level of string
// encoding is unwrapped.
func DecodeBody(body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty body")
	}
	if trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return nil, err
		}
		trimmed = bytes.TrimSpace([]byte(inner))
	}
	if !json.Valid(trimmed) {
		return nil, errors.New("invalid JSON")
	}
	return json.RawMessage(trimmed), nil
}

// ParsePredictions extracts the ocr_results of the first element of a
// successful /ocr response.
func ParsePredictions(body []byte, file string) ([]ocrapi.Prediction, error) {
	doc, err := DecodeBody(body)
	if err != nil {
		return nil, &ParseError{File: file, Reason: "malformed body", Cause: err}
	}

	var list []map[string]json.RawMessage
	if err := json.Unmarshal(doc, &list); err != nil {
		return nil, &ParseError{File: file, Reason: "body is not a list of objects", Cause: err}
	}
	if len(list) == 0 {
		return nil, &ParseError{File: file, Reason: "empty result list"}
	}
	rawResults, ok := list[0]["ocr_results"]
	if !ok {
		return nil, &ParseError{File: file, Reason: `first result has no "ocr_results"`}
	}

	var raws []rawPrediction
	if err := json.Unmarshal(rawResults, &raws); err != nil {
		return nil, &ParseError{File: file, Reason: `"ocr_results" is not a list of predictions`, Cause: err}
	}
	preds := make([]ocrapi.Prediction, 0, len(raws))
	for _, r := range raws {
		if r.Text == nil {
			continue
		}
		p := ocrapi.Prediction{Text: *r.Text}
		// Boxes are never scored; keep them only when they have the usual shape.
		if len(r.BoundingBox) > 0 {
			var poly ocrapi.Polygon
			if json.Unmarshal(r.BoundingBox, &poly) == nil {
				p.BoundingBox = poly
			}
		}
		preds = append(preds, p)
	}
	return preds, nil
}
