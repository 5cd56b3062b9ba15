// Package ocrapi holds the JSON wire types shared by the OCR endpoint and its clients.
package ocrapi

// Point is a single polygon vertex encoded as [x, y].
type Point [2]float64

// Polygon is an ordered list of vertices, usually four corners clockwise from top-left.
type Polygon []Point

// Prediction is one recognized text fragment.
type Prediction struct {
	Text        string  `json:"text"`
	BoundingBox Polygon `json:"bounding_box"`
}

// FileResult is the per-file element of a successful /ocr response.
type FileResult struct {
	FileName              string       `json:"file_name"`
	ProcessingTimeSeconds float64      `json:"processing_time_seconds"`
	FramesProcessed       *int         `json:"frames_processed"`
	OCRResults            []Prediction `json:"ocr_results"`
}

// ErrorResponse is the body of every non-200 /ocr response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// Form field names of the /ocr multipart request.
const (
	FieldFiles          = "files"
	FieldSampleRate     = "sample_rate"
	FieldModelName      = "model_name"
	FieldLoggingEnabled = "logging_enabled"
)

// MaxFileSize is the per-file upload limit enforced by the endpoint.
const MaxFileSize = 100 * 1024 * 1024

// RectPolygon returns the four corners of an axis-aligned rectangle.
func RectPolygon(x0, y0, x1, y1 float64) Polygon {
	return Polygon{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}}
}

// Texts returns the text of every prediction in order.
func Texts(preds []Prediction) []string {
	out := make([]string, len(preds))
	for i, p := range preds {
		out[i] = p.Text
	}
	return out
}
