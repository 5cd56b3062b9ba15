package ocrclient

import "fmt"

// TransportError is a request that never produced a usable 200 response:
// a network failure, a timeout, or a non-200 status after retries.
type TransportError struct {
	File       string
	StatusCode int // 0 when no response was received
	Detail     string
	Cause      error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Detail != "":
		return fmt.Sprintf("ocr request for %s failed with status %d: %s", e.File, e.StatusCode, e.Detail)
	case e.StatusCode != 0:
		return fmt.Sprintf("ocr request for %s failed with status %d", e.File, e.StatusCode)
	default:
		return fmt.Sprintf("ocr request for %s failed: %v", e.File, e.Cause)
	}
}

func (e *TransportError) Unwrap() error { return e.Cause }

// ParseError is a 200 response whose body is not the expected result list.
type ParseError struct {
	File   string
	Reason string
	Cause  error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ocr response for %s: %s: %v", e.File, e.Reason, e.Cause)
	}
	return fmt.Sprintf("ocr response for %s: %s", e.File, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Cause }
