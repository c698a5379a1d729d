package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrAuthRequired  = errors.New("authentication required")
	ErrExtraction    = errors.New("extraction failed")
	ErrTranscode     = errors.New("transcode failed")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Error codes surfaced to API clients. Every terminal job failure carries
// exactly one of these.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeAuthRequired = "AUTH_REQUIRED"
	CodeExtraction   = "EXTRACTION_FAILED"
	CodeTranscode    = "TRANSCODE_FAILED"
	CodeNotFound     = "NOT_FOUND"
	CodeTimeout      = "TIMEOUT"
	CodeInternal     = "INTERNAL_ERROR"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureCode maps a job error to the machine-readable code persisted with the
// job and returned by the status API.
func FailureCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration):
		return CodeValidation
	case errors.Is(err, ErrAuthRequired):
		return CodeAuthRequired
	case errors.Is(err, ErrTranscode):
		return CodeTranscode
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrExtraction), errors.Is(err, ErrExternalTool):
		return CodeExtraction
	default:
		return CodeInternal
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
