package core

import (
	"errors"
	"fmt"
)

const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeConfiguration     = "CONFIGURATION_ERROR"
	ErrCodeEmbeddingService  = "EMBEDDING_SERVICE_ERROR"
	ErrCodeGenerationService = "GENERATION_SERVICE_ERROR"
	ErrCodeSchema            = "SCHEMA_ERROR"
	ErrCodeDimensionMismatch = "DIMENSION_MISMATCH"
	ErrCodeStore             = "STORE_ERROR"
)

// Error carries a machine readable code and optional details alongside the cause.
type Error struct {
	Message string         `json:"message"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
	err     error
}

// NewError wraps err with a code. A nil err produces an error whose message is the code.
func NewError(err error, code string, details map[string]any) *Error {
	msg := code
	if err != nil {
		msg = err.Error()
	}
	return &Error{Message: msg, Code: code, Details: details, err: err}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// AsMap returns a log friendly representation.
func (e *Error) AsMap() map[string]any {
	if e == nil {
		return nil
	}
	out := map[string]any{"code": e.Code, "message": RedactString(e.Message)}
	if len(e.Details) > 0 {
		out["details"] = e.Details
	}
	return out
}

// CodeOf returns the code of the first *Error in the chain, or "".
func CodeOf(err error) string {
	var coreErr *Error
	if errors.As(err, &coreErr) {
		return coreErr.Code
	}
	return ""
}

// HasCode reports whether any *Error in the chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		var coreErr *Error
		if !errors.As(err, &coreErr) {
			return false
		}
		if coreErr.Code == code {
			return true
		}
		err = coreErr.err
	}
	return false
}
