package renderpool

import (
	"errors"
	"fmt"
	"strings"

	"github.com/renderkit/go-renderpool/internal/sched"
)

// Error is a structured renderpool error with operation and unit context
type Error struct {
	Op    string    // Operation that failed (e.g., "RENDER_BATCH", "OPEN_UNIT")
	Batch string    // Batch ID ("" if not applicable)
	Unit  int       // Unit index (-1 if not applicable)
	Code  ErrorCode // High-level error category
	Msg   string    // Human-readable message
	Inner error     // Wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Batch != "" {
		parts = append(parts, fmt.Sprintf("batch=%s", e.Batch))
	}
	if e.Unit >= 0 {
		parts = append(parts, fmt.Sprintf("unit=%d", e.Unit))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("renderpool: %s (%s)", msg, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("renderpool: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is provides errors.Is support for sentinel comparison by code
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	if se, ok := target.(BatchError); ok {
		return e.Code == ErrorCode(se)
	}

	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}

	return false
}

// ErrorCode represents high-level error categories
type ErrorCode string

const (
	ErrCodeInvalidParameters ErrorCode = "invalid parameters"
	ErrCodePoolClosed        ErrorCode = "pool closed"
	ErrCodeSourceClosed      ErrorCode = "source closed"
	ErrCodeLoadFailed        ErrorCode = "unit load failed"
	ErrCodeRenderFailed      ErrorCode = "unit render failed"
	ErrCodeOutOfMemory       ErrorCode = "buffer allocation failed"
)

// BatchError is a plain sentinel error type for quick comparisons
type BatchError string

func (e BatchError) Error() string {
	return "renderpool: " + string(e)
}

// Sentinel errors matching the structured codes
const (
	ErrInvalidParameters BatchError = "invalid parameters"
	ErrPoolClosed        BatchError = "pool closed"
	ErrSourceClosed      BatchError = "source closed"
	ErrLoadFailed        BatchError = "unit load failed"
	ErrRenderFailed      BatchError = "unit render failed"
	ErrOutOfMemory       BatchError = "buffer allocation failed"
)

// NewError creates a new structured error
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{
		Op:   op,
		Unit: -1,
		Code: code,
		Msg:  msg,
	}
}

// NewUnitError creates a new unit-specific error
func NewUnitError(op string, batch string, unit int, code ErrorCode, msg string) *Error {
	return &Error{
		Op:    op,
		Batch: batch,
		Unit:  unit,
		Code:  code,
		Msg:   msg,
	}
}

// WrapError wraps an existing error with renderpool context
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	// If it's already a structured error, just update the operation
	if re, ok := inner.(*Error); ok {
		return &Error{
			Op:    op,
			Batch: re.Batch,
			Unit:  re.Unit,
			Code:  re.Code,
			Msg:   re.Msg,
			Inner: re.Inner,
		}
	}

	// Map scheduler-level unit failures to structured codes
	var ue *sched.UnitError
	if errors.As(inner, &ue) {
		code := ErrCodeRenderFailed
		if ue.Stage == "load" {
			code = ErrCodeLoadFailed
		}
		return &Error{
			Op:    op,
			Unit:  ue.Unit,
			Code:  code,
			Msg:   ue.Err.Error(),
			Inner: inner,
		}
	}

	if errors.Is(inner, sched.ErrPoolStopped) {
		return &Error{
			Op:    op,
			Unit:  -1,
			Code:  ErrCodePoolClosed,
			Msg:   inner.Error(),
			Inner: inner,
		}
	}

	return &Error{
		Op:    op,
		Unit:  -1,
		Code:  ErrCodeRenderFailed,
		Msg:   inner.Error(),
		Inner: inner,
	}
}

// IsCode checks if an error matches a specific error code
func IsCode(err error, code ErrorCode) bool {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Code == code
	}
	return false
}
