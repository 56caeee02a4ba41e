package resolver

import (
	"errors"
	"fmt"
	"strings"
)

// Error is returned by resolver operations that fail for a reason the caller
// can act on. The underlying collaborator error, if any, is available
// through Unwrap.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Name is the canonical name involved, if known.
	Name string

	// Run is the run number involved; valid when HasRun is set.
	Run    int
	HasRun bool

	// Err is the wrapped cause.
	Err error
}

// ErrorCode categorizes resolver errors.
type ErrorCode string

const (
	// ErrCodeNotFound indicates the run file could not be located and no
	// registry entry exists.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeInvalidState indicates an operation that needs an identity was
	// called on an empty resolver.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"

	// ErrCodeInvalidValue indicates a Set value that cannot be read as a run
	// identity.
	ErrCodeInvalidValue ErrorCode = "INVALID_VALUE"

	// ErrCodeCalibrationUnavailable indicates a referenced calibration could
	// not be read.
	ErrCodeCalibrationUnavailable ErrorCode = "CALIBRATION_UNAVAILABLE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)

	var ctx []string
	if e.Name != "" {
		ctx = append(ctx, "name="+e.Name)
	}
	if e.HasRun {
		ctx = append(ctx, fmt.Sprintf("run=%d", e.Run))
	}
	if len(ctx) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(ctx, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if err is a NOT_FOUND resolver error.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsInvalidState returns true if err is an INVALID_STATE resolver error.
func IsInvalidState(err error) bool {
	return hasCode(err, ErrCodeInvalidState)
}

// IsInvalidValue returns true if err is an INVALID_VALUE resolver error.
func IsInvalidValue(err error) bool {
	return hasCode(err, ErrCodeInvalidValue)
}

// IsCalibrationUnavailable returns true if err is a CALIBRATION_UNAVAILABLE
// resolver error.
func IsCalibrationUnavailable(err error) bool {
	return hasCode(err, ErrCodeCalibrationUnavailable)
}

func hasCode(err error, code ErrorCode) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

func newNotFoundError(name string, run int, cause error) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: "run file not found and no registry entry exists",
		Name:    name,
		Run:     run,
		HasRun:  true,
		Err:     cause,
	}
}

func newInvalidStateError(op string) *Error {
	return &Error{
		Code:    ErrCodeInvalidState,
		Message: op + " requires a run identity",
	}
}

func newInvalidValueError(msg string, cause error) *Error {
	return &Error{
		Code:    ErrCodeInvalidValue,
		Message: msg,
		Err:     cause,
	}
}

func newCalibrationError(name string, cause error) *Error {
	return &Error{
		Code:    ErrCodeCalibrationUnavailable,
		Message: "calibration source cannot be read",
		Name:    name,
		Err:     cause,
	}
}
