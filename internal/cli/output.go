package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/runcache/internal/config"
	"github.com/roach88/runcache/internal/resolver"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // run or workspace could not be resolved
	ExitCommandError = 2 // bad arguments, config or database
)

// Envelope error codes. They mirror resolver.ErrorCode where one applies.
const (
	ErrCodeGeneric      = "ERROR"
	ErrCodeConfig       = "CONFIG"
	ErrCodeDatabase     = "DATABASE"
	ErrCodeNotFound     = string(resolver.ErrCodeNotFound)
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeCalibration  = string(resolver.ErrCodeCalibrationUnavailable)
)

// ExitError carries the process exit code and envelope code of a failed
// command.
type ExitError struct {
	Code    int
	ErrCode string
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// commandError reports a usage, config or database failure.
func commandError(errCode, message string, err error) *ExitError {
	return &ExitError{Code: ExitCommandError, ErrCode: errCode, Message: message, Err: err}
}

// notFound reports a name that is absent from the registry.
func notFound(message string) *ExitError {
	return &ExitError{Code: ExitFailure, ErrCode: ErrCodeNotFound, Message: message}
}

// resolveError classifies a resolver failure.
func resolveError(message string, err error) *ExitError {
	e := commandError(ErrCodeGeneric, message, err)
	switch {
	case resolver.IsNotFound(err):
		e.Code, e.ErrCode = ExitFailure, ErrCodeNotFound
	case resolver.IsCalibrationUnavailable(err):
		e.Code, e.ErrCode = ExitFailure, ErrCodeCalibration
	case resolver.IsInvalidValue(err), resolver.IsInvalidState(err):
		e.ErrCode = ErrCodeInvalidInput
	case errors.Is(err, config.ErrInvalid):
		e.ErrCode = ErrCodeConfig
	}
	return e
}

// exitCode returns the exit code carried by err, ExitFailure otherwise.
func exitCode(err error) int {
	var e *ExitError
	if errors.As(err, &e) {
		return e.Code
	}
	return ExitFailure
}

func envelopeCode(err error) string {
	var e *ExitError
	if errors.As(err, &e) && e.ErrCode != "" {
		return e.ErrCode
	}
	return ErrCodeGeneric
}

// Envelope wraps every JSON result: {"status":"ok","data":...} or
// {"status":"error","error":{...}}.
type Envelope struct {
	Status string         `json:"status"`
	Data   any            `json:"data,omitempty"`
	Error  *EnvelopeError `json:"error,omitempty"`
}

// EnvelopeError is the error member of an Envelope.
type EnvelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Printer writes command results as text or as a JSON Envelope.
type Printer struct {
	Format string
	Out    io.Writer
}

func (p *Printer) json() bool { return p.Format == "json" }

// Print writes data. In text mode text renders it; a nil text prints data
// with %v.
func (p *Printer) Print(data any, text func(w io.Writer)) error {
	if p.json() {
		return json.NewEncoder(p.Out).Encode(Envelope{Status: "ok", Data: data})
	}
	if text == nil {
		_, err := fmt.Fprintln(p.Out, data)
		return err
	}
	text(p.Out)
	return nil
}

// Fail writes err with its envelope code.
func (p *Printer) Fail(err error) error {
	code := envelopeCode(err)
	if p.json() {
		return json.NewEncoder(p.Out).Encode(Envelope{
			Status: "error",
			Error:  &EnvelopeError{Code: code, Message: err.Error()},
		})
	}
	_, werr := fmt.Fprintf(p.Out, "error [%s]: %s\n", code, err)
	return werr
}
