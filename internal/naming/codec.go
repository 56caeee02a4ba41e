// Package naming builds and parses canonical workspace names.
//
// A canonical name is the deterministic concatenation
//
//	{prefix}{instrument}{component}{run:06d}{sum suffix}{action suffix}
//
// e.g. "SR_MAR011001", "SR_MARcut011001SumOf3RAW". When no run number is set
// the run field is omitted entirely.
package naming

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// RunDigits is the zero-padding width of the run number field.
const RunDigits = 6

// ErrInvalidFields is returned by Validate for identities that cannot
// survive a Build/Parse round trip.
var ErrInvalidFields = errors.New("naming: invalid name fields")

// Fields are the parts of an identity encoded in a canonical name.
type Fields struct {
	Prefix       string // role prefix, e.g. "SR_"
	Instrument   string // instrument short name, e.g. "MAR"
	Component    string // free-form tag
	Run          int
	HasRun       bool
	SumSuffix    string // aggregation suffix, e.g. "SumOf3"
	ActionSuffix string // set by processing steps, e.g. "RAW"
}

// Build returns the canonical name for f.
func Build(f Fields) string {
	var b strings.Builder
	b.WriteString(f.Prefix)
	b.WriteString(f.Instrument)
	b.WriteString(f.Component)
	if f.HasRun {
		fmt.Fprintf(&b, "%0*d", RunDigits, f.Run)
	}
	b.WriteString(f.SumSuffix)
	b.WriteString(f.ActionSuffix)
	return b.String()
}

// Parse recovers name fields from name. The template supplies the known
// substrings, which are stripped in a fixed order: action suffix, sum suffix,
// role prefix, instrument. The longest trailing run of digits left over is
// the run number and the remainder is the component.
//
// A template substring that is not present in name comes back empty, so
// Build(Parse(name)) == name for any name whose component does not end in a
// digit, and Parse(Build(f), f) == f for any f accepted by Validate.
func Parse(name string, tmpl Fields) (Fields, error) {
	var out Fields
	rest := name

	if tmpl.ActionSuffix != "" && strings.HasSuffix(rest, tmpl.ActionSuffix) {
		rest = strings.TrimSuffix(rest, tmpl.ActionSuffix)
		out.ActionSuffix = tmpl.ActionSuffix
	}
	if tmpl.SumSuffix != "" && strings.HasSuffix(rest, tmpl.SumSuffix) {
		rest = strings.TrimSuffix(rest, tmpl.SumSuffix)
		out.SumSuffix = tmpl.SumSuffix
	}
	if tmpl.Prefix != "" && strings.HasPrefix(rest, tmpl.Prefix) {
		rest = strings.TrimPrefix(rest, tmpl.Prefix)
		out.Prefix = tmpl.Prefix
	}
	if tmpl.Instrument != "" && strings.HasPrefix(rest, tmpl.Instrument) {
		rest = strings.TrimPrefix(rest, tmpl.Instrument)
		out.Instrument = tmpl.Instrument
	}

	i := len(rest)
	for i > 0 && isDigit(rest[i-1]) {
		i--
	}
	if i < len(rest) {
		run, err := strconv.Atoi(rest[i:])
		if err != nil {
			return Fields{}, fmt.Errorf("parse %q: run number: %w", name, err)
		}
		out.Run = run
		out.HasRun = true
	}
	out.Component = rest[:i]

	return out, nil
}

// Validate rejects fields that Build/Parse cannot round-trip.
func Validate(f Fields) error {
	if f.HasRun && f.Run < 0 {
		return fmt.Errorf("%w: negative run number %d", ErrInvalidFields, f.Run)
	}
	if f.Component != "" && isDigit(f.Component[len(f.Component)-1]) {
		return fmt.Errorf("%w: component %q ends with a digit", ErrInvalidFields, f.Component)
	}
	return nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
