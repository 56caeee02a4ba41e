package naming

import (
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
)

// ErrMalformedRun is returned when a string cannot be read as a run reference.
var ErrMalformedRun = errors.New("naming: malformed run reference")

// RunRef is a run reference parsed from user input.
type RunRef struct {
	Dir        string // directory part, "" when none was given
	Instrument string // instrument prefix of the file name, if any
	Ext        string // file extension including the dot, if any
	Runs       []int
}

// Multiple reports whether the reference names more than one run.
func (r RunRef) Multiple() bool {
	return len(r.Runs) > 1
}

// Last returns the last run of the reference.
func (r RunRef) Last() int {
	return r.Runs[len(r.Runs)-1]
}

// ParseRunString reads "path + run number(s) + extension" references such as
//
//	"11001"
//	"MAR11001.nxs"
//	"/data/cycle_1/MAR11001.raw"
//	"MAR11001,MAR11002,MAR11003"
//	"11001+11002"
//
// The directory, instrument and extension of the first token that carries one
// are reported.
func ParseRunString(s string) (RunRef, error) {
	var ref RunRef

	tokens := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '+' })
	if len(tokens) == 0 {
		return RunRef{}, fmt.Errorf("%w: %q", ErrMalformedRun, s)
	}

	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		dir, file := path.Split(strings.ReplaceAll(tok, "\\", "/"))
		ext := path.Ext(file)
		stem := strings.TrimSuffix(file, ext)

		i := 0
		for i < len(stem) && !isDigit(stem[i]) {
			i++
		}
		inst, digits := stem[:i], stem[i:]
		if digits == "" || strings.IndexFunc(digits, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
			return RunRef{}, fmt.Errorf("%w: %q", ErrMalformedRun, tok)
		}
		run, err := strconv.Atoi(digits)
		if err != nil {
			return RunRef{}, fmt.Errorf("%w: %q: %v", ErrMalformedRun, tok, err)
		}

		if ref.Dir == "" {
			ref.Dir = strings.TrimSuffix(dir, "/")
		}
		if ref.Instrument == "" {
			ref.Instrument = inst
		}
		if ref.Ext == "" {
			ref.Ext = ext
		}
		ref.Runs = append(ref.Runs, run)
	}

	return ref, nil
}
