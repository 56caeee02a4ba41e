// Package runfile loads run files into the workspace registry.
//
// A run file is a small YAML document carrying the instrument, run number,
// log entries and spectra of one run. Monitor spectra are listed separately
// and either appended to the data workspace or placed in a companion
// "<name>_monitors" workspace.
package runfile

import (
	"bytes"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/roach88/runcache/internal/meta"
	"github.com/roach88/runcache/internal/workspace"
)

// File is the decoded form of a run file.
type File struct {
	Instrument string `yaml:"instrument"`
	RunNumber  int    `yaml:"run_number"`

	// EventMode marks event data. The loader always separates monitors for
	// event data.
	EventMode bool `yaml:"event_mode,omitempty"`

	// Calibration is the calibration reference embedded by the instrument,
	// a file name or "none".
	Calibration string `yaml:"calibration,omitempty"`

	Logs     map[string]any `yaml:"logs,omitempty"`
	Spectra  []Spectrum     `yaml:"spectra"`
	Monitors []Spectrum     `yaml:"monitors,omitempty"`
}

// Spectrum is one histogram in a run file.
type Spectrum struct {
	ID     int     `yaml:"id"`
	Counts []int64 `yaml:"counts,flow"`
}

// Decode parses a run file with strict field checking.
func Decode(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // Reject unknown fields
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty run file")
		}
		return nil, fmt.Errorf("failed to parse run file: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("invalid run file: %w", err)
	}
	return &f, nil
}

// Encode writes f as YAML.
func Encode(w io.Writer, f *File) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encode run file: %w", err)
	}
	return enc.Close()
}

// Marshal returns the YAML encoding of f.
func Marshal(f *File) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *File) validate() error {
	if f.Instrument == "" {
		return fmt.Errorf("instrument is required")
	}
	if f.RunNumber < 0 {
		return fmt.Errorf("run_number must be non-negative, got %d", f.RunNumber)
	}
	if len(f.Spectra) == 0 {
		return fmt.Errorf("spectra list is required and must be non-empty")
	}

	seen := make(map[int]bool, len(f.Spectra)+len(f.Monitors))
	for i, s := range f.Spectra {
		if seen[s.ID] {
			return fmt.Errorf("spectra[%d]: duplicate id %d", i, s.ID)
		}
		seen[s.ID] = true
	}
	for i, s := range f.Monitors {
		if seen[s.ID] {
			return fmt.Errorf("monitors[%d]: duplicate id %d", i, s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// logs builds the workspace log object. Well-known fields override entries
// of the same name under logs.
func (f *File) logs() (meta.Object, error) {
	logs, err := meta.ObjectFromMap(f.Logs)
	if err != nil {
		return nil, fmt.Errorf("logs: %w", err)
	}
	logs[workspace.LogInstrument] = meta.String(f.Instrument)
	logs[workspace.LogRunNumber] = meta.Int(f.RunNumber)
	logs[workspace.LogEventMode] = meta.Bool(f.EventMode)
	if f.Calibration != "" {
		logs[workspace.LogCalibration] = meta.String(f.Calibration)
	}
	return logs, nil
}

func toSpectra(in []Spectrum, monitor bool) []workspace.Spectrum {
	if len(in) == 0 {
		return nil
	}
	out := make([]workspace.Spectrum, len(in))
	for i, s := range in {
		out[i] = workspace.Spectrum{
			ID:      s.ID,
			Counts:  append([]int64(nil), s.Counts...),
			Monitor: monitor,
		}
	}
	return out
}
