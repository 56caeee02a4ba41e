// Package workspace defines the materialized data object held in the registry.
package workspace

import (
	"strings"

	"github.com/roach88/runcache/internal/meta"
)

// MonitorSuffix is appended to a workspace name to address its companion
// monitor workspace.
const MonitorSuffix = "_monitors"

// Well-known log names.
const (
	LogRunNumber  = "run_number"
	LogInstrument = "instrument"
	LogEventMode  = "event_mode"
	LogSummedRuns = "summed_runs"

	// LogCalibration holds a calibration reference embedded by the instrument
	// (a file name, or "none").
	LogCalibration = "calibration"

	// LogDetectorCalibration records the detector table that was applied.
	LogDetectorCalibration = "detector_calibration"
)

// NoCalibration is the embedded calibration reference meaning "not provided".
const NoCalibration = "none"

// Spectrum is one histogram of integer counts.
type Spectrum struct {
	ID      int     `json:"id"`
	Counts  []int64 `json:"counts"`
	Monitor bool    `json:"monitor,omitempty"`
}

// Workspace is a named, loaded data object.
type Workspace struct {
	Name    string
	Logs    meta.Object
	Spectra []Spectrum

	// Calibration is the calibration tag. Empty means the workspace has not
	// been calibrated; otherwise it identifies the source that was applied.
	Calibration string
}

// New creates an empty workspace with the given name.
func New(name string) *Workspace {
	return &Workspace{Name: name, Logs: meta.Object{}}
}

// RunNumber returns the run number recorded in the workspace logs.
func (w *Workspace) RunNumber() (int, bool) {
	n, ok := w.Logs.Int(LogRunNumber)
	return int(n), ok
}

// SetRunNumber records the run number in the workspace logs.
func (w *Workspace) SetRunNumber(run int) {
	if w.Logs == nil {
		w.Logs = meta.Object{}
	}
	w.Logs[LogRunNumber] = meta.Int(run)
}

// Calibrated reports whether the calibration tag is present.
func (w *Workspace) Calibrated() bool {
	return w.Calibration != ""
}

// EmbeddedCalibration returns the calibration reference recorded by the
// instrument. It returns false when the log is absent or set to "none".
func (w *Workspace) EmbeddedCalibration() (string, bool) {
	ref, ok := w.Logs.String(LogCalibration)
	if !ok || ref == "" || strings.EqualFold(ref, NoCalibration) {
		return "", false
	}
	return ref, true
}

// Clone returns a deep copy of the workspace.
func (w *Workspace) Clone() *Workspace {
	out := &Workspace{
		Name:        w.Name,
		Logs:        w.Logs.Clone(),
		Calibration: w.Calibration,
		Spectra:     make([]Spectrum, len(w.Spectra)),
	}
	for i, s := range w.Spectra {
		out.Spectra[i] = Spectrum{
			ID:      s.ID,
			Counts:  append([]int64(nil), s.Counts...),
			Monitor: s.Monitor,
		}
	}
	return out
}

// MonitorName returns the companion monitor workspace name for name.
func MonitorName(name string) string {
	return name + MonitorSuffix
}

// IsMonitorName reports whether name addresses a companion monitor workspace.
func IsMonitorName(name string) bool {
	return strings.HasSuffix(name, MonitorSuffix)
}
