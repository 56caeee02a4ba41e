package testutil

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/roach88/runcache/internal/runfile"
)

// Instrument is the instrument short name used by fixtures.
const Instrument = "ABC"

// DataDir and CalDir are the fixture directories on the in-memory filesystem.
const (
	DataDir = "/data"
	CalDir  = "/cal"
)

// DetectorTable is a minimal valid detector calibration table.
const DetectorTable = `name: fixture
detectors:
  - id: 1
    offset: 0
  - id: 2
    offset: 1
`

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewFS returns an empty in-memory filesystem.
func NewFS() billy.Filesystem {
	return memfs.New()
}

// RunFile builds a run file for run with two data spectra and one monitor.
// Counts are derived from the run number so sums are easy to check.
func RunFile(run int) *runfile.File {
	return &runfile.File{
		Instrument: Instrument,
		RunNumber:  run,
		Spectra: []runfile.Spectrum{
			{ID: 1, Counts: []int64{int64(run), 1}},
			{ID: 2, Counts: []int64{0, 2}},
		},
		Monitors: []runfile.Spectrum{
			{ID: 100, Counts: []int64{10}},
		},
	}
}

// RunPath returns the fixture path of run with the given extension.
func RunPath(run int, ext string) string {
	return filepath.Join(DataDir, fmt.Sprintf("%s%06d%s", Instrument, run, ext))
}

// WriteRunFile writes f to path.
func WriteRunFile(fs billy.Filesystem, path string, f *runfile.File) error {
	data, err := runfile.Marshal(f)
	if err != nil {
		return err
	}
	return util.WriteFile(fs, path, data, 0o644)
}

// WriteRuns writes a RunFile for each run under DataDir with extension .yaml.
func WriteRuns(fs billy.Filesystem, runs ...int) error {
	for _, run := range runs {
		if err := WriteRunFile(fs, RunPath(run, ".yaml"), RunFile(run)); err != nil {
			return fmt.Errorf("write run %d: %w", run, err)
		}
	}
	return nil
}

// WriteFile writes raw content to path.
func WriteFile(fs billy.Filesystem, path, content string) error {
	return util.WriteFile(fs, path, []byte(content), 0o644)
}
