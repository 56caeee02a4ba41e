package calib

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"gopkg.in/yaml.v3"

	"github.com/roach88/runcache/internal/locate"
	"github.com/roach88/runcache/internal/meta"
	"github.com/roach88/runcache/internal/workspace"
)

// ErrUnavailable is returned when a calibration source cannot be read.
var ErrUnavailable = errors.New("calib: calibration unavailable")

// Applier applies a calibration source to a workspace in place.
type Applier interface {
	Apply(ctx context.Context, ws *workspace.Workspace, src Source) error
}

// Table is a detector calibration table.
type Table struct {
	Name      string     `yaml:"name"`
	Detectors []Detector `yaml:"detectors"`
}

// Detector is one row of a Table.
type Detector struct {
	ID     int   `yaml:"id"`
	Offset int64 `yaml:"offset"`
}

// DecodeTable parses a detector table with strict field checking.
func DecodeTable(r io.Reader) (*Table, error) {
	var t Table
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // Reject unknown fields
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("failed to parse detector table: %w", err)
	}
	if len(t.Detectors) == 0 {
		return nil, fmt.Errorf("detector table has no detectors")
	}
	seen := make(map[int]bool, len(t.Detectors))
	for i, d := range t.Detectors {
		if seen[d.ID] {
			return nil, fmt.Errorf("detectors[%d]: duplicate id %d", i, d.ID)
		}
		seen[d.ID] = true
	}
	return &t, nil
}

// DetectorApplier applies detector tables found through a Locator.
//
// Applying records the table in the detector_calibration log of the
// workspace. It does not tag the workspace; callers own the tag.
type DetectorApplier struct {
	loc    locate.Locator
	fs     billy.Filesystem
	logger *slog.Logger
}

var _ Applier = (*DetectorApplier)(nil)

// NewDetectorApplier creates a DetectorApplier. A nil logger uses slog.Default().
func NewDetectorApplier(loc locate.Locator, fs billy.Filesystem, logger *slog.Logger) *DetectorApplier {
	if logger == nil {
		logger = slog.Default()
	}
	return &DetectorApplier{loc: loc, fs: fs, logger: logger}
}

// Apply implements Applier.
func (a *DetectorApplier) Apply(ctx context.Context, ws *workspace.Workspace, src Source) error {
	switch src.Kind() {
	case KindNone, KindAlreadyCalibrated:
		return nil

	case KindWorkspace:
		rec, ok := src.Workspace().Logs[workspace.LogDetectorCalibration]
		if !ok {
			return fmt.Errorf("%w: workspace %q carries no detector calibration",
				ErrUnavailable, src.Workspace().Name)
		}
		setLog(ws, cloneRecord(rec))
		return nil

	case KindFile:
		return a.applyFile(ctx, ws, src.Path())

	default:
		return fmt.Errorf("calib: unknown source kind %v", src.Kind())
	}
}

func (a *DetectorApplier) applyFile(ctx context.Context, ws *workspace.Workspace, name string) error {
	path, err := a.loc.FindFile(ctx, name)
	if errors.Is(err, locate.ErrNotFound) {
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, name, err)
	}
	if err != nil {
		return fmt.Errorf("calib: %w", err)
	}

	data, err := util.ReadFile(a.fs, path)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrUnavailable, path, err)
	}
	table, err := DecodeTable(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("calib: %s: %w", path, err)
	}

	covered := 0
	ids := make(map[int]bool, len(table.Detectors))
	for _, d := range table.Detectors {
		ids[d.ID] = true
	}
	for _, s := range ws.Spectra {
		if ids[s.ID] {
			covered++
		}
	}

	setLog(ws, meta.Object{
		"source":    meta.String(path),
		"name":      meta.String(table.Name),
		"detectors": meta.Int(len(table.Detectors)),
		"covered":   meta.Int(covered),
	})

	a.logger.Debug("applied detector table",
		"workspace", ws.Name,
		"table", path,
		"covered", covered)
	return nil
}

func setLog(ws *workspace.Workspace, rec meta.Value) {
	if ws.Logs == nil {
		ws.Logs = meta.Object{}
	}
	ws.Logs[workspace.LogDetectorCalibration] = rec
}

func cloneRecord(v meta.Value) meta.Value {
	if obj, ok := v.(meta.Object); ok {
		return obj.Clone()
	}
	return v
}
