package runfile

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/roach88/runcache/internal/registry"
	"github.com/roach88/runcache/internal/workspace"
)

// MonitorMode selects where monitor spectra are placed on load.
type MonitorMode int

const (
	// Combined appends monitor spectra to the data workspace.
	Combined MonitorMode = iota

	// Separate places monitor spectra in a "<name>_monitors" companion.
	Separate
)

func (m MonitorMode) String() string {
	switch m {
	case Combined:
		return "combined"
	case Separate:
		return "separate"
	default:
		return fmt.Sprintf("MonitorMode(%d)", int(m))
	}
}

// Loader loads a run file and registers the result under target.
type Loader interface {
	Load(ctx context.Context, path, target string, mode MonitorMode) (*workspace.Workspace, error)
}

// FileLoader reads run files from a billy filesystem.
type FileLoader struct {
	fs     billy.Filesystem
	reg    registry.Registry
	logger *slog.Logger
}

var _ Loader = (*FileLoader)(nil)

// NewLoader creates a FileLoader. A nil logger uses slog.Default().
func NewLoader(fs billy.Filesystem, reg registry.Registry, logger *slog.Logger) *FileLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileLoader{fs: fs, reg: reg, logger: logger}
}

// Load decodes the run file at path and adds it to the registry as target.
//
// Event data always produces a separate companion monitor workspace,
// whatever mode is requested.
func (l *FileLoader) Load(ctx context.Context, path, target string, mode MonitorMode) (*workspace.Workspace, error) {
	if target == "" {
		return nil, fmt.Errorf("load %q: empty target name", path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := util.ReadFile(l.fs, path)
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", path, err)
	}
	f, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", path, err)
	}

	logs, err := f.logs()
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", path, err)
	}

	ws := &workspace.Workspace{
		Name:    target,
		Logs:    logs,
		Spectra: toSpectra(f.Spectra, false),
	}

	separate := mode == Separate || f.EventMode
	if f.EventMode && mode != Separate {
		l.logger.Debug("event data forces separate monitors", "path", path, "target", target)
	}

	var companion *workspace.Workspace
	if separate {
		if len(f.Monitors) > 0 {
			companion = &workspace.Workspace{
				Name:    workspace.MonitorName(target),
				Logs:    logs.Clone(),
				Spectra: toSpectra(f.Monitors, true),
			}
		}
	} else {
		ws.Spectra = append(ws.Spectra, toSpectra(f.Monitors, true)...)
	}

	if err := l.reg.Add(ctx, ws); err != nil {
		return nil, fmt.Errorf("load %q: register %q: %w", path, target, err)
	}
	if companion != nil {
		if err := l.reg.Add(ctx, companion); err != nil {
			return nil, fmt.Errorf("load %q: register %q: %w", path, companion.Name, err)
		}
	}

	l.logger.Info("loaded run file",
		"path", path,
		"target", target,
		"run", f.RunNumber,
		"monitors", monitorPlacement(separate, companion != nil))

	return ws, nil
}

func monitorPlacement(separate, written bool) string {
	switch {
	case !separate:
		return Combined.String()
	case written:
		return Separate.String()
	default:
		return "none"
	}
}
