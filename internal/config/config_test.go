package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/runcache/internal/calib"
	"github.com/roach88/runcache/internal/runfile"
)

const validYAML = `instrument: MAR
search_paths: [/data/cycle_1, /data/cycle_2]
extension: .nxs
alt_extensions: [.raw]
calibration_file: det.yaml
prefer_embedded_calibration: true
separate_monitors: true
prefixes:
  sample: S_
database: /tmp/reg.db
`

func TestParseYAML_Valid(t *testing.T) {
	cfg, err := ParseYAML(strings.NewReader(validYAML))
	require.NoError(t, err)

	assert.Equal(t, "MAR", cfg.Instrument)
	assert.Equal(t, []string{"/data/cycle_1", "/data/cycle_2"}, cfg.SearchPaths)
	assert.Equal(t, []string{".nxs", ".raw"}, cfg.Extensions())
	assert.True(t, cfg.PreferEmbeddedCalibration)
	assert.Equal(t, runfile.Separate, cfg.MonitorMode())
	assert.Equal(t, calib.KindFile, cfg.CalibrationSource().Kind())
	assert.Equal(t, "/tmp/reg.db", cfg.Database)

	p, ok := cfg.Prefix("sample")
	assert.True(t, ok)
	assert.Equal(t, "S_", p)
	p, _ = cfg.Prefix("vanadium")
	assert.Equal(t, "WB_", p, "unset roles keep their default prefix")
}

func TestParseYAML_Defaults(t *testing.T) {
	cfg, err := ParseYAML(strings.NewReader("instrument: ABC\n"))
	require.NoError(t, err)

	assert.Equal(t, DefaultExtension, cfg.Extension)
	assert.Equal(t, []string{"."}, cfg.SearchPaths)
	assert.Equal(t, DefaultDatabase, cfg.Database)
	assert.Equal(t, []string{"monovan", "sample", "vanadium"}, cfg.Roles())
	assert.Equal(t, runfile.Combined, cfg.MonitorMode())
	assert.True(t, cfg.CalibrationSource().IsNone())
}

func TestParseYAML_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		invalid bool
	}{
		{"unknown key", "instrument: ABC\nspeed: fast\n", false},
		{"empty document", "", true},
		{"missing instrument", "extension: .nxs\n", true},
		{"instrument with digits", "instrument: AB1\n", true},
		{"extension without dot", "instrument: ABC\nextension: nxs\n", true},
		{"bad alt extension", "instrument: ABC\nalt_extensions: [raw]\n", true},
		{"prefix without underscore", "instrument: ABC\nprefixes:\n  sample: SR\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseYAML(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Equal(t, tt.invalid, errors.Is(err, ErrInvalid), "got %v", err)
		})
	}
}

func TestParseCUE(t *testing.T) {
	src := `
instrument: "MER"
search_paths: ["/archive"]
separate_monitors: true
prefixes: monovan: "MONO_"
`
	cfg, err := ParseCUE([]byte(src), "runcache.cue")
	require.NoError(t, err)

	assert.Equal(t, "MER", cfg.Instrument)
	assert.Equal(t, []string{"/archive"}, cfg.SearchPaths)
	assert.Equal(t, runfile.Separate, cfg.MonitorMode())
	p, _ := cfg.Prefix("monovan")
	assert.Equal(t, "MONO_", p)
	assert.Equal(t, DefaultExtension, cfg.Extension)
}

func TestParseCUE_Rejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"closed schema", `instrument: "MER", colour: "red"`},
		{"type mismatch", `instrument: "MER", separate_monitors: "yes"`},
		{"bad instrument", `instrument: "M3R"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCUE([]byte(tt.src), "bad.cue")
			require.Error(t, err)
		})
	}

	_, err := ParseCUE([]byte(`instrument: `), "broken.cue")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalid))
}

func TestLoad_DispatchesOnExtension(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "/etc/runcache.yaml", []byte(validYAML), 0o644))
	require.NoError(t, util.WriteFile(fs, "/etc/runcache.cue", []byte(`instrument: "LET"`), 0o644))

	cfg, err := Load(fs, "/etc/runcache.yaml")
	require.NoError(t, err)
	assert.Equal(t, "MAR", cfg.Instrument)

	cfg, err = Load(fs, "/etc/runcache.cue")
	require.NoError(t, err)
	assert.Equal(t, "LET", cfg.Instrument)

	_, err = Load(fs, "/etc/missing.yaml")
	require.Error(t, err)
}

func TestValidate_AfterMutation(t *testing.T) {
	cfg, err := ParseYAML(strings.NewReader("instrument: ABC\n"))
	require.NoError(t, err)

	cfg.Extension = "raw"
	err = cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
}
