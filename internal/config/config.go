// Package config loads runcache configuration from YAML or CUE files.
//
// Every configuration, whatever its source format, is validated against
// the embedded #Config schema after defaults are applied.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"gopkg.in/yaml.v3"

	"github.com/roach88/runcache/internal/calib"
	"github.com/roach88/runcache/internal/runfile"
)

//go:embed schema.cue
var schemaSource string

// ErrInvalid is returned when a configuration does not satisfy the schema.
var ErrInvalid = errors.New("config: invalid configuration")

// Defaults.
const (
	DefaultExtension = ".yaml"
	DefaultDatabase  = "runcache.db"
)

// DefaultPrefixes maps the standard reduction roles to their name prefixes.
var DefaultPrefixes = map[string]string{
	"sample":   "SR_",
	"vanadium": "WB_",
	"monovan":  "MV_",
}

// Config is the runcache configuration.
type Config struct {
	Instrument  string   `yaml:"instrument" json:"instrument,omitempty"`
	SearchPaths []string `yaml:"search_paths" json:"search_paths,omitempty"`

	// Extension is the preferred run file extension; AltExtensions are tried
	// after it, in order.
	Extension     string   `yaml:"extension" json:"extension,omitempty"`
	AltExtensions []string `yaml:"alt_extensions" json:"alt_extensions,omitempty"`

	CalibrationFile           string `yaml:"calibration_file" json:"calibration_file,omitempty"`
	PreferEmbeddedCalibration bool   `yaml:"prefer_embedded_calibration" json:"prefer_embedded_calibration,omitempty"`
	SeparateMonitors          bool   `yaml:"separate_monitors" json:"separate_monitors,omitempty"`

	Prefixes map[string]string `yaml:"prefixes" json:"prefixes,omitempty"`
	Database string            `yaml:"database" json:"database,omitempty"`
}

// Load reads the configuration at path from fs. Files ending in ".cue" are
// read as CUE, anything else as YAML.
func Load(fs billy.Filesystem, path string) (*Config, error) {
	data, err := util.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	var cfg *Config
	if filepath.Ext(path) == ".cue" {
		cfg, err = ParseCUE(data, path)
	} else {
		cfg, err = ParseYAML(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// ParseYAML decodes a YAML configuration. Unknown keys are rejected.
func ParseYAML(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalid)
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return finish(&cfg)
}

// ParseCUE evaluates a CUE configuration unified with the #Config schema.
func ParseCUE(data []byte, filename string) (*Config, error) {
	ctx := cuecontext.New()
	def, err := schemaDef(ctx)
	if err != nil {
		return nil, err
	}

	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile cue: %w", err)
	}
	v = def.Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, invalid(err)
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode cue: %w", err)
	}
	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Extension == "" {
		c.Extension = DefaultExtension
	}
	if len(c.SearchPaths) == 0 {
		c.SearchPaths = []string{"."}
	}
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.Prefixes == nil {
		c.Prefixes = make(map[string]string, len(DefaultPrefixes))
	}
	for role, prefix := range DefaultPrefixes {
		if _, ok := c.Prefixes[role]; !ok {
			c.Prefixes[role] = prefix
		}
	}
}

// Validate checks c against the #Config schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	def, err := schemaDef(ctx)
	if err != nil {
		return err
	}

	v := ctx.Encode(c)
	if err := v.Err(); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return invalid(err)
	}
	return nil
}

func schemaDef(ctx *cue.Context) (cue.Value, error) {
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("config: schema: %w", err)
	}
	return schema.LookupPath(cue.ParsePath("#Config")), nil
}

func invalid(err error) error {
	return fmt.Errorf("%w: %s", ErrInvalid, cueerrors.Details(err, nil))
}

// Prefix returns the name prefix configured for role.
func (c *Config) Prefix(role string) (string, bool) {
	p, ok := c.Prefixes[role]
	return p, ok
}

// Roles returns the configured role names in sorted order.
func (c *Config) Roles() []string {
	roles := make([]string, 0, len(c.Prefixes))
	for role := range c.Prefixes {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// MonitorMode returns how monitor spectra are loaded.
func (c *Config) MonitorMode() runfile.MonitorMode {
	if c.SeparateMonitors {
		return runfile.Separate
	}
	return runfile.Combined
}

// CalibrationSource returns the configured default calibration source.
func (c *Config) CalibrationSource() calib.Source {
	return calib.FromFile(c.CalibrationFile)
}

// Extensions returns the preferred extension followed by the alternates.
func (c *Config) Extensions() []string {
	return append([]string{c.Extension}, c.AltExtensions...)
}
