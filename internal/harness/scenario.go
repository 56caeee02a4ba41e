package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines one resolver scenario.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario checks.
	Description string `yaml:"description"`

	// Instrument is the default instrument short name. Defaults to "ABC".
	Instrument string `yaml:"instrument,omitempty"`

	// Monitors is "separate" (default) or "combined".
	Monitors string `yaml:"monitors,omitempty"`

	// Session is the store session token. Defaults to the fixed test token.
	Session string `yaml:"session,omitempty"`

	// Runs lists the run files written under the data directory.
	Runs []RunFixture `yaml:"runs,omitempty"`

	// Files maps absolute paths to raw content, e.g. calibration tables.
	Files map[string]string `yaml:"files,omitempty"`

	// Resolvers are created in order; a host must be declared first.
	Resolvers []ResolverDef `yaml:"resolvers"`

	Flow       []Step      `yaml:"flow"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// RunFixture describes one run file. A bare integer is shorthand for a
// plain run with the default extension.
type RunFixture struct {
	Run         int    `yaml:"run"`
	Ext         string `yaml:"ext,omitempty"`
	EventMode   bool   `yaml:"event_mode,omitempty"`
	Calibration string `yaml:"calibration,omitempty"`
	NoMonitors  bool   `yaml:"no_monitors,omitempty"`
}

// UnmarshalYAML accepts either a run number or a mapping.
func (f *RunFixture) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*f = RunFixture{}
		return node.Decode(&f.Run)
	}
	type plain RunFixture
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*f = RunFixture(p)
	return nil
}

// ResolverDef declares one resolver.
type ResolverDef struct {
	Role   string `yaml:"role"`
	Prefix string `yaml:"prefix"`

	// Host makes this a dependent resolver reading through to the named role.
	Host string `yaml:"host,omitempty"`

	// Calibration is a detector table file applied on materialization.
	Calibration    string `yaml:"calibration,omitempty"`
	PreferEmbedded bool   `yaml:"prefer_embedded,omitempty"`
}

// Step is one operation in the flow.
type Step struct {
	Resolver string `yaml:"resolver"`
	Op       string `yaml:"op"`
	Arg      string `yaml:"arg,omitempty"`
	Value    any    `yaml:"value,omitempty"`

	// Expect validates the outcome. Without it any error fails the step.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Error is the expected resolver error code, e.g. "NOT_FOUND".
	Error string `yaml:"error,omitempty"`

	// Result is matched against the step result. Objects match as subsets.
	Result any `yaml:"result,omitempty"`
}

// Assertion validates the final registry state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	Resolver string         `yaml:"resolver,omitempty"`
	Name     string         `yaml:"name,omitempty"`
	Names    []string       `yaml:"names,omitempty"`
	Op       string         `yaml:"op,omitempty"`
	Count    int            `yaml:"count,omitempty"`
	Tag      string         `yaml:"tag,omitempty"`
	Expect   map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertRegistryNames    = "registry_names"
	AssertRegistryContains = "registry_contains"
	AssertRegistryAbsent   = "registry_absent"
	AssertEventCount       = "event_count"
	AssertLoadCount        = "load_count"
	AssertIdentity         = "identity"
	AssertCalibration      = "calibration"
)

// Flow operations.
const (
	OpSet           = "set"
	OpGet           = "get"
	OpName          = "name"
	OpSuffix        = "suffix"
	OpComponent     = "component"
	OpSync          = "sync"
	OpRunNumber     = "run_number"
	OpFind          = "find"
	OpExt           = "ext"
	OpMonitors      = "monitors"
	OpExists        = "exists"
	OpRemove        = "remove"
	OpClearMonitors = "clear_monitors"
	OpCalibrate     = "calibrate"
	OpRuns          = "runs"
	OpIdentity      = "identity"
)

var knownOps = map[string]bool{
	OpSet: true, OpGet: true, OpName: true, OpSuffix: true, OpComponent: true,
	OpSync: true, OpRunNumber: true, OpFind: true, OpExt: true, OpMonitors: true,
	OpExists: true, OpRemove: true, OpClearMonitors: true, OpCalibrate: true,
	OpRuns: true, OpIdentity: true,
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	switch s.Monitors {
	case "", "separate", "combined":
	default:
		return fmt.Errorf("monitors must be separate or combined, got %q", s.Monitors)
	}
	if len(s.Resolvers) == 0 {
		return fmt.Errorf("resolvers list is required and must be non-empty")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	roles := make(map[string]bool, len(s.Resolvers))
	for i, def := range s.Resolvers {
		if def.Role == "" {
			return fmt.Errorf("resolvers[%d]: role is required", i)
		}
		if def.Prefix == "" {
			return fmt.Errorf("resolvers[%d]: prefix is required", i)
		}
		if roles[def.Role] {
			return fmt.Errorf("resolvers[%d]: duplicate role %q", i, def.Role)
		}
		if def.Host != "" && !roles[def.Host] {
			return fmt.Errorf("resolvers[%d]: host %q must be declared before %q", i, def.Host, def.Role)
		}
		roles[def.Role] = true
	}

	for i, step := range s.Flow {
		if !roles[step.Resolver] {
			return fmt.Errorf("flow[%d]: unknown resolver %q", i, step.Resolver)
		}
		if !knownOps[step.Op] {
			return fmt.Errorf("flow[%d]: unknown op %q", i, step.Op)
		}
		if step.Op == OpCalibrate && step.Arg == "" {
			return fmt.Errorf("flow[%d]: arg is required for calibrate", i)
		}
		if step.Op != OpSet && step.Value != nil {
			return fmt.Errorf("flow[%d]: value is only allowed for set", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], roles); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion, roles map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRegistryNames:
	case AssertRegistryContains, AssertRegistryAbsent:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for %s", index, a.Type)
		}
	case AssertEventCount, AssertLoadCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertIdentity:
		if !roles[a.Resolver] {
			return fmt.Errorf("assertions[%d]: unknown resolver %q", index, a.Resolver)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for identity", index)
		}
	case AssertCalibration:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for calibration", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
