package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/runcache/internal/meta"
)

// Snapshot is the deterministic record of a scenario run compared against
// golden files.
type Snapshot struct {
	ScenarioName string
	Result       *Result
}

// toCanonicalMap converts the snapshot into plain maps that
// meta.MarshalCanonical accepts. Empty fields are left out.
func (s *Snapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Result.Trace))
	for i, ev := range s.Result.Trace {
		m := map[string]any{
			"step":     ev.Step,
			"resolver": ev.Resolver,
			"op":       ev.Op,
		}
		if ev.Arg != "" {
			m["arg"] = ev.Arg
		}
		if ev.Value != nil {
			m["value"] = ev.Value
		}
		if ev.Result != nil {
			m["result"] = ev.Result
		}
		if ev.Error != "" {
			m["error"] = ev.Error
		}
		trace[i] = m
	}

	events := make([]any, len(s.Result.Events))
	for i, ev := range s.Result.Events {
		m := map[string]any{
			"seq":     ev.Seq,
			"session": ev.Session,
			"op":      ev.Op,
			"name":    ev.Name,
		}
		if ev.Target != "" {
			m["target"] = ev.Target
		}
		events[i] = m
	}

	names := make([]any, len(s.Result.Names))
	for i, n := range s.Result.Names {
		names[i] = n
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         trace,
		"events":        events,
		"names":         names,
	}
}

// MarshalCanonical renders the snapshot as canonical JSON.
func (s *Snapshot) MarshalCanonical() ([]byte, error) {
	v, err := meta.FromAny(s.toCanonicalMap())
	if err != nil {
		return nil, err
	}
	return meta.MarshalCanonical(v)
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Step and assertion failures are returned in the result; the caller
// decides whether they fail the test.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against the golden file for
// name without re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	snapshot := Snapshot{ScenarioName: name, Result: result}
	data, err := snapshot.MarshalCanonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
