package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/runcache/internal/meta"
	"github.com/roach88/runcache/internal/registry"
	"github.com/roach88/runcache/internal/resolver"
	"github.com/roach88/runcache/internal/store"
)

// AssertionContext provides what assertions need beyond the result.
type AssertionContext struct {
	Ctx       context.Context
	Store     *store.Store
	Resolvers map[string]resolver.Accessor
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s.%s", ev.Step, ev.Resolver, ev.Op)
			if ev.Arg != "" {
				fmt.Fprintf(&buf, " %s", ev.Arg)
			}
			if ev.Value != nil {
				fmt.Fprintf(&buf, " %v", ev.Value)
			}
			if ev.Error != "" {
				fmt.Fprintf(&buf, " -> %s", ev.Error)
			} else if ev.Result != nil {
				fmt.Fprintf(&buf, " -> %v", ev.Result)
			}
			buf.WriteByte('\n')
		}
	}

	return buf.String()
}

func assertRegistryNames(result *Result, a Assertion) error {
	want := a.Names
	if want == nil {
		want = []string{}
	}
	got := result.Names
	if got == nil {
		got = []string{}
	}
	if slices.Equal(want, got) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%v", want),
		Actual:   fmt.Sprintf("%v", got),
		Trace:    result.Trace,
	}
}

func assertRegistryContains(result *Result, a Assertion, present bool) error {
	found := slices.Contains(result.Names, a.Name)
	if found == present {
		return nil
	}
	expected, actual := "registered", "absent"
	if !present {
		expected, actual = actual, expected
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%s %s", a.Name, expected),
		Actual:   fmt.Sprintf("%s %s (names: %v)", a.Name, actual, result.Names),
		Trace:    result.Trace,
	}
}

// assertEventCount counts registry events, filtered by op and name when
// given.
func assertEventCount(result *Result, a Assertion) error {
	count := 0
	for _, ev := range result.Events {
		if a.Op != "" && ev.Op != a.Op {
			continue
		}
		if a.Name != "" && ev.Name != a.Name && ev.Target != a.Name {
			continue
		}
		count++
	}
	if count == a.Count {
		return nil
	}

	filter := describeFilter(a.Op, a.Name)
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%d events%s", a.Count, filter),
		Actual:   fmt.Sprintf("%d events%s", count, filter),
		Trace:    result.Trace,
	}
}

func describeFilter(op, name string) string {
	var parts []string
	if op != "" {
		parts = append(parts, "op="+op)
	}
	if name != "" {
		parts = append(parts, "name="+name)
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

func assertLoadCount(result *Result, a Assertion) error {
	if result.Loads == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%d run file loads", a.Count),
		Actual:   fmt.Sprintf("%d run file loads", result.Loads),
		Trace:    result.Trace,
	}
}

func assertIdentity(result *Result, a Assertion, actx *AssertionContext) error {
	acc, ok := actx.Resolvers[a.Resolver]
	if !ok {
		return fmt.Errorf("identity: unknown resolver %q", a.Resolver)
	}
	got := identityMap(acc.Identity())
	if matchValue(got, a.Expect) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%s identity matching %v", a.Resolver, a.Expect),
		Actual:   fmt.Sprintf("%v", got),
		Trace:    result.Trace,
	}
}

// assertCalibration checks the calibration tag of a registered workspace.
// An empty tag asserts the workspace is uncalibrated.
func assertCalibration(result *Result, a Assertion, actx *AssertionContext) error {
	ws, err := actx.Store.Get(actx.Ctx, a.Name)
	if errors.Is(err, registry.ErrNotFound) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s calibrated as %q", a.Name, a.Tag),
			Actual:   fmt.Sprintf("%s not registered", a.Name),
			Trace:    result.Trace,
		}
	}
	if err != nil {
		return fmt.Errorf("calibration: %w", err)
	}
	if ws.Calibration == a.Tag {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%s calibrated as %q", a.Name, a.Tag),
		Actual:   fmt.Sprintf("calibration %q", ws.Calibration),
		Trace:    result.Trace,
	}
}

// matchValue reports whether actual matches expected. Objects in expected
// match as subsets; everything else compares by canonical form.
func matchValue(actual, expected any) bool {
	if want, ok := expected.(map[string]any); ok {
		got, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		for k, v := range want {
			gv, present := got[k]
			if !present || !matchValue(gv, v) {
				return false
			}
		}
		return true
	}
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}

	a, err := canonical(actual)
	if err != nil {
		return false
	}
	e, err := canonical(expected)
	if err != nil {
		return false
	}
	return bytes.Equal(a, e)
}

func canonical(v any) ([]byte, error) {
	mv, err := meta.FromAny(v)
	if err != nil {
		return nil, err
	}
	return meta.MarshalCanonical(mv)
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertRegistryNames:
			err = assertRegistryNames(result, a)
		case AssertRegistryContains:
			err = assertRegistryContains(result, a, true)
		case AssertRegistryAbsent:
			err = assertRegistryContains(result, a, false)
		case AssertEventCount:
			err = assertEventCount(result, a)
		case AssertLoadCount:
			err = assertLoadCount(result, a)
		case AssertIdentity:
			err = assertIdentity(result, a, actx)
		case AssertCalibration:
			err = assertCalibration(result, a, actx)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}
