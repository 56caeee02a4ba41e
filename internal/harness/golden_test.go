package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden(t *testing.T) {
	for _, name := range []string{"sample_rename", "vanadium_fallback"} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
		})
	}
}

func TestSnapshot_Canonical(t *testing.T) {
	result := sampleResult()
	snapshot := Snapshot{ScenarioName: "snap", Result: result}

	data, err := snapshot.MarshalCanonical()
	require.NoError(t, err)

	s := string(data)
	assert.True(t, strings.HasPrefix(s, `{"events":[{"name":"SR_ABC000001","op":"add","seq":1,"session":""}`), s)
	assert.Contains(t, s, `"names":["SR_ABC000001RAW","SR_ABC000001RAW_monitors"]`)
	assert.Contains(t, s, `"scenario_name":"snap"`)
	assert.Contains(t, s, `{"op":"set","resolver":"sample","step":1,"value":1}`)
	assert.Contains(t, s, `{"arg":"RAW","op":"suffix","resolver":"sample","result":"SR_ABC000001RAW","step":2}`)
	assert.Contains(t, s, `{"error":"NOT_FOUND","op":"find","resolver":"sample","step":3}`)
	assert.NotContains(t, s, "\n")

	again, err := snapshot.MarshalCanonical()
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestSnapshot_RejectsFloatValues(t *testing.T) {
	result := NewResult()
	result.AddTrace(TraceEvent{Step: 1, Resolver: "sample", Op: "set", Value: 1.5})

	_, err := (&Snapshot{ScenarioName: "float", Result: result}).MarshalCanonical()
	require.Error(t, err)
}
