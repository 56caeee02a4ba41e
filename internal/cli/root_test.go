package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "runcache", cmd.Use)
	assert.Contains(t, cmd.Long, "registry")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"name", "load", "suffix", "ls", "evict", "trace"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "runcache.yaml", configFlag.DefValue)

	dbFlag := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "", dbFlag.DefValue)
}

func TestRoleFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"name", "load"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)

		role := sub.Flags().Lookup("role")
		require.NotNil(t, role)
		assert.Equal(t, "sample", role.DefValue)
		assert.NotNil(t, sub.Flags().Lookup("suffix"))
		assert.NotNil(t, sub.Flags().Lookup("component"))
	}
}

func TestLsCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	lsCmd, _, err := cmd.Find([]string{"ls"})
	require.NoError(t, err)

	runFlag := lsCmd.Flags().Lookup("run")
	require.NotNil(t, runFlag)
	assert.Equal(t, "-1", runFlag.DefValue)
}

func TestTraceCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	traceCmd, _, err := cmd.Find([]string{"trace"})
	require.NoError(t, err)

	assert.NotNil(t, traceCmd.Flags().Lookup("name"))
	assert.NotNil(t, traceCmd.Flags().Lookup("session"))
}

func TestFormatValidation(t *testing.T) {
	// Test valid formats
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	// Test invalid formats
	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	code := Execute(context.Background(), []string{"--format", "invalid", "ls"}, out, errOut)

	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, errOut.String(), "invalid format")
	assert.Empty(t, out.String())
}
