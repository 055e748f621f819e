package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "fluxr", cmd.Use)
	assert.Contains(t, cmd.Long, "scenario")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"run", "test", "validate", "trace"}

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

	require.NotNil(t, cmd.PersistentFlags().Lookup("env-file"))
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	for _, name := range []string{"db", "mode", "metrics"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), name)
	}
}

func TestInvalidFormat(t *testing.T) {
	path := writeFile(t, t.TempDir(), "s.yaml", counterScenario)

	_, _, err := execute(t, "run", "--format", "xml", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestEnvFileDefaults(t *testing.T) {
	for _, key := range []string{"FLUXR_FORMAT", "FLUXR_MODE"} {
		if _, set := os.LookupEnv(key); set {
			t.Skipf("%s is set in the environment", key)
		}
		t.Cleanup(func() { os.Unsetenv(key) })
	}

	dir := t.TempDir()
	envFile := writeFile(t, dir, "test.env", "FLUXR_FORMAT=json\nFLUXR_MODE=DIFF\n")
	path := writeFile(t, dir, "s.yaml", counterScenario)

	out, _, err := execute(t, "run", "--env-file", envFile, path)
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "DIFF", resp.Data.Mode)
}

func TestEnvFileMissing(t *testing.T) {
	path := writeFile(t, t.TempDir(), "s.yaml", counterScenario)

	_, _, err := execute(t, "run", "--env-file", filepath.Join(t.TempDir(), "nope.env"), path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}
