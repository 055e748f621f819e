package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCommand_Valid(t *testing.T) {
	path := writeFile(t, t.TempDir(), "counter.yaml", counterScenario)

	out, _, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ "+path)
}

func TestValidateCommand_Invalid(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "counter.yaml", counterScenario)
	bad := writeFile(t, dir, "bad.yaml", "name: bad\nstores: []\n")

	out, _, err := execute(t, "validate", "--format", "json", good, bad)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Files, 2)
	assert.True(t, resp.Data.Files[0].Valid)
	assert.Equal(t, "counter", resp.Data.Files[0].Name)
	assert.False(t, resp.Data.Files[1].Valid)
	assert.Contains(t, resp.Data.Files[1].Error, "stores list")
}

func TestValidateCommand_NoArgs(t *testing.T) {
	_, _, err := execute(t, "validate")
	require.Error(t, err)
}
