package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const counterScenario = `
name: counter
session: cli-session
stores:
  - id: counter
    initial: 0
    on:
      - actions: [inc]
        op: add
        value: 1
actions:
  - name: inc
steps:
  - dispatch: inc
  - dispatch: inc
assertions:
  - type: state
    store: counter
    equals: 2
  - type: history_len
    count: 2
`

const failingScenario = `
name: failing
stores:
  - id: counter
    initial: 0
    on:
      - actions: [inc]
        op: add
actions:
  - name: inc
steps:
  - dispatch: inc
assertions:
  - type: state
    store: counter
    equals: 5
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs the root command with args and returns stdout, stderr and
// the error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func lookupEnvDB() (string, bool) {
	return os.LookupEnv("FLUXR_DB")
}
