package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/cadence/internal/domain/cadence"
	"github.com/alexisbeaulieu97/cadence/internal/infrastructure/store"
)

// setupWorkspace writes a runtime config backed by a file store in a temp
// directory and returns the config path and the store path.
func setupWorkspace(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	storePath := filepath.Join(dir, "enrollments.json")
	configPath := filepath.Join(dir, "cadence.yaml")

	contents := fmt.Sprintf(`log:
  level: error
  human_readable: false
store:
  driver: file
  dsn: %s
activities:
  send_latency: 0s
  initial_backoff: 1ms
  max_backoff: 1ms
  max_attempts: 1
engine:
  settle_delay: 1ms
`, storePath)
	require.NoError(t, os.WriteFile(configPath, []byte(contents), 0o644))
	return configPath, storePath
}

func seedSnapshots(t *testing.T, storePath string, snapshots ...cadence.Snapshot) {
	t.Helper()
	s, err := store.NewFileStore(storePath)
	require.NoError(t, err)
	for _, snap := range snapshots {
		require.NoError(t, s.Save(context.Background(), snap))
	}
}

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func executeCommand(args ...string) (string, string, error) {
	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}
