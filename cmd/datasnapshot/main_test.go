package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = `{"id":"1","label":"pserver","properties":{"hostname":"ps1"},"outE":[{"id":"e1","label":"org.onap.relationships.inventory.LocatedIn","inV":"2"}]}
{"id":"2","label":"complex","properties":{"physical-location-id":"clli1"}}
`

func setup(t *testing.T) (cfgPath, snapDir string) {
	t.Helper()
	dir := t.TempDir()
	snapDir = filepath.Join(dir, "snapshots")
	require.NoError(t, os.MkdirAll(snapDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(snapDir, "fixture.graphson"), []byte(fixture), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(snapDir, "empty.graphson"), nil, 0o644))

	cfgPath = filepath.Join(dir, "aaiconfig.properties")
	require.NoError(t, os.WriteFile(cfgPath, []byte(strings.Join([]string{
		"STORAGE_BACKEND=inmemory",
		"SNAPSHOT_DIR=" + snapDir,
		"INMEMORY_SNAPSHOT=" + filepath.Join(snapDir, "fixture.graphson"),
	}, "\n")), 0o644))
	return cfgPath, snapDir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTakeByDefault(t *testing.T) {
	cfg, snapDir := setup(t)
	out, err := execute(t, "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Command = JUST_TAKE_SNAPSHOT")
	assert.Contains(t, out, "Snapshot written to "+filepath.Join(snapDir, "dataSnapshot.graphSON."))

	matches, err := filepath.Glob(filepath.Join(snapDir, "dataSnapshot.graphSON.*"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

func TestClear(t *testing.T) {
	cfg, _ := setup(t)
	out, err := execute(t, "-c", cfg, "--wait", "0", "CLEAR_ENTIRE_DATABASE")
	require.NoError(t, err)
	assert.Contains(t, out, "--commit not specified. 2 vertices would have been removed.")

	out, err = execute(t, "-c", cfg, "--wait", "0", "--commit", "CLEAR_ENTIRE_DATABASE")
	require.NoError(t, err)
	assert.Contains(t, out, "Done clearing data. 2 vertices removed.")
}

func TestReload(t *testing.T) {
	cfg, snapDir := setup(t)
	out, err := execute(t, "-c", cfg, "--commit", "RELOAD_DATA", "fixture.graphson")
	require.NoError(t, err)
	assert.Contains(t, out, "We will load data IN from the file = "+filepath.Join(snapDir, "fixture.graphson"))
	assert.Contains(t, out, "we see: 2 vertices in the db.")

	_, err = execute(t, "-c", cfg, "RELOAD_DATA")
	assert.ErrorContains(t, err, "No oldSnapshotFileName passed")

	_, err = execute(t, "-c", cfg, "RELOAD_DATA", "missing.graphson")
	assert.ErrorContains(t, err, "could not be found")

	_, err = execute(t, "-c", cfg, "RELOAD_DATA", "empty.graphson")
	assert.ErrorContains(t, err, "had no data")
}

func TestBadCommand(t *testing.T) {
	cfg, _ := setup(t)
	_, err := execute(t, "-c", cfg, "DROP_EVERYTHING")
	assert.ErrorContains(t, err, "Bad command passed to DataSnapshot: [DROP_EVERYTHING]")
}

func TestListRemoteNeedsBucket(t *testing.T) {
	cfg, _ := setup(t)
	_, err := execute(t, "-c", cfg, "LIST_REMOTE")
	assert.ErrorContains(t, err, "AWS_BUCKET")
}
