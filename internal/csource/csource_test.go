package csource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeResourceFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestWatcherDetectsCreateModifyDelete(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir)
	require.NoError(t, err)

	events := make(chan PoolEvent, 16)

	writeResourceFile(t, dir, "pool-1.yaml", "name: pool-1\nnode: node-a\ndisks:\n  - /dev/sdb\n")
	require.NoError(t, w.poll(events))
	ev := <-events
	assert.Equal(t, Created, ev.Type)
	assert.Equal(t, "pool-1", ev.Resource.Name)

	writeResourceFile(t, dir, "pool-1.yaml", "name: pool-1\nnode: node-a\ndisks:\n  - /dev/sdb\n  - /dev/sdc\n")
	require.NoError(t, w.poll(events))
	ev = <-events
	assert.Equal(t, Modified, ev.Type)
	assert.Len(t, ev.Resource.Disks, 2)

	require.NoError(t, os.Remove(filepath.Join(dir, "pool-1.yaml")))
	require.NoError(t, w.poll(events))
	ev = <-events
	assert.Equal(t, Deleted, ev.Type)
}

func TestWatcherIgnoresNonYAMLFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir)
	require.NoError(t, err)

	writeResourceFile(t, dir, "README.md", "not a resource")
	events := make(chan PoolEvent, 4)
	require.NoError(t, w.poll(events))
	assert.Empty(t, events)
}

func TestWatcherSkipsInvalidFileWithoutFailing(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir)
	require.NoError(t, err)

	writeResourceFile(t, dir, "bad.yaml", "node: node-a\n") // missing name
	events := make(chan PoolEvent, 4)
	require.NoError(t, w.poll(events))
	assert.Empty(t, events)
}
