package node

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticDiscovererParsesEndpoints(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nodes.yaml")
	content := "- name: node-a\n  endpoint: node-a:10124\n- name: node-b\n  endpoint: node-b:10124\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	d := NewStaticDiscoverer(path)
	endpoints, err := d.Discover()
	require.NoError(t, err)
	assert.Equal(t, []Endpoint{
		{Name: "node-a", Endpoint: "node-a:10124"},
		{Name: "node-b", Endpoint: "node-b:10124"},
	}, endpoints)
}

func TestStaticDiscovererMissingFile(t *testing.T) {
	d := NewStaticDiscoverer(filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := d.Discover()
	assert.Error(t, err)
}
