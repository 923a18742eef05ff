package node

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Endpoint names one agent to connect to: a node name and the gRPC
// address its mayastor-style agent listens on (spec.md §6's
// mayastor://<node>/<host>:<port> node-id format, minus the scheme).
type Endpoint struct {
	Name     string `yaml:"name"`
	Endpoint string `yaml:"endpoint"`
}

// Discoverer resolves the set of agents a Registry should connect Nodes
// to, standing in for the external node-discovery/membership component
// spec.md §6 assumes but does not define.
type Discoverer interface {
	Discover() ([]Endpoint, error)
}

// StaticDiscoverer reads a fixed YAML list of endpoints from disk, the
// simplest Discoverer a single-cluster deployment needs.
type StaticDiscoverer struct {
	path string
}

// NewStaticDiscoverer returns a Discoverer backed by the YAML file at
// path (a list of {name, endpoint} entries).
func NewStaticDiscoverer(path string) *StaticDiscoverer {
	return &StaticDiscoverer{path: path}
}

func (d *StaticDiscoverer) Discover() ([]Endpoint, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return nil, fmt.Errorf("read node list %s: %w", d.path, err)
	}
	var endpoints []Endpoint
	if err := yaml.Unmarshal(data, &endpoints); err != nil {
		return nil, fmt.Errorf("parse node list %s: %w", d.path, err)
	}
	return endpoints, nil
}
