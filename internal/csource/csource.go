// Package csource provides the declarative resource watcher the Pool
// Operator reconciles against (spec.md §6's "Pool resources (desired
// state)" surface). The real system watches Kubernetes CRDs; that client
// is out of scope here, so this implements the same watcher contract over
// a directory of YAML files, polled on an interval — the file-backed
// stand-in spec.md §6 calls for.
package csource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openebs/moac/internal/log"
	"github.com/openebs/moac/internal/types"
)

// EventType mirrors the create/destroy/modify verbs the Pool Operator's
// resource reconciliation switches on (spec.md §4.5.1).
type EventType string

const (
	Created  EventType = "create"
	Deleted  EventType = "destroy"
	Modified EventType = "modify"
)

// PoolEvent is one change to a pool resource file.
type PoolEvent struct {
	Type     EventType
	Resource types.PoolResource
}

// pollInterval matches the teacher's ticker-driven sync cadences.
const pollInterval = 2 * time.Second

// poolFile is the on-disk YAML shape for a pool resource.
type poolFile struct {
	Name  string   `yaml:"name"`
	Node  string   `yaml:"node"`
	Disks []string `yaml:"disks"`
}

// Watcher polls a directory of `*.yaml` pool-resource files and emits one
// PoolEvent per create/modify/delete, detected by content comparison.
type Watcher struct {
	dir   string
	known map[string]types.PoolResource
}

// NewWatcher creates a Watcher rooted at dir. The directory is created if
// missing so a fresh deployment doesn't need to pre-provision it.
func NewWatcher(dir string) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create resource dir: %w", err)
	}
	return &Watcher{dir: dir, known: make(map[string]types.PoolResource)}, nil
}

// Run polls until ctx is done, sending one PoolEvent per detected change
// on events. Run performs one poll synchronously before returning control
// to the caller via the returned initial-load error, then continues
// polling in the background.
func (w *Watcher) Run(ctx context.Context, events chan<- PoolEvent) error {
	if err := w.poll(events); err != nil {
		return err
	}

	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := w.poll(events); err != nil {
					log.Logger.Error().Err(err).Msg("resource watcher poll failed")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (w *Watcher) poll(events chan<- PoolEvent) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read resource dir: %w", err)
	}

	seen := make(map[string]bool, len(entries))
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names) // deterministic emission order for tests

	for _, name := range names {
		res, err := w.load(name)
		if err != nil {
			log.Logger.Error().Err(err).Str("file", name).Msg("skipping invalid pool resource file")
			continue
		}
		seen[res.Name] = true

		prev, existed := w.known[res.Name]
		switch {
		case !existed:
			events <- PoolEvent{Type: Created, Resource: res}
		case !equalResource(prev, res):
			events <- PoolEvent{Type: Modified, Resource: res}
		}
		w.known[res.Name] = res
	}

	for name, res := range w.known {
		if !seen[name] {
			delete(w.known, name)
			events <- PoolEvent{Type: Deleted, Resource: res}
		}
	}
	return nil
}

func (w *Watcher) load(filename string) (types.PoolResource, error) {
	data, err := os.ReadFile(filepath.Join(w.dir, filename))
	if err != nil {
		return types.PoolResource{}, err
	}
	var pf poolFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return types.PoolResource{}, err
	}
	if pf.Name == "" {
		return types.PoolResource{}, fmt.Errorf("pool resource in %s missing name", filename)
	}
	return types.PoolResource{Name: pf.Name, Node: pf.Node, Disks: pf.Disks}, nil
}

func equalResource(a, b types.PoolResource) bool {
	if a.Name != b.Name || a.Node != b.Node || len(a.Disks) != len(b.Disks) {
		return false
	}
	for i := range a.Disks {
		if a.Disks[i] != b.Disks[i] {
			return false
		}
	}
	return true
}
