// Package cluster adds Raft-backed durability for MOAC's desired state.
// Only pool resources and volume specs/status are replicated through
// raft's log — the live observed object graph (Node/Pool/Replica/Nexus)
// stays per-replica, agent-sync-derived state and is never part of the
// FSM, so a leader failover never "resurrects" stale observed data for an
// agent the new leader hasn't synced with yet (spec.md §4.1).
package cluster

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"

	"github.com/openebs/moac/internal/storage"
	"github.com/openebs/moac/internal/types"
)

// FSM implements raft.FSM over a storage.Store, applying commands
// replicated through the raft log.
type FSM struct {
	mu    sync.RWMutex
	store storage.Store
}

// NewFSM wraps store as a raft.FSM.
func NewFSM(store storage.Store) *FSM {
	return &FSM{store: store}
}

// Command is one replicated desired-state mutation.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

const (
	OpCreatePoolResource = "create_pool_resource"
	OpDeletePoolResource = "delete_pool_resource"
	OpCreateVolume       = "create_volume"
	OpUpdateVolume       = "update_volume"
	OpDeleteVolume       = "delete_volume"
)

// Apply applies one committed log entry.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("unmarshal command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case OpCreatePoolResource:
		var r types.PoolResource
		if err := json.Unmarshal(cmd.Data, &r); err != nil {
			return err
		}
		return f.store.CreatePoolResource(&r)

	case OpDeletePoolResource:
		var name string
		if err := json.Unmarshal(cmd.Data, &name); err != nil {
			return err
		}
		return f.store.DeletePoolResource(name)

	case OpCreateVolume:
		var v types.Volume
		if err := json.Unmarshal(cmd.Data, &v); err != nil {
			return err
		}
		return f.store.CreateVolume(&v)

	case OpUpdateVolume:
		var v types.Volume
		if err := json.Unmarshal(cmd.Data, &v); err != nil {
			return err
		}
		return f.store.UpdateVolume(&v)

	case OpDeleteVolume:
		var uuid string
		if err := json.Unmarshal(cmd.Data, &uuid); err != nil {
			return err
		}
		return f.store.DeleteVolume(uuid)

	default:
		return fmt.Errorf("unknown command: %s", cmd.Op)
	}
}

// Snapshot captures the current desired state for raft log compaction.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	pools, err := f.store.ListPoolResources()
	if err != nil {
		return nil, fmt.Errorf("list pool resources: %w", err)
	}
	volumes, err := f.store.ListVolumes()
	if err != nil {
		return nil, fmt.Errorf("list volumes: %w", err)
	}

	return &snapshot{PoolResources: pools, Volumes: volumes}, nil
}

// Restore replaces the store's contents from a snapshot, used when a
// replica joins or falls far enough behind to need one.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap snapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, r := range snap.PoolResources {
		if err := f.store.CreatePoolResource(r); err != nil {
			return fmt.Errorf("restore pool resource: %w", err)
		}
	}
	for _, v := range snap.Volumes {
		if err := f.store.CreateVolume(v); err != nil {
			return fmt.Errorf("restore volume: %w", err)
		}
	}
	return nil
}

type snapshot struct {
	PoolResources []*types.PoolResource
	Volumes       []*types.Volume
}

func (s *snapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *snapshot) Release() {}
