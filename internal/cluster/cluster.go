package cluster

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/openebs/moac/internal/log"
	"github.com/openebs/moac/internal/metrics"
	"github.com/openebs/moac/internal/storage"
	"github.com/openebs/moac/internal/types"
)

// applyTimeout bounds how long a Cluster waits for a raft.Apply to commit.
const applyTimeout = 10 * time.Second

// Config configures a single-replica Cluster.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string
}

// Cluster wraps a raft.Raft replicating MOAC's desired state through FSM.
// It is used only when the manager runs with --cluster; otherwise desired
// state is written straight to the BoltStore. A clustered single-replica
// deployment still bootstraps a one-member raft group.
type Cluster struct {
	nodeID string
	raft   *raft.Raft
	fsm    *FSM
	store  storage.Store
}

// New creates a Cluster backed by store (the same BoltStore instance used
// for reads), and starts a background goroutine tracking raft leadership
// into the moac_raft_leader gauge.
func New(cfg Config, store storage.Store) (*Cluster, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	fsm := NewFSM(store)

	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(cfg.NodeID)

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create raft transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("create raft log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("create raft stable store: %w", err)
	}

	r, err := raft.NewRaft(raftConfig, fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("create raft: %w", err)
	}

	future := r.BootstrapCluster(raft.Configuration{
		Servers: []raft.Server{{ID: raftConfig.LocalID, Address: transport.LocalAddr()}},
	})
	// ErrCantBootstrap means an on-disk log already exists from a prior
	// run — rejoining existing state, not an error.
	if err := future.Error(); err != nil && err != raft.ErrCantBootstrap {
		return nil, fmt.Errorf("bootstrap raft cluster: %w", err)
	}

	c := &Cluster{nodeID: cfg.NodeID, raft: r, fsm: fsm, store: store}
	go c.watchLeadership()
	return c, nil
}

func (c *Cluster) watchLeadership() {
	for isLeader := range c.raft.LeaderCh() {
		if isLeader {
			metrics.RaftLeader.Set(1)
			log.Logger.Info().Str("node", c.nodeID).Msg("acquired raft leadership")
		} else {
			metrics.RaftLeader.Set(0)
		}
	}
}

// IsLeader reports whether this replica currently holds raft leadership.
func (c *Cluster) IsLeader() bool {
	return c.raft.State() == raft.Leader
}

func (c *Cluster) apply(op string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	cmd := Command{Op: op, Data: payload}
	b, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	future := c.raft.Apply(b, applyTimeout)
	if err := future.Error(); err != nil {
		return fmt.Errorf("raft apply %s: %w", op, err)
	}
	if respErr, ok := future.Response().(error); ok && respErr != nil {
		return fmt.Errorf("fsm apply %s: %w", op, respErr)
	}
	return nil
}

// CreatePoolResource replicates a new pool resource through raft.
func (c *Cluster) CreatePoolResource(r *types.PoolResource) error {
	return c.apply(OpCreatePoolResource, r)
}

// DeletePoolResource replicates a pool resource deletion through raft.
func (c *Cluster) DeletePoolResource(name string) error {
	return c.apply(OpDeletePoolResource, name)
}

// CreateVolume replicates a new volume through raft.
func (c *Cluster) CreateVolume(v *types.Volume) error {
	return c.apply(OpCreateVolume, v)
}

// UpdateVolume replicates a volume spec/status change through raft.
func (c *Cluster) UpdateVolume(v *types.Volume) error {
	return c.apply(OpUpdateVolume, v)
}

// DeleteVolume replicates a volume deletion through raft.
func (c *Cluster) DeleteVolume(uuid string) error {
	return c.apply(OpDeleteVolume, uuid)
}

// Shutdown stops the raft instance.
func (c *Cluster) Shutdown() error {
	return c.raft.Shutdown().Error()
}
