package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openebs/moac/internal/api"
	"github.com/openebs/moac/internal/cluster"
	"github.com/openebs/moac/internal/log"
	"github.com/openebs/moac/internal/node"
	"github.com/openebs/moac/internal/pooloperator"
	"github.com/openebs/moac/internal/registry"
	"github.com/openebs/moac/internal/rpc"
	"github.com/openebs/moac/internal/storage"
	"github.com/openebs/moac/internal/types"
	"github.com/openebs/moac/internal/volume"
)

var managerCmd = &cobra.Command{
	Use:   "manager",
	Short: "Manager node operations",
}

var managerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a MOAC manager",
	Long: `Start a MOAC manager: connects to the agents named in --nodes,
runs the Pool Operator and Volume Manager reconciliation loops against
them, and serves the CSI-adjacent gRPC API and health/metrics endpoints.`,
	RunE: runManagerStart,
}

func init() {
	managerCmd.AddCommand(managerStartCmd)

	managerStartCmd.Flags().String("node-id", "manager-1", "Unique node ID, used as the raft server ID when --cluster is set")
	managerStartCmd.Flags().String("data-dir", "./moac-data", "Data directory for persisted state")
	managerStartCmd.Flags().String("resource-dir", "./moac-data/pools", "Directory of declarative pool resource YAML files")
	managerStartCmd.Flags().String("nodes", "./moac-data/nodes.yaml", "YAML file listing storage agent endpoints to connect to")
	managerStartCmd.Flags().String("api-addr", "127.0.0.1:10000", "Listen address for the CSI-adjacent gRPC API")
	managerStartCmd.Flags().String("health-addr", "127.0.0.1:9090", "Listen address for /health, /ready and /metrics")
	managerStartCmd.Flags().Bool("cluster", false, "Replicate desired state through raft instead of a local BoltDB file")
	managerStartCmd.Flags().String("bind-addr", "127.0.0.1:7000", "Raft bind address, only used with --cluster")
}

func runManagerStart(cmd *cobra.Command, args []string) error {
	nodeID, _ := cmd.Flags().GetString("node-id")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	resourceDir, _ := cmd.Flags().GetString("resource-dir")
	nodesFile, _ := cmd.Flags().GetString("nodes")
	apiAddr, _ := cmd.Flags().GetString("api-addr")
	healthAddr, _ := cmd.Flags().GetString("health-addr")
	clustered, _ := cmd.Flags().GetBool("cluster")
	bindAddr, _ := cmd.Flags().GetString("bind-addr")

	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return fmt.Errorf("open data directory: %w", err)
	}
	defer store.Close()

	reg := registry.New()

	var writer desiredWriter
	var clusterStatus api.ClusterStatus
	if clustered {
		cl, err := cluster.New(cluster.Config{NodeID: nodeID, BindAddr: bindAddr, DataDir: dataDir}, store)
		if err != nil {
			return fmt.Errorf("start cluster: %w", err)
		}
		defer cl.Shutdown()
		writer = cl
		clusterStatus = cl
	} else {
		writer = store
	}

	if err := connectNodes(reg, nodesFile); err != nil {
		log.Logger.Warn().Err(err).Msg("no agents connected at startup")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	op, err := pooloperator.New(reg, store, writer, resourceDir)
	if err != nil {
		return fmt.Errorf("create pool operator: %w", err)
	}
	if err := op.Start(ctx); err != nil {
		return fmt.Errorf("start pool operator: %w", err)
	}

	volMgr := volume.NewManager(reg, writer)
	if err := volMgr.LoadExisting(store); err != nil {
		return fmt.Errorf("load existing volumes: %w", err)
	}
	volMgr.Start(ctx)

	svc := api.NewCSIService(volMgr, reg)
	apiServer := api.NewServer(svc)
	errCh := make(chan error, 2)
	go func() {
		if err := apiServer.Serve(apiAddr); err != nil {
			errCh <- fmt.Errorf("csi api server: %w", err)
		}
	}()

	healthServer := api.NewHealthServer(reg, clusterStatus)
	go func() {
		if err := healthServer.Serve(healthAddr); err != nil {
			errCh <- fmt.Errorf("health server: %w", err)
		}
	}()

	log.Logger.Info().Str("api_addr", apiAddr).Str("health_addr", healthAddr).Msg("moac manager started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Logger.Info().Msg("shutting down")
	case err := <-errCh:
		log.Logger.Error().Err(err).Msg("server error, shutting down")
	}

	cancel()
	apiServer.Stop()
	return nil
}

// desiredWriter is the union pooloperator.DesiredWriter and
// volume.DesiredWriter narrow interfaces both storage.Store and
// *cluster.Cluster satisfy structurally.
type desiredWriter interface {
	CreatePoolResource(r *types.PoolResource) error
	DeletePoolResource(name string) error
	CreateVolume(v *types.Volume) error
	UpdateVolume(v *types.Volume) error
	DeleteVolume(uuid string) error
}

func connectNodes(reg *registry.Registry, nodesFile string) error {
	discoverer := node.NewStaticDiscoverer(nodesFile)
	endpoints, err := discoverer.Discover()
	if err != nil {
		return err
	}
	for _, ep := range endpoints {
		agent, err := rpc.Acquire(ep.Endpoint)
		if err != nil {
			log.Logger.Warn().Err(err).Str("node", ep.Name).Msg("failed to connect to agent")
			continue
		}
		n := node.New(ep.Name, ep.Endpoint, agent, reg.Broker)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		n.Sync(ctx)
		cancel()
		reg.AddNode(n)
		n.Start(context.Background())
	}
	return nil
}
