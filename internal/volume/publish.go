package volume

import (
	"context"
	"fmt"

	"github.com/openebs/moac/internal/log"
	"github.com/openebs/moac/internal/rpc"
	"github.com/openebs/moac/internal/types"
)

// Publish assembles a nexus for the volume and exposes it over protocol,
// returning the device URI. Idempotent: publishing an already-published
// volume with unchanged children returns the existing URI (spec.md
// §4.6.1).
func (m *Manager) Publish(ctx context.Context, id string, protocol types.ShareProtocol) (string, error) {
	m.lock()
	e, ok := m.volumes[id]
	m.unlock()
	if !ok {
		return "", fmt.Errorf("volume %s not found", id)
	}
	vol := e.vol

	replicas := m.reg.GetReplicaSet(id)
	if len(replicas) == 0 {
		return "", fmt.Errorf("volume %s has no replicas to publish", id)
	}

	host, err := m.chooseHost(vol, replicas)
	if err != nil {
		return "", err
	}
	n := m.reg.GetNode(host)
	if n == nil {
		return "", fmt.Errorf("host node %s not found", host)
	}

	children := make([]string, 0, len(replicas))
	for _, rep := range replicas {
		uri := rep.URI
		if rep.Node != host {
			shared, err := m.shareRemote(ctx, rep, protocol)
			if err != nil {
				return "", fmt.Errorf("share replica on pool %s: %w", rep.Pool, err)
			}
			uri = shared
		}
		children = append(children, uri)
	}

	nx, err := n.CreateNexus(ctx, id, vol.Status.Size, children)
	if err != nil {
		return "", fmt.Errorf("create nexus: %w", err)
	}

	devicePath, err := n.PublishNexus(ctx, nx.UUID, protocol)
	if err != nil && !rpc.IsAlreadyExists(err) {
		return "", fmt.Errorf("publish nexus: %w", err)
	}

	m.lock()
	e.vol.Status.PublishedOn = host
	e.vol.Status.Nexus = nx.UUID
	vol = e.vol
	m.unlock()
	if werr := m.writer.UpdateVolume(&vol); werr != nil {
		log.WithVolume(id).Warn().Err(werr).Msg("failed to persist publish status")
	}
	return devicePath, nil
}

// Unpublish tears the nexus down and unshares every remote replica.
// Idempotent across an already-missing nexus (spec.md §4.6.1).
func (m *Manager) Unpublish(ctx context.Context, id string) error {
	m.lock()
	e, ok := m.volumes[id]
	m.unlock()
	if !ok {
		return fmt.Errorf("volume %s not found", id)
	}
	vol := e.vol
	if err := m.unpublish(ctx, &vol); err != nil {
		return err
	}
	m.lock()
	e.vol = vol
	m.unlock()
	if err := m.writer.UpdateVolume(&vol); err != nil {
		log.WithVolume(id).Warn().Err(err).Msg("failed to persist unpublish status")
	}
	return nil
}

func (m *Manager) unpublish(ctx context.Context, vol *types.Volume) error {
	if vol.Status.Nexus == "" {
		return nil
	}
	nx, ok := m.reg.GetNexus(vol.Status.Nexus)
	if !ok {
		vol.Status.Nexus = ""
		vol.Status.PublishedOn = ""
		return nil
	}
	n := m.reg.GetNode(nx.Node)
	if n != nil {
		if err := n.UnpublishNexus(ctx, nx.UUID); err != nil && !rpc.IsNotFound(err) {
			return fmt.Errorf("unpublish nexus: %w", err)
		}
		if err := n.DestroyNexus(ctx, nx.UUID); err != nil && !rpc.IsNotFound(err) {
			return fmt.Errorf("destroy nexus: %w", err)
		}
	}

	for _, rep := range m.reg.GetReplicaSet(vol.UUID) {
		if rep.Node == nx.Node || rep.Share == types.ShareNone {
			continue
		}
		if repNode := m.reg.GetNode(rep.Node); repNode != nil {
			if _, err := repNode.ShareReplica(ctx, rep.UUID, types.ShareNone); err != nil {
				log.WithVolume(vol.UUID).Warn().Err(err).Str("pool", rep.Pool).Msg("failed to unshare replica")
			}
		}
	}

	vol.Status.Nexus = ""
	vol.Status.PublishedOn = ""
	return nil
}

func (m *Manager) shareRemote(ctx context.Context, rep types.Replica, protocol types.ShareProtocol) (string, error) {
	n := m.reg.GetNode(rep.Node)
	if n == nil {
		return "", fmt.Errorf("node %s for replica pool %s not found", rep.Node, rep.Pool)
	}
	if rep.Share == protocol && rep.URI != "" {
		return rep.URI, nil
	}
	return n.ShareReplica(ctx, rep.UUID, protocol)
}

// chooseHost implements the nexus-host preference order of spec.md
// §4.6.1: (a) current publishedOn if still reachable, (b) a node hosting a
// local replica, preferring ONLINE pools, (c) any node with a reachable
// replica.
func (m *Manager) chooseHost(vol types.Volume, replicas []types.Replica) (string, error) {
	if vol.Status.PublishedOn != "" {
		if n := m.reg.GetNode(vol.Status.PublishedOn); n != nil && n.Info().State == types.NodeOnline {
			return vol.Status.PublishedOn, nil
		}
	}

	var bestOnline, bestAny string
	for _, rep := range replicas {
		n := m.reg.GetNode(rep.Node)
		if n == nil || n.Info().State != types.NodeOnline {
			continue
		}
		if bestAny == "" {
			bestAny = rep.Node
		}
		if pool, ok := m.reg.GetPool(rep.Pool); ok && pool.State == types.PoolOnline {
			if bestOnline == "" {
				bestOnline = rep.Node
			}
		}
	}
	if bestOnline != "" {
		return bestOnline, nil
	}
	if bestAny != "" {
		return bestAny, nil
	}
	return "", fmt.Errorf("no reachable replica to host volume %s", vol.UUID)
}
