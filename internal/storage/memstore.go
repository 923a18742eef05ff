package storage

import (
	"fmt"
	"sync"

	"github.com/openebs/moac/internal/types"
)

// MemStore is an in-memory Store, used by tests.
type MemStore struct {
	mu    sync.RWMutex
	pools map[string]*types.PoolResource
	vols  map[string]*types.Volume
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		pools: make(map[string]*types.PoolResource),
		vols:  make(map[string]*types.Volume),
	}
}

func (m *MemStore) CreatePoolResource(r *types.PoolResource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.pools[r.Name] = &cp
	return nil
}

func (m *MemStore) GetPoolResource(name string) (*types.PoolResource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.pools[name]
	if !ok {
		return nil, fmt.Errorf("pool resource not found: %s", name)
	}
	cp := *r
	return &cp, nil
}

func (m *MemStore) ListPoolResources() ([]*types.PoolResource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.PoolResource, 0, len(m.pools))
	for _, r := range m.pools {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemStore) DeletePoolResource(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pools, name)
	return nil
}

func (m *MemStore) CreateVolume(v *types.Volume) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *v
	m.vols[v.UUID] = &cp
	return nil
}

func (m *MemStore) UpdateVolume(v *types.Volume) error {
	return m.CreateVolume(v)
}

func (m *MemStore) GetVolume(uuid string) (*types.Volume, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vols[uuid]
	if !ok {
		return nil, fmt.Errorf("volume not found: %s", uuid)
	}
	cp := *v
	return &cp, nil
}

func (m *MemStore) ListVolumes() ([]*types.Volume, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.Volume, 0, len(m.vols))
	for _, v := range m.vols {
		cp := *v
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemStore) DeleteVolume(uuid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vols, uuid)
	return nil
}

func (m *MemStore) Close() error { return nil }
