package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/openebs/moac/internal/types"
)

var (
	bucketPoolResources = []byte("pool_resources")
	bucketVolumes       = []byte("volumes")
)

// BoltStore is the BoltDB-backed Store implementation, one file per
// control-plane replica.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database at <dataDir>/moac.db.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "moac.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketPoolResources, bucketVolumes} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func (s *BoltStore) CreatePoolResource(r *types.PoolResource) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketPoolResources).Put([]byte(r.Name), data)
	})
}

func (s *BoltStore) GetPoolResource(name string) (*types.PoolResource, error) {
	var r types.PoolResource
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketPoolResources).Get([]byte(name))
		if data == nil {
			return fmt.Errorf("pool resource not found: %s", name)
		}
		return json.Unmarshal(data, &r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *BoltStore) ListPoolResources() ([]*types.PoolResource, error) {
	var out []*types.PoolResource
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPoolResources).ForEach(func(k, v []byte) error {
			var r types.PoolResource
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			out = append(out, &r)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) DeletePoolResource(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPoolResources).Delete([]byte(name))
	})
}

func (s *BoltStore) CreateVolume(v *types.Volume) error {
	return s.putVolume(v)
}

func (s *BoltStore) UpdateVolume(v *types.Volume) error {
	return s.putVolume(v) // upsert, same as the teacher's Update==Create
}

func (s *BoltStore) putVolume(v *types.Volume) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketVolumes).Put([]byte(v.UUID), data)
	})
}

func (s *BoltStore) GetVolume(uuid string) (*types.Volume, error) {
	var v types.Volume
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketVolumes).Get([]byte(uuid))
		if data == nil {
			return fmt.Errorf("volume not found: %s", uuid)
		}
		return json.Unmarshal(data, &v)
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *BoltStore) ListVolumes() ([]*types.Volume, error) {
	var out []*types.Volume
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVolumes).ForEach(func(k, v []byte) error {
			var vol types.Volume
			if err := json.Unmarshal(v, &vol); err != nil {
				return err
			}
			out = append(out, &vol)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) DeleteVolume(uuid string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVolumes).Delete([]byte(uuid))
	})
}
