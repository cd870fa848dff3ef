package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nlabs/audiobible/internal/domain"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	bucketMeta     = []byte("meta")
	bucketFiles    = []byte("files")
	bucketFilesIdx = []byte("files_idx_time") // by-downloadedAt secondary index
	bucketPlans    = []byte("plans")
	bucketBibles   = []byte("bibles")
)

var keySchemaVersion = []byte("schema_version")

// schemaVersion is the current on-disk schema. Migrations are additive:
// opening an older store runs only the missing steps, and re-running a
// step is a no-op.
const schemaVersion = 3

const dbFileName = "audiobible.db"

// migrations holds one step per schema version, applied in order.
// Step N upgrades a store from version N-1 to N.
var migrations = []func(tx *bolt.Tx) error{
	// v1: cached audio files + by-downloadedAt index
	func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketFiles); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketFilesIdx)
		return err
	},
	// v2: reading plans
	func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPlans)
		return err
	},
	// v3: bible versions
	func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBibles)
		return err
	},
}

// BoltStore implements domain.Store using BoltDB.
type BoltStore struct {
	db     *bolt.DB
	logger *slog.Logger
}

// Open opens (or creates) the store under dir and applies any pending
// migrations. A store held open by another process surfaces as
// domain.ErrStoreBusy; an on-disk schema newer than this build surfaces
// as domain.ErrSchemaMismatch.
func Open(dir string, logger *slog.Logger) (*BoltStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	dbPath := filepath.Join(dir, dbFileName)
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, domain.ErrStoreBusy
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	s := &BoltStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenWithRecovery opens the store, recovering from schema or structural
// corruption by destroying and recreating it from empty. If even
// recreation fails, an inert in-memory store is returned so callers
// degrade gracefully instead of crashing. An empty dir selects the
// memory store directly (no persistence).
func OpenWithRecovery(dir string, logger *slog.Logger) (domain.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		return NewMemoryStore(), nil
	}

	s, err := Open(dir, logger)
	if err == nil {
		return s, nil
	}
	if errors.Is(err, domain.ErrStoreBusy) {
		// User-actionable: do not silently wipe a store another session holds.
		return nil, err
	}

	logger.Warn("store open failed, destroying and recreating", "error", err)
	if rmErr := os.Remove(filepath.Join(dir, dbFileName)); rmErr != nil && !os.IsNotExist(rmErr) {
		logger.Error("could not remove corrupt store", "error", rmErr)
		return NewMemoryStore(), nil
	}

	s, err = Open(dir, logger)
	if err != nil {
		logger.Error("store recreation failed, degrading to memory store", "error", err)
		return NewMemoryStore(), nil
	}
	return s, nil
}

// migrate applies pending migration steps and records the new version.
func (s *BoltStore) migrate() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}

		current := 0
		if v := meta.Get(keySchemaVersion); v != nil {
			current = int(binary.BigEndian.Uint64(v))
		}
		if current > schemaVersion {
			return fmt.Errorf("%w: on-disk version %d, supported %d",
				domain.ErrSchemaMismatch, current, schemaVersion)
		}

		for step := current; step < schemaVersion; step++ {
			if err := migrations[step](tx); err != nil {
				return fmt.Errorf("migration to v%d: %w", step+1, err)
			}
			s.logger.Info("store migrated", "from", step, "to", step+1)
		}

		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(schemaVersion))
		return meta.Put(keySchemaVersion, buf)
	})
}

func (s *BoltStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SchemaVersion reports the on-disk schema version.
func (s *BoltStore) SchemaVersion() int {
	var v int
	s.db.View(func(tx *bolt.Tx) error {
		if meta := tx.Bucket(bucketMeta); meta != nil {
			if b := meta.Get(keySchemaVersion); b != nil {
				v = int(binary.BigEndian.Uint64(b))
			}
		}
		return nil
	})
	return v
}

// === Generic helpers ===

func (s *BoltStore) get(bucket []byte, key string, dest interface{}) bool {
	var data []byte
	s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if data == nil {
		return false
	}
	return json.Unmarshal(data, dest) == nil
}

func (s *BoltStore) set(bucket []byte, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("%w: missing bucket %s", domain.ErrSchemaMismatch, bucket)
		}
		return b.Put([]byte(key), data)
	})
}

func (s *BoltStore) delete(bucket []byte, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

// === Cached audio ===

// timeIndexKey orders entries by download time; the id suffix keeps
// keys unique when two entries share a timestamp.
func timeIndexKey(downloadedAt int64, id string) []byte {
	return []byte(fmt.Sprintf("%020d|%s", downloadedAt, id))
}

func (s *BoltStore) PutAudio(entry *domain.CachedAudio) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		files := tx.Bucket(bucketFiles)
		idx := tx.Bucket(bucketFilesIdx)

		// Replace the index entry if the record already exists.
		if old := files.Get([]byte(entry.ID)); old != nil {
			var prev domain.CachedAudio
			if json.Unmarshal(old, &prev) == nil {
				if err := idx.Delete(timeIndexKey(prev.DownloadedAt, prev.ID)); err != nil {
					return err
				}
			}
		}

		if err := files.Put([]byte(entry.ID), data); err != nil {
			return err
		}
		return idx.Put(timeIndexKey(entry.DownloadedAt, entry.ID), []byte(entry.ID))
	})
}

func (s *BoltStore) GetAudio(key string) (*domain.CachedAudio, bool) {
	var entry domain.CachedAudio
	if !s.get(bucketFiles, key, &entry) {
		return nil, false
	}
	return &entry, true
}

func (s *BoltStore) DeleteAudio(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		files := tx.Bucket(bucketFiles)
		idx := tx.Bucket(bucketFilesIdx)

		if old := files.Get([]byte(key)); old != nil {
			var prev domain.CachedAudio
			if json.Unmarshal(old, &prev) == nil {
				if err := idx.Delete(timeIndexKey(prev.DownloadedAt, prev.ID)); err != nil {
					return err
				}
			}
		}
		return files.Delete([]byte(key))
	})
}

func (s *BoltStore) AudioKeys() []string {
	var keys []string
	s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFiles)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys
}

func (s *BoltStore) AudioByDownloadTime() []*domain.CachedAudio {
	var entries []*domain.CachedAudio
	s.db.View(func(tx *bolt.Tx) error {
		files := tx.Bucket(bucketFiles)
		idx := tx.Bucket(bucketFilesIdx)
		if files == nil || idx == nil {
			return nil
		}
		c := idx.Cursor()
		for k, id := c.First(); k != nil; k, id = c.Next() {
			data := files.Get(id)
			if data == nil {
				continue // stale index entry
			}
			var entry domain.CachedAudio
			if json.Unmarshal(data, &entry) == nil {
				entries = append(entries, &entry)
			}
		}
		return nil
	})
	return entries
}

func (s *BoltStore) AudioCount() int {
	var n int
	s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(bucketFiles); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n
}

func (s *BoltStore) ClearAudio() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketFiles, bucketFilesIdx} {
			if err := tx.DeleteBucket(bucket); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return err
			}
			if _, err := tx.CreateBucket(bucket); err != nil {
				return err
			}
		}
		return nil
	})
}

// === Reading plans ===

func (s *BoltStore) PutPlan(plan *domain.Plan) error {
	return s.set(bucketPlans, plan.ID, plan)
}

func (s *BoltStore) GetPlan(id string) (*domain.Plan, bool) {
	var plan domain.Plan
	if !s.get(bucketPlans, id, &plan) {
		return nil, false
	}
	return &plan, true
}

func (s *BoltStore) AllPlans() []*domain.Plan {
	var plans []*domain.Plan
	s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPlans)
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var plan domain.Plan
			if json.Unmarshal(v, &plan) == nil {
				plans = append(plans, &plan)
			}
			return nil
		})
	})
	return plans
}

func (s *BoltStore) DeletePlan(id string) error {
	return s.delete(bucketPlans, id)
}

// === Bible versions ===

func (s *BoltStore) PutBible(v *domain.BibleVersion) error {
	return s.set(bucketBibles, v.ID, v)
}

func (s *BoltStore) GetBible(id string) (*domain.BibleVersion, bool) {
	var v domain.BibleVersion
	if !s.get(bucketBibles, id, &v) {
		return nil, false
	}
	return &v, true
}

func (s *BoltStore) AllBibles() []*domain.BibleVersion {
	var versions []*domain.BibleVersion
	s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBibles)
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var bv domain.BibleVersion
			if json.Unmarshal(v, &bv) == nil {
				versions = append(versions, &bv)
			}
			return nil
		})
	})
	return versions
}

func (s *BoltStore) DeleteBible(id string) error {
	return s.delete(bucketBibles, id)
}
