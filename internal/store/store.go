package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/marqueetv/marquee/internal/domain"
)

const (
	// DefaultTTL is used when the caller passes a non-positive lifetime
	DefaultTTL = 5 * time.Minute

	// minTTL is the floor applied to every entry so a misconfigured
	// lifetime cannot turn the cache into a passthrough
	minTTL = 30 * time.Second
)

// Bucket names
var bucketCatalog = []byte("catalog")

// entry wraps a payload with its expiry bookkeeping
type entry struct {
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	CreatedAt int64           `json:"created_at"` // Unix seconds
	TTL       int64           `json:"ttl"`        // Lifetime in seconds
}

func (e *entry) expired(now time.Time) bool {
	return now.Unix()-e.CreatedAt >= e.TTL
}

// Store implements domain.Cache using BoltDB.
type Store struct {
	db     *bolt.DB
	logger *slog.Logger
	mu     sync.RWMutex // Protects memory cache

	// In-memory cache for hot-path reads (promoted on access)
	cache map[string][]byte

	now func() time.Time // Stubbed in tests
}

// New opens the cache under dir, scoped to one storefront territory so
// switching territories never serves another region's rails. An empty
// dir runs the store memory-only with no persistence.
func New(dir, territory string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dir == "" {
		// Memory-only mode (no persistence)
		return &Store{cache: make(map[string][]byte), logger: logger, now: time.Now}, nil
	}

	if territory != "" {
		dir = filepath.Join(dir, hashScope(territory))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, "marquee.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCatalog)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:     db,
		logger: logger,
		cache:  make(map[string][]byte),
		now:    time.Now,
	}, nil
}

func hashScope(scope string) string {
	normalized := strings.TrimSpace(strings.ToLower(scope))
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:6])
}

// Close releases the backing database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return &domain.CacheError{Op: "close", Err: err}
	}
	return nil
}

// Get returns the unexpired payload stored under key. Misses and expired
// entries come back as nil data with no error; an undecodable entry also
// reports the error and is dropped so the next read is a clean miss.
func (s *Store) Get(key string) ([]byte, error) {
	// Check memory cache first
	s.mu.RLock()
	data, promoted := s.cache[key]
	s.mu.RUnlock()

	if !promoted {
		if s.db == nil {
			return nil, nil
		}
		s.db.View(func(tx *bolt.Tx) error {
			b := tx.Bucket(bucketCatalog)
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
			return nil, nil
		}
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		s.drop(key)
		return nil, &domain.CacheError{Op: "get", Key: key, Err: err}
	}

	if e.expired(s.now()) {
		s.drop(key)
		return nil, nil
	}

	if !promoted {
		// Promote to memory cache
		s.mu.Lock()
		s.cache[key] = data
		s.mu.Unlock()
	}

	return e.Data, nil
}

// Set stores data under key for ttl, flooring unreasonable lifetimes.
func (s *Store) Set(key string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if ttl < minTTL {
		ttl = minTTL
	}

	raw, err := json.Marshal(entry{
		Key:       key,
		Data:      json.RawMessage(data),
		CreatedAt: s.now().Unix(),
		TTL:       int64(ttl / time.Second),
	})
	if err != nil {
		return &domain.CacheError{Op: "set", Key: key, Err: err}
	}

	s.mu.Lock()
	s.cache[key] = raw
	s.mu.Unlock()

	if s.db == nil {
		return nil // Memory-only mode
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCatalog).Put([]byte(key), raw)
	})
	if err != nil {
		return &domain.CacheError{Op: "set", Key: key, Err: err}
	}
	return nil
}

// Invalidate drops one key.
func (s *Store) Invalidate(key string) error {
	s.drop(key)
	return nil
}

// InvalidatePrefix drops every key that starts with prefix.
func (s *Store) InvalidatePrefix(prefix string) error {
	s.mu.Lock()
	for k := range s.cache {
		if strings.HasPrefix(k, prefix) {
			delete(s.cache, k)
		}
	}
	s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCatalog)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		prefixBytes := []byte(prefix)
		for k, _ := c.Seek(prefixBytes); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &domain.CacheError{Op: "invalidate", Key: prefix, Err: err}
	}
	return nil
}

// drop removes key from both layers, logging rather than failing when
// the database delete misses.
func (s *Store) drop(key string) {
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()

	if s.db == nil {
		return
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCatalog)
		if b != nil {
			return b.Delete([]byte(key))
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("cache delete failed", "key", key, "error", err)
	}
}
