// Package cache implements the two-tier CacheStore from spec.md §3/§4.7:
// an in-process tier-1 map (L1, authoritative on hit) backed by a
// filesystem tier-2 (L2, durable across process restarts). The tier-1
// structure is adapted from the teacher's cache-manager/cache.go L1Cache —
// same RWMutex-over-map shape, same lazy-expiry-on-Get, without the
// recency list — sized down from an LRU-evicting cache (the teacher's L1 has a bounded entry
// count for a long-running service) to a pure TTL cache (this client's
// process lifetime is one CLI invocation, so unbounded growth within that
// lifetime isn't the risk the teacher's design was managing).
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tra-cli/tra/internal/model"
)

// Store is the two-tier cache. Tier-1 is authoritative on hit; tier-2
// promotes into tier-1 on hit; writes go to both, except that a Store
// created with an empty dir has no tier-2 and keeps everything in tier-1.
type Store struct {
	mu    sync.RWMutex
	tier1 map[string]model.CacheEntry

	dir     string // tier-2 root directory; empty disables tier-2
	matcher *patternMatcher
}

// New creates a Store whose tier-2 lives under dir. If dir is empty, only
// tier-1 is used (suitable for the alert in-memory-only cache).
func New(dir string) *Store {
	return &Store{
		tier1: make(map[string]model.CacheEntry),
		dir:   dir,
	}
}

// Get returns the cached value for key if present and unexpired. It checks
// tier-1 first; on a tier-1 miss it consults tier-2 and promotes a hit
// back into tier-1.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	if entry, ok := s.getTier1(key); ok {
		return entry.Value, true
	}

	if s.dir == "" {
		return nil, false
	}

	entry, ok := s.getTier2(key)
	if !ok {
		return nil, false
	}

	s.setTier1(key, entry)
	return entry.Value, true
}

// Set writes value to tier-1 and, unless the store is tier-1-only, to
// tier-2 as well.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	entry := model.CacheEntry{
		Value:     value,
		ExpiresAt: time.Now().Add(ttl),
		SizeBytes: len(value),
	}

	s.setTier1(key, entry)

	if s.dir == "" {
		return nil
	}
	return s.setTier2(key, entry)
}

// Delete removes key from both tiers.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	delete(s.tier1, key)
	s.mu.Unlock()

	if s.dir != "" {
		_ = os.Remove(s.pathFor(key))
	}
}

func (s *Store) getTier1(key string) (model.CacheEntry, bool) {
	s.mu.RLock()
	entry, ok := s.tier1[key]
	s.mu.RUnlock()
	if !ok {
		return model.CacheEntry{}, false
	}
	if time.Now().After(entry.ExpiresAt) {
		s.mu.Lock()
		delete(s.tier1, key)
		s.mu.Unlock()
		return model.CacheEntry{}, false
	}
	return entry, true
}

func (s *Store) setTier1(key string, entry model.CacheEntry) {
	s.mu.Lock()
	s.tier1[key] = entry
	s.mu.Unlock()
}

// onDiskEntry is the tier-2 file format: the value plus its absolute
// expiry, so a promoted entry can be re-expired correctly.
type onDiskEntry struct {
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Store) getTier2(key string) (model.CacheEntry, bool) {
	data, err := os.ReadFile(s.pathFor(key))
	if err != nil {
		return model.CacheEntry{}, false
	}

	var onDisk onDiskEntry
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return model.CacheEntry{}, false
	}
	if time.Now().After(onDisk.ExpiresAt) {
		_ = os.Remove(s.pathFor(key))
		return model.CacheEntry{}, false
	}

	return model.CacheEntry{
		Value:     onDisk.Value,
		ExpiresAt: onDisk.ExpiresAt,
		SizeBytes: len(onDisk.Value),
	}, true
}

// setTier2 writes atomically: write to a temp file in the same directory,
// then rename over the destination, per spec.md §5's filesystem-atomic
// write policy.
func (s *Store) setTier2(key string, entry model.CacheEntry) error {
	path := s.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("tra: creating cache dir: %w", err)
	}

	data, err := json.Marshal(onDiskEntry{
		Value:     entry.Value,
		ExpiresAt: entry.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("tra: marshaling cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("tra: creating temp cache file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tra: writing temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tra: closing temp cache file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// pathFor maps a cache key to a filesystem path using a pure function:
// safe ASCII segments pass through, anything else (or collision-prone
// path separators) gets percent-encoded, per spec.md §6.3.
func (s *Store) pathFor(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = encodeSegment(seg)
	}
	return filepath.Join(append([]string{s.dir}, segments...)...)
}

func encodeSegment(seg string) string {
	if isSafeSegment(seg) {
		return seg
	}
	var b strings.Builder
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		if isSafeSegment(string(c)) {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

func isSafeSegment(seg string) bool {
	if seg == "" {
		return false
	}
	for _, r := range seg {
		safe := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.'
		if !safe {
			return false
		}
	}
	return true
}
