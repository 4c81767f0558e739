// Package cache keeps successful decomposition queries out of the retry
// loop: character decompositions never change server-side, so a long-lived
// memory+disk cache makes repeat lookups free.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/yxzhu/wubiq/internal/model"
	"github.com/yxzhu/wubiq/internal/query"
)

// Cache is the byte-level contract shared by the tiers.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key derives the stable cache key for one character. The version segment
// invalidates everything when the payload schema changes.
func Key(char string) string {
	hash := sha256.Sum256([]byte(char))
	return "wubiq:v1:" + hex.EncodeToString(hash[:])
}

// Decompositions is the typed front over the layered byte cache.
type Decompositions struct {
	backend Cache
	ttl     time.Duration
}

// NewDecompositions builds the standard memory+disk cache from config.
func NewDecompositions(cfg model.CacheConfig) *Decompositions {
	return &Decompositions{
		backend: NewLayered(10*time.Minute, cfg.Dir, cfg.TTL),
		ttl:     cfg.TTL,
	}
}

// Get returns the cached decomposition for char, if any.
func (d *Decompositions) Get(char string) (*query.Decomposition, bool) {
	raw, ok := d.backend.Get(Key(char))
	if !ok {
		return nil, false
	}
	var dec query.Decomposition
	if err := json.Unmarshal(raw, &dec); err != nil {
		// Stale schema; drop the entry.
		_ = d.backend.Delete(Key(char))
		return nil, false
	}
	return &dec, true
}

// Put stores a decomposition under its character.
func (d *Decompositions) Put(char string, dec *query.Decomposition) error {
	raw, err := json.Marshal(dec)
	if err != nil {
		return err
	}
	return d.backend.Set(Key(char), raw, d.ttl)
}

// Forget drops one character's entry.
func (d *Decompositions) Forget(char string) error {
	return d.backend.Delete(Key(char))
}

// Clear drops every entry.
func (d *Decompositions) Clear() error {
	return d.backend.Clear()
}
