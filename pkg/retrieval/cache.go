// Package retrieval provides the memory retriever that orchestrates
// embedding, candidate fetch, scoring, and ranking, plus the bounded result
// cache in front of it.
package retrieval

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/gridironai/expertmem-go/pkg/core"
	"github.com/gridironai/expertmem-go/pkg/scoring"
)

// Cache is the retrieval result cache interface. It is deliberately narrow
// so the in-process LRU can be swapped for a shared cache without touching
// the retriever.
type Cache interface {
	// Get returns the cached result for key, or false on miss. An expired
	// entry counts as a miss.
	Get(key string) (*core.RetrievalResult, bool)

	// Put stores a result snapshot under key.
	Put(key string, result *core.RetrievalResult)

	// Purge drops every entry.
	Purge()
}

// LRUCache is a bounded LRU cache with per-entry TTL.
//
// Eviction is true LRU: access on Get refreshes recency, not just insertion
// order. The TTL check happens at Get time; expired entries are treated as
// misses and removed lazily. The cache is safe for concurrent use, and
// lookups of unrelated keys do not serialize behind eviction bookkeeping
// beyond the underlying structure's short critical sections.
type LRUCache struct {
	lru *expirable.LRU[string, *core.RetrievalResult]
}

// NewLRUCache creates a cache holding at most capacity entries, each valid
// for ttl after insertion.
func NewLRUCache(capacity int, ttl time.Duration) *LRUCache {
	return &LRUCache{
		lru: expirable.NewLRU[string, *core.RetrievalResult](capacity, nil, ttl),
	}
}

// Get returns the cached result for key, or false on miss or expiry.
func (c *LRUCache) Get(key string) (*core.RetrievalResult, bool) {
	return c.lru.Get(key)
}

// Put stores a result snapshot, evicting the least-recently-accessed entry
// when at capacity.
func (c *LRUCache) Put(key string, result *core.RetrievalResult) {
	c.lru.Add(key, result)
}

// Purge drops every entry.
func (c *LRUCache) Purge() {
	c.lru.Purge()
}

// Len returns the number of live entries.
func (c *LRUCache) Len() int {
	return c.lru.Len()
}

// Fingerprint produces the stable cache key for a retrieval.
//
// Only the economically relevant query fields participate: expert, teams,
// week, season, the divisional/primetime flags, and the retrieval
// parameters. Weather and market snapshots are excluded deliberately —
// they drift intra-day and would defeat the cache for repeated predictions
// on the same matchup.
func Fingerprint(expertID string, query *core.GameContext, maxMemories int, threshold float64, strategy scoring.Strategy) string {
	parts := []string{
		expertID,
		query.HomeTeam,
		query.AwayTeam,
		fmt.Sprintf("%d", query.Week),
		fmt.Sprintf("%d", query.Season),
		fmt.Sprintf("%t", query.Divisional),
		fmt.Sprintf("%t", query.Primetime),
		fmt.Sprintf("%d", maxMemories),
		fmt.Sprintf("%.4f", threshold),
		string(strategy),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
