package planner

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"mcpsentry/pkg/discovery"
	"mcpsentry/pkg/llm"
	"mcpsentry/pkg/logger"
)

// StoredBriefing is a mission briefing as persisted, keyed by target
// identity plus the discovery fingerprint it was derived from.
type StoredBriefing struct {
	Target      string
	Fingerprint string
	Briefing    llm.MissionBriefing
	CachedAt    time.Time
}

// BriefingStore is the persistence the cache writes through to. Latest
// returns (nil, nil) when nothing is cached for the target.
type BriefingStore interface {
	LatestForTarget(target string) (*StoredBriefing, error)
	Save(b *StoredBriefing) error
}

// CachedBriefing is what callers receive: the briefing plus the cache
// provenance flags the API surfaces.
type CachedBriefing struct {
	Briefing    llm.MissionBriefing `json:"briefing"`
	Fingerprint string              `json:"fingerprint"`
	CachedAt    time.Time           `json:"cached_at"`
	CacheHit    bool                `json:"cache_hit"`
	Stale       bool                `json:"stale"`
}

// BriefingCache caches mission briefings across runs for the same target.
// Staleness is soft: a briefing derived from an older discovery fingerprint
// is still served, flagged stale, rather than forcing a synchronous refresh.
// Concurrent refreshes of the same key are last-writer-wins; the inputs are
// the same so the race is idempotent.
type BriefingCache struct {
	store  BriefingStore
	client llm.Client
	logger *logger.Logger

	mu  sync.RWMutex
	mem map[string]*StoredBriefing
}

func NewBriefingCache(store BriefingStore, client llm.Client) *BriefingCache {
	return &BriefingCache{
		store:  store,
		client: client,
		logger: logger.NewLogger(logrus.InfoLevel),
		mem:    make(map[string]*StoredBriefing),
	}
}

// Get returns the briefing for the snapshot's target, generating and
// caching one if needed. forceRefresh bypasses the cache entirely.
func (c *BriefingCache) Get(ctx context.Context, snapshot *discovery.Snapshot, forceRefresh bool) (*CachedBriefing, llm.Usage, error) {
	fingerprint := snapshot.Fingerprint()

	if !forceRefresh {
		if cached := c.lookup(snapshot.Target); cached != nil {
			return &CachedBriefing{
				Briefing:    cached.Briefing,
				Fingerprint: cached.Fingerprint,
				CachedAt:    cached.CachedAt,
				CacheHit:    true,
				Stale:       cached.Fingerprint != fingerprint,
			}, llm.Usage{}, nil
		}
	}

	briefing, usage, err := c.client.GenerateBriefing(ctx, &llm.BriefingRequest{
		Target:  snapshot.Target,
		Targets: TargetSummaries(snapshot),
	})
	if err != nil {
		return nil, usage, err
	}

	stored := &StoredBriefing{
		Target:      snapshot.Target,
		Fingerprint: fingerprint,
		Briefing:    *briefing,
		CachedAt:    time.Now().UTC(),
	}
	c.put(stored)

	return &CachedBriefing{
		Briefing:    stored.Briefing,
		Fingerprint: stored.Fingerprint,
		CachedAt:    stored.CachedAt,
		CacheHit:    false,
		Stale:       false,
	}, usage, nil
}

// Peek returns the cached briefing without generating, or nil.
func (c *BriefingCache) Peek(target, currentFingerprint string) *CachedBriefing {
	cached := c.lookup(target)
	if cached == nil {
		return nil
	}
	return &CachedBriefing{
		Briefing:    cached.Briefing,
		Fingerprint: cached.Fingerprint,
		CachedAt:    cached.CachedAt,
		CacheHit:    true,
		Stale:       currentFingerprint != "" && cached.Fingerprint != currentFingerprint,
	}
}

func (c *BriefingCache) lookup(target string) *StoredBriefing {
	c.mu.RLock()
	cached := c.mem[target]
	c.mu.RUnlock()
	if cached != nil {
		return cached
	}

	if c.store == nil {
		return nil
	}
	stored, err := c.store.LatestForTarget(target)
	if err != nil || stored == nil {
		return nil
	}

	c.mu.Lock()
	c.mem[target] = stored
	c.mu.Unlock()
	return stored
}

func (c *BriefingCache) put(b *StoredBriefing) {
	c.mu.Lock()
	c.mem[b.Target] = b
	c.mu.Unlock()

	if c.store != nil {
		// Persistence failure degrades the cache to in-memory only; the
		// briefing itself is still served.
		if err := c.store.Save(b); err != nil {
			c.logger.Warn("Failed to persist mission briefing, serving from memory only", logger.Fields{
				"target": b.Target,
				"error":  err,
			})
		}
	}
}
