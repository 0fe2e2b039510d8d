package planner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpsentry/pkg/llm"
	"mcpsentry/pkg/planner"
	"mcpsentry/pkg/testutil"
)

func scriptedBriefingClient() *testutil.FakeLLMClient {
	return &testutil.FakeLLMClient{
		BriefingFunc: func(req *llm.BriefingRequest) (*llm.MissionBriefing, llm.Usage, error) {
			return &llm.MissionBriefing{
				DomainSummary: "database tooling",
				RiskRating:    "high",
				Scenarios: []llm.PlannedScenario{
					{Goal: "exfiltrate credentials", Targets: []string{"query_db"}},
				},
			}, llm.Usage{TotalTokens: 300}, nil
		},
	}
}

func TestBriefingCacheHitIssuesNoLLMRequest(t *testing.T) {
	client := scriptedBriefingClient()
	cache := planner.NewBriefingCache(testutil.NewMemoryBriefingStore(), client)
	snapshot := testutil.SnapshotWithTools("http://target", "query_db")

	first, usage, err := cache.Get(context.Background(), snapshot, false)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.Equal(t, 300, usage.TotalTokens)
	assert.Equal(t, 1, client.BriefingCalls)

	second, usage, err := cache.Get(context.Background(), snapshot, false)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.False(t, second.Stale)
	assert.Zero(t, usage.TotalTokens)
	assert.Equal(t, 1, client.BriefingCalls, "cache hit must not call the LLM")
}

func TestBriefingCacheStaleWhenSurfaceChanges(t *testing.T) {
	client := scriptedBriefingClient()
	cache := planner.NewBriefingCache(testutil.NewMemoryBriefingStore(), client)

	original := testutil.SnapshotWithTools("http://target", "query_db")
	_, _, err := cache.Get(context.Background(), original, false)
	require.NoError(t, err)

	// Same target, new tool: the cached briefing is served, flagged stale.
	changed := testutil.SnapshotWithTools("http://target", "query_db", "delete_db")
	cached, _, err := cache.Get(context.Background(), changed, false)
	require.NoError(t, err)
	assert.True(t, cached.CacheHit)
	assert.True(t, cached.Stale)
	assert.Equal(t, 1, client.BriefingCalls)
}

func TestBriefingCacheForceRefresh(t *testing.T) {
	client := scriptedBriefingClient()
	cache := planner.NewBriefingCache(testutil.NewMemoryBriefingStore(), client)
	snapshot := testutil.SnapshotWithTools("http://target", "query_db")

	_, _, err := cache.Get(context.Background(), snapshot, false)
	require.NoError(t, err)

	refreshed, _, err := cache.Get(context.Background(), snapshot, true)
	require.NoError(t, err)
	assert.False(t, refreshed.CacheHit)
	assert.Equal(t, 2, client.BriefingCalls)
}

func TestBriefingCacheReadsThroughStore(t *testing.T) {
	store := testutil.NewMemoryBriefingStore()
	require.NoError(t, store.Save(&planner.StoredBriefing{
		Target:      "http://target",
		Fingerprint: testutil.SnapshotWithTools("http://target", "query_db").Fingerprint(),
		Briefing:    llm.MissionBriefing{DomainSummary: "persisted earlier"},
		CachedAt:    time.Now().UTC().Add(-time.Hour),
	}))

	client := scriptedBriefingClient()
	cache := planner.NewBriefingCache(store, client)

	cached, _, err := cache.Get(context.Background(), testutil.SnapshotWithTools("http://target", "query_db"), false)
	require.NoError(t, err)
	assert.True(t, cached.CacheHit)
	assert.Equal(t, "persisted earlier", cached.Briefing.DomainSummary)
	assert.Zero(t, client.BriefingCalls)
}

func TestBriefingCacheGenerationError(t *testing.T) {
	client := &testutil.FakeLLMClient{
		BriefingFunc: func(req *llm.BriefingRequest) (*llm.MissionBriefing, llm.Usage, error) {
			return nil, llm.Usage{TotalTokens: 15}, errors.New("provider timeout")
		},
	}
	cache := planner.NewBriefingCache(testutil.NewMemoryBriefingStore(), client)

	_, usage, err := cache.Get(context.Background(), testutil.SnapshotWithTools("http://target", "query_db"), false)
	require.Error(t, err)
	assert.Equal(t, 15, usage.TotalTokens, "spend is accounted even on failure")
}

// failingBriefingStore rejects every write.
type failingBriefingStore struct {
	saveCalls int
}

func (s *failingBriefingStore) LatestForTarget(target string) (*planner.StoredBriefing, error) {
	return nil, nil
}

func (s *failingBriefingStore) Save(b *planner.StoredBriefing) error {
	s.saveCalls++
	return errors.New("database unavailable")
}

func TestBriefingCacheStoreFailureDegradesToMemory(t *testing.T) {
	client := scriptedBriefingClient()
	store := &failingBriefingStore{}
	cache := planner.NewBriefingCache(store, client)
	snapshot := testutil.SnapshotWithTools("http://target", "query_db")

	first, _, err := cache.Get(context.Background(), snapshot, false)
	require.NoError(t, err, "a failed persist must not fail the briefing")
	assert.False(t, first.CacheHit)
	assert.Equal(t, 1, store.saveCalls)

	// The in-memory copy still serves subsequent lookups.
	second, _, err := cache.Get(context.Background(), snapshot, false)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, 1, client.BriefingCalls)
}

func TestPeek(t *testing.T) {
	client := scriptedBriefingClient()
	cache := planner.NewBriefingCache(testutil.NewMemoryBriefingStore(), client)
	snapshot := testutil.SnapshotWithTools("http://target", "query_db")

	assert.Nil(t, cache.Peek("http://target", snapshot.Fingerprint()))

	_, _, err := cache.Get(context.Background(), snapshot, false)
	require.NoError(t, err)

	peeked := cache.Peek("http://target", snapshot.Fingerprint())
	require.NotNil(t, peeked)
	assert.True(t, peeked.CacheHit)
	assert.False(t, peeked.Stale)

	stale := cache.Peek("http://target", "different-fingerprint")
	require.NotNil(t, stale)
	assert.True(t, stale.Stale)
}
