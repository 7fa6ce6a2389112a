package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"CloudKeep/internal/dto"
	"CloudKeep/internal/service"
	"CloudKeep/utils"
)

func fileViewKey(id uint64) string {
	return utils.BuildCacheKey(utils.CacheKeyFileView, id)
}

func setHas(t *testing.T, kv *utils.MemoryCache, set, member string) bool {
	t.Helper()
	members, err := kv.SetMembers(context.Background(), set)
	if err != nil {
		t.Fatalf("set members failed: %v", err)
	}
	for _, m := range members {
		if m == member {
			return true
		}
	}
	return false
}

// TestCachePutGetAndTags verifies a stored projection comes back intact and
// the tag index tracks its trash state.
func TestCachePutGetAndTags(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	view := &dto.FileView{ID: 7, Name: "report", FileName: "report.pdf", Extension: "pdf", Size: 123, UUID: "blob-7"}
	if err := env.cache.Put(ctx, view, false); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	got, ok := env.cache.Get(ctx, 7)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.FileName != "report.pdf" || got.Size != 123 {
		t.Fatalf("got %+v", got)
	}
	if !setHas(t, env.kv, utils.CacheTagFiles, fileViewKey(7)) {
		t.Fatal("entry missing from files tag")
	}
	if setHas(t, env.kv, utils.CacheTagTrashed, fileViewKey(7)) {
		t.Fatal("live entry must not carry trashed tag")
	}

	if err := env.cache.Put(ctx, view, true); err != nil {
		t.Fatalf("put trashed failed: %v", err)
	}
	if !setHas(t, env.kv, utils.CacheTagTrashed, fileViewKey(7)) {
		t.Fatal("trashed entry missing from trashed tag")
	}
}

// TestMarkTrashedNoopWhenAbsent verifies flipping the tag on a missing entry
// does nothing; the next read repopulates correct state.
func TestMarkTrashedNoopWhenAbsent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.cache.MarkTrashed(ctx, 42); err != nil {
		t.Fatalf("mark trashed failed: %v", err)
	}
	if setHas(t, env.kv, utils.CacheTagTrashed, fileViewKey(42)) {
		t.Fatal("absent entry must not be tagged")
	}
}

// TestMarkTrashedAndRestored flips the tag both ways on a present entry.
func TestMarkTrashedAndRestored(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	view := &dto.FileView{ID: 5, Name: "notes", UUID: "blob-5"}
	if err := env.cache.Put(ctx, view, false); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := env.cache.MarkTrashed(ctx, 5); err != nil {
		t.Fatalf("mark trashed failed: %v", err)
	}
	if !setHas(t, env.kv, utils.CacheTagTrashed, fileViewKey(5)) {
		t.Fatal("expected trashed tag")
	}
	if err := env.cache.MarkRestored(ctx, 5); err != nil {
		t.Fatalf("mark restored failed: %v", err)
	}
	if setHas(t, env.kv, utils.CacheTagTrashed, fileViewKey(5)) {
		t.Fatal("trashed tag must be gone after restore")
	}
}

// TestPurgeAllTrashedEvictsOnlyTrashed verifies bulk eviction is scoped to
// the trashed tag and leaves live entries alone.
func TestPurgeAllTrashedEvictsOnlyTrashed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	live := &dto.FileView{ID: 1, Name: "live", UUID: "blob-1"}
	junk := &dto.FileView{ID: 2, Name: "junk", UUID: "blob-2"}
	if err := env.cache.Put(ctx, live, false); err != nil {
		t.Fatalf("put live failed: %v", err)
	}
	if err := env.cache.Put(ctx, junk, true); err != nil {
		t.Fatalf("put junk failed: %v", err)
	}

	if err := env.cache.PurgeAllTrashed(ctx); err != nil {
		t.Fatalf("purge all trashed failed: %v", err)
	}

	if _, ok := env.cache.Get(ctx, 2); ok {
		t.Fatal("trashed entry must be evicted")
	}
	if _, ok := env.cache.Get(ctx, 1); !ok {
		t.Fatal("live entry must survive")
	}
	if setHas(t, env.kv, utils.CacheTagTrashed, fileViewKey(2)) || setHas(t, env.kv, utils.CacheTagFiles, fileViewKey(2)) {
		t.Fatal("evicted entry must leave both tags")
	}
}

// TestLoadManyOrderAndPopulate verifies read-through keeps the requested
// order, fills misses from the record store, and drops vanished IDs.
func TestLoadManyOrderAndPopulate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "loader", 1000)

	a := env.upload(t, user.ID, "a", 10, nil)
	b := env.upload(t, user.ID, "b", 20, nil)
	c := env.upload(t, user.ID, "c", 30, nil)

	// cold cache; b stays warm from upload priming only if present, so
	// evict everything and re-warm just b
	if err := env.cache.Invalidate(ctx, a.ID, b.ID, c.ID); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}
	if err := env.cache.Put(ctx, b, false); err != nil {
		t.Fatalf("warm b failed: %v", err)
	}

	views, err := env.cache.LoadMany(ctx, []uint64{c.ID, 999, a.ID, b.ID}, false)
	if err != nil {
		t.Fatalf("load many failed: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("got %d views, want 3 (vanished id dropped)", len(views))
	}
	if views[0].ID != c.ID || views[1].ID != a.ID || views[2].ID != b.ID {
		t.Fatalf("order not preserved: %d, %d, %d", views[0].ID, views[1].ID, views[2].ID)
	}

	// misses must now be cached
	if _, ok := env.cache.Get(ctx, a.ID); !ok {
		t.Fatal("miss was not populated")
	}
}

// TestPruneTagsDropsExpired verifies tag members whose entries expired by
// TTL are removed while members with live entries stay.
func TestPruneTagsDropsExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	shortLived := service.NewMetadataCache(env.kv, nil, nil, time.Nanosecond)
	if err := shortLived.Put(ctx, &dto.FileView{ID: 8, Name: "ghost", UUID: "blob-8"}, true); err != nil {
		t.Fatalf("put ghost failed: %v", err)
	}
	if err := env.cache.Put(ctx, &dto.FileView{ID: 9, Name: "alive", UUID: "blob-9"}, true); err != nil {
		t.Fatalf("put alive failed: %v", err)
	}
	time.Sleep(time.Millisecond)

	if err := env.cache.PruneTags(ctx); err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if setHas(t, env.kv, utils.CacheTagFiles, fileViewKey(8)) || setHas(t, env.kv, utils.CacheTagTrashed, fileViewKey(8)) {
		t.Fatal("expired entry must be pruned from both tags")
	}
	if !setHas(t, env.kv, utils.CacheTagFiles, fileViewKey(9)) || !setHas(t, env.kv, utils.CacheTagTrashed, fileViewKey(9)) {
		t.Fatal("live entry must keep its tags")
	}
}

// flakyCache fails a fixed number of reads before behaving normally.
type flakyCache struct {
	*utils.MemoryCache
	failures int
}

func (c *flakyCache) Get(ctx context.Context, key string, dest interface{}) error {
	if c.failures > 0 {
		c.failures--
		return errors.New("connection reset")
	}
	return c.MemoryCache.Get(ctx, key, dest)
}

// TestGetRetriesTransientError verifies one retry on a transient read
// failure, and that a plain miss is not retried into a phantom hit.
func TestGetRetriesTransientError(t *testing.T) {
	kv := &flakyCache{MemoryCache: utils.NewMemoryCache()}
	cache := service.NewMetadataCache(kv, nil, nil, time.Minute)
	ctx := context.Background()

	view := &dto.FileView{ID: 3, Name: "flaky", UUID: "blob-3"}
	if err := cache.Put(ctx, view, false); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	kv.failures = 1
	got, ok := cache.Get(ctx, 3)
	if !ok {
		t.Fatal("transient error should be retried into a hit")
	}
	if got.Name != "flaky" {
		t.Fatalf("got %+v", got)
	}

	if _, ok := cache.Get(ctx, 404); ok {
		t.Fatal("miss must stay a miss")
	}
}
