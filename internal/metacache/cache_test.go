package metacache

import (
	"context"
	"testing"
	"time"

	"docconsole/internal/docs"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	cache, err := NewRedis("redis://"+s.Addr(), time.Hour)
	if err != nil {
		t.Fatalf("failed to create redis cache: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	return cache, s
}

func caches(t *testing.T) map[string]Cache {
	redisCache, _ := setupTestRedis(t)
	return map[string]Cache{
		"memory": NewMemory(),
		"redis":  redisCache,
	}
}

func TestMergeNeverDowngradesTitle(t *testing.T) {
	for name, cache := range caches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := cache.Put(ctx, "p1", "doc1", "Architecture"); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			err := cache.Merge(ctx, "p1", map[string]string{
				"doc1": "Stale rebuild title",
				"doc2": "API Design",
				"doc3": "Untitled",
			})
			if err != nil {
				t.Fatalf("Merge failed: %v", err)
			}

			titles, err := cache.Lookup(ctx, "p1")
			if err != nil {
				t.Fatalf("Lookup failed: %v", err)
			}
			if titles["doc1"] != "Architecture" {
				t.Errorf("expected doc1 to keep Architecture, got %q", titles["doc1"])
			}
			if titles["doc2"] != "API Design" {
				t.Errorf("expected doc2 to be filled, got %q", titles["doc2"])
			}
			if _, ok := titles["doc3"]; ok {
				t.Errorf("placeholder title must not be cached")
			}
		})
	}
}

func TestPutPlaceholderClearsEntry(t *testing.T) {
	for name, cache := range caches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = cache.Put(ctx, "p1", "doc1", "Architecture")
			if err := cache.Put(ctx, "p1", "doc1", "New Document"); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			titles, _ := cache.Lookup(ctx, "p1")
			if _, ok := titles["doc1"]; ok {
				t.Fatalf("expected doc1 cleared, got %q", titles["doc1"])
			}
		})
	}
}

func TestReconcilePrefersServerTitles(t *testing.T) {
	for name, cache := range caches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = cache.Put(ctx, "p1", "doc1", "Optimistic rename")
			_ = cache.Put(ctx, "p1", "doc2", "Known title")
			err := cache.Reconcile(ctx, "p1", map[string]string{"doc1": "Server title", "doc2": ""})
			if err != nil {
				t.Fatalf("Reconcile failed: %v", err)
			}
			titles, _ := cache.Lookup(ctx, "p1")
			if titles["doc1"] != "Server title" {
				t.Errorf("expected server title, got %q", titles["doc1"])
			}
			if titles["doc2"] != "Known title" {
				t.Errorf("expected placeholder server title to be ignored, got %q", titles["doc2"])
			}
		})
	}
}

func TestProjectsAreIsolated(t *testing.T) {
	for name, cache := range caches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = cache.Put(ctx, "p1", "doc1", "One")
			titles, _ := cache.Lookup(ctx, "p2")
			if len(titles) != 0 {
				t.Fatalf("expected empty p2 titles, got %v", titles)
			}
		})
	}
}

func TestNodeMetaRoundTrip(t *testing.T) {
	for name, cache := range caches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			meta := NodeMeta{Label: "API Design", Category: "design", DocumentType: docs.TypeTechDesign}
			if err := cache.PutMeta(ctx, "p1", map[string]NodeMeta{"doc2": meta}); err != nil {
				t.Fatalf("PutMeta failed: %v", err)
			}
			got, err := cache.GetMeta(ctx, "p1", []string{"doc2", "missing"})
			if err != nil {
				t.Fatalf("GetMeta failed: %v", err)
			}
			if len(got) != 1 || got["doc2"] != meta {
				t.Fatalf("unexpected meta %+v", got)
			}
		})
	}
}

func TestRedisTitlesExpire(t *testing.T) {
	cache, s := setupTestRedis(t)
	ctx := context.Background()
	_ = cache.Put(ctx, "p1", "doc1", "Architecture")

	s.FastForward(2 * time.Hour)

	titles, err := cache.Lookup(ctx, "p1")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if len(titles) != 0 {
		t.Fatalf("expected titles to expire, got %v", titles)
	}
}

func TestNewRedisInvalidURL(t *testing.T) {
	if _, err := NewRedis("not-a-url", time.Hour); err == nil {
		t.Fatal("expected error for invalid redis url")
	}
}
