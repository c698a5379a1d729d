package infocache

import (
	"fmt"
	"testing"
	"time"

	"spool/internal/services/ytdlp"
)

func TestLookupMissAndHit(t *testing.T) {
	cache := New(10*time.Minute, 8, nil)

	if _, found := cache.Lookup("https://example.com/v"); found {
		t.Fatal("expected miss on empty cache")
	}

	cache.Store("https://example.com/v", ytdlp.VideoInfo{ID: "abc", Title: "Demo"})
	info, found := cache.Lookup("https://example.com/v")
	if !found {
		t.Fatal("expected hit after store")
	}
	if info.Title != "Demo" {
		t.Fatalf("title = %q", info.Title)
	}
}

func TestLookupExpires(t *testing.T) {
	now := time.Now()
	cache := New(10*time.Minute, 8, nil, WithClock(func() time.Time { return now }))

	cache.Store("https://example.com/v", ytdlp.VideoInfo{ID: "abc"})

	now = now.Add(11 * time.Minute)
	if _, found := cache.Lookup("https://example.com/v"); found {
		t.Fatal("expected expired entry to miss")
	}
	if cache.Len() != 0 {
		t.Fatalf("stale entry not dropped, len = %d", cache.Len())
	}
}

func TestStoreEvictsOldest(t *testing.T) {
	now := time.Now()
	cache := New(time.Hour, 3, nil, WithClock(func() time.Time { return now }))

	for i := 0; i < 3; i++ {
		cache.Store(fmt.Sprintf("https://example.com/%d", i), ytdlp.VideoInfo{ID: fmt.Sprintf("v%d", i)})
		now = now.Add(time.Minute)
	}
	cache.Store("https://example.com/3", ytdlp.VideoInfo{ID: "v3"})

	if cache.Len() != 3 {
		t.Fatalf("len = %d, want 3", cache.Len())
	}
	if _, found := cache.Lookup("https://example.com/0"); found {
		t.Fatal("oldest entry should have been evicted")
	}
	if _, found := cache.Lookup("https://example.com/3"); !found {
		t.Fatal("newest entry missing")
	}
}

func TestPurgeExpired(t *testing.T) {
	now := time.Now()
	cache := New(10*time.Minute, 8, nil, WithClock(func() time.Time { return now }))

	cache.Store("https://example.com/old", ytdlp.VideoInfo{ID: "old"})
	now = now.Add(15 * time.Minute)
	cache.Store("https://example.com/new", ytdlp.VideoInfo{ID: "new"})

	removed := cache.PurgeExpired()
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, found := cache.Lookup("https://example.com/new"); !found {
		t.Fatal("fresh entry should survive purge")
	}
}

func TestDisabledWhenTTLZero(t *testing.T) {
	cache := New(0, 8, nil)
	cache.Store("https://example.com/v", ytdlp.VideoInfo{ID: "abc"})
	if _, found := cache.Lookup("https://example.com/v"); found {
		t.Fatal("disabled cache should never hit")
	}
}
