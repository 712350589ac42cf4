package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func setupRedisStorage(t *testing.T) *RedisStorage {
	t.Helper()
	s := miniredis.RunT(t)
	storage, err := NewRedisStorage("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewRedisStorage: %v", err)
	}
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func TestRedisPutMatchRoundtrip(t *testing.T) {
	storage := setupRedisStorage(t)
	ctx := context.Background()

	want := Entry{Status: 200, ContentType: "text/html", Body: []byte("<html>shell</html>")}
	if err := storage.Put(ctx, "v1", "/index.html", want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := storage.Match(ctx, "v1", "/index.html")
	if err != nil || !ok {
		t.Fatalf("Match: ok=%v err=%v", ok, err)
	}
	if got.Status != want.Status || got.ContentType != want.ContentType || string(got.Body) != string(want.Body) {
		t.Errorf("roundtrip mismatch: %+v", got)
	}
}

func TestRedisMatchMiss(t *testing.T) {
	storage := setupRedisStorage(t)
	ctx := context.Background()

	if _, ok, err := storage.Match(ctx, "v1", "/nope"); ok || err != nil {
		t.Fatalf("miss returned ok=%v err=%v", ok, err)
	}
}

func TestRedisDeleteRemovesWholeGeneration(t *testing.T) {
	storage := setupRedisStorage(t)
	ctx := context.Background()

	_ = storage.Put(ctx, "v1", "/index.html", Entry{Status: 200})
	_ = storage.Put(ctx, "v1", "/app.js", Entry{Status: 200})
	_ = storage.Put(ctx, "v2", "/index.html", Entry{Status: 200})

	if err := storage.Delete(ctx, "v1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := storage.Match(ctx, "v1", "/app.js"); ok {
		t.Error("entry survived generation delete")
	}
	if _, ok, _ := storage.Match(ctx, "v2", "/index.html"); !ok {
		t.Error("delete leaked into another generation")
	}
}

func TestRedisGenerations(t *testing.T) {
	storage := setupRedisStorage(t)
	ctx := context.Background()

	_ = storage.Put(ctx, "v1", "/a", Entry{Status: 200})
	_ = storage.Put(ctx, "v2", "/a", Entry{Status: 200})

	names, err := storage.Generations(ctx)
	if err != nil {
		t.Fatalf("Generations: %v", err)
	}
	seen := map[string]bool{}
	for _, name := range names {
		seen[name] = true
	}
	if !seen["v1"] || !seen["v2"] || len(names) != 2 {
		t.Errorf("generations = %v, want v1 and v2", names)
	}
}

// The full lifecycle against the Redis backend: after activating v2 no
// entry from any other generation remains.
func TestRedisWorkerActivationExclusivity(t *testing.T) {
	storage := setupRedisStorage(t)
	ctx := context.Background()

	_ = storage.Put(ctx, "library-pwa-v1", "/index.html", Entry{Status: 200, Body: []byte("old")})
	fetcher := newScriptedFetcher()
	for _, asset := range DefaultAssets {
		fetcher.serve(asset, "fresh "+asset)
	}

	w := newTestWorker(t, "library-pwa-v2", storage, fetcher)
	w.Install(ctx)
	if err := w.Activate(ctx); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	names, err := storage.Generations(ctx)
	if err != nil {
		t.Fatalf("Generations: %v", err)
	}
	if len(names) != 1 || names[0] != "library-pwa-v2" {
		t.Fatalf("generations = %v, want only library-pwa-v2", names)
	}

	entry, ok, err := storage.Match(ctx, "library-pwa-v2", "/index.html")
	if err != nil || !ok {
		t.Fatalf("shell missing after activation: ok=%v err=%v", ok, err)
	}
	if string(entry.Body) != "fresh /index.html" {
		t.Errorf("shell body = %q", entry.Body)
	}
}
