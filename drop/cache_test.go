package drop

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCacheItemMutation(t *testing.T) {
	cache := NewCache()

	cache.SetItem("0", CacheItem{Link: "x", Name: "Asset #0", VerifyRun: true})
	cache.SetItem("1", CacheItem{Link: "y", Name: "Asset #1", OnChain: true})

	if cache.AllOnChain([]string{"0", "1"}) {
		t.Fatal("AllOnChain should be false while 0 is uncommitted")
	}

	cache.MarkOnChain("0", "1")

	item, ok := cache.Item("0")
	if !ok || !item.OnChain {
		t.Fatalf("item 0 not marked on chain: %+v", item)
	}
	if item.VerifyRun {
		t.Fatal("MarkOnChain must reset verifyRun")
	}
	if !cache.AllOnChain([]string{"0", "1"}) {
		t.Fatal("AllOnChain should be true after marking")
	}

	// Marking an absent index is a no-op.
	cache.MarkOnChain("99")
	if _, ok := cache.Item("99"); ok {
		t.Fatal("marking an absent index must not create it")
	}
}

func TestCacheLinkedIndicesNumericOrder(t *testing.T) {
	cache := NewCache()
	for _, index := range []string{"10", "2", "0", "1"} {
		cache.SetItem(index, CacheItem{Link: "l" + index})
	}
	cache.SetItem("5", CacheItem{Name: "linkless"})

	got := cache.LinkedIndices()
	want := []string{"0", "1", "2", "10"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestCacheProgressAndComplete(t *testing.T) {
	cache := NewCache()
	cache.SetItem("0", CacheItem{Link: "x", OnChain: true})
	cache.SetItem("1", CacheItem{Link: "y"})

	p := cache.Progress()
	if p.Items != 2 || p.Linked != 2 || p.Committed != 1 {
		t.Fatalf("progress = %+v", p)
	}
	if cache.Complete() {
		t.Fatal("cache with uncommitted item must not be complete")
	}

	cache.MarkOnChain("1")
	if !cache.Complete() {
		t.Fatal("cache should be complete")
	}
}

func TestFileCacheStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := &FileCacheStore{Dir: t.TempDir()}

	if _, err := store.Load(ctx, "devnet", "mydrop"); !errors.Is(err, ErrCacheNotFound) {
		t.Fatalf("expected ErrCacheNotFound on first run, got %v", err)
	}

	cache := NewCache()
	cache.SetProgram(ProgramState{UUID: "abc123", Config: "CFG"})
	cache.SetAuthority("AUTH")
	cache.SetItem("0", CacheItem{Link: "x", Name: "Asset #0", OnChain: true, ImageLink: "img"})

	if err := store.Save(ctx, "devnet", "mydrop", cache); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load(ctx, "devnet", "mydrop")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := loaded.Program(); got.UUID != "abc123" || got.Config != "CFG" {
		t.Fatalf("program = %+v", got)
	}
	if got := loaded.Authority(); got != "AUTH" {
		t.Fatalf("authority = %q", got)
	}
	item, ok := loaded.Item("0")
	if !ok || item.Link != "x" || !item.OnChain || item.ImageLink != "img" {
		t.Fatalf("item = %+v, ok = %v", item, ok)
	}

	// Different name, different file.
	if _, err := store.Load(ctx, "devnet", "other"); !errors.Is(err, ErrCacheNotFound) {
		t.Fatalf("expected ErrCacheNotFound for other name, got %v", err)
	}
}

func TestFileCacheStoreLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := &FileCacheStore{Dir: dir}

	cache := NewCache()
	cache.SetItem("0", CacheItem{Link: "x"})
	for i := 0; i < 3; i++ {
		if err := store.Save(ctx, "devnet", "drop", cache); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the cache file, found %d entries", len(entries))
	}
	if entries[0].Name() != "devnet-drop.json" {
		t.Fatalf("unexpected file %q", entries[0].Name())
	}
	if filepath.Ext(entries[0].Name()) != ".json" {
		t.Fatalf("cache file %q is not json", entries[0].Name())
	}
}
