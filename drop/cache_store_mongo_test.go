package drop

import (
	"context"
	"errors"
	"os"
	"testing"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func newTestMongoCacheStore(t *testing.T) *MongoCacheStore {
	t.Helper()

	uri := os.Getenv("MINTLINE_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("MINTLINE_TEST_MONGO_URI not set; skipping Mongo integration test")
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("mongo connect: %v", err)
	}

	ctx := context.Background()
	if err := client.Ping(ctx, nil); err != nil {
		t.Fatalf("mongo ping: %v", err)
	}

	dbName := "mintline_test"
	collName := "caches_" + t.Name()
	coll := client.Database(dbName).Collection(collName)

	// Clean up collection before and after test.
	_ = coll.Drop(ctx)
	t.Cleanup(func() {
		_ = coll.Drop(ctx)
		_ = client.Disconnect(ctx)
	})

	return NewMongoCacheStore(coll)
}

func TestMongoCacheStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestMongoCacheStore(t)

	if _, err := store.Load(ctx, "devnet", "drop"); !errors.Is(err, ErrCacheNotFound) {
		t.Fatalf("first load: got %v, want ErrCacheNotFound", err)
	}

	cache := NewCache()
	cache.SetProgram(ProgramState{UUID: "abc123", Config: "CFGabc123"})
	cache.SetAuthority("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")
	cache.SetItem("0", CacheItem{Link: "https://gateway.test/x", Name: "Asset #0"})
	cache.SetItem("1", CacheItem{Link: "https://gateway.test/y", Name: "Asset #1", OnChain: true})

	if err := store.Save(ctx, "devnet", "drop", cache); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load(ctx, "devnet", "drop")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Program().Config != "CFGabc123" {
		t.Fatalf("program = %+v", loaded.Program())
	}
	if loaded.Authority() != cache.Authority() {
		t.Fatalf("authority = %q", loaded.Authority())
	}
	item, ok := loaded.Item("1")
	if !ok || !item.OnChain || item.Link != "https://gateway.test/y" {
		t.Fatalf("item 1 = %+v ok=%v", item, ok)
	}

	// Saving again replaces rather than duplicates.
	cache.MarkOnChain("0")
	if err := store.Save(ctx, "devnet", "drop", cache); err != nil {
		t.Fatalf("second save: %v", err)
	}
	loaded, err = store.Load(ctx, "devnet", "drop")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if item, _ := loaded.Item("0"); !item.OnChain {
		t.Fatalf("item 0 not replaced: %+v", item)
	}

	// Different names are separate documents.
	if _, err := store.Load(ctx, "devnet", "other"); !errors.Is(err, ErrCacheNotFound) {
		t.Fatalf("other cache: got %v, want ErrCacheNotFound", err)
	}
}
