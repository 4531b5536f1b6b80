package drop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// mongoCacheDoc is the BSON document schema for cache storage.
type mongoCacheDoc struct {
	ID        string    `bson:"_id"`
	Cache     cacheDoc  `bson:"cache"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoCacheStore implements CacheStore backed by a MongoDB collection, for
// deployments where runs move between hosts and a local cache file would be
// lost. The caller owns the mongo.Client lifecycle.
type MongoCacheStore struct {
	Collection *mongo.Collection
}

// NewMongoCacheStore creates a MongoCacheStore from a *mongo.Collection.
func NewMongoCacheStore(collection *mongo.Collection) *MongoCacheStore {
	return &MongoCacheStore{Collection: collection}
}

func cacheDocID(env, name string) string {
	return env + ":" + name
}

func (s *MongoCacheStore) Load(ctx context.Context, env, name string) (*Cache, error) {
	var doc mongoCacheDoc
	err := s.Collection.FindOne(ctx, bson.M{"_id": cacheDocID(env, name)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", ErrCacheNotFound, cacheDocID(env, name))
		}
		return nil, err
	}

	cache := NewCache()
	if doc.Cache.Items == nil {
		doc.Cache.Items = make(map[string]CacheItem)
	}
	cache.doc = doc.Cache
	return cache, nil
}

func (s *MongoCacheStore) Save(ctx context.Context, env, name string, cache *Cache) error {
	doc := mongoCacheDoc{
		ID:        cacheDocID(env, name),
		Cache:     cache.snapshot(),
		UpdatedAt: time.Now().UTC(),
	}

	_, err := s.Collection.ReplaceOne(ctx,
		bson.M{"_id": doc.ID},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save cache %s: %w", doc.ID, err)
	}
	return nil
}
