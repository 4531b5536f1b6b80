package drop

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// CacheItem is the durable per-asset record. Link is set if and only if the
// asset's bytes were durably accepted by the storage backend; OnChain is
// true only after the link was committed to the remote configuration.
// VerifyRun belongs to a separate verification pass and is only ever reset
// here, never interpreted.
type CacheItem struct {
	Link      string `json:"link" bson:"link"`
	Name      string `json:"name" bson:"name"`
	OnChain   bool   `json:"onChain" bson:"onChain"`
	VerifyRun bool   `json:"verifyRun,omitempty" bson:"verifyRun,omitempty"`
	ImageLink string `json:"imageLink,omitempty" bson:"imageLink,omitempty"`
}

// ProgramState records the remote-configuration identifiers created for this
// drop. A non-empty Config is the idempotency guard against creating the
// configuration twice.
type ProgramState struct {
	UUID         string `json:"uuid,omitempty" bson:"uuid,omitempty"`
	Config       string `json:"config,omitempty" bson:"config,omitempty"`
	CandyMachine string `json:"candyMachine,omitempty" bson:"candyMachine,omitempty"`
}

type cacheDoc struct {
	Program   ProgramState         `json:"program" bson:"program"`
	Items     map[string]CacheItem `json:"items" bson:"items"`
	Authority string               `json:"authority,omitempty" bson:"authority,omitempty"`
	StartDate int64                `json:"startDate,omitempty" bson:"startDate,omitempty"`
}

// Cache is the single source of truth for what has already been uploaded
// and committed. Concurrent chunks mutate disjoint keys, so mutators take a
// write lock only to keep serialization race-free; persistence ordering is
// the stores' concern.
type Cache struct {
	mu  sync.RWMutex
	doc cacheDoc
}

// Progress is a point-in-time summary of cache state, served by the status
// endpoint and logged at stage boundaries.
type Progress struct {
	Items     int `json:"items"`
	Linked    int `json:"linked"`
	Committed int `json:"committed"`
}

// NewCache returns an empty cache for a first run.
func NewCache() *Cache {
	return &Cache{doc: cacheDoc{Items: make(map[string]CacheItem)}}
}

// Item returns the record for index, if present.
func (c *Cache) Item(index string) (CacheItem, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.doc.Items[index]
	return item, ok
}

// SetItem stores the record for index.
func (c *Cache) SetItem(index string, item CacheItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.doc.Items == nil {
		c.doc.Items = make(map[string]CacheItem)
	}
	c.doc.Items[index] = item
}

// MarkOnChain flips OnChain for every index and resets its VerifyRun flag,
// exactly once per successful sub-batch commit.
func (c *Cache) MarkOnChain(indices ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, index := range indices {
		item, ok := c.doc.Items[index]
		if !ok {
			continue
		}
		item.OnChain = true
		item.VerifyRun = false
		c.doc.Items[index] = item
	}
}

// AllOnChain reports whether every index already has OnChain set. An
// all-committed sub-batch is skipped without a remote call.
func (c *Cache) AllOnChain(indices []string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, index := range indices {
		item, ok := c.doc.Items[index]
		if !ok || !item.OnChain {
			return false
		}
	}
	return true
}

// LinkedIndices returns every index with a link recorded, in ascending
// numeric order. The chain writer partitions this full set and relies on
// per-sub-batch skips for idempotence.
func (c *Cache) LinkedIndices() []string {
	c.mu.RLock()
	indices := make([]string, 0, len(c.doc.Items))
	for index, item := range c.doc.Items {
		if item.Link != "" {
			indices = append(indices, index)
		}
	}
	c.mu.RUnlock()

	sort.Slice(indices, func(i, j int) bool {
		return numericLess(indices[i], indices[j])
	})
	return indices
}

// Program returns the recorded remote-configuration identifiers.
func (c *Cache) Program() ProgramState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.doc.Program
}

// SetProgram records the remote-configuration identifiers.
func (c *Cache) SetProgram(p ProgramState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.doc.Program = p
}

// SetAuthority records the committing authority's address.
func (c *Cache) SetAuthority(addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.doc.Authority = addr
}

// Authority returns the recorded committing authority.
func (c *Cache) Authority() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.doc.Authority
}

// Progress summarises link/commit counts across all items.
func (c *Cache) Progress() Progress {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p := Progress{Items: len(c.doc.Items)}
	for _, item := range c.doc.Items {
		if item.Link != "" {
			p.Linked++
		}
		if item.OnChain {
			p.Committed++
		}
	}
	return p
}

// Complete reports whether every item is linked and committed.
func (c *Cache) Complete() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, item := range c.doc.Items {
		if item.Link == "" || !item.OnChain {
			return false
		}
	}
	return true
}

// snapshot deep-copies the document under the read lock so stores can
// serialize it without interleaving with concurrent key mutations.
func (c *Cache) snapshot() cacheDoc {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc := c.doc
	doc.Items = make(map[string]CacheItem, len(c.doc.Items))
	for k, v := range c.doc.Items {
		doc.Items[k] = v
	}
	return doc
}

// MarshalJSON serializes the whole cache atomically.
func (c *Cache) MarshalJSON() ([]byte, error) {
	doc := c.snapshot()
	return json.Marshal(doc)
}

// UnmarshalJSON replaces the cache contents.
func (c *Cache) UnmarshalJSON(data []byte) error {
	var doc cacheDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.Items == nil {
		doc.Items = make(map[string]CacheItem)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.doc = doc
	return nil
}

// CacheStore loads and persists the cache for one (environment, name) pair.
// Save must write the whole document atomically; it is called after every
// completed unit of work.
type CacheStore interface {
	// Load fetches the cache. Returns ErrCacheNotFound on first run.
	Load(ctx context.Context, env, name string) (*Cache, error)

	// Save persists the full cache document.
	Save(ctx context.Context, env, name string, cache *Cache) error
}
