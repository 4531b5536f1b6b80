package drop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunState is the terminal state of one pipeline run.
type RunState string

const (
	StateDone           RunState = "done"
	StatePartialFailure RunState = "partial_failure"
)

// RunReport summarises one run. A partial failure leaves the cache
// resumable: re-running the same command picks up exactly where this run
// stopped.
type RunReport struct {
	State         RunState `json:"state"`
	UploadedUnits int      `json:"uploaded_units"`
	FailedUploads int      `json:"failed_uploads"`
	FailedCommits int      `json:"failed_commits"`
	Progress      Progress `json:"progress"`
}

// Pipeline composes catalog, cache, uploader and chain writer into a single
// resumable run: dedupe, upload, persist, commit, persist.
type Pipeline struct {
	Env       string
	CacheName string
	Dir       string

	Uploader StorageUploader
	Chain    ConfigClient
	Store    CacheStore

	Lease     RunLeaseManager
	LeaseTTL  time.Duration
	Authority string

	CommitChunkSize    int
	CommitSubBatchSize int
	CommitParallelism  int

	Logger *slog.Logger

	mu    sync.RWMutex
	cache *Cache
}

// uploadPreflighter is implemented by uploaders that can reject a pending
// set as structurally unuploadable before any network activity.
type uploadPreflighter interface {
	Preflight(assets []AssetKey) error
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.Logger = logger }
}

// WithRunLease sets the lease manager guarding concurrent invocations.
func WithRunLease(manager RunLeaseManager, ttl time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.Lease = manager
		p.LeaseTTL = ttl
	}
}

// WithAuthority records the committing authority in the cache.
func WithAuthority(addr string) PipelineOption {
	return func(p *Pipeline) { p.Authority = addr }
}

// WithCommitBatching overrides the chain writer's chunk, sub-batch and
// parallelism settings.
func WithCommitBatching(chunkSize, subBatchSize, parallelism int) PipelineOption {
	return func(p *Pipeline) {
		p.CommitChunkSize = chunkSize
		p.CommitSubBatchSize = subBatchSize
		p.CommitParallelism = parallelism
	}
}

// NewPipeline creates a pipeline for one (environment, cache name) pair.
func NewPipeline(env, cacheName, dir string, uploader StorageUploader, chain ConfigClient, store CacheStore, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		Env:       env,
		CacheName: cacheName,
		Dir:       dir,
		Uploader:  uploader,
		Chain:     chain,
		Store:     store,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Pipeline) cacheID() string {
	return p.Env + ":" + p.CacheName
}

// Progress reports the current cache progress; zero before the cache is
// loaded. Safe to call concurrently with Run (the status endpoint does).
func (p *Pipeline) Progress() Progress {
	p.mu.RLock()
	cache := p.cache
	p.mu.RUnlock()
	if cache == nil {
		return Progress{}
	}
	return cache.Progress()
}

func (p *Pipeline) setCache(cache *Cache) {
	p.mu.Lock()
	p.cache = cache
	p.mu.Unlock()
}

func (p *Pipeline) leaseManagerAndTTL() (RunLeaseManager, time.Duration) {
	manager := p.Lease
	if manager == nil {
		manager = NewInMemoryRunLeaseManager()
	}
	ttl := p.LeaseTTL
	if ttl <= 0 {
		ttl = defaultRunLeaseTTL
	}
	return manager, ttl
}

// Run executes the full state machine. Structural and configuration errors
// are returned; per-unit upload and commit failures are accumulated into a
// partial-failure report instead.
func (p *Pipeline) Run(ctx context.Context) (*RunReport, error) {
	logger := p.logger()

	manager, ttl := p.leaseManagerAndTTL()
	lease, err := manager.Acquire(ctx, p.cacheID(), ttl)
	if err != nil {
		if errors.Is(err, ErrRunLeaseConflict) {
			logger.WarnContext(ctx, "another run holds the lease", "cache", p.cacheID())
		}
		return nil, fmt.Errorf("acquire run lease: %w", err)
	}
	defer func() {
		_ = manager.Release(context.Background(), lease)
	}()

	cache, err := p.Store.Load(ctx, p.Env, p.CacheName)
	if err != nil {
		if !errors.Is(err, ErrCacheNotFound) {
			return nil, err
		}
		cache = NewCache()
	}
	p.setCache(cache)

	catalog := &AssetCatalog{Dir: p.Dir}
	keys, err := catalog.Scan()
	if err != nil {
		return nil, err
	}

	pending := PendingAssets(keys, cache)
	if err := p.validatePending(pending); err != nil {
		return nil, err
	}
	if pf, ok := p.Uploader.(uploadPreflighter); ok {
		if err := pf.Preflight(pending); err != nil {
			return nil, err
		}
	}
	logger.InfoContext(ctx, "catalog scanned",
		"assets", len(keys), "pending", len(pending))

	persist := func(ctx context.Context) error {
		return p.Store.Save(ctx, p.Env, p.CacheName, cache)
	}

	if len(keys) > 0 {
		if err := p.ensureConfig(ctx, cache, keys, persist); err != nil {
			return nil, err
		}
	}

	report := &RunReport{}
	if len(pending) > 0 {
		if err := p.runUploads(ctx, cache, pending, persist, report); err != nil {
			return nil, err
		}
		logger.InfoContext(ctx, "upload stage finished",
			"uploaded_units", report.UploadedUnits, "failed_uploads", report.FailedUploads)
	}

	writer := &ChainWriter{
		Client:       p.Chain,
		Cache:        cache,
		Persist:      persist,
		ChunkSize:    p.CommitChunkSize,
		SubBatchSize: p.CommitSubBatchSize,
		Parallelism:  p.CommitParallelism,
		Logger:       logger,
	}
	if cache.Progress().Items > 0 {
		failed, err := writer.Write(ctx)
		if err != nil {
			return nil, err
		}
		report.FailedCommits = failed
		logger.InfoContext(ctx, "commit stage finished", "failed_batches", failed)
	}

	report.Progress = cache.Progress()
	if report.FailedUploads == 0 && report.FailedCommits == 0 && cache.Complete() {
		report.State = StateDone
		logger.InfoContext(ctx, "run complete",
			"items", report.Progress.Items, "committed", report.Progress.Committed)
	} else {
		report.State = StatePartialFailure
		logger.WarnContext(ctx, "run partially failed; re-run the same command to resume",
			"failed_uploads", report.FailedUploads,
			"failed_commits", report.FailedCommits,
			"linked", report.Progress.Linked,
			"committed", report.Progress.Committed)
	}
	return report, nil
}

// validatePending parses every pending manifest before any network activity
// so structural corruption aborts the run up front.
func (p *Pipeline) validatePending(pending []AssetKey) error {
	for _, key := range pending {
		manifest, err := LoadManifest(key.ManifestPath(p.Dir))
		if err != nil {
			return err
		}
		if err := manifest.Validate(); err != nil {
			return fmt.Errorf("asset %s: %w", key.Index, err)
		}
	}
	return nil
}

// ensureConfig creates the remote configuration exactly once, guarded by
// the identifiers already recorded in the cache.
func (p *Pipeline) ensureConfig(ctx context.Context, cache *Cache, keys []AssetKey, persist func(context.Context) error) error {
	if cache.Program().Config != "" {
		return nil
	}

	first, err := LoadManifest(keys[0].ManifestPath(p.Dir))
	if err != nil {
		return err
	}

	params := CreateConfigParams{
		UUID:                 uuid.New().String()[:6],
		Symbol:               first.Symbol,
		SellerFeeBasisPoints: first.SellerFeeBasisPoints,
		Creators:             first.Properties.Creators,
		ItemsAvailable:       len(keys),
	}
	handle, err := p.Chain.CreateConfig(ctx, params)
	if err != nil {
		return fmt.Errorf("create remote configuration: %w", err)
	}

	cache.SetProgram(ProgramState{UUID: handle.UUID, Config: handle.Address})
	if p.Authority != "" {
		cache.SetAuthority(p.Authority)
	}
	if err := persist(ctx); err != nil {
		return err
	}
	p.logger().InfoContext(ctx, "remote configuration created",
		"config", handle.Address, "uuid", handle.UUID, "items", params.ItemsAvailable)
	return nil
}

// runUploads drives the uploader stream, persisting the cache after every
// successful unit so a later failure never loses completed work.
func (p *Pipeline) runUploads(ctx context.Context, cache *Cache, pending []AssetKey, persist func(context.Context) error, report *RunReport) error {
	for res := range p.Uploader.Upload(ctx, pending) {
		if res.Err != nil {
			p.logger().ErrorContext(ctx, "upload unit failed",
				"keys", res.CacheKeys, "error", res.Err)
			report.FailedUploads++
			continue
		}

		for i, index := range res.CacheKeys {
			item := CacheItem{
				Link: res.Links[i],
				Name: res.Manifests[i].Name,
			}
			if i < len(res.ImageLinks) {
				item.ImageLink = res.ImageLinks[i]
			}
			cache.SetItem(index, item)
		}
		if err := persist(ctx); err != nil {
			return err
		}
		report.UploadedUnits++
	}
	return ctx.Err()
}
