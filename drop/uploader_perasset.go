package drop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

const defaultUploadChunkSize = 50

// StorageClient is the collaborator boundary for backends billing per call
// (object storage, pinning services). A successful call returns a stable,
// dereferenceable content URI; the wire protocol is the implementation's
// concern.
type StorageClient interface {
	// UploadMedia uploads the media file at path and returns its URI.
	UploadMedia(ctx context.Context, path, contentType string) (string, error)

	// UploadManifest uploads an encoded manifest for index and returns its
	// URI.
	UploadManifest(ctx context.Context, index string, payload []byte) (string, error)
}

// PerAssetUploader uploads assets individually inside bounded-concurrency
// chunks: media first, then the manifest with rewritten URIs. One result is
// yielded per completed asset so the consumer can persist immediately.
type PerAssetUploader struct {
	Dir       string
	Client    StorageClient
	ChunkSize int
	// MaxRetries is the number of extra attempts per asset after a
	// transient failure. Defaults to 1.
	MaxRetries int
	Logger     *slog.Logger
}

func (u *PerAssetUploader) logger() *slog.Logger {
	if u.Logger != nil {
		return u.Logger
	}
	return slog.Default()
}

// Upload fans chunks out concurrently and processes assets inside each chunk
// strictly sequentially. A failed asset yields a result carrying its error
// and does not disturb its siblings.
func (u *PerAssetUploader) Upload(ctx context.Context, assets []AssetKey) <-chan UploadResult {
	chunkSize := u.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultUploadChunkSize
	}
	maxRetries := u.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	results := make(chan UploadResult)
	go func() {
		defer close(results)

		var wg sync.WaitGroup
		for _, chunk := range chunkAssets(assets, chunkSize) {
			chunk := chunk
			wg.Add(1)
			go func() {
				defer wg.Done()
				for _, key := range chunk {
					if ctx.Err() != nil {
						return
					}
					res := u.uploadOne(ctx, key, maxRetries)
					select {
					case results <- res:
					case <-ctx.Done():
						return
					}
				}
			}()
		}
		wg.Wait()
	}()
	return results
}

func (u *PerAssetUploader) uploadOne(ctx context.Context, key AssetKey, maxRetries int) UploadResult {
	var (
		manifest *Manifest
		link     string
		mediaURI string
	)
	err := runWithRetry(ctx, maxRetries, func() error {
		var err error
		manifest, err = LoadManifest(key.ManifestPath(u.Dir))
		if err != nil {
			return err
		}

		mediaURI, err = u.Client.UploadMedia(ctx, key.MediaPath(u.Dir), key.ContentType())
		if err != nil {
			return fmt.Errorf("upload media for asset %s: %w", key.Index, err)
		}
		manifest.RewriteMediaURI(mediaURI, key.ContentType())

		payload, err := manifest.Encode()
		if err != nil {
			return err
		}
		link, err = u.Client.UploadManifest(ctx, key.Index, payload)
		if err != nil {
			return fmt.Errorf("upload manifest for asset %s: %w", key.Index, err)
		}
		return nil
	})
	if err != nil {
		u.logger().WarnContext(ctx, "asset upload failed", "index", key.Index, "error", err)
		return UploadResult{CacheKeys: []string{key.Index}, Err: err}
	}

	u.logger().DebugContext(ctx, "asset uploaded", "index", key.Index, "link", link)
	return UploadResult{
		CacheKeys:  []string{key.Index},
		Links:      []string{link},
		ImageLinks: []string{mediaURI},
		Manifests:  []*Manifest{manifest},
	}
}
