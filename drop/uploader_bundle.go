package drop

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

const pathManifestContentType = "application/x.arweave-manifest+json"

// DataItem is one signed payload inside a bundle. ID is derived from the
// signing result and doubles as the item's address on the gateway.
type DataItem struct {
	ID   string
	Data []byte
	Tags []Tag
}

// BundleReceipt acknowledges a durably accepted bundle.
type BundleReceipt struct {
	BundleID string
}

// BundleClient is the collaborator boundary for backends that commit one
// signed bundle at a time. SubmitBundle is atomic: either every item in the
// bundle is durably accepted or none is.
type BundleClient interface {
	SignDataItem(ctx context.Context, data []byte, tags []Tag) (DataItem, error)
	SubmitBundle(ctx context.Context, items []DataItem) (BundleReceipt, error)

	// ItemURI returns the dereferenceable content URI for a signed item.
	ItemURI(id string) string
}

// pathManifest is the index document bundled alongside each asset, mapping
// logical filenames to data-item ids. The index entry makes the bundle root
// serve the metadata JSON by default.
type pathManifest struct {
	Manifest string                      `json:"manifest"`
	Version  string                      `json:"version"`
	Index    pathManifestIndex           `json:"index"`
	Paths    map[string]pathManifestItem `json:"paths"`
}

type pathManifestIndex struct {
	Path string `json:"path"`
}

type pathManifestItem struct {
	ID string `json:"id"`
}

// BundledUploader groups pending assets into size-bounded ranges and
// submits each range as one signed bundle. A failed bundle is not partially
// salvageable; its assets stay linkless and are re-planned from scratch on
// the next invocation.
type BundledUploader struct {
	Dir     string
	Client  BundleClient
	Planner *BundlePlanner
	Logger  *slog.Logger
}

func (u *BundledUploader) logger() *slog.Logger {
	if u.Logger != nil {
		return u.Logger
	}
	return slog.Default()
}

func (u *BundledUploader) planner() *BundlePlanner {
	if u.Planner != nil {
		return u.Planner
	}
	return NewBundlePlanner(u.Dir)
}

// Preflight checks every pending asset against the bundle size limit and
// returns ErrAssetTooLarge for the first pair that can never fit. An
// oversized asset is a structural defect of the source directory, so it is
// rejected here before any signing or submission happens.
func (u *BundledUploader) Preflight(assets []AssetKey) error {
	planner := u.planner()
	for _, key := range assets {
		if err := planner.EnsureFits(key); err != nil {
			return err
		}
	}
	return nil
}

// Upload repeatedly plans the next range and uploads it as a single bundle,
// yielding one result per range. A planning error is fatal for the stream;
// a submission error fails only the current range.
func (u *BundledUploader) Upload(ctx context.Context, assets []AssetKey) <-chan UploadResult {
	results := make(chan UploadResult)
	go func() {
		defer close(results)

		planner := u.planner()
		pending := assets
		for len(pending) > 0 {
			if ctx.Err() != nil {
				return
			}

			r, err := planner.PlanNextBundle(pending)
			if err != nil {
				u.logger().ErrorContext(ctx, "bundle planning failed", "error", err)
				results <- UploadResult{Err: err}
				return
			}

			window := pending[:r.Count]
			pending = pending[r.Count:]

			res := u.uploadRange(ctx, window)
			if res.Err == nil {
				u.logger().InfoContext(ctx, "bundle uploaded",
					"assets", r.Count, "bytes", r.Size)
			} else {
				u.logger().ErrorContext(ctx, "bundle upload failed",
					"assets", r.Count, "error", res.Err)
			}
			select {
			case results <- res:
			case <-ctx.Done():
				return
			}
		}
	}()
	return results
}

func (u *BundledUploader) uploadRange(ctx context.Context, window []AssetKey) UploadResult {
	items := make([]DataItem, 0, len(window)*3)
	res := UploadResult{
		CacheKeys:  make([]string, 0, len(window)),
		Links:      make([]string, 0, len(window)),
		ImageLinks: make([]string, 0, len(window)),
		Manifests:  make([]*Manifest, 0, len(window)),
	}

	for _, key := range window {
		mediaItem, manifestItem, pathItem, manifest, err := u.signAsset(ctx, key)
		if err != nil {
			return UploadResult{Err: fmt.Errorf("bundle range starting at asset %s: %w", window[0].Index, err)}
		}
		items = append(items, mediaItem, manifestItem, pathItem)
		res.CacheKeys = append(res.CacheKeys, key.Index)
		res.Links = append(res.Links, u.Client.ItemURI(manifestItem.ID))
		res.ImageLinks = append(res.ImageLinks, u.Client.ItemURI(mediaItem.ID))
		res.Manifests = append(res.Manifests, manifest)
	}

	if _, err := u.Client.SubmitBundle(ctx, items); err != nil {
		return UploadResult{Err: fmt.Errorf("submit bundle starting at asset %s: %w", window[0].Index, err)}
	}
	return res
}

// signAsset constructs the three signed items for one asset: the media
// payload, the manifest with its media URI rewritten, and the path manifest
// indexing both.
func (u *BundledUploader) signAsset(ctx context.Context, key AssetKey) (media, man, path DataItem, manifest *Manifest, err error) {
	mediaBytes, err := os.ReadFile(key.MediaPath(u.Dir))
	if err != nil {
		return DataItem{}, DataItem{}, DataItem{}, nil, fmt.Errorf("read media for asset %s: %w", key.Index, err)
	}

	media, err = u.Client.SignDataItem(ctx, mediaBytes, []Tag{
		{Name: "App-Name", Value: appName},
		{Name: "Content-Type", Value: key.ContentType()},
	})
	if err != nil {
		return DataItem{}, DataItem{}, DataItem{}, nil, fmt.Errorf("sign media for asset %s: %w", key.Index, err)
	}

	manifest, err = LoadManifest(key.ManifestPath(u.Dir))
	if err != nil {
		return DataItem{}, DataItem{}, DataItem{}, nil, err
	}
	manifest.RewriteMediaURI(u.Client.ItemURI(media.ID), key.ContentType())

	payload, err := manifest.Encode()
	if err != nil {
		return DataItem{}, DataItem{}, DataItem{}, nil, err
	}
	man, err = u.Client.SignDataItem(ctx, payload, []Tag{
		{Name: "App-Name", Value: appName},
		{Name: "Content-Type", Value: "application/json"},
	})
	if err != nil {
		return DataItem{}, DataItem{}, DataItem{}, nil, fmt.Errorf("sign manifest for asset %s: %w", key.Index, err)
	}

	pm := pathManifest{
		Manifest: "arweave/paths",
		Version:  "0.1.0",
		Index:    pathManifestIndex{Path: "metadata.json"},
		Paths: map[string]pathManifestItem{
			key.Index + key.MediaExt: {ID: media.ID},
			"metadata.json":          {ID: man.ID},
		},
	}
	pmBytes, err := json.Marshal(pm)
	if err != nil {
		return DataItem{}, DataItem{}, DataItem{}, nil, fmt.Errorf("encode path manifest for asset %s: %w", key.Index, err)
	}
	path, err = u.Client.SignDataItem(ctx, pmBytes, []Tag{
		{Name: "App-Name", Value: appName},
		{Name: "Content-Type", Value: pathManifestContentType},
	})
	if err != nil {
		return DataItem{}, DataItem{}, DataItem{}, nil, fmt.Errorf("sign path manifest for asset %s: %w", key.Index, err)
	}

	return media, man, path, manifest, nil
}
