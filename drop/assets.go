package drop

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// mediaContentTypes is the allow-list of media extensions the pipeline will
// pair with a manifest, mapped to the content type reported to storage
// backends.
var mediaContentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".glb":  "model/gltf-binary",
}

const manifestExt = ".json"

// AssetKey identifies one logical asset in the source directory: a media
// file <Index><MediaExt> and a manifest file <Index>.json.
type AssetKey struct {
	Index    string
	MediaExt string
}

// MediaPath returns the absolute path of the asset's media file under dir.
func (k AssetKey) MediaPath(dir string) string {
	return filepath.Join(dir, k.Index+k.MediaExt)
}

// ManifestPath returns the absolute path of the asset's manifest file under
// dir.
func (k AssetKey) ManifestPath(dir string) string {
	return filepath.Join(dir, k.Index+manifestExt)
}

// ContentType returns the media content type for the asset's extension.
func (k AssetKey) ContentType() string {
	return mediaContentTypes[strings.ToLower(k.MediaExt)]
}

// AssetCatalog scans a flat source directory and pairs each index with its
// media and manifest files.
type AssetCatalog struct {
	Dir string
}

// Scan lists the source directory and returns every paired asset in
// ascending numeric index order. Files with extensions outside the media
// allow-list (and outside .json) are ignored. A media/manifest count
// mismatch means the directory is structurally corrupt and is fatal.
func (c *AssetCatalog) Scan() ([]AssetKey, error) {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		return nil, fmt.Errorf("scan assets dir %s: %w", c.Dir, err)
	}

	mediaByIndex := make(map[string]string)
	manifests := make(map[string]struct{})
	mediaCount, manifestCount := 0, 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		index := strings.TrimSuffix(name, filepath.Ext(name))

		if ext == manifestExt {
			if _, seen := manifests[index]; !seen {
				manifests[index] = struct{}{}
				manifestCount++
			}
			continue
		}
		if _, ok := mediaContentTypes[ext]; !ok {
			continue
		}
		if _, seen := mediaByIndex[index]; !seen {
			mediaByIndex[index] = filepath.Ext(name)
			mediaCount++
		}
	}

	if mediaCount != manifestCount {
		return nil, fmt.Errorf("%w: %d media files, %d manifests in %s",
			ErrAssetCountMismatch, mediaCount, manifestCount, c.Dir)
	}

	keys := make([]AssetKey, 0, len(mediaByIndex))
	for index, ext := range mediaByIndex {
		if _, ok := manifests[index]; !ok {
			return nil, fmt.Errorf("%w: media %s%s has no manifest",
				ErrAssetCountMismatch, index, ext)
		}
		keys = append(keys, AssetKey{Index: index, MediaExt: ext})
	}

	sort.Slice(keys, func(i, j int) bool {
		return numericLess(keys[i].Index, keys[j].Index)
	})
	return keys, nil
}

// PendingAssets returns, in stable input order, the subset of keys that the
// cache does not yet record a link for. Upload is idempotent: anything
// absent or linkless is retried on every run.
func PendingAssets(keys []AssetKey, cache *Cache) []AssetKey {
	pending := make([]AssetKey, 0, len(keys))
	for _, key := range keys {
		item, ok := cache.Item(key.Index)
		if !ok || item.Link == "" {
			pending = append(pending, key)
		}
	}
	return pending
}
