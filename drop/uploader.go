package drop

import "context"

// appName tags every uploaded data item so backends can index what wrote it.
const appName = "mintline"

// Tag is one descriptive name/value pair attached to a data item.
type Tag struct {
	Name  string
	Value string
}

// UploadResult is one completed unit of upload work: the cache keys it
// covers, the manifest content URI per key, and the rewritten manifests.
// A unit that failed carries Err instead; results already delivered for
// other units are unaffected. The consumer persists the cache after every
// successful result, so a later failure never loses completed work.
type UploadResult struct {
	CacheKeys  []string
	Links      []string
	ImageLinks []string
	Manifests  []*Manifest
	Err        error
}

// StorageUploader streams upload results for the pending assets. The
// bundled strategy yields one result per size-bounded bundle; the per-asset
// strategy yields one result per asset. Implementations must never deliver
// a link whose bytes were not durably accepted by the backend, and must
// close the channel when all pending work has been attempted.
type StorageUploader interface {
	Upload(ctx context.Context, assets []AssetKey) <-chan UploadResult
}
