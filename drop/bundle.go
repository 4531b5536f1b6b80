package drop

import "fmt"

// BundleSizeLimit is the maximum payload one bundled submission may carry.
const BundleSizeLimit int64 = 200_000_000

// BundleRange is a transient planning result: how many of the next pending
// assets fit under the byte ceiling and their cumulative pair size. Never
// persisted.
type BundleRange struct {
	Count int
	Size  int64
}

// BundlePlanner groups pending assets into size-bounded bundles. Planning
// is deterministic and order-preserving: assets are consumed from the front
// of the pending list with no reordering, so re-runs produce the same
// groupings.
type BundlePlanner struct {
	Dir   string
	Limit int64
}

// NewBundlePlanner returns a planner over dir with the default size limit.
func NewBundlePlanner(dir string) *BundlePlanner {
	return &BundlePlanner{Dir: dir, Limit: BundleSizeLimit}
}

// PlanNextBundle walks pending from the front, summing each asset's media
// plus manifest sizes, and stops before the asset that would push the total
// at or over the limit. A first asset that alone reaches the limit can never
// be bundled and is a fatal configuration error, not a skip.
func (p *BundlePlanner) PlanNextBundle(pending []AssetKey) (BundleRange, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = BundleSizeLimit
	}

	var r BundleRange
	for _, key := range pending {
		pair, err := p.pairSize(key)
		if err != nil {
			return BundleRange{}, err
		}
		if r.Size+pair >= limit {
			if r.Count == 0 {
				return BundleRange{}, oversizedAssetError(key, pair, limit)
			}
			break
		}
		r.Count++
		r.Size += pair
	}
	return r, nil
}

// EnsureFits returns ErrAssetTooLarge when key's pair alone reaches the
// limit and can never be bundled. Callers use it to reject a pending set
// before any bytes are signed or submitted.
func (p *BundlePlanner) EnsureFits(key AssetKey) error {
	limit := p.Limit
	if limit <= 0 {
		limit = BundleSizeLimit
	}
	pair, err := p.pairSize(key)
	if err != nil {
		return err
	}
	if pair >= limit {
		return oversizedAssetError(key, pair, limit)
	}
	return nil
}

func oversizedAssetError(key AssetKey, pair, limit int64) error {
	return fmt.Errorf("%w: asset %s%s pair size %d bytes, limit %d bytes",
		ErrAssetTooLarge, key.Index, key.MediaExt, pair, limit)
}

func (p *BundlePlanner) pairSize(key AssetKey) (int64, error) {
	media, err := fileSize(key.MediaPath(p.Dir))
	if err != nil {
		return 0, fmt.Errorf("stat media for asset %s: %w", key.Index, err)
	}
	manifest, err := fileSize(key.ManifestPath(p.Dir))
	if err != nil {
		return 0, fmt.Errorf("stat manifest for asset %s: %w", key.Index, err)
	}
	return media + manifest, nil
}
