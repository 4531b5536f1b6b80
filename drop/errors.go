package drop

import "errors"

var (
	ErrCacheNotFound      = errors.New("cache not found")
	ErrAssetCountMismatch = errors.New("media and manifest file counts do not match")
	ErrAssetTooLarge      = errors.New("asset exceeds bundle size limit")
	ErrConfigNotCreated   = errors.New("remote configuration has not been created")

	ErrRunLeaseConflict = errors.New("run lease conflict")
)
