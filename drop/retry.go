package drop

import (
	"context"
	"time"
)

// runWithRetry runs op up to maxRetries additional times after a first
// failure, sleeping with quadratic backoff between attempts. Transient
// upload errors are retried wholesale; the op itself decides nothing about
// error classes.
func runWithRetry(ctx context.Context, maxRetries int, op func() error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if attempt >= maxRetries {
			return err
		}

		backoff := time.Duration((attempt+1)*(attempt+1)) * 250 * time.Millisecond
		if sleepErr := sleepWithContext(ctx, backoff); sleepErr != nil {
			return sleepErr
		}
	}
}
