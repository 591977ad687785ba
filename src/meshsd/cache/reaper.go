package cache

import (
	"context"
	"time"

	"github.com/dogmatiq/dodeca/logging"
)

// Reaper periodically cleans expired records out of a Cache.
type Reaper struct {
	Cache    *Cache
	Interval time.Duration
	Now      func() time.Time
	Logger   logging.Logger
}

// Run cleans the cache every r.Interval until ctx is canceled.
func (r *Reaper) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	now := r.Now
	if now == nil {
		now = time.Now
	}

	logger := r.Logger
	if logger == nil {
		logger = logging.DefaultLogger
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			logger.DebugString("cleaning expired cache entries")
			r.Cache.Clean(now())
		}
	}
}
