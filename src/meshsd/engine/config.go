package engine

import (
	"time"

	"github.com/kestrel-oss/meshsd/src/meshsd/announce"
	"github.com/kestrel-oss/meshsd/src/meshsd/browse"
	"github.com/kestrel-oss/meshsd/src/meshsd/resolve"
)

// Config aggregates every component's timing parameters, per spec.md §6's
// configuration table.
type Config struct {
	Announce       announce.Config
	Resolve        resolve.Config
	Browse         browse.Config
	ResolveTimeout time.Duration
	ReaperInterval time.Duration
}

// DefaultConfig returns the documented defaults for every component.
func DefaultConfig() Config {
	return Config{
		Announce:       announce.DefaultConfig(),
		Resolve:        resolve.DefaultConfig(),
		Browse:         browse.DefaultConfig(),
		ResolveTimeout: resolve.DefaultTimeout,
		ReaperInterval: 10 * time.Second,
	}
}
