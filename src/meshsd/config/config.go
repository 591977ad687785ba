// Package config loads meshsd's timing and network parameters, per
// spec.md §6's configuration table.
//
// Configuration is loaded with the following priority (highest to
// lowest):
//  1. Functional Options passed to Load
//  2. Environment variables (MESHSD_* prefix)
//  3. Hardcoded defaults
package config

import (
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kestrel-oss/meshsd/src/meshsd/announce"
	"github.com/kestrel-oss/meshsd/src/meshsd/browse"
	"github.com/kestrel-oss/meshsd/src/meshsd/engine"
	"github.com/kestrel-oss/meshsd/src/meshsd/resolve"
)

// Network holds the multicast group/port parameters named in spec.md
// §6. These are fixed by RFC 6762 for interoperability; Load reads and
// exposes them so a deployment can check them, but does not validate them
// (an unparseable group address is left as a nil IP), and transport.Open
// always binds the standard group and port regardless of override (see
// DESIGN.md's "Ambient: config" entry).
type Network struct {
	IPv4Group net.IP
	IPv6Group net.IP
	Port      int
}

// Config is the fully resolved set of meshsd parameters.
type Config struct {
	Network Network
	Engine  engine.Config
}

// Option applies a post-load override to a Config, mirroring the
// teacher's functional-option pattern for process-level overrides.
type Option func(*Config)

// WithReaperInterval overrides the cache reaper's sweep interval.
func WithReaperInterval(d time.Duration) Option {
	return func(c *Config) { c.Engine.ReaperInterval = d }
}

// WithResolveTimeout overrides the default Resolve wall-clock budget.
func WithResolveTimeout(d time.Duration) Option {
	return func(c *Config) { c.Engine.ResolveTimeout = d }
}

// WithAnnounce overrides the probe/announce/cancel timing block.
func WithAnnounce(cfg announce.Config) Option {
	return func(c *Config) { c.Engine.Announce = cfg }
}

// WithNetwork overrides the reported multicast group/port.
func WithNetwork(n Network) Option {
	return func(c *Config) { c.Network = n }
}

// Load reads defaults, then the MESHSD_-prefixed environment, then
// applies opts in order.
func Load(opts ...Option) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MESHSD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Network: Network{
			IPv4Group: net.ParseIP(v.GetString("mdns.ipv4")),
			IPv6Group: net.ParseIP(v.GetString("mdns.ipv6")),
			Port:      v.GetInt("mdns.port"),
		},
		Engine: engine.Config{
			Announce: announce.Config{
				ProbeNum:             v.GetInt("probing.number"),
				ProbingInterval:      v.GetDuration("probing.interval"),
				ProbingTimeout:       v.GetDuration("probing.timeout"),
				AnnouncementNum:      v.GetInt("announcement.number"),
				AnnouncementInterval: v.GetDuration("announcement.interval"),
				CancelNum:            v.GetInt("cancellation.number"),
				CancellingInterval:   v.GetDuration("cancellation.interval"),
			},
			Resolve: resolve.Config{
				ResolutionInterval: v.GetDuration("resolution.interval"),
			},
			Browse: browse.Config{
				InitialDelay:   v.GetDuration("querying.delay"),
				BaseDelay:      v.GetDuration("querying.interval"),
				Factor:         2,
				MaxDelay:       v.GetDuration("querying.max_interval"),
				ResolveTimeout: v.GetDuration("resolution.timeout"),
			},
			ResolveTimeout: v.GetDuration("resolution.timeout"),
			ReaperInterval: v.GetDuration("reaper.interval"),
		},
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mdns.ipv4", "224.0.0.251")
	v.SetDefault("mdns.ipv6", "ff02::fb")
	v.SetDefault("mdns.port", 5353)

	v.SetDefault("resolution.timeout", "6000ms")
	v.SetDefault("resolution.interval", "200ms")

	v.SetDefault("probing.timeout", "6000ms")
	v.SetDefault("probing.interval", "250ms")
	v.SetDefault("probing.number", 3)

	v.SetDefault("announcement.number", 2)
	v.SetDefault("announcement.interval", "1000ms")

	v.SetDefault("querying.delay", "120ms")
	v.SetDefault("querying.interval", "1000ms")
	v.SetDefault("querying.max_interval", "60m")
	v.SetDefault("querying.number", 3)

	v.SetDefault("cancellation.interval", "250ms")
	v.SetDefault("cancellation.number", 3)

	v.SetDefault("reaper.interval", "10s")
}
