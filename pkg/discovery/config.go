package discovery

import "time"

// Config configures a ServiceDiscovery façade instance. DefaultConfig
// returns one populated with the defaults; zero values in a Config are not
// replaced by those defaults, and Validate rejects a zero Timeout.
type Config struct {
	ServiceTypes       []ServiceType
	Timeout            time.Duration
	VerifyServices     bool
	Interfaces         []string
	MaxServices        int
	MaxRetries         int
	CacheDuration      time.Duration
	RateLimit          time.Duration
	MetricsEnabled     bool
	EnabledProtocols   map[ProtocolType]bool
	AllowCrossProtocol bool
	EnableIPv4         bool
	EnableIPv6         bool
	Filter             DiscoveryFilter
}

// DefaultConfig returns the spec-mandated defaults: 30s timeout, 1000 max
// services, 3 max retries, 300s cache duration, 1s rate limit, mDNS-only,
// IPv4-only.
func DefaultConfig() Config {
	return Config{
		Timeout:          30 * time.Second,
		MaxServices:      1000,
		MaxRetries:       3,
		CacheDuration:    300 * time.Second,
		RateLimit:        1 * time.Second,
		EnabledProtocols: map[ProtocolType]bool{Mdns: true},
		EnableIPv4:       true,
	}
}

// Validate checks the invariants spec.md §6 requires: timeout must be
// positive, at least one IP family must be enabled, and at least one
// protocol must be enabled.
func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return NewError(Configuration, "timeout must be > 0", nil)
	}
	if !c.EnableIPv4 && !c.EnableIPv6 {
		return NewError(Configuration, "at least one of enable_ipv4/enable_ipv6 must be true", nil)
	}
	if len(c.EnabledProtocols) == 0 {
		return NewError(Configuration, "enabled_protocols must not be empty", nil)
	}
	anyEnabled := false
	for _, enabled := range c.EnabledProtocols {
		if enabled {
			anyEnabled = true
			break
		}
	}
	if !anyEnabled {
		return NewError(Configuration, "enabled_protocols must not be empty", nil)
	}
	return nil
}

// IsEnabled reports whether p is enabled in this config.
func (c Config) IsEnabled(p ProtocolType) bool {
	return c.EnabledProtocols[p]
}
