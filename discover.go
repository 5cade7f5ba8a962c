// Package discover is the library's public entry point: a thin demultiplexer
// over the Protocol Manager, unifying mDNS, DNS-SD naming, and UPnP SSDP
// behind a single register/discover/unregister/verify contract.
package discover

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/skylineproto/discover/internal/protocol"
	"github.com/skylineproto/discover/internal/protocol/mdns"
	"github.com/skylineproto/discover/internal/protocol/ssdp"
	"github.com/skylineproto/discover/internal/registry"
	"github.com/skylineproto/discover/pkg/discovery"
)

// ServiceDiscovery is the façade described by spec.md §4.5: it validates
// config, instantiates the Protocol Manager, applies the façade-level
// filter/truncation policy, and maintains an observability cache of
// everything it has seen.
type ServiceDiscovery struct {
	config   discovery.Config
	manager  *protocol.Manager
	registry *registry.Registry
	logger   zerolog.Logger

	mu                 sync.RWMutex
	discoveredCache    map[string]discovery.ServiceInfo // name -> most recently seen info
	registeredServices []discovery.ServiceInfo
}

// New validates config and constructs the Protocol Manager, instantiating
// only the engines enabled in config. Engines exist for mDNS and UPnP only,
// and their construction cannot fail; if no enabled protocol has an engine
// (for example a DNS-SD-only config), New returns a Configuration error.
func New(config discovery.Config, logger zerolog.Logger) (*ServiceDiscovery, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	reg := registry.New(registry.Config{
		MaxServices: config.MaxServices,
		DefaultTTL:  config.CacheDuration,
		Logger:      logger,
	})

	engines := make(map[discovery.ProtocolType]protocol.Engine)

	if config.IsEnabled(discovery.Mdns) {
		engines[discovery.Mdns] = mdns.New(reg, logger)
	}
	if config.IsEnabled(discovery.Upnp) {
		engines[discovery.Upnp] = ssdp.New(reg, logger)
	}
	if len(engines) == 0 {
		return nil, discovery.NewError(discovery.Configuration, "no enabled protocol has a discovery engine", nil)
	}

	return &ServiceDiscovery{
		config:          config,
		manager:         protocol.NewManager(engines, logger),
		registry:        reg,
		logger:          logger.With().Str("component", "discovery-facade").Logger(),
		discoveredCache: make(map[string]discovery.ServiceInfo),
	}, nil
}

// DiscoverServices runs discovery across every enabled protocol, or a
// single one if protocolFilter is non-nil. It applies config.Filter and
// truncates to config.MaxServices before returning.
func (d *ServiceDiscovery) DiscoverServices(ctx context.Context, protocolFilter *discovery.ProtocolType) ([]discovery.ServiceInfo, error) {
	var results []discovery.ServiceInfo

	if protocolFilter != nil {
		if !d.config.IsEnabled(*protocolFilter) {
			return nil, discovery.NewError(discovery.Protocol, "protocol "+(*protocolFilter).String()+" is not enabled", nil)
		}
		if len(d.config.ServiceTypes) == 0 {
			return nil, discovery.NewError(discovery.Configuration, "service_types must not be empty", nil)
		}
		found, err := d.manager.DiscoverWith(ctx, *protocolFilter, d.config.ServiceTypes, d.config.Timeout)
		if err != nil {
			return nil, err
		}
		results = found
	} else {
		if len(d.config.ServiceTypes) == 0 {
			return nil, discovery.NewError(discovery.Configuration, "service_types must not be empty", nil)
		}
		results = d.manager.DiscoverAll(ctx, d.config.ServiceTypes, d.config.Timeout)
	}

	filtered := results[:0:0]
	for _, info := range results {
		if d.config.Filter != nil && !d.config.Filter(info) {
			continue
		}
		filtered = append(filtered, info)
		if d.config.MaxServices > 0 && len(filtered) >= d.config.MaxServices {
			break
		}
	}

	d.mu.Lock()
	for _, info := range filtered {
		d.discoveredCache[info.Name] = info
	}
	d.mu.Unlock()

	return filtered, nil
}

// RegisterService forwards to the Protocol Manager and, on success,
// appends info to the façade's registered-services cache.
func (d *ServiceDiscovery) RegisterService(ctx context.Context, info discovery.ServiceInfo) error {
	if !d.config.IsEnabled(info.ProtocolType) && info.ProtocolType != discovery.Any {
		return discovery.NewError(discovery.Protocol, "protocol "+info.ProtocolType.String()+" is not enabled", nil)
	}

	if err := d.manager.Register(ctx, info); err != nil {
		return err
	}

	d.mu.Lock()
	d.registeredServices = append(d.registeredServices, info)
	d.mu.Unlock()

	return nil
}

// UnregisterService forwards to the Protocol Manager unchanged.
func (d *ServiceDiscovery) UnregisterService(ctx context.Context, info discovery.ServiceInfo) error {
	return d.manager.Unregister(ctx, info)
}

// VerifyService forwards to the Protocol Manager unchanged.
func (d *ServiceDiscovery) VerifyService(ctx context.Context, info discovery.ServiceInfo) (bool, error) {
	return d.manager.Verify(ctx, info)
}

// Health reports per-protocol availability.
func (d *ServiceDiscovery) Health() map[discovery.ProtocolType]bool {
	return d.manager.Health()
}

// DiscoveredServices returns a snapshot of every service ever observed by
// DiscoverServices, for observability only — it is not consulted by
// DiscoverServices itself, which always re-queries the live engines.
func (d *ServiceDiscovery) DiscoveredServices() []discovery.ServiceInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]discovery.ServiceInfo, 0, len(d.discoveredCache))
	for _, info := range d.discoveredCache {
		out = append(out, info)
	}
	return out
}

// RegisteredServices returns a snapshot of every service this process has
// registered via RegisterService.
func (d *ServiceDiscovery) RegisteredServices() []discovery.ServiceInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]discovery.ServiceInfo, len(d.registeredServices))
	copy(out, d.registeredServices)
	return out
}

// WithTimeout builds a bounded context from config.Timeout, matching the
// ambient pattern the teacher uses for context.WithTimeout at call
// boundaries.
func (d *ServiceDiscovery) WithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	timeout := d.config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(parent, timeout)
}
