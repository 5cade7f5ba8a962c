package protocol

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/skylineproto/discover/pkg/discovery"
)

// Manager owns a mapping from ProtocolType to an engine instance. Engines
// are instantiated once at construction time and never replaced; the
// manager itself holds no mutable state beyond that table, since every
// engine is internally synchronized.
type Manager struct {
	engines map[discovery.ProtocolType]Engine
	logger  zerolog.Logger
}

// NewManager builds a manager from a pre-constructed set of engines,
// keyed by the protocol they implement. Callers are expected to have
// already skipped/logged any engine whose construction failed, per
// spec.md §4.4 ("construction failures for any one engine are swallowed
// with a warning").
func NewManager(engines map[discovery.ProtocolType]Engine, logger zerolog.Logger) *Manager {
	return &Manager{
		engines: engines,
		logger:  logger.With().Str("component", "protocol-manager").Logger(),
	}
}

// DiscoverAll calls every enabled engine's Discover concurrently and
// merges results. Results are NOT deduplicated across engines: the same
// physical service may legitimately appear multiple times under different
// ProtocolType tags. A per-engine error is logged as a warning and does
// not fail the call.
func (m *Manager) DiscoverAll(ctx context.Context, types []discovery.ServiceType, timeout time.Duration) []discovery.ServiceInfo {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []discovery.ServiceInfo
	)

	for protocol, engine := range m.engines {
		wg.Add(1)
		go func(protocol discovery.ProtocolType, engine Engine) {
			defer wg.Done()

			found, err := engine.Discover(ctx, types, timeout)
			if err != nil {
				m.logger.Warn().Err(err).Str("protocol", protocol.String()).Msg("engine discover failed")
				return
			}

			mu.Lock()
			results = append(results, found...)
			mu.Unlock()
		}(protocol, engine)
	}

	wg.Wait()
	return results
}

// DiscoverWith runs Discover against a single engine. It returns a
// Protocol error if no engine is registered for that protocol.
func (m *Manager) DiscoverWith(ctx context.Context, protocol discovery.ProtocolType, types []discovery.ServiceType, timeout time.Duration) ([]discovery.ServiceInfo, error) {
	engine, ok := m.engines[protocol]
	if !ok {
		return nil, discovery.NewError(discovery.Protocol, "no engine registered for protocol "+protocol.String(), nil)
	}
	return engine.Discover(ctx, types, timeout)
}

// Register dispatches to the engine whose type equals service.ProtocolType.
// Any is resolved by preferring mDNS if enabled, else the first enabled
// engine found (map iteration order, which is intentionally unspecified —
// callers that care about which engine serves Any should set ProtocolType
// explicitly).
func (m *Manager) Register(ctx context.Context, info discovery.ServiceInfo) error {
	engine, err := m.resolve(info.ProtocolType)
	if err != nil {
		return err
	}
	return engine.Register(ctx, info)
}

// Unregister dispatches like Register.
func (m *Manager) Unregister(ctx context.Context, info discovery.ServiceInfo) error {
	engine, err := m.resolve(info.ProtocolType)
	if err != nil {
		return err
	}
	return engine.Unregister(ctx, info)
}

// Verify dispatches like Register.
func (m *Manager) Verify(ctx context.Context, info discovery.ServiceInfo) (bool, error) {
	engine, err := m.resolve(info.ProtocolType)
	if err != nil {
		return false, err
	}
	return engine.Verify(ctx, info)
}

func (m *Manager) resolve(protocol discovery.ProtocolType) (Engine, error) {
	if protocol == discovery.Any {
		if engine, ok := m.engines[discovery.Mdns]; ok {
			return engine, nil
		}
		for _, engine := range m.engines {
			return engine, nil
		}
		return nil, discovery.NewError(discovery.Protocol, "no engine available to resolve protocol Any", nil)
	}

	engine, ok := m.engines[protocol]
	if !ok {
		return nil, discovery.NewError(discovery.Protocol, "no engine registered for protocol "+protocol.String(), nil)
	}
	return engine, nil
}

// Health probes every engine's IsAvailable.
func (m *Manager) Health() map[discovery.ProtocolType]bool {
	health := make(map[discovery.ProtocolType]bool, len(m.engines))
	for protocol, engine := range m.engines {
		health[protocol] = engine.IsAvailable()
	}
	return health
}
