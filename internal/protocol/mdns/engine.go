// Package mdns implements the mDNS/DNS-SD protocol engine on top of
// github.com/hashicorp/mdns: service advertisement via an mDNS responder
// and service lookup via mDNS queries.
package mdns

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog"

	"github.com/skylineproto/discover/internal/netutil"
	"github.com/skylineproto/discover/internal/registry"
	"github.com/skylineproto/discover/pkg/discovery"
)

// DefaultTimeout and MaxTimeout bound how long a discover call may run
// absent/with a caller-supplied timeout.
const (
	DefaultTimeout = 10 * time.Second
	MaxTimeout     = 30 * time.Second

	daemonCreateRetries = 3
	daemonRetryBaseDely = 100 * time.Millisecond
)

// registered tracks one service this process advertises: the hashicorp/mdns
// server answering queries for it, plus the info used to build it.
type registered struct {
	info   discovery.ServiceInfo
	server *mdns.Server
}

// Engine implements protocol.Engine for mDNS/DNS-SD. Every registered
// service gets its own *mdns.Server (the hashicorp/mdns API is one zone per
// server), torn down by Unregister; the engine has no shutdown method of
// its own.
type Engine struct {
	mu       sync.RWMutex
	services map[string]*registered // keyed by ServiceInfo.ID
	registry *registry.Registry
	logger   zerolog.Logger
}

// New creates an mDNS engine. The registry is optional; if set, Register
// also inserts a local entry so Find/discover_services see it immediately.
func New(reg *registry.Registry, logger zerolog.Logger) *Engine {
	return &Engine{
		services: make(map[string]*registered),
		registry: reg,
		logger:   logger.With().Str("component", "mdns").Logger(),
	}
}

// ProtocolType identifies this engine to the manager.
func (e *Engine) ProtocolType() discovery.ProtocolType { return discovery.Mdns }

// SetRegistry wires the shared Service Registry into the engine.
func (e *Engine) SetRegistry(reg *registry.Registry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registry = reg
}

// IsAvailable always reports true: mDNS queries and responders use
// best-effort UDP multicast and have no persistent "connected" state to
// report on.
func (e *Engine) IsAvailable() bool { return true }

// Discover queries for each requested service type (mDNS PTR/SRV/TXT
// lookup), merges in matching locally-registered services, and returns the
// union deduplicated by ID.
func (e *Engine) Discover(ctx context.Context, types []discovery.ServiceType, timeout time.Duration) ([]discovery.ServiceInfo, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}

	seen := make(map[string]discovery.ServiceInfo)

	for _, st := range types {
		if st.IsURN() {
			continue // URN service types are SSDP's concern, not mDNS's
		}
		for _, info := range e.queryOne(ctx, st, timeout) {
			seen[info.ID] = info
		}
	}

	e.mu.RLock()
	for _, r := range e.services {
		if serviceTypeMatches(types, r.info.ServiceType) {
			if _, dup := seen[r.info.ID]; !dup {
				seen[r.info.ID] = r.info
			}
		}
	}
	e.mu.RUnlock()

	out := make([]discovery.ServiceInfo, 0, len(seen))
	for _, info := range seen {
		out = append(out, info)
	}
	return out, nil
}

func serviceTypeMatches(types []discovery.ServiceType, st discovery.ServiceType) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if t.String() == st.String() {
			return true
		}
	}
	return false
}

// queryOne runs a single mDNS query for one service type, draining the
// entries channel until it closes or the deadline elapses. Each channel
// receive is itself bounded so a slow/empty network never stalls the whole
// call past its own budget.
func (e *Engine) queryOne(ctx context.Context, st discovery.ServiceType, timeout time.Duration) []discovery.ServiceInfo {
	entriesCh := make(chan *mdns.ServiceEntry, 32)

	params := mdns.DefaultParams(st.Instance() + "." + st.Protocol())
	params.Domain = "local"
	params.Entries = entriesCh
	params.Timeout = timeout
	params.DisableIPv6 = true

	go func() {
		if err := mdns.Query(params); err != nil {
			e.logger.Warn().Err(err).Str("service_type", st.String()).Msg("mdns query failed")
		}
		close(entriesCh)
	}()

	perEvent := 500 * time.Millisecond
	if timeout < perEvent {
		perEvent = timeout
	}
	deadline := time.Now().Add(timeout)

	var results []discovery.ServiceInfo
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return results
		}
		wait := perEvent
		if remaining < wait {
			wait = remaining
		}

		select {
		case <-ctx.Done():
			return results
		case entry, ok := <-entriesCh:
			if !ok {
				return results
			}
			results = append(results, entryToServiceInfo(entry, st))
		case <-time.After(wait):
			continue
		}
	}
}

func entryToServiceInfo(entry *mdns.ServiceEntry, st discovery.ServiceType) discovery.ServiceInfo {
	addr := entry.AddrV4
	if addr == nil {
		addr = entry.AddrV6
	}

	name := strings.TrimSuffix(entry.Name, ".")
	return discovery.ServiceInfo{
		ID:           name,
		Name:         name,
		ServiceType:  st,
		Address:      addr,
		Port:         entry.Port,
		Attributes:   discovery.ParseTXT(entry.InfoFields),
		ProtocolType: discovery.Mdns,
		DiscoveredAt: time.Now(),
		TTL:          discovery.DefaultTTL,
	}
}

// Register starts an mDNS responder advertising info and, if a registry is
// wired, inserts a local entry.
func (e *Engine) Register(ctx context.Context, info discovery.ServiceInfo) error {
	ips := []net.IP{info.Address}
	if info.Address == nil {
		localIPs, err := netutil.LocalIPv4s()
		if err != nil || len(localIPs) == 0 {
			return discovery.NewError(discovery.Network, "no local IPv4 address to advertise on", err)
		}
		ips = localIPs
	}

	txt := discovery.AttributesToTXT(info.Attributes)

	zone, err := mdns.NewMDNSService(
		info.Name,
		info.ServiceType.Instance()+"."+info.ServiceType.Protocol(),
		"local.",
		info.Name+".local.",
		info.Port,
		ips,
		txt,
	)
	if err != nil {
		return discovery.NewError(discovery.InvalidServiceInfo, "building mdns service zone", err)
	}

	var server *mdns.Server
	var lastErr error
	for attempt := 0; attempt < daemonCreateRetries; attempt++ {
		server, lastErr = mdns.NewServer(&mdns.Config{Zone: zone})
		if lastErr == nil {
			break
		}
		select {
		case <-ctx.Done():
			return discovery.NewError(discovery.Network, "creating mdns responder", ctx.Err())
		case <-time.After(daemonRetryBaseDely * time.Duration(attempt+1)):
		}
	}
	if lastErr != nil {
		return discovery.NewError(discovery.Network, "creating mdns responder after retries", lastErr)
	}

	e.mu.Lock()
	e.services[info.ID] = &registered{info: info, server: server}
	e.mu.Unlock()

	if e.registry != nil {
		e.registry.RegisterLocal(info, discovery.Mdns)
	}

	e.logger.Info().Str("name", info.Name).Str("type", info.ServiceType.String()).Msg("registered mdns service")
	return nil
}

// Unregister shuts down the mDNS responder for info and removes it from
// the registry.
func (e *Engine) Unregister(ctx context.Context, info discovery.ServiceInfo) error {
	e.mu.Lock()
	r, ok := e.services[info.ID]
	if ok {
		delete(e.services, info.ID)
	}
	e.mu.Unlock()

	if !ok {
		return discovery.NewError(discovery.ServiceNotFound, info.ID, nil)
	}

	if err := r.server.Shutdown(); err != nil {
		return discovery.NewError(discovery.Network, "shutting down mdns responder", err)
	}

	if e.registry != nil {
		if err := e.registry.UnregisterLocal(info.Key()); err != nil {
			e.logger.Warn().Err(err).Str("key", info.Key()).Msg("registry entry already absent on unregister")
		}
	}

	return nil
}

// Verify reports whether info's full mDNS service name (instance.service.
// domain) is currently registered by this engine.
func (e *Engine) Verify(ctx context.Context, info discovery.ServiceInfo) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	r, ok := e.services[info.ID]
	if !ok {
		return false, nil
	}
	return fullServiceName(r.info) == fullServiceName(info), nil
}

// fullServiceName renders the wire-form FQDN an mDNS responder answers
// under: "<instance>.<service-type>.local.".
func fullServiceName(info discovery.ServiceInfo) string {
	return fmt.Sprintf("%s.%s.%s.local.", info.Name, info.ServiceType.Instance(), info.ServiceType.Protocol())
}
