package ssdp

import (
	"context"
	"fmt"
	"hash/fnv"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/skylineproto/discover/internal/registry"
	"github.com/skylineproto/discover/pkg/discovery"
)

// DefaultTimeout and MaxTimeout bound how long a discover call may run
// absent/with a caller-supplied timeout (spec.md §5).
const (
	DefaultTimeout = 10 * time.Second
	MaxTimeout     = 30 * time.Second
	maxSearchMX    = 5
)

type listenerState int

const (
	stateCreated listenerState = iota
	stateListening
	stateStopped
)

// Engine implements protocol.Engine for UPnP SSDP. It owns two kinds of
// sockets: one long-lived listener socket (started explicitly and shared
// for the engine's lifetime) and one short-lived per-discover search
// socket. Discover/register/unregister/verify never require the listener
// to be running — only answering other hosts' M-SEARCH requests does.
type Engine struct {
	mu        sync.RWMutex
	services  map[string]discovery.ServiceInfo // keyed by ServiceInfo.ID
	state     listenerState
	conn      *net.UDPConn
	shutdown  chan struct{}
	wg        sync.WaitGroup
	registry  *registry.Registry
	logger    zerolog.Logger
	serverTag string
}

// New creates an SSDP engine. The registry is optional; if set, Register
// also inserts a local entry so discoveries see it even without a network
// echo, mirroring the mDNS engine's behavior.
func New(reg *registry.Registry, logger zerolog.Logger) *Engine {
	return &Engine{
		services:  make(map[string]discovery.ServiceInfo),
		shutdown:  make(chan struct{}),
		registry:  reg,
		logger:    logger.With().Str("component", "ssdp").Logger(),
		serverTag: "discover/1.0 UPnP/1.0 ssdp-engine/1.0",
	}
}

// ProtocolType identifies this engine to the manager.
func (e *Engine) ProtocolType() discovery.ProtocolType { return discovery.Upnp }

// SetRegistry wires the shared Service Registry into the engine.
func (e *Engine) SetRegistry(reg *registry.Registry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registry = reg
}

// IsAvailable reports whether the listener is currently running. Discover
// and register remain usable regardless (they own their own sockets).
func (e *Engine) IsAvailable() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state == stateListening
}

// StartListener binds the SSDP multicast listener socket and begins
// answering M-SEARCH requests for registered services in the background.
// Failure to bind fails this call only; it never fails Discover or
// Register, which use their own sockets.
func (e *Engine) StartListener(ctx context.Context) error {
	e.mu.Lock()
	if e.state == stateListening {
		e.mu.Unlock()
		return nil
	}

	addr, err := net.ResolveUDPAddr("udp4", MulticastAddr)
	if err != nil {
		e.mu.Unlock()
		return discovery.NewError(discovery.Network, "resolving ssdp multicast addr", err)
	}

	conn, err := net.ListenMulticastUDP("udp4", nil, addr)
	if err != nil {
		e.mu.Unlock()
		return discovery.NewError(discovery.Network, "binding ssdp listener", err)
	}
	conn.SetReadBuffer(8192)

	e.conn = conn
	e.shutdown = make(chan struct{})
	e.state = stateListening
	e.mu.Unlock()

	e.wg.Add(1)
	go e.listenLoop(conn, e.shutdown)

	e.logger.Info().Str("addr", MulticastAddr).Msg("ssdp listener started")
	return nil
}

// Shutdown stops the background listener. It is best-effort: the listener
// task releases its socket and returns promptly.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	if e.state != stateListening {
		e.mu.Unlock()
		return
	}
	close(e.shutdown)
	conn := e.conn
	e.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	e.wg.Wait()

	e.mu.Lock()
	e.state = stateStopped
	e.mu.Unlock()

	e.logger.Info().Msg("ssdp listener stopped")
}

// listenLoop selects over the shutdown signal and recv_from, answering
// M-SEARCH requests that match a registered service. On a read error it
// breaks and lets the engine fall back to Stopped; the caller may restart
// via StartListener.
func (e *Engine) listenLoop(conn *net.UDPConn, shutdown chan struct{}) {
	defer e.wg.Done()

	buf := make([]byte, 8192)
	for {
		select {
		case <-shutdown:
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-shutdown:
				return
			default:
				e.logger.Warn().Err(err).Msg("ssdp listener read error, stopping")
				e.mu.Lock()
				e.state = stateStopped
				e.mu.Unlock()
				conn.Close()
				return
			}
		}

		msg, ok := ParseMessage(buf[:n])
		if !ok || msg.Kind != KindSearch || !msg.HasMandatorySearchHeaders() {
			continue
		}
		e.handleSearch(conn, src, msg)
	}
}

// clampMX parses the requester's MX header and clamps it to [1,maxSearchMX],
// per the UPnP recommendation that a responder never honor an MX outside
// that range.
func clampMX(raw string) int {
	mx, err := strconv.Atoi(raw)
	if err != nil || mx < 1 {
		mx = 1
	}
	if mx > maxSearchMX {
		mx = maxSearchMX
	}
	return mx
}

// searchJitter derives a pseudo-random delay in [0,mx] seconds from the
// requester's address rather than math/rand's global state, so concurrent
// searches never contend on a shared generator and the delay for a given
// requester is reproducible. This spreads unicast responses out the way
// the UPnP spec recommends, to avoid every listener on the segment
// answering an M-SEARCH in the same instant.
func searchJitter(src *net.UDPAddr, mx int) time.Duration {
	h := fnv.New32a()
	h.Write([]byte(src.String()))
	frac := float64(h.Sum32()%1000) / 1000.0
	return time.Duration(frac * float64(mx) * float64(time.Second))
}

// handleSearch answers an M-SEARCH with one unicast response per matching
// registered service, after sleeping a jitter derived from the requester's
// address and clamped MX, so responses don't all land in the same instant.
func (e *Engine) handleSearch(conn *net.UDPConn, src *net.UDPAddr, msg Message) {
	st := msg.Header("ST")
	mx := clampMX(msg.Header("MX"))

	e.mu.RLock()
	services := make([]discovery.ServiceInfo, 0, len(e.services))
	for _, s := range e.services {
		services = append(services, s)
	}
	e.mu.RUnlock()

	var matched []discovery.ServiceInfo
	for _, svc := range services {
		if MatchesSearchTarget(st, svc.ServiceType.String()) {
			matched = append(matched, svc)
		}
	}
	if len(matched) == 0 {
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		time.Sleep(searchJitter(src, mx))
		for _, svc := range matched {
			location := fmt.Sprintf("http://%s:%d/", svc.Address.String(), svc.Port)
			usn := "uuid:" + svc.ID + "::" + svc.ServiceType.String()
			resp := BuildSearchResponse(1800, location, st, usn, e.serverTag)

			if _, err := conn.WriteToUDP(resp, src); err != nil {
				e.logger.Warn().Err(err).Str("to", src.String()).Msg("failed to send ssdp response")
			}
		}
	}()
}

// Discover sends one M-SEARCH for each requested type (or "ssdp:all" if
// none given) and collects unicast responses until timeout elapses, then
// appends every locally-registered service that matches a search target and
// is not already among the responses (by ID).
func (e *Engine) Discover(ctx context.Context, types []discovery.ServiceType, timeout time.Duration) ([]discovery.ServiceInfo, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}

	targets := make([]string, 0, len(types))
	for _, t := range types {
		targets = append(targets, t.String())
	}
	if len(targets) == 0 {
		targets = []string{"ssdp:all"}
	}

	addr, err := net.ResolveUDPAddr("udp4", MulticastAddr)
	if err != nil {
		return nil, discovery.NewError(discovery.Network, "resolving ssdp multicast addr", err)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, discovery.NewError(discovery.Network, "opening ssdp search socket", err)
	}
	defer conn.Close()

	mx := int(timeout.Seconds())
	if mx > maxSearchMX {
		mx = maxSearchMX
	}
	if mx < 1 {
		mx = 1
	}

	for _, st := range targets {
		if _, err := conn.WriteToUDP(BuildSearchRequest(st, mx), addr); err != nil {
			return nil, discovery.NewError(discovery.Network, "sending m-search", err)
		}
	}

	deadline := time.Now().Add(timeout)
	var results []discovery.ServiceInfo
	buf := make([]byte, 8192)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		select {
		case <-ctx.Done():
			return results, nil
		default:
		}

		conn.SetReadDeadline(time.Now().Add(remaining))
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			break
		}

		info, ok := e.parseResponse(buf[:n], src)
		if !ok {
			continue // malformed datagram, skip without failing the whole call
		}
		results = append(results, info)
	}

	e.mu.RLock()
	for _, svc := range e.services {
		dup := false
		for _, r := range results {
			dup = dup || r.ID == svc.ID
		}
		for _, st := range targets {
			if !dup && MatchesSearchTarget(st, svc.ServiceType.String()) {
				results = append(results, svc)
				break
			}
		}
	}
	e.mu.RUnlock()

	return results, nil
}

// parseResponse converts a raw M-SEARCH response datagram into a
// ServiceInfo. The address/port come from the datagram source, not from
// LOCATION, per spec.md §4.2.
func (e *Engine) parseResponse(data []byte, src *net.UDPAddr) (discovery.ServiceInfo, bool) {
	msg, ok := ParseMessage(data)
	if !ok || msg.Kind != KindResponse || !msg.HasMandatoryResponseHeaders() {
		return discovery.ServiceInfo{}, false
	}

	st, err := discovery.New("upnp._tcp")
	if err != nil {
		return discovery.ServiceInfo{}, false
	}

	info := discovery.ServiceInfo{
		ID:           uuidFromUSN(msg.Header("USN")),
		Name:         msg.Header("USN"),
		ServiceType:  st,
		Address:      src.IP,
		Port:         src.Port,
		ProtocolType: discovery.Upnp,
		DiscoveredAt: time.Now(),
		TTL:          discovery.DefaultTTL,
		Attributes: map[string]string{
			"location": msg.Header("LOCATION"),
			"usn":      msg.Header("USN"),
			"st":       msg.Header("ST"),
		},
	}
	return info, true
}

// Register adds a service to this engine's registered-services table and
// announces it with a multicast NOTIFY ssdp:alive.
func (e *Engine) Register(ctx context.Context, info discovery.ServiceInfo) error {
	e.mu.Lock()
	e.services[info.ID] = info
	e.mu.Unlock()

	if e.registry != nil {
		e.registry.RegisterLocal(info, discovery.Upnp)
	}

	return e.sendNotify(info, "ssdp:alive")
}

// Unregister removes a service from the registered-services table and
// announces ssdp:byebye.
func (e *Engine) Unregister(ctx context.Context, info discovery.ServiceInfo) error {
	e.mu.Lock()
	delete(e.services, info.ID)
	e.mu.Unlock()

	if e.registry != nil {
		e.registry.UnregisterLocal(info.Key())
	}

	return e.sendNotify(info, "ssdp:byebye")
}

func (e *Engine) sendNotify(info discovery.ServiceInfo, nts string) error {
	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: net.ParseIP(multicastIP), Port: multicastPort})
	if err != nil {
		return discovery.NewError(discovery.Network, "opening ssdp notify socket", err)
	}
	defer conn.Close()

	location := fmt.Sprintf("http://%s:%d/", info.Address.String(), info.Port)
	usn := "uuid:" + info.ID + "::" + info.ServiceType.String()
	notify := BuildNotify(info.ServiceType.String(), nts, location, usn)

	if _, err := conn.Write(notify); err != nil {
		return discovery.NewError(discovery.Network, "sending ssdp notify", err)
	}
	return nil
}

// Verify returns true iff the service's UUID is in the registered-services
// table — a loose, local-only check per spec.md §9.
func (e *Engine) Verify(ctx context.Context, info discovery.ServiceInfo) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.services[info.ID]
	return ok, nil
}

func uuidFromUSN(usn string) string {
	// USN is "uuid:<id>::<type>"; extract <id>. Fall back to the full
	// string if it doesn't match the expected shape.
	const prefix = "uuid:"
	if len(usn) <= len(prefix) || usn[:len(prefix)] != prefix {
		return usn
	}
	rest := usn[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == ':' {
			return rest[:i]
		}
	}
	return rest
}
