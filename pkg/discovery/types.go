// Package discovery is a multi-protocol local-network service discovery
// library. It unifies mDNS, DNS-SD naming, and UPnP SSDP behind a single
// register/discover/unregister/verify contract.
package discovery

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProtocolType tags which discovery protocol produced or owns a service.
type ProtocolType int

const (
	// Mdns is the default protocol.
	Mdns ProtocolType = iota
	DnsSd
	Upnp
	// Any is only meaningful on the register path: let the manager pick.
	Any
)

func (p ProtocolType) String() string {
	switch p {
	case Mdns:
		return "mdns"
	case DnsSd:
		return "dns-sd"
	case Upnp:
		return "upnp"
	case Any:
		return "any"
	default:
		return fmt.Sprintf("protocol(%d)", int(p))
	}
}

// ServiceType is the discovery name of a service. It accepts two syntactic
// flavors: a DNS-SD triple (`_http._tcp` or `_http._tcp.local`) or a UPnP
// URN (`urn:schemas-upnp-org:service:ContentDirectory:1`).
//
// String is a lossless round trip: ServiceType parsed from a string that
// New accepts always re-parses to an equal structural value.
type ServiceType struct {
	instance string // e.g. "_http", leading underscore always present
	proto    string // e.g. "_tcp" or "_udp"; empty for URN types
	domain   string // optional, e.g. "local"; empty if absent
	urn      string // the raw URN when this is a UPnP service type
}

// New parses s into a ServiceType. It returns InvalidData if s is empty,
// lacks a second label starting with '_', or is otherwise malformed.
func New(s string) (ServiceType, error) {
	if s == "" {
		return ServiceType{}, NewError(InvalidData, "service type is empty", nil)
	}

	if strings.HasPrefix(s, "urn:") {
		return ServiceType{urn: s}, nil
	}

	labels := strings.Split(s, ".")
	if len(labels) < 2 {
		return ServiceType{}, NewError(InvalidData, fmt.Sprintf("service type %q has no proto label", s), nil)
	}

	instance := labels[0]
	if !strings.HasPrefix(instance, "_") {
		instance = "_" + instance
	}

	proto := labels[1]
	if !strings.HasPrefix(proto, "_") {
		return ServiceType{}, NewError(InvalidData, fmt.Sprintf("service type %q: proto label %q must start with '_'", s, proto), nil)
	}
	if proto != "_tcp" && proto != "_udp" {
		return ServiceType{}, NewError(InvalidData, fmt.Sprintf("service type %q: proto label must be _tcp or _udp", s), nil)
	}

	domain := ""
	if len(labels) > 2 {
		domain = strings.Join(labels[2:], ".")
		domain = strings.TrimSuffix(domain, ".")
	}

	return ServiceType{instance: instance, proto: proto, domain: domain}, nil
}

// IsURN reports whether this service type is a UPnP URN.
func (t ServiceType) IsURN() bool { return t.urn != "" }

// Protocol returns "_tcp" or "_udp" for DNS-SD triples, empty for URNs.
func (t ServiceType) Protocol() string { return t.proto }

// Instance returns the instance label (e.g. "_http"), empty for URNs.
func (t ServiceType) Instance() string { return t.instance }

// Domain returns the optional domain label, empty if absent or for URNs.
func (t ServiceType) Domain() string { return t.domain }

// String renders the lossless round-trip form of the service type.
func (t ServiceType) String() string {
	if t.urn != "" {
		return t.urn
	}
	if t.domain != "" {
		return t.instance + "." + t.proto + "." + t.domain
	}
	return t.instance + "." + t.proto
}

// WireString renders the form used on the wire for mDNS lookups: the
// DNS-SD triple always ending in ".local.". URNs are returned unchanged
// since they have no mDNS wire form.
func (t ServiceType) WireString() string {
	if t.urn != "" {
		return t.urn
	}
	base := t.instance + "." + t.proto
	domain := t.domain
	if domain == "" {
		domain = "local"
	}
	return base + "." + strings.TrimSuffix(domain, ".") + "."
}

// ServiceInfo describes one service instance, either one this process
// advertises (register path) or one observed on the network (discover
// path).
type ServiceInfo struct {
	ID           string
	Name         string
	ServiceType  ServiceType
	Address      net.IP
	Port         int
	Attributes   map[string]string
	ProtocolType ProtocolType
	DiscoveredAt time.Time
	TTL          time.Duration
	Verified     bool
	Interface    string
}

// DefaultTTL is the default validity window for a ServiceInfo once it is
// observed on the network.
const DefaultTTL = 60 * time.Second

// NewServiceInfo builds a ServiceInfo with a fresh UUID and sane defaults
// (DiscoveredAt=now, TTL=DefaultTTL, Attributes initialized).
func NewServiceInfo(name string, st ServiceType, addr net.IP, port int) (*ServiceInfo, error) {
	if name == "" {
		return nil, NewInvalidServiceInfo("name", "must not be empty")
	}
	if addr == nil {
		return nil, NewInvalidServiceInfo("address", "must not be nil")
	}
	if port < 1 || port > 65535 {
		return nil, NewInvalidServiceInfo("port", "must be in 1..65535")
	}

	return &ServiceInfo{
		ID:           uuid.NewString(),
		Name:         name,
		ServiceType:  st,
		Address:      addr,
		Port:         port,
		Attributes:   make(map[string]string),
		ProtocolType: Mdns,
		DiscoveredAt: time.Now(),
		TTL:          DefaultTTL,
	}, nil
}

// Key returns the composite registry key "{name}:{service_type}:{port}".
func (s *ServiceInfo) Key() string {
	return fmt.Sprintf("%s:%s:%d", s.Name, s.ServiceType.String(), s.Port)
}

// ParseTXT parses a TXT-style attribute list ("key=value" pairs, bare keys
// map to an empty value) into a case-normalized attribute map. Keys are
// lowercased since TXT keys are conventionally case-insensitive (RFC 6763
// §6.4).
func ParseTXT(fields []string) map[string]string {
	attrs := make(map[string]string, len(fields))
	for _, f := range fields {
		key, value, found := strings.Cut(f, "=")
		if !found {
			attrs[strings.ToLower(key)] = ""
			continue
		}
		attrs[strings.ToLower(key)] = value
	}
	return attrs
}

// AttributesToTXT converts an attribute map into "key=value" TXT pairs.
func AttributesToTXT(attrs map[string]string) []string {
	out := make([]string, 0, len(attrs))
	for k, v := range attrs {
		out = append(out, k+"="+v)
	}
	return out
}
