package discovery

import (
	"strings"
	"time"
)

// ServiceFilter is a record of optional predicates combined by logical AND.
// A filter with every field at its zero value matches every non-expired
// entry.
type ServiceFilter struct {
	ServiceTypes   []ServiceType
	Protocols      []ProtocolType
	NameContains   string
	LocalOnly      bool
	DiscoveredOnly bool
	MaxAge         time.Duration
}

// Matches reports whether the entry satisfies every predicate set on the
// filter. Expiry is evaluated by the caller (registry), not here.
func (f ServiceFilter) Matches(info ServiceInfo, isLocal bool) bool {
	if f.LocalOnly && f.DiscoveredOnly {
		return false
	}
	if f.LocalOnly && !isLocal {
		return false
	}
	if f.DiscoveredOnly && isLocal {
		return false
	}

	if len(f.ServiceTypes) > 0 {
		match := false
		for _, st := range f.ServiceTypes {
			if st.String() == info.ServiceType.String() {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}

	if len(f.Protocols) > 0 {
		match := false
		for _, p := range f.Protocols {
			if p == info.ProtocolType {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}

	if f.NameContains != "" && !strings.Contains(info.Name, f.NameContains) {
		return false
	}

	if f.MaxAge > 0 && time.Since(info.DiscoveredAt) > f.MaxAge {
		return false
	}

	return true
}

// DiscoveryFilter is the façade-level post-filter applied to a merged
// discovery result set (spec.md §4.5). It is a predicate over a single
// ServiceInfo, independent of registry locality bookkeeping.
type DiscoveryFilter func(ServiceInfo) bool
