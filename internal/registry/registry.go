// Package registry provides the in-memory Service Registry: a single
// process-wide mapping from composite key to service entry, shared by every
// protocol engine and the façade. Local (registered) entries never expire;
// discovered entries are TTL-indexed and lazily elided from queries.
package registry

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/skylineproto/discover/pkg/discovery"
)

// ServiceEntry wraps a ServiceInfo with registry bookkeeping.
type ServiceEntry struct {
	Info      discovery.ServiceInfo
	Timestamp time.Time
	IsLocal   bool
	TTL       time.Duration // zero means no TTL (always the case for local entries)
	Protocol  discovery.ProtocolType
}

// IsExpired reports whether this entry's TTL has elapsed. Local entries are
// never expired.
func (e ServiceEntry) IsExpired() bool {
	if e.IsLocal || e.TTL <= 0 {
		return false
	}
	return time.Since(e.Timestamp) > e.TTL
}

// Stats summarizes the registry's current contents.
type Stats struct {
	Total      int
	Local      int
	Discovered int
	Expired    int
	ByProtocol map[discovery.ProtocolType]int
}

// Registry is a reader/writer-exclusion-protected store of ServiceEntry
// values keyed by discovery.ServiceInfo.Key(). Read operations take a
// shared lock; insert/remove take an exclusive lock. No lock is ever held
// across network I/O.
type Registry struct {
	mu          sync.RWMutex
	entries     map[string]*ServiceEntry
	maxServices int
	defaultTTL  time.Duration
	logger      zerolog.Logger
}

// Config configures a Registry.
type Config struct {
	MaxServices int
	DefaultTTL  time.Duration
	Logger      zerolog.Logger
}

// New creates an empty Registry.
func New(cfg Config) *Registry {
	if cfg.MaxServices <= 0 {
		cfg.MaxServices = 1000
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = discovery.DefaultTTL
	}
	return &Registry{
		entries:     make(map[string]*ServiceEntry),
		maxServices: cfg.MaxServices,
		defaultTTL:  cfg.DefaultTTL,
		logger:      cfg.Logger.With().Str("component", "registry").Logger(),
	}
}

// RegisterLocal inserts or replaces a local (non-expiring) entry.
func (r *Registry) RegisterLocal(info discovery.ServiceInfo, protocol discovery.ProtocolType) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[info.Key()] = &ServiceEntry{
		Info:      info,
		Timestamp: time.Now(),
		IsLocal:   true,
		Protocol:  protocol,
	}

	r.logger.Info().Str("name", info.Name).Str("key", info.Key()).Msg("registered local service")
}

// UnregisterLocal removes the entry under key. It returns ServiceNotFound
// if no such entry exists.
func (r *Registry) UnregisterLocal(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[key]; !ok {
		return discovery.NewError(discovery.ServiceNotFound, key, nil)
	}
	delete(r.entries, key)
	r.logger.Info().Str("key", key).Msg("unregistered local service")
	return nil
}

// AddDiscovered inserts a discovered entry with the given TTL (or the
// registry default if ttl is zero). If the registry is at capacity, it
// evicts the oldest expired entry to make room; if none is expired, it
// fails with a Configuration error.
func (r *Registry) AddDiscovered(info discovery.ServiceInfo, protocol discovery.ProtocolType, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := info.Key()
	if _, exists := r.entries[key]; !exists && len(r.entries) >= r.maxServices {
		if !r.evictOldestExpiredLocked() {
			return discovery.NewError(discovery.Configuration, "registry is at capacity and has no expired entry to evict", nil)
		}
	}

	r.entries[key] = &ServiceEntry{
		Info:      info,
		Timestamp: time.Now(),
		IsLocal:   false,
		TTL:       ttl,
		Protocol:  protocol,
	}
	return nil
}

// evictOldestExpiredLocked removes the oldest expired, non-local entry.
// Caller must hold the write lock.
func (r *Registry) evictOldestExpiredLocked() bool {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range r.entries {
		if !entry.IsExpired() {
			continue
		}
		if oldestKey == "" || entry.Timestamp.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.Timestamp
		}
	}

	if oldestKey == "" {
		return false
	}
	delete(r.entries, oldestKey)
	return true
}

// Find applies filter to every entry, excluding any entry that is expired
// at evaluation time.
func (r *Registry) Find(filter discovery.ServiceFilter) []discovery.ServiceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]discovery.ServiceInfo, 0, len(r.entries))
	for _, entry := range r.entries {
		if entry.IsExpired() {
			continue
		}
		if filter.Matches(entry.Info, entry.IsLocal) {
			out = append(out, entry.Info)
		}
	}
	return out
}

// GetLocalServices returns every registered (local) service, expired or
// not (local entries never expire).
func (r *Registry) GetLocalServices() []discovery.ServiceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]discovery.ServiceInfo, 0, len(r.entries))
	for _, entry := range r.entries {
		if entry.IsLocal {
			out = append(out, entry.Info)
		}
	}
	return out
}

// Stats summarizes the registry's contents.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{ByProtocol: make(map[discovery.ProtocolType]int)}
	for _, entry := range r.entries {
		s.Total++
		s.ByProtocol[entry.Protocol]++
		if entry.IsLocal {
			s.Local++
		} else {
			s.Discovered++
		}
		if entry.IsExpired() {
			s.Expired++
		}
	}
	return s
}

// CleanupExpired removes every expired entry (never local ones) and
// returns the count removed.
func (r *Registry) CleanupExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, entry := range r.entries {
		if entry.IsExpired() {
			delete(r.entries, key)
			removed++
		}
	}
	return removed
}
