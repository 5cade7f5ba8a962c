// Package protocol owns the Protocol Manager and the Engine capability set
// that each wire protocol (SSDP, mDNS) implements.
package protocol

import (
	"context"
	"time"

	"github.com/skylineproto/discover/pkg/discovery"
)

// Engine is the capability set every protocol implementation exposes. The
// manager dispatches to engines by ProtocolType lookup in a map; there is no
// class hierarchy, just this interface.
type Engine interface {
	ProtocolType() discovery.ProtocolType
	Discover(ctx context.Context, types []discovery.ServiceType, timeout time.Duration) ([]discovery.ServiceInfo, error)
	Register(ctx context.Context, info discovery.ServiceInfo) error
	Unregister(ctx context.Context, info discovery.ServiceInfo) error
	Verify(ctx context.Context, info discovery.ServiceInfo) (bool, error)
	IsAvailable() bool
}
