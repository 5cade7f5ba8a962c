package discover

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/skylineproto/discover/pkg/discovery"
)

func mustFacadeInfo(t *testing.T, name string, protocol discovery.ProtocolType, port int) discovery.ServiceInfo {
	t.Helper()
	st, err := discovery.New("_test._tcp")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	info, err := discovery.NewServiceInfo(name, st, net.ParseIP("127.0.0.1"), port)
	if err != nil {
		t.Fatalf("NewServiceInfo: %v", err)
	}
	info.ProtocolType = protocol
	return *info
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := discovery.DefaultConfig()
	cfg.Timeout = 0
	if _, err := New(cfg, zerolog.Nop()); err == nil {
		t.Fatal("New() should reject an invalid config before touching any engine")
	}
}

func TestDiscoverServicesRejectsDisabledProtocol(t *testing.T) {
	cfg := discovery.DefaultConfig() // mDNS only
	d, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	upnp := discovery.Upnp
	_, err = d.DiscoverServices(context.Background(), &upnp)
	if err == nil {
		t.Fatal("expected a Protocol error discovering via a disabled protocol")
	}
	de, ok := discovery.AsError(err)
	if !ok || de.Kind != discovery.Protocol {
		t.Fatalf("got %v, want a Protocol-kind error", err)
	}
}

func TestRegisterServiceRejectsDisabledProtocol(t *testing.T) {
	cfg := discovery.DefaultConfig() // mDNS only
	d, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	svc := mustFacadeInfo(t, "upnp-only-service", discovery.Upnp, 8080)
	if err := d.RegisterService(context.Background(), svc); err == nil {
		t.Fatal("expected a Protocol error registering on a disabled protocol")
	}
}

func TestMultiEngineRegisterAndHealthCoverBothProtocols(t *testing.T) {
	cfg := discovery.DefaultConfig()
	cfg.EnabledProtocols = map[discovery.ProtocolType]bool{discovery.Mdns: true, discovery.Upnp: true}
	cfg.Timeout = 200 * time.Millisecond

	d, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	mdnsSvc := mustFacadeInfo(t, "mdns-fanout-service", discovery.Mdns, 8081)
	ssdpSvc := mustFacadeInfo(t, "ssdp-fanout-service", discovery.Upnp, 8082)

	if err := d.RegisterService(context.Background(), mdnsSvc); err != nil {
		t.Skipf("mdns engine unavailable in this environment: %v", err)
	}
	if err := d.RegisterService(context.Background(), ssdpSvc); err != nil {
		t.Fatalf("RegisterService(ssdp): %v", err)
	}

	registered := d.RegisteredServices()
	if len(registered) != 2 {
		t.Fatalf("RegisteredServices() = %d entries, want 2", len(registered))
	}

	health := d.Health()
	if _, ok := health[discovery.Mdns]; !ok {
		t.Fatal("Health() missing mdns entry")
	}
	if _, ok := health[discovery.Upnp]; !ok {
		t.Fatal("Health() missing upnp entry")
	}
}

func TestDiscoverServicesRejectsEmptyServiceTypes(t *testing.T) {
	cfg := discovery.DefaultConfig() // ServiceTypes left at its zero value (empty)
	d, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := d.DiscoverServices(context.Background(), nil); err == nil {
		t.Fatal("expected a Configuration error discovering with empty service_types")
	} else if de, ok := discovery.AsError(err); !ok || de.Kind != discovery.Configuration {
		t.Fatalf("got %v, want a Configuration-kind error", err)
	}

	mdns := discovery.Mdns
	if _, err := d.DiscoverServices(context.Background(), &mdns); err == nil {
		t.Fatal("expected a Configuration error discovering (with an explicit protocol) with empty service_types")
	} else if de, ok := discovery.AsError(err); !ok || de.Kind != discovery.Configuration {
		t.Fatalf("got %v, want a Configuration-kind error", err)
	}
}

func TestDiscoveredServicesStartsEmpty(t *testing.T) {
	cfg := discovery.DefaultConfig()
	d, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got := d.DiscoveredServices(); len(got) != 0 {
		t.Fatalf("DiscoveredServices() on a fresh facade = %d entries, want 0", len(got))
	}
}
