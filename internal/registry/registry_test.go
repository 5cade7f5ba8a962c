package registry

import (
	"net"
	"testing"
	"time"

	"github.com/skylineproto/discover/pkg/discovery"
)

func mustServiceInfo(t *testing.T, name string, port int) discovery.ServiceInfo {
	t.Helper()
	st, err := discovery.New("_test._tcp")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	info, err := discovery.NewServiceInfo(name, st, net.ParseIP("127.0.0.1"), port)
	if err != nil {
		t.Fatalf("NewServiceInfo: %v", err)
	}
	return *info
}

func TestRegisterLocalThenFind(t *testing.T) {
	r := New(Config{})
	info := mustServiceInfo(t, "svc1", 8080)
	r.RegisterLocal(info, discovery.Mdns)

	found := r.Find(discovery.ServiceFilter{})
	if len(found) != 1 || found[0].Name != "svc1" {
		t.Fatalf("Find() = %+v, want [svc1]", found)
	}

	locals := r.GetLocalServices()
	if len(locals) != 1 {
		t.Fatalf("GetLocalServices() returned %d, want 1", len(locals))
	}
}

func TestUnregisterLocalNotFound(t *testing.T) {
	r := New(Config{})
	if err := r.UnregisterLocal("missing"); err == nil {
		t.Fatal("expected ServiceNotFound error")
	} else if de, ok := discovery.AsError(err); !ok || de.Kind != discovery.ServiceNotFound {
		t.Fatalf("got %v, want ServiceNotFound", err)
	}
}

func TestTTLExpiry(t *testing.T) {
	r := New(Config{})
	info := mustServiceInfo(t, "svc2", 9090)

	if err := r.AddDiscovered(info, discovery.Mdns, 50*time.Millisecond); err != nil {
		t.Fatalf("AddDiscovered: %v", err)
	}

	found := r.Find(discovery.ServiceFilter{})
	if len(found) != 1 {
		t.Fatalf("immediately after add, Find() = %d entries, want 1", len(found))
	}

	time.Sleep(100 * time.Millisecond)

	found = r.Find(discovery.ServiceFilter{})
	if len(found) != 0 {
		t.Fatalf("after TTL, Find() = %d entries, want 0", len(found))
	}

	if n := r.CleanupExpired(); n != 1 {
		t.Fatalf("CleanupExpired() = %d, want 1", n)
	}
}

func TestCapacityEviction(t *testing.T) {
	r := New(Config{MaxServices: 2})

	a := mustServiceInfo(t, "a", 1)
	b := mustServiceInfo(t, "b", 2)
	c := mustServiceInfo(t, "c", 3)

	if err := r.AddDiscovered(a, discovery.Mdns, 10*time.Millisecond); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := r.AddDiscovered(b, discovery.Mdns, 10*time.Minute); err != nil {
		t.Fatalf("add b: %v", err)
	}

	// Registry is full but nothing is expired yet: insertion must fail.
	if err := r.AddDiscovered(c, discovery.Mdns, time.Minute); err == nil {
		t.Fatal("expected capacity error before any entry expires")
	}

	time.Sleep(20 * time.Millisecond)

	// a is now expired: insertion of c should evict it and succeed.
	if err := r.AddDiscovered(c, discovery.Mdns, time.Minute); err != nil {
		t.Fatalf("add c after expiry: %v", err)
	}

	stats := r.Stats()
	if stats.Total != 2 {
		t.Fatalf("Stats().Total = %d, want 2", stats.Total)
	}
}

func TestLocalEntriesNeverExpire(t *testing.T) {
	r := New(Config{})
	info := mustServiceInfo(t, "local1", 1234)
	r.RegisterLocal(info, discovery.Mdns)

	time.Sleep(10 * time.Millisecond)

	locals := r.GetLocalServices()
	if len(locals) != 1 {
		t.Fatalf("local entry disappeared: %+v", locals)
	}
	if n := r.CleanupExpired(); n != 0 {
		t.Fatalf("CleanupExpired() removed %d local entries, want 0", n)
	}
}

func TestFilterLocalVsDiscoveredMutualExclusion(t *testing.T) {
	r := New(Config{})
	r.RegisterLocal(mustServiceInfo(t, "l", 1), discovery.Mdns)
	if err := r.AddDiscovered(mustServiceInfo(t, "d", 2), discovery.Mdns, time.Minute); err != nil {
		t.Fatalf("AddDiscovered: %v", err)
	}

	both := r.Find(discovery.ServiceFilter{LocalOnly: true, DiscoveredOnly: true})
	if len(both) != 0 {
		t.Fatalf("LocalOnly+DiscoveredOnly should yield empty, got %+v", both)
	}

	localOnly := r.Find(discovery.ServiceFilter{LocalOnly: true})
	if len(localOnly) != 1 || localOnly[0].Name != "l" {
		t.Fatalf("LocalOnly = %+v, want [l]", localOnly)
	}
}
