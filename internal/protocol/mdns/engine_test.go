package mdns

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/skylineproto/discover/pkg/discovery"
)

func mustInfo(t *testing.T, name string, port int) discovery.ServiceInfo {
	t.Helper()
	st, err := discovery.New("_test._tcp")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	info, err := discovery.NewServiceInfo(name, st, net.ParseIP("127.0.0.1"), port)
	if err != nil {
		t.Fatalf("NewServiceInfo: %v", err)
	}
	info.ProtocolType = discovery.Mdns
	return *info
}

func TestEngineProtocolLifecycle(t *testing.T) {
	e := New(nil, zerolog.Nop())
	if e.ProtocolType() != discovery.Mdns {
		t.Fatalf("ProtocolType() = %v, want Mdns", e.ProtocolType())
	}
	if !e.IsAvailable() {
		t.Fatal("IsAvailable() should always be true for the mdns engine")
	}
}

func TestEngineServiceVerification(t *testing.T) {
	e := New(nil, zerolog.Nop())
	svc := mustInfo(t, "test-verify-service", 8081)

	ok, err := e.Verify(context.Background(), svc)
	if err != nil || ok {
		t.Fatalf("Verify before register = (%v, %v), want (false, nil)", ok, err)
	}

	if err := e.Register(context.Background(), svc); err != nil {
		t.Skipf("mdns responder unavailable in this environment: %v", err)
	}

	ok, err = e.Verify(context.Background(), svc)
	if err != nil || !ok {
		t.Fatalf("Verify after register = (%v, %v), want (true, nil)", ok, err)
	}

	if err := e.Unregister(context.Background(), svc); err != nil {
		t.Fatalf("Unregister: %v", err)
	}

	ok, err = e.Verify(context.Background(), svc)
	if err != nil || ok {
		t.Fatalf("Verify after unregister = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestEngineInvalidServiceRejected(t *testing.T) {
	_, err := discovery.NewServiceInfo("", discovery.ServiceType{}, net.ParseIP("127.0.0.1"), 0)
	if err == nil {
		t.Fatal("expected an error constructing a ServiceInfo with empty name and invalid port")
	}
}

func TestEngineDiscoverTimeoutOnNonexistentService(t *testing.T) {
	e := New(nil, zerolog.Nop())
	st, err := discovery.New("_nonexistent._tcp")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	results, err := e.Discover(context.Background(), []discovery.ServiceType{st}, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("Discover() on nonexistent service = %d results, want 0", len(results))
	}
}

func TestEngineMultipleServiceRegistration(t *testing.T) {
	e := New(nil, zerolog.Nop())

	var services []discovery.ServiceInfo
	for i := 1; i <= 3; i++ {
		services = append(services, mustInfo(t, "test-service", 8080+i))
	}

	registered := 0
	for _, svc := range services {
		if err := e.Register(context.Background(), svc); err != nil {
			t.Skipf("mdns responder unavailable in this environment: %v", err)
		}
		registered++
	}

	for _, svc := range services {
		ok, err := e.Verify(context.Background(), svc)
		if err != nil || !ok {
			t.Fatalf("Verify(%s) = (%v, %v), want (true, nil)", svc.Name, ok, err)
		}
	}

	for _, svc := range services {
		if err := e.Unregister(context.Background(), svc); err != nil {
			t.Fatalf("Unregister(%s): %v", svc.Name, err)
		}
	}

	if registered != len(services) {
		t.Fatalf("registered %d of %d services", registered, len(services))
	}
}

func TestFullServiceNameFormat(t *testing.T) {
	svc := mustInfo(t, "myinstance", 1234)
	got := fullServiceName(svc)
	want := "myinstance._test._tcp.local."
	if got != want {
		t.Fatalf("fullServiceName() = %q, want %q", got, want)
	}
}
