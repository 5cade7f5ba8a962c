package discovery

import "testing"

func TestNewParsesDNSSDTriple(t *testing.T) {
	st, err := New("_http._tcp")
	if err != nil {
		t.Fatalf("New(_http._tcp): %v", err)
	}
	if st.IsURN() {
		t.Fatal("DNS-SD triple should not report IsURN()")
	}
	if st.Instance() != "_http" || st.Protocol() != "_tcp" {
		t.Fatalf("Instance/Protocol = %q/%q, want _http/_tcp", st.Instance(), st.Protocol())
	}
	if got, want := st.String(), "_http._tcp"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
	if got, want := st.WireString(), "_http._tcp.local."; got != want {
		t.Fatalf("WireString() = %q, want %q", got, want)
	}
}

func TestNewParsesURN(t *testing.T) {
	raw := "urn:schemas-upnp-org:service:ContentDirectory:1"
	st, err := New(raw)
	if err != nil {
		t.Fatalf("New(%q): %v", raw, err)
	}
	if !st.IsURN() {
		t.Fatal("urn: service type should report IsURN()")
	}
	if got := st.String(); got != raw {
		t.Fatalf("String() = %q, want %q", got, raw)
	}
	if got := st.WireString(); got != raw {
		t.Fatalf("WireString() = %q, want %q (URNs have no mDNS wire form)", got, raw)
	}
}

func TestNewRejectsEmptyString(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("New(\"\") should fail")
	}
}

func TestNewRejectsStringWithNoDotAndNoURNPrefix(t *testing.T) {
	if _, err := New("http"); err == nil {
		t.Fatal(`New("http") should fail: no "." label and no urn: prefix`)
	}
}

func TestNewRejectsSecondLabelNotStartingWithUnderscore(t *testing.T) {
	if _, err := New("_http.tcp"); err == nil {
		t.Fatal(`New("_http.tcp") should fail: second label "tcp" does not start with "_"`)
	}
}

// TestNewRoundTripsThroughString checks spec's round-trip property: for
// every ServiceType parsed from a valid input, re-parsing String() yields
// a structurally equal value.
func TestNewRoundTripsThroughString(t *testing.T) {
	inputs := []string{
		"_http._tcp",
		"_http._tcp.local",
		"_ipp._udp",
		"urn:schemas-upnp-org:service:ContentDirectory:1",
		"urn:schemas-upnp-org:device:MediaServer:1",
	}

	for _, in := range inputs {
		first, err := New(in)
		if err != nil {
			t.Fatalf("New(%q): %v", in, err)
		}

		second, err := New(first.String())
		if err != nil {
			t.Fatalf("New(%q) [round trip of %q]: %v", first.String(), in, err)
		}

		if first != second {
			t.Fatalf("round trip not idempotent for %q: first=%+v second=%+v", in, first, second)
		}
		if first.String() != second.String() {
			t.Fatalf("String() not stable across round trip for %q: %q != %q", in, first.String(), second.String())
		}
	}
}

func TestParseTXTLowercasesKeysAndHandlesBareKeys(t *testing.T) {
	attrs := ParseTXT([]string{"Path=/api", "Secure", "Port=8080"})

	if got, want := attrs["path"], "/api"; got != want {
		t.Fatalf("attrs[path] = %q, want %q", got, want)
	}
	if got, ok := attrs["secure"]; !ok || got != "" {
		t.Fatalf("attrs[secure] = (%q, %v), want (\"\", true) for a bare key", got, ok)
	}
	if got, want := attrs["port"], "8080"; got != want {
		t.Fatalf("attrs[port] = %q, want %q", got, want)
	}
}

func TestAttributesToTXTRoundTripsThroughParseTXT(t *testing.T) {
	original := map[string]string{"path": "/api", "version": "1"}

	pairs := AttributesToTXT(original)
	parsed := ParseTXT(pairs)

	if len(parsed) != len(original) {
		t.Fatalf("round trip changed attribute count: %d != %d", len(parsed), len(original))
	}
	for k, v := range original {
		if parsed[k] != v {
			t.Fatalf("round trip attrs[%q] = %q, want %q", k, parsed[k], v)
		}
	}
}

func TestServiceInfoKeyIsCompositeOfNameTypeAndPort(t *testing.T) {
	st, err := New("_http._tcp")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	info := &ServiceInfo{Name: "printer", ServiceType: st, Port: 631}

	if got, want := info.Key(), "printer:_http._tcp:631"; got != want {
		t.Fatalf("Key() = %q, want %q", got, want)
	}
}
