package ssdp

import "testing"

func TestParseMessageSearch(t *testing.T) {
	raw := "M-SEARCH * HTTP/1.1\r\n" +
		"HOST: 239.255.255.250:1900\r\n" +
		"MAN: \"ssdp:discover\"\r\n" +
		"MX: 3\r\n" +
		"ST: ssdp:all\r\n" +
		"\r\n"

	msg, ok := ParseMessage([]byte(raw))
	if !ok {
		t.Fatal("ParseMessage() failed to parse a valid M-SEARCH")
	}
	if msg.Kind != KindSearch {
		t.Fatalf("Kind = %v, want KindSearch", msg.Kind)
	}
	if !msg.HasMandatorySearchHeaders() {
		t.Fatal("HasMandatorySearchHeaders() = false, want true")
	}
	if msg.Header("st") != "ssdp:all" {
		t.Fatalf("ST = %q, want ssdp:all", msg.Header("st"))
	}
	// Header lookup is case-insensitive on the name.
	if msg.Header("St") != "ssdp:all" {
		t.Fatal("header lookup should be case-insensitive")
	}
}

func TestParseMessageMissingMandatoryHeaderIsNotAnError(t *testing.T) {
	raw := "M-SEARCH * HTTP/1.1\r\n" +
		"HOST: 239.255.255.250:1900\r\n" +
		"\r\n"

	msg, ok := ParseMessage([]byte(raw))
	if !ok {
		t.Fatal("structurally valid M-SEARCH should still parse")
	}
	if msg.HasMandatorySearchHeaders() {
		t.Fatal("message missing MAN/MX/ST should not report mandatory headers present")
	}
}

func TestParseMessageGarbageIsUnparseable(t *testing.T) {
	if _, ok := ParseMessage([]byte("not an httpu message at all")); ok {
		t.Fatal("garbage datagram should fail to parse")
	}
}

func TestParseMessageResponse(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n" +
		"CACHE-CONTROL: max-age=1800\r\n" +
		"LOCATION: http://127.0.0.1:8080/\r\n" +
		"ST: urn:test-service-type\r\n" +
		"USN: uuid:abc-123::urn:test-service-type\r\n" +
		"\r\n"

	msg, ok := ParseMessage([]byte(raw))
	if !ok || msg.Kind != KindResponse {
		t.Fatalf("expected a parsed response, got %+v ok=%v", msg, ok)
	}
	if !msg.HasMandatoryResponseHeaders() {
		t.Fatal("response should carry all mandatory headers")
	}
	if msg.Header("LOCATION") != "http://127.0.0.1:8080/" {
		t.Fatalf("LOCATION = %q", msg.Header("LOCATION"))
	}
}

func TestMatchesSearchTarget(t *testing.T) {
	cases := []struct {
		st, serviceType string
		want            bool
	}{
		{"ssdp:all", "urn:anything", true},
		{"upnp:rootdevice", "urn:anything", true},
		{"urn:test-service-type", "urn:test-service-type", true},
		{"test-service", "urn:test-service-type", true}, // permissive substring match
		{"urn:other", "urn:test-service-type", false},
	}
	for _, c := range cases {
		if got := MatchesSearchTarget(c.st, c.serviceType); got != c.want {
			t.Errorf("MatchesSearchTarget(%q, %q) = %v, want %v", c.st, c.serviceType, got, c.want)
		}
	}
}

func TestBuildSearchRequestRoundTrip(t *testing.T) {
	raw := BuildSearchRequest("ssdp:all", 3)
	msg, ok := ParseMessage(raw)
	if !ok || msg.Kind != KindSearch || !msg.HasMandatorySearchHeaders() {
		t.Fatalf("built M-SEARCH did not round-trip: %+v ok=%v", msg, ok)
	}
}
