// Package ssdp implements the UPnP Simple Service Discovery Protocol:
// M-SEARCH/NOTIFY over HTTPU on UDP multicast 239.255.255.250:1900.
package ssdp

import (
	"bufio"
	"strings"
)

const (
	// MulticastAddr is the SSDP multicast group and port (IPv4 only; an
	// IPv6 peer is out of scope for this engine).
	MulticastAddr = "239.255.255.250:1900"
	multicastIP   = "239.255.255.250"
	multicastPort = 1900
)

// MessageKind tags which of the three SSDP wire shapes a Message is.
type MessageKind int

const (
	KindSearch MessageKind = iota
	KindResponse
	KindNotify
)

// Message is a tagged variant over the three SSDP message shapes. Fields
// irrelevant to a given Kind are left zero.
type Message struct {
	Kind    MessageKind
	Headers map[string]string // header name lowercased, value trimmed
}

// Header looks up a header case-insensitively.
func (m Message) Header(name string) string {
	return m.Headers[strings.ToLower(name)]
}

// ParseMessage parses a raw HTTPU datagram into a Message. It returns
// (Message{}, false) if the message cannot be parsed or a Message if
// parsing succeeds structurally — callers must still check for mandatory
// headers per message kind, since a missing mandatory header means
// "ignore this message", not a parse error.
func ParseMessage(data []byte) (Message, bool) {
	reader := bufio.NewReader(strings.NewReader(string(data)))

	startLine, err := reader.ReadString('\n')
	if err != nil && startLine == "" {
		return Message{}, false
	}
	startLine = strings.TrimRight(startLine, "\r\n")

	var kind MessageKind
	switch {
	case strings.HasPrefix(startLine, "M-SEARCH"):
		kind = KindSearch
	case strings.HasPrefix(startLine, "HTTP/1.1 200"):
		kind = KindResponse
	case strings.HasPrefix(startLine, "NOTIFY"):
		kind = KindNotify
	default:
		return Message{}, false
	}

	headers := make(map[string]string)
	for {
		line, err := reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, value, found := strings.Cut(line, ":")
		if !found {
			if err != nil {
				break
			}
			continue
		}
		headers[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
		if err != nil {
			break
		}
	}

	return Message{Kind: kind, Headers: headers}, true
}

// HasMandatorySearchHeaders reports whether an M-SEARCH message carries
// HOST, MAN, MX and ST.
func (m Message) HasMandatorySearchHeaders() bool {
	return m.Header("HOST") != "" && m.Header("MAN") != "" && m.Header("MX") != "" && m.Header("ST") != ""
}

// HasMandatoryResponseHeaders reports whether a response message carries
// CACHE-CONTROL, LOCATION, ST and USN.
func (m Message) HasMandatoryResponseHeaders() bool {
	return m.Header("CACHE-CONTROL") != "" && m.Header("LOCATION") != "" && m.Header("ST") != "" && m.Header("USN") != ""
}

// HasMandatoryNotifyHeaders reports whether a NOTIFY message carries HOST,
// NT, NTS and LOCATION.
func (m Message) HasMandatoryNotifyHeaders() bool {
	return m.Header("HOST") != "" && m.Header("NT") != "" && m.Header("NTS") != "" && m.Header("LOCATION") != ""
}

// BuildSearchRequest renders an M-SEARCH request for the given search
// target and MX (seconds).
func BuildSearchRequest(st string, mx int) []byte {
	var b strings.Builder
	b.WriteString("M-SEARCH * HTTP/1.1\r\n")
	b.WriteString("HOST: " + MulticastAddr + "\r\n")
	b.WriteString("MAN: \"ssdp:discover\"\r\n")
	b.WriteString("MX: " + itoa(mx) + "\r\n")
	b.WriteString("ST: " + st + "\r\n")
	b.WriteString("\r\n")
	return []byte(b.String())
}

// BuildSearchResponse renders an M-SEARCH response for a matched service.
func BuildSearchResponse(maxAge int, location, st, usn, server string) []byte {
	var b strings.Builder
	b.WriteString("HTTP/1.1 200 OK\r\n")
	b.WriteString("CACHE-CONTROL: max-age=" + itoa(maxAge) + "\r\n")
	b.WriteString("LOCATION: " + location + "\r\n")
	b.WriteString("ST: " + st + "\r\n")
	b.WriteString("USN: " + usn + "\r\n")
	if server != "" {
		b.WriteString("SERVER: " + server + "\r\n")
	}
	b.WriteString("EXT:\r\n")
	b.WriteString("\r\n")
	return []byte(b.String())
}

// BuildNotify renders a NOTIFY message (alive or byebye).
func BuildNotify(nt, nts, location, usn string) []byte {
	var b strings.Builder
	b.WriteString("NOTIFY * HTTP/1.1\r\n")
	b.WriteString("HOST: " + MulticastAddr + "\r\n")
	b.WriteString("NT: " + nt + "\r\n")
	b.WriteString("NTS: " + nts + "\r\n")
	if location != "" {
		b.WriteString("LOCATION: " + location + "\r\n")
	}
	b.WriteString("USN: " + usn + "\r\n")
	b.WriteString("\r\n")
	return []byte(b.String())
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// MatchesSearchTarget implements spec.md §4.2's permissive search-target
// matching policy. "ssdp:all" and "upnp:rootdevice" match any service in
// this core (every advertised instance is treated as a root device).
// Otherwise a match is an exact string equality OR a substring containment
// of st within the service's type string.
//
// This loose substring behavior is preserved intentionally per spec.md §9's
// open question — it is unclear whether the source intended strict
// equality, but the permissive form is what the source implements.
func MatchesSearchTarget(st, serviceType string) bool {
	if st == "ssdp:all" || st == "upnp:rootdevice" {
		return true
	}
	if st == serviceType {
		return true
	}
	return strings.Contains(serviceType, st)
}
