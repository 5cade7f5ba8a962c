// Package netutil provides network interface detection, used by the mDNS
// engine to pick advertise addresses when a service has none and by the
// discoveryctl interfaces command.
package netutil

import (
	"fmt"
	"net"
	"strings"
)

// Interface describes one local network interface relevant to service
// discovery.
type Interface struct {
	Name         string
	HardwareAddr string
	IPs          []string
	IsUp         bool
	IsLoopback   bool
	IsWireless   bool
	Type         string // "wifi", "ethernet", "loopback", "virtual", "unknown"
}

// ListInterfaces returns all local network interfaces with details.
func ListInterfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("listing interfaces: %w", err)
	}

	var result []Interface
	for _, iface := range ifaces {
		intf := Interface{
			Name:         iface.Name,
			HardwareAddr: iface.HardwareAddr.String(),
			IsUp:         iface.Flags&net.FlagUp != 0,
			IsLoopback:   iface.Flags&net.FlagLoopback != 0,
			IsWireless:   isWirelessInterface(iface.Name),
			Type:         classifyInterface(iface),
		}

		addrs, err := iface.Addrs()
		if err == nil {
			for _, addr := range addrs {
				var ip net.IP
				switch v := addr.(type) {
				case *net.IPNet:
					ip = v.IP
				case *net.IPAddr:
					ip = v.IP
				}
				if ip != nil && ip.To4() != nil && !ip.IsLoopback() {
					intf.IPs = append(intf.IPs, ip.String())
				}
			}
		}

		result = append(result, intf)
	}

	return result, nil
}

// ListUsableInterfaces returns interfaces suitable for discovery: up,
// non-loopback, non-virtual, with at least one IPv4 address.
func ListUsableInterfaces() ([]Interface, error) {
	all, err := ListInterfaces()
	if err != nil {
		return nil, err
	}

	var usable []Interface
	for _, iface := range all {
		if iface.IsLoopback || !iface.IsUp || len(iface.IPs) == 0 || iface.Type == "virtual" {
			continue
		}
		usable = append(usable, iface)
	}

	return usable, nil
}

// LocalIPv4s returns the IPv4 addresses of every usable interface, the set
// the mDNS engine advertises a service on when the service has no address.
func LocalIPv4s() ([]net.IP, error) {
	usable, err := ListUsableInterfaces()
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, iface := range usable {
		for _, s := range iface.IPs {
			if ip := net.ParseIP(s); ip != nil {
				ips = append(ips, ip)
			}
		}
	}
	return ips, nil
}

// PrimaryInterface returns the best interface to bind to: WiFi is preferred
// over ethernet, loopback and virtual interfaces are always skipped.
func PrimaryInterface() (*Interface, error) {
	usable, err := ListUsableInterfaces()
	if err != nil {
		return nil, err
	}
	if len(usable) == 0 {
		return nil, fmt.Errorf("no usable network interfaces found")
	}

	for _, iface := range usable {
		if iface.IsWireless || iface.Type == "wifi" {
			return &iface, nil
		}
	}
	return &usable[0], nil
}

func isWirelessInterface(name string) bool {
	name = strings.ToLower(name)
	prefixes := []string{"wlan", "wlp", "wifi", "ath", "wl", "en0", "en1"}
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func classifyInterface(iface net.Interface) string {
	name := strings.ToLower(iface.Name)

	if iface.Flags&net.FlagLoopback != 0 {
		return "loopback"
	}

	virtualPrefixes := []string{
		"docker", "br-", "veth", "virbr", "vbox", "vmnet",
		"tun", "tap", "lxc", "lxd", "cni", "flannel", "calico",
	}
	for _, p := range virtualPrefixes {
		if strings.HasPrefix(name, p) {
			return "virtual"
		}
	}

	if isWirelessInterface(name) {
		return "wifi"
	}

	ethernetPrefixes := []string{"eth", "enp", "eno", "ens", "em"}
	for _, p := range ethernetPrefixes {
		if strings.HasPrefix(name, p) {
			return "ethernet"
		}
	}

	return "unknown"
}
