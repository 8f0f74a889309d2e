package platform

import (
	"net"
)

// FallbackIPv4 is reported when no LAN address can be found.
const FallbackIPv4 = "127.0.0.1"

// LocalIPv4 returns the first non-loopback IPv4 address of an interface that
// is up, or 127.0.0.1.
func LocalIPv4() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return FallbackIPv4
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		if ip := firstIPv4(addrs); ip != "" {
			return ip
		}
	}
	return FallbackIPv4
}

// firstIPv4 picks the first non-loopback IPv4 address from addrs.
func firstIPv4(addrs []net.Addr) string {
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		default:
			continue
		}
		if ip.IsLoopback() {
			continue
		}
		if v4 := ip.To4(); v4 != nil {
			return v4.String()
		}
	}
	return ""
}
