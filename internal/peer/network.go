package peer

import (
	"net"
	"strings"
)

// cgnatBlock is 100.64.0.0/10. Cloudflare WARP, Tailscale and carrier grade
// NATs use it, and direct paths through them rarely work.
var cgnatBlock = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

var tunnelNames = []string{"tun", "tap", "wg", "ppp", "warp"}

// ShouldForceRelay checks if the system is likely behind a restrictive VPN or
// CGNAT, in which case TURN is the only path that works.
func ShouldForceRelay() bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			addrs = nil
		}
		if looksTunneled(iface.Name, addrs) {
			return true
		}
	}
	return false
}

func looksTunneled(name string, addrs []net.Addr) bool {
	name = strings.ToLower(name)
	for _, t := range tunnelNames {
		if strings.Contains(name, t) {
			return true
		}
	}

	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip != nil && cgnatBlock.Contains(ip) {
			return true
		}
	}
	return false
}
