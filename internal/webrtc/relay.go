package webrtc

import (
	"net"
	"strings"
)

// CGNAT range (100.64.0.0/10), used by Tailscale, Cloudflare WARP and carrier
// NATs.
var cgnatBlock = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

var tunnelNameHints = []string{"tun", "tap", "wg", "ppp", "warp"}

// ShouldForceRelay reports whether this host looks like it sits behind a VPN
// or CGNAT, where direct candidates rarely connect and TURN is the only path.
func ShouldForceRelay() bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if looksLikeTunnel(iface.Name) {
			return true
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && cgnatBlock.Contains(ipnet.IP) {
				return true
			}
		}
	}
	return false
}

func looksLikeTunnel(name string) bool {
	name = strings.ToLower(name)
	for _, hint := range tunnelNameHints {
		if strings.Contains(name, hint) {
			return true
		}
	}
	return false
}
