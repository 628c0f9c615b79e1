package peer

import (
	"log/slog"
	"net"
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/warpcall/cli/internal/config"
)

// Factory builds a fresh peer connection for one link.
type Factory func() (*webrtc.PeerConnection, error)

// NewFactory returns a Factory using cfg's ICE servers. When TURN is
// configured and either ForceRelay is set or the host looks like it sits
// behind a VPN or CGNAT, only relay candidates are used.
func NewFactory(cfg *config.Config) Factory {
	iceServers := []webrtc.ICEServer{}
	if stun := cfg.GetSTUNServers(); stun != nil {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: stun})
	}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := webrtc.ICETransportPolicyAll
	if turnServers != nil && (cfg.ForceRelay || ShouldForceRelay()) {
		slog.Info("forcing TURN relay for media")
		policy = webrtc.ICETransportPolicyRelay
	}

	return func() (*webrtc.PeerConnection, error) {
		return webrtc.NewPeerConnection(webrtc.Configuration{
			ICEServers:         iceServers,
			ICETransportPolicy: policy,
		})
	}
}

// ShouldForceRelay checks if the system is likely behind a restrictive VPN or
// CGNAT, where direct paths usually fail.
func ShouldForceRelay() bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	var ifaces []netInterface
	for _, iface := range interfaces {
		// Ignore loopback and down interfaces
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		ni := netInterface{name: iface.Name}
		if addrs, err := iface.Addrs(); err == nil {
			for _, addr := range addrs {
				switch v := addr.(type) {
				case *net.IPNet:
					ni.ips = append(ni.ips, v.IP)
				case *net.IPAddr:
					ni.ips = append(ni.ips, v.IP)
				}
			}
		}
		ifaces = append(ifaces, ni)
	}
	return looksRelayed(ifaces)
}

type netInterface struct {
	name string
	ips  []net.IP
}

// Cloudflare WARP, Tailscale and carrier grade NAT live in 100.64.0.0/10.
var cgnatBlock = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

var tunnelNames = []string{"tun", "tap", "wg", "ppp", "warp"}

func looksRelayed(ifaces []netInterface) bool {
	for _, iface := range ifaces {
		name := strings.ToLower(iface.name)
		for _, t := range tunnelNames {
			if strings.Contains(name, t) {
				return true
			}
		}
		for _, ip := range iface.ips {
			if cgnatBlock.Contains(ip) {
				return true
			}
		}
	}
	return false
}
