// ABOUTME: mDNS advertisement of the bridge's HTTP surface
// ABOUTME: Lets observer UIs on the LAN find /status and /events
package announce

import (
	"fmt"
	"log"
	"net"
	"os"

	"github.com/hashicorp/mdns"

	"github.com/harperreed/castbridge/internal/version"
)

const serviceType = "_castbridge._tcp"

// Announcer holds the running mDNS responder.
type Announcer struct {
	server *mdns.Server
}

// Start advertises the bridge under instance (hostname when empty) with the
// media server's port. The TXT record carries the product version.
func Start(instance string, port int) (*Announcer, error) {
	if instance == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			instance = "castbridge"
		} else {
			instance = host
		}
	}

	ips, err := localIPs()
	if err != nil {
		return nil, fmt.Errorf("list local addresses: %w", err)
	}

	txt := []string{
		"version=" + version.Version,
		"product=" + version.Product,
	}
	service, err := mdns.NewMDNSService(instance, serviceType, "", "", port, ips, txt)
	if err != nil {
		return nil, fmt.Errorf("build mdns service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("start mdns responder: %w", err)
	}

	log.Printf("announce: advertising %s %s on port %d", instance, serviceType, port)
	return &Announcer{server: server}, nil
}

// Stop shuts the responder down. Safe on a nil Announcer so callers can
// defer it unconditionally.
func (a *Announcer) Stop() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
	log.Printf("announce: stopped")
}

func localIPs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP)
			}
		}
	}
	return ips, nil
}
