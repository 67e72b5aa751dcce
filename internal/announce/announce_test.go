// ABOUTME: Tests for mDNS advertisement helpers
// ABOUTME: Keeps to address walking; no responder is started
package announce

import "testing"

func TestLocalIPs(t *testing.T) {
	ips, err := localIPs()
	if err != nil {
		t.Fatalf("localIPs: %v", err)
	}
	for _, ip := range ips {
		if ip.To4() == nil {
			t.Errorf("non-IPv4 address %s in advertisement set", ip)
		}
		if ip.IsLoopback() {
			t.Errorf("loopback address %s in advertisement set", ip)
		}
	}
}

func TestStopOnNilAnnouncer(t *testing.T) {
	var a *Announcer
	a.Stop()
	(&Announcer{}).Stop()
}
