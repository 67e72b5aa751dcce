// ABOUTME: SSDP discovery of MediaRenderer devices on the local network
// ABOUTME: Multicast M-SEARCH prober, response parsing, async description fetch
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	multicastAddress = "239.255.255.250:1900"

	// maxDescriptionSize caps description document reads.
	maxDescriptionSize = 256 * 1024
)

// Device is a registered renderer. Records are immutable once registered.
type Device struct {
	ID                  string
	FriendlyName        string
	Manufacturer        string
	ModelName           string
	Location            string
	AVTransportURL      string
	RenderingControlURL string
}

// Config holds prober settings; zero fields take defaults.
type Config struct {
	// SearchTarget is the ST header value probed for.
	SearchTarget string
	// ProbeInterval is the re-probe period.
	ProbeInterval time.Duration
	// InitialProbeDelay is the wait before the first probe, giving the
	// receive loop time to settle before answers arrive.
	InitialProbeDelay time.Duration
	// FetchTimeout bounds description document fetches.
	FetchTimeout time.Duration
	// OnDeviceAdded fires once per newly registered device.
	OnDeviceAdded func(Device)
}

// Manager runs discovery: one receive loop, one probe timer, and async
// description fetches feeding a single registry.
type Manager struct {
	config Config
	httpc  *http.Client

	mu      sync.Mutex
	conn    *net.UDPConn
	ctx     context.Context
	cancel  context.CancelFunc
	devices map[string]Device
	pending map[string]bool
	started bool

	wg sync.WaitGroup
}

// New creates a manager. Start must be called before devices appear.
func New(config Config) *Manager {
	if config.SearchTarget == "" {
		config.SearchTarget = "urn:schemas-upnp-org:device:MediaRenderer:1"
	}
	if config.ProbeInterval <= 0 {
		config.ProbeInterval = 30 * time.Second
	}
	if config.InitialProbeDelay <= 0 {
		config.InitialProbeDelay = 500 * time.Millisecond
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 5 * time.Second
	}
	return &Manager{
		config:  config,
		httpc:   &http.Client{Timeout: config.FetchTimeout},
		devices: make(map[string]Device),
		pending: make(map[string]bool),
	}
}

// Start joins the multicast group and begins probing. Idempotent.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}

	group, err := net.ResolveUDPAddr("udp4", multicastAddress)
	if err != nil {
		return fmt.Errorf("resolve discovery group: %w", err)
	}
	conn, err := net.ListenMulticastUDP("udp4", nil, group)
	if err != nil {
		return fmt.Errorf("join discovery group: %w", err)
	}

	m.conn = conn
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.started = true

	m.wg.Add(2)
	go m.receiveLoop()
	go m.probeLoop(group)

	log.Printf("discovery: probing for %s", m.config.SearchTarget)
	return nil
}

// Stop closes the socket, waits out the loops, and clears the registry.
// Idempotent.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	m.cancel()
	m.conn.Close()
	m.mu.Unlock()

	m.wg.Wait()

	m.mu.Lock()
	m.devices = make(map[string]Device)
	m.pending = make(map[string]bool)
	m.mu.Unlock()
	log.Printf("discovery: stopped")
}

// Devices returns a registry snapshot sorted by friendly name.
func (m *Manager) Devices() []Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FriendlyName < out[j].FriendlyName })
	return out
}

// receiveLoop reads datagrams until the socket closes.
func (m *Manager) receiveLoop() {
	defer m.wg.Done()

	buf := make([]byte, 2048)
	for {
		n, _, err := m.conn.ReadFromUDP(buf)
		if err != nil {
			if m.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("discovery: receive: %v", err)
			continue
		}
		m.handleDatagram(string(buf[:n]))
	}
}

// probeLoop sends the initial delayed probe, then re-probes on a fixed
// period so renderers that come online later still appear.
func (m *Manager) probeLoop(group *net.UDPAddr) {
	defer m.wg.Done()

	initial := time.NewTimer(m.config.InitialProbeDelay)
	defer initial.Stop()
	select {
	case <-m.ctx.Done():
		return
	case <-initial.C:
	}
	m.sendProbe(group)

	ticker := time.NewTicker(m.config.ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.sendProbe(group)
		}
	}
}

// sendProbe multicasts one M-SEARCH request. Send failures are non-fatal;
// the next tick retries.
func (m *Manager) sendProbe(group *net.UDPAddr) {
	request := "M-SEARCH * HTTP/1.1\r\n" +
		"HOST: " + multicastAddress + "\r\n" +
		"MAN: \"ssdp:discover\"\r\n" +
		"MX: 3\r\n" +
		"ST: " + m.config.SearchTarget + "\r\n" +
		"\r\n"
	if _, err := m.conn.WriteToUDP([]byte(request), group); err != nil {
		log.Printf("discovery: probe: %v", err)
	}
}

// handleDatagram parses one inbound message. NOTIFY announcements are
// ignored; only search responses with st, location, and usn register.
func (m *Manager) handleDatagram(msg string) {
	if strings.HasPrefix(msg, "NOTIFY") {
		return
	}
	headers, ok := parseSearchResponse(msg)
	if !ok {
		return
	}
	st, location, usn := headers["st"], headers["location"], headers["usn"]
	if st == "" || location == "" || usn == "" {
		return
	}

	id := deviceID(usn, location)

	m.mu.Lock()
	if _, known := m.devices[id]; known || m.pending[id] {
		m.mu.Unlock()
		return
	}
	m.pending[id] = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.fetchDescription(id, location)
}

// parseSearchResponse splits an HTTP/1.1 200 datagram into lowercase header
// name to value. ok is false for anything that is not a 200 response.
func parseSearchResponse(msg string) (map[string]string, bool) {
	lines := strings.Split(msg, "\r\n")
	if len(lines) == 0 || !strings.HasPrefix(lines[0], "HTTP/1.1 200") {
		return nil, false
	}
	headers := make(map[string]string)
	for _, line := range lines[1:] {
		idx := strings.Index(line, ":")
		if idx <= 0 {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(line[:idx]))
		headers[name] = strings.TrimSpace(line[idx+1:])
	}
	return headers, true
}

// deviceID reduces a USN to a stable identifier: strip the uuid: prefix and
// cut at the :: separator. A USN that yields nothing falls back to a
// location-derived UUID so the id stays stable across re-probes.
func deviceID(usn, location string) string {
	id := strings.TrimPrefix(strings.TrimSpace(usn), "uuid:")
	if idx := strings.Index(id, "::"); idx >= 0 {
		id = id[:idx]
	}
	if id == "" {
		return uuid.NewSHA1(uuid.NameSpaceURL, []byte(location)).String()
	}
	return id
}

// fetchDescription downloads and parses a candidate's description document,
// registering the device when it exposes a transport control endpoint.
func (m *Manager) fetchDescription(id, location string) {
	defer m.wg.Done()

	dev, err := m.fetch(id, location)

	m.mu.Lock()
	delete(m.pending, id)
	if err != nil || m.ctx.Err() != nil {
		m.mu.Unlock()
		if err != nil {
			log.Printf("discovery: %s: %v", location, err)
		}
		return
	}
	if dev.AVTransportURL == "" {
		m.mu.Unlock()
		log.Printf("discovery: %s has no transport control service, skipping", dev.FriendlyName)
		return
	}
	if _, known := m.devices[id]; known {
		m.mu.Unlock()
		return
	}
	m.devices[id] = dev
	callback := m.config.OnDeviceAdded
	m.mu.Unlock()

	log.Printf("discovery: registered %q (%s, %s)", dev.FriendlyName, dev.ModelName, dev.ID)
	if callback != nil {
		callback(dev)
	}
}

func (m *Manager) fetch(id, location string) (Device, error) {
	resp, err := m.httpc.Get(location)
	if err != nil {
		return Device{}, fmt.Errorf("fetch description: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Device{}, fmt.Errorf("fetch description: %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDescriptionSize))
	if err != nil {
		return Device{}, fmt.Errorf("read description: %w", err)
	}
	return parseDescription(data, location, id)
}
