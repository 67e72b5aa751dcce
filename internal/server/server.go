// ABOUTME: Local media HTTP server: shared file serving with byte ranges
// ABOUTME: Also exposes the observer surface (/health, /status, /events)
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harperreed/castbridge/internal/protocol"
)

// Config holds server configuration.
type Config struct {
	// Port is the TCP listen port; 0 picks an ephemeral port.
	Port int

	// PrimaryInterface, when set, is preferred when choosing the address
	// baked into share URLs.
	PrimaryInterface string

	// StateFunc supplies the snapshot served at /status. May be nil.
	StateFunc func() protocol.StateSnapshot
}

// Server shares local files over HTTP for network renderers and feeds the
// observer surface. Start and Stop are idempotent; Stop clears all shares.
type Server struct {
	config   Config
	upgrader websocket.Upgrader

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	shares     map[int]string
	nextID     int
	started    bool

	clientsMu sync.Mutex
	clients   map[*feedClient]bool

	wg sync.WaitGroup
}

// feedClient is one /events subscriber.
type feedClient struct {
	conn *websocket.Conn
	send chan protocol.Event
}

// New creates a stopped server.
func New(config Config) *Server {
	return &Server{
		config: config,
		upgrader: websocket.Upgrader{
			// Observers on the local network only; no origin policy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		shares:  make(map[int]string),
		nextID:  1,
		clients: make(map[*feedClient]bool),
	}
}

// Start binds the listener and begins serving. Idempotent.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/media/", s.handleMedia)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/events", s.handleEvents)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("media server listen: %w", err)
	}
	s.listener = listener
	s.httpServer = &http.Server{Handler: mux}
	s.started = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("media server: %v", err)
		}
	}()

	log.Printf("media server listening on %s", listener.Addr())
	return nil
}

// Stop shuts the server down and clears every share. Idempotent.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	srv := s.httpServer
	s.mu.Unlock()

	s.closeClients()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("media server shutdown: %v", err)
	}
	s.wg.Wait()

	s.mu.Lock()
	s.shares = make(map[int]string)
	s.mu.Unlock()
	log.Printf("media server stopped")
}

// Port reports the bound listen port.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.portLocked()
}

func (s *Server) portLocked() int {
	if s.listener == nil {
		return s.config.Port
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

// ShareFile exposes path at a /media URL on this host's LAN address. Ids
// are monotonic for the life of the process so a re-shared file never
// collides with a renderer still fetching the old URL.
func (s *Server) ShareFile(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("share %s: %w", path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("share %s: %w", path, err)
	}

	addr, err := s.externalIPv4()
	if err != nil {
		return "", fmt.Errorf("share %s: %w", path, err)
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.shares[id] = abs
	port := s.portLocked()
	s.mu.Unlock()

	return fmt.Sprintf("http://%s:%d/media/%d%s", addr, port, id, filepath.Ext(abs)), nil
}

// UnshareFile removes one share.
func (s *Server) UnshareFile(id int) {
	s.mu.Lock()
	delete(s.shares, id)
	s.mu.Unlock()
}

// UnshareAll removes every share.
func (s *Server) UnshareAll() {
	s.mu.Lock()
	s.shares = make(map[int]string)
	s.mu.Unlock()
}

// externalIPv4 picks the address renderers fetch media from: the configured
// primary interface when it has one, else the first up, non-loopback
// interface with an IPv4 address. Renderers cannot reach loopback, so no
// usable interface is a hard error.
func (s *Server) externalIPv4() (string, error) {
	if s.config.PrimaryInterface != "" {
		if ip := interfaceIPv4(s.config.PrimaryInterface); ip != "" {
			return ip, nil
		}
		log.Printf("media server: primary interface %s has no IPv4 address", s.config.PrimaryInterface)
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("list interfaces: %w", err)
	}
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
				return ipnet.IP.To4().String(), nil
			}
		}
	}
	return "", errors.New("no non-loopback IPv4 address available")
}

func interfaceIPv4(name string) string {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return ""
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
			return ipnet.IP.To4().String()
		}
	}
	return ""
}

// handleMedia serves one shared file, honoring single byte ranges the way
// renderers issue them. Malformed or unsatisfiable ranges degrade to a full
// 200 response rather than failing the request.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/media/")
	if dot := strings.Index(idStr, "."); dot >= 0 {
		idStr = idStr[:dot]
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	path, ok := s.shares[id]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		log.Printf("media server: open %s: %v", path, err)
		http.Error(w, "file unavailable", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "file unavailable", http.StatusInternalServerError)
		return
	}
	size := info.Size()

	w.Header().Set("Content-Type", mediaMIME(path))
	w.Header().Set("Accept-Ranges", "bytes")

	start, end, partial := parseRange(r.Header.Get("Range"), size)
	if !partial {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			io.Copy(w, f)
		}
		return
	}

	length := end - start + 1
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return
	}
	io.CopyN(w, f, length)
}

// mediaMIME maps audio extensions the system table often lacks, falling
// back to the platform registry and then octet-stream.
func mediaMIME(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".wav":
		return "audio/wav"
	case ".aiff":
		return "audio/aiff"
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".ogg":
		return "audio/ogg"
	case ".aac", ".m4a":
		return "audio/mp4"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// parseRange interprets a bytes=start-end header against a resource of the
// given size. partial is false whenever the request should degrade to a
// full 200: no header, malformed patterns, or a start beyond the resource.
// An open or oversized end clamps to size-1.
func parseRange(header string, size int64) (start, end int64, partial bool) {
	const prefix = "bytes="
	if header == "" || !strings.HasPrefix(header, prefix) || size == 0 {
		return 0, 0, false
	}
	spec := strings.TrimPrefix(header, prefix)
	dash := strings.Index(spec, "-")
	if dash < 0 {
		return 0, 0, false
	}
	startStr, endStr := spec[:dash], spec[dash+1:]

	var err error
	start, err = strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false
	}

	end = size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < 0 {
			return 0, 0, false
		}
		if end > size-1 {
			end = size - 1
		}
	}

	if start > end || start >= size {
		return 0, 0, false
	}
	return start, end, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var snap protocol.StateSnapshot
	if s.config.StateFunc != nil {
		snap = s.config.StateFunc()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		log.Printf("media server: encode status: %v", err)
	}
}

// handleEvents upgrades the connection and streams broadcast events until
// the client goes away. Inbound frames are read and discarded so close
// frames and pongs get processed.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("media server: events upgrade: %v", err)
		return
	}

	client := &feedClient{conn: conn, send: make(chan protocol.Event, 16)}

	s.clientsMu.Lock()
	s.clients[client] = true
	s.clientsMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.clientWriter(client)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.dropClient(client)
}

// clientWriter pushes events to one subscriber, pinging on idle.
func (s *Server) clientWriter(c *feedClient) {
	const writeDeadline = 10 * time.Second
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}

// Broadcast fans an event out to every subscriber. Slow clients are dropped
// rather than blocking the caller.
func (s *Server) Broadcast(ev protocol.Event) {
	s.clientsMu.Lock()
	var slow []*feedClient
	for c := range s.clients {
		select {
		case c.send <- ev:
		default:
			slow = append(slow, c)
		}
	}
	s.clientsMu.Unlock()

	for _, c := range slow {
		log.Printf("media server: dropping slow events client")
		s.dropClient(c)
	}
}

func (s *Server) dropClient(c *feedClient) {
	s.clientsMu.Lock()
	if !s.clients[c] {
		s.clientsMu.Unlock()
		return
	}
	delete(s.clients, c)
	s.clientsMu.Unlock()

	close(c.send)
	c.conn.Close()
}

func (s *Server) closeClients() {
	s.clientsMu.Lock()
	clients := make([]*feedClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.Unlock()

	for _, c := range clients {
		s.dropClient(c)
	}
}
