// ABOUTME: Tests for the network engine against a scripted fake renderer
// ABOUTME: Covers load atomicity, polling, finish detection, and reentry
package engine

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harperreed/castbridge/internal/discovery"
	"github.com/harperreed/castbridge/internal/upnp"
)

var _ Engine = (*Network)(nil)
var _ Engine = (*Local)(nil)

// fakeRenderer is a scripted AVTransport/RenderingControl endpoint with a
// tiny transport state machine.
type fakeRenderer struct {
	mu         sync.Mutex
	state      string
	uri        string
	volume     int
	relTime    string
	duration   string
	actions    []string
	bodies     map[string]string
	failAction string
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{
		state:    "NO_MEDIA_PRESENT",
		relTime:  "0:00:05",
		duration: "0:03:00",
		bodies:   make(map[string]string),
	}
}

func (f *fakeRenderer) setState(s string) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

func (f *fakeRenderer) actionList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.actions...)
}

func (f *fakeRenderer) body(action string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[action]
}

func extractTag(body, tag string) string {
	open, close := "<"+tag+">", "</"+tag+">"
	i := strings.Index(body, open)
	if i < 0 {
		return ""
	}
	rest := body[i+len(open):]
	j := strings.Index(rest, close)
	if j < 0 {
		return ""
	}
	return rest[:j]
}

func (f *fakeRenderer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	soapAction := strings.Trim(r.Header.Get("SOAPACTION"), `"`)
	action := soapAction[strings.Index(soapAction, "#")+1:]
	data, _ := io.ReadAll(r.Body)
	body := string(data)

	f.mu.Lock()
	f.actions = append(f.actions, action)
	f.bodies[action] = body
	fail := f.failAction == action

	fields := map[string]string{}
	switch action {
	case "SetAVTransportURI":
		if !fail {
			f.uri = extractTag(body, "CurrentURI")
			f.state = "STOPPED"
		}
	case "Play":
		if !fail {
			f.state = "PLAYING"
		}
	case "Pause":
		f.state = "PAUSED_PLAYBACK"
	case "Stop":
		f.state = "STOPPED"
	case "GetTransportInfo":
		fields["CurrentTransportState"] = f.state
	case "GetPositionInfo":
		fields["TrackDuration"] = f.duration
		fields["RelTime"] = f.relTime
		fields["TrackURI"] = f.uri
	case "SetVolume":
		f.volume, _ = strconv.Atoi(extractTag(body, "DesiredVolume"))
	case "GetVolume":
		fields["CurrentVolume"] = strconv.Itoa(f.volume)
	}
	f.mu.Unlock()

	if fail {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body><s:Fault>`+
			`<detail><UPnPError><errorCode>501</errorCode><errorDescription>forced failure</errorDescription></UPnPError></detail>`+
			`</s:Fault></s:Body></s:Envelope>`)
		return
	}

	var b strings.Builder
	b.WriteString(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body>`)
	b.WriteString(`<u:` + action + `Response xmlns:u="urn:schemas-upnp-org:service:AVTransport:1">`)
	for name, value := range fields {
		b.WriteString("<" + name + ">" + value + "</" + name + ">")
	}
	b.WriteString(`</u:` + action + `Response></s:Body></s:Envelope>`)
	w.Write([]byte(b.String()))
}

// stubSharer hands out canned share URLs.
type stubSharer struct {
	mu    sync.Mutex
	calls []string
}

func (s *stubSharer) ShareFile(path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, path)
	return fmt.Sprintf("http://10.0.0.2:8090/media/%d.wav", len(s.calls)), nil
}

type failingSharer struct{}

func (failingSharer) ShareFile(string) (string, error) {
	return "", fmt.Errorf("no non-loopback IPv4 address available")
}

func testDevice(url string) discovery.Device {
	return discovery.Device{
		ID:                  "dev-1",
		FriendlyName:        "Living Room Speaker",
		AVTransportURL:      url,
		RenderingControlURL: url,
	}
}

func newTestNetwork(t *testing.T, fake *fakeRenderer, sharer FileSharer, cb Callbacks) *Network {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	n, err := NewNetwork(upnp.NewClient(2*time.Second), testDevice(srv.URL), sharer, cb,
		WithPollInterval(20*time.Millisecond), WithActionTimeout(2*time.Second))
	if err != nil {
		t.Fatalf("NewNetwork: %v", err)
	}
	t.Cleanup(func() { n.Stop() })
	return n
}

func TestNewNetworkRequiresTransportEndpoint(t *testing.T) {
	_, err := NewNetwork(upnp.NewClient(time.Second), discovery.Device{FriendlyName: "X"}, &stubSharer{}, Callbacks{})
	if err == nil {
		t.Error("expected error for device without AVTransport URL")
	}
}

func TestLoadAndPlay(t *testing.T) {
	fake := newFakeRenderer()
	sharer := &stubSharer{}
	var states []State
	var mu sync.Mutex
	cb := Callbacks{OnStateChange: func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}}

	n := newTestNetwork(t, fake, sharer, cb)

	if err := n.LoadAndPlay("/music/track.wav"); err != nil {
		t.Fatalf("LoadAndPlay: %v", err)
	}
	if n.State() != Playing {
		t.Errorf("State = %v, want Playing", n.State())
	}

	actions := fake.actionList()
	wantPrefix := []string{"Stop", "SetAVTransportURI", "Play"}
	if len(actions) < 3 {
		t.Fatalf("actions = %v", actions)
	}
	for i, want := range wantPrefix {
		if actions[i] != want {
			t.Errorf("actions[%d] = %q, want %q", i, actions[i], want)
		}
	}

	body := fake.body("SetAVTransportURI")
	if !strings.Contains(body, "http://10.0.0.2:8090/media/1.wav") {
		t.Errorf("renderer not pointed at share URL:\n%s", body)
	}
	if !strings.Contains(body, "DIDL-Lite") || !strings.Contains(body, "track") {
		t.Errorf("metadata missing from SetAVTransportURI:\n%s", body)
	}

	mu.Lock()
	sawPlaying := len(states) > 0 && states[0] == Playing
	mu.Unlock()
	if !sawPlaying {
		t.Errorf("state transitions %v, want Playing first", states)
	}
}

func TestLoadAndPlayRollsBackOnTransportFailure(t *testing.T) {
	fake := newFakeRenderer()
	fake.failAction = "SetAVTransportURI"
	var mu sync.Mutex
	var states []State
	cb := Callbacks{OnStateChange: func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}}
	n := newTestNetwork(t, fake, &stubSharer{}, cb)

	err := n.LoadAndPlay("/music/track.wav")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "forced failure") {
		t.Errorf("error %v should carry the renderer's fault description", err)
	}
	if n.State() != Stopped {
		t.Errorf("State = %v after failed load, want Stopped", n.State())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(states) < 2 || states[0] != Playing || states[len(states)-1] != Stopped {
		t.Errorf("transitions = %v, want optimistic Playing then rollback to Stopped", states)
	}
}

func TestLoadAndPlayRollsBackOnShareFailure(t *testing.T) {
	fake := newFakeRenderer()
	n := newTestNetwork(t, fake, failingSharer{}, Callbacks{})

	if err := n.LoadAndPlay("/music/track.wav"); err == nil {
		t.Fatal("expected error")
	}
	if n.State() != Stopped {
		t.Errorf("State = %v, want Stopped", n.State())
	}
	for _, a := range fake.actionList() {
		if a == "SetAVTransportURI" {
			t.Error("renderer contacted with a URI despite share failure")
		}
	}
}

func TestPauseAndResume(t *testing.T) {
	fake := newFakeRenderer()
	n := newTestNetwork(t, fake, &stubSharer{}, Callbacks{})

	if err := n.LoadAndPlay("/music/track.wav"); err != nil {
		t.Fatalf("LoadAndPlay: %v", err)
	}
	if err := n.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if n.State() != Paused {
		t.Errorf("State = %v, want Paused", n.State())
	}
	if err := n.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if n.State() != Playing {
		t.Errorf("State = %v, want Playing", n.State())
	}
}

func TestSeekSendsFormattedTarget(t *testing.T) {
	fake := newFakeRenderer()
	n := newTestNetwork(t, fake, &stubSharer{}, Callbacks{})

	if err := n.Seek(65 * time.Second); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	body := fake.body("Seek")
	if !strings.Contains(body, "<Target>0:01:05</Target>") || !strings.Contains(body, "REL_TIME") {
		t.Errorf("Seek body wrong:\n%s", body)
	}
}

func TestVolumeMapsToRendererScale(t *testing.T) {
	fake := newFakeRenderer()
	n := newTestNetwork(t, fake, &stubSharer{}, Callbacks{})

	if err := n.SetVolume(0.37); err != nil {
		t.Fatalf("SetVolume: %v", err)
	}
	fake.mu.Lock()
	got := fake.volume
	fake.mu.Unlock()
	if got != 37 {
		t.Errorf("renderer volume = %d, want 37", got)
	}
	if v := n.Volume(); v < 0.36 || v > 0.38 {
		t.Errorf("Volume = %v, want ~0.37", v)
	}

	if err := n.SetVolume(2.5); err != nil {
		t.Fatalf("SetVolume: %v", err)
	}
	fake.mu.Lock()
	got = fake.volume
	fake.mu.Unlock()
	if got != 100 {
		t.Errorf("renderer volume = %d, want clamp to 100", got)
	}
}

func TestPollUpdatesPositionAndVolume(t *testing.T) {
	fake := newFakeRenderer()
	fake.relTime = "0:00:42"
	fake.duration = "0:03:00"
	fake.volume = 80
	n := newTestNetwork(t, fake, &stubSharer{}, Callbacks{})

	if err := n.LoadAndPlay("/music/track.wav"); err != nil {
		t.Fatalf("LoadAndPlay: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n.Position() == 42*time.Second {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if n.Position() != 42*time.Second {
		t.Errorf("Position = %v, want 42s from poll", n.Position())
	}
	if n.Duration() != 3*time.Minute {
		t.Errorf("Duration = %v, want 3m", n.Duration())
	}
	if v := n.Volume(); v < 0.79 || v > 0.81 {
		t.Errorf("Volume = %v, want ~0.8 from poll", v)
	}
}

func TestPollDetectsFinishExactlyOnce(t *testing.T) {
	fake := newFakeRenderer()
	finished := make(chan struct{}, 8)
	n := newTestNetwork(t, fake, &stubSharer{}, Callbacks{
		OnFinished: func() { finished <- struct{}{} },
	})

	if err := n.LoadAndPlay("/music/track.wav"); err != nil {
		t.Fatalf("LoadAndPlay: %v", err)
	}

	// Track runs out on the renderer.
	fake.setState("STOPPED")

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("finished callback never fired")
	}
	if n.State() != Stopped {
		t.Errorf("State = %v, want Stopped", n.State())
	}

	// Consecutive stopped polls must not refire.
	time.Sleep(150 * time.Millisecond)
	select {
	case <-finished:
		t.Error("finished fired more than once")
	default:
	}
}

func TestExplicitStopDoesNotFireFinished(t *testing.T) {
	fake := newFakeRenderer()
	finished := make(chan struct{}, 8)
	n := newTestNetwork(t, fake, &stubSharer{}, Callbacks{
		OnFinished: func() { finished <- struct{}{} },
	})

	if err := n.LoadAndPlay("/music/track.wav"); err != nil {
		t.Fatalf("LoadAndPlay: %v", err)
	}
	if err := n.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	time.Sleep(150 * time.Millisecond)
	select {
	case <-finished:
		t.Error("explicit Stop fired the finished callback")
	default:
	}
	if n.State() != Stopped {
		t.Errorf("State = %v, want Stopped", n.State())
	}
}

func TestReloadFromFinishedCallback(t *testing.T) {
	// Auto-advance reloads on the poll goroutine itself; the engine must
	// not deadlock waiting for its own poll to wind down.
	fake := newFakeRenderer()
	sharer := &stubSharer{}
	reloaded := make(chan error, 1)

	var n *Network
	cb := Callbacks{OnFinished: func() {
		select {
		case reloaded <- n.LoadAndPlay("/music/next.wav"):
		default:
		}
	}}
	n = newTestNetwork(t, fake, sharer, cb)

	if err := n.LoadAndPlay("/music/first.wav"); err != nil {
		t.Fatalf("LoadAndPlay: %v", err)
	}
	fake.setState("STOPPED")

	select {
	case err := <-reloaded:
		if err != nil {
			t.Fatalf("reload from callback: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("reload from finished callback deadlocked")
	}
	if n.State() != Playing {
		t.Errorf("State = %v after reload, want Playing", n.State())
	}

	sharer.mu.Lock()
	calls := len(sharer.calls)
	sharer.mu.Unlock()
	if calls != 2 {
		t.Errorf("ShareFile called %d times, want 2", calls)
	}
}

func TestCollapseTransportState(t *testing.T) {
	cases := map[upnp.TransportState]State{
		upnp.StatePlaying:       Playing,
		upnp.StatePaused:        Paused,
		upnp.StateStopped:       Stopped,
		upnp.StateTransitioning: Stopped,
		upnp.StateNoMedia:       Stopped,
		upnp.StateUnknown:       Stopped,
	}
	for in, want := range cases {
		if got := collapseTransportState(in); got != want {
			t.Errorf("collapseTransportState(%v) = %v, want %v", in, got, want)
		}
	}
}
