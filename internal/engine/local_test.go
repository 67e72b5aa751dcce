// ABOUTME: Tests for the local engine adapter over a stub native output
// ABOUTME: Verifies callback wiring and method delegation
package engine

import (
	"testing"
	"time"
)

// stubOutput records calls and lets tests trigger native events.
type stubOutput struct {
	loaded     string
	state      State
	volume     float64
	selected   string
	bitPerfect bool

	onFinished    func()
	onStateChange func(State)
}

func (s *stubOutput) LoadAndPlay(path string) error { s.loaded = path; s.state = Playing; return nil }
func (s *stubOutput) Play() error                   { s.state = Playing; return nil }
func (s *stubOutput) Pause() error                  { s.state = Paused; return nil }
func (s *stubOutput) Stop() error                   { s.state = Stopped; return nil }
func (s *stubOutput) Seek(time.Duration) error      { return nil }
func (s *stubOutput) SetVolume(v float64) error     { s.volume = v; return nil }
func (s *stubOutput) Volume() float64               { return s.volume }
func (s *stubOutput) State() State                  { return s.state }
func (s *stubOutput) Position() time.Duration       { return 7 * time.Second }
func (s *stubOutput) Duration() time.Duration       { return 91 * time.Second }
func (s *stubOutput) FormatDescription() string     { return "44100 Hz, 2 ch, 16-bit PCM" }

func (s *stubOutput) Devices() []OutputDevice {
	return []OutputDevice{{ID: "default", Name: "System Default Output"}}
}
func (s *stubOutput) SelectDevice(id string) error    { s.selected = id; return nil }
func (s *stubOutput) SetBitPerfect(enabled bool)      { s.bitPerfect = enabled }
func (s *stubOutput) SetOnFinished(fn func())         { s.onFinished = fn }
func (s *stubOutput) SetOnStateChange(fn func(State)) { s.onStateChange = fn }

func TestLocalDelegates(t *testing.T) {
	out := &stubOutput{}
	l := NewLocal(out, Callbacks{})

	if err := l.LoadAndPlay("/music/a.wav"); err != nil {
		t.Fatalf("LoadAndPlay: %v", err)
	}
	if out.loaded != "/music/a.wav" {
		t.Errorf("loaded = %q", out.loaded)
	}
	if l.State() != Playing {
		t.Errorf("State = %v, want Playing", l.State())
	}
	if err := l.SetVolume(0.4); err != nil {
		t.Fatalf("SetVolume: %v", err)
	}
	if out.volume != 0.4 {
		t.Errorf("volume = %v", out.volume)
	}
	if l.Position() != 7*time.Second || l.Duration() != 91*time.Second {
		t.Errorf("Position/Duration = %v/%v", l.Position(), l.Duration())
	}
	if err := l.SelectDevice("default"); err != nil {
		t.Fatalf("SelectDevice: %v", err)
	}
	if out.selected != "default" {
		t.Errorf("selected = %q", out.selected)
	}
	l.SetBitPerfect(true)
	if !out.bitPerfect {
		t.Error("bit-perfect flag not forwarded")
	}
}

func TestLocalWiresCallbacks(t *testing.T) {
	out := &stubOutput{}
	var finished int
	var states []State
	NewLocal(out, Callbacks{
		OnFinished:    func() { finished++ },
		OnStateChange: func(s State) { states = append(states, s) },
	})

	if out.onFinished == nil || out.onStateChange == nil {
		t.Fatal("callbacks not installed on the native output")
	}
	out.onStateChange(Playing)
	out.onStateChange(Stopped)
	out.onFinished()

	if finished != 1 {
		t.Errorf("finished = %d, want 1", finished)
	}
	if len(states) != 2 || states[0] != Playing || states[1] != Stopped {
		t.Errorf("states = %v", states)
	}
}

func TestLocalToleratesNilCallbacks(t *testing.T) {
	out := &stubOutput{}
	NewLocal(out, Callbacks{})
	// Installed wrappers must be nil-safe.
	out.onStateChange(Playing)
	out.onFinished()
}
