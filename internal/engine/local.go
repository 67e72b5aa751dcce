// ABOUTME: Local playback engine: thin adapter over the native output
// ABOUTME: The native side owns format negotiation and its status monitor
package engine

import "time"

// OutputDevice identifies one native output destination.
type OutputDevice struct {
	ID   string
	Name string
}

// NativeOutput is the native audio collaborator the local adapter consumes.
// Implementations guarantee LoadAndPlay atomicity, run their own status
// monitor for end-of-media detection, and fall back to the device's current
// format when bit-perfect negotiation fails rather than aborting playback.
type NativeOutput interface {
	LoadAndPlay(path string) error
	Play() error
	Pause() error
	Stop() error
	Seek(pos time.Duration) error
	SetVolume(v float64) error
	Volume() float64
	State() State
	Position() time.Duration
	Duration() time.Duration
	FormatDescription() string

	Devices() []OutputDevice
	SelectDevice(id string) error
	SetBitPerfect(enabled bool)

	SetOnFinished(fn func())
	SetOnStateChange(fn func(State))
}

// Local adapts the native collaborator to the Engine contract. The adapter
// is cached by the controller and survives destination switches.
type Local struct {
	out NativeOutput
}

// NewLocal wires the callbacks into the native collaborator.
func NewLocal(out NativeOutput, cb Callbacks) *Local {
	out.SetOnFinished(cb.finished)
	out.SetOnStateChange(cb.stateChanged)
	return &Local{out: out}
}

func (l *Local) LoadAndPlay(ref string) error { return l.out.LoadAndPlay(ref) }
func (l *Local) Play() error                  { return l.out.Play() }
func (l *Local) Pause() error                 { return l.out.Pause() }
func (l *Local) Stop() error                  { return l.out.Stop() }
func (l *Local) Seek(pos time.Duration) error { return l.out.Seek(pos) }
func (l *Local) SetVolume(v float64) error    { return l.out.SetVolume(v) }
func (l *Local) Volume() float64              { return l.out.Volume() }
func (l *Local) State() State                 { return l.out.State() }
func (l *Local) Position() time.Duration      { return l.out.Position() }
func (l *Local) Duration() time.Duration      { return l.out.Duration() }
func (l *Local) FormatDescription() string    { return l.out.FormatDescription() }

// Devices lists the native output devices available right now.
func (l *Local) Devices() []OutputDevice { return l.out.Devices() }

// SelectDevice switches the native output device.
func (l *Local) SelectDevice(id string) error { return l.out.SelectDevice(id) }

// SetBitPerfect toggles format negotiation for subsequent loads.
func (l *Local) SetBitPerfect(enabled bool) { l.out.SetBitPerfect(enabled) }
