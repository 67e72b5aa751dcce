// ABOUTME: Playback engine contract shared by local and network backends
// ABOUTME: The controller and observers depend only on this interface
package engine

import (
	"errors"
	"time"
)

// ErrUnsupportedFormat marks media a backend cannot play, for example a
// compressed container handed to the pass-through native output.
var ErrUnsupportedFormat = errors.New("unsupported media format")

// State is the three-value playback state engines expose to the controller.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

// Engine is one playback destination. Exactly one engine is active at a
// time; the controller stops the old one before binding another.
//
// LoadAndPlay is atomic with respect to State: observers never read Stopped
// between the call and its outcome. The state is optimistically Playing and
// rolls back only on failure.
type Engine interface {
	LoadAndPlay(ref string) error
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
}

// Callbacks deliver engine events. They fire from engine-owned goroutines
// with no engine lock held, so handlers may call back into the engine.
type Callbacks struct {
	// OnStateChange fires on every externally visible state transition.
	OnStateChange func(State)

	// OnFinished fires once per transition into Stopped caused by playback
	// reaching the end of the media. Explicit Stop never fires it.
	OnFinished func()
}

func (c Callbacks) stateChanged(s State) {
	if c.OnStateChange != nil {
		c.OnStateChange(s)
	}
}

func (c Callbacks) finished() {
	if c.OnFinished != nil {
		c.OnFinished()
	}
}

// FileSharer publishes local files at renderer-fetchable URLs; the media
// server satisfies it.
type FileSharer interface {
	ShareFile(path string) (string, error)
}
