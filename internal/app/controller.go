// ABOUTME: Playback controller binding playlist, engines, and destinations
// ABOUTME: Owns auto-advance, destination switching, and state snapshots
package app

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/harperreed/castbridge/internal/discovery"
	"github.com/harperreed/castbridge/internal/engine"
	"github.com/harperreed/castbridge/internal/playlist"
	"github.com/harperreed/castbridge/internal/protocol"
	"github.com/harperreed/castbridge/internal/upnp"
)

// defaultAutoAdvanceMin guards against renderers that report a stray
// STOPPED right after a load; finishes inside this window are ignored.
const defaultAutoAdvanceMin = 500 * time.Millisecond

// DeviceSource lists the renderers discovery currently knows about.
type DeviceSource interface {
	Devices() []discovery.Device
}

// Config wires the controller's collaborators.
type Config struct {
	Playlist *playlist.Playlist
	Native   engine.NativeOutput
	Devices  DeviceSource
	Sharer   engine.FileSharer
	Client   *upnp.Client

	// AutoAdvanceMin overrides the stray-finish suppression window.
	AutoAdvanceMin time.Duration

	// PollInterval overrides the network engine's status poll cadence.
	PollInterval time.Duration

	// BitPerfect asks the native output for strict format negotiation.
	BitPerfect bool

	// OnChange fires after every observable change, with no locks held.
	OnChange func()
}

// Controller drives playback. All operations are safe for concurrent use;
// engine callbacks reenter through their own goroutines.
type Controller struct {
	mu sync.Mutex

	playlist       *playlist.Playlist
	devices        DeviceSource
	sharer         engine.FileSharer
	client         *upnp.Client
	autoAdvanceMin time.Duration
	pollInterval   time.Duration
	onChange       func()

	native engine.NativeOutput
	local  *engine.Local

	eng  engine.Engine
	dest Destination

	loaded     bool
	loadedAt   time.Time
	title      string
	bitPerfect bool
	lastErr    error
}

// New builds a controller bound to the machine's own output. The local
// adapter is created once and survives destination switches.
func New(config Config) *Controller {
	c := &Controller{
		playlist:       config.Playlist,
		devices:        config.Devices,
		sharer:         config.Sharer,
		client:         config.Client,
		autoAdvanceMin: config.AutoAdvanceMin,
		pollInterval:   config.PollInterval,
		onChange:       config.OnChange,
		native:         config.Native,
		bitPerfect:     config.BitPerfect,
	}
	if c.autoAdvanceMin == 0 {
		c.autoAdvanceMin = defaultAutoAdvanceMin
	}
	c.local = engine.NewLocal(config.Native, c.engineCallbacks())
	c.eng = c.local
	c.native.SetBitPerfect(c.bitPerfect)

	if outputs := c.native.Devices(); len(outputs) > 0 {
		c.dest = Destination{Kind: DestinationLocal, LocalID: outputs[0].ID, LocalName: outputs[0].Name}
	}
	return c
}

func (c *Controller) engineCallbacks() engine.Callbacks {
	return engine.Callbacks{
		OnStateChange: c.onEngineState,
		OnFinished:    c.onEngineFinished,
	}
}

// onEngineState may fire while a controller operation holds c.mu, so the
// notification hops to its own goroutine.
func (c *Controller) onEngineState(engine.State) {
	go c.notifyChange()
}

func (c *Controller) onEngineFinished() {
	c.mu.Lock()
	if !c.loaded {
		c.mu.Unlock()
		return
	}
	if elapsed := time.Since(c.loadedAt); elapsed < c.autoAdvanceMin {
		c.mu.Unlock()
		log.Printf("controller: ignoring finish %s after load", elapsed.Round(time.Millisecond))
		return
	}
	err := c.advanceLocked(1)
	c.mu.Unlock()

	switch {
	case err == nil:
	case errors.Is(err, ErrEndOfPlaylist):
		log.Printf("controller: playlist finished")
	default:
		log.Printf("controller: auto-advance: %v", err)
	}
	c.notifyChange()
}

func (c *Controller) notifyChange() {
	if c.onChange != nil {
		c.onChange()
	}
}

// Play resumes when paused and starts the current playlist entry when
// stopped. Playing is a no-op.
func (c *Controller) Play() error {
	c.mu.Lock()
	var err error
	switch c.eng.State() {
	case engine.Playing:
	case engine.Paused:
		err = c.eng.Play()
	default:
		t, ok := c.playlist.Current()
		if !ok {
			c.mu.Unlock()
			return ErrNoTrack
		}
		err = c.loadTrackLocked(t)
	}
	c.mu.Unlock()
	c.notifyChange()
	return err
}

// Pause is a no-op unless something is playing.
func (c *Controller) Pause() error {
	c.mu.Lock()
	var err error
	if c.eng.State() == engine.Playing {
		err = c.eng.Pause()
	}
	c.mu.Unlock()
	c.notifyChange()
	return err
}

func (c *Controller) Stop() error {
	c.mu.Lock()
	c.loaded = false
	err := c.eng.Stop()
	c.mu.Unlock()
	c.notifyChange()
	return err
}

// Next moves forward through the playlist and plays what it lands on.
func (c *Controller) Next() error {
	c.mu.Lock()
	err := c.advanceLocked(1)
	c.mu.Unlock()
	c.notifyChange()
	return err
}

// Previous moves backward through the playlist and plays what it lands on.
func (c *Controller) Previous() error {
	c.mu.Lock()
	err := c.advanceLocked(-1)
	c.mu.Unlock()
	c.notifyChange()
	return err
}

// SelectTrack jumps to a playlist index and plays it.
func (c *Controller) SelectTrack(i int) error {
	c.mu.Lock()
	t, ok := c.playlist.Select(i)
	if !ok {
		c.mu.Unlock()
		return ErrNoTrack
	}
	err := c.loadTrackLocked(t)
	c.mu.Unlock()
	c.notifyChange()
	return err
}

func (c *Controller) Seek(pos time.Duration) error {
	if pos < 0 {
		pos = 0
	}
	c.mu.Lock()
	err := c.eng.Seek(pos)
	title := c.title
	c.mu.Unlock()
	c.notifyChange()
	return classify(title, err)
}

func (c *Controller) SetVolume(v float64) error {
	c.mu.Lock()
	err := c.eng.SetVolume(v)
	c.mu.Unlock()
	c.notifyChange()
	return err
}

func (c *Controller) Volume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eng.Volume()
}

func (c *Controller) SetMode(m playlist.Mode) {
	c.playlist.SetMode(m)
	c.notifyChange()
}

// SetBitPerfect toggles strict format negotiation on the native output.
// It applies from the next load.
func (c *Controller) SetBitPerfect(enabled bool) {
	c.mu.Lock()
	c.bitPerfect = enabled
	c.native.SetBitPerfect(enabled)
	c.mu.Unlock()
	c.notifyChange()
}

func (c *Controller) BitPerfect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bitPerfect
}

// LastError reports the most recent load failure, cleared by the next
// successful load.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Destinations lists every currently reachable playback target: the native
// outputs first, then discovered renderers.
func (c *Controller) Destinations() []Destination {
	var out []Destination
	for _, d := range c.native.Devices() {
		out = append(out, Destination{Kind: DestinationLocal, LocalID: d.ID, LocalName: d.Name})
	}
	if c.devices != nil {
		for _, dev := range c.devices.Devices() {
			out = append(out, Destination{Kind: DestinationNetwork, Device: dev})
		}
	}
	return out
}

func (c *Controller) CurrentDestination() Destination {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dest
}

// SetDestination rebinds playback to another target. The old engine is
// stopped first; if the new one cannot be built the old destination stays
// selected with playback stopped. A track that was loaded resumes from the
// top on the new destination.
func (c *Controller) SetDestination(d Destination) error {
	c.mu.Lock()
	if d.Key() == c.dest.Key() {
		c.mu.Unlock()
		return nil
	}
	if err := c.eng.Stop(); err != nil {
		log.Printf("controller: stopping %s: %v", c.dest, err)
	}
	wasLoaded := c.loaded
	c.loaded = false

	next, err := c.buildEngineLocked(d)
	if err != nil {
		err = fmt.Errorf("switch to %s: %w", d, err)
		c.lastErr = err
		c.mu.Unlock()
		c.notifyChange()
		return err
	}
	c.eng = next
	c.dest = d
	log.Printf("controller: destination %s", d)

	if wasLoaded {
		if t, ok := c.playlist.Current(); ok {
			if err := c.loadTrackLocked(t); err != nil {
				log.Printf("controller: resume on %s: %v", d, err)
			}
		}
	}
	c.mu.Unlock()
	c.notifyChange()
	return nil
}

func (c *Controller) buildEngineLocked(d Destination) (engine.Engine, error) {
	switch d.Kind {
	case DestinationLocal:
		if err := c.native.SelectDevice(d.LocalID); err != nil {
			return nil, err
		}
		return c.local, nil
	case DestinationNetwork:
		var opts []engine.NetworkOption
		if c.pollInterval > 0 {
			opts = append(opts, engine.WithPollInterval(c.pollInterval))
		}
		return engine.NewNetwork(c.client, d.Device, c.sharer, c.engineCallbacks(), opts...)
	default:
		return nil, fmt.Errorf("unknown destination kind %d", d.Kind)
	}
}

func (c *Controller) advanceLocked(dir int) error {
	var t playlist.Track
	var ok bool
	if dir > 0 {
		t, ok = c.playlist.Next()
	} else {
		t, ok = c.playlist.Previous()
	}
	if !ok {
		c.loaded = false
		return ErrEndOfPlaylist
	}
	return c.loadTrackLocked(t)
}

func (c *Controller) loadTrackLocked(t playlist.Track) error {
	c.loaded = true
	c.loadedAt = time.Now()
	c.title = t.Title
	c.lastErr = nil
	if err := c.eng.LoadAndPlay(t.Path); err != nil {
		c.loaded = false
		err = classify(t.Title, err)
		c.lastErr = err
		return err
	}
	return nil
}

// Snapshot is the observer view served at /status and pushed on /events.
func (c *Controller) Snapshot() protocol.StateSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() protocol.StateSnapshot {
	s := protocol.StateSnapshot{
		State:         c.eng.State().String(),
		Position:      c.eng.Position().Seconds(),
		Duration:      c.eng.Duration().Seconds(),
		Volume:        c.eng.Volume(),
		Destination:   c.dest.String(),
		Mode:          c.playlist.Mode().String(),
		PlaylistIndex: c.playlist.CurrentIndex(),
		PlaylistCount: c.playlist.Len(),
		Format:        c.eng.FormatDescription(),
	}
	if t, ok := c.playlist.Current(); ok {
		s.Title = t.Title
	}
	return s
}

// Shutdown stops whatever is playing. The controller is not reusable after.
func (c *Controller) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = false
	return c.eng.Stop()
}
