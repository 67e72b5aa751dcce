// ABOUTME: Network playback engine: drives a renderer via its UPnP façades
// ABOUTME: Shares files through the media server and polls transport state
package engine

import (
	"context"
	"fmt"
	"log"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harperreed/castbridge/internal/discovery"
	"github.com/harperreed/castbridge/internal/upnp"
)

const (
	defaultPollInterval  = time.Second
	defaultActionTimeout = 10 * time.Second
)

// NetworkOption tweaks network engine construction.
type NetworkOption func(*Network)

// WithPollInterval overrides the status poll period.
func WithPollInterval(d time.Duration) NetworkOption {
	return func(n *Network) {
		if d > 0 {
			n.pollInterval = d
		}
	}
}

// WithActionTimeout overrides the per-action timeout.
func WithActionTimeout(d time.Duration) NetworkOption {
	return func(n *Network) {
		if d > 0 {
			n.actionTimeout = d
		}
	}
}

// Network drives one renderer. The renderer owns playback; this engine
// mirrors its state through a poll loop and republishes it in engine terms.
type Network struct {
	device discovery.Device
	av     *upnp.AVTransport
	rc     *upnp.RenderingControl
	sharer FileSharer
	cb     Callbacks

	pollInterval  time.Duration
	actionTimeout time.Duration

	mu         sync.Mutex
	state      State
	position   time.Duration
	duration   time.Duration
	volume     float64
	trackURI   string
	loaded     bool
	pollCancel context.CancelFunc
}

// NewNetwork binds façades to the device's control endpoints. Devices
// without a transport endpoint cannot be driven and fail construction.
func NewNetwork(client *upnp.Client, device discovery.Device, sharer FileSharer, cb Callbacks, opts ...NetworkOption) (*Network, error) {
	if device.AVTransportURL == "" {
		return nil, fmt.Errorf("device %q has no transport control endpoint", device.FriendlyName)
	}
	n := &Network{
		device:        device,
		av:            upnp.NewAVTransport(client, device.AVTransportURL),
		sharer:        sharer,
		cb:            cb,
		pollInterval:  defaultPollInterval,
		actionTimeout: defaultActionTimeout,
		volume:        1.0,
	}
	if device.RenderingControlURL != "" {
		n.rc = upnp.NewRenderingControl(client, device.RenderingControlURL)
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

func (n *Network) actionCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), n.actionTimeout)
}

// LoadAndPlay shares ref, points the renderer at it, and starts the poll
// loop. State reads Playing for the whole flight; failures roll back to
// Stopped.
func (n *Network) LoadAndPlay(ref string) error {
	n.mu.Lock()
	prev := n.state
	n.state = Playing
	n.loaded = true
	n.stopPollLocked()
	n.mu.Unlock()

	if prev != Playing {
		n.cb.stateChanged(Playing)
	}

	// Best effort: renderers answer a 718 fault when nothing is loaded.
	if err := n.transportStop(); err != nil {
		log.Printf("network engine: pre-load stop: %v", err)
	}

	url, err := n.sharer.ShareFile(ref)
	if err != nil {
		return n.rollback(fmt.Errorf("share file: %w", err))
	}

	title := strings.TrimSuffix(filepath.Base(ref), filepath.Ext(ref))
	ctx, cancel := n.actionCtx()
	err = n.av.SetURI(ctx, url, upnp.MediaMetadata(url, title))
	cancel()
	if err != nil {
		return n.rollback(fmt.Errorf("set transport uri: %w", err))
	}

	ctx, cancel = n.actionCtx()
	err = n.av.Play(ctx)
	cancel()
	if err != nil {
		return n.rollback(fmt.Errorf("start playback: %w", err))
	}

	n.mu.Lock()
	n.position = 0
	n.trackURI = url
	n.startPollLocked()
	n.mu.Unlock()

	log.Printf("network engine: playing %s on %q", filepath.Base(ref), n.device.FriendlyName)
	return nil
}

// rollback reverts the optimistic Playing state after a failed load.
func (n *Network) rollback(err error) error {
	n.mu.Lock()
	changed := n.state != Stopped
	n.state = Stopped
	n.loaded = false
	n.mu.Unlock()
	if changed {
		n.cb.stateChanged(Stopped)
	}
	return err
}

func (n *Network) transportStop() error {
	ctx, cancel := n.actionCtx()
	defer cancel()
	return n.av.Stop(ctx)
}

// Play resumes remote playback.
func (n *Network) Play() error {
	ctx, cancel := n.actionCtx()
	defer cancel()
	if err := n.av.Play(ctx); err != nil {
		return err
	}
	n.setState(Playing)
	return nil
}

// Pause pauses the renderer in place.
func (n *Network) Pause() error {
	ctx, cancel := n.actionCtx()
	defer cancel()
	if err := n.av.Pause(ctx); err != nil {
		return err
	}
	n.setState(Paused)
	return nil
}

// Stop halts playback and the poll loop. The poll is cancelled without
// waiting for an in-flight tick; cancelled ticks discard their results, so
// this is safe to call from the poll goroutine itself.
func (n *Network) Stop() error {
	n.mu.Lock()
	n.stopPollLocked()
	n.loaded = false
	n.trackURI = ""
	n.mu.Unlock()

	if err := n.transportStop(); err != nil {
		log.Printf("network engine: stop: %v", err)
	}
	n.setState(Stopped)
	return nil
}

// Seek moves the remote position; the next poll refreshes the local copy.
func (n *Network) Seek(pos time.Duration) error {
	ctx, cancel := n.actionCtx()
	defer cancel()
	return n.av.Seek(ctx, pos)
}

// SetVolume maps the 0.0-1.0 engine scale onto the renderer's 0-100.
// Renderers without a rendering control endpoint keep an engine-local value.
func (n *Network) SetVolume(v float64) error {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	if n.rc != nil {
		ctx, cancel := n.actionCtx()
		defer cancel()
		if err := n.rc.SetVolume(ctx, int(v*100+0.5)); err != nil {
			return err
		}
	}
	n.mu.Lock()
	n.volume = v
	n.mu.Unlock()
	return nil
}

func (n *Network) Volume() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.volume
}

func (n *Network) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *Network) Position() time.Duration {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.position
}

func (n *Network) Duration() time.Duration {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.duration
}

// FormatDescription names the stream and target from the last poll; no
// control round-trip happens here because observers call this at 100ms.
func (n *Network) FormatDescription() string {
	n.mu.Lock()
	uri := n.trackURI
	n.mu.Unlock()
	if uri == "" {
		return fmt.Sprintf("idle on %s", n.device.FriendlyName)
	}
	return fmt.Sprintf("streaming %s to %s", path.Base(uri), n.device.FriendlyName)
}

func (n *Network) setState(s State) {
	n.mu.Lock()
	changed := n.state != s
	n.state = s
	n.mu.Unlock()
	if changed {
		n.cb.stateChanged(s)
	}
}

// startPollLocked launches the status poll; callers hold mu.
func (n *Network) startPollLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	n.pollCancel = cancel
	go n.pollLoop(ctx)
}

// stopPollLocked cancels the poll without waiting; callers hold mu.
func (n *Network) stopPollLocked() {
	if n.pollCancel != nil {
		n.pollCancel()
		n.pollCancel = nil
	}
}

// pollLoop refreshes renderer state once per tick until cancelled.
func (n *Network) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(n.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.pollOnce(ctx)
		}
	}
}

// pollOnce fetches transport state, position, and volume. Errors skip the
// tick and the next one retries. A transition into Stopped from a
// non-stopped state fires the finished callback exactly once.
func (n *Network) pollOnce(ctx context.Context) {
	actx, cancel := context.WithTimeout(ctx, n.actionTimeout)
	ts, err := n.av.TransportState(actx)
	cancel()
	if err != nil {
		log.Printf("network engine: poll: %v", err)
		return
	}
	st := collapseTransportState(ts)

	var pos upnp.PositionInfo
	posOK := false
	actx, cancel = context.WithTimeout(ctx, n.actionTimeout)
	if pos, err = n.av.PositionInfo(actx); err == nil {
		posOK = true
	} else {
		log.Printf("network engine: poll position: %v", err)
	}
	cancel()

	vol := -1
	if n.rc != nil {
		actx, cancel = context.WithTimeout(ctx, n.actionTimeout)
		if v, err := n.rc.Volume(actx); err == nil {
			vol = v
		}
		cancel()
	}

	n.mu.Lock()
	if ctx.Err() != nil {
		// A newer load or a stop superseded this tick.
		n.mu.Unlock()
		return
	}
	prev := n.state
	n.state = st
	if posOK {
		n.position = pos.Position
		n.duration = pos.Duration
		if pos.TrackURI != "" {
			n.trackURI = pos.TrackURI
		}
	}
	if vol >= 0 {
		n.volume = float64(vol) / 100
	}
	n.mu.Unlock()

	if st != prev {
		n.cb.stateChanged(st)
	}
	if st == Stopped && prev != Stopped {
		n.cb.finished()
	}
}

// collapseTransportState folds the renderer's transport states onto the
// engine's three. Transitioning, no-media, and unknown all read as stopped.
func collapseTransportState(ts upnp.TransportState) State {
	switch ts {
	case upnp.StatePlaying:
		return Playing
	case upnp.StatePaused:
		return Paused
	default:
		return Stopped
	}
}
