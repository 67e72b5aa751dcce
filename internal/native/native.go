// ABOUTME: Native playback engine that feeds WAV files straight to oto
// ABOUTME: Owns the output context, the playback monitor, and seek handling
package native

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/harperreed/castbridge/internal/engine"
)

const monitorInterval = 100 * time.Millisecond

// Engine plays 16-bit PCM WAV files on the system output. Samples go to the
// device untouched; there is no decode, resample, or DSP stage.
type Engine struct {
	mu sync.Mutex

	// oto allows exactly one context per process, created on first load.
	otoCtx  *oto.Context
	ctxRate int
	ctxCh   int

	bitPerfect bool
	volume     float64
	device     string

	file       *os.File
	format     wavFormat
	player     *oto.Player
	src        *sourceReader
	seekBase   time.Duration
	negotiated bool
	state      engine.State

	monitorCancel context.CancelFunc

	onFinished    func()
	onStateChange func(engine.State)
}

// sourceReader feeds the oto player from a window of the WAV data chunk and
// tracks consumption so Position works without locking the reader.
type sourceReader struct {
	r        *io.SectionReader
	consumed atomic.Int64
	eof      atomic.Bool
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	s.consumed.Add(int64(n))
	if err == io.EOF {
		s.eof.Store(true)
	}
	return n, err
}

// New returns an idle native engine. No audio device is touched until the
// first successful load.
func New() *Engine {
	return &Engine{volume: 1.0, device: "default"}
}

func (e *Engine) SetOnFinished(fn func()) {
	e.mu.Lock()
	e.onFinished = fn
	e.mu.Unlock()
}

func (e *Engine) SetOnStateChange(fn func(engine.State)) {
	e.mu.Lock()
	e.onStateChange = fn
	e.mu.Unlock()
}

// Devices lists selectable outputs. oto binds to the system default, so
// exactly one device is ever offered.
func (e *Engine) Devices() []engine.OutputDevice {
	return []engine.OutputDevice{{ID: "default", Name: "System Default Output"}}
}

func (e *Engine) SelectDevice(id string) error {
	if id != "" && id != "default" {
		return fmt.Errorf("unknown output device %q", id)
	}
	e.mu.Lock()
	e.device = "default"
	e.mu.Unlock()
	return nil
}

// SetBitPerfect toggles strict format negotiation for subsequent loads.
func (e *Engine) SetBitPerfect(enabled bool) {
	e.mu.Lock()
	e.bitPerfect = enabled
	e.mu.Unlock()
	log.Printf("native engine: bit-perfect %v", enabled)
}

// LoadAndPlay opens the file, validates the container, and starts playback
// from the top. On any failure the previous track is already torn down and
// the engine lands in Stopped.
func (e *Engine) LoadAndPlay(path string) error {
	e.mu.Lock()
	e.closePlaybackLocked()
	e.state = engine.Playing
	err := e.openLocked(path)
	if err != nil {
		e.state = engine.Stopped
	}
	fn := e.onStateChange
	e.mu.Unlock()

	if fn != nil {
		fn(engine.Playing)
	}
	if err != nil {
		if fn != nil {
			fn(engine.Stopped)
		}
		return err
	}
	log.Printf("native engine: playing %s (%s)", path, e.FormatDescription())
	return nil
}

func (e *Engine) openLocked(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	format, err := parseWAV(f, st.Size())
	if err != nil {
		f.Close()
		return err
	}
	negotiated, err := e.ensureContextLocked(format)
	if err != nil {
		f.Close()
		return err
	}

	e.file = f
	e.format = format
	e.negotiated = negotiated
	e.startPlayerLocked(0)
	e.player.Play()
	return nil
}

// ensureContextLocked creates the process-wide output context on first use.
// oto cannot renegotiate an existing context, so a later file with a
// different format plays through the device format instead of failing.
func (e *Engine) ensureContextLocked(f wavFormat) (bool, error) {
	if e.otoCtx == nil {
		op := &oto.NewContextOptions{
			SampleRate:   f.SampleRate,
			ChannelCount: f.Channels,
			Format:       oto.FormatSignedInt16LE,
		}
		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			return false, fmt.Errorf("open audio output: %w", err)
		}
		<-ready
		e.otoCtx = ctx
		e.ctxRate = f.SampleRate
		e.ctxCh = f.Channels
		log.Printf("native engine: output opened at %d Hz, %d channels", f.SampleRate, f.Channels)
		return true, nil
	}
	if e.ctxRate == f.SampleRate && e.ctxCh == f.Channels {
		return true, nil
	}
	log.Printf("native engine: output locked at %d Hz/%d ch, cannot renegotiate to %d Hz/%d ch, continuing with device format",
		e.ctxRate, e.ctxCh, f.SampleRate, f.Channels)
	return false, nil
}

// startPlayerLocked builds a player over the data chunk starting at pos and
// starts its monitor. The caller decides whether it actually plays.
func (e *Engine) startPlayerLocked(pos time.Duration) {
	byteOff := e.format.alignedOffset(pos)
	e.src = &sourceReader{r: io.NewSectionReader(e.file, e.format.DataOffset+byteOff, e.format.DataLen-byteOff)}
	e.player = e.otoCtx.NewPlayer(e.src)
	e.player.SetVolume(e.volume)
	e.seekBase = e.format.bytesToDuration(byteOff)

	ctx, cancel := context.WithCancel(context.Background())
	e.monitorCancel = cancel
	go e.monitor(ctx, e.player, e.src)
}

// monitor watches for the player draining its source and reports the end of
// the track. Pausing with a fully buffered source must not count as a
// finish, so the state is rechecked under the lock.
func (e *Engine) monitor(ctx context.Context, player *oto.Player, src *sourceReader) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !src.eof.Load() || player.IsPlaying() {
			continue
		}

		e.mu.Lock()
		if e.player != player || ctx.Err() != nil {
			e.mu.Unlock()
			return
		}
		if e.state != engine.Playing {
			e.mu.Unlock()
			continue
		}
		e.closePlaybackLocked()
		e.state = engine.Stopped
		fnState := e.onStateChange
		fnFinished := e.onFinished
		e.mu.Unlock()

		if fnState != nil {
			fnState(engine.Stopped)
		}
		if fnFinished != nil {
			fnFinished()
		}
		return
	}
}

func (e *Engine) Play() error {
	e.mu.Lock()
	if e.player == nil {
		e.mu.Unlock()
		return fmt.Errorf("no media loaded")
	}
	if e.state == engine.Playing {
		e.mu.Unlock()
		return nil
	}
	e.player.Play()
	e.state = engine.Playing
	fn := e.onStateChange
	e.mu.Unlock()

	if fn != nil {
		fn(engine.Playing)
	}
	return nil
}

func (e *Engine) Pause() error {
	e.mu.Lock()
	if e.player == nil || e.state != engine.Playing {
		e.mu.Unlock()
		return nil
	}
	e.player.Pause()
	e.state = engine.Paused
	fn := e.onStateChange
	e.mu.Unlock()

	if fn != nil {
		fn(engine.Paused)
	}
	return nil
}

func (e *Engine) Stop() error {
	e.mu.Lock()
	e.closePlaybackLocked()
	changed := e.state != engine.Stopped
	e.state = engine.Stopped
	fn := e.onStateChange
	e.mu.Unlock()

	if changed && fn != nil {
		fn(engine.Stopped)
	}
	return nil
}

// Seek rebuilds the player at a frame-aligned offset. oto players cannot
// reposition a live source, so seeking swaps the reader underneath.
func (e *Engine) Seek(pos time.Duration) error {
	e.mu.Lock()
	if e.file == nil {
		e.mu.Unlock()
		return fmt.Errorf("no media loaded")
	}
	wasPlaying := e.state == engine.Playing
	e.closePlayerLocked()
	e.startPlayerLocked(pos)
	if wasPlaying {
		e.player.Play()
	}
	e.mu.Unlock()
	return nil
}

func (e *Engine) SetVolume(v float64) error {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	e.mu.Lock()
	e.volume = v
	if e.player != nil {
		e.player.SetVolume(v)
	}
	e.mu.Unlock()
	return nil
}

func (e *Engine) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

func (e *Engine) State() engine.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Position derives the playback point from bytes handed to the player minus
// what still sits in its buffer.
func (e *Engine) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.src == nil {
		return 0
	}
	bytes := e.src.consumed.Load()
	if e.player != nil {
		bytes -= int64(e.player.BufferedSize())
	}
	if bytes < 0 {
		bytes = 0
	}
	return e.seekBase + e.format.bytesToDuration(bytes)
}

func (e *Engine) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.file == nil {
		return 0
	}
	return e.format.duration()
}

// FormatDescription reports the loaded stream format and whether it reaches
// the device untouched.
func (e *Engine) FormatDescription() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.file == nil {
		return ""
	}
	desc := fmt.Sprintf("%d Hz, %d ch, %d-bit PCM", e.format.SampleRate, e.format.Channels, e.format.BitsPerSample)
	switch {
	case !e.negotiated:
		return desc + " (device format)"
	case e.bitPerfect:
		return desc + " (bit-perfect)"
	default:
		return desc
	}
}

// closePlayerLocked tears down the player and its monitor but keeps the
// file open for an immediate restart.
func (e *Engine) closePlayerLocked() {
	if e.monitorCancel != nil {
		e.monitorCancel()
		e.monitorCancel = nil
	}
	if e.player != nil {
		e.player.Close()
		e.player = nil
	}
	e.src = nil
	e.seekBase = 0
}

func (e *Engine) closePlaybackLocked() {
	e.closePlayerLocked()
	if e.file != nil {
		e.file.Close()
		e.file = nil
	}
	e.format = wavFormat{}
	e.negotiated = false
}
