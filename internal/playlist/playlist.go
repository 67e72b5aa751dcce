// ABOUTME: Ordered track list with a cursor and traversal modes
// ABOUTME: Thread-safe; the cursor is -1 exactly when the list is empty
package playlist

import (
	"math/rand"
	"sync"
	"time"
)

// Mode selects the traversal policy for Next and Previous.
type Mode int

const (
	ModeSequential Mode = iota
	ModeLoop
	ModeLoopOne
	ModeShuffle
)

func (m Mode) String() string {
	switch m {
	case ModeSequential:
		return "sequential"
	case ModeLoop:
		return "loop"
	case ModeLoopOne:
		return "loop-one"
	case ModeShuffle:
		return "shuffle"
	default:
		return "unknown"
	}
}

// ParseMode maps config strings to modes; unknown strings fall back
// to sequential.
func ParseMode(s string) Mode {
	switch s {
	case "loop":
		return ModeLoop
	case "loop-one":
		return ModeLoopOne
	case "shuffle":
		return ModeShuffle
	default:
		return ModeSequential
	}
}

// Track is one playlist entry: a local file plus its display title.
type Track struct {
	Path  string
	Title string
}

// Playlist holds the track sequence and cursor.
type Playlist struct {
	mu      sync.RWMutex
	tracks  []Track
	current int
	mode    Mode
	rng     *rand.Rand
}

// New returns an empty playlist in sequential mode.
func New() *Playlist {
	return &Playlist{
		current: -1,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Add appends a track. Adding to an empty list selects it.
func (p *Playlist) Add(t Track) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks = append(p.tracks, t)
	if p.current == -1 {
		p.current = 0
	}
}

// Clear removes every track and resets the cursor.
func (p *Playlist) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks = nil
	p.current = -1
}

// Remove deletes the track at index i. A cursor past the new end clamps to
// the last index; removals before the cursor shift it left so it keeps
// naming the same track.
func (p *Playlist) Remove(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.tracks) {
		return
	}
	p.tracks = append(p.tracks[:i], p.tracks[i+1:]...)
	switch {
	case len(p.tracks) == 0:
		p.current = -1
	case i < p.current:
		p.current--
	case p.current >= len(p.tracks):
		p.current = len(p.tracks) - 1
	}
}

// Current returns the track under the cursor.
func (p *Playlist) Current() (Track, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current < 0 {
		return Track{}, false
	}
	return p.tracks[p.current], true
}

// CurrentIndex returns the cursor position, -1 when empty.
func (p *Playlist) CurrentIndex() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Len returns the number of tracks.
func (p *Playlist) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.tracks)
}

// Tracks returns a copy of the track sequence.
func (p *Playlist) Tracks() []Track {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Track, len(p.tracks))
	copy(out, p.tracks)
	return out
}

// Select moves the cursor to index i.
func (p *Playlist) Select(i int) (Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.tracks) {
		return Track{}, false
	}
	p.current = i
	return p.tracks[i], true
}

// SetMode switches the traversal policy.
func (p *Playlist) SetMode(m Mode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mode = m
}

// Mode returns the traversal policy.
func (p *Playlist) Mode() Mode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.mode
}

// Next advances the cursor per the mode and returns the new current track.
// The boolean is false when traversal yields nothing: an empty list, or a
// sequential cursor already at the last index.
func (p *Playlist) Next() (Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.step(1)
}

// Previous mirrors Next backwards.
func (p *Playlist) Previous() (Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.step(-1)
}

// step implements the shared traversal math; callers hold the lock.
func (p *Playlist) step(dir int) (Track, bool) {
	n := len(p.tracks)
	if n == 0 {
		return Track{}, false
	}
	switch p.mode {
	case ModeSequential:
		next := p.current + dir
		if next < 0 || next >= n {
			return Track{}, false
		}
		p.current = next
	case ModeLoop:
		p.current = ((p.current+dir)%n + n) % n
	case ModeLoopOne:
		// Cursor stays put.
	case ModeShuffle:
		p.current = p.rng.Intn(n)
	}
	return p.tracks[p.current], true
}
