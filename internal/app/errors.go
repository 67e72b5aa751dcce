// ABOUTME: Playback failure classification shared by the controller and UIs
// ABOUTME: Buckets engine errors into stable kinds without losing the cause
package app

import (
	"errors"
	"fmt"
	"io/fs"
	"net"

	"github.com/harperreed/castbridge/internal/engine"
	"github.com/harperreed/castbridge/internal/upnp"
)

var (
	// ErrNoTrack means the playlist has nothing selected to play.
	ErrNoTrack = errors.New("no track selected")

	// ErrEndOfPlaylist means traversal ran off the edge in sequential mode.
	ErrEndOfPlaylist = errors.New("end of playlist")
)

// FailureKind buckets playback failures for display and logging.
type FailureKind int

const (
	FailureUnknown FailureKind = iota
	FailureMissingFile
	FailureUnsupportedFormat
	FailureTransport
)

func (k FailureKind) String() string {
	switch k {
	case FailureMissingFile:
		return "missing file"
	case FailureUnsupportedFormat:
		return "unsupported format"
	case FailureTransport:
		return "transport error"
	default:
		return "playback error"
	}
}

// PlaybackError pairs a classified failure with the track it hit.
type PlaybackError struct {
	Kind  FailureKind
	Track string
	Err   error
}

func (e *PlaybackError) Error() string {
	if e.Track == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Track, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }

// classify wraps err in a PlaybackError. The traversal sentinels pass
// through untouched so callers can match them directly.
func classify(track string, err error) error {
	if err == nil || errors.Is(err, ErrNoTrack) || errors.Is(err, ErrEndOfPlaylist) {
		return err
	}

	kind := FailureUnknown
	var upnpErr *upnp.Error
	var netErr net.Error
	switch {
	case errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission):
		kind = FailureMissingFile
	case errors.Is(err, engine.ErrUnsupportedFormat):
		kind = FailureUnsupportedFormat
	case errors.As(err, &upnpErr) || errors.As(err, &netErr):
		kind = FailureTransport
	}
	return &PlaybackError{Kind: kind, Track: track, Err: err}
}
