// ABOUTME: AVTransport service façade: typed transport operations
// ABOUTME: Thin pass-throughs to the SOAP client with the fixed instance id
package upnp

import (
	"context"
	"time"
)

const (
	AVTransportServiceType      = "urn:schemas-upnp-org:service:AVTransport:1"
	RenderingControlServiceType = "urn:schemas-upnp-org:service:RenderingControl:1"

	// instanceID 0 addresses the renderer's only transport instance.
	instanceID = "0"
)

// TransportState is the renderer-reported playback status.
type TransportState string

const (
	StateStopped       TransportState = "stopped"
	StatePlaying       TransportState = "playing"
	StatePaused        TransportState = "paused"
	StateTransitioning TransportState = "transitioning"
	StateNoMedia       TransportState = "no-media"
	StateUnknown       TransportState = "unknown"
)

// parseTransportState maps raw CurrentTransportState values; anything
// unrecognized reads as unknown.
func parseTransportState(raw string) TransportState {
	switch raw {
	case "STOPPED":
		return StateStopped
	case "PLAYING":
		return StatePlaying
	case "PAUSED_PLAYBACK":
		return StatePaused
	case "TRANSITIONING":
		return StateTransitioning
	case "NO_MEDIA_PRESENT":
		return StateNoMedia
	default:
		return StateUnknown
	}
}

// PositionInfo is the subset of GetPositionInfo the engines consume.
type PositionInfo struct {
	Duration time.Duration
	Position time.Duration
	TrackURI string
}

// MediaInfo is the subset of GetMediaInfo surfaced to callers.
type MediaInfo struct {
	CurrentURI string
	Duration   time.Duration
}

// AVTransport drives one renderer's transport control endpoint.
type AVTransport struct {
	client     *Client
	controlURL string
}

// NewAVTransport binds the façade to a control URL.
func NewAVTransport(client *Client, controlURL string) *AVTransport {
	return &AVTransport{client: client, controlURL: controlURL}
}

// SetURI points the renderer at uri. metadata may be empty or a DIDL-Lite
// document from MediaMetadata.
func (t *AVTransport) SetURI(ctx context.Context, uri, metadata string) error {
	_, err := t.client.Invoke(ctx, t.controlURL, AVTransportServiceType, "SetAVTransportURI", []Arg{
		{"InstanceID", instanceID},
		{"CurrentURI", uri},
		{"CurrentURIMetaData", metadata},
	})
	return err
}

// Play starts or resumes playback at normal speed.
func (t *AVTransport) Play(ctx context.Context) error {
	_, err := t.client.Invoke(ctx, t.controlURL, AVTransportServiceType, "Play", []Arg{
		{"InstanceID", instanceID},
		{"Speed", "1"},
	})
	return err
}

// Pause halts playback in place.
func (t *AVTransport) Pause(ctx context.Context) error {
	_, err := t.client.Invoke(ctx, t.controlURL, AVTransportServiceType, "Pause", []Arg{
		{"InstanceID", instanceID},
	})
	return err
}

// Stop halts playback and releases the renderer's media.
func (t *AVTransport) Stop(ctx context.Context) error {
	_, err := t.client.Invoke(ctx, t.controlURL, AVTransportServiceType, "Stop", []Arg{
		{"InstanceID", instanceID},
	})
	return err
}

// Seek jumps to an absolute position within the current track.
func (t *AVTransport) Seek(ctx context.Context, pos time.Duration) error {
	_, err := t.client.Invoke(ctx, t.controlURL, AVTransportServiceType, "Seek", []Arg{
		{"InstanceID", instanceID},
		{"Unit", "REL_TIME"},
		{"Target", FormatDuration(pos)},
	})
	return err
}

// TransportState fetches and maps the renderer's current transport state.
func (t *AVTransport) TransportState(ctx context.Context) (TransportState, error) {
	fields, err := t.client.Invoke(ctx, t.controlURL, AVTransportServiceType, "GetTransportInfo", []Arg{
		{"InstanceID", instanceID},
	})
	if err != nil {
		return StateUnknown, err
	}
	return parseTransportState(fields["CurrentTransportState"]), nil
}

// PositionInfo fetches playback position. Time fields some renderers report
// as NOT_IMPLEMENTED or garbage read as zero rather than failing the call.
func (t *AVTransport) PositionInfo(ctx context.Context) (PositionInfo, error) {
	fields, err := t.client.Invoke(ctx, t.controlURL, AVTransportServiceType, "GetPositionInfo", []Arg{
		{"InstanceID", instanceID},
	})
	if err != nil {
		return PositionInfo{}, err
	}
	info := PositionInfo{TrackURI: fields["TrackURI"]}
	if d, err := ParseDuration(fields["TrackDuration"]); err == nil {
		info.Duration = d
	}
	if p, err := ParseDuration(fields["RelTime"]); err == nil {
		info.Position = p
	}
	return info, nil
}

// MediaInfo fetches what the renderer believes is loaded.
func (t *AVTransport) MediaInfo(ctx context.Context) (MediaInfo, error) {
	fields, err := t.client.Invoke(ctx, t.controlURL, AVTransportServiceType, "GetMediaInfo", []Arg{
		{"InstanceID", instanceID},
	})
	if err != nil {
		return MediaInfo{}, err
	}
	info := MediaInfo{CurrentURI: fields["CurrentURI"]}
	if d, err := ParseDuration(fields["MediaDuration"]); err == nil {
		info.Duration = d
	}
	return info, nil
}
