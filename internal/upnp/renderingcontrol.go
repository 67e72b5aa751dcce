// ABOUTME: RenderingControl service façade: volume and mute operations
// ABOUTME: Values clamp to the renderer's 0-100 master channel scale
package upnp

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const masterChannel = "Master"

// RenderingControl drives one renderer's rendering control endpoint.
type RenderingControl struct {
	client     *Client
	controlURL string
}

// NewRenderingControl binds the façade to a control URL.
func NewRenderingControl(client *Client, controlURL string) *RenderingControl {
	return &RenderingControl{client: client, controlURL: controlURL}
}

// SetVolume sets the master volume, clamping v to 0-100.
func (r *RenderingControl) SetVolume(ctx context.Context, v int) error {
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	_, err := r.client.Invoke(ctx, r.controlURL, RenderingControlServiceType, "SetVolume", []Arg{
		{"InstanceID", instanceID},
		{"Channel", masterChannel},
		{"DesiredVolume", strconv.Itoa(v)},
	})
	return err
}

// Volume reads the master volume (0-100).
func (r *RenderingControl) Volume(ctx context.Context) (int, error) {
	fields, err := r.client.Invoke(ctx, r.controlURL, RenderingControlServiceType, "GetVolume", []Arg{
		{"InstanceID", instanceID},
		{"Channel", masterChannel},
	})
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(fields["CurrentVolume"]))
	if err != nil {
		return 0, fmt.Errorf("bad CurrentVolume %q: %w", fields["CurrentVolume"], err)
	}
	return v, nil
}

// SetMute sets the master mute flag.
func (r *RenderingControl) SetMute(ctx context.Context, muted bool) error {
	val := "0"
	if muted {
		val = "1"
	}
	_, err := r.client.Invoke(ctx, r.controlURL, RenderingControlServiceType, "SetMute", []Arg{
		{"InstanceID", instanceID},
		{"Channel", masterChannel},
		{"DesiredMute", val},
	})
	return err
}

// Mute reads the master mute flag; renderers answer 1/0 or true/false.
func (r *RenderingControl) Mute(ctx context.Context) (bool, error) {
	fields, err := r.client.Invoke(ctx, r.controlURL, RenderingControlServiceType, "GetMute", []Arg{
		{"InstanceID", instanceID},
		{"Channel", masterChannel},
	})
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(fields["CurrentMute"])) {
	case "1", "true", "yes":
		return true, nil
	default:
		return false, nil
	}
}
