// ABOUTME: Playback destination descriptors covering local and network targets
// ABOUTME: Keys stay stable across discovery refreshes for switch targeting
package app

import (
	"github.com/harperreed/castbridge/internal/discovery"
)

// DestinationKind separates the machine's own output from renderers.
type DestinationKind int

const (
	DestinationLocal DestinationKind = iota
	DestinationNetwork
)

// Destination identifies one playback target. Local destinations carry the
// output device pair; network ones carry the discovered renderer.
type Destination struct {
	Kind      DestinationKind
	LocalID   string
	LocalName string
	Device    discovery.Device
}

func (d Destination) String() string {
	if d.Kind == DestinationLocal {
		return d.LocalName
	}
	return d.Device.FriendlyName
}

// Key names the target uniquely and survives re-discovery of the same
// renderer.
func (d Destination) Key() string {
	if d.Kind == DestinationLocal {
		return "local:" + d.LocalID
	}
	return "network:" + d.Device.ID
}
