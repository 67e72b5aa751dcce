// ABOUTME: Observer event schema for the /status and /events surfaces
// ABOUTME: JSON types shared by the media server, controller, and UIs
package protocol

// Event types carried on the /events feed.
const (
	EventState       = "state"
	EventDeviceAdded = "device/added"
)

// Event is the top-level wrapper for all feed messages.
type Event struct {
	Type   string         `json:"type"`
	State  *StateSnapshot `json:"state,omitempty"`
	Device *DeviceInfo    `json:"device,omitempty"`
}

// StateSnapshot is a point-in-time view of the controller, also served
// at /status.
type StateSnapshot struct {
	State         string  `json:"state"` // "stopped", "playing" or "paused"
	Title         string  `json:"title,omitempty"`
	Position      float64 `json:"position"` // seconds
	Duration      float64 `json:"duration"` // seconds, 0 when unknown
	Volume        float64 `json:"volume"`   // 0.0-1.0
	Destination   string  `json:"destination"`
	Mode          string  `json:"mode"`
	PlaylistIndex int     `json:"playlist_index"` // -1 when empty
	PlaylistCount int     `json:"playlist_count"`
	Format        string  `json:"format,omitempty"`
}

// DeviceInfo describes a discovered renderer.
type DeviceInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
	Location     string `json:"location,omitempty"`
}

// NewStateEvent wraps a snapshot for broadcast.
func NewStateEvent(s StateSnapshot) Event {
	return Event{Type: EventState, State: &s}
}

// NewDeviceAddedEvent wraps a renderer announcement for broadcast.
func NewDeviceAddedEvent(d DeviceInfo) Event {
	return Event{Type: EventDeviceAdded, Device: &d}
}
