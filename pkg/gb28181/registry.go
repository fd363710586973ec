package gb28181

import "fmt"

// Channel is one simulated camera channel. Channels are created once at
// startup and immutable thereafter.
type Channel struct {
	ID           string
	Name         string
	Manufacturer string
	Model        string
	Status       string
	SourceURL    string
	PTZType      int
}

var channelNames = []string{
	"Main Entrance", "Parking Lot A", "Elevator 1", "Main Hall",
	"Rear Gate", "Parking Lot B", "Elevator 2", "Conference Room",
	"Front Desk", "Warehouse", "Stairwell", "Rooftop",
	"Basement", "Server Room", "Fire Exit", "Duty Office",
}

// Registry holds the fixed channel set and the device identity they hang off.
type Registry struct {
	channels []Channel
	byID     map[string]*Channel
}

// NewRegistry derives count channels from the device id: the first 14 digits
// of the device code plus a six-digit suffix starting at 132. Generation is
// deterministic, so channel ids are stable across restarts of the same
// device id.
func NewRegistry(deviceID string, count int, sources []string) *Registry {
	base := deviceID[:14]
	channels := make([]Channel, 0, count)
	for i := 0; i < count; i++ {
		name := fmt.Sprintf("Channel %d", i+1)
		if i < len(channelNames) {
			name = channelNames[i]
		}
		ptz := 0
		if i%2 == 0 {
			ptz = 1
		}
		channels = append(channels, Channel{
			ID:           fmt.Sprintf("%s%06d", base, 132+i),
			Name:         name,
			Manufacturer: "TestDevice",
			Model:        fmt.Sprintf("IPC-%d", 1000+i),
			Status:       "ON",
			SourceURL:    sources[i%len(sources)],
			PTZType:      ptz,
		})
	}

	byID := make(map[string]*Channel, len(channels))
	for i := range channels {
		byID[channels[i].ID] = &channels[i]
	}
	return &Registry{channels: channels, byID: byID}
}

// Find returns the channel with the given id.
func (r *Registry) Find(id string) (*Channel, bool) {
	ch, ok := r.byID[id]
	return ch, ok
}

// First returns the fallback channel used when an INVITE carries no
// resolvable channel id.
func (r *Registry) First() *Channel {
	return &r.channels[0]
}

// All returns the channel set in creation order.
func (r *Registry) All() []Channel {
	return r.channels
}

// Count returns the number of channels.
func (r *Registry) Count() int {
	return len(r.channels)
}
