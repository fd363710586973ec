package gb28181

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gb28181-simulator/pkg/config"
)

func TestChannelIDGenerationDeterministic(t *testing.T) {
	a := NewRegistry(config.DefaultDeviceID, 4, []string{"rtsp://src"})
	b := NewRegistry(config.DefaultDeviceID, 4, []string{"rtsp://src"})

	for i := range a.All() {
		assert.Equal(t, a.All()[i].ID, b.All()[i].ID)
	}
}

func TestChannelIDsDistinct(t *testing.T) {
	r := NewRegistry(config.DefaultDeviceID, 16, []string{"rtsp://src"})
	seen := map[string]bool{}
	for _, ch := range r.All() {
		assert.Len(t, ch.ID, 20)
		assert.False(t, seen[ch.ID], "duplicate channel id %s", ch.ID)
		seen[ch.ID] = true
	}
}

func TestChannelIDDerivedFromDevicePrefix(t *testing.T) {
	r := NewRegistry("34020000001320000001", 2, []string{"rtsp://src"})
	assert.Equal(t, "34020000001320000132", r.All()[0].ID)
	assert.Equal(t, "34020000001320000133", r.All()[1].ID)
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry(config.DefaultDeviceID, 4, []string{"rtsp://a", "rtsp://b"})

	ch, ok := r.Find(r.All()[2].ID)
	require.True(t, ok)
	assert.Equal(t, "Elevator 1", ch.Name)
	assert.Equal(t, "rtsp://a", ch.SourceURL)

	_, ok = r.Find("99999999999999999999")
	assert.False(t, ok)

	assert.Equal(t, r.All()[0].ID, r.First().ID)
	assert.Equal(t, 4, r.Count())
}

func TestChannelMetadata(t *testing.T) {
	r := NewRegistry(config.DefaultDeviceID, 3, []string{"rtsp://src"})
	for i, ch := range r.All() {
		assert.Equal(t, "TestDevice", ch.Manufacturer)
		assert.Equal(t, "ON", ch.Status)
		if i%2 == 0 {
			assert.Equal(t, 1, ch.PTZType)
		} else {
			assert.Equal(t, 0, ch.PTZType)
		}
	}
}

func TestChannelNamesPastFixedList(t *testing.T) {
	r := NewRegistry(config.DefaultDeviceID, 20, []string{"rtsp://src"})
	assert.Equal(t, "Channel 17", r.All()[16].Name)
}
