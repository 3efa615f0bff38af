package parelay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventType_FacilityAndAction(t *testing.T) {
	tests := []struct {
		name         string
		event        EventType
		wantFacility EventFacility
		wantAction   EventAction
		wantString   string
	}{
		{
			name:         "sink new",
			event:        EventType(uint32(FacilitySink) | uint32(ActionNew)),
			wantFacility: FacilitySink,
			wantAction:   ActionNew,
			wantString:   "sink/new",
		},
		{
			name:         "card removed",
			event:        EventType(uint32(FacilityCard) | uint32(ActionRemove)),
			wantFacility: FacilityCard,
			wantAction:   ActionRemove,
			wantString:   "card/remove",
		},
		{
			name:         "sink input changed",
			event:        EventType(uint32(FacilitySinkInput) | uint32(ActionChange)),
			wantFacility: FacilitySinkInput,
			wantAction:   ActionChange,
			wantString:   "sink-input/change",
		},
		{
			name:         "server changed",
			event:        EventType(uint32(FacilityServer) | uint32(ActionChange)),
			wantFacility: FacilityServer,
			wantAction:   ActionChange,
			wantString:   "server/change",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantFacility, tt.event.Facility())
			assert.Equal(t, tt.wantAction, tt.event.Action())
			assert.Equal(t, tt.wantString, tt.event.String())
		})
	}
}

func TestFacilityByName(t *testing.T) {
	facility, ok := FacilityByName("card")
	require.True(t, ok)
	assert.Equal(t, FacilityCard, facility)

	facility, ok = FacilityByName("sink")
	require.True(t, ok)
	assert.Equal(t, FacilitySink, facility)

	_, ok = FacilityByName("subwoofer")
	assert.False(t, ok)
}

func TestFacilityNamesRoundTrip(t *testing.T) {
	for facility, name := range facilityNames {
		resolved, ok := FacilityByName(name)
		require.True(t, ok, "name %q should resolve", name)
		assert.Equal(t, facility, resolved)
		assert.Equal(t, name, facility.String())
	}
}

func TestEndpointInfo_VolumeFraction(t *testing.T) {
	endpoint := &EndpointInfo{Volumes: []uint32{volumeNorm / 2, volumeNorm}}
	assert.InDelta(t, 0.5, endpoint.VolumeFraction(), 0.0001)

	boosted := &EndpointInfo{Volumes: []uint32{volumeNorm + volumeNorm/2}}
	assert.InDelta(t, 1.5, boosted.VolumeFraction(), 0.0001)

	empty := &EndpointInfo{}
	assert.Equal(t, float32(0), empty.VolumeFraction())
}
