package parelay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// After stop, the refresh worker is gone but the queue stays open: a trailing
// notification that slips in behind Deregister must queue or drop, never
// panic. Simulate the worst case - no consumer, queue already full.
func TestParelay_TrailingEventsAfterStopAreSafe(t *testing.T) {
	p := &Parelay{
		logger:             testLogger(),
		refreshChannel:     make(chan deviceChange, 1),
		stopRefreshChannel: make(chan bool),
	}

	event := EventType(uint32(FacilityCard) | uint32(ActionNew))

	assert.NotPanics(t, func() {
		p.onSubscriptionEvent(event, 1, p.registration)
		p.onSubscriptionEvent(event, 2, p.registration)
		p.onSubscriptionEvent(event, 3, p.registration)
	})

	// first one queued, the rest dropped by the non-blocking send
	assert.Len(t, p.refreshChannel, 1)
}

func TestParelay_NonDeviceEventsNotQueued(t *testing.T) {
	p := &Parelay{
		logger:         testLogger(),
		refreshChannel: make(chan deviceChange, refreshQueueSize),
	}

	p.onSubscriptionEvent(EventType(uint32(FacilityClient)|uint32(ActionNew)), 1, p.registration)
	p.onSubscriptionEvent(EventType(uint32(FacilityModule)|uint32(ActionRemove)), 2, p.registration)

	assert.Len(t, p.refreshChannel, 0)
}
