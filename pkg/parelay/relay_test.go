package parelay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

type capturedDevice struct {
	info      *DeviceInfo
	endOfList bool
	ctx       RegistrationContext
}

type capturedEvent struct {
	event EventType
	index uint32
	ctx   RegistrationContext
}

func TestRelay_RegisterAllocatesDistinctContexts(t *testing.T) {
	r := NewRelay(testLogger())

	first := r.Register(Handlers{})
	second := r.Register(Handlers{})

	assert.NotEqual(t, first, second)
	assert.True(t, r.Deregister(first))
	assert.True(t, r.Deregister(second))
	assert.False(t, r.Deregister(first))
}

func TestRelay_DeviceInfoPassthrough(t *testing.T) {
	r := NewRelay(testLogger())

	var got capturedDevice
	ctx := r.Register(Handlers{
		OnDeviceInfo: func(info *DeviceInfo, endOfList bool, ctx RegistrationContext) {
			got = capturedDevice{info: info, endOfList: endOfList, ctx: ctx}
		},
	})

	snapshot := &DeviceInfo{Index: 7, Name: "alsa_card.pci-0000_00_1f.3"}
	r.RelayDeviceInfo(snapshot, false, ctx)

	// identity passthrough: same snapshot pointer, same context, no transformation
	assert.Same(t, snapshot, got.info)
	assert.False(t, got.endOfList)
	assert.Equal(t, ctx, got.ctx)
}

func TestRelay_EndOfListSequence(t *testing.T) {
	r := NewRelay(testLogger())

	var calls []capturedDevice
	ctx := r.Register(Handlers{
		OnDeviceInfo: func(info *DeviceInfo, endOfList bool, ctx RegistrationContext) {
			calls = append(calls, capturedDevice{info: info, endOfList: endOfList, ctx: ctx})
		},
	})

	snapshot := &DeviceInfo{Index: 0, Name: "card0"}
	r.RelayDeviceInfo(snapshot, false, ctx)
	r.RelayDeviceInfo(nil, true, ctx)

	require.Len(t, calls, 2)
	assert.Same(t, snapshot, calls[0].info)
	assert.False(t, calls[0].endOfList)
	assert.Nil(t, calls[1].info)
	assert.True(t, calls[1].endOfList)
}

func TestRelay_SubscriptionEventPassthrough(t *testing.T) {
	r := NewRelay(testLogger())

	var got capturedEvent
	ctx := r.Register(Handlers{
		OnSubscriptionEvent: func(event EventType, index uint32, ctx RegistrationContext) {
			got = capturedEvent{event: event, index: index, ctx: ctx}
		},
	})

	event := EventType(uint32(FacilitySink) | uint32(ActionChange))
	r.RelaySubscriptionEvent(event, 3, ctx)

	assert.Equal(t, event, got.event)
	assert.Equal(t, uint32(3), got.index)
	assert.Equal(t, ctx, got.ctx)
}

func TestRelay_MalformedNotificationDropped(t *testing.T) {
	r := NewRelay(testLogger())

	invoked := 0
	ctx := r.Register(Handlers{
		OnDeviceInfo: func(info *DeviceInfo, endOfList bool, ctx RegistrationContext) {
			invoked++
		},
		OnEndpointInfo: func(info *EndpointInfo, endOfList bool, ctx RegistrationContext) {
			invoked++
		},
	})

	// nil snapshot without the end-of-list marker, and vice versa
	r.RelayDeviceInfo(nil, false, ctx)
	r.RelayDeviceInfo(&DeviceInfo{}, true, ctx)
	r.RelayEndpointInfo(nil, false, ctx)
	r.RelayEndpointInfo(&EndpointInfo{}, true, ctx)

	assert.Equal(t, 0, invoked)
}

func TestRelay_UnknownContextDropped(t *testing.T) {
	r := NewRelay(testLogger())

	invoked := 0
	r.Register(Handlers{
		OnDeviceInfo: func(info *DeviceInfo, endOfList bool, ctx RegistrationContext) {
			invoked++
		},
	})

	assert.NotPanics(t, func() {
		r.RelayDeviceInfo(&DeviceInfo{}, false, RegistrationContext(999))
		r.RelaySubscriptionEvent(EventType(uint32(FacilityCard)|uint32(ActionNew)), 1, RegistrationContext(999))
	})

	assert.Equal(t, 0, invoked)
}

func TestRelay_PanicContainment(t *testing.T) {
	r := NewRelay(testLogger())

	deviceCalls := 0
	endpointCalls := 0
	ctx := r.Register(Handlers{
		OnDeviceInfo: func(info *DeviceInfo, endOfList bool, ctx RegistrationContext) {
			deviceCalls++
		},
		OnEndpointInfo: func(info *EndpointInfo, endOfList bool, ctx RegistrationContext) {
			endpointCalls++
			panic("handler exploded")
		},
	})

	require.NotPanics(t, func() {
		r.RelayEndpointInfo(&EndpointInfo{Index: 1}, false, ctx)
	})

	// containment is per-call: an unrelated notification right after must go through
	r.RelayDeviceInfo(&DeviceInfo{Index: 2}, false, ctx)
	assert.Equal(t, 1, deviceCalls)

	// and so must the next notification of the failing kind
	require.NotPanics(t, func() {
		r.RelayEndpointInfo(&EndpointInfo{Index: 3}, false, ctx)
	})
	assert.Equal(t, 2, endpointCalls)
}

func TestRelay_DeregisterStopsDelivery(t *testing.T) {
	r := NewRelay(testLogger())

	invoked := 0
	ctx := r.Register(Handlers{
		OnSubscriptionEvent: func(event EventType, index uint32, ctx RegistrationContext) {
			invoked++
		},
	})

	event := EventType(uint32(FacilityCard) | uint32(ActionRemove))
	r.RelaySubscriptionEvent(event, 4, ctx)
	require.Equal(t, 1, invoked)

	require.True(t, r.Deregister(ctx))

	r.RelaySubscriptionEvent(event, 4, ctx)
	assert.Equal(t, 1, invoked)
}

func TestRelay_NilHandlersDiscardQuietly(t *testing.T) {
	r := NewRelay(testLogger())

	// registration with no handlers at all
	ctx := r.Register(Handlers{})

	assert.NotPanics(t, func() {
		r.RelayDeviceInfo(&DeviceInfo{}, false, ctx)
		r.RelayEndpointInfo(nil, true, ctx)
		r.RelaySubscriptionEvent(EventType(uint32(FacilityServer)|uint32(ActionChange)), 0, ctx)
	})
}
