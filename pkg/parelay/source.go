package parelay

import (
	"fmt"
	"net"
	"sync"

	"github.com/jfreymuth/pulse/proto"
	"go.uber.org/zap"
)

// pulseSource adapts the PulseAudio native-protocol client to the relay: it
// is the single place where protocol-shaped replies and events are narrowed
// into the snapshot and event types handlers consume. The proto client
// invokes Callback serially on its receive goroutine, which gives the relay
// its serial-delivery guarantee for free.
type pulseSource struct {
	logger *zap.SugaredLogger

	client *proto.Client
	conn   net.Conn
	relay  *Relay

	lock            sync.Mutex
	subscriptionCtx RegistrationContext
	subscribed      bool
}

func newPulseSource(logger *zap.SugaredLogger, relay *Relay, serverAddress string, applicationName string) (*pulseSource, error) {
	client, conn, err := proto.Connect(serverAddress)
	if err != nil {
		logger.Warnw("Failed to establish PulseAudio connection", "error", err)
		return nil, fmt.Errorf("establish PulseAudio connection: %w", err)
	}

	request := proto.SetClientName{
		Props: proto.PropList{
			"application.name": proto.PropListString(applicationName),
		},
	}
	reply := proto.SetClientNameReply{}

	if err := client.Request(&request, &reply); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set client name: %w", err)
	}

	s := &pulseSource{
		logger: logger.Named("source"),
		client: client,
		conn:   conn,
		relay:  relay,
	}

	client.Callback = func(msg interface{}) {
		switch msg := msg.(type) {
		case *proto.SubscribeEvent:
			s.dispatchEvent(msg)
		}
	}

	s.logger.Debug("Created PulseAudio event source instance")

	return s, nil
}

// dispatchEvent runs on the proto client's receive goroutine. It must return
// promptly and must not issue requests on the same client (the reply would
// never be read).
func (s *pulseSource) dispatchEvent(msg *proto.SubscribeEvent) {
	s.lock.Lock()
	ctx := s.subscriptionCtx
	subscribed := s.subscribed
	s.lock.Unlock()

	if !subscribed {
		return
	}

	s.relay.RelaySubscriptionEvent(EventType(msg.Event), msg.Index, ctx)
}

// Subscribe asks the server for change events matching the given facilities
// (all facilities when empty) and threads ctx through every resulting
// notification. Calling it again replaces the previous subscription.
func (s *pulseSource) Subscribe(facilities []EventFacility, ctx RegistrationContext) error {
	s.lock.Lock()
	s.subscriptionCtx = ctx
	s.subscribed = true
	s.lock.Unlock()

	mask := subscriptionMask(facilities)

	if err := s.client.Request(&proto.Subscribe{Mask: mask}, nil); err != nil {
		s.logger.Warnw("Failed to subscribe to PulseAudio events", "error", err, "mask", mask)
		return fmt.Errorf("subscribe to PulseAudio events: %w", err)
	}

	s.logger.Debugw("Subscribed to PulseAudio events", "facilities", facilities, "context", ctx)

	return nil
}

// Cards enumerates all sound cards and replays them through the relay: one
// device notification per card, in server order, then the terminal
// end-of-list call.
func (s *pulseSource) Cards(ctx RegistrationContext) error {
	request := proto.GetCardInfoList{}
	reply := proto.GetCardInfoListReply{}

	if err := s.client.Request(&request, &reply); err != nil {
		s.logger.Warnw("Failed to get card list", "error", err)
		return fmt.Errorf("get card list: %w", err)
	}

	for _, info := range reply {
		s.relay.RelayDeviceInfo(deviceInfoFromProto(info), false, ctx)
	}

	s.relay.RelayDeviceInfo(nil, true, ctx)

	return nil
}

// Sinks enumerates all sinks and replays them through the relay, ending with
// the terminal end-of-list call.
func (s *pulseSource) Sinks(ctx RegistrationContext) error {
	request := proto.GetSinkInfoList{}
	reply := proto.GetSinkInfoListReply{}

	if err := s.client.Request(&request, &reply); err != nil {
		s.logger.Warnw("Failed to get sink list", "error", err)
		return fmt.Errorf("get sink list: %w", err)
	}

	for _, info := range reply {
		s.relay.RelayEndpointInfo(endpointInfoFromProto(info), false, ctx)
	}

	s.relay.RelayEndpointInfo(nil, true, ctx)

	return nil
}

func (s *pulseSource) Release() error {
	if err := s.conn.Close(); err != nil {
		s.logger.Warnw("Failed to close PulseAudio connection", "error", err)
		return fmt.Errorf("close PulseAudio connection: %w", err)
	}

	s.logger.Debug("Released PulseAudio event source instance")

	return nil
}

func subscriptionMask(facilities []EventFacility) proto.SubscriptionMask {
	if len(facilities) == 0 {
		return proto.SubscriptionMaskAll
	}

	var mask proto.SubscriptionMask

	for _, facility := range facilities {
		switch facility {
		case FacilitySink:
			mask |= proto.SubscriptionMaskSink
		case FacilitySource:
			mask |= proto.SubscriptionMaskSource
		case FacilitySinkInput:
			mask |= proto.SubscriptionMaskSinkInput
		case FacilitySourceOutput:
			// the library calls the source-output bit "SourceInput"
			mask |= proto.SubscriptionMaskSourceInput
		case FacilityModule:
			mask |= proto.SubscriptionMaskModule
		case FacilityClient:
			mask |= proto.SubscriptionMaskClient
		case FacilitySampleCache:
			mask |= proto.SubscriptionMaskSampleCache
		case FacilityServer:
			mask |= proto.SubscriptionMaskServer
		case FacilityAutoload:
			mask |= proto.SubscriptionMaskAutoload
		case FacilityCard:
			mask |= proto.SubscriptionMaskCard
		}
	}

	return mask
}

func deviceInfoFromProto(info *proto.GetCardInfoReply) *DeviceInfo {
	device := &DeviceInfo{
		Index:         info.CardIndex,
		Name:          info.CardName,
		Driver:        info.Driver,
		ActiveProfile: info.ActiveProfileName,
		Properties:    propertiesFromProto(info.Properties),
	}

	for _, profile := range info.Profiles {
		device.Profiles = append(device.Profiles, ProfileInfo{
			Name:        profile.Name,
			Description: profile.Description,
			SinkCount:   profile.NumSinks,
			SourceCount: profile.NumSources,
			Priority:    profile.Priority,
			Available:   profile.Available != 0,
		})
	}

	return device
}

func endpointInfoFromProto(info *proto.GetSinkInfoReply) *EndpointInfo {
	endpoint := &EndpointInfo{
		Index:       info.SinkIndex,
		Name:        info.SinkName,
		Description: info.Device,
		Channels:    uint8(info.Channels),
		Mute:        info.Mute,
		Properties:  propertiesFromProto(info.Properties),
	}

	for _, volume := range info.ChannelVolumes {
		endpoint.Volumes = append(endpoint.Volumes, uint32(volume))
	}

	return endpoint
}

func propertiesFromProto(props proto.PropList) map[string]string {
	if len(props) == 0 {
		return nil
	}

	properties := make(map[string]string, len(props))

	for key, value := range props {
		properties[key] = value.String()
	}

	return properties
}
