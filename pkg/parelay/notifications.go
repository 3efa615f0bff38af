package parelay

// EventFacility identifies the kind of server object an event refers to.
// Values match the facility nibble of the native protocol's subscription
// event encoding.
type EventFacility uint32

const (
	FacilitySink EventFacility = iota
	FacilitySource
	FacilitySinkInput
	FacilitySourceOutput
	FacilityModule
	FacilityClient
	FacilitySampleCache
	FacilityServer
	FacilityAutoload
	FacilityCard
)

// EventAction identifies what happened to the object an event refers to.
type EventAction uint32

const (
	ActionNew    EventAction = 0x0000
	ActionChange EventAction = 0x0010
	ActionRemove EventAction = 0x0020
)

const (
	eventFacilityMask = 0x000f
	eventActionMask   = 0x0030
)

// EventType is a subscription event classification: a facility combined with
// an action, encoded the way the server encodes them on the wire.
type EventType uint32

func (t EventType) Facility() EventFacility {
	return EventFacility(t & eventFacilityMask)
}

func (t EventType) Action() EventAction {
	return EventAction(t & eventActionMask)
}

var facilityNames = map[EventFacility]string{
	FacilitySink:         "sink",
	FacilitySource:       "source",
	FacilitySinkInput:    "sink-input",
	FacilitySourceOutput: "source-output",
	FacilityModule:       "module",
	FacilityClient:       "client",
	FacilitySampleCache:  "sample-cache",
	FacilityServer:       "server",
	FacilityAutoload:     "autoload",
	FacilityCard:         "card",
}

func (f EventFacility) String() string {
	if name, ok := facilityNames[f]; ok {
		return name
	}

	return "unknown"
}

func (a EventAction) String() string {
	switch a {
	case ActionNew:
		return "new"
	case ActionChange:
		return "change"
	case ActionRemove:
		return "remove"
	default:
		return "unknown"
	}
}

func (t EventType) String() string {
	return t.Facility().String() + "/" + t.Action().String()
}

// FacilityByName resolves a configuration-friendly facility name ("sink",
// "card", ...) to its EventFacility value.
func FacilityByName(name string) (EventFacility, bool) {
	for facility, facilityName := range facilityNames {
		if facilityName == name {
			return facility, true
		}
	}

	return 0, false
}

// ProfileInfo describes one configuration profile of an audio device.
type ProfileInfo struct {
	Name        string
	Description string
	SinkCount   uint32
	SourceCount uint32
	Priority    uint32
	Available   bool
}

// DeviceInfo is a snapshot describing one audio card. It is owned by the
// event source for the duration of a single handler call - handlers must not
// retain it past their return.
type DeviceInfo struct {
	Index         uint32
	Name          string
	Driver        string
	Profiles      []ProfileInfo
	ActiveProfile string
	Properties    map[string]string
}

// EndpointInfo is a snapshot describing one audio sink. Same lifetime rule
// as DeviceInfo.
type EndpointInfo struct {
	Index       uint32
	Name        string
	Description string
	Channels    uint8
	Volumes     []uint32
	Mute        bool
	Properties  map[string]string
}

// volumeNorm is the server's "100%" volume value
const volumeNorm = 0x10000

// VolumeFraction returns the first channel's volume as a fraction of the
// normal volume (may exceed 1.0 for boosted sinks).
func (e *EndpointInfo) VolumeFraction() float32 {
	if len(e.Volumes) == 0 {
		return 0
	}

	return float32(e.Volumes[0]) / float32(volumeNorm)
}
