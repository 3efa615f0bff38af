// Package parelay relays PulseAudio server notifications - card and sink
// snapshots and subscription change events - from the server's dispatch
// stream into registered host handlers.
package parelay

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/parelay/parelay/pkg/parelay/util"
)

// Parelay is the main entity managing all subcomponents
type Parelay struct {
	logger    *zap.SugaredLogger
	notifier  Notifier
	configMan *ConfigManager
	relay     *Relay
	source    *pulseSource

	registration RegistrationContext

	refreshChannel     chan deviceChange
	stopRefreshChannel chan bool
	stopChannel        chan bool
	version            string
	verbose            bool
}

// deviceChange is queued by the subscription handler and consumed off the
// dispatch goroutine, where issuing follow-up requests is safe.
type deviceChange struct {
	event EventType
	index uint32
}

const refreshQueueSize = 16

func NewParelay(logger *zap.SugaredLogger, verbose bool) (*Parelay, error) {
	logger = logger.Named("parelay")

	notifier, err := NewDesktopNotifier(logger)
	if err != nil {
		logger.Errorw("Failed to create DesktopNotifier", "error", err)
		return nil, fmt.Errorf("create new DesktopNotifier: %w", err)
	}

	config, err := NewConfig(logger, notifier)
	if err != nil {
		logger.Errorw("Failed to create Config", "error", err)
		return nil, fmt.Errorf("create new Config: %w", err)
	}

	p := &Parelay{
		logger:         logger,
		notifier:       notifier,
		configMan:      config,
		relay:          NewRelay(logger),
		refreshChannel:     make(chan deviceChange, refreshQueueSize),
		stopRefreshChannel: make(chan bool),
		stopChannel:        make(chan bool),
		verbose:            verbose,
	}

	logger.Debug("Created parelay instance")

	return p, nil
}

func (p *Parelay) currConf() *Config {
	return &p.configMan.current
}

// Initialize sets up components and starts to run in the background
func (p *Parelay) Initialize() error {
	p.logger.Debug("Initializing")

	// load the config for the first time
	if err := p.configMan.Load(); err != nil {
		p.logger.Errorw("Failed to load config during initialization", "error", err)
		return fmt.Errorf("load config during init: %w", err)
	}

	// config problems above still surface on the desktop; only runtime
	// notifications get silenced
	if p.currConf().NoNotifications {
		p.logger.Debug("Desktop notifications disabled in config")
		p.notifier = &NopNotifier{}
	}

	source, err := newPulseSource(p.logger, p.relay, p.currConf().ServerAddress, p.currConf().ApplicationName)
	if err != nil {
		p.logger.Errorw("Failed to create PulseAudio event source", "error", err)
		return fmt.Errorf("create new PulseAudio event source: %w", err)
	}

	p.source = source
	p.registration = p.relay.Register(p.handlers())

	if err := p.source.Subscribe(p.currConf().SubscriptionFacilities, p.registration); err != nil {
		p.logger.Errorw("Failed to subscribe to server events", "error", err)
		return fmt.Errorf("subscribe to server events: %w", err)
	}

	// take the initial inventory before any change events roll in
	if err := p.refreshInventory(); err != nil {
		p.logger.Errorw("Failed to take initial device inventory", "error", err)
		return fmt.Errorf("take initial device inventory: %w", err)
	}

	p.setupInterruptHandler()
	p.setupOnConfigReload()
	p.setupRefreshWorker()

	p.run()

	return nil
}

// SetVersion causes parelay to log a version string if called before Initialize
func (p *Parelay) SetVersion(version string) {
	p.version = version
}

// Verbose returns a boolean indicating whether parelay is running in verbose mode
func (p *Parelay) Verbose() bool {
	return p.verbose
}

func (p *Parelay) handlers() Handlers {
	return Handlers{
		OnDeviceInfo:        p.onDeviceInfo,
		OnEndpointInfo:      p.onEndpointInfo,
		OnSubscriptionEvent: p.onSubscriptionEvent,
	}
}

func (p *Parelay) onDeviceInfo(info *DeviceInfo, endOfList bool, ctx RegistrationContext) {
	if endOfList {
		p.logger.Debugw("Device enumeration complete", "context", ctx)
		return
	}

	p.logger.Infow("Device",
		"index", info.Index,
		"name", info.Name,
		"driver", info.Driver,
		"activeProfile", info.ActiveProfile)
}

func (p *Parelay) onEndpointInfo(info *EndpointInfo, endOfList bool, ctx RegistrationContext) {
	if endOfList {
		p.logger.Debugw("Endpoint enumeration complete", "context", ctx)
		return
	}

	p.logger.Infow("Endpoint",
		"index", info.Index,
		"name", info.Name,
		"description", info.Description,
		"volume", info.VolumeFraction(),
		"mute", info.Mute)
}

// onSubscriptionEvent runs on the event source's dispatch goroutine, so it
// only queues work; the refresh worker does the actual follow-up requests
func (p *Parelay) onSubscriptionEvent(event EventType, index uint32, ctx RegistrationContext) {
	p.logger.Debugw("Subscription event", "event", event.String(), "index", index, "context", ctx)

	switch event.Facility() {
	case FacilitySink, FacilityCard:
		select {
		case p.refreshChannel <- deviceChange{event: event, index: index}:
		default:
			p.logger.Warnw("Refresh queue full, dropping follow-up", "event", event.String(), "index", index)
		}
	}
}

func (p *Parelay) setupRefreshWorker() {
	go func() {
		defer p.recoverFromPanic()

		for {
			select {
			case change := <-p.refreshChannel:
				p.handleDeviceChange(change)
			case <-p.stopRefreshChannel:
				p.logger.Debug("Stopping refresh worker")
				return
			}
		}
	}()
}

func (p *Parelay) handleDeviceChange(change deviceChange) {
	switch change.event.Facility() {
	case FacilityCard:
		if err := p.source.Cards(p.registration); err != nil {
			p.logger.Warnw("Failed to refresh cards after change event", "error", err)
		}

		if p.currConf().NotifyOnDeviceChange {
			switch change.event.Action() {
			case ActionNew:
				p.notifier.Notify("Audio device added",
					fmt.Sprintf("A new audio device (#%d) is available.", change.index))
			case ActionRemove:
				p.notifier.Notify("Audio device removed",
					fmt.Sprintf("Audio device #%d is gone.", change.index))
			}
		}
	case FacilitySink:
		if err := p.source.Sinks(p.registration); err != nil {
			p.logger.Warnw("Failed to refresh sinks after change event", "error", err)
		}
	}
}

func (p *Parelay) refreshInventory() error {
	if err := p.source.Cards(p.registration); err != nil {
		return fmt.Errorf("enumerate cards: %w", err)
	}

	if err := p.source.Sinks(p.registration); err != nil {
		return fmt.Errorf("enumerate sinks: %w", err)
	}

	return nil
}

func (p *Parelay) setupOnConfigReload() {
	configReloadedChannel := p.configMan.SubscribeToChanges()

	go func() {
		defer p.recoverFromPanic()

		for range configReloadedChannel {
			p.logger.Info("Detected config reload, re-subscribing with new facilities")

			if err := p.source.Subscribe(p.currConf().SubscriptionFacilities, p.registration); err != nil {
				p.logger.Warnw("Failed to re-subscribe after config reload", "error", err)
			}

			if err := p.refreshInventory(); err != nil {
				p.logger.Warnw("Failed to refresh inventory after config reload", "error", err)
			}
		}
	}()
}

func (p *Parelay) setupInterruptHandler() {
	interruptChannel := util.SetupCloseHandler()

	go func() {
		signal := <-interruptChannel
		p.logger.Debugw("Interrupted", "signal", signal)
		p.signalStop()
	}()
}

func (p *Parelay) run() {
	p.logger.Info("Run loop starting")

	if p.version != "" {
		p.logger.Infow("Running", "version", p.version)
	}

	go p.configMan.WatchConfigFileChanges()

	// wait until gracefully stopped
	<-p.stopChannel
	p.logger.Debug("Stop channel signaled, terminating")

	if err := p.stop(); err != nil {
		p.logger.Warnw("Failed to stop parelay", "error", err)
		os.Exit(1)
	} else {
		os.Exit(0)
	}
}

func (p *Parelay) signalStop() {
	p.logger.Debug("Signalling stop channel")
	p.stopChannel <- true
}

func (p *Parelay) stop() error {
	p.logger.Info("Stopping")

	p.configMan.StopWatchingConfigFile()
	p.relay.Deregister(p.registration)

	// signal rather than close: a trailing notification may still queue a
	// refresh after deregistration, and that send must stay harmless
	p.stopRefreshChannel <- true

	if err := p.source.Release(); err != nil {
		p.logger.Errorw("Failed to release event source", "error", err)
		return fmt.Errorf("release event source: %w", err)
	}

	// attempt to sync on exit - this won't necessarily work but can't harm
	_ = p.logger.Sync()

	return nil
}
