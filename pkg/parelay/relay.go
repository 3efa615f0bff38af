package parelay

import (
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

// RegistrationContext is an opaque handle correlating notifications with the
// registration that requested them. It is allocated by Relay.Register and
// threaded unchanged through every notification delivered for that
// registration; the relay never interprets it beyond registry lookup.
type RegistrationContext uint32

// DeviceInfoHandler consumes card snapshots. The snapshot is nil exactly when
// endOfList is true, marking the end of one enumeration sequence.
type DeviceInfoHandler func(info *DeviceInfo, endOfList bool, ctx RegistrationContext)

// EndpointInfoHandler consumes sink snapshots, with the same end-of-list
// contract as DeviceInfoHandler.
type EndpointInfoHandler func(info *EndpointInfo, endOfList bool, ctx RegistrationContext)

// SubscriptionEventHandler consumes server change events. Every call is a
// complete, self-contained notification.
type SubscriptionEventHandler func(event EventType, index uint32, ctx RegistrationContext)

// Handlers holds the host-side entry points for one registration. Nil
// handlers are allowed; notifications of that kind are silently discarded
// for the registration.
type Handlers struct {
	OnDeviceInfo        DeviceInfoHandler
	OnEndpointInfo      EndpointInfoHandler
	OnSubscriptionEvent SubscriptionEventHandler
}

// Relay forwards notifications from the event source's dispatch goroutine to
// registered host handlers. It holds no state beyond its registry, performs
// no I/O and never blocks: relay calls may safely run on the dispatch
// goroutine of the event source.
//
// The event source delivers serially, so relay operations never race with
// each other. Register and Deregister may be called from any goroutine.
type Relay struct {
	logger *zap.SugaredLogger

	lock          sync.RWMutex
	registrations map[RegistrationContext]Handlers
	nextContext   RegistrationContext
}

func NewRelay(logger *zap.SugaredLogger) *Relay {
	return &Relay{
		logger:        logger.Named("relay"),
		registrations: make(map[RegistrationContext]Handlers),
	}
}

// Register adds a set of handlers and returns the context handle that will
// accompany every notification delivered for them.
func (r *Relay) Register(handlers Handlers) RegistrationContext {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.nextContext++
	ctx := r.nextContext
	r.registrations[ctx] = handlers

	r.logger.Debugw("Registered notification handlers", "context", ctx)

	return ctx
}

// Deregister frees a registration. It reports whether the context was known.
// A notification already being dispatched when Deregister is called may still
// complete against the old handlers; callers must tolerate at most one such
// trailing call.
func (r *Relay) Deregister(ctx RegistrationContext) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.registrations[ctx]; !ok {
		return false
	}

	delete(r.registrations, ctx)
	r.logger.Debugw("Deregistered notification handlers", "context", ctx)

	return true
}

// RelayDeviceInfo forwards one card notification to the registration's device
// handler. The snapshot must be nil iff endOfList is true; malformed pairs
// are dropped, since forwarding them would break the handler contract.
func (r *Relay) RelayDeviceInfo(info *DeviceInfo, endOfList bool, ctx RegistrationContext) {
	if (info == nil) != endOfList {
		r.logger.Warnw("Dropping malformed device notification",
			"nilSnapshot", info == nil,
			"endOfList", endOfList,
			"context", ctx)

		return
	}

	handlers, ok := r.lookup(ctx)
	if !ok || handlers.OnDeviceInfo == nil {
		return
	}

	r.contain("device", ctx, func() {
		handlers.OnDeviceInfo(info, endOfList, ctx)
	})
}

// RelayEndpointInfo forwards one sink notification, with the same contract
// as RelayDeviceInfo.
func (r *Relay) RelayEndpointInfo(info *EndpointInfo, endOfList bool, ctx RegistrationContext) {
	if (info == nil) != endOfList {
		r.logger.Warnw("Dropping malformed endpoint notification",
			"nilSnapshot", info == nil,
			"endOfList", endOfList,
			"context", ctx)

		return
	}

	handlers, ok := r.lookup(ctx)
	if !ok || handlers.OnEndpointInfo == nil {
		return
	}

	r.contain("endpoint", ctx, func() {
		handlers.OnEndpointInfo(info, endOfList, ctx)
	})
}

// RelaySubscriptionEvent forwards one change event. Event type and object
// index pass through untransformed.
func (r *Relay) RelaySubscriptionEvent(event EventType, index uint32, ctx RegistrationContext) {
	handlers, ok := r.lookup(ctx)
	if !ok || handlers.OnSubscriptionEvent == nil {
		return
	}

	r.contain("subscription", ctx, func() {
		handlers.OnSubscriptionEvent(event, index, ctx)
	})
}

func (r *Relay) lookup(ctx RegistrationContext) (Handlers, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	handlers, ok := r.registrations[ctx]
	if !ok {
		// late delivery after deregistration, or an event-source bug.
		// either way it's safe to drop
		r.logger.Debugw("No registration for notification context, dropping", "context", ctx)
	}

	return handlers, ok
}

// contain runs one handler call and keeps any panic from unwinding into the
// event source's dispatch loop, which has no failure-handling contract.
// Containment is per-call: subsequent notifications are unaffected.
func (r *Relay) contain(kind string, ctx RegistrationContext, call func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Errorw("Notification handler panicked",
				"kind", kind,
				"context", ctx,
				"error", rec,
				"stack", string(debug.Stack()))
		}
	}()

	call()
}
