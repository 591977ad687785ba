package browse

import (
	"context"
	"strings"
	"sync"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/miekg/dns"

	"github.com/kestrel-oss/meshsd/src/meshsd/names"
	"github.com/kestrel-oss/meshsd/src/meshsd/record"
	"github.com/kestrel-oss/meshsd/src/meshsd/resolve"
	"github.com/kestrel-oss/meshsd/src/meshsd/scheduler"
)

// ServiceEvent distinguishes the three notifications a ServiceListener can
// receive, per §4.9's state machine.
type ServiceEvent int

const (
	ServiceAdded ServiceEvent = iota
	ServiceUpdated
	ServiceRemoved
)

// ServiceListener is notified as services under a subscribed registration
// type are discovered, updated, or removed.
type ServiceListener func(event ServiceEvent, svc *record.Resolved)

type serviceState int

const (
	stateUnknown serviceState = iota
	stateResolving
	stateResolved
)

// serviceEntry is one service name's state machine position within a
// subscription, per §4.9's UNKNOWN/RESOLVING/RESOLVED/REMOVED diagram.
type serviceEntry struct {
	state    serviceState
	resolved *record.Resolved // last successfully resolved value, retained across UNKNOWN so a later re-resolve can be diffed
	cancel   context.CancelFunc
}

// subscription is the browsing state for one registration type: the
// increasing-rate PTR query, its listeners, and the per-service state
// machine.
type subscription struct {
	rel       names.Rel
	task      *scheduler.IncreasingTask
	listeners map[int]ServiceListener
	services  map[string]*serviceEntry
}

// ServiceBrowser implements C9: per-registration-type PTR discovery that
// resolves newly-seen service instances via C7 and tracks their
// added/updated/removed lifecycle.
type ServiceBrowser struct {
	Channel   Sender
	Scheduler *scheduler.Scheduler
	Resolver  *resolve.Resolver
	Config    Config
	Logger    logging.Logger

	ctx context.Context

	mu     sync.Mutex
	subs   map[string]*subscription
	nextID int
}

// NewServiceBrowser returns a ServiceBrowser that queries over ch and
// resolves via r. ctx bounds the lifetime of every subscription's query
// cycle and resolve call.
func NewServiceBrowser(ctx context.Context, ch Sender, sched *scheduler.Scheduler, r *resolve.Resolver, cfg Config, logger logging.Logger) *ServiceBrowser {
	return &ServiceBrowser{
		Channel:   ch,
		Scheduler: sched,
		Resolver:  r,
		Config:    cfg,
		Logger:    logger,
		ctx:       ctx,
		subs:      make(map[string]*subscription),
	}
}

// Listen subscribes to rel, starting its PTR query cycle if this is the
// first listener, and replays every currently-resolved service under rel.
// Removing the last listener for rel cancels the subscription.
func (b *ServiceBrowser) Listen(rel names.Rel, fn ServiceListener) *ListenerHandle {
	key := strings.ToLower(rel.String())

	b.mu.Lock()
	sub, ok := b.subs[key]
	if !ok {
		sub = &subscription{
			rel:       rel,
			listeners: make(map[int]ServiceListener),
			services:  make(map[string]*serviceEntry),
		}
		b.subs[key] = sub
		sub.task = scheduler.ScheduleIncreasingly(
			b.ctx,
			func(context.Context) error { return b.query(rel) },
			b.Config.InitialDelay,
			b.Config.BaseDelay,
			b.Config.Factor,
			b.Config.MaxDelay,
		)
	}

	id := b.nextID
	b.nextID++
	sub.listeners[id] = fn

	replay := make([]*record.Resolved, 0, len(sub.services))
	for _, e := range sub.services {
		if e.state == stateResolved {
			replay = append(replay, e.resolved)
		}
	}
	b.mu.Unlock()

	for _, svc := range replay {
		fn(ServiceAdded, svc)
	}

	return &ListenerHandle{closeFn: func() { b.detach(key, id) }}
}

func (b *ServiceBrowser) detach(key string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[key]
	if !ok {
		return
	}

	delete(sub.listeners, id)
	if len(sub.listeners) > 0 {
		return
	}

	for _, e := range sub.services {
		if e.cancel != nil {
			e.cancel()
		}
	}
	sub.task.Cancel()
	delete(b.subs, key)
}

// query submits the send as a one-task batch on the shared Scheduler,
// keyed per registration type, so concurrent subscriptions' sends never
// race each other or the announcer's sends on the Channel.
func (b *ServiceBrowser) query(rel names.Rel) error {
	name := rel.Qualify(record.LocalDomain).String()

	h := b.Scheduler.ScheduleBatch(b.ctx, "browse:services:"+name, func(context.Context) error {
		b.Channel.Send(&dns.Msg{
			Question: []dns.Question{
				{Name: name, Qtype: dns.TypePTR, Qclass: dns.ClassINET},
			},
		})
		return nil
	}, 1, 0)
	return h.AwaitFirst(b.ctx)
}

// HandleResponse is the engine's dispatch point for this component: it
// matches each of m's PTR answers, by owner name, against the subscribed
// registration pointer names, and advances each named service's state
// machine.
func (b *ServiceBrowser) HandleResponse(m *dns.Msg) {
	for _, rr := range m.Answer {
		ptr, ok := rr.(*dns.PTR)
		if !ok {
			continue
		}
		b.handlePTR(ptr)
	}
}

func (b *ServiceBrowser) handlePTR(ptr *dns.PTR) {
	b.mu.Lock()
	var sub *subscription
	for _, s := range b.subs {
		if strings.EqualFold(s.rel.Qualify(record.LocalDomain).String(), ptr.Hdr.Name) {
			sub = s
			break
		}
	}
	if sub == nil {
		b.mu.Unlock()
		return
	}

	serviceKey := strings.ToLower(ptr.Ptr)
	entry := sub.services[serviceKey]

	if ptr.Hdr.Ttl == 0 {
		if entry == nil || entry.state == stateUnknown {
			b.mu.Unlock()
			return
		}

		if entry.cancel != nil {
			entry.cancel()
		}
		delete(sub.services, serviceKey)
		last := entry.resolved
		listeners := snapshotListeners(sub)
		b.mu.Unlock()

		for _, fn := range listeners {
			fn(ServiceRemoved, last)
		}
		return
	}

	if entry != nil && entry.state != stateUnknown {
		b.mu.Unlock()
		return
	}

	instance, regType, err := record.ParseServiceName(names.FQDN(ptr.Ptr), sub.rel.Qualify(record.LocalDomain))
	if err != nil {
		b.mu.Unlock()
		logging.Log(b.Logger, "browse: malformed service name %q: %s", ptr.Ptr, err)
		return
	}

	resolveCtx, cancel := context.WithCancel(b.ctx)
	if entry == nil {
		entry = &serviceEntry{}
		sub.services[serviceKey] = entry
	}
	entry.state = stateResolving
	entry.cancel = cancel
	b.mu.Unlock()

	target := record.Resolvable{Instance: instance, Type: regType}
	go b.resolveService(resolveCtx, sub, serviceKey, target)
}

func (b *ServiceBrowser) resolveService(ctx context.Context, sub *subscription, serviceKey string, target record.Resolvable) {
	result, err := b.Resolver.Resolve(ctx, target, b.Config.ResolveTimeout)

	b.mu.Lock()
	entry, ok := sub.services[serviceKey]
	if !ok || entry.state != stateResolving {
		b.mu.Unlock()
		return
	}

	if err != nil || result == nil || !result.Complete() {
		entry.state = stateUnknown
		entry.cancel = nil
		b.mu.Unlock()
		return
	}

	previous := entry.resolved
	entry.state = stateResolved
	entry.resolved = result
	entry.cancel = nil
	listeners := snapshotListeners(sub)
	b.mu.Unlock()

	event := ServiceAdded
	if previous != nil {
		if previous.Equal(result) {
			return
		}
		event = ServiceUpdated
	}

	for _, fn := range listeners {
		fn(event, result)
	}
}

func snapshotListeners(sub *subscription) []ServiceListener {
	listeners := make([]ServiceListener, 0, len(sub.listeners))
	for _, fn := range sub.listeners {
		listeners = append(listeners, fn)
	}
	return listeners
}
