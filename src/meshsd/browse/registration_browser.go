package browse

import (
	"context"
	"strings"
	"sync"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/miekg/dns"

	"github.com/kestrel-oss/meshsd/src/meshsd/names"
	"github.com/kestrel-oss/meshsd/src/meshsd/record"
	"github.com/kestrel-oss/meshsd/src/meshsd/scheduler"
)

// ServicesName is the well-known DNS-SD discovery name: a PTR query here
// enumerates every registration type any responder on the segment
// advertises (RFC 6763 §9).
const ServicesName = "_services._dns-sd._udp.local."

// RegistrationTypeListener is notified with every registration type known
// to a RegistrationBrowser, including a replay of already-known types at
// the moment it is registered.
type RegistrationTypeListener func(rt names.Rel)

// RegistrationBrowser implements C8: a continuous PTR query against
// ServicesName, maintaining the set of registration types observed on the
// segment and notifying listeners as new ones appear.
type RegistrationBrowser struct {
	Channel   Sender
	Scheduler *scheduler.Scheduler
	Config    Config
	Logger    logging.Logger

	mu        sync.Mutex
	known     map[string]names.Rel
	listeners map[int]RegistrationTypeListener
	nextID    int
	task      *scheduler.IncreasingTask
}

// NewRegistrationBrowser returns a RegistrationBrowser that queries over ch.
func NewRegistrationBrowser(ch Sender, sched *scheduler.Scheduler, cfg Config, logger logging.Logger) *RegistrationBrowser {
	return &RegistrationBrowser{
		Channel:   ch,
		Scheduler: sched,
		Config:    cfg,
		Logger:    logger,
		known:     make(map[string]names.Rel),
		listeners: make(map[int]RegistrationTypeListener),
	}
}

// Start begins the increasing-rate query cycle, idempotently.
func (b *RegistrationBrowser) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.task != nil {
		return
	}

	b.task = scheduler.ScheduleIncreasingly(
		ctx,
		b.query,
		b.Config.InitialDelay,
		b.Config.BaseDelay,
		b.Config.Factor,
		b.Config.MaxDelay,
	)
}

// Stop cancels the query cycle and waits for it to exit.
func (b *RegistrationBrowser) Stop() {
	b.mu.Lock()
	t := b.task
	b.task = nil
	b.mu.Unlock()

	if t != nil {
		t.Cancel()
		t.Wait()
	}
}

// query submits the send as a one-task batch on the shared Scheduler, so it
// is serialized against every other component's scheduler-driven sends
// rather than racing them directly on the Channel.
func (b *RegistrationBrowser) query(ctx context.Context) error {
	h := b.Scheduler.ScheduleBatch(ctx, "browse:registration-types", func(context.Context) error {
		b.Channel.Send(&dns.Msg{
			Question: []dns.Question{
				{Name: ServicesName, Qtype: dns.TypePTR, Qclass: dns.ClassINET},
			},
		})
		return nil
	}, 1, 0)
	return h.AwaitFirst(ctx)
}

// Listen registers fn, immediately replaying every currently-known
// registration type, and returns a handle that detaches it on Close.
func (b *RegistrationBrowser) Listen(fn RegistrationTypeListener) *ListenerHandle {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn

	known := make([]names.Rel, 0, len(b.known))
	for _, rt := range b.known {
		known = append(known, rt)
	}
	b.mu.Unlock()

	for _, rt := range known {
		fn(rt)
	}

	return &ListenerHandle{closeFn: func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}}
}

// HandleResponse is the engine's dispatch point for this component: it
// scans m's answers for PTR records naming ServicesName, records any
// unseen registration type, and notifies listeners.
func (b *RegistrationBrowser) HandleResponse(m *dns.Msg) {
	for _, rr := range m.Answer {
		ptr, ok := rr.(*dns.PTR)
		if !ok || !strings.EqualFold(ptr.Hdr.Name, ServicesName) {
			continue
		}
		if ptr.Hdr.Ttl == 0 {
			continue
		}

		rt, err := parseRegistrationType(ptr.Ptr)
		if err != nil {
			logging.Log(b.Logger, "browse: malformed registration type %q: %s", ptr.Ptr, err)
			continue
		}

		key := strings.ToLower(rt.String())

		b.mu.Lock()
		if _, seen := b.known[key]; seen {
			b.mu.Unlock()
			continue
		}
		b.known[key] = rt

		listeners := make([]RegistrationTypeListener, 0, len(b.listeners))
		for _, fn := range b.listeners {
			listeners = append(listeners, fn)
		}
		b.mu.Unlock()

		for _, fn := range listeners {
			fn(rt)
		}
	}
}

// parseRegistrationType interprets a PTR target under ServicesName as
// "<registration_type>.local." and strips the domain suffix.
func parseRegistrationType(target string) (names.Rel, error) {
	suffix := "." + record.LocalDomain.String()
	if !strings.HasSuffix(strings.ToLower(target), strings.ToLower(suffix)) {
		return "", &record.InvalidServiceNameError{Name: names.FQDN(target), Domain: record.LocalDomain}
	}

	return names.ParseRel(target[:len(target)-len(suffix)])
}
