// Package announce implements the probe/announce state machine (C5) and
// the goodbye canceller (C6).
package announce

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/miekg/dns"

	"github.com/kestrel-oss/meshsd/src/meshsd/record"
	"github.com/kestrel-oss/meshsd/src/meshsd/scheduler"
)

// Sender multicasts an mDNS message. Satisfied by *transport.Channel.
type Sender interface {
	Send(m *dns.Msg)
}

// listener is an in-flight probe's conflict detector: it is sent the
// conflicting SRV record the moment one arrives with a different target.
type listener struct {
	hostname string
	conflict chan *dns.SRV
}

// Announcer drives probing, announcing, re-announcing, and — via Cancel —
// goodbyes, for services registered on Channel.
type Announcer struct {
	Channel   Sender
	Scheduler *scheduler.Scheduler
	Config    Config
	Logger    logging.Logger

	mu        sync.Mutex
	listeners map[string]*listener
}

// New returns an Announcer driving probes/announcements over ch, using
// sched for batch timing.
func New(ch Sender, sched *scheduler.Scheduler, cfg Config, logger logging.Logger) *Announcer {
	return &Announcer{
		Channel:   ch,
		Scheduler: sched,
		Config:    cfg,
		Logger:    logger,
		listeners: make(map[string]*listener),
	}
}

// HandleResponse is the engine's single inbound-response dispatch point for
// the announcer. It inspects m for SRV records matching an in-flight
// probe's service name but naming a different host, the §4.5 conflict
// condition.
func (a *Announcer) HandleResponse(m *dns.Msg) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, rr := range m.Answer {
		srv, ok := rr.(*dns.SRV)
		if !ok {
			continue
		}

		l, ok := a.listeners[strings.ToLower(srv.Hdr.Name)]
		if !ok {
			continue
		}

		if strings.EqualFold(srv.Target, l.hostname) {
			continue
		}

		select {
		case l.conflict <- srv:
		default:
		}
	}
}

// Announce probes svc's name, then — if uncontested within
// Config.ProbingTimeout — announces it. It returns conflictFree = false
// (not an error) if a conflict was observed or the context was canceled
// mid-wait; callers decide whether to rename and retry.
func (a *Announcer) Announce(ctx context.Context, svc *record.Registerable) (bool, error) {
	key := strings.ToLower(svc.ServiceName().String())

	l := &listener{
		hostname: svc.Host.String(),
		conflict: make(chan *dns.SRV, 1),
	}

	a.mu.Lock()
	a.listeners[key] = l
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.listeners, key)
		a.mu.Unlock()
	}()

	probe := buildProbe(svc)

	h := a.Scheduler.ScheduleBatch(ctx, key, func(context.Context) error {
		a.Channel.Send(probe)
		return nil
	}, a.Config.ProbeNum, a.Config.ProbingInterval)

	timeout := time.NewTimer(a.Config.ProbingTimeout)
	defer timeout.Stop()

	select {
	case <-l.conflict:
		h.CancelAll()
		return false, nil

	case <-ctx.Done():
		h.CancelAll()
		return false, nil

	case <-timeout.C:
	}

	return a.announce(ctx, svc, key)
}

// ReAnnounce skips probing and re-emits the announcement batch with svc's
// current attributes, for use after an attribute change.
func (a *Announcer) ReAnnounce(ctx context.Context, svc *record.Registerable) error {
	key := strings.ToLower(svc.ServiceName().String())

	_, err := a.announce(ctx, svc, key)
	return err
}

func (a *Announcer) announce(ctx context.Context, svc *record.Registerable, key string) (bool, error) {
	msg := buildAnnouncement(svc)

	h := a.Scheduler.ScheduleBatch(ctx, key, func(context.Context) error {
		a.Channel.Send(msg)
		return nil
	}, a.Config.AnnouncementNum, a.Config.AnnouncementInterval)

	if err := h.AwaitFirst(ctx); err != nil {
		return false, &IOError{Cause: err}
	}

	return true, nil
}

// Cancel schedules a batch of goodbye messages (TTL 0) for svc and waits
// for the first to go out before returning.
func (a *Announcer) Cancel(ctx context.Context, svc *record.Registerable) error {
	key := strings.ToLower(svc.ServiceName().String())
	msg := buildGoodbye(svc)

	h := a.Scheduler.ScheduleBatch(ctx, key, func(context.Context) error {
		a.Channel.Send(msg)
		return nil
	}, a.Config.CancelNum, a.Config.CancellingInterval)

	if err := h.AwaitFirst(ctx); err != nil {
		return &IOError{Cause: err}
	}

	return nil
}
