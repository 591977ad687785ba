// Package engine implements the facade (C10) that builds and owns C1–C9:
// register/deregister/resolve/browse, and the inbound query responder.
package engine

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"

	"github.com/kestrel-oss/meshsd/src/meshsd/announce"
	"github.com/kestrel-oss/meshsd/src/meshsd/browse"
	"github.com/kestrel-oss/meshsd/src/meshsd/cache"
	"github.com/kestrel-oss/meshsd/src/meshsd/names"
	"github.com/kestrel-oss/meshsd/src/meshsd/record"
	"github.com/kestrel-oss/meshsd/src/meshsd/resolve"
	"github.com/kestrel-oss/meshsd/src/meshsd/scheduler"
	"github.com/kestrel-oss/meshsd/src/meshsd/transport"
	"github.com/kestrel-oss/meshsd/src/meshsd/wire"
)

// Engine is the top-level mDNS/DNS-SD node: it owns the socket pair, the
// record cache, the announce/resolve/browse state machines, and answers
// inbound queries about its own registered services.
type Engine struct {
	Config Config
	Logger logging.Logger

	cache      *cache.Cache
	channel    *transport.Channel
	scheduler  *scheduler.Scheduler
	reaper     *cache.Reaper
	announcer  *announce.Announcer
	resolver   *resolve.Resolver
	regBrowser *browse.RegistrationBrowser
	svcBrowser *browse.ServiceBrowser

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu       sync.Mutex
	services map[string]*record.Registerable
}

// New binds and enables a Channel across ifaces, and wires up every
// component. The returned Engine is immediately able to send, receive, and
// answer queries about its own (as yet unregistered) empty service set.
func New(ifaces []net.Interface, cfg Config, logger logging.Logger) (*Engine, error) {
	ch, err := transport.Open(ifaces, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := cache.New()
	sched := scheduler.New()
	reaper := &cache.Reaper{Cache: c, Interval: cfg.ReaperInterval, Logger: logger}
	ann := announce.New(ch, sched, cfg.Announce, logger)
	res := resolve.New(c, ch, cfg.Resolve, logger)
	regBrowser := browse.NewRegistrationBrowser(ch, sched, cfg.Browse, logger)
	svcBrowser := browse.NewServiceBrowser(ctx, ch, sched, res, cfg.Browse, logger)

	group, groupCtx := errgroup.WithContext(ctx)

	e := &Engine{
		Config:     cfg,
		Logger:     logger,
		cache:      c,
		channel:    ch,
		scheduler:  sched,
		reaper:     reaper,
		announcer:  ann,
		resolver:   res,
		regBrowser: regBrowser,
		svcBrowser: svcBrowser,
		ctx:        ctx,
		cancel:     cancel,
		group:      group,
		services:   make(map[string]*record.Registerable),
	}

	ch.Consumer = e.handleInbound

	group.Go(func() error { return sched.Run(groupCtx) })
	group.Go(func() error { return reaper.Run(groupCtx) })

	ch.Enable(ctx)

	return e, nil
}

// handleInbound is the single consumer every receiver goroutine funnels
// into: it stamps every carried record into the cache, then dispatches the
// message to each interested component, in receipt order, per §5's
// ordering guarantee (iii).
func (e *Engine) handleInbound(in transport.Inbound) {
	m := in.Message
	now := time.Now()

	e.absorb(m.Answer, now)
	e.absorb(m.Ns, now)
	e.absorb(m.Extra, now)

	e.announcer.HandleResponse(m)
	e.resolver.HandleResponse(m)
	e.regBrowser.HandleResponse(m)
	e.svcBrowser.HandleResponse(m)

	if !m.Response && len(m.Question) > 0 {
		e.answerQuery(in, m)
	}
}

func (e *Engine) absorb(rrs []dns.RR, now time.Time) {
	for _, rr := range rrs {
		r := record.New(rr, now)
		if rr.Header().Ttl == 0 {
			e.cache.Expire(r, now)
			continue
		}
		e.cache.Add(r)
	}
}

// answerQuery implements §4.10's responder: PTR questions are answered
// from the registration pointer/service-name hierarchy; every other
// question type is matched against each own service's hostname or service
// name. Answer-suppression against the query is handled by the builder;
// legacy (non-5353) queriers get an unflushed, unicast reply.
func (e *Engine) answerQuery(in transport.Inbound, query *dns.Msg) {
	builder := wire.NewAnswerBuilder(query)

	e.mu.Lock()
	services := make([]*record.Registerable, 0, len(e.services))
	for _, svc := range e.services {
		services = append(services, svc)
	}
	e.mu.Unlock()

	for _, q := range query.Question {
		if q.Qtype == dns.TypePTR {
			e.answerPTR(builder, q, services)
			continue
		}
		e.answerRecord(builder, q, services)
	}

	if builder.IsEmpty() {
		return
	}

	legacy := in.Source.IsLegacy()
	resp := builder.Build(legacy)

	if legacy {
		e.channel.SendTo(resp, in.Source)
	} else {
		e.channel.Send(resp)
	}
}

func (e *Engine) answerPTR(builder *wire.AnswerBuilder, q dns.Question, services []*record.Registerable) {
	if strings.EqualFold(q.Name, browse.ServicesName) {
		seen := make(map[string]bool)
		for _, svc := range services {
			rpn := svc.RegistrationPointerName().String()
			key := strings.ToLower(rpn)
			if seen[key] {
				continue
			}
			seen[key] = true

			builder.AddUnstamped(&dns.PTR{
				Hdr: dns.RR_Header{
					Name:   browse.ServicesName,
					Rrtype: dns.TypePTR,
					Class:  dns.ClassINET,
					Ttl:    uint32(record.DefaultTTL.Seconds()),
				},
				Ptr: rpn,
			}, false, wire.SectionAnswer)
		}
		return
	}

	for _, svc := range services {
		if strings.EqualFold(svc.RegistrationPointerName().String(), q.Name) {
			builder.AddUnstamped(svc.PTRRecord(), false, wire.SectionAnswer)
		}
	}
}

func (e *Engine) answerRecord(builder *wire.AnswerBuilder, q dns.Question, services []*record.Registerable) {
	for _, svc := range services {
		if strings.EqualFold(svc.Host.String(), q.Name) {
			if q.Qtype == dns.TypeA || q.Qtype == dns.TypeANY {
				if a := svc.ARecord(false); a != nil {
					builder.AddUnstamped(a, true, wire.SectionAnswer)
				}
			}
			if q.Qtype == dns.TypeAAAA || q.Qtype == dns.TypeANY {
				if aaaa := svc.AAAARecord(false); aaaa != nil {
					builder.AddUnstamped(aaaa, true, wire.SectionAnswer)
				}
			}
		}

		if !strings.EqualFold(svc.ServiceName().String(), q.Name) {
			continue
		}

		switch q.Qtype {
		case dns.TypeSRV:
			builder.AddUnstamped(svc.SRVRecord(false), true, wire.SectionAnswer)
			if a := svc.ARecord(false); a != nil {
				builder.AddUnstamped(a, true, wire.SectionAdditional)
			}
			if aaaa := svc.AAAARecord(false); aaaa != nil {
				builder.AddUnstamped(aaaa, true, wire.SectionAdditional)
			}
		case dns.TypeTXT:
			builder.AddUnstamped(svc.TXTRecord(false), true, wire.SectionAnswer)
		case dns.TypeANY:
			builder.AddUnstamped(svc.SRVRecord(false), true, wire.SectionAnswer)
			builder.AddUnstamped(svc.TXTRecord(false), true, wire.SectionAnswer)
		}
	}
}

// nameSuffix matches a trailing " (n)" disambiguator, per §4.10's exact
// rename regex.
var nameSuffix = regexp.MustCompile(`^(.*?)( \((\d+)\))$`)

func renameInstance(instance names.Host) (names.Host, error) {
	s := instance.String()

	if m := nameSuffix.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[3])
		if err != nil {
			return "", err
		}
		return names.ParseHost(fmt.Sprintf("%s (%d)", m[1], n+1))
	}

	return names.ParseHost(s + " (2)")
}

func cloneRegisterable(svc *record.Registerable) *record.Registerable {
	cp := *svc
	return &cp
}

// checkUniqueness rejects a proposed binding that collides with either an
// already-registered service of this engine, or a cached SRV record whose
// port or hostname differs from the proposal, per §4.10's pre-probe check.
func (e *Engine) checkUniqueness(candidate *record.Registerable) error {
	key := strings.ToLower(candidate.ServiceName().String())

	e.mu.Lock()
	_, collides := e.services[key]
	e.mu.Unlock()

	if collides {
		return &RegisterError{Kind: RegisterSelfCollision}
	}

	if srv, ok := e.cache.Get(candidate.ServiceName().String(), dns.TypeSRV, dns.ClassINET); ok {
		if v, ok := srv.RR.(*dns.SRV); ok {
			if v.Port != candidate.Port || !strings.EqualFold(v.Target, candidate.Host.String()) {
				return &RegisterError{Kind: RegisterCacheCollision}
			}
		}
	}

	return nil
}

// Register chooses a unique instance name starting from svc's proposed
// one, then probes and announces it. On conflict: if allowNameChange, the
// instance name is renamed (" (2)", " (3)", ...) and retried; otherwise
// registration fails with RegisterConflict.
func (e *Engine) Register(ctx context.Context, svc *record.Registerable, allowNameChange bool) (*record.Registerable, error) {
	candidate := cloneRegisterable(svc)

	for {
		if err := e.checkUniqueness(candidate); err != nil {
			if !allowNameChange {
				return nil, err
			}

			renamed, rerr := renameInstance(candidate.Instance)
			if rerr != nil {
				return nil, &RegisterError{Kind: RegisterIO, Cause: rerr}
			}
			candidate.Instance = renamed
			continue
		}

		ok, err := e.announcer.Announce(ctx, candidate)
		if err != nil {
			return nil, &RegisterError{Kind: RegisterIO, Cause: err}
		}

		if ok {
			key := strings.ToLower(candidate.ServiceName().String())
			e.mu.Lock()
			e.services[key] = candidate
			e.mu.Unlock()
			return candidate, nil
		}

		if !allowNameChange {
			return nil, &RegisterError{Kind: RegisterConflict}
		}

		renamed, rerr := renameInstance(candidate.Instance)
		if rerr != nil {
			return nil, &RegisterError{Kind: RegisterIO, Cause: rerr}
		}
		candidate.Instance = renamed
	}
}

// Deregister cancels svc's registration (sending a goodbye batch) and
// drops its cache entries. It is a no-op if svc is not currently
// registered.
func (e *Engine) Deregister(ctx context.Context, svc *record.Registerable) error {
	key := strings.ToLower(svc.ServiceName().String())

	e.mu.Lock()
	_, ok := e.services[key]
	delete(e.services, key)
	e.mu.Unlock()

	if !ok {
		return nil
	}

	if err := e.announcer.Cancel(ctx, svc); err != nil {
		return err
	}

	e.cache.RemoveAll(svc.ServiceName().String())
	return nil
}

// DeregisterAll deregisters every currently-registered service,
// best-effort, aggregating any failures into a DeregisterError.
func (e *Engine) DeregisterAll(ctx context.Context) error {
	e.mu.Lock()
	services := make([]*record.Registerable, 0, len(e.services))
	for _, svc := range e.services {
		services = append(services, svc)
	}
	e.mu.Unlock()

	var errs []error
	for _, svc := range services {
		if err := e.Deregister(ctx, svc); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return &DeregisterError{Errs: errs}
	}
	return nil
}

// Resolve cleans expired cache entries, then delegates to the resolver. A
// non-positive timeout uses the configured default.
func (e *Engine) Resolve(ctx context.Context, target record.Resolvable, timeout time.Duration) (*record.Resolved, error) {
	e.cache.Clean(time.Now())

	if timeout <= 0 {
		timeout = e.Config.ResolveTimeout
	}

	return e.resolver.Resolve(ctx, target, timeout)
}

// BrowseRegistrationTypes starts the registration-type browser if it is
// not already running, and registers fn.
func (e *Engine) BrowseRegistrationTypes(fn browse.RegistrationTypeListener) *browse.ListenerHandle {
	e.regBrowser.Start(e.ctx)
	return e.regBrowser.Listen(fn)
}

// BrowseServices subscribes fn to services under rt, starting rt's own
// query cycle if this is its first listener.
func (e *Engine) BrowseServices(rt names.Rel, fn browse.ServiceListener) *browse.ListenerHandle {
	return e.svcBrowser.Listen(rt, fn)
}

// Close stops the registration-type browser, cancels every background
// worker, deregisters all services best-effort, and closes the channel.
// It is infallible except for the channel's own close error.
func (e *Engine) Close() error {
	_ = e.DeregisterAll(context.Background())

	e.regBrowser.Stop()
	e.cancel()
	_ = e.group.Wait()

	err := e.channel.Close()
	e.cache.Clear()

	return err
}
