// Package resolve implements the cache-first, incremental-backoff service
// resolver (C7).
package resolve

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/miekg/dns"

	"github.com/kestrel-oss/meshsd/src/meshsd/cache"
	"github.com/kestrel-oss/meshsd/src/meshsd/names"
	"github.com/kestrel-oss/meshsd/src/meshsd/record"
)

// Sender multicasts an mDNS message. Satisfied by *transport.Channel.
type Sender interface {
	Send(m *dns.Msg)
}

// Resolver resolves service instances, preferring the cache and falling
// back to an incremental query schedule.
type Resolver struct {
	Cache   *cache.Cache
	Channel Sender
	Config  Config
	Logger  logging.Logger

	mu        sync.Mutex
	listeners map[string]*pendingResolve
}

// New returns a Resolver reading from c and querying over ch.
func New(c *cache.Cache, ch Sender, cfg Config, logger logging.Logger) *Resolver {
	return &Resolver{
		Cache:     c,
		Channel:   ch,
		Config:    cfg,
		Logger:    logger,
		listeners: make(map[string]*pendingResolve),
	}
}

// HandleResponse is the engine's single inbound-response dispatch point for
// the resolver: it applies the record-update rule to every in-flight
// Resolve call whose service name is mentioned in m.
func (r *Resolver) HandleResponse(m *dns.Msg) {
	r.mu.Lock()
	listeners := make([]*pendingResolve, 0, len(r.listeners))
	for _, p := range r.listeners {
		listeners = append(listeners, p)
	}
	r.mu.Unlock()

	for _, p := range listeners {
		changed := false
		if p.apply(m.Answer) {
			changed = true
		}
		if p.apply(m.Ns) {
			changed = true
		}
		if p.apply(m.Extra) {
			changed = true
		}
		if changed {
			p.signal()
		}
	}
}

// Resolve resolves target, preferring the cache, and falling back to an
// incremental query schedule bounded by timeout. If the timeout elapses or
// ctx is cancelled first, it returns the partially-filled state (whose
// Complete reports false) with a nil error: an unresolved service is not an
// error.
func (r *Resolver) Resolve(ctx context.Context, target record.Resolvable, timeout time.Duration) (*record.Resolved, error) {
	state := r.fromCache(target)
	if state.Complete() {
		return state, nil
	}

	schedule := delaySchedule(r.Config.ResolutionInterval, timeout)
	if len(schedule) == 0 {
		return state, nil
	}

	key := strings.ToLower(target.ServiceName().String())
	p := newPendingResolve(target)
	p.state = state

	r.mu.Lock()
	r.listeners[key] = p
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.listeners, key)
		r.mu.Unlock()
	}()

	for _, d := range schedule {
		r.sendQuery(target, p.snapshot())

		timer := time.NewTimer(d)

		select {
		case <-ctx.Done():
			timer.Stop()
			return p.snapshot(), nil

		case <-p.changed:
			timer.Stop()
			if s := p.snapshot(); s.Complete() {
				return s, nil
			}

		case <-timer.C:
		}
	}

	return p.snapshot(), nil
}

func (r *Resolver) fromCache(target record.Resolvable) *record.Resolved {
	state := &record.Resolved{Resolvable: target}
	name := target.ServiceName().String()

	if srv, ok := r.Cache.Get(name, dns.TypeSRV, dns.ClassINET); ok {
		if v, ok := srv.RR.(*dns.SRV); ok {
			if host, err := names.ParseFQDN(v.Target); err == nil {
				state.Host = host
				state.Port = v.Port
			}
		}
	}

	if txt, ok := r.Cache.Get(name, dns.TypeTXT, dns.ClassINET); ok {
		if v, ok := txt.RR.(*dns.TXT); ok {
			state.Attributes = record.ParseAttributes(v.Txt)
		}
	}

	if state.Host != "" {
		if a, ok := r.Cache.Get(state.Host.String(), dns.TypeA, dns.ClassINET); ok {
			if v, ok := a.RR.(*dns.A); ok {
				state.IPv4 = v.A
			}
		}
		if aaaa, ok := r.Cache.Get(state.Host.String(), dns.TypeAAAA, dns.ClassINET); ok {
			if v, ok := aaaa.RR.(*dns.AAAA); ok {
				state.IPv6 = v.AAAA
			}
		}
	}

	return state
}

func (r *Resolver) sendQuery(target record.Resolvable, state *record.Resolved) {
	name := target.ServiceName().String()

	m := &dns.Msg{
		Question: []dns.Question{
			{Name: name, Qtype: dns.TypeSRV, Qclass: dns.ClassINET},
			{Name: name, Qtype: dns.TypeTXT, Qclass: dns.ClassINET},
		},
	}

	if state.Host != "" {
		host := state.Host.String()
		m.Question = append(m.Question,
			dns.Question{Name: host, Qtype: dns.TypeA, Qclass: dns.ClassINET},
			dns.Question{Name: host, Qtype: dns.TypeAAAA, Qclass: dns.ClassINET},
		)
	}

	if srv, ok := r.Cache.Get(name, dns.TypeSRV, dns.ClassINET); ok {
		m.Answer = append(m.Answer, srv.RR)
	}
	if txt, ok := r.Cache.Get(name, dns.TypeTXT, dns.ClassINET); ok {
		m.Answer = append(m.Answer, txt.RR)
	}
	if state.Host != "" {
		if a, ok := r.Cache.Get(state.Host.String(), dns.TypeA, dns.ClassINET); ok {
			m.Answer = append(m.Answer, a.RR)
		}
		if aaaa, ok := r.Cache.Get(state.Host.String(), dns.TypeAAAA, dns.ClassINET); ok {
			m.Answer = append(m.Answer, aaaa.RR)
		}
	}

	r.Channel.Send(m)
}
