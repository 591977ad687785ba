package resolve

import (
	"strings"
	"sync"

	"github.com/miekg/dns"

	"github.com/kestrel-oss/meshsd/src/meshsd/names"
	"github.com/kestrel-oss/meshsd/src/meshsd/record"
)

// pendingResolve tracks one in-flight Resolve call's accumulating state,
// and is the target of HandleResponse's record-update rule while it is
// registered.
type pendingResolve struct {
	mu      sync.Mutex
	state   *record.Resolved
	changed chan struct{}
}

func newPendingResolve(target record.Resolvable) *pendingResolve {
	return &pendingResolve{
		state:   &record.Resolved{Resolvable: target},
		changed: make(chan struct{}, 1),
	}
}

func (p *pendingResolve) snapshot() *record.Resolved {
	p.mu.Lock()
	defer p.mu.Unlock()

	cp := *p.state
	return &cp
}

func (p *pendingResolve) signal() {
	select {
	case p.changed <- struct{}{}:
	default:
	}
}

// apply applies the §4.7 record-update rule to rrs, mutating p's state in
// place and reporting whether anything changed. A record with TTL 0 (a
// goodbye) is never adopted as resolved information.
func (p *pendingResolve) apply(rrs []dns.RR) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	serviceName := p.state.ServiceName().String()
	changed := false

	for _, rr := range rrs {
		if rr.Header().Ttl == 0 {
			continue
		}

		switch v := rr.(type) {
		case *dns.SRV:
			if strings.EqualFold(v.Hdr.Name, serviceName) {
				if host, err := names.ParseFQDN(v.Target); err == nil {
					p.state.Host = host
					p.state.Port = v.Port
					changed = true
				}
			}

		case *dns.TXT:
			if strings.EqualFold(v.Hdr.Name, serviceName) {
				p.state.Attributes = record.ParseAttributes(v.Txt)
				changed = true
			}

		case *dns.A:
			if p.state.Host != "" && strings.EqualFold(v.Hdr.Name, p.state.Host.String()) {
				p.state.IPv4 = v.A
				changed = true
			}

		case *dns.AAAA:
			if p.state.Host != "" && strings.EqualFold(v.Hdr.Name, p.state.Host.String()) {
				p.state.IPv6 = v.AAAA
				changed = true
			}
		}
	}

	return changed
}
