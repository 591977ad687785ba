package announce

import (
	"github.com/miekg/dns"

	"github.com/kestrel-oss/meshsd/src/meshsd/record"
)

// buildProbe constructs the two-question probe message for svc, carrying
// the proposed SRV/A/AAAA as authorities (unmarked, per RFC 6762 §8.1 — the
// cache-flush bit is only set once a name is confirmed unique).
func buildProbe(svc *record.Registerable) *dns.Msg {
	m := &dns.Msg{}

	m.Question = []dns.Question{
		{Name: svc.Host.String(), Qtype: dns.TypeANY, Qclass: dns.ClassINET},
		{Name: svc.ServiceName().String(), Qtype: dns.TypeANY, Qclass: dns.ClassINET},
	}

	if rr := svc.SRVRecord(false); rr != nil {
		m.Ns = append(m.Ns, rr)
	}
	if rr := svc.ARecord(false); rr != nil {
		m.Ns = append(m.Ns, rr)
	}
	if rr := svc.AAAARecord(false); rr != nil {
		m.Ns = append(m.Ns, rr)
	}

	return m
}

// buildAnnouncement constructs the authoritative response announcing svc:
// PTR, SRV, TXT, and A/AAAA, all unique (cache-flush bit set).
func buildAnnouncement(svc *record.Registerable) *dns.Msg {
	m := &dns.Msg{}
	m.Response = true
	m.Authoritative = true

	if rr := svc.PTRRecord(); rr != nil {
		m.Answer = append(m.Answer, rr)
	}
	if rr := svc.SRVRecord(true); rr != nil {
		m.Answer = append(m.Answer, rr)
	}
	if rr := svc.TXTRecord(true); rr != nil {
		m.Answer = append(m.Answer, rr)
	}
	if rr := svc.ARecord(true); rr != nil {
		m.Answer = append(m.Answer, rr)
	}
	if rr := svc.AAAARecord(true); rr != nil {
		m.Answer = append(m.Answer, rr)
	}

	return m
}

// buildGoodbye is an announcement with every answer's TTL forced to 0, the
// RFC 6762 §10.1 "goodbye" signal.
func buildGoodbye(svc *record.Registerable) *dns.Msg {
	m := buildAnnouncement(svc)
	for _, rr := range m.Answer {
		rr.Header().Ttl = 0
	}
	return m
}
