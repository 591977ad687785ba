package wire

import (
	"time"

	"github.com/miekg/dns"

	"github.com/kestrel-oss/meshsd/src/meshsd/record"
)

// Sections holds one response's answer/authority/additional RRs. It mirrors
// the teacher's responder.ResponseSections/mdns.ResponseSections shape.
type Sections struct {
	Answer     []dns.RR
	Authority  []dns.RR
	Additional []dns.RR
}

// IsEmpty returns true if the sections carry no records.
func (s *Sections) IsEmpty() bool {
	return len(s.Answer) == 0 && len(s.Authority) == 0 && len(s.Additional) == 0
}

// AnswerBuilder accumulates a response to a single query across the
// "unique" and "shared" RRSet splits mDNS requires (RFC 6762 §10.2): unique
// records get the cache-flush bit set (unless the querier is a legacy
// one-shot resolver) and are answered as a complete RRSet; shared records
// are appended as-is.
type AnswerBuilder struct {
	query  *dns.Msg
	Unique Sections
	Shared Sections
}

// NewAnswerBuilder returns a builder that suppresses answers already known
// to query (nil disables suppression, used when building unsolicited
// announcements).
func NewAnswerBuilder(query *dns.Msg) *AnswerBuilder {
	return &AnswerBuilder{query: query}
}

// AddStamped adds r to the answer section (unique if unique is true) with
// its TTL rewritten to the remaining TTL at stamp. Records already expired
// at stamp are dropped. Suppressed answers (§4.1) are dropped.
func (b *AnswerBuilder) AddStamped(r *record.Record, stamp time.Time, unique bool) {
	if r.Expired(stamp) {
		return
	}

	remaining := r.RemainingTTL(stamp)

	if b.query != nil && Suppressed(b.query, r.Name(), r.Type(), r.Class(), remaining) {
		return
	}

	rr := dns.Copy(r.RR)
	rr.Header().Ttl = uint32(remaining.Seconds())

	b.add(rr, unique, SectionAnswer)
}

// AddUnstamped adds rr verbatim (its own TTL emitted as-is) to section,
// honouring suppression against the query's known answers.
func (b *AnswerBuilder) AddUnstamped(rr dns.RR, unique bool, section Section) {
	if b.query != nil {
		hdr := rr.Header()
		ttl := time.Duration(hdr.Ttl) * time.Second
		if Suppressed(b.query, hdr.Name, hdr.Rrtype, hdr.Class, ttl) {
			return
		}
	}

	b.add(rr, unique, section)
}

// Section names the response section a record belongs in.
type Section int

// Section values.
const (
	SectionAnswer Section = iota
	SectionAuthority
	SectionAdditional
)

func (b *AnswerBuilder) add(rr dns.RR, unique bool, section Section) {
	dst := &b.Shared
	if unique {
		dst = &b.Unique
	}

	switch section {
	case SectionAuthority:
		dst.Authority = append(dst.Authority, rr)
	case SectionAdditional:
		dst.Additional = append(dst.Additional, rr)
	default:
		dst.Answer = append(dst.Answer, rr)
	}
}

// IsEmpty returns true if nothing has been added to either section.
func (b *AnswerBuilder) IsEmpty() bool {
	return b.Unique.IsEmpty() && b.Shared.IsEmpty()
}

// Build assembles a complete response message, setting the mDNS
// cache-flush bit on the unique section's records unless legacy is true (a
// legacy/one-shot querier gets plain records, per RFC 6762 §6.7).
func (b *AnswerBuilder) Build(legacy bool) *dns.Msg {
	m := &dns.Msg{}
	m.Response = true
	m.Authoritative = true
	m.Compress = true
	m.Opcode = dns.OpcodeQuery
	m.Rcode = dns.RcodeSuccess

	if legacy && b.query != nil {
		m.Id = b.query.Id
	}

	if legacy {
		m.Answer = append(m.Answer, b.Unique.Answer...)
		m.Ns = append(m.Ns, b.Unique.Authority...)
		m.Extra = append(m.Extra, b.Unique.Additional...)
	} else {
		m.Answer = appendFlushed(m.Answer, b.Unique.Answer)
		m.Ns = appendFlushed(m.Ns, b.Unique.Authority)
		m.Extra = appendFlushed(m.Extra, b.Unique.Additional)
	}

	m.Answer = append(m.Answer, b.Shared.Answer...)
	m.Ns = append(m.Ns, b.Shared.Authority...)
	m.Extra = append(m.Extra, b.Shared.Additional...)

	return m
}

// appendFlushed appends copies of source to target with the cache-flush
// ("unique record") bit set on the class.
func appendFlushed(target, source []dns.RR) []dns.RR {
	for _, rr := range source {
		rr = dns.Copy(rr)
		rr.Header().Class |= record.ClassFlushBit
		target = append(target, rr)
	}
	return target
}
