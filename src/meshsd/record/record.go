// Package record defines the tagged-variant DNS record representation shared
// by the cache, wire codec, announcer, resolver and browsers.
package record

import (
	"strings"
	"time"

	"github.com/miekg/dns"
)

// ClassFlushBit is the high bit of the 16-bit class field, overloaded by
// mDNS (RFC 6762 §10.2) to mark a record as belonging to a "unique" RRSet
// whose cache entries should be flushed on replacement.
const ClassFlushBit = 1 << 15

// ClassMask isolates the class index (the low 15 bits) from the flush bit.
const ClassMask = ClassFlushBit - 1

// Record pairs a github.com/miekg/dns resource record with the instant it
// was created (constructed locally, or received off the wire). It is the
// tagged-variant payload called for by the data model: rather than a
// hand-rolled DnsRecord/AddressRecord/PtrRecord/SrvRecord/TxtRecord
// hierarchy, the dns.RR interface (*dns.A, *dns.AAAA, *dns.PTR, *dns.SRV,
// *dns.TXT) already provides the tag-and-payload shape.
//
// A Record is immutable once constructed; the cache (C2) is the only owner
// permitted to mutate a record's TTL, via its own Expire operation, which it
// implements by replacing RR with a copy carrying a shortened TTL.
type Record struct {
	RR      dns.RR
	Created time.Time
}

// New wraps rr as a Record created at the instant created.
func New(rr dns.RR, created time.Time) *Record {
	return &Record{RR: rr, Created: created}
}

// Name returns the record's owner name, exactly as it appears on the wire.
func (r *Record) Name() string {
	return r.RR.Header().Name
}

// Type returns the record's RR type (A, PTR, TXT, AAAA, SRV, ...).
func (r *Record) Type() uint16 {
	return r.RR.Header().Rrtype
}

// Class returns the record's class index, with the cache-flush bit masked
// off. Use Unique to test the flush bit itself.
func (r *Record) Class() uint16 {
	return r.RR.Header().Class & ClassMask
}

// Unique returns true if the record's cache-flush ("unique") bit is set.
func (r *Record) Unique() bool {
	return r.RR.Header().Class&ClassFlushBit != 0
}

// TTL returns the record's TTL as a duration. The wire format carries
// whole seconds; in-memory durations may carry sub-second precision picked
// up from Created.
func (r *Record) TTL() time.Duration {
	return time.Duration(r.RR.Header().Ttl) * time.Second
}

// Expiration returns the instant at which the record expires.
func (r *Record) Expiration() time.Time {
	return r.Created.Add(r.TTL())
}

// RemainingTTL returns the duration remaining until expiration at now, or
// zero if the record has already expired.
func (r *Record) RemainingTTL(now time.Time) time.Duration {
	d := r.Expiration().Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Expired returns true if the record's remaining TTL at now is zero.
func (r *Record) Expired(now time.Time) bool {
	return r.RemainingTTL(now) <= 0
}

// WithTTL returns a copy of r with its RR's TTL (and Created instant)
// replaced. Used exclusively by the cache's Expire operation; Record itself
// exposes no in-place mutator, per the "shared mutability" design note.
func (r *Record) WithTTL(now time.Time, ttl time.Duration) *Record {
	rr := dns.Copy(r.RR)
	rr.Header().Ttl = uint32(ttl.Seconds())
	return New(rr, now)
}

// SameType returns true if a and b are considered the same RR type for
// matching purposes, with dns.TypeANY wildcarding either side.
func SameType(a, b uint16) bool {
	return a == dns.TypeANY || b == dns.TypeANY || a == b
}

// SameClass returns true if a and b are considered the same class for
// matching purposes (flush bit ignored), with dns.ClassANY wildcarding
// either side.
func SameClass(a, b uint16) bool {
	a &= ClassMask
	b &= ClassMask
	return a == dns.ClassANY || b == dns.ClassANY || a == b
}

// SameName returns true if a and b refer to the same owner name under
// mDNS/DNS-SD's ASCII case-insensitive name comparison.
func SameName(a, b string) bool {
	return strings.EqualFold(a, b)
}

// Matches returns true if r's (name, type, class) triple matches the given
// question/filter triple, honouring ANY wildcarding on type and class and
// case-insensitive name comparison. This is the free function the "same
// (name, type, class)" rule throughout §3/§4.2/§4.1 reduces to.
func (r *Record) Matches(name string, rtype, class uint16) bool {
	return SameName(r.Name(), name) &&
		SameType(r.Type(), rtype) &&
		SameClass(r.Class(), class)
}
