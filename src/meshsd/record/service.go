package record

import (
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/kestrel-oss/meshsd/src/meshsd/names"
)

// LocalDomain is the only domain this implementation operates under; per
// spec.md's non-goals, wide-area DNS-SD beyond "local." is out of scope.
var LocalDomain = names.FQDN("local.")

// DefaultTTL is the TTL applied to a service's records when none is given
// explicitly.
const DefaultTTL = 3600 * time.Second

// ExpiryTTL is the short TTL the cache substitutes on Expire, per §3
// invariant (iii): small enough that the reaper removes the entry in a
// bounded, observable time.
const ExpiryTTL = 1 * time.Second

// Registerable describes a locally-offered service prior to registration:
// an instance name, registration type, target host, optional addresses,
// port and attributes. Grounded on the teacher's dnssd.Instance, split from
// a single-domain Bonjour-only shape into the full register/resolve/browse
// product type the spec requires, with separate IPv4/IPv6 fields.
type Registerable struct {
	Instance   names.Host
	Type       names.Rel
	Host       names.FQDN
	IPv4       net.IP
	IPv6       net.IP
	Port       uint16
	Attributes *Attributes
	TTL        time.Duration
}

// ttlOrDefault returns s.TTL, or DefaultTTL if it is zero.
func (s *Registerable) ttlOrDefault() uint32 {
	ttl := s.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return uint32(ttl.Seconds())
}

// RegistrationPointerName returns registration_type + "local.", the name
// queried (and PTR-answered) for instance enumeration under this type.
func (s *Registerable) RegistrationPointerName() names.FQDN {
	return s.Type.Qualify(LocalDomain)
}

// ServiceName returns the fully-qualified, case-sensitive-on-the-wire
// service instance name: instance_name + "." + registration_pointer_name.
func (s *Registerable) ServiceName() names.FQDN {
	return s.Instance.Qualify(s.RegistrationPointerName())
}

// PTRRecord returns the PTR record pointing the registration pointer name
// at this instance's service name.
func (s *Registerable) PTRRecord() *dns.PTR {
	return &dns.PTR{
		Hdr: dns.RR_Header{
			Name:   s.RegistrationPointerName().String(),
			Rrtype: dns.TypePTR,
			Class:  dns.ClassINET,
			Ttl:    s.ttlOrDefault(),
		},
		Ptr: s.ServiceName().String(),
	}
}

// SRVRecord returns this instance's SRV record. unique sets mDNS's
// cache-flush bit on the class (true for announce/responder traffic).
func (s *Registerable) SRVRecord(unique bool) *dns.SRV {
	class := uint16(dns.ClassINET)
	if unique {
		class |= ClassFlushBit
	}

	return &dns.SRV{
		Hdr: dns.RR_Header{
			Name:   s.ServiceName().String(),
			Rrtype: dns.TypeSRV,
			Class:  class,
			Ttl:    s.ttlOrDefault(),
		},
		Priority: 0,
		Weight:   0,
		Port:     s.Port,
		Target:   s.Host.String(),
	}
}

// TXTRecord returns this instance's TXT record, encoding Attributes per
// RFC 6763 §6.3's length-prefixed string rules.
func (s *Registerable) TXTRecord(unique bool) *dns.TXT {
	class := uint16(dns.ClassINET)
	if unique {
		class |= ClassFlushBit
	}

	attrs := s.Attributes
	if attrs == nil {
		attrs = NewAttributes()
	}

	txt := attrs.Pairs()
	if len(txt) == 0 {
		// RFC 6763 §6.1: a TXT record with no pairs is encoded as a single
		// empty string.
		txt = []string{""}
	}

	return &dns.TXT{
		Hdr: dns.RR_Header{
			Name:   s.ServiceName().String(),
			Rrtype: dns.TypeTXT,
			Class:  class,
			Ttl:    s.ttlOrDefault(),
		},
		Txt: txt,
	}
}

// ARecord returns this instance's A record, or nil if IPv4 is unset.
func (s *Registerable) ARecord(unique bool) *dns.A {
	if s.IPv4 == nil {
		return nil
	}

	class := uint16(dns.ClassINET)
	if unique {
		class |= ClassFlushBit
	}

	return &dns.A{
		Hdr: dns.RR_Header{
			Name:   s.Host.String(),
			Rrtype: dns.TypeA,
			Class:  class,
			Ttl:    s.ttlOrDefault(),
		},
		A: s.IPv4,
	}
}

// AAAARecord returns this instance's AAAA record, or nil if IPv6 is unset.
func (s *Registerable) AAAARecord(unique bool) *dns.AAAA {
	if s.IPv6 == nil {
		return nil
	}

	class := uint16(dns.ClassINET)
	if unique {
		class |= ClassFlushBit
	}

	return &dns.AAAA{
		Hdr: dns.RR_Header{
			Name:   s.Host.String(),
			Rrtype: dns.TypeAAAA,
			Class:  class,
			Ttl:    s.ttlOrDefault(),
		},
		AAAA: s.IPv6,
	}
}

// Registered is a Registerable that has successfully completed probe and
// announce. Its Attributes field may be replaced after registration and the
// new value re-emitted via announce.Announcer.ReAnnounce; the rest of the
// identity (instance, type, host, port) is fixed for the life of the
// registration.
type Registered struct {
	Registerable
}

// Resolvable identifies a service instance to resolve: an instance name and
// a registration type, with no other fields populated yet.
type Resolvable struct {
	Instance names.Host
	Type     names.Rel
}

// RegistrationPointerName returns registration_type + "local.".
func (s Resolvable) RegistrationPointerName() names.FQDN {
	return s.Type.Qualify(LocalDomain)
}

// ServiceName returns instance_name + "." + registration_pointer_name.
func (s Resolvable) ServiceName() names.FQDN {
	return s.Instance.Qualify(s.RegistrationPointerName())
}

// Resolved is a Resolvable whose fields have been filled in by incoming
// SRV/TXT/A/AAAA records.
type Resolved struct {
	Resolvable
	Host       names.FQDN
	IPv4       net.IP
	IPv6       net.IP
	Port       uint16
	Attributes *Attributes
}

// Complete returns true once the §4.7.2 resolution condition holds: server
// known, attributes known, and at least one of IPv4/IPv6 known.
func (s *Resolved) Complete() bool {
	return s.Host != "" &&
		s.Attributes != nil &&
		(s.IPv4 != nil || s.IPv6 != nil)
}

// Equal returns true if s and o carry the same resolved field values; used
// by the service browser (C9) to decide whether a re-resolve warrants a
// service_updated notification.
func (s *Resolved) Equal(o *Resolved) bool {
	if o == nil {
		return false
	}

	if !strings.EqualFold(s.Host.String(), o.Host.String()) || s.Port != o.Port {
		return false
	}

	if !s.IPv4.Equal(o.IPv4) || !s.IPv6.Equal(o.IPv6) {
		return false
	}

	var a, b []string
	if s.Attributes != nil {
		a = s.Attributes.SortedPairs()
	}
	if o.Attributes != nil {
		b = o.Attributes.SortedPairs()
	}

	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

// ParseServiceName splits a fully-qualified service instance name (as found
// in a PTR record's target) into its unqualified instance name and
// registration type, given the registration pointer name it was enumerated
// under. Grounded on the teacher's dnssd.SplitInstanceName escaping rules
// (RFC 6763 §4.3: dots and backslashes within the instance portion are
// backslash-escaped).
func ParseServiceName(serviceName, registrationPointerName names.FQDN) (names.Host, names.Rel, error) {
	s := serviceName.String()
	suffix := registrationPointerName.String()

	if !strings.HasSuffix(strings.ToLower(s), "."+strings.ToLower(suffix)) {
		return "", "", &InvalidServiceNameError{Name: serviceName, Domain: registrationPointerName}
	}

	instance := unescapeInstance(s[:len(s)-len(suffix)-1])
	regType := strings.TrimSuffix(suffix, "."+LocalDomain.String())

	h, err := names.ParseHost(instance)
	if err != nil {
		return "", "", err
	}

	rel, err := names.ParseRel(regType)
	if err != nil {
		return "", "", err
	}

	return h, rel, nil
}

// unescapeInstance reverses the backslash-escaping of dots and backslashes
// within a DNS-SD <Instance> portion (RFC 6763 §4.3).
func unescapeInstance(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	esc := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if esc {
			b.WriteByte(c)
			esc = false
		} else if c == '\\' {
			esc = true
		} else {
			b.WriteByte(c)
		}
	}

	if esc {
		b.WriteByte('\\')
	}

	return b.String()
}

// InvalidServiceNameError indicates a service name did not fall under the
// expected registration pointer domain.
type InvalidServiceNameError struct {
	Name   names.FQDN
	Domain names.FQDN
}

func (e *InvalidServiceNameError) Error() string {
	return "service name '" + e.Name.String() + "' is not within '" + e.Domain.String() + "'"
}
