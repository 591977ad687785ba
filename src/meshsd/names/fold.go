package names

import "strings"

// ParseFQDN parses n as a fully-qualified domain name.
func ParseFQDN(n string) (FQDN, error) {
	v := FQDN(n)
	return v, v.Validate()
}

// MustParseFQDN parses n as a FQDN.
// It panics if n is invalid.
func MustParseFQDN(n string) FQDN {
	v, err := ParseFQDN(n)
	if err != nil {
		panic(err)
	}
	return v
}

// EqualFold returns true if a and b refer to the same DNS name under the
// ASCII case-insensitive comparison used throughout mDNS/DNS-SD (RFC 6762
// §16, RFC 1035 §2.3.3). Comparison is over the raw wire representation, not
// any escaped/human-readable form.
func EqualFold(a, b string) bool {
	return strings.EqualFold(a, b)
}

// IsWithin returns true if n is equal to, or a strict subdomain of, domain.
// Both names must be fully-qualified.
func (n FQDN) IsWithin(domain FQDN) bool {
	ns := strings.ToLower(n.String())
	ds := strings.ToLower(domain.String())

	if ns == ds {
		return true
	}

	return strings.HasSuffix(ns, "."+ds)
}
