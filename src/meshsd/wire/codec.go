// Package wire provides the message codec (C1): encode/decode of mDNS
// messages with RFC 1035 §4.1.4 name compression, the answer-suppression
// rule of §4.1, and stamped/unstamped answer building. Framing and
// compression themselves are delegated to github.com/miekg/dns, the library
// the teacher uses throughout for exactly this purpose; this package adds
// the domain-specific contract spec.md requires on top.
package wire

import (
	"errors"

	"github.com/miekg/dns"
)

// Encode packs m into its wire representation, returning a *TooLargeError
// if the result would exceed MaxMessageSize.
func Encode(m *dns.Msg) ([]byte, error) {
	buf, err := m.Pack()
	if err != nil {
		return nil, err
	}

	if len(buf) > MaxMessageSize {
		return nil, &TooLargeError{Size: len(buf)}
	}

	return buf, nil
}

// Decode unpacks buf into a DNS message.
func Decode(buf []byte) (*dns.Msg, error) {
	m := new(dns.Msg)

	if err := m.Unpack(buf); err != nil {
		if errors.Is(err, dns.ErrTruncated) {
			return nil, &TruncatedError{Cause: err}
		}
		return nil, &MalformedNameError{Cause: err}
	}

	return m, nil
}
