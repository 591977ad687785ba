package transport

import "net"

// Endpoint identifies the origin or destination of a message: an interface
// and a UDP address.
type Endpoint struct {
	InterfaceIndex int
	Address        *net.UDPAddr
}

// IsLegacy reports whether this endpoint belongs to a querier that does not
// implement the full mDNS specification and expects a standard unicast
// response.
//
// See https://tools.ietf.org/html/rfc6762#section-6.7.
func (ep Endpoint) IsLegacy() bool {
	return ep.Address.Port != Port
}
