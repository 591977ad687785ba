package transport

import (
	"context"
	"fmt"
	"net"

	ipvx4 "golang.org/x/net/ipv4"
	ipvx6 "golang.org/x/net/ipv6"
)

// Port is the mDNS port.
const Port = 5353

var (
	// IPv4Group is the mDNS multicast group for IPv4.
	//
	// See https://tools.ietf.org/html/rfc6762#section-3.
	IPv4Group = net.ParseIP("224.0.0.251")

	// IPv6Group is the mDNS multicast group for IPv6.
	//
	// See https://tools.ietf.org/html/rfc6762#section-3.
	IPv6Group = net.ParseIP("ff02::fb")

	// IPv4GroupAddress is the destination used for IPv4 multicast sends.
	IPv4GroupAddress = &net.UDPAddr{IP: IPv4Group, Port: Port}

	// IPv6GroupAddress is the destination used for IPv6 multicast sends.
	IPv6GroupAddress = &net.UDPAddr{IP: IPv6Group, Port: Port}
)

// socket is one bound, joined multicast UDP socket for a single
// interface×family pair.
type socket struct {
	iface *net.Interface
	group *net.UDPAddr

	v4 *ipvx4.PacketConn
	v6 *ipvx6.PacketConn
}

func (s *socket) readFrom(buf []byte) (n int, ifIndex int, src *net.UDPAddr, err error) {
	if s.v4 != nil {
		var cm *ipvx4.ControlMessage
		var addr net.Addr
		n, cm, addr, err = s.v4.ReadFrom(buf)
		if err != nil {
			return 0, 0, nil, err
		}
		if cm == nil {
			return 0, 0, nil, fmt.Errorf("empty control message from %s", addr)
		}
		return n, cm.IfIndex, addr.(*net.UDPAddr), nil
	}

	var cm *ipvx6.ControlMessage
	var addr net.Addr
	n, cm, addr, err = s.v6.ReadFrom(buf)
	if err != nil {
		return 0, 0, nil, err
	}
	if cm == nil {
		return 0, 0, nil, fmt.Errorf("empty control message from %s", addr)
	}
	return n, cm.IfIndex, addr.(*net.UDPAddr), nil
}

func (s *socket) writeTo(buf []byte, dst *net.UDPAddr) error {
	if s.v4 != nil {
		_, err := s.v4.WriteTo(buf, &ipvx4.ControlMessage{IfIndex: s.iface.Index}, dst)
		return err
	}

	_, err := s.v6.WriteTo(buf, &ipvx6.ControlMessage{IfIndex: s.iface.Index}, dst)
	return err
}

func (s *socket) close() error {
	if s.v4 != nil {
		return s.v4.Close()
	}
	return s.v6.Close()
}

// bindIPv4 binds one UDP socket on iface for IPv4 mDNS traffic: port 5353,
// SO_REUSEADDR, multicast TTL 255, outgoing interface bound to iface, and
// group membership joined for 224.0.0.251.
func bindIPv4(iface *net.Interface) (*socket, error) {
	lc := net.ListenConfig{Control: reuseAddrControl}

	conn, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", Port))
	if err != nil {
		return nil, err
	}

	pc := ipvx4.NewPacketConn(conn)

	if err := pc.SetControlMessage(ipvx4.FlagInterface, true); err != nil {
		pc.Close()
		return nil, err
	}

	if err := pc.SetMulticastTTL(255); err != nil {
		pc.Close()
		return nil, err
	}

	if err := pc.SetMulticastInterface(iface); err != nil {
		pc.Close()
		return nil, err
	}

	if err := pc.JoinGroup(iface, &net.UDPAddr{IP: IPv4Group}); err != nil {
		pc.Close()
		return nil, err
	}

	return &socket{iface: iface, group: IPv4GroupAddress, v4: pc}, nil
}

// bindIPv6 binds one UDP socket on iface for IPv6 mDNS traffic: port 5353,
// SO_REUSEADDR, multicast hop limit 255, outgoing interface bound to iface,
// and group membership joined for ff02::fb.
func bindIPv6(iface *net.Interface) (*socket, error) {
	lc := net.ListenConfig{Control: reuseAddrControl}

	conn, err := lc.ListenPacket(context.Background(), "udp6", fmt.Sprintf(":%d", Port))
	if err != nil {
		return nil, err
	}

	pc := ipvx6.NewPacketConn(conn)

	if err := pc.SetControlMessage(ipvx6.FlagInterface, true); err != nil {
		pc.Close()
		return nil, err
	}

	if err := pc.SetMulticastHopLimit(255); err != nil {
		pc.Close()
		return nil, err
	}

	if err := pc.SetMulticastInterface(iface); err != nil {
		pc.Close()
		return nil, err
	}

	if err := pc.JoinGroup(iface, &net.UDPAddr{IP: IPv6Group}); err != nil {
		pc.Close()
		return nil, err
	}

	return &socket{iface: iface, group: IPv6GroupAddress, v6: pc}, nil
}
