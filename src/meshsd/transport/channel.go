// Package transport implements the channel/reactor (C3): one bound UDP
// socket per interface×family, a FIFO sender, and a receiver that decodes
// and fans inbound messages out to a single consumer.
package transport

import (
	"context"
	"net"
	"sync"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/miekg/dns"

	"github.com/kestrel-oss/meshsd/src/meshsd/wire"
)

// Inbound is a decoded message paired with where it came from.
type Inbound struct {
	Source  Endpoint
	Message *dns.Msg
}

// Consumer receives every successfully decoded inbound message. It is
// called from the channel's receiver goroutines and must not block for
// long.
type Consumer func(Inbound)

type binding struct {
	iface *net.Interface
	v4    *socket
	v6    *socket
}

type outbound struct {
	msg *dns.Msg

	// dest is nil for a multicast send (to every joined socket's own group
	// address) or set for a unicast reply.
	dest    *net.UDPAddr
	ifIndex int // 0 means "every bound interface"
}

// Channel is a bound, joined mDNS reactor spanning every usable interface.
// Open it with Open, give it a Consumer, then Enable to start sending and
// receiving.
type Channel struct {
	Consumer Consumer
	Logger   logging.Logger

	sendQ chan outbound

	mu       sync.Mutex
	bindings []*binding
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	enabled  bool
	closed   bool
}

// Open binds one socket per interface×family across ifaces, preferring
// non-loopback interfaces and falling back to loopback only if none of
// them yield a socket. It fails with ErrNoInterface if no socket could be
// bound anywhere.
func Open(ifaces []net.Interface, logger logging.Logger) (*Channel, error) {
	c := &Channel{
		Logger: logger,
		sendQ:  make(chan outbound, 64),
	}

	var loopback []net.Interface
	var rest []net.Interface

	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			loopback = append(loopback, iface)
		} else {
			rest = append(rest, iface)
		}
	}

	c.bindAll(rest)

	if len(c.bindings) == 0 {
		c.bindAll(loopback)
	}

	if len(c.bindings) == 0 {
		return nil, ErrNoInterface
	}

	return c, nil
}

func (c *Channel) bindAll(ifaces []net.Interface) {
	for i := range ifaces {
		iface := ifaces[i]

		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}

		b := &binding{iface: &iface}

		if s, err := bindIPv4(&iface); err == nil {
			b.v4 = s
		} else {
			logging.Log(c.Logger, "unable to bind IPv4 mDNS socket on %s: %s", iface.Name, err)
		}

		if s, err := bindIPv6(&iface); err == nil {
			b.v6 = s
		} else {
			logging.Log(c.Logger, "unable to bind IPv6 mDNS socket on %s: %s", iface.Name, err)
		}

		if b.v4 == nil && b.v6 == nil {
			continue
		}

		c.bindings = append(c.bindings, b)
	}
}

// Enable starts the sender and receiver workers. Calling it more than once
// is a no-op.
func (c *Channel) Enable(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.enabled {
		return
	}
	c.enabled = true

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	for _, b := range c.bindings {
		b := b

		if b.v4 != nil {
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				c.receive(ctx, b.v4)
			}()
		}

		if b.v6 != nil {
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				c.receive(ctx, b.v6)
			}()
		}
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.sendLoop(ctx)
	}()
}

// Close wakes the receiver(s), stops the sender, and closes every bound
// socket, best-effort. It is idempotent.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	bindings := c.bindings
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var firstErr error
	for _, b := range bindings {
		if b.v4 != nil {
			if err := b.v4.close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if b.v6 != nil {
			if err := b.v6.close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	c.wg.Wait()

	if firstErr != nil {
		return &Error{Kind: ErrKindIO, Cause: firstErr}
	}
	return nil
}

// Send multicasts m to the mDNS group, on every joined socket of the
// matching family.
func (c *Channel) Send(m *dns.Msg) {
	c.enqueue(outbound{msg: m})
}

// SendTo unicasts m back to source, via the socket bound on source's
// interface.
func (c *Channel) SendTo(m *dns.Msg, source Endpoint) {
	c.enqueue(outbound{msg: m, dest: source.Address, ifIndex: source.InterfaceIndex})
}

func (c *Channel) enqueue(o outbound) {
	select {
	case c.sendQ <- o:
	default:
		logging.Log(c.Logger, "outbound mDNS queue full, dropping message")
	}
}

func (c *Channel) sendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case o := <-c.sendQ:
			c.deliver(o)
		}
	}
}

func (c *Channel) deliver(o outbound) {
	data, err := wire.Encode(o.msg)
	if err != nil {
		logging.Log(c.Logger, "unable to encode outbound mDNS message: %s", err)
		return
	}

	for _, b := range c.bindings {
		if o.ifIndex != 0 && b.iface.Index != o.ifIndex {
			continue
		}

		if b.v4 != nil && (o.dest == nil || o.dest.IP.To4() != nil) {
			dest := o.dest
			if dest == nil {
				dest = IPv4GroupAddress
			}
			if err := b.v4.writeTo(data, dest); err != nil {
				logging.Log(c.Logger, "unable to send mDNS message via %s: %s", b.iface.Name, err)
			}
		}

		if b.v6 != nil && (o.dest == nil || o.dest.IP.To4() == nil) {
			dest := o.dest
			if dest == nil {
				dest = IPv6GroupAddress
			}
			if err := b.v6.writeTo(data, dest); err != nil {
				logging.Log(c.Logger, "unable to send mDNS message via %s: %s", b.iface.Name, err)
			}
		}
	}
}

func (c *Channel) receive(ctx context.Context, s *socket) {
	for {
		buf := getBuffer()

		n, ifIndex, src, err := s.readFrom(buf)
		if err != nil {
			putBuffer(buf)

			select {
			case <-ctx.Done():
				return
			default:
			}

			if isClosedError(err) {
				return
			}

			logging.Log(c.Logger, "mDNS receive error: %s", err)
			return
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		putBuffer(buf)

		m, err := wire.Decode(data)
		if err != nil {
			logging.Log(c.Logger, "dropping malformed mDNS message from %s: %s", src, err)
			continue
		}

		if c.Consumer != nil {
			c.Consumer(Inbound{
				Source:  Endpoint{InterfaceIndex: ifIndex, Address: src},
				Message: m,
			})
		}
	}
}

func isClosedError(err error) bool {
	for {
		e, ok := err.(*net.OpError)
		if !ok {
			return false
		}

		if e.Err.Error() == "use of closed network connection" {
			return true
		}

		err = e.Err
	}
}
