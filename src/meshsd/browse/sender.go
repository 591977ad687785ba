// Package browse implements the registration-type browser (C8) and the
// service browser (C9): continuous PTR discovery driven by the
// scheduler's increasing-rate task, feeding a per-service resolve via C7.
package browse

import "github.com/miekg/dns"

// Sender multicasts an mDNS message. Satisfied by *transport.Channel.
type Sender interface {
	Send(m *dns.Msg)
}

// ListenerHandle detaches a listener previously registered with Listen.
// Close is idempotent.
type ListenerHandle struct {
	closeFn func()
}

// Close detaches the listener. Safe to call more than once.
func (h *ListenerHandle) Close() {
	if h.closeFn != nil {
		h.closeFn()
		h.closeFn = nil
	}
}
