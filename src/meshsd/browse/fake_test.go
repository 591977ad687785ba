package browse_test

import (
	"sync"

	"github.com/miekg/dns"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []*dns.Msg
}

func (f *fakeSender) Send(m *dns.Msg) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, m)
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}
