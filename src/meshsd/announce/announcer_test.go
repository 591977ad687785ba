package announce_test

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/kestrel-oss/meshsd/src/meshsd/announce"
	"github.com/kestrel-oss/meshsd/src/meshsd/names"
	"github.com/kestrel-oss/meshsd/src/meshsd/record"
	"github.com/kestrel-oss/meshsd/src/meshsd/scheduler"
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

func (f *fakeSender) last() *dns.Msg {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

func testService() *record.Registerable {
	instance, err := names.ParseHost("Living Room Speaker")
	Expect(err).NotTo(HaveOccurred())

	rel, err := names.ParseRel("_music._tcp")
	Expect(err).NotTo(HaveOccurred())

	return &record.Registerable{
		Instance: instance,
		Type:     rel,
		Host:     names.FQDN("lr.local."),
		IPv4:     net.ParseIP("192.168.1.10"),
		Port:     9009,
	}
}

var _ = Describe("Announcer", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		sched  *scheduler.Scheduler
		sender *fakeSender
		wg     sync.WaitGroup
		cfg    announce.Config
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		sched = scheduler.New()
		sender = &fakeSender{}

		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sched.Run(ctx)
		}()

		cfg = announce.Config{
			ProbeNum:             2,
			ProbingInterval:      5 * time.Millisecond,
			ProbingTimeout:       30 * time.Millisecond,
			AnnouncementNum:      2,
			AnnouncementInterval: 5 * time.Millisecond,
			CancelNum:            2,
			CancellingInterval:   5 * time.Millisecond,
		}
	})

	AfterEach(func() {
		cancel()
		wg.Wait()
	})

	It("announces after the probing window passes with no conflict", func() {
		a := announce.New(sender, sched, cfg, nil)
		svc := testService()

		ok, err := a.Announce(ctx, svc)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		msg := sender.last()
		Expect(msg).NotTo(BeNil())
		Expect(msg.Authoritative).To(BeTrue())

		var sawSRV bool
		for _, rr := range msg.Answer {
			if srv, ok := rr.(*dns.SRV); ok {
				sawSRV = true
				Expect(srv.Hdr.Class & record.ClassFlushBit).NotTo(BeZero())
			}
		}
		Expect(sawSRV).To(BeTrue())
	})

	It("loses the probe and does not announce when a conflicting SRV arrives", func() {
		a := announce.New(sender, sched, cfg, nil)
		svc := testService()

		done := make(chan struct{})
		var ok bool
		var err error

		go func() {
			ok, err = a.Announce(ctx, svc)
			close(done)
		}()

		time.Sleep(2 * time.Millisecond)

		conflicting := &dns.Msg{
			Answer: []dns.RR{
				&dns.SRV{
					Hdr:    dns.RR_Header{Name: svc.ServiceName().String(), Rrtype: dns.TypeSRV, Class: dns.ClassINET},
					Target: "someone-else.local.",
				},
			},
		}
		a.HandleResponse(conflicting)

		Eventually(done, time.Second).Should(BeClosed())
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("ignores an SRV response that names the probed host itself", func() {
		a := announce.New(sender, sched, cfg, nil)
		svc := testService()

		done := make(chan struct{})
		var ok bool

		go func() {
			ok, _ = a.Announce(ctx, svc)
			close(done)
		}()

		time.Sleep(2 * time.Millisecond)

		a.HandleResponse(&dns.Msg{
			Answer: []dns.RR{
				&dns.SRV{
					Hdr:    dns.RR_Header{Name: svc.ServiceName().String(), Rrtype: dns.TypeSRV, Class: dns.ClassINET},
					Target: svc.Host.String(),
				},
			},
		})

		Eventually(done, time.Second).Should(BeClosed())
		Expect(ok).To(BeTrue())
	})

	It("re-announces without probing, carrying updated attributes", func() {
		a := announce.New(sender, sched, cfg, nil)
		svc := testService()
		svc.Attributes = record.NewAttributes()
		svc.Attributes.Set("vol", []byte("11"))

		Expect(a.ReAnnounce(ctx, svc)).To(Succeed())

		msg := sender.last()
		Expect(msg).NotTo(BeNil())

		var sawTXT bool
		for _, rr := range msg.Answer {
			if txt, ok := rr.(*dns.TXT); ok {
				sawTXT = true
				Expect(txt.Txt).To(ContainElement("vol=11"))
			}
		}
		Expect(sawTXT).To(BeTrue())
	})

	It("sends a zero-TTL goodbye batch on Cancel", func() {
		a := announce.New(sender, sched, cfg, nil)
		svc := testService()

		Expect(a.Cancel(ctx, svc)).To(Succeed())

		msg := sender.last()
		Expect(msg).NotTo(BeNil())
		Expect(msg.Answer).NotTo(BeEmpty())
		for _, rr := range msg.Answer {
			Expect(rr.Header().Ttl).To(BeZero())
		}
	})
})
