package wire_test

import (
	"time"

	"github.com/miekg/dns"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/kestrel-oss/meshsd/src/meshsd/record"
	"github.com/kestrel-oss/meshsd/src/meshsd/wire"
)

func aRecord(ttl time.Duration, created time.Time) *record.Record {
	rr := &dns.A{
		Hdr: dns.RR_Header{
			Name:   "lr.local.",
			Rrtype: dns.TypeA,
			Class:  dns.ClassINET,
			Ttl:    uint32(ttl.Seconds()),
		},
	}
	return record.New(rr, created)
}

var _ = Describe("AnswerBuilder", func() {
	var now time.Time

	BeforeEach(func() {
		now = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	})

	It("emits a stamped answer's remaining TTL, not its original TTL", func() {
		r := aRecord(120*time.Second, now)
		b := wire.NewAnswerBuilder(nil)

		b.AddStamped(r, now.Add(60*time.Second), true)

		msg := b.Build(false)
		Expect(msg.Answer).To(HaveLen(1))
		Expect(msg.Answer[0].Header().Ttl).To(Equal(uint32(60)))
	})

	It("drops a stamped answer that has already expired", func() {
		r := aRecord(120*time.Second, now)
		b := wire.NewAnswerBuilder(nil)

		b.AddStamped(r, now.Add(200*time.Second), true)

		Expect(b.IsEmpty()).To(BeTrue())
	})

	It("sets the cache-flush bit on unique answers, not shared ones", func() {
		r := aRecord(120*time.Second, now)
		b := wire.NewAnswerBuilder(nil)

		b.AddStamped(r, now, true)
		msg := b.Build(false)

		Expect(msg.Answer[0].Header().Class & record.ClassFlushBit).NotTo(BeZero())
	})

	It("omits the cache-flush bit for a legacy/one-shot querier", func() {
		r := aRecord(120*time.Second, now)
		b := wire.NewAnswerBuilder(nil)

		b.AddStamped(r, now, true)
		msg := b.Build(true)

		Expect(msg.Answer[0].Header().Class & record.ClassFlushBit).To(BeZero())
	})

	It("suppresses a candidate already known to the query at >= half its TTL", func() {
		query := &dns.Msg{
			Answer: []dns.RR{
				&dns.A{
					Hdr: dns.RR_Header{Name: "lr.local.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 100},
				},
			},
		}

		r := aRecord(120*time.Second, now)
		b := wire.NewAnswerBuilder(query)
		b.AddStamped(r, now, true)

		Expect(b.IsEmpty()).To(BeTrue())
	})

	It("does not suppress when the known answer's TTL is under half the candidate's", func() {
		query := &dns.Msg{
			Answer: []dns.RR{
				&dns.A{
					Hdr: dns.RR_Header{Name: "lr.local.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 10},
				},
			},
		}

		r := aRecord(120*time.Second, now)
		b := wire.NewAnswerBuilder(query)
		b.AddStamped(r, now, true)

		Expect(b.IsEmpty()).To(BeFalse())
	})
})
