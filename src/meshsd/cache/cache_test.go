package cache_test

import (
	"time"

	"github.com/miekg/dns"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/kestrel-oss/meshsd/src/meshsd/cache"
	"github.com/kestrel-oss/meshsd/src/meshsd/record"
)

func srvRecord(name string, ttl uint32, created time.Time) *record.Record {
	return record.New(&dns.SRV{
		Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeSRV, Class: dns.ClassINET, Ttl: ttl},
		Target: "lr.local.",
		Port:   9009,
	}, created)
}

var _ = Describe("Cache", func() {
	var (
		c   *cache.Cache
		now time.Time
	)

	BeforeEach(func() {
		c = cache.New()
		now = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	})

	It("replaces an existing record with the same (name, type, class)", func() {
		r1 := srvRecord("LivingRoom._music._tcp.local.", 120, now)
		r2 := srvRecord("LivingRoom._music._tcp.local.", 120, now)
		r2.RR.(*dns.SRV).Port = 9010

		c.Add(r1)
		c.Add(r2)

		got, ok := c.Get("LivingRoom._music._tcp.local.", dns.TypeSRV, dns.ClassINET)
		Expect(ok).To(BeTrue())
		Expect(got.RR.(*dns.SRV).Port).To(Equal(uint16(9010)))
		Expect(c.Entries("livingroom._music._tcp.local.")).To(HaveLen(1))
	})

	It("matches lookups case-insensitively", func() {
		c.Add(srvRecord("LivingRoom._music._tcp.local.", 120, now))

		_, ok := c.Get("LIVINGROOM._MUSIC._TCP.LOCAL.", dns.TypeSRV, dns.ClassINET)
		Expect(ok).To(BeTrue())
	})

	It("wildcards ANY on lookup type and class", func() {
		c.Add(srvRecord("LivingRoom._music._tcp.local.", 120, now))

		_, ok := c.Get("LivingRoom._music._tcp.local.", dns.TypeANY, dns.ClassANY)
		Expect(ok).To(BeTrue())
	})

	It("drops the TTL to the expiry TTL on Expire, observable by the reaper", func() {
		r := srvRecord("LivingRoom._music._tcp.local.", 120, now)
		c.Add(r)

		c.Expire(r, now)

		got, _ := c.Get("LivingRoom._music._tcp.local.", dns.TypeSRV, dns.ClassINET)
		Expect(got.RemainingTTL(now.Add(record.ExpiryTTL + time.Millisecond))).To(BeZero())
	})

	It("removes expired records and empty buckets on Clean", func() {
		c.Add(srvRecord("Gone._music._tcp.local.", 1, now))
		c.Add(srvRecord("Still._music._tcp.local.", 120, now))

		c.Clean(now.Add(2 * time.Second))

		Expect(c.Entries("Gone._music._tcp.local.")).To(BeEmpty())
		Expect(c.Entries("Still._music._tcp.local.")).To(HaveLen(1))
	})

	It("drops the whole bucket on RemoveAll", func() {
		c.Add(srvRecord("LivingRoom._music._tcp.local.", 120, now))
		c.RemoveAll("LivingRoom._music._tcp.local.")

		Expect(c.Entries("LivingRoom._music._tcp.local.")).To(BeEmpty())
	})

	It("drops everything on Clear", func() {
		c.Add(srvRecord("A._music._tcp.local.", 120, now))
		c.Add(srvRecord("B._music._tcp.local.", 120, now))

		c.Clear()

		Expect(c.Entries("A._music._tcp.local.")).To(BeEmpty())
		Expect(c.Entries("B._music._tcp.local.")).To(BeEmpty())
	})
})
