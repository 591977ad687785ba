package wire_test

import (
	"net"

	"github.com/miekg/dns"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/kestrel-oss/meshsd/src/meshsd/wire"
)

func sampleMessage() *dns.Msg {
	m := &dns.Msg{}
	m.Compress = true
	m.Answer = []dns.RR{
		&dns.PTR{
			Hdr: dns.RR_Header{Name: "_music._tcp.local.", Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: 120},
			Ptr: "LivingRoom._music._tcp.local.",
		},
		&dns.SRV{
			Hdr:      dns.RR_Header{Name: "LivingRoom._music._tcp.local.", Rrtype: dns.TypeSRV, Class: dns.ClassINET, Ttl: 120},
			Target:   "lr.local.",
			Port:     9009,
			Priority: 0,
			Weight:   0,
		},
		&dns.A{
			Hdr: dns.RR_Header{Name: "lr.local.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 120},
			A:   net.ParseIP("192.168.1.10"),
		},
	}
	return m
}

var _ = Describe("Encode/Decode", func() {
	It("round-trips a message's names, types, classes and record payloads", func() {
		m := sampleMessage()

		buf, err := wire.Encode(m)
		Expect(err).ShouldNot(HaveOccurred())

		decoded, err := wire.Decode(buf)
		Expect(err).ShouldNot(HaveOccurred())

		Expect(decoded.Answer).To(HaveLen(3))
		Expect(decoded.Answer[0].Header().Name).To(Equal("_music._tcp.local."))
		Expect(decoded.Answer[1].(*dns.SRV).Target).To(Equal("lr.local."))
		Expect(decoded.Answer[2].(*dns.A).A.String()).To(Equal("192.168.1.10"))
	})

	It("preserves names under repeated-suffix compression", func() {
		m := sampleMessage()

		buf, err := wire.Encode(m)
		Expect(err).ShouldNot(HaveOccurred())

		decoded, err := wire.Decode(buf)
		Expect(err).ShouldNot(HaveOccurred())

		srv := decoded.Answer[1].(*dns.SRV)
		Expect(srv.Hdr.Name).To(Equal("LivingRoom._music._tcp.local."))
	})

	It("returns a TooLargeError when encoding would exceed MaxMessageSize", func() {
		m := &dns.Msg{}
		for i := 0; i < 5000; i++ {
			m.Answer = append(m.Answer, &dns.TXT{
				Hdr: dns.RR_Header{Name: "overflow.local.", Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: 120},
				Txt: []string{"padding-to-make-this-message-very-large-indeed"},
			})
		}

		_, err := wire.Encode(m)
		Expect(err).Should(HaveOccurred())

		_, ok := err.(*wire.TooLargeError)
		Expect(ok).To(BeTrue())
	})

	It("returns a MalformedNameError on garbage input", func() {
		_, err := wire.Decode([]byte{0xff, 0xff, 0xff})
		Expect(err).Should(HaveOccurred())
	})
})
