package record_test

import (
	"net"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/kestrel-oss/meshsd/src/meshsd/names"
	"github.com/kestrel-oss/meshsd/src/meshsd/record"
)

var _ = Describe("Registerable", func() {
	var s *record.Registerable

	BeforeEach(func() {
		attrs := record.NewAttributes()
		attrs.SetPresent("Some Text")

		s = &record.Registerable{
			Instance:   names.MustParseHost("LivingRoom"),
			Type:       names.MustParseRel("_music._tcp"),
			Host:       names.MustParseFQDN("lr.local."),
			IPv4:       net.ParseIP("192.168.1.10"),
			Port:       9009,
			Attributes: attrs,
		}
	})

	It("derives the registration pointer name", func() {
		Expect(s.RegistrationPointerName().String()).To(Equal("_music._tcp.local."))
	})

	It("derives the qualified service name", func() {
		Expect(s.ServiceName().String()).To(Equal("LivingRoom._music._tcp.local."))
	})

	It("builds a PTR record pointing the registration type at the service name", func() {
		ptr := s.PTRRecord()

		Expect(ptr.Hdr.Name).To(Equal("_music._tcp.local."))
		Expect(ptr.Ptr).To(Equal("LivingRoom._music._tcp.local."))
	})

	It("builds an SRV record with the unique bit set when requested", func() {
		srv := s.SRVRecord(true)

		Expect(srv.Port).To(Equal(uint16(9009)))
		Expect(srv.Target).To(Equal("lr.local."))
		Expect(srv.Hdr.Class & record.ClassFlushBit).NotTo(BeZero())
	})

	It("builds an A record only when IPv4 is set", func() {
		Expect(s.ARecord(false)).NotTo(BeNil())

		s.IPv4 = nil
		Expect(s.ARecord(false)).To(BeNil())
	})

	It("omits AAAA when IPv6 is unset", func() {
		Expect(s.AAAARecord(false)).To(BeNil())
	})
})

var _ = Describe("ParseServiceName", func() {
	It("splits an unescaped instance name from its registration type", func() {
		instance, regType, err := record.ParseServiceName(
			names.MustParseFQDN("LivingRoom._music._tcp.local."),
			names.MustParseFQDN("_music._tcp.local."),
		)

		Expect(err).ShouldNot(HaveOccurred())
		Expect(instance.String()).To(Equal("LivingRoom"))
		Expect(regType.String()).To(Equal("_music._tcp"))
	})

	It("unescapes a dot embedded in the instance portion", func() {
		instance, _, err := record.ParseServiceName(
			names.MustParseFQDN(`Office\.Printer._http._tcp.local.`),
			names.MustParseFQDN("_http._tcp.local."),
		)

		Expect(err).ShouldNot(HaveOccurred())
		Expect(instance.String()).To(Equal("Office.Printer"))
	})

	It("rejects a service name outside the given registration pointer name", func() {
		_, _, err := record.ParseServiceName(
			names.MustParseFQDN("LivingRoom._music._tcp.local."),
			names.MustParseFQDN("_http._tcp.local."),
		)

		Expect(err).Should(HaveOccurred())
	})
})

var _ = Describe("Resolved", func() {
	It("is complete only once server, attributes and an address are all known", func() {
		r := &record.Resolved{}
		Expect(r.Complete()).To(BeFalse())

		r.Host = names.MustParseFQDN("lr.local.")
		Expect(r.Complete()).To(BeFalse())

		r.Attributes = record.NewAttributes()
		Expect(r.Complete()).To(BeFalse())

		r.IPv4 = net.ParseIP("192.168.1.10")
		Expect(r.Complete()).To(BeTrue())
	})

	It("compares equal when host, port, addresses and attributes all match", func() {
		a := &record.Resolved{
			Host:       names.MustParseFQDN("lr.local."),
			Port:       9009,
			IPv4:       net.ParseIP("192.168.1.10"),
			Attributes: record.NewAttributes(),
		}
		b := &record.Resolved{
			Host:       names.MustParseFQDN("LR.LOCAL."),
			Port:       9009,
			IPv4:       net.ParseIP("192.168.1.10"),
			Attributes: record.NewAttributes(),
		}

		Expect(a.Equal(b)).To(BeTrue())

		b.Port = 9010
		Expect(a.Equal(b)).To(BeFalse())
	})
})
