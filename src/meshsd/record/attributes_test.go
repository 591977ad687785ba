package record_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/kestrel-oss/meshsd/src/meshsd/record"
)

var _ = Describe("Attributes", func() {
	It("encodes present-with-value and present-with-no-value pairs", func() {
		a := record.NewAttributes()
		a.Set("Foo", []byte("thing"))
		a.Set("Bar", []byte("bar"))
		a.Set("EmptyValue", []byte(""))
		a.SetPresent("NoValue")

		Expect(a.SortedPairs()).To(Equal([]string{
			"Bar=bar",
			"EmptyValue=",
			"Foo=thing",
			"NoValue",
		}))
	})

	It("keeps the first write on a duplicate key", func() {
		a := record.NewAttributes()
		a.Set("Foo", []byte("one"))
		a.Set("Foo", []byte("two"))

		v, ok := a.Get("Foo")
		Expect(ok).To(BeTrue())
		Expect(string(v)).To(Equal("one"))
		Expect(a.Keys()).To(Equal([]string{"Foo"}))
	})

	It("ignores empty keys", func() {
		a := record.NewAttributes()
		a.Set("", []byte("x"))
		a.SetPresent("")

		Expect(a.Keys()).To(BeEmpty())
	})

	It("matches keys case-insensitively", func() {
		a := record.NewAttributes()
		a.Set("Foo", []byte("thing"))

		Expect(a.Has("foo")).To(BeTrue())
		v, ok := a.Get("FOO")
		Expect(ok).To(BeTrue())
		Expect(string(v)).To(Equal("thing"))
	})

	It("distinguishes absent, present-with-no-value and present-with-value", func() {
		a := record.NewAttributes()
		a.SetPresent("NoValue")

		Expect(a.Has("Missing")).To(BeFalse())
		Expect(a.Has("NoValue")).To(BeTrue())
		_, ok := a.Get("NoValue")
		Expect(ok).To(BeFalse())
	})

	It("removes a key on Delete", func() {
		a := record.NewAttributes()
		a.Set("Foo", []byte("thing"))
		a.Delete("foo")

		Expect(a.Has("Foo")).To(BeFalse())
	})
})

var _ = Describe("ParseAttributes", func() {
	It("round-trips the scenario 6 encoding", func() {
		a := record.ParseAttributes([]string{
			"Bar=bar",
			"Foo=thing",
			"NoValue",
			"EmptyValue=",
		})

		v, ok := a.Get("Foo")
		Expect(ok).To(BeTrue())
		Expect(string(v)).To(Equal("thing"))

		Expect(a.Has("NoValue")).To(BeTrue())
		_, ok = a.Get("NoValue")
		Expect(ok).To(BeFalse())

		v, ok = a.Get("EmptyValue")
		Expect(ok).To(BeTrue())
		Expect(string(v)).To(Equal(""))
	})

	It("keeps only the first occurrence of a duplicate key", func() {
		a := record.ParseAttributes([]string{"Foo=one", "Foo=two"})

		v, _ := a.Get("Foo")
		Expect(string(v)).To(Equal("one"))
	})

	It("ignores empty strings", func() {
		a := record.ParseAttributes([]string{"", "Foo=thing", ""})

		Expect(a.Keys()).To(Equal([]string{"Foo"}))
	})
})
