package catalog

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func price(v float64) *float64 { return &v }

var _ = Describe("Parse", func() {
	It("should extract one product per priced line", func() {
		products := Parse("Solar Panel 300W $149.99\nBattery Pack 12V 89.50\nx\n")
		Expect(products).To(Equal([]Product{
			{Name: "Solar Panel 300W", Price: price(149.99), RawLine: "Solar Panel 300W $149.99", Condition: "New"},
			{Name: "Battery Pack 12V", Price: price(89.50), RawLine: "Battery Pack 12V 89.50", Condition: "New"},
		}))
	})

	It("should keep lines without a price", func() {
		products := Parse("Garden Hose")
		Expect(products).To(HaveLen(1))
		Expect(products[0].Price).To(BeNil())
		Expect(products[0].Name).To(Equal("Garden Hose"))
	})

	It("should return an empty list for empty input", func() {
		Expect(Parse("")).To(BeEmpty())
		Expect(Parse("\n\n   \n")).NotTo(BeNil())
	})

	It("should drop lines whose name is too short once the price is removed", func() {
		Expect(Parse("ab $1.00")).To(BeEmpty())
		Expect(Parse("$12.99")).To(BeEmpty())
	})

	It("should trim surrounding whitespace", func() {
		products := Parse("   Desk Lamp   $24.00   ")
		Expect(products[0].Name).To(Equal("Desk Lamp"))
		Expect(products[0].RawLine).To(Equal("Desk Lamp   $24.00"))
	})

	It("should preserve order", func() {
		products := Parse("Alpha 1.00\nBravo 2.00\nCharlie 3.00")
		names := []string{}
		for _, p := range products {
			names = append(names, p.Name)
		}
		Expect(names).To(Equal([]string{"Alpha", "Bravo", "Charlie"}))
	})
})

var _ = Describe("ParseLine", func() {
	When("the line carries several prices", func() {
		It("should use only the first and leave the rest in the name", func() {
			p, ok := ParseLine("was $10.00 now $7.00")
			Expect(ok).To(BeTrue())
			Expect(*p.Price).To(Equal(10.0))
			Expect(p.Name).To(Equal("was  now $7.00"))
		})
	})

	When("the price uses a comma separator", func() {
		It("should drop the comma before parsing", func() {
			p, ok := ParseLine("Pillow 12,50")
			Expect(ok).To(BeTrue())
			Expect(*p.Price).To(Equal(1250.0))
		})
	})

	When("a number has more than two decimals", func() {
		It("should match the leading two", func() {
			p, ok := ParseLine("Bolt 3.125 kit")
			Expect(ok).To(BeTrue())
			Expect(*p.Price).To(Equal(3.12))
			Expect(p.Name).To(Equal("Bolt 5 kit"))
		})
	})

	It("should default condition and category", func() {
		p, ok := ParseLine("Kettle 19.99")
		Expect(ok).To(BeTrue())
		Expect(p.Condition).To(Equal(DefaultCondition))
		Expect(p.Category).To(BeEmpty())
	})

	It("should count characters, not bytes", func() {
		_, ok := ParseLine("€€")
		Expect(ok).To(BeFalse())
		_, ok = ParseLine("Café 3.00")
		Expect(ok).To(BeTrue())
	})

	It("should reproduce itself from its raw line", func() {
		for _, line := range []string{"Solar Panel 300W $149.99", "was $10.00 now $7.00", "Garden Hose", "Pillow 12,50"} {
			first, ok := ParseLine(line)
			Expect(ok).To(BeTrue())
			second, ok := ParseLine(first.RawLine)
			Expect(ok).To(BeTrue())
			Expect(second).To(Equal(first))
		}
	})
})
