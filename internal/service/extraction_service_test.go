package service

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"invox/internal/models"
	"invox/internal/textract"
)

var _ = Describe("ExtractionService", func() {
	var svc *ExtractionService

	BeforeEach(func() {
		svc = NewExtractionService(zap.NewNop())
	})

	parse := func(text string) *models.Invoice {
		return svc.Parse(textract.RawText{Pages: []string{text}})
	}

	Describe("Parse", func() {
		When("given a conventional invoice", func() {
			var inv *models.Invoice

			BeforeEach(func() {
				inv = parse(sampleInvoiceText)
			})

			It("extracts the vendor from the company suffix heuristic", func() {
				Expect(inv.VendorName).NotTo(BeNil())
				Expect(*inv.VendorName).To(Equal("ABC Corporation"))
			})

			It("extracts the invoice number", func() {
				Expect(inv.InvoiceNumber).NotTo(BeNil())
				Expect(*inv.InvoiceNumber).To(Equal("INV-2024-001234"))
			})

			It("extracts the invoice date", func() {
				Expect(inv.InvoiceDate).NotTo(BeNil())
				Expect(*inv.InvoiceDate).To(Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)))
			})

			It("extracts the currency code", func() {
				Expect(inv.Currency).NotTo(BeNil())
				Expect(*inv.Currency).To(Equal("USD"))
			})

			It("extracts the monetary summary", func() {
				Expect(inv.Subtotal).NotTo(BeNil())
				Expect(*inv.Subtotal).To(BeNumerically("~", 3000.00, 0.001))
				Expect(inv.Tax).NotTo(BeNil())
				Expect(*inv.Tax).To(BeNumerically("~", 255.00, 0.001))
				Expect(inv.TotalAmount).NotTo(BeNil())
				Expect(*inv.TotalAmount).To(BeNumerically("~", 3255.00, 0.001))
			})

			It("extracts every line item row", func() {
				Expect(inv.LineItems).To(HaveLen(3))
				Expect(inv.LineItems[0].ProductName).To(Equal("Consulting Services"))
				Expect(*inv.LineItems[0].Quantity).To(BeNumerically("~", 10, 0.001))
				Expect(*inv.LineItems[0].UnitPrice).To(BeNumerically("~", 150.00, 0.001))
				Expect(*inv.LineItems[0].Amount).To(BeNumerically("~", 1500.00, 0.001))
				Expect(inv.LineItems[2].ProductName).To(Equal("Support Package"))
			})
		})

		When("the text is empty", func() {
			It("returns a candidate with every field absent", func() {
				inv := parse("")
				Expect(inv.VendorName).To(BeNil())
				Expect(inv.InvoiceNumber).To(BeNil())
				Expect(inv.InvoiceDate).To(BeNil())
				Expect(inv.Subtotal).To(BeNil())
				Expect(inv.Tax).To(BeNil())
				Expect(inv.TotalAmount).To(BeNil())
				Expect(inv.LineItems).To(BeEmpty())
			})
		})

		When("one field is malformed", func() {
			It("still extracts the others", func() {
				inv := parse("Invoice Number: INV-55\nTotal Due: not-a-number\nSubtotal: $10.00")
				Expect(inv.InvoiceNumber).NotTo(BeNil())
				Expect(*inv.InvoiceNumber).To(Equal("INV-55"))
				Expect(inv.TotalAmount).To(BeNil())
				Expect(inv.Subtotal).NotTo(BeNil())
			})
		})

		Describe("date formats", func() {
			It("parses US-style slash dates", func() {
				inv := parse("Invoice Date: 01/15/2024")
				Expect(inv.InvoiceDate).NotTo(BeNil())
				Expect(inv.InvoiceDate.Month()).To(Equal(time.January))
				Expect(inv.InvoiceDate.Day()).To(Equal(15))
			})

			It("falls back to day-first when month-first cannot parse", func() {
				inv := parse("Invoice Date: 15/01/2024")
				Expect(inv.InvoiceDate).NotTo(BeNil())
				Expect(inv.InvoiceDate.Month()).To(Equal(time.January))
				Expect(inv.InvoiceDate.Day()).To(Equal(15))
			})

			It("leaves an unparseable date absent", func() {
				inv := parse("Invoice Date: 99/99/9999")
				Expect(inv.InvoiceDate).To(BeNil())
			})
		})

		Describe("GST components", func() {
			var inv *models.Invoice

			BeforeEach(func() {
				inv = parse(`XYZ Traders Ltd.
Invoice No: 2024-77
Subtotal: 1000.00
CGST (9%): 90.00
SGST (9%): 90.00
Total Due: 1180.00`)
			})

			It("extracts both component rates and amounts", func() {
				Expect(*inv.CGSTRate).To(BeNumerically("~", 9, 0.001))
				Expect(*inv.CGSTAmount).To(BeNumerically("~", 90.00, 0.001))
				Expect(*inv.SGSTRate).To(BeNumerically("~", 9, 0.001))
				Expect(*inv.SGSTAmount).To(BeNumerically("~", 90.00, 0.001))
			})

			It("derives the tax total from the components when no tax line exists", func() {
				Expect(inv.Tax).NotTo(BeNil())
				Expect(*inv.Tax).To(BeNumerically("~", 180.00, 0.001))
			})
		})

		Describe("discount", func() {
			It("extracts percentage and amount", func() {
				inv := parse("Subtotal: $200.00\nDiscount (10%): $20.00\nTotal Due: $180.00")
				Expect(*inv.DiscountPercentage).To(BeNumerically("~", 10, 0.001))
				Expect(*inv.DiscountAmount).To(BeNumerically("~", 20.00, 0.001))
			})

			It("extracts an amount-only discount", func() {
				inv := parse("Discount: $15.00")
				Expect(inv.DiscountPercentage).To(BeNil())
				Expect(*inv.DiscountAmount).To(BeNumerically("~", 15.00, 0.001))
			})
		})

		Describe("currency fallbacks", func() {
			It("infers INR from the rupee symbol", func() {
				inv := parse("Total Due: ₹500.00")
				Expect(inv.Currency).NotTo(BeNil())
				Expect(*inv.Currency).To(Equal("INR"))
			})

			It("infers USD from the dollar symbol", func() {
				inv := parse("Total Due: $500.00")
				Expect(inv.Currency).NotTo(BeNil())
				Expect(*inv.Currency).To(Equal("USD"))
			})

			It("prefers an explicit currency line over symbols", func() {
				inv := parse("Currency: EUR\nTotal Due: $500.00")
				Expect(*inv.Currency).To(Equal("EUR"))
			})
		})

		It("uses the bare total line only when no labelled total exists", func() {
			inv := parse("Total: $42.00")
			Expect(inv.TotalAmount).NotTo(BeNil())
			Expect(*inv.TotalAmount).To(BeNumerically("~", 42.00, 0.001))
		})
	})

	Describe("parseAmount", func() {
		It("tolerates currency symbols and thousands separators", func() {
			Expect(parseAmount("$1,234.56")).To(HaveValue(BeNumerically("~", 1234.56, 0.001)))
			Expect(parseAmount("₹2,000.00")).To(HaveValue(BeNumerically("~", 2000.00, 0.001)))
		})

		It("returns nil for garbage", func() {
			Expect(parseAmount("abc")).To(BeNil())
			Expect(parseAmount("")).To(BeNil())
		})
	})
})
