package service

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"invox/internal/models"
)

var _ = Describe("ValidationService", func() {
	var (
		store   *mockInvoiceStore
		svc     *ValidationService
		ownerID uuid.UUID
		ctx     context.Context
	)

	// cleanInvoice passes every blocking rule and raises no warnings.
	cleanInvoice := func() *models.Invoice {
		date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
		return &models.Invoice{
			VendorName:    str("ABC Corporation"),
			InvoiceNumber: str("INV-100"),
			InvoiceDate:   &date,
			Currency:      str("USD"),
			Subtotal:      f64(100.00),
			Tax:           f64(8.00),
			TotalAmount:   f64(108.00),
			LineItems: []models.LineItem{
				{ProductName: "Widget", Quantity: f64(4), UnitPrice: f64(25.00), Amount: f64(100.00)},
			},
		}
	}

	BeforeEach(func() {
		store = newMockInvoiceStore()
		svc = NewValidationService(store, zap.NewNop())
		ownerID = uuid.New()
		ctx = context.Background()
	})

	When("the candidate passes every rule", func() {
		It("assigns PENDING with no findings", func() {
			errs, warns, status := svc.Validate(ctx, cleanInvoice(), ownerID)
			Expect(errs).To(BeEmpty())
			Expect(warns).To(BeEmpty())
			Expect(status).To(Equal(models.StatusPending))
		})

		It("is idempotent", func() {
			inv := cleanInvoice()
			errs1, warns1, status1 := svc.Validate(ctx, inv, ownerID)
			errs2, warns2, status2 := svc.Validate(ctx, inv, ownerID)
			Expect(errs2).To(Equal(errs1))
			Expect(warns2).To(Equal(warns1))
			Expect(status2).To(Equal(status1))
		})
	})

	When("multiple required fields are missing", func() {
		It("accumulates one finding per failure instead of stopping at the first", func() {
			errs, _, status := svc.Validate(ctx, &models.Invoice{}, ownerID)

			fields := make([]string, 0, len(errs))
			for _, f := range errs {
				fields = append(fields, f.Field)
			}
			Expect(fields).To(ContainElements("vendor_name", "invoice_number", "total_amount"))
			Expect(status).To(Equal(models.StatusReviewRequired))
		})
	})

	Describe("amount integrity", func() {
		It("rejects a non-positive total", func() {
			inv := cleanInvoice()
			inv.TotalAmount = f64(0)
			errs, _, status := svc.Validate(ctx, inv, ownerID)
			Expect(errs).NotTo(BeEmpty())
			Expect(status).To(Equal(models.StatusReviewRequired))
		})

		It("rejects a negative subtotal", func() {
			inv := cleanInvoice()
			inv.Subtotal = f64(-5.00)
			errs, _, _ := svc.Validate(ctx, inv, ownerID)
			Expect(errs).NotTo(BeEmpty())
		})

		It("rejects a negative tax", func() {
			inv := cleanInvoice()
			inv.Tax = f64(-1.00)
			errs, _, _ := svc.Validate(ctx, inv, ownerID)
			Expect(errs).NotTo(BeEmpty())
		})
	})

	Describe("arithmetic", func() {
		It("accepts subtotal - discount + tax = total within one cent", func() {
			inv := cleanInvoice()
			inv.DiscountAmount = f64(10.00)
			inv.TotalAmount = f64(98.00)
			errs, _, status := svc.Validate(ctx, inv, ownerID)
			Expect(errs).To(BeEmpty())
			Expect(status).To(Equal(models.StatusPending))
		})

		It("blocks a total that does not add up", func() {
			inv := cleanInvoice()
			inv.TotalAmount = f64(110.00)
			errs, _, status := svc.Validate(ctx, inv, ownerID)
			Expect(errs).To(HaveLen(1))
			Expect(errs[0].Field).To(Equal("total_amount"))
			Expect(errs[0].Message).To(ContainSubstring("Math error"))
			Expect(status).To(Equal(models.StatusReviewRequired))
		})

		It("skips the check when the subtotal is absent", func() {
			inv := cleanInvoice()
			inv.Subtotal = nil
			errs, _, _ := svc.Validate(ctx, inv, ownerID)
			Expect(errs).To(BeEmpty())
		})
	})

	Describe("line item math", func() {
		It("blocks a row where qty x price does not equal the amount", func() {
			inv := cleanInvoice()
			inv.LineItems[0].Amount = f64(90.00)
			inv.Subtotal = nil // keep the arithmetic and subtotal checks out of the way
			inv.Tax = nil
			errs, _, _ := svc.Validate(ctx, inv, ownerID)
			Expect(errs).To(HaveLen(1))
			Expect(errs[0].Field).To(Equal("line_items[0]"))
		})

		It("ignores rows with absent components", func() {
			inv := cleanInvoice()
			inv.LineItems[0].Quantity = nil
			errs, _, _ := svc.Validate(ctx, inv, ownerID)
			Expect(errs).To(BeEmpty())
		})
	})

	Describe("warnings", func() {
		It("warns on missing tax, date and currency without blocking", func() {
			inv := cleanInvoice()
			inv.Tax = nil
			inv.InvoiceDate = nil
			inv.Currency = nil
			errs, warns, status := svc.Validate(ctx, inv, ownerID)

			fields := make([]string, 0, len(warns))
			for _, f := range warns {
				fields = append(fields, f.Field)
			}
			Expect(errs).To(BeEmpty())
			Expect(fields).To(ContainElements("tax", "invoice_date", "currency"))
			Expect(status).To(Equal(models.StatusPending))
		})

		It("warns on an unusually large total", func() {
			inv := cleanInvoice()
			inv.Subtotal = f64(2_000_000)
			inv.Tax = f64(0)
			inv.TotalAmount = f64(2_000_000)
			inv.LineItems = nil
			_, warns, status := svc.Validate(ctx, inv, ownerID)

			messages := make([]string, 0, len(warns))
			for _, f := range warns {
				messages = append(messages, f.Message)
			}
			Expect(messages).To(ContainElement(ContainSubstring("Unusually large")))
			Expect(status).To(Equal(models.StatusPending))
		})

		It("warns when line items drift from the subtotal beyond tolerance", func() {
			inv := cleanInvoice()
			inv.LineItems[0].Amount = nil
			inv.LineItems = append(inv.LineItems, models.LineItem{
				ProductName: "Gadget", Amount: f64(90.00),
			})
			_, warns, _ := svc.Validate(ctx, inv, ownerID)

			fields := make([]string, 0, len(warns))
			for _, f := range warns {
				fields = append(fields, f.Field)
			}
			Expect(fields).To(ContainElement("subtotal"))
		})

		It("tolerates line item rounding within one unit", func() {
			inv := cleanInvoice()
			inv.LineItems[0].Amount = f64(99.50)
			inv.LineItems[0].Quantity = nil
			_, warns, _ := svc.Validate(ctx, inv, ownerID)
			Expect(warns).To(BeEmpty())
		})

		It("warns when the discount amount disagrees with the percentage", func() {
			inv := cleanInvoice()
			inv.DiscountPercentage = f64(10)
			inv.DiscountAmount = f64(10.00)
			inv.TotalAmount = f64(98.00)
			_, warns, _ := svc.Validate(ctx, inv, ownerID)
			Expect(warns).To(BeEmpty())

			inv.DiscountAmount = f64(25.00)
			inv.TotalAmount = f64(83.00)
			_, warns, _ = svc.Validate(ctx, inv, ownerID)

			fields := make([]string, 0, len(warns))
			for _, f := range warns {
				fields = append(fields, f.Field)
			}
			Expect(fields).To(ContainElement("discount_amount"))
		})
	})

	Describe("duplicate detection", func() {
		seed := func(owner uuid.UUID, vendor, number string) {
			store.invoices[uuid.New()] = &models.Invoice{
				ID:            uuid.New(),
				OwnerID:       owner,
				VendorName:    str(vendor),
				InvoiceNumber: str(number),
				Status:        models.StatusPending,
			}
		}

		It("blocks a candidate matching an existing record of the same owner", func() {
			seed(ownerID, "ABC Corporation", "INV-100")
			errs, _, status := svc.Validate(ctx, cleanInvoice(), ownerID)

			Expect(errs).To(HaveLen(1))
			Expect(errs[0].Field).To(Equal("invoice_number"))
			Expect(errs[0].Message).To(ContainSubstring("already exists"))
			Expect(status).To(Equal(models.StatusReviewRequired))
		})

		It("never matches records of other owners", func() {
			seed(uuid.New(), "ABC Corporation", "INV-100")
			errs, _, status := svc.Validate(ctx, cleanInvoice(), ownerID)
			Expect(errs).To(BeEmpty())
			Expect(status).To(Equal(models.StatusPending))
		})

		It("skips the check when vendor or number is absent", func() {
			inv := cleanInvoice()
			inv.InvoiceNumber = nil
			seed(ownerID, "ABC Corporation", "INV-100")
			errs, _, _ := svc.Validate(ctx, inv, ownerID)

			for _, f := range errs {
				Expect(f.Message).NotTo(ContainSubstring("already exists"))
			}
		})

		It("degrades to no finding when the lookup fails", func() {
			store.lookupErr = errors.New("connection refused")
			errs, _, status := svc.Validate(ctx, cleanInvoice(), ownerID)
			Expect(errs).To(BeEmpty())
			Expect(status).To(Equal(models.StatusPending))
		})
	})
})
