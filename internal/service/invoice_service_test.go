package service

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"invox/internal/models"
	"invox/internal/repository"
	"invox/internal/textract"
)

// stubExtractor returns canned text instead of running OCR.
type stubExtractor struct {
	text textract.RawText
	err  error
}

func (s *stubExtractor) Extract(ctx context.Context, data []byte, mediaType string) (textract.RawText, error) {
	return s.text, s.err
}

var _ = Describe("InvoiceService", func() {
	var (
		store     *mockInvoiceStore
		extractor *stubExtractor
		svc       *InvoiceService
		ownerID   uuid.UUID
		ctx       context.Context
	)

	BeforeEach(func() {
		store = newMockInvoiceStore()
		extractor = &stubExtractor{text: textract.RawText{Pages: []string{sampleInvoiceText}}}
		logger := zap.NewNop()
		svc = NewInvoiceService(
			extractor,
			NewExtractionService(logger),
			NewValidationService(store, logger),
			store,
			logger,
		)
		ownerID = uuid.New()
		ctx = context.Background()
	})

	seed := func(owner uuid.UUID, status models.Status) *models.Invoice {
		inv := &models.Invoice{
			ID:            uuid.New(),
			OwnerID:       owner,
			VendorName:    str("ABC Corporation"),
			InvoiceNumber: str("INV-2024-001234"),
			Status:        status,
		}
		if status == models.StatusReviewRequired {
			inv.ValidationErrors = []models.Finding{
				{Field: "total_amount", Message: "Total amount is missing", Severity: models.SeverityError},
			}
		}
		store.invoices[inv.ID] = inv
		return inv
	}

	Describe("Ingest", func() {
		When("the document is a well-formed invoice", func() {
			var inv *models.Invoice
			var err error

			JustBeforeEach(func() {
				inv, err = svc.Ingest(ctx, ownerID, []byte("pdf bytes"), "application/pdf")
			})

			It("succeeds", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("assigns identity and ownership", func() {
				Expect(inv.ID).NotTo(Equal(uuid.Nil))
				Expect(inv.OwnerID).To(Equal(ownerID))
				Expect(inv.CreatedAt).NotTo(BeZero())
			})

			It("assigns PENDING with no blocking findings", func() {
				Expect(inv.Status).To(Equal(models.StatusPending))
				Expect(inv.ValidationErrors).To(BeEmpty())
			})

			It("persists the record", func() {
				stored, getErr := store.GetByID(ctx, inv.ID, ownerID)
				Expect(getErr).NotTo(HaveOccurred())
				Expect(stored).NotTo(BeNil())
				Expect(*stored.VendorName).To(Equal("ABC Corporation"))
			})
		})

		When("the media type is unsupported", func() {
			BeforeEach(func() {
				extractor.err = textract.ErrUnsupportedMediaType
			})

			It("rejects the upload without creating a record", func() {
				_, err := svc.Ingest(ctx, ownerID, []byte("zip bytes"), "application/zip")
				Expect(errors.Is(err, textract.ErrUnsupportedMediaType)).To(BeTrue())
				Expect(store.invoices).To(BeEmpty())
			})
		})

		When("the document yields no text", func() {
			BeforeEach(func() {
				extractor.text = textract.RawText{}
			})

			It("still persists the record, parked for review", func() {
				inv, err := svc.Ingest(ctx, ownerID, []byte("scan"), "image/png")
				Expect(err).NotTo(HaveOccurred())
				Expect(inv.Status).To(Equal(models.StatusReviewRequired))
				Expect(inv.ValidationErrors).NotTo(BeEmpty())
				Expect(store.invoices).To(HaveLen(1))
			})
		})

		When("an equivalent record already exists for the owner", func() {
			BeforeEach(func() {
				seed(ownerID, models.StatusPending)
			})

			It("persists the duplicate parked for review with a blocking finding", func() {
				inv, err := svc.Ingest(ctx, ownerID, []byte("pdf"), "application/pdf")
				Expect(err).NotTo(HaveOccurred())
				Expect(inv.Status).To(Equal(models.StatusReviewRequired))

				var messages []string
				for _, f := range inv.ValidationErrors {
					messages = append(messages, f.Message)
				}
				Expect(messages).To(ContainElement(ContainSubstring("already exists")))
				Expect(store.invoices).To(HaveLen(2))
			})
		})

		When("a concurrent upload wins the uniqueness race", func() {
			BeforeEach(func() {
				// The pre-check sees nothing, but the store rejects the insert.
				store.failNextInsert = repository.ErrDuplicate
			})

			It("records the duplicate finding and retries the insert once", func() {
				inv, err := svc.Ingest(ctx, ownerID, []byte("pdf"), "application/pdf")
				Expect(err).NotTo(HaveOccurred())
				Expect(inv.Status).To(Equal(models.StatusReviewRequired))

				var messages []string
				for _, f := range inv.ValidationErrors {
					messages = append(messages, f.Message)
				}
				Expect(messages).To(ContainElement(ContainSubstring("already exists")))
				Expect(store.insertCalls).To(Equal(2))
			})
		})

		When("the store fails outright", func() {
			BeforeEach(func() {
				store.failNextInsert = errors.New("connection refused")
			})

			It("propagates the failure", func() {
				_, err := svc.Ingest(ctx, ownerID, []byte("pdf"), "application/pdf")
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("Approve", func() {
		It("moves a PENDING record to APPROVED", func() {
			seeded := seed(ownerID, models.StatusPending)

			inv, err := svc.Approve(ctx, seeded.ID, ownerID)
			Expect(err).NotTo(HaveOccurred())
			Expect(inv.Status).To(Equal(models.StatusApproved))
			Expect(store.invoices[seeded.ID].Status).To(Equal(models.StatusApproved))
		})

		It("rejects a record with blocking findings and reports them", func() {
			seeded := seed(ownerID, models.StatusReviewRequired)

			_, err := svc.Approve(ctx, seeded.ID, ownerID)
			Expect(errors.Is(err, ErrPreconditionFailed)).To(BeTrue())

			var blocked *ApprovalBlockedError
			Expect(errors.As(err, &blocked)).To(BeTrue())
			Expect(blocked.Findings).NotTo(BeEmpty())
			Expect(store.invoices[seeded.ID].Status).To(Equal(models.StatusReviewRequired))
		})

		It("rejects a second approval as terminal", func() {
			seeded := seed(ownerID, models.StatusPending)

			_, err := svc.Approve(ctx, seeded.ID, ownerID)
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Approve(ctx, seeded.ID, ownerID)
			Expect(errors.Is(err, ErrAlreadyTerminal)).To(BeTrue())
		})

		It("returns NotFound for a missing record", func() {
			_, err := svc.Approve(ctx, uuid.New(), ownerID)
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})

		It("returns NotFound for another owner's record", func() {
			seeded := seed(uuid.New(), models.StatusPending)

			_, err := svc.Approve(ctx, seeded.ID, ownerID)
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
			Expect(store.invoices[seeded.ID].Status).To(Equal(models.StatusPending))
		})
	})

	Describe("Delete", func() {
		It("removes the owner's record from any state", func() {
			seeded := seed(ownerID, models.StatusApproved)

			Expect(svc.Delete(ctx, seeded.ID, ownerID)).To(Succeed())
			Expect(store.invoices).To(BeEmpty())
		})

		It("returns NotFound for a missing record", func() {
			err := svc.Delete(ctx, uuid.New(), ownerID)
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})

		It("returns NotFound for another owner's record without touching it", func() {
			seeded := seed(uuid.New(), models.StatusPending)

			err := svc.Delete(ctx, seeded.ID, ownerID)
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
			Expect(store.invoices).To(HaveLen(1))
		})
	})

	Describe("Get", func() {
		It("returns NotFound uniformly for missing and foreign records", func() {
			foreign := seed(uuid.New(), models.StatusPending)

			_, errMissing := svc.Get(ctx, uuid.New(), ownerID)
			_, errForeign := svc.Get(ctx, foreign.ID, ownerID)

			Expect(errors.Is(errMissing, ErrNotFound)).To(BeTrue())
			Expect(errors.Is(errForeign, ErrNotFound)).To(BeTrue())
			Expect(errMissing.Error()).To(Equal(errForeign.Error()))
		})
	})
})
