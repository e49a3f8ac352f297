package handlers

import (
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"invox/internal/dto"
	"invox/internal/models"
	"invox/internal/service"
	"invox/internal/textract"
)

// Fallback media types for multipart parts that arrive without one.
var extensionMediaTypes = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

type InvoiceHandler struct {
	invoiceService *service.InvoiceService
	exportService  *service.ExportService
	logger         *zap.Logger
}

func NewInvoiceHandler(invoiceService *service.InvoiceService, exportService *service.ExportService, logger *zap.Logger) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService: invoiceService,
		exportService:  exportService,
		logger:         logger,
	}
}

// Upload godoc
// @Summary Upload and process an invoice
// @Description Runs the intake pipeline (text extraction, field extraction, validation) and persists the record with its status and findings
// @Tags invoices
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Invoice document (PDF or image)"
// @Security Bearer
// @Success 201 {object} dto.InvoiceResponse
// @Failure 400 {object} map[string]string
// @Failure 415 {object} map[string]string
// @Router /api/v1/invoices/upload [post]
func (h *InvoiceHandler) Upload(c *fiber.Ctx) error {
	ownerID, err := getOwnerID(c)
	if err != nil {
		return unauthorized(c)
	}

	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "File is required",
		})
	}

	src, err := file.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to open file",
		})
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to read file",
		})
	}
	if len(data) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Uploaded file is empty",
		})
	}

	mediaType := file.Header.Get("Content-Type")
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = extensionMediaTypes[strings.ToLower(filepath.Ext(file.Filename))]
	}

	inv, err := h.invoiceService.Ingest(c.Context(), ownerID, data, mediaType)
	if err != nil {
		if errors.Is(err, textract.ErrUnsupportedMediaType) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		h.logger.Error("Failed to ingest invoice", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process invoice",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(dto.NewInvoiceResponse(inv))
}

// Get godoc
// @Summary Get one invoice
// @Tags invoices
// @Produce json
// @Param id path string true "Invoice ID"
// @Security Bearer
// @Success 200 {object} dto.InvoiceResponse
// @Failure 404 {object} map[string]string
// @Router /api/v1/invoices/{id} [get]
func (h *InvoiceHandler) Get(c *fiber.Ctx) error {
	ownerID, err := getOwnerID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badID(c)
	}

	inv, err := h.invoiceService.Get(c.Context(), id, ownerID)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(dto.NewInvoiceResponse(inv))
}

// List godoc
// @Summary List invoices
// @Tags invoices
// @Produce json
// @Param status query string false "Filter by status (PENDING, REVIEW_REQUIRED, APPROVED)"
// @Param limit query int false "Limit" default(20)
// @Param offset query int false "Offset" default(0)
// @Security Bearer
// @Success 200 {object} dto.InvoiceListResponse
// @Router /api/v1/invoices [get]
func (h *InvoiceHandler) List(c *fiber.Ctx) error {
	ownerID, err := getOwnerID(c)
	if err != nil {
		return unauthorized(c)
	}

	status, ok := parseStatusFilter(c.Query("status"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid status filter",
		})
	}

	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)

	invoices, err := h.invoiceService.List(c.Context(), ownerID, status, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list invoices", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list invoices",
		})
	}

	resp := dto.InvoiceListResponse{
		Count:    len(invoices),
		Invoices: make([]dto.InvoiceResponse, 0, len(invoices)),
	}
	for _, inv := range invoices {
		resp.Invoices = append(resp.Invoices, dto.NewInvoiceResponse(inv))
	}
	return c.JSON(resp)
}

// Approve godoc
// @Summary Approve a pending invoice
// @Description Moves a PENDING invoice to the terminal APPROVED state. Records with blocking findings cannot be approved.
// @Tags invoices
// @Produce json
// @Param id path string true "Invoice ID"
// @Security Bearer
// @Success 200 {object} dto.InvoiceResponse
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/invoices/{id}/approve [post]
func (h *InvoiceHandler) Approve(c *fiber.Ctx) error {
	ownerID, err := getOwnerID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badID(c)
	}

	inv, err := h.invoiceService.Approve(c.Context(), id, ownerID)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(dto.NewInvoiceResponse(inv))
}

// Delete godoc
// @Summary Delete an invoice
// @Tags invoices
// @Param id path string true "Invoice ID"
// @Security Bearer
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /api/v1/invoices/{id} [delete]
func (h *InvoiceHandler) Delete(c *fiber.Ctx) error {
	ownerID, err := getOwnerID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badID(c)
	}

	if err := h.invoiceService.Delete(c.Context(), id, ownerID); err != nil {
		return h.mapError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Export godoc
// @Summary Export invoices as CSV or XLSX
// @Tags invoices
// @Produce octet-stream
// @Param format query string false "Export format: csv or xlsx" default(csv)
// @Param status query string false "Filter by status"
// @Security Bearer
// @Success 200 {file} file
// @Router /api/v1/invoices/export [get]
func (h *InvoiceHandler) Export(c *fiber.Ctx) error {
	ownerID, err := getOwnerID(c)
	if err != nil {
		return unauthorized(c)
	}

	format := strings.ToLower(c.Query("format", "csv"))
	if format != "csv" && format != "xlsx" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid format (supported: csv, xlsx)",
		})
	}

	status, ok := parseStatusFilter(c.Query("status"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid status filter",
		})
	}

	invoices, err := h.invoiceService.List(c.Context(), ownerID, status, 0, 0)
	if err != nil {
		h.logger.Error("Failed to load invoices for export", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to export invoices",
		})
	}

	var content []byte
	if format == "xlsx" {
		content, err = h.exportService.ExportXLSX(invoices)
	} else {
		content, err = h.exportService.ExportCSV(invoices)
	}
	if err != nil {
		h.logger.Error("Failed to generate export", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to export invoices",
		})
	}

	c.Set(fiber.HeaderContentType, h.exportService.ContentType(format))
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+h.exportService.Filename(format)+`"`)
	return c.Send(content)
}

// mapError translates service errors into API responses. A rejected approval
// lists the blocking findings that remain.
func (h *InvoiceHandler) mapError(c *fiber.Ctx, err error) error {
	var blocked *service.ApprovalBlockedError
	switch {
	case errors.Is(err, service.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Invoice not found",
		})
	case errors.As(err, &blocked):
		findings := make([]dto.FindingResponse, 0, len(blocked.Findings))
		for _, f := range blocked.Findings {
			findings = append(findings, dto.FindingResponse{
				Field:    f.Field,
				Message:  f.Message,
				Severity: string(f.Severity),
			})
		}
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":             "Blocking findings must be resolved before approval",
			"blocking_findings": findings,
		})
	case errors.Is(err, service.ErrAlreadyTerminal):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Invoice is already approved",
		})
	default:
		h.logger.Error("Invoice operation failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal error",
		})
	}
}

func parseStatusFilter(raw string) (*models.Status, bool) {
	if raw == "" {
		return nil, true
	}
	status := models.Status(strings.ToUpper(raw))
	switch status {
	case models.StatusPending, models.StatusReviewRequired, models.StatusApproved:
		return &status, true
	default:
		return nil, false
	}
}

func getOwnerID(c *fiber.Ctx) (uuid.UUID, error) {
	userIDStr, ok := c.Locals("userID").(string)
	if !ok {
		return uuid.Nil, fiber.ErrUnauthorized
	}
	return uuid.Parse(userIDStr)
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": "Unauthorized",
	})
}

func badID(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": "Invalid invoice ID",
	})
}
