package textract

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

// ErrUnsupportedMediaType is returned for documents that are neither PDF nor
// a supported raster image. It is the only caller-facing error this package
// produces; content problems degrade to empty RawText instead.
var ErrUnsupportedMediaType = errors.New("unsupported media type (supported: pdf, jpeg, png, tiff)")

// RawText is the ordered, page-scoped output of text extraction. It is
// consumed immediately by the field extractor and never persisted.
type RawText struct {
	Pages []string
}

// Full joins all page segments in page order.
func (t RawText) Full() string {
	return strings.TrimSpace(strings.Join(t.Pages, "\n"))
}

// Empty reports whether no page produced any text.
func (t RawText) Empty() bool {
	return t.Full() == ""
}

var acceptedMediaTypes = map[string]struct{}{
	"application/pdf": {},
	"image/jpeg":      {},
	"image/jpg":       {},
	"image/png":       {},
	"image/tiff":      {},
}

// Extractor turns a document into RawText. It has no business-rule knowledge:
// the only error it produces is the media-type gate. A corrupt or unreadable
// document yields empty RawText so the pipeline can still capture the record
// for manual review.
type Extractor struct {
	ocr    *OCREngine
	logger *zap.Logger
}

func NewExtractor(ocr *OCREngine, logger *zap.Logger) *Extractor {
	return &Extractor{
		ocr:    ocr,
		logger: logger,
	}
}

// Extract extracts text from a PDF or raster image document.
func (e *Extractor) Extract(ctx context.Context, data []byte, mediaType string) (RawText, error) {
	mt := normalizeMediaType(mediaType)
	if _, ok := acceptedMediaTypes[mt]; !ok {
		return RawText{}, ErrUnsupportedMediaType
	}

	var text RawText
	if mt == "application/pdf" {
		text = e.extractPDF(ctx, data)
	} else {
		text = e.extractImage(ctx, data)
	}

	e.logger.Info("Text extraction completed",
		zap.String("media_type", mt),
		zap.Int("pages", len(text.Pages)),
		zap.Int("text_length", len(text.Full())),
	)

	return text, nil
}

// extractPDF walks the document page by page. Pages with embedded text use it
// directly; a text-empty page is rasterized and run through OCR, since
// scanned PDFs carry no text layer.
func (e *Extractor) extractPDF(ctx context.Context, data []byte) RawText {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		e.logger.Warn("Failed to open PDF, treating as unreadable", zap.Error(err))
		return RawText{}
	}
	defer doc.Close()

	var pages []string
	for i := 0; i < doc.NumPage(); i++ {
		pageText, err := doc.Text(i)
		if err != nil {
			e.logger.Warn("Failed to read PDF page text",
				zap.Int("page", i+1),
				zap.Error(err),
			)
			pageText = ""
		}
		pageText = strings.TrimSpace(pageText)

		if pageText == "" {
			pageText = e.ocrPDFPage(ctx, doc, i)
		}

		if pageText != "" {
			pages = append(pages, pageText)
		}
	}

	return RawText{Pages: pages}
}

func (e *Extractor) ocrPDFPage(ctx context.Context, doc *fitz.Document, page int) string {
	img, err := doc.Image(page)
	if err != nil {
		e.logger.Warn("Failed to rasterize PDF page",
			zap.Int("page", page+1),
			zap.Error(err),
		)
		return ""
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		e.logger.Warn("Failed to encode PDF page raster", zap.Error(err))
		return ""
	}

	text, err := e.ocr.Recognize(ctx, buf.Bytes())
	if err != nil {
		e.logger.Warn("OCR failed for PDF page",
			zap.Int("page", page+1),
			zap.Error(err),
		)
		return ""
	}
	return strings.TrimSpace(text)
}

func (e *Extractor) extractImage(ctx context.Context, data []byte) RawText {
	prepared, err := prepareImage(data)
	if err != nil {
		e.logger.Warn("Failed to decode image, treating as unreadable", zap.Error(err))
		return RawText{}
	}

	text, err := e.ocr.Recognize(ctx, prepared)
	if err != nil {
		e.logger.Warn("OCR failed for image", zap.Error(err))
		return RawText{}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return RawText{}
	}
	return RawText{Pages: []string{text}}
}

// normalizeMediaType strips parameters like "; charset=binary".
func normalizeMediaType(mediaType string) string {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if idx := strings.Index(mt, ";"); idx >= 0 {
		mt = strings.TrimSpace(mt[:idx])
	}
	return mt
}
