package textract

import (
	"bytes"
	"context"
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"
)

// OCREngine wraps tesseract for raster image recognition. A fresh client is
// created per call: gosseract clients are not safe for concurrent use and
// pipeline invocations run per request.
type OCREngine struct {
	languages string
	logger    *zap.Logger
}

func NewOCREngine(languages string, logger *zap.Logger) *OCREngine {
	if languages == "" {
		languages = "eng"
	}
	return &OCREngine{
		languages: languages,
		logger:    logger,
	}
}

// Recognize runs tesseract over PNG/JPEG bytes and returns the raw text.
func (o *OCREngine) Recognize(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(o.languages); err != nil {
		return "", fmt.Errorf("failed to set OCR language: %w", err)
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("failed to load image for OCR: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR recognition failed: %w", err)
	}

	o.logger.Debug("OCR recognition completed", zap.Int("text_length", len(text)))
	return text, nil
}

// prepareImage decodes the upload and applies a contrast/sharpness chain that
// improves tesseract accuracy on photographed documents.
func prepareImage(data []byte) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	img := imaging.Grayscale(src)
	img = imaging.AdjustContrast(img, 30)
	img = imaging.Sharpen(img, 1.5)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode prepared image: %w", err)
	}
	return buf.Bytes(), nil
}
