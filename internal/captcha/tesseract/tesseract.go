// Package tesseract provides an in-process OCR backend for the captcha solver.
package tesseract

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract runs OCR in-process through libtesseract. Each call uses its own
// client since gosseract clients are not safe for concurrent use.
type Tesseract struct {
	Language  string
	Whitelist string
}

// New returns an English single-line recognizer restricted to digits
// and arithmetic operators.
func New() *Tesseract {
	return &Tesseract{Language: "eng", Whitelist: "0123456789+-xX*"}
}

// Recognize implements captcha.OCR.
func (t *Tesseract) Recognize(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.Language); err != nil {
		return "", fmt.Errorf("tesseract language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		return "", fmt.Errorf("tesseract psm: %w", err)
	}
	if t.Whitelist != "" {
		if err := client.SetWhitelist(t.Whitelist); err != nil {
			return "", fmt.Errorf("tesseract whitelist: %w", err)
		}
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("tesseract image: %w", err)
	}
	return client.Text()
}
