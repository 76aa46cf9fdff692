// Package captcha turns the portal's arithmetic CAPTCHA image into its answer.
package captcha

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// OCR reads the text printed in an image.
type OCR interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// Solver combines an OCR backend with the expression parser.
type Solver struct {
	ocr OCR
	log *zap.Logger
}

// NewSolver builds a solver. A nil logger discards output.
func NewSolver(ocr OCR, log *zap.Logger) *Solver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Solver{ocr: ocr, log: log.With(zap.String("component", "captcha"))}
}

// Solve returns the integer answer for a CAPTCHA image. Failures wrap ErrParse
// when the OCR text was readable but not an expression.
func (s *Solver) Solve(ctx context.Context, image []byte) (int, error) {
	if len(image) == 0 {
		return 0, &ParseError{Reason: "empty image"}
	}
	text, err := s.ocr.Recognize(ctx, image)
	if err != nil {
		return 0, fmt.Errorf("captcha ocr: %w", err)
	}
	answer, err := Parse(text)
	if err != nil {
		s.log.Debug("captcha parse failed", zap.String("ocr", Normalize(text)))
		return 0, err
	}
	s.log.Debug("captcha solved", zap.String("ocr", Normalize(text)), zap.Int("answer", answer))
	return answer, nil
}
