// Package ocr turns captcha images into best-guess text. Solving is
// best-effort: weak or wrong output is compensated for by the refresh retry
// loop, which restarts with a fresh captcha rather than resubmitting.
package ocr

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/docket-cli/internal/config"
)

// Solver extracts text from a captcha image.
type Solver interface {
	Solve(ctx context.Context, image []byte) (string, error)
}

// NewSolver creates a Solver based on config.
func NewSolver(cfg config.OCRConfig) (Solver, error) {
	switch cfg.Provider {
	case "tesseract", "":
		return NewTesseract(cfg.TesseractPath), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
