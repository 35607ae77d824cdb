package ocr

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
)

// Tesseract solves captchas using the tesseract CLI tool.
type Tesseract struct {
	binPath string
}

// NewTesseract creates a Tesseract solver. If binPath is empty, "tesseract" is used.
func NewTesseract(binPath string) *Tesseract {
	if binPath == "" {
		binPath = "tesseract"
	}
	return &Tesseract{binPath: binPath}
}

// Solve writes the image to a temp file, runs tesseract in single-line mode
// and returns the recognized text stripped to alphanumerics. Portal captchas
// are plain alphanumeric strings, so everything else is OCR noise.
func (t *Tesseract) Solve(ctx context.Context, image []byte) (string, error) {
	dir, err := os.MkdirTemp("", "captcha-*")
	if err != nil {
		return "", eris.Wrap(err, "ocr: create temp dir")
	}
	defer os.RemoveAll(dir)

	imgPath := filepath.Join(dir, "captcha.png")
	if err := os.WriteFile(imgPath, image, 0o600); err != nil {
		return "", eris.Wrap(err, "ocr: write captcha image")
	}

	cmd := exec.CommandContext(ctx, t.binPath, imgPath, "stdout", "--psm", "7")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "ocr: tesseract failed: %s", stderr.String())
	}

	return StripNonAlnum(stdout.String()), nil
}

// StripNonAlnum removes everything except letters and digits.
func StripNonAlnum(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
