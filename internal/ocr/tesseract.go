package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract recognizes text with a fresh gosseract client per call.
type Tesseract struct {
	clientFactory func() *gosseract.Client
}

func NewTesseract() *Tesseract {
	return &Tesseract{clientFactory: gosseract.NewClient}
}

func (t *Tesseract) Name() string { return "tesseract" }

func (t *Tesseract) Recognize(ctx context.Context, image []byte, languages []string, report func(Event)) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	report(Event{Stage: StageLoading, Fraction: 0})

	c := t.clientFactory()
	defer c.Close()

	if len(languages) > 0 {
		if err := c.SetLanguage(languages...); err != nil {
			return "", fmt.Errorf("set languages: %w", err)
		}
	}
	if err := c.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	report(Event{Stage: StageLoading, Fraction: 1})

	if err := ctx.Err(); err != nil {
		return "", err
	}
	report(Event{Stage: StageRecognizing, Fraction: 0})
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	report(Event{Stage: StageRecognizing, Fraction: 1})

	return strings.TrimSpace(text), nil
}
