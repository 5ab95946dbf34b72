// Package naming derives a record's display filename from its OCR text.
package naming

import (
	"strings"

	"imgsearch/internal/tokenize"
)

// MaxRunes is the length of a derived name, in characters.
const MaxRunes = 30

// Untitled is used when neither OCR text nor an original filename is available.
const Untitled = "untitled"

// Derive returns the first MaxRunes characters of the whitespace-normalized
// OCR text, or originalFilename when the text is blank.
func Derive(originalFilename, ocrText string) string {
	text := tokenize.Normalize(ocrText)
	if text == "" {
		if strings.TrimSpace(originalFilename) == "" {
			return Untitled
		}
		return originalFilename
	}
	r := []rune(text)
	if len(r) > MaxRunes {
		r = r[:MaxRunes]
	}
	return strings.TrimSpace(string(r))
}
