// Package preprocess binarizes images before they are handed to OCR.
//
// A single global luminance threshold is applied; uneven lighting across an
// image is not compensated for.
//
// Only png output keeps every pixel exactly 0 or 255. The jpeg encoder
// (the default) is lossy and leaves small ringing near black/white edges.
package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"imgsearch/internal/models"
)

const DefaultThreshold = 160

// Format is the raster encoding of preprocessed output.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

type Preprocessor struct {
	threshold   int
	format      Format
	jpegQuality int
}

func New(cfg models.PreprocessConfig) *Preprocessor {
	p := &Preprocessor{
		threshold:   cfg.Threshold,
		format:      Format(cfg.Format),
		jpegQuality: cfg.JPEGQuality,
	}
	if p.format == "" {
		p.format = FormatJPEG
	}
	if p.jpegQuality == 0 {
		p.jpegQuality = 90
	}
	return p
}

// Preprocess decodes data, binarizes it and re-encodes it in the configured format.
func (p *Preprocessor) Preprocess(data []byte) ([]byte, error) {
	const op = "preprocess.Preprocess"

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, models.ErrPreprocess, err)
	}

	out := Binarize(src, p.threshold)

	var buf bytes.Buffer
	switch p.format {
	case FormatPNG:
		err = imaging.Encode(&buf, out, imaging.PNG)
	default:
		err = imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(p.jpegQuality))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, models.ErrPreprocess, err)
	}
	return buf.Bytes(), nil
}

// Binarize maps every pixel to pure black or pure white by its BT.709
// luminance. Pixels brighter than threshold become white. Alpha is kept.
func Binarize(img image.Image, threshold int) *image.NRGBA {
	// Integer form of L = 0.2126 R + 0.7152 G + 0.0722 B, scaled by 10^4.
	limit := threshold * 10000
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		l := 2126*int(c.R) + 7152*int(c.G) + 722*int(c.B)
		v := uint8(0)
		if l > limit {
			v = 255
		}
		return color.NRGBA{R: v, G: v, B: v, A: c.A}
	})
}
