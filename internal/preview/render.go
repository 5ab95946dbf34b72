// Package preview renders watermarked thumbnails for indexed images. Work
// arrives as IndexedEvent messages on Kafka.
package preview

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"io"

	"github.com/disintegration/imaging"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"

	"imgsearch/internal/models"
)

const (
	fontSize = 12
	margin   = 6
)

type Renderer struct {
	width, height int
	text          string
	font          *truetype.Font
}

func NewRenderer(cfg models.PreviewConfig) (*Renderer, error) {
	const op = "preview.NewRenderer"

	f, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	r := &Renderer{width: cfg.Width, height: cfg.Height, text: cfg.WatermarkText, font: f}
	if r.width <= 0 {
		r.width = 320
	}
	if r.height <= 0 {
		r.height = 320
	}
	return r, nil
}

// Render decodes src and returns a JPEG thumbnail of exactly the configured
// size with the watermark text drawn at half opacity in the lower left.
func (r *Renderer) Render(src io.Reader) ([]byte, error) {
	const op = "preview.Render"

	img, err := imaging.Decode(src, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, models.ErrPreprocess, err)
	}

	thumb := imaging.Thumbnail(img, r.width, r.height, imaging.Lanczos)
	if r.text != "" {
		mark, err := r.watermark(thumb.Bounds())
		if err != nil {
			return nil, fmt.Errorf("%s: %v", op, err)
		}
		thumb = imaging.Overlay(thumb, mark, image.Point{}, 0.5)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) watermark(bounds image.Rectangle) (*image.NRGBA, error) {
	mark := image.NewNRGBA(bounds)
	draw.Draw(mark, bounds, image.Transparent, image.Point{}, draw.Src)

	c := freetype.NewContext()
	c.SetDPI(72)
	c.SetFont(r.font)
	c.SetFontSize(fontSize)
	c.SetClip(bounds)
	c.SetDst(mark)
	c.SetSrc(image.White)

	pt := freetype.Pt(margin, bounds.Dy()-margin)
	if _, err := c.DrawString(r.text, pt); err != nil {
		return nil, err
	}
	return mark, nil
}
