package transformer

import (
	"fmt"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/skapxd/image-optimization-service/internal/entities"
)

// BlurOptions control placeholder generation.
type BlurOptions struct {
	Width           int
	Height          int
	BlurRadius      int
	Quality         int
	MobileOptimized bool
}

const (
	defaultBlurWidth   = 40
	minBlurWidth       = 20
	defaultBlurRadius  = 15
	defaultBlurQuality = 15
	minBlurQuality     = 10
)

// neutral grey used to pad placeholders against rounding drift
var padGrey = color.NRGBA{R: 128, G: 128, B: 128, A: 255}

// BlurPlaceholder produces a tiny blurred jpeg preview of the image. With
// MobileOptimized and no explicit height the width is capped at 40px and the
// height derived from the source aspect ratio.
func (p *Processor) BlurPlaceholder(data []byte, opts BlurOptions) ([]byte, error) {
	img, _, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	srcW := img.Bounds().Dx()
	srcH := img.Bounds().Dy()
	if srcW == 0 || srcH == 0 {
		return nil, fmt.Errorf("image has empty bounds")
	}

	if opts.MobileOptimized && opts.Height == 0 {
		w := opts.Width
		if w <= 0 || w > defaultBlurWidth {
			w = defaultBlurWidth
		}
		if srcW < w {
			w = srcW
		}
		if w < minBlurWidth {
			w = minBlurWidth
		}
		h := w * srcH / srcW
		if h < 1 {
			h = 1
		}
		resized := imaging.Resize(img, w, h, imaging.Lanczos)
		canvas := imaging.New(w, h, padGrey)
		img = imaging.PasteCenter(canvas, resized)
	} else {
		w := opts.Width
		if w <= 0 {
			w = defaultBlurWidth
		}
		img = fitInside(img, w, opts.Height)
	}

	radius := opts.BlurRadius
	if radius <= 0 {
		radius = defaultBlurRadius
	}
	img = imaging.Blur(img, float64(radius))

	quality := opts.Quality
	if quality <= 0 {
		quality = defaultBlurQuality
	}
	if opts.MobileOptimized {
		quality -= 5
		if quality < minBlurQuality {
			quality = minBlurQuality
		}
	}

	return encode(img, entities.FormatJPEG, quality)
}
