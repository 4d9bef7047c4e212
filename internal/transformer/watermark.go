package transformer

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/skapxd/image-optimization-service/internal/entities"
)

// WatermarkOptions control the text label composited onto an image.
type WatermarkOptions struct {
	FontSize   float64
	FontWeight string // "bold" selects the bold face
	Color      color.Color
	Opacity    float64
}

const (
	defaultOpacity = 0.7
	// label baseline sits at 95% of the image height, centered horizontally
	watermarkYRatio = 0.95
)

var (
	fontOnce    sync.Once
	regularFont *opentype.Font
	boldFont    *opentype.Font
	fontErr     error
)

func loadFonts() {
	fontOnce.Do(func() {
		regularFont, fontErr = opentype.Parse(goregular.TTF)
		if fontErr != nil {
			return
		}
		boldFont, fontErr = opentype.Parse(gobold.TTF)
	})
}

// Watermark composites a text label at bottom-center of the image and
// re-encodes it in its source format at natural size.
func (p *Processor) Watermark(data []byte, text string, opts WatermarkOptions) ([]byte, error) {
	img, srcFormat, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	loadFonts()
	if fontErr != nil {
		return nil, fmt.Errorf("load watermark font: %w", fontErr)
	}

	bounds := img.Bounds()
	size := opts.FontSize
	if size <= 0 {
		size = float64(min(bounds.Dx(), bounds.Dy())) / 20
	}
	if size < 1 {
		size = 1
	}

	src := regularFont
	if opts.FontWeight == "bold" {
		src = boldFont
	}
	face, err := opentype.NewFace(src, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("build font face: %w", err)
	}
	defer face.Close()

	opacity := opts.Opacity
	if opacity <= 0 {
		opacity = defaultOpacity
	}
	if opacity > 1 {
		opacity = 1
	}
	label := opts.Color
	if label == nil {
		label = color.White
	}
	r, g, b, _ := label.RGBA()
	tint := color.NRGBA{
		R: uint8(r >> 8),
		G: uint8(g >> 8),
		B: uint8(b >> 8),
		A: uint8(opacity * 255),
	}

	canvas := imaging.Clone(img)
	drawer := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(tint),
		Face: face,
	}

	width := drawer.MeasureString(text)
	x := (bounds.Dx() - width.Round()) / 2
	if x < 0 {
		x = 0
	}
	y := int(watermarkYRatio * float64(bounds.Dy()))
	drawer.Dot = fixed.P(x, y)
	drawer.DrawString(text)

	return encode(canvas, formatFromName(srcFormat), ConvertQuality)
}

// formatFromName maps an image.Decode format name onto an encodable output
// format. Formats without an encoder fall back to a lossless or jpeg
// rendition.
func formatFromName(name string) entities.Format {
	switch name {
	case "jpeg", "jpg":
		return entities.FormatJPEG
	case "png":
		return entities.FormatPNG
	case "webp":
		return entities.FormatWebP
	case "gif":
		return entities.FormatGIF
	case "tiff":
		return entities.FormatTIFF
	case "avif":
		return entities.FormatAVIF
	case "bmp":
		return entities.FormatPNG
	default:
		return entities.FormatJPEG
	}
}
