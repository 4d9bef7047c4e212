package transformer

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gen2brain/avif"
	"golang.org/x/image/tiff"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/webp" // register WebP decoder (chai2010 handles encode)

	"github.com/skapxd/image-optimization-service/internal/entities"
)

const (
	// DefaultQuality applies when the caller leaves quality unset.
	DefaultQuality = 80
	// ConvertQuality is the higher default used for plain format conversion.
	ConvertQuality = 90
)

// autoCandidates is the encoding order tried for format "auto"; ties on
// output size are broken by this order.
var autoCandidates = []entities.Format{
	entities.FormatJPEG,
	entities.FormatWebP,
	entities.FormatAVIF,
	entities.FormatPNG,
}

// Processor applies image transformations to in-memory buffers. It performs
// no I/O; callers supply and receive bytes.
type Processor struct{}

func New() *Processor { return &Processor{} }

// Optimize resizes the image to fit inside the requested box (never
// enlarging) and re-encodes it per the requested format. Format "auto"
// encodes jpeg, webp, avif and png candidates and returns the smallest.
func (p *Processor) Optimize(data []byte, opts entities.OptimizationOptions) ([]byte, error) {
	img, _, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	img = fitInside(img, opts.Width, opts.Height)

	quality := opts.Quality
	if quality <= 0 {
		quality = DefaultQuality
	}

	if opts.Format == entities.FormatAuto {
		return encodeSmallest(img, quality)
	}
	return encode(img, opts.Format, quality)
}

// Convert re-encodes the image into the given format at conversion quality
// without resizing.
func (p *Processor) Convert(data []byte, format entities.Format) ([]byte, error) {
	return p.Optimize(data, entities.OptimizationOptions{Format: format, Quality: ConvertQuality})
}

// Thumbnail produces a jpeg thumbnail. With a height it crops to cover the
// box center-weighted; without one it fits inside the width. Never enlarges.
func (p *Processor) Thumbnail(data []byte, width, height int) ([]byte, error) {
	img, _, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	b := img.Bounds()
	if height > 0 {
		w, h := width, height
		if w > b.Dx() {
			w = b.Dx()
		}
		if h > b.Dy() {
			h = b.Dy()
		}
		img = imaging.Fill(img, w, h, imaging.Center, imaging.Lanczos)
	} else {
		img = fitInside(img, width, 0)
	}

	return encode(img, entities.FormatJPEG, DefaultQuality)
}

func decode(data []byte) (image.Image, string, error) {
	return image.Decode(bytes.NewReader(data))
}

// fitInside scales the image down so it fits within maxW x maxH while
// preserving aspect ratio. Zero bounds are unconstrained; an image already
// inside the box is returned unchanged.
func fitInside(img image.Image, maxW, maxH int) image.Image {
	w := float64(img.Bounds().Dx())
	h := float64(img.Bounds().Dy())

	if w == 0 || h == 0 || (maxW == 0 && maxH == 0) {
		return img
	}

	var ratio float64
	if maxW > 0 {
		ratio = w / float64(maxW)
	}
	if maxH > 0 {
		if hRatio := h / float64(maxH); hRatio > ratio {
			ratio = hRatio
		}
	}

	// Nothing to do - return original image
	if ratio <= 1 {
		return img
	}

	return imaging.Resize(img, int(w/ratio), int(h/ratio), imaging.Lanczos)
}

func encode(img image.Image, format entities.Format, quality int) ([]byte, error) {
	buf := new(bytes.Buffer)
	switch format {
	case entities.FormatJPEG:
		if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case entities.FormatPNG:
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case entities.FormatWebP:
		if err := webp.Encode(buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
	case entities.FormatAVIF:
		if err := avif.Encode(buf, img, avif.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode avif: %w", err)
		}
	case entities.FormatGIF:
		if err := gif.Encode(buf, img, nil); err != nil {
			return nil, fmt.Errorf("encode gif: %w", err)
		}
	case entities.FormatTIFF:
		if err := tiff.Encode(buf, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
			return nil, fmt.Errorf("encode tiff: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
	return buf.Bytes(), nil
}

// encodeSmallest returns the smallest output among the auto candidates,
// skipping candidates whose encoder fails.
func encodeSmallest(img image.Image, quality int) ([]byte, error) {
	var best []byte
	var lastErr error
	for _, format := range autoCandidates {
		out, err := encode(img, format, quality)
		if err != nil {
			lastErr = err
			continue
		}
		if best == nil || len(out) < len(best) {
			best = out
		}
	}
	if best == nil {
		return nil, fmt.Errorf("auto format: all candidate encoders failed: %w", lastErr)
	}
	return best, nil
}
