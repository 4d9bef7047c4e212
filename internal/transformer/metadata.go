package transformer

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
)

// Info describes a decoded image without decoding its pixels.
type Info struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Format   string `json:"format"`
	Size     int    `json:"size"`
	Channels int    `json:"channels"`
	Density  int    `json:"density"`
}

// Metadata inspects the image header and reports its dimensions, format and
// channel count. Density is the codec default; the decoders used here do not
// expose embedded DPI.
func (p *Processor) Metadata(data []byte) (Info, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf("decode image config: %w", err)
	}
	return Info{
		Width:    cfg.Width,
		Height:   cfg.Height,
		Format:   format,
		Size:     len(data),
		Channels: channels(cfg.ColorModel),
		Density:  72,
	}, nil
}

func channels(m color.Model) int {
	switch m {
	case color.GrayModel, color.Gray16Model:
		return 1
	case color.CMYKModel:
		return 4
	case color.RGBAModel, color.RGBA64Model, color.NRGBAModel, color.NRGBA64Model:
		return 4
	case color.YCbCrModel:
		return 3
	default:
		return 3
	}
}
