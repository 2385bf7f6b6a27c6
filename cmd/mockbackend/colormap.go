package main

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	"github.com/klauspost/compress/zlib"
)

// UI colour scheme names and the palettes they select.
var schemePalettes = map[string]string{
	"grayscale":  "gray",
	"classic":    "blues",
	"sunset":     "inferno",
	"neon_green": "neon_green",
}

const (
	defaultColormap = "sunset"
	fallbackPalette = "inferno"
)

type palette func(g uint8) (r, gr, b uint8)

var palettes = map[string]palette{
	"gray": func(g uint8) (uint8, uint8, uint8) { return g, g, g },
	"blues": func(g uint8) (uint8, uint8, uint8) {
		v := int(g)
		return clamp8((v - 200) * 5), clamp8((v - 150) * 2), clamp8(v * 3 / 2)
	},
	"inferno": func(g uint8) (uint8, uint8, uint8) {
		v := int(g)
		return clamp8((v - 50) * 2), clamp8((v - 100) * 2), uint8(max(0, min(128, v-128)))
	},
	"neon_green": func(g uint8) (uint8, uint8, uint8) {
		s := math.Sin(float64(g) / 255 * math.Pi)
		return 0, uint8(math.Round(s * s * 255)), 0
	},
}

// paletteName resolves a UI scheme name. Unknown schemes fall back to inferno.
func paletteName(scheme string) string {
	if p, ok := schemePalettes[scheme]; ok {
		return p
	}
	return fallbackPalette
}

// colorize applies the palette selected by scheme to a grayscale frame.
func colorize(gray *image.Gray, scheme string) *image.RGBA {
	pal := palettes[paletteName(scheme)]
	b := gray.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl := pal(gray.Pix[gray.PixOffset(x, y)])
			i := out.PixOffset(x, y)
			out.Pix[i+0] = r
			out.Pix[i+1] = g
			out.Pix[i+2] = bl
			out.Pix[i+3] = 255
		}
	}
	return out
}

func clamp8(v int) uint8 {
	return uint8(max(0, min(255, v)))
}

// frameEncoder turns a coloured frame into a wire payload: a JPEG, optionally
// wrapped in a zlib stream.
type frameEncoder struct {
	quality int
	zlib    bool
}

func (e frameEncoder) encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, fmt.Errorf("jpeg: %w", err)
	}
	if !e.zlib {
		return buf.Bytes(), nil
	}

	var out bytes.Buffer
	w := zlib.NewWriter(&out)
	if _, err := w.Write(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	return out.Bytes(), nil
}
