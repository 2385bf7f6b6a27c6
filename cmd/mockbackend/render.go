package main

import (
	"image"
	"math"
	"math/cmplx"

	mandel "github.com/marben/mandel_remote"
)

// fractal is one escape-time rendering job. The iteration cap is 2^MaxIter,
// the way the hardware renderer interprets the parameter.
type fractal struct {
	zoom             int
	centerX, centerY float64
	julia            bool
	c                complex128
	maxIter          int
}

func newFractal(p mandel.Params) fractal {
	f := fractal{
		zoom:    p.Zoom,
		centerX: p.ReC,
		centerY: p.ImC,
		maxIter: 1 << max(mandel.MinIterations, min(p.MaxIter, mandel.MaxIterations)),
	}
	if p.IsJulia && p.JuliaRe != nil && p.JuliaIm != nil {
		f.julia = true
		f.c = complex(*p.JuliaRe, *p.JuliaIm)
	}
	return f
}

// renderTile shades every pixel of tile into img. Pixel positions are
// scaled onto the reference screen so any frame size shows the same window.
func (f fractal) renderTile(img *image.Gray, tile image.Rectangle) {
	b := img.Bounds()
	sx := float64(mandel.ScreenWidth) / float64(b.Dx())
	sy := float64(mandel.ScreenHeight) / float64(b.Dy())

	for py := tile.Min.Y; py < tile.Max.Y; py++ {
		for px := tile.Min.X; px < tile.Max.X; px++ {
			re, im := mandel.PixelToComplex(float64(px-b.Min.X)*sx, float64(py-b.Min.Y)*sy, f.zoom, f.centerX, f.centerY)
			mu := f.escape(complex(re, im))
			img.Pix[img.PixOffset(px, py)] = shade(mu, f.maxIter)
		}
	}
}

// escape returns the smooth iteration count for point p: p is c for the
// Mandelbrot set and the starting z for a Julia set.
func (f fractal) escape(p complex128) float64 {
	if f.julia {
		return escapeTime(p, f.c, f.maxIter)
	}
	return escapeTime(0, p, f.maxIter)
}

// escapeTime iterates z = z² + c from z and returns a smooth escape count,
// or maxIter when the orbit stays bounded.
func escapeTime(z, c complex128, maxIter int) float64 {
	for i := range maxIter {
		z = z*z + c
		if real(z)*real(z)+imag(z)*imag(z) > 4 {
			// Smooth iteration count
			return float64(i) + 1.0 - math.Log(math.Log(cmplx.Abs(z)))/math.Log(2)
		}
	}
	return float64(maxIter)
}

// shade maps an escape count to a gray level. Points inside the set are black.
func shade(mu float64, maxIter int) uint8 {
	if mu >= float64(maxIter) {
		return 0
	}
	t := math.Sqrt(max(mu, 0) / float64(maxIter))
	return uint8(math.Round(min(t, 1) * 255))
}
