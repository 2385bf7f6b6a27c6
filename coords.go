package mandel

import "math"

// Screen dimensions of the viewport the backend renders into.
const (
	ScreenWidth  = 960
	ScreenHeight = 720
)

// Size of the visible window at zoom 0. Fixed 3:2 aspect ratio.
const (
	baseRealWidth  = 3.0
	baseImagHeight = 2.0
)

// windowSize returns the width and height of the visible complex-plane window.
func windowSize(zoom int) (realWidth, imagHeight float64) {
	scale := math.Exp2(float64(zoom))
	return baseRealWidth / scale, baseImagHeight / scale
}

// PixelToComplex maps a screen pixel to a point in the complex plane.
// The imaginary axis is inverted: screen y grows downward.
func PixelToComplex(px, py float64, zoom int, centerX, centerY float64) (re, im float64) {
	w, h := windowSize(zoom)
	stepRe := w / ScreenWidth
	stepIm := h / ScreenHeight

	realMin := centerX - w/2
	imagMax := centerY + h/2

	return realMin + stepRe*px, imagMax - stepIm*py
}

// ComplexToPixel is the inverse of PixelToComplex.
func ComplexToPixel(re, im float64, zoom int, centerX, centerY float64) (px, py float64) {
	w, h := windowSize(zoom)
	stepRe := w / ScreenWidth
	stepIm := h / ScreenHeight

	realMin := centerX - w/2
	imagMax := centerY + h/2

	return (re - realMin) / stepRe, (imagMax - im) / stepIm
}

// Magnification returns 2^zoom.
func Magnification(zoom int) float64 {
	return math.Exp2(float64(zoom))
}
