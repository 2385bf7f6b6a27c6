package mandel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPixelToComplex_Corners(t *testing.T) {
	re, im := PixelToComplex(0, 0, 0, -0.5, 0)
	require.InDelta(t, -2.0, re, 1e-12)
	require.InDelta(t, 1.0, im, 1e-12)

	re, im = PixelToComplex(ScreenWidth, ScreenHeight, 0, -0.5, 0)
	require.InDelta(t, 1.0, re, 1e-12)
	require.InDelta(t, -1.0, im, 1e-12)

	re, im = PixelToComplex(ScreenWidth/2, ScreenHeight/2, 3, 0.25, -0.1)
	require.InDelta(t, 0.25, re, 1e-12)
	require.InDelta(t, -0.1, im, 1e-12)
}

func TestPixelToComplex_WindowShrinksWithZoom(t *testing.T) {
	for zoom := MinZoom; zoom <= MaxZoom; zoom++ {
		left, top := PixelToComplex(0, 0, zoom, 0, 0)
		right, bottom := PixelToComplex(ScreenWidth, ScreenHeight, zoom, 0, 0)
		require.InDelta(t, 3/math.Exp2(float64(zoom)), right-left, 1e-12)
		require.InDelta(t, 2/math.Exp2(float64(zoom)), top-bottom, 1e-12)
	}
}

func TestPixelToComplex_MonotonicAndRoundTrip(t *testing.T) {
	const cx, cy = -0.743643887, 0.131825904
	for zoom := MinZoom; zoom <= MaxZoom; zoom++ {
		prevRe := math.Inf(-1)
		for px := 0.0; px <= ScreenWidth; px += 40 {
			re, _ := PixelToComplex(px, 0, zoom, cx, cy)
			require.Greater(t, re, prevRe, "real axis must increase left to right (zoom %d)", zoom)
			prevRe = re
		}

		prevIm := math.Inf(1)
		for py := 0.0; py <= ScreenHeight; py += 40 {
			_, im := PixelToComplex(0, py, zoom, cx, cy)
			require.Less(t, im, prevIm, "imaginary axis must decrease downward (zoom %d)", zoom)
			prevIm = im
		}

		for _, p := range [][2]float64{{0, 0}, {480, 360}, {959, 719}, {123.5, 600.25}} {
			re, im := PixelToComplex(p[0], p[1], zoom, cx, cy)
			px, py := ComplexToPixel(re, im, zoom, cx, cy)
			require.InDelta(t, p[0], px, 1e-4)
			require.InDelta(t, p[1], py, 1e-4)
		}
	}
}

func TestMagnification(t *testing.T) {
	require.Equal(t, 1.0, Magnification(0))
	require.Equal(t, 1024.0, Magnification(10))
	require.Equal(t, float64(1<<20), Magnification(MaxZoom))
}
