package main

import (
	"context"
	"fmt"
	"image"

	mandel "github.com/marben/mandel_remote"
	"golang.org/x/sync/errgroup"
)

const tileSize = 64

// tileRenderer renders a frame by splitting it into tiles and handing them
// to a bounded pool of workers. Tiles never overlap, so workers write into
// the shared image without locking.
type tileRenderer struct {
	width, height int
	workers       int
}

func newTileRenderer(w, h, workers int) tileRenderer {
	return tileRenderer{width: w, height: h, workers: max(workers, 1)}
}

// RenderFrame implements mandel.Renderer.
func (tr tileRenderer) RenderFrame(ctx context.Context, p mandel.Params) (*image.Gray, error) {
	img := image.NewGray(image.Rect(0, 0, tr.width, tr.height))
	f := newFractal(p)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(tr.workers)
	for _, tile := range splitRectNoClip(img.Bounds(), tileSize, tileSize) {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f.renderTile(img, tile)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return img, nil
}

var _ mandel.Renderer = tileRenderer{}

// splitRectNoClip splits r into tiles of size tileW × tileH.
// Tiles at the right and bottom edges are smaller if r is not divisible.
func splitRectNoClip(r image.Rectangle, tileW, tileH int) []image.Rectangle {
	if tileW <= 0 || tileH <= 0 {
		panic("tile dimensions must be positive")
	}

	var tiles []image.Rectangle
	for oy := r.Min.Y; oy < r.Max.Y; oy += tileH {
		th := min(tileH, r.Max.Y-oy)
		for ox := r.Min.X; ox < r.Max.X; ox += tileW {
			tw := min(tileW, r.Max.X-ox)
			tiles = append(tiles, image.Rect(ox, oy, ox+tw, oy+th))
		}
	}
	return tiles
}
