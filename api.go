package mandel

import (
	"context"
	"image"
)

// ColormapSender announces a committed colour scheme to the backend.
type ColormapSender interface {
	SendColormap(ctx context.Context, scheme string) error
}

// Renderer produces a frame for a set of viewing parameters.
type Renderer interface {
	RenderFrame(ctx context.Context, p Params) (*image.Gray, error)
}
