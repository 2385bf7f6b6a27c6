package channel

import (
	"context"
	"errors"
	"fmt"
	"slices"

	mandel "github.com/marben/mandel_remote"
	"golang.org/x/sync/errgroup"
)

// Endpoints are the backend websocket URLs of the three channels.
type Endpoints struct {
	Params  string
	Frames  string
	Gesture string
}

// Supervisor owns the viewport and the lifecycle of the three channels.
type Supervisor struct {
	Viewport *mandel.Viewport
	Params   *ParameterChannel
	Frames   *FrameChannel
	Gesture  *GestureChannel
}

// NewSupervisor wires the channels to a new viewport. Committed colour
// schemes are sent over the frame connection.
func NewSupervisor(ep Endpoints, viewportOpts []mandel.ViewportOption, opts ...Option) *Supervisor {
	frames := NewFrameChannel(ep.Frames, opts...)
	v := mandel.NewViewport(append(slices.Clip(viewportOpts), mandel.WithColormapSender(frames))...)
	return &Supervisor{
		Viewport: v,
		Params:   NewParameterChannel(ep.Params, v, opts...),
		Frames:   frames,
		Gesture:  NewGestureChannel(ep.Gesture, v, opts...),
	}
}

// Run runs all three channels until ctx is done. The channels are
// independent: one dropping does not stop the others.
func (s *Supervisor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return wrap("params", s.Params.Run(ctx)) })
	g.Go(func() error { return wrap("frames", s.Frames.Run(ctx)) })
	g.Go(func() error { return wrap("gesture", s.Gesture.Run(ctx)) })
	return g.Wait()
}

// States returns the current state of each channel.
func (s *Supervisor) States() (params, frames, gesture State) {
	return s.Params.State(), s.Frames.State(), s.Gesture.State()
}

// Close tears everything down: it cancels the pending colour scheme,
// closes every socket and releases all outstanding frame handles.
func (s *Supervisor) Close() error {
	s.Viewport.Close()
	return errors.Join(
		wrap("params", s.Params.Close()),
		wrap("frames", s.Frames.Close()),
		wrap("gesture", s.Gesture.Close()),
	)
}

func wrap(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}
