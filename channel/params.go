package channel

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	mandel "github.com/marben/mandel_remote"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const paramsWriteTimeout = 2 * time.Second

// ParameterChannel pushes viewport snapshots to the render backend.
//
// Delivery is fire-and-forget: a change observed while the connection is
// not Open is dropped, and nothing is acknowledged. When changes arrive
// faster than they can be written only the latest pending one is kept.
type ParameterChannel struct {
	ep   *endpoint
	v    *mandel.Viewport
	opts *options

	updates chan mandel.Params
	unsub   func()
	dropLog *rate.Limiter

	sent    atomic.Uint64
	dropped atomic.Uint64
}

func NewParameterChannel(url string, v *mandel.Viewport, opts ...Option) *ParameterChannel {
	o := newOptions(opts)
	pc := &ParameterChannel{
		v:       v,
		opts:    o,
		updates: make(chan mandel.Params, 1),
		dropLog: rate.NewLimiter(rate.Every(time.Second), 1),
	}
	pc.ep = newEndpoint("params", url, o, handlers{onOpen: pc.onOpen})
	pc.unsub = v.Subscribe(pc.observe)
	return pc
}

func (pc *ParameterChannel) State() State { return pc.ep.State() }

// Err returns the last connection error.
func (pc *ParameterChannel) Err() error { return pc.ep.Err() }

func (pc *ParameterChannel) OnStateChange(fn func(State)) { pc.ep.onStateChange(fn) }

// Sent returns the number of parameter messages written.
func (pc *ParameterChannel) Sent() uint64 { return pc.sent.Load() }

// Dropped returns the number of changes discarded because the channel was not open.
func (pc *ParameterChannel) Dropped() uint64 { return pc.dropped.Load() }

// Run connects and pushes updates until ctx is done or the channel closes.
func (pc *ParameterChannel) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)

	g.Go(func() error {
		defer cancel()
		return pc.ep.run(ctx)
	})
	g.Go(func() error {
		pc.writeLoop(ctx)
		return nil
	})
	return g.Wait()
}

func (pc *ParameterChannel) Close() error {
	pc.unsub()
	return pc.ep.close()
}

// onOpen pushes the current state so the backend starts from it.
func (pc *ParameterChannel) onOpen(context.Context, *websocket.Conn) error {
	pc.enqueue(mandel.ParamsFromSnapshot(pc.v.Snapshot()))
	return nil
}

func (pc *ParameterChannel) observe(c mandel.Change) {
	// the colour scheme travels over the frame connection
	if c.Fields&^mandel.ChangedColorScheme == 0 {
		return
	}
	if st := pc.ep.State(); st != Open {
		pc.dropped.Add(1)
		if pc.dropLog.Allow() {
			pc.opts.logger.Printf("params: update dropped, channel %s", st)
		}
		return
	}
	pc.enqueue(mandel.ParamsFromSnapshot(c.Snapshot))
}

// enqueue replaces any unsent update with p.
func (pc *ParameterChannel) enqueue(p mandel.Params) {
	for {
		select {
		case pc.updates <- p:
			return
		default:
		}
		select {
		case <-pc.updates:
		default:
		}
	}
}

func (pc *ParameterChannel) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-pc.updates:
			wctx, cancel := context.WithTimeout(ctx, paramsWriteTimeout)
			err := pc.ep.writeJSON(wctx, p)
			cancel()
			switch {
			case errors.Is(err, ErrNotOpen):
				pc.dropped.Add(1)
			case err != nil:
				pc.opts.logger.Printf("params: %v", err)
			default:
				pc.sent.Add(1)
				pc.opts.logv("params: sent %+v", p)
			}
		}
	}
}
