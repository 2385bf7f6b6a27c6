package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	mandel "github.com/marben/mandel_remote"
)

// ZoomSetter receives absolute zoom levels. The receiver clamps.
type ZoomSetter interface {
	SetZoom(level float64)
}

// GestureChannel receives zoom commands from an external gesture recogniser.
// Gesture zoom values are absolute levels, unlike scroll-wheel deltas.
type GestureChannel struct {
	ep   *endpoint
	opts *options
	zoom ZoomSetter

	m          sync.Mutex
	lastStatus string
	pongs      int
	applied    int
	rejected   int
}

func NewGestureChannel(url string, zoom ZoomSetter, opts ...Option) *GestureChannel {
	o := newOptions(opts)
	gc := &GestureChannel{
		opts: o,
		zoom: zoom,
	}
	gc.ep = newEndpoint("gesture", url, o, handlers{
		onOpen:    gc.onOpen,
		onMessage: gc.onMessage,
	})
	return gc
}

func (gc *GestureChannel) State() State { return gc.ep.State() }

// Err returns the last connection error.
func (gc *GestureChannel) Err() error { return gc.ep.Err() }

func (gc *GestureChannel) OnStateChange(fn func(State)) { gc.ep.onStateChange(fn) }

func (gc *GestureChannel) Run(ctx context.Context) error { return gc.ep.run(ctx) }

func (gc *GestureChannel) Close() error { return gc.ep.close() }

// Status returns the last connection_status message from the backend.
func (gc *GestureChannel) Status() string {
	gc.m.Lock()
	defer gc.m.Unlock()
	return gc.lastStatus
}

// Stats returns counts of pongs, applied zoom commands and rejected messages.
func (gc *GestureChannel) Stats() (pongs, applied, rejected int) {
	gc.m.Lock()
	defer gc.m.Unlock()
	return gc.pongs, gc.applied, gc.rejected
}

// onOpen announces the client with a single ping.
func (gc *GestureChannel) onOpen(ctx context.Context, c *websocket.Conn) error {
	return wsjson.Write(ctx, c, mandel.GestureMessage{Type: mandel.GesturePing})
}

func (gc *GestureChannel) onMessage(_ context.Context, typ websocket.MessageType, data []byte) {
	if err := gc.handle(typ, data); err != nil {
		gc.m.Lock()
		gc.rejected++
		gc.m.Unlock()
		gc.opts.logger.Printf("gesture: discarding message: %v", err)
	}
}

func (gc *GestureChannel) handle(typ websocket.MessageType, data []byte) error {
	if typ != websocket.MessageText {
		return fmt.Errorf("unexpected %s message", typ)
	}
	var msg mandel.GestureMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	switch msg.Type {
	case mandel.GesturePong:
		gc.m.Lock()
		gc.pongs++
		gc.m.Unlock()
		gc.opts.logv("gesture: pong")
	case mandel.GestureConnectionStatus:
		gc.m.Lock()
		gc.lastStatus = msg.Message
		gc.m.Unlock()
		gc.opts.logger.Printf("gesture: status: %s", msg.Message)
	case mandel.GestureZoom:
		if msg.Zoom == nil {
			return fmt.Errorf("%s without zoom", msg.Type)
		}
		gc.zoom.SetZoom(*msg.Zoom)
		gc.m.Lock()
		gc.applied++
		gc.m.Unlock()
		gc.opts.logv("gesture: zoom %v", *msg.Zoom)
	default:
		return fmt.Errorf("unknown type %q", msg.Type)
	}
	return nil
}
