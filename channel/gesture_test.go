package channel

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/coder/websocket"
	mandel "github.com/marben/mandel_remote"
	"github.com/stretchr/testify/require"
)

type gestureBackend struct {
	url     string
	inbound chan mandel.GestureMessage
	send    chan string
}

func newGestureBackend(t *testing.T) *gestureBackend {
	b := &gestureBackend{
		inbound: make(chan mandel.GestureMessage, 16),
		send:    make(chan string, 16),
	}
	b.url, _ = wsServer(t, func(ctx context.Context, c *websocket.Conn) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		go func() {
			defer cancel()
			for {
				_, data, err := c.Read(ctx)
				if err != nil {
					return
				}
				var m mandel.GestureMessage
				if json.Unmarshal(data, &m) == nil {
					b.inbound <- m
				}
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case s := <-b.send:
				if err := c.Write(ctx, websocket.MessageText, []byte(s)); err != nil {
					return
				}
			}
		}
	})
	return b
}

func startGesture(t *testing.T, b *gestureBackend) (*GestureChannel, *mandel.Viewport) {
	v := mandel.NewViewport()
	t.Cleanup(v.Close)
	gc := NewGestureChannel(b.url, v)
	t.Cleanup(func() { gc.Close() })
	run(t, gc.Run)
	waitState(t, gc.State, Open)
	return gc, v
}

func applied(gc *GestureChannel) int {
	_, n, _ := gc.Stats()
	return n
}

func rejected(gc *GestureChannel) int {
	_, _, n := gc.Stats()
	return n
}

func TestGestureChannel_PingsOnOpen(t *testing.T) {
	b := newGestureBackend(t)
	startGesture(t, b)

	m := recv(t, b.inbound)
	require.Equal(t, mandel.GesturePing, m.Type)
}

func TestGestureChannel_ZoomIsAbsolute(t *testing.T) {
	b := newGestureBackend(t)
	gc, v := startGesture(t, b)
	recv(t, b.inbound)

	b.send <- `{"type":"gesture_zoom","zoom":15}`
	require.Eventually(t, func() bool { return applied(gc) == 1 }, waitFor, 5*time.Millisecond)
	require.Equal(t, 15, v.ZoomLevel())

	// a repeated absolute level does not accumulate
	b.send <- `{"type":"gesture_zoom","zoom":5}`
	b.send <- `{"type":"gesture_zoom","zoom":5}`
	require.Eventually(t, func() bool { return applied(gc) == 3 }, waitFor, 5*time.Millisecond)
	require.Equal(t, 5, v.ZoomLevel())

	b.send <- `{"type":"gesture_zoom","zoom":99}`
	require.Eventually(t, func() bool { return applied(gc) == 4 }, waitFor, 5*time.Millisecond)
	require.Equal(t, mandel.MaxZoom, v.ZoomLevel())
}

func TestGestureChannel_RejectsMalformedMessages(t *testing.T) {
	b := newGestureBackend(t)
	gc, v := startGesture(t, b)
	recv(t, b.inbound)
	v.SetZoom(4)

	b.send <- `{"type":"gesture_zoom","zoom":`
	b.send <- `{"type":"gesture_zoom"}`
	b.send <- `{"type":"swipe_left"}`
	require.Eventually(t, func() bool { return rejected(gc) == 3 }, waitFor, 5*time.Millisecond)

	require.Equal(t, 4, v.ZoomLevel())
	require.Equal(t, Open, gc.State(), "bad messages do not drop the connection")

	b.send <- `{"type":"gesture_zoom","zoom":6}`
	require.Eventually(t, func() bool { return v.ZoomLevel() == 6 }, waitFor, 5*time.Millisecond)
}

func TestGestureChannel_StatusAndPong(t *testing.T) {
	b := newGestureBackend(t)
	gc, v := startGesture(t, b)
	recv(t, b.inbound)

	b.send <- `{"type":"pong"}`
	b.send <- `{"type":"connection_status","message":"hand tracker ready"}`
	require.Eventually(t, func() bool { return gc.Status() == "hand tracker ready" }, waitFor, 5*time.Millisecond)

	pongs, n, bad := gc.Stats()
	require.Equal(t, 1, pongs)
	require.Zero(t, n)
	require.Zero(t, bad)
	require.Equal(t, mandel.MinZoom, v.ZoomLevel())
}
