package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zlib"
	mandel "github.com/marben/mandel_remote"
	"github.com/stretchr/testify/require"
)

type frameBackend struct {
	url       string
	send      chan frameMsg
	colormaps chan string
}

type frameMsg struct {
	typ  websocket.MessageType
	data []byte
}

// newFrameBackend writes whatever is queued on send and records inbound
// colormap messages.
func newFrameBackend(t *testing.T) *frameBackend {
	b := &frameBackend{
		send:      make(chan frameMsg, 16),
		colormaps: make(chan string, 16),
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
				var m mandel.ColormapMessage
				if json.Unmarshal(data, &m) == nil {
					b.colormaps <- m.Colormap
				}
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case m := <-b.send:
				if err := c.Write(ctx, m.typ, m.data); err != nil {
					return
				}
			}
		}
	})
	return b
}

func (b *frameBackend) frame(data []byte) {
	b.send <- frameMsg{typ: websocket.MessageBinary, data: data}
}

type releaseLog struct {
	m     sync.Mutex
	count map[uuid.UUID]int
	at    map[uuid.UUID]time.Time
}

func newReleaseLog() *releaseLog {
	return &releaseLog{count: map[uuid.UUID]int{}, at: map[uuid.UUID]time.Time{}}
}

func (r *releaseLog) record(id uuid.UUID) {
	r.m.Lock()
	defer r.m.Unlock()
	r.count[id]++
	r.at[id] = time.Now()
}

func (r *releaseLog) times(id uuid.UUID) int {
	r.m.Lock()
	defer r.m.Unlock()
	return r.count[id]
}

func (r *releaseLog) releasedAt(id uuid.UUID) time.Time {
	r.m.Lock()
	defer r.m.Unlock()
	return r.at[id]
}

func startFrames(t *testing.T, b *frameBackend, ttl time.Duration) (*FrameChannel, chan Frame, *releaseLog) {
	fc := NewFrameChannel(b.url, withHandleTTL(ttl))
	frames := make(chan Frame, 16)
	rel := newReleaseLog()
	fc.OnFrame(func(f Frame) { frames <- f })
	fc.OnRelease(rel.record)
	t.Cleanup(func() { fc.Close() })
	run(t, fc.Run)
	waitState(t, fc.State, Open)
	return fc, frames, rel
}

func TestFrameChannel_PublishesFrames(t *testing.T) {
	b := newFrameBackend(t)
	fc, frames, _ := startFrames(t, b, time.Hour)

	b.frame([]byte{0xff, 0xd8, 0xff, 0xe0, 1, 2, 3})
	f := recv(t, frames)
	require.Equal(t, []byte{0xff, 0xd8, 0xff, 0xe0, 1, 2, 3}, f.Data)
	require.False(t, f.Compressed)
	require.True(t, fc.HandleValid(f.Handle))

	cur, ok := fc.Current()
	require.True(t, ok)
	require.Equal(t, f.Handle, cur.Handle)
	require.Equal(t, uint64(1), fc.Received())
}

func TestFrameChannel_HandleReleasedAfterTTL(t *testing.T) {
	const ttl = 50 * time.Millisecond
	b := newFrameBackend(t)
	fc, frames, rel := startFrames(t, b, ttl)

	b.frame([]byte("first"))
	f := recv(t, frames)
	require.Eventually(t, func() bool { return rel.times(f.Handle) == 1 }, waitFor, 5*time.Millisecond)
	require.False(t, fc.HandleValid(f.Handle))
	require.GreaterOrEqual(t, rel.releasedAt(f.Handle).Sub(f.Received), ttl)

	// the frame stays current, only its handle is gone
	cur, ok := fc.Current()
	require.True(t, ok)
	require.Equal(t, f.Handle, cur.Handle)
}

func TestFrameChannel_SupersededHandleStillExpires(t *testing.T) {
	const ttl = 100 * time.Millisecond
	b := newFrameBackend(t)
	fc, frames, rel := startFrames(t, b, ttl)

	b.frame([]byte("a"))
	first := recv(t, frames)
	time.Sleep(ttl / 5)
	b.frame([]byte("b"))
	second := recv(t, frames)

	cur, _ := fc.Current()
	require.Equal(t, second.Handle, cur.Handle)

	require.Eventually(t, func() bool { return rel.times(first.Handle) == 1 }, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool { return rel.times(second.Handle) == 1 }, waitFor, 5*time.Millisecond)
	require.True(t, rel.releasedAt(first.Handle).Before(rel.releasedAt(second.Handle)))

	time.Sleep(ttl)
	require.Equal(t, 1, rel.times(first.Handle), "released exactly once")
	require.Equal(t, 1, rel.times(second.Handle), "released exactly once")
	require.Zero(t, fc.LiveHandles())
}

func TestFrameChannel_CloseReleasesPendingHandles(t *testing.T) {
	b := newFrameBackend(t)
	fc, frames, rel := startFrames(t, b, time.Hour)

	b.frame([]byte("one"))
	b.frame([]byte("two"))
	one := recv(t, frames)
	two := recv(t, frames)
	require.Equal(t, 2, fc.LiveHandles())

	require.NoError(t, fc.Close())
	require.Equal(t, Closed, fc.State())
	require.Zero(t, fc.LiveHandles())
	require.Equal(t, 1, rel.times(one.Handle))
	require.Equal(t, 1, rel.times(two.Handle))

	require.NoError(t, fc.Close())
	require.Equal(t, 1, rel.times(one.Handle))
}

func TestFrameChannel_InflatesZlibPayloads(t *testing.T) {
	b := newFrameBackend(t)
	_, frames, _ := startFrames(t, b, time.Hour)

	raw := bytes.Repeat([]byte{7, 7, 7, 200}, 4096)
	b.frame(zlibBytes(t, raw))
	f := recv(t, frames)
	require.True(t, f.Compressed)
	require.Equal(t, raw, f.Data)
}

func TestFrameChannel_IgnoresTextMessages(t *testing.T) {
	b := newFrameBackend(t)
	fc, frames, _ := startFrames(t, b, time.Hour)

	b.send <- frameMsg{typ: websocket.MessageText, data: []byte(`{"hello":"world"}`)}
	b.frame([]byte("img"))

	f := recv(t, frames)
	require.Equal(t, []byte("img"), f.Data)
	require.Equal(t, uint64(1), fc.Received())
	require.Equal(t, Open, fc.State())
}

func TestFrameChannel_SendColormap(t *testing.T) {
	b := newFrameBackend(t)
	fc, _, _ := startFrames(t, b, time.Hour)

	require.NoError(t, fc.SendColormap(context.Background(), "neon_green"))
	require.Equal(t, "neon_green", recv(t, b.colormaps))
}

func TestFrameChannel_SendColormapWhenNotOpen(t *testing.T) {
	fc := NewFrameChannel(unreachable)
	defer fc.Close()

	err := fc.SendColormap(context.Background(), "sunset")
	require.ErrorIs(t, err, ErrNotOpen)
}

func TestInflate(t *testing.T) {
	// JPEG data passes through untouched
	jpeg := []byte{0xff, 0xd8, 0xff}
	out, ok := inflate(jpeg, 0)
	require.False(t, ok)
	require.Equal(t, jpeg, out)

	// a zlib-looking header with a corrupt body falls back to the raw bytes
	bogus := []byte{0x78, 0x9c, 0x00, 0x01, 0x02}
	out, ok = inflate(bogus, 0)
	require.False(t, ok)
	require.Equal(t, bogus, out)

	// a stream inflating past four times the limit is never published truncated
	big := bytes.Repeat([]byte{1}, 10240)
	packed := zlibBytes(t, big)
	out, ok = inflate(packed, 1024)
	require.False(t, ok)
	require.Equal(t, packed, out)

	_, err := decompress(packed, 1024)
	require.ErrorIs(t, err, errInflatedTooLarge)

	// exactly at the cap still inflates
	out, ok = inflate(zlibBytes(t, big[:4096]), 1024)
	require.True(t, ok)
	require.Len(t, out, 4096)

	require.True(t, isZlib([]byte{0x78, 0x9c}))
	require.True(t, isZlib([]byte{0x78, 0x01}))
	require.False(t, isZlib([]byte{0x78}))
}

func TestFrameChannel_RunAfterClose(t *testing.T) {
	fc := NewFrameChannel(unreachable)
	require.NoError(t, fc.Close())
	require.ErrorIs(t, fc.Run(context.Background()), ErrClosed)
	require.Equal(t, Closed, fc.State())
}

func zlibBytes(t *testing.T, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(raw)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestFrameChannel_HandleWindowIsFixed(t *testing.T) {
	fc := NewFrameChannel(unreachable,
		WithBackoff(Backoff{Initial: time.Millisecond}),
		WithReadLimit(1<<10),
		WithVerbose(true),
	)
	defer fc.Close()
	require.Equal(t, DefaultHandleTTL, fc.handles.ttl)
	require.Equal(t, 5*time.Second, DefaultHandleTTL)
}
