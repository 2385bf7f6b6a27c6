package channel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zlib"
	mandel "github.com/marben/mandel_remote"
	"golang.org/x/time/rate"
)

// Frame is a rendered image received from the backend. Handle is valid for
// the handle TTL after Received; see FrameChannel.HandleValid.
type Frame struct {
	Handle     uuid.UUID
	Data       []byte
	Received   time.Time
	Compressed bool
}

// FrameChannel receives rendered frames and carries outbound colour scheme
// messages on the same connection.
type FrameChannel struct {
	ep      *endpoint
	opts    *options
	handles *handleTable
	textLog *rate.Limiter

	m         sync.Mutex
	current   *Frame
	onFrame   []func(Frame)
	onRelease []func(uuid.UUID)
	received  uint64
}

func NewFrameChannel(url string, opts ...Option) *FrameChannel {
	o := newOptions(append([]Option{WithReadLimit(DefaultFrameReadLimit)}, opts...))
	fc := &FrameChannel{
		opts:    o,
		textLog: rate.NewLimiter(rate.Every(time.Second), 1),
	}
	fc.handles = newHandleTable(o.handleTTL, fc.released)
	fc.ep = newEndpoint("frames", url, o, handlers{onMessage: fc.onMessage})
	return fc
}

func (fc *FrameChannel) State() State { return fc.ep.State() }

// Err returns the last connection error.
func (fc *FrameChannel) Err() error { return fc.ep.Err() }

func (fc *FrameChannel) OnStateChange(fn func(State)) { fc.ep.onStateChange(fn) }

// OnFrame registers fn to be called with every new frame.
func (fc *FrameChannel) OnFrame(fn func(Frame)) {
	fc.m.Lock()
	defer fc.m.Unlock()
	fc.onFrame = append(fc.onFrame, fn)
}

// OnRelease registers fn to be called when a display handle is released.
func (fc *FrameChannel) OnRelease(fn func(uuid.UUID)) {
	fc.m.Lock()
	defer fc.m.Unlock()
	fc.onRelease = append(fc.onRelease, fn)
}

// Current returns the most recent frame. Its handle may already be released.
func (fc *FrameChannel) Current() (Frame, bool) {
	fc.m.Lock()
	defer fc.m.Unlock()
	if fc.current == nil {
		return Frame{}, false
	}
	return *fc.current, true
}

// HandleValid reports whether a display handle has not been released yet.
func (fc *FrameChannel) HandleValid(id uuid.UUID) bool { return fc.handles.valid(id) }

// LiveHandles returns the number of unreleased display handles.
func (fc *FrameChannel) LiveHandles() int { return fc.handles.count() }

// Received returns the number of frames published.
func (fc *FrameChannel) Received() uint64 {
	fc.m.Lock()
	defer fc.m.Unlock()
	return fc.received
}

func (fc *FrameChannel) Run(ctx context.Context) error {
	return fc.ep.run(ctx)
}

// Close closes the connection and releases every outstanding handle.
func (fc *FrameChannel) Close() error {
	err := fc.ep.close()
	fc.handles.drain()
	return err
}

// SendColormap sends a colour scheme selection over the frame connection.
// It returns ErrNotOpen when the connection is not open.
func (fc *FrameChannel) SendColormap(ctx context.Context, scheme string) error {
	if err := fc.ep.writeJSON(ctx, mandel.ColormapMessage{Colormap: scheme}); err != nil {
		return err
	}
	fc.opts.logv("frames: colormap %q sent", scheme)
	return nil
}

var _ mandel.ColormapSender = (*FrameChannel)(nil)

func (fc *FrameChannel) onMessage(_ context.Context, typ websocket.MessageType, data []byte) {
	if typ != websocket.MessageBinary {
		if fc.textLog.Allow() {
			fc.opts.logger.Printf("frames: ignoring unexpected text message (%d bytes)", len(data))
		}
		return
	}

	payload, compressed := inflate(data, fc.opts.readLimit)
	now := time.Now()
	id, ok := fc.handles.create()
	if !ok {
		return
	}
	f := Frame{
		Handle:     id,
		Data:       payload,
		Received:   now,
		Compressed: compressed,
	}

	fc.m.Lock()
	fc.current = &f
	fc.received++
	listeners := slices.Clone(fc.onFrame)
	fc.m.Unlock()

	fc.opts.logv("frames: frame %s (%d bytes, compressed=%t)", id, len(payload), compressed)
	for _, l := range listeners {
		l(f)
	}
}

func (fc *FrameChannel) released(id uuid.UUID) {
	fc.m.Lock()
	listeners := slices.Clone(fc.onRelease)
	fc.m.Unlock()

	for _, l := range listeners {
		l(id)
	}
}

var errInflatedTooLarge = errors.New("zlib: inflated frame exceeds limit")

// inflate decompresses data when it carries a zlib stream and returns it
// untouched otherwise, or when decompression fails or would exceed four
// times limit.
func inflate(data []byte, limit int64) ([]byte, bool) {
	if !isZlib(data) {
		return data, false
	}
	out, err := decompress(data, limit)
	if err != nil {
		return data, false
	}
	return out, true
}

func decompress(data []byte, limit int64) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	defer r.Close()

	if limit <= 0 {
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("zlib: %w", err)
		}
		return out, nil
	}

	// decompressed frames may be larger than the wire limit, but not unbounded
	capacity := 4 * limit
	out, err := io.ReadAll(io.LimitReader(r, capacity+1))
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	if int64(len(out)) > capacity {
		return nil, errInflatedTooLarge
	}
	return out, nil
}

// isZlib checks for a zlib header: deflate method, 32K window, valid check bits.
func isZlib(b []byte) bool {
	if len(b) < 2 {
		return false
	}
	return b[0] == 0x78 && (uint16(b[0])<<8|uint16(b[1]))%31 == 0
}
