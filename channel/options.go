package channel

import (
	"log"
	"time"

	"github.com/coder/websocket"
)

// DefaultHandleTTL is how long a frame's display handle stays valid.
const DefaultHandleTTL = 5 * time.Second

// DefaultFrameReadLimit bounds a single inbound frame message.
// A 960x720 RGB frame is just over 2 MiB uncompressed.
const DefaultFrameReadLimit = 4 << 20

const maxBackoffDelay = 5 * time.Minute

// Backoff is a reconnection policy. The zero value never reconnects.
type Backoff struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int // 0 means unlimited
}

// next returns the delay before reconnect attempt n (0-based).
func (b Backoff) next(n int) (time.Duration, bool) {
	if b.Initial <= 0 {
		return 0, false
	}
	if b.MaxAttempts > 0 && n >= b.MaxAttempts {
		return 0, false
	}
	limit := b.Max
	if limit <= 0 {
		limit = maxBackoffDelay
	}
	d := b.Initial
	for i := 0; i < n && d < limit; i++ {
		d *= 2
	}
	return min(d, limit), true
}

type options struct {
	logger    *log.Logger
	verbose   bool
	backoff   Backoff
	readLimit int64
	dial      *websocket.DialOptions
	handleTTL time.Duration
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:    log.Default(),
		handleTTL: DefaultHandleTTL,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// logv logs only when verbose logging is enabled.
func (o *options) logv(format string, args ...any) {
	if o.verbose {
		o.logger.Printf(format, args...)
	}
}

type Option func(*options)

func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithVerbose enables per-message and state transition logging.
func WithVerbose(v bool) Option {
	return func(o *options) { o.verbose = v }
}

// WithBackoff enables reconnection after a dropped or refused connection.
func WithBackoff(b Backoff) Option {
	return func(o *options) { o.backoff = b }
}

// WithReadLimit sets the maximum size of an inbound message.
func WithReadLimit(n int64) Option {
	return func(o *options) { o.readLimit = n }
}

func WithDialOptions(d *websocket.DialOptions) Option {
	return func(o *options) { o.dial = d }
}

// withHandleTTL shortens the handle window in tests.
func withHandleTTL(d time.Duration) Option {
	return func(o *options) { o.handleTTL = d }
}
