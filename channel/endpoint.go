// Package channel implements the three websocket connections between the
// viewport core and the render backend: outbound parameters, inbound frames
// and inbound gesture commands.
//
// Each connection is an endpoint with an explicit state machine:
//
//	Disconnected -> Connecting -> Open -> Disconnected (retry) | Closed
//
// Transitions are driven by the socket (dial result, read errors, close),
// never by callers. Nothing in this package is fatal: failures are logged
// and surface as state changes.
package channel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

type State int32

const (
	Disconnected State = iota
	Connecting
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

var (
	// ErrNotOpen is returned by sends attempted while the connection is not Open.
	ErrNotOpen = errors.New("channel not open")
	ErrClosed  = errors.New("channel closed")

	errPeerClosed = errors.New("connection closed by peer")
)

type handlers struct {
	// onOpen runs once per established connection, before any message is read.
	onOpen func(ctx context.Context, c *websocket.Conn) error
	// onMessage is called for every inbound data message in arrival order.
	// A nil onMessage makes the endpoint outbound only.
	onMessage func(ctx context.Context, typ websocket.MessageType, data []byte)
}

type endpoint struct {
	name string
	url  string
	opts *options
	h    handlers

	m         sync.Mutex
	state     State
	conn      *websocket.Conn
	lastErr   error
	listeners []func(State)
	closed    bool
	cancel    context.CancelFunc
}

func newEndpoint(name, url string, o *options, h handlers) *endpoint {
	return &endpoint{
		name:  name,
		url:   url,
		opts:  o,
		h:     h,
		state: Disconnected,
	}
}

func (e *endpoint) State() State {
	e.m.Lock()
	defer e.m.Unlock()
	return e.state
}

// Err returns the last connection error, if any.
func (e *endpoint) Err() error {
	e.m.Lock()
	defer e.m.Unlock()
	return e.lastErr
}

func (e *endpoint) onStateChange(fn func(State)) {
	e.m.Lock()
	defer e.m.Unlock()
	e.listeners = append(e.listeners, fn)
}

func (e *endpoint) setState(s State) {
	e.m.Lock()
	// Closed is terminal once close() has been called
	if e.state == s || (e.closed && s != Closed) {
		e.m.Unlock()
		return
	}
	e.state = s
	listeners := slices.Clone(e.listeners)
	e.m.Unlock()

	e.opts.logv("%s: %s", e.name, s)
	for _, l := range listeners {
		l(s)
	}
}

func (e *endpoint) setErr(err error) {
	e.m.Lock()
	e.lastErr = err
	e.m.Unlock()
}

// run connects and serves the endpoint until ctx is done, close is called,
// or the connection drops and the backoff policy gives up. Connection
// failures are logged, not returned.
func (e *endpoint) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.m.Lock()
	if e.closed {
		e.m.Unlock()
		return ErrClosed
	}
	e.cancel = cancel
	e.m.Unlock()

	attempt := 0
	for {
		opened, err := e.session(ctx)
		if ctx.Err() != nil {
			e.setState(Closed)
			return nil
		}
		if err != nil {
			e.setErr(err)
			e.opts.logger.Printf("%s: %v", e.name, err)
		}
		if opened {
			attempt = 0
		}

		delay, ok := e.opts.backoff.next(attempt)
		if !ok {
			e.setState(Closed)
			return nil
		}
		attempt++
		e.opts.logv("%s: reconnecting in %s (attempt %d)", e.name, delay, attempt)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			e.setState(Closed)
			return nil
		case <-t.C:
		}
	}
}

func (e *endpoint) session(ctx context.Context) (opened bool, err error) {
	e.setState(Connecting)
	c, _, err := websocket.Dial(ctx, e.url, e.opts.dial)
	if err != nil {
		e.setState(Disconnected)
		return false, fmt.Errorf("dial %s: %w", e.url, err)
	}
	if e.opts.readLimit > 0 {
		c.SetReadLimit(e.opts.readLimit)
	}

	e.m.Lock()
	e.conn = c
	e.m.Unlock()
	e.setState(Open)

	defer func() {
		e.m.Lock()
		e.conn = nil
		e.m.Unlock()
		c.CloseNow()
		e.setState(Disconnected)
	}()

	if e.h.onOpen != nil {
		if err := e.h.onOpen(ctx, c); err != nil {
			return true, fmt.Errorf("on open: %w", err)
		}
	}

	if e.h.onMessage == nil {
		// outbound only: keep reading control frames until the peer goes away
		<-c.CloseRead(ctx).Done()
		return true, errPeerClosed
	}

	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return true, errPeerClosed
			}
			return true, fmt.Errorf("read: %w", err)
		}
		e.h.onMessage(ctx, typ, data)
	}
}

func (e *endpoint) activeConn() (*websocket.Conn, error) {
	e.m.Lock()
	defer e.m.Unlock()
	if e.state != Open || e.conn == nil {
		return nil, ErrNotOpen
	}
	return e.conn, nil
}

func (e *endpoint) writeJSON(ctx context.Context, v any) error {
	c, err := e.activeConn()
	if err != nil {
		return err
	}
	if err := wsjson.Write(ctx, c, v); err != nil {
		return fmt.Errorf("%s write: %w", e.name, err)
	}
	return nil
}

// close closes the socket, stops any reconnect loop and moves the endpoint
// to Closed. It is safe to call more than once.
func (e *endpoint) close() error {
	e.m.Lock()
	if e.closed {
		e.m.Unlock()
		return nil
	}
	e.closed = true
	c := e.conn
	cancel := e.cancel
	e.m.Unlock()

	if c != nil {
		if err := c.Close(websocket.StatusNormalClosure, ""); err != nil {
			e.opts.logv("%s: close: %v", e.name, err)
		}
	}
	if cancel != nil {
		cancel()
	}
	e.setState(Closed)
	return nil
}
