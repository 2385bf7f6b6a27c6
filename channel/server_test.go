package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

// wsServer starts an httptest server that upgrades every request and hands
// the connection to serve. It returns the ws:// URL and a connection counter.
func wsServer(t *testing.T, serve func(ctx context.Context, c *websocket.Conn)) (string, *atomic.Int32) {
	t.Helper()
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		c.SetReadLimit(DefaultFrameReadLimit)
		conns.Add(1)
		serve(r.Context(), c)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), &conns
}

// run starts fn in the background. The returned cancel fails the test if fn
// does not return within waitFor after its context is cancelled.
func run(t *testing.T, fn func(context.Context) error) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	var once sync.Once
	cancel = func() {
		once.Do(func() {
			stop()
			select {
			case <-done:
			case <-time.After(waitFor):
				t.Errorf("run did not return after cancel")
			}
		})
	}
	t.Cleanup(cancel)
	return cancel
}

func waitState(t *testing.T, get func() State, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return get() == want }, waitFor, 5*time.Millisecond, "want state %s", want)
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitFor):
		t.Fatalf("timed out waiting for message")
	}
	var zero T
	return zero
}

// unreachable is a URL nothing listens on.
const unreachable = "ws://127.0.0.1:1/none"
