package channel

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// handleTable owns the display handles of received frames. Every handle is
// released exactly once: by its expiry timer, or by drain on teardown,
// whichever comes first.
type handleTable struct {
	ttl       time.Duration
	onRelease func(id uuid.UUID)

	m      sync.Mutex
	live   map[uuid.UUID]*time.Timer
	closed bool
}

func newHandleTable(ttl time.Duration, onRelease func(uuid.UUID)) *handleTable {
	return &handleTable{
		ttl:       ttl,
		onRelease: onRelease,
		live:      make(map[uuid.UUID]*time.Timer),
	}
}

// create registers a new handle and schedules its release. It fails once
// the table has been drained.
func (t *handleTable) create() (uuid.UUID, bool) {
	id := uuid.New()

	t.m.Lock()
	defer t.m.Unlock()
	if t.closed {
		return uuid.Nil, false
	}
	t.live[id] = time.AfterFunc(t.ttl, func() { t.release(id) })
	return id, true
}

func (t *handleTable) release(id uuid.UUID) bool {
	t.m.Lock()
	timer, ok := t.live[id]
	if ok {
		delete(t.live, id)
	}
	t.m.Unlock()

	if !ok {
		return false
	}
	timer.Stop()
	if t.onRelease != nil {
		t.onRelease(id)
	}
	return true
}

func (t *handleTable) valid(id uuid.UUID) bool {
	t.m.Lock()
	defer t.m.Unlock()
	_, ok := t.live[id]
	return ok
}

func (t *handleTable) count() int {
	t.m.Lock()
	defer t.m.Unlock()
	return len(t.live)
}

// drain releases every outstanding handle immediately and refuses new ones.
func (t *handleTable) drain() {
	t.m.Lock()
	t.closed = true
	pending := make([]uuid.UUID, 0, len(t.live))
	for id := range t.live {
		pending = append(pending, id)
	}
	t.m.Unlock()

	for _, id := range pending {
		t.release(id)
	}
}
