package mandel

import (
	"sync"
	"time"
)

// ColorSchemeDebouncer coalesces rapid colour scheme proposals, such as a
// picker previewing schemes on hover, into one committed change.
// It holds a single pending slot: every Propose replaces the previous one
// and restarts the delay.
type ColorSchemeDebouncer struct {
	delay  time.Duration
	commit func(scheme string)

	m       sync.Mutex
	timer   *time.Timer
	pending string
	seq     uint64
	stopped bool
}

func NewColorSchemeDebouncer(delay time.Duration, commit func(scheme string)) *ColorSchemeDebouncer {
	return &ColorSchemeDebouncer{
		delay:  delay,
		commit: commit,
	}
}

// Propose cancels any pending proposal and schedules scheme for commit.
func (d *ColorSchemeDebouncer) Propose(scheme string) {
	d.m.Lock()
	defer d.m.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.pending = scheme
	d.timer = time.AfterFunc(d.delay, func() { d.fire(seq) })
}

// Pending returns the proposal waiting for commit, if any.
func (d *ColorSchemeDebouncer) Pending() (string, bool) {
	d.m.Lock()
	defer d.m.Unlock()
	return d.pending, d.timer != nil
}

// Stop cancels the pending proposal. Later proposals are ignored.
func (d *ColorSchemeDebouncer) Stop() {
	d.m.Lock()
	defer d.m.Unlock()

	d.stopped = true
	d.seq++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = ""
}

func (d *ColorSchemeDebouncer) fire(seq uint64) {
	d.m.Lock()
	// a timer that already fired may lose the race with a newer Propose
	if seq != d.seq || d.stopped {
		d.m.Unlock()
		return
	}
	scheme := d.pending
	d.pending = ""
	d.timer = nil
	d.m.Unlock()

	d.commit(scheme)
}
