package mandel

import (
	"math"
	"sync"
)

// Region is a named point of interest in the Mandelbrot set.
// A viewport is "near" a region when its center lies within Tolerance on
// both axes and its zoom is within regionZoomSlack levels.
type Region struct {
	Name        string
	DisplayName string
	CenterX     float64
	CenterY     float64
	ZoomLevel   int
	Tolerance   float64
}

const regionZoomSlack = 2

// Classic regions / landmarks in the Mandelbrot set
var (
	// Seahorse Valley - dense filaments and repeating "seahorse" curls
	SeahorseValley = Region{
		Name:        "seahorse",
		DisplayName: "Seahorse Valley",
		CenterX:     -0.75,
		CenterY:     0.10,
		ZoomLevel:   7,
		Tolerance:   0.05,
	}

	// Elephant Valley - large bulb with trunk-like tendrils
	ElephantValley = Region{
		Name:        "elephant",
		DisplayName: "Elephant Valley",
		CenterX:     -1.80,
		CenterY:     -0.06,
		ZoomLevel:   6,
		Tolerance:   0.05,
	}

	// Spiral Minibrot - small Mandelbrot copy with tight spiral arms
	SpiralMinibrot = Region{
		Name:        "spiral_minibrot",
		DisplayName: "Spiral Minibrot",
		CenterX:     -0.74275,
		CenterY:     0.13175,
		ZoomLevel:   11,
		Tolerance:   0.00075,
	}

	// Triple Spiral - threefold symmetric spiral structure
	TripleSpiral = Region{
		Name:        "triple_spiral",
		DisplayName: "Triple Spiral",
		CenterX:     -0.7465,
		CenterY:     0.0965,
		ZoomLevel:   10,
		Tolerance:   0.0015,
	}

	// Valley of the Dragon - deep, highly detailed spiral filaments
	ValleyOfTheDragon = Region{
		Name:        "dragon",
		DisplayName: "Valley of the Dragon",
		CenterX:     -0.7375,
		CenterY:     0.1825,
		ZoomLevel:   9,
		Tolerance:   0.0025,
	}
)

// Regions is the catalog in match order.
var Regions = []Region{
	SeahorseValley,
	ElephantValley,
	SpiralMinibrot,
	TripleSpiral,
	ValleyOfTheDragon,
}

// Matches reports whether s is within r's proximity window.
func (r Region) Matches(s Snapshot) bool {
	return math.Abs(s.CenterX-r.CenterX) <= r.Tolerance &&
		math.Abs(s.CenterY-r.CenterY) <= r.Tolerance &&
		absInt(s.ZoomLevel-r.ZoomLevel) <= regionZoomSlack
}

// FindRegion returns the first catalog region matching s.
// Overlapping regions are resolved by catalog order, not by distance.
func FindRegion(s Snapshot) (Region, bool) {
	return findIn(Regions, s)
}

// RegionByName looks a region up in the catalog.
func RegionByName(name string) (Region, bool) {
	for _, r := range Regions {
		if r.Name == name {
			return r, true
		}
	}
	return Region{}, false
}

func findIn(catalog []Region, s Snapshot) (Region, bool) {
	for _, r := range catalog {
		if r.Matches(s) {
			return r, true
		}
	}
	return Region{}, false
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// RegionWatcher tracks which catalog region the viewport is near and
// calls onChange whenever that answer changes.
type RegionWatcher struct {
	v        *Viewport
	catalog  []Region
	onChange func(r Region, near bool)

	m       sync.Mutex
	current Region
	near    bool
	cancel  func()
}

// WatchRegions subscribes to v and evaluates the catalog on every center or
// zoom change. The initial state is evaluated right after subscribing, so no
// change is missed in between.
func WatchRegions(v *Viewport, onChange func(r Region, near bool)) *RegionWatcher {
	rw := &RegionWatcher{
		v:        v,
		catalog:  Regions,
		onChange: onChange,
	}
	cancel := v.Subscribe(func(c Change) {
		if c.Fields&(ChangedCenter|ChangedZoom) == 0 {
			return
		}
		rw.evaluate()
	})
	rw.m.Lock()
	rw.cancel = cancel
	rw.m.Unlock()
	rw.evaluate()
	return rw
}

// Current returns the region the viewport is currently near, if any.
func (rw *RegionWatcher) Current() (Region, bool) {
	rw.m.Lock()
	defer rw.m.Unlock()
	return rw.current, rw.near
}

// Stop unsubscribes the watcher from the viewport.
func (rw *RegionWatcher) Stop() {
	rw.m.Lock()
	cancel := rw.cancel
	rw.m.Unlock()
	if cancel != nil {
		cancel()
	}
}

// evaluate reads the latest snapshot under the watcher lock, so concurrent
// evaluations store their results in snapshot order.
func (rw *RegionWatcher) evaluate() {
	rw.m.Lock()
	r, near := findIn(rw.catalog, rw.v.Snapshot())
	changed := near != rw.near || r.Name != rw.current.Name
	rw.current, rw.near = r, near
	rw.m.Unlock()

	if changed && rw.onChange != nil {
		rw.onChange(r, near)
	}
}
