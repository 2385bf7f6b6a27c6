package mandel

import (
	"context"
	"log"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Mode selects which fractal the backend renders.
type Mode int

const (
	ModeMandelbrot Mode = iota
	ModeJulia
)

func (m Mode) String() string {
	if m == ModeJulia {
		return "julia"
	}
	return "mandelbrot"
}

// Bounds enforced on every viewport mutation.
// The center bound is a safety limit of the backend's fixed-point format,
// not a property of the set.
const (
	MinCenter     = -8.0
	MaxCenter     = 7.999999999
	MinZoom       = 0
	MaxZoom       = 20
	MinIterations = 1
	MaxIterations = 11
)

// Defaults for a freshly created viewport.
const (
	DefaultCenterX          = -0.5
	DefaultCenterY          = 0.0
	DefaultIterations       = 8
	DefaultColorScheme      = "classic"
	DefaultWheelSensitivity = 0.01
	DefaultColorSchemeDelay = 50 * time.Millisecond
)

const colormapSendTimeout = 2 * time.Second

// Snapshot is an immutable copy of the viewport state.
type Snapshot struct {
	CenterX       float64
	CenterY       float64
	ZoomLevel     int
	MaxIterations int
	Mode          Mode
	ColorScheme   string
}

// Field is a bit set naming the fields touched by a change.
type Field uint8

const (
	ChangedCenter Field = 1 << iota
	ChangedZoom
	ChangedIterations
	ChangedMode
	ChangedColorScheme
)

// Change is delivered to subscribers after every state-changing mutation.
type Change struct {
	Snapshot Snapshot
	Fields   Field
}

func diff(a, b Snapshot) Field {
	var f Field
	if a.CenterX != b.CenterX || a.CenterY != b.CenterY {
		f |= ChangedCenter
	}
	if a.ZoomLevel != b.ZoomLevel {
		f |= ChangedZoom
	}
	if a.MaxIterations != b.MaxIterations {
		f |= ChangedIterations
	}
	if a.Mode != b.Mode {
		f |= ChangedMode
	}
	if a.ColorScheme != b.ColorScheme {
		f |= ChangedColorScheme
	}
	return f
}

type observer struct {
	id int
	fn func(Change)
}

// Viewport is the authoritative view model. Every mutator clamps its input
// before storing it, so the state is always within bounds.
//
// A mutation and the notification of its subscribers complete before the
// next mutation is applied. Subscribers therefore must not call mutators
// synchronously.
type Viewport struct {
	notifyMu sync.Mutex

	m         sync.Mutex
	state     Snapshot
	observers []observer
	nextID    int

	wheelSensitivity float64
	schemeDelay      time.Duration
	colormap         ColormapSender
	logger           *log.Logger
	schemes          *ColorSchemeDebouncer
}

type ViewportOption func(*Viewport)

// WithWheelSensitivity sets the zoom change per scroll-wheel unit.
func WithWheelSensitivity(s float64) ViewportOption {
	return func(v *Viewport) { v.wheelSensitivity = s }
}

// WithColorSchemeDelay sets the colour scheme debounce delay.
func WithColorSchemeDelay(d time.Duration) ViewportOption {
	return func(v *Viewport) { v.schemeDelay = d }
}

// WithColormapSender sets where committed colour schemes are announced.
func WithColormapSender(s ColormapSender) ViewportOption {
	return func(v *Viewport) { v.colormap = s }
}

// WithIterations sets the initial iteration cap, clamped.
func WithIterations(n int) ViewportOption {
	return func(v *Viewport) { v.state.MaxIterations = clampIterations(n, 0) }
}

// WithColorScheme sets the initial colour scheme without debouncing.
func WithColorScheme(name string) ViewportOption {
	return func(v *Viewport) {
		if name != "" {
			v.state.ColorScheme = name
		}
	}
}

func WithLogger(l *log.Logger) ViewportOption {
	return func(v *Viewport) { v.logger = l }
}

func NewViewport(opts ...ViewportOption) *Viewport {
	v := &Viewport{
		state: Snapshot{
			CenterX:       DefaultCenterX,
			CenterY:       DefaultCenterY,
			ZoomLevel:     MinZoom,
			MaxIterations: DefaultIterations,
			Mode:          ModeMandelbrot,
			ColorScheme:   DefaultColorScheme,
		},
		wheelSensitivity: DefaultWheelSensitivity,
		schemeDelay:      DefaultColorSchemeDelay,
		logger:           log.Default(),
	}
	for _, o := range opts {
		o(v)
	}
	v.schemes = NewColorSchemeDebouncer(v.schemeDelay, v.applyColorScheme)
	return v
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (v *Viewport) Subscribe(fn func(Change)) (cancel func()) {
	v.m.Lock()
	id := v.nextID
	v.nextID++
	v.observers = append(v.observers, observer{id: id, fn: fn})
	v.m.Unlock()

	return func() {
		v.m.Lock()
		defer v.m.Unlock()
		v.observers = slices.DeleteFunc(v.observers, func(o observer) bool { return o.id == id })
	}
}

func (v *Viewport) update(fn func(s *Snapshot)) {
	v.notifyMu.Lock()
	defer v.notifyMu.Unlock()

	v.m.Lock()
	prev := v.state
	fn(&v.state)
	next := v.state
	observers := slices.Clone(v.observers)
	v.m.Unlock()

	fields := diff(prev, next)
	if fields == 0 {
		return
	}
	c := Change{Snapshot: next, Fields: fields}
	for _, o := range observers {
		o.fn(c)
	}
}

func (v *Viewport) Snapshot() Snapshot {
	v.m.Lock()
	defer v.m.Unlock()
	return v.state
}

func (v *Viewport) Center() (x, y float64) {
	s := v.Snapshot()
	return s.CenterX, s.CenterY
}

func (v *Viewport) ZoomLevel() int     { return v.Snapshot().ZoomLevel }
func (v *Viewport) MaxIterations() int { return v.Snapshot().MaxIterations }
func (v *Viewport) Mode() Mode         { return v.Snapshot().Mode }
func (v *Viewport) ColorScheme() string {
	return v.Snapshot().ColorScheme
}

// SetCenter clamps each axis independently. NaN leaves that axis unchanged.
func (v *Viewport) SetCenter(x, y float64) {
	v.update(func(s *Snapshot) {
		s.CenterX = clampCenter(x, s.CenterX)
		s.CenterY = clampCenter(y, s.CenterY)
	})
}

// SetCenterText parses numeric text for each axis. An axis whose text does
// not parse keeps its last valid value. It reports whether any axis parsed.
func (v *Viewport) SetCenterText(xs, ys string) bool {
	x, errX := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	y, errY := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if errX != nil && errY != nil {
		return false
	}
	v.update(func(s *Snapshot) {
		if errX == nil {
			s.CenterX = clampCenter(x, s.CenterX)
		}
		if errY == nil {
			s.CenterY = clampCenter(y, s.CenterY)
		}
	})
	return true
}

// AdjustZoom sets zoom to floor(current + delta), clamped.
func (v *Viewport) AdjustZoom(delta float64) {
	if math.IsNaN(delta) {
		return
	}
	v.update(func(s *Snapshot) {
		s.ZoomLevel = clampZoom(float64(s.ZoomLevel) + delta)
	})
}

// ScrollWheel applies a wheel delta. Scrolling up (negative deltaY) zooms in.
func (v *Viewport) ScrollWheel(deltaY float64) {
	v.AdjustZoom(-deltaY * v.wheelSensitivity)
}

// SetZoom sets the zoom level absolutely. Used for externally driven zoom,
// where the value is a level rather than a step.
func (v *Viewport) SetZoom(level float64) {
	if math.IsNaN(level) {
		return
	}
	v.update(func(s *Snapshot) {
		s.ZoomLevel = clampZoom(level)
	})
}

func (v *Viewport) AdjustIterations(delta int) {
	v.update(func(s *Snapshot) {
		s.MaxIterations = clampIterations(s.MaxIterations, delta)
	})
}

func (v *Viewport) SetIterations(n int) {
	v.update(func(s *Snapshot) {
		s.MaxIterations = clampIterations(n, 0)
	})
}

func (v *Viewport) ToggleMode() {
	v.update(func(s *Snapshot) {
		if s.Mode == ModeJulia {
			s.Mode = ModeMandelbrot
		} else {
			s.Mode = ModeJulia
		}
	})
}

// JumpTo moves the view onto a region's center and zoom as one change.
func (v *Viewport) JumpTo(r Region) {
	v.update(func(s *Snapshot) {
		s.CenterX = clampCenter(r.CenterX, s.CenterX)
		s.CenterY = clampCenter(r.CenterY, s.CenterY)
		s.ZoomLevel = clampZoom(float64(r.ZoomLevel))
	})
}

// SetColorScheme proposes a scheme. It is committed once no other proposal
// arrives within the debounce delay.
func (v *Viewport) SetColorScheme(name string) {
	if name == "" {
		return
	}
	v.schemes.Propose(name)
}

// PendingColorScheme returns a proposed scheme that has not been committed yet.
func (v *Viewport) PendingColorScheme() (string, bool) {
	return v.schemes.Pending()
}

// Readout returns the complex coordinate under a pointer position and the
// current magnification.
func (v *Viewport) Readout(px, py float64) (re, im, magnification float64) {
	s := v.Snapshot()
	re, im = PixelToComplex(px, py, s.ZoomLevel, s.CenterX, s.CenterY)
	return re, im, Magnification(s.ZoomLevel)
}

// Close cancels any pending colour scheme proposal.
func (v *Viewport) Close() {
	v.schemes.Stop()
}

func (v *Viewport) applyColorScheme(name string) {
	v.update(func(s *Snapshot) { s.ColorScheme = name })

	if v.colormap == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), colormapSendTimeout)
	defer cancel()
	if err := v.colormap.SendColormap(ctx, name); err != nil {
		v.logger.Printf("colormap %q not sent: %v", name, err)
	}
}

func clampCenter(val, prev float64) float64 {
	if math.IsNaN(val) {
		return prev
	}
	return math.Max(MinCenter, math.Min(val, MaxCenter))
}

func clampZoom(level float64) int {
	z := math.Floor(level)
	z = math.Max(MinZoom, math.Min(z, MaxZoom))
	return int(z)
}

func clampIterations(cur, delta int) int {
	// bound delta first so cur+delta cannot overflow
	delta = max(-MaxIterations, min(delta, MaxIterations))
	return max(MinIterations, min(cur+delta, MaxIterations))
}
