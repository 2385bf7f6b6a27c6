package mandel

// Params is the parameter message pushed to the render backend.
// In Julia mode the rendered origin is (0,0) and the viewport center is
// carried as the Julia constant.
type Params struct {
	ReC     float64  `json:"re_c"`
	ImC     float64  `json:"im_c"`
	Zoom    int      `json:"zoom"`
	MaxIter int      `json:"max_iter"`
	IsJulia bool     `json:"is_julia"`
	JuliaRe *float64 `json:"julia_re,omitempty"`
	JuliaIm *float64 `json:"julia_im,omitempty"`
}

// ParamsFromSnapshot builds the backend parameter message for s.
func ParamsFromSnapshot(s Snapshot) Params {
	p := Params{
		ReC:     s.CenterX,
		ImC:     s.CenterY,
		Zoom:    s.ZoomLevel,
		MaxIter: s.MaxIterations,
	}
	if s.Mode == ModeJulia {
		re, im := s.CenterX, s.CenterY
		p.ReC, p.ImC = 0, 0
		p.IsJulia = true
		p.JuliaRe, p.JuliaIm = &re, &im
	}
	return p
}

// ColorSchemes are the scheme names the backend understands.
var ColorSchemes = []string{"classic", "grayscale", "sunset", "neon_green"}

// ColormapMessage selects the colour scheme applied to frames.
type ColormapMessage struct {
	Colormap string `json:"colormap"`
}

// Gesture message types.
const (
	GesturePing             = "ping"
	GesturePong             = "pong"
	GestureConnectionStatus = "connection_status"
	GestureZoom             = "gesture_zoom"
)

// GestureMessage is the tagged message exchanged on the gesture channel.
type GestureMessage struct {
	Type    string   `json:"type"`
	Message string   `json:"message,omitempty"`
	Zoom    *float64 `json:"zoom,omitempty"`
}
