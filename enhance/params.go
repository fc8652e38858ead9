package enhance

import (
	"math"
	"strings"
)

// HistogramMode selects the histogram stage behaviour.
type HistogramMode string

const (
	HistogramNone     HistogramMode = "none"
	HistogramEqualize HistogramMode = "equalize"
	HistogramCLAHE    HistogramMode = "clahe"
)

// ParseHistogramMode maps user input to a mode. Unknown values fall back to
// CLAHE, the default.
func ParseHistogramMode(s string) HistogramMode {
	switch HistogramMode(strings.ToLower(strings.TrimSpace(s))) {
	case HistogramNone, "off", "false":
		return HistogramNone
	case HistogramEqualize, "global", "equalise":
		return HistogramEqualize
	default:
		return HistogramCLAHE
	}
}

const maxScale = 8

// Params configures one enhancement run. It is a value type; Normalized
// returns a copy with every field clamped into its valid range.
type Params struct {
	SharpenStrength  float64 `json:"sharpen_strength"`
	SharpenRadius    float64 `json:"sharpen_radius"`
	SharpenThreshold float64 `json:"sharpen_threshold"`

	DenoiseStrength    float64 `json:"noise_reduction"`
	TemplateWindowSize int     `json:"template_window_size"`
	SearchWindowSize   int     `json:"search_window_size"`

	EdgeEnhancement float64 `json:"edge_enhancement"`
	SkinSmoothing   float64 `json:"skin_smoothing"`

	// Contrast is the gain alpha, Brightness the offset beta.
	Contrast   float64 `json:"contrast"`
	Brightness float64 `json:"brightness"`

	HistogramMode  HistogramMode `json:"histogram_mode"`
	CLAHEClipLimit float64       `json:"clahe_clip_limit"`
	CLAHETileGrid  int           `json:"clahe_tile_grid"`

	Scale int `json:"super_resolution_scale"`
}

func DefaultParams() Params {
	return Params{
		SharpenStrength:    1.5,
		SharpenRadius:      1.0,
		SharpenThreshold:   0,
		DenoiseStrength:    10,
		TemplateWindowSize: 7,
		SearchWindowSize:   21,
		EdgeEnhancement:    0.8,
		SkinSmoothing:      0.3,
		Contrast:           1.2,
		Brightness:         10,
		HistogramMode:      HistogramCLAHE,
		CLAHEClipLimit:     2.0,
		CLAHETileGrid:      8,
		Scale:              1,
	}
}

// Normalized clamps out-of-range values instead of rejecting them.
func (p Params) Normalized() Params {
	def := DefaultParams()

	p.SharpenStrength = nonNegative(p.SharpenStrength)
	p.SharpenRadius = nonNegative(p.SharpenRadius)
	p.SharpenThreshold = clampFloat(p.SharpenThreshold, 0, 255)
	p.DenoiseStrength = nonNegative(p.DenoiseStrength)
	p.TemplateWindowSize = oddWindow(p.TemplateWindowSize, def.TemplateWindowSize)
	p.SearchWindowSize = oddWindow(p.SearchWindowSize, def.SearchWindowSize)
	p.EdgeEnhancement = clampFloat(p.EdgeEnhancement, 0, 1)
	p.SkinSmoothing = clampFloat(p.SkinSmoothing, 0, 1)

	if math.IsNaN(p.Contrast) || math.IsInf(p.Contrast, 0) {
		p.Contrast = 1
	}
	p.Contrast = nonNegative(p.Contrast)
	p.Brightness = clampFloat(p.Brightness, -255, 255)

	p.HistogramMode = ParseHistogramMode(string(p.HistogramMode))
	if !(p.CLAHEClipLimit > 0) || math.IsInf(p.CLAHEClipLimit, 0) {
		p.CLAHEClipLimit = def.CLAHEClipLimit
	}
	if p.CLAHETileGrid < 1 {
		p.CLAHETileGrid = def.CLAHETileGrid
	}

	if p.Scale < 1 {
		p.Scale = 1
	}
	if p.Scale > maxScale {
		p.Scale = maxScale
	}
	return p
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if math.IsInf(v, 1) {
		return math.MaxFloat32
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

// oddWindow forces window sizes to be odd and positive.
func oddWindow(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	if v%2 == 0 {
		return v + 1
	}
	return v
}
