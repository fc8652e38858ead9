package enhance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultParamsAreNormalized(t *testing.T) {
	def := DefaultParams()
	assert.Equal(t, def, def.Normalized())
	assert.Equal(t, 1, def.Scale)
	assert.Equal(t, HistogramCLAHE, def.HistogramMode)
}

func TestNormalizedClamps(t *testing.T) {
	p := Params{
		SharpenStrength:    -1,
		SharpenRadius:      -3,
		DenoiseStrength:    math.NaN(),
		TemplateWindowSize: 6,
		SearchWindowSize:   -2,
		EdgeEnhancement:    4,
		SkinSmoothing:      1.5,
		Contrast:           math.Inf(1),
		Brightness:         900,
		HistogramMode:      "sparkle",
		CLAHEClipLimit:     0,
		Scale:              0,
	}.Normalized()

	assert.Equal(t, 0.0, p.SharpenStrength)
	assert.Equal(t, 0.0, p.SharpenRadius)
	assert.Equal(t, 0.0, p.DenoiseStrength)
	assert.Equal(t, 7, p.TemplateWindowSize)
	assert.Equal(t, 21, p.SearchWindowSize)
	assert.Equal(t, 1.0, p.EdgeEnhancement)
	assert.Equal(t, 1.0, p.SkinSmoothing)
	assert.Equal(t, 1.0, p.Contrast)
	assert.Equal(t, 255.0, p.Brightness)
	assert.Equal(t, HistogramCLAHE, p.HistogramMode)
	assert.Equal(t, 2.0, p.CLAHEClipLimit)
	assert.Equal(t, 8, p.CLAHETileGrid)
	assert.Equal(t, 1, p.Scale)

	assert.Equal(t, maxScale, Params{Scale: 100}.Normalized().Scale)
}

func TestParseHistogramMode(t *testing.T) {
	tests := map[string]HistogramMode{
		"none":     HistogramNone,
		"OFF":      HistogramNone,
		"equalize": HistogramEqualize,
		" global ": HistogramEqualize,
		"clahe":    HistogramCLAHE,
		"":         HistogramCLAHE,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseHistogramMode(in), in)
	}
}

func TestUnsharpKernel(t *testing.T) {
	tests := []struct {
		radius float64
		want   int
	}{
		{1.0, 7},
		{0.5, 5},
		{0.1, 3},
		{0, 3},
		{-2, 3},
		{math.NaN(), 3},
		{2.2, 15},
	}
	for _, tt := range tests {
		k := UnsharpKernel(tt.radius)
		assert.Equal(t, tt.want, k, "radius %v", tt.radius)
		assert.Equal(t, 1, k%2)
	}
}
