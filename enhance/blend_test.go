package enhance

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func filled(rows, cols int, v float64) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), rows, cols, gocv.MatTypeCV8UC3)
}

func TestEllipseMask(t *testing.T) {
	mask, err := EllipseMask(60, 80)
	require.NoError(t, err)
	require.Len(t, mask, 60*80)

	for _, v := range mask {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(1))
	}
	assert.InDelta(t, 1.0, mask[40*60+30], 1e-6, "centre is fully opaque")
	assert.Equal(t, float32(0), mask[0], "corner is transparent")

	_, err = EllipseMask(0, 10)
	assert.Error(t, err)
}

func TestBlendRegionLeavesOutsideUntouched(t *testing.T) {
	orig := filled(120, 160, 40)
	defer orig.Close()
	processed := filled(120, 160, 220)
	defer processed.Close()

	region := image.Rect(40, 30, 100, 90)
	out, err := BlendRegion(orig, processed, region)
	require.NoError(t, err)
	defer out.Close()

	before, err := pixelBuffer(orig)
	require.NoError(t, err)
	after, err := pixelBuffer(out)
	require.NoError(t, err)

	changedInside := false
	for y := 0; y < 120; y++ {
		for x := 0; x < 160; x++ {
			i := (y*160 + x) * 3
			inside := image.Pt(x, y).In(region)
			if !inside {
				require.Equal(t, before[i:i+3], after[i:i+3], "pixel (%d,%d) changed", x, y)
				continue
			}
			if after[i] != before[i] {
				changedInside = true
			}
		}
	}
	assert.True(t, changedInside)

	center := ((60)*160 + 70) * 3
	assert.Equal(t, uint8(220), after[center])
}

func TestBlendRegionAcceptsRegionSizedPatch(t *testing.T) {
	orig := filled(50, 50, 10)
	defer orig.Close()
	patch := filled(20, 30, 200)
	defer patch.Close()

	out, err := BlendRegion(orig, patch, image.Rect(10, 10, 40, 30))
	require.NoError(t, err)
	defer out.Close()
	assert.Equal(t, uint8(200), out.GetVecbAt(20, 25)[0])
	assert.Equal(t, uint8(10), out.GetVecbAt(45, 45)[0])

	wrong := filled(5, 5, 0)
	defer wrong.Close()
	_, err = BlendRegion(orig, wrong, image.Rect(10, 10, 40, 30))
	assert.Error(t, err)
}

func TestBlendRegionOutOfBounds(t *testing.T) {
	orig := filled(20, 20, 90)
	defer orig.Close()
	processed := filled(20, 20, 0)
	defer processed.Close()

	out, err := BlendRegion(orig, processed, image.Rect(100, 100, 150, 150))
	require.NoError(t, err)
	defer out.Close()

	a, _ := pixelBuffer(orig)
	b, _ := pixelBuffer(out)
	assert.Equal(t, a, b)
}

func TestWeightedBlend(t *testing.T) {
	a := filled(10, 10, 100)
	defer a.Close()
	b := filled(10, 10, 200)
	defer b.Close()

	tests := []struct {
		strength float64
		want     uint8
	}{
		{0, 100},
		{0.25, 125},
		{1, 200},
		{3, 200},
		{-1, 100},
	}
	for _, tt := range tests {
		out, err := WeightedBlend(a, b, tt.strength)
		require.NoError(t, err)
		assert.Equal(t, tt.want, out.GetVecbAt(5, 5)[1], "strength %v", tt.strength)
		out.Close()
	}

	small := filled(5, 5, 0)
	defer small.Close()
	_, err := WeightedBlend(a, small, 0.5)
	assert.Error(t, err)
}
