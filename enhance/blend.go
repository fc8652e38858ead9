package enhance

import (
	"fmt"
	"image"
	"image/color"

	"github.com/camden-git/faceenhancer/utils"
	"gocv.io/x/gocv"
)

const featherKernel = 11

// EllipseMask returns a width×height alpha mask in row-major order. The mask
// is an ellipse centred in the rectangle with semi-axes width/3 and
// height/2.5, feathered with an 11x11 Gaussian. Values lie in [0,1].
func EllipseMask(width, height int) ([]float32, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("mask size %dx%d is empty", width, height)
	}

	hard := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), height, width, gocv.MatTypeCV8UC1)
	defer hard.Close()

	center := image.Pt(width/2, height/2)
	axes := image.Pt(max(1, width/3), max(1, int(float64(height)/2.5)))
	gocv.Ellipse(&hard, center, axes, 0, 0, 360, color.RGBA{R: 255, G: 255, B: 255, A: 255}, -1)

	soft := gocv.NewMat()
	defer soft.Close()
	gocv.GaussianBlur(hard, &soft, image.Pt(featherKernel, featherKernel), 0, 0, gocv.BorderDefault)

	raw := soft.ToBytes()
	if len(raw) != width*height {
		return nil, fmt.Errorf("mask has %d samples, want %d", len(raw), width*height)
	}
	mask := make([]float32, len(raw))
	for i, v := range raw {
		mask[i] = float32(v) / 255
	}
	return mask, nil
}

// BlendRegion composites processed over original inside region using an
// elliptical feathered mask. processed may be either the full image or just
// the region. Pixels outside region are copied from original unchanged.
func BlendRegion(original, processed gocv.Mat, region image.Rectangle) (gocv.Mat, error) {
	if original.Empty() {
		return gocv.NewMat(), ErrEmptyImage
	}
	bounds := image.Rect(0, 0, original.Cols(), original.Rows())
	region = utils.ClampRect(region, bounds)
	if region.Empty() {
		return original.Clone(), nil
	}
	if processed.Channels() != original.Channels() || processed.Type() != original.Type() {
		return gocv.NewMat(), fmt.Errorf("blend: processed type %v does not match original %v", processed.Type(), original.Type())
	}

	var patch gocv.Mat
	switch {
	case processed.Cols() == original.Cols() && processed.Rows() == original.Rows():
		patch = processed.Region(region)
	case processed.Cols() == region.Dx() && processed.Rows() == region.Dy():
		patch = processed.Clone()
	default:
		return gocv.NewMat(), fmt.Errorf("blend: processed is %dx%d, want image %v or region %v",
			processed.Cols(), processed.Rows(), bounds.Size(), region.Size())
	}
	defer patch.Close()

	base, err := pixelBuffer(original)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("blend: %w", err)
	}
	over, err := pixelBuffer(patch)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("blend: %w", err)
	}
	mask, err := EllipseMask(region.Dx(), region.Dy())
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("blend: %w", err)
	}

	ch := original.Channels()
	cols := original.Cols()
	rw := region.Dx()
	for y := 0; y < region.Dy(); y++ {
		for x := 0; x < rw; x++ {
			m := float64(mask[y*rw+x])
			if m == 0 {
				continue
			}
			dst := ((region.Min.Y+y)*cols + region.Min.X + x) * ch
			src := (y*rw + x) * ch
			for c := 0; c < ch; c++ {
				o := float64(base[dst+c])
				p := float64(over[src+c])
				base[dst+c] = saturate(o + m*(p-o))
			}
		}
	}

	return matFromBuffer(original.Rows(), original.Cols(), original.Type(), base)
}

// WeightedBlend returns (1-strength)*original + strength*smoothed. strength is
// clamped to [0,1]; both images must have the same size and type.
func WeightedBlend(original, smoothed gocv.Mat, strength float64) (gocv.Mat, error) {
	if original.Empty() || smoothed.Empty() {
		return gocv.NewMat(), ErrEmptyImage
	}
	if original.Rows() != smoothed.Rows() || original.Cols() != smoothed.Cols() || original.Type() != smoothed.Type() {
		return gocv.NewMat(), fmt.Errorf("weighted blend: images differ in size or type")
	}
	strength = clampFloat(strength, 0, 1)

	a, err := pixelBuffer(original)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("weighted blend: %w", err)
	}
	b, err := pixelBuffer(smoothed)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("weighted blend: %w", err)
	}
	for i := range a {
		o := float64(a[i])
		a[i] = saturate(o + strength*(float64(b[i])-o))
	}
	return matFromBuffer(original.Rows(), original.Cols(), original.Type(), a)
}
