package enhance

import (
	"fmt"
	"image"
	"math"

	"github.com/camden-git/faceenhancer/utils"
	"gocv.io/x/gocv"
)

const (
	detailSigmaS = 10

	bilateralDiameter   = 15
	bilateralSigmaColor = 30
	bilateralSigmaSpace = 7

	// faces are widened before blending so the feathered edge lands on
	// background rather than on the face itself
	facePadding = 10
)

var (
	skinLower = gocv.NewScalar(0, 133, 77, 0)
	skinUpper = gocv.NewScalar(255, 173, 127, 0)
)

// Preprocess converts img to an owned 8-bit image with 1 or 3 channels. Alpha
// is dropped; deeper sample types are rescaled into 8 bits by a fixed factor
// for their depth and saturated.
func Preprocess(img gocv.Mat) (gocv.Mat, error) {
	if img.Empty() || img.Rows() <= 0 || img.Cols() <= 0 {
		return gocv.NewMat(), &InputError{Reason: "image has no pixels", Err: ErrEmptyImage}
	}

	src := img
	if depth(img) != gocv.MatTypeCV8U {
		alpha, beta := depthScale(img)
		converted := gocv.NewMat()
		defer converted.Close()
		img.ConvertToWithParams(&converted, gocv.MatTypeCV8U, alpha, beta)
		src = converted
	}

	out := gocv.NewMat()
	switch src.Channels() {
	case 1, 3:
		src.CopyTo(&out)
	case 4:
		gocv.CvtColor(src, &out, gocv.ColorBGRAToBGR)
	default:
		out.Close()
		return gocv.NewMat(), &InputError{Reason: fmt.Sprintf("unsupported channel count %d", src.Channels())}
	}
	return out, nil
}

// depthScale returns the linear map from img's sample range onto [0,255].
// Float images are taken as [0,1] unless a sample exceeds 1, in which case
// they are saturated as-is.
func depthScale(img gocv.Mat) (alpha, beta float32) {
	switch depth(img) {
	case gocv.MatTypeCV8S:
		return 1, 128
	case gocv.MatTypeCV16U:
		return 1.0 / 257, 0
	case gocv.MatTypeCV16S:
		return 1.0 / 257, 32768.0 / 257
	case gocv.MatTypeCV32F, gocv.MatTypeCV64F:
		flat := img.Reshape(1, 0)
		defer flat.Close()
		_, maxVal, _, _ := gocv.MinMaxLoc(flat)
		if maxVal <= 1 {
			return 255, 0
		}
		return 1, 0
	default:
		return 1, 0
	}
}

// Postprocess returns an 8-bit copy of img with samples saturated to [0,255].
func Postprocess(img gocv.Mat) (gocv.Mat, error) {
	if img.Empty() {
		return gocv.NewMat(), ErrEmptyImage
	}
	out := gocv.NewMat()
	if depth(img) == gocv.MatTypeCV8U {
		img.CopyTo(&out)
	} else {
		img.ConvertTo(&out, gocv.MatTypeCV8U)
	}
	return out, nil
}

// Denoise applies non-local means. Colour images use the same strength for
// luminance and chrominance.
func Denoise(img gocv.Mat, p Params) (gocv.Mat, error) {
	if img.Empty() {
		return gocv.NewMat(), ErrEmptyImage
	}
	if p.DenoiseStrength <= 0 {
		return img.Clone(), nil
	}

	h := float32(p.DenoiseStrength)
	out := gocv.NewMat()
	switch img.Channels() {
	case 3:
		gocv.FastNlMeansDenoisingColoredWithParams(img, &out, h, h, p.TemplateWindowSize, p.SearchWindowSize)
	case 1:
		gocv.FastNlMeansDenoisingWithParams(img, &out, h, p.TemplateWindowSize, p.SearchWindowSize)
	default:
		out.Close()
		return gocv.NewMat(), fmt.Errorf("denoise: unsupported channel count %d", img.Channels())
	}
	return out, nil
}

// UnsharpKernel returns the Gaussian kernel size used for a sharpen radius.
// The result is always odd and at least 3.
func UnsharpKernel(radius float64) int {
	if !(radius > 0) {
		return 3
	}
	k := 2*int(math.Ceil(3*radius)) + 1
	if k < 3 {
		return 3
	}
	return k
}

// Sharpen applies an unsharp mask: out = in + strength*(in - blur(in)).
// Residuals no larger than SharpenThreshold are ignored.
func Sharpen(img gocv.Mat, p Params) (gocv.Mat, error) {
	if img.Empty() {
		return gocv.NewMat(), ErrEmptyImage
	}
	if p.SharpenStrength <= 0 {
		return img.Clone(), nil
	}

	k := UnsharpKernel(p.SharpenRadius)
	sigma := p.SharpenRadius
	if sigma < 0 {
		sigma = 0
	}
	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(img, &blurred, image.Pt(k, k), sigma, sigma, gocv.BorderDefault)

	orig, err := pixelBuffer(img)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("sharpen: %w", err)
	}
	soft, err := pixelBuffer(blurred)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("sharpen: %w", err)
	}

	for i := range orig {
		orig[i] = sharpenSample(orig[i], soft[i], p.SharpenStrength, p.SharpenThreshold)
	}
	return matFromBuffer(img.Rows(), img.Cols(), img.Type(), orig)
}

// sharpenSample zeroes residuals whose magnitude is at or below threshold.
func sharpenSample(orig, soft uint8, strength, threshold float64) uint8 {
	o := float64(orig)
	residual := o - float64(soft)
	if math.Abs(residual) <= threshold {
		return orig
	}
	return saturate(o + strength*residual)
}

// EnhanceEdges runs OpenCV's detail enhancement filter with sigma_r set to the
// edge enhancement strength.
func EnhanceEdges(img gocv.Mat, p Params) (gocv.Mat, error) {
	if img.Empty() {
		return gocv.NewMat(), ErrEmptyImage
	}
	if p.EdgeEnhancement <= 0 {
		return img.Clone(), nil
	}

	sigmaR := float32(p.EdgeEnhancement)
	out := gocv.NewMat()
	switch img.Channels() {
	case 3:
		gocv.DetailEnhance(img, &out, detailSigmaS, sigmaR)
	case 1:
		// detailEnhance only accepts 3-channel input
		bgr := gocv.NewMat()
		defer bgr.Close()
		gocv.CvtColor(img, &bgr, gocv.ColorGrayToBGR)
		enhanced := gocv.NewMat()
		defer enhanced.Close()
		gocv.DetailEnhance(bgr, &enhanced, detailSigmaS, sigmaR)
		gocv.CvtColor(enhanced, &out, gocv.ColorBGRToGray)
	default:
		out.Close()
		return gocv.NewMat(), fmt.Errorf("edge enhance: unsupported channel count %d", img.Channels())
	}
	return out, nil
}

// AdjustContrast maps every sample through out = Contrast*in + Brightness,
// saturated to [0,255].
func AdjustContrast(img gocv.Mat, p Params) (gocv.Mat, error) {
	if img.Empty() {
		return gocv.NewMat(), ErrEmptyImage
	}

	var lut [256]uint8
	for v := range lut {
		lut[v] = saturate(p.Contrast*float64(v) + p.Brightness)
	}

	buf, err := pixelBuffer(img)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("contrast: %w", err)
	}
	for i, v := range buf {
		buf[i] = lut[v]
	}
	return matFromBuffer(img.Rows(), img.Cols(), img.Type(), buf)
}

// EqualizeHistogram equalizes luminance only. Colour images go through YUV
// (global mode) or Lab (CLAHE mode) and keep their original chroma.
func EqualizeHistogram(img gocv.Mat, p Params) (gocv.Mat, error) {
	if img.Empty() {
		return gocv.NewMat(), ErrEmptyImage
	}

	switch p.HistogramMode {
	case HistogramNone:
		return img.Clone(), nil
	case HistogramEqualize:
		return onLuma(img, gocv.ColorBGRToYUV, gocv.ColorYUVToBGR, func(src gocv.Mat, dst *gocv.Mat) {
			gocv.EqualizeHist(src, dst)
		})
	default:
		clahe := gocv.NewCLAHEWithParams(p.CLAHEClipLimit, image.Pt(p.CLAHETileGrid, p.CLAHETileGrid))
		defer clahe.Close()
		return onLuma(img, gocv.ColorBGRToLab, gocv.ColorLabToBGR, func(src gocv.Mat, dst *gocv.Mat) {
			clahe.Apply(src, dst)
		})
	}
}

// onLuma applies fn to the first channel of img converted with forward, then
// converts back. Single channel images are passed to fn directly.
func onLuma(img gocv.Mat, forward, backward gocv.ColorConversionCode, fn func(src gocv.Mat, dst *gocv.Mat)) (gocv.Mat, error) {
	out := gocv.NewMat()
	switch img.Channels() {
	case 1:
		fn(img, &out)
		return out, nil
	case 3:
	default:
		out.Close()
		return gocv.NewMat(), fmt.Errorf("histogram: unsupported channel count %d", img.Channels())
	}

	converted := gocv.NewMat()
	defer converted.Close()
	gocv.CvtColor(img, &converted, forward)

	planes := gocv.Split(converted)
	defer func() {
		for _, pl := range planes {
			pl.Close()
		}
	}()
	if len(planes) != 3 {
		out.Close()
		return gocv.NewMat(), fmt.Errorf("histogram: split produced %d planes", len(planes))
	}

	luma := gocv.NewMat()
	defer luma.Close()
	fn(planes[0], &luma)

	merged := gocv.NewMat()
	defer merged.Close()
	gocv.Merge([]gocv.Mat{luma, planes[1], planes[2]}, &merged)

	gocv.CvtColor(merged, &out, backward)
	return out, nil
}

// SkinMask marks skin-coloured pixels (YCrCb chroma range) of a BGR image
// with 255, cleaned with a morphological open and close.
func SkinMask(img gocv.Mat) gocv.Mat {
	ycrcb := gocv.NewMat()
	defer ycrcb.Close()
	gocv.CvtColor(img, &ycrcb, gocv.ColorBGRToYCrCb)

	mask := gocv.NewMat()
	gocv.InRangeWithScalar(ycrcb, skinLower, skinUpper, &mask)

	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(5, 5))
	defer kernel.Close()
	gocv.MorphologyEx(mask, &mask, gocv.MorphOpen, kernel)
	gocv.MorphologyEx(mask, &mask, gocv.MorphClose, kernel)
	return mask
}

// SmoothSkin bilaterally smooths skin pixels around each face and composites
// the result back with BlendRegion. Without faces, with zero strength or on
// single channel input the image is returned unchanged.
func SmoothSkin(img gocv.Mat, faces []image.Rectangle, p Params) (gocv.Mat, error) {
	if img.Empty() {
		return gocv.NewMat(), ErrEmptyImage
	}
	if len(faces) == 0 || p.SkinSmoothing <= 0 || img.Channels() != 3 {
		return img.Clone(), nil
	}

	bounds := image.Rect(0, 0, img.Cols(), img.Rows())
	result := img.Clone()
	for _, face := range faces {
		region := utils.ExpandRect(face, bounds, facePadding)
		if region.Empty() {
			continue
		}

		next, err := smoothFace(result, region, p.SkinSmoothing)
		if err != nil {
			result.Close()
			return gocv.NewMat(), fmt.Errorf("skin smoothing: %w", err)
		}
		result.Close()
		result = next
	}
	return result, nil
}

func smoothFace(img gocv.Mat, region image.Rectangle, strength float64) (gocv.Mat, error) {
	view := img.Region(region)
	face := view.Clone()
	view.Close()
	defer face.Close()

	smoothed := gocv.NewMat()
	defer smoothed.Close()
	gocv.BilateralFilter(face, &smoothed, bilateralDiameter, bilateralSigmaColor, bilateralSigmaSpace)

	mask := SkinMask(face)
	defer mask.Close()

	gated := face.Clone()
	defer gated.Close()
	smoothed.CopyToWithMask(&gated, mask)

	weighted, err := WeightedBlend(face, gated, strength)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer weighted.Close()

	return BlendRegion(img, weighted, region)
}

// Upscale resizes by an integer factor with Lanczos interpolation. Factors
// below 2 return a copy.
func Upscale(img gocv.Mat, p Params) (gocv.Mat, error) {
	if img.Empty() {
		return gocv.NewMat(), ErrEmptyImage
	}
	if p.Scale <= 1 {
		return img.Clone(), nil
	}

	out := gocv.NewMat()
	f := float64(p.Scale)
	gocv.Resize(img, &out, image.Point{}, f, f, gocv.InterpolationLanczos4)
	return out, nil
}
