// Package quality computes objective image quality metrics. Every metric is
// advisory: bad or mismatched input yields 0 instead of an error.
package quality

import (
	"image"
	"math"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"
)

const (
	// PSNRIdentical is returned by PSNR when the images are numerically equal.
	PSNRIdentical = 100.0

	ssimC1     = 6.5025  // (0.01*255)^2
	ssimC2     = 58.5225 // (0.03*255)^2
	ssimWindow = 11
	ssimSigma  = 1.5
)

// ImageStats holds the single-image metrics.
type ImageStats struct {
	Sharpness  float64 `json:"sharpness"`
	Contrast   float64 `json:"contrast"`
	Brightness float64 `json:"brightness"`
}

// Report compares an enhanced image against its source.
type Report struct {
	Input  ImageStats `json:"input"`
	Output ImageStats `json:"output"`
	PSNR   float64    `json:"psnr"`
	SSIM   float64    `json:"ssim"`
}

// Measure returns sharpness, contrast and brightness of img.
func Measure(img gocv.Mat) ImageStats {
	gray, ok := grayscale(img)
	if !ok {
		return ImageStats{}
	}
	defer gray.Close()

	pixels := floats(gray)
	return ImageStats{
		Sharpness:  laplacianVariance(gray),
		Contrast:   math.Sqrt(stat.PopVariance(pixels, nil)),
		Brightness: stat.Mean(pixels, nil),
	}
}

// Compare measures both images and computes PSNR/SSIM between them. When the
// candidate was upscaled the reference is resized to match first.
func Compare(reference, candidate gocv.Mat) Report {
	report := Report{Input: Measure(reference), Output: Measure(candidate)}
	if reference.Empty() || candidate.Empty() {
		return report
	}

	ref := reference
	if reference.Rows() != candidate.Rows() || reference.Cols() != candidate.Cols() {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(reference, &resized, image.Pt(candidate.Cols(), candidate.Rows()), 0, 0, gocv.InterpolationLanczos4)
		ref = resized
	}

	report.PSNR = PSNR(ref, candidate)
	report.SSIM = SSIM(ref, candidate)
	return report
}

// Sharpness is the variance of the Laplacian of the grayscale image.
func Sharpness(img gocv.Mat) float64 {
	gray, ok := grayscale(img)
	if !ok {
		return 0
	}
	defer gray.Close()
	return laplacianVariance(gray)
}

// Contrast is the standard deviation of grayscale intensities.
func Contrast(img gocv.Mat) float64 {
	gray, ok := grayscale(img)
	if !ok {
		return 0
	}
	defer gray.Close()
	return math.Sqrt(stat.PopVariance(floats(gray), nil))
}

// Brightness is the mean grayscale intensity.
func Brightness(img gocv.Mat) float64 {
	gray, ok := grayscale(img)
	if !ok {
		return 0
	}
	defer gray.Close()
	return stat.Mean(floats(gray), nil)
}

// PSNR returns the peak signal-to-noise ratio in dB between two 8-bit images
// of identical size and channel count.
func PSNR(a, b gocv.Mat) float64 {
	if !sameShape(a, b) {
		return 0
	}
	pa, pb := bytes8U(a), bytes8U(b)
	if len(pa) == 0 || len(pa) != len(pb) {
		return 0
	}

	var sum float64
	for i := range pa {
		d := float64(pa[i]) - float64(pb[i])
		sum += d * d
	}
	// every channel has the same sample count, so the global mean equals the
	// mean of per-channel MSEs
	mse := sum / float64(len(pa))
	if mse < 1e-10 {
		return PSNRIdentical
	}
	return 10 * math.Log10(255*255/mse)
}

// SSIM returns the mean structural similarity over all channels using an
// 11x11 Gaussian window with sigma 1.5.
func SSIM(a, b gocv.Mat) float64 {
	if !sameShape(a, b) {
		return 0
	}

	fa, fb := gocv.NewMat(), gocv.NewMat()
	defer fa.Close()
	defer fb.Close()
	a.ConvertTo(&fa, gocv.MatTypeCV32F)
	b.ConvertTo(&fb, gocv.MatTypeCV32F)

	aa, bb, ab := gocv.NewMat(), gocv.NewMat(), gocv.NewMat()
	defer aa.Close()
	defer bb.Close()
	defer ab.Close()
	gocv.Multiply(fa, fa, &aa)
	gocv.Multiply(fb, fb, &bb)
	gocv.Multiply(fa, fb, &ab)

	mu1, mu2 := gaussian(fa), gaussian(fb)
	s11, s22, s12 := gaussian(aa), gaussian(bb), gaussian(ab)
	defer mu1.Close()
	defer mu2.Close()
	defer s11.Close()
	defer s22.Close()
	defer s12.Close()

	m1, err1 := mu1.DataPtrFloat32()
	m2, err2 := mu2.DataPtrFloat32()
	v11, err3 := s11.DataPtrFloat32()
	v22, err4 := s22.DataPtrFloat32()
	v12, err5 := s12.DataPtrFloat32()
	for _, err := range []error{err1, err2, err3, err4, err5} {
		if err != nil {
			return 0
		}
	}
	if len(m1) == 0 {
		return 0
	}

	var total float64
	for i := range m1 {
		x, y := float64(m1[i]), float64(m2[i])
		varX := float64(v11[i]) - x*x
		varY := float64(v22[i]) - y*y
		cov := float64(v12[i]) - x*y
		num := (2*x*y + ssimC1) * (2*cov + ssimC2)
		den := (x*x + y*y + ssimC1) * (varX + varY + ssimC2)
		total += num / den
	}
	return total / float64(len(m1))
}

func gaussian(src gocv.Mat) gocv.Mat {
	dst := gocv.NewMat()
	gocv.GaussianBlur(src, &dst, image.Pt(ssimWindow, ssimWindow), ssimSigma, ssimSigma, gocv.BorderDefault)
	return dst
}

func laplacianVariance(gray gocv.Mat) float64 {
	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(gray, &lap, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)

	vals, err := lap.DataPtrFloat64()
	if err != nil || len(vals) == 0 {
		return 0
	}
	return stat.PopVariance(vals, nil)
}

// grayscale returns an owned, continuous 8-bit single-channel copy of img.
func grayscale(img gocv.Mat) (gocv.Mat, bool) {
	if img.Empty() {
		return gocv.NewMat(), false
	}

	src := img
	if img.Type()&0x7 != gocv.MatTypeCV8U {
		converted := gocv.NewMat()
		defer converted.Close()
		img.ConvertTo(&converted, gocv.MatTypeCV8U)
		src = converted
	}

	gray := gocv.NewMat()
	switch src.Channels() {
	case 1:
		src.CopyTo(&gray)
	case 3:
		gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	case 4:
		gocv.CvtColor(src, &gray, gocv.ColorBGRAToGray)
	default:
		gray.Close()
		return gocv.NewMat(), false
	}
	return gray, !gray.Empty()
}

func floats(gray gocv.Mat) []float64 {
	raw := gray.ToBytes()
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = float64(v)
	}
	return out
}

func sameShape(a, b gocv.Mat) bool {
	if a.Empty() || b.Empty() {
		return false
	}
	return a.Rows() == b.Rows() && a.Cols() == b.Cols() && a.Channels() == b.Channels()
}

func bytes8U(m gocv.Mat) []byte {
	c := gocv.NewMat()
	defer c.Close()
	if m.Type()&0x7 == gocv.MatTypeCV8U {
		m.CopyTo(&c)
	} else {
		m.ConvertTo(&c, gocv.MatTypeCV8U)
	}
	return c.ToBytes()
}
