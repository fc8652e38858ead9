package detection

import (
	"image"
	"math"

	"github.com/camden-git/faceenhancer/quality"
	"github.com/camden-git/faceenhancer/utils"
	"gocv.io/x/gocv"
)

const (
	blurThreshold = 100.0
	minBrightness = 50.0
	maxBrightness = 200.0
)

// FaceQuality describes how usable a detected face crop is.
type FaceQuality struct {
	Sharpness  float64 `json:"sharpness"`
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
	Blurred    bool    `json:"blurred"`
	WellLit    bool    `json:"well_lit"`
	Score      float64 `json:"score"`
}

// AssessFace measures the face crop r of img. It returns nil when r does not
// intersect the image.
func AssessFace(img gocv.Mat, r image.Rectangle) *FaceQuality {
	r = utils.ClampRect(r, image.Rect(0, 0, img.Cols(), img.Rows()))
	if r.Empty() {
		return nil
	}

	view := img.Region(r)
	crop := view.Clone()
	view.Close()
	defer crop.Close()

	stats := quality.Measure(crop)
	q := &FaceQuality{
		Sharpness:  stats.Sharpness,
		Brightness: stats.Brightness,
		Contrast:   stats.Contrast,
		Blurred:    stats.Sharpness < blurThreshold,
		WellLit:    stats.Brightness >= minBrightness && stats.Brightness <= maxBrightness,
	}
	q.Score = 0.5*math.Min(stats.Sharpness/1000, 1) +
		0.3*(1-math.Abs(stats.Brightness-128)/128) +
		0.2*math.Min(stats.Contrast/64, 1)
	return q
}
