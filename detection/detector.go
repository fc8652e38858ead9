// Package detection locates faces in images. Several detector backends can be
// composed; their output is merged by a Locator.
package detection

import (
	"image"

	"gocv.io/x/gocv"
)

// Backend names accepted in DETECTOR_ORDER.
const (
	BackendHaar = "haar"
	BackendLBP  = "lbp"
	BackendDNN  = "dnn"
	BackendPico = "pico"

	BackendRetinaFace = "retinaface"
)

// Candidate is a raw detector hit in image coordinates.
type Candidate struct {
	Rect image.Rectangle
	// Confidence is nil for detectors that do not score their hits.
	Confidence *float32
}

// Detector is a single face detection backend. Implementations must be safe
// for concurrent use once constructed.
type Detector interface {
	Name() string
	Detect(img gocv.Mat) ([]Candidate, error)
	Close() error
}

// FaceRegion is a face rectangle returned by Locate.
type FaceRegion struct {
	Rect       image.Rectangle `json:"-"`
	Confidence *float32        `json:"confidence,omitempty"`
	Source     string          `json:"source"`
	Quality    *FaceQuality    `json:"quality,omitempty"`
}

// Rects returns just the rectangles of faces, in order.
func Rects(faces []FaceRegion) []image.Rectangle {
	out := make([]image.Rectangle, len(faces))
	for i, f := range faces {
		out[i] = f.Rect
	}
	return out
}

// grayForDetection converts img to a single-channel 8-bit image.
func grayForDetection(img gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	switch img.Channels() {
	case 1:
		img.CopyTo(&gray)
	case 4:
		gocv.CvtColor(img, &gray, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	}
	return gray
}

// bgrForDetection returns a 3-channel copy of img.
func bgrForDetection(img gocv.Mat) gocv.Mat {
	bgr := gocv.NewMat()
	switch img.Channels() {
	case 1:
		gocv.CvtColor(img, &bgr, gocv.ColorGrayToBGR)
	case 4:
		gocv.CvtColor(img, &bgr, gocv.ColorBGRAToBGR)
	default:
		img.CopyTo(&bgr)
	}
	return bgr
}
