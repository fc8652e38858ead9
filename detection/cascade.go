package detection

import (
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// CascadeOptions are passed to detectMultiScale.
type CascadeOptions struct {
	ScaleFactor  float64
	MinNeighbors int
	MinSize      image.Point
	MaxSize      image.Point
}

// DefaultCascadeOptions matches the frontal-face cascades shipped with OpenCV.
func DefaultCascadeOptions() CascadeOptions {
	return CascadeOptions{
		ScaleFactor:  1.1,
		MinNeighbors: 3,
		MinSize:      image.Pt(30, 30),
		MaxSize:      image.Pt(300, 300),
	}
}

// CascadeDetector runs an OpenCV cascade classifier (Haar or LBP features).
type CascadeDetector struct {
	name       string
	opts       CascadeOptions
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
}

// NewHaarDetector loads a Haar feature cascade such as haarcascade_frontalface_alt.xml.
func NewHaarDetector(path string, opts CascadeOptions, log logrus.FieldLogger) (*CascadeDetector, error) {
	return newCascadeDetector(BackendHaar, path, opts, log)
}

// NewLBPDetector loads an LBP feature cascade such as lbpcascade_frontalface.xml.
func NewLBPDetector(path string, opts CascadeOptions, log logrus.FieldLogger) (*CascadeDetector, error) {
	return newCascadeDetector(BackendLBP, path, opts, log)
}

func newCascadeDetector(name, path string, opts CascadeOptions, log logrus.FieldLogger) (*CascadeDetector, error) {
	if path == "" {
		return nil, fmt.Errorf("detection(%s): cascade path is empty", name)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("detection(%s): cascade file %s: %w", name, path, err)
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("detection(%s): failed to load cascade %s", name, path)
	}
	log.WithFields(logrus.Fields{"component": "detection", "backend": name, "path": path}).Info("loaded cascade classifier")

	return &CascadeDetector{name: name, opts: opts, classifier: classifier}, nil
}

func (d *CascadeDetector) Name() string { return d.name }

// Detect equalizes a grayscale copy of img and scans it with the cascade.
func (d *CascadeDetector) Detect(img gocv.Mat) ([]Candidate, error) {
	if img.Empty() {
		return nil, nil
	}

	gray := grayForDetection(img)
	defer gray.Close()
	gocv.EqualizeHist(gray, &gray)

	// cv::CascadeClassifier keeps per-call scratch buffers
	d.mu.Lock()
	rects := d.classifier.DetectMultiScaleWithParams(gray, d.opts.ScaleFactor, d.opts.MinNeighbors, 0, d.opts.MinSize, d.opts.MaxSize)
	d.mu.Unlock()

	out := make([]Candidate, 0, len(rects))
	for _, r := range rects {
		out = append(out, Candidate{Rect: r})
	}
	return out, nil
}

func (d *CascadeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.classifier.Close()
}
