package detection

import (
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// PicoOptions configures the pixel-intensity-comparison cascade.
type PicoOptions struct {
	CascadePath  string
	MinSize      int
	MaxSize      int
	ShiftFactor  float64
	ScaleFactor  float64
	IoUThreshold float64
	MinQuality   float32
}

// DefaultPicoOptions returns settings tuned for portrait photos.
func DefaultPicoOptions(path string) PicoOptions {
	return PicoOptions{
		CascadePath:  path,
		MinSize:      30,
		MaxSize:      1000,
		ShiftFactor:  0.1,
		ScaleFactor:  1.1,
		IoUThreshold: 0.2,
		MinQuality:   5.0,
	}
}

// PicoDetector is a pure Go cascade backend. The unpacked classifier is read
// only during detection, so no locking is needed.
type PicoDetector struct {
	opts       PicoOptions
	classifier *pigo.Pigo
}

func NewPicoDetector(opts PicoOptions, log logrus.FieldLogger) (*PicoDetector, error) {
	if opts.CascadePath == "" {
		return nil, fmt.Errorf("detection(pico): cascade path is empty")
	}
	cascade, err := os.ReadFile(opts.CascadePath)
	if err != nil {
		return nil, fmt.Errorf("detection(pico): failed to read cascade file: %w", err)
	}

	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("detection(pico): failed to unpack cascade: %w", err)
	}
	log.WithFields(logrus.Fields{"component": "detection", "backend": BackendPico, "min_size": opts.MinSize}).Info("loaded pico cascade")

	return &PicoDetector{opts: opts, classifier: classifier}, nil
}

func (d *PicoDetector) Name() string { return BackendPico }

func (d *PicoDetector) Detect(img gocv.Mat) ([]Candidate, error) {
	if img.Empty() {
		return nil, nil
	}

	gray := grayForDetection(img)
	defer gray.Close()

	params := pigo.CascadeParams{
		MinSize:     d.opts.MinSize,
		MaxSize:     d.opts.MaxSize,
		ShiftFactor: d.opts.ShiftFactor,
		ScaleFactor: d.opts.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: gray.ToBytes(),
			Rows:   gray.Rows(),
			Cols:   gray.Cols(),
			Dim:    gray.Cols(),
		},
	}

	dets := d.classifier.RunCascade(params, 0.0)
	dets = d.classifier.ClusterDetections(dets, d.opts.IoUThreshold)

	var out []Candidate
	for _, det := range dets {
		if det.Q < d.opts.MinQuality {
			continue
		}
		half := det.Scale / 2
		q := det.Q
		out = append(out, Candidate{
			Rect:       image.Rect(det.Col-half, det.Row-half, det.Col-half+det.Scale, det.Row-half+det.Scale),
			Confidence: &q,
		})
	}
	return out, nil
}

func (d *PicoDetector) Close() error { return nil }
