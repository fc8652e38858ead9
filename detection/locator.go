package detection

import (
	"fmt"
	"image"

	"github.com/camden-git/faceenhancer/utils"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// DefaultOverlapThreshold is the overlap above which a later candidate is
// treated as a duplicate of an earlier one.
const DefaultOverlapThreshold = 0.3

// Locator merges the output of its detectors into an ordered list of
// non-overlapping faces. Detectors are queried in the order given to
// NewLocator and that order decides which duplicate survives.
type Locator struct {
	detectors        []Detector
	overlapThreshold float64
	assessQuality    bool
	log              logrus.FieldLogger
}

type LocatorOption func(*Locator)

// WithOverlapThreshold overrides DefaultOverlapThreshold. Values outside (0,1]
// are ignored.
func WithOverlapThreshold(t float64) LocatorOption {
	return func(l *Locator) {
		if t > 0 && t <= 1 {
			l.overlapThreshold = t
		}
	}
}

// WithQualityAssessment attaches a FaceQuality to every returned face.
func WithQualityAssessment(enabled bool) LocatorOption {
	return func(l *Locator) { l.assessQuality = enabled }
}

func NewLocator(detectors []Detector, log logrus.FieldLogger, opts ...LocatorOption) *Locator {
	l := &Locator{
		detectors:        detectors,
		overlapThreshold: DefaultOverlapThreshold,
		log:              log.WithField("component", "locator"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Backends lists the detector names in invocation order.
func (l *Locator) Backends() []string {
	names := make([]string, len(l.detectors))
	for i, d := range l.detectors {
		names[i] = d.Name()
	}
	return names
}

// Locate never fails: a detector that errors or panics contributes no
// candidates and the remaining detectors still run.
func (l *Locator) Locate(img gocv.Mat) []FaceRegion {
	if img.Empty() || len(l.detectors) == 0 {
		return nil
	}
	bounds := image.Rect(0, 0, img.Cols(), img.Rows())

	var candidates []FaceRegion
	for _, d := range l.detectors {
		found, err := safeDetect(d, img)
		if err != nil {
			l.log.WithError(err).WithField("backend", d.Name()).Warn("detector failed, treating as no faces")
			continue
		}
		for _, c := range found {
			r := utils.ClampRect(c.Rect, bounds)
			if r.Empty() {
				continue
			}
			candidates = append(candidates, FaceRegion{Rect: r, Confidence: c.Confidence, Source: d.Name()})
		}
	}

	faces := Suppress(candidates, l.overlapThreshold)
	if l.assessQuality {
		for i := range faces {
			faces[i].Quality = AssessFace(img, faces[i].Rect)
		}
	}
	l.log.WithFields(logrus.Fields{"candidates": len(candidates), "faces": len(faces)}).Debug("located faces")
	return faces
}

// Suppress keeps each face unless it overlaps an already kept face by more
// than threshold. Input order decides ties; confidence is not consulted.
func Suppress(faces []FaceRegion, threshold float64) []FaceRegion {
	kept := make([]FaceRegion, 0, len(faces))
	for _, f := range faces {
		duplicate := false
		for _, k := range kept {
			if utils.Overlap(f.Rect, k.Rect) > threshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, f)
		}
	}
	return kept
}

func (l *Locator) Close() error {
	var firstErr error
	for _, d := range l.detectors {
		if err := d.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s detector: %w", d.Name(), err)
		}
	}
	return firstErr
}

func safeDetect(d Detector, img gocv.Mat) (found []Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			found, err = nil, fmt.Errorf("panic in %s detector: %v", d.Name(), r)
		}
	}()
	return d.Detect(img)
}
