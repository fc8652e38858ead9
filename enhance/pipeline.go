// Package enhance implements the face-aware enhancement pipeline: a fixed
// sequence of image stages with skin smoothing routed through detected faces.
package enhance

import (
	"errors"
	"fmt"
	"time"

	"github.com/camden-git/faceenhancer/detection"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// State is a step of the pipeline state machine.
type State int

const (
	StateInit State = iota
	StatePreprocessed
	StateFacesLocated
	StateDenoised
	StateSharpened
	StateEdgeEnhanced
	StateContrastAdjusted
	StateHistogramEnhanced
	StateSkinSmoothed
	StateSuperResolved
	StatePostprocessed
	StateDone
)

var stateNames = [...]string{
	"init", "preprocessed", "faces_located", "denoised", "sharpened", "edge_enhanced",
	"contrast_adjusted", "histogram_enhanced", "skin_smoothed", "super_resolved",
	"postprocessed", "done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// FaceLocator finds faces in a preprocessed image. It must not fail.
type FaceLocator interface {
	Locate(img gocv.Mat) []detection.FaceRegion
}

// Result is returned by every Enhance call. On failure Image is empty and
// Err describes the stage that aborted. The caller owns Image.
type Result struct {
	Image   gocv.Mat
	Faces   []detection.FaceRegion
	Timings Timings
	States  []State
	Success bool
	Err     error
}

func (r *Result) Close() error {
	return r.Image.Close()
}

// Enhancer runs the pipeline. It holds no per-call state and may be shared
// between goroutines as long as its FaceLocator is.
type Enhancer struct {
	locator FaceLocator
	log     logrus.FieldLogger
}

// NewEnhancer returns an Enhancer. A nil locator disables face detection.
func NewEnhancer(locator FaceLocator, log logrus.FieldLogger) *Enhancer {
	return &Enhancer{locator: locator, log: log.WithField("component", "enhance")}
}

type step struct {
	state State
	name  string
	run   func(gocv.Mat) (gocv.Mat, error)
}

// Enhance runs every stage on img. img itself is never modified. The call is
// all or nothing: any stage failure discards intermediate images.
func (e *Enhancer) Enhance(img gocv.Mat, params Params) *Result {
	start := time.Now()
	p := params.Normalized()
	res := &Result{States: []State{StateInit}}

	current, err := e.runStep(res, step{StatePreprocessed, StagePreprocess, Preprocess}, img)
	if err != nil {
		return e.fail(res, start, err)
	}

	locateStart := time.Now()
	res.Faces = e.locate(current)
	res.Timings.add(StageFaceDetection, time.Since(locateStart))
	res.States = append(res.States, StateFacesLocated)

	steps := []step{
		{StateDenoised, StageDenoise, func(m gocv.Mat) (gocv.Mat, error) { return Denoise(m, p) }},
		{StateSharpened, StageSharpen, func(m gocv.Mat) (gocv.Mat, error) { return Sharpen(m, p) }},
		{StateEdgeEnhanced, StageEdgeEnhance, func(m gocv.Mat) (gocv.Mat, error) { return EnhanceEdges(m, p) }},
		{StateContrastAdjusted, StageContrast, func(m gocv.Mat) (gocv.Mat, error) { return AdjustContrast(m, p) }},
		{StateHistogramEnhanced, StageHistogram, func(m gocv.Mat) (gocv.Mat, error) { return EqualizeHistogram(m, p) }},
	}
	if len(res.Faces) > 0 {
		rects := detection.Rects(res.Faces)
		steps = append(steps, step{StateSkinSmoothed, StageSkinSmoothing, func(m gocv.Mat) (gocv.Mat, error) {
			return SmoothSkin(m, rects, p)
		}})
	}
	if p.Scale > 1 {
		steps = append(steps, step{StateSuperResolved, StageSuperResolution, func(m gocv.Mat) (gocv.Mat, error) {
			return Upscale(m, p)
		}})
	}
	steps = append(steps, step{StatePostprocessed, StagePostprocess, Postprocess})

	for _, s := range steps {
		next, err := e.runStep(res, s, current)
		current.Close()
		if err != nil {
			return e.fail(res, start, err)
		}
		current = next
	}

	res.Image = current
	res.Success = true
	res.States = append(res.States, StateDone)
	res.Timings.Total = time.Since(start)

	e.log.WithFields(logrus.Fields{
		"faces":    len(res.Faces),
		"width":    current.Cols(),
		"height":   current.Rows(),
		"total_ms": millis(res.Timings.Total),
	}).Info("enhancement complete")
	return res
}

// runStep times one stage and converts panics and empty output into errors.
func (e *Enhancer) runStep(res *Result, s step, in gocv.Mat) (out gocv.Mat, err error) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out, err = gocv.NewMat(), &StageError{Stage: s.name, Err: fmt.Errorf("panic: %v", r)}
		}
		elapsed := time.Since(started)
		res.Timings.add(s.name, elapsed)
		e.log.WithFields(logrus.Fields{"stage": s.name, "ms": millis(elapsed)}).Debug("stage finished")
	}()

	out, err = s.run(in)
	if err != nil {
		out.Close()
		var inputErr *InputError
		if errors.As(err, &inputErr) {
			return gocv.NewMat(), err
		}
		return gocv.NewMat(), &StageError{Stage: s.name, Err: err}
	}
	if out.Empty() {
		out.Close()
		return gocv.NewMat(), &StageError{Stage: s.name, Err: errors.New("stage produced an empty image")}
	}
	res.States = append(res.States, s.state)
	return out, nil
}

func (e *Enhancer) locate(img gocv.Mat) (faces []detection.FaceRegion) {
	if e.locator == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.WithField("panic", r).Warn("face location failed, continuing without faces")
			faces = nil
		}
	}()
	return e.locator.Locate(img)
}

func (e *Enhancer) fail(res *Result, start time.Time, err error) *Result {
	res.Image = gocv.NewMat()
	res.Faces = nil
	res.Success = false
	res.Err = err
	res.Timings.Total = time.Since(start)
	e.log.WithError(err).Warn("enhancement failed")
	return res
}
