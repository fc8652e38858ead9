package detection

import (
	"fmt"
	"image"
	"math"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// priorBox is an anchor in normalized centre/size form.
type priorBox struct {
	cx, cy, w, h float32
}

// retinaFacePriors generates the anchors of the mobilenet RetinaFace export
// for an input of w×h pixels.
func retinaFacePriors(w, h int) []priorBox {
	minSizes := [][]int{{16, 32}, {64, 128}, {256, 512}}
	steps := []int{8, 16, 32}

	var priors []priorBox
	for k, step := range steps {
		fmH, fmW := h/step, w/step
		for i := 0; i < fmH; i++ {
			for j := 0; j < fmW; j++ {
				for _, size := range minSizes[k] {
					priors = append(priors, priorBox{
						cx: (float32(j) + 0.5) * float32(step) / float32(w),
						cy: (float32(i) + 0.5) * float32(step) / float32(h),
						w:  float32(size) / float32(w),
						h:  float32(size) / float32(h),
					})
				}
			}
		}
	}
	return priors
}

// decodeBox turns a regression [dx, dy, dw, dh] into normalized corners.
func decodeBox(raw [4]float32, p priorBox, variances [2]float32) [4]float32 {
	cx := p.cx + raw[0]*variances[0]*p.w
	cy := p.cy + raw[1]*variances[0]*p.h
	w := p.w * float32(math.Exp(float64(raw[2]*variances[1])))
	h := p.h * float32(math.Exp(float64(raw[3]*variances[1])))
	return [4]float32{cx - w/2, cy - h/2, cx + w/2, cy + h/2}
}

// RetinaFaceOptions configures the ONNX RetinaFace backend.
type RetinaFaceOptions struct {
	ModelPath     string
	ConfThreshold float32
	IoUThreshold  float64
}

// RetinaFaceDetector runs a RetinaFace ONNX export through OpenCV dnn.
type RetinaFaceDetector struct {
	mu  sync.Mutex
	net gocv.Net

	inputSize     image.Point
	priors        []priorBox
	confThreshold float32
	iouThreshold  float64
}

func NewRetinaFaceDetector(opts RetinaFaceOptions, log logrus.FieldLogger) (*RetinaFaceDetector, error) {
	if opts.ModelPath == "" {
		return nil, fmt.Errorf("detection(retinaface): model path is empty")
	}
	net := gocv.ReadNet(opts.ModelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("detection(retinaface): failed to load model %s", opts.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)
	log.WithFields(logrus.Fields{"component": "detection", "backend": BackendRetinaFace}).Info("loaded retinaface model")

	conf := opts.ConfThreshold
	if conf <= 0 || conf >= 1 {
		conf = 0.5
	}
	iou := opts.IoUThreshold
	if iou <= 0 || iou >= 1 {
		iou = 0.5
	}
	size := image.Pt(640, 640)
	return &RetinaFaceDetector{
		net:           net,
		inputSize:     size,
		priors:        retinaFacePriors(size.X, size.Y),
		confThreshold: conf,
		iouThreshold:  iou,
	}, nil
}

func (d *RetinaFaceDetector) Name() string { return BackendRetinaFace }

func (d *RetinaFaceDetector) Detect(img gocv.Mat) ([]Candidate, error) {
	if img.Empty() {
		return nil, nil
	}
	bgr := bgrForDetection(img)
	defer bgr.Close()

	blob := gocv.BlobFromImage(bgr, 1.0, d.inputSize, gocv.NewScalar(104.0, 117.0, 123.0, 0), false, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "input")
	outputs := d.net.ForwardLayers([]string{"bbox", "confidence"})
	d.mu.Unlock()
	defer func() {
		for _, m := range outputs {
			m.Close()
		}
	}()
	if len(outputs) < 2 {
		return nil, fmt.Errorf("detection(retinaface): expected 2 outputs, got %d", len(outputs))
	}

	boxes, err := outputs[0].DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("detection(retinaface): read boxes: %w", err)
	}
	scores, err := outputs[1].DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("detection(retinaface): read scores: %w", err)
	}
	return d.parse(boxes, scores, float32(bgr.Cols()), float32(bgr.Rows()))
}

// parse decodes raw [N,4] boxes and [N,2] (background, face) scores.
func (d *RetinaFaceDetector) parse(boxes, scores []float32, width, height float32) ([]Candidate, error) {
	n := len(d.priors)
	if len(boxes) != n*4 || len(scores) != n*2 {
		return nil, fmt.Errorf("detection(retinaface): output sizes %d/%d do not match %d priors", len(boxes), len(scores), n)
	}
	variances := [2]float32{0.1, 0.2}

	var hits []Candidate
	for i := 0; i < n; i++ {
		score := scores[i*2+1]
		if score < d.confThreshold {
			continue
		}
		var raw [4]float32
		copy(raw[:], boxes[i*4:i*4+4])
		box := decodeBox(raw, d.priors[i], variances)

		x1 := max(0, box[0]*width)
		y1 := max(0, box[1]*height)
		x2 := min(width, box[2]*width)
		y2 := min(height, box[3]*height)
		if x2 <= x1 || y2 <= y1 {
			continue
		}
		s := score
		hits = append(hits, Candidate{Rect: image.Rect(int(x1), int(y1), int(x2), int(y2)), Confidence: &s})
	}
	return nonMaxSuppression(hits, d.iouThreshold), nil
}

// nonMaxSuppression keeps the highest scoring box of every IoU cluster.
// Candidates without a confidence sort last.
func nonMaxSuppression(hits []Candidate, iouThreshold float64) []Candidate {
	sort.SliceStable(hits, func(i, j int) bool {
		return confidenceOf(hits[i]) > confidenceOf(hits[j])
	})

	var kept []Candidate
	for _, h := range hits {
		suppressed := false
		for _, k := range kept {
			if iou(h.Rect, k.Rect) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, h)
		}
	}
	return kept
}

func confidenceOf(c Candidate) float32 {
	if c.Confidence == nil {
		return -1
	}
	return *c.Confidence
}

func iou(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := float64(inter.Dx() * inter.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - ia
	if union <= 0 {
		return 0
	}
	return ia / union
}

func (d *RetinaFaceDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
