package detection

import (
	"fmt"
	"image"
	"sync"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// DNNOptions configures the SSD face detector.
type DNNOptions struct {
	ConfigPath    string
	ModelPath     string
	ConfThreshold float32
	PreferCUDA    bool
}

// DNNDetector runs the res10 SSD face model through OpenCV's dnn module.
type DNNDetector struct {
	mu  sync.Mutex
	net gocv.Net

	inputSize     image.Point
	scaleFactor   float64
	meanVal       gocv.Scalar
	confThreshold float32
}

// NewDNNDetector loads the network. Missing paths or an unreadable model are
// reported as errors so the caller can skip this backend.
func NewDNNDetector(opts DNNOptions, log logrus.FieldLogger) (*DNNDetector, error) {
	log = log.WithFields(logrus.Fields{"component": "detection", "backend": BackendDNN})
	if opts.ConfigPath == "" || opts.ModelPath == "" {
		return nil, fmt.Errorf("detection(dnn): config or model path is empty")
	}

	net := gocv.ReadNet(opts.ModelPath, opts.ConfigPath)
	if net.Empty() {
		return nil, fmt.Errorf("detection(dnn): failed to load network model=%s config=%s", opts.ModelPath, opts.ConfigPath)
	}
	log.Info("loaded face detection model")

	useCPU := true
	if opts.PreferCUDA {
		backendErr := net.SetPreferableBackend(gocv.NetBackendCUDA)
		targetErr := net.SetPreferableTarget(gocv.NetTargetCUDA)
		if backendErr == nil && targetErr == nil {
			log.Info("using CUDA backend")
			useCPU = false
		} else {
			log.WithFields(logrus.Fields{"backend_error": backendErr, "target_error": targetErr}).Warn("CUDA not available, falling back to CPU")
		}
	}
	if useCPU {
		net.SetPreferableBackend(gocv.NetBackendDefault)
		net.SetPreferableTarget(gocv.NetTargetCPU)
	}

	threshold := opts.ConfThreshold
	if threshold <= 0 || threshold >= 1 {
		threshold = 0.5
	}

	return &DNNDetector{
		net:           net,
		inputSize:     image.Pt(300, 300),
		scaleFactor:   1.0,
		meanVal:       gocv.NewScalar(104.0, 177.0, 123.0, 0),
		confThreshold: threshold,
	}, nil
}

func (d *DNNDetector) Name() string { return BackendDNN }

// Detect returns every SSD hit above the confidence threshold, scaled back to
// image coordinates.
func (d *DNNDetector) Detect(img gocv.Mat) ([]Candidate, error) {
	if img.Empty() {
		return nil, nil
	}

	bgr := bgrForDetection(img)
	defer bgr.Close()

	width := float32(bgr.Cols())
	height := float32(bgr.Rows())

	blob := gocv.BlobFromImage(bgr, d.scaleFactor, d.inputSize, d.meanVal, false, false)
	defer blob.Close()

	// SetInput/Forward mutate the network's internal blobs
	d.mu.Lock()
	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	d.mu.Unlock()
	defer output.Close()

	// output shape is [1, 1, N, 7]: image_id, label, confidence, x1, y1, x2, y2
	sizes := output.Size()
	if len(sizes) != 4 || sizes[3] != 7 {
		return nil, fmt.Errorf("detection(dnn): unexpected output dimensions %v", sizes)
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("detection(dnn): read output: %w", err)
	}

	var out []Candidate
	for i := 0; i+7 <= len(data); i += 7 {
		confidence := data[i+2]
		if confidence <= d.confThreshold {
			continue
		}
		x1 := max(0, data[i+3]*width)
		y1 := max(0, data[i+4]*height)
		x2 := min(width, data[i+5]*width)
		y2 := min(height, data[i+6]*height)
		if x2 <= x1 || y2 <= y1 {
			continue
		}
		c := confidence
		out = append(out, Candidate{
			Rect:       image.Rect(int(x1), int(y1), int(x2), int(y2)),
			Confidence: &c,
		})
	}
	return out, nil
}

func (d *DNNDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
