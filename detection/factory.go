package detection

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// Config lists the model files for each backend and the order in which the
// backends are queried.
type Config struct {
	Order            []string
	HaarCascadePath  string
	LBPCascadePath   string
	DNN              DNNOptions
	PicoCascadePath  string
	RetinaFace       RetinaFaceOptions
	OverlapThreshold float64
	AssessQuality    bool
}

// LoadLocator builds every backend named in cfg.Order. A backend that fails to
// load is logged and left out, so a service with no model files still runs
// with zero faces found.
func LoadLocator(cfg Config, log logrus.FieldLogger) *Locator {
	var detectors []Detector
	seen := map[string]bool{}
	for _, name := range cfg.Order {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		var (
			d   Detector
			err error
		)
		switch name {
		case BackendHaar:
			d, err = NewHaarDetector(cfg.HaarCascadePath, DefaultCascadeOptions(), log)
		case BackendLBP:
			d, err = NewLBPDetector(cfg.LBPCascadePath, DefaultCascadeOptions(), log)
		case BackendDNN:
			d, err = NewDNNDetector(cfg.DNN, log)
		case BackendPico:
			d, err = NewPicoDetector(DefaultPicoOptions(cfg.PicoCascadePath), log)
		case BackendRetinaFace:
			d, err = NewRetinaFaceDetector(cfg.RetinaFace, log)
		default:
			log.WithField("backend", name).Warn("detection: unknown detector backend, skipping")
			continue
		}
		if err != nil {
			log.WithError(err).WithField("backend", name).Warn("detection: backend unavailable")
			continue
		}
		detectors = append(detectors, d)
	}

	return NewLocator(detectors, log,
		WithOverlapThreshold(cfg.OverlapThreshold),
		WithQualityAssessment(cfg.AssessQuality),
	)
}
