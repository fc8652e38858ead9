package enhance

import (
	"encoding/json"
	"time"
)

// Stage names as reported in timings.
const (
	StagePreprocess      = "preprocess"
	StageFaceDetection   = "face_detection"
	StageDenoise         = "denoise"
	StageSharpen         = "sharpen"
	StageEdgeEnhance     = "edge_enhance"
	StageContrast        = "contrast"
	StageHistogram       = "histogram"
	StageSkinSmoothing   = "skin_smoothing"
	StageSuperResolution = "super_resolution"
	StagePostprocess     = "postprocess"
)

type StageTiming struct {
	Stage    string
	Duration time.Duration
}

// Timings records stage durations in execution order.
type Timings struct {
	Stages []StageTiming
	Total  time.Duration
}

func (t *Timings) add(stage string, d time.Duration) {
	t.Stages = append(t.Stages, StageTiming{Stage: stage, Duration: d})
}

// Get returns the duration recorded for stage.
func (t Timings) Get(stage string) (time.Duration, bool) {
	for _, s := range t.Stages {
		if s.Stage == stage {
			return s.Duration, true
		}
	}
	return 0, false
}

// Names lists the recorded stages in order.
func (t Timings) Names() []string {
	names := make([]string, len(t.Stages))
	for i, s := range t.Stages {
		names[i] = s.Stage
	}
	return names
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

type stageTimingJSON struct {
	Stage string  `json:"stage"`
	Ms    float64 `json:"ms"`
}

// MarshalJSON keeps stage order, which a JSON object would not guarantee.
func (t Timings) MarshalJSON() ([]byte, error) {
	stages := make([]stageTimingJSON, len(t.Stages))
	for i, s := range t.Stages {
		stages[i] = stageTimingJSON{Stage: s.Stage, Ms: millis(s.Duration)}
	}
	return json.Marshal(struct {
		TotalMs float64           `json:"total_ms"`
		Stages  []stageTimingJSON `json:"stages"`
	}{TotalMs: millis(t.Total), Stages: stages})
}
