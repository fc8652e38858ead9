package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/faceenhancer/detection"
	"github.com/camden-git/faceenhancer/enhance"
	"github.com/camden-git/faceenhancer/media"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := fromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, 120*time.Second, cfg.RequestTimeout)
	assert.EqualValues(t, 20<<20, cfg.MaxUploadBytes)
	assert.Equal(t, []string{"haar", "lbp", "dnn", "pico"}, cfg.DetectorOrder)
	assert.Equal(t, OutputStoreLocal, cfg.OutputStore)
	assert.True(t, filepath.IsAbs(cfg.BatchRoot))
	assert.Equal(t, media.EncodeOptions{Format: media.FormatJPEG, Quality: 95}, cfg.EncodeOptions())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("DETECTOR_ORDER", "pico, DNN")
	t.Setenv("FACE_OVERLAP_THRESHOLD", "0.5")
	t.Setenv("FACE_DNN_CONFIDENCE", "0.7")
	t.Setenv("OUTPUT_FORMAT", "png")
	t.Setenv("BATCH_WORKERS", "0")

	cfg, err := fromEnv()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.Addr())
	assert.Equal(t, 1, cfg.BatchWorkers)
	assert.Equal(t, media.FormatPNG, cfg.EncodeOptions().Format)

	det := cfg.Detection()
	assert.Equal(t, []string{detection.BackendPico, detection.BackendDNN}, det.Order)
	assert.InDelta(t, 0.5, det.OverlapThreshold, 1e-9)
	assert.InDelta(t, 0.7, det.DNN.ConfThreshold, 1e-6)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"port out of range", "PORT", "70000"},
		{"port not a number", "PORT", "abc"},
		{"unknown format", "OUTPUT_FORMAT", "gif"},
		{"quality", "OUTPUT_QUALITY", "0"},
		{"unknown store", "OUTPUT_STORE", "s3"},
		{"azure without credentials", "OUTPUT_STORE", "azure"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := fromEnv()
			assert.Error(t, err)
		})
	}
}

func TestLoadParamsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.env")
	content := `# enhancement settings
sharpen_strength=2.5
noise_reduction=4
template_window_size=5
histogram_mode=equalize
super_resolution_scale=2
skin_smoothing=not-a-number
mystery_knob=7
input_path=/data/in
batch_mode=true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	log, hook := test.NewNullLogger()
	pf, err := LoadParamsFile(path, enhance.DefaultParams(), log)
	require.NoError(t, err)

	def := enhance.DefaultParams()
	assert.Equal(t, 2.5, pf.Params.SharpenStrength)
	assert.Equal(t, 4.0, pf.Params.DenoiseStrength)
	assert.Equal(t, 5, pf.Params.TemplateWindowSize)
	assert.Equal(t, enhance.HistogramEqualize, pf.Params.HistogramMode)
	assert.Equal(t, 2, pf.Params.Scale)
	assert.Equal(t, def.SkinSmoothing, pf.Params.SkinSmoothing, "unparsable value keeps the default")
	assert.Equal(t, def.Contrast, pf.Params.Contrast)
	assert.Equal(t, "/data/in", pf.InputPath)
	require.NotNil(t, pf.BatchMode)
	assert.True(t, *pf.BatchMode)
	assert.Nil(t, pf.Verbose)

	warnings := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings++
		}
	}
	assert.Equal(t, 2, warnings)
}

func TestLoadParamsFile_Missing(t *testing.T) {
	log, _ := test.NewNullLogger()
	_, err := LoadParamsFile(filepath.Join(t.TempDir(), "nope.env"), enhance.DefaultParams(), log)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	l := NewLogger("debug", "json")
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, l.Formatter)

	l = NewLogger("loud", "text")
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, l.Formatter)
}
