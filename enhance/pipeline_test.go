package enhance

import (
	"image"
	"image/color"
	"testing"

	"github.com/camden-git/faceenhancer/detection"
	"github.com/camden-git/faceenhancer/quality"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type fixedLocator struct {
	faces  []detection.FaceRegion
	panics bool
}

func (f fixedLocator) Locate(gocv.Mat) []detection.FaceRegion {
	if f.panics {
		panic("locator exploded")
	}
	return f.faces
}

func squareScene() gocv.Mat {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(70, 70, 70, 0), 100, 100, gocv.MatTypeCV8UC3)
	gocv.Rectangle(&img, image.Rect(35, 35, 65, 65), color.RGBA{R: 190, G: 190, B: 190, A: 255}, -1)
	return img
}

func newTestEnhancer(locator FaceLocator) *Enhancer {
	logger, _ := test.NewNullLogger()
	return NewEnhancer(locator, logger)
}

func TestEnhanceSyntheticSquare(t *testing.T) {
	img := squareScene()
	defer img.Close()

	p := DefaultParams()
	p.SharpenStrength = 1.5
	p.DenoiseStrength = 10
	p.Scale = 1
	p.SkinSmoothing = 0

	res := newTestEnhancer(nil).Enhance(img, p)
	defer res.Close()

	require.True(t, res.Success, "%v", res.Err)
	assert.Empty(t, res.Faces)
	assert.Equal(t, 100, res.Image.Rows())
	assert.Equal(t, 100, res.Image.Cols())
	assert.Equal(t, 3, res.Image.Channels())
	assert.GreaterOrEqual(t, quality.Sharpness(res.Image), quality.Sharpness(img))

	assert.Equal(t, []State{
		StateInit, StatePreprocessed, StateFacesLocated, StateDenoised, StateSharpened,
		StateEdgeEnhanced, StateContrastAdjusted, StateHistogramEnhanced, StatePostprocessed, StateDone,
	}, res.States)
	assert.Equal(t, []string{
		StagePreprocess, StageFaceDetection, StageDenoise, StageSharpen, StageEdgeEnhance,
		StageContrast, StageHistogram, StagePostprocess,
	}, res.Timings.Names())
	assert.Greater(t, res.Timings.Total, res.Timings.Stages[0].Duration)
}

func TestEnhanceRunsFaceStagesWhenEnabled(t *testing.T) {
	img := squareScene()
	defer img.Close()

	locator := fixedLocator{faces: []detection.FaceRegion{{Rect: image.Rect(30, 30, 70, 70), Source: "fixed"}}}
	p := DefaultParams()
	p.Scale = 2

	res := newTestEnhancer(locator).Enhance(img, p)
	defer res.Close()

	require.True(t, res.Success, "%v", res.Err)
	require.Len(t, res.Faces, 1)
	assert.Equal(t, 200, res.Image.Rows())
	assert.Equal(t, 200, res.Image.Cols())
	assert.Contains(t, res.States, StateSkinSmoothed)
	assert.Contains(t, res.States, StateSuperResolved)

	_, ok := res.Timings.Get(StageSkinSmoothing)
	assert.True(t, ok)
}

func TestEnhanceChannelHandling(t *testing.T) {
	bgra := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 80, 120, 255), 32, 48, gocv.MatTypeCV8UC4)
	defer bgra.Close()
	res := newTestEnhancer(nil).Enhance(bgra, DefaultParams())
	require.True(t, res.Success, "%v", res.Err)
	assert.Equal(t, 3, res.Image.Channels())
	assert.Equal(t, 32, res.Image.Rows())
	res.Close()

	gray := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(90, 0, 0, 0), 32, 48, gocv.MatTypeCV8UC1)
	defer gray.Close()
	res = newTestEnhancer(nil).Enhance(gray, DefaultParams())
	require.True(t, res.Success, "%v", res.Err)
	assert.Equal(t, 1, res.Image.Channels())
	assert.Equal(t, 48, res.Image.Cols())
	res.Close()
}

func TestEnhanceRejectsEmptyInput(t *testing.T) {
	empty := gocv.NewMat()
	defer empty.Close()

	res := newTestEnhancer(nil).Enhance(empty, DefaultParams())
	defer res.Close()

	assert.False(t, res.Success)
	assert.True(t, IsInputError(res.Err))
	assert.True(t, res.Image.Empty())
	assert.Nil(t, res.Faces)
}

func TestEnhanceSurvivesLocatorPanic(t *testing.T) {
	img := squareScene()
	defer img.Close()

	res := newTestEnhancer(fixedLocator{panics: true}).Enhance(img, DefaultParams())
	defer res.Close()

	require.True(t, res.Success, "%v", res.Err)
	assert.Empty(t, res.Faces)
	assert.NotContains(t, res.States, StateSkinSmoothed)
}

func TestEnhanceDoesNotModifyInput(t *testing.T) {
	img := squareScene()
	defer img.Close()
	before, err := pixelBuffer(img)
	require.NoError(t, err)

	res := newTestEnhancer(nil).Enhance(img, DefaultParams())
	defer res.Close()

	after, err := pixelBuffer(img)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "faces_located", StateFacesLocated.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "state(99)", State(99).String())
}

func TestStageErrorUnwraps(t *testing.T) {
	err := &StageError{Stage: StageDenoise, Err: ErrEmptyImage}
	assert.ErrorIs(t, err, ErrEmptyImage)
	assert.Contains(t, err.Error(), "denoise")
	assert.False(t, IsInputError(err))
}
