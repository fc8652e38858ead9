package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/camden-git/faceenhancer/database"
	"github.com/camden-git/faceenhancer/detection"
	"github.com/camden-git/faceenhancer/enhance"
	"github.com/camden-git/faceenhancer/media"
	"github.com/camden-git/faceenhancer/repository"
	"github.com/camden-git/faceenhancer/workers"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 4), G: uint8(y * 4), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func multipartBody(t *testing.T, fileField string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if data != nil {
		fw, err := mw.CreateFormFile(fileField, "face.png")
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

type fixedFaces struct {
	faces []detection.FaceRegion
}

func (f fixedFaces) Locate(gocv.Mat) []detection.FaceRegion { return f.faces }
func (f fixedFaces) Backends() []string                     { return []string{"fake"} }

type failingEnhancer struct {
	err error
}

func (f failingEnhancer) Enhance(gocv.Mat, enhance.Params) *enhance.Result {
	return &enhance.Result{Image: gocv.NewMat(), Err: f.err}
}

type fakeQueue struct {
	jobs     []workers.BatchJob
	full     bool
	statuses map[string]workers.BatchStatus
}

func (q *fakeQueue) Submit(job workers.BatchJob) (string, bool) {
	if q.full {
		return "", false
	}
	q.jobs = append(q.jobs, job)
	return "batch-1", true
}

func (q *fakeQueue) Status(id string) (workers.BatchStatus, bool) {
	s, ok := q.statuses[id]
	return s, ok
}

type testServer struct {
	handler http.Handler
	repo    *repository.EnhancementRepository
	store   *media.LocalStorage
	queue   *fakeQueue
	root    string
}

type serverOption func(*RouterConfig)

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	log, _ := test.NewNullLogger()

	db, err := database.InitGormDB(filepath.Join(t.TempDir(), "history.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	repo := repository.NewEnhancementRepository(db)

	store, err := media.NewLocalStorage(t.TempDir(), nil, log)
	require.NoError(t, err)

	face := detection.FaceRegion{Rect: image.Rect(8, 8, 40, 40), Source: "fake"}
	locator := fixedFaces{faces: []detection.FaceRegion{face}}

	root := t.TempDir()
	queue := &fakeQueue{statuses: map[string]workers.BatchStatus{}}
	cfg := RouterConfig{
		Log:    log,
		Status: &StatusHandler{Version: "test", Backends: locator.Backends(), History: true, Store: "local"},
		Enhance: &EnhanceHandler{
			Enhancer:       enhance.NewEnhancer(locator, log),
			Processor:      media.NewProcessor(store, log),
			Repo:           repo,
			Defaults:       enhance.DefaultParams(),
			Encode:         media.EncodeOptions{Format: media.FormatJPEG, Quality: 90},
			StoreOutputs:   true,
			MaxUploadBytes: 1 << 20,
			Log:            log,
		},
		Faces:   &FaceHandler{Locator: locator, MaxUploadBytes: 1 << 20, Log: log},
		History: &HistoryHandler{Repo: repo, Log: log},
		Batches: &BatchHandler{Queue: queue, Root: root, Defaults: enhance.DefaultParams(), Encode: media.EncodeOptions{Format: media.FormatJPEG}, Log: log},
		Outputs: store,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return &testServer{handler: NewRouter(cfg), repo: repo, store: store, queue: queue, root: root}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeErrors(t *testing.T, rec *httptest.ResponseRecorder) APIErrorResponse {
	t.Helper()
	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Errors)
	return resp
}

func TestEnhance_Multipart(t *testing.T) {
	s := newTestServer(t)
	body, ct := multipartBody(t, "image", pngBytes(t, 64, 48), map[string]string{
		"params": `{"sharpen_strength": 1.0, "histogram_mode": "equalize"}`,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/enhance", body)
	req.Header.Set("Content-Type", ct)

	rec := s.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp EnhanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.True(t, strings.HasPrefix(resp.EnhancedImage, "data:image/jpeg;base64,"))
	assert.Equal(t, 1, resp.FacesDetected)
	require.Len(t, resp.Faces, 1)
	assert.Equal(t, FaceJSON{X: 8, Y: 8, Width: 32, Height: 32, Source: "fake"}, resp.Faces[0])
	assert.Equal(t, enhance.HistogramEqualize, resp.Params.HistogramMode)
	assert.Equal(t, 1.0, resp.Params.SharpenStrength)
	require.NotNil(t, resp.Metrics)
	assert.Greater(t, resp.ProcessingTime, 0.0)
	assert.True(t, strings.HasPrefix(resp.OutputURL, "/outputs/enhanced/"))

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	timing := raw["timing"].(map[string]interface{})
	stages := timing["stages"].([]interface{})
	assert.Equal(t, enhance.StagePreprocess, stages[0].(map[string]interface{})["stage"])

	stored, err := s.repo.GetByID(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "succeeded", stored.Status)
	assert.Equal(t, "face.png", stored.Source)
	assert.Equal(t, 1, stored.FacesDetected)

	out := s.do(httptest.NewRequest(http.MethodGet, resp.OutputURL, nil))
	assert.Equal(t, http.StatusOK, out.Code)
	assert.Equal(t, "image/jpeg", out.Header().Get("Content-Type"))
}

func TestEnhance_JSONDataURL(t *testing.T) {
	s := newTestServer(t)
	payload, err := json.Marshal(map[string]interface{}{
		"image":   "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t, 32, 32)),
		"format":  "png",
		"metrics": false,
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/enhance", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	rec := s.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp EnhanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.EnhancedImage, "data:image/png;base64,"))
	assert.Nil(t, resp.Metrics)
}

func TestEnhance_RejectsBadRequests(t *testing.T) {
	s := newTestServer(t)
	img := pngBytes(t, 16, 16)

	tests := []struct {
		name   string
		data   []byte
		fields map[string]string
		status int
		code   string
	}{
		{"missing image", nil, nil, http.StatusBadRequest, CodeMissingImage},
		{"not an image", []byte("plain text, definitely not pixels"), nil, http.StatusUnsupportedMediaType, CodeUnsupportedMedia},
		{"bad quality", img, map[string]string{"quality": "500"}, http.StatusBadRequest, CodeInvalidRequest},
		{"bad format", img, map[string]string{"format": "gif"}, http.StatusBadRequest, CodeInvalidRequest},
		{"bad params", img, map[string]string{"params": "{nope"}, http.StatusBadRequest, CodeInvalidRequest},
		{"truncated image", img[:40], nil, http.StatusBadRequest, CodeInvalidImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartBody(t, "image", tt.data, tt.fields)
			req := httptest.NewRequest(http.MethodPost, "/api/enhance", body)
			req.Header.Set("Content-Type", ct)
			rec := s.do(req)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decodeErrors(t, rec).Errors[0].Code)
		})
	}
}

func TestEnhance_TooLarge(t *testing.T) {
	s := newTestServer(t)
	big := append(pngBytes(t, 16, 16), make([]byte, 2<<20)...)
	body, ct := multipartBody(t, "image", big, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/enhance", body)
	req.Header.Set("Content-Type", ct)

	rec := s.do(req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, CodePayloadTooLarge, decodeErrors(t, rec).Errors[0].Code)
}

func TestEnhance_PipelineFailures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"stage error", &enhance.StageError{Stage: enhance.StageDenoise, Err: assert.AnError}, http.StatusInternalServerError, CodeEnhancementFailed},
		{"input error", &enhance.InputError{Reason: "image has no pixels", Err: enhance.ErrEmptyImage}, http.StatusBadRequest, CodeInvalidImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, func(c *RouterConfig) { c.Enhance.Enhancer = failingEnhancer{err: tt.err} })
			body, ct := multipartBody(t, "image", pngBytes(t, 16, 16), nil)
			req := httptest.NewRequest(http.MethodPost, "/api/enhance", body)
			req.Header.Set("Content-Type", ct)

			rec := s.do(req)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeErrors(t, rec).Errors[0].Code)

			records, err := s.repo.List(context.Background(), repository.ListFilter{Status: "failed"})
			require.NoError(t, err)
			assert.Len(t, records, 1)
		})
	}
}

func TestEnhanceRaw(t *testing.T) {
	s := newTestServer(t)
	body, ct := multipartBody(t, "image", pngBytes(t, 24, 24), map[string]string{"format": "png"})
	req := httptest.NewRequest(http.MethodPost, "/api/enhance/raw", body)
	req.Header.Set("Content-Type", ct)

	rec := s.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "1", rec.Header().Get("X-Faces-Detected"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
}

func TestDetectFaces(t *testing.T) {
	s := newTestServer(t)

	body, ct := multipartBody(t, "image", pngBytes(t, 64, 64), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/faces", body)
	req.Header.Set("Content-Type", ct)
	rec := s.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp FacesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, []string{"fake"}, resp.Backends)
	assert.Equal(t, 64, resp.Width)

	body, ct = multipartBody(t, "image", pngBytes(t, 64, 64), nil)
	req = httptest.NewRequest(http.MethodPost, "/api/faces?annotate=true", body)
	req.Header.Set("Content-Type", ct)
	rec = s.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
}

func TestStatusAndRoot(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, []string{"fake"}, status.Detectors)
	assert.NotEmpty(t, status.OpenCV)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "faceenhancer")
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/nothing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decodeErrors(t, rec).Errors[0].Code)
}

func TestHistory(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/enhancements/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/enhancements?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, ct := multipartBody(t, "image", pngBytes(t, 16, 16), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/enhance", body)
	req.Header.Set("Content-Type", ct)
	require.Equal(t, http.StatusOK, s.do(req).Code)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/enhancements", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/enhancements/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		Total    int64 `json:"total"`
		ByStatus []struct {
			Status string `json:"status"`
		} `json:"by_status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats.Total)
	require.Len(t, stats.ByStatus, 1)
	assert.Equal(t, "succeeded", stats.ByStatus[0].Status)
}

func TestHistoryDisabled(t *testing.T) {
	s := newTestServer(t, func(c *RouterConfig) { c.History.Repo = nil })
	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/enhancements", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeHistoryDisabled, decodeErrors(t, rec).Errors[0].Code)
}

func TestBatches(t *testing.T) {
	s := newTestServer(t)
	dir := filepath.Join(s.root, "shoot")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), pngBytes(t, 16, 16), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(s.root, "empty"), 0755))

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/batches", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return s.do(req)
	}

	rec := post(`{"input_dir": "shoot", "params": {"skin_smoothing": 0.5}, "format": "png"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Len(t, s.queue.jobs, 1)
	job := s.queue.jobs[0]
	assert.Equal(t, []string{filepath.Join(dir, "a.png")}, job.Inputs)
	assert.Equal(t, 0.5, job.Options.Params.SkinSmoothing)
	assert.Equal(t, media.FormatPNG, job.Options.Encode.Format)
	assert.Equal(t, "shoot", job.Options.DirHint)

	assert.Equal(t, http.StatusBadRequest, post(`{"input_dir": "../etc"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"input_dir": "/etc"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"input_dir": "empty"}`).Code)
	assert.Equal(t, http.StatusNotFound, post(`{"input_dir": "missing"}`).Code)

	s.queue.full = true
	assert.Equal(t, http.StatusServiceUnavailable, post(`{"input_dir": "shoot"}`).Code)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/batches/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s.queue.statuses["b1"] = workers.BatchStatus{
		ID: "b1", State: workers.BatchCompleted, Total: 5, Processed: 5, Succeeded: 4,
		Summary: &workers.BatchSummary{ID: "b1", Succeeded: 4, Total: 5},
	}
	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/batches/b1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"result":"4/5"`)
}

func TestOutputs(t *testing.T) {
	s := newTestServer(t)
	rel, err := s.store.Save(context.Background(), media.AssetTypeEnhanced, "", "x.png", bytes.NewReader(pngBytes(t, 8, 8)))
	require.NoError(t, err)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/outputs/"+rel, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec = s.do(httptest.NewRequest(http.MethodGet, "/outputs/enhanced/missing.png", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(httptest.NewRequest(http.MethodDelete, "/outputs/"+rel, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(httptest.NewRequest(http.MethodGet, "/outputs/"+rel, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
