package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/camden-git/faceenhancer/enhance"
	"github.com/camden-git/faceenhancer/media"
	"github.com/camden-git/faceenhancer/models"
	"github.com/camden-git/faceenhancer/quality"
	"github.com/camden-git/faceenhancer/repository"
	"github.com/camden-git/faceenhancer/utils"
)

// ImageEnhancer is satisfied by *enhance.Enhancer.
type ImageEnhancer interface {
	Enhance(img gocv.Mat, params enhance.Params) *enhance.Result
}

type EnhanceHandler struct {
	Enhancer       ImageEnhancer
	Processor      *media.Processor
	Repo           repository.EnhancementRepositoryInterface // nil disables history
	Defaults       enhance.Params
	Encode         media.EncodeOptions
	StoreOutputs   bool
	MaxUploadBytes int64
	Log            logrus.FieldLogger
}

type EnhanceResponse struct {
	Success        bool            `json:"success"`
	ID             string          `json:"id"`
	EnhancedImage  string          `json:"enhanced_image"`
	OutputURL      string          `json:"output_url,omitempty"`
	ProcessingTime float64         `json:"processing_time"`
	FacesDetected  int             `json:"faces_detected"`
	Faces          []FaceJSON      `json:"faces"`
	Timing         enhance.Timings `json:"timing"`
	Metrics        *quality.Report `json:"metrics,omitempty"`
	Params         enhance.Params  `json:"params"`
}

// Enhance runs the pipeline synchronously on one uploaded image.
func (h *EnhanceHandler) Enhance(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := h.Log.WithField("request_id", requestID(r))

	up, params, ok := h.parse(w, r, log)
	if !ok {
		return
	}

	encode := h.encodeOptions(up.Options)
	rec := &models.Enhancement{ID: uuid.NewString(), Source: up.Filename, Params: params}
	if rec.Source == "" {
		rec.Source = "upload"
	}
	if info := utils.ReadCaptureInfo(up.Data); info != nil {
		rec.CameraMake, rec.CameraModel, rec.TakenAt = info.CameraMake, info.CameraModel, info.TakenAt
	}

	img, err := media.Decode(up.Data)
	if err != nil {
		h.record(r.Context(), rec, start, err)
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidImage, err.Error())
		return
	}
	defer img.Close()
	rec.InputWidth, rec.InputHeight = img.Cols(), img.Rows()

	res := h.Enhancer.Enhance(img, params)
	defer res.Close()
	rec.StageTimings = models.StageDurations(res.Timings)
	if !res.Success {
		log.WithError(res.Err).Warn("enhancement failed")
		h.record(r.Context(), rec, start, res.Err)
		writeEnhanceError(w, res.Err)
		return
	}
	rec.FacesDetected = len(res.Faces)
	rec.OutputWidth, rec.OutputHeight = res.Image.Cols(), res.Image.Rows()

	var report *quality.Report
	if up.Options.Metrics == nil || *up.Options.Metrics {
		rep := quality.Compare(img, res.Image)
		report = &rep
		rec.Metrics = report
		rec.PSNR, rec.SSIM = &rep.PSNR, &rep.SSIM
	}

	out, err := h.Processor.Publish(r.Context(), res.Image, "", rec.ID, encode, h.StoreOutputs)
	if err != nil {
		log.WithError(err).Error("failed to publish enhanced image")
		h.record(r.Context(), rec, start, err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "failed to encode enhanced image")
		return
	}

	resp := EnhanceResponse{
		Success:        true,
		ID:             rec.ID,
		EnhancedImage:  dataURL(out.Format.ContentType(), out.Data),
		ProcessingTime: time.Since(start).Seconds(),
		FacesDetected:  len(res.Faces),
		Faces:          facesJSON(res.Faces),
		Timing:         res.Timings,
		Metrics:        report,
		Params:         params,
	}
	if out.Path != "" {
		resp.OutputURL = "/outputs/" + out.Path
		rec.OutputPath = &out.Path
	}
	h.record(r.Context(), rec, start, nil)

	log.WithFields(logrus.Fields{
		"faces": len(res.Faces),
		"ms":    time.Since(start).Milliseconds(),
	}).Info("enhanced upload")
	writeJSON(w, http.StatusOK, resp)
}

// Raw is Enhance returning the encoded image bytes instead of JSON.
func (h *EnhanceHandler) Raw(w http.ResponseWriter, r *http.Request) {
	log := h.Log.WithField("request_id", requestID(r))
	up, params, ok := h.parse(w, r, log)
	if !ok {
		return
	}

	img, err := media.Decode(up.Data)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidImage, err.Error())
		return
	}
	defer img.Close()

	res := h.Enhancer.Enhance(img, params)
	defer res.Close()
	if !res.Success {
		log.WithError(res.Err).Warn("enhancement failed")
		writeEnhanceError(w, res.Err)
		return
	}

	encode := h.encodeOptions(up.Options)
	data, err := media.Encode(res.Image, encode)
	if err != nil {
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "failed to encode enhanced image")
		return
	}
	w.Header().Set("Content-Type", encode.Format.ContentType())
	w.Header().Set("X-Faces-Detected", itoa(len(res.Faces)))
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(data))
}

// parse reads and validates the upload and merges request params over the
// defaults. It writes the error response itself and reports false on failure.
func (h *EnhanceHandler) parse(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger) (*upload, enhance.Params, bool) {
	up, err := readUpload(w, r, h.MaxUploadBytes)
	if err != nil {
		log.WithError(err).Info("rejected enhance upload")
		writeUploadError(w, err)
		return nil, enhance.Params{}, false
	}
	if msgs := validateStruct(up.Options); msgs != nil {
		WriteAPIErrors(w, http.StatusBadRequest, CodeInvalidRequest, msgs)
		return nil, enhance.Params{}, false
	}

	params := h.Defaults
	if len(up.Params) > 0 {
		if err := json.Unmarshal(up.Params, &params); err != nil {
			WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid params JSON: "+err.Error())
			return nil, enhance.Params{}, false
		}
	}
	return up, params.Normalized(), true
}

func (h *EnhanceHandler) encodeOptions(o EnhanceOptions) media.EncodeOptions {
	opts := h.Encode
	if o.Format != "" {
		if f, err := media.ParseFormat(o.Format); err == nil {
			opts.Format = f
		}
	}
	if o.Quality > 0 {
		opts.Quality = o.Quality
	}
	return opts
}

func (h *EnhanceHandler) record(ctx context.Context, rec *models.Enhancement, start time.Time, err error) {
	if h.Repo == nil {
		return
	}
	rec.ProcessingMs = float64(time.Since(start).Microseconds()) / 1000
	rec.Status = models.StatusSucceeded
	if err != nil {
		rec.Status = models.StatusFailed
		msg := err.Error()
		rec.Error = &msg
	}
	if createErr := h.Repo.Create(context.WithoutCancel(ctx), rec); createErr != nil {
		h.Log.WithError(createErr).Error("failed to record enhancement")
	}
}
