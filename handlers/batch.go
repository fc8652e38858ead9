package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/camden-git/faceenhancer/enhance"
	"github.com/camden-git/faceenhancer/media"
	"github.com/camden-git/faceenhancer/utils"
	"github.com/camden-git/faceenhancer/workers"
)

// BatchQueue is satisfied by *workers.BatchQueue.
type BatchQueue interface {
	Submit(job workers.BatchJob) (string, bool)
	Status(id string) (workers.BatchStatus, bool)
}

type BatchHandler struct {
	Queue    BatchQueue
	Root     string // absolute; input_dir must resolve below it
	Defaults enhance.Params
	Encode   media.EncodeOptions // only Quality applies; outputs keep their input format unless the request names one
	Log      logrus.FieldLogger
}

type BatchRequest struct {
	InputDir string          `json:"input_dir" validate:"required"`
	Params   json.RawMessage `json:"params"`
	Format   string          `json:"format" validate:"omitempty,image_format"`
	Quality  int             `json:"quality" validate:"omitempty,min=1,max=100"`
	Metrics  bool            `json:"metrics"`
}

// Create handles POST /api/batches.
func (bh *BatchHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid JSON body: "+err.Error())
		return
	}
	if msgs := validateStruct(req); msgs != nil {
		WriteAPIErrors(w, http.StatusBadRequest, CodeInvalidRequest, msgs)
		return
	}

	dir, ok := bh.resolve(req.InputDir)
	if !ok {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "input_dir must be a relative path inside the batch root")
		return
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		WriteAPIError(w, http.StatusNotFound, CodeNotFound, "input_dir does not exist")
		return
	}
	inputs, err := utils.ListImages(dir)
	if err != nil {
		bh.Log.WithError(err).WithField("dir", dir).Error("failed to list batch inputs")
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "failed to list input_dir")
		return
	}
	if len(inputs) == 0 {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "input_dir contains no supported images")
		return
	}

	params := bh.Defaults
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid params JSON: "+err.Error())
			return
		}
	}
	encode := media.EncodeOptions{Quality: bh.Encode.Quality}
	if req.Format != "" {
		encode.Format, _ = media.ParseFormat(req.Format)
	}
	if req.Quality > 0 {
		encode.Quality = req.Quality
	}

	rel, _ := filepath.Rel(bh.Root, dir)
	id, queued := bh.Queue.Submit(workers.BatchJob{
		Inputs: inputs,
		Options: workers.BatchOptions{
			Params:  params.Normalized(),
			Encode:  encode,
			DirHint: filepath.ToSlash(rel),
			Metrics: req.Metrics,
		},
	})
	if !queued {
		WriteAPIError(w, http.StatusServiceUnavailable, CodeQueueFull, "batch queue is full, retry later")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"id":         id,
		"total":      len(inputs),
		"status_url": "/api/batches/" + id,
	})
}

// Get handles GET /api/batches/{id}.
func (bh *BatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	status, ok := bh.Queue.Status(chi.URLParam(r, "id"))
	if !ok {
		WriteAPIError(w, http.StatusNotFound, CodeNotFound, "batch not found")
		return
	}
	resp := map[string]interface{}{"batch": status}
	if status.Summary != nil {
		resp["result"] = status.Summary.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (bh *BatchHandler) resolve(inputDir string) (string, bool) {
	clean := filepath.Clean(filepath.FromSlash(inputDir))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", false
	}
	full := filepath.Join(bh.Root, clean)
	if full != bh.Root && !strings.HasPrefix(full, bh.Root+string(filepath.Separator)) {
		return "", false
	}
	return full, true
}
