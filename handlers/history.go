package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/camden-git/faceenhancer/repository"
)

type HistoryHandler struct {
	Repo repository.EnhancementRepositoryInterface
	Log  logrus.FieldLogger
}

func (hh *HistoryHandler) available(w http.ResponseWriter) bool {
	if hh.Repo == nil {
		WriteAPIError(w, http.StatusNotFound, CodeHistoryDisabled, "enhancement history is disabled")
		return false
	}
	return true
}

// List handles GET /api/enhancements?batch_id=&status=&limit=&offset=
func (hh *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	if !hh.available(w) {
		return
	}
	q := r.URL.Query()
	filter := repository.ListFilter{BatchID: q.Get("batch_id"), Status: q.Get("status")}
	for key, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		if v := q.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid "+key+" parameter")
				return
			}
			*dst = n
		}
	}

	records, err := hh.Repo.List(r.Context(), filter)
	if err != nil {
		hh.Log.WithError(err).Error("failed to list enhancements")
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "failed to list enhancements")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"enhancements": records,
		"count":        len(records),
	})
}

func (hh *HistoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !hh.available(w) {
		return
	}
	id := chi.URLParam(r, "id")
	rec, err := hh.Repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, CodeNotFound, "enhancement not found")
			return
		}
		hh.Log.WithError(err).WithField("id", id).Error("failed to get enhancement")
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "failed to get enhancement")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Stats handles GET /api/enhancements/stats?batch_id=
func (hh *HistoryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if !hh.available(w) {
		return
	}
	stats, err := hh.Repo.Stats(r.Context(), r.URL.Query().Get("batch_id"))
	if err != nil {
		hh.Log.WithError(err).Error("failed to compute enhancement stats")
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "failed to compute stats")
		return
	}
	var total int64
	for _, s := range stats {
		total += s.Count
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":     total,
		"by_status": stats,
	})
}
