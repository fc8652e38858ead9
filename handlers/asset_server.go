package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/camden-git/faceenhancer/media"
)

// OutputServer serves stored enhanced images. Mount it on a route ending in
// "/*"; the wildcard is the store-relative path.
//
//	r.Get("/outputs/*", handlers.OutputServer(store, log))
func OutputServer(store media.Store, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		relativePath, ok := assetPath(w, r)
		if !ok {
			return
		}

		rc, info, err := store.Get(r.Context(), relativePath)
		if err != nil {
			if errors.Is(err, media.ErrNotFound) {
				WriteAPIError(w, http.StatusNotFound, CodeNotFound, "output not found")
				return
			}
			log.WithError(err).WithField("path", relativePath).Error("failed to open output")
			WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "failed to open output")
			return
		}
		defer rc.Close()

		cacheDuration := 24 * time.Hour
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(cacheDuration.Seconds())))
		w.Header().Set("Expires", time.Now().Add(cacheDuration).Format(http.TimeFormat))
		if info.ContentType != "" {
			w.Header().Set("Content-Type", info.ContentType)
		}

		if rs, ok := rc.(io.ReadSeeker); ok {
			http.ServeContent(w, r, relativePath, info.ModTime, rs)
			return
		}
		if info.Size > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
		}
		if _, err := io.Copy(w, rc); err != nil {
			log.WithError(err).WithField("path", relativePath).Debug("output copy interrupted")
		}
	}
}

// OutputDeleter removes a stored output. Missing outputs are not an error.
func OutputDeleter(store media.Store, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		relativePath, ok := assetPath(w, r)
		if !ok {
			return
		}
		if err := store.Delete(r.Context(), relativePath); err != nil {
			log.WithError(err).WithField("path", relativePath).Error("failed to delete output")
			WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "failed to delete output")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func assetPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	relativePath := chi.URLParam(r, "*")
	if relativePath == "" || strings.Contains(relativePath, "..") {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid asset path")
		return "", false
	}
	return relativePath, true
}
