package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/camden-git/faceenhancer/detection"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// FaceJSON is a detected face as returned by the API.
type FaceJSON struct {
	X          int                    `json:"x"`
	Y          int                    `json:"y"`
	Width      int                    `json:"width"`
	Height     int                    `json:"height"`
	Confidence *float32               `json:"confidence,omitempty"`
	Source     string                 `json:"source"`
	Quality    *detection.FaceQuality `json:"quality,omitempty"`
}

func facesJSON(faces []detection.FaceRegion) []FaceJSON {
	out := make([]FaceJSON, 0, len(faces))
	for _, f := range faces {
		out = append(out, FaceJSON{
			X:          f.Rect.Min.X,
			Y:          f.Rect.Min.Y,
			Width:      f.Rect.Dx(),
			Height:     f.Rect.Dy(),
			Confidence: f.Confidence,
			Source:     f.Source,
			Quality:    f.Quality,
		})
	}
	return out
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
