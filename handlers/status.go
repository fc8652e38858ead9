package handlers

import (
	"net/http"
	"runtime"
	"time"

	"gocv.io/x/gocv"
)

type StatusHandler struct {
	Version   string
	StartedAt time.Time
	Backends  []string
	History   bool
	Store     string
	Clients   func() int
}

type StatusResponse struct {
	Status        string   `json:"status"`
	Version       string   `json:"version"`
	UptimeSeconds float64  `json:"uptime_seconds"`
	Detectors     []string `json:"detectors"`
	OpenCV        string   `json:"opencv"`
	GoVersion     string   `json:"go_version"`
	History       bool     `json:"history"`
	OutputStore   string   `json:"output_store"`
	WSClients     int      `json:"ws_clients"`
}

// Root serves a short service banner.
func (sh *StatusHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "faceenhancer",
		"version": sh.Version,
		"enhance": "POST /api/enhance",
		"status":  "GET /status",
	})
}

func (sh *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:        "ok",
		Version:       sh.Version,
		UptimeSeconds: time.Since(sh.StartedAt).Seconds(),
		Detectors:     sh.Backends,
		OpenCV:        gocv.OpenCVVersion(),
		GoVersion:     runtime.Version(),
		History:       sh.History,
		OutputStore:   sh.Store,
	}
	if resp.Detectors == nil {
		resp.Detectors = []string{}
	}
	if sh.Clients != nil {
		resp.WSClients = sh.Clients()
	}
	writeJSON(w, http.StatusOK, resp)
}
