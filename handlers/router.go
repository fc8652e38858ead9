package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/camden-git/faceenhancer/media"
)

// RouterConfig wires handlers into the HTTP API. Nil handlers leave their
// routes unregistered.
type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	Log            logrus.FieldLogger

	Status  *StatusHandler
	Enhance *EnhanceHandler
	Faces   *FaceHandler
	History *HistoryHandler
	Batches *BatchHandler
	Outputs media.Store
	WS      http.HandlerFunc
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Faces-Detected", "X-Request-Id"},
		MaxAge:         300,
	})

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(cfg.Log))
	r.Use(middleware.Recoverer)
	r.Use(corsHandler.Handler)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteAPIError(w, http.StatusNotFound, CodeNotFound, "no route for "+r.Method+" "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", r.Method+" not allowed on "+r.URL.Path)
	})

	// long-lived, so outside the timeout group
	if cfg.WS != nil {
		r.Get("/ws", cfg.WS)
	}

	r.Group(func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
		}

		if cfg.Status != nil {
			r.Get("/", cfg.Status.Root)
			r.Get("/status", cfg.Status.Status)
		}

		r.Route("/api", func(r chi.Router) {
			if cfg.Enhance != nil {
				r.Post("/enhance", cfg.Enhance.Enhance)
				r.Post("/enhance/raw", cfg.Enhance.Raw)
			}
			if cfg.Faces != nil {
				r.Post("/faces", cfg.Faces.DetectFaces)
			}
			if cfg.History != nil {
				r.Route("/enhancements", func(r chi.Router) {
					r.Get("/", cfg.History.List)
					r.Get("/stats", cfg.History.Stats)
					r.Get("/{id}", cfg.History.Get)
				})
			}
			if cfg.Batches != nil {
				r.Route("/batches", func(r chi.Router) {
					r.Post("/", cfg.Batches.Create)
					r.Get("/{id}", cfg.Batches.Get)
				})
			}
		})

		if cfg.Outputs != nil {
			r.Get("/outputs/*", OutputServer(cfg.Outputs, cfg.Log))
			r.Delete("/outputs/*", OutputDeleter(cfg.Outputs, cfg.Log))
		}
	})

	return r
}

func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"ms":         time.Since(start).Milliseconds(),
				"request_id": middleware.GetReqID(r.Context()),
			}).Info("request")
		})
	}
}
