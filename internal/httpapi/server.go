// Package httpapi serves the search service over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/shpitdev/product-image-sampler/internal/app"
	"github.com/shpitdev/product-image-sampler/internal/results"
	"github.com/shpitdev/product-image-sampler/internal/util"
	"github.com/shpitdev/product-image-sampler/internal/version"
)

// Caller-facing error messages.
const (
	msgQueryRequired = "Search query is required"
	msgFetchFailed   = "Failed to fetch products"
	msgSearchFailed  = "Failed to search products"
)

// maxBodyBytes bounds inbound request bodies.
const maxBodyBytes = 1 << 20

// Searcher is the part of *app.Service the handler needs.
type Searcher interface {
	Search(ctx context.Context, req app.Request) (results.Response, error)
}

type handler struct {
	svc     Searcher
	metrics http.Handler
	logger  zerolog.Logger
}

// NewHandler routes the API. metricsHandler may be nil, in which case
// /metrics is not served.
func NewHandler(svc Searcher, metricsHandler http.Handler, logger zerolog.Logger) http.Handler {
	h := &handler{svc: svc, metrics: metricsHandler, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/search", h.handleSearch)
	mux.HandleFunc("GET /healthz", h.handleHealth)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}
	return accessLog(logger, mux)
}

// NewServer returns an *http.Server for h. Zero timeouts leave the net/http
// defaults in place.
func NewServer(addr string, h http.Handler, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Current})
}

func (h *handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	req, err := decodeSearchRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.svc.Search(r.Context(), req)
	if err != nil {
		var se *app.SearchError
		switch {
		case errors.Is(err, app.ErrInvalidQuery):
			writeError(w, http.StatusBadRequest, msgQueryRequired)
		case errors.Is(err, app.ErrInvalidOverride):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &se):
			writeError(w, http.StatusBadGateway, msgFetchFailed)
		default:
			h.logger.Error().Str("error", util.RedactSecrets(err.Error())).Msg("search failed")
			writeError(w, http.StatusInternalServerError, msgSearchFailed)
		}
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func accessLog(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		ev := logger.Info()
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			ev = logger.Debug()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Int("bytes", rec.bytes).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
