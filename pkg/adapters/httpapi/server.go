// Package httpapi exposes frame extraction over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/user/framegrab/pkg/orchestrator"
	"github.com/user/framegrab/pkg/pipeline"
	"github.com/user/framegrab/pkg/ports"
)

// Extractor is the extraction entry point the server drives.
type Extractor interface {
	ExtractFile(ctx context.Context, path string, targets []pipeline.Target) (pipeline.Result, error)
}

// Options configures the server.
type Options struct {
	AllowedOrigins  []string
	UploadLimit     int64  // max request body size in bytes
	MultipartMemory int64  // bytes kept in memory before spilling to disk
	TempDir         string // "" uses os.TempDir
}

// DefaultOptions returns the default server options.
func DefaultOptions() Options {
	return Options{
		AllowedOrigins:  []string{"http://localhost:5173"},
		UploadLimit:     200 << 20,
		MultipartMemory: 10 << 20,
	}
}

// Server handles extraction requests.
type Server struct {
	extractor Extractor
	logger    ports.Logger
	opts      Options
}

// New creates a Server.
func New(extractor Extractor, logger ports.Logger, opts Options) *Server {
	d := DefaultOptions()
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = d.AllowedOrigins
	}
	if opts.UploadLimit <= 0 {
		opts.UploadLimit = d.UploadLimit
	}
	if opts.MultipartMemory <= 0 {
		opts.MultipartMemory = d.MultipartMemory
	}
	return &Server{
		extractor: extractor,
		logger:    logger.WithComponent("http"),
		opts:      opts,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Post("/extract-screenshots", s.handleExtractScreenshots)
	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("Shutting down server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("%s %s %d %s", r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Millisecond))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// highlight is a timestamp entry as produced by the video analysis call.
type highlight struct {
	TimestampSeconds float64 `json:"timestamp_seconds"`
	Title            string  `json:"title"`
	Description      string  `json:"description"`
}

// parseTargets accepts either a JSON array of seconds or an array of
// highlight objects.
func parseTargets(raw string) ([]pipeline.Target, error) {
	var seconds []float64
	if err := json.Unmarshal([]byte(raw), &seconds); err == nil {
		return pipeline.NewTargets(seconds...), nil
	}

	var highlights []highlight
	if err := json.Unmarshal([]byte(raw), &highlights); err != nil {
		return nil, err
	}
	targets := make([]pipeline.Target, len(highlights))
	for i, h := range highlights {
		targets[i] = pipeline.Target{
			ID:      i,
			Seconds: h.TimestampSeconds,
			Label:   h.Title,
			Payload: h.Description,
		}
	}
	return targets, nil
}

type screenshotsResponse struct {
	Screenshots []string `json:"screenshots"`
}

func (s *Server) handleExtractScreenshots(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.UploadLimit)

	if err := r.ParseMultipartForm(s.opts.MultipartMemory); err != nil {
		http.Error(w, "File too large or invalid multipart form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("video")
	if err != nil {
		http.Error(w, "Error retrieving video file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	raw := r.FormValue("timestamps")
	if raw == "" {
		http.Error(w, "Missing timestamps parameter", http.StatusBadRequest)
		return
	}
	targets, err := parseTargets(raw)
	if err != nil {
		http.Error(w, "Invalid timestamps JSON", http.StatusBadRequest)
		return
	}

	path, err := s.saveUpload(file)
	if err != nil {
		s.logger.Error("Failed to save upload: %v", err)
		http.Error(w, "Error saving file", http.StatusInternalServerError)
		return
	}
	defer os.Remove(path)

	s.logger.Info("Processing upload, extracting %d screenshots", len(targets))

	result, err := s.extractor.ExtractFile(r.Context(), path, targets)
	if err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrParse):
			http.Error(w, "Unreadable video file", http.StatusUnprocessableEntity)
		case errors.Is(err, orchestrator.ErrConfiguration):
			http.Error(w, "Unsupported video encoding", http.StatusUnprocessableEntity)
		default:
			s.logger.Error("Extraction failed: %v", err)
			http.Error(w, "Error extracting screenshots", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, screenshotsResponse{Screenshots: result.DataURIs()})
}

func (s *Server) saveUpload(src io.Reader) (string, error) {
	f, err := os.CreateTemp(s.opts.TempDir, "upload-*.mp4")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("copy upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return f.Name(), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
