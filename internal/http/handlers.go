package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"slideshow/internal/config"
	"slideshow/internal/image_list"
	"slideshow/internal/viewer"
)

// Library lists the images the slideshow can show
type Library interface {
	GetImages() []image_list.ImageInfo
	GetImageByID(id string) *image_list.ImageInfo
}

// Presenter is the viewer as seen from HTTP
type Presenter interface {
	Control(ctx context.Context, action string) error
	Show(ctx context.Context, id string) error
	Resize(ctx context.Context, width, height int) error
	State(ctx context.Context) (viewer.State, error)
	Frame(ctx context.Context) (viewer.Frame, bool, error)
}

type Handlers struct {
	config    *config.Config
	logger    *zap.Logger
	library   Library
	presenter Presenter
}

func New(config *config.Config, logger *zap.Logger, library Library, presenter Presenter) *Handlers {
	return &Handlers{
		config:    config,
		logger:    logger,
		library:   library,
		presenter: presenter,
	}
}

// Routes returns the full handler chain
func (h *Handlers) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/images", h.HandleImages)
	mux.HandleFunc("/api/state", h.HandleState)
	mux.HandleFunc("/api/frame", h.HandleFrame)
	mux.HandleFunc("/api/control/", h.HandleControl)
	mux.HandleFunc("/api/show", h.HandleShow)
	mux.HandleFunc("/api/viewport", h.HandleViewport)
	mux.HandleFunc("/healthz", h.HandleHealthz)

	return h.CORSMiddleware(h.RequestLoggingMiddleware(mux))
}

func (h *Handlers) RequestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		start := time.Now()

		ip := h.extractIP(r)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		wrapped.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		bytes := wrapped.bytesWritten

		h.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("ip", ip),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Int64("bytes", bytes),
			zap.Int64("duration_ms", duration.Milliseconds()),
			zap.String("user_agent", r.UserAgent()),
		)
	})
}

func (h *Handlers) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigin := ""

		if h.config.AllowedOrigin != "" {
			allowedOrigin = h.config.AllowedOrigin
		} else {
			host := r.Host
			if origin != "" && (strings.HasPrefix(origin, "http://"+host) || strings.HasPrefix(origin, "https://"+host)) {
				allowedOrigin = origin
			} else if origin == "" {
				allowedOrigin = "*"
			}
		}

		if allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Expose-Headers", "X-Quality-Tier, X-Source-Id, X-Request-Id")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) HandleImages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	images := h.library.GetImages()
	if images == nil {
		images = []image_list.ImageInfo{}
	}
	writeJSON(w, images)
}

func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.writeState(w, r)
}

func (h *Handlers) writeState(w http.ResponseWriter, r *http.Request) {
	state, err := h.presenter.State(r.Context())
	if err != nil {
		h.presenterError(w, err)
		return
	}
	writeJSON(w, state)
}

// HandleFrame serves the rendition currently on screen
func (h *Handlers) HandleFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	frame, ok, err := h.presenter.Frame(r.Context())
	if err != nil {
		h.presenterError(w, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	entry := frame.Entry
	w.Header().Set("Content-Type", contentType(entry.Format))
	w.Header().Set("Content-Length", strconv.Itoa(len(entry.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Quality-Tier", entry.Tier.String())
	w.Header().Set("X-Source-Id", frame.Key.SourceID)
	w.Header().Set("X-Image-Size", fmt.Sprintf("%dx%d", entry.Width, entry.Height))

	// HEAD request doesn't send body
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	w.Write(entry.Data)
}

// HandleControl handles POST /api/control/{action}
func (h *Handlers) HandleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	action := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/control/"), "/")
	if action == "" {
		http.Error(w, "Missing action", http.StatusBadRequest)
		return
	}

	if err := h.presenter.Control(r.Context(), action); err != nil {
		h.presenterError(w, err)
		return
	}
	h.writeState(w, r)
}

func (h *Handlers) HandleShow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Missing id", http.StatusBadRequest)
		return
	}
	if h.library.GetImageByID(id) == nil {
		http.Error(w, "Image not found", http.StatusNotFound)
		return
	}

	if err := h.presenter.Show(r.Context(), id); err != nil {
		h.presenterError(w, err)
		return
	}
	h.writeState(w, r)
}

func (h *Handlers) HandleViewport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	width, err := strconv.Atoi(r.URL.Query().Get("w"))
	if err != nil {
		http.Error(w, "Invalid width", http.StatusBadRequest)
		return
	}
	height, err := strconv.Atoi(r.URL.Query().Get("h"))
	if err != nil {
		http.Error(w, "Invalid height", http.StatusBadRequest)
		return
	}

	if err := h.presenter.Resize(r.Context(), width, height); err != nil {
		if r.Context().Err() == nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.presenterError(w, err)
		return
	}
	h.writeState(w, r)
}

func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *Handlers) presenterError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, viewer.ErrUnknownAction):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "Viewer unavailable", http.StatusServiceUnavailable)
	default:
		h.logger.Error("Viewer request failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func contentType(format string) string {
	switch format {
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// Not for real production use due to potential spoofing
// but it's fine for a demo
func (h *Handlers) extractIP(r *http.Request) string {
	ip := r.Header.Get("X-Real-Ip")
	if ip != "" {
		return strings.Split(ip, ":")[0]
	}

	addr := r.RemoteAddr
	if addr != "" {
		return strings.Split(addr, ":")[0]
	}

	return "unknown"
}

type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}
