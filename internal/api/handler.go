package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/buildconf/internal/buildconfig"
	"github.com/eugenenazirov/buildconf/internal/storage"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// Handler wires the project store and resolver into HTTP handlers.
type Handler struct {
	store       storage.ProjectStore
	defaultMode buildconfig.Mode
	logger      *zap.Logger

	clock func() time.Time

	mu               sync.RWMutex
	projectUpdatedAt time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithDefaultMode sets the mode used when a request does not name one.
func WithDefaultMode(mode buildconfig.Mode) HandlerOption {
	return func(h *Handler) {
		h.defaultMode = mode
	}
}

// WithHandlerLogger attaches a logger for resolve diagnostics.
func WithHandlerLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(store storage.ProjectStore, opts ...HandlerOption) *Handler {
	h := &Handler{
		store:       store,
		defaultMode: buildconfig.Production,
		logger:      zap.NewNop(),
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.projectUpdatedAt = h.clock()
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	mode := h.defaultMode
	if raw := strings.TrimSpace(query.Get("mode")); raw != "" {
		mode = buildconfig.ParseMode(raw)
	}

	format := strings.ToLower(strings.TrimSpace(query.Get("format")))
	if format == "" {
		format = formatJSON
	}
	if format != formatJSON && format != formatYAML {
		writeError(w, http.StatusBadRequest, "Invalid request", "format must be json or yaml")
		return
	}

	project, err := h.store.GetProject()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	cfg := buildconfig.New(mode, project).Resolve()
	fingerprint, err := cfg.Fingerprint()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	h.logger.Debug("configuration resolved",
		zap.String("mode", string(mode)),
		zap.String("fingerprint", fingerprint),
		zap.Int("rules", len(cfg.Module.Rules)),
		zap.Int("plugins", len(cfg.Plugins)),
		zap.String("request_id", requestIDFromContext(r.Context())),
	)

	// Each representation carries its own strong validator.
	etag := `"` + fingerprint + "-" + format + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("X-Build-Mode", string(mode))
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	if format == formatYAML {
		writeYAML(w, http.StatusOK, cfg)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) handleGetProject(w http.ResponseWriter, r *http.Request) {
	_ = r
	project, err := h.store.GetProject()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	resp := projectResponse{
		Project:   project,
		UpdatedAt: h.currentProjectUpdatedAt(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePutProject(w http.ResponseWriter, r *http.Request) {
	var req buildconfig.Project
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}

	if req.Root == "" {
		current, err := h.store.GetProject()
		if err != nil {
			writeInternalError(w, err)
			return
		}
		req.Root = current.Root
	}
	if !filepath.IsAbs(req.Root) {
		writeError(w, http.StatusBadRequest, "Invalid project", "root must be an absolute path",
			"Omit root to keep the current project root")
		return
	}

	if err := h.store.SetProject(req); err != nil {
		if errors.Is(err, buildconfig.ErrInvalidProject) {
			writeError(w, http.StatusBadRequest, "Invalid project", err.Error())
			return
		}
		writeInternalError(w, err)
		return
	}

	h.markProjectUpdated()

	project, err := h.store.GetProject()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	resp := projectResponse{
		Project:   project,
		UpdatedAt: h.currentProjectUpdatedAt(),
		Message:   "Project updated successfully",
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) currentProjectUpdatedAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.projectUpdatedAt
}

func (h *Handler) markProjectUpdated() {
	h.mu.Lock()
	h.projectUpdatedAt = h.clock()
	h.mu.Unlock()
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type projectResponse struct {
	Project   buildconfig.Project `json:"project"`
	UpdatedAt time.Time           `json:"updatedAt"`
	Message   string              `json:"message,omitempty"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeYAML(w http.ResponseWriter, status int, payload any) {
	data, err := yaml.Marshal(payload)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	if status != 0 {
		w.WriteHeader(status)
	}
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
