package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/genforge/backend/internal/ledger"
	"github.com/genforge/backend/internal/middleware"
	"github.com/genforge/backend/internal/models"
	"github.com/genforge/backend/internal/providers"
	"github.com/genforge/backend/internal/services"
)

// Generator is the orchestration service behind the generation endpoints.
type Generator interface {
	Submit(ctx context.Context, userID uuid.UUID, req services.SubmitRequest) (*services.SubmitResult, error)
	Poll(ctx context.Context, userID uuid.UUID, req services.PollRequest) (*models.PollResult, error)
}

// ModelCatalog lists the supported provider models.
type ModelCatalog interface {
	Models() []providers.ModelInfo
}

// GenerationHandler serves /v1/generations and /v1/models.
type GenerationHandler struct {
	Service  Generator
	Catalog  ModelCatalog
	Validate *validator.Validate
	Logger   *slog.Logger
}

func NewGenerationHandler(svc Generator, catalog ModelCatalog, validate *validator.Validate, logger *slog.Logger) *GenerationHandler {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerationHandler{Service: svc, Catalog: catalog, Validate: validate, Logger: logger}
}

// --- POST /v1/generations ---

type submitRequest struct {
	Kind    string          `json:"kind" validate:"required,oneof=image video music"`
	ModelID string          `json:"modelId" validate:"required,max=100"`
	Params  json.RawMessage `json:"params" validate:"required"`
}

// Submit handles POST /v1/generations.
// Auth (middleware) -> Decode -> Validate DTO -> Charge and submit -> 200.
func (h *GenerationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req submitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request: " + err.Error()})
		return
	}

	res, err := h.Service.Submit(r.Context(), userID, services.SubmitRequest{
		Kind:    models.Kind(req.Kind),
		ModelID: req.ModelID,
		Params:  req.Params,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- GET /v1/generations/{taskId} ---

type pollQuery struct {
	TaskID  string `validate:"required,max=200"`
	Kind    string `validate:"omitempty,oneof=image video music"`
	ModelID string `validate:"omitempty,max=100"`
}

// Poll handles GET /v1/generations/{taskId}?kind=&modelId=. kind and
// modelId may be omitted for tasks submitted through this service.
func (h *GenerationHandler) Poll(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	q := pollQuery{
		TaskID:  r.PathValue("taskId"),
		Kind:    r.URL.Query().Get("kind"),
		ModelID: r.URL.Query().Get("modelId"),
	}
	if err := h.Validate.Struct(q); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request: " + err.Error()})
		return
	}

	res, err := h.Service.Poll(r.Context(), userID, services.PollRequest{
		TaskID:  q.TaskID,
		Kind:    models.Kind(q.Kind),
		ModelID: q.ModelID,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- GET /v1/models ---

// ListModels handles GET /v1/models (public, no auth).
func (h *GenerationHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	list := h.Catalog.Models()
	if kind := r.URL.Query().Get("kind"); kind != "" {
		filtered := list[:0:0]
		for _, m := range list {
			if string(m.Kind) == kind {
				filtered = append(filtered, m)
			}
		}
		list = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": list})
}

// --- helpers ---

// writeServiceError maps service errors to status codes. Provider detail is
// logged, never returned.
func (h *GenerationHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientCredits):
		http.Error(w, `{"error":"Insufficient credits"}`, http.StatusBadRequest)
	case errors.Is(err, services.ErrValidation),
		errors.Is(err, providers.ErrInvalidArgument),
		errors.Is(err, providers.ErrUnknownModel):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, services.ErrTaskNotFound):
		http.Error(w, `{"error":"task not found"}`, http.StatusNotFound)
	case errors.Is(err, services.ErrUpstreamAuth):
		h.Logger.Error("provider rejected credentials", "error", err)
		http.Error(w, `{"error":"Authentication error with generation provider"}`, http.StatusUnauthorized)
	case errors.Is(err, services.ErrUpstreamFailed):
		h.Logger.Warn("provider request failed", "error", err)
		http.Error(w, `{"error":"Generation request failed"}`, http.StatusInternalServerError)
	default:
		h.Logger.Error("generation request", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
