package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/genforge/backend/internal/middleware"
	"github.com/genforge/backend/internal/models"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type BalanceReader interface {
	Balance(ctx context.Context, userID uuid.UUID) (*models.UsageAccount, error)
}

type CreditLogLister interface {
	ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.CreditLog, error)
}

type ActivityLister interface {
	ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.ActivityLog, error)
}

// Handler serves the read-only account views. Routes are wrapped in
// middleware.UserAuth.
type Handler struct {
	balances BalanceReader
	credits  CreditLogLister
	activity ActivityLister
	log      *slog.Logger
}

func NewHandler(balances BalanceReader, credits CreditLogLister, activity ActivityLister, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{balances: balances, credits: credits, activity: activity, log: log}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// page reads limit and offset, clamping limit to maxPageSize.
func page(r *http.Request) (limit, offset int) {
	limit, offset = defaultPageSize, 0
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = min(v, maxPageSize)
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

// GET /api/v1/credits
func (h *Handler) GetCredits(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
		return
	}
	usage, err := h.balances.Balance(r.Context(), userID)
	if err != nil {
		h.log.Error("get balance failed", "user_id", userID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"one_time_balance":     usage.OneTimeBalance,
		"subscription_balance": usage.SubscriptionBalance,
		"total":                usage.Total(),
	})
}

// GET /api/v1/credit-logs
func (h *Handler) ListCreditLogs(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
		return
	}
	limit, offset := page(r)
	entries, err := h.credits.ListByUserID(r.Context(), userID, limit, offset)
	if err != nil {
		h.log.Error("list credit logs failed", "user_id", userID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*models.CreditLog{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GET /api/v1/activity
func (h *Handler) ListActivity(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
		return
	}
	limit, offset := page(r)
	entries, err := h.activity.ListByUserID(r.Context(), userID, limit, offset)
	if err != nil {
		h.log.Error("list activity failed", "user_id", userID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*models.ActivityLog{}
	}
	writeJSON(w, http.StatusOK, entries)
}
