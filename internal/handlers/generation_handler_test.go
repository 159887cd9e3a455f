package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/genforge/backend/internal/ledger"
	"github.com/genforge/backend/internal/middleware"
	"github.com/genforge/backend/internal/models"
	"github.com/genforge/backend/internal/providers"
	"github.com/genforge/backend/internal/services"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockGenerator struct {
	submitReq services.SubmitRequest
	pollReq   services.PollRequest
	userID    uuid.UUID
	submitRes *services.SubmitResult
	pollRes   *models.PollResult
	err       error
}

func (m *mockGenerator) Submit(_ context.Context, userID uuid.UUID, req services.SubmitRequest) (*services.SubmitResult, error) {
	m.userID, m.submitReq = userID, req
	return m.submitRes, m.err
}

func (m *mockGenerator) Poll(_ context.Context, userID uuid.UUID, req services.PollRequest) (*models.PollResult, error) {
	m.userID, m.pollReq = userID, req
	return m.pollRes, m.err
}

type staticCatalog []providers.ModelInfo

func (c staticCatalog) Models() []providers.ModelInfo { return c }

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestHandler() (*GenerationHandler, *mockGenerator) {
	gen := &mockGenerator{}
	catalog := staticCatalog{
		{ID: "google/nano-banana", Name: "Nano Banana", Kind: models.KindImage, BaseCredits: 5},
		{ID: "V5", Name: "Suno V5", Kind: models.KindMusic, BaseCredits: 35},
	}
	return NewGenerationHandler(gen, catalog, nil, slog.Default()), gen
}

func withUser(r *http.Request, userID uuid.UUID) *http.Request {
	return r.WithContext(middleware.WithUserID(r.Context(), userID))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not JSON: %q", rec.Body.String())
	}
	return body["error"]
}

// =====================================================================
// POST /v1/generations
// =====================================================================

func TestSubmit_Success(t *testing.T) {
	h, gen := newTestHandler()
	gen.submitRes = &services.SubmitResult{TaskID: "task-1", ModelID: "google/nano-banana", CreditsUsed: 5, RemainingCredits: 95}
	user := uuid.New()

	body := `{"kind":"image","modelId":"google/nano-banana","params":{"prompt":"a fox"}}`
	req := withUser(httptest.NewRequest(http.MethodPost, "/v1/generations", strings.NewReader(body)), user)
	rec := httptest.NewRecorder()
	h.Submit(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res services.SubmitResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.TaskID != "task-1" || res.CreditsUsed != 5 || res.RemainingCredits != 95 {
		t.Errorf("response: %+v", res)
	}
	if gen.userID != user || gen.submitReq.Kind != models.KindImage || string(gen.submitReq.Params) != `{"prompt":"a fox"}` {
		t.Errorf("service got user %s req %+v", gen.userID, gen.submitReq)
	}
}

func TestSubmit_RejectsBadRequests(t *testing.T) {
	cases := map[string]string{
		"invalid json":  `{"kind":`,
		"missing kind":  `{"modelId":"V5","params":{}}`,
		"unknown kind":  `{"kind":"hologram","modelId":"V5","params":{}}`,
		"missing model": `{"kind":"music","params":{}}`,
		"no params":     `{"kind":"music","modelId":"V5"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			h, gen := newTestHandler()
			req := withUser(httptest.NewRequest(http.MethodPost, "/v1/generations", strings.NewReader(body)), uuid.New())
			rec := httptest.NewRecorder()
			h.Submit(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
			if gen.userID != uuid.Nil {
				t.Error("service called for an invalid request")
			}
		})
	}
}

func TestSubmit_Unauthenticated(t *testing.T) {
	h, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/v1/generations", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.Submit(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestSubmit_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{name: "insufficient credits", err: ledger.ErrInsufficientCredits, wantStatus: http.StatusBadRequest, wantMsg: "Insufficient credits"},
		{name: "schema", err: fmt.Errorf("%w: prompt is required", services.ErrValidation), wantStatus: http.StatusBadRequest},
		{name: "invalid argument", err: fmt.Errorf("%w: bad aspect", providers.ErrInvalidArgument), wantStatus: http.StatusBadRequest},
		{name: "unknown model", err: fmt.Errorf("%w: dall-e-9", providers.ErrUnknownModel), wantStatus: http.StatusBadRequest},
		{name: "upstream auth", err: fmt.Errorf("%w: 401 invalid key sk-123", services.ErrUpstreamAuth), wantStatus: http.StatusUnauthorized, wantMsg: "Authentication error with generation provider"},
		{name: "upstream failed", err: fmt.Errorf("%w: raw provider body", services.ErrUpstreamFailed), wantStatus: http.StatusInternalServerError, wantMsg: "Generation request failed"},
		{name: "unexpected", err: errors.New("connection reset"), wantStatus: http.StatusInternalServerError, wantMsg: "internal error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, gen := newTestHandler()
			gen.err = tc.err

			body := `{"kind":"image","modelId":"google/nano-banana","params":{"prompt":"x"}}`
			req := withUser(httptest.NewRequest(http.MethodPost, "/v1/generations", strings.NewReader(body)), uuid.New())
			rec := httptest.NewRecorder()
			h.Submit(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("expected %d, got %d", tc.wantStatus, rec.Code)
			}
			msg := decodeError(t, rec)
			if tc.wantMsg != "" && msg != tc.wantMsg {
				t.Errorf("message: got %q, want %q", msg, tc.wantMsg)
			}
			if strings.Contains(msg, "sk-123") || strings.Contains(msg, "raw provider body") {
				t.Errorf("provider detail leaked: %q", msg)
			}
		})
	}
}

// =====================================================================
// GET /v1/generations/{taskId}
// =====================================================================

func TestPoll_Success(t *testing.T) {
	h, gen := newTestHandler()
	gen.pollRes = &models.PollResult{TaskID: "task-1", Status: models.TaskStateFailed, IsComplete: true, CreditsRefunded: true}
	user := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/v1/generations/task-1?kind=video&modelId=veo-3.1-fast", nil)
	req.SetPathValue("taskId", "task-1")
	req = withUser(req, user)
	rec := httptest.NewRecorder()
	h.Poll(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res models.PollResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Status != models.TaskStateFailed || !res.CreditsRefunded || !res.IsComplete {
		t.Errorf("response: %+v", res)
	}
	want := services.PollRequest{TaskID: "task-1", Kind: models.KindVideo, ModelID: "veo-3.1-fast"}
	if gen.pollReq != want || gen.userID != user {
		t.Errorf("service got %+v for %s", gen.pollReq, gen.userID)
	}
}

func TestPoll_Errors(t *testing.T) {
	cases := []struct {
		name       string
		query      string
		err        error
		wantStatus int
	}{
		{name: "bad kind", query: "?kind=hologram", wantStatus: http.StatusBadRequest},
		{name: "not owner", err: services.ErrTaskNotFound, wantStatus: http.StatusNotFound},
		{name: "provider down", err: services.ErrUpstreamFailed, wantStatus: http.StatusInternalServerError},
		{name: "unknown model", query: "?modelId=nope", err: providers.ErrUnknownModel, wantStatus: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, gen := newTestHandler()
			gen.err = tc.err

			req := httptest.NewRequest(http.MethodGet, "/v1/generations/task-1"+tc.query, nil)
			req.SetPathValue("taskId", "task-1")
			req = withUser(req, uuid.New())
			rec := httptest.NewRecorder()
			h.Poll(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("expected %d, got %d", tc.wantStatus, rec.Code)
			}
		})
	}
}

// =====================================================================
// GET /v1/models
// =====================================================================

func TestListModels(t *testing.T) {
	h, _ := newTestHandler()

	for query, want := range map[string]int{"": 2, "?kind=music": 1, "?kind=video": 0} {
		rec := httptest.NewRecorder()
		h.ListModels(rec, httptest.NewRequest(http.MethodGet, "/v1/models"+query, nil))

		var body struct {
			Models []providers.ModelInfo `json:"models"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.Models) != want {
			t.Errorf("%q: got %d models, want %d", query, len(body.Models), want)
		}
	}
}
