package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/genforge/backend/internal/activity"
	"github.com/genforge/backend/internal/events"
	"github.com/genforge/backend/internal/ledger"
	"github.com/genforge/backend/internal/models"
	"github.com/genforge/backend/internal/providers"
	"github.com/genforge/backend/internal/repository"
	"github.com/genforge/backend/internal/textutil"
)

var (
	// ErrTaskNotFound is returned when a task is bound to another user.
	ErrTaskNotFound = errors.New("task not found")
	// ErrUpstreamAuth is returned when the provider rejected our credentials.
	ErrUpstreamAuth = errors.New("authentication error with generation provider")
	// ErrUpstreamFailed is returned when the provider call failed for any other reason.
	ErrUpstreamFailed = errors.New("generation provider request failed")
)

// ModelRegistry resolves provider model ids to adapters.
type ModelRegistry interface {
	Resolve(modelID string) (*providers.Adapter, error)
}

// ActivityRecorder writes the generation audit trail.
type ActivityRecorder interface {
	RecordStarted(ctx context.Context, userID uuid.UUID, kind models.Kind, modelID, prompt string, credits int) error
	RecordSubmitFailed(ctx context.Context, userID uuid.UUID, kind models.Kind, modelID string, c activity.Classification, creditsRefunded bool) error
	RecordTerminal(ctx context.Context, userID uuid.UUID, kind models.Kind, taskID, action string, metadata map[string]any) (bool, error)
}

// StatusCache holds settled poll results. Get returns nil on a miss.
type StatusCache interface {
	Get(ctx context.Context, userID uuid.UUID, taskID string) (*models.PollResult, error)
	Set(ctx context.Context, userID uuid.UUID, r *models.PollResult) error
}

// SettlementScheduler queues a server-side settlement of a submitted task.
type SettlementScheduler interface {
	ScheduleSettlement(ctx context.Context, b *models.TaskCreditBinding) error
}

type SubmitRequest struct {
	Kind    models.Kind
	ModelID string
	Params  json.RawMessage
}

type SubmitResult struct {
	TaskID           string `json:"taskId"`
	ModelID          string `json:"modelId"`
	CreditsUsed      int    `json:"creditsUsed"`
	RemainingCredits int    `json:"remainingCredits"`
}

type PollRequest struct {
	TaskID  string
	Kind    models.Kind
	ModelID string
}

// GenerationService orchestrates submission, charging, polling and
// settlement of generation tasks. Cache, Events and Scheduler are optional.
type GenerationService struct {
	Registry   ModelRegistry
	Validator  *Validator
	Ledger     Ledger
	Reconciler *Reconciler
	Bindings   BindingStore
	Activity   ActivityRecorder
	Cache      StatusCache
	Events     events.Publisher
	Scheduler  SettlementScheduler
	Logger     *slog.Logger
}

// NewGenerationService wires the required collaborators. Optional ones are
// assigned on the returned value.
func NewGenerationService(
	registry ModelRegistry,
	validator *Validator,
	l Ledger,
	bindings BindingStore,
	recorder ActivityRecorder,
	logger *slog.Logger,
) *GenerationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerationService{
		Registry:   registry,
		Validator:  validator,
		Ledger:     l,
		Reconciler: NewReconciler(l, bindings, logger),
		Bindings:   bindings,
		Activity:   recorder,
		Logger:     logger,
	}
}

// Submit validates, charges, and hands the task to the provider. A provider
// failure after the charge is compensated before returning.
func (s *GenerationService) Submit(ctx context.Context, userID uuid.UUID, req SubmitRequest) (*SubmitResult, error) {
	adapter, params, err := s.prepare(req)
	if err != nil {
		return nil, err
	}
	cost := adapter.Cost(params)

	d, err := s.Ledger.Deduct(ctx, userID, cost, req.Kind, fmt.Sprintf("%s generation: %s...", adapter.ModelID, textutil.Truncate(params.Prompt, 50)))
	if err != nil {
		return nil, err
	}

	if err := s.Activity.RecordStarted(ctx, userID, req.Kind, adapter.ModelID, params.Prompt, d.CreditsDeducted); err != nil {
		s.Logger.Error("record started activity", "user_id", userID, "model_id", adapter.ModelID, "error", err)
	}

	taskID, submitErr := adapter.Submit(ctx, params)
	if submitErr != nil {
		return nil, s.compensateSubmit(ctx, userID, req.Kind, adapter.ModelID, d, submitErr)
	}

	// The provider has the task; a client disconnect must not cancel the
	// binding that makes a later refund possible.
	persistCtx := context.WithoutCancel(ctx)
	binding := &models.TaskCreditBinding{
		TaskID:      taskID,
		CreditLogID: d.LogID,
		UserID:      userID,
		Kind:        req.Kind,
		ModelID:     adapter.ModelID,
	}
	if err := s.Bindings.Create(persistCtx, binding); err != nil {
		s.Logger.Error("store task credit binding", "task_id", taskID, "credit_log_id", d.LogID, "error", err)
	} else if s.Scheduler != nil {
		if err := s.Scheduler.ScheduleSettlement(persistCtx, binding); err != nil {
			s.Logger.Warn("schedule settlement job", "task_id", taskID, "error", err)
		}
	}

	s.Logger.Info("generation submitted", "task_id", taskID, "user_id", userID, "model_id", adapter.ModelID, "credits", d.CreditsDeducted)
	return &SubmitResult{
		TaskID:           taskID,
		ModelID:          adapter.ModelID,
		CreditsUsed:      d.CreditsDeducted,
		RemainingCredits: d.RemainingCredits,
	}, nil
}

// prepare resolves the model and checks params before any side effect.
func (s *GenerationService) prepare(req SubmitRequest) (*providers.Adapter, providers.Params, error) {
	var params providers.Params
	if !req.Kind.Valid() {
		return nil, params, fmt.Errorf("%w: unknown kind %q", providers.ErrInvalidArgument, req.Kind)
	}
	adapter, err := s.Registry.Resolve(req.ModelID)
	if err != nil {
		return nil, params, err
	}
	if adapter.Kind != req.Kind {
		return nil, params, fmt.Errorf("%w: model %s is not a %s model", providers.ErrInvalidArgument, req.ModelID, req.Kind)
	}
	if s.Validator != nil {
		if err := s.Validator.ValidateParams(req.Kind, req.Params); err != nil {
			return nil, params, err
		}
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, params, fmt.Errorf("%w: decode params: %v", providers.ErrInvalidArgument, err)
		}
	}
	if err := adapter.Validate(params); err != nil {
		return nil, params, err
	}
	return adapter, params, nil
}

// compensateSubmit refunds the charge, records the failure and maps the
// provider error onto the caller-facing sentinel.
func (s *GenerationService) compensateSubmit(ctx context.Context, userID uuid.UUID, kind models.Kind, modelID string, d *ledger.Deduction, submitErr error) error {
	// The request context may already be past its deadline.
	ctx = context.WithoutCancel(ctx)
	cls := activity.Classify(submitErr)

	settled, err := s.Reconciler.RefundSubmission(ctx, userID, d, submitErr.Error())
	if err != nil {
		s.Logger.Error("refund after failed submission", "user_id", userID, "credit_log_id", d.LogID, "error", err)
	}
	if err := s.Activity.RecordSubmitFailed(ctx, userID, kind, modelID, cls, settled.Refunded); err != nil {
		s.Logger.Error("record submit failure activity", "user_id", userID, "error", err)
	}
	s.Logger.Warn("generation submission failed",
		"user_id", userID, "model_id", modelID, "reason", cls.Reason, "credits_refunded", settled.Refunded, "error", submitErr)

	if isAuthFailure(submitErr) {
		return fmt.Errorf("%w: %v", ErrUpstreamAuth, submitErr)
	}
	return fmt.Errorf("%w: %v", ErrUpstreamFailed, submitErr)
}

// isAuthFailure trusts the structured status of an UpstreamError; the text
// match only applies to errors without one.
func isAuthFailure(err error) bool {
	var ue *providers.UpstreamError
	if errors.As(err, &ue) {
		return ue.HTTPStatus == http.StatusUnauthorized ||
			ue.HTTPStatus == http.StatusForbidden ||
			ue.ProviderCode == http.StatusUnauthorized
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "api key") || strings.Contains(msg, "authentication") || strings.Contains(msg, "401")
}

// Poll checks the task with its provider, settles it when it reaches a
// terminal state and returns the normalized result.
func (s *GenerationService) Poll(ctx context.Context, userID uuid.UUID, req PollRequest) (*models.PollResult, error) {
	if s.Cache != nil {
		cached, err := s.Cache.Get(ctx, userID, req.TaskID)
		if err != nil {
			s.Logger.Warn("status cache get", "task_id", req.TaskID, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	binding, err := s.Bindings.GetByTaskID(ctx, req.TaskID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		binding = nil
	case err != nil:
		return nil, fmt.Errorf("load binding: %w", err)
	case binding.UserID != userID:
		return nil, ErrTaskNotFound
	}

	kind, modelID := req.Kind, req.ModelID
	if binding != nil {
		if kind == "" {
			kind = binding.Kind
		}
		if modelID == "" {
			modelID = binding.ModelID
		}
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", providers.ErrInvalidArgument, kind)
	}
	adapter, err := s.Registry.Resolve(modelID)
	if err != nil {
		return nil, err
	}
	if adapter.Kind != kind {
		return nil, fmt.Errorf("%w: model %s is not a %s model", providers.ErrInvalidArgument, modelID, kind)
	}

	st, err := adapter.Check(ctx, req.TaskID)
	if err != nil {
		s.Logger.Warn("provider status check failed", "task_id", req.TaskID, "model_id", modelID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFailed, err)
	}

	result := &models.PollResult{
		TaskID:     req.TaskID,
		Status:     st.State,
		ResultURLs: st.ResultURLs,
		IsComplete: st.State.Terminal(),
	}
	if !result.IsComplete {
		return result, nil
	}

	settledCleanly := true
	var settlement Settlement
	if st.State == models.TaskStateFailed {
		result.ErrorMessage = "Generation failed"
		if binding != nil {
			// A refund error must not fail the poll; the next poll retries it.
			settlement, err = s.Reconciler.RefundBinding(ctx, binding, failureReason(st))
			if err != nil {
				settledCleanly = false
				s.Logger.Error("refund failed task", "task_id", req.TaskID, "error", err)
			}
		}
		result.CreditsRefunded = settlement.Refunded
	}

	result.Settled = settledCleanly
	// An unsettled failure is recorded by the poll that completes the refund.
	if settledCleanly {
		s.recordTerminal(ctx, userID, kind, modelID, st, result)
	}

	if s.Validator != nil {
		if err := s.Validator.ValidateResult(kind, result); err != nil {
			s.Logger.Warn("poll result does not match schema", "task_id", req.TaskID, "error", err)
		}
	}
	if s.Cache != nil && settledCleanly {
		if err := s.Cache.Set(ctx, userID, result); err != nil {
			s.Logger.Warn("status cache set", "task_id", req.TaskID, "error", err)
		}
	}
	return result, nil
}

// recordTerminal writes the deduplicated terminal activity and publishes the
// settled event for the poll that wrote it.
func (s *GenerationService) recordTerminal(ctx context.Context, userID uuid.UUID, kind models.Kind, modelID string, st models.GenerationStatus, result *models.PollResult) {
	suffix := models.ActivitySucceeded
	metadata := map[string]any{"modelId": modelID}
	switch {
	case st.State == models.TaskStateSuccess:
		metadata["resultCount"] = len(st.ResultURLs)
	case result.CreditsRefunded:
		suffix = models.ActivityFailedRefunded
		metadata["creditsRefunded"] = true
		metadata["failure"] = activity.ClassifyStatus(st)
	default:
		suffix = models.ActivityFailed
		metadata["creditsRefunded"] = false
		metadata["failure"] = activity.ClassifyStatus(st)
	}

	written, err := s.Activity.RecordTerminal(ctx, userID, kind, result.TaskID, models.ActivityAction(kind, suffix), metadata)
	if err != nil {
		s.Logger.Error("record terminal activity", "task_id", result.TaskID, "error", err)
		return
	}
	if !written || s.Events == nil {
		return
	}
	event := events.GenerationSettled{
		TaskID:          result.TaskID,
		UserID:          userID,
		Kind:            kind,
		ModelID:         modelID,
		Status:          result.Status,
		ResultURLs:      result.ResultURLs,
		CreditsRefunded: result.CreditsRefunded,
	}
	if err := s.Events.PublishSettled(ctx, event); err != nil {
		s.Logger.Warn("publish settled event", "task_id", result.TaskID, "error", err)
	}
}

func failureReason(st models.GenerationStatus) string {
	if st.ErrorMessage != "" {
		return textutil.Truncate(st.ErrorMessage, 100)
	}
	if st.ErrorCode != "" {
		return st.ErrorCode
	}
	return "provider reported failure"
}
