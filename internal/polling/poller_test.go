package polling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/genforge/backend/internal/models"
)

type scripted struct {
	mu      sync.Mutex
	calls   int
	results []models.TaskState
	errs    map[int]error
}

func (s *scripted) check(context.Context) (models.TaskState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err, ok := s.errs[s.calls]; ok {
		return "", err
	}
	if s.calls <= len(s.results) {
		return s.results[s.calls-1], nil
	}
	return models.TaskStateProcessing, nil
}

func (s *scripted) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func fastOptions(attempts int) Options {
	return Options{Interval: time.Millisecond, MaxAttempts: attempts}
}

func newPoller(s *scripted, opts Options) *Poller[models.TaskState] {
	return &Poller[models.TaskState]{
		Options: opts,
		Check:   s.check,
		Done:    models.TaskState.Terminal,
	}
}

func TestRun_ReturnsTerminalResult(t *testing.T) {
	s := &scripted{results: []models.TaskState{models.TaskStatePending, models.TaskStateProcessing, models.TaskStateSuccess}}
	var progress []int
	p := newPoller(s, fastOptions(10))
	p.OnProgress = func(attempt int, _ models.TaskState, _ error) { progress = append(progress, attempt) }

	got, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != models.TaskStateSuccess {
		t.Errorf("got %s, want success", got)
	}
	if s.count() != 3 || len(progress) != 3 {
		t.Errorf("calls=%d progress=%v, want 3 each", s.count(), progress)
	}
}

func TestRun_TransientErrorIsTolerated(t *testing.T) {
	s := &scripted{
		results: []models.TaskState{models.TaskStateProcessing, models.TaskStateProcessing, models.TaskStateFailed},
		errs:    map[int]error{2: errors.New("connection reset")},
	}
	var sawErr bool
	p := newPoller(s, fastOptions(5))
	p.OnProgress = func(_ int, _ models.TaskState, err error) {
		if err != nil {
			sawErr = true
		}
	}

	got, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != models.TaskStateFailed {
		t.Errorf("got %s, want failed", got)
	}
	if !sawErr {
		t.Error("transient error should be reported to OnProgress")
	}
}

func TestRun_ErrorOnLastAttemptIsReturned(t *testing.T) {
	upstream := errors.New("502 bad gateway")
	s := &scripted{errs: map[int]error{3: upstream}}
	p := newPoller(s, fastOptions(3))

	_, err := p.Run(context.Background())
	if !errors.Is(err, upstream) {
		t.Fatalf("expected wrapped upstream error, got %v", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("last-attempt error must not be reported as a timeout")
	}
}

func TestRun_ExhaustionReturnsErrTimeout(t *testing.T) {
	s := &scripted{}
	p := newPoller(s, fastOptions(4))

	_, err := p.Run(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if s.count() != 4 {
		t.Errorf("calls: got %d, want 4", s.count())
	}
}

func TestRun_GracePeriodDelaysFirstCheck(t *testing.T) {
	s := &scripted{results: []models.TaskState{models.TaskStateSuccess}}
	p := newPoller(s, Options{Interval: time.Millisecond, MaxAttempts: 1, GracePeriod: 30 * time.Millisecond})

	start := time.Now()
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("first check after %v, want >= 30ms", elapsed)
	}
}

func TestRun_CancellationStopsPolling(t *testing.T) {
	s := &scripted{}
	p := newPoller(s, Options{Interval: time.Hour, MaxAttempts: 10})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.Run(ctx)
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for s.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	if s.count() != 1 {
		t.Errorf("calls after cancel: got %d, want 1", s.count())
	}
}

func TestDefaultOptions(t *testing.T) {
	cases := map[models.Kind]Options{
		models.KindImage: {Interval: 5 * time.Second, MaxAttempts: 60, GracePeriod: DefaultGracePeriod},
		models.KindVideo: {Interval: 15 * time.Second, MaxAttempts: 60, GracePeriod: DefaultGracePeriod},
		models.KindMusic: {Interval: 10 * time.Second, MaxAttempts: 36, GracePeriod: DefaultGracePeriod},
	}
	for kind, want := range cases {
		if got := DefaultOptions(kind); got != want {
			t.Errorf("%s: got %+v, want %+v", kind, got, want)
		}
	}
}
