package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/genforge/backend/internal/models"
)

func getRedisAddr() string {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	return addr
}

// newTestCache skips the test when no Redis server is reachable.
func newTestCache(t *testing.T) *StatusCache {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: getRedisAddr()})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not available for testing: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return NewWithClient(client, time.Minute)
}

func TestStatusCache_RoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	user := uuid.New()
	taskID := "cache-" + uuid.NewString()

	got, err := c.Get(ctx, user, taskID)
	if err != nil || got != nil {
		t.Fatalf("miss: got %+v, %v", got, err)
	}

	want := &models.PollResult{TaskID: taskID, Status: models.TaskStateFailed, IsComplete: true, CreditsRefunded: true, Settled: true}
	if err := c.Set(ctx, user, want); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err = c.Get(ctx, user, taskID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.Status != want.Status || !got.CreditsRefunded || !got.Settled {
		t.Errorf("got %+v, want %+v", got, want)
	}

	if other, _ := c.Get(ctx, uuid.New(), taskID); other != nil {
		t.Error("another user must not see the cached result")
	}
}

func TestStatusCache_SkipsNonTerminal(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	user := uuid.New()
	taskID := "cache-" + uuid.NewString()

	if err := c.Set(ctx, user, &models.PollResult{TaskID: taskID, Status: models.TaskStateProcessing}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, _ := c.Get(ctx, user, taskID); got != nil {
		t.Errorf("non-terminal result was cached: %+v", got)
	}
}

func TestStatusCache_SkipsUnsettled(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	user := uuid.New()
	taskID := "cache-" + uuid.NewString()

	failed := &models.PollResult{TaskID: taskID, Status: models.TaskStateFailed, IsComplete: true}
	if err := c.Set(ctx, user, failed); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, _ := c.Get(ctx, user, taskID); got != nil {
		t.Errorf("unsettled failure was cached: %+v", got)
	}
}

func TestKey(t *testing.T) {
	user := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	if got := key(user, "abc"); got != "genstatus:11111111-1111-1111-1111-111111111111:abc" {
		t.Errorf("key: got %s", got)
	}
}
