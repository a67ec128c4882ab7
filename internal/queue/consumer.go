/**
 * Sync Task Consumer for the SIRIM capture worker
 *
 * Runs sync cycles delivered through the asynq queue. One worker processes
 * the queue, and a Redis lock keeps a second process from running a cycle
 * for the same owner at the same time.
 *
 * Outcome mapping:
 * - NoConnection -> retryable error (exponential backoff)
 * - Error        -> terminal (asynq.SkipRetry)
 * - Complete     -> success, even with per-record failures
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adverant/nexus/sirim-worker/internal/errors"
	"github.com/adverant/nexus/sirim-worker/internal/logging"
	"github.com/adverant/nexus/sirim-worker/internal/syncer"
	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// TaskTypeSyncCycle is the asynq task type of a sync cycle
const TaskTypeSyncCycle = "sync:cycle"

// CyclePayload is the task payload of a sync cycle
type CyclePayload struct {
	OwnerID string `json:"ownerId"`
}

// Cycler runs one pull-then-push sync cycle
type Cycler interface {
	RunCycle(ctx context.Context, ownerID string) syncer.Outcome
}

// Locker obtains distributed locks; satisfied by *redislock.Client
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}

// EventPublisher publishes sync events; satisfied by *redis.Client
type EventPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// SyncEvent is published on <queue>:events after every cycle
type SyncEvent struct {
	Event        string `json:"event"`
	OwnerID      string `json:"ownerId"`
	SuccessCount int    `json:"successCount"`
	FailureCount int    `json:"failureCount"`
	Message      string `json:"message,omitempty"`
	Timestamp    string `json:"timestamp"`
}

// BackoffDelay returns an asynq retry delay of base * 2^n, capped at max
func BackoffDelay(base, max time.Duration) asynq.RetryDelayFunc {
	return func(n int, err error, task *asynq.Task) time.Duration {
		if n < 0 {
			n = 0
		}
		if n > 30 {
			return max
		}
		delay := base * time.Duration(1<<uint(n))
		if delay > max || delay <= 0 {
			delay = max
		}
		return delay
	}
}

// cycleHandler processes sync:cycle tasks
type cycleHandler struct {
	cycler       Cycler
	locker       Locker
	events       EventPublisher
	queueName    string
	defaultOwner string
	lockTTL      time.Duration
	logger       *logging.Logger
}

// ProcessTask implements asynq.Handler
func (h *cycleHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload CyclePayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("failed to unmarshal cycle payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	owner := payload.OwnerID
	if owner == "" {
		owner = h.defaultOwner
	}

	// The lock must outlive the cycle
	cycleCtx, cancel := context.WithTimeout(ctx, h.lockTTL)
	defer cancel()

	if h.locker != nil {
		lock, err := h.locker.Obtain(cycleCtx, "lock:sync:"+owner, h.lockTTL, nil)
		if err == redislock.ErrNotObtained {
			h.logger.Info("Sync cycle already running elsewhere, skipping", "owner_id", owner)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to obtain sync lock: %w", err)
		}
		defer func() {
			if rerr := lock.Release(context.Background()); rerr != nil && rerr != redislock.ErrLockNotHeld {
				h.logger.Warn("Failed to release sync lock", "owner_id", owner, "error", rerr)
			}
		}()
	}

	startTime := time.Now()
	outcome := h.cycler.RunCycle(cycleCtx, owner)
	h.logger.Info("Sync task finished",
		"owner_id", owner,
		"outcome", outcome.String(),
		"duration", time.Since(startTime).String())

	h.publish(ctx, owner, outcome)
	return outcomeError(outcome)
}

// outcomeError maps a cycle outcome onto asynq's retry semantics
func outcomeError(o syncer.Outcome) error {
	switch o.Kind {
	case syncer.KindNoConnection:
		return fmt.Errorf("sync deferred: %w", errors.ErrNoConnection)
	case syncer.KindError:
		return fmt.Errorf("sync failed: %s: %w", o.Message, asynq.SkipRetry)
	default:
		return nil
	}
}

func (h *cycleHandler) publish(ctx context.Context, owner string, o syncer.Outcome) {
	if h.events == nil {
		return
	}
	event := SyncEvent{
		Event:        "sync:" + o.Kind.String(),
		OwnerID:      owner,
		SuccessCount: o.SuccessCount,
		FailureCount: o.FailureCount,
		Message:      o.Message,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("Failed to encode sync event", "error", err)
		return
	}
	if err := h.events.Publish(ctx, fmt.Sprintf("%s:events", h.queueName), data).Err(); err != nil {
		h.logger.Warn("Failed to publish sync event", "error", err)
	}
}

// asynqLogger routes asynq's internal logging through the worker logger
type asynqLogger struct{ l *logging.Logger }

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal(fmt.Sprint(args...)) }
