package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adverant/nexus/sirim-worker/internal/errors"
	"github.com/adverant/nexus/sirim-worker/internal/logging"
	"github.com/hibiken/asynq"
)

// SchedulerConfig holds sync scheduling configuration
type SchedulerConfig struct {
	RedisURL    string
	QueueName   string
	OwnerID     string
	Interval    time.Duration
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	MaxRetry    int
	LockTTL     time.Duration

	// PollInterval is how often due retries are moved back to the queue.
	// Zero keeps the asynq default.
	PollInterval time.Duration

	Cycler Cycler
	Locker Locker         // optional
	Events EventPublisher // optional
}

func (c *SchedulerConfig) applyDefaults() {
	if c.QueueName == "" {
		c.QueueName = "sirim:sync"
	}
	if c.Interval <= 0 {
		c.Interval = 15 * time.Minute
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 30 * time.Second
	}
	if c.MaxBackoff < c.BaseBackoff {
		c.MaxBackoff = 10 * time.Minute
	}
	if c.MaxRetry <= 0 {
		c.MaxRetry = 8
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 5 * time.Minute
	}
}

// Scheduler runs sync cycles periodically and on demand. At most one cycle
// is queued per owner at a time; a trigger while one is pending coalesces
// into it.
type Scheduler struct {
	client    *asynq.Client
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	inspector *asynq.Inspector
	config    *SchedulerConfig
	logger    *logging.Logger
}

// NewScheduler creates a new sync scheduler
func NewScheduler(cfg *SchedulerConfig) (*Scheduler, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.Cycler == nil {
		return nil, fmt.Errorf("Cycler is required")
	}
	cfg.applyDefaults()

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := logging.NewLogger("SyncScheduler")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			// Cycles for the local store never overlap
			Concurrency: 1,
			Queues: map[string]int{
				cfg.QueueName: 1,
			},
			// Offline cycles count as failures so the retry counter, and
			// with it the backoff, advances until MaxRetry archives the task
			RetryDelayFunc:           BackoffDelay(cfg.BaseBackoff, cfg.MaxBackoff),
			DelayedTaskCheckInterval: cfg.PollInterval,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Warn("Sync task error",
					"type", task.Type(),
					"retried", retried,
					"max_retry", maxRetry,
					"error", err)
			}),
			Logger: asynqLogger{l: logger},
		},
	)

	s := &Scheduler{
		client:    asynq.NewClient(redisOpt),
		server:    server,
		mux:       asynq.NewServeMux(),
		inspector: asynq.NewInspector(redisOpt),
		config:    cfg,
		logger:    logger,
	}
	s.scheduler = asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: time.UTC,
		Logger:   asynqLogger{l: logger},
		PreEnqueueFunc: func(task *asynq.Task, opts []asynq.Option) {
			if _, err := s.releaseArchived(task.Payload()); err != nil {
				logger.Warn("Failed to release archived sync cycle", "error", err)
			}
		},
	})

	s.mux.Handle(TaskTypeSyncCycle, &cycleHandler{
		cycler:       cfg.Cycler,
		locker:       cfg.Locker,
		events:       cfg.Events,
		queueName:    cfg.QueueName,
		defaultOwner: cfg.OwnerID,
		lockTTL:      cfg.LockTTL,
		logger:       logger,
	})
	return s, nil
}

func (s *Scheduler) newTask(ownerID string) (*asynq.Task, []asynq.Option, error) {
	payload, err := json.Marshal(CyclePayload{OwnerID: ownerID})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal cycle payload: %w", err)
	}
	opts := []asynq.Option{
		asynq.Queue(s.config.QueueName),
		asynq.MaxRetry(s.config.MaxRetry),
		asynq.Timeout(s.config.LockTTL),
		asynq.Unique(s.config.Interval),
	}
	return asynq.NewTask(TaskTypeSyncCycle, payload), opts, nil
}

// Start registers the periodic cycle and starts processing
func (s *Scheduler) Start(ctx context.Context) error {
	task, opts, err := s.newTask(s.config.OwnerID)
	if err != nil {
		return err
	}
	cronSpec := fmt.Sprintf("@every %s", s.config.Interval)
	entryID, err := s.scheduler.Register(cronSpec, task, opts...)
	if err != nil {
		return fmt.Errorf("failed to register periodic sync: %w", err)
	}

	if err := s.server.Start(s.mux); err != nil {
		return fmt.Errorf("failed to start sync consumer: %w", err)
	}
	if err := s.scheduler.Start(); err != nil {
		s.server.Shutdown()
		return fmt.Errorf("failed to start periodic scheduler: %w", err)
	}

	s.logger.Info("Sync scheduler started",
		"queue", s.config.QueueName,
		"interval", s.config.Interval.String(),
		"entry_id", entryID)
	return nil
}

// TriggerNow enqueues an immediate cycle for ownerID. A cycle that is
// already queued absorbs the trigger.
func (s *Scheduler) TriggerNow(ctx context.Context, ownerID string) error {
	if ownerID == "" {
		ownerID = s.config.OwnerID
	}
	task, opts, err := s.newTask(ownerID)
	if err != nil {
		return err
	}
	info, err := s.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		released, rerr := s.releaseArchived(task.Payload())
		if rerr != nil {
			return fmt.Errorf("failed to inspect sync queue: %w", rerr)
		}
		if released == 0 {
			s.logger.Debug("Sync already pending, trigger coalesced", "owner_id", ownerID)
			return nil
		}
		info, err = s.client.EnqueueContext(ctx, task, opts...)
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue sync: %w", err)
	}
	s.logger.Info("Sync triggered", "owner_id", ownerID, "task_id", info.ID)
	return nil
}

// releaseArchived deletes archived cycles carrying payload. An archived
// task keeps its uniqueness lock until the TTL runs out, so a trigger
// would otherwise be treated as coalesced while nothing is queued.
func (s *Scheduler) releaseArchived(payload []byte) (int, error) {
	archived, err := s.inspector.ListArchivedTasks(s.config.QueueName, asynq.PageSize(100))
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	released := 0
	for _, info := range archived {
		if info.Type != TaskTypeSyncCycle || !bytes.Equal(info.Payload, payload) {
			continue
		}
		if err := s.inspector.DeleteTask(s.config.QueueName, info.ID); err != nil {
			if errors.Is(err, asynq.ErrTaskNotFound) {
				continue
			}
			return released, err
		}
		s.logger.Warn("Released archived sync cycle",
			"task_id", info.ID,
			"retried", info.Retried,
			"last_error", info.LastErr)
		released++
	}
	return released, nil
}

// Stop stops the scheduler gracefully
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.Info("Stopping sync scheduler...")
	s.scheduler.Shutdown()
	s.server.Shutdown()
	if err := s.inspector.Close(); err != nil {
		return fmt.Errorf("failed to close inspector: %w", err)
	}
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("failed to close client: %w", err)
	}
	s.logger.Info("Sync scheduler stopped")
	return nil
}

// GetStatistics returns scheduler statistics
func (s *Scheduler) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"queue":    s.config.QueueName,
		"interval": s.config.Interval.String(),
		"maxRetry": s.config.MaxRetry,
	}
}
