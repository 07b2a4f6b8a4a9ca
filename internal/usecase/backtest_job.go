package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"OptSignal/internal/domain/models"
	domrepo "OptSignal/internal/domain/repository"
	"OptSignal/pkg/cache"
	applogger "OptSignal/pkg/logger"
	"OptSignal/pkg/queue"

	"github.com/google/uuid"
)

const (
	// BacktestJobType is the queue message type of asynchronous backtests.
	BacktestJobType = "backtest"

	jobLockTTL = 10 * time.Minute
)

// Enqueuer is the producing side of the job queue.
type Enqueuer interface {
	EnqueueWithID(ctx context.Context, id, msgType string, payload interface{}) error
}

// BacktestJobPayload is the queued request.
type BacktestJobPayload struct {
	Symbol string `json:"symbol"`
	N      int    `json:"n"`
	TF     string `json:"tf"`
}

// BacktestJobs submits backtests to the queue and runs them as a
// queue.Job. Status records live in the cache for ttl.
type BacktestJobs struct {
	strategy *StrategyUseCase
	queue    Enqueuer
	store    cache.Service
	ttl      time.Duration
	log      *applogger.Logger
	now      func() time.Time
}

var _ queue.Job = (*BacktestJobs)(nil)

func NewBacktestJobs(strategy *StrategyUseCase, q Enqueuer, store cache.Service, ttl time.Duration, l *applogger.Logger) *BacktestJobs {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &BacktestJobs{strategy: strategy, queue: q, store: store, ttl: ttl, log: l, now: time.Now}
}

func (j *BacktestJobs) Name() string { return "backtest_runner" }

func (j *BacktestJobs) Type() string { return BacktestJobType }

func jobKey(id string) string { return cache.GenerateKey("job:backtest", id) }

// Submit records a queued job and enqueues it under the same id.
func (j *BacktestJobs) Submit(ctx context.Context, p BacktestJobPayload) (*models.BacktestJob, error) {
	if j.queue == nil || j.store == nil {
		return nil, ErrQueueDisabled
	}
	if p.Symbol == "" {
		return nil, &models.InvalidInputError{Field: "symbol", Reason: "required"}
	}
	now := j.now().UTC()
	job := &models.BacktestJob{
		ID:        uuid.NewString(),
		Symbol:    p.Symbol,
		N:         p.N,
		TF:        p.TF,
		Status:    models.JobQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := j.save(ctx, job); err != nil {
		return nil, err
	}
	if err := j.queue.EnqueueWithID(ctx, job.ID, BacktestJobType, p); err != nil {
		_ = j.store.Delete(ctx, jobKey(job.ID))
		return nil, fmt.Errorf("enqueue backtest: %w", err)
	}
	j.log.Info("backtest job queued", applogger.String("job_id", job.ID), applogger.String("symbol", p.Symbol))
	return job, nil
}

// Get returns the status record of id.
func (j *BacktestJobs) Get(ctx context.Context, id string) (*models.BacktestJob, error) {
	if j.store == nil {
		return nil, ErrQueueDisabled
	}
	var job models.BacktestJob
	if err := j.store.Get(ctx, jobKey(id), &job); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	return &job, nil
}

// QueueStats reports the backlog of the queue behind Submit.
func (j *BacktestJobs) QueueStats(ctx context.Context) (queue.QueueStats, error) {
	s, ok := j.queue.(interface {
		Stats(context.Context) (queue.QueueStats, error)
	})
	if !ok {
		return queue.QueueStats{}, ErrQueueDisabled
	}
	return s.Stats(ctx)
}

// Handle runs a queued backtest. Input errors fail the job for good;
// anything else is left to the queue's retry policy.
func (j *BacktestJobs) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[BacktestJobPayload](payload)
	if err != nil {
		return queue.Permanent(err)
	}
	id := queue.MessageID(ctx)

	// A redelivered message must not run next to the attempt still in flight.
	lock := jobKey(id) + ":lock"
	held, lerr := j.store.TryLock(ctx, lock, jobLockTTL)
	if lerr == nil && !held {
		j.log.Warn("backtest job already running", applogger.String("job_id", id))
		return nil
	}
	if lerr == nil {
		defer func() { _ = j.store.Unlock(context.WithoutCancel(ctx), lock) }()
	}

	job, err := j.Get(ctx, id)
	if err != nil {
		// Status record expired; rebuild it from the payload.
		now := j.now().UTC()
		job = &models.BacktestJob{ID: id, Symbol: p.Symbol, N: p.N, TF: p.TF, CreatedAt: now}
	}

	job.Status = models.JobRunning
	job.Error = ""
	_ = j.save(ctx, job)

	res, err := j.strategy.Backtest(ctx, BacktestParams{
		SeriesParams: SeriesParams{Symbol: p.Symbol, N: p.N, Timeframe: domrepo.NormalizeTimeframe(p.TF)},
		Trades:       true,
	})
	if err != nil {
		job.Status = models.JobFailed
		job.Error = models.ErrorCode(err) + ": " + err.Error()
		_ = j.save(ctx, job)
		if models.ErrorCode(err) != models.CodeInternal {
			return queue.Permanent(err)
		}
		return err
	}

	job.Status = models.JobDone
	job.Result = res
	return j.save(ctx, job)
}

func (j *BacktestJobs) save(ctx context.Context, job *models.BacktestJob) error {
	job.UpdatedAt = j.now().UTC()
	if err := j.store.Set(ctx, jobKey(job.ID), job, j.ttl); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}
