package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"OptSignal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// QueueMode selects which halves of the queue run in this process.
type QueueMode int

const (
	ModeProducerConsumer QueueMode = iota
	ModeProducerOnly
)

func (m QueueMode) String() string {
	if m == ModeProducerOnly {
		return "producer-only"
	}
	return "producer-consumer"
}

const (
	maxRetryDelay = 10 * time.Minute
	promoteEvery  = 2 * time.Second
	promoteBatch  = 100
)

// RedisQueue is a list-backed job queue. Failed messages wait in a sorted
// set scored by their due time; exhausted or permanent failures land in a
// dead-letter list.
type RedisQueue struct {
	log    *logger.Logger
	cfg    QueueConfig
	client *redis.Client
	mode   QueueMode
	prefix string

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithQueueName namespaces the keys, e.g. optsignal:queue:backtests.
func WithQueueName(name string) RedisQueueOption {
	return func(r *RedisQueue) {
		if name != "" {
			r.prefix = "optsignal:queue:" + name
		}
	}
}

func NewRedisQueue(lgr *logger.Logger, cfg *QueueConfig, client *redis.Client, mode QueueMode, opts ...RedisQueueOption) *RedisQueue {
	c := QueueConfig{}
	if cfg != nil {
		c = *cfg
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 10 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if lgr == nil {
		lgr = logger.Nop()
	}

	r := &RedisQueue{
		log:    lgr,
		cfg:    c,
		client: client,
		mode:   mode,
		prefix: "optsignal:queue",
		jobs:   make(map[string]Job),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterJob routes messages of job.Type() to job. A second job for the
// same type is ignored.
func (r *RedisQueue) RegisterJob(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.jobs[job.Type()]; dup {
		r.log.Warn("job already registered", logger.String("type", job.Type()))
		return
	}
	r.jobs[job.Type()] = job
	r.log.Info("job registered", logger.String("job", job.Name()), logger.String("type", job.Type()))
}

// Start pings Redis and, unless producer-only, starts the workers and the
// retry promoter.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("queue already running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.running = true

	if r.mode != ModeProducerOnly {
		for i := 0; i < r.cfg.Workers; i++ {
			r.wg.Add(1)
			go r.worker(i)
		}
		r.wg.Add(1)
		go r.promoter()
	}
	r.log.Info("redis queue started",
		logger.String("prefix", r.prefix),
		logger.String("mode", r.mode.String()),
		logger.Int("workers", r.cfg.Workers),
	)
	return nil
}

// Stop cancels in-flight handlers and waits for the workers or ctx.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.log.Info("redis queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue stop: %w", ctx.Err())
	}
}

// Enqueue adds a message under a fresh id.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	return r.EnqueueWithID(ctx, uuid.NewString(), msgType, payload)
}

// EnqueueWithID adds a message whose id the caller already tracks, e.g. a
// job id handed back to an HTTP client.
func (r *RedisQueue) EnqueueWithID(ctx context.Context, id, msgType string, payload interface{}) error {
	r.mu.RLock()
	running := r.running
	_, known := r.jobs[msgType]
	r.mu.RUnlock()

	if !running {
		return errors.New("queue not running")
	}
	if r.mode != ModeProducerOnly && !known {
		return fmt.Errorf("no job registered for type %q", msgType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	data, err := json.Marshal(Message{ID: id, Type: msgType, Payload: raw, Timestamp: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return r.client.LPush(ctx, r.key("messages"), data).Err()
}

// Stats reports the pending, retry and dead-letter counts.
func (r *RedisQueue) Stats(ctx context.Context) (QueueStats, error) {
	pipe := r.client.Pipeline()
	pending := pipe.LLen(ctx, r.key("messages"))
	retry := pipe.ZCard(ctx, r.key("retry"))
	dead := pipe.LLen(ctx, r.key("dlq"))
	if _, err := pipe.Exec(ctx); err != nil {
		return QueueStats{}, fmt.Errorf("queue stats: %w", err)
	}
	return QueueStats{Pending: pending.Val(), Retry: retry.Val(), Dead: dead.Val()}, nil
}

func (r *RedisQueue) worker(n int) {
	defer r.wg.Done()
	for r.ctx.Err() == nil {
		res, err := r.client.BRPop(r.ctx, r.cfg.PollInterval, r.key("messages")).Result()
		switch {
		case err == nil:
		case errors.Is(err, redis.Nil) || r.ctx.Err() != nil:
			continue
		default:
			r.log.Error("queue pop failed", logger.Int("worker", n), logger.Error(err))
			r.sleep(r.cfg.PollInterval)
			continue
		}

		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			r.log.Error("queue message undecodable", logger.Error(err))
			r.push(r.key("dlq"), []byte(res[1]))
			continue
		}
		r.handle(msg)
	}
}

func (r *RedisQueue) handle(msg Message) {
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.log.Error("no job for message", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.deadLetter(msg)
		return
	}

	start := time.Now()
	err := job.Handle(WithMessageID(r.ctx, msg.ID), msg.Payload)
	fields := []logger.Field{
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts+1),
		logger.Duration("duration_ms", time.Since(start)),
	}

	var perm *PermanentError
	switch {
	case err == nil:
		r.log.Debug("job done", fields...)
	case errors.Is(err, context.Canceled) && r.ctx.Err() != nil:
		// shutting down; put it back for the next process
		r.push(r.key("messages"), r.encode(msg))
	case errors.As(err, &perm) || msg.Attempts >= r.cfg.RetryLimit:
		r.log.Error("job dead-lettered", append(fields, logger.Error(err))...)
		r.deadLetter(msg)
	default:
		msg.Attempts++
		due := time.Now().Add(r.backoff(msg.Attempts))
		r.log.Warn("job failed, retrying", append(fields, logger.Error(err), logger.String("retry_at", due.Format(time.RFC3339)))...)
		if err := r.client.ZAdd(context.Background(), r.key("retry"), redis.Z{
			Score:  float64(due.Unix()),
			Member: r.encode(msg),
		}).Err(); err != nil {
			r.log.Error("schedule retry failed", logger.String("id", msg.ID), logger.Error(err))
		}
	}
}

// backoff doubles RetryDelay per attempt up to maxRetryDelay.
func (r *RedisQueue) backoff(attempt int) time.Duration {
	d := r.cfg.RetryDelay
	for i := 1; i < attempt && d < maxRetryDelay; i++ {
		d *= 2
	}
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	return d
}

// promoter moves due retries back onto the message list. ZRem decides the
// winner when several processes see the same member.
func (r *RedisQueue) promoter() {
	defer r.wg.Done()
	t := time.NewTicker(promoteEvery)
	defer t.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-t.C:
		}

		due, err := r.client.ZRangeByScore(r.ctx, r.key("retry"), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   strconv.FormatInt(time.Now().Unix(), 10),
			Count: promoteBatch,
		}).Result()
		if err != nil {
			if r.ctx.Err() == nil {
				r.log.Error("read retries failed", logger.Error(err))
			}
			continue
		}
		for _, m := range due {
			n, err := r.client.ZRem(r.ctx, r.key("retry"), m).Result()
			if err != nil || n == 0 {
				continue
			}
			r.push(r.key("messages"), []byte(m))
		}
	}
}

func (r *RedisQueue) deadLetter(msg Message) {
	r.push(r.key("dlq"), r.encode(msg))
}

func (r *RedisQueue) push(key string, data []byte) {
	if err := r.client.LPush(context.Background(), key, data).Err(); err != nil {
		r.log.Error("queue push failed", logger.String("key", key), logger.Error(err))
	}
}

func (r *RedisQueue) encode(msg Message) []byte {
	data, _ := json.Marshal(msg)
	return data
}

func (r *RedisQueue) sleep(d time.Duration) {
	select {
	case <-time.After(d):
	case <-r.ctx.Done():
	}
}

func (r *RedisQueue) key(suffix string) string {
	return r.prefix + ":" + suffix
}
