package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"FinSense/pkg/logger"
)

var (
	ErrQueueFull  = errors.New("queue is full")
	ErrNotRunning = errors.New("queue is not running")
)

// RedisQueue keeps pending messages in a list, delayed retries in a sorted
// set scored by due time, and exhausted messages in a dead-letter list.
// A queue built with NewRedisPublisher only enqueues.
type RedisQueue struct {
	l         *logger.Logger
	cfg       *QueueConfig
	client    *redis.Client
	keyPrefix string
	consumer  bool
	now       func() time.Time

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix namespaces the Redis keys, e.g. "finsense" gives
// finsense:jobs, finsense:jobs:retry and finsense:jobs:dead.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		if prefix != "" {
			r.keyPrefix = prefix
		}
	}
}

func newRedisQueue(l *logger.Logger, cfg *QueueConfig, client *redis.Client, consumer bool, opts ...RedisQueueOption) *RedisQueue {
	if l == nil {
		l = logger.Nop()
	}
	r := &RedisQueue{
		l:         l,
		cfg:       cfg.withDefaults(),
		client:    client,
		keyPrefix: "finsense",
		consumer:  consumer,
		now:       time.Now,
		jobs:      make(map[string]Job),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRedisPublisher returns a queue handle that can only enqueue.
func NewRedisPublisher(l *logger.Logger, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	return newRedisQueue(l, nil, client, false, opts...)
}

// NewRedisConsumer returns a queue that runs jobs once started.
func NewRedisConsumer(l *logger.Logger, cfg *QueueConfig, client *redis.Client, jobs []Job, opts ...RedisQueueOption) *RedisQueue {
	r := newRedisQueue(l, cfg, client, true, opts...)
	for _, j := range jobs {
		r.RegisterJob(j)
	}
	return r
}

func (r *RedisQueue) RegisterJob(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.jobs[job.Type()]; dup {
		r.l.Warn("job already registered", logger.String("type", job.Type()))
		return
	}
	r.jobs[job.Type()] = job
	r.l.Debug("job registered", logger.String("job", job.Name()), logger.String("type", job.Type()))
}

func (r *RedisQueue) pendingKey() string { return r.keyPrefix + ":jobs" }
func (r *RedisQueue) retryKey() string   { return r.keyPrefix + ":jobs:retry" }
func (r *RedisQueue) deadKey() string    { return r.keyPrefix + ":jobs:dead" }

// Start pings Redis and launches the workers and the retry mover.
func (r *RedisQueue) Start() error {
	if !r.consumer {
		return errors.New("publisher queue cannot be started")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("queue already running")
	}

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := r.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.running = true
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx, i)
	}
	r.wg.Add(1)
	go r.moveDueRetries(ctx)
	return nil
}

// Stop cancels the workers and waits for running jobs, bounded by ctx.
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
		r.l.Info("job queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for queue workers: %w", ctx.Err())
	}
}

// Enqueue appends a message. A consumer queue rejects types it has no job
// for, and a bounded queue rejects messages beyond QueueSize.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	if r.consumer {
		r.mu.RLock()
		_, ok := r.jobs[msgType]
		r.mu.RUnlock()
		if !ok {
			return fmt.Errorf("no job registered for type %q", msgType)
		}
	}
	if r.cfg.QueueSize > 0 {
		n, err := r.client.LLen(ctx, r.pendingKey()).Result()
		if err != nil {
			return fmt.Errorf("queue length: %w", err)
		}
		if n >= int64(r.cfg.QueueSize) {
			return ErrQueueFull
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	data, err := json.Marshal(Message{
		ID:         uuid.NewString(),
		Type:       msgType,
		Payload:    body,
		EnqueuedAt: r.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := r.client.LPush(ctx, r.pendingKey(), data).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", msgType, err)
	}
	return nil
}

// DeadLetters reports how many messages exhausted their retries.
func (r *RedisQueue) DeadLetters(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, r.deadKey()).Result()
}

func (r *RedisQueue) worker(ctx context.Context, id int) {
	defer r.wg.Done()
	for ctx.Err() == nil {
		res, err := r.client.BRPop(ctx, time.Second, r.pendingKey()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			r.l.Error("queue pop error", logger.Int("worker", id), logger.Error(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
			continue
		}
		if len(res) < 2 {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			r.l.Error("queue drop undecodable message", logger.Error(err))
			continue
		}
		r.process(ctx, msg)
	}
}

func (r *RedisQueue) process(ctx context.Context, msg Message) {
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.l.Error("no job for message", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.bury(msg)
		return
	}

	start := r.now()
	err := r.runSafe(ctx, job, msg.Payload)
	if err == nil {
		r.l.Info("job done",
			logger.String("job", job.Name()),
			logger.String("id", msg.ID),
			logger.Duration("duration_ms", r.now().Sub(start)),
		)
		return
	}
	if ctx.Err() != nil {
		// shutting down: put it back for the next consumer
		r.requeue(msg)
		return
	}

	msg.Attempts++
	msg.LastError = err.Error()
	at, retry := r.cfg.retryAt(msg, r.now())
	if !retry {
		r.l.Error("job failed permanently",
			logger.String("job", job.Name()),
			logger.String("id", msg.ID),
			logger.Int("attempts", msg.Attempts),
			logger.Error(err),
		)
		r.bury(msg)
		return
	}
	r.l.Warn("job failed, retry scheduled",
		logger.String("job", job.Name()),
		logger.String("id", msg.ID),
		logger.Int("attempt", msg.Attempts),
		logger.Time("retry_at", at),
		logger.Error(err),
	)
	r.schedule(msg, at)
}

func (r *RedisQueue) runSafe(ctx context.Context, job Job, payload json.RawMessage) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), rec)
		}
	}()
	return job.Handle(ctx, payload)
}

func (r *RedisQueue) write(key string, msg Message, fn func(ctx context.Context, data []byte) error) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.l.Error("encode message", logger.String("id", msg.ID), logger.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx, data); err != nil {
		r.l.Error("queue write error", logger.String("key", key), logger.String("id", msg.ID), logger.Error(err))
	}
}

func (r *RedisQueue) schedule(msg Message, at time.Time) {
	r.write(r.retryKey(), msg, func(ctx context.Context, data []byte) error {
		return r.client.ZAdd(ctx, r.retryKey(), redis.Z{Score: float64(at.UnixMilli()), Member: data}).Err()
	})
}

func (r *RedisQueue) bury(msg Message) {
	r.write(r.deadKey(), msg, func(ctx context.Context, data []byte) error {
		return r.client.LPush(ctx, r.deadKey(), data).Err()
	})
}

func (r *RedisQueue) requeue(msg Message) {
	r.write(r.pendingKey(), msg, func(ctx context.Context, data []byte) error {
		return r.client.RPush(ctx, r.pendingKey(), data).Err()
	})
}

// moveDueRetries moves retries whose time has come back to the pending list.
// ZRem decides ownership, so several consumers never move the same message.
func (r *RedisQueue) moveDueRetries(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		due, err := r.client.ZRangeByScore(ctx, r.retryKey(), &redis.ZRangeBy{
			Min: "-inf",
			Max: strconv.FormatInt(r.now().UnixMilli(), 10),
		}).Result()
		if err != nil {
			if ctx.Err() == nil {
				r.l.Error("queue retry scan error", logger.Error(err))
			}
			continue
		}
		for _, data := range due {
			removed, err := r.client.ZRem(ctx, r.retryKey(), data).Result()
			if err != nil || removed == 0 {
				continue
			}
			if err := r.client.LPush(ctx, r.pendingKey(), data).Err(); err != nil {
				r.l.Error("queue retry move error", logger.Error(err))
			}
		}
	}
}
