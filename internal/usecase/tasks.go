package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"FinSense/internal/domain/models"
	"FinSense/internal/services/learner"
	"FinSense/pkg/logger"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskRunning  = errors.New("a retraining task is already running")
	ErrTaskFinished = errors.New("task already finished")
)

// Retrainer runs one retraining and reports progress.
type Retrainer interface {
	ExecuteRetraining(ctx context.Context, p models.RetrainParams, progress learner.ProgressFunc) *models.RetrainResult
}

type taskEntry struct {
	task   models.Task
	cancel context.CancelFunc
	done   chan struct{}
}

// TaskRunner runs retraining in the background, one task at a time, each
// bounded by timeout and cancellable by id.
type TaskRunner struct {
	retrainer Retrainer
	l         *logger.Logger
	timeout   time.Duration
	keep      int
	now       func() time.Time

	mu      sync.Mutex
	tasks   map[string]*taskEntry
	running string
	wg      sync.WaitGroup
}

func NewTaskRunner(retrainer Retrainer, timeout time.Duration, l *logger.Logger) *TaskRunner {
	if l == nil {
		l = logger.Nop()
	}
	return &TaskRunner{
		retrainer: retrainer,
		l:         l.With(logger.String("category", "ml_training")),
		timeout:   timeout,
		keep:      50,
		now:       time.Now,
		tasks:     make(map[string]*taskEntry),
	}
}

// Submit starts a retraining task and returns its initial state.
func (r *TaskRunner) Submit(p models.RetrainParams) (models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running != "" {
		return models.Task{}, fmt.Errorf("submit %s: %w", r.running, ErrTaskRunning)
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if r.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), r.timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	e := &taskEntry{
		task: models.Task{
			ID:        uuid.NewString(),
			Kind:      "retrain",
			Status:    models.TaskPending,
			Params:    p,
			CreatedAt: r.now().UTC(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.tasks[e.task.ID] = e
	r.running = e.task.ID
	r.prune()

	r.wg.Add(1)
	go r.run(ctx, e)
	return e.task, nil
}

func (r *TaskRunner) run(ctx context.Context, e *taskEntry) {
	defer r.wg.Done()
	defer close(e.done)
	defer e.cancel()

	r.update(e, func(t *models.Task) {
		at := r.now().UTC()
		t.Status = models.TaskRunning
		t.StartedAt = &at
	})
	r.l.Info("retrain task started", logger.String("task_id", e.task.ID))

	res := r.retrainer.ExecuteRetraining(ctx, e.task.Params, func(stage string, progress float64) {
		r.update(e, func(t *models.Task) {
			t.Stage = stage
			t.Progress = progress
		})
	})

	r.update(e, func(t *models.Task) {
		at := r.now().UTC()
		t.FinishedAt = &at
		t.Result = res
		switch {
		case res != nil && res.Success:
			t.Status = models.TaskSucceeded
			t.Progress = 1
		case errors.Is(ctx.Err(), context.Canceled):
			t.Status = models.TaskCancelled
			t.Error = "cancelled"
		default:
			t.Status = models.TaskFailed
			if res != nil {
				t.Error = res.Error
			}
		}
	})

	r.mu.Lock()
	if r.running == e.task.ID {
		r.running = ""
	}
	status := e.task.Status
	r.mu.Unlock()
	r.l.Info("retrain task finished", logger.String("task_id", e.task.ID), logger.String("status", string(status)))
}

func (r *TaskRunner) update(e *taskEntry, fn func(*models.Task)) {
	r.mu.Lock()
	fn(&e.task)
	r.mu.Unlock()
}

func (r *TaskRunner) Get(id string) (models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tasks[id]
	if !ok {
		return models.Task{}, ErrTaskNotFound
	}
	return e.task, nil
}

// Cancel stops a pending or running task.
func (r *TaskRunner) Cancel(id string) (models.Task, error) {
	r.mu.Lock()
	e, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return models.Task{}, ErrTaskNotFound
	}
	if e.task.Status.Done() {
		t := e.task
		r.mu.Unlock()
		return t, ErrTaskFinished
	}
	r.mu.Unlock()
	e.cancel()
	<-e.done
	return r.Get(id)
}

// Wait blocks until the task finishes or ctx ends.
func (r *TaskRunner) Wait(ctx context.Context, id string) (models.Task, error) {
	r.mu.Lock()
	e, ok := r.tasks[id]
	r.mu.Unlock()
	if !ok {
		return models.Task{}, ErrTaskNotFound
	}
	select {
	case <-e.done:
		return r.Get(id)
	case <-ctx.Done():
		return models.Task{}, ctx.Err()
	}
}

// List returns tasks newest first.
func (r *TaskRunner) List() []models.Task {
	r.mu.Lock()
	out := make([]models.Task, 0, len(r.tasks))
	for _, e := range r.tasks {
		out = append(out, e.task)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Shutdown cancels every task and waits for them to stop.
func (r *TaskRunner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	for _, e := range r.tasks {
		e.cancel()
	}
	r.mu.Unlock()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for tasks: %w", ctx.Err())
	}
}

// prune drops the oldest finished tasks beyond keep. Caller holds mu.
func (r *TaskRunner) prune() {
	if len(r.tasks) <= r.keep {
		return
	}
	finished := make([]*taskEntry, 0, len(r.tasks))
	for _, e := range r.tasks {
		if e.task.Status.Done() {
			finished = append(finished, e)
		}
	}
	sort.Slice(finished, func(i, j int) bool { return finished[i].task.CreatedAt.Before(finished[j].task.CreatedAt) })
	for _, e := range finished {
		if len(r.tasks) <= r.keep {
			return
		}
		delete(r.tasks, e.task.ID)
	}
}
