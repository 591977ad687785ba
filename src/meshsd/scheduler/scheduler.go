// Package scheduler implements the sequential batch executor and
// increasing-rate periodic task used to drive probing, announcing and
// cancellation (C4).
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Task is a unit of work submitted to a Scheduler.
type Task func(ctx context.Context) error

// job is a single submission on the scheduler's command channel.
type job struct {
	run  Task
	done chan error
}

// Scheduler runs every Task submitted through ScheduleBatch on a single
// worker goroutine, so that task i submitted before task j always completes
// before task j starts, mirroring the teacher's responder.Responder
// commands channel. Distinct batch keys still interleave at the submission
// level: each batch's own goroutine sleeps between steps and resubmits, so
// two keys' tasks may be interspersed on the shared worker even though
// neither key's own tasks ever run out of order or concurrently with
// themselves.
type Scheduler struct {
	commands chan job

	mu     sync.Mutex
	active map[string]*BatchHandle
}

// New returns a Scheduler with no worker running. Call Run to start it.
func New() *Scheduler {
	return &Scheduler{
		commands: make(chan job),
		active:   make(map[string]*BatchHandle),
	}
}

// Run processes submitted tasks until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-s.commands:
			err := j.run(ctx)
			j.done <- err
		}
	}
}

// submit hands t to the worker and waits for it to run to completion.
func (s *Scheduler) submit(ctx context.Context, t Task) error {
	j := job{run: t, done: make(chan error, 1)}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.commands <- j:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-j.done:
		return err
	}
}

// BatchHandle is returned by ScheduleBatch. It lets a caller wait for the
// batch's first task, wait for the whole batch, or cancel the remainder.
type BatchHandle struct {
	firstDone chan error
	allDone   chan error
	cancel    context.CancelFunc
}

// AwaitFirst blocks until the batch's first task has run.
func (h *BatchHandle) AwaitFirst(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-h.firstDone:
		return err
	}
}

// AwaitAll blocks until every task in the batch has run, or one failed, or
// the batch was canceled.
func (h *BatchHandle) AwaitAll(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-h.allDone:
		return err
	}
}

// CancelAll stops the batch before any remaining task runs. A task already
// in flight on the worker still completes.
func (h *BatchHandle) CancelAll() {
	h.cancel()
}

// ErrBatchCanceled is returned by AwaitAll when a batch was canceled before
// running all n of its tasks.
var ErrBatchCanceled = errors.New("scheduler: batch canceled")

// ScheduleBatch runs task n times under key, spaced interval apart, with
// the first run immediate. A batch already running under key is awaited
// (and its remaining steps, if any, allowed to finish) before this one
// begins, so at most one batch per key is ever in flight, and a key's
// tasks are never interleaved with themselves.
func (s *Scheduler) ScheduleBatch(
	ctx context.Context,
	key string,
	task Task,
	n int,
	interval time.Duration,
) *BatchHandle {
	s.mu.Lock()
	prev := s.active[key]
	s.mu.Unlock()

	if prev != nil {
		_ = prev.AwaitAll(ctx)
	}

	batchCtx, cancel := context.WithCancel(ctx)
	h := &BatchHandle{
		firstDone: make(chan error, 1),
		allDone:   make(chan error, 1),
		cancel:    cancel,
	}

	if n <= 0 {
		h.firstDone <- nil
		h.allDone <- nil
		cancel()
		return h
	}

	s.mu.Lock()
	s.active[key] = h
	s.mu.Unlock()

	go s.runBatch(ctx, batchCtx, key, h, task, n, interval)

	return h
}

func (s *Scheduler) runBatch(
	ctx, batchCtx context.Context,
	key string,
	h *BatchHandle,
	task Task,
	n int,
	interval time.Duration,
) {
	var lastErr error

	for i := 0; i < n; i++ {
		if i > 0 {
			if err := sleepCtx(batchCtx, interval); err != nil {
				lastErr = ErrBatchCanceled
				break
			}
		}

		err := s.submit(batchCtx, task)

		if i == 0 {
			h.firstDone <- err
		}

		if err != nil {
			lastErr = err
			break
		}
	}

	s.mu.Lock()
	if s.active[key] == h {
		delete(s.active, key)
	}
	s.mu.Unlock()

	h.cancel()
	h.allDone <- lastErr
}
