package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/courierpay/payment-engine/internal/domain"
	"github.com/courierpay/payment-engine/internal/domain/ports"
	"github.com/courierpay/payment-engine/pkg/observability"
)

// BatchFunc is one batch consolidation run. It owns its task's terminal
// transition; the runner only steps in when the run never gets to execute
// or dies on a panic.
type BatchFunc func(ctx context.Context, taskID string)

// Runner executes batch runs on dedicated goroutines, decoupled from the
// triggering HTTP request. A bounded semaphore caps concurrent runs, and
// every failure path lands on the task so nothing is silently dropped.
type Runner struct {
	sem       chan struct{}
	logger    ports.Logger
	onFailure func(taskID, message string)
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewRunner creates a runner allowing at most maxConcurrent batch runs.
// onFailure is invoked with the task id when a run is rejected or panics.
func NewRunner(maxConcurrent int, logger ports.Logger, onFailure func(taskID, message string)) *Runner {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		sem:       make(chan struct{}, maxConcurrent),
		logger:    logger,
		onFailure: onFailure,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Dispatch starts fn for taskID on its own goroutine. Returns a conflict
// error when the concurrency cap is reached; the caller decides how to
// surface that on the task.
func (r *Runner) Dispatch(taskID string, fn BatchFunc) error {
	select {
	case r.sem <- struct{}{}:
	default:
		observability.RecordBatchRun("rejected")
		return domain.NewDomainError(domain.ErrorCodeBatchInFlight,
			fmt.Sprintf("batch run limit reached (%d concurrent)", cap(r.sem)))
	}

	r.wg.Add(1)
	go func() {
		done := observability.BatchRunStarted()
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("batch run panicked",
					ports.String("task_id", taskID),
					ports.String("panic", fmt.Sprint(p)))
				observability.RecordBatchRun("panic")
				if r.onFailure != nil {
					r.onFailure(taskID, fmt.Sprintf("execução abortada: %v", p))
				}
			}
			done()
			<-r.sem
			r.wg.Done()
		}()

		fn(r.ctx, taskID)
	}()

	return nil
}

// Shutdown stops accepting work, cancels in-flight runs and waits for them
// up to the given context's deadline.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.cancel()

	finished := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
