package runner

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Runner держит долгоживущие лупы: сканер, исполнитель, сверку и метрики.
type Runner struct {
	scanner    *Scanner
	executor   *Executor
	reconciler *Reconciler
	queue      *SignalQueue
	log        *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(s *Scanner, e *Executor, rc *Reconciler, q *SignalQueue, log *zap.Logger) *Runner {
	return &Runner{
		scanner:    s,
		executor:   e,
		reconciler: rc,
		queue:      q,
		log:        log,
	}
}

func (r *Runner) Start(parent context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel

	r.goLoop(func() { r.scanner.Run(ctx) })
	r.goLoop(func() { r.executor.Run(ctx) })
	r.goLoop(func() { r.reconciler.Run(ctx) })
	r.goLoop(func() { r.reconciler.RunPerformance(ctx) })

	r.log.Info("[RUNNER] ✅ all loops started")
}

func (r *Runner) goLoop(fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn()
	}()
}

// Stop отменяет лупы и ждёт их завершения (или дедлайна ctx).
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	r.queue.Close()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.log.Info("[RUNNER] stopped", zap.Int("queued", r.queue.Len()))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
