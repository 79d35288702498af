package outbox

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is the replay period while a list is being observed.
const DefaultInterval = 2 * time.Second

// Processor replays the queue on a ticker while started.
type Processor struct {
	queue    *Queue
	exec     Executor
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewProcessor creates a stopped Processor.
func NewProcessor(queue *Queue, exec Executor, interval time.Duration, logger *slog.Logger) *Processor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Processor{
		queue:    queue,
		exec:     exec,
		interval: interval,
		logger:   logger.With("component", "outbox-processor"),
	}
}

// Start begins periodic replay. Calling Start on a running Processor is a no-op.
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				res := p.queue.Process(ctx, p.exec)
				if res.Processed > 0 || res.DeadLettered > 0 {
					p.logger.Info("outbox replayed", "processed", res.Processed, "dead_lettered", res.DeadLettered, "remaining", res.Remaining)
				}
				if h, ok := p.exec.(PassHook); ok {
					h.AfterPass(res)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts replay and waits for an in-flight pass to finish.
func (p *Processor) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the ticker is active.
func (p *Processor) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}
