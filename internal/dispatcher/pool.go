// internal/dispatcher/pool.go
package dispatcher

import (
	"context"
	"sync"

	"autoshop-notifications/internal/common/logger"
	"autoshop-notifications/internal/events"
)

// pool is a bounded worker pool draining the event queue. Submit never
// blocks: when the queue is full the event is rejected and the caller decides
// what to record.
type pool struct {
	queue   chan *events.DomainEvent
	workers int
	handler func(ctx context.Context, event *events.DomainEvent)
	logger  logger.Logger

	wg      sync.WaitGroup
	started bool
	stopped bool
	mu      sync.Mutex
}

func newPool(workers, queueSize int, handler func(ctx context.Context, event *events.DomainEvent), log logger.Logger) *pool {
	return &pool{
		queue:   make(chan *events.DomainEvent, queueSize),
		workers: workers,
		handler: handler,
		logger:  log,
	}
}

func (p *pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for event := range p.queue {
				p.handler(ctx, event)
			}
		}(i)
	}

	p.logger.Info("Dispatcher pool started", map[string]interface{}{
		"workers":   p.workers,
		"queueSize": cap(p.queue),
	})
}

// Submit enqueues an event for asynchronous delivery. Returns false when the
// queue is full or the pool has been stopped.
func (p *pool) Submit(event *events.DomainEvent) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}
	select {
	case p.queue <- event:
		return true
	default:
		return false
	}
}

// Stop closes the queue and waits for in-flight deliveries to finish. The
// queue is closed under the same mutex Submit holds, so a submit racing
// shutdown is rejected instead of hitting a closed channel.
func (p *pool) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}
