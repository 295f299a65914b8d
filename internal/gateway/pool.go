package gateway

import (
	"context"
	"net"
	"sync"

	"github.com/danmuck/hl7gate/internal/dispatch"
)

// Pool is the fixed set of workers draining one queue. Its size never changes
// after construction.
type Pool struct {
	workers []*Worker
	wg      sync.WaitGroup
	once    sync.Once
}

func newPool(size int, queue *dispatch.Queue[net.Conn], h *handler) *Pool {
	p := &Pool{workers: make([]*Worker, size)}
	for i := range p.workers {
		p.workers[i] = &Worker{ID: i, queue: queue, h: h}
	}
	return p
}

// Start launches every worker once; later calls are no-ops.
func (p *Pool) Start(ctx context.Context) {
	p.once.Do(func() {
		for _, w := range p.workers {
			p.wg.Add(1)
			go func(w *Worker) {
				defer p.wg.Done()
				w.Run(ctx)
			}(w)
		}
	})
}

// Wait blocks until every worker has returned. Workers return once the queue
// is closed.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) Size() int {
	return len(p.workers)
}

func (p *Pool) States() []WorkerState {
	out := make([]WorkerState, len(p.workers))
	for i, w := range p.workers {
		out[i] = w.State()
	}
	return out
}
