package loader

import (
	"sync"
)

// pool is a fixed set of workers pulling from an unbounded FIFO queue.
// submit never blocks the caller. With one worker, tasks run strictly in
// submission order.
type pool struct {
	name string
	run  func(*task)

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*task
	closed bool

	wg sync.WaitGroup
}

func newPool(name string, workers int, run func(*task)) *pool {
	if workers < 1 {
		workers = 1
	}
	p := &pool{
		name: name,
		run:  run,
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// submit enqueues t and reports false once the pool is closed
func (p *pool) submit(t *task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	p.queue = append(p.queue, t)
	p.cond.Signal()
	return true
}

func (p *pool) next() (*task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.queue) == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.closed {
		return nil, false
	}

	t := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	return t, true
}

func (p *pool) worker() {
	defer p.wg.Done()

	for {
		t, ok := p.next()
		if !ok {
			return
		}
		p.run(t)
	}
}

func (p *pool) pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.queue)
}

// close drops queued tasks and waits for running ones to return
func (p *pool) close() {
	p.mu.Lock()
	p.closed = true
	p.queue = nil
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
}
