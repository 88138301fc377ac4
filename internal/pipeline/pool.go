package pipeline

import "sync"

// Pool runs batch tasks on a fixed number of workers fed by a buffered
// channel, capping concurrent batches per process. Dispatch never blocks:
// when the buffer is full the task gets its own goroutine instead.
type Pool struct {
	tasks chan func()
	wg    sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

func NewPool(workers, buffer int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	p := &Pool{tasks: make(chan func(), buffer)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task()
			}
		}()
	}
	return p
}

// Dispatch schedules a task for background execution. After Stop the task
// runs inline on the caller's goroutine, so accepted work is never dropped
// even when a submission races shutdown.
func (p *Pool) Dispatch(task func()) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		task()
		return
	}
	select {
	case p.tasks <- task:
		p.mu.Unlock()
	default:
		p.wg.Add(1)
		p.mu.Unlock()
		go func() {
			defer p.wg.Done()
			task()
		}()
	}
}

// Stop closes the task channel and waits for in-flight batches to finish.
// Started batches always run to completion; there is no cancellation.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.tasks)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
