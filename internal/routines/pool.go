// Package routines provides a fixed size go-routine pool.
package routines

import (
	"sync"
)

// Pool runs queued functions in a fixed number of go-routines.
type Pool struct {
	work chan func()
	wg   sync.WaitGroup

	lock    sync.Mutex
	stopped bool
}

// NewPool creates a pool with size go-routines.
func NewPool(size int) *Pool {
	if size <= 0 {
		panic("pool size must be >0")
	}

	p := Pool{
		work: make(chan func()),
	}

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}

	return &p
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for fn := range p.work {
		fn()
	}
}

// Queue schedules fn to be run by a go-routine of the pool.
// It blocks until a go-routine is available.
// Calling Queue after Wait() panics.
func (p *Pool) Queue(fn func()) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.stopped {
		panic("Queue() called after Wait()")
	}

	p.work <- fn
}

// Wait waits until all queued functions finished and terminates the
// go-routines of the pool.
func (p *Pool) Wait() {
	p.lock.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.work)
	}
	p.lock.Unlock()

	p.wg.Wait()
}
