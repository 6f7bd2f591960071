// Package parallel runs CPU-side pixel work, such as texture conversion
// after a readback, on a shared pool of goroutines.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool is a fixed set of goroutines, each with its own queue. An
// idle worker steals from the other queues before blocking, which keeps
// uneven row bands balanced.
//
// WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers int
	queues  []chan func()
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewWorkerPool starts a pool. If workers is 0 or negative, GOMAXPROCS is
// used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &WorkerPool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	for i := range p.queues {
		p.queues[i] = make(chan func(), max(8, workers*4))
	}
	p.running.Store(true)
	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

// Workers returns the number of worker goroutines.
func (p *WorkerPool) Workers() int { return p.workers }

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	own := p.queues[id]
	for {
		select {
		case fn := <-own:
			fn()
			continue
		default:
		}
		if fn := p.steal(id); fn != nil {
			fn()
			continue
		}
		select {
		case fn := <-own:
			fn()
		case <-p.done:
			for {
				select {
				case fn := <-own:
					fn()
				default:
					return
				}
			}
		}
	}
}

func (p *WorkerPool) steal(id int) func() {
	for i := 1; i < p.workers; i++ {
		select {
		case fn := <-p.queues[(id+i)%p.workers]:
			return fn
		default:
		}
	}
	return nil
}

// ExecuteAll runs every function and waits for all of them. After Close
// the functions run on the calling goroutine.
func (p *WorkerPool) ExecuteAll(work []func()) {
	if len(work) == 0 {
		return
	}
	if !p.running.Load() {
		for _, fn := range work {
			fn()
		}
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(work))
	for i, fn := range work {
		wrapped := func() {
			defer wg.Done()
			fn()
		}
		select {
		case p.queues[i%p.workers] <- wrapped:
		case <-p.done:
			wrapped()
		}
	}
	wg.Wait()
}

// Close stops the workers after the queued work has run. It is safe to
// call Close more than once.
func (p *WorkerPool) Close() {
	if p.running.CompareAndSwap(true, false) {
		close(p.done)
		p.wg.Wait()
	}
}

var (
	defaultOnce sync.Once
	defaultPool *WorkerPool
)

// Default returns the process-wide pool, starting it on first use.
func Default() *WorkerPool {
	defaultOnce.Do(func() {
		defaultPool = NewWorkerPool(0)
	})
	return defaultPool
}

// minRowsPerBand keeps tiny images on one goroutine.
const minRowsPerBand = 16

// Rows splits [0, height) into contiguous bands and calls fn for each band
// on the default pool. It returns when every band is done.
func Rows(height int, fn func(y0, y1 int)) {
	RowsOn(Default(), height, fn)
}

// RowsOn is Rows on a specific pool.
func RowsOn(p *WorkerPool, height int, fn func(y0, y1 int)) {
	if height <= 0 {
		return
	}
	bands := min(p.Workers(), (height+minRowsPerBand-1)/minRowsPerBand)
	if bands <= 1 {
		fn(0, height)
		return
	}
	work := make([]func(), 0, bands)
	for b := range bands {
		y0, y1 := b*height/bands, (b+1)*height/bands
		work = append(work, func() { fn(y0, y1) })
	}
	p.ExecuteAll(work)
}
