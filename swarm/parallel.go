package swarm

import (
	"runtime"
	"sync"
)

// workerScratch holds per-worker reusable buffers and counters.
type workerScratch struct {
	neighbors  []int
	candidates int
	hits       int
}

// workChunk represents a range of agents for a worker to steer.
type workChunk struct {
	start, end int
}

// workerPool steers snapshot-mode chunks on persistent goroutines.
// Workers only read the solver's working set and grid and only write their
// own range of intents, so the result does not depend on the worker count.
type workerPool struct {
	scratches  []workerScratch
	numWorkers int

	solver   *Solver
	workChan chan workChunk // sends work to workers
	doneChan chan struct{}  // workers signal completion
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup // tracks active workers
	running  bool           // true if workers are running
}

func newWorkerPool(workers int) *workerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	scratches := make([]workerScratch, workers)
	for i := range scratches {
		scratches[i].neighbors = make([]int, 0, 64)
	}
	return &workerPool{
		numWorkers: workers,
		scratches:  scratches,
	}
}

// start launches the worker goroutines.
func (p *workerPool) start(s *Solver) {
	if p.running {
		return
	}

	p.solver = s
	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// stop signals all workers to exit and waits for them.
func (p *workerPool) stop() {
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

func (p *workerPool) worker(id int) {
	defer p.wg.Done()
	scratch := &p.scratches[id]

	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			p.solver.steerChunk(chunk.start, chunk.end, &p.solver.next, scratch)
			p.doneChan <- struct{}{}
		}
	}
}

// run splits n agents into one chunk per worker and waits for all of them.
func (p *workerPool) run(s *Solver, n int) {
	if !p.running {
		p.start(s)
	}

	chunkSize := (n + p.numWorkers - 1) / p.numWorkers

	dispatched := 0
	for w := 0; w < p.numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			continue
		}
		p.workChan <- workChunk{start: start, end: end}
		dispatched++
	}

	for i := 0; i < dispatched; i++ {
		<-p.doneChan
	}
}

func (p *workerPool) resetStats() {
	for i := range p.scratches {
		p.scratches[i].candidates = 0
		p.scratches[i].hits = 0
	}
}

func (p *workerPool) collectStats() StepStats {
	var st StepStats
	for i := range p.scratches {
		st.Candidates += p.scratches[i].candidates
		st.Neighbors += p.scratches[i].hits
	}
	return st
}
