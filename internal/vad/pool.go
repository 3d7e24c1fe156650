package vad

import (
	"runtime"
	"sync"

	"github.com/room4-2/voxcore/internal/frame"
)

// scoreJob is one unit of work submitted to the Pool.
type scoreJob struct {
	pcm    []byte
	trace  frame.TraceID
	result chan<- scoreResult
}

type scoreResult struct {
	trace frame.TraceID
	score float64
}

// Pool runs Scorer.Score on a fixed-size worker set so VAD inference never
// blocks the per-call hop goroutines that feed it (spec §5: VAD gets its own
// worker pool, sized to GOMAXPROCS, distinct from the per-call goroutine
// budget).
type Pool struct {
	jobs    chan scoreJob
	scorer  Scorer
	wg      sync.WaitGroup
	closeMu sync.Once
}

// NewPool starts a Pool with runtime.GOMAXPROCS(0) workers sharing scorer.
// scorer must be safe for concurrent use; EnergyScorer is stateless and
// qualifies.
func NewPool(scorer Scorer) *Pool {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		n = 1
	}
	p := &Pool{
		jobs:   make(chan scoreJob, n*4),
		scorer: scorer,
	}
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		s := p.scorer.Score(job.pcm)
		job.result <- scoreResult{trace: job.trace, score: s}
	}
}

// Score submits pcm for scoring and blocks until the result is ready. It is
// safe to call Score from multiple goroutines concurrently, though a single
// call's VAD processor normally submits sequentially per call to preserve
// frame ordering.
func (p *Pool) Score(trace frame.TraceID, pcm []byte) float64 {
	result := make(chan scoreResult, 1)
	p.jobs <- scoreJob{pcm: pcm, trace: trace, result: result}
	r := <-result
	return r.score
}

// Close stops accepting new work and waits for in-flight jobs to drain.
func (p *Pool) Close() {
	p.closeMu.Do(func() {
		close(p.jobs)
	})
	p.wg.Wait()
}
