// Package pool runs CPU-bound analysis jobs off the caller's
// goroutine. It is a process-wide bounded pool: submit and cancel are
// the only surface, and workers never touch the chunk index. Results
// travel back over a channel and are folded in by the manager.
package pool

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vampirenirmal/storylens/internal/domain"
)

// Processor computes the analysis for one job.
type Processor func(ctx context.Context, job domain.Job) (domain.ChunkAnalysis, error)

// Result is the outcome of one job. Err carries worker or parse
// failures; context.Canceled marks jobs cancelled mid-flight.
type Result struct {
	Job      domain.Job
	Analysis domain.ChunkAnalysis
	Err      error
}

type pending struct {
	job domain.Job
	ctx context.Context
}

// Pool dispatches jobs to a fixed set of workers.
type Pool struct {
	workers int
	proc    Processor
	log     *slog.Logger

	jobs    chan pending
	results chan Result

	mu      sync.Mutex
	cancels map[string]map[string]context.CancelFunc // chapter -> job id -> cancel
	closed  bool

	g      *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// Option customizes pool behavior.
type Option func(*Pool)

// WithWorkers sets the number of concurrent workers.
func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Pool) {
		if log != nil {
			p.log = log
		}
	}
}

// New starts a pool with CPU-aware sizing.
func New(ctx context.Context, proc Processor, opts ...Option) *Pool {
	p := &Pool{
		workers: runtime.NumCPU(),
		proc:    proc,
		log:     slog.Default(),
		cancels: make(map[string]map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}

	poolCtx, cancel := context.WithCancel(ctx)
	p.ctx = poolCtx
	p.cancel = cancel
	p.jobs = make(chan pending, p.workers*2)
	p.results = make(chan Result, p.workers*4)

	g, gctx := errgroup.WithContext(poolCtx)
	p.g = g
	for i := 0; i < p.workers; i++ {
		workerID := i
		g.Go(func() error {
			p.worker(gctx, workerID)
			return nil
		})
	}
	return p
}

func (p *Pool) worker(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-p.jobs:
			if !ok {
				return
			}
			res := Result{Job: item.job}
			if err := item.ctx.Err(); err != nil {
				res.Err = err
			} else {
				p.log.Debug("worker processing job",
					"worker_id", workerID,
					"job_id", item.job.ID,
					"chunk_id", item.job.ChunkID,
				)
				res.Analysis, res.Err = p.proc(item.ctx, item.job)
			}
			p.finish(item.job)
			select {
			case p.results <- res:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Submit queues a job without blocking. It returns false when the pool
// is shut down or the queue is full; a rejected job is never owned by
// the pool. Submit must not block: the caller may be the same goroutine
// that drains Results, and a blocking send would wedge both sides once
// the queue fills.
func (p *Pool) Submit(job domain.Job) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	jobCtx, cancel := context.WithCancel(p.ctx)
	byChapter, ok := p.cancels[job.ChapterID]
	if !ok {
		byChapter = make(map[string]context.CancelFunc)
		p.cancels[job.ChapterID] = byChapter
	}
	byChapter[job.ID] = cancel
	p.mu.Unlock()

	select {
	case p.jobs <- pending{job: job, ctx: jobCtx}:
		return true
	default:
		p.finish(job)
		return false
	}
}

// Cancel cancels one in-flight job. Unknown ids are a no-op.
func (p *Pool) Cancel(chapterID, jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if byChapter, ok := p.cancels[chapterID]; ok {
		if cancel, ok := byChapter[jobID]; ok {
			cancel()
		}
	}
}

// CancelChapter cancels every in-flight job for one chapter and
// returns how many were cancelled. Idempotent with zero jobs in
// flight.
func (p *Pool) CancelChapter(chapterID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	byChapter := p.cancels[chapterID]
	for _, cancel := range byChapter {
		cancel()
	}
	n := len(byChapter)
	if n > 0 {
		p.log.Debug("cancelled chapter jobs", "chapter_id", chapterID, "count", n)
	}
	return n
}

// CancelAll cancels every in-flight job across all chapters.
func (p *Pool) CancelAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, byChapter := range p.cancels {
		for _, cancel := range byChapter {
			cancel()
		}
	}
}

func (p *Pool) finish(job domain.Job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if byChapter, ok := p.cancels[job.ChapterID]; ok {
		if cancel, ok := byChapter[job.ID]; ok {
			cancel()
			delete(byChapter, job.ID)
		}
		if len(byChapter) == 0 {
			delete(p.cancels, job.ChapterID)
		}
	}
}

// InFlight reports the number of jobs submitted but not yet finished.
func (p *Pool) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, byChapter := range p.cancels {
		total += len(byChapter)
	}
	return total
}

// Results is the delivery channel; closed by Close after the workers
// drain.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Close cancels outstanding work and shuts the workers down.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		p.CancelAll()
		// Workers exit via context; the jobs channel is never closed so
		// a racing Submit can never hit a closed channel.
		p.cancel()
		_ = p.g.Wait()
		close(p.results)
	})
}
