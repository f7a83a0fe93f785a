// Package manager schedules incremental recomputation over the chunk
// index: it decides what is dirty, coalesces edit bursts, dispatches
// bottom-up analysis jobs through the worker pool or inline, and folds
// results back into the index. It is the index's only writer.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vampirenirmal/storylens/internal/config"
	"github.com/vampirenirmal/storylens/internal/domain"
	"github.com/vampirenirmal/storylens/internal/index"
	"github.com/vampirenirmal/storylens/internal/parse"
	"github.com/vampirenirmal/storylens/internal/pool"
	serrors "github.com/vampirenirmal/storylens/pkg/storylens/errors"
)

// Callbacks surface lifecycle events upward. All fields are optional
// and invoked from the manager's own goroutines.
type Callbacks struct {
	OnProcessingStart func()
	OnProcessingEnd   func()
	OnQueueChange     func(dirtyCount int)
	OnError           func(chunkID, message string)
}

// Manager owns the processing loop.
type Manager struct {
	cfg     config.Config
	idx     *index.Index
	parser  *parse.Parser
	pool    *pool.Pool // nil when the worker path is disabled
	limiter *rate.Limiter
	log     *slog.Logger
	cb      Callbacks

	// procMu serializes drain passes so the index has one logical
	// writer even when ProcessAllDirty is called from the outside.
	procMu sync.Mutex

	mu        sync.Mutex
	paused    bool
	closed    bool
	debounce  *time.Timer
	inFlight  map[string]domain.Job // chunk id -> latest job
	lastDirty int
	arcCache  map[string]arcCacheEntry

	kick chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// Option customizes the manager.
type Option func(*Manager)

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithCallbacks installs lifecycle callbacks.
func WithCallbacks(cb Callbacks) Option {
	return func(m *Manager) { m.cb = cb }
}

// WithParserWeights overrides the parser's tuned constants.
func WithParserWeights(w parse.Weights) Option {
	return func(m *Manager) { m.parser = parse.NewParser(parse.WithWeights(w)) }
}

// New validates the configuration and starts the processing loop.
// Configuration problems are the only synchronous errors.
func New(cfg config.Config, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:      cfg,
		idx:      index.New(nil),
		parser:   parse.NewParser(),
		log:      slog.Default(),
		inFlight: make(map[string]domain.Job),
		arcCache: make(map[string]arcCacheEntry),
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	if cfg.DrainRatePerSec > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(cfg.DrainRatePerSec), 1)
	}
	if cfg.UseWorker {
		m.pool = pool.New(context.Background(), m.computeLeaf,
			pool.WithWorkers(cfg.Workers),
			pool.WithLogger(m.log),
		)
	}

	m.wg.Add(1)
	go m.run()
	return m, nil
}

// run is the background drain loop: the debounce kick, the periodic
// tick, and worker results all land here.
func (m *Manager) run() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.ProcessingInterval)
	defer ticker.Stop()

	var results <-chan pool.Result
	if m.pool != nil {
		results = m.pool.Results()
	}

	for {
		select {
		case <-m.done:
			return
		case <-m.kick:
			m.ProcessAllDirty()
		case <-ticker.C:
			if m.limiter == nil || m.limiter.Allow() {
				m.ProcessAllDirty()
			}
		case res, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			m.applyResult(res)
			m.ProcessAllDirty()
		}
	}
}

// ProcessAllDirty runs one strictly bottom-up pass over the dirty set.
// Leaves parse (inline or via the pool); a non-leaf aggregates only
// once every child is fresh, so aggregates never see partial children.
func (m *Manager) ProcessAllDirty() {
	m.mu.Lock()
	if m.closed || m.paused {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.procMu.Lock()
	defer m.procMu.Unlock()

	dirty := sortBottomUp(m.idx.DirtyChunks())
	if len(dirty) == 0 {
		m.notifyQueue()
		return
	}
	if m.cb.OnProcessingStart != nil {
		m.cb.OnProcessingStart()
	}

	for _, c := range dirty {
		if c.IsLeaf() {
			if m.pool != nil {
				m.dispatchLeaf(c)
			} else {
				m.processLeafInline(c)
			}
			continue
		}
		if m.idx.ChildrenFresh(c.ID) {
			m.processAggregate(c)
		}
	}

	m.notifyQueue()
	if m.cb.OnProcessingEnd != nil {
		m.cb.OnProcessingEnd()
	}
}

// levelDepth orders levels children-first.
func levelDepth(l domain.Level) int {
	switch l {
	case domain.LevelScene:
		return 0
	case domain.LevelChapter:
		return 1
	case domain.LevelAct:
		return 2
	default:
		return 3
	}
}

func sortBottomUp(chunks []domain.Chunk) []domain.Chunk {
	// Insertion sort: dirty sets are small and mostly ordered.
	for i := 1; i < len(chunks); i++ {
		for j := i; j > 0 && levelDepth(chunks[j].Level) < levelDepth(chunks[j-1].Level); j-- {
			chunks[j], chunks[j-1] = chunks[j-1], chunks[j]
		}
	}
	return chunks
}

// dispatchLeaf submits a PROCESS_LEAF job unless one is already in
// flight for this exact version.
func (m *Manager) dispatchLeaf(c domain.Chunk) {
	m.mu.Lock()
	if prev, ok := m.inFlight[c.ID]; ok && prev.SubmittedAtVersion == c.Version {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	job, ok := m.claimLeaf(c.ID)
	if !ok {
		return
	}
	m.mu.Lock()
	m.inFlight[c.ID] = job
	m.mu.Unlock()

	if !m.pool.Submit(job) {
		// Queue full or pool shut down; the chunk goes back to the
		// dirty queue and the next drain picks it up once results free
		// worker capacity.
		m.idx.Requeue(c.ID)
		m.mu.Lock()
		delete(m.inFlight, c.ID)
		m.mu.Unlock()
	}
}

// processLeafInline runs the identical leaf algorithm synchronously.
func (m *Manager) processLeafInline(c domain.Chunk) {
	job, ok := m.claimLeaf(c.ID)
	if !ok {
		return
	}
	analysis, err := m.computeLeaf(context.Background(), job)
	m.applyResult(pool.Result{Job: job, Analysis: analysis, Err: err})
}

// claimLeaf transitions a dirty leaf to processing and builds its job
// from a consistent content/version snapshot. Re-reading after the
// claim means an edit racing the claim just produces a job for the
// newer version.
func (m *Manager) claimLeaf(id string) (domain.Job, bool) {
	if !m.idx.MarkProcessing(id) {
		return domain.Job{}, false
	}
	c, ok := m.idx.Get(id)
	if !ok {
		return domain.Job{}, false
	}
	return domain.Job{
		ID:                 domain.NewJobID(),
		ChapterID:          m.idx.ChapterOf(c.ID),
		ChunkID:            c.ID,
		Type:               domain.JobProcessLeaf,
		Text:               c.Content,
		SubmittedAtVersion: c.Version,
	}, true
}

// computeLeaf is the shared leaf processor for both paths. Parser
// panics are captured as parse failures; the manager never crashes on
// a bad chunk.
func (m *Manager) computeLeaf(_ context.Context, job domain.Job) (analysis domain.ChunkAnalysis, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &serrors.ParseError{ChunkID: job.ChunkID, Err: fmt.Errorf("%v", r)}
		}
	}()
	_, analysis = m.parser.AnalyzeChunk(job.Text)
	return analysis, nil
}

// processAggregate rolls fresh children up into a non-leaf analysis.
func (m *Manager) processAggregate(c domain.Chunk) {
	children, err := m.idx.ChildAnalyses(c.ID)
	if err != nil {
		// Children moved under us since eligibility was checked; the
		// chunk stays dirty and is retried once they catch up.
		m.log.Warn("aggregate children not fresh, leaving dirty",
			"chunk_id", c.ID,
			"level", c.Level,
			"error", err,
		)
		return
	}
	agg := aggregate(children)
	if err := m.idx.UpdateAnalysisAt(c.ID, &agg, c.Version); err != nil {
		m.log.Debug("aggregate superseded", "chunk_id", c.ID, "version", c.Version)
	} else {
		m.invalidateArc(c.ID)
	}
}

// applyResult folds one job result into the index. Results for
// superseded versions and cancelled jobs are discarded silently: a
// newer edit always wins.
func (m *Manager) applyResult(res pool.Result) {
	m.mu.Lock()
	if cur, ok := m.inFlight[res.Job.ChunkID]; ok && cur.ID == res.Job.ID {
		delete(m.inFlight, res.Job.ChunkID)
	}
	m.mu.Unlock()

	if res.Err != nil {
		if errors.Is(res.Err, context.Canceled) {
			m.log.Debug("cancelled job discarded",
				"job_id", res.Job.ID,
				"chunk_id", res.Job.ChunkID,
			)
			return
		}
		err := res.Err
		if !serrors.IsParseError(err) {
			// Failures outside the parser itself carry job context.
			err = &serrors.WorkerError{JobID: res.Job.ID, ChunkID: res.Job.ChunkID, Err: err}
		}
		msg := err.Error()
		m.log.Error("job failed",
			"job_id", res.Job.ID,
			"chunk_id", res.Job.ChunkID,
			"error", err,
		)
		_ = m.idx.MarkError(res.Job.ChunkID, msg)
		if m.cb.OnError != nil {
			m.cb.OnError(res.Job.ChunkID, msg)
		}
		m.notifyQueue()
		return
	}

	analysis := res.Analysis
	err := m.idx.UpdateAnalysisAt(res.Job.ChunkID, &analysis, res.Job.SubmittedAtVersion)
	switch {
	case errors.Is(err, serrors.ErrStaleResult):
		m.log.Debug("stale result discarded",
			"job_id", res.Job.ID,
			"chunk_id", res.Job.ChunkID,
			"submitted_at", res.Job.SubmittedAtVersion,
		)
	case err != nil:
		m.log.Debug("result for removed chunk discarded", "chunk_id", res.Job.ChunkID)
	default:
		m.invalidateArc(res.Job.ChunkID)
	}
}

// notifyQueue reports the dirty count when it changed.
func (m *Manager) notifyQueue() {
	if m.cb.OnQueueChange == nil {
		return
	}
	dirty := m.idx.GetStats().DirtyCount
	m.mu.Lock()
	changed := dirty != m.lastDirty
	m.lastDirty = dirty
	m.mu.Unlock()
	if changed {
		m.cb.OnQueueChange(dirty)
	}
}

// scheduleDebounce arms (or re-arms) the edit coalescing timer.
func (m *Manager) scheduleDebounce() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if m.debounce != nil {
		m.debounce.Stop()
	}
	m.debounce = time.AfterFunc(m.cfg.EditDebounce, func() {
		select {
		case m.kick <- struct{}{}:
		default:
		}
	})
}

// Pause stops background processing; queued dirt accumulates.
func (m *Manager) Pause() {
	m.mu.Lock()
	m.paused = true
	m.mu.Unlock()
}

// Resume restarts background processing and triggers a drain.
func (m *Manager) Resume() {
	m.mu.Lock()
	m.paused = false
	closed := m.closed
	m.mu.Unlock()
	if !closed {
		select {
		case m.kick <- struct{}{}:
		default:
		}
	}
}

// RetryErrors re-queues every error chunk as dirty. There is no
// automatic retry anywhere else.
func (m *Manager) RetryErrors() int {
	errored := m.idx.ErrorChunks()
	for _, c := range errored {
		_ = m.idx.MarkDirty(c.ID)
	}
	if len(errored) > 0 {
		m.notifyQueue()
		m.scheduleDebounce()
	}
	return len(errored)
}

// ReprocessChunk forces one chunk back through analysis.
func (m *Manager) ReprocessChunk(id string) error {
	if err := m.idx.MarkDirty(id); err != nil {
		return err
	}
	m.scheduleDebounce()
	return nil
}

// Clear drops all chunks and cancels outstanding work.
func (m *Manager) Clear() {
	if m.pool != nil {
		m.pool.CancelAll()
	}
	m.procMu.Lock()
	m.idx.Clear()
	m.procMu.Unlock()
	m.mu.Lock()
	m.inFlight = make(map[string]domain.Job)
	m.arcCache = make(map[string]arcCacheEntry)
	m.mu.Unlock()
	m.notifyQueue()
}

// Destroy cancels all outstanding jobs, stops the loop, and releases
// the index. The manager is unusable afterwards.
func (m *Manager) Destroy() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	if m.debounce != nil {
		m.debounce.Stop()
	}
	m.mu.Unlock()

	close(m.done)
	if m.pool != nil {
		m.pool.Close()
	}
	m.wg.Wait()
	m.idx.Clear()
}
