// Package index maintains the hierarchical chunk tree as a flat arena
// keyed by stable id. It is a pure data structure: no scheduling, no
// parsing. The manager is the only writer; all reads hand out copies.
package index

import (
	"log/slog"
	"sync"

	"github.com/vampirenirmal/storylens/internal/domain"
	serrors "github.com/vampirenirmal/storylens/pkg/storylens/errors"
)

// ChunkState is the inspectable per-chunk slice of a Snapshot.
type ChunkState struct {
	Level   domain.Level
	Status  domain.Status
	Version uint64
}

// Stats summarizes the index by level and status.
type Stats struct {
	Total      int
	ByLevel    map[domain.Level]int
	ByStatus   map[domain.Status]int
	DirtyCount int
	ErrorCount int
}

// ChapterAnalysis pairs a chapter id with its current analysis.
type ChapterAnalysis struct {
	ChapterID string
	ChunkID   string
	Analysis  *domain.ChunkAnalysis
}

// Index owns every chunk record. Parent/child links are id references,
// never pointers, so the tree stays trivially inspectable.
type Index struct {
	mu        sync.RWMutex
	chunks    map[string]*domain.Chunk
	chapters  map[string]string // chapter id -> chunk id
	chunkRefs map[string]string // chunk id -> chapter id
	log       *slog.Logger
}

// New creates an empty index.
func New(log *slog.Logger) *Index {
	if log == nil {
		log = slog.Default()
	}
	return &Index{
		chunks:    make(map[string]*domain.Chunk),
		chapters:  make(map[string]string),
		chunkRefs: make(map[string]string),
		log:       log,
	}
}

// EnsureRoot creates the book root if absent and returns its id.
func (ix *Index) EnsureRoot() string {
	id := domain.BookRootID()
	ix.RegisterChunk(id, domain.LevelBook, 0, 0, "", "")
	return id
}

// RegisterChunk is an idempotent create-or-get. New chunks start dirty;
// existing chunks are returned untouched so re-registration of
// identical content never perturbs freshness.
func (ix *Index) RegisterChunk(id string, level domain.Level, start, end int, content, parentID string) domain.Chunk {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if existing, ok := ix.chunks[id]; ok {
		return existing.Clone()
	}

	c := &domain.Chunk{
		ID:          id,
		Level:       level,
		StartOffset: start,
		EndOffset:   end,
		ParentID:    parentID,
		Content:     content,
		Status:      domain.StatusDirty,
		Version:     1,
	}
	ix.chunks[id] = c

	if parentID != "" {
		if parent, ok := ix.chunks[parentID]; ok {
			parent.ChildIDs = append(parent.ChildIDs, id)
		} else {
			ix.log.Warn("registering chunk under unknown parent",
				"chunk_id", id,
				"parent_id", parentID,
			)
		}
	}
	return c.Clone()
}

// BindChapter records which chunk is the root of a chapter subtree.
func (ix *Index) BindChapter(chapterID, chunkID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.chapters[chapterID] = chunkID
	ix.chunkRefs[chunkID] = chapterID
}

// Get returns a copy of the chunk, if present.
func (ix *Index) Get(id string) (domain.Chunk, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	c, ok := ix.chunks[id]
	if !ok {
		return domain.Chunk{}, false
	}
	return c.Clone(), true
}

// ChapterChunk returns the chapter-level chunk for a registered chapter.
func (ix *Index) ChapterChunk(chapterID string) (domain.Chunk, bool) {
	ix.mu.RLock()
	id, ok := ix.chapters[chapterID]
	ix.mu.RUnlock()
	if !ok {
		return domain.Chunk{}, false
	}
	return ix.Get(id)
}

// ChapterIDs lists registered chapters in book order.
func (ix *Index) ChapterIDs() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	root, ok := ix.chunks[domain.BookRootID()]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(root.ChildIDs))
	for _, cid := range root.ChildIDs {
		if chap, ok := ix.chunkRefs[cid]; ok {
			out = append(out, chap)
		}
	}
	return out
}

// SetContent replaces a leaf's text and span and marks it dirty. The
// version bump invalidates any in-flight job for the chunk.
func (ix *Index) SetContent(id, content string, start, end int) error {
	ix.mu.Lock()
	c, ok := ix.chunks[id]
	if !ok {
		ix.mu.Unlock()
		return serrors.ErrChunkNotFound
	}
	c.Content = content
	c.StartOffset = start
	c.EndOffset = end
	ix.markDirtyLocked(c)
	ix.mu.Unlock()
	return nil
}

// SetSpan updates a chunk's offsets without touching freshness. Used
// when an edit shifts a scene that is otherwise byte-identical.
func (ix *Index) SetSpan(id string, start, end int) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	c, ok := ix.chunks[id]
	if !ok {
		return serrors.ErrChunkNotFound
	}
	c.StartOffset = start
	c.EndOffset = end
	return nil
}

// MarkDirty sets the chunk dirty, bumps its version, and walks every
// ancestor: a parent is never fresher than its least-fresh child.
func (ix *Index) MarkDirty(id string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	c, ok := ix.chunks[id]
	if !ok {
		return serrors.ErrChunkNotFound
	}
	ix.markDirtyLocked(c)
	return nil
}

func (ix *Index) markDirtyLocked(c *domain.Chunk) {
	c.Status = domain.StatusDirty
	c.Version++
	for parentID := c.ParentID; parentID != ""; {
		parent, ok := ix.chunks[parentID]
		if !ok {
			return
		}
		if parent.Status == domain.StatusDirty {
			// Ancestors above an already-dirty chunk are dirty too.
			return
		}
		parent.Status = domain.StatusDirty
		parent.Version++
		parentID = parent.ParentID
	}
}

// MarkProcessing transitions a dirty chunk to processing. Chunks that
// are not dirty (superseded meanwhile) are left alone.
func (ix *Index) MarkProcessing(id string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	c, ok := ix.chunks[id]
	if !ok || c.Status != domain.StatusDirty {
		return false
	}
	c.Status = domain.StatusProcessing
	return true
}

// Requeue returns a processing chunk to the dirty queue without
// bumping its version. Used when a claimed job could not be handed to
// the pool; the content did not change, so no in-flight work needs
// invalidating.
func (ix *Index) Requeue(id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if c, ok := ix.chunks[id]; ok && c.Status == domain.StatusProcessing {
		c.Status = domain.StatusDirty
	}
}

// MarkError records a job failure. The chunk stays out of the dirty
// queue until RetryErrors re-queues it explicitly.
func (ix *Index) MarkError(id, msg string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	c, ok := ix.chunks[id]
	if !ok {
		return serrors.ErrChunkNotFound
	}
	c.Status = domain.StatusError
	c.LastError = msg
	return nil
}

// UpdateAnalysis attaches a fresh analysis unconditionally. Callers
// must already have verified the producing job was not superseded.
func (ix *Index) UpdateAnalysis(id string, a *domain.ChunkAnalysis) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	c, ok := ix.chunks[id]
	if !ok {
		return serrors.ErrChunkNotFound
	}
	c.Analysis = a
	c.Status = domain.StatusFresh
	c.LastError = ""
	return nil
}

// UpdateAnalysisAt applies a result only if the chunk is still at the
// version the job was submitted for. A mismatch means a newer edit
// supersedes the result: last edit wins.
func (ix *Index) UpdateAnalysisAt(id string, a *domain.ChunkAnalysis, version uint64) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	c, ok := ix.chunks[id]
	if !ok {
		return serrors.ErrChunkNotFound
	}
	if c.Version != version {
		return serrors.ErrStaleResult
	}
	c.Analysis = a
	c.Status = domain.StatusFresh
	c.LastError = ""
	return nil
}

// Version returns the chunk's current version counter.
func (ix *Index) Version(id string) (uint64, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	c, ok := ix.chunks[id]
	if !ok {
		return 0, false
	}
	return c.Version, true
}

// DirtyChunks returns copies of every chunk currently in dirty state.
func (ix *Index) DirtyChunks() []domain.Chunk {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []domain.Chunk
	for _, c := range ix.chunks {
		if c.Status == domain.StatusDirty {
			out = append(out, c.Clone())
		}
	}
	return out
}

// ErrorChunks returns copies of every chunk in error state.
func (ix *Index) ErrorChunks() []domain.Chunk {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []domain.Chunk
	for _, c := range ix.chunks {
		if c.Status == domain.StatusError {
			out = append(out, c.Clone())
		}
	}
	return out
}

// ChildrenFresh reports whether every child of the chunk is fresh.
// A leaf is vacuously ready.
func (ix *Index) ChildrenFresh(id string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	c, ok := ix.chunks[id]
	if !ok {
		return false
	}
	for _, cid := range c.ChildIDs {
		child, ok := ix.chunks[cid]
		if !ok || child.Status != domain.StatusFresh {
			return false
		}
	}
	return true
}

// ChildAnalyses returns the analyses of all children, rejecting the
// call when any child is not fresh. Scheduling already prevents that
// case; this is the defensive check behind the aggregator.
func (ix *Index) ChildAnalyses(id string) ([]domain.ChunkAnalysis, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	c, ok := ix.chunks[id]
	if !ok {
		return nil, serrors.ErrChunkNotFound
	}
	out := make([]domain.ChunkAnalysis, 0, len(c.ChildIDs))
	for _, cid := range c.ChildIDs {
		child, ok := ix.chunks[cid]
		if !ok || child.Status != domain.StatusFresh || child.Analysis == nil {
			return nil, serrors.ErrAggregateNotReady
		}
		out = append(out, *child.Analysis)
	}
	return out, nil
}

// ChapterOf resolves the chapter id owning a chunk by walking up to
// the chapter level. Empty for the book root and unknown ids.
func (ix *Index) ChapterOf(id string) string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	for id != "" {
		c, ok := ix.chunks[id]
		if !ok {
			return ""
		}
		if c.Level == domain.LevelChapter {
			return ix.chunkRefs[c.ID]
		}
		id = c.ParentID
	}
	return ""
}

// SceneAt returns the scene chunk of a chapter containing the given
// character offset.
func (ix *Index) SceneAt(chapterID string, offset int) (domain.Chunk, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	chapID, ok := ix.chapters[chapterID]
	if !ok {
		return domain.Chunk{}, false
	}
	chap, ok := ix.chunks[chapID]
	if !ok {
		return domain.Chunk{}, false
	}
	for _, cid := range chap.ChildIDs {
		sc, ok := ix.chunks[cid]
		if ok && offset >= sc.StartOffset && offset < sc.EndOffset {
			return sc.Clone(), true
		}
	}
	return domain.Chunk{}, false
}

// AllChapterAnalyses lists every chapter's current analysis in book
// order. Non-fresh chapters appear with their last analysis, which may
// be nil.
func (ix *Index) AllChapterAnalyses() []ChapterAnalysis {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	root, ok := ix.chunks[domain.BookRootID()]
	if !ok {
		return nil
	}
	out := make([]ChapterAnalysis, 0, len(root.ChildIDs))
	for _, cid := range root.ChildIDs {
		c, ok := ix.chunks[cid]
		if !ok {
			continue
		}
		out = append(out, ChapterAnalysis{
			ChapterID: ix.chunkRefs[cid],
			ChunkID:   cid,
			Analysis:  c.Analysis,
		})
	}
	return out
}

// RemoveSubtree deletes a chunk and all descendants, detaching it from
// its parent. Removing a subtree dirties the surviving ancestors.
func (ix *Index) RemoveSubtree(id string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	c, ok := ix.chunks[id]
	if !ok {
		return serrors.ErrChunkNotFound
	}
	if parent, ok := ix.chunks[c.ParentID]; ok {
		kept := parent.ChildIDs[:0]
		for _, cid := range parent.ChildIDs {
			if cid != id {
				kept = append(kept, cid)
			}
		}
		parent.ChildIDs = kept
		ix.markDirtyLocked(parent)
	}
	ix.removeLocked(c)
	return nil
}

func (ix *Index) removeLocked(c *domain.Chunk) {
	for _, cid := range c.ChildIDs {
		if child, ok := ix.chunks[cid]; ok {
			ix.removeLocked(child)
		}
	}
	if chap, ok := ix.chunkRefs[c.ID]; ok {
		delete(ix.chapters, chap)
		delete(ix.chunkRefs, c.ID)
	}
	delete(ix.chunks, c.ID)
}

// Clear drops every chunk.
func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.chunks = make(map[string]*domain.Chunk)
	ix.chapters = make(map[string]string)
	ix.chunkRefs = make(map[string]string)
}

// GetStats counts chunks by level and status.
func (ix *Index) GetStats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	st := Stats{
		ByLevel:  make(map[domain.Level]int),
		ByStatus: make(map[domain.Status]int),
	}
	for _, c := range ix.chunks {
		st.Total++
		st.ByLevel[c.Level]++
		st.ByStatus[c.Status]++
	}
	st.DirtyCount = st.ByStatus[domain.StatusDirty]
	st.ErrorCount = st.ByStatus[domain.StatusError]
	return st
}

// Snapshot returns the id -> state map for inspection in tests and
// debug overlays.
func (ix *Index) Snapshot() map[string]ChunkState {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make(map[string]ChunkState, len(ix.chunks))
	for id, c := range ix.chunks {
		out[id] = ChunkState{Level: c.Level, Status: c.Status, Version: c.Version}
	}
	return out
}
