package manager

import (
	"fmt"
	"strings"

	"github.com/vampirenirmal/storylens/internal/arc"
	"github.com/vampirenirmal/storylens/internal/domain"
	"github.com/vampirenirmal/storylens/internal/index"
	serrors "github.com/vampirenirmal/storylens/pkg/storylens/errors"
)

const bookArcKey = "book"

// arcCacheEntry memoizes a derived arc keyed by the versions of the
// scenes it was computed from. Any version drift misses the cache.
type arcCacheEntry struct {
	fingerprint string
	analysis    arc.Analysis
}

// invalidateArc drops cached arcs affected by a change to one chunk.
func (m *Manager) invalidateArc(chunkID string) {
	if chapterID := m.idx.ChapterOf(chunkID); chapterID != "" {
		m.invalidateArcChapter(chapterID)
		return
	}
	m.mu.Lock()
	delete(m.arcCache, bookArcKey)
	m.mu.Unlock()
}

func (m *Manager) invalidateArcChapter(chapterID string) {
	m.mu.Lock()
	delete(m.arcCache, "chapter:"+chapterID)
	delete(m.arcCache, bookArcKey)
	m.mu.Unlock()
}

// GetChunk returns a copy of one chunk by id.
func (m *Manager) GetChunk(id string) (domain.Chunk, error) {
	c, ok := m.idx.Get(id)
	if !ok {
		return domain.Chunk{}, serrors.ErrChunkNotFound
	}
	return c, nil
}

// GetChapterChunk returns the chapter-level chunk for a registered
// chapter.
func (m *Manager) GetChapterChunk(chapterID string) (domain.Chunk, error) {
	c, ok := m.idx.ChapterChunk(chapterID)
	if !ok {
		return domain.Chunk{}, serrors.ErrChapterNotRegistered
	}
	return c, nil
}

// GetAnalysisAtCursor returns the scene containing the given character
// offset. The scene's Analysis is nil while it is still dirty or
// processing.
func (m *Manager) GetAnalysisAtCursor(chapterID string, offset int) (domain.Chunk, error) {
	if _, ok := m.idx.ChapterChunk(chapterID); !ok {
		return domain.Chunk{}, serrors.ErrChapterNotRegistered
	}
	sc, ok := m.idx.SceneAt(chapterID, offset)
	if !ok {
		return domain.Chunk{}, serrors.ErrChunkNotFound
	}
	return sc, nil
}

// GetAggregate returns the current analysis of a chapter or the book
// root. Dirty or partially processed aggregates are not served.
func (m *Manager) GetAggregate(level domain.Level, chapterID string) (domain.ChunkAnalysis, error) {
	var (
		c  domain.Chunk
		ok bool
	)
	switch level {
	case domain.LevelBook:
		c, ok = m.idx.Get(domain.BookRootID())
	case domain.LevelChapter:
		c, ok = m.idx.ChapterChunk(chapterID)
		if !ok {
			return domain.ChunkAnalysis{}, serrors.ErrChapterNotRegistered
		}
	default:
		return domain.ChunkAnalysis{}, fmt.Errorf("level %q has no aggregate", level)
	}
	if !ok {
		return domain.ChunkAnalysis{}, serrors.ErrChunkNotFound
	}
	if c.Status != domain.StatusFresh || c.Analysis == nil {
		return domain.ChunkAnalysis{}, serrors.ErrAggregateNotReady
	}
	return *c.Analysis, nil
}

// GetBookSummary returns the book root analysis.
func (m *Manager) GetBookSummary() (domain.ChunkAnalysis, error) {
	return m.GetAggregate(domain.LevelBook, "")
}

// GetAllChapterAnalyses lists chapter analyses in book order.
func (m *Manager) GetAllChapterAnalyses() []index.ChapterAnalysis {
	return m.idx.AllChapterAnalyses()
}

// GetStats reports index composition by level and status.
func (m *Manager) GetStats() index.Stats {
	return m.idx.GetStats()
}

// Snapshot exposes per-chunk status and versions for inspection.
func (m *Manager) Snapshot() map[string]index.ChunkState {
	return m.idx.Snapshot()
}

// ChapterArc derives the narrative arc over a chapter's scenes. Every
// scene must be fresh; results are cached until any scene's version
// moves.
func (m *Manager) ChapterArc(chapterID string) (arc.Analysis, error) {
	chap, ok := m.idx.ChapterChunk(chapterID)
	if !ok {
		return arc.Analysis{}, serrors.ErrChapterNotRegistered
	}
	samples, fp, err := m.sceneSamples(chap, 0)
	if err != nil {
		return arc.Analysis{}, err
	}
	return m.cachedArc("chapter:"+chapterID, fp, samples), nil
}

// BookArc derives the arc over every scene of every chapter in book
// order. Scene offsets are rebased so the curve spans the manuscript.
func (m *Manager) BookArc() (arc.Analysis, error) {
	var (
		samples []arc.SceneSample
		parts   []string
		base    int
	)
	for _, chapterID := range m.idx.ChapterIDs() {
		chap, ok := m.idx.ChapterChunk(chapterID)
		if !ok {
			continue
		}
		chSamples, fp, err := m.sceneSamples(chap, base)
		if err != nil {
			return arc.Analysis{}, err
		}
		samples = append(samples, chSamples...)
		parts = append(parts, chapterID+"="+fp)
		base += chap.EndOffset
	}
	return m.cachedArc(bookArcKey, strings.Join(parts, ";"), samples), nil
}

// sceneSamples collects tension samples from a chapter's scene
// children along with a version fingerprint for cache keying.
func (m *Manager) sceneSamples(chap domain.Chunk, base int) ([]arc.SceneSample, string, error) {
	samples := make([]arc.SceneSample, 0, len(chap.ChildIDs))
	var fp strings.Builder
	for _, cid := range chap.ChildIDs {
		sc, ok := m.idx.Get(cid)
		if !ok || sc.Status != domain.StatusFresh || sc.Analysis == nil {
			return nil, "", serrors.ErrAggregateNotReady
		}
		samples = append(samples, arc.SceneSample{
			Tension:     sc.Analysis.AvgTension,
			StartOffset: base + sc.StartOffset,
			EndOffset:   base + sc.EndOffset,
		})
		fmt.Fprintf(&fp, "%d,", sc.Version)
	}
	return samples, fp.String(), nil
}

func (m *Manager) cachedArc(key, fingerprint string, samples []arc.SceneSample) arc.Analysis {
	m.mu.Lock()
	if entry, ok := m.arcCache[key]; ok && entry.fingerprint == fingerprint {
		m.mu.Unlock()
		return entry.analysis
	}
	m.mu.Unlock()

	a := arc.AnalyzeNarrativeArc(samples)

	m.mu.Lock()
	m.arcCache[key] = arcCacheEntry{fingerprint: fingerprint, analysis: a}
	m.mu.Unlock()
	return a
}
