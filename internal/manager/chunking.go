package manager

import (
	"github.com/vampirenirmal/storylens/internal/domain"
	serrors "github.com/vampirenirmal/storylens/pkg/storylens/errors"
)

// RegisterChapter chunks the text into scene records and builds or
// refreshes the chapter subtree. Re-registering identical text leaves
// fresh chunks untouched; changed text re-segments and dirties only
// the affected scenes.
func (m *Manager) RegisterChapter(chapterID, text string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return serrors.ErrEngineClosed
	}
	m.mu.Unlock()

	rootID := m.idx.EnsureRoot()
	chapChunkID := domain.ChunkID(domain.LevelChapter, chapterID, 0)
	m.idx.RegisterChunk(chapChunkID, domain.LevelChapter, 0, len(text), "", rootID)
	m.idx.BindChapter(chapterID, chapChunkID)
	_ = m.idx.SetSpan(chapChunkID, 0, len(text))

	if m.syncScenes(chapterID, chapChunkID, text) {
		if m.pool != nil {
			m.pool.CancelChapter(chapterID)
		}
		m.invalidateArcChapter(chapterID)
		m.log.Debug("chapter registered", "chapter_id", chapterID, "bytes", len(text))
		m.notifyQueue()
		m.scheduleDebounce()
	}
	return nil
}

// HandleEdit applies an edited chapter text. Scenes overlapping the
// edit are updated and dirtied along with their ancestors; untouched
// scenes keep their freshness even when the edit shifted their
// offsets. In-flight jobs for the chapter are cancelled so a
// superseded result can never overwrite newer dirty state.
func (m *Manager) HandleEdit(chapterID, text string, editStart, editEnd int) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return serrors.ErrEngineClosed
	}
	m.mu.Unlock()

	chap, ok := m.idx.ChapterChunk(chapterID)
	if !ok {
		return serrors.ErrChapterNotRegistered
	}

	if m.pool != nil {
		m.pool.CancelChapter(chapterID)
	}
	_ = m.idx.SetSpan(chap.ID, 0, len(text))

	if m.syncScenes(chapterID, chap.ID, text) {
		m.invalidateArcChapter(chapterID)
		m.log.Debug("edit applied",
			"chapter_id", chapterID,
			"edit_start", editStart,
			"edit_end", editEnd,
		)
		m.notifyQueue()
	}
	m.scheduleDebounce()
	return nil
}

// UnregisterChapter removes a chapter subtree, cancelling its
// outstanding jobs. The surviving book root is dirtied.
func (m *Manager) UnregisterChapter(chapterID string) error {
	chap, ok := m.idx.ChapterChunk(chapterID)
	if !ok {
		return serrors.ErrChapterNotRegistered
	}
	if m.pool != nil {
		m.pool.CancelChapter(chapterID)
	}
	err := m.idx.RemoveSubtree(chap.ID)
	m.invalidateArcChapter(chapterID)
	m.notifyQueue()
	m.scheduleDebounce()
	return err
}

// syncScenes reconciles the chapter's scene children against a fresh
// segmentation of the text. Scene identity is positional: the i-th
// scene keeps the i-th stable id. Byte-identical scenes are left
// untouched (offsets silently realigned); changed scenes are rewritten
// and dirtied; trailing leftovers are removed.
func (m *Manager) syncScenes(chapterID, chapChunkID, text string) bool {
	spans := m.parser.SceneSpans(text)
	changed := false

	for i, sp := range spans {
		id := domain.ChunkID(domain.LevelScene, chapterID, i)
		content := text[sp.Start:sp.End]
		if existing, ok := m.idx.Get(id); ok {
			if existing.Content == content {
				if existing.StartOffset != sp.Start || existing.EndOffset != sp.End {
					_ = m.idx.SetSpan(id, sp.Start, sp.End)
				}
				continue
			}
			_ = m.idx.SetContent(id, content, sp.Start, sp.End)
			changed = true
			continue
		}
		m.idx.RegisterChunk(id, domain.LevelScene, sp.Start, sp.End, content, chapChunkID)
		_ = m.idx.MarkDirty(id)
		changed = true
	}

	for i := len(spans); ; i++ {
		id := domain.ChunkID(domain.LevelScene, chapterID, i)
		if _, ok := m.idx.Get(id); !ok {
			break
		}
		_ = m.idx.RemoveSubtree(id)
		changed = true
	}
	return changed
}
