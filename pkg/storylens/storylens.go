// Package storylens is the public facade over the incremental
// manuscript analytics engine: register chapters, feed edits, and read
// fresh per-scene, per-chapter, and book-level analyses back out.
//
// All mutation is asynchronous. Edits mark chunks dirty; a background
// loop coalesces bursts and recomputes bottom-up. Queries never block
// on processing and report staleness through chunk status instead.
package storylens

import (
	"log/slog"

	"github.com/vampirenirmal/storylens/internal/arc"
	"github.com/vampirenirmal/storylens/internal/config"
	"github.com/vampirenirmal/storylens/internal/domain"
	"github.com/vampirenirmal/storylens/internal/index"
	"github.com/vampirenirmal/storylens/internal/manager"
	"github.com/vampirenirmal/storylens/internal/parse"
)

// Re-exported model types.
type (
	Chunk                 = domain.Chunk
	ChunkAnalysis         = domain.ChunkAnalysis
	Level                 = domain.Level
	Status                = domain.Status
	Scene                 = domain.Scene
	Paragraph             = domain.Paragraph
	ParagraphType         = domain.ParagraphType
	DialogueTurn          = domain.DialogueTurn
	TextStats             = domain.TextStats
	StructuralFingerprint = domain.StructuralFingerprint

	Config    = config.Config
	Callbacks = manager.Callbacks
	Weights   = parse.Weights

	ChunkState      = index.ChunkState
	Stats           = index.Stats
	ChapterAnalysis = index.ChapterAnalysis

	ArcAnalysis   = arc.Analysis
	ArcSegment    = arc.Segment
	ArcPhase      = arc.Phase
	SceneSample   = arc.SceneSample
	StructureType = arc.StructureType
)

const (
	LevelScene   = domain.LevelScene
	LevelChapter = domain.LevelChapter
	LevelAct     = domain.LevelAct
	LevelBook    = domain.LevelBook

	StatusDirty      = domain.StatusDirty
	StatusProcessing = domain.StatusProcessing
	StatusFresh      = domain.StatusFresh
	StatusError      = domain.StatusError
)

// DefaultConfig returns the tuned engine defaults.
func DefaultConfig() Config { return config.Default() }

// LoadConfig reads configuration from file and environment.
func LoadConfig() (*Config, error) { return config.Load() }

// DefaultWeights returns the parser's tuned heuristic constants.
func DefaultWeights() Weights { return parse.DefaultWeights() }

// Option customizes the engine.
type Option = manager.Option

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option { return manager.WithLogger(log) }

// WithCallbacks installs lifecycle callbacks.
func WithCallbacks(cb Callbacks) Option { return manager.WithCallbacks(cb) }

// WithWeights overrides the parser's tuned constants.
func WithWeights(w Weights) Option { return manager.WithParserWeights(w) }

// Engine is the top-level handle. Safe for concurrent use.
type Engine struct {
	m *manager.Manager
}

// New starts an engine. Invalid configuration is the only synchronous
// error; all later failures land in chunk state or callbacks.
func New(cfg Config, opts ...Option) (*Engine, error) {
	m, err := manager.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &Engine{m: m}, nil
}

// RegisterChapter ingests a chapter's full text, segmenting it into
// scene chunks and queueing them for analysis.
func (e *Engine) RegisterChapter(chapterID, text string) error {
	return e.m.RegisterChapter(chapterID, text)
}

// HandleEdit applies an edited chapter text. Only scenes whose content
// actually changed are re-queued; shifted but identical scenes keep
// their analyses.
func (e *Engine) HandleEdit(chapterID, text string, editStart, editEnd int) error {
	return e.m.HandleEdit(chapterID, text, editStart, editEnd)
}

// UnregisterChapter removes a chapter and cancels its outstanding work.
func (e *Engine) UnregisterChapter(chapterID string) error {
	return e.m.UnregisterChapter(chapterID)
}

// GetChunk returns a copy of one chunk by id.
func (e *Engine) GetChunk(id string) (Chunk, error) { return e.m.GetChunk(id) }

// GetChapterChunk returns the chapter-level chunk.
func (e *Engine) GetChapterChunk(chapterID string) (Chunk, error) {
	return e.m.GetChapterChunk(chapterID)
}

// GetAnalysisAtCursor returns the scene containing the given character
// offset within a chapter.
func (e *Engine) GetAnalysisAtCursor(chapterID string, offset int) (Chunk, error) {
	return e.m.GetAnalysisAtCursor(chapterID, offset)
}

// GetAggregate returns a chapter or book aggregate once it is fresh.
func (e *Engine) GetAggregate(level Level, chapterID string) (ChunkAnalysis, error) {
	return e.m.GetAggregate(level, chapterID)
}

// GetBookSummary returns the book root aggregate once it is fresh.
func (e *Engine) GetBookSummary() (ChunkAnalysis, error) { return e.m.GetBookSummary() }

// GetAllChapterAnalyses lists chapter analyses in book order.
func (e *Engine) GetAllChapterAnalyses() []ChapterAnalysis {
	return e.m.GetAllChapterAnalyses()
}

// GetStats reports index composition by level and status.
func (e *Engine) GetStats() Stats { return e.m.GetStats() }

// Snapshot exposes per-chunk status and versions for inspection.
func (e *Engine) Snapshot() map[string]ChunkState { return e.m.Snapshot() }

// ProcessAllDirty runs one synchronous bottom-up drain pass.
func (e *Engine) ProcessAllDirty() { e.m.ProcessAllDirty() }

// ReprocessChunk forces one chunk back through analysis.
func (e *Engine) ReprocessChunk(id string) error { return e.m.ReprocessChunk(id) }

// RetryErrors re-queues every error chunk and returns how many.
func (e *Engine) RetryErrors() int { return e.m.RetryErrors() }

// Pause stops background processing; edits keep accumulating.
func (e *Engine) Pause() { e.m.Pause() }

// Resume restarts background processing.
func (e *Engine) Resume() { e.m.Resume() }

// Clear drops every chunk and cancels outstanding work.
func (e *Engine) Clear() { e.m.Clear() }

// Destroy stops the engine. It is unusable afterwards.
func (e *Engine) Destroy() { e.m.Destroy() }

// ChapterArc derives the narrative arc over a chapter's scenes. All
// scenes must be fresh.
func (e *Engine) ChapterArc(chapterID string) (ArcAnalysis, error) {
	return e.m.ChapterArc(chapterID)
}

// BookArc derives the arc over the whole manuscript in book order.
func (e *Engine) BookArc() (ArcAnalysis, error) { return e.m.BookArc() }

// ParseStructure runs the structural parser standalone, outside the
// chunk lifecycle. Empty text yields empty slices, never an error.
func ParseStructure(text string) StructuralFingerprint {
	return parse.NewParser().ParseStructure(text)
}

// AnalyzeNarrativeArc classifies an ordered scene tension curve.
func AnalyzeNarrativeArc(samples []SceneSample) ArcAnalysis {
	return arc.AnalyzeNarrativeArc(samples)
}

// CurrentArcPhase returns the phase containing the given offset.
func CurrentArcPhase(a ArcAnalysis, offset int) (ArcPhase, bool) {
	return arc.CurrentArcPhase(a, offset)
}
