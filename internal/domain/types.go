package domain

import "time"

// Level identifies the granularity of a chunk in the manuscript tree.
type Level string

const (
	LevelScene   Level = "scene"
	LevelChapter Level = "chapter"
	LevelAct     Level = "act"
	LevelBook    Level = "book"
)

// IsLeaf reports whether chunks at this level carry raw text.
func (l Level) IsLeaf() bool {
	return l == LevelScene
}

// Status tracks the freshness of a chunk's analysis.
type Status string

const (
	StatusDirty      Status = "dirty"
	StatusProcessing Status = "processing"
	StatusFresh      Status = "fresh"
	StatusError      Status = "error"
)

// Chunk is one node of the manuscript tree. The index owns all Chunk
// records; everything handed out across the API boundary is a copy.
type Chunk struct {
	ID          string
	Level       Level
	StartOffset int
	EndOffset   int
	ParentID    string // empty for the book root
	ChildIDs    []string
	Content     string // leaves only
	Status      Status
	Analysis    *ChunkAnalysis
	LastError   string
	Version     uint64
}

// IsLeaf reports whether the chunk carries raw text rather than children.
func (c *Chunk) IsLeaf() bool {
	return c.Level.IsLeaf()
}

// Clone returns a copy safe to hand to callers. The analysis pointer is
// shared because ChunkAnalysis values are replaced, never mutated.
func (c *Chunk) Clone() Chunk {
	out := *c
	out.ChildIDs = append([]string(nil), c.ChildIDs...)
	return out
}

// ChunkAnalysis holds the derived facts for one chunk. Values are
// immutable once attached: recomputation swaps in a new record.
type ChunkAnalysis struct {
	WordCount      int       `json:"word_count"`
	DialogueRatio  float64   `json:"dialogue_ratio"`
	AvgTension     float64   `json:"avg_tension"`
	Sentiment      float64   `json:"sentiment"`
	CharacterNames []string  `json:"character_names,omitempty"`
	LocationNames  []string  `json:"location_names,omitempty"`
	TimeMarkers    []string  `json:"time_markers,omitempty"`
	OpenPromises   []string  `json:"open_promises,omitempty"`
	StyleFlags     []string  `json:"style_flags,omitempty"`
	RiskScore      float64   `json:"risk_score"`
	Summary        string    `json:"summary,omitempty"` // aggregates only
	ProcessedAt    time.Time `json:"processed_at"`
}

// ParagraphType classifies the dominant mode of a paragraph.
type ParagraphType string

const (
	ParagraphDialogue    ParagraphType = "dialogue"
	ParagraphInternal    ParagraphType = "internal"
	ParagraphAction      ParagraphType = "action"
	ParagraphExposition  ParagraphType = "exposition"
	ParagraphDescription ParagraphType = "description"
)

// Paragraph is one blank-line-delimited block, offsets relative to the
// parsed chunk.
type Paragraph struct {
	Index       int           `json:"index"`
	StartOffset int           `json:"start_offset"`
	EndOffset   int           `json:"end_offset"`
	Type        ParagraphType `json:"type"`
}

// DialogueTurn is a single quoted span with optional attribution.
// ReplyTo is the index of the turn this one answers, or -1 when the
// gap to the previous turn is large enough to start a new exchange.
type DialogueTurn struct {
	Index       int    `json:"index"`
	Speaker     string `json:"speaker,omitempty"`
	Text        string `json:"text"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
	ReplyTo     int    `json:"reply_to"`
}

// Scene is a detected scene span within one parsed chunk.
type Scene struct {
	Index       int           `json:"index"`
	StartOffset int           `json:"start_offset"`
	EndOffset   int           `json:"end_offset"`
	Type        ParagraphType `json:"type"`
	POV         string        `json:"pov,omitempty"`
	Location    string        `json:"location,omitempty"`
	TimeMarker  string        `json:"time_marker,omitempty"`
	Tension     float64       `json:"tension"`
	Sentiment   float64       `json:"sentiment"`
}

// TextStats aggregates counting statistics over one parsed chunk.
type TextStats struct {
	WordCount        int     `json:"word_count"`
	SentenceCount    int     `json:"sentence_count"`
	ParagraphCount   int     `json:"paragraph_count"`
	AvgSentenceLen   float64 `json:"avg_sentence_len"`
	SentenceLenVar   float64 `json:"sentence_len_var"`
	SceneCount       int     `json:"scene_count"`
	POVShiftCount    int     `json:"pov_shift_count"`
	DialogueWordPart float64 `json:"dialogue_word_part"`
}

// StructuralFingerprint is the fine-grained parse output for one leaf
// chunk. Offsets are relative to that chunk's text.
type StructuralFingerprint struct {
	Scenes      []Scene        `json:"scenes"`
	Paragraphs  []Paragraph    `json:"paragraphs"`
	DialogueMap []DialogueTurn `json:"dialogue_map"`
	Stats       TextStats      `json:"stats"`
	ProcessedAt time.Time      `json:"processed_at"`
}

// JobType selects the algorithm a job runs.
type JobType string

const (
	JobProcessLeaf      JobType = "PROCESS_LEAF"
	JobProcessAggregate JobType = "PROCESS_AGGREGATE"
)

// Job is an ephemeral unit of analysis work. A result whose
// SubmittedAtVersion no longer matches the chunk's current version is
// stale and must be discarded.
type Job struct {
	ID                 string
	ChapterID          string
	ChunkID            string
	Type               JobType
	Text               string // leaf jobs only
	SubmittedAtVersion uint64
}
