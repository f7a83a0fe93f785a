// Package parse implements the structural parser: a pure function from
// raw chapter text to a structural fingerprint (scenes, paragraphs,
// dialogue turns, stats) and the leaf-level chunk analysis derived
// from it. It holds no state beyond its tuned weights.
package parse

import (
	"sort"
	"strings"
	"time"

	"github.com/vampirenirmal/storylens/internal/domain"
)

// Weights are the tuned heuristic constants. They are preserved as
// overridable values for behavior parity, not re-derived.
type Weights struct {
	// Tension blend weights; must sum to ~1.
	PunctWeight      float64
	VerbWeight       float64
	VolatilityWeight float64

	// Saturation points where each raw signal maps to 1.0.
	PunctSaturation      float64 // weighted marks per sentence
	VerbSaturation       float64 // arousal verbs per 100 words
	VolatilitySaturation float64 // sentence-length coefficient of variation

	// DialogueQuoteShare is the quoted-byte fraction above which a
	// paragraph classifies as dialogue.
	DialogueQuoteShare float64

	// ShortClauseWords is the max average sentence length for a
	// paragraph to classify as action.
	ShortClauseWords int

	// ReplyDistance is the max byte gap linking consecutive dialogue
	// turns into one exchange.
	ReplyDistance int

	// MinSceneLen discards scene fragments below this many bytes.
	MinSceneLen int

	// POVSplitMinLen is the minimum scene length before a narration
	// person flip forces a scene boundary.
	POVSplitMinLen int

	// TimeMarkerWindow bounds how deep into a scene we look for a
	// temporal phrase.
	TimeMarkerWindow int
}

// DefaultWeights returns the tuned constants.
func DefaultWeights() Weights {
	return Weights{
		PunctWeight:          0.40,
		VerbWeight:           0.35,
		VolatilityWeight:     0.25,
		PunctSaturation:      0.6,
		VerbSaturation:       3.0,
		VolatilitySaturation: 0.9,
		DialogueQuoteShare:   0.30,
		ShortClauseWords:     8,
		ReplyDistance:        600,
		MinSceneLen:          10,
		POVSplitMinLen:       400,
		TimeMarkerWindow:     280,
	}
}

// Parser is a stateless structural parser. Safe for concurrent use.
type Parser struct {
	w Weights
}

// Option customizes parser behavior.
type Option func(*Parser)

// WithWeights overrides the tuned constants.
func WithWeights(w Weights) Option {
	return func(p *Parser) { p.w = w }
}

// NewParser creates a parser with default weights.
func NewParser(opts ...Option) *Parser {
	p := &Parser{w: DefaultWeights()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseStructure computes the structural fingerprint for one leaf
// chunk. Empty text yields empty slices and zeroed stats, never an
// error.
func (p *Parser) ParseStructure(text string) domain.StructuralFingerprint {
	fp := domain.StructuralFingerprint{
		Scenes:      []domain.Scene{},
		Paragraphs:  []domain.Paragraph{},
		DialogueMap: []domain.DialogueTurn{},
		ProcessedAt: time.Now(),
	}
	if strings.TrimSpace(text) == "" {
		return fp
	}

	paraSpans := splitParagraphs(text)
	for i, ps := range paraSpans {
		fp.Paragraphs = append(fp.Paragraphs, domain.Paragraph{
			Index:       i,
			StartOffset: ps.start,
			EndOffset:   ps.end,
			Type:        p.classifyParagraph(text[ps.start:ps.end]),
		})
	}

	fp.DialogueMap = p.extractDialogue(text)

	for i, ss := range p.SceneSpans(text) {
		sceneText := text[ss.Start:ss.End]
		fp.Scenes = append(fp.Scenes, domain.Scene{
			Index:       i,
			StartOffset: ss.Start,
			EndOffset:   ss.End,
			Type:        dominantType(fp.Paragraphs, ss),
			POV:         extractPOV(sceneText),
			Location:    extractLocation(sceneText),
			TimeMarker:  p.extractTimeMarker(sceneText),
			Tension:     p.tension(sceneText),
			Sentiment:   sentiment(sceneText),
		})
	}

	fp.Stats = p.stats(text, fp)
	return fp
}

// dominantType picks the paragraph type covering the most bytes of the
// scene.
func dominantType(paragraphs []domain.Paragraph, ss Span) domain.ParagraphType {
	share := map[domain.ParagraphType]int{}
	for _, para := range paragraphs {
		start, end := para.StartOffset, para.EndOffset
		if start < ss.Start {
			start = ss.Start
		}
		if end > ss.End {
			end = ss.End
		}
		if end > start {
			share[para.Type] += end - start
		}
	}
	best := domain.ParagraphDescription
	bestLen := 0
	// Fixed walk order keeps ties deterministic.
	for _, t := range []domain.ParagraphType{
		domain.ParagraphDialogue, domain.ParagraphInternal,
		domain.ParagraphAction, domain.ParagraphExposition,
		domain.ParagraphDescription,
	} {
		if share[t] > bestLen {
			best, bestLen = t, share[t]
		}
	}
	return best
}

func (p *Parser) stats(text string, fp domain.StructuralFingerprint) domain.TextStats {
	wordCount := len(strings.Fields(text))
	counts, mean, variance := sentenceWordCounts(text)

	dialogueWords := 0
	for _, turn := range fp.DialogueMap {
		dialogueWords += len(strings.Fields(turn.Text))
	}
	dialoguePart := 0.0
	if wordCount > 0 {
		dialoguePart = clamp01(float64(dialogueWords) / float64(wordCount))
	}

	povShifts := 0
	for i := 1; i < len(fp.Scenes); i++ {
		prev, cur := fp.Scenes[i-1].POV, fp.Scenes[i].POV
		if prev != "" && cur != "" && prev != cur {
			povShifts++
		}
	}

	return domain.TextStats{
		WordCount:        wordCount,
		SentenceCount:    len(counts),
		ParagraphCount:   len(fp.Paragraphs),
		AvgSentenceLen:   mean,
		SentenceLenVar:   variance,
		SceneCount:       len(fp.Scenes),
		POVShiftCount:    povShifts,
		DialogueWordPart: dialoguePart,
	}
}

// Leaf risk blends style-flag density with strongly negative tone.
const (
	riskPerStyleFlag  = 0.15
	riskNegativeTone  = 0.25
	maxCharacterNames = 12
)

// AnalyzeChunk produces the fingerprint and the leaf ChunkAnalysis in
// one pass. Worker and inline paths both call this, so results are
// identical for identical input.
func (p *Parser) AnalyzeChunk(text string) (domain.StructuralFingerprint, domain.ChunkAnalysis) {
	fp := p.ParseStructure(text)

	tensionSum, sentimentSum := 0.0, 0.0
	characters := map[string]struct{}{}
	locations := make([]string, 0, len(fp.Scenes))
	markers := make([]string, 0, len(fp.Scenes))
	for _, sc := range fp.Scenes {
		tensionSum += sc.Tension
		sentimentSum += sc.Sentiment
		if sc.POV != "" && sc.POV != "first_person" {
			characters[sc.POV] = struct{}{}
		}
		if sc.Location != "" {
			locations = appendUnique(locations, sc.Location)
		}
		if sc.TimeMarker != "" {
			markers = appendUnique(markers, sc.TimeMarker)
		}
	}
	for _, turn := range fp.DialogueMap {
		if turn.Speaker != "" {
			characters[turn.Speaker] = struct{}{}
		}
	}

	avgTension, avgSentiment := 0.0, 0.0
	if len(fp.Scenes) > 0 {
		avgTension = tensionSum / float64(len(fp.Scenes))
		avgSentiment = sentimentSum / float64(len(fp.Scenes))
	}

	flags := styleFlags(text)
	risk := clamp01(riskPerStyleFlag*float64(len(flags)) + riskNegativeTone*negativePart(avgSentiment))

	return fp, domain.ChunkAnalysis{
		WordCount:      fp.Stats.WordCount,
		DialogueRatio:  fp.Stats.DialogueWordPart,
		AvgTension:     avgTension,
		Sentiment:      avgSentiment,
		CharacterNames: sortedSet(characters, maxCharacterNames),
		LocationNames:  locations,
		TimeMarkers:    markers,
		OpenPromises:   openPromises(text),
		StyleFlags:     flags,
		RiskScore:      risk,
		ProcessedAt:    fp.ProcessedAt,
	}
}

func negativePart(sentiment float64) float64 {
	if sentiment < 0 {
		return -sentiment
	}
	return 0
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func sortedSet(set map[string]struct{}, limit int) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
