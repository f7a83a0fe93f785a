package parse

import (
	"regexp"
	"sort"
	"strings"
)

var (
	// Two or more consecutive blank lines.
	hardBreakPattern = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)+`)
	// A line that is only a scene-break marker.
	breakMarkerPattern = regexp.MustCompile(`(?m)^[ \t]*(?:\* *\* *\*|\*{3,}|#{1,3}|-{3,}|~{3,})[ \t]*$`)

	firstPersonPattern = regexp.MustCompile(`\b(?:I|I'm|I'd|I'll|I've|me|my|mine)\b`)
	properNounPattern  = regexp.MustCompile(`\b[A-Z][a-z]{2,}\b`)
	locationPattern    = regexp.MustCompile(`\b(?:at|in|near|inside|outside|toward|beneath|across)\s+(?:the\s+)?([A-Z][A-Za-z']+(?:\s+[A-Z][A-Za-z']+)?)`)
	timeMarkerPattern  = regexp.MustCompile(`(?i)\b(?:that (?:morning|night|evening|afternoon)|the next (?:day|morning|night)|later that \w+|at (?:dawn|dusk|midnight|noon)|yesterday|tomorrow|tonight|hours later|(?:centuries|decades|years|days) (?:ago|later)|\d{4})\b`)
)

// sentenceStartWords are capitalized words that never count as names.
var sentenceStartWords = map[string]struct{}{
	"The": {}, "A": {}, "An": {}, "And": {}, "But": {}, "Then": {},
	"She": {}, "He": {}, "They": {}, "It": {}, "We": {}, "You": {},
	"When": {}, "After": {}, "Before": {}, "There": {}, "This": {},
	"That": {}, "His": {}, "Her": {}, "Their": {}, "Not": {}, "Now": {},
}

// Span is an exported half-open byte range; the manager chunks chapter
// text into scene records with the same boundaries the parser sees.
type Span struct {
	Start int
	End   int
}

// SceneSpans detects scene boundaries: multiple blank lines, explicit
// break markers, or an abrupt first/third person shift inside a long
// block. Fragments shorter than MinSceneLen are discarded as noise.
func (p *Parser) SceneSpans(text string) []Span {
	if strings.TrimSpace(text) == "" {
		return []Span{}
	}

	cuts := []int{0}
	for _, m := range hardBreakPattern.FindAllStringIndex(text, -1) {
		cuts = append(cuts, m[1])
	}
	for _, m := range breakMarkerPattern.FindAllStringIndex(text, -1) {
		// Cut both sides so the marker line itself joins neither scene.
		cuts = append(cuts, m[0], m[1])
	}
	sort.Ints(cuts)
	cuts = append(cuts, len(text))

	var spans []Span
	for i := 0; i+1 < len(cuts); i++ {
		spans = p.appendSceneSpans(spans, text, cuts[i], cuts[i+1])
	}
	return spans
}

// appendSceneSpans adds the block [start, end), splitting it further
// when the narration person flips between paragraphs.
func (p *Parser) appendSceneSpans(spans []Span, text string, start, end int) []Span {
	block := text[start:end]
	if breakMarkerPattern.MatchString(strings.TrimSpace(block)) && len(strings.TrimSpace(block)) < 12 {
		return spans
	}
	paras := splitParagraphs(block)
	if len(paras) == 0 {
		return spans
	}

	segStart := paras[0].start
	segPerson := personOf(block[paras[0].start:paras[0].end])
	segEnd := paras[0].end
	for _, para := range paras[1:] {
		person := personOf(block[para.start:para.end])
		if person != personNeutral && segPerson != personNeutral &&
			person != segPerson && segEnd-segStart >= p.w.POVSplitMinLen {
			spans = appendSpanTrimmed(spans, text, start+segStart, start+segEnd, p.w.MinSceneLen)
			segStart = para.start
			segPerson = person
		} else if segPerson == personNeutral {
			segPerson = person
		}
		segEnd = para.end
	}
	return appendSpanTrimmed(spans, text, start+segStart, start+segEnd, p.w.MinSceneLen)
}

func appendSpanTrimmed(spans []Span, text string, start, end int, minLen int) []Span {
	for start < end && isSpace(text[start]) {
		start++
	}
	for end > start && isSpace(text[end-1]) {
		end--
	}
	if end-start < minLen {
		return spans
	}
	return append(spans, Span{Start: start, End: end})
}

const (
	personNeutral = 0
	personFirst   = 1
	personThird   = 2
)

// personOf gives a rough narration-person signal for a paragraph.
func personOf(text string) int {
	first := len(firstPersonPattern.FindAllString(text, -1))
	third := 0
	for _, w := range []string{" he ", " she ", " they ", "He ", "She ", "They "} {
		third += strings.Count(text, w)
	}
	switch {
	case first > third && first > 0:
		return personFirst
	case third > first && third > 0:
		return personThird
	default:
		return personNeutral
	}
}

// extractPOV returns "first_person" when first-person pronouns dominate
// the pronoun counts, otherwise the most-mentioned proper noun.
func extractPOV(text string) string {
	firstCount := len(firstPersonPattern.FindAllString(text, -1))
	name, nameCount := topProperNoun(text)
	if firstCount > nameCount {
		if firstCount == 0 {
			return ""
		}
		return "first_person"
	}
	return name
}

// topProperNoun returns the most frequent capitalized word outside the
// stop list. Ties break alphabetically so results are deterministic.
func topProperNoun(text string) (string, int) {
	counts := map[string]int{}
	for _, word := range properNounPattern.FindAllString(text, -1) {
		if _, skip := sentenceStartWords[word]; skip {
			continue
		}
		counts[word]++
	}
	best, bestCount := "", 0
	for w, c := range counts {
		if c > bestCount || (c == bestCount && (best == "" || w < best)) {
			best, bestCount = w, c
		}
	}
	return best, bestCount
}

// extractLocation finds a proper noun following a location preposition.
func extractLocation(text string) string {
	if m := locationPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// extractTimeMarker picks the first temporal phrase near the start of
// the scene.
func (p *Parser) extractTimeMarker(text string) string {
	window := text
	if len(window) > p.w.TimeMarkerWindow {
		window = window[:p.w.TimeMarkerWindow]
	}
	return timeMarkerPattern.FindString(window)
}
