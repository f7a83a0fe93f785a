package parse

import (
	"regexp"
	"strings"

	"github.com/vampirenirmal/storylens/internal/domain"
)

var (
	paragraphBreakPattern = regexp.MustCompile(`\n[ \t]*\n`)
	thoughtVerbPattern    = regexp.MustCompile(`(?i)\b(thought|wondered|knew|realized|remembered|mused|reflected|recalled)\b`)
	temporalDistPattern   = regexp.MustCompile(`(?i)\b(\w+\s+)?(centuries|decades|years|months|generations)\s+(ago|earlier|before)\b|\blong ago\b|\bback then\b|\bin those days\b|\bonce upon a time\b`)
)

// span is a half-open [start, end) byte range into the parsed text.
type span struct {
	start int
	end   int
}

// splitParagraphs cuts text on blank-line boundaries, keeping offsets.
func splitParagraphs(text string) []span {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	breaks := paragraphBreakPattern.FindAllStringIndex(text, -1)
	spans := make([]span, 0, len(breaks)+1)
	start := 0
	for _, b := range breaks {
		spans = appendTrimmed(spans, text, start, b[0])
		start = b[1]
	}
	spans = appendTrimmed(spans, text, start, len(text))
	return spans
}

// appendTrimmed narrows [start, end) to its non-whitespace core and
// appends it when non-empty.
func appendTrimmed(spans []span, text string, start, end int) []span {
	for start < end && isSpace(text[start]) {
		start++
	}
	for end > start && isSpace(text[end-1]) {
		end--
	}
	if end > start {
		spans = append(spans, span{start: start, end: end})
	}
	return spans
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// classifyParagraph labels one paragraph by priority: dialogue beats
// internal beats action beats exposition; description is the default.
func (p *Parser) classifyParagraph(text string) domain.ParagraphType {
	if quotedShare(text) >= p.w.DialogueQuoteShare {
		return domain.ParagraphDialogue
	}
	if thoughtVerbPattern.MatchString(text) {
		return domain.ParagraphInternal
	}
	sentences := splitSentences(text)
	if len(sentences) >= 2 {
		total := 0
		for _, s := range sentences {
			total += len(strings.Fields(s))
		}
		if float64(total)/float64(len(sentences)) <= float64(p.w.ShortClauseWords) {
			return domain.ParagraphAction
		}
	}
	if temporalDistPattern.MatchString(text) {
		return domain.ParagraphExposition
	}
	return domain.ParagraphDescription
}

// quotedShare is the fraction of bytes that sit inside double quotes.
func quotedShare(text string) float64 {
	if len(text) == 0 {
		return 0
	}
	quoted := 0
	for _, m := range quotedSpanPattern.FindAllStringIndex(text, -1) {
		quoted += m[1] - m[0]
	}
	return float64(quoted) / float64(len(text))
}
