package parse

import (
	"regexp"
	"strings"

	"github.com/vampirenirmal/storylens/internal/domain"
)

var (
	quotedSpanPattern = regexp.MustCompile(`"[^"\n]{2,}"|“[^”\n]{2,}”`)

	// "said X" immediately after the closing quote.
	speakerAfterPattern = regexp.MustCompile(`^[,!?—-]*\s*(?:said|asked|replied|whispered|shouted|muttered|snapped|answered|called|murmured|cried|growled)\s+([A-Z][a-z]+)`)
	// "X said" immediately after the closing quote.
	subjectAfterPattern = regexp.MustCompile(`^[,!?—-]*\s*([A-Z][a-z]+)\s+(?:said|asked|replied|whispered|shouted|muttered|snapped|answered|called|murmured|cried|growled)\b`)
	// "X said," just before the opening quote.
	speakerBeforePattern = regexp.MustCompile(`([A-Z][a-z]+)\s+(?:said|asked|replied|whispered|shouted|muttered|snapped|answered|called|murmured|cried|growled)[,:]?\s*$`)
)

// attributionWindow bounds how far around a quote we look for a
// speaker tag.
const attributionWindow = 60

// extractDialogue finds quoted speech, attributes speakers from local
// patterns, and links consecutive turns into exchanges. Turns further
// apart than ReplyDistance start a new exchange (ReplyTo = -1).
func (p *Parser) extractDialogue(text string) []domain.DialogueTurn {
	matches := quotedSpanPattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return []domain.DialogueTurn{}
	}

	turns := make([]domain.DialogueTurn, 0, len(matches))
	for i, m := range matches {
		quote := text[m[0]:m[1]]
		turn := domain.DialogueTurn{
			Index:       i,
			Text:        trimQuotes(quote),
			StartOffset: m[0],
			EndOffset:   m[1],
			Speaker:     attributeSpeaker(text, m[0], m[1]),
			ReplyTo:     -1,
		}
		if i > 0 && m[0]-turns[i-1].EndOffset <= p.w.ReplyDistance {
			turn.ReplyTo = i - 1
		}
		turns = append(turns, turn)
	}
	return turns
}

func attributeSpeaker(text string, start, end int) string {
	afterEnd := end + attributionWindow
	if afterEnd > len(text) {
		afterEnd = len(text)
	}
	after := text[end:afterEnd]
	if m := speakerAfterPattern.FindStringSubmatch(after); m != nil {
		return m[1]
	}
	if m := subjectAfterPattern.FindStringSubmatch(after); m != nil {
		return m[1]
	}

	beforeStart := start - attributionWindow
	if beforeStart < 0 {
		beforeStart = 0
	}
	if m := speakerBeforePattern.FindStringSubmatch(text[beforeStart:start]); m != nil {
		return m[1]
	}
	return ""
}

func trimQuotes(s string) string {
	return strings.Trim(s, `"“”`)
}
