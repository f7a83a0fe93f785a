package parse

import (
	"regexp"
	"strings"
)

var (
	adverbPattern        = regexp.MustCompile(`(?i)\b\w+ly\b`)
	repeatedPunctPattern = regexp.MustCompile(`[!?]{2,}`)
	passivePattern       = regexp.MustCompile(`(?i)\b(?:was|were|been|being)\s+\w+ed\b`)
	filterWordPattern    = regexp.MustCompile(`(?i)\b(?:saw|heard|felt|noticed|watched|seemed)\b`)
	promisePattern       = regexp.MustCompile(`(?i)[^.!?\n]*\b(?:promised|swore|vowed|would\s+(?:soon|never|one day)|little did \w+ know|someday)\b[^.!?\n]*[.!?]?`)
)

// Style flag thresholds; densities are per 100 words unless noted.
const (
	longSentenceAvgWords  = 30.0
	choppySentenceAvg     = 6.0
	choppyMinSentences    = 6
	adverbDensityLimit    = 6.0
	passiveDensityLimit   = 2.0
	filterWordLimit       = 1.5
	maxOpenPromises       = 5
)

// styleFlags derives the deduplicated style-issue tag set for a chunk.
func styleFlags(text string) []string {
	words := wordPattern.FindAllString(text, -1)
	if len(words) == 0 {
		return []string{}
	}
	per100 := func(n int) float64 { return float64(n) * 100 / float64(len(words)) }

	counts, mean, _ := sentenceWordCounts(text)

	var flags []string
	if mean > longSentenceAvgWords {
		flags = append(flags, "long_sentences")
	}
	if mean > 0 && mean < choppySentenceAvg && len(counts) >= choppyMinSentences {
		flags = append(flags, "choppy_sentences")
	}
	if per100(len(adverbPattern.FindAllString(text, -1))) > adverbDensityLimit {
		flags = append(flags, "adverb_heavy")
	}
	if repeatedPunctPattern.MatchString(text) {
		flags = append(flags, "repeated_punctuation")
	}
	if per100(len(passivePattern.FindAllString(text, -1))) > passiveDensityLimit {
		flags = append(flags, "passive_voice")
	}
	if per100(len(filterWordPattern.FindAllString(text, -1))) > filterWordLimit {
		flags = append(flags, "filter_words")
	}
	if flags == nil {
		return []string{}
	}
	return flags
}

// openPromises collects foreshadowing sentences: commitments the text
// makes that a reader expects paid off later.
func openPromises(text string) []string {
	matches := promisePattern.FindAllString(text, maxOpenPromises)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSpace(m))
	}
	return out
}
