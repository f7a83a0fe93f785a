package parse

import (
	"math"
	"regexp"
	"strings"
)

var (
	sentenceEndPattern = regexp.MustCompile(`[.!?]+`)
	wordPattern        = regexp.MustCompile(`[A-Za-z']+`)
	ellipsisPattern    = regexp.MustCompile(`\.{3}|…`)
)

// arousalVerbs signal physical or emotional intensity.
var arousalVerbs = map[string]struct{}{
	"ran": {}, "screamed": {}, "shouted": {}, "grabbed": {}, "slammed": {},
	"crashed": {}, "fought": {}, "stabbed": {}, "exploded": {}, "shattered": {},
	"lunged": {}, "bolted": {}, "snatched": {}, "burst": {}, "pounded": {},
	"raced": {}, "trembled": {}, "gasped": {}, "froze": {}, "jerked": {},
	"struck": {}, "smashed": {}, "fled": {}, "screeched": {}, "roared": {},
}

var positiveWords = map[string]struct{}{
	"smiled": {}, "laughed": {}, "warm": {}, "bright": {}, "gentle": {},
	"happy": {}, "joy": {}, "love": {}, "hope": {}, "calm": {},
	"beautiful": {}, "safe": {}, "kind": {}, "soft": {}, "peaceful": {},
	"relief": {}, "delighted": {}, "pleased": {}, "grinned": {}, "comfort": {},
}

var negativeWords = map[string]struct{}{
	"dark": {}, "cold": {}, "fear": {}, "afraid": {}, "dead": {},
	"blood": {}, "pain": {}, "angry": {}, "cruel": {}, "terror": {},
	"hate": {}, "broken": {}, "alone": {}, "grief": {}, "bitter": {},
	"scream": {}, "danger": {}, "threat": {}, "wound": {}, "despair": {},
}

// splitSentences cuts text into sentences on terminal punctuation.
func splitSentences(text string) []string {
	parts := sentenceEndPattern.Split(text, -1)
	out := parts[:0]
	for _, s := range parts {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// sentenceWordCounts returns words-per-sentence along with mean and
// variance, used both for tension volatility and the chunk stats.
func sentenceWordCounts(text string) (counts []int, mean, variance float64) {
	for _, s := range splitSentences(text) {
		counts = append(counts, len(strings.Fields(s)))
	}
	if len(counts) == 0 {
		return counts, 0, 0
	}
	total := 0
	for _, c := range counts {
		total += c
	}
	mean = float64(total) / float64(len(counts))
	for _, c := range counts {
		d := float64(c) - mean
		variance += d * d
	}
	variance /= float64(len(counts))
	return counts, mean, variance
}

// tension scores a scene in [0,1] as a weighted blend of punctuation
// intensity, high-arousal verb density, and sentence-length volatility.
func (p *Parser) tension(text string) float64 {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	if len(words) == 0 {
		return 0
	}
	_, mean, variance := sentenceWordCounts(text)

	sentences := math.Max(1, float64(len(splitSentences(text))))
	punctRaw := float64(strings.Count(text, "!")) +
		0.6*float64(strings.Count(text, "?")) +
		0.4*float64(len(ellipsisPattern.FindAllString(text, -1))+strings.Count(text, "—"))
	punct := saturate(punctRaw/sentences, p.w.PunctSaturation)

	hits := 0
	for _, w := range words {
		if _, ok := arousalVerbs[w]; ok {
			hits++
		}
	}
	verbs := saturate(float64(hits)*100/float64(len(words)), p.w.VerbSaturation)

	volatility := 0.0
	if mean > 0 {
		volatility = saturate(math.Sqrt(variance)/mean, p.w.VolatilitySaturation)
	}

	return clamp01(p.w.PunctWeight*punct + p.w.VerbWeight*verbs + p.w.VolatilityWeight*volatility)
}

// sentiment is a signed lexicon score in [-1,1].
func sentiment(text string) float64 {
	pos, neg := 0, 0
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if _, ok := positiveWords[w]; ok {
			pos++
		}
		if _, ok := negativeWords[w]; ok {
			neg++
		}
	}
	if pos+neg == 0 {
		return 0
	}
	return float64(pos-neg) / float64(pos+neg)
}

// saturate maps raw >= 0 onto [0,1], reaching 1 at the saturation
// point.
func saturate(raw, at float64) float64 {
	if at <= 0 {
		return 0
	}
	if raw >= at {
		return 1
	}
	return raw / at
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
