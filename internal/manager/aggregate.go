package manager

import (
	"fmt"
	"sort"
	"time"

	"github.com/vampirenirmal/storylens/internal/domain"
)

// Risk blend constants for aggregates: tension variance plus style
// flag density, clamped to [0,1].
const (
	riskVarianceWeight = 2.0
	riskFlagWeight     = 0.10
	maxAggregateNames  = 20
)

// aggregate rolls child analyses up into a parent analysis. It
// operates strictly on already-computed children and never re-reads
// raw text.
func aggregate(children []domain.ChunkAnalysis) domain.ChunkAnalysis {
	now := time.Now()
	if len(children) == 0 {
		return domain.ChunkAnalysis{
			Summary:     "0 sections, 0 words",
			ProcessedAt: now,
		}
	}

	var (
		wordCount     int
		dialogueSum   float64
		tensionSum    float64
		sentimentSum  float64
		peak          float64
		flagCount     int
		characters    = map[string]struct{}{}
		locations     = map[string]struct{}{}
		markers       = map[string]struct{}{}
		promises      = map[string]struct{}{}
		flags         = map[string]struct{}{}
	)
	for _, ch := range children {
		wordCount += ch.WordCount
		dialogueSum += ch.DialogueRatio * float64(ch.WordCount)
		tensionSum += ch.AvgTension
		sentimentSum += ch.Sentiment
		if ch.AvgTension > peak {
			peak = ch.AvgTension
		}
		flagCount += len(ch.StyleFlags)
		for _, v := range ch.CharacterNames {
			characters[v] = struct{}{}
		}
		for _, v := range ch.LocationNames {
			locations[v] = struct{}{}
		}
		for _, v := range ch.TimeMarkers {
			markers[v] = struct{}{}
		}
		for _, v := range ch.OpenPromises {
			promises[v] = struct{}{}
		}
		for _, v := range ch.StyleFlags {
			flags[v] = struct{}{}
		}
	}

	n := float64(len(children))
	avgTension := tensionSum / n
	dialogueRatio := 0.0
	if wordCount > 0 {
		dialogueRatio = dialogueSum / float64(wordCount)
	}

	variance := 0.0
	for _, ch := range children {
		d := ch.AvgTension - avgTension
		variance += d * d
	}
	variance /= n

	risk := riskVarianceWeight*variance + riskFlagWeight*(float64(flagCount)/n)
	if risk > 1 {
		risk = 1
	}

	return domain.ChunkAnalysis{
		WordCount:      wordCount,
		DialogueRatio:  dialogueRatio,
		AvgTension:     avgTension,
		Sentiment:      sentimentSum / n,
		CharacterNames: setToSorted(characters, maxAggregateNames),
		LocationNames:  setToSorted(locations, maxAggregateNames),
		TimeMarkers:    setToSorted(markers, maxAggregateNames),
		OpenPromises:   setToSorted(promises, maxAggregateNames),
		StyleFlags:     setToSorted(flags, 0),
		RiskScore:      risk,
		Summary: fmt.Sprintf("%d sections, %d words, avg tension %.2f, peak tension %.1f/10",
			len(children), wordCount, avgTension, peak*10),
		ProcessedAt: now,
	}
}

// setToSorted flattens a dedup set into a sorted slice; limit 0 means
// unbounded.
func setToSorted(set map[string]struct{}, limit int) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
