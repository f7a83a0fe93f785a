// Package arc classifies the structural shape of a scene tension
// curve: climax position, phase segmentation, and rule-based pacing
// suggestions. It is derived on demand from fresh scene analyses and
// never stored in the chunk tree.
package arc

import "math"

// Phase labels a contiguous segment of the tension curve.
type Phase string

const (
	PhaseSetup      Phase = "setup"
	PhaseRising     Phase = "rising_action"
	PhaseClimax     Phase = "climax"
	PhaseFalling    Phase = "falling_action"
	PhaseResolution Phase = "resolution"
)

// StructureType is the classified overall shape.
type StructureType string

const (
	StructureThreeAct    StructureType = "three_act"
	StructureInMediasRes StructureType = "in_medias_res"
	StructureEpisodic    StructureType = "episodic"
	StructureUnknown     StructureType = "unknown"
)

// Tuned thresholds, preserved as named constants for behavior parity.
const (
	MinScenesForShape   = 3
	LowTensionQuantile  = 0.20 // bottom quintile bounds setup/resolution
	ClimaxBand          = 0.15 // peak run = within 15% of the global max
	ThreeActClimaxMin   = 0.60
	ThreeActClimaxMax   = 0.85
	InMediasResWindow   = 0.12 // opening share inspected for a hot start
	TopQuartile         = 0.75
	EpisodicMinPeaks    = 3
	SetupTooLongShare   = 0.30
	ClimaxTooLateShare  = 0.90
	FlatPacingThreshold = 0.60
	flatRangeEpsilon    = 0.05
	stddevSaturation    = 0.18
)

// SceneSample is one scene's tension plus its character span.
type SceneSample struct {
	Tension     float64
	StartOffset int
	EndOffset   int
}

// Segment is one labeled phase with scene and offset ranges, both
// inclusive on the scene side.
type Segment struct {
	Phase       Phase `json:"phase"`
	StartScene  int   `json:"start_scene"`
	EndScene    int   `json:"end_scene"`
	StartOffset int   `json:"start_offset"`
	EndOffset   int   `json:"end_offset"`
}

// Analysis is the full narrative-arc report for one curve.
type Analysis struct {
	TensionCurve     []float64     `json:"tension_curve"`
	Arcs             []Segment     `json:"arcs"`
	ClimaxSceneIndex int           `json:"climax_scene_index"`
	StructureType    StructureType `json:"structure_type"`
	PacingScore      float64       `json:"pacing_score"`
	Suggestions      []string      `json:"suggestions"`
}

// AnalyzeNarrativeArc classifies an ordered scene tension curve.
func AnalyzeNarrativeArc(samples []SceneSample) Analysis {
	curve := make([]float64, len(samples))
	for i, s := range samples {
		curve[i] = s.Tension
	}
	a := Analysis{
		TensionCurve:     curve,
		Arcs:             []Segment{},
		ClimaxSceneIndex: -1,
		StructureType:    StructureUnknown,
		Suggestions:      []string{},
	}
	if len(curve) == 0 {
		return a
	}

	min, max := curve[0], curve[0]
	climax := 0
	for i, v := range curve {
		if v > max {
			max = v
			climax = i // first occurrence wins on ties
		}
		if v < min {
			min = v
		}
	}
	a.ClimaxSceneIndex = climax
	rng := max - min

	low := min + LowTensionQuantile*rng
	peakThresh := max - ClimaxBand*rng
	a.Arcs = segmentPhases(samples, curve, climax, low, peakThresh)
	a.StructureType = classifyShape(curve, climax, min, rng, peakThresh)
	a.PacingScore = pacingScore(curve, peakThresh)
	a.Suggestions = suggest(a, len(curve))
	return a
}

// segmentPhases walks the curve relative to the low and peak
// thresholds: leading low run, rise, peak run, fall, trailing low run.
func segmentPhases(samples []SceneSample, curve []float64, climax int, low, peakThresh float64) []Segment {
	n := len(curve)

	climaxStart, climaxEnd := climax, climax
	for climaxStart > 0 && curve[climaxStart-1] >= peakThresh {
		climaxStart--
	}
	for climaxEnd < n-1 && curve[climaxEnd+1] >= peakThresh {
		climaxEnd++
	}

	setupEnd := -1
	for i := 0; i < climaxStart && curve[i] <= low; i++ {
		setupEnd = i
	}
	resolutionStart := n
	for i := n - 1; i > climaxEnd && curve[i] <= low; i-- {
		resolutionStart = i
	}

	segs := make([]Segment, 0, 5)
	add := func(phase Phase, start, end int) {
		if start > end {
			return
		}
		segs = append(segs, Segment{
			Phase:       phase,
			StartScene:  start,
			EndScene:    end,
			StartOffset: samples[start].StartOffset,
			EndOffset:   samples[end].EndOffset,
		})
	}
	add(PhaseSetup, 0, setupEnd)
	add(PhaseRising, setupEnd+1, climaxStart-1)
	add(PhaseClimax, climaxStart, climaxEnd)
	add(PhaseFalling, climaxEnd+1, resolutionStart-1)
	add(PhaseResolution, resolutionStart, n-1)
	return segs
}

func classifyShape(curve []float64, climax int, min, rng, peakThresh float64) StructureType {
	n := len(curve)
	if n < MinScenesForShape || rng < flatRangeEpsilon {
		return StructureUnknown
	}

	pos := float64(climax) / float64(n-1)
	if pos >= ThreeActClimaxMin && pos <= ThreeActClimaxMax {
		return StructureThreeAct
	}

	opening := int(math.Ceil(InMediasResWindow * float64(n)))
	quartile := min + TopQuartile*rng
	for i := 0; i < opening && i < n; i++ {
		if curve[i] >= quartile {
			return StructureInMediasRes
		}
	}

	if len(localMaxima(curve, peakThresh)) >= EpisodicMinPeaks {
		return StructureEpisodic
	}
	return StructureUnknown
}

// localMaxima returns indexes of distinct local peaks at or above the
// threshold.
func localMaxima(curve []float64, threshold float64) []int {
	var peaks []int
	for i, v := range curve {
		if v < threshold {
			continue
		}
		leftRise := i == 0 || curve[i-1] < v
		rightDrop := i == len(curve)-1 || curve[i+1] < v
		if leftRise && rightDrop {
			peaks = append(peaks, i)
		} else if leftRise && curve[i+1] == v {
			// Plateau: count only its leading edge.
			peaks = append(peaks, i)
		}
	}
	return peaks
}

// pacingScore rewards curves with real variance and one dominant peak;
// flat curves score near zero.
func pacingScore(curve []float64, peakThresh float64) float64 {
	if len(curve) < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range curve {
		mean += v
	}
	mean /= float64(len(curve))
	variance := 0.0
	for _, v := range curve {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(curve))
	spread := math.Min(1, math.Sqrt(variance)/stddevSaturation)

	dominance := 0.0
	if peaks := localMaxima(curve, peakThresh); len(peaks) > 0 {
		dominance = 1 / float64(len(peaks))
	}
	return clamp01(0.55*spread + 0.45*dominance)
}

func suggest(a Analysis, n int) []string {
	out := []string{}
	for _, seg := range a.Arcs {
		if seg.Phase == PhaseSetup && float64(seg.EndScene-seg.StartScene+1) > SetupTooLongShare*float64(n) {
			out = append(out, "setup too long: the opening low-tension run covers too much of the chapter")
		}
	}
	if n > 1 && float64(a.ClimaxSceneIndex) >= ClimaxTooLateShare*float64(n-1) {
		out = append(out, "climax too close to the end: leave room for falling action")
	}
	if a.PacingScore < FlatPacingThreshold {
		out = append(out, "pacing is flat: vary tension between scenes")
	}
	return out
}

// CurrentArcPhase returns the phase whose offset range contains the
// given offset, or false when the offset falls outside all arcs.
func CurrentArcPhase(a Analysis, offset int) (Phase, bool) {
	for _, seg := range a.Arcs {
		if offset >= seg.StartOffset && offset < seg.EndOffset {
			return seg.Phase, true
		}
	}
	return "", false
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
