package parse

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vampirenirmal/storylens/internal/domain"
)

func TestParseStructureEmptyText(t *testing.T) {
	p := NewParser()
	for _, text := range []string{"", "   ", "\n\n\t\n"} {
		fp := p.ParseStructure(text)
		assert.Empty(t, fp.Scenes)
		assert.Empty(t, fp.Paragraphs)
		assert.Empty(t, fp.DialogueMap)
		assert.Equal(t, domain.TextStats{}, fp.Stats)
		assert.NotNil(t, fp.Scenes, "empty slices, not nil")
	}
}

func TestClassifyParagraph(t *testing.T) {
	p := NewParser()
	tests := []struct {
		name string
		text string
		want domain.ParagraphType
	}{
		{
			name: "dialogue",
			text: `"Hello there, friend," said Maria. "Welcome home at last."`,
			want: domain.ParagraphDialogue,
		},
		{
			name: "internal",
			text: "She wondered if the letter would ever arrive from the capital.",
			want: domain.ParagraphInternal,
		},
		{
			name: "action",
			text: "He ran. She followed. The door crashed shut behind them.",
			want: domain.ParagraphAction,
		},
		{
			name: "exposition",
			text: "Centuries ago the kingdom had fallen into ruin, and the old roads were forgotten by everyone who still lived along the coast.",
			want: domain.ParagraphExposition,
		},
		{
			name: "description",
			text: "The garden stretched along the southern wall, heavy with jasmine and old roses that nobody tended anymore.",
			want: domain.ParagraphDescription,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.classifyParagraph(tt.text))
		})
	}
}

func TestSplitParagraphsOffsets(t *testing.T) {
	text := "First paragraph here.\n\nSecond paragraph here.\n\n\nThird."
	spans := splitParagraphs(text)
	require.Len(t, spans, 3)
	for i, want := range []string{"First paragraph here.", "Second paragraph here.", "Third."} {
		assert.Equal(t, want, text[spans[i].start:spans[i].end])
	}
}

func TestExtractDialogueAttributionAndReplies(t *testing.T) {
	p := NewParser()
	text := "\"We can't stay here,\" said Maria.\n\n\"Then we run,\" Tomas replied."
	turns := p.extractDialogue(text)
	require.Len(t, turns, 2)

	assert.Equal(t, "Maria", turns[0].Speaker)
	assert.Equal(t, "We can't stay here,", turns[0].Text)
	assert.Equal(t, -1, turns[0].ReplyTo)

	assert.Equal(t, "Tomas", turns[1].Speaker)
	assert.Equal(t, 0, turns[1].ReplyTo)
}

func TestExtractDialogueDistantTurnsStartNewExchange(t *testing.T) {
	p := NewParser()
	filler := strings.Repeat("The road wound on through the hills for another long day. ", 15)
	text := "\"Wait for me,\" said Maria. " + filler + "\"Too late,\" said Tomas."
	turns := p.extractDialogue(text)
	require.Len(t, turns, 2)
	assert.Equal(t, -1, turns[1].ReplyTo, "gap beyond the reply distance breaks the exchange")
}

func TestSceneSpansMarkersAndHardBreaks(t *testing.T) {
	p := NewParser()
	text := "The first scene happened here in the morning light.\n\n***\n\nThe second scene happened somewhere else entirely.\n\n\n\nThe third scene closed the chapter quietly."
	spans := p.SceneSpans(text)
	require.Len(t, spans, 3)

	assert.True(t, strings.HasPrefix(text[spans[0].Start:spans[0].End], "The first scene"))
	assert.True(t, strings.HasPrefix(text[spans[1].Start:spans[1].End], "The second scene"))
	assert.True(t, strings.HasPrefix(text[spans[2].Start:spans[2].End], "The third scene"))
	for _, sp := range spans {
		assert.NotContains(t, text[sp.Start:sp.End], "***", "marker line belongs to no scene")
	}
}

func TestSceneSpansDiscardsFragments(t *testing.T) {
	p := NewParser()
	text := "Ok.\n\n***\n\nThe real scene carries enough text to survive the noise filter."
	spans := p.SceneSpans(text)
	require.Len(t, spans, 1)
	assert.True(t, strings.HasPrefix(text[spans[0].Start:spans[0].End], "The real scene"))
}

func TestExtractPOV(t *testing.T) {
	first := "I walked into the kitchen alone. My hands would not stop shaking. I already knew the truth."
	assert.Equal(t, "first_person", extractPOV(first))

	third := "Maria crossed the courtyard slowly. Maria had never trusted this kind of silence before."
	assert.Equal(t, "Maria", extractPOV(third))

	assert.Equal(t, "", extractPOV("the rain fell and fell and fell"))
}

func TestExtractLocationAndTimeMarker(t *testing.T) {
	p := NewParser()
	text := "They camped near the Blackwood Forest that night, listening to the river."
	assert.Equal(t, "Blackwood Forest", extractLocation(text))
	assert.Equal(t, "that night", strings.ToLower(p.extractTimeMarker(text)))
}

func TestTensionOrdersCalmBelowFrantic(t *testing.T) {
	p := NewParser()
	calm := "The afternoon drifted past the window. Tea cooled slowly on the table. Nothing moved in the garden."
	frantic := "He bolted! The door exploded inward! She screamed and grabbed the rail! Glass shattered everywhere! They fled!"

	calmScore := p.tension(calm)
	franticScore := p.tension(frantic)
	assert.GreaterOrEqual(t, calmScore, 0.0)
	assert.LessOrEqual(t, franticScore, 1.0)
	assert.Greater(t, franticScore, calmScore)
}

func TestSentimentLexicon(t *testing.T) {
	assert.InDelta(t, 1.0, sentiment("She smiled with joy and hope."), 0.001)
	assert.InDelta(t, -1.0, sentiment("The dark cold fear of blood."), 0.001)
	assert.InDelta(t, 0.0, sentiment("The table stood in the room."), 0.001)
}

func TestStyleFlags(t *testing.T) {
	choppy := "He ran. She hid. Dogs barked. Night fell. Rain came. They waited."
	assert.Contains(t, styleFlags(choppy), "choppy_sentences")

	assert.Contains(t, styleFlags("What?? No!! Stop that right now."), "repeated_punctuation")

	assert.Empty(t, styleFlags(""))
}

func TestOpenPromises(t *testing.T) {
	text := "He promised to return before the first snow. The harvest went on. She swore she would find the letter someday."
	promises := openPromises(text)
	require.Len(t, promises, 2)
	assert.Contains(t, promises[0], "promised to return")
}

func TestAnalyzeChunkDeterministic(t *testing.T) {
	p := NewParser()
	text := "Maria crossed the courtyard at dawn. \"We leave tonight,\" said Maria.\n\nThe gate near the Blackwood Forest stood open. She ran."

	fp1, a1 := p.AnalyzeChunk(text)
	fp2, a2 := p.AnalyzeChunk(text)

	ignoreTimes := cmp.FilterPath(func(p cmp.Path) bool {
		return p.Last().String() == ".ProcessedAt"
	}, cmp.Ignore())
	assert.Empty(t, cmp.Diff(fp1, fp2, ignoreTimes))
	assert.Empty(t, cmp.Diff(a1, a2, ignoreTimes))

	assert.Greater(t, a1.WordCount, 0)
	assert.Contains(t, a1.CharacterNames, "Maria")
	assert.GreaterOrEqual(t, a1.AvgTension, 0.0)
	assert.LessOrEqual(t, a1.AvgTension, 1.0)
	assert.GreaterOrEqual(t, a1.DialogueRatio, 0.0)
	assert.LessOrEqual(t, a1.DialogueRatio, 1.0)
}
