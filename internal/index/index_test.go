package index

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vampirenirmal/storylens/internal/domain"
	serrors "github.com/vampirenirmal/storylens/pkg/storylens/errors"
)

// buildTree registers a book root, one chapter, and two scenes.
func buildTree(t *testing.T) (ix *Index, rootID, chapID string, sceneIDs []string) {
	t.Helper()
	ix = New(nil)
	rootID = ix.EnsureRoot()

	chapID = domain.ChunkID(domain.LevelChapter, "ch1", 0)
	ix.RegisterChunk(chapID, domain.LevelChapter, 0, 100, "", rootID)
	ix.BindChapter("ch1", chapID)

	for i, content := range []string{"scene one text", "scene two text"} {
		id := domain.ChunkID(domain.LevelScene, "ch1", i)
		ix.RegisterChunk(id, domain.LevelScene, i*50, i*50+40, content, chapID)
		sceneIDs = append(sceneIDs, id)
	}
	return ix, rootID, chapID, sceneIDs
}

func freshen(t *testing.T, ix *Index, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, ix.UpdateAnalysis(id, &domain.ChunkAnalysis{WordCount: 3}))
	}
}

func TestRegisterChunkIdempotent(t *testing.T) {
	ix, _, chapID, sceneIDs := buildTree(t)
	freshen(t, ix, sceneIDs[0])

	before, ok := ix.Get(sceneIDs[0])
	require.True(t, ok)

	again := ix.RegisterChunk(sceneIDs[0], domain.LevelScene, 0, 40, "scene one text", chapID)
	after, ok := ix.Get(sceneIDs[0])
	require.True(t, ok)

	assert.Empty(t, cmp.Diff(before, again))
	assert.Empty(t, cmp.Diff(before, after))
	assert.Equal(t, domain.StatusFresh, after.Status)

	chap, _ := ix.Get(chapID)
	assert.Len(t, chap.ChildIDs, 2, "re-registration must not duplicate the child link")
}

func TestMarkDirtyPropagatesUpward(t *testing.T) {
	ix, rootID, chapID, sceneIDs := buildTree(t)
	freshen(t, ix, sceneIDs[0], sceneIDs[1], chapID, rootID)

	require.NoError(t, ix.MarkDirty(sceneIDs[0]))

	for _, id := range []string{sceneIDs[0], chapID, rootID} {
		c, ok := ix.Get(id)
		require.True(t, ok)
		assert.Equal(t, domain.StatusDirty, c.Status, id)
	}
	sibling, _ := ix.Get(sceneIDs[1])
	assert.Equal(t, domain.StatusFresh, sibling.Status, "siblings stay fresh")
}

func TestDirtyAncestorsUnderRandomEdits(t *testing.T) {
	ix := New(nil)
	root := ix.EnsureRoot()
	var scenes []string
	for c := 0; c < 3; c++ {
		chapterID := fmt.Sprintf("ch%d", c)
		chapID := domain.ChunkID(domain.LevelChapter, chapterID, 0)
		ix.RegisterChunk(chapID, domain.LevelChapter, 0, 100, "", root)
		ix.BindChapter(chapterID, chapID)
		for s := 0; s < 5; s++ {
			id := domain.ChunkID(domain.LevelScene, chapterID, s)
			ix.RegisterChunk(id, domain.LevelScene, s*20, s*20+15, "scene text", chapID)
			scenes = append(scenes, id)
		}
	}

	rng := rand.New(rand.NewSource(1))
	for step := 0; step < 300; step++ {
		id := scenes[rng.Intn(len(scenes))]
		switch rng.Intn(3) {
		case 0:
			require.NoError(t, ix.MarkDirty(id))
		case 1:
			require.NoError(t, ix.SetContent(id, fmt.Sprintf("edit %d", step), 0, 10))
		case 2:
			require.NoError(t, ix.UpdateAnalysis(id, &domain.ChunkAnalysis{WordCount: step}))
		}
		requireDirtyAncestors(t, ix)
	}
}

// requireDirtyAncestors walks every dirty chunk up to the root and
// fails if any ancestor is fresher than it.
func requireDirtyAncestors(t *testing.T, ix *Index) {
	t.Helper()
	for id, state := range ix.Snapshot() {
		if state.Status != domain.StatusDirty {
			continue
		}
		c, ok := ix.Get(id)
		require.True(t, ok)
		for parentID := c.ParentID; parentID != ""; {
			parent, ok := ix.Get(parentID)
			require.True(t, ok)
			require.Equal(t, domain.StatusDirty, parent.Status,
				"dirty chunk %s has non-dirty ancestor %s", id, parent.ID)
			parentID = parent.ParentID
		}
	}
}

func TestMarkDirtyBumpsVersion(t *testing.T) {
	ix, _, _, sceneIDs := buildTree(t)
	v1, ok := ix.Version(sceneIDs[0])
	require.True(t, ok)

	require.NoError(t, ix.MarkDirty(sceneIDs[0]))
	v2, _ := ix.Version(sceneIDs[0])
	assert.Greater(t, v2, v1)
}

func TestUpdateAnalysisAtRejectsStale(t *testing.T) {
	ix, _, _, sceneIDs := buildTree(t)
	id := sceneIDs[0]
	v, _ := ix.Version(id)

	// A newer edit lands before the old job's result.
	require.NoError(t, ix.SetContent(id, "rewritten", 0, 9))

	err := ix.UpdateAnalysisAt(id, &domain.ChunkAnalysis{WordCount: 3}, v)
	assert.ErrorIs(t, err, serrors.ErrStaleResult)

	c, _ := ix.Get(id)
	assert.Equal(t, domain.StatusDirty, c.Status, "stale result must not freshen the chunk")
	assert.Nil(t, c.Analysis)
}

func TestChildAnalysesRequiresFreshChildren(t *testing.T) {
	ix, _, chapID, sceneIDs := buildTree(t)
	freshen(t, ix, sceneIDs[0])

	_, err := ix.ChildAnalyses(chapID)
	assert.ErrorIs(t, err, serrors.ErrAggregateNotReady)

	freshen(t, ix, sceneIDs[1])
	analyses, err := ix.ChildAnalyses(chapID)
	require.NoError(t, err)
	assert.Len(t, analyses, 2)
}

func TestMarkProcessingOnlyFromDirty(t *testing.T) {
	ix, _, _, sceneIDs := buildTree(t)
	id := sceneIDs[0]

	assert.True(t, ix.MarkProcessing(id))
	assert.False(t, ix.MarkProcessing(id), "already processing")

	freshen(t, ix, id)
	assert.False(t, ix.MarkProcessing(id), "fresh chunks are not claimable")
}

func TestRemoveSubtreeDirtiesAncestors(t *testing.T) {
	ix, rootID, chapID, sceneIDs := buildTree(t)
	freshen(t, ix, sceneIDs[0], sceneIDs[1], chapID, rootID)

	require.NoError(t, ix.RemoveSubtree(chapID))

	_, ok := ix.Get(chapID)
	assert.False(t, ok)
	for _, id := range sceneIDs {
		_, ok := ix.Get(id)
		assert.False(t, ok, "descendants removed")
	}
	root, _ := ix.Get(rootID)
	assert.Equal(t, domain.StatusDirty, root.Status)
	assert.Empty(t, root.ChildIDs)

	_, ok = ix.ChapterChunk("ch1")
	assert.False(t, ok, "chapter binding removed")
}

func TestSceneAt(t *testing.T) {
	ix, _, _, sceneIDs := buildTree(t)

	sc, ok := ix.SceneAt("ch1", 55)
	require.True(t, ok)
	assert.Equal(t, sceneIDs[1], sc.ID)

	_, ok = ix.SceneAt("ch1", 45)
	assert.False(t, ok, "offset in the gap between scenes")

	_, ok = ix.SceneAt("missing", 0)
	assert.False(t, ok)
}

func TestChapterOf(t *testing.T) {
	ix, rootID, chapID, sceneIDs := buildTree(t)

	assert.Equal(t, "ch1", ix.ChapterOf(sceneIDs[0]))
	assert.Equal(t, "ch1", ix.ChapterOf(chapID))
	assert.Equal(t, "", ix.ChapterOf(rootID))
	assert.Equal(t, "", ix.ChapterOf("nope"))
}

func TestStatsAndSnapshot(t *testing.T) {
	ix, _, chapID, sceneIDs := buildTree(t)
	freshen(t, ix, sceneIDs[0])
	require.NoError(t, ix.MarkError(sceneIDs[1], "boom"))

	st := ix.GetStats()
	assert.Equal(t, 4, st.Total)
	assert.Equal(t, 2, st.ByLevel[domain.LevelScene])
	assert.Equal(t, 1, st.ErrorCount)
	assert.Equal(t, 2, st.DirtyCount) // chapter + root

	snap := ix.Snapshot()
	assert.Equal(t, domain.StatusError, snap[sceneIDs[1]].Status)
	assert.Equal(t, domain.StatusDirty, snap[chapID].Status)
}

func TestDirtyAndErrorChunks(t *testing.T) {
	ix, rootID, chapID, sceneIDs := buildTree(t)
	freshen(t, ix, sceneIDs[0], sceneIDs[1], chapID, rootID)
	require.NoError(t, ix.MarkDirty(sceneIDs[0]))
	require.NoError(t, ix.MarkError(sceneIDs[1], "boom"))

	dirty := ix.DirtyChunks()
	ids := make(map[string]bool, len(dirty))
	for _, c := range dirty {
		ids[c.ID] = true
	}
	assert.True(t, ids[sceneIDs[0]])
	assert.True(t, ids[chapID])
	assert.True(t, ids[rootID])
	assert.False(t, ids[sceneIDs[1]])

	errored := ix.ErrorChunks()
	require.Len(t, errored, 1)
	assert.Equal(t, sceneIDs[1], errored[0].ID)
	assert.Equal(t, "boom", errored[0].LastError)
}

func TestChapterIDsInBookOrder(t *testing.T) {
	ix := New(nil)
	root := ix.EnsureRoot()
	for _, ch := range []string{"ch1", "ch2", "ch3"} {
		id := domain.ChunkID(domain.LevelChapter, ch, 0)
		ix.RegisterChunk(id, domain.LevelChapter, 0, 0, "", root)
		ix.BindChapter(ch, id)
	}
	assert.Equal(t, []string{"ch1", "ch2", "ch3"}, ix.ChapterIDs())
}
