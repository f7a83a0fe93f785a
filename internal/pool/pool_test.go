package pool

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vampirenirmal/storylens/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func countWords(_ context.Context, job domain.Job) (domain.ChunkAnalysis, error) {
	return domain.ChunkAnalysis{WordCount: len(strings.Fields(job.Text))}, nil
}

func waitUntilCancelled(ctx context.Context, job domain.Job) (domain.ChunkAnalysis, error) {
	<-ctx.Done()
	return domain.ChunkAnalysis{}, ctx.Err()
}

func job(id, chapterID, text string) domain.Job {
	return domain.Job{
		ID:        id,
		ChapterID: chapterID,
		ChunkID:   "chunk-" + id,
		Type:      domain.JobProcessLeaf,
		Text:      text,
	}
}

func collect(t *testing.T, p *Pool, n int) map[string]Result {
	t.Helper()
	out := make(map[string]Result, n)
	timeout := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case res := <-p.Results():
			out[res.Job.ID] = res
		case <-timeout:
			t.Fatalf("got %d of %d results", len(out), n)
		}
	}
	return out
}

func TestSubmitAndProcess(t *testing.T) {
	p := New(context.Background(), countWords, WithWorkers(2))
	defer p.Close()

	require.True(t, p.Submit(job("j1", "ch1", "one two three")))
	require.True(t, p.Submit(job("j2", "ch1", "four five")))

	results := collect(t, p, 2)
	require.NoError(t, results["j1"].Err)
	assert.Equal(t, 3, results["j1"].Analysis.WordCount)
	assert.Equal(t, 2, results["j2"].Analysis.WordCount)
	assert.Equal(t, 0, p.InFlight())
}

func TestCancelChapter(t *testing.T) {
	p := New(context.Background(), waitUntilCancelled, WithWorkers(1))
	defer p.Close()

	require.True(t, p.Submit(job("j1", "ch1", "")))
	require.True(t, p.Submit(job("j2", "ch1", "")))

	assert.Equal(t, 2, p.CancelChapter("ch1"))

	results := collect(t, p, 2)
	for id, res := range results {
		assert.ErrorIs(t, res.Err, context.Canceled, id)
	}
	assert.Equal(t, 0, p.CancelChapter("ch1"), "idempotent once drained")
	assert.Equal(t, 0, p.CancelChapter("never-registered"))
}

func TestSubmitRejectsOverflowInsteadOfBlocking(t *testing.T) {
	p := New(context.Background(), waitUntilCancelled, WithWorkers(1))
	defer p.Close()

	accepted := 0
	for i := 0; i < 10; i++ {
		if p.Submit(job(fmt.Sprintf("j%d", i), "ch1", "")) {
			accepted++
		}
	}
	// One worker plus a bounded queue; the rest must come back rejected
	// immediately rather than parking the caller.
	assert.GreaterOrEqual(t, accepted, 2)
	assert.Less(t, accepted, 10)
	assert.Equal(t, accepted, p.InFlight(), "rejected jobs are not owned by the pool")

	p.CancelChapter("ch1")
	results := collect(t, p, accepted)
	assert.Len(t, results, accepted)
}

func TestCancelLeavesOtherChaptersAlone(t *testing.T) {
	p := New(context.Background(), countWords, WithWorkers(1))
	defer p.Close()

	require.True(t, p.Submit(job("j1", "ch2", "still here")))
	p.CancelChapter("ch1")

	results := collect(t, p, 1)
	require.NoError(t, results["j1"].Err)
	assert.Equal(t, 2, results["j1"].Analysis.WordCount)
}

func TestCloseRejectsSubmit(t *testing.T) {
	p := New(context.Background(), countWords, WithWorkers(1))
	p.Close()
	p.Close() // idempotent

	assert.False(t, p.Submit(job("j1", "ch1", "late")))

	_, open := <-p.Results()
	assert.False(t, open, "results channel closes after shutdown")
}

func TestCloseCancelsInFlight(t *testing.T) {
	p := New(context.Background(), waitUntilCancelled, WithWorkers(1))
	require.True(t, p.Submit(job("j1", "ch1", "")))
	p.Close()
	// Close drains the workers; the blocked job must have been released.
	assert.Equal(t, 0, p.InFlight())
}
