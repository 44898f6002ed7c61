package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/sktools/dbopen"
)

func testJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := New(dbopen.OpenMemory(t))
	require.NoError(t, err)
	return j
}

func TestRecordAndList(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, j.Record(ctx, Run{
		ID: "run_1", Owner: "o", Repo: "r", Path: "tools/sidekick/config.json",
		Outcome: OutcomeUnchanged, OldSHA: "a", StartedAt: base, Duration: 120 * time.Millisecond,
	}))
	require.NoError(t, j.Record(ctx, Run{
		ID: "run_2", Owner: "o", Repo: "r", Path: "tools/sidekick/config.json",
		Outcome: OutcomeUpdated, OldSHA: "a", NewSHA: "b",
		Added: []string{"experimentation"}, StartedAt: base.Add(time.Minute),
	}))

	runs, err := j.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "run_2", runs[0].ID, "newest first")
	assert.Equal(t, OutcomeUpdated, runs[0].Outcome)
	assert.Equal(t, []string{"experimentation"}, runs[0].Added)
	assert.Empty(t, runs[0].Replaced)
	assert.Equal(t, "b", runs[0].NewSHA)

	assert.Equal(t, 120*time.Millisecond, runs[1].Duration)
	assert.True(t, runs[1].StartedAt.Equal(base))
}

func TestList_Limit(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, j.Record(ctx, Run{ID: id, Outcome: OutcomeFailed, Error: "boom",
			StartedAt: time.UnixMilli(int64(1000 * (i + 1)))}))
	}

	runs, err := j.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "boom", runs[0].Error)
}

func TestRecord_DuplicateID(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()
	run := Run{ID: "dup", Outcome: OutcomeUnchanged, StartedAt: time.Now()}
	require.NoError(t, j.Record(ctx, run))
	assert.Error(t, j.Record(ctx, run))
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.Record(context.Background(), Run{ID: "x", Outcome: OutcomeUpdated, StartedAt: time.Now()}))
	runs, err := j.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
