package diagon

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/diagon/internal/index"
	"github.com/iamNilotpal/diagon/internal/search"
	"github.com/iamNilotpal/diagon/pkg/errors"
)

func buildIndex(t *testing.T) string {
	t.Helper()
	path := t.TempDir()

	w, err := NewWriter(path, "diagon-test")
	require.NoError(t, err)

	_, err = w.AddSegment([]*index.Document{
		index.NewDocument().AddText("body", "go", "search", "engine").Store("title", "first"),
		index.NewDocument().AddText("body", "fast", "search").Store("title", "second"),
		index.NewDocument().AddText("body", "slow", "scan").Store("title", "third"),
	})
	require.NoError(t, err)
	require.NoError(t, w.Commit())
	require.NoError(t, w.Close())
	return path
}

func TestInstanceEndToEnd(t *testing.T) {
	path := buildIndex(t)

	inst, err := NewInstance(path, "diagon-test")
	require.NoError(t, err)
	defer func() { _ = inst.Close() }()

	td, err := inst.Search(search.NewTermQuery(index.NewTerm("body", "search")), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), td.TotalHits.Value)

	var got []int
	for _, sd := range td.ScoreDocs {
		got = append(got, sd.Doc)
	}
	sort.Ints(got)
	assert.Equal(t, []int{0, 1}, got)

	count, err := inst.Count(search.NewMatchAllDocsQuery())
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	fields, err := inst.Document(td.ScoreDocs[0].Doc)
	require.NoError(t, err)
	assert.Contains(t, []any{"first", "second"}, fields["title"])
}

func TestWriterLockExclusion(t *testing.T) {
	path := buildIndex(t)

	w1, err := NewWriter(path, "diagon-test")
	require.NoError(t, err)

	_, err = NewWriter(path, "diagon-test")
	require.Error(t, err)
	assert.Equal(t, errors.ErrorCodeLockUnavailable, errors.GetErrorCode(err))

	require.NoError(t, w1.Close())

	w2, err := NewWriter(path, "diagon-test")
	require.NoError(t, err)
	require.NoError(t, w2.Close())
}

func TestDeletesAndReopen(t *testing.T) {
	path := buildIndex(t)

	inst, err := NewInstance(path, "diagon-test")
	require.NoError(t, err)
	defer func() { _ = inst.Close() }()

	count, err := inst.Count(search.NewMatchAllDocsQuery())
	require.NoError(t, err)
	require.Equal(t, 3, count)

	// Delete doc 2 in a new commit; the open snapshot is unaffected until
	// reopened.
	w, err := NewWriter(path, "diagon-test")
	require.NoError(t, err)
	require.NoError(t, w.DeleteDocs("_0", []int{2}))
	require.NoError(t, w.Commit())
	require.NoError(t, w.Close())

	count, err = inst.Count(search.NewMatchAllDocsQuery())
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, inst.Reopen())
	count, err = inst.Count(search.NewMatchAllDocsQuery())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestInstanceDoubleCloseFails(t *testing.T) {
	path := buildIndex(t)

	inst, err := NewInstance(path, "diagon-test")
	require.NoError(t, err)
	require.NoError(t, inst.Close())

	err = inst.Close()
	require.Error(t, err)
	assert.True(t, errors.IsAlreadyClosed(err))
}
