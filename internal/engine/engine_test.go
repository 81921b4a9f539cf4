package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/diagon/internal/index"
	"github.com/iamNilotpal/diagon/internal/search"
	"github.com/iamNilotpal/diagon/internal/store"
	"github.com/iamNilotpal/diagon/pkg/errors"
	"github.com/iamNilotpal/diagon/pkg/logger"
	"github.com/iamNilotpal/diagon/pkg/options"
)

// commitSegment flushes docs as the next segment under path and publishes a
// commit.
func commitSegment(t *testing.T, path, name string, docs []*index.Document) {
	t.Helper()
	dir, err := store.OpenDirectory(&store.DirectoryConfig{
		Path:        path,
		ChunkPower:  16,
		UseFallback: true,
		Logger:      logger.NewNop(),
	})
	require.NoError(t, err)

	sis, err := index.ReadLatestCommit(dir)
	if err != nil {
		require.True(t, errors.IsFileNotFound(err))
		sis = &index.SegmentInfos{}
	}

	si, err := index.NewSegmentWriter(dir, logger.NewNop()).Write(name, docs)
	require.NoError(t, err)
	sis.Segments = append(sis.Segments, si)
	require.NoError(t, sis.Write(dir))
}

func newTestEngine(t *testing.T, path string) *Engine {
	t.Helper()
	opts := options.NewDefaultOptions()
	e, err := New(&Config{Path: path, Options: &opts, Logger: logger.NewNop()})
	require.NoError(t, err)
	return e
}

// A snapshot acquired before a Reopen stays searchable until released; its
// close hook runs exactly when the last holder drops.
func TestSnapshotSurvivesReopen(t *testing.T) {
	path := t.TempDir()
	commitSegment(t, path, "_0", []*index.Document{
		index.NewDocument().AddText("body", "alpha"),
		index.NewDocument().AddText("body", "beta"),
	})

	e := newTestEngine(t, path)
	defer func() { _ = e.Close() }()

	searcher, err := e.Searcher()
	require.NoError(t, err)
	old := searcher.Reader()
	assert.Equal(t, int32(2), old.RefCount()) // engine + this search

	// Publish a second segment and swap snapshots while the reference is
	// still held.
	commitSegment(t, path, "_1", []*index.Document{
		index.NewDocument().AddText("body", "gamma"),
	})
	require.NoError(t, e.Reopen())

	// The engine dropped its reference; the in-flight holder keeps the old
	// snapshot's segments open and searchable.
	assert.Equal(t, int32(1), old.RefCount())
	td, err := searcher.Search(search.NewTermQuery(index.NewTerm("body", "alpha")), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), td.TotalHits.Value)

	// Releasing runs the close hook: the reader and its leaves shut down.
	require.NoError(t, old.DecRef())
	assert.Equal(t, int32(0), old.RefCount())
	assert.False(t, old.TryIncRef())

	// The new snapshot sees both segments.
	fresh, err := e.Searcher()
	require.NoError(t, err)
	defer func() { _ = fresh.Reader().DecRef() }()
	count, err := fresh.Count(search.NewMatchAllDocsQuery())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestSnapshotSurvivesClose(t *testing.T) {
	path := t.TempDir()
	commitSegment(t, path, "_0", []*index.Document{
		index.NewDocument().AddText("body", "alpha"),
	})

	e := newTestEngine(t, path)

	searcher, err := e.Searcher()
	require.NoError(t, err)
	reader := searcher.Reader()

	require.NoError(t, e.Close())

	// The holder's reference keeps the snapshot open past engine close.
	assert.Equal(t, int32(1), reader.RefCount())
	td, err := searcher.Search(search.NewTermQuery(index.NewTerm("body", "alpha")), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), td.TotalHits.Value)

	require.NoError(t, reader.DecRef())
	assert.False(t, reader.TryIncRef())
}

func TestAccessorsFailAfterClose(t *testing.T) {
	path := t.TempDir()
	commitSegment(t, path, "_0", []*index.Document{
		index.NewDocument().AddText("body", "alpha"),
	})

	e := newTestEngine(t, path)
	require.NoError(t, e.Close())

	_, err := e.Searcher()
	require.Error(t, err)
	assert.True(t, errors.IsAlreadyClosed(err))

	_, err = e.Reader()
	require.Error(t, err)
	assert.True(t, errors.IsAlreadyClosed(err))
}
