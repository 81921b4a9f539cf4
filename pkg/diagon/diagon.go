// Package diagon provides the public entry points to the search engine: an
// Instance for querying a published index, and a Writer for building
// segments and publishing commits under the directory's exclusive lock.
package diagon

import (
	"go.uber.org/zap"

	"github.com/iamNilotpal/diagon/internal/engine"
	"github.com/iamNilotpal/diagon/internal/index"
	"github.com/iamNilotpal/diagon/internal/search"
	"github.com/iamNilotpal/diagon/internal/store"
	"github.com/iamNilotpal/diagon/pkg/errors"
	"github.com/iamNilotpal/diagon/pkg/logger"
	"github.com/iamNilotpal/diagon/pkg/options"
	"github.com/iamNilotpal/diagon/pkg/seginfo"
)

// Instance is an open, read-only view over a published index.
type Instance struct {
	engine  *engine.Engine
	options *options.Options
	log     *zap.SugaredLogger
}

// NewInstance opens the latest commit under path.
func NewInstance(path, service string, opts ...options.OptionFunc) (*Instance, error) {
	log := logger.New(service)

	defaultOpts := options.NewDefaultOptions()
	for _, opt := range opts {
		opt(&defaultOpts)
	}

	eng, err := engine.New(&engine.Config{Path: path, Options: &defaultOpts, Logger: log})
	if err != nil {
		return nil, err
	}
	return &Instance{engine: eng, options: &defaultOpts, log: log}, nil
}

// Search returns the k best hits for the query. The snapshot is held via
// its reader's refcount for the duration of the call, so a concurrent
// Reopen or Close cannot release segments mid-search.
func (i *Instance) Search(q search.Query, k int) (*search.TopDocs, error) {
	searcher, err := i.engine.Searcher()
	if err != nil {
		return nil, err
	}
	defer func() { _ = searcher.Reader().DecRef() }()
	return searcher.Search(q, k)
}

// SearchAfter returns the k hits strictly following the pagination cursor.
func (i *Instance) SearchAfter(q search.Query, after *search.ScoreDoc, k int) (*search.TopDocs, error) {
	searcher, err := i.engine.Searcher()
	if err != nil {
		return nil, err
	}
	defer func() { _ = searcher.Reader().DecRef() }()
	return searcher.SearchAfter(q, after, k)
}

// Count returns the number of matching documents.
func (i *Instance) Count(q search.Query) (int, error) {
	searcher, err := i.engine.Searcher()
	if err != nil {
		return 0, err
	}
	defer func() { _ = searcher.Reader().DecRef() }()
	return searcher.Count(q)
}

// Document resolves a global docID to its stored fields.
func (i *Instance) Document(globalDoc int) (map[string]any, error) {
	reader, err := i.engine.Reader()
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.DecRef() }()

	leaves := reader.Leaves()
	for n := len(leaves) - 1; n >= 0; n-- {
		leaf := leaves[n]
		if globalDoc >= leaf.DocBase {
			return leaf.Reader.Document(globalDoc - leaf.DocBase)
		}
	}
	return nil, errors.NewValidationError(nil, errors.ErrorCodeInvalidInput,
		"Global docID out of range").WithProvided(globalDoc)
}

// Reopen picks up the latest published commit.
func (i *Instance) Reopen() error { return i.engine.Reopen() }

// Close releases the instance's snapshot.
func (i *Instance) Close() error { return i.engine.Close() }

// Writer builds segments and publishes commits. It holds the directory's
// exclusive write lock for its lifetime; readers are never blocked.
type Writer struct {
	dir   *store.Directory
	lock  *store.Lock
	log   *zap.SugaredLogger
	infos *index.SegmentInfos
	sw    *index.SegmentWriter
	next  int64
}

// NewWriter acquires the write lock and loads the current commit, starting
// empty when the directory has none.
func NewWriter(path, service string, opts ...options.OptionFunc) (*Writer, error) {
	log := logger.New(service)

	defaultOpts := options.NewDefaultOptions()
	for _, opt := range opts {
		opt(&defaultOpts)
	}

	dir, err := store.OpenDirectory(&store.DirectoryConfig{
		Path:        path,
		ChunkPower:  defaultOpts.ChunkPower,
		Preload:     defaultOpts.Preload,
		UseFallback: defaultOpts.UseFallback,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	lock, err := dir.ObtainLock()
	if err != nil {
		return nil, err
	}

	infos, err := index.ReadLatestCommit(dir)
	if err != nil {
		if !errors.IsFileNotFound(err) {
			_ = lock.Release()
			return nil, err
		}
		infos = &index.SegmentInfos{}
	}

	var next int64
	for range infos.Segments {
		next++
	}
	return &Writer{
		dir:   dir,
		lock:  lock,
		log:   log,
		infos: infos,
		sw:    index.NewSegmentWriter(dir, log),
		next:  next,
	}, nil
}

// AddSegment flushes docs as a new segment in the pending commit.
func (w *Writer) AddSegment(docs []*index.Document) (*index.SegmentInfo, error) {
	si, err := w.sw.Write(seginfo.SegmentName(w.next), docs)
	if err != nil {
		return nil, err
	}
	w.next++
	w.infos.Segments = append(w.infos.Segments, si)
	return si, nil
}

// DeleteDocs replaces a segment's live-docs bitmap, marking the given local
// docIDs deleted. Takes effect for readers at the next commit.
func (w *Writer) DeleteDocs(segmentName string, localDocs []int) error {
	for _, si := range w.infos.Segments {
		if si.Name == segmentName {
			return index.ApplyDeletes(w.dir, si, localDocs)
		}
	}
	return errors.NewValidationError(nil, errors.ErrorCodeInvalidInput,
		"Unknown segment").WithProvided(segmentName)
}

// Commit publishes the pending segment list under the next generation.
func (w *Writer) Commit() error {
	return w.infos.Write(w.dir)
}

// Close releases the write lock.
func (w *Writer) Close() error {
	return w.lock.Release()
}
