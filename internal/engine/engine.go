// Package engine provides the coordinator tying the subsystems of one index
// instance together: the directory, the point-in-time composite reader and
// the searcher compiled over it. The engine owns subsystem lifecycle;
// queries themselves are stateless against a snapshot.
package engine

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/iamNilotpal/diagon/internal/index"
	"github.com/iamNilotpal/diagon/internal/search"
	"github.com/iamNilotpal/diagon/internal/store"
	"github.com/iamNilotpal/diagon/pkg/errors"
	"github.com/iamNilotpal/diagon/pkg/options"
)

// Engine coordinates the open reader and searcher over one index directory.
// Thread-safe: concurrent searches share the snapshot; Reopen swaps it.
type Engine struct {
	options *options.Options
	log     *zap.SugaredLogger
	closed  atomic.Bool

	dir *store.Directory

	mu       sync.RWMutex
	reader   *index.IndexReader
	searcher *search.IndexSearcher
}

// Config holds the parameters needed to initialize an Engine.
type Config struct {
	Path    string
	Options *options.Options
	Logger  *zap.SugaredLogger
}

// New opens the directory and the latest published commit.
func New(config *Config) (*Engine, error) {
	if config == nil || config.Path == "" || config.Options == nil || config.Logger == nil {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "Engine configuration is required",
		).WithField("config").WithRule("required")
	}

	dir, err := store.OpenDirectory(&store.DirectoryConfig{
		Path:        config.Path,
		ChunkPower:  config.Options.ChunkPower,
		Preload:     config.Options.Preload,
		UseFallback: config.Options.UseFallback,
		Logger:      config.Logger,
	})
	if err != nil {
		return nil, err
	}

	e := &Engine{options: config.Options, log: config.Logger, dir: dir}
	if err := e.Reopen(); err != nil {
		return nil, err
	}
	return e, nil
}

// Reopen swaps in the latest commit. The previous snapshot stays valid for
// in-flight searches, which hold a reference acquired through Searcher or
// Reader; its close hook runs when the last of them releases.
func (e *Engine) Reopen() error {
	if e.closed.Load() {
		return errors.NewIndexError(nil, errors.ErrorCodeAlreadyClosed,
			"Engine is already closed")
	}

	reader, err := index.OpenIndexReader(e.dir, e.log)
	if err != nil {
		return err
	}
	searcher, err := search.NewIndexSearcher(&search.IndexSearcherConfig{
		Reader:  reader,
		Options: e.options,
		Logger:  e.log,
	})
	if err != nil {
		_ = reader.Close()
		return err
	}

	e.mu.Lock()
	old := e.reader
	e.reader = reader
	e.searcher = searcher
	e.mu.Unlock()

	if old != nil {
		return old.DecRef()
	}
	return nil
}

// Searcher returns the current snapshot's searcher, taking a reference on
// its reader so a concurrent Reopen or Close cannot release the segments
// mid-search. Callers release with DecRef on the searcher's reader.
func (e *Engine) Searcher() (*search.IndexSearcher, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.searcher == nil || !e.reader.TryIncRef() {
		return nil, errors.NewIndexError(nil, errors.ErrorCodeAlreadyClosed,
			"Engine is already closed")
	}
	return e.searcher, nil
}

// Reader returns the current snapshot's reader, taking a reference. Callers
// release with DecRef.
func (e *Engine) Reader() (*index.IndexReader, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.reader == nil || !e.reader.TryIncRef() {
		return nil, errors.NewIndexError(nil, errors.ErrorCodeAlreadyClosed,
			"Engine is already closed")
	}
	return e.reader, nil
}

// Directory returns the engine's directory.
func (e *Engine) Directory() *store.Directory { return e.dir }

// Close releases the current snapshot. Only the first call acts.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return errors.NewIndexError(nil, errors.ErrorCodeAlreadyClosed,
			"Engine is already closed")
	}

	e.mu.Lock()
	reader := e.reader
	e.reader = nil
	e.searcher = nil
	e.mu.Unlock()

	if reader != nil {
		return reader.DecRef()
	}
	return nil
}
