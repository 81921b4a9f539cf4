// Package search implements the query evaluation engine: the query tree and
// its weights, per-segment scorers and their combinators, block-max
// disjunction evaluation (doc-at-a-time WAND and the windowed MaxScore bulk
// scorer), top-K collection with threshold feedback, and the searcher that
// drives it all across segments.
package search

import (
	"math"

	"github.com/iamNilotpal/diagon/internal/index"
)

// NoMoreDocs is the exhaustion sentinel shared with the index layer.
const NoMoreDocs = index.NoMoreDocs

// DocIdSetIterator is the cursor contract every scorer builds on. DocID is
// -1 before the first advance, NoMoreDocs after exhaustion, and never
// decreases. Advance returns the first docID >= target. Cost is an upper
// estimate used to order conjunctions.
type DocIdSetIterator interface {
	DocID() int
	NextDoc() (int, error)
	Advance(target int) (int, error)
	Cost() int64
}

// Scorer extends the iterator with scoring; Score is valid exactly while the
// cursor is on a doc. Impacts-aware scorers additionally implement
// BlockMaxScorer, and scorers that can exploit a collector threshold
// implement MinCompetitiveAware — capability interfaces keep the per-doc
// hot-path surface at four methods.
type Scorer interface {
	DocIdSetIterator
	Score() (float32, error)
}

// BlockMaxScorer is the impacts-aware extension: per-block score upper
// bounds and shallow positioning that reads impact metadata without
// committing to scoring.
type BlockMaxScorer interface {
	Scorer

	// MaxScore bounds Score() for any docID in [DocID(), upTo].
	MaxScore(upTo int) (float32, error)

	// AdvanceShallow positions impact metadata for the block covering
	// target and returns that block's inclusive upper-bound docID. Never
	// regresses.
	AdvanceShallow(target int) (int, error)

	// NextBlockBoundary returns the next docID at which MaxScore may
	// change: the end of the block covering target.
	NextBlockBoundary(target int) (int, error)
}

// MinCompetitiveAware receives the collector's threshold: the scorer may
// thereafter skip any block whose max score cannot reach it.
type MinCompetitiveAware interface {
	SetMinCompetitiveScore(score float32)
}

// batchSize is the per-call cap on batch scoring, sized for the widest
// vector kernel.
const batchSize = 32

// BatchScorer scorers produce (doc, score) pairs in bulk: up to len(docs)
// matches below upTo per call, leaving the cursor past the produced docs.
type BatchScorer interface {
	ScoreBatch(upTo int, docs []int, scores []float32) (int, error)
}

// maxScoreOrInf returns the scorer's bound for [DocID(), upTo], or +Inf for
// scorers without impact metadata — which disables skipping over them.
func maxScoreOrInf(s Scorer, upTo int) (float32, error) {
	if bm, ok := s.(BlockMaxScorer); ok {
		return bm.MaxScore(upTo)
	}
	return float32(math.Inf(1)), nil
}

// nextBlockBoundaryOrMax returns the scorer's block end covering target, or
// NoMoreDocs for scorers without blocks.
func nextBlockBoundaryOrMax(s Scorer, target int) (int, error) {
	if bm, ok := s.(BlockMaxScorer); ok {
		return bm.NextBlockBoundary(target)
	}
	return NoMoreDocs, nil
}

// advanceShallowOrNop forwards shallow positioning to impacts-aware scorers.
func advanceShallowOrNop(s Scorer, target int) error {
	if bm, ok := s.(BlockMaxScorer); ok {
		_, err := bm.AdvanceShallow(target)
		return err
	}
	return nil
}
