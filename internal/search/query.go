package search

import (
	"github.com/iamNilotpal/diagon/internal/index"
)

// ScoreMode declares how a collector consumes scores.
type ScoreMode int

const (
	// ScoreModeComplete requires a score for every matching doc.
	ScoreModeComplete ScoreMode = iota

	// ScoreModeCompleteNoScores requires only doc IDs; scoring is bypassed.
	ScoreModeCompleteNoScores

	// ScoreModeTopScores requires only competitive scores, enabling early
	// termination.
	ScoreModeTopScores
)

// NeedsScores reports whether the mode requires score computation.
func (m ScoreMode) NeedsScores() bool { return m != ScoreModeCompleteNoScores }

// Query is an immutable node of the query tree, comparable by structural
// equality and a stable hash.
type Query interface {
	// CreateWeight compiles the query against the searcher's reader,
	// gathering collection and term statistics.
	CreateWeight(s *IndexSearcher, mode ScoreMode, boost float32) (Weight, error)

	// Rewrite returns a simpler equivalent query, or the receiver when
	// already minimal. The searcher re-applies it to a fix point.
	Rewrite(reader *index.IndexReader) (Query, error)

	// String renders the query, eliding the given default field.
	String(defaultField string) string

	// Clone returns an equal query. Queries are immutable, so a shallow
	// copy suffices.
	Clone() Query

	// Equal reports structural equality.
	Equal(other Query) bool

	// Hash returns a stable structural hash.
	Hash() uint64
}

// Weight is the compiled, segment-independent form of a query. It holds the
// statistics gathered at creation and produces scorers bound to single
// segments. Weights may be reused across the leaves of one query but never
// across queries.
type Weight interface {
	// Query returns the parent query.
	Query() Query

	// Scorer creates a scorer bound to the leaf, or nil when the segment
	// cannot match.
	Scorer(ctx *index.LeafReaderContext) (Scorer, error)

	// BulkScorer creates a windowed scorer that owns the iteration, or nil
	// when the weight has no specialized bulk path.
	BulkScorer(ctx *index.LeafReaderContext) (BulkScorer, error)

	// Count returns the segment's exact match count when computable in
	// O(1), or -1.
	Count(ctx *index.LeafReaderContext) (int, error)
}

// rewriteToFixPoint applies Rewrite until the query stabilizes.
func rewriteToFixPoint(q Query, reader *index.IndexReader) (Query, error) {
	for i := 0; i < 16; i++ {
		next, err := q.Rewrite(reader)
		if err != nil {
			return nil, err
		}
		if next == q || next.Equal(q) {
			return next, nil
		}
		q = next
	}
	return q, nil
}
