package search

import (
	"github.com/cespare/xxhash/v2"

	"github.com/iamNilotpal/diagon/internal/index"
)

// MatchAllDocsQuery matches every document with a constant score.
type MatchAllDocsQuery struct{}

func NewMatchAllDocsQuery() *MatchAllDocsQuery { return &MatchAllDocsQuery{} }

func (q *MatchAllDocsQuery) Rewrite(reader *index.IndexReader) (Query, error) { return q, nil }
func (q *MatchAllDocsQuery) String(defaultField string) string                { return "*:*" }
func (q *MatchAllDocsQuery) Clone() Query                                     { return &MatchAllDocsQuery{} }

func (q *MatchAllDocsQuery) Equal(other Query) bool {
	_, ok := other.(*MatchAllDocsQuery)
	return ok
}

func (q *MatchAllDocsQuery) Hash() uint64 { return xxhash.Sum64String("*:*") }

func (q *MatchAllDocsQuery) CreateWeight(s *IndexSearcher, mode ScoreMode, boost float32) (Weight, error) {
	score := boost
	if !mode.NeedsScores() {
		score = 0
	}
	return &matchAllWeight{query: q, score: score}, nil
}

type matchAllWeight struct {
	query *MatchAllDocsQuery
	score float32
}

func (w *matchAllWeight) Query() Query { return w.query }

func (w *matchAllWeight) Scorer(ctx *index.LeafReaderContext) (Scorer, error) {
	return newConstantScoreIterator(ctx.Reader.MaxDoc(), w.score), nil
}

func (w *matchAllWeight) BulkScorer(ctx *index.LeafReaderContext) (BulkScorer, error) {
	return nil, nil
}

func (w *matchAllWeight) Count(ctx *index.LeafReaderContext) (int, error) {
	return ctx.Reader.NumDocs(), nil
}

// constantScoreIterator scores [0, maxDoc) with one constant.
type constantScoreIterator struct {
	maxDoc int
	doc    int
	score  float32
}

func newConstantScoreIterator(maxDoc int, score float32) *constantScoreIterator {
	return &constantScoreIterator{maxDoc: maxDoc, doc: -1, score: score}
}

func (it *constantScoreIterator) DocID() int  { return it.doc }
func (it *constantScoreIterator) Cost() int64 { return int64(it.maxDoc) }

func (it *constantScoreIterator) NextDoc() (int, error) {
	return it.Advance(it.doc + 1)
}

func (it *constantScoreIterator) Advance(target int) (int, error) {
	if target >= it.maxDoc {
		it.doc = NoMoreDocs
	} else {
		it.doc = target
	}
	return it.doc, nil
}

func (it *constantScoreIterator) Score() (float32, error) { return it.score, nil }

// MaxScore is exact for a constant-score iterator.
func (it *constantScoreIterator) MaxScore(upTo int) (float32, error) { return it.score, nil }

func (it *constantScoreIterator) AdvanceShallow(target int) (int, error) {
	return NoMoreDocs, nil
}

func (it *constantScoreIterator) NextBlockBoundary(target int) (int, error) {
	return NoMoreDocs, nil
}
