package search

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/iamNilotpal/diagon/internal/index"
	"github.com/iamNilotpal/diagon/pkg/errors"
)

// Occur classifies a boolean clause.
type Occur int

const (
	// OccurMust requires and scores the clause.
	OccurMust Occur = iota

	// OccurShould optionally matches and scores the clause.
	OccurShould

	// OccurMustNot excludes the clause's matches; never scored.
	OccurMustNot

	// OccurFilter requires the clause without scoring it.
	OccurFilter
)

func (o Occur) String() string {
	switch o {
	case OccurMust:
		return "+"
	case OccurMustNot:
		return "-"
	case OccurFilter:
		return "#"
	default:
		return ""
	}
}

// BooleanClause pairs a sub-query with its occurrence kind.
type BooleanClause struct {
	Query Query
	Occur Occur
}

// BooleanQuery combines clauses by occurrence, with an optional minimum on
// matching SHOULD clauses.
type BooleanQuery struct {
	clauses            []BooleanClause
	minimumShouldMatch int
}

// BooleanQueryBuilder accumulates clauses for an immutable BooleanQuery.
type BooleanQueryBuilder struct {
	clauses            []BooleanClause
	minimumShouldMatch int
}

func NewBooleanQueryBuilder() *BooleanQueryBuilder {
	return &BooleanQueryBuilder{}
}

func (b *BooleanQueryBuilder) Add(q Query, occur Occur) *BooleanQueryBuilder {
	b.clauses = append(b.clauses, BooleanClause{Query: q, Occur: occur})
	return b
}

func (b *BooleanQueryBuilder) SetMinimumShouldMatch(n int) *BooleanQueryBuilder {
	b.minimumShouldMatch = n
	return b
}

func (b *BooleanQueryBuilder) Build() *BooleanQuery {
	clauses := make([]BooleanClause, len(b.clauses))
	copy(clauses, b.clauses)
	return &BooleanQuery{clauses: clauses, minimumShouldMatch: b.minimumShouldMatch}
}

// Clauses returns the clause list.
func (q *BooleanQuery) Clauses() []BooleanClause { return q.clauses }

// MinimumShouldMatch returns the SHOULD coordination minimum.
func (q *BooleanQuery) MinimumShouldMatch() int { return q.minimumShouldMatch }

func (q *BooleanQuery) occurCount(o Occur) int {
	n := 0
	for _, c := range q.clauses {
		if c.Occur == o {
			n++
		}
	}
	return n
}

// isPureDisjunction reports SHOULD-only with at most one required match —
// the shape eligible for WAND/MaxScore.
func (q *BooleanQuery) isPureDisjunction() bool {
	return len(q.clauses) == q.occurCount(OccurShould) && q.minimumShouldMatch <= 1
}

// Rewrite rewrites each child; a one-clause MUST or SHOULD query collapses
// to its child. The searcher re-applies to a fix point.
func (q *BooleanQuery) Rewrite(reader *index.IndexReader) (Query, error) {
	if len(q.clauses) == 1 {
		c := q.clauses[0]
		if c.Occur == OccurMust || (c.Occur == OccurShould && q.minimumShouldMatch <= 1) {
			return c.Query, nil
		}
	}

	changed := false
	rewritten := make([]BooleanClause, len(q.clauses))
	for i, c := range q.clauses {
		rq, err := c.Query.Rewrite(reader)
		if err != nil {
			return nil, err
		}
		if rq != c.Query && !rq.Equal(c.Query) {
			changed = true
		}
		rewritten[i] = BooleanClause{Query: rq, Occur: c.Occur}
	}
	if !changed {
		return q, nil
	}
	return &BooleanQuery{clauses: rewritten, minimumShouldMatch: q.minimumShouldMatch}, nil
}

func (q *BooleanQuery) String(defaultField string) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, c := range q.clauses {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(c.Occur.String())
		sb.WriteString(c.Query.String(defaultField))
	}
	sb.WriteByte(')')
	if q.minimumShouldMatch > 0 {
		sb.WriteString("~" + strconv.Itoa(q.minimumShouldMatch))
	}
	return sb.String()
}

func (q *BooleanQuery) Clone() Query {
	clauses := make([]BooleanClause, len(q.clauses))
	copy(clauses, q.clauses)
	return &BooleanQuery{clauses: clauses, minimumShouldMatch: q.minimumShouldMatch}
}

func (q *BooleanQuery) Equal(other Query) bool {
	o, ok := other.(*BooleanQuery)
	if !ok || o.minimumShouldMatch != q.minimumShouldMatch || len(o.clauses) != len(q.clauses) {
		return false
	}
	for i, c := range q.clauses {
		if c.Occur != o.clauses[i].Occur || !c.Query.Equal(o.clauses[i].Query) {
			return false
		}
	}
	return true
}

func (q *BooleanQuery) Hash() uint64 {
	h := xxhash.Sum64String("bool:" + strconv.Itoa(q.minimumShouldMatch))
	for _, c := range q.clauses {
		h = h*31 + c.Query.Hash() + uint64(c.Occur)
	}
	return h
}

func (q *BooleanQuery) CreateWeight(s *IndexSearcher, mode ScoreMode, boost float32) (Weight, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	w := &booleanWeight{query: q, searcher: s, mode: mode}
	for _, c := range q.clauses {
		subMode := mode
		if c.Occur == OccurMustNot || c.Occur == OccurFilter {
			subMode = ScoreModeCompleteNoScores
		} else if mode == ScoreModeTopScores && !q.isPureDisjunction() && q.occurCount(OccurShould) != len(q.clauses) {
			// Partial disjunctions under a conjunction can't early-terminate
			// on their own; their scores are still needed in full.
			subMode = ScoreModeComplete
		}
		sw, err := c.Query.CreateWeight(s, subMode, boost)
		if err != nil {
			return nil, err
		}
		w.weights = append(w.weights, sw)
	}
	return w, nil
}

type booleanWeight struct {
	query    *BooleanQuery
	searcher *IndexSearcher
	mode     ScoreMode
	weights  []Weight
}

func (w *booleanWeight) Query() Query { return w.query }

// clauseScorers materializes the per-leaf scorers grouped by occurrence.
// A MUST or FILTER clause with no scorer makes the whole segment unmatchable.
func (w *booleanWeight) clauseScorers(ctx *index.LeafReaderContext) (musts, filters, shoulds, nots []Scorer, matchable bool, err error) {
	for i, c := range w.query.clauses {
		s, err := w.weights[i].Scorer(ctx)
		if err != nil {
			return nil, nil, nil, nil, false, err
		}
		switch c.Occur {
		case OccurMust:
			if s == nil {
				return nil, nil, nil, nil, false, nil
			}
			musts = append(musts, s)
		case OccurFilter:
			if s == nil {
				return nil, nil, nil, nil, false, nil
			}
			filters = append(filters, s)
		case OccurShould:
			if s != nil {
				shoulds = append(shoulds, s)
			}
		case OccurMustNot:
			if s != nil {
				nots = append(nots, s)
			}
		}
	}
	return musts, filters, shoulds, nots, true, nil
}

func (w *booleanWeight) Scorer(ctx *index.LeafReaderContext) (Scorer, error) {
	musts, filters, shoulds, nots, matchable, err := w.clauseScorers(ctx)
	if err != nil || !matchable {
		return nil, err
	}

	msm := w.query.minimumShouldMatch

	var scorer Scorer
	required := append(append([]Scorer{}, musts...), filters...)

	switch {
	case len(required) == 0:
		if len(shoulds) == 0 {
			return nil, nil
		}
		if len(shoulds) == 1 && msm <= 1 {
			scorer = shoulds[0]
		} else if w.mode == ScoreModeTopScores && w.query.isPureDisjunction() && len(shoulds) >= 2 {
			// Doc-at-a-time WAND: same contract as the plain disjunction,
			// plus block-max skipping once the collector pushes a threshold.
			if scorer, err = NewWANDScorer(shoulds, msm); err != nil {
				return nil, err
			}
		} else {
			scorer = newDisjunctionScorer(shoulds, msm)
		}

	case len(shoulds) == 0:
		if msm > 0 {
			// No SHOULD clause can match the coordination minimum.
			return nil, nil
		}
		scorer = newConjunctionScorer(required, musts)

	default:
		if msm > 0 {
			// The disjunction becomes part of the required set.
			disj := newDisjunctionScorer(shoulds, msm)
			scorer = newConjunctionScorer(append(required, disj), append(musts, disj))
		} else {
			scorer = newReqOptSumScorer(
				newConjunctionScorer(required, musts),
				newDisjunctionScorer(shoulds, 1),
			)
		}
	}

	for _, not := range nots {
		scorer = newReqExclScorer(scorer, not)
	}
	return scorer, nil
}

// BulkScorer provides the windowed MaxScore path for pure disjunctions with
// scoring; selection is gated by the searcher per configuration.
func (w *booleanWeight) BulkScorer(ctx *index.LeafReaderContext) (BulkScorer, error) {
	if !w.mode.NeedsScores() || !w.query.isPureDisjunction() {
		return nil, nil
	}
	_, _, shoulds, _, matchable, err := w.clauseScorers(ctx)
	if err != nil || !matchable {
		return nil, err
	}
	if len(shoulds) < 2 {
		return nil, nil
	}
	return NewMaxScoreBulkScorer(ctx.Reader.MaxDoc(), shoulds)
}

func (w *booleanWeight) Count(ctx *index.LeafReaderContext) (int, error) {
	return -1, nil
}

// reqOptSumScorer iterates a required scorer and folds in the scores of
// optional clauses that land on the same doc.
type reqOptSumScorer struct {
	req Scorer
	opt Scorer
}

func newReqOptSumScorer(req, opt Scorer) *reqOptSumScorer {
	return &reqOptSumScorer{req: req, opt: opt}
}

func (r *reqOptSumScorer) DocID() int  { return r.req.DocID() }
func (r *reqOptSumScorer) Cost() int64 { return r.req.Cost() }

func (r *reqOptSumScorer) NextDoc() (int, error) { return r.req.NextDoc() }

func (r *reqOptSumScorer) Advance(target int) (int, error) { return r.req.Advance(target) }

func (r *reqOptSumScorer) Score() (float32, error) {
	score, err := r.req.Score()
	if err != nil {
		return 0, err
	}
	doc := r.req.DocID()
	optDoc := r.opt.DocID()
	if optDoc < doc {
		if optDoc, err = r.opt.Advance(doc); err != nil {
			return 0, err
		}
	}
	if optDoc == doc {
		opt, err := r.opt.Score()
		if err != nil {
			return 0, err
		}
		score += opt
	}
	return score, nil
}

// validate catches impossible clause combinations early.
func (q *BooleanQuery) validate() error {
	if q.minimumShouldMatch > q.occurCount(OccurShould) {
		return errors.NewValidationError(nil, errors.ErrorCodeInvalidInput,
			"minimumShouldMatch exceeds the SHOULD clause count").
			WithProvided(q.minimumShouldMatch)
	}
	return nil
}
