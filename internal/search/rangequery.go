package search

import (
	"math"
	"strconv"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/cespare/xxhash/v2"

	"github.com/iamNilotpal/diagon/internal/index"
	"github.com/iamNilotpal/diagon/pkg/errors"
)

// NumericRangeQuery is a constant-score filter over a long doc-values
// column. Bounds are inclusive or exclusive independently; half-open ranges
// use the int64 extremes.
type NumericRangeQuery struct {
	field        string
	lower, upper int64
	includeLower bool
	includeUpper bool
}

// NewNumericRangeQuery rejects lower > upper at construction.
func NewNumericRangeQuery(field string, lower, upper int64, includeLower, includeUpper bool) (*NumericRangeQuery, error) {
	if lower > upper {
		return nil, errors.NewValidationError(nil, errors.ErrorCodeInvalidInput,
			"Range lower bound exceeds upper bound").
			WithField(field).WithRule("lower <= upper").WithProvided(lower)
	}
	return &NumericRangeQuery{
		field: field, lower: lower, upper: upper,
		includeLower: includeLower, includeUpper: includeUpper,
	}, nil
}

// NewNumericLowerBoundQuery matches values from lower upward.
func NewNumericLowerBoundQuery(field string, lower int64, includeLower bool) (*NumericRangeQuery, error) {
	return NewNumericRangeQuery(field, lower, math.MaxInt64, includeLower, true)
}

// NewNumericUpperBoundQuery matches values up to upper.
func NewNumericUpperBoundQuery(field string, upper int64, includeUpper bool) (*NumericRangeQuery, error) {
	return NewNumericRangeQuery(field, math.MinInt64, upper, true, includeUpper)
}

// NewNumericExactQuery matches one value.
func NewNumericExactQuery(field string, value int64) (*NumericRangeQuery, error) {
	return NewNumericRangeQuery(field, value, value, true, true)
}

func (q *NumericRangeQuery) Rewrite(reader *index.IndexReader) (Query, error) { return q, nil }

func (q *NumericRangeQuery) String(defaultField string) string {
	return rangeString(q.field, defaultField,
		strconv.FormatInt(q.lower, 10), strconv.FormatInt(q.upper, 10),
		q.includeLower, q.includeUpper)
}

func (q *NumericRangeQuery) Clone() Query {
	clone := *q
	return &clone
}

func (q *NumericRangeQuery) Equal(other Query) bool {
	o, ok := other.(*NumericRangeQuery)
	return ok && *o == *q
}

func (q *NumericRangeQuery) Hash() uint64 {
	return xxhash.Sum64String("nrange:" + q.field + ":" +
		strconv.FormatInt(q.lower, 10) + ":" + strconv.FormatInt(q.upper, 10) +
		":" + strconv.FormatBool(q.includeLower) + strconv.FormatBool(q.includeUpper))
}

func (q *NumericRangeQuery) CreateWeight(s *IndexSearcher, mode ScoreMode, boost float32) (Weight, error) {
	accepts := func(raw int64) bool {
		if raw < q.lower || (raw == q.lower && !q.includeLower) {
			return false
		}
		if raw > q.upper || (raw == q.upper && !q.includeUpper) {
			return false
		}
		return true
	}
	return newRangeWeight(q, q.field, mode, boost, accepts), nil
}

// DoubleRangeQuery is the double interpretation: the column stores float64
// bit patterns, NaN never matches, and NaN bounds are rejected.
type DoubleRangeQuery struct {
	field        string
	lower, upper float64
	includeLower bool
	includeUpper bool
}

// NewDoubleRangeQuery rejects NaN bounds and lower > upper.
func NewDoubleRangeQuery(field string, lower, upper float64, includeLower, includeUpper bool) (*DoubleRangeQuery, error) {
	if math.IsNaN(lower) || math.IsNaN(upper) {
		return nil, errors.NewValidationError(nil, errors.ErrorCodeInvalidInput,
			"NaN range bound").WithField(field).WithRule("bounds must not be NaN")
	}
	if lower > upper {
		return nil, errors.NewValidationError(nil, errors.ErrorCodeInvalidInput,
			"Range lower bound exceeds upper bound").
			WithField(field).WithRule("lower <= upper").WithProvided(lower)
	}
	return &DoubleRangeQuery{
		field: field, lower: lower, upper: upper,
		includeLower: includeLower, includeUpper: includeUpper,
	}, nil
}

// NewDoubleLowerBoundQuery matches values from lower upward.
func NewDoubleLowerBoundQuery(field string, lower float64, includeLower bool) (*DoubleRangeQuery, error) {
	return NewDoubleRangeQuery(field, lower, math.Inf(1), includeLower, true)
}

// NewDoubleUpperBoundQuery matches values up to upper.
func NewDoubleUpperBoundQuery(field string, upper float64, includeUpper bool) (*DoubleRangeQuery, error) {
	return NewDoubleRangeQuery(field, math.Inf(-1), upper, true, includeUpper)
}

// NewDoubleExactQuery matches one value.
func NewDoubleExactQuery(field string, value float64) (*DoubleRangeQuery, error) {
	return NewDoubleRangeQuery(field, value, value, true, true)
}

func (q *DoubleRangeQuery) Rewrite(reader *index.IndexReader) (Query, error) { return q, nil }

func (q *DoubleRangeQuery) String(defaultField string) string {
	return rangeString(q.field, defaultField,
		strconv.FormatFloat(q.lower, 'g', -1, 64), strconv.FormatFloat(q.upper, 'g', -1, 64),
		q.includeLower, q.includeUpper)
}

func (q *DoubleRangeQuery) Clone() Query {
	clone := *q
	return &clone
}

func (q *DoubleRangeQuery) Equal(other Query) bool {
	o, ok := other.(*DoubleRangeQuery)
	return ok && *o == *q
}

func (q *DoubleRangeQuery) Hash() uint64 {
	return xxhash.Sum64String("drange:" + q.field + ":" +
		strconv.FormatFloat(q.lower, 'g', -1, 64) + ":" + strconv.FormatFloat(q.upper, 'g', -1, 64) +
		":" + strconv.FormatBool(q.includeLower) + strconv.FormatBool(q.includeUpper))
}

func (q *DoubleRangeQuery) CreateWeight(s *IndexSearcher, mode ScoreMode, boost float32) (Weight, error) {
	accepts := func(raw int64) bool {
		v := math.Float64frombits(uint64(raw))
		if math.IsNaN(v) {
			return false
		}
		if v < q.lower || (v == q.lower && !q.includeLower) {
			return false
		}
		if v > q.upper || (v == q.upper && !q.includeUpper) {
			return false
		}
		return true
	}
	return newRangeWeight(q, q.field, mode, boost, accepts), nil
}

func rangeString(field, defaultField, lower, upper string, includeLower, includeUpper bool) string {
	lb, ub := "{", "}"
	if includeLower {
		lb = "["
	}
	if includeUpper {
		ub = "]"
	}
	s := lb + lower + " TO " + upper + ub
	if field != defaultField {
		return field + ":" + s
	}
	return s
}

// rangeWeight scans the segment's doc-values column once, materializes the
// matching docs into a roaring bitmap cached per leaf, and serves a
// constant-score iterator over it.
type rangeWeight struct {
	query   Query
	field   string
	score   float32
	accepts func(raw int64) bool

	mu     sync.Mutex
	cached map[index.CacheKey]*roaring.Bitmap
}

func newRangeWeight(q Query, field string, mode ScoreMode, boost float32, accepts func(int64) bool) *rangeWeight {
	score := boost
	if !mode.NeedsScores() {
		score = 0
	}
	return &rangeWeight{
		query:   q,
		field:   field,
		score:   score,
		accepts: accepts,
		cached:  make(map[index.CacheKey]*roaring.Bitmap),
	}
}

func (w *rangeWeight) Query() Query { return w.query }

func (w *rangeWeight) bitmap(ctx *index.LeafReaderContext) (*roaring.Bitmap, error) {
	key := ctx.Reader.CacheKey()

	w.mu.Lock()
	defer w.mu.Unlock()
	if bm, ok := w.cached[key]; ok {
		return bm, nil
	}

	dv, err := ctx.Reader.NumericDocValues(w.field)
	if err != nil {
		return nil, err
	}
	if dv == nil {
		return nil, nil
	}

	bm := roaring.New()
	for doc := 0; doc < dv.Count(); doc++ {
		if w.accepts(dv.Value(doc)) {
			bm.Add(uint32(doc))
		}
	}
	w.cached[key] = bm
	return bm, nil
}

func (w *rangeWeight) Scorer(ctx *index.LeafReaderContext) (Scorer, error) {
	bm, err := w.bitmap(ctx)
	if err != nil || bm == nil {
		return nil, err
	}
	if bm.IsEmpty() {
		return nil, nil
	}
	return &bitmapScorer{it: bm.Iterator(), score: w.score, cost: int64(bm.GetCardinality()), doc: -1}, nil
}

func (w *rangeWeight) BulkScorer(ctx *index.LeafReaderContext) (BulkScorer, error) {
	return nil, nil
}

func (w *rangeWeight) Count(ctx *index.LeafReaderContext) (int, error) {
	if ctx.Reader.HasDeletions() {
		return -1, nil
	}
	bm, err := w.bitmap(ctx)
	if err != nil {
		return -1, err
	}
	if bm == nil {
		return 0, nil
	}
	return int(bm.GetCardinality()), nil
}

// bitmapScorer iterates a materialized doc-id set with a constant score.
type bitmapScorer struct {
	it    roaring.IntPeekable
	doc   int
	score float32
	cost  int64
}

func (b *bitmapScorer) DocID() int  { return b.doc }
func (b *bitmapScorer) Cost() int64 { return b.cost }

func (b *bitmapScorer) Score() (float32, error) { return b.score, nil }

func (b *bitmapScorer) NextDoc() (int, error) {
	if !b.it.HasNext() {
		b.doc = NoMoreDocs
		return b.doc, nil
	}
	b.doc = int(b.it.Next())
	return b.doc, nil
}

func (b *bitmapScorer) Advance(target int) (int, error) {
	if target < 0 {
		return 0, errors.NewValidationError(nil, errors.ErrorCodeInvalidInput,
			"Negative advance target").WithProvided(target)
	}
	if target == NoMoreDocs {
		b.doc = NoMoreDocs
		return b.doc, nil
	}
	b.it.AdvanceIfNeeded(uint32(target))
	return b.NextDoc()
}

// MaxScore is exact for a constant-score iterator.
func (b *bitmapScorer) MaxScore(upTo int) (float32, error) { return b.score, nil }

func (b *bitmapScorer) AdvanceShallow(target int) (int, error) { return NoMoreDocs, nil }

func (b *bitmapScorer) NextBlockBoundary(target int) (int, error) { return NoMoreDocs, nil }
