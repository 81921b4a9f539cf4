package search

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/diagon/internal/index"
	"github.com/iamNilotpal/diagon/pkg/errors"
)

func TestQueryEqualityAndHash(t *testing.T) {
	a := NewTermQuery(index.NewTerm("body", "go"))
	b := NewTermQuery(index.NewTerm("body", "go"))
	c := NewTermQuery(index.NewTerm("title", "go"))

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Hash(), b.Hash())
	assert.False(t, a.Equal(c))
	assert.NotEqual(t, a.Hash(), c.Hash())
	assert.True(t, a.Equal(a.Clone()))

	ba := NewBooleanQueryBuilder().Add(a, OccurMust).Add(c, OccurShould).Build()
	bb := NewBooleanQueryBuilder().Add(b, OccurMust).Add(c, OccurShould).Build()
	bc := NewBooleanQueryBuilder().Add(a, OccurShould).Add(c, OccurMust).Build()
	assert.True(t, ba.Equal(bb))
	assert.Equal(t, ba.Hash(), bb.Hash())
	assert.False(t, ba.Equal(bc))

	ra, err := NewNumericRangeQuery("price", 1, 5, true, false)
	require.NoError(t, err)
	rb, err := NewNumericRangeQuery("price", 1, 5, true, false)
	require.NoError(t, err)
	rc, err := NewNumericRangeQuery("price", 1, 5, true, true)
	require.NoError(t, err)
	assert.True(t, ra.Equal(rb))
	assert.False(t, ra.Equal(rc))

	assert.True(t, NewMatchAllDocsQuery().Equal(NewMatchAllDocsQuery()))
}

func TestQueryStrings(t *testing.T) {
	tq := NewTermQuery(index.NewTerm("body", "go"))
	assert.Equal(t, "go", tq.String("body"))
	assert.Equal(t, "body:go", tq.String("other"))

	assert.Equal(t, "*:*", NewMatchAllDocsQuery().String(""))

	bq := NewBooleanQueryBuilder().
		Add(tq, OccurMust).
		Add(NewTermQuery(index.NewTerm("body", "slow")), OccurMustNot).
		Build()
	assert.Equal(t, "(+go -slow)", bq.String("body"))

	rq, err := NewNumericRangeQuery("price", 100, 150, true, false)
	require.NoError(t, err)
	assert.Equal(t, "price:[100 TO 150}", rq.String(""))

	pq, err := NewPhraseQueryBuilder("body").Add("quick").Add("fox").SetSlop(2).Build()
	require.NoError(t, err)
	assert.Equal(t, "\"quick fox\"~2", pq.String("body"))
}

func TestRangeValidation(t *testing.T) {
	_, err := NewNumericRangeQuery("price", 10, 5, true, true)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorCodeInvalidInput, errors.GetErrorCode(err))
	assert.True(t, errors.IsValidationError(err))
}

func TestBooleanRewriteFixPoint(t *testing.T) {
	inner := NewTermQuery(index.NewTerm("body", "x"))

	// ((x)) collapses all the way down to the term query.
	nested := NewBooleanQueryBuilder().
		Add(NewBooleanQueryBuilder().Add(inner, OccurMust).Build(), OccurMust).
		Build()

	got, err := rewriteToFixPoint(nested, nil)
	require.NoError(t, err)
	assert.True(t, got.Equal(inner))
}

func TestMinimumShouldMatchValidation(t *testing.T) {
	q := NewBooleanQueryBuilder().
		Add(NewTermQuery(index.NewTerm("body", "x")), OccurShould).
		SetMinimumShouldMatch(3).
		Build()

	_, err := q.CreateWeight(nil, ScoreModeComplete, 1.0)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorCodeInvalidInput, errors.GetErrorCode(err))
}

func TestTopCollectorValidation(t *testing.T) {
	_, err := NewTopScoreDocCollector(0)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorCodeInvalidInput, errors.GetErrorCode(err))
}

// Non-finite scores never enter the heap.
func TestCollectorDropsNonFiniteScores(t *testing.T) {
	collector, err := NewTopScoreDocCollector(4)
	require.NoError(t, err)

	lc, err := collector.LeafCollector(&index.LeafReaderContext{DocBase: 0})
	require.NoError(t, err)

	src := &stubScorable{}
	require.NoError(t, lc.SetScorer(src))

	for doc, score := range map[int]float32{
		0: 1.5,
		1: float32(math.NaN()),
		2: float32(math.Inf(1)),
		3: 2.5,
	} {
		src.doc, src.score = doc, score
		require.NoError(t, lc.Collect(doc))
	}

	td := collector.TopDocs()
	assert.Equal(t, int64(2), td.TotalHits.Value)
	require.Len(t, td.ScoreDocs, 2)
	assert.Equal(t, 3, td.ScoreDocs[0].Doc)
	assert.Equal(t, 0, td.ScoreDocs[1].Doc)
}

type stubScorable struct {
	doc   int
	score float32
}

func (s *stubScorable) DocID() int              { return s.doc }
func (s *stubScorable) Score() (float32, error) { return s.score, nil }
