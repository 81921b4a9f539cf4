package search

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/diagon/internal/index"
	"github.com/iamNilotpal/diagon/internal/store"
	"github.com/iamNilotpal/diagon/pkg/logger"
	"github.com/iamNilotpal/diagon/pkg/options"
)

// buildSearcher flushes one segment per docs slice, applies per-segment
// deletes, publishes a commit and opens a searcher over it.
func buildSearcher(t *testing.T, segments [][]*index.Document, deletes map[int][]int, optFns ...options.OptionFunc) *IndexSearcher {
	t.Helper()

	dir, err := store.OpenDirectory(&store.DirectoryConfig{
		Path:        t.TempDir(),
		ChunkPower:  16,
		UseFallback: true,
		Logger:      logger.NewNop(),
	})
	require.NoError(t, err)

	w := index.NewSegmentWriter(dir, logger.NewNop())
	sis := &index.SegmentInfos{}
	for n, docs := range segments {
		si, err := w.Write(segName(n), docs)
		require.NoError(t, err)
		if del := deletes[n]; len(del) > 0 {
			require.NoError(t, index.ApplyDeletes(dir, si, del))
		}
		sis.Segments = append(sis.Segments, si)
	}
	require.NoError(t, sis.Write(dir))

	reader, err := index.OpenIndexReader(dir, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reader.Close() })

	opts := options.NewDefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	searcher, err := NewIndexSearcher(&IndexSearcherConfig{
		Reader:  reader,
		Options: &opts,
		Logger:  logger.NewNop(),
	})
	require.NoError(t, err)
	return searcher
}

func segName(n int) string {
	return "_" + string(rune('0'+n))
}

// exhaustiveSearch evaluates the query with no early termination and returns
// every scored hit sorted by (score desc, docID asc).
func exhaustiveSearch(t *testing.T, s *IndexSearcher, q Query) []ScoreDoc {
	t.Helper()
	weight, err := s.CreateWeight(q, ScoreModeComplete, 1.0)
	require.NoError(t, err)

	var hits []ScoreDoc
	for _, leaf := range s.reader.Leaves() {
		scorer, err := weight.Scorer(leaf)
		require.NoError(t, err)
		if scorer == nil {
			continue
		}
		liveDocs := leaf.Reader.LiveDocs()
		for {
			doc, err := scorer.NextDoc()
			require.NoError(t, err)
			if doc == NoMoreDocs {
				break
			}
			if liveDocs != nil && !liveDocs.Get(doc) {
				continue
			}
			score, err := scorer.Score()
			require.NoError(t, err)
			hits = append(hits, ScoreDoc{Doc: leaf.DocBase + doc, Score: score})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Less(hits[j]) })
	return hits
}

// Scenario 1: single term, single segment, k larger than the hit count.
func TestSingleTermSingleSegment(t *testing.T) {
	docs := []*index.Document{
		index.NewDocument().AddText("body", "rust", "rust", "rust"),
		index.NewDocument().AddText("body", "other"),
		index.NewDocument().AddText("body", "rust"),
		index.NewDocument().AddText("body", "other", "other"),
		index.NewDocument().AddText("body", "rust", "rust", "rust", "rust", "rust"),
	}
	s := buildSearcher(t, [][]*index.Document{docs}, nil)
	q := NewTermQuery(index.NewTerm("body", "rust"))

	td, err := s.Search(q, 10)
	require.NoError(t, err)

	assert.Equal(t, int64(3), td.TotalHits.Value)
	assert.Equal(t, TotalHitsEqualTo, td.TotalHits.Relation)
	require.Len(t, td.ScoreDocs, 3)

	// Ordering follows the BM25 formula exactly; validate against the
	// exhaustive evaluation rather than hard-coding float values.
	want := exhaustiveSearch(t, s, q)
	assert.Equal(t, want, td.ScoreDocs)

	// Output sorted by (score desc, docID asc).
	for i := 1; i < len(td.ScoreDocs); i++ {
		assert.True(t, td.ScoreDocs[i-1].Less(td.ScoreDocs[i]))
	}

	// IDF sanity: ln(1 + (5-3+0.5)/(3+0.5)) with every doc carrying the
	// field.
	sim := s.similarity
	assert.InDelta(t, 0.5390, sim.IDF(3, 5), 1e-3)
}

// Scenario 2: pure disjunction under a threshold stops reporting exact
// counts once the heap fills and still finds the best hit.
func TestPureDisjunctionWANDTopOne(t *testing.T) {
	var docs []*index.Document
	for i := 0; i < 300; i++ {
		d := index.NewDocument()
		switch {
		case i == 10:
			d.AddText("body", "alpha", "alpha", "alpha", "alpha", "beta")
		case i < 128:
			d.AddText("body", "alpha", "filler", "filler")
		case i%3 == 0:
			d.AddText("body", "beta", "filler", "filler", "filler", "filler", "filler")
		default:
			d.AddText("body", "gamma", "filler")
		}
		docs = append(docs, d)
	}
	s := buildSearcher(t, [][]*index.Document{docs}, nil)

	q := NewBooleanQueryBuilder().
		Add(NewTermQuery(index.NewTerm("body", "alpha")), OccurShould).
		Add(NewTermQuery(index.NewTerm("body", "beta")), OccurShould).
		Add(NewTermQuery(index.NewTerm("body", "gamma")), OccurShould).
		Build()

	want := exhaustiveSearch(t, s, q)

	td, err := s.Search(q, 1)
	require.NoError(t, err)
	require.Len(t, td.ScoreDocs, 1)
	assert.Equal(t, want[0].Doc, td.ScoreDocs[0].Doc)
	assert.InDelta(t, want[0].Score, td.ScoreDocs[0].Score, 1e-4)

	// The heap filled and pushed a threshold into a skipping scorer: the
	// total is a lower bound from then on.
	assert.Equal(t, TotalHitsGreaterThanOrEqualTo, td.TotalHits.Relation)
	assert.LessOrEqual(t, td.TotalHits.Value, int64(len(want)))
	assert.GreaterOrEqual(t, td.TotalHits.Value, int64(1))
}

// Scenario 3: MUST + MUST_NOT.
func TestBooleanMustMustNot(t *testing.T) {
	docs := []*index.Document{
		index.NewDocument().AddText("body", "baseline"),
		index.NewDocument().AddText("body", "foo"),
		index.NewDocument().AddText("body", "foo", "bar"),
		index.NewDocument().AddText("body", "foo"),
		index.NewDocument().AddText("body", "foo", "bar"),
	}
	s := buildSearcher(t, [][]*index.Document{docs}, nil)

	q := NewBooleanQueryBuilder().
		Add(NewTermQuery(index.NewTerm("body", "foo")), OccurMust).
		Add(NewTermQuery(index.NewTerm("body", "bar")), OccurMustNot).
		Build()

	td, err := s.Search(q, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), td.TotalHits.Value)

	var got []int
	for _, sd := range td.ScoreDocs {
		got = append(got, sd.Doc)
	}
	sort.Ints(got)
	assert.Equal(t, []int{1, 3}, got)

	// Scores are foo's BM25 alone: identical docs, identical scores.
	assert.Equal(t, td.ScoreDocs[0].Score, td.ScoreDocs[1].Score)

	fooOnly := exhaustiveSearch(t, s, NewTermQuery(index.NewTerm("body", "foo")))
	for _, sd := range td.ScoreDocs {
		found := false
		for _, ref := range fooOnly {
			if ref.Doc == sd.Doc {
				assert.InDelta(t, ref.Score, sd.Score, 1e-6)
				found = true
			}
		}
		assert.True(t, found)
	}
}

// Scenario 4: inclusive numeric range over doc values.
func TestNumericRange(t *testing.T) {
	prices := []int64{50, 100, 100, 150, 200}
	var docs []*index.Document
	for _, p := range prices {
		docs = append(docs, index.NewDocument().AddText("body", "x").AddNumeric("price", p))
	}
	s := buildSearcher(t, [][]*index.Document{docs}, nil)

	q, err := NewNumericRangeQuery("price", 100, 150, true, true)
	require.NoError(t, err)

	td, err := s.Search(q, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), td.TotalHits.Value)

	var got []int
	for _, sd := range td.ScoreDocs {
		got = append(got, sd.Doc)
		// Constant boost score, default 1.0.
		assert.Equal(t, float32(1.0), sd.Score)
	}
	sort.Ints(got)
	assert.Equal(t, []int{1, 2, 3}, got)

	// Exclusive bounds.
	q2, err := NewNumericRangeQuery("price", 100, 150, false, true)
	require.NoError(t, err)
	count, err := s.Count(q2)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Half-open upper bound.
	q3, err := NewNumericLowerBoundQuery("price", 150, true)
	require.NoError(t, err)
	count, err = s.Count(q3)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestDoubleRange(t *testing.T) {
	values := []float64{0.5, 1.5, 2.5, math.NaN(), 4.5}
	var docs []*index.Document
	for _, v := range values {
		docs = append(docs, index.NewDocument().AddText("body", "x").AddDouble("score", v))
	}
	s := buildSearcher(t, [][]*index.Document{docs}, nil)

	q, err := NewDoubleRangeQuery("score", 1.0, 5.0, true, true)
	require.NoError(t, err)

	td, err := s.Search(q, 10)
	require.NoError(t, err)

	var got []int
	for _, sd := range td.ScoreDocs {
		got = append(got, sd.Doc)
	}
	sort.Ints(got)
	// NaN never matches.
	assert.Equal(t, []int{1, 2, 4}, got)

	_, err = NewDoubleRangeQuery("score", math.NaN(), 5, true, true)
	require.Error(t, err)
	_, err = NewDoubleRangeQuery("score", 5, 1, true, true)
	require.Error(t, err)
}

// Scenario 5: deletions filter MatchAll.
func TestMatchAllWithDeletions(t *testing.T) {
	var docs []*index.Document
	for i := 0; i < 10; i++ {
		docs = append(docs, index.NewDocument().AddText("body", "x"))
	}
	s := buildSearcher(t, [][]*index.Document{docs}, map[int][]int{0: {3, 7}})

	td, err := s.Search(NewMatchAllDocsQuery(), 20)
	require.NoError(t, err)
	assert.Equal(t, int64(8), td.TotalHits.Value)
	assert.Equal(t, TotalHitsEqualTo, td.TotalHits.Relation)

	var got []int
	for _, sd := range td.ScoreDocs {
		got = append(got, sd.Doc)
	}
	sort.Ints(got)
	assert.Equal(t, []int{0, 1, 2, 4, 5, 6, 8, 9}, got)

	// The count path accounts for deletions in O(1).
	count, err := s.Count(NewMatchAllDocsQuery())
	require.NoError(t, err)
	assert.Equal(t, 8, count)
}

// Scenario 6: pagination with search-after.
func TestSearchAfterPagination(t *testing.T) {
	docs := []*index.Document{
		index.NewDocument().AddText("body", "rust", "rust", "rust"),
		index.NewDocument().AddText("body", "other"),
		index.NewDocument().AddText("body", "rust"),
		index.NewDocument().AddText("body", "other", "other"),
		index.NewDocument().AddText("body", "rust", "rust", "rust", "rust", "rust"),
	}
	s := buildSearcher(t, [][]*index.Document{docs}, nil)
	q := NewTermQuery(index.NewTerm("body", "rust"))

	first, err := s.Search(q, 2)
	require.NoError(t, err)
	require.Len(t, first.ScoreDocs, 2)

	after := first.ScoreDocs[1]
	second, err := s.SearchAfter(q, &after, 10)
	require.NoError(t, err)

	// The remaining hit follows, and total hits still counts every scored
	// doc.
	all := exhaustiveSearch(t, s, q)
	require.Len(t, second.ScoreDocs, 1)
	assert.Equal(t, all[2], second.ScoreDocs[0])
	assert.Equal(t, int64(3), second.TotalHits.Value)
}

func TestMultiSegmentDocBases(t *testing.T) {
	seg0 := []*index.Document{
		index.NewDocument().AddText("body", "apple"),
		index.NewDocument().AddText("body", "pear"),
	}
	seg1 := []*index.Document{
		index.NewDocument().AddText("body", "apple", "apple"),
		index.NewDocument().AddText("body", "plum"),
		index.NewDocument().AddText("body", "apple"),
	}
	s := buildSearcher(t, [][]*index.Document{seg0, seg1}, nil)

	td, err := s.Search(NewTermQuery(index.NewTerm("body", "apple")), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), td.TotalHits.Value)

	var got []int
	for _, sd := range td.ScoreDocs {
		got = append(got, sd.Doc)
	}
	sort.Ints(got)
	// Global IDs: leaf 0 docs 0..1, leaf 1 docs 2..4.
	assert.Equal(t, []int{0, 2, 4}, got)
}

func TestPhraseQueries(t *testing.T) {
	docs := []*index.Document{
		index.NewDocument().AddText("body", "quick", "brown", "fox"),
		index.NewDocument().AddText("body", "quick", "red", "fox"),
		index.NewDocument().AddText("body", "fox", "quick", "brown"),
		index.NewDocument().AddText("body", "quick", "brown", "dog"),
	}
	s := buildSearcher(t, [][]*index.Document{docs}, nil)

	exact, err := NewPhraseQueryBuilder("body").Add("quick").Add("brown").Add("fox").Build()
	require.NoError(t, err)
	td, err := s.Search(exact, 10)
	require.NoError(t, err)
	require.Len(t, td.ScoreDocs, 1)
	assert.Equal(t, 0, td.ScoreDocs[0].Doc)

	// Slop 2 lets "quick ? fox" and reordered-adjacent docs in.
	sloppy, err := NewPhraseQueryBuilder("body").Add("quick").Add("fox").SetSlop(2).Build()
	require.NoError(t, err)
	td, err = s.Search(sloppy, 10)
	require.NoError(t, err)

	var got []int
	for _, sd := range td.ScoreDocs {
		got = append(got, sd.Doc)
	}
	sort.Ints(got)
	assert.Equal(t, []int{0, 1, 2}, got)

	// Single-term phrase rewrites to a term query.
	single, err := NewPhraseQueryBuilder("body").Add("fox").Build()
	require.NoError(t, err)
	rewritten, err := single.Rewrite(s.reader)
	require.NoError(t, err)
	_, isTerm := rewritten.(*TermQuery)
	assert.True(t, isTerm)
}

func TestFilterClauseDoesNotScore(t *testing.T) {
	docs := []*index.Document{
		index.NewDocument().AddText("body", "foo").AddNumeric("price", 10),
		index.NewDocument().AddText("body", "foo").AddNumeric("price", 99),
	}
	s := buildSearcher(t, [][]*index.Document{docs}, nil)

	rq, err := NewNumericRangeQuery("price", 0, 50, true, true)
	require.NoError(t, err)
	q := NewBooleanQueryBuilder().
		Add(NewTermQuery(index.NewTerm("body", "foo")), OccurMust).
		Add(rq, OccurFilter).
		Build()

	td, err := s.Search(q, 10)
	require.NoError(t, err)
	require.Len(t, td.ScoreDocs, 1)
	assert.Equal(t, 0, td.ScoreDocs[0].Doc)

	// Score equals the term's alone: the filter adds nothing.
	ref := exhaustiveSearch(t, s, NewTermQuery(index.NewTerm("body", "foo")))
	assert.InDelta(t, ref[0].Score, td.ScoreDocs[0].Score, 1e-6)
}

func TestSearchFailureLeavesSearcherUsable(t *testing.T) {
	docs := []*index.Document{index.NewDocument().AddText("body", "x")}
	s := buildSearcher(t, [][]*index.Document{docs}, nil)

	_, err := s.Search(NewMatchAllDocsQuery(), 0)
	require.Error(t, err)

	td, err := s.Search(NewMatchAllDocsQuery(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), td.TotalHits.Value)
}
