package search

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/diagon/internal/index"
	"github.com/iamNilotpal/diagon/pkg/options"
)

// randomCorpus builds a deterministic pseudo-random segment large enough to
// span several impact blocks per term.
func randomCorpus(t *testing.T, seed int64, numDocs int) [][]*index.Document {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	vocab := []string{"ant", "bee", "cat", "dog", "eel", "fox"}

	docs := make([]*index.Document, numDocs)
	for i := range docs {
		n := 1 + rng.Intn(8)
		tokens := make([]string, n)
		for j := range tokens {
			tokens[j] = vocab[rng.Intn(len(vocab))]
		}
		docs[i] = index.NewDocument().AddText("body", tokens...)
	}
	return [][]*index.Document{docs}
}

func disjunctionOf(terms ...string) *BooleanQuery {
	b := NewBooleanQueryBuilder()
	for _, term := range terms {
		b.Add(NewTermQuery(index.NewTerm("body", term)), OccurShould)
	}
	return b.Build()
}

// assertAgrees compares an engine result against the exhaustive reference:
// same length, same score sequence within float rounding, same doc set.
func assertAgrees(t *testing.T, want []ScoreDoc, got []ScoreDoc) {
	t.Helper()
	require.Equal(t, len(want), len(got))

	wantDocs := make([]int, len(want))
	gotDocs := make([]int, len(got))
	for i := range want {
		wantDocs[i] = want[i].Doc
		gotDocs[i] = got[i].Doc
		assert.InDelta(t, want[i].Score, got[i].Score, 1e-4, "rank %d", i)
	}
	sort.Ints(wantDocs)
	sort.Ints(gotDocs)
	assert.Equal(t, wantDocs, gotDocs)
}

// The bulk MaxScore path, the doc-at-a-time WAND path and a naive exhaustive
// disjunction must agree on the same inputs.
func TestDisjunctionPathsAgree(t *testing.T) {
	for _, seed := range []int64{1, 7, 42} {
		segments := randomCorpus(t, seed, 500)

		bulk := buildSearcher(t, segments, nil)
		docAtATime := buildSearcher(t, segments, nil, options.WithBlockMaxWAND(false))

		queries := []Query{
			disjunctionOf("ant", "bee"),
			disjunctionOf("cat", "dog", "eel"),
			disjunctionOf("ant", "bee", "cat", "dog", "eel", "fox"),
		}

		for _, q := range queries {
			want := exhaustiveSearch(t, bulk, q)
			k := 10

			wantTop := want
			if len(wantTop) > k {
				wantTop = wantTop[:k]
			}

			tdBulk, err := bulk.Search(q, k)
			require.NoError(t, err)
			assertAgrees(t, wantTop, tdBulk.ScoreDocs)

			tdWAND, err := docAtATime.Search(q, k)
			require.NoError(t, err)
			assertAgrees(t, wantTop, tdWAND.ScoreDocs)

			// Bulk and doc-at-a-time agree with each other as well.
			assertAgrees(t, tdWAND.ScoreDocs, tdBulk.ScoreDocs)
		}
	}
}

// WAND with no threshold is exactly a disjunction.
func TestWANDScorerMatchesNaiveDisjunction(t *testing.T) {
	segments := randomCorpus(t, 13, 400)
	s := buildSearcher(t, segments, nil)
	leaf := s.reader.Leaves()[0]

	q := disjunctionOf("ant", "cat", "fox")
	weight, err := s.CreateWeight(q, ScoreModeComplete, 1.0)
	require.NoError(t, err)

	makeClauses := func() []Scorer {
		var clauses []Scorer
		for _, c := range q.Clauses() {
			tw, err := c.Query.CreateWeight(s, ScoreModeComplete, 1.0)
			require.NoError(t, err)
			sc, err := tw.Scorer(leaf)
			require.NoError(t, err)
			require.NotNil(t, sc)
			clauses = append(clauses, sc)
		}
		return clauses
	}

	naive, err := weight.Scorer(leaf)
	require.NoError(t, err)
	wand, err := NewWANDScorer(makeClauses(), 1)
	require.NoError(t, err)

	for {
		nd, err := naive.NextDoc()
		require.NoError(t, err)
		wd, err := wand.NextDoc()
		require.NoError(t, err)
		require.Equal(t, nd, wd)
		if nd == NoMoreDocs {
			break
		}
		ns, err := naive.Score()
		require.NoError(t, err)
		ws, err := wand.Score()
		require.NoError(t, err)
		assert.InDelta(t, ns, ws, 1e-4, "doc %d", nd)
	}
}

// Under a threshold, WAND must still deliver every doc whose score reaches
// it.
func TestWANDThresholdCompleteness(t *testing.T) {
	segments := randomCorpus(t, 99, 600)
	s := buildSearcher(t, segments, nil)
	leaf := s.reader.Leaves()[0]

	q := disjunctionOf("bee", "dog", "fox")
	full := exhaustiveSearch(t, s, q)
	require.NotEmpty(t, full)

	// Pick a threshold in the middle of the observed score range.
	threshold := full[len(full)/2].Score

	var clauses []Scorer
	for _, c := range q.Clauses() {
		tw, err := c.Query.CreateWeight(s, ScoreModeComplete, 1.0)
		require.NoError(t, err)
		sc, err := tw.Scorer(leaf)
		require.NoError(t, err)
		clauses = append(clauses, sc)
	}
	wand, err := NewWANDScorer(clauses, 1)
	require.NoError(t, err)
	wand.SetMinCompetitiveScore(threshold)

	delivered := map[int]bool{}
	for {
		doc, err := wand.NextDoc()
		require.NoError(t, err)
		if doc == NoMoreDocs {
			break
		}
		delivered[doc] = true
	}

	for _, hit := range full {
		if hit.Score >= threshold+1e-4 {
			assert.True(t, delivered[hit.Doc], "doc %d score %f missing", hit.Doc, hit.Score)
		}
	}
}

// minimumShouldMatch semantics against brute force.
func TestMinimumShouldMatch(t *testing.T) {
	segments := randomCorpus(t, 5, 300)
	s := buildSearcher(t, segments, nil)

	q := NewBooleanQueryBuilder().
		Add(NewTermQuery(index.NewTerm("body", "ant")), OccurShould).
		Add(NewTermQuery(index.NewTerm("body", "bee")), OccurShould).
		Add(NewTermQuery(index.NewTerm("body", "cat")), OccurShould).
		SetMinimumShouldMatch(2).
		Build()

	got := exhaustiveSearch(t, s, q)

	// Brute force: a doc qualifies when at least two distinct terms hit it.
	onDoc := map[int]int{}
	for _, term := range []string{"ant", "bee", "cat"} {
		for _, hit := range exhaustiveSearch(t, s, NewTermQuery(index.NewTerm("body", term))) {
			onDoc[hit.Doc]++
		}
	}
	var want []int
	for doc, n := range onDoc {
		if n >= 2 {
			want = append(want, doc)
		}
	}
	sort.Ints(want)

	var gotDocs []int
	for _, hit := range got {
		gotDocs = append(gotDocs, hit.Doc)
	}
	sort.Ints(gotDocs)
	assert.Equal(t, want, gotDocs)
}

// Conjunction-over-disjunction equivalence with brute-force scoring.
func TestConjunctionOverDisjunction(t *testing.T) {
	segments := randomCorpus(t, 21, 300)
	s := buildSearcher(t, segments, nil)

	q := NewBooleanQueryBuilder().
		Add(NewTermQuery(index.NewTerm("body", "ant")), OccurMust).
		Add(NewTermQuery(index.NewTerm("body", "bee")), OccurShould).
		Add(NewTermQuery(index.NewTerm("body", "cat")), OccurShould).
		Build()

	got := exhaustiveSearch(t, s, q)

	ants := exhaustiveSearch(t, s, NewTermQuery(index.NewTerm("body", "ant")))
	bees := map[int]float32{}
	for _, h := range exhaustiveSearch(t, s, NewTermQuery(index.NewTerm("body", "bee"))) {
		bees[h.Doc] = h.Score
	}
	cats := map[int]float32{}
	for _, h := range exhaustiveSearch(t, s, NewTermQuery(index.NewTerm("body", "cat"))) {
		cats[h.Doc] = h.Score
	}

	want := map[int]float32{}
	for _, h := range ants {
		want[h.Doc] = h.Score + bees[h.Doc] + cats[h.Doc]
	}

	require.Equal(t, len(want), len(got))
	for _, h := range got {
		ref, ok := want[h.Doc]
		require.True(t, ok, "unexpected doc %d", h.Doc)
		assert.InDelta(t, ref, h.Score, 1e-4)
	}
}

// Scorer docIDs are strictly increasing until exhaustion.
func TestScorerMonotonicity(t *testing.T) {
	segments := randomCorpus(t, 3, 300)
	s := buildSearcher(t, segments, nil)
	leaf := s.reader.Leaves()[0]

	queries := []Query{
		NewTermQuery(index.NewTerm("body", "ant")),
		disjunctionOf("ant", "bee", "cat"),
		NewMatchAllDocsQuery(),
	}
	for _, q := range queries {
		w, err := s.CreateWeight(q, ScoreModeComplete, 1.0)
		require.NoError(t, err)
		sc, err := w.Scorer(leaf)
		require.NoError(t, err)
		require.NotNil(t, sc)

		prev := -1
		for {
			doc, err := sc.NextDoc()
			require.NoError(t, err)
			if doc == NoMoreDocs {
				break
			}
			require.Greater(t, doc, prev)
			prev = doc
		}
	}
}

// MaxScore upper bounds hold over observed scores.
func TestMaxScoreInvariant(t *testing.T) {
	segments := randomCorpus(t, 17, 500)
	s := buildSearcher(t, segments, nil)
	leaf := s.reader.Leaves()[0]

	w, err := s.CreateWeight(NewTermQuery(index.NewTerm("body", "dog")), ScoreModeTopScores, 1.0)
	require.NoError(t, err)
	sc, err := w.Scorer(leaf)
	require.NoError(t, err)
	bm, ok := sc.(BlockMaxScorer)
	require.True(t, ok)

	bound, err := bm.MaxScore(NoMoreDocs)
	require.NoError(t, err)

	for {
		doc, err := sc.NextDoc()
		require.NoError(t, err)
		if doc == NoMoreDocs {
			break
		}
		score, err := sc.Score()
		require.NoError(t, err)
		assert.LessOrEqual(t, score, bound+1e-5)
	}
}
