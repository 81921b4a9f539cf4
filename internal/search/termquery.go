package search

import (
	"github.com/cespare/xxhash/v2"

	"github.com/iamNilotpal/diagon/internal/index"
	"github.com/iamNilotpal/diagon/internal/similarity"
)

// TermQuery matches the documents containing one term, scored by BM25.
type TermQuery struct {
	term index.Term
}

func NewTermQuery(term index.Term) *TermQuery {
	return &TermQuery{term: term}
}

// Term returns the query's term.
func (q *TermQuery) Term() index.Term { return q.term }

func (q *TermQuery) Rewrite(reader *index.IndexReader) (Query, error) { return q, nil }

func (q *TermQuery) String(defaultField string) string {
	if q.term.Field == defaultField {
		return q.term.Text
	}
	return q.term.String()
}

func (q *TermQuery) Clone() Query { return &TermQuery{term: q.term} }

func (q *TermQuery) Equal(other Query) bool {
	o, ok := other.(*TermQuery)
	return ok && o.term == q.term
}

func (q *TermQuery) Hash() uint64 {
	return q.term.Hash() ^ xxhash.Sum64String("term")
}

func (q *TermQuery) CreateWeight(s *IndexSearcher, mode ScoreMode, boost float32) (Weight, error) {
	// Collection and term statistics come from the composite view so every
	// segment scores against the same IDF and average length.
	var cs similarity.CollectionStats
	var ts similarity.TermStats
	cs.Field = q.term.Field

	for _, leaf := range s.reader.Leaves() {
		fs, err := leaf.Reader.FieldStats(q.term.Field)
		if err != nil {
			return nil, err
		}
		if fs != nil {
			cs.DocCount += int64(fs.DocCount)
			cs.SumTotalTermFreq += int64(fs.SumTotalTermFreq)
		}
		tm, err := leaf.Reader.TermMeta(q.term)
		if err != nil {
			return nil, err
		}
		if tm != nil {
			ts.DocFreq += int64(tm.DocFreq)
			ts.TotalTermFreq += tm.TotalTermFreq
		}
	}
	cs.MaxDoc = int64(s.reader.MaxDoc())

	w := &termWeight{query: q, mode: mode}
	if mode.NeedsScores() {
		w.simScorer = s.similarity.Scorer(boost, cs, ts)
	} else {
		w.simScorer = s.similarity.ConstantScorer(0, cs.AvgFieldLength())
	}
	return w, nil
}

type termWeight struct {
	query     *TermQuery
	mode      ScoreMode
	simScorer *similarity.SimScorer
}

func (w *termWeight) Query() Query { return w.query }

func (w *termWeight) Scorer(ctx *index.LeafReaderContext) (Scorer, error) {
	tm, err := ctx.Reader.TermMeta(w.query.term)
	if err != nil {
		return nil, err
	}
	if tm == nil {
		return nil, nil
	}
	postings, err := ctx.Reader.Postings(w.query.term)
	if err != nil {
		return nil, err
	}
	norms, err := ctx.Reader.Norms(w.query.term.Field)
	if err != nil {
		return nil, err
	}
	return &TermScorer{
		postings: postings,
		impacts:  tm.Impacts(),
		norms:    norms,
		sim:      w.simScorer,
	}, nil
}

func (w *termWeight) BulkScorer(ctx *index.LeafReaderContext) (BulkScorer, error) {
	return nil, nil
}

// Count is O(1) for segments without deletions: the term's docFreq.
func (w *termWeight) Count(ctx *index.LeafReaderContext) (int, error) {
	if ctx.Reader.HasDeletions() {
		return -1, nil
	}
	tm, err := ctx.Reader.TermMeta(w.query.term)
	if err != nil {
		return -1, err
	}
	if tm == nil {
		return 0, nil
	}
	return tm.DocFreq, nil
}

// TermScorer scores one term's postings with BM25. It is impacts-aware:
// per-block (maxFreq, maxNorm) pairs bound the block's best possible score,
// and once the collector pushes a threshold the scorer skips whole blocks
// that cannot compete.
type TermScorer struct {
	postings index.PostingsEnum
	impacts  []index.BlockImpact
	norms    []byte
	sim      *similarity.SimScorer

	shallowIdx     int
	minCompetitive float32
}

func (ts *TermScorer) DocID() int  { return ts.postings.DocID() }
func (ts *TermScorer) Cost() int64 { return ts.postings.Cost() }

func (ts *TermScorer) Score() (float32, error) {
	freq, err := ts.postings.Freq()
	if err != nil {
		return 0, err
	}
	var norm byte
	if doc := ts.postings.DocID(); ts.norms != nil && doc < len(ts.norms) {
		norm = ts.norms[doc]
	}
	return ts.sim.Score(float32(freq), norm), nil
}

func (ts *TermScorer) NextDoc() (int, error) {
	doc, err := ts.postings.NextDoc()
	if err != nil {
		return 0, err
	}
	return ts.skipUncompetitive(doc)
}

func (ts *TermScorer) Advance(target int) (int, error) {
	doc, err := ts.postings.Advance(target)
	if err != nil {
		return 0, err
	}
	return ts.skipUncompetitive(doc)
}

// skipUncompetitive hops over blocks whose bound is below the threshold.
func (ts *TermScorer) skipUncompetitive(doc int) (int, error) {
	for ts.minCompetitive > 0 && doc != NoMoreDocs {
		idx := ts.blockIndexFor(doc)
		imp := ts.impacts[idx]
		if ts.sim.MaxScore(imp.MaxFreq, imp.MaxNorm) >= ts.minCompetitive {
			break
		}
		next, err := ts.postings.Advance(imp.UpTo + 1)
		if err != nil {
			return 0, err
		}
		doc = next
	}
	return doc, nil
}

// blockIndexFor moves the shallow cursor to the block covering target.
func (ts *TermScorer) blockIndexFor(target int) int {
	for ts.shallowIdx < len(ts.impacts)-1 && ts.impacts[ts.shallowIdx].UpTo < target {
		ts.shallowIdx++
	}
	return ts.shallowIdx
}

// AdvanceShallow positions impact metadata for target's block without
// touching the postings cursor.
func (ts *TermScorer) AdvanceShallow(target int) (int, error) {
	return ts.impacts[ts.blockIndexFor(target)].UpTo, nil
}

// MaxScore bounds the score for any doc in [DocID(), upTo].
func (ts *TermScorer) MaxScore(upTo int) (float32, error) {
	var max float32
	blockStart := 0
	if ts.shallowIdx > 0 {
		blockStart = ts.impacts[ts.shallowIdx-1].UpTo + 1
	}
	for i := ts.shallowIdx; i < len(ts.impacts); i++ {
		if blockStart > upTo {
			break
		}
		imp := ts.impacts[i]
		if s := ts.sim.MaxScore(imp.MaxFreq, imp.MaxNorm); s > max {
			max = s
		}
		blockStart = imp.UpTo + 1
	}
	return max, nil
}

// NextBlockBoundary returns the end of the block covering target.
func (ts *TermScorer) NextBlockBoundary(target int) (int, error) {
	for i := ts.shallowIdx; i < len(ts.impacts); i++ {
		if ts.impacts[i].UpTo >= target {
			return ts.impacts[i].UpTo, nil
		}
	}
	return NoMoreDocs, nil
}

// SetMinCompetitiveScore receives the collector threshold enabling block
// skipping.
func (ts *TermScorer) SetMinCompetitiveScore(score float32) {
	ts.minCompetitive = score
}

// ScoreBatch drains up to len(docs) postings below upTo, scoring them
// through the vectorized similarity kernel. The uniform-norm kernel engages
// when the field carries no norms. Returns the number of docs produced; the
// cursor ends on the first doc >= upTo or past the batch.
func (ts *TermScorer) ScoreBatch(upTo int, docs []int, scores []float32) (int, error) {
	var freqs [batchSize]int32
	var norms [batchSize]byte

	n := 0
	limit := len(docs)
	if limit > batchSize {
		limit = batchSize
	}

	doc := ts.postings.DocID()
	if doc < 0 {
		var err error
		if doc, err = ts.NextDoc(); err != nil {
			return 0, err
		}
	}
	for doc < upTo && doc != NoMoreDocs && n < limit {
		freq, err := ts.postings.Freq()
		if err != nil {
			return 0, err
		}
		docs[n] = doc
		freqs[n] = int32(freq)
		if ts.norms != nil && doc < len(ts.norms) {
			norms[n] = ts.norms[doc]
		}
		n++
		if doc, err = ts.NextDoc(); err != nil {
			return 0, err
		}
	}

	if n > 0 {
		if ts.norms == nil {
			ts.sim.ScoreBatchUniformNorm(freqs[:n], 0, scores[:n])
		} else {
			ts.sim.ScoreBatch(freqs[:n], norms[:n], scores[:n])
		}
	}
	return n, nil
}
