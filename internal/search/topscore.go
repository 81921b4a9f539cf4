package search

import (
	"math"

	"github.com/iamNilotpal/diagon/internal/index"
	"github.com/iamNilotpal/diagon/pkg/errors"
)

// TopScoreDocCollector keeps the k best-scoring documents in a
// fixed-capacity heap whose root is the worst competitive hit. Once the heap
// fills, the root score becomes the minimum competitive score and is pushed
// into the scorer — the only channel by which WAND/MaxScore learn the
// threshold. Pushing a threshold makes the reported total-hit count a lower
// bound.
type TopScoreDocCollector struct {
	numHits int
	after   *ScoreDoc // pagination cursor; nil for a first page

	totalHits int64
	relation  TotalHitsRelation
	pq        *scoreDocHeap
}

// NewTopScoreDocCollector creates a collector for the k best hits.
func NewTopScoreDocCollector(numHits int) (*TopScoreDocCollector, error) {
	return NewTopScoreDocCollectorAfter(numHits, nil)
}

// NewTopScoreDocCollectorAfter creates a collector that skips every hit that
// does not strictly follow after in (score desc, docID asc) order. Total
// hits still counts all scored docs.
func NewTopScoreDocCollectorAfter(numHits int, after *ScoreDoc) (*TopScoreDocCollector, error) {
	if numHits <= 0 {
		return nil, errors.NewValidationError(nil, errors.ErrorCodeInvalidInput,
			"numHits must be positive").WithField("numHits").WithProvided(numHits)
	}
	return &TopScoreDocCollector{
		numHits:  numHits,
		after:    after,
		relation: TotalHitsEqualTo,
		pq:       newScoreDocHeap(numHits),
	}, nil
}

func (c *TopScoreDocCollector) ScoreMode() ScoreMode { return ScoreModeTopScores }

func (c *TopScoreDocCollector) LeafCollector(ctx *index.LeafReaderContext) (LeafCollector, error) {
	return &topScoreLeafCollector{parent: c, docBase: ctx.DocBase}, nil
}

// TopDocs assembles the final result. The collector is exhausted afterwards.
func (c *TopScoreDocCollector) TopDocs() *TopDocs {
	return newTopDocs(TotalHits{Value: c.totalHits, Relation: c.relation}, c.pq.drain())
}

type topScoreLeafCollector struct {
	parent  *TopScoreDocCollector
	docBase int
	scorer  Scorable

	// threshold-aware view of the scorer, nil when it cannot skip
	competitive MinCompetitiveAware
}

func (lc *topScoreLeafCollector) SetScorer(s Scorable) error {
	lc.scorer = s
	lc.competitive, _ = s.(MinCompetitiveAware)

	// A heap filled by earlier segments keeps constraining this one.
	if lc.competitive != nil && lc.parent.pq.size() == lc.parent.numHits {
		lc.competitive.SetMinCompetitiveScore(lc.parent.pq.top().Score)
		lc.parent.relation = TotalHitsGreaterThanOrEqualTo
	}
	return nil
}

func (lc *topScoreLeafCollector) Collect(doc int) error {
	score, err := lc.scorer.Score()
	if err != nil {
		return err
	}
	// NaN and infinities never enter the heap.
	if math.IsNaN(float64(score)) || math.IsInf(float64(score), 0) {
		return nil
	}

	c := lc.parent
	c.totalHits++

	hit := ScoreDoc{Doc: lc.docBase + doc, Score: score}

	if c.after != nil {
		// Strict (score desc, docID asc) order: only hits after the cursor
		// qualify.
		if !c.after.Less(hit) {
			return nil
		}
	}

	if c.pq.size() < c.numHits {
		c.pq.push(hit)
		if c.pq.size() == c.numHits {
			lc.pushThreshold()
		}
		return nil
	}

	if worseThan(c.pq.top(), hit) {
		c.pq.replaceTop(hit)
		lc.pushThreshold()
	}
	return nil
}

// pushThreshold feeds the new worst competitive score back into the scorer.
func (lc *topScoreLeafCollector) pushThreshold() {
	if lc.competitive == nil {
		return
	}
	lc.competitive.SetMinCompetitiveScore(lc.parent.pq.top().Score)
	lc.parent.relation = TotalHitsGreaterThanOrEqualTo
}

func (lc *topScoreLeafCollector) Finish() error { return nil }
