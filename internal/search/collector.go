package search

import (
	"github.com/iamNilotpal/diagon/internal/index"
	"github.com/iamNilotpal/diagon/internal/util"
)

// Scorable exposes the current doc's score to a collector. The scorer set on
// a leaf collector is also the channel for threshold feedback when it
// implements MinCompetitiveAware.
type Scorable interface {
	DocID() int
	Score() (float32, error)
}

// LeafCollector receives the matches of one segment in strictly increasing
// docID order.
type LeafCollector interface {
	// SetScorer is called before collection starts with the scorer that
	// will position on each collected doc.
	SetScorer(s Scorable) error

	// Collect is called once per matching document, with the segment-local
	// docID.
	Collect(doc int) error

	// Finish is called after the segment's last match, so collectors can
	// flush buffered state.
	Finish() error
}

// Collector spans a full query: it hands out one LeafCollector per segment
// and declares its scoring needs.
type Collector interface {
	// LeafCollector returns the collector for one leaf, or nil to skip the
	// segment entirely (e.g. when a count fast path already handled it).
	LeafCollector(ctx *index.LeafReaderContext) (LeafCollector, error)

	// ScoreMode declares the features required from scorers.
	ScoreMode() ScoreMode
}

// WeightAware collectors receive the compiled weight before iteration; the
// count-only collector uses it for the O(1) per-segment count path.
type WeightAware interface {
	SetWeight(w Weight)
}

// BulkScorer owns the iteration over one segment and pushes matches into the
// collector in windows. Returns an approximation of the next doc after max,
// or NoMoreDocs when the segment is exhausted.
type BulkScorer interface {
	Score(collector LeafCollector, liveDocs util.Bits, min, max int) (int, error)
	Cost() int64
}

// TotalHitCountCollector counts matches without scoring. Segments whose
// weight reports an O(1) count are skipped entirely.
type TotalHitCountCollector struct {
	weight Weight
	total  int
}

func NewTotalHitCountCollector() *TotalHitCountCollector {
	return &TotalHitCountCollector{}
}

// SetWeight wires the weight for the count fast path.
func (c *TotalHitCountCollector) SetWeight(w Weight) { c.weight = w }

// Total returns the accumulated count.
func (c *TotalHitCountCollector) Total() int { return c.total }

func (c *TotalHitCountCollector) ScoreMode() ScoreMode { return ScoreModeCompleteNoScores }

func (c *TotalHitCountCollector) LeafCollector(ctx *index.LeafReaderContext) (LeafCollector, error) {
	if c.weight != nil {
		count, err := c.weight.Count(ctx)
		if err != nil {
			return nil, err
		}
		if count >= 0 {
			c.total += count
			return nil, nil
		}
	}
	return &countingLeafCollector{parent: c}, nil
}

type countingLeafCollector struct {
	parent *TotalHitCountCollector
}

func (lc *countingLeafCollector) SetScorer(s Scorable) error { return nil }
func (lc *countingLeafCollector) Collect(doc int) error {
	lc.parent.total++
	return nil
}
func (lc *countingLeafCollector) Finish() error { return nil }
