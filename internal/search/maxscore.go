package search

import (
	"sort"

	"github.com/iamNilotpal/diagon/internal/util"
)

// innerWindowSize is the fixed inner window: matches accumulate into a
// bitset of this many bits and a parallel float array.
const innerWindowSize = 1 << 12 // 4096

// minCandidatesPerClause drives the adaptive outer-window sizing: when
// windows yield fewer candidates per clause than this on average, the
// minimum window size doubles.
const minCandidatesPerClause = 32

// MaxScoreBulkScorer evaluates a pure scoring disjunction window-at-a-time.
// The segment's doc space is cut into outer windows bounded by the nearest
// impact block boundary across clauses, and into fixed inner windows within.
// Per outer window the clauses are partitioned by ascending
// max-score/cost ratio into non-essential clauses — the largest prefix whose
// summed maxima stay below the threshold — and essential ones. Essential
// clauses drive candidate generation; non-essential ones only top up the
// scores of surviving candidates, with non-competitive candidates dropped
// before each is applied.
type MaxScoreBulkScorer struct {
	maxDoc int
	cost   int64

	// allScorers is partitioned [non-essential | essential); the
	// non-essential prefix is sorted by ascending maxWindowScore/cost.
	allScorers     []*disiWrapper
	firstEssential int
	maxScoreSums   []float64 // prefix sums over the non-essential ordering
	essential      *disiHeap

	windowMatches *util.FixedBitSet
	windowScores  [innerWindowSize]float32

	bufDocs   []int
	bufScores []float32
	bufLen    int

	batchDocs   [batchSize]int
	batchScores [batchSize]float32

	scorable           *bulkScorable
	minCompetitive     float32
	nextMinCompetitive float32

	// Adaptive outer-window sizing.
	numCandidates   int64
	numOuterWindows int
	minWindowSize   int
}

// NewMaxScoreBulkScorer wraps at least two scoring clauses.
func NewMaxScoreBulkScorer(maxDoc int, clauses []Scorer) (*MaxScoreBulkScorer, error) {
	m := &MaxScoreBulkScorer{
		maxDoc:        maxDoc,
		essential:     &disiHeap{},
		windowMatches: util.NewFixedBitSet(innerWindowSize),
		minWindowSize: 1,
	}
	for _, s := range clauses {
		dw := newDisiWrapper(s)
		m.allScorers = append(m.allScorers, dw)
		m.cost += dw.cost
	}
	m.maxScoreSums = make([]float64, len(m.allScorers))
	m.scorable = &bulkScorable{parent: m, doc: -1}
	return m, nil
}

func (m *MaxScoreBulkScorer) Cost() int64 { return m.cost }

// Score evaluates [min, max) and pushes every surviving match into the
// collector.
func (m *MaxScoreBulkScorer) Score(collector LeafCollector, liveDocs util.Bits, min, max int) (int, error) {
	if err := collector.SetScorer(m.scorable); err != nil {
		return 0, err
	}
	if max > m.maxDoc {
		max = m.maxDoc
	}

	windowMin := min
	for windowMin < max {
		windowMax, err := m.computeOuterWindowMax(windowMin, max)
		if err != nil {
			return 0, err
		}

		if err := m.updateMaxWindowScores(windowMin, windowMax); err != nil {
			return 0, err
		}
		if !m.partitionScorers() {
			// No clause is essential: nothing in this window can reach the
			// threshold.
			windowMin = windowMax
			m.numOuterWindows++
			m.adaptWindowSize()
			continue
		}

		for innerMin := windowMin; innerMin < windowMax; {
			innerMax := innerMin + innerWindowSize
			if innerMax > windowMax {
				innerMax = windowMax
			}
			processed, err := m.scoreInnerWindow(collector, liveDocs, innerMin, innerMax)
			if err != nil {
				return 0, err
			}
			innerMin = processed

			// The collector may have raised the threshold past the point
			// where the current partition is valid.
			if m.minCompetitive >= m.nextMinCompetitive && innerMin < windowMax {
				if !m.partitionScorers() {
					break
				}
			}
		}

		windowMin = windowMax
		m.numOuterWindows++
		m.adaptWindowSize()
	}

	for _, dw := range m.allScorers {
		if dw.doc != NoMoreDocs {
			return max, nil
		}
	}
	return NoMoreDocs, nil
}

// computeOuterWindowMax bounds the window at the nearest impact block
// boundary across clauses, stretched to the adaptive minimum size.
func (m *MaxScoreBulkScorer) computeOuterWindowMax(windowMin, max int) (int, error) {
	windowMax := NoMoreDocs
	for _, dw := range m.allScorers {
		if dw.doc == NoMoreDocs {
			continue
		}
		from := windowMin
		if dw.doc > from {
			from = dw.doc
		}
		boundary, err := nextBlockBoundaryOrMax(dw.scorer, from)
		if err != nil {
			return 0, err
		}
		if boundary != NoMoreDocs && boundary+1 < windowMax {
			windowMax = boundary + 1
		}
	}

	if minSized := windowMin + m.minWindowSize; windowMax < minSized {
		windowMax = minSized
	}
	if windowMax > max {
		windowMax = max
	}
	return windowMax, nil
}

// updateMaxWindowScores refreshes per-clause maxima for [windowMin,
// windowMax).
func (m *MaxScoreBulkScorer) updateMaxWindowScores(windowMin, windowMax int) error {
	for _, dw := range m.allScorers {
		switch {
		case dw.doc >= windowMax || dw.doc == NoMoreDocs:
			dw.maxScore = 0
		default:
			from := windowMin
			if dw.doc > from {
				from = dw.doc
			}
			if err := advanceShallowOrNop(dw.scorer, from); err != nil {
				return err
			}
			ms, err := maxScoreOrInf(dw.scorer, windowMax-1)
			if err != nil {
				return err
			}
			dw.maxScore = ms
		}
	}
	return nil
}

// partitionScorers splits the clauses around the threshold. Returns false
// when no clause is essential — the window yields nothing.
func (m *MaxScoreBulkScorer) partitionScorers() bool {
	// Threshold still zero: skip sorting entirely, every clause is
	// essential.
	if m.minCompetitive == 0 {
		m.firstEssential = 0
		m.nextMinCompetitive = 0
		m.rebuildEssentialHeap()
		return true
	}

	sort.SliceStable(m.allScorers, func(i, j int) bool {
		a, b := m.allScorers[i], m.allScorers[j]
		ca, cb := a.cost, b.cost
		if ca < 1 {
			ca = 1
		}
		if cb < 1 {
			cb = 1
		}
		return float64(a.maxScore)/float64(ca) < float64(b.maxScore)/float64(cb)
	})

	var sum float64
	m.firstEssential = len(m.allScorers)
	m.nextMinCompetitive = float32(NoMoreDocs)
	for i, dw := range m.allScorers {
		sum += float64(dw.maxScore)
		m.maxScoreSums[i] = sum
		if sum >= float64(m.minCompetitive) && i < m.firstEssential {
			m.firstEssential = i
			m.nextMinCompetitive = float32(sum)
		}
	}

	if m.firstEssential == len(m.allScorers) {
		return false
	}
	m.rebuildEssentialHeap()
	return true
}

func (m *MaxScoreBulkScorer) rebuildEssentialHeap() {
	m.essential.heap = m.essential.heap[:0]
	for _, dw := range m.allScorers[m.firstEssential:] {
		m.essential.push(dw)
	}
}

// scoreInnerWindow dispatches to the cheapest path for the window's
// essential clause layout and returns the doc bound it actually processed.
func (m *MaxScoreBulkScorer) scoreInnerWindow(collector LeafCollector, liveDocs util.Bits, min, max int) (int, error) {
	top := m.essential.top()
	top2 := m.essential.top2()

	switch {
	case top2 == nil:
		return max, m.scoreSingleEssential(collector, liveDocs, min, max)
	case top2.doc >= min+(max-min)/2 && top2.doc > top.doc:
		// The second essential clause sits at least half a window ahead:
		// cap at the gap and run the single-essential path. The remainder
		// of the window is picked up by the next iteration.
		capped := top2.doc
		if capped > max {
			capped = max
		}
		return capped, m.scoreSingleEssential(collector, liveDocs, min, capped)
	default:
		return max, m.scoreMultipleEssentials(collector, liveDocs, min, max)
	}
}

// scoreSingleEssential iterates the sole live essential clause directly — no
// bitset needed.
func (m *MaxScoreBulkScorer) scoreSingleEssential(collector LeafCollector, liveDocs util.Bits, min, max int) error {
	top := m.essential.top()
	m.bufLen = 0

	doc := top.doc
	if doc < min {
		var err error
		if doc, err = top.scorer.Advance(min); err != nil {
			return err
		}
	}

	if batch, ok := top.scorer.(BatchScorer); ok {
		for doc < max && doc != NoMoreDocs {
			n, err := batch.ScoreBatch(max, m.batchDocs[:], m.batchScores[:])
			if err != nil {
				return err
			}
			if n == 0 {
				break
			}
			for i := 0; i < n; i++ {
				m.bufferAdd(m.batchDocs[i], m.batchScores[i])
			}
			doc = top.scorer.DocID()
		}
	} else {
		for doc < max && doc != NoMoreDocs {
			score, err := top.scorer.Score()
			if err != nil {
				return err
			}
			m.bufferAdd(doc, score)
			if doc, err = top.scorer.NextDoc(); err != nil {
				return err
			}
		}
	}

	top.doc = top.scorer.DocID()
	m.essential.updateTop()
	return m.scoreNonEssentialClauses(collector, liveDocs)
}

// scoreMultipleEssentials accumulates every essential clause's matches into
// the window bitset and score array, then walks the set bits in order.
func (m *MaxScoreBulkScorer) scoreMultipleEssentials(collector LeafCollector, liveDocs util.Bits, min, max int) error {
	windowLen := max - min
	m.windowMatches.ClearRange(windowLen)

	for top := m.essential.top(); top != nil && top.doc < max; top = m.essential.top() {
		doc := top.doc
		if doc < min {
			var err error
			if doc, err = top.scorer.Advance(min); err != nil {
				return err
			}
		}

		if batch, ok := top.scorer.(BatchScorer); ok {
			for doc < max && doc != NoMoreDocs {
				n, err := batch.ScoreBatch(max, m.batchDocs[:], m.batchScores[:])
				if err != nil {
					return err
				}
				if n == 0 {
					break
				}
				for i := 0; i < n; i++ {
					rel := m.batchDocs[i] - min
					m.windowMatches.Set(rel)
					m.windowScores[rel] += m.batchScores[i]
				}
				doc = top.scorer.DocID()
			}
		} else {
			for doc < max && doc != NoMoreDocs {
				score, err := top.scorer.Score()
				if err != nil {
					return err
				}
				rel := doc - min
				m.windowMatches.Set(rel)
				m.windowScores[rel] += score
				if doc, err = top.scorer.NextDoc(); err != nil {
					return err
				}
			}
		}

		top.doc = top.scorer.DocID()
		m.essential.updateTop()
	}

	m.bufLen = 0
	for rel := m.windowMatches.NextSetBit(0, windowLen); rel < windowLen; rel = m.windowMatches.NextSetBit(rel+1, windowLen) {
		m.bufferAdd(min+rel, m.windowScores[rel])
		m.windowScores[rel] = 0
	}
	return m.scoreNonEssentialClauses(collector, liveDocs)
}

func (m *MaxScoreBulkScorer) bufferAdd(doc int, score float32) {
	if m.bufLen < len(m.bufDocs) {
		m.bufDocs[m.bufLen] = doc
		m.bufScores[m.bufLen] = score
	} else {
		m.bufDocs = append(m.bufDocs, doc)
		m.bufScores = append(m.bufScores, score)
	}
	m.bufLen++
}

// scoreNonEssentialClauses walks the non-essential clauses from the highest
// max-score/cost ratio down, dropping candidates that can no longer compete before each
// clause is applied, then emits the survivors.
func (m *MaxScoreBulkScorer) scoreNonEssentialClauses(collector LeafCollector, liveDocs util.Bits) error {
	m.numCandidates += int64(m.bufLen)

	for i := m.firstEssential - 1; i >= 0 && m.bufLen > 0; i-- {
		m.filterCompetitiveHits(float32(m.maxScoreSums[i]))
		if m.bufLen == 0 {
			break
		}
		if err := m.applyOptionalClause(m.allScorers[i]); err != nil {
			return err
		}
	}

	for i := 0; i < m.bufLen; i++ {
		doc := m.bufDocs[i]
		if liveDocs != nil && !liveDocs.Get(doc) {
			continue
		}
		m.scorable.doc = doc
		m.scorable.score = m.bufScores[i]
		if err := collector.Collect(doc); err != nil {
			return err
		}
	}
	m.bufLen = 0
	return nil
}

// filterCompetitiveHits compacts the buffer down to candidates whose partial
// score plus the remaining non-essential bound can still reach the
// threshold.
func (m *MaxScoreBulkScorer) filterCompetitiveHits(maxRemaining float32) {
	kept := 0
	for i := 0; i < m.bufLen; i++ {
		if m.bufScores[i]+maxRemaining >= m.minCompetitive {
			m.bufDocs[kept] = m.bufDocs[i]
			m.bufScores[kept] = m.bufScores[i]
			kept++
		}
	}
	m.bufLen = kept
}

// applyOptionalClause folds one non-essential clause's contributions into
// the buffered candidates.
func (m *MaxScoreBulkScorer) applyOptionalClause(dw *disiWrapper) error {
	for i := 0; i < m.bufLen; i++ {
		doc := m.bufDocs[i]
		if dw.doc < doc {
			next, err := dw.scorer.Advance(doc)
			if err != nil {
				return err
			}
			dw.doc = next
		}
		if dw.doc == doc {
			score, err := dw.scorer.Score()
			if err != nil {
				return err
			}
			m.bufScores[i] += score
		}
	}
	return nil
}

// adaptWindowSize doubles the minimum outer-window size while windows stay
// sparse, resetting once they carry enough candidates to amortize the
// per-window bookkeeping.
func (m *MaxScoreBulkScorer) adaptWindowSize() {
	if m.numCandidates < int64(minCandidatesPerClause*m.numOuterWindows)*int64(len(m.allScorers)) {
		if m.minWindowSize < innerWindowSize {
			m.minWindowSize *= 2
			if m.minWindowSize > innerWindowSize {
				m.minWindowSize = innerWindowSize
			}
		}
	} else {
		m.minWindowSize = 1
	}
}

// bulkScorable is the scorer view handed to the collector: it reports the
// precomputed score of the doc being collected and receives threshold
// updates for the bulk scorer.
type bulkScorable struct {
	parent *MaxScoreBulkScorer
	doc    int
	score  float32
}

func (b *bulkScorable) DocID() int              { return b.doc }
func (b *bulkScorable) Score() (float32, error) { return b.score, nil }

func (b *bulkScorable) SetMinCompetitiveScore(score float32) {
	b.parent.minCompetitive = score
}
