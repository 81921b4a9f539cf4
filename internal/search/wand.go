package search

import (
	"github.com/iamNilotpal/diagon/pkg/errors"
)

// WANDScorer evaluates a disjunction doc-at-a-time with block-max early
// termination. Three structures track the clause scorers relative to the
// current candidate:
//
//   - head: min-heap by docID of scorers at or ahead of the candidate
//   - lead: linked list of scorers positioned on the candidate
//   - tail: max-heap by block max score of scorers left behind, whose
//     summed maxima stay below the competitive threshold
//
// A candidate is emitted when enough clauses sit on it and their summed
// scores reach the threshold; otherwise the tail scorer with the highest
// bound is advanced, or the candidate is abandoned when even the combined
// bounds cannot compete. Block maxima come from each clause's impact
// metadata via AdvanceShallow/MaxScore and are refreshed whenever the
// candidate crosses a block boundary.
type WANDScorer struct {
	wrappers []*disiWrapper

	head *disiHeap
	lead *disiWrapper
	tail []*disiWrapper

	doc            int
	leadScore      float32
	freq           int // number of lead scorers
	tailMaxScore   float32
	minShouldMatch int
	minCompetitive float32
	cost           int64
	upTo           int // bounds are valid up to this doc, inclusive
}

// NewWANDScorer wraps the clause scorers. minShouldMatch must be smaller
// than the clause count.
func NewWANDScorer(clauses []Scorer, minShouldMatch int) (*WANDScorer, error) {
	if minShouldMatch >= len(clauses) {
		return nil, errors.NewValidationError(nil, errors.ErrorCodeInvalidInput,
			"minShouldMatch must be smaller than the clause count").
			WithProvided(minShouldMatch)
	}
	if minShouldMatch < 1 {
		minShouldMatch = 1
	}

	w := &WANDScorer{
		head:           &disiHeap{},
		doc:            -1,
		minShouldMatch: minShouldMatch,
		upTo:           -1,
	}
	for _, s := range clauses {
		dw := newDisiWrapper(s)
		w.wrappers = append(w.wrappers, dw)
		w.cost += dw.cost
		w.head.push(dw)
	}
	return w, nil
}

func (w *WANDScorer) DocID() int  { return w.doc }
func (w *WANDScorer) Cost() int64 { return w.cost }

func (w *WANDScorer) Score() (float32, error) { return w.leadScore, nil }

// SetMinCompetitiveScore installs the collector threshold. Raising it keeps
// the tail invariant (summed tail maxima below the threshold) intact.
func (w *WANDScorer) SetMinCompetitiveScore(score float32) {
	w.minCompetitive = score
}

func (w *WANDScorer) NextDoc() (int, error) {
	return w.Advance(w.doc + 1)
}

func (w *WANDScorer) Advance(target int) (int, error) {
	if err := w.pushBackLeads(target); err != nil {
		return 0, err
	}

	for {
		if err := w.advanceHead(target); err != nil {
			return 0, err
		}

		top := w.head.top()
		if top == nil || top.doc == NoMoreDocs {
			// Everything live sits in the tail, whose combined bounds are
			// below the threshold: nothing competitive remains.
			w.doc = NoMoreDocs
			return w.doc, nil
		}

		if top.doc > w.upTo {
			if err := w.updateMaxScores(top.doc); err != nil {
				return 0, err
			}
			// Refresh may have pulled tail scorers ahead of top.
			continue
		}

		candidate := top.doc
		if err := w.moveToCandidate(candidate); err != nil {
			return 0, err
		}

		matched, err := w.tryMatch(candidate)
		if err != nil {
			return 0, err
		}
		if matched {
			w.doc = candidate
			return w.doc, nil
		}

		// Candidate cannot compete: move past it.
		target = candidate + 1
		if err := w.pushBackLeads(target); err != nil {
			return 0, err
		}
	}
}

// tryMatch advances tail scorers onto the candidate until it either matches
// or provably cannot.
func (w *WANDScorer) tryMatch(candidate int) (bool, error) {
	for {
		if w.freq >= w.minShouldMatch && w.leadScore >= w.minCompetitive {
			// Tail scorers may also contain the candidate; their
			// contributions belong in the emitted score.
			for len(w.tail) > 0 {
				if err := w.advanceTail(candidate); err != nil {
					return false, err
				}
			}
			return true, nil
		}
		// Even with every tail scorer landing on the candidate it cannot
		// reach the threshold or the coordination minimum.
		if w.leadScore+w.tailMaxScore < w.minCompetitive ||
			w.freq+len(w.tail) < w.minShouldMatch {
			return false, nil
		}
		if err := w.advanceTail(candidate); err != nil {
			return false, err
		}
	}
}

// pushBackLeads drains the lead list into the tail, advancing evicted
// wrappers to target and restoring them to the head.
func (w *WANDScorer) pushBackLeads(target int) error {
	for w.lead != nil {
		dw := w.lead
		w.lead = dw.next
		dw.next = nil
		w.freq--
		if evicted := w.insertTailWithOverflow(dw); evicted != nil {
			doc, err := evicted.scorer.Advance(target)
			if err != nil {
				return err
			}
			evicted.doc = doc
			w.head.push(evicted)
		}
	}
	w.leadScore = 0
	w.freq = 0
	return nil
}

// advanceHead brings every head scorer to at least target, spilling into the
// tail where the threshold allows.
func (w *WANDScorer) advanceHead(target int) error {
	for top := w.head.top(); top != nil && top.doc < target; top = w.head.top() {
		w.head.pop()
		if evicted := w.insertTailWithOverflow(top); evicted != nil {
			doc, err := evicted.scorer.Advance(target)
			if err != nil {
				return err
			}
			evicted.doc = doc
			w.head.push(evicted)
		}
	}
	return nil
}

// moveToCandidate pops every head scorer on the candidate into the lead.
func (w *WANDScorer) moveToCandidate(candidate int) error {
	for top := w.head.top(); top != nil && top.doc == candidate; top = w.head.top() {
		w.head.pop()
		if err := w.addLead(top); err != nil {
			return err
		}
	}
	return nil
}

func (w *WANDScorer) addLead(dw *disiWrapper) error {
	dw.next = w.lead
	w.lead = dw
	w.freq++
	s, err := dw.scorer.Score()
	if err != nil {
		return err
	}
	w.leadScore += s
	return nil
}

// advanceTail pops the tail scorer with the highest bound and advances it to
// the candidate; it joins the lead on a hit, the head otherwise.
func (w *WANDScorer) advanceTail(candidate int) error {
	dw := w.popTail()
	if dw == nil {
		return nil
	}
	doc, err := dw.scorer.Advance(candidate)
	if err != nil {
		return err
	}
	dw.doc = doc
	if doc == candidate {
		return w.addLead(dw)
	}
	w.head.push(dw)
	return nil
}

// updateMaxScores refreshes every clause's block-max at target: the shared
// upper bound is the nearest block boundary across clauses, each clause is
// shallow-positioned there, and the tail is re-screened against the
// threshold.
func (w *WANDScorer) updateMaxScores(target int) error {
	w.upTo = NoMoreDocs
	for _, dw := range w.wrappers {
		if dw.doc == NoMoreDocs {
			continue
		}
		from := target
		if dw.doc > from {
			from = dw.doc
		}
		boundary, err := nextBlockBoundaryOrMax(dw.scorer, from)
		if err != nil {
			return err
		}
		if boundary < w.upTo {
			w.upTo = boundary
		}
	}

	for _, dw := range w.wrappers {
		if dw.doc == NoMoreDocs {
			dw.maxScore = 0
			continue
		}
		from := target
		if dw.doc > from {
			from = dw.doc
		}
		if err := advanceShallowOrNop(dw.scorer, from); err != nil {
			return err
		}
		ms, err := maxScoreOrInf(dw.scorer, w.upTo)
		if err != nil {
			return err
		}
		dw.maxScore = ms
	}

	// Rebuild the tail under the refreshed bounds.
	old := make([]*disiWrapper, len(w.tail))
	copy(old, w.tail)
	w.tail = w.tail[:0]
	w.tailMaxScore = 0
	for _, dw := range old {
		if evicted := w.insertTailWithOverflow(dw); evicted != nil {
			doc, err := evicted.scorer.Advance(target)
			if err != nil {
				return err
			}
			evicted.doc = doc
			w.head.push(evicted)
		}
	}
	return nil
}

// insertTailWithOverflow admits a wrapper to the tail only while the summed
// tail bounds stay below the threshold; otherwise the weakest candidate for
// eviction comes back to the caller to be advanced.
func (w *WANDScorer) insertTailWithOverflow(dw *disiWrapper) *disiWrapper {
	if w.tailMaxScore+dw.maxScore < w.minCompetitive && len(w.tail) < len(w.wrappers)-1 {
		w.pushTail(dw)
		return nil
	}
	top := w.tailTop()
	if top != nil && top.maxScore > dw.maxScore &&
		w.tailMaxScore-top.maxScore+dw.maxScore < w.minCompetitive {
		evicted := w.popTail()
		w.pushTail(dw)
		return evicted
	}
	return dw
}

// Tail max-heap by maxScore.

func (w *WANDScorer) tailTop() *disiWrapper {
	if len(w.tail) == 0 {
		return nil
	}
	return w.tail[0]
}

func (w *WANDScorer) pushTail(dw *disiWrapper) {
	w.tail = append(w.tail, dw)
	w.tailMaxScore += dw.maxScore
	i := len(w.tail) - 1
	for i > 0 {
		parent := (i - 1) / 2
		if w.tail[parent].maxScore >= w.tail[i].maxScore {
			break
		}
		w.tail[i], w.tail[parent] = w.tail[parent], w.tail[i]
		i = parent
	}
}

func (w *WANDScorer) popTail() *disiWrapper {
	if len(w.tail) == 0 {
		return nil
	}
	top := w.tail[0]
	last := len(w.tail) - 1
	w.tail[0] = w.tail[last]
	w.tail = w.tail[:last]
	w.tailMaxScore -= top.maxScore
	if last > 0 {
		i := 0
		for {
			child := 2*i + 1
			if child >= last {
				break
			}
			if child+1 < last && w.tail[child+1].maxScore > w.tail[child].maxScore {
				child++
			}
			if w.tail[i].maxScore >= w.tail[child].maxScore {
				break
			}
			w.tail[i], w.tail[child] = w.tail[child], w.tail[i]
			i = child
		}
	}
	return top
}
