package search

// disiWrapper decorates one clause scorer inside a disjunction with the
// linked-list plumbing the heaps use.
type disiWrapper struct {
	scorer Scorer
	doc    int
	cost   int64

	// next links wrappers positioned on the same doc.
	next *disiWrapper

	// maxScore is the clause's bound for the current block window.
	maxScore float32
}

func newDisiWrapper(s Scorer) *disiWrapper {
	return &disiWrapper{scorer: s, doc: s.DocID(), cost: s.Cost()}
}

// disiHeap is a min-heap of wrappers ordered by current docID.
type disiHeap struct {
	heap []*disiWrapper
}

func (h *disiHeap) size() int { return len(h.heap) }

func (h *disiHeap) top() *disiWrapper {
	if len(h.heap) == 0 {
		return nil
	}
	return h.heap[0]
}

// top2 returns the second-smallest wrapper by doc, or nil.
func (h *disiHeap) top2() *disiWrapper {
	switch len(h.heap) {
	case 0, 1:
		return nil
	case 2:
		return h.heap[1]
	default:
		if h.heap[1].doc <= h.heap[2].doc {
			return h.heap[1]
		}
		return h.heap[2]
	}
}

func (h *disiHeap) push(w *disiWrapper) {
	h.heap = append(h.heap, w)
	i := len(h.heap) - 1
	for i > 0 {
		parent := (i - 1) / 2
		if h.heap[parent].doc <= h.heap[i].doc {
			break
		}
		h.heap[i], h.heap[parent] = h.heap[parent], h.heap[i]
		i = parent
	}
}

func (h *disiHeap) pop() *disiWrapper {
	top := h.heap[0]
	last := len(h.heap) - 1
	h.heap[0] = h.heap[last]
	h.heap = h.heap[:last]
	if last > 0 {
		h.siftDown(0)
	}
	return top
}

// updateTop restores order after the caller advanced the top wrapper.
func (h *disiHeap) updateTop() {
	h.siftDown(0)
}

func (h *disiHeap) siftDown(i int) {
	n := len(h.heap)
	for {
		child := 2*i + 1
		if child >= n {
			break
		}
		if child+1 < n && h.heap[child+1].doc < h.heap[child].doc {
			child++
		}
		if h.heap[i].doc <= h.heap[child].doc {
			break
		}
		h.heap[i], h.heap[child] = h.heap[child], h.heap[i]
		i = child
	}
}

// DisjunctionScorer unions its clauses: the current doc is the minimum
// docID across them, matching when at least minShouldMatch clauses share it.
// Score sums the clauses on the doc. Cost is the sum of clause costs.
type DisjunctionScorer struct {
	heap           *disiHeap
	minShouldMatch int
	doc            int
}

func newDisjunctionScorer(clauses []Scorer, minShouldMatch int) *DisjunctionScorer {
	h := &disiHeap{}
	for _, s := range clauses {
		h.push(newDisiWrapper(s))
	}
	if minShouldMatch < 1 {
		minShouldMatch = 1
	}
	return &DisjunctionScorer{heap: h, minShouldMatch: minShouldMatch, doc: -1}
}

func (d *DisjunctionScorer) DocID() int { return d.doc }

func (d *DisjunctionScorer) Cost() int64 {
	var sum int64
	for _, w := range d.heap.heap {
		sum += w.cost
	}
	return sum
}

func (d *DisjunctionScorer) NextDoc() (int, error) {
	return d.Advance(d.doc + 1)
}

func (d *DisjunctionScorer) Advance(target int) (int, error) {
	for {
		// Move every lagging clause to the target.
		for top := d.heap.top(); top.doc < target; top = d.heap.top() {
			doc, err := top.scorer.Advance(target)
			if err != nil {
				return 0, err
			}
			top.doc = doc
			d.heap.updateTop()
		}

		candidate := d.heap.top().doc
		if candidate == NoMoreDocs {
			d.doc = NoMoreDocs
			return d.doc, nil
		}
		if d.countOnDoc(candidate) >= d.minShouldMatch {
			d.doc = candidate
			return d.doc, nil
		}
		target = candidate + 1
	}
}

// countOnDoc counts clauses currently positioned on doc.
func (d *DisjunctionScorer) countOnDoc(doc int) int {
	count := 0
	for _, w := range d.heap.heap {
		if w.doc == doc {
			count++
		}
	}
	return count
}

func (d *DisjunctionScorer) Score() (float32, error) {
	var sum float32
	for _, w := range d.heap.heap {
		if w.doc == d.doc {
			v, err := w.scorer.Score()
			if err != nil {
				return 0, err
			}
			sum += v
		}
	}
	return sum, nil
}
