package search

import (
	"sort"
)

// ConjunctionScorer intersects its clauses: the cheapest clause leads and
// drives candidate docIDs; every sibling is advanced to the candidate, and a
// sibling landing past it yields the new candidate. Score is the sum of the
// scoring clauses at the matched doc; FILTER-style clauses participate in
// matching but contribute nothing.
type ConjunctionScorer struct {
	lead    Scorer
	others  []Scorer // sorted by ascending cost
	scoring []Scorer // subset of all clauses that contribute to the score
	doc     int
}

// newConjunctionScorer builds the intersection of required. scoring lists
// the clauses whose scores sum into the result (usually the MUST subset).
func newConjunctionScorer(required []Scorer, scoring []Scorer) *ConjunctionScorer {
	sorted := make([]Scorer, len(required))
	copy(sorted, required)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Cost() < sorted[j].Cost() })

	return &ConjunctionScorer{
		lead:    sorted[0],
		others:  sorted[1:],
		scoring: scoring,
		doc:     -1,
	}
}

func (c *ConjunctionScorer) DocID() int { return c.doc }

// Cost is the lead's cost: the intersection can't exceed its smallest
// clause.
func (c *ConjunctionScorer) Cost() int64 { return c.lead.Cost() }

func (c *ConjunctionScorer) NextDoc() (int, error) {
	doc, err := c.lead.NextDoc()
	if err != nil {
		return 0, err
	}
	return c.doNext(doc)
}

func (c *ConjunctionScorer) Advance(target int) (int, error) {
	doc, err := c.lead.Advance(target)
	if err != nil {
		return 0, err
	}
	return c.doNext(doc)
}

// doNext aligns every clause on the lead's candidate, re-leading whenever a
// sibling overshoots.
func (c *ConjunctionScorer) doNext(candidate int) (int, error) {
advanceHead:
	for candidate != NoMoreDocs {
		for _, s := range c.others {
			sDoc := s.DocID()
			if sDoc < candidate {
				var err error
				if sDoc, err = s.Advance(candidate); err != nil {
					return 0, err
				}
			}
			if sDoc > candidate {
				var err error
				if candidate, err = c.lead.Advance(sDoc); err != nil {
					return 0, err
				}
				continue advanceHead
			}
		}
		break
	}
	c.doc = candidate
	return candidate, nil
}

func (c *ConjunctionScorer) Score() (float32, error) {
	var sum float32
	for _, s := range c.scoring {
		v, err := s.Score()
		if err != nil {
			return 0, err
		}
		sum += v
	}
	return sum, nil
}
