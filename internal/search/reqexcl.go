package search

// ReqExclScorer filters a required scorer by an exclusion iterator: a
// candidate is emitted only when the exclusion is not positioned on the same
// doc. Score and cost come from the required side alone.
type ReqExclScorer struct {
	required Scorer
	excluded DocIdSetIterator
	doc      int
}

func newReqExclScorer(required Scorer, excluded DocIdSetIterator) *ReqExclScorer {
	return &ReqExclScorer{required: required, excluded: excluded, doc: -1}
}

func (r *ReqExclScorer) DocID() int  { return r.doc }
func (r *ReqExclScorer) Cost() int64 { return r.required.Cost() }

func (r *ReqExclScorer) NextDoc() (int, error) {
	doc, err := r.required.NextDoc()
	if err != nil {
		return 0, err
	}
	return r.toNonExcluded(doc)
}

func (r *ReqExclScorer) Advance(target int) (int, error) {
	doc, err := r.required.Advance(target)
	if err != nil {
		return 0, err
	}
	return r.toNonExcluded(doc)
}

func (r *ReqExclScorer) toNonExcluded(doc int) (int, error) {
	for doc != NoMoreDocs {
		exDoc := r.excluded.DocID()
		if exDoc < doc {
			var err error
			if exDoc, err = r.excluded.Advance(doc); err != nil {
				return 0, err
			}
		}
		if exDoc != doc {
			break
		}
		var err error
		if doc, err = r.required.NextDoc(); err != nil {
			return 0, err
		}
	}
	r.doc = doc
	return doc, nil
}

func (r *ReqExclScorer) Score() (float32, error) { return r.required.Score() }
