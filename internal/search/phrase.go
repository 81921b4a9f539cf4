package search

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/iamNilotpal/diagon/internal/index"
	"github.com/iamNilotpal/diagon/internal/similarity"
	"github.com/iamNilotpal/diagon/pkg/errors"
)

// PhraseQuery matches documents where the terms appear at their declared
// relative positions, within a slop. A single-term phrase rewrites to a
// TermQuery.
type PhraseQuery struct {
	field     string
	terms     []index.Term
	positions []int
	slop      int
}

// PhraseQueryBuilder accumulates terms with explicit or consecutive
// positions.
type PhraseQueryBuilder struct {
	field     string
	terms     []index.Term
	positions []int
	slop      int
}

func NewPhraseQueryBuilder(field string) *PhraseQueryBuilder {
	return &PhraseQueryBuilder{field: field}
}

// Add appends a term at the next consecutive position.
func (b *PhraseQueryBuilder) Add(text string) *PhraseQueryBuilder {
	pos := 0
	if len(b.positions) > 0 {
		pos = b.positions[len(b.positions)-1] + 1
	}
	return b.AddAt(text, pos)
}

// AddAt appends a term at an explicit position.
func (b *PhraseQueryBuilder) AddAt(text string, position int) *PhraseQueryBuilder {
	b.terms = append(b.terms, index.NewTerm(b.field, text))
	b.positions = append(b.positions, position)
	return b
}

// SetSlop sets the allowed positional play.
func (b *PhraseQueryBuilder) SetSlop(slop int) *PhraseQueryBuilder {
	b.slop = slop
	return b
}

func (b *PhraseQueryBuilder) Build() (*PhraseQuery, error) {
	if len(b.terms) == 0 {
		return nil, errors.NewValidationError(nil, errors.ErrorCodeInvalidInput,
			"Phrase query requires at least one term").WithField("terms")
	}
	if b.slop < 0 {
		return nil, errors.NewValidationError(nil, errors.ErrorCodeInvalidInput,
			"Negative slop").WithProvided(b.slop)
	}
	terms := make([]index.Term, len(b.terms))
	copy(terms, b.terms)
	positions := make([]int, len(b.positions))
	copy(positions, b.positions)
	return &PhraseQuery{field: b.field, terms: terms, positions: positions, slop: b.slop}, nil
}

// Terms returns the phrase terms in declaration order.
func (q *PhraseQuery) Terms() []index.Term { return q.terms }

// Slop returns the allowed positional play.
func (q *PhraseQuery) Slop() int { return q.slop }

// Rewrite collapses single-term phrases to a TermQuery.
func (q *PhraseQuery) Rewrite(reader *index.IndexReader) (Query, error) {
	if len(q.terms) == 1 {
		return NewTermQuery(q.terms[0]), nil
	}
	return q, nil
}

func (q *PhraseQuery) String(defaultField string) string {
	var sb strings.Builder
	if q.field != defaultField {
		sb.WriteString(q.field)
		sb.WriteByte(':')
	}
	sb.WriteByte('"')
	for i, t := range q.terms {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(t.Text)
	}
	sb.WriteByte('"')
	if q.slop > 0 {
		sb.WriteString("~" + strconv.Itoa(q.slop))
	}
	return sb.String()
}

func (q *PhraseQuery) Clone() Query {
	clone := *q
	return &clone
}

func (q *PhraseQuery) Equal(other Query) bool {
	o, ok := other.(*PhraseQuery)
	if !ok || o.field != q.field || o.slop != q.slop || len(o.terms) != len(q.terms) {
		return false
	}
	for i := range q.terms {
		if o.terms[i] != q.terms[i] || o.positions[i] != q.positions[i] {
			return false
		}
	}
	return true
}

func (q *PhraseQuery) Hash() uint64 {
	h := xxhash.Sum64String("phrase:" + q.field + ":" + strconv.Itoa(q.slop))
	for i, t := range q.terms {
		h = h*31 + t.Hash() + uint64(q.positions[i])
	}
	return h
}

func (q *PhraseQuery) CreateWeight(s *IndexSearcher, mode ScoreMode, boost float32) (Weight, error) {
	// Phrase IDF is the sum of the member terms' IDFs, matching how the
	// similarity treats a phrase as one synthetic term.
	var cs similarity.CollectionStats
	cs.Field = q.field
	for _, leaf := range s.reader.Leaves() {
		fs, err := leaf.Reader.FieldStats(q.field)
		if err != nil {
			return nil, err
		}
		if fs != nil {
			cs.DocCount += int64(fs.DocCount)
			cs.SumTotalTermFreq += int64(fs.SumTotalTermFreq)
		}
	}
	cs.MaxDoc = int64(s.reader.MaxDoc())

	var idfSum float32
	for _, t := range q.terms {
		var df int64
		for _, leaf := range s.reader.Leaves() {
			tm, err := leaf.Reader.TermMeta(t)
			if err != nil {
				return nil, err
			}
			if tm != nil {
				df += int64(tm.DocFreq)
			}
		}
		if df > 0 {
			idfSum += s.similarity.IDF(df, cs.DocCount)
		}
	}

	weight := boost * idfSum
	if !mode.NeedsScores() {
		weight = 0
	}
	return &phraseWeight{
		query:     q,
		simScorer: s.similarity.ConstantScorer(weight, cs.AvgFieldLength()),
	}, nil
}

type phraseWeight struct {
	query     *PhraseQuery
	simScorer *similarity.SimScorer
}

func (w *phraseWeight) Query() Query { return w.query }

func (w *phraseWeight) Scorer(ctx *index.LeafReaderContext) (Scorer, error) {
	subs := make([]*phrasePosting, len(w.query.terms))
	for i, t := range w.query.terms {
		pe, err := ctx.Reader.PostingsWithPositions(t)
		if err != nil {
			return nil, err
		}
		if pe == nil {
			// A missing term, or a field indexed without positions: the
			// phrase cannot match in this segment.
			return nil, nil
		}
		subs[i] = &phrasePosting{enum: pe, offset: w.query.positions[i], doc: -1}
	}

	norms, err := ctx.Reader.Norms(w.query.field)
	if err != nil {
		return nil, err
	}

	// The rarest term leads the intersection.
	sort.SliceStable(subs, func(i, j int) bool { return subs[i].enum.Cost() < subs[j].enum.Cost() })

	return &PhraseScorer{
		subs:  subs,
		slop:  w.query.slop,
		sim:   w.simScorer,
		norms: norms,
		doc:   -1,
	}, nil
}

func (w *phraseWeight) BulkScorer(ctx *index.LeafReaderContext) (BulkScorer, error) {
	return nil, nil
}

func (w *phraseWeight) Count(ctx *index.LeafReaderContext) (int, error) { return -1, nil }

type phrasePosting struct {
	enum   index.PositionsEnum
	offset int
	doc    int

	// positions of the current doc, shifted by -offset
	shifted []int
}

// PhraseScorer intersects the member terms' postings and verifies positions:
// a doc matches when the terms admit an alignment whose positional spread
// stays within the slop. The phrase frequency (number of alignments for
// exact phrases, 1 for sloppy ones) feeds BM25 like a term frequency.
type PhraseScorer struct {
	subs  []*phrasePosting
	slop  int
	sim   *similarity.SimScorer
	norms []byte

	doc  int
	freq int
}

func (ps *PhraseScorer) DocID() int  { return ps.doc }
func (ps *PhraseScorer) Cost() int64 { return ps.subs[0].enum.Cost() }

func (ps *PhraseScorer) Score() (float32, error) {
	var norm byte
	if ps.norms != nil && ps.doc < len(ps.norms) {
		norm = ps.norms[ps.doc]
	}
	return ps.sim.Score(float32(ps.freq), norm), nil
}

func (ps *PhraseScorer) NextDoc() (int, error) {
	return ps.Advance(ps.doc + 1)
}

func (ps *PhraseScorer) Advance(target int) (int, error) {
	lead := ps.subs[0]
	doc, err := lead.enum.Advance(target)
	if err != nil {
		return 0, err
	}
	lead.doc = doc

	for {
		aligned, err := ps.alignOn(lead.doc)
		if err != nil {
			return 0, err
		}
		if aligned == NoMoreDocs {
			ps.doc = NoMoreDocs
			return ps.doc, nil
		}
		if aligned == lead.doc {
			freq, err := ps.phraseFreq()
			if err != nil {
				return 0, err
			}
			if freq > 0 {
				ps.doc = lead.doc
				ps.freq = freq
				return ps.doc, nil
			}
			// Terms co-occur but never align: keep going.
			aligned = lead.doc + 1
		}
		if lead.doc, err = lead.enum.Advance(aligned); err != nil {
			return 0, err
		}
	}
}

// alignOn advances every sub-enum to candidate; returns the candidate when
// all landed on it, otherwise the next doc to try.
func (ps *PhraseScorer) alignOn(candidate int) (int, error) {
	if candidate == NoMoreDocs {
		return NoMoreDocs, nil
	}
	for _, sub := range ps.subs[1:] {
		doc := sub.doc
		if doc < candidate {
			var err error
			if doc, err = sub.enum.Advance(candidate); err != nil {
				return 0, err
			}
			sub.doc = doc
		}
		if doc > candidate {
			return doc, nil
		}
	}
	return candidate, nil
}

// phraseFreq reads the aligned doc's positions and counts matching
// alignments.
func (ps *PhraseScorer) phraseFreq() (int, error) {
	for _, sub := range ps.subs {
		freq, err := sub.enum.Freq()
		if err != nil {
			return 0, err
		}
		sub.shifted = sub.shifted[:0]
		for i := 0; i < freq; i++ {
			pos, err := sub.enum.NextPosition()
			if err != nil {
				return 0, err
			}
			sub.shifted = append(sub.shifted, pos-sub.offset)
		}
	}

	if ps.slop == 0 {
		return ps.exactFreq(), nil
	}
	if ps.sloppyMatches() {
		return 1, nil
	}
	return 0, nil
}

// exactFreq counts base positions present in every term's shifted list.
func (ps *PhraseScorer) exactFreq() int {
	count := 0
	for _, base := range ps.subs[0].shifted {
		all := true
		for _, sub := range ps.subs[1:] {
			if !containsInt(sub.shifted, base) {
				all = false
				break
			}
		}
		if all {
			count++
		}
	}
	return count
}

// sloppyMatches reports whether some choice of one shifted position per term
// spans at most the slop.
func (ps *PhraseScorer) sloppyMatches() bool {
	return ps.searchAlignment(0, NoMoreDocs, -NoMoreDocs)
}

func (ps *PhraseScorer) searchAlignment(depth, lo, hi int) bool {
	if hi-lo > ps.slop && depth > 0 && hi != -NoMoreDocs && lo != NoMoreDocs {
		return false
	}
	if depth == len(ps.subs) {
		return hi-lo <= ps.slop
	}
	for _, p := range ps.subs[depth].shifted {
		nlo, nhi := lo, hi
		if p < nlo {
			nlo = p
		}
		if p > nhi {
			nhi = p
		}
		if depth == 0 {
			nlo, nhi = p, p
		}
		if nhi-nlo <= ps.slop && ps.searchAlignment(depth+1, nlo, nhi) {
			return true
		}
	}
	return false
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
