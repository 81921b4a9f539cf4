package index

import (
	"github.com/iamNilotpal/diagon/internal/store"
	"github.com/iamNilotpal/diagon/pkg/errors"
	"github.com/iamNilotpal/diagon/pkg/seginfo"
)

const (
	postingsMagic = int32(0x504F5354) // "POST"

	// PostingsVersionPlain is the flat (docID, freq) pair layout.
	PostingsVersionPlain = int32(1)

	// PostingsVersionPositions extends each entry with a flags byte, the
	// term's offset into the .doc stream, and per-occurrence positions.
	// Readers honor whichever version the writer emitted.
	PostingsVersionPositions = int32(2)

	// PostingsExtension / DocStreamExtension are the postings file
	// extensions.
	PostingsExtension   = "post"
	DocStreamExtension  = "doc"
	postingsHasPosFlag  = byte(1)
	postingsBlockLength = 128
)

// PostingsEnum is the per-term doc/freq cursor. DocID is -1 before the first
// advance and NoMoreDocs after exhaustion; it never decreases.
type PostingsEnum interface {
	DocID() int
	NextDoc() (int, error)
	Advance(target int) (int, error)
	Cost() int64
	Freq() (int, error)
}

// PositionsEnum extends PostingsEnum with per-occurrence positions; valid to
// call NextPosition at most Freq times per doc.
type PositionsEnum interface {
	PostingsEnum
	NextPosition() (int, error)
}

// BlockImpact is the impact bookkeeping for one block of postings: no doc in
// the block past the previous boundary up to UpTo has a frequency above
// MaxFreq, and every such doc's norm byte is at most MaxNorm (larger norm
// bytes mean shorter fields, hence larger score contributions).
type BlockImpact struct {
	UpTo    int
	MaxFreq int
	MaxNorm byte
}

// TermMeta is the dictionary entry for one term.
type TermMeta struct {
	Term          Term
	DocFreq       int
	TotalTermFreq int64
	HasPositions  bool

	postStart  int64 // offset of the postings payload inside .post
	docStartFP int64 // offset of the term's stream inside .doc (version 2)
	impacts    []BlockImpact
}

// Impacts exposes the per-block maxima for impacts-aware scorers.
func (tm *TermMeta) Impacts() []BlockImpact { return tm.impacts }

// FieldStats aggregates the collection-level statistics of one field.
type FieldStats struct {
	FieldNumber      int32
	DocCount         int
	SumTotalTermFreq int64
	TermCount        int
}

// FieldsReader is the term dictionary and postings producer of one segment,
// backed by the .post file (term table, positions) and the .doc stream
// (block-decoded doc/freq cursor for scoring).
type FieldsReader struct {
	segment string
	post    store.IndexInput
	doc     store.IndexInput // nil for version 1 segments
	version int32

	terms  map[Term]*TermMeta
	fields map[int32]*FieldStats
	norms  *NormsReader
	infos  *FieldInfos
}

// OpenFieldsReader scans the .post term table once, building the in-memory
// dictionary and per-block impacts, and opens the .doc stream when the
// segment carries one. Norms feed the impact maxima; nr may be nil when the
// segment has no norms.
func OpenFieldsReader(dir *store.Directory, segment string, infos *FieldInfos, nr *NormsReader) (*FieldsReader, error) {
	post, err := dir.OpenInput(seginfo.FileName(segment, PostingsExtension), store.IOContextRead)
	if err != nil {
		return nil, err
	}

	fr := &FieldsReader{
		segment: segment,
		post:    post,
		terms:   make(map[Term]*TermMeta),
		fields:  make(map[int32]*FieldStats),
		norms:   nr,
		infos:   infos,
	}

	if err := fr.readTermTable(); err != nil {
		_ = post.Close()
		return nil, err
	}

	if fr.version >= PostingsVersionPositions {
		docName := seginfo.FileName(segment, DocStreamExtension)
		if dir.FileExists(docName) {
			doc, err := dir.OpenInput(docName, store.IOContextRead)
			if err != nil {
				_ = post.Close()
				return nil, err
			}
			fr.doc = doc
		}
	}
	return fr, nil
}

func (fr *FieldsReader) corrupt(msg string) error {
	return errors.NewIndexError(nil, errors.ErrorCodeCorrupted, msg).
		WithSegment(fr.segment).WithFileName(seginfo.FileName(fr.segment, PostingsExtension))
}

func (fr *FieldsReader) readTermTable() error {
	in := fr.post.Clone()
	defer func() { _ = in.Close() }()

	magic, err := in.ReadInt()
	if err != nil {
		return err
	}
	if magic != postingsMagic {
		return fr.corrupt("Postings magic mismatch")
	}
	version, err := in.ReadInt()
	if err != nil {
		return err
	}
	if version != PostingsVersionPlain && version != PostingsVersionPositions {
		return fr.corrupt("Unsupported postings version")
	}
	fr.version = version

	if version == PostingsVersionPlain {
		return fr.readPlainTable(in)
	}

	fieldCount, err := in.ReadInt()
	if err != nil {
		return err
	}
	for f := int32(0); f < fieldCount; f++ {
		if err := fr.readFieldSection(in); err != nil {
			return err
		}
	}
	return nil
}

// readPlainTable reads the version-1 layout: a flat term count followed by
// (term bytes, posting count, (docID, freq) pairs). The terms belong to the
// segment's sole indexed field; field statistics are reconstructed from the
// postings themselves.
func (fr *FieldsReader) readPlainTable(in store.IndexInput) error {
	var fi *FieldInfo
	for _, f := range fr.infos.All() {
		if f.Indexed {
			if fi != nil {
				return fr.corrupt("Version-1 postings with more than one indexed field")
			}
			fi = f
		}
	}
	if fi == nil {
		return fr.corrupt("Version-1 postings without an indexed field")
	}

	var norms []byte
	if fr.norms != nil {
		var err error
		if norms, err = fr.norms.Norms(fi); err != nil {
			return err
		}
	}

	termCount, err := in.ReadInt()
	if err != nil {
		return err
	}

	stats := &FieldStats{FieldNumber: fi.Number, TermCount: int(termCount)}
	fr.fields[fi.Number] = stats

	docs := make(map[int]struct{})
	for t := int32(0); t < termCount; t++ {
		if err := fr.readTermEntry(in, fi, norms); err != nil {
			return err
		}
	}
	for _, tm := range fr.terms {
		stats.SumTotalTermFreq += tm.TotalTermFreq
	}
	// Document count approximates docs-with-field from the union of
	// postings; exact counts come from version-2 field sections.
	for _, tm := range fr.terms {
		enum, err := fr.postPayloadEnum(tm)
		if err != nil {
			return err
		}
		for {
			doc, err := enum.NextDoc()
			if err != nil {
				return err
			}
			if doc == NoMoreDocs {
				break
			}
			docs[doc] = struct{}{}
		}
	}
	stats.DocCount = len(docs)
	return nil
}

func (fr *FieldsReader) readFieldSection(in store.IndexInput) error {
	fieldNumber, err := in.ReadInt()
	if err != nil {
		return err
	}
	fi := fr.infos.ByNumber(fieldNumber)
	if fi == nil {
		return fr.corrupt("Postings reference an unknown field number")
	}

	sumTTF, err := in.ReadLong()
	if err != nil {
		return err
	}
	docCount, err := in.ReadInt()
	if err != nil {
		return err
	}
	termCount, err := in.ReadInt()
	if err != nil {
		return err
	}
	fr.fields[fieldNumber] = &FieldStats{
		FieldNumber:      fieldNumber,
		DocCount:         int(docCount),
		SumTotalTermFreq: sumTTF,
		TermCount:        int(termCount),
	}

	var norms []byte
	if fr.norms != nil {
		if norms, err = fr.norms.Norms(fi); err != nil {
			return err
		}
	}

	for t := int32(0); t < termCount; t++ {
		if err := fr.readTermEntry(in, fi, norms); err != nil {
			return err
		}
	}
	return nil
}

func (fr *FieldsReader) readTermEntry(in store.IndexInput, fi *FieldInfo, norms []byte) error {
	text, err := in.ReadString()
	if err != nil {
		return err
	}
	docFreq, err := in.ReadVInt()
	if err != nil {
		return err
	}
	if docFreq <= 0 {
		return fr.corrupt("Term with non-positive posting count")
	}

	tm := &TermMeta{
		Term:    NewTerm(fi.Name, text),
		DocFreq: int(docFreq),
	}

	if fr.version >= PostingsVersionPositions {
		flags, err := in.ReadByte()
		if err != nil {
			return err
		}
		tm.HasPositions = flags&postingsHasPosFlag != 0
		if tm.docStartFP, err = in.ReadVLong(); err != nil {
			return err
		}
	}

	tm.postStart = in.FilePointer()

	// One pass over the postings payload: skip to the next entry while
	// accumulating total term frequency and the per-block impact maxima.
	var (
		impact  BlockImpact
		inBlock int
	)
	for i := 0; i < tm.DocFreq; i++ {
		docID, err := in.ReadInt()
		if err != nil {
			return err
		}
		freq, err := in.ReadInt()
		if err != nil {
			return err
		}
		if freq <= 0 {
			return fr.corrupt("Posting with non-positive frequency")
		}
		tm.TotalTermFreq += int64(freq)

		if int(freq) > impact.MaxFreq {
			impact.MaxFreq = int(freq)
		}
		norm := byte(127)
		if int(docID) < len(norms) && norms[docID] != 0 {
			norm = norms[docID]
		}
		if norm > impact.MaxNorm {
			impact.MaxNorm = norm
		}
		impact.UpTo = int(docID)
		inBlock++
		if inBlock == postingsBlockLength {
			tm.impacts = append(tm.impacts, impact)
			impact = BlockImpact{}
			inBlock = 0
		}

		if tm.HasPositions {
			for p := int32(0); p < freq; p++ {
				if _, err := in.ReadVInt(); err != nil {
					return err
				}
			}
		}
	}
	if inBlock > 0 {
		tm.impacts = append(tm.impacts, impact)
	}
	// The final block extends to the end of the segment's doc space.
	tm.impacts[len(tm.impacts)-1].UpTo = NoMoreDocs

	fr.terms[tm.Term] = tm
	return nil
}

// TermMeta returns the dictionary entry for a term, or nil when the segment
// has no postings for it.
func (fr *FieldsReader) TermMeta(t Term) *TermMeta { return fr.terms[t] }

// FieldStats returns the per-field collection statistics, or nil.
func (fr *FieldsReader) FieldStats(fi *FieldInfo) *FieldStats {
	if fi == nil {
		return nil
	}
	return fr.fields[fi.Number]
}

// Postings returns a doc/freq cursor for the term. When the segment carries a
// .doc stream the block-decoded cursor is returned; otherwise the cursor
// iterates the .post payload.
func (fr *FieldsReader) Postings(t Term) (PostingsEnum, error) {
	tm := fr.terms[t]
	if tm == nil {
		return nil, nil
	}
	if fr.doc != nil {
		return newBlockDocEnum(fr.doc.Clone(), tm)
	}
	return fr.postPayloadEnum(tm)
}

// PostingsWithPositions returns a positions-capable cursor, or nil when the
// term's field was not indexed with positions.
func (fr *FieldsReader) PostingsWithPositions(t Term) (PositionsEnum, error) {
	tm := fr.terms[t]
	if tm == nil || !tm.HasPositions {
		return nil, nil
	}
	return fr.postPayloadEnum(tm)
}

func (fr *FieldsReader) postPayloadEnum(tm *TermMeta) (*postEnum, error) {
	in := fr.post.Clone()
	if err := in.Seek(tm.postStart); err != nil {
		_ = in.Close()
		return nil, err
	}
	return &postEnum{in: in, meta: tm, doc: -1}, nil
}

// Close releases the postings inputs.
func (fr *FieldsReader) Close() error {
	err := fr.post.Close()
	if fr.doc != nil {
		if derr := fr.doc.Close(); err == nil {
			err = derr
		}
	}
	return err
}

// postEnum iterates the (docID, freq[, positions]) payload stored inline in
// the .post file.
type postEnum struct {
	in   store.IndexInput
	meta *TermMeta

	doc     int
	freq    int
	read    int
	posLeft int
}

func (pe *postEnum) DocID() int  { return pe.doc }
func (pe *postEnum) Cost() int64 { return int64(pe.meta.DocFreq) }

func (pe *postEnum) Freq() (int, error) { return pe.freq, nil }

func (pe *postEnum) NextDoc() (int, error) {
	// Skip unread positions of the current doc.
	for pe.posLeft > 0 {
		if _, err := pe.in.ReadVInt(); err != nil {
			return 0, err
		}
		pe.posLeft--
	}
	if pe.read >= pe.meta.DocFreq {
		pe.doc = NoMoreDocs
		return pe.doc, nil
	}

	docID, err := pe.in.ReadInt()
	if err != nil {
		return 0, err
	}
	freq, err := pe.in.ReadInt()
	if err != nil {
		return 0, err
	}
	pe.doc = int(docID)
	pe.freq = int(freq)
	pe.read++
	if pe.meta.HasPositions {
		pe.posLeft = pe.freq
	}
	return pe.doc, nil
}

func (pe *postEnum) Advance(target int) (int, error) {
	if target < 0 {
		return 0, errors.NewValidationError(nil, errors.ErrorCodeInvalidInput,
			"Negative advance target").WithProvided(target)
	}
	for pe.doc < target {
		if _, err := pe.NextDoc(); err != nil {
			return 0, err
		}
		if pe.doc == NoMoreDocs {
			break
		}
	}
	return pe.doc, nil
}

func (pe *postEnum) NextPosition() (int, error) {
	if pe.posLeft <= 0 {
		return 0, errors.NewIndexError(nil, errors.ErrorCodeCorrupted,
			"Position read past the current doc's frequency")
	}
	pos, err := pe.in.ReadVInt()
	if err != nil {
		return 0, err
	}
	pe.posLeft--
	return int(pos), nil
}
