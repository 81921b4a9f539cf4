package index

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/iamNilotpal/diagon/internal/store"
	"github.com/iamNilotpal/diagon/internal/util"
	"github.com/iamNilotpal/diagon/pkg/errors"
	"github.com/iamNilotpal/diagon/pkg/seginfo"
)

// Document is the writer-side view of one document: tokenized text fields
// (token order defines positions), numeric doc-values columns and stored
// values.
type Document struct {
	text    map[string][]string
	numeric map[string]int64
	double  map[string]float64
	stored  map[string]any
}

func NewDocument() *Document {
	return &Document{
		text:    make(map[string][]string),
		numeric: make(map[string]int64),
		double:  make(map[string]float64),
		stored:  make(map[string]any),
	}
}

// AddText indexes the tokens under the field with positions and norms.
func (d *Document) AddText(field string, tokens ...string) *Document {
	d.text[field] = append(d.text[field], tokens...)
	return d
}

// AddNumeric adds a long doc-values column entry.
func (d *Document) AddNumeric(field string, value int64) *Document {
	d.numeric[field] = value
	return d
}

// AddDouble adds a double doc-values column entry, stored as the float64 bit
// pattern.
func (d *Document) AddDouble(field string, value float64) *Document {
	d.double[field] = value
	return d
}

// Store records a stored-field value: string, int32 or int64.
func (d *Document) Store(field string, value any) *Document {
	d.stored[field] = value
	return d
}

// encodeNorm packs a field length into the one-byte normalization factor:
// 127/sqrt(length), clamped to [1, 127]; empty fields encode as 127.
func encodeNorm(length int) byte {
	if length <= 1 {
		return 127
	}
	n := 127.0 / math.Sqrt(float64(length))
	if n < 1 {
		return 1
	}
	return byte(n)
}

// SegmentWriter flushes in-memory documents as one immutable segment: the
// .post term table, the .doc stream, norms, doc values and stored fields.
type SegmentWriter struct {
	dir *store.Directory
	log *zap.SugaredLogger
}

func NewSegmentWriter(dir *store.Directory, log *zap.SugaredLogger) *SegmentWriter {
	return &SegmentWriter{dir: dir, log: log}
}

type posting struct {
	docID     int32
	freq      int32
	positions []int32
}

type termPostings struct {
	text     string
	postings []posting
}

type fieldBuild struct {
	info    *FieldInfo
	terms   map[string]*termPostings
	sumTTF  int64
	docsSet map[int32]struct{}
	norms   []byte
	values  []int64
}

// Write flushes docs as segment name, returning its metadata. The caller
// publishes the segment via SegmentInfos.Write.
func (w *SegmentWriter) Write(name string, docs []*Document) (*SegmentInfo, error) {
	if name == "" || len(docs) == 0 {
		return nil, errors.NewValidationError(nil, errors.ErrorCodeInvalidInput,
			"Segment name and at least one document are required").WithField("docs")
	}

	maxDoc := len(docs)
	builds := w.invert(docs)

	ordered := make([]*fieldBuild, 0, len(builds))
	for _, fb := range builds {
		ordered = append(ordered, fb)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].info.Name < ordered[j].info.Name })
	for number, fb := range ordered {
		fb.info.Number = int32(number)
	}

	si := &SegmentInfo{
		Name:        name,
		MaxDoc:      maxDoc,
		CodecName:   DefaultCodecName,
		Diagnostics: map[string]string{"source": "flush"},
	}

	infos := make([]*FieldInfo, len(ordered))
	for i, fb := range ordered {
		infos[i] = fb.info
	}
	si.FieldInfos = NewFieldInfos(infos)

	if err := w.writePostings(si, ordered); err != nil {
		return nil, err
	}
	if err := w.writeNorms(si, ordered, maxDoc); err != nil {
		return nil, err
	}
	if err := w.writeDocValues(si, ordered, maxDoc); err != nil {
		return nil, err
	}
	if err := w.writeStoredFields(si, docs); err != nil {
		return nil, err
	}

	for _, f := range si.Files {
		if n, err := w.dir.FileLength(f); err == nil {
			si.SizeInBytes += n
		}
	}

	w.log.Infow("Flushed segment",
		"segment", name, "maxDoc", maxDoc, "fields", len(ordered))
	return si, nil
}

// invert builds the in-memory inverted index, norms and columns.
func (w *SegmentWriter) invert(docs []*Document) map[string]*fieldBuild {
	builds := make(map[string]*fieldBuild)

	fieldFor := func(name string) *fieldBuild {
		fb := builds[name]
		if fb == nil {
			fb = &fieldBuild{
				info:    &FieldInfo{Name: name},
				terms:   make(map[string]*termPostings),
				docsSet: make(map[int32]struct{}),
			}
			builds[name] = fb
		}
		return fb
	}

	for docID, doc := range docs {
		id := int32(docID)

		for field, tokens := range doc.text {
			fb := fieldFor(field)
			fb.info.Indexed = true
			fb.info.HasNorms = true
			fb.info.HasPositions = true
			if fb.norms == nil {
				fb.norms = make([]byte, len(docs))
			}
			fb.norms[docID] = encodeNorm(len(tokens))
			fb.sumTTF += int64(len(tokens))
			fb.docsSet[id] = struct{}{}

			perTerm := make(map[string][]int32)
			for pos, tok := range tokens {
				perTerm[tok] = append(perTerm[tok], int32(pos))
			}
			for tok, positions := range perTerm {
				tp := fb.terms[tok]
				if tp == nil {
					tp = &termPostings{text: tok}
					fb.terms[tok] = tp
				}
				tp.postings = append(tp.postings, posting{
					docID:     id,
					freq:      int32(len(positions)),
					positions: positions,
				})
			}
		}

		for field, value := range doc.numeric {
			fb := fieldFor(field)
			fb.info.HasDocValues = true
			fb.info.NumericType = NumericTypeLong
			if fb.values == nil {
				fb.values = make([]int64, len(docs))
			}
			fb.values[docID] = value
		}
		for field, value := range doc.double {
			fb := fieldFor(field)
			fb.info.HasDocValues = true
			fb.info.NumericType = NumericTypeDouble
			if fb.values == nil {
				fb.values = make([]int64, len(docs))
			}
			fb.values[docID] = int64(math.Float64bits(value))
		}
		for field := range doc.stored {
			fieldFor(field).info.HasStored = true
		}
	}
	return builds
}

func (w *SegmentWriter) writePostings(si *SegmentInfo, ordered []*fieldBuild) error {
	// Build the .doc stream first so term entries can carry their offsets.
	var docStream []byte
	docStarts := make(map[*termPostings]int64)

	var group [streamVByteGroupSize]uint32
	for _, fb := range ordered {
		for _, tp := range sortedTerms(fb.terms) {
			docStarts[tp] = int64(len(docStream))
			docStream = appendDocStream(docStream, tp.postings, &group)
		}
	}

	docName := seginfo.FileName(si.Name, DocStreamExtension)
	out, err := w.dir.CreateOutput(docName)
	if err != nil {
		return err
	}
	if err := out.WriteBytes(docStream); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	si.AddFile(docName)

	postName := seginfo.FileName(si.Name, PostingsExtension)
	post, err := w.dir.CreateOutput(postName)
	if err != nil {
		return err
	}

	err = func() error {
		if err := post.WriteInt(postingsMagic); err != nil {
			return err
		}
		if err := post.WriteInt(PostingsVersionPositions); err != nil {
			return err
		}

		indexed := 0
		for _, fb := range ordered {
			if fb.info.Indexed {
				indexed++
			}
		}
		if err := post.WriteInt(int32(indexed)); err != nil {
			return err
		}

		for _, fb := range ordered {
			if !fb.info.Indexed {
				continue
			}
			if err := post.WriteInt(fb.info.Number); err != nil {
				return err
			}
			if err := post.WriteLong(fb.sumTTF); err != nil {
				return err
			}
			if err := post.WriteInt(int32(len(fb.docsSet))); err != nil {
				return err
			}
			terms := sortedTerms(fb.terms)
			if err := post.WriteInt(int32(len(terms))); err != nil {
				return err
			}
			for _, tp := range terms {
				if err := post.WriteString(tp.text); err != nil {
					return err
				}
				if err := post.WriteVInt(int32(len(tp.postings))); err != nil {
					return err
				}
				if err := post.WriteByte(postingsHasPosFlag); err != nil {
					return err
				}
				if err := post.WriteVLong(docStarts[tp]); err != nil {
					return err
				}
				for _, p := range tp.postings {
					if err := post.WriteInt(p.docID); err != nil {
						return err
					}
					if err := post.WriteInt(p.freq); err != nil {
						return err
					}
					for _, pos := range p.positions {
						if err := post.WriteVInt(pos); err != nil {
							return err
						}
					}
				}
			}
		}
		return nil
	}()
	if err != nil {
		_ = post.Close()
		return err
	}
	if err := post.Close(); err != nil {
		return err
	}
	si.AddFile(postName)
	return nil
}

func sortedTerms(terms map[string]*termPostings) []*termPostings {
	out := make([]*termPostings, 0, len(terms))
	for _, tp := range terms {
		out = append(out, tp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].text < out[j].text })
	return out
}

// appendDocStream encodes one term's postings: StreamVByte groups of 4 doc
// deltas then 4 freqs, with a VInt tail for the remainder.
func appendDocStream(dst []byte, postings []posting, group *[streamVByteGroupSize]uint32) []byte {
	prev := int32(0)
	first := true
	i := 0
	for ; i+streamVByteGroupSize <= len(postings); i += streamVByteGroupSize {
		for k := 0; k < streamVByteGroupSize; k++ {
			p := postings[i+k]
			delta := p.docID - prev
			if first {
				delta = p.docID
				first = false
			}
			group[k] = uint32(delta)
			prev = p.docID
		}
		dst = encodeStreamVByte4(dst, group[:])
		for k := 0; k < streamVByteGroupSize; k++ {
			group[k] = uint32(postings[i+k].freq)
		}
		dst = encodeStreamVByte4(dst, group[:])
	}
	for ; i < len(postings); i++ {
		p := postings[i]
		delta := p.docID - prev
		if first {
			delta = p.docID
			first = false
		}
		prev = p.docID
		dst = appendVInt(dst, delta)
		dst = appendVInt(dst, p.freq)
	}
	return dst
}

func appendVInt(dst []byte, v int32) []byte {
	u := uint32(v)
	for u >= 0x80 {
		dst = append(dst, byte(u)|0x80)
		u >>= 7
	}
	return append(dst, byte(u))
}

func (w *SegmentWriter) writeNorms(si *SegmentInfo, ordered []*fieldBuild, maxDoc int) error {
	type entry struct {
		fb     *fieldBuild
		offset int64
	}
	var entries []entry
	var offset int64
	for _, fb := range ordered {
		if fb.info.HasNorms {
			entries = append(entries, entry{fb: fb, offset: offset})
			offset += int64(maxDoc)
		}
	}
	if len(entries) == 0 {
		return nil
	}

	dataName := seginfo.FileName(si.Name, NormsDataExtension)
	data, err := w.dir.CreateOutput(dataName)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := data.WriteBytes(e.fb.norms); err != nil {
			_ = data.Close()
			return err
		}
	}
	if err := data.Close(); err != nil {
		return err
	}
	si.AddFile(dataName)

	metaName := seginfo.FileName(si.Name, NormsMetaExtension)
	meta, err := w.dir.CreateOutput(metaName)
	if err != nil {
		return err
	}
	err = func() error {
		if err := meta.WriteString(normsMetaCodec); err != nil {
			return err
		}
		if err := meta.WriteInt(normsVersion); err != nil {
			return err
		}
		for _, e := range entries {
			if err := meta.WriteInt(e.fb.info.Number); err != nil {
				return err
			}
			if err := meta.WriteLong(e.offset); err != nil {
				return err
			}
			if err := meta.WriteInt(int32(maxDoc)); err != nil {
				return err
			}
		}
		return nil
	}()
	if err != nil {
		_ = meta.Close()
		return err
	}
	if err := meta.Close(); err != nil {
		return err
	}
	si.AddFile(metaName)
	return nil
}

func (w *SegmentWriter) writeDocValues(si *SegmentInfo, ordered []*fieldBuild, maxDoc int) error {
	type entry struct {
		fb     *fieldBuild
		offset int64
	}
	var entries []entry
	var offset int64
	for _, fb := range ordered {
		if fb.info.HasDocValues {
			entries = append(entries, entry{fb: fb, offset: offset})
			offset += int64(maxDoc) * 8
		}
	}
	if len(entries) == 0 {
		return nil
	}

	dataName := seginfo.FileName(si.Name, DocValuesDataExtension)
	data, err := w.dir.CreateOutput(dataName)
	if err != nil {
		return err
	}
	for _, e := range entries {
		for _, v := range e.fb.values {
			if err := data.WriteLong(v); err != nil {
				_ = data.Close()
				return err
			}
		}
	}
	if err := data.Close(); err != nil {
		return err
	}
	si.AddFile(dataName)

	metaName := seginfo.FileName(si.Name, DocValuesMetaExtension)
	meta, err := w.dir.CreateOutput(metaName)
	if err != nil {
		return err
	}
	err = func() error {
		if err := meta.WriteString(docValuesMetaCodec); err != nil {
			return err
		}
		if err := meta.WriteInt(docValuesVersion); err != nil {
			return err
		}
		for _, e := range entries {
			if err := meta.WriteInt(e.fb.info.Number); err != nil {
				return err
			}
			if err := meta.WriteLong(e.offset); err != nil {
				return err
			}
			if err := meta.WriteInt(int32(maxDoc)); err != nil {
				return err
			}
			if err := meta.WriteByte(byte(e.fb.info.NumericType)); err != nil {
				return err
			}
		}
		return nil
	}()
	if err != nil {
		_ = meta.Close()
		return err
	}
	if err := meta.Close(); err != nil {
		return err
	}
	si.AddFile(metaName)
	return nil
}

func (w *SegmentWriter) writeStoredFields(si *SegmentInfo, docs []*Document) error {
	anyStored := false
	for _, d := range docs {
		if len(d.stored) > 0 {
			anyStored = true
			break
		}
	}
	if !anyStored {
		return nil
	}

	dataName := seginfo.FileName(si.Name, StoredFieldsDataExtension)
	data, err := w.dir.CreateOutput(dataName)
	if err != nil {
		return err
	}

	offsets := make([]int64, len(docs))
	err = func() error {
		if err := data.WriteString(storedFieldsCodecName); err != nil {
			return err
		}
		if err := data.WriteVInt(storedFieldsVersion); err != nil {
			return err
		}
		for docID, d := range docs {
			offsets[docID] = data.FilePointer()
			if err := data.WriteVInt(int32(len(d.stored))); err != nil {
				return err
			}
			names := make([]string, 0, len(d.stored))
			for name := range d.stored {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fi := si.FieldInfos.ByName(name)
				if err := data.WriteVInt(fi.Number); err != nil {
					return err
				}
				switch v := d.stored[name].(type) {
				case string:
					if err := data.WriteByte(storedTypeString); err != nil {
						return err
					}
					if err := data.WriteString(v); err != nil {
						return err
					}
				case int32:
					if err := data.WriteByte(storedTypeInt); err != nil {
						return err
					}
					if err := data.WriteVInt(v); err != nil {
						return err
					}
				case int64:
					if err := data.WriteByte(storedTypeLong); err != nil {
						return err
					}
					if err := data.WriteVLong(v); err != nil {
						return err
					}
				default:
					return errors.NewValidationError(nil, errors.ErrorCodeInvalidInput,
						"Unsupported stored value type").WithField(name).WithProvided(v)
				}
			}
		}
		return nil
	}()
	if err != nil {
		_ = data.Close()
		return err
	}
	if err := data.Close(); err != nil {
		return err
	}
	si.AddFile(dataName)

	idxName := seginfo.FileName(si.Name, StoredFieldsIndexExtension)
	idx, err := w.dir.CreateOutput(idxName)
	if err != nil {
		return err
	}
	err = func() error {
		if err := idx.WriteString(storedFieldsCodecName); err != nil {
			return err
		}
		if err := idx.WriteVInt(storedFieldsVersion); err != nil {
			return err
		}
		if err := idx.WriteVInt(int32(len(docs))); err != nil {
			return err
		}
		for _, off := range offsets {
			if err := idx.WriteVLong(off); err != nil {
				return err
			}
		}
		return nil
	}()
	if err != nil {
		_ = idx.Close()
		return err
	}
	if err := idx.Close(); err != nil {
		return err
	}
	si.AddFile(idxName)
	return nil
}

// ApplyDeletes writes a replacement live-docs file marking the given local
// docIDs deleted, and updates the segment metadata. The segment's other
// files never change.
func ApplyDeletes(dir *store.Directory, si *SegmentInfo, deleted []int) error {
	live := util.NewFixedBitSet(si.MaxDoc)
	live.SetAll()
	for _, d := range deleted {
		if d < 0 || d >= si.MaxDoc {
			return errors.NewValidationError(nil, errors.ErrorCodeInvalidInput,
				"Deleted docID out of range").WithProvided(d)
		}
		live.Clear(d)
	}
	delCount := si.MaxDoc - live.Cardinality()
	if err := WriteLiveDocs(dir, si.Name, live, delCount); err != nil {
		return err
	}
	si.DelCount = delCount
	si.AddFile(seginfo.FileName(si.Name, LiveDocsExtension))
	return nil
}
