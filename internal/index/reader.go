package index

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/iamNilotpal/diagon/internal/store"
	"github.com/iamNilotpal/diagon/internal/util"
	"github.com/iamNilotpal/diagon/pkg/errors"
)

// refCounted is the shared reader lifecycle: a refcount starting at 1 whose
// transition to 0 runs the close hook exactly once. Taking the count below
// zero is a programming error and panics.
type refCounted struct {
	refs    atomic.Int32
	onClose func() error
}

func initRefCounted(rc *refCounted, onClose func() error) {
	rc.refs.Store(1)
	rc.onClose = onClose
}

// IncRef takes a reference. Fails when the resource is already closed.
func (rc *refCounted) IncRef() error {
	if !rc.TryIncRef() {
		return errors.NewIndexError(nil, errors.ErrorCodeAlreadyClosed,
			"Reader is already closed")
	}
	return nil
}

// TryIncRef takes a reference unless the count already reached zero.
func (rc *refCounted) TryIncRef() bool {
	for {
		n := rc.refs.Load()
		if n <= 0 {
			return false
		}
		if rc.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// DecRef drops a reference, running the close hook when the count reaches
// zero.
func (rc *refCounted) DecRef() error {
	n := rc.refs.Dec()
	if n == 0 {
		if rc.onClose != nil {
			return rc.onClose()
		}
		return nil
	}
	if n < 0 {
		panic("reader refcount below zero: unbalanced DecRef")
	}
	return nil
}

// RefCount exposes the current count, for tests and diagnostics.
func (rc *refCounted) RefCount() int32 { return rc.refs.Load() }

func (rc *refCounted) ensureOpen() error {
	if rc.refs.Load() <= 0 {
		return errors.NewIndexError(nil, errors.ErrorCodeAlreadyClosed,
			"Reader is already closed")
	}
	return nil
}

// CacheKey identifies a segment reader for per-segment caches without
// holding a pointer back to it: the segment fingerprint stays stable for the
// reader's lifetime.
type CacheKey struct {
	Segment     string
	Fingerprint uint64
}

// SegmentReader is the leaf reader over one immutable segment: postings,
// norms, doc values, stored fields and the live-docs bitmap.
type SegmentReader struct {
	refCounted

	si  *SegmentInfo
	dir *store.Directory
	log *zap.SugaredLogger
	key CacheKey

	fields    *FieldsReader
	norms     *NormsReader
	docValues *DocValuesReader
	stored    *StoredFieldsReader

	liveDocs *util.FixedBitSet // nil means all live
	delCount int
}

// SegmentReaderConfig carries the parameters for opening a SegmentReader.
type SegmentReaderConfig struct {
	Directory *store.Directory
	Info      *SegmentInfo
	Logger    *zap.SugaredLogger
}

// OpenSegmentReader opens every codec family the segment declares. Optional
// families (norms, doc values, stored fields) are opened only when a field
// claims them, and live docs only when the segment has a live-docs file. A
// claimed family whose files are missing or whose header is invalid fails
// the open here; the error is not deferred to the claiming field's first use.
func OpenSegmentReader(config *SegmentReaderConfig) (*SegmentReader, error) {
	if config == nil || config.Directory == nil || config.Info == nil || config.Logger == nil {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "Segment reader configuration is required",
		).WithField("config").WithRule("required")
	}

	si := config.Info
	sr := &SegmentReader{
		si:  si,
		dir: config.Directory,
		log: config.Logger,
		key: CacheKey{
			Segment:     si.Name,
			Fingerprint: xxhash.Sum64String(si.Name + "/" + strconv.Itoa(si.MaxDoc) + "/" + strconv.Itoa(si.DelCount)),
		},
	}
	initRefCounted(&sr.refCounted, sr.doClose)

	var anyNorms, anyDocValues, anyStored bool
	for _, fi := range si.FieldInfos.All() {
		anyNorms = anyNorms || fi.HasNorms
		anyDocValues = anyDocValues || fi.HasDocValues
		anyStored = anyStored || fi.HasStored
	}

	success := false
	defer func() {
		if !success {
			_ = sr.doClose()
		}
	}()

	var err error
	if anyNorms {
		if sr.norms, err = OpenNormsReader(sr.dir, si.Name); err != nil {
			return nil, err
		}
	}
	if sr.fields, err = OpenFieldsReader(sr.dir, si.Name, si.FieldInfos, sr.norms); err != nil {
		return nil, err
	}
	if anyDocValues {
		if sr.docValues, err = OpenDocValuesReader(sr.dir, si.Name); err != nil {
			return nil, err
		}
	}
	if anyStored {
		if sr.stored, err = OpenStoredFieldsReader(sr.dir, si.Name, si.FieldInfos); err != nil {
			return nil, err
		}
	}

	liveDocs, delCount, err := ReadLiveDocs(sr.dir, si.Name, si.MaxDoc)
	if err != nil {
		return nil, err
	}
	sr.liveDocs = liveDocs
	sr.delCount = delCount

	success = true
	return sr, nil
}

func (sr *SegmentReader) doClose() error {
	var err error
	if sr.fields != nil {
		err = multierr.Append(err, sr.fields.Close())
	}
	if sr.norms != nil {
		err = multierr.Append(err, sr.norms.Close())
	}
	if sr.docValues != nil {
		err = multierr.Append(err, sr.docValues.Close())
	}
	if sr.stored != nil {
		err = multierr.Append(err, sr.stored.Close())
	}
	return err
}

// Close drops the opener's reference.
func (sr *SegmentReader) Close() error { return sr.DecRef() }

// SegmentInfo returns the segment's metadata.
func (sr *SegmentReader) SegmentInfo() *SegmentInfo { return sr.si }

// CacheKey returns the reader's stable cache identity.
func (sr *SegmentReader) CacheKey() CacheKey { return sr.key }

// MaxDoc returns the segment's doc-ID space size.
func (sr *SegmentReader) MaxDoc() int { return sr.si.MaxDoc }

// NumDocs returns the live doc count.
func (sr *SegmentReader) NumDocs() int { return sr.si.MaxDoc - sr.delCount }

// DelCount returns the deleted doc count.
func (sr *SegmentReader) DelCount() int { return sr.delCount }

// HasDeletions reports whether any doc is deleted.
func (sr *SegmentReader) HasDeletions() bool { return sr.delCount > 0 }

// LiveDocs returns the deletion bitmap, or nil when every doc is live.
func (sr *SegmentReader) LiveDocs() util.Bits {
	if sr.liveDocs == nil {
		return nil
	}
	return sr.liveDocs
}

// FieldInfos returns the segment's field schema.
func (sr *SegmentReader) FieldInfos() *FieldInfos { return sr.si.FieldInfos }

// TermMeta returns the dictionary entry for the term, or nil.
func (sr *SegmentReader) TermMeta(t Term) (*TermMeta, error) {
	if err := sr.ensureOpen(); err != nil {
		return nil, err
	}
	return sr.fields.TermMeta(t), nil
}

// Postings returns the doc/freq cursor for the term, or nil when absent.
func (sr *SegmentReader) Postings(t Term) (PostingsEnum, error) {
	if err := sr.ensureOpen(); err != nil {
		return nil, err
	}
	return sr.fields.Postings(t)
}

// PostingsWithPositions returns the positions cursor, or nil when the field
// carries no positions.
func (sr *SegmentReader) PostingsWithPositions(t Term) (PositionsEnum, error) {
	if err := sr.ensureOpen(); err != nil {
		return nil, err
	}
	return sr.fields.PostingsWithPositions(t)
}

// Norms returns the field's norm bytes indexed by local docID, or nil.
func (sr *SegmentReader) Norms(field string) ([]byte, error) {
	if err := sr.ensureOpen(); err != nil {
		return nil, err
	}
	fi := sr.si.FieldInfos.ByName(field)
	if fi == nil || !fi.HasNorms || sr.norms == nil {
		return nil, nil
	}
	return sr.norms.Norms(fi)
}

// NumericDocValues returns the field's numeric column, or nil.
func (sr *SegmentReader) NumericDocValues(field string) (*NumericDocValues, error) {
	if err := sr.ensureOpen(); err != nil {
		return nil, err
	}
	fi := sr.si.FieldInfos.ByName(field)
	if fi == nil || !fi.HasDocValues || sr.docValues == nil {
		return nil, nil
	}
	return sr.docValues.Numeric(fi)
}

// Document returns the stored fields of a document.
func (sr *SegmentReader) Document(docID int) (map[string]any, error) {
	if err := sr.ensureOpen(); err != nil {
		return nil, err
	}
	if sr.stored == nil {
		return nil, nil
	}
	return sr.stored.Document(docID)
}

// FieldStats returns the field's collection statistics, or nil.
func (sr *SegmentReader) FieldStats(field string) (*FieldStats, error) {
	if err := sr.ensureOpen(); err != nil {
		return nil, err
	}
	return sr.fields.FieldStats(sr.si.FieldInfos.ByName(field)), nil
}

// LeafReaderContext binds a leaf reader to its position in the composite
// view: global docID = DocBase + local docID.
type LeafReaderContext struct {
	Reader  *SegmentReader
	DocBase int
	Ord     int
}

// IndexReader is the composite, point-in-time view over the segments of one
// commit. It holds a reference on each leaf; closing the composite releases
// them. Leaves never refer upward.
type IndexReader struct {
	refCounted

	generation int64
	leaves     []*LeafReaderContext
	maxDoc     int
	numDocs    int
}

// OpenIndexReader opens the latest commit in the directory.
func OpenIndexReader(dir *store.Directory, log *zap.SugaredLogger) (*IndexReader, error) {
	sis, err := ReadLatestCommit(dir)
	if err != nil {
		return nil, err
	}
	return OpenIndexReaderFromCommit(dir, sis, log)
}

// OpenIndexReaderFromCommit opens readers for every segment of a commit.
func OpenIndexReaderFromCommit(dir *store.Directory, sis *SegmentInfos, log *zap.SugaredLogger) (*IndexReader, error) {
	ir := &IndexReader{generation: sis.Generation}
	initRefCounted(&ir.refCounted, ir.doClose)

	docBase := 0
	for ord, si := range sis.Segments {
		sr, err := OpenSegmentReader(&SegmentReaderConfig{Directory: dir, Info: si, Logger: log})
		if err != nil {
			// A failed segment open prevents publication of this view.
			_ = ir.doClose()
			return nil, err
		}
		ir.leaves = append(ir.leaves, &LeafReaderContext{Reader: sr, DocBase: docBase, Ord: ord})
		docBase += sr.MaxDoc()
		ir.numDocs += sr.NumDocs()
	}
	ir.maxDoc = docBase

	log.Infow("Opened index reader",
		"generation", sis.Generation,
		"segments", len(ir.leaves),
		"maxDoc", ir.maxDoc,
		"numDocs", ir.numDocs,
	)
	return ir, nil
}

func (ir *IndexReader) doClose() error {
	var err error
	for _, leaf := range ir.leaves {
		if leaf != nil && leaf.Reader != nil {
			err = multierr.Append(err, leaf.Reader.DecRef())
		}
	}
	return err
}

// Close drops the opener's reference.
func (ir *IndexReader) Close() error { return ir.DecRef() }

// Generation returns the commit generation this view was opened against.
func (ir *IndexReader) Generation() int64 { return ir.generation }

// Leaves returns the leaf contexts in docBase order.
func (ir *IndexReader) Leaves() []*LeafReaderContext { return ir.leaves }

// MaxDoc sums maxDoc over the leaves.
func (ir *IndexReader) MaxDoc() int { return ir.maxDoc }

// NumDocs sums live docs over the leaves.
func (ir *IndexReader) NumDocs() int { return ir.numDocs }

// HasDeletions reports whether any leaf has deletions.
func (ir *IndexReader) HasDeletions() bool { return ir.numDocs != ir.maxDoc }
