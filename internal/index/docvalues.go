package index

import (
	"sync"

	"github.com/iamNilotpal/diagon/internal/store"
	"github.com/iamNilotpal/diagon/pkg/errors"
	"github.com/iamNilotpal/diagon/pkg/seginfo"
)

const (
	docValuesMetaCodec   = "DOCVALUES_META"
	docValuesVersion     = int32(1)
	docValuesMetaEntrySz = 4 + 8 + 4 + 1 // fieldNumber + dataOffset + docCount + numericType

	// DocValuesMetaExtension / DocValuesDataExtension are the doc-values
	// file extensions.
	DocValuesMetaExtension = "dvm"
	DocValuesDataExtension = "dvd"
)

type docValuesEntry struct {
	fieldNumber int32
	dataOffset  int64
	docCount    int32
	numericType NumericType
}

// NumericDocValues is the per-field numeric column of one segment: a dense
// doc → int64 lookup. Double fields store the float64 bit pattern.
type NumericDocValues struct {
	values      []int64
	numericType NumericType
}

// Count returns the number of addressable docs.
func (dv *NumericDocValues) Count() int { return len(dv.values) }

// Value returns the raw value for a local docID.
func (dv *NumericDocValues) Value(doc int) int64 { return dv.values[doc] }

// Type returns the column's numeric interpretation.
func (dv *NumericDocValues) Type() NumericType { return dv.numericType }

// DocValuesReader decodes the per-field numeric columns. Columns load lazily
// and are cached; a corrupt column surfaces when touched.
type DocValuesReader struct {
	segment string
	data    store.IndexInput
	entries map[int32]docValuesEntry

	mu     sync.Mutex
	loaded map[int32]*NumericDocValues
}

// OpenDocValuesReader reads the doc-values metadata and opens the data file.
func OpenDocValuesReader(dir *store.Directory, segment string) (*DocValuesReader, error) {
	meta, err := dir.OpenInput(seginfo.FileName(segment, DocValuesMetaExtension), store.IOContextReadOnce)
	if err != nil {
		return nil, err
	}
	defer func() { _ = meta.Close() }()

	codec, err := meta.ReadString()
	if err != nil {
		return nil, err
	}
	if codec != docValuesMetaCodec {
		return nil, errors.NewIndexError(nil, errors.ErrorCodeCorrupted,
			"Doc-values meta codec mismatch").WithSegment(segment).WithDetail("codec", codec)
	}
	version, err := meta.ReadInt()
	if err != nil {
		return nil, err
	}
	if version != docValuesVersion {
		return nil, errors.NewIndexError(nil, errors.ErrorCodeCorrupted,
			"Unsupported doc-values version").WithSegment(segment).WithDetail("version", version)
	}

	remaining := meta.Length() - meta.FilePointer()
	if remaining%docValuesMetaEntrySz != 0 {
		return nil, errors.NewIndexError(nil, errors.ErrorCodeCorrupted,
			"Doc-values meta has a partial entry").WithSegment(segment).
			WithDetail("remaining", remaining)
	}

	entries := make(map[int32]docValuesEntry, remaining/docValuesMetaEntrySz)
	for i := int64(0); i < remaining/docValuesMetaEntrySz; i++ {
		fieldNumber, err := meta.ReadInt()
		if err != nil {
			return nil, err
		}
		dataOffset, err := meta.ReadLong()
		if err != nil {
			return nil, err
		}
		docCount, err := meta.ReadInt()
		if err != nil {
			return nil, err
		}
		nt, err := meta.ReadByte()
		if err != nil {
			return nil, err
		}
		entries[fieldNumber] = docValuesEntry{
			fieldNumber: fieldNumber,
			dataOffset:  dataOffset,
			docCount:    docCount,
			numericType: NumericType(nt),
		}
	}

	data, err := dir.OpenInput(seginfo.FileName(segment, DocValuesDataExtension), store.IOContextRead)
	if err != nil {
		return nil, err
	}

	return &DocValuesReader{
		segment: segment,
		data:    data,
		entries: entries,
		loaded:  make(map[int32]*NumericDocValues),
	}, nil
}

// Numeric returns the column for the field, or nil when the field has no
// doc values.
func (dr *DocValuesReader) Numeric(fi *FieldInfo) (*NumericDocValues, error) {
	if fi == nil || !fi.HasDocValues {
		return nil, nil
	}

	dr.mu.Lock()
	defer dr.mu.Unlock()

	if dv, ok := dr.loaded[fi.Number]; ok {
		return dv, nil
	}
	entry, ok := dr.entries[fi.Number]
	if !ok {
		return nil, errors.NewIndexError(nil, errors.ErrorCodeCorrupted,
			"Field declares doc values but the meta has no entry").
			WithSegment(dr.segment).WithField(fi.Name)
	}

	slice, err := dr.data.Slice(fi.Name+" doc values", entry.dataOffset, int64(entry.docCount)*8)
	if err != nil {
		return nil, err
	}
	defer func() { _ = slice.Close() }()

	values := make([]int64, entry.docCount)
	for i := range values {
		v, err := slice.ReadLong()
		if err != nil {
			return nil, err
		}
		values[i] = v
	}

	dv := &NumericDocValues{values: values, numericType: entry.numericType}
	dr.loaded[fi.Number] = dv
	return dv, nil
}

// Close releases the data input.
func (dr *DocValuesReader) Close() error {
	return dr.data.Close()
}
