package index

import (
	"github.com/iamNilotpal/diagon/internal/store"
	"github.com/iamNilotpal/diagon/pkg/errors"
	"github.com/iamNilotpal/diagon/pkg/seginfo"
)

const (
	storedFieldsCodecName = "DiagonStoredFields"
	storedFieldsVersion   = int32(1)

	// StoredFieldsDataExtension / StoredFieldsIndexExtension are the stored
	// fields file extensions.
	StoredFieldsDataExtension  = "fdt"
	StoredFieldsIndexExtension = "fdx"
)

// Stored field type codes.
const (
	storedTypeString = byte(0)
	storedTypeInt    = byte(1)
	storedTypeLong   = byte(2)
)

// StoredFieldsReader retrieves the stored field values of one document. The
// .fdx index declares a VLong offset into .fdt per document; each .fdt record
// is a VInt field count followed by (fieldNumber, typeCode, value) triples.
type StoredFieldsReader struct {
	segment string
	data    store.IndexInput
	infos   *FieldInfos
	offsets []int64
}

// OpenStoredFieldsReader opens and validates both stored-fields files and
// loads the per-document offsets.
func OpenStoredFieldsReader(dir *store.Directory, segment string, infos *FieldInfos) (*StoredFieldsReader, error) {
	idx, err := dir.OpenInput(seginfo.FileName(segment, StoredFieldsIndexExtension), store.IOContextReadOnce)
	if err != nil {
		return nil, err
	}
	defer func() { _ = idx.Close() }()

	if err := verifyStoredHeader(idx, segment); err != nil {
		return nil, err
	}
	numDocs, err := idx.ReadVInt()
	if err != nil {
		return nil, err
	}
	if numDocs < 0 {
		return nil, errors.NewIndexError(nil, errors.ErrorCodeCorrupted,
			"Negative stored-fields doc count").WithSegment(segment)
	}
	offsets := make([]int64, numDocs)
	for i := range offsets {
		if offsets[i], err = idx.ReadVLong(); err != nil {
			return nil, err
		}
	}

	data, err := dir.OpenInput(seginfo.FileName(segment, StoredFieldsDataExtension), store.IOContextRead)
	if err != nil {
		return nil, err
	}
	if err := verifyStoredHeader(data, segment); err != nil {
		_ = data.Close()
		return nil, err
	}

	return &StoredFieldsReader{segment: segment, data: data, infos: infos, offsets: offsets}, nil
}

func verifyStoredHeader(in store.IndexInput, segment string) error {
	codec, err := in.ReadString()
	if err != nil {
		return err
	}
	if codec != storedFieldsCodecName {
		return errors.NewIndexError(nil, errors.ErrorCodeCorrupted,
			"Stored-fields codec mismatch").WithSegment(segment).WithDetail("codec", codec)
	}
	version, err := in.ReadVInt()
	if err != nil {
		return err
	}
	if version != storedFieldsVersion {
		return errors.NewIndexError(nil, errors.ErrorCodeCorrupted,
			"Unsupported stored-fields version").WithSegment(segment).WithDetail("version", version)
	}
	return nil
}

// Document returns the stored fields of docID keyed by field name. Values
// are string, int32 or int64.
func (sr *StoredFieldsReader) Document(docID int) (map[string]any, error) {
	if docID < 0 || docID >= len(sr.offsets) {
		return nil, errors.NewValidationError(nil, errors.ErrorCodeInvalidInput,
			"Document ID out of range").WithProvided(docID).
			WithDetail("numDocs", len(sr.offsets))
	}

	in := sr.data.Clone()
	if err := in.Seek(sr.offsets[docID]); err != nil {
		return nil, err
	}

	numFields, err := in.ReadVInt()
	if err != nil {
		return nil, err
	}

	fields := make(map[string]any, numFields)
	for i := int32(0); i < numFields; i++ {
		fieldNumber, err := in.ReadVInt()
		if err != nil {
			return nil, err
		}
		fi := sr.infos.ByNumber(fieldNumber)
		if fi == nil {
			return nil, errors.NewIndexError(nil, errors.ErrorCodeCorrupted,
				"Stored field references an unknown field number").
				WithSegment(sr.segment).WithDetail("fieldNumber", fieldNumber)
		}

		typeCode, err := in.ReadByte()
		if err != nil {
			return nil, err
		}
		switch typeCode {
		case storedTypeString:
			v, err := in.ReadString()
			if err != nil {
				return nil, err
			}
			fields[fi.Name] = v
		case storedTypeInt:
			v, err := in.ReadVInt()
			if err != nil {
				return nil, err
			}
			fields[fi.Name] = v
		case storedTypeLong:
			v, err := in.ReadVLong()
			if err != nil {
				return nil, err
			}
			fields[fi.Name] = v
		default:
			return nil, errors.NewIndexError(nil, errors.ErrorCodeCorrupted,
				"Unknown stored field type code").
				WithSegment(sr.segment).WithField(fi.Name).WithDetail("typeCode", typeCode)
		}
	}
	return fields, nil
}

// NumDocs returns the stored-fields document count.
func (sr *StoredFieldsReader) NumDocs() int { return len(sr.offsets) }

// Close releases the data input.
func (sr *StoredFieldsReader) Close() error { return sr.data.Close() }
