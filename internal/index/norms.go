package index

import (
	"sync"

	"github.com/iamNilotpal/diagon/internal/store"
	"github.com/iamNilotpal/diagon/pkg/errors"
	"github.com/iamNilotpal/diagon/pkg/seginfo"
)

const (
	normsMetaCodec   = "NORMS_META"
	normsVersion     = int32(1)
	normsMetaEntrySz = 4 + 8 + 4 // fieldNumber + dataOffset + docCount

	// NormsMetaExtension / NormsDataExtension are the norms file extensions.
	NormsMetaExtension = "nvm"
	NormsDataExtension = "nvd"
)

type normsEntry struct {
	fieldNumber int32
	dataOffset  int64
	docCount    int32
}

// NormsReader decodes the per-field, one-byte-per-doc length normalization
// factors. Field data is loaded on first touch and cached. The fields reader
// touches the norms of every indexed field while it builds impacts at
// segment open, so a corrupt or truncated norms column fails that open.
type NormsReader struct {
	segment string
	data    store.IndexInput
	entries map[int32]normsEntry

	mu     sync.Mutex
	loaded map[int32][]byte
}

// OpenNormsReader reads the norms metadata and opens the data file. Segments
// with no norms-bearing fields have no norms files; callers skip this call
// for them.
func OpenNormsReader(dir *store.Directory, segment string) (*NormsReader, error) {
	meta, err := dir.OpenInput(seginfo.FileName(segment, NormsMetaExtension), store.IOContextReadOnce)
	if err != nil {
		return nil, err
	}
	defer func() { _ = meta.Close() }()

	codec, err := meta.ReadString()
	if err != nil {
		return nil, err
	}
	if codec != normsMetaCodec {
		return nil, errors.NewIndexError(nil, errors.ErrorCodeCorrupted,
			"Norms meta codec mismatch").WithSegment(segment).WithDetail("codec", codec)
	}
	version, err := meta.ReadInt()
	if err != nil {
		return nil, err
	}
	if version != normsVersion {
		return nil, errors.NewIndexError(nil, errors.ErrorCodeCorrupted,
			"Unsupported norms version").WithSegment(segment).WithDetail("version", version)
	}

	// Entries are fixed-width; the remainder of the file determines the count.
	remaining := meta.Length() - meta.FilePointer()
	if remaining%normsMetaEntrySz != 0 {
		return nil, errors.NewIndexError(nil, errors.ErrorCodeCorrupted,
			"Norms meta has a partial entry").WithSegment(segment).
			WithDetail("remaining", remaining)
	}

	entries := make(map[int32]normsEntry, remaining/normsMetaEntrySz)
	for i := int64(0); i < remaining/normsMetaEntrySz; i++ {
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
		entries[fieldNumber] = normsEntry{
			fieldNumber: fieldNumber,
			dataOffset:  dataOffset,
			docCount:    docCount,
		}
	}

	data, err := dir.OpenInput(seginfo.FileName(segment, NormsDataExtension), store.IOContextRead)
	if err != nil {
		return nil, err
	}

	return &NormsReader{
		segment: segment,
		data:    data,
		entries: entries,
		loaded:  make(map[int32][]byte),
	}, nil
}

// Norms returns the norm bytes for the field, indexed by local docID, or nil
// when the field carries no norms.
func (nr *NormsReader) Norms(fi *FieldInfo) ([]byte, error) {
	if fi == nil || !fi.HasNorms {
		return nil, nil
	}

	nr.mu.Lock()
	defer nr.mu.Unlock()

	if norms, ok := nr.loaded[fi.Number]; ok {
		return norms, nil
	}
	entry, ok := nr.entries[fi.Number]
	if !ok {
		return nil, errors.NewIndexError(nil, errors.ErrorCodeCorrupted,
			"Field declares norms but the norms meta has no entry").
			WithSegment(nr.segment).WithField(fi.Name)
	}

	slice, err := nr.data.Slice(fi.Name+" norms", entry.dataOffset, int64(entry.docCount))
	if err != nil {
		return nil, err
	}
	defer func() { _ = slice.Close() }()

	norms := make([]byte, entry.docCount)
	if err := slice.ReadBytes(norms); err != nil {
		return nil, err
	}
	nr.loaded[fi.Number] = norms
	return norms, nil
}

// Close releases the data input.
func (nr *NormsReader) Close() error {
	return nr.data.Close()
}
