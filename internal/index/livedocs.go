package index

import (
	"encoding/binary"

	"github.com/iamNilotpal/diagon/internal/store"
	"github.com/iamNilotpal/diagon/internal/util"
	"github.com/iamNilotpal/diagon/pkg/errors"
	"github.com/iamNilotpal/diagon/pkg/seginfo"
)

const (
	liveDocsCodecName = "DiagonLiveDocs"
	liveDocsVersion   = int32(1)

	// LiveDocsExtension is the live-docs file extension.
	LiveDocsExtension = "liv"
)

// WriteLiveDocs writes the per-segment deletion bitmap: bit=1 means live.
// Ghost bits past maxDoc are zero by FixedBitSet invariant. Words are stored
// little-endian.
func WriteLiveDocs(dir *store.Directory, segment string, liveDocs *util.FixedBitSet, delCount int) error {
	out, err := dir.CreateOutput(seginfo.FileName(segment, LiveDocsExtension))
	if err != nil {
		return err
	}

	err = func() error {
		if err := out.WriteString(liveDocsCodecName); err != nil {
			return err
		}
		if err := out.WriteVInt(liveDocsVersion); err != nil {
			return err
		}
		if err := out.WriteVInt(int32(liveDocs.Len())); err != nil {
			return err
		}
		if err := out.WriteVInt(int32(delCount)); err != nil {
			return err
		}
		var scratch [8]byte
		for _, w := range liveDocs.Words() {
			binary.LittleEndian.PutUint64(scratch[:], w)
			if err := out.WriteBytes(scratch[:]); err != nil {
				return err
			}
		}
		return nil
	}()
	if err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// ReadLiveDocs reads the segment's live-docs bitmap, or returns (nil, 0, nil)
// when the segment has no live-docs file, meaning all docs are live.
func ReadLiveDocs(dir *store.Directory, segment string, maxDoc int) (*util.FixedBitSet, int, error) {
	fileName := seginfo.FileName(segment, LiveDocsExtension)
	if !dir.FileExists(fileName) {
		return nil, 0, nil
	}

	in, err := dir.OpenInput(fileName, store.IOContextReadOnce)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = in.Close() }()

	codec, err := in.ReadString()
	if err != nil {
		return nil, 0, err
	}
	if codec != liveDocsCodecName {
		return nil, 0, errors.NewIndexError(nil, errors.ErrorCodeCorrupted,
			"Live-docs codec mismatch").WithSegment(segment).WithDetail("codec", codec)
	}
	version, err := in.ReadVInt()
	if err != nil {
		return nil, 0, err
	}
	if version != liveDocsVersion {
		return nil, 0, errors.NewIndexError(nil, errors.ErrorCodeCorrupted,
			"Unsupported live-docs version").WithSegment(segment).WithDetail("version", version)
	}

	numDocs, err := in.ReadVInt()
	if err != nil {
		return nil, 0, err
	}
	if int(numDocs) != maxDoc {
		return nil, 0, errors.NewIndexError(nil, errors.ErrorCodeCorrupted,
			"Live-docs length mismatch").WithSegment(segment).
			WithDetail("declared", numDocs).WithDetail("maxDoc", maxDoc)
	}
	delCount, err := in.ReadVInt()
	if err != nil {
		return nil, 0, err
	}

	numWords := util.Bits2Words(maxDoc)
	words := make([]uint64, numWords)
	var scratch [8]byte
	for i := 0; i < numWords; i++ {
		if err := in.ReadBytes(scratch[:]); err != nil {
			return nil, 0, err
		}
		words[i] = binary.LittleEndian.Uint64(scratch[:])
	}

	bs := util.FixedBitSetFromWords(words, maxDoc)
	live := bs.Cardinality()
	if live+int(delCount) != maxDoc {
		return nil, 0, errors.NewIndexError(nil, errors.ErrorCodeCorrupted,
			"Live-docs delCount disagrees with bitmap").WithSegment(segment).
			WithDetail("declaredDeleted", delCount).WithDetail("live", live)
	}
	return bs, int(delCount), nil
}
