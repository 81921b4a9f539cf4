package index

import (
	"github.com/iamNilotpal/diagon/internal/store"
	"github.com/iamNilotpal/diagon/pkg/errors"
	"github.com/iamNilotpal/diagon/pkg/seginfo"
)

// Segments-file constants.
const (
	segmentsMagic   = int32(0x3fd76c17)
	segmentsVersion = int32(1)

	// DefaultCodecName names the codec all segments are written with.
	DefaultCodecName = "Diagon104"
)

// SegmentInfo holds the metadata for one immutable segment: name, doc count,
// codec, file set, diagnostics and the field schema. Deletions live in a
// separate, replaceable live-docs file; DelCount mirrors it at commit time.
type SegmentInfo struct {
	Name        string
	MaxDoc      int
	CodecName   string
	Files       []string
	Diagnostics map[string]string
	SizeInBytes int64
	DelCount    int
	FieldInfos  *FieldInfos
}

// HasDeletions reports whether any doc of the segment is deleted.
func (si *SegmentInfo) HasDeletions() bool { return si.DelCount > 0 }

// NumDocs returns the live doc count.
func (si *SegmentInfo) NumDocs() int { return si.MaxDoc - si.DelCount }

// AddFile records a file as belonging to the segment.
func (si *SegmentInfo) AddFile(name string) {
	for _, f := range si.Files {
		if f == name {
			return
		}
	}
	si.Files = append(si.Files, name)
}

// SegmentInfos is one commit point: the ordered segment list published under
// a generation.
type SegmentInfos struct {
	Generation int64
	Segments   []*SegmentInfo
}

// TotalMaxDoc sums maxDoc over all segments.
func (sis *SegmentInfos) TotalMaxDoc() int {
	total := 0
	for _, si := range sis.Segments {
		total += si.MaxDoc
	}
	return total
}

// Write publishes the commit under the next generation: the file is written
// to a temporary name and renamed into place so a partially written commit is
// never observed.
func (sis *SegmentInfos) Write(dir *store.Directory) error {
	sis.Generation++
	fileName := seginfo.SegmentsFileName(sis.Generation)
	tmpName := fileName + ".tmp"

	out, err := dir.CreateOutput(tmpName)
	if err != nil {
		return err
	}

	if err := sis.writeTo(out); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return dir.Rename(tmpName, fileName)
}

func (sis *SegmentInfos) writeTo(out *store.IndexOutput) error {
	if err := out.WriteInt(segmentsMagic); err != nil {
		return err
	}
	if err := out.WriteInt(segmentsVersion); err != nil {
		return err
	}
	if err := out.WriteLong(sis.Generation); err != nil {
		return err
	}
	if err := out.WriteInt(int32(len(sis.Segments))); err != nil {
		return err
	}
	for _, si := range sis.Segments {
		if err := out.WriteString(si.Name); err != nil {
			return err
		}
		if err := out.WriteInt(int32(si.MaxDoc)); err != nil {
			return err
		}
		if err := out.WriteString(si.CodecName); err != nil {
			return err
		}
		if err := out.WriteInt(int32(len(si.Files))); err != nil {
			return err
		}
		for _, f := range si.Files {
			if err := out.WriteString(f); err != nil {
				return err
			}
		}
		if err := out.WriteInt(int32(len(si.Diagnostics))); err != nil {
			return err
		}
		for k, v := range si.Diagnostics {
			if err := out.WriteString(k); err != nil {
				return err
			}
			if err := out.WriteString(v); err != nil {
				return err
			}
		}
		if err := out.WriteLong(si.SizeInBytes); err != nil {
			return err
		}
		if err := out.WriteInt(int32(si.DelCount)); err != nil {
			return err
		}
		if err := writeFieldInfos(out, si.FieldInfos); err != nil {
			return err
		}
	}
	return nil
}

// ReadSegmentInfos reads the named commit file.
func ReadSegmentInfos(dir *store.Directory, fileName string) (*SegmentInfos, error) {
	in, err := dir.OpenInput(fileName, store.IOContextReadOnce)
	if err != nil {
		return nil, err
	}
	defer func() { _ = in.Close() }()

	sis, err := readSegmentInfosFrom(in)
	if err != nil {
		if ie, ok := errors.AsIndexError(err); ok {
			ie.WithFileName(fileName)
		}
		return nil, err
	}
	return sis, nil
}

func readSegmentInfosFrom(in store.IndexInput) (*SegmentInfos, error) {
	magic, err := in.ReadInt()
	if err != nil {
		return nil, err
	}
	if magic != segmentsMagic {
		return nil, errors.NewIndexError(nil, errors.ErrorCodeCorrupted,
			"Segments file magic mismatch").WithDetail("magic", magic)
	}
	version, err := in.ReadInt()
	if err != nil {
		return nil, err
	}
	if version != segmentsVersion {
		return nil, errors.NewIndexError(nil, errors.ErrorCodeCorrupted,
			"Unsupported segments file version").WithDetail("version", version)
	}

	gen, err := in.ReadLong()
	if err != nil {
		return nil, err
	}
	count, err := in.ReadInt()
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, errors.NewIndexError(nil, errors.ErrorCodeCorrupted,
			"Negative segment count").WithDetail("count", count)
	}

	sis := &SegmentInfos{Generation: gen, Segments: make([]*SegmentInfo, 0, count)}
	for i := int32(0); i < count; i++ {
		si, err := readSegmentInfoFrom(in)
		if err != nil {
			return nil, err
		}
		sis.Segments = append(sis.Segments, si)
	}
	return sis, nil
}

func readSegmentInfoFrom(in store.IndexInput) (*SegmentInfo, error) {
	name, err := in.ReadString()
	if err != nil {
		return nil, err
	}
	maxDoc, err := in.ReadInt()
	if err != nil {
		return nil, err
	}
	if maxDoc < 0 {
		return nil, errors.NewIndexError(nil, errors.ErrorCodeCorrupted,
			"Negative maxDoc").WithSegment(name).WithDetail("maxDoc", maxDoc)
	}
	codec, err := in.ReadString()
	if err != nil {
		return nil, err
	}

	fileCount, err := in.ReadInt()
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, fileCount)
	for i := int32(0); i < fileCount; i++ {
		f, err := in.ReadString()
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}

	diagCount, err := in.ReadInt()
	if err != nil {
		return nil, err
	}
	diagnostics := make(map[string]string, diagCount)
	for i := int32(0); i < diagCount; i++ {
		k, err := in.ReadString()
		if err != nil {
			return nil, err
		}
		v, err := in.ReadString()
		if err != nil {
			return nil, err
		}
		diagnostics[k] = v
	}

	size, err := in.ReadLong()
	if err != nil {
		return nil, err
	}
	delCount, err := in.ReadInt()
	if err != nil {
		return nil, err
	}
	if delCount < 0 || delCount > maxDoc {
		return nil, errors.NewIndexError(nil, errors.ErrorCodeCorrupted,
			"delCount out of range").WithSegment(name).
			WithDetail("delCount", delCount).WithDetail("maxDoc", maxDoc)
	}

	fieldInfos, err := readFieldInfos(in)
	if err != nil {
		return nil, err
	}

	return &SegmentInfo{
		Name:        name,
		MaxDoc:      int(maxDoc),
		CodecName:   codec,
		Files:       files,
		Diagnostics: diagnostics,
		SizeInBytes: size,
		DelCount:    int(delCount),
		FieldInfos:  fieldInfos,
	}, nil
}

// ReadLatestCommit locates the highest-generation segments file and reads it.
func ReadLatestCommit(dir *store.Directory) (*SegmentInfos, error) {
	gen, err := seginfo.LatestGeneration(dir.Path())
	if err != nil {
		return nil, errors.NewStoreError(err, errors.ErrorCodeIO,
			"Failed to scan for commit files").WithPath(dir.Path())
	}
	if gen < 0 {
		return nil, errors.NewStoreError(nil, errors.ErrorCodeFileNotFound,
			"No segments file found").WithPath(dir.Path())
	}
	return ReadSegmentInfos(dir, seginfo.SegmentsFileName(gen))
}
