package store

import (
	"encoding/binary"
	"os"

	"github.com/iamNilotpal/diagon/pkg/errors"
)

// chunkSet bundles the mapped chunks with the release hook that unmaps every
// chunk and closes the descriptor. Exactly one input — the directory-opened
// owner — runs the hook, once; clones and slices reference the set without
// taking ownership.
type chunkSet struct {
	chunks  [][]byte
	release func() error
}

func (cs *chunkSet) close() error {
	if cs.release != nil {
		return cs.release()
	}
	return nil
}

// MMapInput is a memory-mapped IndexInput. The file is mapped as an ordered
// array of chunks of size 1<<chunkPower; the last chunk may be partial and
// empty files map to zero chunks. Clones and slices share the chunk set.
type MMapInput struct {
	path       string
	chunkPower uint
	chunkMask  int64

	set *chunkSet

	off     int64 // absolute offset of the live view within the file
	viewLen int64 // live view length
	pos     int64 // cursor, relative to the view

	// owner marks the directory-opened input whose Close releases the
	// mapping. Clones and slices are borrowed views whose validity is
	// bounded by the owning segment reader's refcount; closing them is a
	// no-op.
	owner  bool
	closed bool
}

// OpenMMapInput maps the file at path. The advice is forwarded per chunk and
// preload issues a best-effort WILLNEED over every chunk.
func OpenMMapInput(path string, chunkPower int, preload bool, advice ReadAdvice) (*MMapInput, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewStoreError(err, errors.ErrorCodeFileNotFound,
				"Segment file not found").WithPath(path)
		}
		return nil, errors.NewStoreError(err, errors.ErrorCodeIO,
			"Failed to open segment file").WithPath(path)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.NewStoreError(err, errors.ErrorCodeIO,
			"Failed to stat segment file").WithPath(path)
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, errors.NewStoreError(nil, errors.ErrorCodeNotRegularFile,
			"Not a regular file").WithPath(path)
	}

	length := info.Size()
	chunks, release, err := mapChunks(f, length, chunkPower, advice, preload)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	return &MMapInput{
		path:       path,
		chunkPower: uint(chunkPower),
		chunkMask:  (int64(1) << uint(chunkPower)) - 1,
		set:        &chunkSet{chunks: chunks, release: release},
		off:        0,
		viewLen:    length,
		pos:        0,
		owner:      true,
	}, nil
}

func (in *MMapInput) Length() int64      { return in.viewLen }
func (in *MMapInput) FilePointer() int64 { return in.pos }

func (in *MMapInput) Seek(pos int64) error {
	if pos < 0 {
		return errors.NewValidationError(nil, errors.ErrorCodeInvalidInput,
			"Negative seek position").WithProvided(pos)
	}
	if pos > in.viewLen {
		return errEndOfInput("seek", pos, in.viewLen)
	}
	in.pos = pos
	return nil
}

func (in *MMapInput) ReadByte() (byte, error) {
	if in.pos >= in.viewLen {
		return 0, errEndOfInput("readByte", in.pos, in.viewLen)
	}
	abs := in.off + in.pos
	b := in.set.chunks[abs>>in.chunkPower][abs&in.chunkMask]
	in.pos++
	return b, nil
}

func (in *MMapInput) ReadBytes(buf []byte) error {
	need := int64(len(buf))
	if in.pos+need > in.viewLen {
		return errEndOfInput("readBytes", in.pos, in.viewLen)
	}

	written := 0
	for need > 0 {
		abs := in.off + in.pos
		idx := int(abs >> in.chunkPower)
		chunkOff := abs & in.chunkMask
		chunk := in.set.chunks[idx]
		avail := int64(len(chunk)) - chunkOff
		take := need
		if take > avail {
			take = avail
		}
		copy(buf[written:], chunk[chunkOff:chunkOff+take])
		written += int(take)
		in.pos += take
		need -= take

		// Consuming the tail of a chunk with more to read: hint the next
		// chunk in before the copy loop lands on it.
		if need > 0 && idx+1 < len(in.set.chunks) {
			prefetchChunk(in.set.chunks[idx+1])
		}
	}
	return nil
}

// direct returns a contiguous byte window of at least need bytes at the
// cursor, or nil when the cursor is near a chunk boundary or the view end.
func (in *MMapInput) direct(need int64) []byte {
	if in.pos+need > in.viewLen {
		return nil
	}
	abs := in.off + in.pos
	idx := int(abs >> in.chunkPower)
	chunkOff := abs & in.chunkMask
	chunk := in.set.chunks[idx]
	if int64(len(chunk))-chunkOff < need {
		return nil
	}
	return chunk[chunkOff:]
}

func (in *MMapInput) ReadInt() (int32, error) {
	if raw := in.direct(4); raw != nil {
		in.pos += 4
		return int32(binary.BigEndian.Uint32(raw)), nil
	}
	var buf [4]byte
	if err := in.ReadBytes(buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(buf[:])), nil
}

func (in *MMapInput) ReadLong() (int64, error) {
	if raw := in.direct(8); raw != nil {
		in.pos += 8
		return int64(binary.BigEndian.Uint64(raw)), nil
	}
	var buf [8]byte
	if err := in.ReadBytes(buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}

func (in *MMapInput) ReadVInt() (int32, error) {
	if raw := in.direct(5); raw != nil {
		var value int32
		var shift uint
		for i := 0; i < 5; i++ {
			b := raw[i]
			value |= int32(b&0x7f) << shift
			if b&0x80 == 0 {
				in.pos += int64(i + 1)
				return value, nil
			}
			shift += 7
		}
		return 0, errors.NewStoreError(nil, errors.ErrorCodeCorrupted,
			"Malformed VInt: more than 5 continuation bytes").WithPath(in.path)
	}
	return decodeVIntFrom(in.ReadByte)
}

func (in *MMapInput) ReadVLong() (int64, error) {
	if raw := in.direct(9); raw != nil {
		var value int64
		var shift uint
		for i := 0; i < 9; i++ {
			b := raw[i]
			value |= int64(b&0x7f) << shift
			if b&0x80 == 0 {
				in.pos += int64(i + 1)
				return value, nil
			}
			shift += 7
		}
		return 0, errors.NewStoreError(nil, errors.ErrorCodeCorrupted,
			"Malformed VLong: more than 9 continuation bytes").WithPath(in.path)
	}
	return decodeVLongFrom(in.ReadByte)
}

func (in *MMapInput) ReadString() (string, error) {
	return readStringFrom(in)
}

// Clone returns a new cursor over the same chunk set with position 0.
func (in *MMapInput) Clone() IndexInput {
	return &MMapInput{
		path:       in.path,
		chunkPower: in.chunkPower,
		chunkMask:  in.chunkMask,
		set:        in.set,
		off:        in.off,
		viewLen:    in.viewLen,
	}
}

// Slice restricts the live view to [offset, offset+length) of this view.
func (in *MMapInput) Slice(desc string, offset, length int64) (IndexInput, error) {
	if offset < 0 || length < 0 || offset+length > in.viewLen {
		return nil, errors.NewStoreError(nil, errors.ErrorCodeEndOfInput,
			"Slice out of bounds: "+desc).
			WithPath(in.path).WithOffset(offset).WithLength(length)
	}
	return &MMapInput{
		path:       in.path,
		chunkPower: in.chunkPower,
		chunkMask:  in.chunkMask,
		set:        in.set,
		off:        in.off + offset,
		viewLen:    length,
	}, nil
}

// ContiguousWindow returns the contiguous bytes following the cursor within
// the current chunk, bounded by the live view. Decoders consume from the
// returned slice and then reposition with Seek. Returns nil at the view end.
func (in *MMapInput) ContiguousWindow() []byte {
	rem := in.RemainingInChunk()
	if rem == 0 {
		return nil
	}
	abs := in.off + in.pos
	chunk := in.set.chunks[abs>>in.chunkPower]
	off := abs & in.chunkMask
	return chunk[off : off+rem]
}

// RemainingInChunk returns how many contiguous bytes follow the cursor within
// the current chunk (bounded by the view). Decoders use this to pick the
// contiguous fast path.
func (in *MMapInput) RemainingInChunk() int64 {
	if in.pos >= in.viewLen {
		return 0
	}
	abs := in.off + in.pos
	chunk := in.set.chunks[abs>>in.chunkPower]
	rem := int64(len(chunk)) - (abs & in.chunkMask)
	if left := in.viewLen - in.pos; left < rem {
		return left
	}
	return rem
}

func (in *MMapInput) Close() error {
	if in.closed || !in.owner {
		return nil
	}
	in.closed = true
	return in.set.close()
}
