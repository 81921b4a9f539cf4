package store

import (
	"io"
	"os"

	"github.com/iamNilotpal/diagon/pkg/errors"
)

const bufferedReadSize = 4096

// BufferedInput is the degraded IndexInput used when memory mapping fails
// and the directory was configured with fallback. It keeps a small read
// buffer over positional reads; reads go through pread so clones never
// contend on a shared file position.
type BufferedInput struct {
	path string
	file *os.File

	off     int64 // absolute offset of the live view
	viewLen int64
	pos     int64

	buf      []byte
	bufStart int64 // view-relative position of buf[0]

	// owner marks the directory-opened input whose Close releases the
	// descriptor. Clones and slices are borrowed views whose validity is
	// bounded by the owning segment reader's refcount.
	owner  bool
	closed bool
}

// OpenBufferedInput opens path for buffered positional reads.
func OpenBufferedInput(path string) (*BufferedInput, error) {
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
	return &BufferedInput{
		path:    path,
		file:    f,
		viewLen: info.Size(),
		owner:   true,
	}, nil
}

func (in *BufferedInput) Length() int64      { return in.viewLen }
func (in *BufferedInput) FilePointer() int64 { return in.pos }

func (in *BufferedInput) Seek(pos int64) error {
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

func (in *BufferedInput) fill() error {
	want := in.viewLen - in.pos
	if want <= 0 {
		return errEndOfInput("read", in.pos, in.viewLen)
	}
	if want > bufferedReadSize {
		want = bufferedReadSize
	}
	if in.buf == nil {
		in.buf = make([]byte, bufferedReadSize)
	}
	n, err := in.file.ReadAt(in.buf[:want], in.off+in.pos)
	if n == 0 && err != nil {
		if err == io.EOF {
			return errEndOfInput("read", in.pos, in.viewLen)
		}
		return errors.NewStoreError(err, errors.ErrorCodeIO,
			"Positional read failed").WithPath(in.path).WithOffset(in.pos)
	}
	in.buf = in.buf[:n]
	in.bufStart = in.pos
	return nil
}

func (in *BufferedInput) ReadByte() (byte, error) {
	if in.pos >= in.viewLen {
		return 0, errEndOfInput("readByte", in.pos, in.viewLen)
	}
	rel := in.pos - in.bufStart
	if in.buf == nil || rel < 0 || rel >= int64(len(in.buf)) {
		if err := in.fill(); err != nil {
			return 0, err
		}
		rel = 0
	}
	b := in.buf[rel]
	in.pos++
	return b, nil
}

func (in *BufferedInput) ReadBytes(buf []byte) error {
	if in.pos+int64(len(buf)) > in.viewLen {
		return errEndOfInput("readBytes", in.pos, in.viewLen)
	}
	// Serve what the buffer holds, then read the rest positionally.
	written := 0
	rel := in.pos - in.bufStart
	if in.buf != nil && rel >= 0 && rel < int64(len(in.buf)) {
		n := copy(buf, in.buf[rel:])
		written = n
		in.pos += int64(n)
	}
	for written < len(buf) {
		n, err := in.file.ReadAt(buf[written:], in.off+in.pos)
		if n == 0 && err != nil {
			return errors.NewStoreError(err, errors.ErrorCodeIO,
				"Positional read failed").WithPath(in.path).WithOffset(in.pos)
		}
		written += n
		in.pos += int64(n)
	}
	return nil
}

func (in *BufferedInput) ReadInt() (int32, error) {
	var b [4]byte
	if err := in.ReadBytes(b[:]); err != nil {
		return 0, err
	}
	return int32(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])), nil
}

func (in *BufferedInput) ReadLong() (int64, error) {
	hi, err := in.ReadInt()
	if err != nil {
		return 0, err
	}
	lo, err := in.ReadInt()
	if err != nil {
		return 0, err
	}
	return int64(hi)<<32 | int64(uint32(lo)), nil
}

func (in *BufferedInput) ReadVInt() (int32, error) {
	return decodeVIntFrom(in.ReadByte)
}

func (in *BufferedInput) ReadVLong() (int64, error) {
	return decodeVLongFrom(in.ReadByte)
}

func (in *BufferedInput) ReadString() (string, error) {
	return readStringFrom(in)
}

func (in *BufferedInput) Clone() IndexInput {
	return &BufferedInput{
		path:    in.path,
		file:    in.file,
		off:     in.off,
		viewLen: in.viewLen,
	}
}

func (in *BufferedInput) Slice(desc string, offset, length int64) (IndexInput, error) {
	if offset < 0 || length < 0 || offset+length > in.viewLen {
		return nil, errors.NewStoreError(nil, errors.ErrorCodeEndOfInput,
			"Slice out of bounds: "+desc).
			WithPath(in.path).WithOffset(offset).WithLength(length)
	}
	return &BufferedInput{
		path:    in.path,
		file:    in.file,
		off:     in.off + offset,
		viewLen: length,
	}, nil
}

func (in *BufferedInput) Close() error {
	if in.closed || !in.owner {
		return nil
	}
	in.closed = true
	return in.file.Close()
}
