package store

import (
	"bufio"
	"encoding/binary"
	"os"

	"github.com/iamNilotpal/diagon/pkg/errors"
)

// IndexOutput is the append-only writer for segment files. All fixed-width
// integers are big-endian; variable-length integers use 7-bit groups with the
// high bit as continuation.
type IndexOutput struct {
	path   string
	file   *os.File
	w      *bufio.Writer
	offset int64
	closed bool
}

// CreateOutput creates (or truncates) the file at path for writing.
func CreateOutput(path string) (*IndexOutput, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.NewStoreError(err, errors.ErrorCodeIO,
			"Failed to create output file").WithPath(path)
	}
	return &IndexOutput{path: path, file: f, w: bufio.NewWriter(f)}, nil
}

// FilePointer returns the number of bytes written so far.
func (out *IndexOutput) FilePointer() int64 { return out.offset }

func (out *IndexOutput) WriteByte(b byte) error {
	if err := out.w.WriteByte(b); err != nil {
		return out.ioErr(err)
	}
	out.offset++
	return nil
}

func (out *IndexOutput) WriteBytes(buf []byte) error {
	n, err := out.w.Write(buf)
	out.offset += int64(n)
	if err != nil {
		return out.ioErr(err)
	}
	return nil
}

func (out *IndexOutput) WriteInt(v int32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	return out.WriteBytes(b[:])
}

func (out *IndexOutput) WriteLong(v int64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return out.WriteBytes(b[:])
}

func (out *IndexOutput) WriteVInt(v int32) error {
	u := uint32(v)
	for u >= 0x80 {
		if err := out.WriteByte(byte(u) | 0x80); err != nil {
			return err
		}
		u >>= 7
	}
	return out.WriteByte(byte(u))
}

func (out *IndexOutput) WriteVLong(v int64) error {
	u := uint64(v)
	for u >= 0x80 {
		if err := out.WriteByte(byte(u) | 0x80); err != nil {
			return err
		}
		u >>= 7
	}
	return out.WriteByte(byte(u))
}

func (out *IndexOutput) WriteString(s string) error {
	if err := out.WriteVInt(int32(len(s))); err != nil {
		return err
	}
	return out.WriteBytes([]byte(s))
}

// Close flushes, syncs and closes the file. Safe to call twice.
func (out *IndexOutput) Close() error {
	if out.closed {
		return nil
	}
	out.closed = true
	if err := out.w.Flush(); err != nil {
		_ = out.file.Close()
		return out.ioErr(err)
	}
	if err := out.file.Sync(); err != nil {
		_ = out.file.Close()
		return out.ioErr(err)
	}
	return out.file.Close()
}

func (out *IndexOutput) ioErr(err error) error {
	return errors.NewStoreError(err, errors.ErrorCodeIO,
		"Write failed").WithPath(out.path).WithOffset(out.offset)
}
