// Package store provides random access to segment files: a chunked
// memory-mapped input with cheap clone/slice, a buffered fallback, the
// write-side output, and the directory that ties them to a filesystem path.
package store

import (
	"github.com/iamNilotpal/diagon/pkg/errors"
)

// IndexInput is a random-access cursor over one segment file or a slice of
// it. Implementations are single-owner: a cursor is used by one goroutine at
// a time, and concurrency is achieved by cloning.
type IndexInput interface {
	// ReadByte reads the byte at the cursor and advances it.
	ReadByte() (byte, error)

	// ReadBytes fills buf from the cursor and advances it. Reading past the
	// live view fails with an end-of-input error and leaves the cursor
	// position undefined.
	ReadBytes(buf []byte) error

	// ReadInt reads a big-endian 32-bit integer.
	ReadInt() (int32, error)

	// ReadLong reads a big-endian 64-bit integer.
	ReadLong() (int64, error)

	// ReadVInt reads a variable-length 32-bit integer: 7-bit groups,
	// LSB-first, high bit set on continuation, at most 5 bytes.
	ReadVInt() (int32, error)

	// ReadVLong reads a variable-length 64-bit integer, at most 9 bytes.
	ReadVLong() (int64, error)

	// ReadString reads a VInt length followed by that many UTF-8 bytes.
	ReadString() (string, error)

	// Seek positions the cursor. Bounds-checked against the live view.
	Seek(pos int64) error

	// FilePointer returns the cursor position relative to the live view.
	FilePointer() int64

	// Length returns the live view length in bytes.
	Length() int64

	// Clone returns an independent cursor over the same bytes, positioned
	// at 0. No new file mapping is created.
	Clone() IndexInput

	// Slice restricts the view to [offset, offset+length) of this input.
	// Slicing a slice composes additively; the slice position starts at 0.
	Slice(desc string, offset, length int64) (IndexInput, error)

	// Close releases this cursor's share of the underlying resources.
	Close() error
}

// decodeVIntFrom decodes a VInt using the given byte source. Shared by the
// buffered input and the cross-chunk slow path of the mapped input.
func decodeVIntFrom(readByte func() (byte, error)) (int32, error) {
	var value int32
	var shift uint
	for i := 0; i < 5; i++ {
		b, err := readByte()
		if err != nil {
			return 0, err
		}
		value |= int32(b&0x7f) << shift
		if b&0x80 == 0 {
			return value, nil
		}
		shift += 7
	}
	return 0, errors.NewStoreError(nil, errors.ErrorCodeCorrupted,
		"Malformed VInt: more than 5 continuation bytes")
}

// decodeVLongFrom decodes a VLong (at most 9 bytes) from the byte source.
func decodeVLongFrom(readByte func() (byte, error)) (int64, error) {
	var value int64
	var shift uint
	for i := 0; i < 9; i++ {
		b, err := readByte()
		if err != nil {
			return 0, err
		}
		value |= int64(b&0x7f) << shift
		if b&0x80 == 0 {
			return value, nil
		}
		shift += 7
	}
	return 0, errors.NewStoreError(nil, errors.ErrorCodeCorrupted,
		"Malformed VLong: more than 9 continuation bytes")
}

// readStringFrom reads a VInt-prefixed UTF-8 string through the generic
// interface.
func readStringFrom(in IndexInput) (string, error) {
	n, err := in.ReadVInt()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", errors.NewStoreError(nil, errors.ErrorCodeCorrupted,
			"Malformed string: negative length").WithDetail("length", n)
	}
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if err := in.ReadBytes(buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func errEndOfInput(op string, pos, length int64) error {
	return errors.NewStoreError(nil, errors.ErrorCodeEndOfInput,
		"Read past end of input during "+op).WithOffset(pos).WithLength(length)
}
