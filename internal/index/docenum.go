package index

import (
	"github.com/iamNilotpal/diagon/internal/store"
	"github.com/iamNilotpal/diagon/pkg/errors"
)

// StreamVByte group size: one control byte carries the 2-bit byte-lengths of
// four little-endian values.
const streamVByteGroupSize = 4

// fastPathMinBytes gates the contiguous decode path: engaged only when at
// least this many input bytes remain in the current mmap chunk.
const fastPathMinBytes = 128

// blockDocEnum is the impacts-aware doc/freq cursor over the .doc stream.
// The stream is groups of 4 delta-encoded doc deltas interleaved with 4
// frequencies, each group StreamVByte-encoded, with a VInt tail for the last
// docFreq%4 postings. Deltas accumulate to absolute docIDs here, not in the
// decoder.
type blockDocEnum struct {
	in   store.IndexInput
	meta *TermMeta

	doc  int
	read int // postings consumed from the stream

	deltas [streamVByteGroupSize]uint32
	freqs  [streamVByteGroupSize]uint32
	bufPos int
	bufLen int

	scratch [1 + 4*streamVByteGroupSize]byte
}

func newBlockDocEnum(in store.IndexInput, meta *TermMeta) (*blockDocEnum, error) {
	if err := in.Seek(meta.docStartFP); err != nil {
		return nil, err
	}
	return &blockDocEnum{in: in, meta: meta, doc: -1}, nil
}

func (be *blockDocEnum) DocID() int  { return be.doc }
func (be *blockDocEnum) Cost() int64 { return int64(be.meta.DocFreq) }

func (be *blockDocEnum) Freq() (int, error) {
	return int(be.freqs[be.bufPos-1]), nil
}

func (be *blockDocEnum) NextDoc() (int, error) {
	if be.bufPos >= be.bufLen {
		if be.read >= be.meta.DocFreq {
			be.doc = NoMoreDocs
			return be.doc, nil
		}
		if err := be.refill(); err != nil {
			return 0, err
		}
	}

	delta := int(be.deltas[be.bufPos])
	if be.doc < 0 {
		be.doc = delta
	} else {
		be.doc += delta
	}
	be.bufPos++
	be.read++
	return be.doc, nil
}

func (be *blockDocEnum) Advance(target int) (int, error) {
	if target < 0 {
		return 0, errors.NewValidationError(nil, errors.ErrorCodeInvalidInput,
			"Negative advance target").WithProvided(target)
	}
	for be.doc < target {
		if _, err := be.NextDoc(); err != nil {
			return 0, err
		}
		if be.doc == NoMoreDocs {
			break
		}
	}
	return be.doc, nil
}

// refill decodes the next group of 4 (or the VInt tail) into the buffers.
func (be *blockDocEnum) refill() error {
	be.bufPos = 0
	remaining := be.meta.DocFreq - be.read

	if remaining >= streamVByteGroupSize {
		if mm, ok := be.in.(*store.MMapInput); ok {
			if win := mm.ContiguousWindow(); len(win) >= fastPathMinBytes {
				consumed, err := be.decodeGroupsFast(win)
				if err != nil {
					return err
				}
				return mm.Seek(mm.FilePointer() + int64(consumed))
			}
		}
		if err := decodeStreamVByte4(be.in, be.scratch[:], be.deltas[:]); err != nil {
			return err
		}
		if err := decodeStreamVByte4(be.in, be.scratch[:], be.freqs[:]); err != nil {
			return err
		}
		be.bufLen = streamVByteGroupSize
		return nil
	}

	// VInt tail: fewer than four postings remain.
	for i := 0; i < remaining; i++ {
		delta, err := be.in.ReadVInt()
		if err != nil {
			return err
		}
		freq, err := be.in.ReadVInt()
		if err != nil {
			return err
		}
		be.deltas[i] = uint32(delta)
		be.freqs[i] = uint32(freq)
	}
	be.bufLen = remaining
	return nil
}

// decodeGroupsFast decodes one interleaved delta+freq group pair straight
// from the mapped chunk, returning the bytes consumed.
func (be *blockDocEnum) decodeGroupsFast(win []byte) (int, error) {
	consumed, err := decodeStreamVByte4Raw(win, be.deltas[:])
	if err != nil {
		return 0, err
	}
	n, err := decodeStreamVByte4Raw(win[consumed:], be.freqs[:])
	if err != nil {
		return 0, err
	}
	be.bufLen = streamVByteGroupSize
	return consumed + n, nil
}

var streamVByteLens = func() (lens [256][4]uint8) {
	for ctrl := 0; ctrl < 256; ctrl++ {
		for i := 0; i < 4; i++ {
			lens[ctrl][i] = uint8((ctrl>>(2*i))&3) + 1
		}
	}
	return lens
}()

// decodeStreamVByte4Raw decodes one group of four little-endian values from
// raw bytes: control byte first, then 4-16 data bytes.
func decodeStreamVByte4Raw(raw []byte, out []uint32) (int, error) {
	if len(raw) < 1 {
		return 0, errors.NewStoreError(nil, errors.ErrorCodeEndOfInput,
			"Truncated StreamVByte group")
	}
	lens := &streamVByteLens[raw[0]]
	pos := 1
	for i := 0; i < streamVByteGroupSize; i++ {
		n := int(lens[i])
		if pos+n > len(raw) {
			return 0, errors.NewStoreError(nil, errors.ErrorCodeEndOfInput,
				"Truncated StreamVByte group")
		}
		var v uint32
		for b := 0; b < n; b++ {
			v |= uint32(raw[pos+b]) << (8 * b)
		}
		out[i] = v
		pos += n
	}
	return pos, nil
}

// decodeStreamVByte4 is the generic-interface path used near chunk
// boundaries: control byte, then the exact data bytes.
func decodeStreamVByte4(in store.IndexInput, scratch []byte, out []uint32) error {
	ctrl, err := in.ReadByte()
	if err != nil {
		return err
	}
	lens := &streamVByteLens[ctrl]
	total := int(lens[0]) + int(lens[1]) + int(lens[2]) + int(lens[3])
	data := scratch[:total]
	if err := in.ReadBytes(data); err != nil {
		return err
	}
	pos := 0
	for i := 0; i < streamVByteGroupSize; i++ {
		n := int(lens[i])
		var v uint32
		for b := 0; b < n; b++ {
			v |= uint32(data[pos+b]) << (8 * b)
		}
		out[i] = v
		pos += n
	}
	return nil
}

// encodeStreamVByte4 appends one encoded group to dst. Write-side companion
// used by the segment writer.
func encodeStreamVByte4(dst []byte, values []uint32) []byte {
	var ctrl byte
	pos := len(dst)
	dst = append(dst, 0)
	for i, v := range values {
		n := 1
		switch {
		case v >= 1<<24:
			n = 4
		case v >= 1<<16:
			n = 3
		case v >= 1<<8:
			n = 2
		}
		ctrl |= byte(n-1) << (2 * i)
		for b := 0; b < n; b++ {
			dst = append(dst, byte(v>>(8*b)))
		}
	}
	dst[pos] = ctrl
	return dst
}
