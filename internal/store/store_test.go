package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/diagon/pkg/errors"
	"github.com/iamNilotpal/diagon/pkg/logger"
)

const testChunkPower = 14 // small chunks so multi-chunk paths actually run

func writeTestFile(t *testing.T, fill func(out *IndexOutput)) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.bin")
	out, err := CreateOutput(path)
	require.NoError(t, err)
	fill(out)
	require.NoError(t, out.Close())
	return path
}

func openBoth(t *testing.T, path string) []IndexInput {
	t.Helper()
	mm, err := OpenMMapInput(path, testChunkPower, false, AdviceRandom)
	require.NoError(t, err)
	bf, err := OpenBufferedInput(path)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = mm.Close()
		_ = bf.Close()
	})
	return []IndexInput{mm, bf}
}

func TestPrimitiveRoundTrip(t *testing.T) {
	vints := []int32{0, 1, 127, 128, 16383, 16384, 1<<31 - 1, -1}
	vlongs := []int64{0, 5, 1 << 20, 1 << 45, 1<<63 - 1}

	path := writeTestFile(t, func(out *IndexOutput) {
		require.NoError(t, out.WriteInt(0x3fd76c17))
		require.NoError(t, out.WriteLong(-42))
		for _, v := range vints {
			require.NoError(t, out.WriteVInt(v))
		}
		for _, v := range vlongs {
			require.NoError(t, out.WriteVLong(v))
		}
		require.NoError(t, out.WriteString("héllo"))
		require.NoError(t, out.WriteString(""))
	})

	for _, in := range openBoth(t, path) {
		magic, err := in.ReadInt()
		require.NoError(t, err)
		assert.Equal(t, int32(0x3fd76c17), magic)

		l, err := in.ReadLong()
		require.NoError(t, err)
		assert.Equal(t, int64(-42), l)

		for _, want := range vints {
			got, err := in.ReadVInt()
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
		for _, want := range vlongs {
			got, err := in.ReadVLong()
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}

		s, err := in.ReadString()
		require.NoError(t, err)
		assert.Equal(t, "héllo", s)
		s, err = in.ReadString()
		require.NoError(t, err)
		assert.Equal(t, "", s)

		// Exhausted: the next read fails with end-of-input.
		_, err = in.ReadByte()
		require.Error(t, err)
		assert.True(t, errors.IsEndOfInput(err))
	}
}

func TestMalformedVIntIsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.bin")
	require.NoError(t, os.WriteFile(path, []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x01}, 0o644))

	for _, in := range openBoth(t, path) {
		_, err := in.ReadVInt()
		require.Error(t, err)
		assert.True(t, errors.IsCorrupted(err))
	}
}

func TestSeekBounds(t *testing.T) {
	path := writeTestFile(t, func(out *IndexOutput) {
		require.NoError(t, out.WriteBytes(make([]byte, 100)))
	})

	for _, in := range openBoth(t, path) {
		require.NoError(t, in.Seek(100))
		assert.Equal(t, int64(100), in.FilePointer())

		err := in.Seek(101)
		require.Error(t, err)
		assert.True(t, errors.IsEndOfInput(err))

		err = in.Seek(-1)
		require.Error(t, err)
		assert.Equal(t, errors.ErrorCodeInvalidInput, errors.GetErrorCode(err))
	}
}

func TestCloneAndSlice(t *testing.T) {
	// Spans several 16KiB chunks so cross-chunk reads run.
	payload := make([]byte, 3*(1<<testChunkPower)+123)
	for i := range payload {
		payload[i] = byte(i * 31)
	}
	path := writeTestFile(t, func(out *IndexOutput) {
		require.NoError(t, out.WriteBytes(payload))
	})

	for _, in := range openBoth(t, path) {
		assert.Equal(t, int64(len(payload)), in.Length())

		clone := in.Clone()
		assert.Equal(t, int64(0), clone.FilePointer())

		got := make([]byte, len(payload))
		require.NoError(t, clone.ReadBytes(got))
		assert.Equal(t, payload, got)

		// Clone position is independent of the parent's.
		assert.Equal(t, int64(0), in.FilePointer())

		// Slices restrict the view and reset the position.
		slice, err := in.Slice("mid", 1000, 5000)
		require.NoError(t, err)
		assert.Equal(t, int64(5000), slice.Length())
		sgot := make([]byte, 5000)
		require.NoError(t, slice.ReadBytes(sgot))
		assert.Equal(t, payload[1000:6000], sgot)

		// Slicing a slice composes additively.
		sub, err := slice.Slice("sub", 100, 200)
		require.NoError(t, err)
		sub2 := make([]byte, 200)
		require.NoError(t, sub.ReadBytes(sub2))
		assert.Equal(t, payload[1100:1300], sub2)

		// Out-of-bounds slice fails.
		_, err = slice.Slice("oob", 4900, 200)
		require.Error(t, err)
	}
}

func TestEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	in, err := OpenMMapInput(path, testChunkPower, false, AdviceNormal)
	require.NoError(t, err)
	defer func() { _ = in.Close() }()

	assert.Equal(t, int64(0), in.Length())
	_, err = in.ReadByte()
	require.Error(t, err)
	assert.True(t, errors.IsEndOfInput(err))
}

func TestOpenMissingAndIrregular(t *testing.T) {
	dir := t.TempDir()

	_, err := OpenMMapInput(filepath.Join(dir, "nope.bin"), testChunkPower, false, AdviceNormal)
	require.Error(t, err)
	assert.True(t, errors.IsFileNotFound(err))

	_, err = OpenMMapInput(dir, testChunkPower, false, AdviceNormal)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorCodeNotRegularFile, errors.GetErrorCode(err))
}

func TestDirectoryOpenInputAndLock(t *testing.T) {
	dirPath := t.TempDir()
	dir, err := OpenDirectory(&DirectoryConfig{
		Path:        dirPath,
		ChunkPower:  testChunkPower,
		UseFallback: true,
		Logger:      logger.NewNop(),
	})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dirPath, "x.bin"), []byte{1, 2, 3}, 0o644))
	in, err := dir.OpenInput("x.bin", IOContextRead)
	require.NoError(t, err)
	b, err := in.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(1), b)
	require.NoError(t, in.Close())

	n, err := dir.FileLength("x.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	lock, err := dir.ObtainLock()
	require.NoError(t, err)

	_, err = dir.ObtainLock()
	require.Error(t, err)
	assert.Equal(t, errors.ErrorCodeLockUnavailable, errors.GetErrorCode(err))

	require.NoError(t, lock.Release())
	lock2, err := dir.ObtainLock()
	require.NoError(t, err)
	require.NoError(t, lock2.Release())
}

func TestContiguousWindowFastPath(t *testing.T) {
	payload := make([]byte, 1<<testChunkPower)
	for i := range payload {
		payload[i] = byte(i)
	}
	path := writeTestFile(t, func(out *IndexOutput) {
		require.NoError(t, out.WriteBytes(payload))
	})

	mm, err := OpenMMapInput(path, testChunkPower, false, AdviceNormal)
	require.NoError(t, err)
	defer func() { _ = mm.Close() }()

	win := mm.ContiguousWindow()
	require.NotNil(t, win)
	assert.Equal(t, payload, win)

	require.NoError(t, mm.Seek(int64(len(payload)-4)))
	assert.Equal(t, int64(4), mm.RemainingInChunk())
}
