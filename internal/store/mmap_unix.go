//go:build unix

package store

import (
	"os"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"github.com/iamNilotpal/diagon/pkg/errors"
)

// mapChunks maps the file as chunks of 1<<chunkPower bytes and returns the
// chunk slices plus the release hook that unmaps them and closes the
// descriptor. The descriptor is owned by the release hook from here on.
func mapChunks(f *os.File, length int64, chunkPower int, advice ReadAdvice, preload bool) ([][]byte, func() error, error) {
	chunkSize := int64(1) << uint(chunkPower)
	numChunks := int(length >> uint(chunkPower))
	if length&(chunkSize-1) != 0 {
		numChunks++
	}

	chunks := make([][]byte, 0, numChunks)
	fd := int(f.Fd())

	for i := 0; i < numChunks; i++ {
		offset := int64(i) << uint(chunkPower)
		size := chunkSize
		if offset+size > length {
			size = length - offset
		}

		data, err := unix.Mmap(fd, offset, int(size), unix.PROT_READ, unix.MAP_SHARED)
		if err != nil {
			for _, c := range chunks {
				_ = unix.Munmap(c)
			}
			return nil, nil, errors.NewStoreError(err, errors.ErrorCodeMappingFailed,
				"Memory mapping failed").
				WithPath(f.Name()).WithOffset(offset).WithLength(size)
		}

		if madv, ok := adviceToMadvise(advice); ok {
			_ = unix.Madvise(data, madv)
		}
		if preload {
			_ = unix.Madvise(data, unix.MADV_WILLNEED)
		}

		chunks = append(chunks, data)
	}

	release := func() error {
		var err error
		for _, c := range chunks {
			err = multierr.Append(err, unix.Munmap(c))
		}
		return multierr.Append(err, f.Close())
	}
	return chunks, release, nil
}

func adviceToMadvise(advice ReadAdvice) (int, bool) {
	switch advice {
	case AdviceSequential:
		return unix.MADV_SEQUENTIAL, true
	case AdviceRandom:
		return unix.MADV_RANDOM, true
	case AdviceNormal:
		return unix.MADV_NORMAL, true
	}
	return 0, false
}

// prefetchChunk hints the kernel that the chunk is about to be read.
// Best-effort: failures are ignored.
func prefetchChunk(chunk []byte) {
	if len(chunk) > 0 {
		_ = unix.Madvise(chunk, unix.MADV_WILLNEED)
	}
}
