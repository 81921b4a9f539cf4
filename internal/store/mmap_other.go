//go:build !unix

package store

import (
	"os"

	"github.com/iamNilotpal/diagon/pkg/errors"
)

// mapChunks reports memory mapping as unsupported on this platform. The
// directory degrades to buffered I/O when configured with fallback.
func mapChunks(f *os.File, length int64, chunkPower int, advice ReadAdvice, preload bool) ([][]byte, func() error, error) {
	return nil, nil, errors.NewStoreError(nil, errors.ErrorCodeUnsupported,
		"Memory mapping is not supported on this platform").WithPath(f.Name())
}

func prefetchChunk(chunk []byte) {}
