package options

import "math/bits"

const (
	// DefaultChunkPower64 is the chunk size exponent used for memory mapping
	// on 64-bit targets (2^34 bytes per chunk).
	DefaultChunkPower64 = 34

	// DefaultChunkPower32 is the chunk size exponent on 32-bit targets
	// (2^28 bytes per chunk), where address space is the limiting factor.
	DefaultChunkPower32 = 28

	// DefaultK1 is the BM25 term-frequency saturation parameter.
	DefaultK1 float32 = 1.2

	// DefaultB is the BM25 length-normalization parameter.
	DefaultB float32 = 0.75

	// MinChunkPower bounds the chunk exponent below; smaller chunks make the
	// per-read chunk arithmetic dominate.
	MinChunkPower = 14

	// MaxChunkPower bounds the chunk exponent above.
	MaxChunkPower = 40
)

// DefaultChunkPower returns the platform-appropriate chunk exponent.
func DefaultChunkPower() int {
	if bits.UintSize == 64 {
		return DefaultChunkPower64
	}
	return DefaultChunkPower32
}

// Holds the default configuration for an index instance.
var defaultOptions = Options{
	EnableBlockMaxWAND: true,
	UseFallback:        true,
	Preload:            false,
	ChunkPower:         DefaultChunkPower(),
	K1:                 DefaultK1,
	B:                  DefaultB,
}

func NewDefaultOptions() Options {
	return defaultOptions
}
