package similarity

import (
	"github.com/klauspost/cpuid/v2"
)

// batchKernel scores freqs/norms pairs into scores. Implementations differ
// only in unroll width; the compiler vectorizes the wide bodies on targets
// whose vector units the startup probe detected.
type batchKernel func(sc *SimScorer, freqs []int32, norms []byte, scores []float32)

// activeBatchKernel is selected once at package init from the CPUID probe
// and never changes afterwards.
var activeBatchKernel = pickBatchKernel()

func pickBatchKernel() batchKernel {
	switch {
	case cpuid.CPU.Supports(cpuid.AVX2):
		return scoreBatch8
	case cpuid.CPU.Supports(cpuid.ASIMD):
		return scoreBatch4
	default:
		return scoreBatchScalar
	}
}

func scoreBatchScalar(sc *SimScorer, freqs []int32, norms []byte, scores []float32) {
	num := sc.weight * sc.k1Plus1
	for i, f := range freqs {
		ff := float32(f)
		scores[i] = num * ff / (ff + sc.normCache[norms[i]])
	}
}

// scoreBatch8 processes eight lanes per iteration (AVX2-sized batches).
func scoreBatch8(sc *SimScorer, freqs []int32, norms []byte, scores []float32) {
	num := sc.weight * sc.k1Plus1
	n := len(freqs)
	i := 0
	for ; i+8 <= n; i += 8 {
		f := freqs[i : i+8 : i+8]
		nm := norms[i : i+8 : i+8]
		out := scores[i : i+8 : i+8]

		f0, f1 := float32(f[0]), float32(f[1])
		f2, f3 := float32(f[2]), float32(f[3])
		f4, f5 := float32(f[4]), float32(f[5])
		f6, f7 := float32(f[6]), float32(f[7])

		out[0] = num * f0 / (f0 + sc.normCache[nm[0]])
		out[1] = num * f1 / (f1 + sc.normCache[nm[1]])
		out[2] = num * f2 / (f2 + sc.normCache[nm[2]])
		out[3] = num * f3 / (f3 + sc.normCache[nm[3]])
		out[4] = num * f4 / (f4 + sc.normCache[nm[4]])
		out[5] = num * f5 / (f5 + sc.normCache[nm[5]])
		out[6] = num * f6 / (f6 + sc.normCache[nm[6]])
		out[7] = num * f7 / (f7 + sc.normCache[nm[7]])
	}
	for ; i < n; i++ {
		ff := float32(freqs[i])
		scores[i] = num * ff / (ff + sc.normCache[norms[i]])
	}
}

// scoreBatch4 processes four lanes per iteration (NEON-sized batches).
func scoreBatch4(sc *SimScorer, freqs []int32, norms []byte, scores []float32) {
	num := sc.weight * sc.k1Plus1
	n := len(freqs)
	i := 0
	for ; i+4 <= n; i += 4 {
		f := freqs[i : i+4 : i+4]
		nm := norms[i : i+4 : i+4]
		out := scores[i : i+4 : i+4]

		f0, f1 := float32(f[0]), float32(f[1])
		f2, f3 := float32(f[2]), float32(f[3])

		out[0] = num * f0 / (f0 + sc.normCache[nm[0]])
		out[1] = num * f1 / (f1 + sc.normCache[nm[1]])
		out[2] = num * f2 / (f2 + sc.normCache[nm[2]])
		out[3] = num * f3 / (f3 + sc.normCache[nm[3]])
	}
	for ; i < n; i++ {
		ff := float32(freqs[i])
		scores[i] = num * ff / (ff + sc.normCache[norms[i]])
	}
}
