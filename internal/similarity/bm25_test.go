package similarity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDF(t *testing.T) {
	sim := NewDefaultBM25Similarity()

	// ln(1 + (5 - 3 + 0.5) / (3 + 0.5))
	got := sim.IDF(3, 5)
	want := float32(math.Log(1 + 2.5/3.5))
	assert.InDelta(t, want, got, 1e-6)

	// Rarer terms weigh more.
	assert.Greater(t, sim.IDF(1, 100), sim.IDF(50, 100))
}

func TestDecodeNorm(t *testing.T) {
	assert.Equal(t, float32(1), DecodeNorm(0))
	assert.Equal(t, float32(1), DecodeNorm(127))

	// Encoding 127/sqrt(len): a field of 16 tokens encodes as ~31.
	norm := byte(127.0 / math.Sqrt(16))
	assert.InDelta(t, 16.0, DecodeNorm(norm), 1.0)
}

func TestScoreProperties(t *testing.T) {
	sim := NewDefaultBM25Similarity()
	cs := CollectionStats{Field: "body", DocCount: 100, SumTotalTermFreq: 1000}
	sc := sim.Scorer(1.0, cs, TermStats{DocFreq: 10})

	// Zero frequency scores zero.
	assert.Zero(t, sc.Score(0, 60))

	// Monotone increasing in frequency with k1 > 0.
	prev := float32(0)
	for f := float32(1); f <= 64; f *= 2 {
		s := sc.Score(f, 60)
		assert.Greater(t, s, prev)
		prev = s
	}

	// Decreasing in field length with b > 0: a smaller norm byte encodes a
	// longer field, which must score lower at equal frequency.
	short := sc.Score(2, 120) // short field
	long := sc.Score(2, 20)   // long field
	assert.Greater(t, short, long)

	// No NaN or infinity from ordinary inputs.
	for _, n := range []byte{0, 1, 64, 127, 255} {
		s := sc.Score(3, n)
		assert.False(t, math.IsNaN(float64(s)) || math.IsInf(float64(s), 0))
	}
}

func TestMaxScoreBoundsScore(t *testing.T) {
	sim := NewDefaultBM25Similarity()
	cs := CollectionStats{Field: "body", DocCount: 50, SumTotalTermFreq: 600}
	sc := sim.Scorer(1.0, cs, TermStats{DocFreq: 7})

	for freq := 1; freq <= 5; freq++ {
		for _, norm := range []byte{10, 60, 120} {
			assert.LessOrEqual(t, sc.Score(float32(freq), norm), sc.MaxScore(5, 120)+1e-6)
		}
	}
}

func TestAvgFieldLengthFallback(t *testing.T) {
	assert.Equal(t, fallbackAvgFieldLength, CollectionStats{}.AvgFieldLength())
	assert.Equal(t, float32(10), CollectionStats{DocCount: 10, SumTotalTermFreq: 100}.AvgFieldLength())
}

func TestBatchKernelsAgreeWithScalar(t *testing.T) {
	sim := NewBM25Similarity(1.2, 0.75)
	sc := sim.ConstantScorer(2.5, 12)

	n := 29 // exercises the unrolled body and the remainder loop
	freqs := make([]int32, n)
	norms := make([]byte, n)
	for i := range freqs {
		freqs[i] = int32(i%7 + 1)
		norms[i] = byte(i * 9)
	}

	want := make([]float32, n)
	scoreBatchScalar(sc, freqs, norms, want)

	for name, kernel := range map[string]batchKernel{
		"wide8": scoreBatch8,
		"wide4": scoreBatch4,
	} {
		got := make([]float32, n)
		kernel(sc, freqs, norms, got)
		for i := range want {
			assert.InDelta(t, want[i], got[i], 1e-6, "%s lane %d", name, i)
		}
	}

	// Per-doc scalar scoring matches the batch.
	for i := range want {
		assert.InDelta(t, want[i], sc.Score(float32(freqs[i]), norms[i]), 1e-6)
	}
}

func TestUniformNormBatch(t *testing.T) {
	sim := NewDefaultBM25Similarity()
	sc := sim.ConstantScorer(1.0, 8)

	freqs := []int32{1, 2, 3, 4, 5}
	scores := make([]float32, len(freqs))
	sc.ScoreBatchUniformNorm(freqs, 90, scores)

	for i, f := range freqs {
		assert.InDelta(t, sc.Score(float32(f), 90), scores[i], 1e-6)
	}
	require.NotZero(t, scores[0])
}
