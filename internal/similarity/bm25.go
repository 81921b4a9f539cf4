// Package similarity implements BM25 scoring: the per-term scalar scorer
// with a norm-decoded cache, and batch kernels whose width is chosen once at
// startup from the CPU's vector capabilities.
package similarity

import (
	"math"
)

const (
	// DefaultK1 is the term-frequency saturation parameter.
	DefaultK1 float32 = 1.2

	// DefaultB is the length-normalization parameter.
	DefaultB float32 = 0.75

	// fallbackAvgFieldLength is used only when collection statistics are
	// unavailable (no docs carry the field).
	fallbackAvgFieldLength float32 = 50.0
)

// CollectionStats are the per-field statistics backing IDF and length
// normalization, gathered from the composite reader at weight creation.
type CollectionStats struct {
	Field            string
	MaxDoc           int64
	DocCount         int64 // docs with this field
	SumTotalTermFreq int64
}

// AvgFieldLength derives the field's mean length, falling back to a fixed
// constant when the statistics are absent.
func (cs CollectionStats) AvgFieldLength() float32 {
	if cs.DocCount > 0 && cs.SumTotalTermFreq > 0 {
		return float32(float64(cs.SumTotalTermFreq) / float64(cs.DocCount))
	}
	return fallbackAvgFieldLength
}

// TermStats are the per-term statistics backing IDF.
type TermStats struct {
	DocFreq       int64
	TotalTermFreq int64
}

// BM25Similarity computes BM25 scores:
//
//	score(t,d) = idf(t) * f * (k1+1) / (f + k1 * (1 - b + b * L_d/L_avg))
//	idf(t)     = ln(1 + (N - df + 0.5) / (df + 0.5))
type BM25Similarity struct {
	k1 float32
	b  float32
}

func NewBM25Similarity(k1, b float32) *BM25Similarity {
	return &BM25Similarity{k1: k1, b: b}
}

func NewDefaultBM25Similarity() *BM25Similarity {
	return NewBM25Similarity(DefaultK1, DefaultB)
}

// IDF computes the inverse document frequency for df docs out of docCount.
func (s *BM25Similarity) IDF(docFreq, docCount int64) float32 {
	return float32(math.Log(1.0 + (float64(docCount)-float64(docFreq)+0.5)/(float64(docFreq)+0.5)))
}

// DecodeNorm recovers the field length from the one-byte factor. Encoding is
// 127/sqrt(length); 0 marks a missing value and 127 a single-token or empty
// field, both decoding to length 1.
func DecodeNorm(norm byte) float32 {
	if norm == 0 || norm == 127 {
		return 1.0
	}
	l := 127.0 / float32(norm)
	return l * l
}

// Scorer precomputes the per-term constants: IDF happens once here, per-doc
// work is a multiply, add and divide against the norm cache.
func (s *BM25Similarity) Scorer(boost float32, cs CollectionStats, ts TermStats) *SimScorer {
	idf := s.IDF(ts.DocFreq, cs.DocCount)
	return s.ConstantScorer(boost*idf, cs.AvgFieldLength())
}

// ConstantScorer builds a scorer from a precombined weight. Also used by
// tests that pin the weight directly.
func (s *BM25Similarity) ConstantScorer(weight, avgFieldLength float32) *SimScorer {
	sc := &SimScorer{
		weight:  weight,
		k1:      s.k1,
		b:       s.b,
		k1Plus1: s.k1 + 1,
		batch:   activeBatchKernel,
	}
	// One divide per norm byte up front; the hot path indexes the cache.
	for n := 0; n < 256; n++ {
		l := DecodeNorm(byte(n))
		sc.normCache[n] = s.k1 * (1 - s.b + s.b*l/avgFieldLength)
	}
	return sc
}

// SimScorer scores one term against docs. All math is float32.
type SimScorer struct {
	weight  float32 // boost * idf
	k1      float32
	b       float32
	k1Plus1 float32

	normCache [256]float32 // norm byte -> k1 * (1 - b + b * L_d/L_avg)
	batch     batchKernel
}

// Score computes the BM25 contribution for an in-document frequency and a
// norm byte. Zero frequency scores zero.
func (sc *SimScorer) Score(freq float32, norm byte) float32 {
	if freq == 0 {
		return 0
	}
	return sc.weight * freq * sc.k1Plus1 / (freq + sc.normCache[norm])
}

// MaxScore bounds the contribution for any doc whose frequency is at most
// maxFreq and whose norm byte is at most maxNorm. Larger norm bytes encode
// shorter fields, which score higher, so the bound uses maxNorm directly.
func (sc *SimScorer) MaxScore(maxFreq int, maxNorm byte) float32 {
	return sc.Score(float32(maxFreq), maxNorm)
}

// ScoreBatch scores len(freqs) docs with per-doc norms into scores. The
// slices must have equal length.
func (sc *SimScorer) ScoreBatch(freqs []int32, norms []byte, scores []float32) {
	sc.batch(sc, freqs, norms, scores)
}

// ScoreBatchUniformNorm scores a batch sharing a single norm byte — the hot
// path when norms are absent or constant across the batch.
func (sc *SimScorer) ScoreBatchUniformNorm(freqs []int32, norm byte, scores []float32) {
	k := sc.normCache[norm]
	num := sc.weight * sc.k1Plus1
	for i, f := range freqs {
		ff := float32(f)
		scores[i] = num * ff / (ff + k)
	}
}
