// Package index provides the immutable segment layer: segment metadata and
// commit points, the codec readers (postings, norms, doc values, live docs,
// stored fields), the leaf and composite readers with their refcount
// lifecycle, and the segment writer that produces the on-disk families.
package index

import (
	"github.com/cespare/xxhash/v2"
)

// NoMoreDocs is the sentinel returned by every doc iterator once exhausted.
// It equals the maximum signed 32-bit integer.
const NoMoreDocs = int(1<<31 - 1)

// Term is an immutable (field, text) pair.
type Term struct {
	Field string
	Text  string
}

func NewTerm(field, text string) Term {
	return Term{Field: field, Text: text}
}

func (t Term) String() string {
	return t.Field + ":" + t.Text
}

// Hash returns a stable hash of the term, used by query hash codes.
func (t Term) Hash() uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(t.Field)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(t.Text)
	return h.Sum64()
}
