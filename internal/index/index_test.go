package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/diagon/internal/store"
	"github.com/iamNilotpal/diagon/internal/util"
	"github.com/iamNilotpal/diagon/pkg/errors"
	"github.com/iamNilotpal/diagon/pkg/logger"
)

func testDir(t *testing.T) *store.Directory {
	t.Helper()
	dir, err := store.OpenDirectory(&store.DirectoryConfig{
		Path:        t.TempDir(),
		ChunkPower:  16,
		UseFallback: true,
		Logger:      logger.NewNop(),
	})
	require.NoError(t, err)
	return dir
}

// flushSegment writes docs as segment "_0" and publishes a commit.
func flushSegment(t *testing.T, dir *store.Directory, docs []*Document, deletes []int) *SegmentInfos {
	t.Helper()
	w := NewSegmentWriter(dir, logger.NewNop())
	si, err := w.Write("_0", docs)
	require.NoError(t, err)
	if len(deletes) > 0 {
		require.NoError(t, ApplyDeletes(dir, si, deletes))
	}
	sis := &SegmentInfos{Segments: []*SegmentInfo{si}}
	require.NoError(t, sis.Write(dir))
	return sis
}

func TestLiveDocsRoundTrip(t *testing.T) {
	dir := testDir(t)

	live := util.NewFixedBitSet(10)
	live.SetAll()
	live.Clear(3)
	live.Clear(7)

	require.NoError(t, WriteLiveDocs(dir, "_0", live, 2))

	got, delCount, err := ReadLiveDocs(dir, "_0", 10)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, delCount)
	for i := 0; i < 10; i++ {
		assert.Equal(t, live.Get(i), got.Get(i), "bit %d", i)
	}

	// Absent file means all live.
	bs, delCount, err := ReadLiveDocs(dir, "_9", 10)
	require.NoError(t, err)
	assert.Nil(t, bs)
	assert.Zero(t, delCount)

	// Length mismatch is corruption.
	_, _, err = ReadLiveDocs(dir, "_0", 11)
	require.Error(t, err)
	assert.True(t, errors.IsCorrupted(err))
}

func TestSegmentInfosRoundTrip(t *testing.T) {
	dir := testDir(t)

	si := &SegmentInfo{
		Name:        "_0",
		MaxDoc:      42,
		CodecName:   DefaultCodecName,
		Files:       []string{"_0.post", "_0.doc"},
		Diagnostics: map[string]string{"source": "flush"},
		SizeInBytes: 1234,
		DelCount:    7,
		FieldInfos: NewFieldInfos([]*FieldInfo{
			{Name: "body", Number: 0, Indexed: true, HasNorms: true, HasPositions: true},
			{Name: "price", Number: 1, HasDocValues: true, NumericType: NumericTypeDouble},
		}),
	}
	sis := &SegmentInfos{Segments: []*SegmentInfo{si}}
	require.NoError(t, sis.Write(dir))
	assert.Equal(t, int64(1), sis.Generation)

	got, err := ReadLatestCommit(dir)
	require.NoError(t, err)
	require.Len(t, got.Segments, 1)

	gsi := got.Segments[0]
	assert.Equal(t, si.Name, gsi.Name)
	assert.Equal(t, si.MaxDoc, gsi.MaxDoc)
	assert.Equal(t, si.CodecName, gsi.CodecName)
	assert.Equal(t, si.Files, gsi.Files)
	assert.Equal(t, si.Diagnostics, gsi.Diagnostics)
	assert.Equal(t, si.SizeInBytes, gsi.SizeInBytes)
	assert.Equal(t, si.DelCount, gsi.DelCount)
	assert.Equal(t, 35, gsi.NumDocs())
	assert.True(t, gsi.HasDeletions())

	price := gsi.FieldInfos.ByName("price")
	require.NotNil(t, price)
	assert.True(t, price.HasDocValues)
	assert.Equal(t, NumericTypeDouble, price.NumericType)

	// A second commit wins.
	sis.Segments[0].DelCount = 9
	require.NoError(t, sis.Write(dir))
	got2, err := ReadLatestCommit(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got2.Generation)
	assert.Equal(t, 9, got2.Segments[0].DelCount)
}

func TestSegmentInfosMagicMismatch(t *testing.T) {
	dir := testDir(t)
	out, err := dir.CreateOutput("segments_1")
	require.NoError(t, err)
	require.NoError(t, out.WriteInt(0x12345678))
	require.NoError(t, out.Close())

	_, err = ReadLatestCommit(dir)
	require.Error(t, err)
	assert.True(t, errors.IsCorrupted(err))
}

func TestStreamVByteRoundTrip(t *testing.T) {
	cases := [][]uint32{
		{0, 1, 2, 3},
		{127, 128, 255, 256},
		{1 << 15, 1 << 16, 1 << 23, 1 << 24},
		{1<<32 - 1, 0, 1<<31 - 1, 42},
	}
	var buf []byte
	for _, c := range cases {
		buf = encodeStreamVByte4(buf, c)
	}

	pos := 0
	for _, want := range cases {
		var got [4]uint32
		n, err := decodeStreamVByte4Raw(buf[pos:], got[:])
		require.NoError(t, err)
		pos += n
		assert.Equal(t, want, got[:])
	}
	assert.Equal(t, len(buf), pos)

	_, err := decodeStreamVByte4Raw([]byte{0xff, 1}, make([]uint32, 4))
	require.Error(t, err)
}

func openTestReader(t *testing.T, dir *store.Directory) *IndexReader {
	t.Helper()
	ir, err := OpenIndexReader(dir, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if ir.RefCount() > 0 {
			_ = ir.Close()
		}
	})
	return ir
}

func TestWriterReaderEndToEnd(t *testing.T) {
	dir := testDir(t)
	docs := []*Document{
		NewDocument().AddText("body", "go", "fast", "go").AddNumeric("price", 50).Store("title", "doc zero"),
		NewDocument().AddText("body", "slow").AddNumeric("price", 100).Store("title", "doc one"),
		NewDocument().AddText("body", "go", "slow", "go", "go").AddNumeric("price", 150).Store("n", int64(7)),
	}
	flushSegment(t, dir, docs, nil)

	ir := openTestReader(t, dir)
	require.Len(t, ir.Leaves(), 1)
	leaf := ir.Leaves()[0].Reader

	assert.Equal(t, 3, leaf.MaxDoc())
	assert.Equal(t, 3, leaf.NumDocs())
	assert.False(t, leaf.HasDeletions())
	assert.Nil(t, leaf.LiveDocs())

	// Term metadata and impacts.
	tm, err := leaf.TermMeta(NewTerm("body", "go"))
	require.NoError(t, err)
	require.NotNil(t, tm)
	assert.Equal(t, 2, tm.DocFreq)
	assert.Equal(t, int64(5), tm.TotalTermFreq)
	require.Len(t, tm.Impacts(), 1)
	assert.Equal(t, NoMoreDocs, tm.Impacts()[0].UpTo)
	assert.Equal(t, 3, tm.Impacts()[0].MaxFreq)

	// The block cursor and the positional cursor agree on docs and freqs.
	block, err := leaf.Postings(NewTerm("body", "go"))
	require.NoError(t, err)
	post, err := leaf.PostingsWithPositions(NewTerm("body", "go"))
	require.NoError(t, err)

	wantDocs := []int{0, 2}
	wantFreqs := []int{2, 3}
	for i := range wantDocs {
		d1, err := block.NextDoc()
		require.NoError(t, err)
		d2, err := post.NextDoc()
		require.NoError(t, err)
		assert.Equal(t, wantDocs[i], d1)
		assert.Equal(t, wantDocs[i], d2)
		f1, err := block.Freq()
		require.NoError(t, err)
		f2, err := post.Freq()
		require.NoError(t, err)
		assert.Equal(t, wantFreqs[i], f1)
		assert.Equal(t, wantFreqs[i], f2)
	}
	d, err := block.NextDoc()
	require.NoError(t, err)
	assert.Equal(t, NoMoreDocs, d)

	// Positions for doc 2: "go" at 0, 2, 3.
	post2, err := leaf.PostingsWithPositions(NewTerm("body", "go"))
	require.NoError(t, err)
	doc, err := post2.Advance(2)
	require.NoError(t, err)
	require.Equal(t, 2, doc)
	var positions []int
	for i := 0; i < 3; i++ {
		p, err := post2.NextPosition()
		require.NoError(t, err)
		positions = append(positions, p)
	}
	assert.Equal(t, []int{0, 2, 3}, positions)

	// Norms decode: doc 1 has a single token.
	norms, err := leaf.Norms("body")
	require.NoError(t, err)
	require.Len(t, norms, 3)
	assert.Equal(t, byte(127), norms[1])

	// Doc values.
	dv, err := leaf.NumericDocValues("price")
	require.NoError(t, err)
	require.NotNil(t, dv)
	assert.Equal(t, int64(100), dv.Value(1))
	assert.Equal(t, NumericTypeLong, dv.Type())

	// Stored fields.
	fields, err := leaf.Document(0)
	require.NoError(t, err)
	assert.Equal(t, "doc zero", fields["title"])
	fields2, err := leaf.Document(2)
	require.NoError(t, err)
	assert.Equal(t, int64(7), fields2["n"])

	// Field statistics.
	fs, err := leaf.FieldStats("body")
	require.NoError(t, err)
	require.NotNil(t, fs)
	assert.Equal(t, 3, fs.DocCount)
	assert.Equal(t, int64(8), fs.SumTotalTermFreq)
}

func TestDeletionsVisibleThroughReader(t *testing.T) {
	dir := testDir(t)
	docs := make([]*Document, 10)
	for i := range docs {
		docs[i] = NewDocument().AddText("body", "x")
	}
	flushSegment(t, dir, docs, []int{3, 7})

	ir := openTestReader(t, dir)
	leaf := ir.Leaves()[0].Reader

	assert.Equal(t, 10, leaf.MaxDoc())
	assert.Equal(t, 8, leaf.NumDocs())
	assert.True(t, leaf.HasDeletions())

	live := leaf.LiveDocs()
	require.NotNil(t, live)
	assert.False(t, live.Get(3))
	assert.False(t, live.Get(7))
	assert.True(t, live.Get(0))

	assert.Equal(t, 10, ir.MaxDoc())
	assert.Equal(t, 8, ir.NumDocs())
	assert.True(t, ir.HasDeletions())
}

func TestRefCountLifecycle(t *testing.T) {
	dir := testDir(t)
	flushSegment(t, dir, []*Document{NewDocument().AddText("body", "x")}, nil)

	ir := openTestReader(t, dir)
	leaf := ir.Leaves()[0].Reader

	require.NoError(t, leaf.IncRef())
	assert.Equal(t, int32(2), leaf.RefCount())
	require.NoError(t, leaf.DecRef())
	assert.Equal(t, int32(1), leaf.RefCount())

	assert.True(t, leaf.TryIncRef())
	require.NoError(t, leaf.DecRef())

	// Closing the composite drops the leaf to zero exactly once.
	require.NoError(t, ir.Close())
	assert.Equal(t, int32(0), leaf.RefCount())
	assert.False(t, leaf.TryIncRef())

	err := leaf.IncRef()
	require.Error(t, err)
	assert.True(t, errors.IsAlreadyClosed(err))

	_, err = leaf.TermMeta(NewTerm("body", "x"))
	require.Error(t, err)
	assert.True(t, errors.IsAlreadyClosed(err))
}

func TestPlainPostingsVersionRead(t *testing.T) {
	dir := testDir(t)

	// Hand-write a version-1 .post file: flat term table of
	// (term, count, (docID, freq) pairs).
	out, err := dir.CreateOutput("_0.post")
	require.NoError(t, err)
	require.NoError(t, out.WriteInt(postingsMagic))
	require.NoError(t, out.WriteInt(PostingsVersionPlain))
	require.NoError(t, out.WriteInt(1)) // term count
	require.NoError(t, out.WriteString("rust"))
	require.NoError(t, out.WriteVInt(3))
	for _, p := range [][2]int32{{0, 3}, {2, 1}, {4, 5}} {
		require.NoError(t, out.WriteInt(p[0]))
		require.NoError(t, out.WriteInt(p[1]))
	}
	require.NoError(t, out.Close())

	infos := NewFieldInfos([]*FieldInfo{{Name: "body", Number: 0, Indexed: true}})
	fr, err := OpenFieldsReader(dir, "_0", infos, nil)
	require.NoError(t, err)
	defer func() { _ = fr.Close() }()

	tm := fr.TermMeta(NewTerm("body", "rust"))
	require.NotNil(t, tm)
	assert.Equal(t, 3, tm.DocFreq)
	assert.Equal(t, int64(9), tm.TotalTermFreq)
	assert.False(t, tm.HasPositions)

	pe, err := fr.Postings(NewTerm("body", "rust"))
	require.NoError(t, err)
	got := [][2]int{}
	for {
		d, err := pe.NextDoc()
		require.NoError(t, err)
		if d == NoMoreDocs {
			break
		}
		f, err := pe.Freq()
		require.NoError(t, err)
		got = append(got, [2]int{d, f})
	}
	assert.Equal(t, [][2]int{{0, 3}, {2, 1}, {4, 5}}, got)

	stats := fr.FieldStats(infos.ByName("body"))
	require.NotNil(t, stats)
	assert.Equal(t, 3, stats.DocCount)
	assert.Equal(t, int64(9), stats.SumTotalTermFreq)
}
