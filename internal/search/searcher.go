package search

import (
	"go.uber.org/zap"

	"github.com/iamNilotpal/diagon/internal/index"
	"github.com/iamNilotpal/diagon/internal/similarity"
	"github.com/iamNilotpal/diagon/pkg/errors"
	"github.com/iamNilotpal/diagon/pkg/options"
)

// IndexSearcher evaluates queries against an immutable composite reader: per
// query it compiles a Weight, then per leaf binds a scorer (bulk when
// eligible) and pumps matches into the collector. A failed search leaves the
// searcher usable for subsequent queries.
type IndexSearcher struct {
	reader     *index.IndexReader
	opts       *options.Options
	similarity *similarity.BM25Similarity
	log        *zap.SugaredLogger
}

// IndexSearcherConfig carries the parameters for creating a searcher.
type IndexSearcherConfig struct {
	Reader  *index.IndexReader
	Options *options.Options
	Logger  *zap.SugaredLogger
}

func NewIndexSearcher(config *IndexSearcherConfig) (*IndexSearcher, error) {
	if config == nil || config.Reader == nil || config.Options == nil || config.Logger == nil {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "Searcher configuration is required",
		).WithField("config").WithRule("required")
	}
	return &IndexSearcher{
		reader:     config.Reader,
		opts:       config.Options,
		similarity: similarity.NewBM25Similarity(config.Options.K1, config.Options.B),
		log:        config.Logger,
	}, nil
}

// Reader returns the searcher's composite reader.
func (s *IndexSearcher) Reader() *index.IndexReader { return s.reader }

// Search returns the k best hits for the query.
func (s *IndexSearcher) Search(q Query, k int) (*TopDocs, error) {
	collector, err := NewTopScoreDocCollector(k)
	if err != nil {
		return nil, err
	}
	if err := s.SearchWith(q, collector); err != nil {
		return nil, err
	}
	return collector.TopDocs(), nil
}

// SearchAfter returns the k hits strictly following the pagination cursor.
func (s *IndexSearcher) SearchAfter(q Query, after *ScoreDoc, k int) (*TopDocs, error) {
	collector, err := NewTopScoreDocCollectorAfter(k, after)
	if err != nil {
		return nil, err
	}
	if err := s.SearchWith(q, collector); err != nil {
		return nil, err
	}
	return collector.TopDocs(), nil
}

// Count returns the number of matching documents, using the per-segment
// O(1) count wherever the weight offers it.
func (s *IndexSearcher) Count(q Query) (int, error) {
	collector := NewTotalHitCountCollector()
	if err := s.SearchWith(q, collector); err != nil {
		return 0, err
	}
	return collector.Total(), nil
}

// CreateWeight rewrites the query to a fix point and compiles it.
func (s *IndexSearcher) CreateWeight(q Query, mode ScoreMode, boost float32) (Weight, error) {
	rewritten, err := rewriteToFixPoint(q, s.reader)
	if err != nil {
		return nil, err
	}
	return rewritten.CreateWeight(s, mode, boost)
}

// SearchWith drives the collector over every leaf in docBase order.
func (s *IndexSearcher) SearchWith(q Query, collector Collector) error {
	weight, err := s.CreateWeight(q, collector.ScoreMode(), 1.0)
	if err != nil {
		return err
	}
	if wa, ok := collector.(WeightAware); ok {
		wa.SetWeight(weight)
	}

	for _, leaf := range s.reader.Leaves() {
		leafCollector, err := collector.LeafCollector(leaf)
		if err != nil {
			return err
		}
		if leafCollector == nil {
			// The collector already accounted for this segment.
			continue
		}
		if err := s.searchLeaf(weight, collector.ScoreMode(), leaf, leafCollector); err != nil {
			return err
		}
		if err := leafCollector.Finish(); err != nil {
			return err
		}
	}
	return nil
}

func (s *IndexSearcher) searchLeaf(weight Weight, mode ScoreMode, leaf *index.LeafReaderContext, collector LeafCollector) error {
	liveDocs := leaf.Reader.LiveDocs()

	// The bulk path is gated on configuration and scoring need; the weight
	// itself additionally restricts it to eligible query shapes.
	if s.opts.EnableBlockMaxWAND && mode != ScoreModeCompleteNoScores {
		bulk, err := weight.BulkScorer(leaf)
		if err != nil {
			return err
		}
		if bulk != nil {
			_, err := bulk.Score(collector, liveDocs, 0, leaf.Reader.MaxDoc())
			return err
		}
	}

	scorer, err := weight.Scorer(leaf)
	if err != nil {
		return err
	}
	if scorer == nil {
		return nil
	}
	if err := collector.SetScorer(scorer); err != nil {
		return err
	}

	doc, err := scorer.NextDoc()
	for ; err == nil && doc != NoMoreDocs; doc, err = scorer.NextDoc() {
		if liveDocs != nil && !liveDocs.Get(doc) {
			continue
		}
		if err := collector.Collect(doc); err != nil {
			return err
		}
	}
	return err
}
