// Package ranker scores one channel's documents against a query with TF-IDF
// weights normalized by the query vector's length.
package ranker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/index"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/searcher/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/errors"
)

type ScoredDoc struct {
	DocID uint32  `json:"doc_id"`
	Score float64 `json:"score"`
}

// TermStats is the read-only vocabulary of one channel.
type TermStats interface {
	DocFrequency(term string) (uint32, bool)
	Locations(term string) ([]index.Location, bool)
}

// Fetcher returns exactly n posting bytes starting at locs.
type Fetcher interface {
	Fetch(ctx context.Context, locs []index.Location, n int) ([]byte, error)
}

// Result is one channel's ranking for one query.
type Result struct {
	Docs []ScoredDoc
	// Unknown lists query terms missing from the channel vocabulary.
	Unknown []string
	// Matched is the number of distinct documents that received a score
	// before top-k truncation.
	Matched int
}

// Scorer ranks documents of a single channel. It holds no per-query state
// and is safe for concurrent use.
type Scorer struct {
	channel        string
	stats          TermStats
	fetcher        Fetcher
	collectionSize int64
	logger         *slog.Logger
}

func NewScorer(channel string, stats TermStats, fetcher Fetcher, collectionSize int64) *Scorer {
	return &Scorer{
		channel:        channel,
		stats:          stats,
		fetcher:        fetcher,
		collectionSize: collectionSize,
		logger:         slog.Default().With("component", "ranker", "channel", channel),
	}
}

func (s *Scorer) Channel() string { return s.channel }

// IDF is the smoothed inverse document frequency ln((N+1)/(df+1)).
func IDF(collectionSize int64, docFreq uint32) float64 {
	return math.Log(float64(collectionSize+1) / float64(uint64(docFreq)+1))
}

type queryTerm struct {
	term    string
	docFreq uint32
	weight  float64
	idf     float64
}

// Score returns the k best documents for terms. Terms the channel does not
// know contribute nothing. If no term is known the result is empty. A failed
// or malformed posting fetch aborts the whole channel.
func (s *Scorer) Score(ctx context.Context, terms []string, k int) (Result, error) {
	if k <= 0 {
		return Result{}, fmt.Errorf("%w: result limit must be positive, got %d", apperrors.ErrInvalidInput, k)
	}
	counts, order := tokenizer.Counts(terms)

	var res Result
	known := make([]queryTerm, 0, len(order))
	var normSq float64
	var maxDF uint32
	for _, term := range order {
		df, ok := s.stats.DocFrequency(term)
		if !ok {
			res.Unknown = append(res.Unknown, term)
			continue
		}
		idf := IDF(s.collectionSize, df)
		weight := float64(counts[term]) * idf
		normSq += weight * weight
		maxDF = max(maxDF, df)
		known = append(known, queryTerm{term: term, docFreq: df, weight: weight, idf: idf})
	}
	if len(res.Unknown) > 0 {
		s.logger.Debug("query terms unknown to channel", "terms", res.Unknown)
	}
	norm := math.Sqrt(normSq)
	if norm == 0 {
		return res, nil
	}

	acc := newAccumulator(int(maxDF))
	for _, qt := range known {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("%s channel scoring cancelled: %w", s.channel, err)
		}
		postings, err := s.postings(ctx, qt)
		if err != nil {
			return Result{}, err
		}
		for _, p := range postings {
			acc.add(p.DocID, float64(p.Frequency)*qt.idf*qt.weight)
		}
	}

	res.Matched = acc.len()
	res.Docs = acc.top(norm, k)
	return res, nil
}

func (s *Scorer) postings(ctx context.Context, qt queryTerm) (index.PostingList, error) {
	if qt.docFreq == 0 {
		return nil, nil
	}
	locs, ok := s.stats.Locations(qt.term)
	if !ok {
		return nil, fmt.Errorf("%w: %s term %q has a df but no locations",
			apperrors.ErrIndexCorrupt, s.channel, qt.term)
	}
	raw, err := s.fetcher.Fetch(ctx, locs, index.ByteLen(qt.docFreq))
	if err != nil {
		return nil, fmt.Errorf("%s channel, term %q: %w", s.channel, qt.term, err)
	}
	postings, err := index.Decode(raw, qt.docFreq)
	if err != nil {
		return nil, fmt.Errorf("%s channel, term %q: %w", s.channel, qt.term, err)
	}
	return postings, nil
}

// accumulator sums per-document scores and remembers the order in which
// documents were first seen, which decides ties.
type accumulator struct {
	pos  map[uint32]int
	docs []ScoredDoc
}

func newAccumulator(sizeHint int) *accumulator {
	return &accumulator{
		pos:  make(map[uint32]int, sizeHint),
		docs: make([]ScoredDoc, 0, sizeHint),
	}
}

func (a *accumulator) add(docID uint32, score float64) {
	if i, ok := a.pos[docID]; ok {
		a.docs[i].Score += score
		return
	}
	a.pos[docID] = len(a.docs)
	a.docs = append(a.docs, ScoredDoc{DocID: docID, Score: score})
}

func (a *accumulator) len() int { return len(a.docs) }

// top divides every score by norm, drops documents left with no positive
// score and returns the k highest.
func (a *accumulator) top(norm float64, k int) []ScoredDoc {
	out := a.docs[:0]
	for _, d := range a.docs {
		d.Score /= norm
		if d.Score > 0 {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if len(out) > k {
		out = append([]ScoredDoc(nil), out[:k]...)
	}
	return out
}
