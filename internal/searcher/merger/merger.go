// Package merger fuses the body and title rankings of one query into a single
// ranking.
package merger

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/searcher/ranker"
)

// Weights are the relative contributions of the two channels.
type Weights struct {
	Body  float64 `json:"body"`
	Title float64 `json:"title"`
}

// DefaultWeights is used when the supplied weights do not sum to a positive
// number.
var DefaultWeights = Weights{Body: 0.6, Title: 0.4}

// Normalize scales w so that Body+Title == 1.
func (w Weights) Normalize() Weights {
	sum := w.Body + w.Title
	if !(sum > 0) {
		return DefaultWeights
	}
	return Weights{Body: w.Body / sum, Title: w.Title / sum}
}

// FuseScored divides each channel's scores by that channel's best score,
// weights them and sums them per document. A channel that is empty or whose
// best score is not positive contributes nothing. Ties keep body documents
// first, in body rank order, followed by title-only documents in title rank
// order.
func FuseScored(body, title []ranker.ScoredDoc, w Weights, k int) []ranker.ScoredDoc {
	if k <= 0 {
		return nil
	}
	w = w.Normalize()

	pos := make(map[uint32]int, len(body)+len(title))
	fused := make([]ranker.ScoredDoc, 0, len(body)+len(title))
	contribute := func(docs []ranker.ScoredDoc, weight float64) {
		best := maxScore(docs)
		if best <= 0 {
			return
		}
		for _, d := range docs {
			s := weight * (d.Score / best)
			if i, ok := pos[d.DocID]; ok {
				fused[i].Score += s
				continue
			}
			pos[d.DocID] = len(fused)
			fused = append(fused, ranker.ScoredDoc{DocID: d.DocID, Score: s})
		}
	}
	contribute(body, w.Body)
	contribute(title, w.Title)

	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Score > fused[j].Score
	})
	if len(fused) > k {
		fused = fused[:k]
	}
	return fused
}

// Fuse is FuseScored without the intermediate scores.
func Fuse(body, title []ranker.ScoredDoc, w Weights, k int) []uint32 {
	return IDs(FuseScored(body, title, w, k))
}

// IDs returns the document ids of a ranking in order.
func IDs(docs []ranker.ScoredDoc) []uint32 {
	ids := make([]uint32, len(docs))
	for i, d := range docs {
		ids[i] = d.DocID
	}
	return ids
}

func maxScore(docs []ranker.ScoredDoc) float64 {
	var best float64
	for _, d := range docs {
		best = max(best, d.Score)
	}
	return best
}
