package index

import (
	"fmt"
	"math"
	"sort"
)

// Builder accumulates term frequencies for one channel in memory and writes
// them out as posting segments plus a TermIndex. It is meant for fixtures and
// small corpora; it holds every posting until Build.
type Builder struct {
	name     string
	postings map[string][]Posting
	docs     int
}

func NewBuilder(name string) *Builder {
	return &Builder{name: name, postings: make(map[string][]Posting)}
}

// AddDocument records the tokens of one document. Documents must be added in
// ascending id order so that posting lists come out sorted.
func (b *Builder) AddDocument(docID uint32, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	tf := make(map[string]int, len(tokens))
	order := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if tf[t] == 0 {
			order = append(order, t)
		}
		tf[t]++
	}
	for _, term := range order {
		list := b.postings[term]
		if n := len(list); n > 0 && list[n-1].DocID >= docID {
			return fmt.Errorf("document %d added after %d", docID, list[n-1].DocID)
		}
		freq := min(tf[term], math.MaxUint16)
		b.postings[term] = append(list, Posting{DocID: docID, Frequency: uint16(freq)})
	}
	b.docs++
	return nil
}

// Documents returns the number of non-empty documents added.
func (b *Builder) Documents() int { return b.docs }

// Build encodes every posting list, in term order, through w.
func (b *Builder) Build(w *SegmentWriter) (*TermIndex, error) {
	terms := make([]string, 0, len(b.postings))
	for term := range b.postings {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	df := make(map[string]uint32, len(terms))
	locs := make(map[string][]Location, len(terms))
	var buf []byte
	for _, term := range terms {
		list := b.postings[term]
		buf = Encode(buf[:0], list)
		l, err := w.Append(buf)
		if err != nil {
			return nil, fmt.Errorf("writing postings for %q: %w", term, err)
		}
		df[term] = uint32(len(list))
		locs[term] = l
	}
	return New(b.name, df, locs)
}
