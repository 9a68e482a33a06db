package index

import (
	"encoding/json"
	"fmt"
	"path"

	apperrors "github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/errors"
)

// Location is one piece of a term's posting list: a segment file and the byte
// offset inside it where the piece starts.
type Location struct {
	File   string
	Offset int64
}

// MarshalJSON encodes a Location as a [file, offset] pair.
func (l Location) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{l.File, l.Offset})
}

// UnmarshalJSON decodes a [file, offset] pair.
func (l *Location) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("posting location: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("posting location: want [file, offset], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &l.File); err != nil {
		return fmt.Errorf("posting location file: %w", err)
	}
	if err := json.Unmarshal(pair[1], &l.Offset); err != nil {
		return fmt.Errorf("posting location offset: %w", err)
	}
	return nil
}

// TermIndex is the read-only term statistics of one channel: document
// frequencies and posting locations. It is never mutated after New returns
// and is safe for concurrent readers.
type TermIndex struct {
	name      string
	docFreq   map[string]uint32
	locations map[string][]Location
}

// New builds a TermIndex, checking that both maps cover the same terms.
// Location file names are reduced to their base name so that they resolve
// against whatever directory or bucket prefix the blob backend is rooted at.
func New(name string, docFreq map[string]uint32, locations map[string][]Location) (*TermIndex, error) {
	if len(docFreq) != len(locations) {
		return nil, fmt.Errorf("%w: %s has %d df entries but %d location entries",
			apperrors.ErrIndexCorrupt, name, len(docFreq), len(locations))
	}
	rebased := make(map[string][]Location, len(locations))
	for term, locs := range locations {
		if _, ok := docFreq[term]; !ok {
			return nil, fmt.Errorf("%w: %s term %q has locations but no df", apperrors.ErrIndexCorrupt, name, term)
		}
		out := make([]Location, len(locs))
		for i, loc := range locs {
			out[i] = Location{File: path.Base(loc.File), Offset: loc.Offset}
		}
		rebased[term] = out
	}
	df := make(map[string]uint32, len(docFreq))
	for term, n := range docFreq {
		df[term] = n
	}
	return &TermIndex{name: name, docFreq: df, locations: rebased}, nil
}

// Name identifies the channel this index belongs to.
func (ix *TermIndex) Name() string { return ix.name }

// DocFrequency returns the number of documents containing term.
func (ix *TermIndex) DocFrequency(term string) (uint32, bool) {
	df, ok := ix.docFreq[term]
	return df, ok
}

// Locations returns where term's posting list is stored. The returned slice
// must not be modified.
func (ix *TermIndex) Locations(term string) ([]Location, bool) {
	locs, ok := ix.locations[term]
	return locs, ok
}

// Terms returns the vocabulary size.
func (ix *TermIndex) Terms() int { return len(ix.docFreq) }
