package index

import (
	"encoding/binary"
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/errors"
)

// RecordSize is the on-disk width of one posting: a big-endian uint32 doc ID
// followed by a big-endian uint16 term frequency, no padding.
const RecordSize = 6

// Posting is one (document, term frequency) pair of a term's posting list.
type Posting struct {
	DocID     uint32
	Frequency uint16
}

type PostingList []Posting

// ByteLen returns the number of bytes a posting list of docFreq records
// occupies in storage.
func ByteLen(docFreq uint32) int {
	return int(docFreq) * RecordSize
}

// Decode parses docFreq fixed-width records from raw, preserving their order.
// A buffer whose length is not exactly docFreq*RecordSize is a contract
// violation by the storage layer and is reported as ErrMalformedPosting.
func Decode(raw []byte, docFreq uint32) (PostingList, error) {
	if want := ByteLen(docFreq); len(raw) != want {
		return nil, fmt.Errorf("%w: got %d bytes, want %d for df=%d",
			apperrors.ErrMalformedPosting, len(raw), want, docFreq)
	}
	postings := make(PostingList, docFreq)
	for i := range postings {
		rec := raw[i*RecordSize : (i+1)*RecordSize]
		postings[i] = Posting{
			DocID:     binary.BigEndian.Uint32(rec[0:4]),
			Frequency: binary.BigEndian.Uint16(rec[4:6]),
		}
	}
	return postings, nil
}

// Encode appends the wire form of postings to dst.
func Encode(dst []byte, postings PostingList) []byte {
	for _, p := range postings {
		dst = binary.BigEndian.AppendUint32(dst, p.DocID)
		dst = binary.BigEndian.AppendUint16(dst, p.Frequency)
	}
	return dst
}

// Validate reports the first position at which postings are not strictly
// ascending by doc ID. Decode never calls it and never reorders or
// deduplicates input.
func Validate(postings PostingList) error {
	for i := 1; i < len(postings); i++ {
		if postings[i].DocID <= postings[i-1].DocID {
			return fmt.Errorf("%w: doc id %d at position %d follows %d",
				apperrors.ErrMalformedPosting, postings[i].DocID, i, postings[i-1].DocID)
		}
	}
	return nil
}
