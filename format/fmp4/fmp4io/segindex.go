package fmp4io

import (
	"fmt"

	"github.com/nareix/joy4/utils/bits/pio"
)

const SIDX = Tag(0x73696478)

// SAP types of a segment reference
const (
	SAPTypeUnknown uint8 = 0
	SAPType1       uint8 = 1
)

type SegmentIndex struct {
	FullAtom
	ReferenceID uint32
	TimeScale   uint32
	EarliestPTS uint64
	FirstOffset uint64
	References  []SegmentReference
}

// SegmentReference summarises one subsegment. EarliestPresentationTime is
// carried for the index writer and is not serialized per reference.
type SegmentReference struct {
	ReferencesBox            bool
	ReferencedSize           uint32
	SubsegmentDuration       uint32
	StartsWithSAP            bool
	SAPType                  uint8
	SAPDeltaTime             uint32
	EarliestPresentationTime uint64
}

func (s SegmentIndex) Tag() Tag {
	return SIDX
}

func (s SegmentIndex) Len() (n int) {
	n = s.FullAtom.atomLen()
	n += 4
	n += 4
	if s.Version == 0 {
		n += 4
		n += 4
	} else {
		n += 8
		n += 8
	}
	n += 2
	n += 2
	n += 12 * len(s.References)
	return
}

func (s SegmentIndex) Marshal(b []byte) (n int) {
	n = s.FullAtom.marshalAtom(b, SIDX)
	pio.PutU32BE(b[n:], s.ReferenceID)
	n += 4
	pio.PutU32BE(b[n:], s.TimeScale)
	n += 4
	if s.Version == 0 {
		pio.PutU32BE(b[n:], uint32(s.EarliestPTS))
		n += 4
		pio.PutU32BE(b[n:], uint32(s.FirstOffset))
		n += 4
	} else {
		pio.PutU64BE(b[n:], s.EarliestPTS)
		n += 8
		pio.PutU64BE(b[n:], s.FirstOffset)
		n += 8
	}
	pio.PutU16BE(b[n:], 0)
	n += 2
	pio.PutU16BE(b[n:], uint16(len(s.References)))
	n += 2
	for _, ref := range s.References {
		v := ref.ReferencedSize & 0x7fffffff
		if ref.ReferencesBox {
			v |= 1 << 31
		}
		pio.PutU32BE(b[n:], v)
		n += 4
		pio.PutU32BE(b[n:], ref.SubsegmentDuration)
		n += 4
		v = uint32(ref.SAPType&0x7)<<28 | ref.SAPDeltaTime&0x0fffffff
		if ref.StartsWithSAP {
			v |= 1 << 31
		}
		pio.PutU32BE(b[n:], v)
		n += 4
	}
	pio.PutU32BE(b, uint32(n))
	return
}

func (s SegmentIndex) Children() []Atom {
	return nil
}

func (s SegmentIndex) String() string {
	return fmt.Sprintf("reference_id=%d timescale=%d ept=%d refs=%d", s.ReferenceID, s.TimeScale, s.EarliestPTS, len(s.References))
}
