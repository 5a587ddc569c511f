package fmp4io

import "github.com/nareix/joy4/utils/bits/pio"

const (
	SBGP = Tag(0x73626770)
	SGPD = Tag(0x73677064)
)

// Grouping types
const (
	GroupingRoll = Tag(0x726f6c6c) // roll recovery
	GroupingSeig = Tag(0x73656967) // cenc sample encryption information
)

// Sample group description indices (ISO/IEC 14496-12 8.9.4). Indices above
// TrackFragmentGroupDescriptionIndexBase refer to descriptions carried in the same traf.
const (
	TrackGroupDescriptionIndexBase         = 0
	TrackFragmentGroupDescriptionIndexBase = 0x10000
)

type SampleToGroupEntry struct {
	SampleCount           uint32
	GroupDescriptionIndex uint32
}

// SampleToGroup is the 'sbgp' atom.
type SampleToGroup struct {
	FullAtom
	GroupingType          Tag
	GroupingTypeParameter uint32
	Entries               []SampleToGroupEntry
}

func (a SampleToGroup) Tag() Tag {
	return SBGP
}

func (a SampleToGroup) Len() (n int) {
	n = a.FullAtom.atomLen()
	n += 4
	if a.Version == 1 {
		n += 4
	}
	n += 4
	n += 8 * len(a.Entries)
	return
}

func (a SampleToGroup) Marshal(b []byte) (n int) {
	n = a.FullAtom.marshalAtom(b, SBGP)
	pio.PutU32BE(b[n:], uint32(a.GroupingType))
	n += 4
	if a.Version == 1 {
		pio.PutU32BE(b[n:], a.GroupingTypeParameter)
		n += 4
	}
	pio.PutU32BE(b[n:], uint32(len(a.Entries)))
	n += 4
	for _, entry := range a.Entries {
		pio.PutU32BE(b[n:], entry.SampleCount)
		n += 4
		pio.PutU32BE(b[n:], entry.GroupDescriptionIndex)
		n += 4
	}
	pio.PutU32BE(b, uint32(n))
	return
}

func (a SampleToGroup) Children() []Atom {
	return nil
}

// SampleGroupEntry is one entry of a sample group description.
type SampleGroupEntry interface {
	Len() int
	Marshal(b []byte) int
}

// RollRecoveryEntry is the 'roll' VisualRollRecoveryEntry / AudioRollRecoveryEntry.
type RollRecoveryEntry struct {
	RollDistance int16
}

func (e RollRecoveryEntry) Len() int {
	return 2
}

func (e RollRecoveryEntry) Marshal(b []byte) int {
	pio.PutI16BE(b, e.RollDistance)
	return 2
}

// SampleGroupDescription is the 'sgpd' atom. It is always written as version 1.
type SampleGroupDescription struct {
	FullAtom
	GroupingType Tag
	Entries      []SampleGroupEntry
}

// defaultLength is the shared entry size, or 0 when entries differ in size.
func (a SampleGroupDescription) defaultLength() int {
	if len(a.Entries) == 0 {
		return 0
	}
	l := a.Entries[0].Len()
	for _, entry := range a.Entries[1:] {
		if entry.Len() != l {
			return 0
		}
	}
	return l
}

func (a SampleGroupDescription) Tag() Tag {
	return SGPD
}

func (a SampleGroupDescription) Len() (n int) {
	n = a.FullAtom.atomLen()
	n += 4 // grouping_type
	n += 4 // default_length
	n += 4 // entry_count
	perEntry := a.defaultLength() == 0
	for _, entry := range a.Entries {
		if perEntry {
			n += 4
		}
		n += entry.Len()
	}
	return
}

func (a SampleGroupDescription) Marshal(b []byte) (n int) {
	fa := a.FullAtom
	fa.Version = 1
	n = fa.marshalAtom(b, SGPD)
	pio.PutU32BE(b[n:], uint32(a.GroupingType))
	n += 4
	defaultLength := a.defaultLength()
	pio.PutU32BE(b[n:], uint32(defaultLength))
	n += 4
	pio.PutU32BE(b[n:], uint32(len(a.Entries)))
	n += 4
	for _, entry := range a.Entries {
		if defaultLength == 0 {
			pio.PutU32BE(b[n:], uint32(entry.Len()))
			n += 4
		}
		n += entry.Marshal(b[n:])
	}
	pio.PutU32BE(b, uint32(n))
	return
}

func (a SampleGroupDescription) Children() []Atom {
	return nil
}
