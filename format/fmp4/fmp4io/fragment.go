package fmp4io

import (
	"fmt"

	"github.com/nareix/joy4/utils/bits/pio"
)

const MOOF = Tag(0x6d6f6f66)

type MovieFrag struct {
	Header *MovieFragHeader
	Tracks []*TrackFrag
}

func (a MovieFrag) Marshal(b []byte) (n int) {
	pio.PutU32BE(b[4:], uint32(MOOF))
	n += a.marshal(b[8:]) + 8
	pio.PutU32BE(b[0:], uint32(n))
	return
}

func (a MovieFrag) marshal(b []byte) (n int) {
	if a.Header != nil {
		n += a.Header.Marshal(b[n:])
	}
	for _, atom := range a.Tracks {
		n += atom.Marshal(b[n:])
	}
	return
}

func (a MovieFrag) Len() (n int) {
	n += 8
	if a.Header != nil {
		n += a.Header.Len()
	}
	for _, atom := range a.Tracks {
		n += atom.Len()
	}
	return
}

func (a MovieFrag) Children() (r []Atom) {
	if a.Header != nil {
		r = append(r, a.Header)
	}
	for _, atom := range a.Tracks {
		r = append(r, atom)
	}
	return
}

func (a MovieFrag) Tag() Tag {
	return MOOF
}

const MFHD = Tag(0x6d666864)

type MovieFragHeader struct {
	Version uint8
	Flags   uint32
	Seqnum  uint32
}

func (a MovieFragHeader) Marshal(b []byte) (n int) {
	pio.PutU32BE(b[4:], uint32(MFHD))
	n += a.marshal(b[8:]) + 8
	pio.PutU32BE(b[0:], uint32(n))
	return
}

func (a MovieFragHeader) marshal(b []byte) (n int) {
	pio.PutU8(b[n:], a.Version)
	n += 1
	pio.PutU24BE(b[n:], a.Flags)
	n += 3
	pio.PutU32BE(b[n:], a.Seqnum)
	n += 4
	return
}

func (a MovieFragHeader) Len() (n int) {
	return 8 + 1 + 3 + 4
}

func (a MovieFragHeader) Children() (r []Atom) {
	return
}

func (a MovieFragHeader) Tag() Tag {
	return MFHD
}

func (a MovieFragHeader) String() string {
	return fmt.Sprintf("seqnum=%d", a.Seqnum)
}

// TRUN is the atom type for TrackFragRun
const TRUN = Tag(0x7472756e)

// TrackFragRun atom. The per-sample lists are parallel; a list is written only
// when its flag is set, in which case it holds SampleCount values.
type TrackFragRun struct {
	Version          uint8
	Flags            TrackRunFlags
	SampleCount      uint32
	DataOffset       int32
	FirstSampleFlags SampleFlags

	SampleDurations  []uint32
	SampleSizes      []uint32
	SampleFlags      []SampleFlags
	SampleCTSOffsets []int32
}

// TrackRunFlags is the type of TrackFragRun's Flags
type TrackRunFlags uint32

// Defined flags for TrackFragRun
const (
	TrackRunDataOffset       TrackRunFlags = 0x01
	TrackRunFirstSampleFlags TrackRunFlags = 0x04
	TrackRunSampleDuration   TrackRunFlags = 0x100
	TrackRunSampleSize       TrackRunFlags = 0x200
	TrackRunSampleFlags      TrackRunFlags = 0x400
	TrackRunSampleCTS        TrackRunFlags = 0x800
)

func (a TrackFragRun) Marshal(b []byte) (n int) {
	pio.PutU32BE(b[4:], uint32(TRUN))
	n += a.marshal(b[8:]) + 8
	pio.PutU32BE(b[0:], uint32(n))
	return
}

func (a TrackFragRun) marshal(b []byte) (n int) {
	pio.PutU8(b[n:], a.Version)
	n += 1
	pio.PutU24BE(b[n:], uint32(a.Flags))
	n += 3
	pio.PutU32BE(b[n:], a.SampleCount)
	n += 4
	if a.Flags&TrackRunDataOffset != 0 {
		pio.PutI32BE(b[n:], a.DataOffset)
		n += 4
	}
	if a.Flags&TrackRunFirstSampleFlags != 0 {
		pio.PutU32BE(b[n:], uint32(a.FirstSampleFlags))
		n += 4
	}
	for i := 0; i < int(a.SampleCount); i++ {
		if a.Flags&TrackRunSampleDuration != 0 {
			pio.PutU32BE(b[n:], a.SampleDurations[i])
			n += 4
		}
		if a.Flags&TrackRunSampleSize != 0 {
			pio.PutU32BE(b[n:], a.SampleSizes[i])
			n += 4
		}
		if a.Flags&TrackRunSampleFlags != 0 {
			pio.PutU32BE(b[n:], uint32(a.SampleFlags[i]))
			n += 4
		}
		if a.Flags&TrackRunSampleCTS != 0 {
			if a.Version > 0 {
				pio.PutI32BE(b[n:], a.SampleCTSOffsets[i])
			} else {
				pio.PutU32BE(b[n:], uint32(a.SampleCTSOffsets[i]))
			}
			n += 4
		}
	}
	return
}

func (a TrackFragRun) Len() (n int) {
	n += 8
	n += 1
	n += 3
	n += 4
	if a.Flags&TrackRunDataOffset != 0 {
		n += 4
	}
	if a.Flags&TrackRunFirstSampleFlags != 0 {
		n += 4
	}
	perSample := 0
	for _, flag := range []TrackRunFlags{TrackRunSampleDuration, TrackRunSampleSize, TrackRunSampleFlags, TrackRunSampleCTS} {
		if a.Flags&flag != 0 {
			perSample += 4
		}
	}
	n += perSample * int(a.SampleCount)
	return
}

func (a TrackFragRun) Children() (r []Atom) {
	return
}

func (a TrackFragRun) Tag() Tag {
	return TRUN
}

func (a TrackFragRun) String() string {
	return fmt.Sprintf("samples=%d dataoffset=%d flags=0x%x", a.SampleCount, a.DataOffset, uint32(a.Flags))
}

const TFDT = Tag(0x74666474)

type TrackFragDecodeTime struct {
	Version uint8
	Flags   uint32
	Time    uint64
}

func (a TrackFragDecodeTime) Marshal(b []byte) (n int) {
	pio.PutU32BE(b[4:], uint32(TFDT))
	n += a.marshal(b[8:]) + 8
	pio.PutU32BE(b[0:], uint32(n))
	return
}

func (a TrackFragDecodeTime) marshal(b []byte) (n int) {
	pio.PutU8(b[n:], a.Version)
	n += 1
	pio.PutU24BE(b[n:], a.Flags)
	n += 3
	if a.Version != 0 {
		pio.PutU64BE(b[n:], a.Time)
		n += 8
	} else {
		pio.PutU32BE(b[n:], uint32(a.Time))
		n += 4
	}
	return
}

func (a TrackFragDecodeTime) Len() (n int) {
	n += 8
	n += 1
	n += 3
	if a.Version != 0 {
		n += 8
	} else {
		n += 4
	}
	return
}

func (a TrackFragDecodeTime) Children() (r []Atom) {
	return
}

func (a TrackFragDecodeTime) Tag() Tag {
	return TFDT
}

func (a TrackFragDecodeTime) String() string {
	return fmt.Sprintf("time=%d", a.Time)
}

const TRAF = Tag(0x74726166)

// TrackFrag is the 'traf' atom. Sample group descriptions are written before
// the sample-to-group atoms that reference them.
type TrackFrag struct {
	Header                  *TrackFragHeader
	DecodeTime              *TrackFragDecodeTime
	Run                     *TrackFragRun
	SampleGroupDescriptions []*SampleGroupDescription
	SampleToGroups          []*SampleToGroup
}

func (a TrackFrag) Marshal(b []byte) (n int) {
	pio.PutU32BE(b[4:], uint32(TRAF))
	n += a.marshal(b[8:]) + 8
	pio.PutU32BE(b[0:], uint32(n))
	return
}

func (a TrackFrag) marshal(b []byte) (n int) {
	for _, atom := range a.Children() {
		n += atom.Marshal(b[n:])
	}
	return
}

func (a TrackFrag) Len() (n int) {
	n += 8
	for _, atom := range a.Children() {
		n += atom.Len()
	}
	return
}

func (a TrackFrag) Children() (r []Atom) {
	if a.Header != nil {
		r = append(r, a.Header)
	}
	if a.DecodeTime != nil {
		r = append(r, a.DecodeTime)
	}
	if a.Run != nil {
		r = append(r, a.Run)
	}
	for _, atom := range a.SampleGroupDescriptions {
		r = append(r, atom)
	}
	for _, atom := range a.SampleToGroups {
		r = append(r, atom)
	}
	return
}

func (a TrackFrag) Tag() Tag {
	return TRAF
}

// TFHD is the atom type for TrackFragHeader
const TFHD = Tag(0x74666864)

// TrackFragHeader atom
type TrackFragHeader struct {
	Version                uint8
	Flags                  TrackFragFlags
	TrackID                uint32
	BaseDataOffset         uint64
	SampleDescriptionIndex uint32
	DefaultDuration        uint32
	DefaultSize            uint32
	DefaultFlags           SampleFlags
}

// TrackFragFlags is the type of TrackFragHeader's Flags
type TrackFragFlags uint32

// Defined flags for TrackFragHeader
const (
	TrackFragBaseDataOffset         TrackFragFlags = 0x01
	TrackFragSampleDescriptionIndex TrackFragFlags = 0x02
	TrackFragDefaultDuration        TrackFragFlags = 0x08
	TrackFragDefaultSize            TrackFragFlags = 0x10
	TrackFragDefaultFlags           TrackFragFlags = 0x20
	TrackFragDurationIsEmpty        TrackFragFlags = 0x010000
	TrackFragDefaultBaseIsMOOF      TrackFragFlags = 0x020000
)

func (a TrackFragHeader) Marshal(b []byte) (n int) {
	pio.PutU32BE(b[4:], uint32(TFHD))
	n += a.marshal(b[8:]) + 8
	pio.PutU32BE(b[0:], uint32(n))
	return
}

func (a TrackFragHeader) marshal(b []byte) (n int) {
	pio.PutU8(b[n:], a.Version)
	n += 1
	pio.PutU24BE(b[n:], uint32(a.Flags))
	n += 3
	pio.PutU32BE(b[n:], a.TrackID)
	n += 4
	if a.Flags&TrackFragBaseDataOffset != 0 {
		pio.PutU64BE(b[n:], a.BaseDataOffset)
		n += 8
	}
	if a.Flags&TrackFragSampleDescriptionIndex != 0 {
		pio.PutU32BE(b[n:], a.SampleDescriptionIndex)
		n += 4
	}
	if a.Flags&TrackFragDefaultDuration != 0 {
		pio.PutU32BE(b[n:], a.DefaultDuration)
		n += 4
	}
	if a.Flags&TrackFragDefaultSize != 0 {
		pio.PutU32BE(b[n:], a.DefaultSize)
		n += 4
	}
	if a.Flags&TrackFragDefaultFlags != 0 {
		pio.PutU32BE(b[n:], uint32(a.DefaultFlags))
		n += 4
	}
	return
}

func (a TrackFragHeader) Len() (n int) {
	n += 8
	n += 1
	n += 3
	n += 4
	if a.Flags&TrackFragBaseDataOffset != 0 {
		n += 8
	}
	for _, flag := range []TrackFragFlags{TrackFragSampleDescriptionIndex, TrackFragDefaultDuration, TrackFragDefaultSize, TrackFragDefaultFlags} {
		if a.Flags&flag != 0 {
			n += 4
		}
	}
	return
}

func (a TrackFragHeader) Children() (r []Atom) {
	return
}

func (a TrackFragHeader) Tag() Tag {
	return TFHD
}

func (a TrackFragHeader) String() string {
	return fmt.Sprintf("track=%d flags=0x%x", a.TrackID, uint32(a.Flags))
}
