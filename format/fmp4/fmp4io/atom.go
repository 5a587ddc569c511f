// Package fmp4io serializes the ISO-BMFF atoms of a media segment.
package fmp4io

import (
	"fmt"
	"io"
	"strings"

	"github.com/nareix/joy4/utils/bits/pio"
)

type Tag uint32

func (a Tag) String() string {
	var b [4]byte
	pio.PutU32BE(b[:], uint32(a))
	for i := 0; i < 4; i++ {
		if b[i] == 0 {
			b[i] = ' '
		}
	}
	return string(b[:])
}

func StringToTag(tag string) Tag {
	var b [4]byte
	copy(b[:], []byte(tag))
	return Tag(pio.U32BE(b[:]))
}

// Atom is a box that can size and write itself.
type Atom interface {
	Tag() Tag
	Marshal([]byte) int
	Len() int
	Children() []Atom
}

type FullAtom struct {
	Version uint8
	Flags   uint32
}

func (f FullAtom) marshalAtom(b []byte, tag Tag) (n int) {
	pio.PutU32BE(b[4:], uint32(tag))
	pio.PutU8(b[8:], f.Version)
	pio.PutU24BE(b[9:], f.Flags)
	return 12
}

func (f FullAtom) atomLen() int {
	return 12
}

const MDAT = Tag(0x6d646174)

// MediaDataHeaderLen is the size of the 'mdat' header written in front of fragment payloads.
const MediaDataHeaderLen = 8

// PutMediaDataHeader writes an 'mdat' header for a payload of size bytes.
func PutMediaDataHeader(b []byte, size int) int {
	pio.PutU32BE(b, uint32(size+MediaDataHeaderLen))
	pio.PutU32BE(b[4:], uint32(MDAT))
	return MediaDataHeaderLen
}

func printatom(out io.Writer, root Atom, depth int) {
	type stringintf interface {
		String() string
	}

	fmt.Fprintf(out, "%s%s size=%d", strings.Repeat(" ", depth*2), root.Tag(), root.Len())
	if str, ok := root.(stringintf); ok {
		fmt.Fprint(out, " ", str.String())
	}
	fmt.Fprintln(out)

	for _, child := range root.Children() {
		printatom(out, child, depth+1)
	}
}

// FprintAtom writes an indented outline of root and its children.
func FprintAtom(out io.Writer, root Atom) {
	printatom(out, root, 0)
}
