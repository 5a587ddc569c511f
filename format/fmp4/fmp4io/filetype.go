package fmp4io

import "github.com/nareix/joy4/utils/bits/pio"

const STYP = Tag(0x73747970)

// Brands
const (
	BrandMSDH = 0x6d736468 // msdh
	BrandMSIX = 0x6d736978 // msix
)

type SegmentType struct {
	MajorBrand       uint32
	MinorVersion     uint32
	CompatibleBrands []uint32
}

func (t SegmentType) Tag() Tag {
	return STYP
}

func (f SegmentType) Marshal(b []byte) (n int) {
	l := 16 + 4*len(f.CompatibleBrands)
	pio.PutU32BE(b, uint32(l))
	pio.PutU32BE(b[4:], uint32(STYP))
	pio.PutU32BE(b[8:], f.MajorBrand)
	pio.PutU32BE(b[12:], f.MinorVersion)
	for i, v := range f.CompatibleBrands {
		pio.PutU32BE(b[16+4*i:], v)
	}
	return l
}

func (f SegmentType) Len() int {
	return 16 + 4*len(f.CompatibleBrands)
}

func (f SegmentType) Children() []Atom {
	return nil
}
