package h264parser

import "fmt"

// Family selects the header layout used to decode a NAL unit.
type Family uint8

const (
	FamilyH264 Family = iota
	FamilyH265
)

func (f Family) String() string {
	switch f {
	case FamilyH264:
		return "H.264"
	case FamilyH265:
		return "H.265"
	default:
		return fmt.Sprintf("Family(%d)", uint8(f))
	}
}

// H.264 nal_unit_type values (Table 7-1).
const (
	NALU_UNSPECIFIED   = 0
	NALU_NON_IDR_SLICE = 1
	NALU_SLICE_DATA_A  = 2
	NALU_SLICE_DATA_B  = 3
	NALU_SLICE_DATA_C  = 4
	NALU_IDR_SLICE     = 5
	NALU_SEI           = 6
	NALU_SPS           = 7
	NALU_PPS           = 8
	NALU_AUD           = 9
	NALU_EOSEQ         = 10
	NALU_EOSTREAM      = 11
	NALU_FILLER        = 12
	NALU_SPS_EXT       = 13
	NALU_PREFIX        = 14
	NALU_SUBSET_SPS    = 15
	NALU_DPS           = 16
	NALU_AUX_SLICE     = 19
	NALU_SLICE_EXT     = 20
	NALU_SLICE_EXT_3D  = 21
)

// H.265 nal_unit_type values (Table 7-1).
const (
	NAL_UNIT_CODED_SLICE_TRAIL_N    = 0
	NAL_UNIT_CODED_SLICE_RASL_R     = 9
	NAL_UNIT_CODED_SLICE_BLA_W_LP   = 16
	NAL_UNIT_CODED_SLICE_IDR_W_RADL = 19
	NAL_UNIT_CODED_SLICE_IDR_N_LP   = 20
	NAL_UNIT_CODED_SLICE_CRA        = 21
	NAL_UNIT_VPS                    = 32
	NAL_UNIT_SPS                    = 33
	NAL_UNIT_PPS                    = 34
	NAL_UNIT_ACCESS_UNIT_DELIMITER  = 35
	NAL_UNIT_EOS                    = 36
	NAL_UNIT_EOB                    = 37
	NAL_UNIT_FILLER_DATA            = 38
	NAL_UNIT_PREFIX_SEI             = 39
	NAL_UNIT_SUFFIX_SEI             = 40
)

// NALU is a view of one NAL unit inside a buffer owned by someone else.
// Data aliases that buffer and is never copied.
type NALU struct {
	Family     Family
	Type       int
	RefIdc     int
	HeaderSize int
	Data       []byte
}

// NewNALU decodes the header of data as a NAL unit of the given family.
func NewNALU(family Family, data []byte) (NALU, error) {
	switch family {
	case FamilyH264:
		return newH264NALU(data)
	case FamilyH265:
		return newH265NALU(data)
	default:
		return NALU{}, fmt.Errorf("%w: %d", ErrNALUFamily, family)
	}
}

func newH264NALU(data []byte) (NALU, error) {
	if len(data) < 1 {
		return NALU{}, ErrNALUTooShort
	}
	if data[0]&0x80 != 0 {
		return NALU{}, ErrNALUForbiddenBit
	}
	nalu := NALU{
		Family:     FamilyH264,
		Type:       int(data[0] & 0x1f),
		RefIdc:     int(data[0]>>5) & 0x3,
		HeaderSize: 1,
		Data:       data,
	}
	switch {
	case nalu.Type >= NALU_NON_IDR_SLICE && nalu.Type <= NALU_DPS:
	case nalu.Type == NALU_AUX_SLICE:
	case nalu.Type == NALU_SLICE_EXT || nalu.Type == NALU_SLICE_EXT_3D:
	default:
		return NALU{}, fmt.Errorf("%w: %d", ErrNALUUnknownType, nalu.Type)
	}
	// svc/mvc/3d extension header
	if nalu.Type == NALU_PREFIX || nalu.Type == NALU_SLICE_EXT || nalu.Type == NALU_SLICE_EXT_3D {
		nalu.HeaderSize += 3
	}
	if len(data) < nalu.HeaderSize {
		return NALU{}, ErrNALUTooShort
	}
	return nalu, nil
}

func newH265NALU(data []byte) (NALU, error) {
	if len(data) < 2 {
		return NALU{}, ErrNALUTooShort
	}
	if data[0]&0x80 != 0 {
		return NALU{}, ErrNALUForbiddenBit
	}
	nalu := NALU{
		Family:     FamilyH265,
		Type:       int(data[0]>>1) & 0x3f,
		HeaderSize: 2,
		Data:       data,
	}
	switch {
	case nalu.Type <= NAL_UNIT_CODED_SLICE_RASL_R:
	case nalu.Type >= NAL_UNIT_CODED_SLICE_BLA_W_LP && nalu.Type <= NAL_UNIT_CODED_SLICE_CRA:
	case nalu.Type >= NAL_UNIT_VPS && nalu.Type <= NAL_UNIT_SUFFIX_SEI:
	default:
		return NALU{}, fmt.Errorf("%w: %d", ErrNALUUnknownType, nalu.Type)
	}
	// nuh_temporal_id_plus1
	if data[1]&0x7 == 0 {
		return NALU{}, fmt.Errorf("%w: zero temporal id", ErrNALUUnknownType)
	}
	return nalu, nil
}

// Payload returns the bytes following the NAL unit header.
func (n NALU) Payload() []byte {
	return n.Data[n.HeaderSize:]
}

// IsSPS reports whether the unit is a sequence parameter set of its family.
func (n NALU) IsSPS() bool {
	if n.Family == FamilyH265 {
		return n.Type == NAL_UNIT_SPS
	}
	return n.Type == NALU_SPS
}

// IsPPS reports whether the unit is a picture parameter set of its family.
func (n NALU) IsPPS() bool {
	if n.Family == FamilyH265 {
		return n.Type == NAL_UNIT_PPS
	}
	return n.Type == NALU_PPS
}

// IsKeyFrame reports whether the unit is an IDR/IRAP slice.
func (n NALU) IsKeyFrame() bool {
	if n.Family == FamilyH265 {
		return n.Type >= NAL_UNIT_CODED_SLICE_BLA_W_LP && n.Type <= NAL_UNIT_CODED_SLICE_CRA
	}
	return n.Type == NALU_IDR_SLICE
}

func (n NALU) String() string {
	return fmt.Sprintf("%s nalu type=%d size=%d", n.Family, n.Type, len(n.Data))
}
