package h264parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/nareix/joy4/utils/bits"
)

// SPS holds the sequence parameter set fields the packager cares about.
type SPS struct {
	ProfileIdc         uint
	ConstraintSetFlags uint
	LevelIdc           uint
	ID                 uint

	ChromaFormatIdc       uint
	SeparateColourPlane   bool
	BitDepthLumaMinus8    uint
	BitDepthChromaMinus8  uint
	ScalingMatrixPresent  bool
	Log2MaxFrameNumMinus4 uint

	PicOrderCntType             uint
	Log2MaxPicOrderCntLsbMinus4 uint
	MaxNumRefFrames             uint
	GapsInFrameNumAllowed       bool

	PicWidthInMbsMinus1       uint
	PicHeightInMapUnitsMinus1 uint
	FrameMbsOnly              bool
	MbAdaptiveFrameField      bool
	Direct8x8Inference        bool

	FrameCropping         bool
	FrameCropLeftOffset   uint
	FrameCropRightOffset  uint
	FrameCropTopOffset    uint
	FrameCropBottomOffset uint

	VUIPresent               bool
	AspectRatioIdc           uint
	SarWidth                 uint
	SarHeight                uint
	VideoFullRange           bool
	ColourDescriptionPresent bool
	ColourPrimaries          uint
	TransferCharacteristics  uint
	MatrixCoefficients       uint
	TimingInfoPresent        bool
	NumUnitsInTick           uint
	TimeScale                uint
	FixedFrameRate           bool
	BitstreamRestriction     bool
	MaxNumReorderFrames      uint
	MaxDecFrameBuffering     uint
}

const extendedSAR = 255

// Table E-1
var (
	sarWidthTable  = [...]uint{0, 1, 12, 10, 16, 40, 24, 20, 32, 80, 18, 15, 64, 160, 4, 3, 2}
	sarHeightTable = [...]uint{0, 1, 11, 11, 11, 33, 11, 11, 11, 33, 11, 11, 33, 99, 3, 2, 1}
)

func isHighProfile(profileIdc uint) bool {
	switch profileIdc {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		return true
	}
	return false
}

// nal2rbsp strips emulation prevention bytes (00 00 03 -> 00 00).
func nal2rbsp(nal []byte) []byte {
	rbsp := make([]byte, 0, len(nal))
	zeros := 0
	for _, b := range nal {
		if zeros >= 2 && b == 0x03 {
			zeros = 0
			continue
		}
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
		rbsp = append(rbsp, b)
	}
	return rbsp
}

type spsReader struct {
	rd   *bytes.Reader
	size int
	br   *bits.GolombBitReader
}

func newSPSReader(rbsp []byte) *spsReader {
	rd := bytes.NewReader(rbsp)
	return &spsReader{
		rd:   rd,
		size: len(rbsp),
		br:   &bits.GolombBitReader{R: rd},
	}
}

func (r *spsReader) offset() int {
	return r.size - r.rd.Len()
}

func (r *spsReader) fail(field string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		err = ErrSPSTruncated
	}
	return parseErr(field, r.offset(), err)
}

func (r *spsReader) u(field string, n int) (uint, error) {
	v, err := r.br.ReadBits(n)
	if err != nil {
		return 0, r.fail(field, err)
	}
	return v, nil
}

func (r *spsReader) flag(field string) (bool, error) {
	v, err := r.br.ReadBit()
	if err != nil {
		return false, r.fail(field, err)
	}
	return v == 1, nil
}

func (r *spsReader) ue(field string) (uint, error) {
	v, err := r.br.ReadExponentialGolombCode()
	if err != nil {
		return 0, r.fail(field, err)
	}
	return v, nil
}

func (r *spsReader) se(field string) (int, error) {
	v, err := r.ue(field)
	if err != nil {
		return 0, err
	}
	if v&1 != 0 {
		return int((v + 1) / 2), nil
	}
	return -int(v / 2), nil
}

// ueMax reads an unsigned exp-Golomb value that must be below limit.
func (r *spsReader) ueMax(field string, limit uint) (uint, error) {
	v, err := r.ue(field)
	if err != nil {
		return 0, err
	}
	if v >= limit {
		return 0, parseErr(field, r.offset(), fmt.Errorf("%w: %d", ErrSPSInvalid, v))
	}
	return v, nil
}

func (r *spsReader) skip(field string, n int) error {
	_, err := r.u(field, n)
	return err
}

// ParseSPS decodes a sequence parameter set NAL unit.
func ParseSPS(nalu NALU) (*SPS, error) {
	if nalu.Family != FamilyH264 || !nalu.IsSPS() {
		return nil, fmt.Errorf("%w: not an sps (type %d)", ErrSPSInvalid, nalu.Type)
	}
	r := newSPSReader(nal2rbsp(nalu.Payload()))
	s := &SPS{ChromaFormatIdc: 1}
	var err error

	if s.ProfileIdc, err = r.u("ProfileIdc", 8); err != nil {
		return nil, err
	}
	if s.ConstraintSetFlags, err = r.u("ConstraintSetFlags", 8); err != nil {
		return nil, err
	}
	if s.LevelIdc, err = r.u("LevelIdc", 8); err != nil {
		return nil, err
	}
	if s.ID, err = r.ueMax("SeqParameterSetId", 32); err != nil {
		return nil, err
	}

	if isHighProfile(s.ProfileIdc) {
		if s.ChromaFormatIdc, err = r.ueMax("ChromaFormatIdc", 4); err != nil {
			return nil, err
		}
		if s.ChromaFormatIdc == 3 {
			if s.SeparateColourPlane, err = r.flag("SeparateColourPlane"); err != nil {
				return nil, err
			}
		}
		if s.BitDepthLumaMinus8, err = r.ueMax("BitDepthLumaMinus8", 7); err != nil {
			return nil, err
		}
		if s.BitDepthChromaMinus8, err = r.ueMax("BitDepthChromaMinus8", 7); err != nil {
			return nil, err
		}
		if err = r.skip("QpprimeYZeroTransformBypass", 1); err != nil {
			return nil, err
		}
		if s.ScalingMatrixPresent, err = r.flag("SeqScalingMatrixPresent"); err != nil {
			return nil, err
		}
		if s.ScalingMatrixPresent {
			count := 8
			if s.ChromaFormatIdc == 3 {
				count = 12
			}
			for i := 0; i < count; i++ {
				present, err := r.flag("SeqScalingListPresent")
				if err != nil {
					return nil, err
				}
				if !present {
					continue
				}
				size := 16
				if i >= 6 {
					size = 64
				}
				if err = skipScalingList(r, size); err != nil {
					return nil, err
				}
			}
		}
	}

	if s.Log2MaxFrameNumMinus4, err = r.ueMax("Log2MaxFrameNumMinus4", 13); err != nil {
		return nil, err
	}
	if s.PicOrderCntType, err = r.ueMax("PicOrderCntType", 3); err != nil {
		return nil, err
	}
	switch s.PicOrderCntType {
	case 0:
		if s.Log2MaxPicOrderCntLsbMinus4, err = r.ueMax("Log2MaxPicOrderCntLsbMinus4", 13); err != nil {
			return nil, err
		}
	case 1:
		if err = r.skip("DeltaPicOrderAlwaysZero", 1); err != nil {
			return nil, err
		}
		if _, err = r.se("OffsetForNonRefPic"); err != nil {
			return nil, err
		}
		if _, err = r.se("OffsetForTopToBottomField"); err != nil {
			return nil, err
		}
		cycle, err := r.ueMax("NumRefFramesInPicOrderCntCycle", 255)
		if err != nil {
			return nil, err
		}
		for i := uint(0); i < cycle; i++ {
			if _, err = r.se("OffsetForRefFrame"); err != nil {
				return nil, err
			}
		}
	}

	if s.MaxNumRefFrames, err = r.ue("MaxNumRefFrames"); err != nil {
		return nil, err
	}
	if s.GapsInFrameNumAllowed, err = r.flag("GapsInFrameNumValueAllowed"); err != nil {
		return nil, err
	}
	if s.PicWidthInMbsMinus1, err = r.ue("PicWidthInMbsMinus1"); err != nil {
		return nil, err
	}
	if s.PicHeightInMapUnitsMinus1, err = r.ue("PicHeightInMapUnitsMinus1"); err != nil {
		return nil, err
	}
	if s.FrameMbsOnly, err = r.flag("FrameMbsOnly"); err != nil {
		return nil, err
	}
	if !s.FrameMbsOnly {
		if s.MbAdaptiveFrameField, err = r.flag("MbAdaptiveFrameField"); err != nil {
			return nil, err
		}
	}
	if s.Direct8x8Inference, err = r.flag("Direct8x8Inference"); err != nil {
		return nil, err
	}
	if s.FrameCropping, err = r.flag("FrameCropping"); err != nil {
		return nil, err
	}
	if s.FrameCropping {
		if s.FrameCropLeftOffset, err = r.ue("FrameCropLeftOffset"); err != nil {
			return nil, err
		}
		if s.FrameCropRightOffset, err = r.ue("FrameCropRightOffset"); err != nil {
			return nil, err
		}
		if s.FrameCropTopOffset, err = r.ue("FrameCropTopOffset"); err != nil {
			return nil, err
		}
		if s.FrameCropBottomOffset, err = r.ue("FrameCropBottomOffset"); err != nil {
			return nil, err
		}
	}
	if s.VUIPresent, err = r.flag("VUIParametersPresent"); err != nil {
		return nil, err
	}
	if s.VUIPresent {
		if err = parseVUI(r, s); err != nil {
			return nil, parseErr("VUI", r.offset(), err)
		}
	}
	return s, nil
}

func skipScalingList(r *spsReader, size int) error {
	last, next := 8, 8
	for j := 0; j < size; j++ {
		if next != 0 {
			delta, err := r.se("DeltaScale")
			if err != nil {
				return err
			}
			next = (last + delta + 256) % 256
		}
		if next != 0 {
			last = next
		}
	}
	return nil
}

func parseVUI(r *spsReader, s *SPS) (err error) {
	var present bool
	if present, err = r.flag("AspectRatioInfoPresent"); err != nil {
		return
	}
	if present {
		if s.AspectRatioIdc, err = r.u("AspectRatioIdc", 8); err != nil {
			return
		}
		if s.AspectRatioIdc == extendedSAR {
			if s.SarWidth, err = r.u("SarWidth", 16); err != nil {
				return
			}
			if s.SarHeight, err = r.u("SarHeight", 16); err != nil {
				return
			}
		} else {
			if s.AspectRatioIdc >= uint(len(sarWidthTable)) {
				return parseErr("AspectRatioIdc", r.offset(), fmt.Errorf("%w: %d", ErrSPSInvalid, s.AspectRatioIdc))
			}
			s.SarWidth = sarWidthTable[s.AspectRatioIdc]
			s.SarHeight = sarHeightTable[s.AspectRatioIdc]
		}
	}

	if present, err = r.flag("OverscanInfoPresent"); err != nil {
		return
	}
	if present {
		if err = r.skip("OverscanAppropriate", 1); err != nil {
			return
		}
	}

	if present, err = r.flag("VideoSignalTypePresent"); err != nil {
		return
	}
	if present {
		if err = r.skip("VideoFormat", 3); err != nil {
			return
		}
		if s.VideoFullRange, err = r.flag("VideoFullRange"); err != nil {
			return
		}
		if s.ColourDescriptionPresent, err = r.flag("ColourDescriptionPresent"); err != nil {
			return
		}
		if s.ColourDescriptionPresent {
			if s.ColourPrimaries, err = r.u("ColourPrimaries", 8); err != nil {
				return
			}
			if s.TransferCharacteristics, err = r.u("TransferCharacteristics", 8); err != nil {
				return
			}
			if s.MatrixCoefficients, err = r.u("MatrixCoefficients", 8); err != nil {
				return
			}
		}
	}

	if present, err = r.flag("ChromaLocInfoPresent"); err != nil {
		return
	}
	if present {
		if _, err = r.ue("ChromaSampleLocTypeTopField"); err != nil {
			return
		}
		if _, err = r.ue("ChromaSampleLocTypeBottomField"); err != nil {
			return
		}
	}

	if s.TimingInfoPresent, err = r.flag("TimingInfoPresent"); err != nil {
		return
	}
	if s.TimingInfoPresent {
		if s.NumUnitsInTick, err = r.u("NumUnitsInTick", 32); err != nil {
			return
		}
		if s.TimeScale, err = r.u("TimeScale", 32); err != nil {
			return
		}
		if s.FixedFrameRate, err = r.flag("FixedFrameRate"); err != nil {
			return
		}
	}

	var nalHRD, vclHRD bool
	if nalHRD, err = r.flag("NalHrdParametersPresent"); err != nil {
		return
	}
	if nalHRD {
		if err = skipHRD(r); err != nil {
			return
		}
	}
	if vclHRD, err = r.flag("VclHrdParametersPresent"); err != nil {
		return
	}
	if vclHRD {
		if err = skipHRD(r); err != nil {
			return
		}
	}
	if nalHRD || vclHRD {
		if err = r.skip("LowDelayHrd", 1); err != nil {
			return
		}
	}
	if err = r.skip("PicStructPresent", 1); err != nil {
		return
	}

	if s.BitstreamRestriction, err = r.flag("BitstreamRestriction"); err != nil {
		return
	}
	if s.BitstreamRestriction {
		if err = r.skip("MotionVectorsOverPicBoundaries", 1); err != nil {
			return
		}
		for _, field := range []string{"MaxBytesPerPicDenom", "MaxBitsPerMbDenom", "Log2MaxMvLengthHorizontal", "Log2MaxMvLengthVertical"} {
			if _, err = r.ue(field); err != nil {
				return
			}
		}
		if s.MaxNumReorderFrames, err = r.ue("MaxNumReorderFrames"); err != nil {
			return
		}
		if s.MaxDecFrameBuffering, err = r.ue("MaxDecFrameBuffering"); err != nil {
			return
		}
	}
	return nil
}

func skipHRD(r *spsReader) error {
	cpbCnt, err := r.ueMax("CpbCntMinus1", 32)
	if err != nil {
		return err
	}
	if err = r.skip("BitRateScale", 4); err != nil {
		return err
	}
	if err = r.skip("CpbSizeScale", 4); err != nil {
		return err
	}
	for i := uint(0); i <= cpbCnt; i++ {
		if _, err = r.ue("BitRateValueMinus1"); err != nil {
			return err
		}
		if _, err = r.ue("CpbSizeValueMinus1"); err != nil {
			return err
		}
		if err = r.skip("CbrFlag", 1); err != nil {
			return err
		}
	}
	// initial_cpb_removal_delay_length_minus1, cpb_removal_delay_length_minus1,
	// dpb_output_delay_length_minus1, time_offset_length
	return r.skip("HrdDelayLengths", 20)
}

// ExtractResolution computes the cropped frame size and the pixel aspect ratio of a decoded SPS.
// A missing or zero sample aspect ratio component is reported as 1.
func ExtractResolution(s *SPS) (codedWidth, codedHeight, pixelWidth, pixelHeight uint32, err error) {
	if s == nil {
		err = ErrSPSNoFrameSize
		return
	}
	var cropUnitX, cropUnitY uint
	subHeightC := uint(1)
	switch s.ChromaFormatIdc {
	case 0:
		cropUnitX = 1
	case 1:
		cropUnitX = 2
		subHeightC = 2
	case 2:
		cropUnitX = 2
	case 3:
		cropUnitX = 1
	default:
		err = fmt.Errorf("%w: chroma_format_idc %d", ErrSPSInvalid, s.ChromaFormatIdc)
		return
	}
	if s.ChromaFormatIdc == 0 || s.SeparateColourPlane {
		// monochrome or separately coded planes: crop in luma samples
		cropUnitX = 1
		subHeightC = 1
	}
	frameMbsFactor := uint(2)
	if s.FrameMbsOnly {
		frameMbsFactor = 1
	}
	cropUnitY = subHeightC * frameMbsFactor

	width := int64(s.PicWidthInMbsMinus1+1) * 16
	height := int64(frameMbsFactor) * int64(s.PicHeightInMapUnitsMinus1+1) * 16
	width -= int64(cropUnitX) * int64(s.FrameCropLeftOffset+s.FrameCropRightOffset)
	height -= int64(cropUnitY) * int64(s.FrameCropTopOffset+s.FrameCropBottomOffset)
	if width <= 0 || height <= 0 || width > 0xffffffff || height > 0xffffffff {
		err = fmt.Errorf("%w: %dx%d", ErrSPSNoFrameSize, width, height)
		return
	}
	codedWidth, codedHeight = uint32(width), uint32(height)

	pixelWidth, pixelHeight = uint32(s.SarWidth), uint32(s.SarHeight)
	if pixelWidth == 0 {
		pixelWidth = 1
	}
	if pixelHeight == 0 {
		pixelHeight = 1
	}
	return
}

// FPS returns the nominal frame rate signalled in the VUI timing info, or 0.
func (s *SPS) FPS() float64 {
	if !s.TimingInfoPresent || s.NumUnitsInTick == 0 {
		return 0
	}
	return float64(s.TimeScale) / float64(2*s.NumUnitsInTick)
}
