package h264parser

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/deepch/vdkpack/av"
	"github.com/deepch/vdkpack/logger"
	"github.com/nareix/joy4/utils/bits/pio"
)

// AVCDecoderConfRecord is the AVCDecoderConfigurationRecord of ISO/IEC 14496-15 5.3.3.1.2.
// SPS and PPS entries alias a private copy of the bytes the record was parsed from.
type AVCDecoderConfRecord struct {
	Version              uint8
	AVCProfileIndication uint8
	ProfileCompatibility uint8
	AVCLevelIndication   uint8
	LengthSizeMinusOne   uint8
	SPS                  []NALU
	PPS                  []NALU
	// SPSExtPPSCount is how many trailing PPS entries belong to the High profile
	// extension table rather than the primary PPS table.
	SPSExtPPSCount int

	// taken from the first SPS
	TransferCharacteristics uint8
	CodedWidth              uint32
	CodedHeight             uint32
	PixelWidth              uint32
	PixelHeight             uint32

	raw []byte
}

const (
	decconfHeaderSize     = 6
	highProfileExtMinSize = 4

	maxDecconfSPS  = 0x1f
	maxDecconfPPS  = 0xff
	maxDecconfNALU = 0xffff
)

// profiles whose record carries the chroma/bit depth trailer
func hasSPSExtTrailer(profile uint8) bool {
	switch profile {
	case 100, 110, 122, 144:
		return true
	}
	return false
}

// NALULengthSize is the size in bytes of the length prefix in front of every sample NAL unit.
func (r AVCDecoderConfRecord) NALULengthSize() int {
	return int(r.LengthSizeMinusOne) + 1
}

// ParseAVCDecoderConfRecord parses a complete decoder configuration record.
func ParseAVCDecoderConfRecord(ctx context.Context, b []byte) (*AVCDecoderConfRecord, error) {
	rec := &AVCDecoderConfRecord{}
	if err := rec.Unmarshal(ctx, b); err != nil {
		return nil, err
	}
	return rec, nil
}

// Unmarshal parses b and replaces the record with the result. On failure the record is left untouched.
func (r *AVCDecoderConfRecord) Unmarshal(ctx context.Context, b []byte) error {
	rec, err := parseDecconf(ctx, b)
	if err != nil {
		if errors.Is(err, ErrDecconfInvalid) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrDecconfInvalid, err)
	}
	*r = *rec
	return nil
}

func readNALU(b []byte, n int, field string) (NALU, int, error) {
	if len(b) < n+2 {
		return NALU{}, n, parseErr(field+"Length", n, ErrDecconfInvalid)
	}
	size := int(pio.U16BE(b[n:]))
	n += 2
	if len(b) < n+size {
		return NALU{}, n, parseErr(field, n, ErrDecconfInvalid)
	}
	nalu, err := NewNALU(FamilyH264, b[n:n+size:n+size])
	if err != nil {
		return NALU{}, n, parseErr(field, n, err)
	}
	return nalu, n + size, nil
}

func parseDecconf(ctx context.Context, in []byte) (*AVCDecoderConfRecord, error) {
	b := make([]byte, len(in))
	copy(b, in)
	rec := &AVCDecoderConfRecord{raw: b}

	if len(b) < decconfHeaderSize {
		return nil, parseErr("Header", 0, ErrDecconfInvalid)
	}
	rec.Version = b[0]
	if rec.Version != 1 {
		return nil, fmt.Errorf("%w: version %d", ErrDecconfInvalid, rec.Version)
	}
	rec.AVCProfileIndication = b[1]
	rec.ProfileCompatibility = b[2]
	rec.AVCLevelIndication = b[3]
	rec.LengthSizeMinusOne = b[4] & 0x3
	if rec.LengthSizeMinusOne == 2 {
		return nil, fmt.Errorf("%w: invalid nalu length size 3", ErrDecconfInvalid)
	}
	spsCount := int(b[5] & 0x1f)
	if spsCount == 0 {
		logger.Debugf(ctx, "AVCDecoderConfigurationRecord without SPS")
	}
	n := decconfHeaderSize

	for i := 0; i < spsCount; i++ {
		nalu, next, err := readNALU(b, n, "SPS")
		if err != nil {
			return nil, err
		}
		if nalu.Type != NALU_SPS {
			return nil, parseErr("SPS", n, fmt.Errorf("%w: nalu type %d", ErrDecconfInvalid, nalu.Type))
		}
		if i == 0 {
			if err = rec.applySPS(ctx, nalu); err != nil {
				return nil, parseErr("SPS", n, err)
			}
		}
		rec.SPS = append(rec.SPS, nalu)
		n = next
	}

	if len(b) < n+1 {
		return nil, parseErr("PPSCount", n, ErrDecconfInvalid)
	}
	ppsCount := int(b[n])
	n++
	for i := 0; i < ppsCount; i++ {
		nalu, next, err := readNALU(b, n, "PPS")
		if err != nil {
			return nil, err
		}
		if nalu.Type != NALU_PPS {
			return nil, parseErr("PPS", n, fmt.Errorf("%w: nalu type %d", ErrDecconfInvalid, nalu.Type))
		}
		rec.PPS = append(rec.PPS, nalu)
		n = next
	}

	if hasSPSExtTrailer(rec.AVCProfileIndication) {
		if len(b)-n < highProfileExtMinSize {
			logger.Warnf(ctx, "AVCDecoderConfigurationRecord: profile %d record has no chroma/bit depth trailer (%d bytes left)", rec.AVCProfileIndication, len(b)-n)
			return rec, nil
		}
		// chroma_format, bit_depth_luma_minus8, bit_depth_chroma_minus8
		n += 3
		extCount := int(b[n])
		n++
		for i := 0; i < extCount; i++ {
			nalu, next, err := readNALU(b, n, "SPSExt")
			if err != nil {
				return nil, err
			}
			if nalu.Type != NALU_PPS {
				return nil, parseErr("SPSExt", n, fmt.Errorf("%w: nalu type %d", ErrDecconfInvalid, nalu.Type))
			}
			rec.PPS = append(rec.PPS, nalu)
			rec.SPSExtPPSCount++
			n = next
		}
	}
	return rec, nil
}

func (r *AVCDecoderConfRecord) applySPS(ctx context.Context, nalu NALU) error {
	sps, err := ParseSPS(nalu)
	if err != nil {
		return err
	}
	if sps.ProfileIdc != uint(r.AVCProfileIndication) {
		logger.Warnf(ctx, "AVCDecoderConfigurationRecord: profile %d disagrees with SPS profile_idc %d", r.AVCProfileIndication, sps.ProfileIdc)
	}
	r.TransferCharacteristics = uint8(sps.TransferCharacteristics)
	r.CodedWidth, r.CodedHeight, r.PixelWidth, r.PixelHeight, err = ExtractResolution(sps)
	return err
}

// CodecString returns the RFC 6381 codec parameter, for example "avc1.64001f".
func (r AVCDecoderConfRecord) CodecString(fourcc av.FourCC) string {
	return CodecString(fourcc, r.AVCProfileIndication, r.ProfileCompatibility, r.AVCLevelIndication)
}

// CodecString formats a codec parameter from raw profile, compatibility and level bytes.
func CodecString(fourcc av.FourCC, profile, compat, level uint8) string {
	return fourcc.String() + "." + hex.EncodeToString([]byte{profile, compat, level})
}

// splitPPS separates the primary PPS table from the High profile extension entries.
// The primary table takes at most 255 entries, the rest go to the extension table.
func (r AVCDecoderConfRecord) splitPPS() (primary, ext []NALU) {
	if !hasSPSExtTrailer(r.AVCProfileIndication) {
		return r.PPS, nil
	}
	cut := len(r.PPS) - r.SPSExtPPSCount
	if cut < 0 {
		cut = 0
	}
	if cut > maxDecconfPPS {
		cut = maxDecconfPPS
	}
	return r.PPS[:cut], r.PPS[cut:]
}

// Validate reports whether the record fits the counts and lengths of the serialized form.
func (r AVCDecoderConfRecord) Validate() error {
	if len(r.SPS) > maxDecconfSPS {
		return fmt.Errorf("%w: %d sps entries", ErrDecconfInvalid, len(r.SPS))
	}
	primary, ext := r.splitPPS()
	if len(primary) > maxDecconfPPS {
		return fmt.Errorf("%w: %d pps entries", ErrDecconfInvalid, len(primary))
	}
	if len(ext) > maxDecconfPPS {
		return fmt.Errorf("%w: %d sps extension entries", ErrDecconfInvalid, len(ext))
	}
	for _, list := range [][]NALU{r.SPS, r.PPS} {
		for _, nalu := range list {
			if len(nalu.Data) > maxDecconfNALU {
				return fmt.Errorf("%w: %s of %d bytes", ErrDecconfInvalid, nalu, len(nalu.Data))
			}
		}
	}
	return nil
}

// Len is the serialized size of the record.
func (r AVCDecoderConfRecord) Len() (n int) {
	n = decconfHeaderSize
	for _, sps := range r.SPS {
		n += 2 + len(sps.Data)
	}
	n++
	for _, pps := range r.PPS {
		n += 2 + len(pps.Data)
	}
	if hasSPSExtTrailer(r.AVCProfileIndication) {
		n += highProfileExtMinSize
	}
	return
}

// MarshalBinary validates the record and returns its serialized form.
func (r AVCDecoderConfRecord) MarshalBinary() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	b := make([]byte, r.Len())
	return b[:r.Marshal(b)], nil
}

// Marshal writes the record into b, which must hold at least Len() bytes.
// The record must pass Validate; counts and lengths are not checked here.
func (r AVCDecoderConfRecord) Marshal(b []byte) (n int) {
	b[0] = 1
	b[1] = r.AVCProfileIndication
	b[2] = r.ProfileCompatibility
	b[3] = r.AVCLevelIndication
	b[4] = r.LengthSizeMinusOne | 0xfc
	b[5] = uint8(len(r.SPS)) | 0xe0
	n += decconfHeaderSize

	for _, sps := range r.SPS {
		pio.PutU16BE(b[n:], uint16(len(sps.Data)))
		n += 2
		copy(b[n:], sps.Data)
		n += len(sps.Data)
	}

	primary, ext := r.splitPPS()
	b[n] = uint8(len(primary))
	n++
	n += putNALUs(b[n:], primary)

	if hasSPSExtTrailer(r.AVCProfileIndication) {
		chroma, lumaDepth, chromaDepth := uint8(1), uint8(0), uint8(0)
		if len(r.SPS) > 0 {
			if sps, err := ParseSPS(r.SPS[0]); err == nil {
				chroma = uint8(sps.ChromaFormatIdc)
				lumaDepth = uint8(sps.BitDepthLumaMinus8)
				chromaDepth = uint8(sps.BitDepthChromaMinus8)
			}
		}
		b[n] = 0xfc | chroma
		b[n+1] = 0xf8 | lumaDepth
		b[n+2] = 0xf8 | chromaDepth
		b[n+3] = uint8(len(ext))
		n += highProfileExtMinSize
		n += putNALUs(b[n:], ext)
	}
	return
}

func putNALUs(b []byte, nalus []NALU) (n int) {
	for _, nalu := range nalus {
		pio.PutU16BE(b[n:], uint16(len(nalu.Data)))
		n += 2
		n += copy(b[n:], nalu.Data)
	}
	return
}

// Bytes returns the bytes the record was parsed from.
func (r AVCDecoderConfRecord) Bytes() []byte {
	return r.raw
}

// StreamInfo describes a video track carrying this configuration.
func (r AVCDecoderConfRecord) StreamInfo(fourcc av.FourCC, timeScale uint32) av.StreamInfo {
	return av.StreamInfo{
		Type:           av.VideoStream,
		Codec:          fourcc,
		TimeScale:      timeScale,
		Width:          r.CodedWidth,
		Height:         r.CodedHeight,
		PixelWidth:     r.PixelWidth,
		PixelHeight:    r.PixelHeight,
		NALULengthSize: uint8(r.NALULengthSize()),
	}
}
