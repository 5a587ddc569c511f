// Package opusparser reads the Opus identification header and packet TOC bytes.
package opusparser

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/deepch/vdkpack/av"
)

// SampleRate is the Opus decoder output rate and the timescale of Opus tracks.
const SampleRate = 48000

// SeekPreroll is the decode preroll recommended after a seek (RFC 7845 section 4.6).
const SeekPreroll = 80 * time.Millisecond

var (
	ErrInvalidHeader = errors.New("opusparser: invalid OpusHead")
	ErrInvalidPacket = errors.New("opusparser: invalid opus packet")
)

var headMagic = []byte("OpusHead")

// CodecData is the content of an OpusHead identification header.
type CodecData struct {
	Version         uint8
	Channels        int
	PreSkip         uint16
	InputSampleRate uint32
	OutputGain      int16
	MappingFamily   uint8
}

func NewCodecData(channels int) *CodecData {
	return &CodecData{Version: 1, Channels: channels, PreSkip: 3840, InputSampleRate: SampleRate}
}

// ParseOpusHead parses the identification header of RFC 7845 section 5.1.
func ParseOpusHead(b []byte) (*CodecData, error) {
	if len(b) < 19 || !bytes.Equal(b[:8], headMagic) {
		return nil, ErrInvalidHeader
	}
	d := &CodecData{
		Version:         b[8],
		Channels:        int(b[9]),
		PreSkip:         binary.LittleEndian.Uint16(b[10:]),
		InputSampleRate: binary.LittleEndian.Uint32(b[12:]),
		OutputGain:      int16(binary.LittleEndian.Uint16(b[16:])),
		MappingFamily:   b[18],
	}
	if d.Version>>4 != 0 {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidHeader, d.Version)
	}
	if d.Channels == 0 {
		return nil, fmt.Errorf("%w: zero channels", ErrInvalidHeader)
	}
	if d.MappingFamily == 0 && d.Channels > 2 {
		return nil, fmt.Errorf("%w: %d channels with mapping family 0", ErrInvalidHeader, d.Channels)
	}
	return d, nil
}

// StreamInfo describes an audio track carrying this stream.
func (d CodecData) StreamInfo() av.StreamInfo {
	return av.StreamInfo{
		Type:          av.AudioStream,
		Codec:         av.OPUS,
		TimeScale:     SampleRate,
		SampleRate:    SampleRate,
		SeekPrerollNS: int64(SeekPreroll),
	}
}

// Channels reads the stereo flag of a packet's TOC byte.
func Channels(pkt []byte) int {
	if len(pkt) > 0 && (pkt[0]&0x4) == 0 {
		return 1
	}
	return 2
}

func PacketDuration(pkt []byte) (time.Duration, error) {
	if len(pkt) < 1 {
		return 0, fmt.Errorf("%w: empty", ErrInvalidPacket)
	}
	toc := pkt[0]
	config := toc >> 3
	code := toc & 0x3
	numFr := 0
	switch code {
	case 0:
		// one frame
		if len(pkt) > 1 {
			numFr = 1
		}
	case 1, 2:
		// two frames
		if len(pkt) > 2 {
			numFr = 2
		}
	case 3:
		// N frames
		if len(pkt) < 2 {
			return 0, fmt.Errorf("%w: missing frame count", ErrInvalidPacket)
		}
		numFr = int(pkt[1] & 0x3f)
	}
	return time.Duration(numFr) * opusFrameTimes[config], nil
}

// PacketSamples is the packet duration in 48 kHz ticks.
func PacketSamples(pkt []byte) (int64, error) {
	d, err := PacketDuration(pkt)
	if err != nil {
		return 0, err
	}
	return int64(d) * SampleRate / int64(time.Second), nil
}

var opusFrameTimes = []time.Duration{
	// SILK NB
	10 * time.Millisecond,
	20 * time.Millisecond,
	40 * time.Millisecond,
	60 * time.Millisecond,
	// SILK MB
	10 * time.Millisecond,
	20 * time.Millisecond,
	40 * time.Millisecond,
	60 * time.Millisecond,
	// SILK WB
	10 * time.Millisecond,
	20 * time.Millisecond,
	40 * time.Millisecond,
	60 * time.Millisecond,
	// Hybrid SWB
	10 * time.Millisecond,
	20 * time.Millisecond,
	// Hybrid FB
	10 * time.Millisecond,
	20 * time.Millisecond,
	// CELT NB
	2500 * time.Microsecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	20 * time.Millisecond,
	// CELT WB
	2500 * time.Microsecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	20 * time.Millisecond,
	// CELT SWB
	2500 * time.Microsecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	20 * time.Millisecond,
	// CELT FB
	2500 * time.Microsecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	20 * time.Millisecond,
}
