// Package av defines the stream descriptors and samples that flow through the packager.
package av

import (
	"encoding/binary"
	"fmt"
	"time"
)

// StreamType tells whether a stream carries audio, video or text.
type StreamType uint8

const (
	UnknownStream StreamType = iota
	AudioStream
	VideoStream
	TextStream
)

func (t StreamType) String() string {
	switch t {
	case AudioStream:
		return "audio"
	case VideoStream:
		return "video"
	case TextStream:
		return "text"
	default:
		return "unknown"
	}
}

func (t StreamType) IsAudio() bool {
	return t == AudioStream
}

func (t StreamType) IsVideo() bool {
	return t == VideoStream
}

// FourCC is a four character code such as a sample entry name.
type FourCC uint32

const (
	AVC1 = FourCC(0x61766331)
	AVC3 = FourCC(0x61766333)
	MP4A = FourCC(0x6d703461)
	OPUS = FourCC(0x4f707573)
)

func (f FourCC) String() string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(f))
	return string(b[:])
}

// StringToFourCC packs the first four bytes of s. Shorter strings are padded with spaces.
func StringToFourCC(s string) (FourCC, error) {
	if len(s) == 0 || len(s) > 4 {
		return 0, fmt.Errorf("av: invalid fourcc %q", s)
	}
	b := [4]byte{' ', ' ', ' ', ' '}
	copy(b[:], s)
	return FourCC(binary.BigEndian.Uint32(b[:])), nil
}

// StreamInfo describes one elementary stream as seen by the packager.
type StreamInfo struct {
	Type      StreamType
	Codec     FourCC
	TimeScale uint32

	// audio
	SampleRate    uint32
	SeekPrerollNS int64

	// video
	Width          uint32
	Height         uint32
	PixelWidth     uint32
	PixelHeight    uint32
	NALULengthSize uint8
}

// SeekPreroll returns the audio seek preroll. It is zero for non-audio streams.
func (s StreamInfo) SeekPreroll() time.Duration {
	if !s.Type.IsAudio() || s.SeekPrerollNS <= 0 {
		return 0
	}
	return time.Duration(s.SeekPrerollNS)
}

// PixelArea is the coded frame area used for encryption track classification.
func (s StreamInfo) PixelArea() uint64 {
	return uint64(s.Width) * uint64(s.Height)
}

// Sample is one media access unit. Times are in ticks of the stream's timescale.
type Sample struct {
	PTS        int64
	DTS        int64
	Duration   int64
	IsKeyFrame bool
	Data       []byte
	SideData   []byte
}

func (s Sample) String() string {
	return fmt.Sprintf("dts=%d pts=%d dur=%d key=%v size=%d", s.DTS, s.PTS, s.Duration, s.IsKeyFrame, len(s.Data))
}
