// Package cenc holds the common encryption pieces the fragmenter needs: the
// track type used to pick a content key and the 'seig' sample group entries.
package cenc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/deepch/vdkpack/av"
)

// TrackType selects which content key protects a track.
type TrackType int

const (
	TrackTypeUnknown TrackType = iota
	TrackTypeSD
	TrackTypeHD
	TrackTypeUHD1
	TrackTypeUHD2
	TrackTypeAudio
	TrackTypeUnspecified
)

var trackTypeNames = map[TrackType]string{
	TrackTypeSD:          "SD",
	TrackTypeHD:          "HD",
	TrackTypeUHD1:        "UHD1",
	TrackTypeUHD2:        "UHD2",
	TrackTypeAudio:       "AUDIO",
	TrackTypeUnspecified: "UNSPECIFIED",
}

func (t TrackType) String() string {
	if name, ok := trackTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseTrackType is the inverse of TrackType.String. Unrecognized names give TrackTypeUnknown.
func ParseTrackType(s string) TrackType {
	s = strings.ToUpper(strings.TrimSpace(s))
	for t, name := range trackTypeNames {
		if name == s {
			return t
		}
	}
	return TrackTypeUnknown
}

var ErrThresholdOrder = errors.New("cenc: track type thresholds must satisfy sd <= hd <= uhd1")

// Thresholds are the inclusive pixel-count upper bounds of the SD, HD and UHD1 classes.
// Anything above MaxUHD1Pixels is UHD2.
type Thresholds struct {
	MaxSDPixels   uint32
	MaxHDPixels   uint32
	MaxUHD1Pixels uint32
}

// DefaultThresholds are 640x480, 1920x1080 and 4096x2160.
var DefaultThresholds = Thresholds{
	MaxSDPixels:   640 * 480,
	MaxHDPixels:   1920 * 1080,
	MaxUHD1Pixels: 4096 * 2160,
}

func (t Thresholds) Validate() error {
	if t.MaxSDPixels > t.MaxHDPixels || t.MaxHDPixels > t.MaxUHD1Pixels {
		return fmt.Errorf("%w: got %d, %d, %d", ErrThresholdOrder, t.MaxSDPixels, t.MaxHDPixels, t.MaxUHD1Pixels)
	}
	return nil
}

// Classify buckets a pixel area. The first threshold the area does not exceed wins,
// so inverted thresholds are not reordered.
func Classify(area uint64, maxSD, maxHD, maxUHD1 uint32) TrackType {
	switch {
	case area <= uint64(maxSD):
		return TrackTypeSD
	case area <= uint64(maxHD):
		return TrackTypeHD
	case area <= uint64(maxUHD1):
		return TrackTypeUHD1
	default:
		return TrackTypeUHD2
	}
}

// Classify buckets a pixel area with these thresholds.
func (t Thresholds) Classify(area uint64) TrackType {
	return Classify(area, t.MaxSDPixels, t.MaxHDPixels, t.MaxUHD1Pixels)
}

// TrackTypeForEncryption picks the key class of a stream: audio streams are AUDIO,
// video streams are classified by coded width times height.
func TrackTypeForEncryption(info av.StreamInfo, t Thresholds) TrackType {
	switch info.Type {
	case av.AudioStream:
		return TrackTypeAudio
	case av.VideoStream:
		return t.Classify(info.PixelArea())
	default:
		return TrackTypeUnknown
	}
}
