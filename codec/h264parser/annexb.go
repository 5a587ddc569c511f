package h264parser

import (
	"fmt"

	"github.com/bluenviron/mediacommon/pkg/codecs/h264"
)

// IsAnnexB reports whether b starts with an Annex B start code.
func IsAnnexB(b []byte) bool {
	if len(b) >= 3 && b[0] == 0 && b[1] == 0 && b[2] == 1 {
		return true
	}
	return len(b) >= 4 && b[0] == 0 && b[1] == 0 && b[2] == 0 && b[3] == 1
}

// AnnexBToLengthPrefixed rewrites an Annex B access unit as NAL units prefixed with
// lengthSize-byte big endian lengths. It also reports whether the unit holds an IDR slice.
func AnnexBToLengthPrefixed(au []byte, lengthSize int) (out []byte, keyFrame bool, err error) {
	switch lengthSize {
	case 1, 2, 4:
	default:
		return nil, false, fmt.Errorf("h264parser: unsupported nalu length size %d", lengthSize)
	}
	nalus, err := h264.AnnexBUnmarshal(au)
	if err != nil {
		return nil, false, fmt.Errorf("h264parser: annex b: %w", err)
	}
	size := 0
	for _, nalu := range nalus {
		if len(nalu) >= 1<<(8*uint(lengthSize)) {
			return nil, false, fmt.Errorf("h264parser: nalu of %d bytes does not fit a %d byte length", len(nalu), lengthSize)
		}
		size += lengthSize + len(nalu)
	}
	out = make([]byte, 0, size)
	for _, nalu := range nalus {
		j := len(nalu)
		for k := lengthSize - 1; k >= 0; k-- {
			out = append(out, byte(j>>(8*uint(k))))
		}
		out = append(out, nalu...)
	}
	return out, h264.IDRPresent(nalus), nil
}
