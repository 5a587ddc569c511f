package av

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStreamInfoSeekPreroll(t *testing.T) {
	for _, tc := range []struct {
		name string
		info StreamInfo
		want time.Duration
	}{
		{"audio", StreamInfo{Type: AudioStream, SeekPrerollNS: int64(80 * time.Millisecond)}, 80 * time.Millisecond},
		{"audio max", StreamInfo{Type: AudioStream, SeekPrerollNS: math.MaxInt64}, time.Duration(math.MaxInt64)},
		{"audio negative", StreamInfo{Type: AudioStream, SeekPrerollNS: -1}, 0},
		{"video", StreamInfo{Type: VideoStream, SeekPrerollNS: int64(80 * time.Millisecond)}, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.info.SeekPreroll())
		})
	}
}
