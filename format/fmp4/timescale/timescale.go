package timescale

import (
	"math"
	"math/bits"
	"time"
)

// ToScale converts a decode time from time.Duration to a specified timescale
func ToScale(t time.Duration, scale uint32) uint64 {
	hi, lo := bits.Mul64(uint64(t), uint64(scale))
	dts, rem := bits.Div64(hi, lo, uint64(time.Second))
	if rem >= uint64(time.Second/2) {
		// round up
		dts++
	}
	return dts
}

// Relative converts a sub-second relative time (which may be negative) to a specified timescale
func Relative(t time.Duration, scale uint32) int32 {
	rel := int64(t) * int64(scale) / int64(time.Second/2)
	if (rel&1 != 0) == (t > 0) {
		// round up
		rel++
	}
	return int32(rel >> 1)
}

// FromScale converts a tick count in the specified timescale back to a time.Duration
func FromScale(ticks uint64, scale uint32) time.Duration {
	if scale == 0 {
		return 0
	}
	hi, lo := bits.Mul64(ticks, uint64(time.Second))
	if hi >= uint64(scale) {
		return math.MaxInt64
	}
	d, rem := bits.Div64(hi, lo, uint64(scale))
	if rem >= (uint64(scale)+1)/2 {
		// round up
		d++
	}
	if d > math.MaxInt64 {
		return math.MaxInt64
	}
	return time.Duration(d)
}

// Rescale converts a tick count between two timescales, rounding half up. It saturates at math.MaxUint64.
func Rescale(ticks uint64, from, to uint32) uint64 {
	if from == to {
		return ticks
	}
	if from == 0 {
		return 0
	}
	hi, lo := bits.Mul64(ticks, uint64(to))
	if hi >= uint64(from) {
		return math.MaxUint64
	}
	v, rem := bits.Div64(hi, lo, uint64(from))
	if rem >= (uint64(from)+1)/2 && v < math.MaxUint64 {
		// round up
		v++
	}
	return v
}
