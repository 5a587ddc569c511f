package timescale

import (
	"math"
	"testing"
	"time"
)

func TestToScale(t *testing.T) {
	const scale uint32 = 90000
	values := []struct {
		T time.Duration
		V uint64
	}{
		{0, 0},
		{time.Second/60 - 1, 1500},
		{time.Second/60 + 0, 1500},
		{time.Second/60 + 1, 1500},
		{(time.Second/60)*60 - 1, 90000},
		{(time.Second/60)*60 + 0, 90000},
		{(time.Second/60)*60 + 1, 90000},
		{time.Second * (1 << 32), 90000 * (1 << 32)},
		{time.Second*(1<<32) + time.Second/60 - 1, 90000*(1<<32) + 1500},
		{time.Second*(1<<32) + time.Second/60 + 0, 90000*(1<<32) + 1500},
		{time.Second*(1<<32) + time.Second/60 + 1, 90000*(1<<32) + 1500},
	}
	for _, ex := range values {
		n := ToScale(ex.T, scale)
		if n != ex.V {
			t.Errorf("%d (%s): expected %d, got %d", ex.T, ex.T, ex.V, n)
		}
	}
}

func TestRelative(t *testing.T) {
	const scale uint32 = 90000
	values := []struct {
		T time.Duration
		V int32
	}{
		{0, 0},
		{time.Second/60 - 1, 1500},
		{time.Second/60 + 0, 1500},
		{time.Second/60 + 1, 1500},
		{(time.Second/60)*5 - 1, 7500},
		{(time.Second/60)*5 + 0, 7500},
		{(time.Second/60)*5 + 1, 7500},
		{-time.Second/60 - 1, -1500},
		{-time.Second/60 + 0, -1500},
		{-time.Second/60 + 1, -1500},
		{(-time.Second/60)*5 - 1, -7500},
		{(-time.Second/60)*5 + 0, -7500},
		{(-time.Second/60)*5 + 1, -7500},
	}
	for _, ex := range values {
		n := Relative(ex.T, scale)
		if n != ex.V {
			t.Errorf("%d (%s): expected %d, got %d", ex.T, ex.T, ex.V, n)
		}
	}
}

func TestFromScale(t *testing.T) {
	values := []struct {
		N     uint64
		Scale uint32
		T     time.Duration
	}{
		{0, 90000, 0},
		{1500, 90000, 16666667},
		{90000, 90000, time.Second},
		{1, 3, 333333333},
		{2, 3, 666666667},
		{960, 48000, 20 * time.Millisecond},
		{90000 * (1 << 32), 90000, time.Second * (1 << 32)},
		{1 << 63, 1, math.MaxInt64},
		{1000, 0, 0},
	}
	for _, ex := range values {
		d := FromScale(ex.N, ex.Scale)
		if d != ex.T {
			t.Errorf("%d/%d: expected %s, got %s", ex.N, ex.Scale, ex.T, d)
		}
	}
}

func TestRescale(t *testing.T) {
	values := []struct {
		N        uint64
		From, To uint32
		R        uint64
	}{
		{1920, 48000, 90000, 3600},
		{3600, 90000, 48000, 1920},
		{1, 3, 2, 1},
		{1, 3, 1, 0},
		{12345, 1000, 1000, 12345},
		{7, 0, 90000, 0},
		{math.MaxUint64, 1, 2, math.MaxUint64},
	}
	for _, ex := range values {
		r := Rescale(ex.N, ex.From, ex.To)
		if r != ex.R {
			t.Errorf("%d %d->%d: expected %d, got %d", ex.N, ex.From, ex.To, ex.R, r)
		}
	}
}
